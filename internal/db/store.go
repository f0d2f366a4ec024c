/*
 * Copyright (c) 2024. Frits1980 -- All Rights Reserved
 *
 * This file is part of HEATING-PID project.
 *
 * HEATING-PID is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as the Free Software Foundation,
 * either version 3 of the License, or (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <http://www.gnu.org/licenses/>.
 */

package db

import (
	"context"
	"database/sql"
	_ "embed"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/Frits1980/heating-pid/internal/logger"
	"github.com/Frits1980/heating-pid/internal/pid"
)

//go:embed schema.sql
var schema string

const SchemaVersion = 1

const (
	keyVersion         = "schema_version"
	keyLastMaintenance = "last_valve_maintenance"
	KeyEnabled         = "enabled"
)

// ZoneRecord is the persisted learned state of one zone.
type ZoneRecord struct {
	WarmupFactor float64
	PIDIntegral  float64
	// Gains is nil when the zone runs on configured gains.
	Gains *pid.Gains

	ManualSetpoint       *float64
	ManualScheduleActive *bool
	LastValveActivity    *time.Time
}

type Snapshot struct {
	Zones                map[string]ZoneRecord
	LastValveMaintenance time.Time
	Version              int
}

func NewSnapshot() *Snapshot {
	return &Snapshot{Zones: make(map[string]ZoneRecord), Version: SchemaVersion}
}

type zoneRow struct {
	ZoneName             string          `db:"zone_name"`
	WarmupFactor         float64         `db:"warmup_factor"`
	PIDIntegral          float64         `db:"pid_integral"`
	Kp                   sql.NullFloat64 `db:"kp"`
	Ki                   sql.NullFloat64 `db:"ki"`
	Kd                   sql.NullFloat64 `db:"kd"`
	Ke                   sql.NullFloat64 `db:"ke"`
	ManualSetpoint       sql.NullFloat64 `db:"manual_setpoint"`
	ManualScheduleActive sql.NullBool    `db:"manual_schedule_active"`
	LastValveActivity    sql.NullString  `db:"last_valve_activity"`
	UpdatedAt            string          `db:"updated_at"`
}

// Store keeps controller state in a sqlite file.
type Store struct {
	db *sqlx.DB
}

func Open(dbFile string) (*Store, error) {
	db, err := sqlx.Open("sqlite3", dbFile)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", dbFile)
	}
	if err := db.Ping(); err != nil {
		return nil, errors.Wrapf(err, "ping %s", dbFile)
	}
	// single writer; also keeps ":memory:" databases on one connection
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "create schema")
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Load(ctx context.Context) (*Snapshot, error) {
	var rows []zoneRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT zone_name, warmup_factor, pid_integral, kp, ki, kd, ke,
       manual_setpoint, manual_schedule_active, last_valve_activity, updated_at FROM zone_state`); err != nil {
		return nil, errors.Wrap(err, "load zone state")
	}

	snap := NewSnapshot()
	for _, r := range rows {
		rec := ZoneRecord{WarmupFactor: r.WarmupFactor, PIDIntegral: r.PIDIntegral}
		if r.Kp.Valid && r.Ki.Valid && r.Kd.Valid && r.Ke.Valid {
			rec.Gains = &pid.Gains{Kp: r.Kp.Float64, Ki: r.Ki.Float64, Kd: r.Kd.Float64, Ke: r.Ke.Float64}
		}
		if r.ManualSetpoint.Valid {
			v := r.ManualSetpoint.Float64
			rec.ManualSetpoint = &v
		}
		if r.ManualScheduleActive.Valid {
			v := r.ManualScheduleActive.Bool
			rec.ManualScheduleActive = &v
		}
		if r.LastValveActivity.Valid {
			if t, err := time.Parse(time.RFC3339Nano, r.LastValveActivity.String); err == nil {
				rec.LastValveActivity = &t
			} else {
				logger.L().Warnf("DB: ignoring bad valve activity `%v` of zone %s", r.LastValveActivity.String, r.ZoneName)
			}
		}
		snap.Zones[r.ZoneName] = rec
	}

	if v, ok, err := s.ControllerValue(ctx, keyLastMaintenance); err != nil {
		return nil, err
	} else if ok {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			snap.LastValveMaintenance = t
		}
	}
	if v, ok, err := s.ControllerValue(ctx, keyVersion); err != nil {
		return nil, err
	} else if ok {
		snap.Version, _ = strconv.Atoi(v)
		if snap.Version > SchemaVersion {
			logger.L().Warnf("DB: schema version %d is newer than supported %d", snap.Version, SchemaVersion)
		}
	}
	return snap, nil
}

func (s *Store) Save(ctx context.Context, snap *Snapshot) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	defer func() { _ = tx.Rollback() }()

	for name, rec := range snap.Zones {
		if _, err := tx.NamedExecContext(ctx, `INSERT INTO zone_state
    (zone_name, warmup_factor, pid_integral, kp, ki, kd, ke, manual_setpoint, manual_schedule_active,
     last_valve_activity, updated_at)
VALUES (:zone_name, :warmup_factor, :pid_integral, :kp, :ki, :kd, :ke, :manual_setpoint, :manual_schedule_active,
        :last_valve_activity, :updated_at)
ON CONFLICT(zone_name) DO UPDATE SET warmup_factor          = excluded.warmup_factor,
                                     pid_integral           = excluded.pid_integral,
                                     kp                     = excluded.kp,
                                     ki                     = excluded.ki,
                                     kd                     = excluded.kd,
                                     ke                     = excluded.ke,
                                     manual_setpoint        = excluded.manual_setpoint,
                                     manual_schedule_active = excluded.manual_schedule_active,
                                     last_valve_activity    = excluded.last_valve_activity,
                                     updated_at             = excluded.updated_at`, toRow(name, rec)); err != nil {
			return errors.Wrapf(err, "save zone %s", name)
		}
	}

	if !snap.LastValveMaintenance.IsZero() {
		if err := upsertValue(ctx, tx, keyLastMaintenance, snap.LastValveMaintenance.UTC().Format(time.RFC3339Nano)); err != nil {
			return err
		}
	}
	if err := upsertValue(ctx, tx, keyVersion, strconv.Itoa(SchemaVersion)); err != nil {
		return err
	}
	return errors.Wrap(tx.Commit(), "commit")
}

func toRow(name string, rec ZoneRecord) zoneRow {
	r := zoneRow{
		ZoneName:     name,
		WarmupFactor: rec.WarmupFactor,
		PIDIntegral:  rec.PIDIntegral,
		UpdatedAt:    time.Now().UTC().Format(time.RFC3339Nano),
	}
	if g := rec.Gains; g != nil {
		r.Kp = sql.NullFloat64{Float64: g.Kp, Valid: true}
		r.Ki = sql.NullFloat64{Float64: g.Ki, Valid: true}
		r.Kd = sql.NullFloat64{Float64: g.Kd, Valid: true}
		r.Ke = sql.NullFloat64{Float64: g.Ke, Valid: true}
	}
	if rec.ManualSetpoint != nil {
		r.ManualSetpoint = sql.NullFloat64{Float64: *rec.ManualSetpoint, Valid: true}
	}
	if rec.ManualScheduleActive != nil {
		r.ManualScheduleActive = sql.NullBool{Bool: *rec.ManualScheduleActive, Valid: true}
	}
	if rec.LastValveActivity != nil && !rec.LastValveActivity.IsZero() {
		r.LastValveActivity = sql.NullString{String: rec.LastValveActivity.UTC().Format(time.RFC3339Nano), Valid: true}
	}
	return r
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsertValue(ctx context.Context, e execer, name, value string) error {
	_, err := e.ExecContext(ctx, `INSERT INTO controller_state (name, value, updated_at)
VALUES (?, ?, strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
ON CONFLICT(name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`, name, value)
	return errors.Wrapf(err, "save %s", name)
}

func (s *Store) SetControllerValue(ctx context.Context, name, value string) error {
	return upsertValue(ctx, s.db, name, value)
}

// ControllerValue returns a stored controller value and whether it exists.
func (s *Store) ControllerValue(ctx context.Context, name string) (string, bool, error) {
	var v string
	err := s.db.GetContext(ctx, &v, `SELECT value FROM controller_state WHERE name = ?`, name)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return "", false, nil
	case err != nil:
		return "", false, errors.Wrapf(err, "load %s", name)
	}
	return v, true, nil
}
