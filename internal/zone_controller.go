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

package internal

import (
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Frits1980/heating-pid/internal/config"
	"github.com/Frits1980/heating-pid/internal/db"
	"github.com/Frits1980/heating-pid/internal/logger"
	"github.com/Frits1980/heating-pid/internal/pid"
	"github.com/Frits1980/heating-pid/internal/valve"
	"github.com/Frits1980/heating-pid/internal/zone"
)

// ZoneController is the state of one zone. It is owned by the control loop
// goroutine and never touched from MQTT callbacks.
type ZoneController struct {
	name    string
	cfg     *config.ZoneConfig
	log     *zap.SugaredLogger
	sensors sensorGroup
	pid     *pid.Controller
	learner *zone.Learner
	manual  zone.ManualOverride
	valve   *valve.Channel

	temperature  *float64
	lastKnown    *float64
	failingSince time.Time
	escalated    bool

	setpoint   float64
	source     zone.Source
	demand     float64
	windowOpen bool
	preheat    bool
	synced     bool
	heating    bool
	gainsTuned bool

	valveFailures int
}

func newZoneController(name string, cfg *config.ZoneConfig, referenceTemp float64, learner zone.LearnerConfig) *ZoneController {
	log := logger.Zone(name)
	return &ZoneController{
		name:     name,
		cfg:      cfg,
		log:      log,
		sensors:  newSensorGroup(zoneSensorPrefix(name), cfg.Sensors, cfg.SensorsAverageType),
		pid:      pid.New(*cfg.Gains, referenceTemp),
		learner:  zone.NewLearner(learner, log),
		setpoint: *cfg.DefaultSetpoint,
	}
}

func (z *ZoneController) Name() string {
	return z.name
}

func (z *ZoneController) Demand() float64 {
	return z.demand
}

func (z *ZoneController) Setpoint() (float64, zone.Source) {
	return z.setpoint, z.source
}

// record is the persisted part of the zone.
func (z *ZoneController) record() db.ZoneRecord {
	rec := db.ZoneRecord{
		WarmupFactor: z.learner.Factor(),
		PIDIntegral:  z.pid.Integral(),
	}
	if z.gainsTuned {
		g := z.pid.Gains()
		rec.Gains = &g
	}
	if sp := z.manual.Setpoint(); sp != nil {
		sa := z.manual.ScheduleActive()
		rec.ManualSetpoint, rec.ManualScheduleActive = sp, &sa
	}
	if z.valve != nil {
		if t := z.valve.LastActivity(); !t.IsZero() {
			rec.LastValveActivity = &t
		}
	}
	return rec
}

// restore applies a persisted record. Implausible values are clamped.
// scheduleActive stands in for a manual override saved without its schedule state.
func (z *ZoneController) restore(rec db.ZoneRecord, scheduleActive bool) {
	if f := z.learner.Restore(rec.WarmupFactor); f != rec.WarmupFactor {
		z.log.Warnf("Warm-up factor %v out of range, using %v", rec.WarmupFactor, f)
	}
	if i := z.pid.RestoreIntegral(rec.PIDIntegral); i != rec.PIDIntegral {
		z.log.Warnf("PID integral %v out of range, clamped to %v", rec.PIDIntegral, i)
	}
	if rec.Gains != nil {
		if rec.Gains.Valid() {
			z.pid.SetGains(*rec.Gains)
			z.gainsTuned = true
		} else {
			z.log.Warnf("Ignoring invalid stored gains %+v", *rec.Gains)
		}
	}
	if rec.ManualSetpoint != nil {
		if rec.ManualScheduleActive != nil {
			scheduleActive = *rec.ManualScheduleActive
		}
		z.manual.Set(*rec.ManualSetpoint, scheduleActive)
	}
	if rec.LastValveActivity != nil && z.valve != nil {
		z.valve.SetLastActivity(*rec.LastValveActivity)
	}
	z.log.Debugf("Restored: factor=%.1f, integral=%.2f, manual=%v",
		z.learner.Factor(), z.pid.Integral(), z.manual.Active())
}

// setGain changes one PID gain.
func (z *ZoneController) setGain(param string, v float64) error {
	g := z.pid.Gains()
	switch param {
	case "kp":
		g.Kp = v
	case "ki":
		g.Ki = v
	case "kd":
		g.Kd = v
	case "ke":
		g.Ke = v
	default:
		return errors.Errorf("unknown gain `%s`", param)
	}
	if !g.Valid() {
		return errors.Errorf("invalid gains %+v", g)
	}
	z.pid.SetGains(g)
	z.gainsTuned = true
	z.log.Infof("Updated %s to %v", param, v)
	return nil
}
