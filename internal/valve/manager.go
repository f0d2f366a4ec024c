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

package valve

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/Frits1980/heating-pid/internal/logger"
)

type Config struct {
	MinOnTime      time.Duration `yaml:"min_on_time"`
	MinOffTime     time.Duration `yaml:"min_off_time"`
	OpeningDelay   time.Duration `yaml:"opening_delay"`
	CommandTimeout time.Duration `yaml:"command_timeout"`

	MaintenanceInterval time.Duration `yaml:"maintenance_interval"`
	MaintenanceDuration time.Duration `yaml:"maintenance_duration"`
	// MaintenanceHour is the hour of day (0-23) maintenance may run in.
	MaintenanceHour *int `yaml:"maintenance_hour"`
}

func (c *Config) FillDefaults() {
	if c.MinOnTime == 0 {
		c.MinOnTime = 5 * time.Minute
	}
	if c.MinOffTime == 0 {
		c.MinOffTime = 5 * time.Minute
	}
	if c.OpeningDelay == 0 {
		c.OpeningDelay = 3 * time.Minute
	}
	if c.CommandTimeout == 0 {
		c.CommandTimeout = 10 * time.Second
	}
	if c.MaintenanceInterval == 0 {
		c.MaintenanceInterval = 7 * 24 * time.Hour
	}
	if c.MaintenanceDuration == 0 {
		c.MaintenanceDuration = 30 * time.Second
	}
	if c.MaintenanceHour == nil {
		h := 14
		c.MaintenanceHour = &h
	}
}

// Request is the valve demand of one zone for this tick.
type Request struct {
	Zone     string
	Demand   float64
	Setpoint float64
}

// Manager applies zone demands to valve actuators with anti-cycling guards
// and exercises idle valves periodically.
type Manager struct {
	cfg      Config
	channels []*Channel
	byZone   map[string]*Channel

	lastMaintenance time.Time
	maint           *Channel
	maintStarted    time.Time
}

func NewManager(cfg Config) *Manager {
	return &Manager{cfg: cfg, byZone: make(map[string]*Channel)}
}

func (m *Manager) Add(zone string, a Actuator) *Channel {
	ch := &Channel{Zone: zone, actuator: a}
	m.channels = append(m.channels, ch)
	m.byZone[zone] = ch
	return ch
}

func (m *Manager) Channel(zone string) *Channel {
	return m.byZone[zone]
}

// Apply drives every zone's valve toward its requested state. Actuators are
// commanded concurrently. Failed commands leave the channel state unchanged so
// the next tick retries them; the first failure is returned. In hold mode
// nothing is sent.
func (m *Manager) Apply(ctx context.Context, now time.Time, reqs []Request, hold bool) error {
	if hold {
		logger.L().Debugf("Valves held (%d zones)", len(reqs))
		return nil
	}

	var g errgroup.Group
	for _, r := range reqs {
		ch := m.byZone[r.Zone]
		if ch == nil {
			continue
		}
		r := r
		g.Go(func() error {
			return m.applyOne(ctx, now, ch, r)
		})
	}
	return g.Wait()
}

func (m *Manager) applyOne(ctx context.Context, now time.Time, ch *Channel, r Request) error {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	if ch.maintenance {
		return nil
	}
	log := logger.Zone(ch.Zone)
	want := r.Demand > 0

	switch {
	case want && !ch.open:
		if !ch.closedAt.IsZero() && now.Sub(ch.closedAt) < m.cfg.MinOffTime {
			log.Debugf("Valve open deferred: closed %v ago, min off time %v",
				now.Sub(ch.closedAt).Round(time.Second), m.cfg.MinOffTime)
			return nil
		}
		if err := ch.send(ctx, m.cfg.CommandTimeout, Command{Open: true, Setpoint: r.Setpoint}); err != nil {
			log.Errorf("Valve open failed: %v", err)
			return errors.Wrapf(err, "open valve of zone %s", ch.Zone)
		}
		ch.markOpen(now, r.Setpoint)
		log.Infof("Valve opened (demand %.1f%%)", r.Demand)

	case !want && ch.open:
		if now.Sub(ch.openedAt) < m.cfg.MinOnTime {
			log.Debugf("Valve close deferred: open %v, min on time %v",
				now.Sub(ch.openedAt).Round(time.Second), m.cfg.MinOnTime)
			return nil
		}
		if err := ch.send(ctx, m.cfg.CommandTimeout, Command{Open: false}); err != nil {
			log.Errorf("Valve close failed: %v", err)
			return errors.Wrapf(err, "close valve of zone %s", ch.Zone)
		}
		ch.markClosed(now)
		log.Infof("Valve closed")

	case want && ch.actuator.Capability() == CapabilityModulating && setpointChanged(ch.setpoint, r.Setpoint):
		if err := ch.send(ctx, m.cfg.CommandTimeout, Command{Open: true, Setpoint: r.Setpoint}); err != nil {
			log.Errorf("Valve setpoint update failed: %v", err)
			return errors.Wrapf(err, "update valve of zone %s", ch.Zone)
		}
		ch.setpoint = r.Setpoint
		ch.lastActivity = now
	}
	return nil
}

// CountsTowardDemand reports whether the zone's valve has been open for at
// least the opening delay. Valves opened for maintenance never count.
func (m *Manager) CountsTowardDemand(zone string, now time.Time) bool {
	ch := m.byZone[zone]
	if ch == nil {
		return false
	}
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.open && !ch.maintenance && now.Sub(ch.openedAt) >= m.cfg.OpeningDelay
}

func (m *Manager) LastMaintenance() time.Time {
	return m.lastMaintenance
}

func (m *Manager) SetLastMaintenance(t time.Time) {
	m.lastMaintenance = t
}

// MaintenanceZone returns the zone being exercised, or "".
func (m *Manager) MaintenanceZone() string {
	if m.maint == nil {
		return ""
	}
	return m.maint.Zone
}
