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

	"github.com/Frits1980/heating-pid/internal/logger"
)

// Maintain advances the maintenance cycle by one tick. demand maps zones to
// their current demand. hold is set while the heat source keeps every valve
// open; no maintenance starts then and a finished one is not closed yet. It
// returns true while a valve is held open for maintenance, the circulation
// pump has to run during that time.
//
// One valve at a time is exercised, only during the configured hour. A valve
// qualifies when it is closed, has no demand and saw no activity for the
// maintenance interval. Valves that never moved fall back to the global
// last-maintenance timestamp.
func (m *Manager) Maintain(ctx context.Context, now time.Time, demand map[string]float64, hold bool) bool {
	if m.maint != nil {
		return m.finishMaintenance(ctx, now, demand[m.maint.Zone] > 0, hold)
	}
	if hold || now.Hour() != *m.cfg.MaintenanceHour {
		return false
	}

	for _, ch := range m.channels {
		if demand[ch.Zone] > 0 || !m.due(ch, now) {
			continue
		}
		ch.mu.Lock()
		err := ch.send(ctx, m.cfg.CommandTimeout, Command{Open: true, Setpoint: ch.setpoint})
		if err == nil {
			ch.open = true
			ch.maintenance = true
			ch.lastActivity = now
		}
		ch.mu.Unlock()

		if err != nil {
			logger.Zone(ch.Zone).Errorf("Valve maintenance open failed: %v", err)
			continue
		}
		logger.Zone(ch.Zone).Infof("Valve maintenance started for %v", m.cfg.MaintenanceDuration)
		m.maint, m.maintStarted = ch, now
		return true
	}
	return false
}

func (m *Manager) due(ch *Channel, now time.Time) bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.open || ch.maintenance {
		return false
	}
	ref := ch.lastActivity
	if ref.IsZero() {
		ref = m.lastMaintenance
	}
	return ref.IsZero() || now.Sub(ref) >= m.cfg.MaintenanceInterval
}

func (m *Manager) finishMaintenance(ctx context.Context, now time.Time, wanted, hold bool) bool {
	ch := m.maint
	if now.Sub(m.maintStarted) < m.cfg.MaintenanceDuration {
		return true
	}
	if !wanted && hold {
		// cooldown needs the flow path, close once it releases
		return true
	}

	ch.mu.Lock()
	defer ch.mu.Unlock()
	log := logger.Zone(ch.Zone)

	if wanted {
		// demand showed up meanwhile, keep it open as a regular opening
		ch.maintenance = false
		ch.openedAt = m.maintStarted
		log.Infof("Valve maintenance complete, valve stays open for demand")
	} else {
		if err := ch.send(ctx, m.cfg.CommandTimeout, Command{Open: false}); err != nil {
			log.Errorf("Valve maintenance close failed, retrying: %v", err)
			return true
		}
		ch.maintenance = false
		ch.markClosed(now)
		log.Infof("Valve maintenance complete")
	}
	m.maint = nil
	m.lastMaintenance = now
	return false
}
