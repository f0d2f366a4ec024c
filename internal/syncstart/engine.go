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

package syncstart

import (
	"sort"
	"time"

	"github.com/Frits1980/heating-pid/internal/logger"
	"github.com/Frits1980/heating-pid/internal/schedule"
)

// Member is the per-tick view of one zone.
type Member struct {
	Zone string

	ScheduleActive bool
	Manual         bool
	Away           bool

	// Current is the measured temperature, nil when unknown.
	Current *float64
	Next    schedule.Block
	HasNext bool

	// Heating is true when the zone is actively calling for heat with an open valve.
	Heating bool
}

// Engine starts zones with an upcoming schedule block early while another
// zone is already heating, so the heat source runs fewer cycles.
type Engine struct {
	lookAhead time.Duration
	synced    map[string]schedule.Block
}

func New(lookAhead time.Duration) *Engine {
	return &Engine{lookAhead: lookAhead, synced: make(map[string]schedule.Block)}
}

// Synced returns the block a zone was pulled forward to, if any.
func (e *Engine) Synced(zone string) (schedule.Block, bool) {
	b, ok := e.synced[zone]
	return b, ok
}

// Evaluate updates the synchronized set for this tick and returns the zones
// that are synchronized afterwards, sorted by name.
func (e *Engine) Evaluate(now time.Time, members []Member) []string {
	for _, m := range members {
		b, ok := e.synced[m.Zone]
		if !ok {
			continue
		}
		switch {
		case !now.Before(b.From):
			logger.Zone(m.Zone).Infof("Synchronized start reached scheduled start at %v", b.From.Format("15:04"))
		case !eligible(m) || !m.Next.From.Equal(b.From):
			logger.Zone(m.Zone).Infof("Synchronized start cancelled")
		default:
			continue
		}
		delete(e.synced, m.Zone)
	}

	var heating []string
	for _, m := range members {
		if _, ok := e.synced[m.Zone]; m.Heating && !ok {
			heating = append(heating, m.Zone)
		}
	}

	for _, m := range members {
		if _, ok := e.synced[m.Zone]; ok || !eligible(m) {
			continue
		}
		until := m.Next.From.Sub(now)
		if until <= 0 || until > e.lookAhead || !othersHeating(heating, m.Zone) {
			continue
		}
		e.synced[m.Zone] = m.Next
		logger.Zone(m.Zone).Infof("Starting %v early to join heating zones %v (target %.1f°C)",
			until.Round(time.Minute), heating, m.Next.Temperature)
	}

	out := make([]string, 0, len(e.synced))
	for z := range e.synced {
		out = append(out, z)
	}
	sort.Strings(out)
	return out
}

// Forget drops a zone from the synchronized set.
func (e *Engine) Forget(zone string) {
	delete(e.synced, zone)
}

func eligible(m Member) bool {
	return m.HasNext && !m.ScheduleActive && !m.Manual && !m.Away &&
		m.Current != nil && *m.Current < m.Next.Temperature
}

func othersHeating(heating []string, zone string) bool {
	for _, z := range heating {
		if z != zone {
			return true
		}
	}
	return false
}
