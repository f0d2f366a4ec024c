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

package schedule

import (
	"sync"
	"time"
)

// Source serves weekly schedules per zone. Zones without a schedule are never active.
type Source struct {
	mu    sync.RWMutex
	weeks map[string]*Week
}

func NewSource() *Source {
	return &Source{weeks: make(map[string]*Week)}
}

func (s *Source) Set(zone string, w *Week) {
	s.mu.Lock()
	s.weeks[zone] = w
	s.mu.Unlock()
}

func (s *Source) week(zone string) *Week {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.weeks[zone]
}

func (s *Source) HasSchedule(zone string) bool {
	return s.week(zone) != nil
}

func (s *Source) IsActive(zone string, at time.Time) bool {
	_, ok := s.CurrentSetpoint(zone, at)
	return ok
}

func (s *Source) CurrentSetpoint(zone string, at time.Time) (float64, bool) {
	w := s.week(zone)
	if w == nil {
		return 0, false
	}
	b, ok := w.Active(at)
	return b.Temperature, ok
}

func (s *Source) NextBlock(zone string, at time.Time) (Block, bool) {
	w := s.week(zone)
	if w == nil {
		return Block{}, false
	}
	return w.Next(at)
}

func (s *Source) DayBlocks(zone string, at time.Time) []Block {
	w := s.week(zone)
	if w == nil {
		return nil
	}
	return w.Blocks(at)
}
