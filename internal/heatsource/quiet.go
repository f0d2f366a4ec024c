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

package heatsource

import (
	"time"

	"github.com/Frits1980/heating-pid/internal/schedule"
)

// Quiet is the quiet-mode state derived from the day's schedule.
type Quiet struct {
	Active bool
	Anchor time.Time
}

// QuietWindow decides quiet mode from today's blocks of all zones. The ramp is
// anchored at the earliest block start of the day and ends when it completes
// or as soon as a block with a later start becomes active.
func (s *Strategy) QuietWindow(blocks []schedule.Block, now time.Time) Quiet {
	if s.cfg.QuietCeiling <= 0 || len(blocks) == 0 {
		return Quiet{}
	}

	anchor := blocks[0].From
	for _, b := range blocks[1:] {
		if b.From.Before(anchor) {
			anchor = b.From
		}
	}
	q := Quiet{Anchor: anchor}

	inFirst := false
	for _, b := range blocks {
		if b.From.After(anchor) && !now.Before(b.From) {
			return q
		}
		if b.From.Equal(anchor) && b.Contains(now) {
			inFirst = true
		}
	}
	q.Active = inFirst && now.Sub(anchor) < s.cfg.QuietRamp
	return q
}
