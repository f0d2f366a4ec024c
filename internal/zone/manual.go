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

package zone

// ManualOverride is a user setpoint tied to the schedule state at the moment
// it was made. It lives until the schedule flips away from that state.
type ManualOverride struct {
	set            bool
	setpoint       float64
	scheduleActive bool
}

func (m *ManualOverride) Set(setpoint float64, scheduleActive bool) {
	m.set = true
	m.setpoint = setpoint
	m.scheduleActive = scheduleActive
}

func (m *ManualOverride) Clear() {
	*m = ManualOverride{}
}

// Setpoint returns nil when no override is in effect.
func (m *ManualOverride) Setpoint() *float64 {
	if !m.set {
		return nil
	}
	v := m.setpoint
	return &v
}

func (m *ManualOverride) Active() bool {
	return m.set
}

// ScheduleActive is the schedule state recorded with the override.
func (m *ManualOverride) ScheduleActive() bool {
	return m.scheduleActive
}

// Expire clears the override if the schedule state now differs from the
// recorded one. It reports true only on the call that cleared it.
func (m *ManualOverride) Expire(scheduleActive bool) bool {
	if !m.set || scheduleActive == m.scheduleActive {
		return false
	}
	m.Clear()
	return true
}
