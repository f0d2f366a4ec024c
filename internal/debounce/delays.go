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

package debounce

import "time"

const (
	WindowDelay = 30 * time.Second
	ManualDelay = 5 * time.Second
	AwayDelay   = 30 * time.Minute
)

// Presence debounces occupancy: losing presence waits awayDelay, regaining it
// is applied at once.
func Presence[K comparable](awayDelay time.Duration) DelayFunc[K, bool] {
	return func(_ K, _, home bool) time.Duration {
		if home {
			return 0
		}
		return awayDelay
	}
}
