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

import "math"

// Source tells which layer produced the effective setpoint.
type Source int

const (
	SourceDefault Source = iota
	SourceSchedule
	SourcePreheat
	SourceSync
	SourceManual
	SourceSolar
	SourceWindow
	SourceAway
	SourceFrost
)

var sourceNames = [...]string{"default", "schedule", "preheat", "sync", "manual", "solar", "window", "away", "frost"}

func (s Source) String() string {
	if int(s) < len(sourceNames) {
		return sourceNames[s]
	}
	return "unknown"
}

// Inputs is everything the resolver needs for one zone at one instant.
// Nil pointers mean the layer does not apply.
type Inputs struct {
	Default  float64
	Schedule *float64 // set only while a schedule block is active
	Preheat  *float64 // next block temperature while pre-heating
	Synced   bool     // Preheat comes from start synchronization
	Manual   *float64
	Away     *float64

	WindowOpen bool
	SolarHigh  bool
}

// Resolver holds the zone's reduction parameters.
type Resolver struct {
	FrostTemp  float64
	WindowDrop float64
	SolarDrop  float64
}

type Resolved struct {
	Setpoint float64
	Source   Source
}

// Resolve applies the priority chain: away, then a single reduction layer
// (window over solar) on top of manual, schedule, pre-heat or default.
func (r Resolver) Resolve(in Inputs) Resolved {
	if in.Away != nil {
		return Resolved{Setpoint: *in.Away, Source: SourceAway}
	}

	base := Resolved{Setpoint: in.Default, Source: SourceDefault}
	switch {
	case in.Manual != nil:
		base = Resolved{Setpoint: *in.Manual, Source: SourceManual}
	case in.Schedule != nil:
		base = Resolved{Setpoint: *in.Schedule, Source: SourceSchedule}
	case in.Preheat != nil && in.Synced:
		base = Resolved{Setpoint: *in.Preheat, Source: SourceSync}
	case in.Preheat != nil:
		base = Resolved{Setpoint: *in.Preheat, Source: SourcePreheat}
	}

	switch {
	case in.WindowOpen:
		return Resolved{Setpoint: math.Max(r.FrostTemp, base.Setpoint-r.WindowDrop), Source: SourceWindow}
	case in.SolarHigh && r.SolarDrop > 0:
		return Resolved{Setpoint: math.Max(r.FrostTemp, base.Setpoint-r.SolarDrop), Source: SourceSolar}
	}
	return base
}
