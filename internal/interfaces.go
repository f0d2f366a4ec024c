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
	"context"
	"time"

	"github.com/Frits1980/heating-pid/internal/db"
	"github.com/Frits1980/heating-pid/internal/heatsource"
	"github.com/Frits1980/heating-pid/internal/schedule"
)

// SensorSource returns the latest reading of a sensor. stale is true when the
// sensor never reported or its reading is older than its max age.
type SensorSource interface {
	Read(id string) (value float64, stale bool)
}

type ScheduleSource interface {
	IsActive(zone string, at time.Time) bool
	CurrentSetpoint(zone string, at time.Time) (float64, bool)
	NextBlock(zone string, at time.Time) (schedule.Block, bool)
	DayBlocks(zone string, at time.Time) []schedule.Block
}

type PersistentStore interface {
	Load(ctx context.Context) (*db.Snapshot, error)
	Save(ctx context.Context, snap *db.Snapshot) error
}

// ControllerValues is implemented by stores that keep loose controller
// settings such as the global enable switch.
type ControllerValues interface {
	SetControllerValue(ctx context.Context, name, value string) error
	ControllerValue(ctx context.Context, name string) (string, bool, error)
}

type HeatSource interface {
	Command(ctx context.Context, cmd heatsource.Command) error
}

type StatusPublisher interface {
	PublishWait(ctx context.Context, topic string, qos byte, retained bool, payload interface{}) error
}
