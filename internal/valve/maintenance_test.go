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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaintenanceCycle(t *testing.T) {
	ctx := context.Background()
	m := NewManager(testConfig())
	a := &fakeActuator{}
	ch := m.Add("guest", a)
	ch.SetLastActivity(t0.Add(-8 * 24 * time.Hour))

	at14 := time.Date(2024, 1, 1, 14, 0, 0, 0, time.UTC)
	idle := map[string]float64{"guest": 0}

	assert.False(t, m.Maintain(ctx, at14.Add(-time.Hour), idle, false), "outside the maintenance hour")

	require.True(t, m.Maintain(ctx, at14, idle, false))
	assert.Equal(t, "guest", m.MaintenanceZone())
	assert.True(t, ch.Open())
	assert.True(t, ch.InMaintenance())
	assert.False(t, m.CountsTowardDemand("guest", at14.Add(time.Hour)), "maintenance never counts")

	// regular control leaves the valve alone while maintained
	require.NoError(t, m.Apply(ctx, at14.Add(10*time.Second), []Request{{Zone: "guest"}}, false))
	assert.True(t, ch.Open())

	assert.True(t, m.Maintain(ctx, at14.Add(20*time.Second), idle, false))
	assert.False(t, m.Maintain(ctx, at14.Add(30*time.Second), idle, false))
	assert.False(t, ch.Open())
	assert.False(t, ch.InMaintenance())
	assert.Equal(t, at14.Add(30*time.Second), m.LastMaintenance())
	assert.Equal(t, "", m.MaintenanceZone())

	// exercised recently, not again
	assert.False(t, m.Maintain(ctx, at14.Add(time.Minute), idle, false))
	assert.Equal(t, []Command{{Open: true}, {Open: false}}, a.commands())
}

func TestMaintenanceSkipsBusyValves(t *testing.T) {
	ctx := context.Background()
	m := NewManager(testConfig())
	recent := m.Add("living", &fakeActuator{})
	wanted := m.Add("bath", &fakeActuator{})
	recent.SetLastActivity(t0)
	wanted.SetLastActivity(t0.Add(-30 * 24 * time.Hour))

	at14 := time.Date(2024, 1, 1, 14, 0, 0, 0, time.UTC)
	assert.False(t, m.Maintain(ctx, at14, map[string]float64{"bath": 30}, false))
}

func TestMaintenanceKeepsValveOpenForNewDemand(t *testing.T) {
	ctx := context.Background()
	m := NewManager(testConfig())
	a := &fakeActuator{}
	ch := m.Add("guest", a)

	at14 := time.Date(2024, 1, 1, 14, 0, 0, 0, time.UTC)
	require.True(t, m.Maintain(ctx, at14, nil, false), "never-moved valve without history is due")

	assert.False(t, m.Maintain(ctx, at14.Add(time.Minute), map[string]float64{"guest": 40}, false))
	assert.True(t, ch.Open())
	assert.False(t, ch.InMaintenance())
	assert.True(t, m.CountsTowardDemand("guest", at14.Add(3*time.Minute)))
	assert.Len(t, a.commands(), 1)
}

func TestMaintenanceUsesGlobalTimestampForUnknownValves(t *testing.T) {
	m := NewManager(testConfig())
	m.Add("guest", &fakeActuator{})
	at14 := time.Date(2024, 1, 1, 14, 0, 0, 0, time.UTC)
	m.SetLastMaintenance(at14.Add(-24 * time.Hour))

	assert.False(t, m.Maintain(context.Background(), at14, nil, false))
}

func TestMaintenanceAtMidnight(t *testing.T) {
	h := 0
	cfg := Config{OpeningDelay: 2 * time.Minute, MaintenanceHour: &h}
	cfg.FillDefaults()
	require.Equal(t, 0, *cfg.MaintenanceHour)

	m := NewManager(cfg)
	ch := m.Add("guest", &fakeActuator{})
	midnight := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	assert.False(t, m.Maintain(context.Background(), midnight.Add(14*time.Hour), nil, false))
	assert.True(t, m.Maintain(context.Background(), midnight, nil, false))
	assert.True(t, ch.InMaintenance())
}

func TestMaintenanceWaitsForValveHold(t *testing.T) {
	ctx := context.Background()
	m := NewManager(testConfig())
	a := &fakeActuator{}
	ch := m.Add("guest", a)
	at14 := time.Date(2024, 1, 1, 14, 0, 0, 0, time.UTC)

	assert.False(t, m.Maintain(ctx, at14, nil, true), "no start while valves are held")
	assert.Empty(t, a.commands())

	require.True(t, m.Maintain(ctx, at14.Add(time.Minute), nil, false))

	// cooldown begins mid-cycle, the valve stays open past the duration
	assert.True(t, m.Maintain(ctx, at14.Add(2*time.Minute), nil, true))
	assert.True(t, ch.Open())
	assert.Equal(t, []Command{{Open: true}}, a.commands())

	assert.False(t, m.Maintain(ctx, at14.Add(3*time.Minute), nil, false))
	assert.False(t, ch.Open())
	assert.Equal(t, []Command{{Open: true}, {Open: false}}, a.commands())
}
