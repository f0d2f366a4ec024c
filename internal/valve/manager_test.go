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
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeActuator struct {
	capability Capability

	mu   sync.Mutex
	cmds []Command
	fail bool
}

func (f *fakeActuator) Capability() Capability { return f.capability }

func (f *fakeActuator) Command(ctx context.Context, cmd Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("no deadline")
	}
	if f.fail {
		return errors.New("unreachable")
	}
	f.cmds = append(f.cmds, cmd)
	return nil
}

func (f *fakeActuator) commands() []Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Command(nil), f.cmds...)
}

var t0 = time.Date(2024, 1, 1, 6, 0, 0, 0, time.UTC)

func testConfig() Config {
	cfg := Config{OpeningDelay: 2 * time.Minute}
	cfg.FillDefaults()
	return cfg
}

func TestOpenAndCloseWithGuards(t *testing.T) {
	ctx := context.Background()
	m := NewManager(testConfig())
	a := &fakeActuator{}
	ch := m.Add("living", a)

	require.NoError(t, m.Apply(ctx, t0, []Request{{Zone: "living", Demand: 40}}, false))
	assert.True(t, ch.Open())
	assert.Equal(t, t0, ch.OpenedAt())

	// min on time blocks the close
	require.NoError(t, m.Apply(ctx, t0.Add(time.Minute), []Request{{Zone: "living"}}, false))
	assert.True(t, ch.Open())

	require.NoError(t, m.Apply(ctx, t0.Add(5*time.Minute), []Request{{Zone: "living"}}, false))
	assert.False(t, ch.Open())

	// min off time blocks the reopen
	require.NoError(t, m.Apply(ctx, t0.Add(7*time.Minute), []Request{{Zone: "living", Demand: 80}}, false))
	assert.False(t, ch.Open())

	require.NoError(t, m.Apply(ctx, t0.Add(10*time.Minute), []Request{{Zone: "living", Demand: 80}}, false))
	assert.True(t, ch.Open())

	assert.Equal(t, []Command{{Open: true}, {Open: false}, {Open: true}}, a.commands())
}

func TestOpeningDelayAccounting(t *testing.T) {
	ctx := context.Background()
	m := NewManager(testConfig())
	m.Add("living", &fakeActuator{})

	assert.False(t, m.CountsTowardDemand("living", t0))
	require.NoError(t, m.Apply(ctx, t0, []Request{{Zone: "living", Demand: 90}}, false))
	assert.False(t, m.CountsTowardDemand("living", t0))
	assert.False(t, m.CountsTowardDemand("living", t0.Add(119*time.Second)))
	assert.True(t, m.CountsTowardDemand("living", t0.Add(2*time.Minute)))
	assert.False(t, m.CountsTowardDemand("unknown", t0.Add(time.Hour)))
}

func TestFailedCommandIsRetried(t *testing.T) {
	ctx := context.Background()
	m := NewManager(testConfig())
	bad := &fakeActuator{fail: true}
	good := &fakeActuator{}
	chBad := m.Add("bath", bad)
	chGood := m.Add("living", good)

	reqs := []Request{{Zone: "bath", Demand: 50}, {Zone: "living", Demand: 50}}
	err := m.Apply(ctx, t0, reqs, false)
	assert.Error(t, err)
	assert.False(t, chBad.Open())
	assert.True(t, chGood.Open(), "other zones are not affected")
	assert.Equal(t, 1, chBad.Failures())

	bad.mu.Lock()
	bad.fail = false
	bad.mu.Unlock()
	require.NoError(t, m.Apply(ctx, t0.Add(30*time.Second), reqs, false))
	assert.True(t, chBad.Open())
	assert.Equal(t, t0.Add(30*time.Second), chBad.OpenedAt())
}

func TestHoldSendsNothing(t *testing.T) {
	m := NewManager(testConfig())
	a := &fakeActuator{}
	ch := m.Add("living", a)

	require.NoError(t, m.Apply(context.Background(), t0, []Request{{Zone: "living", Demand: 50}}, true))
	assert.False(t, ch.Open())
	assert.Empty(t, a.commands())
}

func TestModulatingSetpointFollows(t *testing.T) {
	ctx := context.Background()
	m := NewManager(testConfig())
	a := &fakeActuator{capability: CapabilityModulating}
	m.Add("living", a)

	require.NoError(t, m.Apply(ctx, t0, []Request{{Zone: "living", Demand: 50, Setpoint: 21}}, false))
	require.NoError(t, m.Apply(ctx, t0.Add(time.Minute), []Request{{Zone: "living", Demand: 60, Setpoint: 21}}, false))
	require.NoError(t, m.Apply(ctx, t0.Add(2*time.Minute), []Request{{Zone: "living", Demand: 60, Setpoint: 22}}, false))

	assert.Equal(t, []Command{{Open: true, Setpoint: 21}, {Open: true, Setpoint: 22}}, a.commands())
}

func TestSwitchIgnoresSetpointChanges(t *testing.T) {
	ctx := context.Background()
	m := NewManager(testConfig())
	a := &fakeActuator{}
	m.Add("living", a)

	require.NoError(t, m.Apply(ctx, t0, []Request{{Zone: "living", Demand: 50, Setpoint: 21}}, false))
	require.NoError(t, m.Apply(ctx, t0.Add(time.Minute), []Request{{Zone: "living", Demand: 50, Setpoint: 23}}, false))
	assert.Len(t, a.commands(), 1)
}
