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

package pid

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var defaultGains = Gains{Kp: 30, Ki: 0.5, Kd: 10, Ke: 0}

func TestFirstTickIsProportionalOnly(t *testing.T) {
	c := New(defaultGains, 15)

	out := c.Update(21.0, 18.0, nil, 30)

	assert.InDelta(t, 90.0, out, 1e-9)
	assert.Zero(t, c.Integral(), "integral must not accrue while the prospective output saturates")
}

func TestDemandDecreasesWhileApproachingSetpoint(t *testing.T) {
	c := New(defaultGains, 15)

	measured := 18.0
	prev := c.Update(21.0, measured, nil, 30)
	for i := 0; i < 12; i++ {
		measured += (21.0 - measured) / 2
		out := c.Update(21.0, measured, nil, 30)
		assert.LessOrEqual(t, out, prev+1e-9, "tick %d: demand rose from %.3f to %.3f", i, prev, out)
		prev = out
	}
}

func TestAntiWindupKeepsSumWithinRange(t *testing.T) {
	c := New(Gains{Kp: 5, Ki: 0.01, Kd: 0}, 15)

	for i := 0; i < 500; i++ {
		out := c.Update(22.0, 12.0, nil, 30)
		require.LessOrEqual(t, out, MaxOutput)
		terms := c.Terms()
		require.LessOrEqual(t, terms.P+terms.I+terms.D, MaxOutput+1e-9, "tick %d", i)
	}
}

func TestErrorReversalResetsIntegral(t *testing.T) {
	c := New(Gains{Kp: 5, Ki: 0.2, Kd: 0}, 15)

	for i := 0; i < 20; i++ {
		c.Update(21.0, 20.0, nil, 30)
	}
	require.Greater(t, c.Integral(), 0.0)

	c.Update(21.0, 21.5, nil, 30)
	assert.Zero(t, c.Integral())
}

func TestIntegralAccumulatesBelowSaturation(t *testing.T) {
	c := New(Gains{Kp: 1, Ki: 0.1, Kd: 0}, 15)

	for i := 0; i < 10; i++ {
		c.Update(21.0, 20.0, nil, 30)
	}
	before := c.Integral()
	c.Update(21.0, 20.9, nil, 30)
	assert.Greater(t, c.Integral(), before, "positive error keeps accumulating when not saturated")
}

func TestDerivativeActsOnMeasurement(t *testing.T) {
	c := New(Gains{Kp: 0, Ki: 0, Kd: 10}, 15)

	c.Update(20.0, 19.0, nil, 30)
	out := c.Update(25.0, 19.0, nil, 30)
	assert.Zero(t, out, "setpoint jump alone must not produce a derivative kick")

	c.Update(25.0, 18.0, nil, 10)
	assert.InDelta(t, 1.0, c.Terms().D, 1e-9)
}

func TestOutdoorCompensationIsMultiplicative(t *testing.T) {
	c := New(Gains{Kp: 10, Ke: 0.02}, 15)

	cold := 5.0
	out := c.Update(21.0, 20.0, &cold, 0)
	assert.InDelta(t, 10*(1+0.02*10), out, 1e-9)

	warm := 20.0
	c2 := New(Gains{Kp: 10, Ke: 0.02}, 15)
	assert.InDelta(t, 10.0, c2.Update(21.0, 20.0, &warm, 0), 1e-9)
}

func TestOutputAlwaysClamped(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	c := New(Gains{Kp: 80, Ki: 3, Kd: 40, Ke: 0.1}, 15)

	for i := 0; i < 2000; i++ {
		sp := 5 + r.Float64()*25
		pv := -10 + r.Float64()*45
		ot := -25 + r.Float64()*50
		out := c.Update(sp, pv, &ot, r.Float64()*120)
		require.GreaterOrEqual(t, out, MinOutput)
		require.LessOrEqual(t, out, MaxOutput)
	}
}

func TestNonFiniteInputHoldsPreviousOutput(t *testing.T) {
	c := New(defaultGains, 15)
	first := c.Update(21.0, 20.0, nil, 30)

	assert.Equal(t, first, c.Update(21.0, math.NaN(), nil, 30))
	assert.Equal(t, first, c.Update(21.0, 20.0, nil, math.Inf(1)))
}

func TestRestoreIntegralClamps(t *testing.T) {
	c := New(defaultGains, 15)

	assert.Equal(t, MaxIntegral, c.RestoreIntegral(1e6))
	assert.Equal(t, -MaxIntegral, c.RestoreIntegral(-1e6))
	assert.Zero(t, c.RestoreIntegral(math.NaN()))
	assert.Equal(t, 12.5, c.RestoreIntegral(12.5))
}

func TestGainsValid(t *testing.T) {
	assert.True(t, defaultGains.Valid())
	assert.False(t, Gains{Kp: -1}.Valid())
	assert.False(t, Gains{Ki: math.NaN()}.Valid())
}
