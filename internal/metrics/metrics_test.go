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

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestZoneGauges(t *testing.T) {
	ZoneDemand.WithLabelValues("test-zone").Set(42)
	assert.Equal(t, 42.0, testutil.ToFloat64(ZoneDemand.WithLabelValues("test-zone")))

	ValveOpen.WithLabelValues("test-zone").Set(Bool(true))
	assert.Equal(t, 1.0, testutil.ToFloat64(ValveOpen.WithLabelValues("test-zone")))
}

func TestCountersIncrement(t *testing.T) {
	before := testutil.ToFloat64(LoopTicksTotal)
	LoopTicksTotal.Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(LoopTicksTotal))

	assert.NotPanics(t, func() { ValveCommandErrors.WithLabelValues("test-zone").Inc() })
	assert.NotPanics(t, func() { LoopTickLatency.Observe(0.01) })
}

func TestBool(t *testing.T) {
	assert.Equal(t, 0.0, Bool(false))
	assert.Equal(t, 1.0, Bool(true))
}
