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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Frits1980/heating-pid/internal/config"
	"github.com/Frits1980/heating-pid/internal/valve"
)

func TestSwitchValve(t *testing.T) {
	cfg := &config.ValveConfig{Topic: "v/living"}
	cfg.FillDefaults()
	client := newFakeMQTT()
	a := NewValveActuator(cfg, client)
	assert.Equal(t, valve.CapabilitySwitch, a.Capability())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, a.Command(ctx, valve.Command{Open: true, Setpoint: 21}))
	require.NoError(t, a.Command(ctx, valve.Command{}))

	pubs := client.published("v/living")
	require.Len(t, pubs, 2)
	assert.Equal(t, "ON", pubs[0].payload)
	assert.Equal(t, "OFF", pubs[1].payload)
	assert.True(t, pubs[0].retained)
}

func TestModulatingValve(t *testing.T) {
	cfg := &config.ValveConfig{Type: config.ValveTypeModulating, Topic: "v/bath"}
	cfg.FillDefaults()
	client := newFakeMQTT()
	a := NewValveActuator(cfg, client)
	assert.Equal(t, valve.CapabilityModulating, a.Capability())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, a.Command(ctx, valve.Command{Open: true, Setpoint: 21.5}))
	require.NoError(t, a.Command(ctx, valve.Command{Open: false, Setpoint: 21.5}))

	pubs := client.published("v/bath")
	require.Len(t, pubs, 2)
	assert.Equal(t, "21.5", pubs[0].payload)
	assert.Equal(t, "5.0", pubs[1].payload)
}

func TestValveCommandError(t *testing.T) {
	cfg := &config.ValveConfig{Topic: "v/living"}
	cfg.FillDefaults()
	client := newFakeMQTT()
	client.err = assert.AnError
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err := NewValveActuator(cfg, client).Command(ctx, valve.Command{Open: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "v/living")
}
