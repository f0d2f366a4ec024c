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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Frits1980/heating-pid/internal/clock"
	"github.com/Frits1980/heating-pid/internal/config"
)

func sensorCfg(topic string, mods ...func(*config.SensorConfig)) *config.SensorConfig {
	s := config.NewSensorConfig()
	s.Topic = topic
	for _, m := range mods {
		m(s)
	}
	return s
}

func TestSensorHubValues(t *testing.T) {
	clk := clock.NewManual(t0)
	hub := NewSensorHub(clk)
	hub.Register("a", sensorCfg("t/a", func(s *config.SensorConfig) { s.MaxAge = time.Minute }))

	_, stale := hub.Read("a")
	assert.True(t, stale, "never seen")
	_, stale = hub.Read("unknown")
	assert.True(t, stale)

	hub.handleValue("t/a", []byte(" 19.5 "))
	v, stale := hub.Read("a")
	assert.False(t, stale)
	assert.Equal(t, 19.5, v)

	hub.handleValue("t/a", []byte("nan-ish"))
	v, _ = hub.Read("a")
	assert.Equal(t, 19.5, v)

	clk.Advance(61 * time.Second)
	v, stale = hub.Read("a")
	assert.True(t, stale)
	assert.Equal(t, 19.5, v)
}

func TestSensorHubSharedTopic(t *testing.T) {
	hub := NewSensorHub(clock.NewManual(t0))
	temp, hum := "temperature", "humidity"
	hub.Register("t", sensorCfg("multi", func(s *config.SensorConfig) { s.JSONEntry = &temp }))
	hub.Register("h", sensorCfg("multi", func(s *config.SensorConfig) { s.JSONEntry = &hum }))

	hub.handleValue("multi", []byte(`{"temperature": 21.25, "humidity": "48"}`))
	v, stale := hub.Read("t")
	require.False(t, stale)
	assert.Equal(t, 21.25, v)
	v, stale = hub.Read("h")
	require.False(t, stale)
	assert.Equal(t, 48.0, v)
}

func TestSensorHubControl(t *testing.T) {
	hub := NewSensorHub(clock.NewManual(t0))
	hub.Register("zone-living-1", sensorCfg("t/living"))
	client := newFakeMQTT()
	hub.Subscribe(client, "ctl")

	require.True(t, client.deliver("ctl/sensors/zone-living-1/offset", "0.5"))
	require.True(t, client.deliver("ctl/sensors/zone-living-1/scale", "bogus"))
	require.True(t, client.deliver("t/living", "20"))
	v, _ := hub.Read("zone-living-1")
	assert.Equal(t, 20.5, v)

	client.deliver("ctl/sensors/zone-living-1/scale", "2")
	hub.Update("zone-living-1", 20)
	v, _ = hub.Read("zone-living-1")
	assert.Equal(t, 40.5, v)

	// unknown ids and params are ignored
	hub.handleControl("ctl/sensors/nope/offset", []byte("3"))
	hub.handleControl("ctl/sensors/zone-living-1/weight", []byte("3"))
	hub.Update("zone-living-1", 20)
	v, _ = hub.Read("zone-living-1")
	assert.Equal(t, 40.5, v)
}

func TestSensorHubRegisterConfig(t *testing.T) {
	cfg := loadTestConfig(t, false, false)
	hub := NewSensorHub(clock.NewManual(t0))
	hub.RegisterConfig(cfg)
	client := newFakeMQTT()
	hub.Subscribe(client, cfg.MQTTConfig.ControlTopic)

	for _, topic := range []string{
		"t/living", "t/bath", "boiler/flow_t", "boiler/return_t",
		"heatingpid/control/sensors/zone-living-1/offset",
		"heatingpid/control/sensors/flow-main/scale",
	} {
		assert.Contains(t, client.subs, topic)
	}

	client.deliver("boiler/return_t", "38")
	v, stale := hub.Read("return-main")
	assert.False(t, stale)
	assert.Equal(t, 38.0, v)
}

func TestSensorGroup(t *testing.T) {
	src := newFakeSensors()
	src.set("zone-x-1", 20)
	src.set("zone-x-hall", 23)
	group := func(average string) sensorGroup {
		return newSensorGroup(zoneSensorPrefix("x"), []*config.SensorConfig{
			sensorCfg("a"),
			sensorCfg("b", func(s *config.SensorConfig) { s.Name = "hall"; s.Weight = config.GetPTR(2.0) }),
			sensorCfg("c", func(s *config.SensorConfig) { s.Name = "attic" }),
		}, average)
	}

	g := group(config.DefaultAverageType)
	assert.Equal(t, []string{"zone-x-1", "zone-x-hall", "zone-x-attic"}, g.ids)
	v, ok := g.read(src)
	require.True(t, ok)
	assert.InDelta(t, 22, v, 1e-9)

	v, ok = group("min").read(src)
	require.True(t, ok)
	assert.Equal(t, 20.0, v)
	v, ok = group("max").read(src)
	require.True(t, ok)
	assert.Equal(t, 23.0, v)

	src.drop("zone-x-1")
	src.drop("zone-x-hall")
	_, ok = g.read(src)
	assert.False(t, ok)
	_, ok = group("max").read(src)
	assert.False(t, ok)
	assert.True(t, sensorGroup{}.empty())
}

func TestOutsideController(t *testing.T) {
	src := newFakeSensors()
	o := NewOutsideController(
		&config.OutsideConfig{
			TemperatureSensors:     []*config.SensorConfig{sensorCfg("o/1"), sensorCfg("o/2")},
			TemperatureAverageType: config.DefaultAverageType,
		},
		&config.SolarConfig{Sensor: sensorCfg("sun"), Threshold: 2000},
	)

	outdoor, solar := o.Read(src)
	assert.Nil(t, outdoor)
	assert.False(t, solar)

	src.set(outsidePrefix+"1", 4)
	src.set(outsidePrefix+"2", 6)
	src.set(solarID, 2500)
	outdoor, solar = o.Read(src)
	require.NotNil(t, outdoor)
	assert.Equal(t, 5.0, *outdoor)
	assert.True(t, solar)

	// a stale solar reading keeps the last decision
	src.drop(solarID)
	_, solar = o.Read(src)
	assert.True(t, solar)

	src.set(solarID, 2000)
	_, solar = o.Read(src)
	assert.False(t, solar, "exactly at the threshold is not above it")

	src.set(solarID, 2000.5)
	_, solar = o.Read(src)
	assert.True(t, solar)

	src.set(solarID, 100)
	_, solar = o.Read(src)
	assert.False(t, solar)
}
