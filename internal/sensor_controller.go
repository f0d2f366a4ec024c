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
	"math"
	"sort"
	"strconv"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/Frits1980/heating-pid/internal/clock"
	"github.com/Frits1980/heating-pid/internal/config"
	"github.com/Frits1980/heating-pid/internal/logger"
	"github.com/Frits1980/heating-pid/internal/safe_mqtt"
)

const (
	epsilon             = 1e-10
	sensorControlSuffix = "/sensors/"
)

type sensorState struct {
	id        string
	jsonEntry *string
	offset    float64
	scale     float64
	maxAge    time.Duration

	value     float64
	timestamp time.Time
}

// SensorHub keeps the latest value of every configured sensor. Values arrive
// over MQTT and are read by the control loop.
type SensorHub struct {
	clock   clock.Clock
	lock    sync.RWMutex
	sensors map[string]*sensorState
	byTopic map[string][]*sensorState
}

func NewSensorHub(clk clock.Clock) *SensorHub {
	return &SensorHub{
		clock:   clk,
		sensors: make(map[string]*sensorState),
		byTopic: make(map[string][]*sensorState),
	}
}

// Register adds a sensor. Several sensors may share a topic, e.g. with
// different JSON entries.
func (h *SensorHub) Register(id string, cfg *config.SensorConfig) {
	h.lock.Lock()
	defer h.lock.Unlock()
	s := &sensorState{
		id:        id,
		jsonEntry: cfg.JSONEntry,
		offset:    *cfg.Offset,
		scale:     *cfg.Scale,
		maxAge:    cfg.MaxAge,
	}
	h.sensors[id] = s
	h.byTopic[cfg.Topic] = append(h.byTopic[cfg.Topic], s)
}

// RegisterConfig registers every sensor the configuration names.
func (h *SensorHub) RegisterConfig(cfg *config.Config) {
	for id, s := range configuredSensors(cfg) {
		h.Register(id, s)
	}
}

func (h *SensorHub) Read(id string) (float64, bool) {
	h.lock.RLock()
	defer h.lock.RUnlock()
	s, ok := h.sensors[id]
	if !ok || s.timestamp.IsZero() {
		return 0, true
	}
	return s.value, h.clock.Since(s.timestamp) > s.maxAge
}

// Update stores a raw reading, scale and offset applied.
func (h *SensorHub) Update(id string, raw float64) {
	h.lock.Lock()
	defer h.lock.Unlock()
	if s, ok := h.sensors[id]; ok {
		h.store(s, raw)
	}
}

func (h *SensorHub) store(s *sensorState, raw float64) {
	s.value = raw*s.scale + s.offset
	s.timestamp = h.clock.Now()
	logger.L().Debugf("Got value for sensor %s : %f", s.id, s.value)
}

// Subscribe listens on every sensor topic and on the per-sensor offset and
// scale control topics.
func (h *SensorHub) Subscribe(client safe_mqtt.MqttClient, controlTopic string) {
	h.lock.RLock()
	topics := make([]string, 0, len(h.byTopic))
	for t := range h.byTopic {
		topics = append(topics, t)
	}
	ids := make([]string, 0, len(h.sensors))
	for id := range h.sensors {
		ids = append(ids, id)
	}
	h.lock.RUnlock()
	sort.Strings(topics)
	sort.Strings(ids)

	for _, t := range topics {
		client.SafeSubscribe(t, mqttQoS, h.valueUpdateHandler)
	}
	for _, id := range ids {
		group := controlTopic + sensorControlSuffix + id + "/"
		client.SafeSubscribe(group+"offset", mqttQoS, h.controlUpdateHandler)
		client.SafeSubscribe(group+"scale", mqttQoS, h.controlUpdateHandler)
	}
}

func (h *SensorHub) valueUpdateHandler(_ mqtt.Client, message mqtt.Message) {
	h.handleValue(message.Topic(), message.Payload())
}

func (h *SensorHub) handleValue(topic string, payload []byte) {
	h.lock.Lock()
	defer h.lock.Unlock()
	for _, s := range h.byTopic[topic] {
		t0, err := extractF64PlainOrJson(topic, payload, s.jsonEntry)
		if err != nil {
			logger.L().Error(err)
			continue
		}
		h.store(s, t0)
	}
}

func (h *SensorHub) controlUpdateHandler(_ mqtt.Client, message mqtt.Message) {
	h.handleControl(message.Topic(), message.Payload())
}

func (h *SensorHub) handleControl(topic string, payload []byte) {
	param := lastSegment(topic)
	rest := topic[:len(topic)-len(param)-1]
	id := lastSegment(rest)
	logger.L().Infof("Sensor %v got MQTT control request: %v : %v", id, param, string(payload))

	value, err := strconv.ParseFloat(string(payload), 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		logger.L().Errorf("Bad %s for sensor %s: `%v`", param, id, string(payload))
		return
	}

	h.lock.Lock()
	defer h.lock.Unlock()
	s, ok := h.sensors[id]
	if !ok {
		logger.L().Errorf("Unknown sensor: %s", id)
		return
	}
	switch param {
	case "offset":
		s.offset = value
	case "scale":
		s.scale = value
	default:
		logger.L().Errorf("Unknown control topic: %s", param)
		return
	}
	logger.L().Infof("Updated %s for sensor `%v` to %v", param, id, value)
}

func sensorID(prefix string, i int, cfg *config.SensorConfig) string {
	if cfg.Name == "" {
		return prefix + strconv.Itoa(i+1)
	}
	return prefix + cfg.Name
}

func zoneSensorPrefix(zone string) string {
	return "zone-" + zone + "-"
}

const (
	outsidePrefix = "outside-temperature-"
	flowPrefix    = "flow-"
	returnPrefix  = "return-"
	solarID       = "solar"
)

// configuredSensors maps sensor ids to their configuration.
func configuredSensors(cfg *config.Config) map[string]*config.SensorConfig {
	out := make(map[string]*config.SensorConfig)
	add := func(prefix string, sensors []*config.SensorConfig) {
		for i, s := range sensors {
			out[sensorID(prefix, i, s)] = s
		}
	}
	for name, z := range cfg.Zones {
		add(zoneSensorPrefix(name), z.Sensors)
	}
	add(outsidePrefix, cfg.Outside.TemperatureSensors)
	add(flowPrefix, cfg.HeatSource.FlowSensors)
	add(returnPrefix, cfg.HeatSource.ReturnSensors)
	if cfg.Solar != nil && cfg.Solar.Sensor != nil {
		out[solarID] = cfg.Solar.Sensor
	}
	return out
}

// sensorGroup combines several sensors into one value.
type sensorGroup struct {
	ids     []string
	weights []float64
	average string
}

func newSensorGroup(prefix string, sensors []*config.SensorConfig, average string) sensorGroup {
	g := sensorGroup{average: average}
	for i, s := range sensors {
		g.ids = append(g.ids, sensorID(prefix, i, s))
		w := 1.0
		if s.Weight != nil {
			w = *s.Weight
		}
		g.weights = append(g.weights, w)
	}
	return g
}

func (g sensorGroup) empty() bool {
	return len(g.ids) == 0
}

// read combines the fresh readings of the group. ok is false when none is fresh.
func (g sensorGroup) read(src SensorSource) (float64, bool) {
	switch g.average {
	case "min", "max":
		return sensorsExtreme(src, g.ids, g.average == "max")
	}
	return sensorsMean(src, g.ids, g.weights)
}

func sensorsMean(src SensorSource, ids []string, weights []float64) (float64, bool) {
	var v, wt float64
	for i, id := range ids {
		val, stale := src.Read(id)
		if stale {
			continue
		}
		v += val * weights[i]
		wt += weights[i]
	}

	if wt < epsilon {
		return 0, false
	}
	return v / wt, true
}

func sensorsExtreme(src SensorSource, ids []string, max bool) (float64, bool) {
	var out float64
	found := false
	for _, id := range ids {
		val, stale := src.Read(id)
		if stale {
			continue
		}
		if !found || max && val > out || !max && val < out {
			out = val
		}
		found = true
	}
	return out, found
}
