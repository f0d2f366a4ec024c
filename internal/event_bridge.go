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

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/Frits1980/heating-pid/internal/config"
	"github.com/Frits1980/heating-pid/internal/logger"
	"github.com/Frits1980/heating-pid/internal/safe_mqtt"
)

const eventQueueSize = 100

type eventKind int

const (
	eventWindow eventKind = iota
	eventManual
	eventPresence
	eventEnable
	eventLogLevel
	eventGain
)

func (k eventKind) String() string {
	return [...]string{"window", "manual", "presence", "enable", "log_level", "gain"}[k]
}

// event is a raw, not yet debounced input. on carries window/presence state,
// and for manual events whether a setpoint was set (false clears it).
// retained marks a message the broker replayed from its store.
type event struct {
	kind     eventKind
	zone     string
	param    string
	value    float64
	on       bool
	text     string
	retained bool
}

// EventBridge turns MQTT messages into raw events for the control loop.
// Handlers only parse and enqueue.
type EventBridge struct {
	cfg    *config.Config
	events chan<- event
}

func NewEventBridge(cfg *config.Config, loop *ControlLoop) *EventBridge {
	return &EventBridge{cfg: cfg, events: loop.events}
}

func (b *EventBridge) Subscribe(client safe_mqtt.MqttClient) {
	control := b.cfg.MQTTConfig.ControlTopic
	client.SafeSubscribe(control+"/enable", mqttQoS, b.controlUpdateHandler)
	client.SafeSubscribe(control+"/log_level", mqttQoS, b.controlUpdateHandler)

	if p := b.cfg.Presence; p != nil {
		client.SafeSubscribe(p.Topic, mqttQoS, func(_ mqtt.Client, m mqtt.Message) {
			b.handleState(eventPresence, "", &p.StateConfig, m.Topic(), m.Payload())
		})
	}

	windows := make(map[string][]string)
	for _, name := range b.cfg.ZoneNames() {
		z := b.cfg.Zones[name]
		name := name
		if z.Window != nil {
			windows[z.Window.Topic] = append(windows[z.Window.Topic], name)
		}
		if z.ManualSetpoint != nil {
			sp := z.ManualSetpoint
			client.SafeSubscribe(sp.Topic, mqttQoS, func(_ mqtt.Client, m mqtt.Message) {
				b.handleManual(name, sp, m.Topic(), m.Payload(), m.Retained())
			})
		}
		group := control + "/zone/" + name + "/"
		for _, g := range []string{"kp", "ki", "kd", "ke"} {
			client.SafeSubscribe(group+g, mqttQoS, func(_ mqtt.Client, m mqtt.Message) {
				b.handleGain(name, m.Topic(), m.Payload())
			})
		}
	}

	topics := make([]string, 0, len(windows))
	for t := range windows {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	for _, t := range topics {
		zones := windows[t]
		client.SafeSubscribe(t, mqttQoS, func(_ mqtt.Client, m mqtt.Message) {
			for _, name := range zones {
				b.handleState(eventWindow, name, b.cfg.Zones[name].Window, m.Topic(), m.Payload())
			}
		})
	}
}

func (b *EventBridge) push(ev event) {
	select {
	case b.events <- ev:
	default:
		logger.L().Warnf("Event queue full, dropping %v event of zone `%v`", ev.kind, ev.zone)
	}
}

func (b *EventBridge) handleState(kind eventKind, zone string, cfg *config.StateConfig, topic string, payload []byte) {
	v, err := extractStringPlainOrJson(topic, payload, cfg.JSONEntry)
	if err != nil {
		logger.L().Error(err)
		return
	}
	b.push(event{kind: kind, zone: zone, on: cfg.IsOn(v)})
}

func (b *EventBridge) handleManual(zone string, cfg *config.SetpointConfig, topic string, payload []byte, retained bool) {
	t0, err := extractF64PlainOrJson(topic, payload, cfg.JSONEntry)
	if err != nil {
		logger.L().Error(err)
		return
	}
	if cfg.ClearBelow != nil && t0 < *cfg.ClearBelow {
		b.push(event{kind: eventManual, zone: zone, retained: retained})
		return
	}
	b.push(event{kind: eventManual, zone: zone, on: true, value: t0*(*cfg.Scale) + (*cfg.Offset), retained: retained})
}

func (b *EventBridge) handleGain(zone, topic string, payload []byte) {
	param := lastSegment(topic)
	logger.L().Infof("Zone %v got MQTT control request: %v : %v", zone, param, string(payload))
	v, err := strconv.ParseFloat(string(payload), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		logger.L().Errorf("Bad %s for zone %s: `%v`", param, zone, string(payload))
		return
	}
	b.push(event{kind: eventGain, zone: zone, param: param, value: v})
}

func (b *EventBridge) controlUpdateHandler(_ mqtt.Client, message mqtt.Message) {
	b.handleControl(message.Topic(), message.Payload())
}

func (b *EventBridge) handleControl(topic string, payload []byte) {
	param := lastSegment(topic)
	logger.L().Infof("main: Got MQTT control request: %v : %v", param, string(payload))
	switch param {
	case "enable":
		on, ok := parseSwitch(string(payload))
		if !ok {
			logger.L().Warnf("Invalid value for enable: %v", string(payload))
			return
		}
		b.push(event{kind: eventEnable, on: on})
	case "log_level":
		b.push(event{kind: eventLogLevel, text: string(payload)})
	}
}
