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
	"fmt"

	"github.com/Frits1980/heating-pid/internal/config"
	"github.com/Frits1980/heating-pid/internal/safe_mqtt"
	"github.com/Frits1980/heating-pid/internal/valve"
)

// switchValve is an on/off actuator such as a relay or a thermo-electric head.
type switchValve struct {
	cfg  *config.ValveConfig
	mqtt safe_mqtt.MqttClient
}

func (v *switchValve) Capability() valve.Capability {
	return valve.CapabilitySwitch
}

func (v *switchValve) Command(ctx context.Context, cmd valve.Command) error {
	payload := v.cfg.OffPayload
	if cmd.Open {
		payload = v.cfg.OnPayload
	}
	return v.mqtt.PublishWait(ctx, v.cfg.Topic, mqttQoS, true, payload)
}

// modulatingValve is a thermostatic head that takes a target temperature.
// It is closed by sending the off setpoint.
type modulatingValve struct {
	cfg  *config.ValveConfig
	mqtt safe_mqtt.MqttClient
}

func (v *modulatingValve) Capability() valve.Capability {
	return valve.CapabilityModulating
}

func (v *modulatingValve) Command(ctx context.Context, cmd valve.Command) error {
	sp := *v.cfg.OffSetpoint
	if cmd.Open {
		sp = cmd.Setpoint
	}
	return v.mqtt.PublishWait(ctx, v.cfg.Topic, mqttQoS, true, fmt.Sprintf("%.1f", sp))
}

// NewValveActuator picks the actuator for a configured valve type.
func NewValveActuator(cfg *config.ValveConfig, client safe_mqtt.MqttClient) valve.Actuator {
	if cfg.Type == config.ValveTypeModulating {
		return &modulatingValve{cfg: cfg, mqtt: client}
	}
	return &switchValve{cfg: cfg, mqtt: client}
}
