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

	"github.com/pkg/errors"

	"github.com/Frits1980/heating-pid/internal/config"
	"github.com/Frits1980/heating-pid/internal/heatsource"
	"github.com/Frits1980/heating-pid/internal/logger"
	"github.com/Frits1980/heating-pid/internal/safe_mqtt"
)

// BoilerController publishes heat source commands: flow temperature, CH
// enable and optionally the circulation pump.
type BoilerController struct {
	cfg  *config.HeatSourceConfig
	mqtt safe_mqtt.MqttClient
	last *heatsource.Command
}

func NewBoilerController(cfg *config.HeatSourceConfig, client safe_mqtt.MqttClient) *BoilerController {
	return &BoilerController{cfg: cfg, mqtt: client}
}

func (b *BoilerController) Command(ctx context.Context, cmd heatsource.Command) error {
	if err := b.mqtt.PublishWait(ctx, b.cfg.FlowTempTopic, mqttQoS, true, fmt.Sprintf("%.1f", cmd.FlowTemp)); err != nil {
		return errors.WithMessage(err, "flow temperature")
	}
	if b.cfg.CHEnableTopic != "" {
		if err := b.mqtt.PublishWait(ctx, b.cfg.CHEnableTopic, mqttQoS, true, onOff(cmd.On())); err != nil {
			return errors.WithMessage(err, "CH enable")
		}
	}
	if b.cfg.PumpTopic != "" {
		if err := b.mqtt.PublishWait(ctx, b.cfg.PumpTopic, mqttQoS, true, onOff(cmd.Pump)); err != nil {
			return errors.WithMessage(err, "pump")
		}
	}

	if b.last == nil || *b.last != cmd {
		logger.L().Infof("Heat source: flow=%.1f°C, pump=%v, mode=%v", cmd.FlowTemp, cmd.Pump, cmd.Mode)
	}
	b.last = &cmd
	return nil
}

func onOff(on bool) string {
	if on {
		return "1"
	}
	return "0"
}
