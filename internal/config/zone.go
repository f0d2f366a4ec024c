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

package config

import (
	"github.com/pkg/errors"

	"github.com/Frits1980/heating-pid/internal/pid"
	"github.com/Frits1980/heating-pid/internal/schedule"
)

const (
	ValveTypeSwitch     = "switch"
	ValveTypeModulating = "modulating"
)

// ValveConfig selects the actuator flavour of a zone valve.
type ValveConfig struct {
	Type       string `yaml:"type"`
	Topic      string `yaml:"topic"`
	OnPayload  string `yaml:"on_payload,omitempty"`
	OffPayload string `yaml:"off_payload,omitempty"`
	// OffSetpoint is sent to modulating valves to close them.
	OffSetpoint *float64 `yaml:"off_setpoint,omitempty"`
}

func (v *ValveConfig) FillDefaults() {
	if v.Type == "" {
		v.Type = ValveTypeSwitch
	}
	if v.OnPayload == "" {
		v.OnPayload = "ON"
	}
	if v.OffPayload == "" {
		v.OffPayload = "OFF"
	}
	if v.OffSetpoint == nil {
		v.OffSetpoint = GetPTR(5.0)
	}
}

type ZoneConfig struct {
	DefaultSetpoint    *float64                    `yaml:"default_setpoint"`
	AwayTemperature    *float64                    `yaml:"away_temperature"`
	WindowDrop         *float64                    `yaml:"window_drop"`
	SolarDrop          *float64                    `yaml:"solar_drop,omitempty"`
	Gains              *pid.Gains                  `yaml:"gains"`
	SensorsAverageType string                      `yaml:"sensors_average_type"`
	Sensors            []*SensorConfig             `yaml:"sensors"`
	Window             *StateConfig                `yaml:"window,omitempty"`
	ManualSetpoint     *SetpointConfig             `yaml:"manual_setpoint,omitempty"`
	Valve              *ValveConfig                `yaml:"valve"`
	Schedule           map[string][]schedule.Entry `yaml:"schedule,omitempty"`

	week *schedule.Week
}

func NewZoneConfig() *ZoneConfig {
	z := &ZoneConfig{}
	z.FillDefaults()
	return z
}

func (z *ZoneConfig) FillDefaults() {
	if z.DefaultSetpoint == nil {
		z.DefaultSetpoint = GetPTR(zoneDefaultSetpoint)
	}
	if z.AwayTemperature == nil {
		z.AwayTemperature = GetPTR(zoneDefaultAwayTemp)
	}
	if z.WindowDrop == nil {
		z.WindowDrop = GetPTR(zoneDefaultWindowDrop)
	}
	if z.Gains == nil {
		z.Gains = &pid.Gains{Kp: defaultKp, Ki: defaultKi, Kd: defaultKd, Ke: defaultKe}
	}
	if z.SensorsAverageType == "" {
		z.SensorsAverageType = DefaultAverageType
	}
	for _, s := range z.Sensors {
		s.FillDefaults()
	}
	if z.ManualSetpoint != nil {
		z.ManualSetpoint.FillDefaults()
	}
	if z.Valve == nil {
		z.Valve = &ValveConfig{}
	}
	z.Valve.FillDefaults()
}

// Week is the parsed schedule, nil when the zone has none. Valid after Validate.
func (z *ZoneConfig) Week() *schedule.Week {
	return z.week
}

func (z *ZoneConfig) validate(name string) error {
	if len(z.Sensors) == 0 {
		return errors.Errorf("zone %s: no temperature sensors", name)
	}
	for i, s := range z.Sensors {
		if s.Topic == "" {
			return errors.Errorf("zone %s: sensor %d without topic", name, i+1)
		}
	}
	if err := checkAverageType(z.SensorsAverageType); err != nil {
		return errors.WithMessagef(err, "zone %s", name)
	}
	if !z.Gains.Valid() {
		return errors.Errorf("zone %s: invalid PID gains %+v", name, *z.Gains)
	}
	switch z.Valve.Type {
	case ValveTypeSwitch, ValveTypeModulating:
	default:
		return errors.Errorf("zone %s: unknown valve type `%v`", name, z.Valve.Type)
	}
	if z.Valve.Topic == "" {
		return errors.Errorf("zone %s: valve topic is required", name)
	}
	if z.Window != nil && z.Window.Topic == "" {
		return errors.Errorf("zone %s: window without topic", name)
	}
	if len(z.Schedule) > 0 {
		w, err := schedule.ParseWeek(z.Schedule, *z.DefaultSetpoint)
		if err != nil {
			return errors.WithMessagef(err, "zone %s schedule", name)
		}
		z.week = w
	}
	return nil
}
