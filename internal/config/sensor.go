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
	"strings"
	"time"
)

func (s *SensorConfig) FillDefaults() {
	if s.Offset == nil {
		s.Offset = GetPTR(0.0)
	}
	if s.Scale == nil {
		s.Scale = GetPTR(1.0)
	}
	if s.Weight == nil {
		s.Weight = GetPTR(1.0)
	}
	if s.MaxAge == 0 {
		s.MaxAge = defaultSensorMaxAge
	}
}

// SensorConfig is one numeric MQTT reading: value*scale + offset.
type SensorConfig struct {
	Name      string        `yaml:"name,omitempty"`
	Topic     string        `yaml:"topic"`
	JSONEntry *string       `yaml:"json_entry,omitempty"`
	Offset    *float64      `yaml:"offset"`
	Scale     *float64      `yaml:"scale"`
	Weight    *float64      `yaml:"weight"`
	MaxAge    time.Duration `yaml:"max_age"`
}

func NewSensorConfig() *SensorConfig {
	cfg := &SensorConfig{}
	cfg.FillDefaults()
	return cfg
}

// SetpointConfig is a user setpoint coming in over MQTT.
type SetpointConfig struct {
	Topic     string   `yaml:"topic"`
	JSONEntry *string  `yaml:"json_entry,omitempty"`
	Offset    *float64 `yaml:"offset"`
	Scale     *float64 `yaml:"scale"`
	// ClearBelow drops the manual override for values below it, e.g. 0.
	ClearBelow *float64 `yaml:"clear_below,omitempty"`
}

func (c *SetpointConfig) FillDefaults() {
	if c.Offset == nil {
		c.Offset = GetPTR(0.0)
	}
	if c.Scale == nil {
		c.Scale = GetPTR(1.0)
	}
}

// StateConfig is a binary MQTT state such as a window contact or presence.
// When OnValue is empty, usual truthy payloads ("on", "true", "1", "open", "home") count as on.
type StateConfig struct {
	Topic     string  `yaml:"topic"`
	JSONEntry *string `yaml:"json_entry,omitempty"`
	OnValue   string  `yaml:"on_value,omitempty"`
}

// IsOn interprets a raw payload value.
func (c *StateConfig) IsOn(v string) bool {
	v = strings.TrimSpace(v)
	if c.OnValue != "" {
		return strings.EqualFold(v, c.OnValue)
	}
	switch strings.ToLower(v) {
	case "on", "true", "1", "open", "home", "yes":
		return true
	}
	return false
}
