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
	"github.com/Frits1980/heating-pid/internal/config"
	"github.com/Frits1980/heating-pid/internal/logger"
)

// OutsideController derives outdoor temperature and the solar flag from the
// outside sensors.
type OutsideController struct {
	temperature    sensorGroup
	solar          sensorGroup
	solarThreshold float64

	solarHigh bool
	wasStale  bool
}

func NewOutsideController(cfg *config.OutsideConfig, solar *config.SolarConfig) *OutsideController {
	o := &OutsideController{
		temperature: newSensorGroup(outsidePrefix, cfg.TemperatureSensors, cfg.TemperatureAverageType),
	}
	if solar != nil && solar.Sensor != nil {
		o.solar = sensorGroup{ids: []string{solarID}, weights: []float64{1}, average: config.DefaultAverageType}
		o.solarThreshold = solar.Threshold
	}
	return o
}

// Read returns the outdoor temperature, nil when unknown, and whether solar
// gain is above the threshold. A stale solar sensor keeps the last decision.
func (o *OutsideController) Read(src SensorSource) (*float64, bool) {
	var outdoor *float64
	if !o.temperature.empty() {
		if v, ok := o.temperature.read(src); ok {
			outdoor = &v
			o.wasStale = false
		} else if !o.wasStale {
			logger.L().Warn("Outside temperature unavailable, outdoor compensation off")
			o.wasStale = true
		}
	}

	if !o.solar.empty() {
		if v, ok := o.solar.read(src); ok {
			high := v > o.solarThreshold
			if high != o.solarHigh {
				logger.L().Infof("Solar gain changed: %.0f, limiting=%v", v, high)
			}
			o.solarHigh = high
		}
	}
	return outdoor, o.solarHigh
}
