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
	"encoding/json"
	"time"

	"github.com/Frits1980/heating-pid/internal/heatsource"
	"github.com/Frits1980/heating-pid/internal/logger"
	"github.com/Frits1980/heating-pid/internal/metrics"
)

type zoneStatus struct {
	Zone         string   `json:"zone"`
	Temperature  *float64 `json:"temperature"`
	Setpoint     float64  `json:"setpoint"`
	Source       string   `json:"source"`
	Demand       float64  `json:"demand"`
	ValveOpen    bool     `json:"valve_open"`
	WindowOpen   bool     `json:"window_open"`
	Manual       *float64 `json:"manual_setpoint,omitempty"`
	WarmupFactor float64  `json:"warmup_factor"`
	Preheat      bool     `json:"preheat"`
	Synchronized bool     `json:"synchronized"`
}

type statusReport struct {
	Time        time.Time    `json:"time"`
	Enabled     bool         `json:"enabled"`
	Away        bool         `json:"away"`
	Outdoor     *float64     `json:"outdoor,omitempty"`
	MaxDemand   float64      `json:"max_demand"`
	FlowTemp    float64      `json:"flow_temp"`
	Pump        bool         `json:"pump"`
	Mode        string       `json:"mode"`
	Quiet       bool         `json:"quiet"`
	DeltaT      *float64     `json:"delta_t,omitempty"`
	Maintenance string       `json:"maintenance,omitempty"`
	Zones       []zoneStatus `json:"zones"`
}

func (c *ControlLoop) statusReport(maxDemand float64, cmd heatsource.Command) statusReport {
	st := c.strategy.State()
	r := statusReport{
		Time:        c.tc.now,
		Enabled:     c.enabled,
		Away:        c.tc.away,
		Outdoor:     c.tc.outdoor,
		MaxDemand:   maxDemand,
		FlowTemp:    cmd.FlowTemp,
		Pump:        cmd.Pump,
		Mode:        cmd.Mode.String(),
		Quiet:       c.tc.quiet.Active,
		DeltaT:      st.DeltaT,
		Maintenance: c.maintZone,
	}
	for _, z := range c.zones {
		r.Zones = append(r.Zones, zoneStatus{
			Zone:         z.name,
			Temperature:  z.temperature,
			Setpoint:     z.setpoint,
			Source:       z.source.String(),
			Demand:       z.demand,
			ValveOpen:    z.valve.Open(),
			WindowOpen:   z.windowOpen,
			Manual:       z.manual.Setpoint(),
			WarmupFactor: z.learner.Factor(),
			Preheat:      z.preheat,
			Synchronized: z.synced,
		})
	}
	return r
}

func marshalStatus(r statusReport) []byte {
	ret, err := json.Marshal(r)
	if err != nil {
		logger.L().Error(err)
	}
	return ret
}

// report exports the tick outcome as metrics and, when a publisher is set,
// as a status message.
func (c *ControlLoop) report(ctx context.Context, maxDemand float64, cmd heatsource.Command) {
	for _, z := range c.zones {
		metrics.ZoneSetpoint.WithLabelValues(z.name).Set(z.setpoint)
		metrics.ZoneDemand.WithLabelValues(z.name).Set(z.demand)
		metrics.ZoneWarmupFactor.WithLabelValues(z.name).Set(z.learner.Factor())
		metrics.ValveOpen.WithLabelValues(z.name).Set(metrics.Bool(z.valve.Open()))
		if z.temperature != nil {
			metrics.ZoneTemperature.WithLabelValues(z.name).Set(*z.temperature)
		}
	}
	st := c.strategy.State()
	metrics.HeatSourceFlowTarget.Set(cmd.FlowTemp)
	metrics.HeatSourceMaxDemand.Set(maxDemand)
	metrics.HeatSourceCooldown.Set(metrics.Bool(st.Mode == heatsource.ModeCooldown))
	metrics.HeatSourceQuiet.Set(metrics.Bool(c.tc.quiet.Active))
	if st.DeltaT != nil {
		metrics.HeatSourceDeltaT.Set(*st.DeltaT)
	}

	if c.status == nil {
		return
	}
	cctx, cancel := context.WithTimeout(ctx, c.cfg.Valves.CommandTimeout)
	defer cancel()
	if err := c.status.PublishWait(cctx, c.cfg.StatusTopic(), mqttQoS, false,
		marshalStatus(c.statusReport(maxDemand, cmd))); err != nil {
		logger.L().Warnf("Status publish failed: %v", err)
	}
}
