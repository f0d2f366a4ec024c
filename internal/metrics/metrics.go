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

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "heatingpid"

// Control state, zone metrics are partitioned by zone name.

var (
	// Loop
	LoopTicksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "loop",
		Name:      "ticks_total",
		Help:      "Total control ticks",
	})

	LoopTickLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "loop",
		Name:      "tick_duration_seconds",
		Help:      "Control tick processing duration",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
	})

	LoopEnabled = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "loop",
		Name:      "enabled",
		Help:      "1 when the controller drives the heat source",
	})

	PersistErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "loop",
		Name:      "persist_errors_total",
		Help:      "Failed state saves",
	})

	// Zones
	ZoneTemperature = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "zone",
		Name:      "temperature_celsius",
		Help:      "Measured zone temperature",
	}, []string{"zone"})

	ZoneSetpoint = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "zone",
		Name:      "setpoint_celsius",
		Help:      "Effective zone setpoint",
	}, []string{"zone"})

	ZoneDemand = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "zone",
		Name:      "demand_percent",
		Help:      "PID demand of the zone",
	}, []string{"zone"})

	ZoneWarmupFactor = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "zone",
		Name:      "warmup_factor_minutes_per_degree",
		Help:      "Learned warm-up speed",
	}, []string{"zone"})

	ZoneSensorFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "zone",
		Name:      "sensor_failures_total",
		Help:      "Ticks skipped because the zone temperature was stale or missing",
	}, []string{"zone"})

	// Valves
	ValveOpen = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "valve",
		Name:      "open",
		Help:      "1 when the zone valve is open",
	}, []string{"zone"})

	ValveCommandErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "valve",
		Name:      "command_errors_total",
		Help:      "Failed valve commands",
	}, []string{"zone"})

	ValveMaintenanceTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "valve",
		Name:      "maintenance_cycles_total",
		Help:      "Started valve maintenance cycles",
	})

	// Heat source
	HeatSourceFlowTarget = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "heatsource",
		Name:      "flow_target_celsius",
		Help:      "Commanded flow temperature, 0 when off",
	})

	HeatSourceMaxDemand = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "heatsource",
		Name:      "max_demand_percent",
		Help:      "Highest demand over zones with confirmed open valves",
	})

	HeatSourceDeltaT = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "heatsource",
		Name:      "delta_t_celsius",
		Help:      "Flow minus return temperature",
	})

	HeatSourceCooldown = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "heatsource",
		Name:      "cooldown",
		Help:      "1 while in cooldown mode",
	})

	HeatSourceQuiet = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "heatsource",
		Name:      "quiet",
		Help:      "1 while the quiet ramp limits the flow temperature",
	})

	HeatSourceCommandErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "heatsource",
		Name:      "command_errors_total",
		Help:      "Failed heat source commands",
	})
)

func Bool(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
