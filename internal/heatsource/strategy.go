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

package heatsource

import (
	"math"
	"time"

	"github.com/Frits1980/heating-pid/internal/logger"
)

// Config of the heat source. Outputs are flow temperatures in °C, 0 is off.
type Config struct {
	MinOutput   float64 `yaml:"min_output"`
	MaxOutput   float64 `yaml:"max_output"`
	HardwareMax float64 `yaml:"hardware_max"`

	// MinIgnitionLevel is the zone demand (%) below which the burner stays off.
	MinIgnitionLevel float64 `yaml:"min_ignition_level"`
	// IgnitionHysteresis lowers the off threshold of a running burner.
	IgnitionHysteresis *float64 `yaml:"ignition_hysteresis"`

	MinEfficientDeltaT float64 `yaml:"min_efficient_delta_t"`
	CooldownMargin     float64 `yaml:"cooldown_margin"`

	QuietCeiling float64       `yaml:"quiet_ceiling"`
	QuietRamp    time.Duration `yaml:"quiet_ramp"`

	MinRuntime time.Duration `yaml:"min_runtime"`
	MinOffTime time.Duration `yaml:"min_off_time"`
}

func (c *Config) FillDefaults() {
	if c.MinOutput == 0 {
		c.MinOutput = 25
	}
	if c.MaxOutput == 0 {
		c.MaxOutput = 55
	}
	if c.HardwareMax == 0 {
		c.HardwareMax = c.MaxOutput
	}
	if c.MinIgnitionLevel == 0 {
		c.MinIgnitionLevel = 20
	}
	if c.IgnitionHysteresis == nil {
		h := 5.0
		c.IgnitionHysteresis = &h
	}
	if c.MinEfficientDeltaT == 0 {
		c.MinEfficientDeltaT = 5
	}
	if c.CooldownMargin == 0 {
		c.CooldownMargin = 2
	}
	if c.QuietRamp == 0 {
		c.QuietRamp = 60 * time.Minute
	}
	if c.MinRuntime == 0 {
		c.MinRuntime = 5 * time.Minute
	}
	// MinOffTime of 0 is meaningful, it disables the guard
}

type Mode int

const (
	ModeNormal Mode = iota
	ModeCooldown
)

func (m Mode) String() string {
	if m == ModeCooldown {
		return "cooldown"
	}
	return "normal"
}

// Inputs for one evaluation.
type Inputs struct {
	Now time.Time

	// MaxDemand over zones whose valves are confirmed open.
	MaxDemand float64
	Flow      *float64
	Return    *float64
	Quiet     Quiet

	// SafetyOverride turns the burner off regardless of runtime guards.
	SafetyOverride bool
}

// Command is what the heat source should do after this tick.
type Command struct {
	FlowTemp   float64
	Pump       bool
	HoldValves bool
	Mode       Mode
}

func (c Command) On() bool {
	return c.FlowTemp > 0
}

type State struct {
	Flow   *float64
	Return *float64
	DeltaT *float64

	Mode          Mode
	CooldownSince time.Time
	Quiet         Quiet
	EffectiveMax  float64
	Target        float64

	Active    bool
	StartedAt time.Time
	StoppedAt time.Time
}

// Strategy turns aggregated zone demand into a flow temperature.
// It is not safe for concurrent use.
type Strategy struct {
	cfg   Config
	state State
}

func New(cfg Config) *Strategy {
	return &Strategy{cfg: cfg, state: State{EffectiveMax: cfg.MaxOutput}}
}

func (s *Strategy) Config() Config {
	return s.cfg
}

func (s *Strategy) State() State {
	return s.state
}

func (s *Strategy) Evaluate(in Inputs) Command {
	st := &s.state
	st.Flow, st.Return, st.DeltaT = in.Flow, in.Return, nil
	st.Quiet = in.Quiet
	if in.Flow != nil && in.Return != nil {
		dt := *in.Flow - *in.Return
		st.DeltaT = &dt
	}

	if in.SafetyOverride {
		if st.Mode == ModeCooldown {
			logger.L().Infof("Heat source: cooldown aborted by safety override")
		}
		st.Mode = ModeNormal
		s.apply(in.Now, 0)
		return Command{Mode: st.Mode}
	}

	s.updateMode(in)

	st.EffectiveMax = s.effectiveMax(in.Now, in.Quiet)
	ignition := s.cfg.MinIgnitionLevel
	if st.Active && s.cfg.IgnitionHysteresis != nil {
		ignition -= *s.cfg.IgnitionHysteresis
	}
	target := 0.0
	switch {
	case st.Mode == ModeCooldown:
		if in.MaxDemand > 0 {
			target = s.cfg.MinOutput
		}
	case in.MaxDemand < ignition:
	default:
		d := math.Max(0, math.Min(100, in.MaxDemand))
		target = s.cfg.MinOutput + d/100*(st.EffectiveMax-s.cfg.MinOutput)
	}
	target = math.Min(target, s.cfg.HardwareMax)

	if target > 0 && !st.Active && !st.StoppedAt.IsZero() && in.Now.Sub(st.StoppedAt) < s.cfg.MinOffTime {
		logger.L().Debugf("Heat source: restart postponed, off for %v of %v",
			in.Now.Sub(st.StoppedAt).Round(time.Second), s.cfg.MinOffTime)
		target = 0
	}
	if target == 0 && st.Active && in.Now.Sub(st.StartedAt) < s.cfg.MinRuntime {
		logger.L().Debugf("Heat source: held at minimum, running for %v of %v",
			in.Now.Sub(st.StartedAt).Round(time.Second), s.cfg.MinRuntime)
		target = s.cfg.MinOutput
	}

	s.apply(in.Now, target)
	logger.L().Debugf("Heat source: demand=%.1f%%, target=%.1f°C, mode=%v, quiet=%v",
		in.MaxDemand, target, st.Mode, in.Quiet.Active)

	return Command{
		FlowTemp:   target,
		Pump:       target > 0 || st.Mode == ModeCooldown,
		HoldValves: st.Mode == ModeCooldown,
		Mode:       st.Mode,
	}
}

func (s *Strategy) updateMode(in Inputs) {
	st := &s.state
	switch st.Mode {
	case ModeNormal:
		if st.DeltaT == nil || !st.Active || in.MaxDemand <= 0 {
			return
		}
		if *in.Flow >= s.cfg.MinOutput && *st.DeltaT < s.cfg.MinEfficientDeltaT {
			st.Mode = ModeCooldown
			st.CooldownSince = in.Now
			logger.L().Infof("Entering cooldown mode: delta-T=%.1f°C < %.1f°C threshold",
				*st.DeltaT, s.cfg.MinEfficientDeltaT)
		}
	case ModeCooldown:
		exit := s.cfg.MinEfficientDeltaT + s.cfg.CooldownMargin
		switch {
		case st.DeltaT != nil && *st.DeltaT >= exit:
			logger.L().Infof("Exiting cooldown mode: delta-T=%.1f°C >= %.1f°C threshold", *st.DeltaT, exit)
		case in.MaxDemand <= 0 && !st.Active:
			logger.L().Infof("Exiting cooldown mode: no demand left")
		default:
			return
		}
		st.Mode = ModeNormal
		st.CooldownSince = time.Time{}
	}
}

func (s *Strategy) effectiveMax(now time.Time, q Quiet) float64 {
	if !q.Active || s.cfg.QuietCeiling <= 0 || s.cfg.QuietRamp <= 0 {
		return s.cfg.MaxOutput
	}
	progress := math.Max(0, math.Min(1, float64(now.Sub(q.Anchor))/float64(s.cfg.QuietRamp)))
	floor := math.Max(s.cfg.QuietCeiling, s.cfg.MinOutput)
	return floor + progress*(s.cfg.MaxOutput-floor)
}

func (s *Strategy) apply(now time.Time, target float64) {
	st := &s.state
	st.Target = target
	on := target > 0
	switch {
	case on && !st.Active:
		st.StartedAt = now
		st.StoppedAt = time.Time{}
		logger.L().Infof("Heat source: burner on at %.1f°C", target)
	case !on && st.Active:
		st.StoppedAt = now
		st.StartedAt = time.Time{}
		logger.L().Infof("Heat source: burner off")
	}
	st.Active = on
}
