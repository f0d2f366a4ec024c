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

package zone

import (
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/Frits1980/heating-pid/internal/schedule"
)

// LearnerConfig bounds the warm-up factor (minutes per °C) and sets the
// thresholds for tracking a warm-up cycle.
type LearnerConfig struct {
	Initial float64 `yaml:"initial_factor"`
	Min     float64 `yaml:"min_factor"`
	Max     float64 `yaml:"max_factor"`

	StartError   float64 `yaml:"start_error"`
	StartDemand  float64 `yaml:"start_demand"`
	CancelDemand float64 `yaml:"cancel_demand"`
	Tolerance    float64 `yaml:"tolerance"`
	MinRise      float64 `yaml:"min_rise"`
}

func (c *LearnerConfig) FillDefaults() {
	if c.Initial == 0 {
		c.Initial = 30
	}
	if c.Min == 0 {
		c.Min = 5
	}
	if c.Max == 0 {
		c.Max = 120
	}
	if c.StartError == 0 {
		c.StartError = 0.5
	}
	if c.StartDemand == 0 {
		c.StartDemand = 10
	}
	if c.CancelDemand == 0 {
		c.CancelDemand = 5
	}
	if c.Tolerance == 0 {
		c.Tolerance = 0.2
	}
	if c.MinRise == 0 {
		c.MinRise = 0.5
	}
}

const (
	emaKeep   = 0.8
	maxChange = 0.1
)

// Learner estimates how fast a zone warms up and decides when pre-heating
// has to start for the next schedule block.
type Learner struct {
	cfg    LearnerConfig
	factor float64
	log    *zap.SugaredLogger

	tracking  bool
	startedAt time.Time
	startTemp float64
	target    float64
}

func NewLearner(cfg LearnerConfig, log *zap.SugaredLogger) *Learner {
	return &Learner{cfg: cfg, factor: cfg.Initial, log: log}
}

func (l *Learner) Factor() float64 {
	return l.factor
}

// Restore loads a persisted factor. Out of range values are clamped,
// non-finite ones fall back to the initial guess.
func (l *Learner) Restore(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
		f = l.cfg.Initial
	}
	l.factor = math.Max(l.cfg.Min, math.Min(l.cfg.Max, f))
	return l.factor
}

// PreheatStart is the moment heating must begin to reach target by blockStart.
func (l *Learner) PreheatStart(blockStart time.Time, target, current float64) time.Time {
	minutes := (target - current) * l.factor
	return blockStart.Add(-time.Duration(minutes * float64(time.Minute)))
}

// ShouldPreheat reports whether the zone is inside the pre-heat window of next.
func (l *Learner) ShouldPreheat(now time.Time, next schedule.Block, current float64) bool {
	if next.IsZero() || !now.Before(next.From) || next.Temperature <= current {
		return false
	}
	return !now.Before(l.PreheatStart(next.From, next.Temperature, current))
}

func (l *Learner) Tracking() bool {
	return l.tracking
}

// Observe feeds one tick of the zone trajectory. It returns true when a
// completed warm-up changed the factor.
func (l *Learner) Observe(now time.Time, current, target, demand float64, windowOpen bool) bool {
	if !l.tracking {
		if !windowOpen && target-current > l.cfg.StartError && demand > l.cfg.StartDemand {
			l.tracking = true
			l.startedAt = now
			l.startTemp = current
			l.target = target
			l.log.Debugf("Warm-up tracking started at %.1f°C, target %.1f°C", current, target)
		}
		return false
	}

	if windowOpen || demand < l.cfg.CancelDemand && l.target-current > l.cfg.Tolerance {
		l.tracking = false
		l.log.Debugf("Warm-up tracking cancelled (window=%v, demand=%.1f%%)", windowOpen, demand)
		return false
	}
	if l.target-current > l.cfg.Tolerance {
		return false
	}

	l.tracking = false
	rise := current - l.startTemp
	if rise <= l.cfg.MinRise {
		return false
	}
	elapsed := now.Sub(l.startedAt).Minutes()
	old := l.factor
	l.ApplySample(elapsed / rise)
	l.log.Infof("Warm-up complete in %.0f min for %.1f°C rise, factor: %.1f -> %.1f min/°C",
		elapsed, rise, old, l.factor)
	return true
}

// ApplySample folds one measured factor into the estimate. A single sample
// moves the factor by at most 10%.
func (l *Learner) ApplySample(measured float64) float64 {
	if math.IsNaN(measured) || math.IsInf(measured, 0) || measured < 0 {
		return l.factor
	}
	old := l.factor
	next := emaKeep*old + (1-emaKeep)*measured
	next = math.Max(old*(1-maxChange), math.Min(old*(1+maxChange), next))
	l.factor = math.Max(l.cfg.Min, math.Min(l.cfg.Max, next))
	return l.factor
}
