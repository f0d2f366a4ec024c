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

package pid

import (
	"math"

	"github.com/Frits1980/heating-pid/internal/logger"
)

const (
	MinOutput = 0.0
	MaxOutput = 100.0

	// MaxIntegral bounds a restored integral term, in output percent.
	MaxIntegral = 150.0
)

// Gains of the control law. Ke scales outdoor compensation.
type Gains struct {
	Kp float64 `yaml:"kp"`
	Ki float64 `yaml:"ki"`
	Kd float64 `yaml:"kd"`
	Ke float64 `yaml:"ke"`
}

// Valid reports whether all gains are finite and non-negative.
func (g Gains) Valid() bool {
	for _, v := range []float64{g.Kp, g.Ki, g.Kd, g.Ke} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return false
		}
	}
	return true
}

// Terms is the breakdown of the last update, for logs and status reports.
type Terms struct {
	Error        float64
	P            float64
	I            float64
	D            float64
	Compensation float64
	Output       float64
}

// Controller turns setpoint and measured temperature into a 0..100 demand.
//
// The integral is kept in output units (Ki is applied when accumulating) and
// the derivative acts on the measurement, so setpoint jumps do not kick.
type Controller struct {
	gains         Gains
	referenceTemp float64

	integral     float64
	prevMeasured float64
	hasPrev      bool
	lastError    float64
	terms        Terms
}

func New(gains Gains, referenceTemp float64) *Controller {
	return &Controller{gains: gains, referenceTemp: referenceTemp, terms: Terms{Compensation: 1}}
}

// Update runs one step of the control law. dt is in seconds; dt <= 0 gives a
// proportional-only answer and leaves the integral alone. Non-finite inputs
// leave the controller untouched and return the previous output.
func (c *Controller) Update(setpoint, measured float64, outdoor *float64, dt float64) float64 {
	if !finite(setpoint) || !finite(measured) || !finite(dt) {
		logger.L().Warnf("PID: ignoring non-finite input SP=%v PV=%v dt=%v", setpoint, measured, dt)
		return c.terms.Output
	}

	e := setpoint - measured
	if e*c.lastError < 0 {
		c.integral = 0
	}

	p := c.gains.Kp * e

	d := 0.0
	if c.hasPrev && dt > 0 {
		d = -c.gains.Kd * (measured - c.prevMeasured) / dt
	}

	if dt > 0 {
		increment := c.gains.Ki * e * dt
		prospective := p + c.integral + increment + d
		switch {
		case prospective > MaxOutput && increment > 0:
		case prospective < MinOutput && increment < 0:
		default:
			c.integral += increment
		}
	}

	sum := p + c.integral + d
	comp := 1.0
	if outdoor != nil && finite(*outdoor) {
		comp += c.gains.Ke * math.Max(0, c.referenceTemp-*outdoor)
	}
	out := clamp(sum * comp)

	c.prevMeasured, c.hasPrev = measured, true
	if e != 0 {
		c.lastError = e
	}
	c.terms = Terms{Error: e, P: p, I: c.integral, D: d, Compensation: comp, Output: out}

	logger.L().Debugf(
		"PID update: SP=%.2f, PV=%.2f, e=%.2f, P=%.2f, I=%.2f, D=%.2f, comp=%.3f, out=%.1f%%",
		setpoint, measured, e, p, c.integral, d, comp, out,
	)
	return out
}

func (c *Controller) Terms() Terms {
	return c.terms
}

func (c *Controller) Output() float64 {
	return c.terms.Output
}

func (c *Controller) Gains() Gains {
	return c.gains
}

func (c *Controller) SetGains(g Gains) {
	c.gains = g
	logger.L().Debugf("PID gains updated: Kp=%.2f, Ki=%.3f, Kd=%.2f, Ke=%.4f", g.Kp, g.Ki, g.Kd, g.Ke)
}

func (c *Controller) Integral() float64 {
	return c.integral
}

// RestoreIntegral loads a persisted integral, clamped to ±MaxIntegral.
// It returns the value actually applied.
func (c *Controller) RestoreIntegral(v float64) float64 {
	switch {
	case !finite(v):
		v = 0
	case v > MaxIntegral:
		v = MaxIntegral
	case v < -MaxIntegral:
		v = -MaxIntegral
	}
	c.integral = v
	return v
}

// Reset clears integral and derivative history.
func (c *Controller) Reset() {
	c.integral = 0
	c.hasPrev = false
	c.lastError = 0
	c.terms = Terms{Compensation: 1}
}

func clamp(v float64) float64 {
	return math.Max(MinOutput, math.Min(MaxOutput, v))
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
