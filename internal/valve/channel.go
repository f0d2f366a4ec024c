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

package valve

import (
	"context"
	"math"
	"sync"
	"time"
)

type Capability int

const (
	// CapabilitySwitch is a binary on/off valve.
	CapabilitySwitch Capability = iota
	// CapabilityModulating takes a target temperature and regulates itself.
	CapabilityModulating
)

func (c Capability) String() string {
	if c == CapabilityModulating {
		return "modulating"
	}
	return "switch"
}

// Command is the desired actuator state. Setpoint is only meaningful for
// modulating actuators.
type Command struct {
	Open     bool
	Setpoint float64
}

// Actuator drives one zone valve. Implementations are picked at configuration
// time and must honour ctx cancellation.
type Actuator interface {
	Capability() Capability
	Command(ctx context.Context, cmd Command) error
}

// Channel is the valve state of one zone. Commands to a channel are serialized
// by its mutex.
type Channel struct {
	Zone     string
	actuator Actuator

	mu           sync.Mutex
	open         bool
	setpoint     float64
	openedAt     time.Time
	closedAt     time.Time
	lastActivity time.Time
	maintenance  bool
	failures     int
}

func (c *Channel) Capability() Capability {
	return c.actuator.Capability()
}

func (c *Channel) Open() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *Channel) OpenedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.openedAt
}

func (c *Channel) ClosedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closedAt
}

func (c *Channel) LastActivity() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActivity
}

// SetLastActivity seeds the activity timestamp, e.g. from persisted state.
func (c *Channel) SetLastActivity(t time.Time) {
	c.mu.Lock()
	c.lastActivity = t
	c.mu.Unlock()
}

func (c *Channel) InMaintenance() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.maintenance
}

// Failures is the number of failed commands since start.
func (c *Channel) Failures() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failures
}

func (c *Channel) send(ctx context.Context, timeout time.Duration, cmd Command) error {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	err := c.actuator.Command(cctx, cmd)
	if err != nil {
		c.failures++
	}
	return err
}

func (c *Channel) markOpen(now time.Time, setpoint float64) {
	c.open = true
	c.setpoint = setpoint
	c.openedAt = now
	c.lastActivity = now
}

func (c *Channel) markClosed(now time.Time) {
	c.open = false
	c.closedAt = now
	c.lastActivity = now
}

func setpointChanged(a, b float64) bool {
	return math.Abs(a-b) >= 0.05
}
