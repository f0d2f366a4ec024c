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

package debounce

import (
	"sort"
	"time"
)

// Pending is a change that has been seen but not yet confirmed.
type Pending[K comparable, V comparable] struct {
	Key        K
	Value      V
	DetectedAt time.Time
	Delay      time.Duration
}

func (p Pending[K, V]) Deadline() time.Time {
	return p.DetectedAt.Add(p.Delay)
}

// Change is a confirmed transition. Initial is set when the key had no
// confirmed value before.
type Change[K comparable, V comparable] struct {
	Key     K
	From    V
	To      V
	Initial bool
	At      time.Time
}

// DelayFunc picks the confirmation delay for a transition.
type DelayFunc[K comparable, V comparable] func(key K, from, to V) time.Duration

// Constant returns a DelayFunc that always waits d.
func Constant[K comparable, V comparable](d time.Duration) DelayFunc[K, V] {
	return func(K, V, V) time.Duration { return d }
}

// Debouncer confirms a value only once it has been stable for its delay.
// It owns no timers: the caller asks for NextDeadline and collects Due
// changes, which keeps it deterministic under a manual clock.
// It is not safe for concurrent use.
type Debouncer[K comparable, V comparable] struct {
	delay     DelayFunc[K, V]
	confirmed map[K]V
	pending   map[K]Pending[K, V]
}

func New[K comparable, V comparable](delay DelayFunc[K, V]) *Debouncer[K, V] {
	return &Debouncer[K, V]{
		delay:     delay,
		confirmed: make(map[K]V),
		pending:   make(map[K]Pending[K, V]),
	}
}

// Seed sets the confirmed value without producing a change.
func (d *Debouncer[K, V]) Seed(key K, v V) {
	d.confirmed[key] = v
	delete(d.pending, key)
}

// Observe records a raw value. A value equal to the confirmed one cancels any
// pending change. Any other value (re)starts the pending timer. The first
// value of an unseeded key, and changes with a zero delay, are confirmed at
// once and returned.
func (d *Debouncer[K, V]) Observe(now time.Time, key K, v V) (Change[K, V], bool) {
	cur, known := d.confirmed[key]
	if !known {
		d.confirmed[key] = v
		delete(d.pending, key)
		return Change[K, V]{Key: key, To: v, Initial: true, At: now}, true
	}
	if v == cur {
		delete(d.pending, key)
		return Change[K, V]{}, false
	}

	delay := d.delay(key, cur, v)
	if delay <= 0 {
		d.confirmed[key] = v
		delete(d.pending, key)
		return Change[K, V]{Key: key, From: cur, To: v, At: now}, true
	}
	d.pending[key] = Pending[K, V]{Key: key, Value: v, DetectedAt: now, Delay: delay}
	return Change[K, V]{}, false
}

// Due confirms all pending changes whose delay has elapsed, earliest first.
func (d *Debouncer[K, V]) Due(now time.Time) []Change[K, V] {
	var due []Pending[K, V]
	for _, p := range d.pending {
		if !now.Before(p.Deadline()) {
			due = append(due, p)
		}
	}
	sort.SliceStable(due, func(i, j int) bool { return due[i].Deadline().Before(due[j].Deadline()) })

	out := make([]Change[K, V], 0, len(due))
	for _, p := range due {
		delete(d.pending, p.Key)
		from := d.confirmed[p.Key]
		d.confirmed[p.Key] = p.Value
		out = append(out, Change[K, V]{Key: p.Key, From: from, To: p.Value, At: p.Deadline()})
	}
	return out
}

// NextDeadline is the earliest pending deadline.
func (d *Debouncer[K, V]) NextDeadline() (time.Time, bool) {
	var next time.Time
	for _, p := range d.pending {
		if dl := p.Deadline(); next.IsZero() || dl.Before(next) {
			next = dl
		}
	}
	return next, !next.IsZero()
}

func (d *Debouncer[K, V]) Confirmed(key K) (V, bool) {
	v, ok := d.confirmed[key]
	return v, ok
}

func (d *Debouncer[K, V]) PendingFor(key K) (Pending[K, V], bool) {
	p, ok := d.pending[key]
	return p, ok
}

// Cancel drops every pending change.
func (d *Debouncer[K, V]) Cancel() {
	for k := range d.pending {
		delete(d.pending, k)
	}
}
