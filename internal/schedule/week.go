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

package schedule

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const lookAheadDays = 8

var weekdays = [7]string{"sunday", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday"}

// Block is a half-open heating interval [From, To) with its target temperature.
type Block struct {
	From        time.Time
	To          time.Time
	Temperature float64
}

func (b Block) Contains(t time.Time) bool {
	return !t.Before(b.From) && t.Before(b.To)
}

func (b Block) IsZero() bool {
	return b.From.IsZero()
}

// Entry is one configured block of a weekday, times as "HH:MM" or "HH:MM:SS".
type Entry struct {
	From        string   `yaml:"from"`
	To          string   `yaml:"to"`
	Temperature *float64 `yaml:"temperature,omitempty"`
}

type span struct {
	from, to time.Duration // offsets from midnight; to > from, may exceed 24h for overnight blocks
	temp     float64
}

// Week is a parsed weekly schedule. Per day, spans are sorted and non-overlapping.
type Week struct {
	days [7][]span
}

// ParseWeek validates and converts configured entries. Keys are weekday names.
// Entries without a temperature use defaultTemp. A block whose end is not after
// its start runs past midnight.
func ParseWeek(days map[string][]Entry, defaultTemp float64) (*Week, error) {
	w := &Week{}
	for name, entries := range days {
		idx := weekdayIndex(name)
		if idx < 0 {
			return nil, fmt.Errorf("unknown weekday `%v`", name)
		}
		for i, e := range entries {
			from, err := parseClock(e.From)
			if err != nil {
				return nil, errors.Wrapf(err, "%s block %d", name, i+1)
			}
			to, err := parseClock(e.To)
			if err != nil {
				return nil, errors.Wrapf(err, "%s block %d", name, i+1)
			}
			if to <= from {
				to += 24 * time.Hour
			}
			temp := defaultTemp
			if e.Temperature != nil {
				temp = *e.Temperature
			}
			w.days[idx] = append(w.days[idx], span{from: from, to: to, temp: temp})
		}
		sort.Slice(w.days[idx], func(a, b int) bool { return w.days[idx][a].from < w.days[idx][b].from })
	}
	return w, w.validate()
}

func (w *Week) validate() error {
	for d := 0; d < 7; d++ {
		spans := w.days[d]
		for i := 1; i < len(spans); i++ {
			if spans[i].from < spans[i-1].to {
				return fmt.Errorf("%s: block starting %v overlaps previous block", weekdays[d], spans[i].from)
			}
		}
		if n := len(spans); n > 0 && spans[n-1].to > 24*time.Hour {
			next := w.days[(d+1)%7]
			if len(next) > 0 && next[0].from < spans[n-1].to-24*time.Hour {
				return fmt.Errorf("%s: overnight block overlaps %s", weekdays[d], weekdays[(d+1)%7])
			}
		}
	}
	return nil
}

// Blocks returns the concrete blocks starting on the calendar day of at.
func (w *Week) Blocks(at time.Time) []Block {
	y, m, d := at.Date()
	spans := w.days[int(at.Weekday())]
	out := make([]Block, 0, len(spans))
	for _, s := range spans {
		out = append(out, Block{
			From:        atOffset(y, m, d, s.from, at.Location()),
			To:          atOffset(y, m, d, s.to, at.Location()),
			Temperature: s.temp,
		})
	}
	return out
}

// Active returns the block containing at, including an overnight block from the day before.
func (w *Week) Active(at time.Time) (Block, bool) {
	for _, b := range w.Blocks(at.AddDate(0, 0, -1)) {
		if b.Contains(at) {
			return b, true
		}
	}
	for _, b := range w.Blocks(at) {
		if b.Contains(at) {
			return b, true
		}
	}
	return Block{}, false
}

// Next returns the first block starting strictly after at.
func (w *Week) Next(at time.Time) (Block, bool) {
	for i := 0; i < lookAheadDays; i++ {
		for _, b := range w.Blocks(at.AddDate(0, 0, i)) {
			if b.From.After(at) {
				return b, true
			}
		}
	}
	return Block{}, false
}

func atOffset(y int, m time.Month, d int, off time.Duration, loc *time.Location) time.Time {
	days := int(off / (24 * time.Hour))
	off -= time.Duration(days) * 24 * time.Hour
	h := int(off / time.Hour)
	mi := int((off % time.Hour) / time.Minute)
	sec := int((off % time.Minute) / time.Second)
	return time.Date(y, m, d+days, h, mi, sec, 0, loc)
}

func weekdayIndex(name string) int {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range weekdays {
		if n == name || n[:3] == name {
			return i
		}
	}
	return -1
}

func parseClock(s string) (time.Duration, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid time `%v`", s)
	}
	var vals [3]int
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil {
			return 0, errors.Wrapf(err, "invalid time `%v`", s)
		}
		vals[i] = v
	}
	if vals[0] == 24 && vals[1] == 0 && vals[2] == 0 {
		return 24 * time.Hour, nil
	}
	if vals[0] < 0 || vals[0] > 23 || vals[1] < 0 || vals[1] > 59 || vals[2] < 0 || vals[2] > 59 {
		return 0, fmt.Errorf("invalid time `%v`", s)
	}
	return time.Duration(vals[0])*time.Hour + time.Duration(vals[1])*time.Minute + time.Duration(vals[2])*time.Second, nil
}
