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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func temp(v float64) *float64 { return &v }

// 2024-01-01 is a Monday.
func monday(h, m int) time.Time {
	return time.Date(2024, 1, 1, h, m, 0, 0, time.UTC)
}

func testWeek(t *testing.T) *Week {
	t.Helper()
	w, err := ParseWeek(map[string][]Entry{
		"monday": {
			{From: "17:00", To: "22:00", Temperature: temp(20.5)},
			{From: "06:30", To: "08:00", Temperature: temp(21)},
		},
		"tue": {
			{From: "23:00", To: "01:30"},
		},
	}, 19)
	require.NoError(t, err)
	return w
}

func TestBlocksAreSortedPerDay(t *testing.T) {
	blocks := testWeek(t).Blocks(monday(12, 0))

	require.Len(t, blocks, 2)
	assert.Equal(t, monday(6, 30), blocks[0].From)
	assert.Equal(t, monday(8, 0), blocks[0].To)
	assert.Equal(t, monday(17, 0), blocks[1].From)
}

func TestActiveIsHalfOpen(t *testing.T) {
	w := testWeek(t)

	b, ok := w.Active(monday(6, 30))
	require.True(t, ok)
	assert.Equal(t, 21.0, b.Temperature)

	_, ok = w.Active(monday(8, 0))
	assert.False(t, ok)
}

func TestOvernightBlockUsesDefaultAndSpansMidnight(t *testing.T) {
	w := testWeek(t)
	wednesdayEarly := time.Date(2024, 1, 3, 1, 0, 0, 0, time.UTC)

	b, ok := w.Active(wednesdayEarly)
	require.True(t, ok)
	assert.Equal(t, 19.0, b.Temperature)
	assert.Equal(t, time.Date(2024, 1, 3, 1, 30, 0, 0, time.UTC), b.To)
}

func TestNextLooksAcrossDays(t *testing.T) {
	w := testWeek(t)

	b, ok := w.Next(monday(7, 0))
	require.True(t, ok)
	assert.Equal(t, monday(17, 0), b.From)

	b, ok = w.Next(monday(22, 30))
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 1, 2, 23, 0, 0, 0, time.UTC), b.From)

	b, ok = w.Next(time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC))
	require.True(t, ok)
	assert.Equal(t, monday(6, 30).AddDate(0, 0, 7), b.From)
}

func TestOverlappingBlocksRejected(t *testing.T) {
	_, err := ParseWeek(map[string][]Entry{
		"friday": {{From: "06:00", To: "09:00"}, {From: "08:30", To: "10:00"}},
	}, 20)
	assert.Error(t, err)

	_, err = ParseWeek(map[string][]Entry{
		"sunday": {{From: "22:00", To: "07:00"}},
		"monday": {{From: "06:00", To: "08:00"}},
	}, 20)
	assert.Error(t, err)
}

func TestInvalidInput(t *testing.T) {
	_, err := ParseWeek(map[string][]Entry{"funday": {{From: "06:00", To: "07:00"}}}, 20)
	assert.Error(t, err)

	_, err = ParseWeek(map[string][]Entry{"monday": {{From: "6am", To: "07:00"}}}, 20)
	assert.Error(t, err)

	_, err = ParseWeek(map[string][]Entry{"monday": {{From: "06:00", To: "25:00"}}}, 20)
	assert.Error(t, err)
}

func TestSourceWithoutScheduleIsInactive(t *testing.T) {
	s := NewSource()
	s.Set("living", testWeek(t))

	assert.True(t, s.IsActive("living", monday(7, 0)))
	assert.False(t, s.IsActive("bedroom", monday(7, 0)))
	_, ok := s.NextBlock("bedroom", monday(7, 0))
	assert.False(t, ok)
	assert.Nil(t, s.DayBlocks("bedroom", monday(7, 0)))

	sp, ok := s.CurrentSetpoint("living", monday(18, 0))
	require.True(t, ok)
	assert.Equal(t, 20.5, sp)
}
