// Copyright Home Assistant Mobile Push Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDayKey(t *testing.T) {
	// The bucket follows the UTC date, whatever the local zone says.
	east := time.FixedZone("UTC+10", 10*3600)
	now := time.Date(2026, 8, 26, 2, 30, 0, 0, east) // still Aug 25 in UTC
	assert.Equal(t, "20260825", DayKey(now))
	assert.Equal(t, "20260825", DayKey(now.UTC()))
}

func TestNextMidnightUTC(t *testing.T) {
	now := time.Date(2026, 8, 25, 23, 59, 59, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 8, 26, 0, 0, 0, 0, time.UTC), NextMidnightUTC(now))

	// Month rollover.
	now = time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC), NextMidnightUTC(now))
}

func TestResetsAtUsesLocalMidnight(t *testing.T) {
	west := time.FixedZone("UTC-8", -8*3600)
	now := time.Date(2026, 8, 25, 18, 0, 0, 0, west)
	got := ResetsAt(now)
	assert.Equal(t, time.Date(2026, 8, 26, 0, 0, 0, 0, west), got)
}
