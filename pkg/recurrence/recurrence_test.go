package recurrence

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustWeekly(t *testing.T, anchor time.Time, days []time.Weekday, opts ...Option) *Rule {
	t.Helper()
	r, err := Weekly(anchor, days, opts...)
	require.NoError(t, err)
	return r
}

func TestWeekly_NextOccurrences(t *testing.T) {
	// Monday 2025-01-06 09:00 UTC, firing Mondays and Thursdays.
	anchor := time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC)
	r := mustWeekly(t, anchor, []time.Weekday{time.Monday, time.Thursday})

	first, ok := r.Next(anchor.Add(-time.Hour))
	require.True(t, ok)
	assert.Equal(t, anchor, first, "anchor itself is the first occurrence")

	second, ok := r.Next(first)
	require.True(t, ok)
	assert.Equal(t, time.Date(2025, 1, 9, 9, 0, 0, 0, time.UTC), second)

	third, ok := r.Next(second)
	require.True(t, ok)
	assert.Equal(t, time.Date(2025, 1, 13, 9, 0, 0, 0, time.UTC), third)
}

func TestWeekly_NeverBeforeAnchor(t *testing.T) {
	anchor := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC) // a Monday
	r := mustWeekly(t, anchor, []time.Weekday{time.Monday})

	next, ok := r.Next(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	require.True(t, ok)
	assert.Equal(t, anchor, next)
}

func TestWeekly_RequiresWeekdays(t *testing.T) {
	_, err := Weekly(time.Now(), nil)
	assert.ErrorIs(t, err, ErrNoWeekdays)
}

func TestWeekly_RespectsTimezone(t *testing.T) {
	// Anchor is Friday 23:00 in New York, which is Saturday 04:00 UTC.
	// Occurrences must stay on New York Fridays even though the UTC
	// weekday differs.
	anchor := time.Date(2025, 1, 11, 4, 0, 0, 0, time.UTC)
	r := mustWeekly(t, anchor, []time.Weekday{time.Friday}, InZone("America/New_York"))

	next, ok := r.Next(anchor)
	require.True(t, ok)
	assert.Equal(t, time.Date(2025, 1, 18, 4, 0, 0, 0, time.UTC), next)

	ny, _ := time.LoadLocation("America/New_York")
	assert.Equal(t, time.Friday, next.In(ny).Weekday())
}

func TestMonthly_ShortMonthRollsToLastDay(t *testing.T) {
	anchor := time.Date(2025, 1, 31, 10, 0, 0, 0, time.UTC)
	r, err := Monthly(anchor, 31)
	require.NoError(t, err)

	got := r.Expand(anchor.Add(-time.Second), 4)
	want := []time.Time{
		time.Date(2025, 1, 31, 10, 0, 0, 0, time.UTC),
		time.Date(2025, 2, 28, 10, 0, 0, 0, time.UTC), // not a leap year
		time.Date(2025, 3, 31, 10, 0, 0, 0, time.UTC),
		time.Date(2025, 4, 30, 10, 0, 0, 0, time.UTC),
	}
	assert.Equal(t, want, got)
}

func TestMonthly_LeapFebruary(t *testing.T) {
	anchor := time.Date(2024, 1, 30, 8, 0, 0, 0, time.UTC)
	r, err := Monthly(anchor, 30)
	require.NoError(t, err)

	next, ok := r.Next(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 2, 29, 8, 0, 0, 0, time.UTC), next)
}

func TestMonthly_RejectsBadDay(t *testing.T) {
	_, err := Monthly(time.Now(), 0)
	assert.ErrorIs(t, err, ErrBadDayOfMonth)
	_, err = Monthly(time.Now(), 32)
	assert.ErrorIs(t, err, ErrBadDayOfMonth)
}

func TestUntil_BoundsExpansion(t *testing.T) {
	anchor := time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC)
	until := time.Date(2025, 1, 20, 9, 0, 0, 0, time.UTC)
	r := mustWeekly(t, anchor, []time.Weekday{time.Monday}, Until(until))

	got := r.Expand(anchor.Add(-time.Second), 100)
	require.Len(t, got, 3) // Jan 6, 13, 20
	for _, occ := range got {
		assert.False(t, occ.After(until), "occurrence %v after until", occ)
	}

	_, ok := r.Next(got[len(got)-1])
	assert.False(t, ok, "rule is exhausted past until")
}

func TestExpand_StrictlyIncreasing(t *testing.T) {
	anchor := time.Date(2025, 3, 1, 6, 30, 0, 0, time.UTC)
	r, err := Monthly(anchor, 15)
	require.NoError(t, err)

	got := r.Expand(anchor, 12)
	require.Len(t, got, 12)
	for i := 1; i < len(got); i++ {
		assert.True(t, got[i].After(got[i-1]))
		assert.False(t, got[i].Before(r.Anchor))
	}
}

func TestExpand_Restartable(t *testing.T) {
	anchor := time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC)
	r := mustWeekly(t, anchor, []time.Weekday{time.Monday, time.Wednesday})

	all := r.Expand(anchor.Add(-time.Second), 6)
	tail := r.Expand(all[2], 3)
	assert.Equal(t, all[3:], tail, "expansion restarted mid-stream matches")
}

func TestCron_NextOccurrence(t *testing.T) {
	anchor := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	r, err := Cron(anchor, "0 9 * * 1") // Mondays 09:00
	require.NoError(t, err)

	next, ok := r.Next(anchor)
	require.True(t, ok)
	assert.Equal(t, time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC), next)
}

func TestCron_RejectsInvalidExpression(t *testing.T) {
	_, err := Cron(time.Now(), "not a cron")
	assert.Error(t, err)
}

func TestRule_JSONRoundTrip(t *testing.T) {
	anchor := time.Date(2025, 1, 31, 10, 0, 0, 0, time.UTC)
	until := anchor.AddDate(1, 0, 0)
	r, err := Monthly(anchor, 31, Until(until), InZone("Europe/Berlin"))
	require.NoError(t, err)

	raw, err := json.Marshal(r)
	require.NoError(t, err)

	var back Rule
	require.NoError(t, json.Unmarshal(raw, &back))

	n1, ok1 := r.Next(anchor)
	n2, ok2 := back.Next(anchor)
	require.True(t, ok1)
	require.True(t, ok2)
	assert.Equal(t, n1, n2, "deserialized rule expands identically")
}
