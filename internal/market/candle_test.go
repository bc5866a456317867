package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIntervalDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
		ok   bool
	}{
		{"5m", 5 * time.Minute, true},
		{"15m", 15 * time.Minute, true},
		{"1h", time.Hour, true},
		{"1d", 24 * time.Hour, true},
		{" 5M ", 5 * time.Minute, true},
		{"", 0, false},
		{"m", 0, false},
		{"0m", 0, false},
		{"5x", 0, false},
	}
	for _, tc := range tests {
		got, ok := ParseIntervalDuration(tc.in)
		assert.Equal(t, tc.ok, ok, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func TestCloseTime(t *testing.T) {
	open := time.Date(2026, 8, 28, 10, 30, 0, 0, time.UTC)
	c := Candle{OpenTime: open, Interval: "5m"}
	closeAt, err := c.CloseTime()
	require.NoError(t, err)
	assert.Equal(t, open.Add(5*time.Minute), closeAt)

	_, err = Candle{OpenTime: open, Interval: "bogus"}.CloseTime()
	require.Error(t, err)
}

func seq(t *testing.T, clocks ...string) []Candle {
	t.Helper()
	out := make([]Candle, 0, len(clocks))
	for _, clock := range clocks {
		ts, err := time.Parse("2006-01-02 15:04", clock)
		require.NoError(t, err)
		out = append(out, Candle{OpenTime: ts, Interval: "5m"})
	}
	return out
}

func TestCheckContinuity(t *testing.T) {
	ok := seq(t, "2026-08-28 10:00", "2026-08-28 10:05", "2026-08-28 10:10", "2026-08-28 10:15")
	assert.NoError(t, CheckContinuity(ok, "5m"))

	hole := seq(t, "2026-08-28 10:00", "2026-08-28 10:10", "2026-08-28 10:15")
	assert.ErrorIs(t, CheckContinuity(hole, "5m"), ErrIntegrity)

	disorder := seq(t, "2026-08-28 10:05", "2026-08-28 10:00", "2026-08-28 10:10")
	assert.ErrorIs(t, CheckContinuity(disorder, "5m"), ErrIntegrity)
}

func TestCheckContinuityNewestExempt(t *testing.T) {
	// A hole before the newest candle is fine: the newest entry may still be
	// forming and is filtered by the caller.
	s := seq(t, "2026-08-28 10:00", "2026-08-28 10:05", "2026-08-28 10:20")
	assert.NoError(t, CheckContinuity(s, "5m"))
}

func TestCheckContinuityOvernight(t *testing.T) {
	// Session boundary: the gap from yesterday's close to today's open is not
	// a hole.
	s := seq(t, "2026-08-27 15:20", "2026-08-28 09:15", "2026-08-28 09:20", "2026-08-28 09:25")
	assert.NoError(t, CheckContinuity(s, "5m"))
}
