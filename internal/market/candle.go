package market

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrIntegrity marks a hole or disorder inside the closed portion of a candle
// series. Callers log it and skip the tick instead of crashing.
var ErrIntegrity = errors.New("candle series integrity fault")

// Candle is one OHLC bucket produced by the external collector.
// Immutable once its interval has elapsed.
type Candle struct {
	OpenTime time.Time `json:"open_time"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Interval string    `json:"interval"`
}

// CloseTime returns the instant the bucket completes.
func (c Candle) CloseTime() (time.Time, error) {
	d, ok := ParseIntervalDuration(c.Interval)
	if !ok {
		return time.Time{}, fmt.Errorf("candle has invalid interval %q", c.Interval)
	}
	return c.OpenTime.Add(d), nil
}

// ParseIntervalDuration parses "5m", "15m", "1h", "1d" into a time.Duration.
// Returns (0, false) on invalid input.
func ParseIntervalDuration(interval string) (time.Duration, bool) {
	interval = strings.ToLower(strings.TrimSpace(interval))
	if interval == "" {
		return 0, false
	}
	unit := interval[len(interval)-1]
	numStr := strings.TrimSpace(interval[:len(interval)-1])
	if numStr == "" {
		return 0, false
	}
	n, err := strconv.Atoi(numStr)
	if err != nil || n <= 0 {
		return 0, false
	}
	switch unit {
	case 'm':
		return time.Duration(n) * time.Minute, true
	case 'h':
		return time.Duration(n) * time.Hour, true
	case 'd':
		return time.Duration(n) * 24 * time.Hour, true
	default:
		return 0, false
	}
}

// CheckContinuity verifies that closed candles are strictly ordered and gapless.
// The newest candle is exempt: an out-of-order newest entry is treated as
// not-yet-closed by the caller. Candles must be in ascending OpenTime order.
func CheckContinuity(candles []Candle, interval string) error {
	step, ok := ParseIntervalDuration(interval)
	if !ok {
		return fmt.Errorf("%w: invalid interval %q", ErrIntegrity, interval)
	}
	for i := 1; i < len(candles)-1; i++ {
		gap := candles[i].OpenTime.Sub(candles[i-1].OpenTime)
		if gap <= 0 {
			return fmt.Errorf("%w: candle at %s not after %s", ErrIntegrity,
				candles[i].OpenTime.Format(time.RFC3339), candles[i-1].OpenTime.Format(time.RFC3339))
		}
		sameDay := candles[i].OpenTime.YearDay() == candles[i-1].OpenTime.YearDay() &&
			candles[i].OpenTime.Year() == candles[i-1].OpenTime.Year()
		if sameDay && gap != step {
			return fmt.Errorf("%w: %s hole between %s and %s", ErrIntegrity, interval,
				candles[i-1].OpenTime.Format(time.RFC3339), candles[i].OpenTime.Format(time.RFC3339))
		}
	}
	return nil
}
