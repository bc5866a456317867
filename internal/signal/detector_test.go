package signal

import (
	"context"
	"testing"
	"time"

	"levelbot/internal/config"
	"levelbot/internal/levels"
	"levelbot/internal/market"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSource struct {
	recent map[string][]market.Candle
	first  map[string]market.Candle
	daily  []market.Candle
}

func (s *stubSource) Recent(_ context.Context, interval string, n int) ([]market.Candle, error) {
	c := s.recent[interval]
	if len(c) > n {
		c = c[len(c)-n:]
	}
	return append([]market.Candle(nil), c...), nil
}

func (s *stubSource) FirstOfDay(_ context.Context, interval string, _ time.Time) (market.Candle, bool, error) {
	c, ok := s.first[interval]
	return c, ok, nil
}

func (s *stubSource) Daily(_ context.Context, n int) ([]market.Candle, error) {
	return s.daily, nil
}

var testDay = time.Date(2026, 8, 28, 0, 0, 0, 0, time.Local)

func candleAt(hh, mm int, interval string, open, high, low, close float64) market.Candle {
	return market.Candle{
		OpenTime: time.Date(2026, 8, 28, hh, mm, 0, 0, time.Local),
		Open:     open, High: high, Low: low, Close: close,
		Interval: interval,
	}
}

func testSignalConfig() config.SignalConfig {
	return config.SignalConfig{
		Intervals:       []string{"15m"},
		GapThreshold:    50,
		RetestMargin:    20,
		MinConfluence:   1,
		MaxCandleAgeSec: 300,
		ATRLookbackDays: 14,
	}
}

func newTestDetector(src market.CandleSource, lvls []levels.Level, cfg config.SignalConfig, now time.Time) *Detector {
	d := NewDetector(src, cfg, func() []levels.Level { return lvls })
	d.nowFn = func() time.Time { return now }
	d.StartDay(testDay)
	return d
}

func TestBreakoutFiresOnFreshCross(t *testing.T) {
	lvl := levels.Level{Name: "previous_day_high", Value: 25713, Kind: levels.Resistance, Source: "1d"}
	src := &stubSource{
		first: map[string]market.Candle{"15m": candleAt(9, 15, "15m", 25700, 25710, 25690, 25705)},
		recent: map[string][]market.Candle{"15m": {
			candleAt(9, 45, "15m", 25690, 25710, 25680, 25700),
			candleAt(10, 0, "15m", 25700, 25730, 25695, 25720),
		}},
	}
	d := newTestDetector(src, []levels.Level{lvl}, testSignalConfig(), time.Date(2026, 8, 28, 10, 16, 0, 0, time.Local))

	sig, err := d.Evaluate(context.Background())
	require.NoError(t, err)
	require.NotNil(t, sig)
	assert.Equal(t, Breakout, sig.Pattern)
	assert.Equal(t, Bullish, sig.Direction)
	assert.Equal(t, 90, sig.Probability)
	assert.Equal(t, 1, sig.ConfluenceScore)
}

func TestBreakoutDoesNotRefireOnSustainedMove(t *testing.T) {
	lvl := levels.Level{Name: "previous_day_high", Value: 25713, Kind: levels.Resistance, Source: "1d"}
	src := &stubSource{
		first: map[string]market.Candle{"15m": candleAt(9, 15, "15m", 25700, 25710, 25690, 25705)},
		recent: map[string][]market.Candle{"15m": {
			candleAt(10, 0, "15m", 25700, 25730, 25695, 25720),
			candleAt(10, 15, "15m", 25720, 25760, 25718, 25750),
		}},
	}
	d := newTestDetector(src, []levels.Level{lvl}, testSignalConfig(), time.Date(2026, 8, 28, 10, 31, 0, 0, time.Local))

	// both closes are above the level: the excursion already happened
	sig, err := d.Evaluate(context.Background())
	require.NoError(t, err)
	assert.Nil(t, sig)
}

func TestSameCandleNeverFiresTwice(t *testing.T) {
	lvl := levels.Level{Name: "previous_day_high", Value: 25713, Kind: levels.Resistance, Source: "1d"}
	src := &stubSource{
		first: map[string]market.Candle{"15m": candleAt(9, 15, "15m", 25700, 25710, 25690, 25705)},
		recent: map[string][]market.Candle{"15m": {
			candleAt(9, 45, "15m", 25690, 25710, 25680, 25700),
			candleAt(10, 0, "15m", 25700, 25730, 25695, 25720),
		}},
	}
	d := newTestDetector(src, []levels.Level{lvl}, testSignalConfig(), time.Date(2026, 8, 28, 10, 16, 0, 0, time.Local))

	first, err := d.Evaluate(context.Background())
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := d.Evaluate(context.Background())
	require.NoError(t, err)
	assert.Nil(t, second)
}

func TestBreakdownRejectionBounce(t *testing.T) {
	tests := []struct {
		name      string
		level     levels.Level
		prev      market.Candle
		curr      market.Candle
		pattern   Pattern
		direction Direction
	}{
		{
			name:      "breakdown below support",
			level:     levels.Level{Name: "previous_day_low", Value: 25450, Kind: levels.Support, Source: "1d"},
			prev:      candleAt(9, 45, "15m", 25470, 25480, 25455, 25460),
			curr:      candleAt(10, 0, "15m", 25460, 25465, 25420, 25430),
			pattern:   Breakdown,
			direction: Bearish,
		},
		{
			name:      "rejection at resistance",
			level:     levels.Level{Name: "session_high", Value: 25600, Kind: levels.Resistance, Source: "5m"},
			prev:      candleAt(9, 45, "15m", 25560, 25580, 25550, 25570),
			curr:      candleAt(10, 0, "15m", 25570, 25610, 25560, 25575),
			pattern:   Rejection,
			direction: Bearish,
		},
		{
			name:      "bounce off support",
			level:     levels.Level{Name: "session_low", Value: 25400, Kind: levels.Support, Source: "5m"},
			prev:      candleAt(9, 45, "15m", 25430, 25440, 25415, 25420),
			curr:      candleAt(10, 0, "15m", 25420, 25435, 25390, 25425),
			pattern:   Bounce,
			direction: Bullish,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			src := &stubSource{
				first:  map[string]market.Candle{"15m": candleAt(9, 15, "15m", 25500, 25510, 25490, 25505)},
				recent: map[string][]market.Candle{"15m": {tc.prev, tc.curr}},
			}
			d := newTestDetector(src, []levels.Level{tc.level}, testSignalConfig(), time.Date(2026, 8, 28, 10, 16, 0, 0, time.Local))

			sig, err := d.Evaluate(context.Background())
			require.NoError(t, err)
			require.NotNil(t, sig)
			assert.Equal(t, tc.pattern, sig.Pattern)
			assert.Equal(t, tc.direction, sig.Direction)
		})
	}
}

func TestConfluenceCountsAgreeingIntervals(t *testing.T) {
	lvl := levels.Level{Name: "previous_day_high", Value: 25713, Kind: levels.Resistance, Source: "1d"}
	cfg := testSignalConfig()
	cfg.Intervals = []string{"15m", "5m"}
	src := &stubSource{
		first: map[string]market.Candle{"15m": candleAt(9, 15, "15m", 25700, 25710, 25690, 25705)},
		recent: map[string][]market.Candle{
			"15m": {
				candleAt(9, 45, "15m", 25690, 25710, 25680, 25700),
				candleAt(10, 0, "15m", 25700, 25730, 25695, 25720),
			},
			"5m": {
				candleAt(10, 5, "5m", 25705, 25712, 25700, 25710),
				candleAt(10, 10, "5m", 25710, 25725, 25708, 25722),
			},
		},
	}
	d := newTestDetector(src, []levels.Level{lvl}, cfg, time.Date(2026, 8, 28, 10, 16, 0, 0, time.Local))

	sig, err := d.Evaluate(context.Background())
	require.NoError(t, err)
	require.NotNil(t, sig)
	assert.Equal(t, 2, sig.ConfluenceScore)
}

func TestGapSuppressionUntilRetest(t *testing.T) {
	pdh := levels.Level{Name: "previous_day_high", Value: 25713, Kind: levels.Resistance, Source: "1d", GapFilter: true}
	cfg := testSignalConfig()

	// session opens 25850, 137 points above PDH: gap-up, suppress
	src := &stubSource{
		first: map[string]market.Candle{"15m": candleAt(9, 15, "15m", 25850, 25880, 25840, 25860)},
		recent: map[string][]market.Candle{"15m": {
			candleAt(9, 45, "15m", 25860, 25880, 25850, 25865),
			candleAt(10, 0, "15m", 25865, 25890, 25860, 25870),
		}},
	}
	d := newTestDetector(src, []levels.Level{pdh}, cfg, time.Date(2026, 8, 28, 10, 16, 0, 0, time.Local))

	sig, err := d.Evaluate(context.Background())
	require.NoError(t, err)
	assert.Nil(t, sig, "price 25870 far above gapped level must stay suppressed")

	gaps := d.GapStates()
	require.Len(t, gaps, 1)
	assert.True(t, gaps[0].Detected)
	assert.Equal(t, GapUp, gaps[0].Direction)

	// price returns to the retest zone and then breaks out again
	src.recent["15m"] = []market.Candle{
		candleAt(10, 15, "15m", 25740, 25745, 25700, 25710),
		candleAt(10, 30, "15m", 25710, 25735, 25705, 25722),
	}
	d.nowFn = func() time.Time { return time.Date(2026, 8, 28, 10, 46, 0, 0, time.Local) }

	sig, err = d.Evaluate(context.Background())
	require.NoError(t, err)
	require.NotNil(t, sig, "retest at 25722 releases the latch")
	assert.Equal(t, Breakout, sig.Pattern)
}

func TestNoGapOnNormalOpen(t *testing.T) {
	pdh := levels.Level{Name: "previous_day_high", Value: 25713, Kind: levels.Resistance, Source: "1d", GapFilter: true}
	src := &stubSource{
		first: map[string]market.Candle{"15m": candleAt(9, 15, "15m", 25700, 25710, 25690, 25705)},
		recent: map[string][]market.Candle{"15m": {
			candleAt(9, 45, "15m", 25690, 25710, 25680, 25700),
			candleAt(10, 0, "15m", 25700, 25730, 25695, 25720),
		}},
	}
	d := newTestDetector(src, []levels.Level{pdh}, testSignalConfig(), time.Date(2026, 8, 28, 10, 16, 0, 0, time.Local))

	sig, err := d.Evaluate(context.Background())
	require.NoError(t, err)
	require.NotNil(t, sig, "opening 25700 is no gap, trading proceeds")

	gaps := d.GapStates()
	require.Len(t, gaps, 1)
	assert.False(t, gaps[0].Detected)
}

func TestHoleInClosedCandlesIsIntegrityFault(t *testing.T) {
	lvl := levels.Level{Name: "previous_day_high", Value: 25713, Kind: levels.Resistance, Source: "1d"}
	src := &stubSource{
		first: map[string]market.Candle{"15m": candleAt(9, 15, "15m", 25700, 25710, 25690, 25705)},
		recent: map[string][]market.Candle{"15m": {
			candleAt(9, 15, "15m", 25700, 25710, 25690, 25705),
			candleAt(9, 45, "15m", 25690, 25710, 25680, 25700), // 9:30 missing
			candleAt(10, 0, "15m", 25700, 25730, 25695, 25720),
		}},
	}
	d := newTestDetector(src, []levels.Level{lvl}, testSignalConfig(), time.Date(2026, 8, 28, 10, 16, 0, 0, time.Local))

	_, err := d.Evaluate(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, market.ErrIntegrity)
}

func TestStaleCandleDoesNotTrigger(t *testing.T) {
	lvl := levels.Level{Name: "previous_day_high", Value: 25713, Kind: levels.Resistance, Source: "1d"}
	src := &stubSource{
		first: map[string]market.Candle{"15m": candleAt(9, 15, "15m", 25700, 25710, 25690, 25705)},
		recent: map[string][]market.Candle{"15m": {
			candleAt(9, 45, "15m", 25690, 25710, 25680, 25700),
			candleAt(10, 0, "15m", 25700, 25730, 25695, 25720),
		}},
	}
	// 40 minutes past the 10:15 close, well over max_candle_age
	d := newTestDetector(src, []levels.Level{lvl}, testSignalConfig(), time.Date(2026, 8, 28, 10, 55, 0, 0, time.Local))

	sig, err := d.Evaluate(context.Background())
	require.NoError(t, err)
	assert.Nil(t, sig)
}

func TestUnclosedNewestCandleIgnored(t *testing.T) {
	lvl := levels.Level{Name: "previous_day_high", Value: 25713, Kind: levels.Resistance, Source: "1d"}
	src := &stubSource{
		first: map[string]market.Candle{"15m": candleAt(9, 15, "15m", 25700, 25710, 25690, 25705)},
		recent: map[string][]market.Candle{"15m": {
			candleAt(9, 45, "15m", 25690, 25710, 25680, 25700),
			candleAt(10, 0, "15m", 25700, 25730, 25695, 25720),
			candleAt(10, 15, "15m", 25720, 25790, 25718, 25780), // still forming
		}},
	}
	d := newTestDetector(src, []levels.Level{lvl}, testSignalConfig(), time.Date(2026, 8, 28, 10, 16, 0, 0, time.Local))

	sig, err := d.Evaluate(context.Background())
	require.NoError(t, err)
	require.NotNil(t, sig)
	// the signal comes from the 10:00 candle, not the forming 10:15 one
	assert.Equal(t, 25720.0, sig.ClosePrice)
}
