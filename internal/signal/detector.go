// Package signal turns closed candles and precomputed price levels into trade
// candidates. The detector is a per-session state machine with two layers: a
// day-scoped gap/retest latch and a per-tick breakout classifier.
package signal

import (
	"context"
	"math"
	"time"

	"levelbot/internal/config"
	"levelbot/internal/levels"
	"levelbot/internal/logger"
	"levelbot/internal/market"
)

type firedKey struct {
	interval string
	level    string
	openUnix int64
}

// Detector evaluates the configured granularities each tick and emits at most
// one signal, the best candidate of the tick carrying its confluence count.
type Detector struct {
	src      market.CandleSource
	cfg      config.SignalConfig
	levelsFn func() []levels.Level

	day      string
	dayReady bool
	gaps     map[string]GapState
	retested map[string]bool
	fired    map[firedKey]bool
	atr      float64

	nowFn func() time.Time
}

func NewDetector(src market.CandleSource, cfg config.SignalConfig, levelsFn func() []levels.Level) *Detector {
	return &Detector{
		src:      src,
		cfg:      cfg,
		levelsFn: levelsFn,
		gaps:     map[string]GapState{},
		retested: map[string]bool{},
		fired:    map[firedKey]bool{},
		nowFn:    time.Now,
	}
}

// StartDay resets all day-scoped state. The gap latch itself is computed
// lazily on the first tick after the day's first candle has closed.
func (d *Detector) StartDay(day time.Time) {
	d.day = day.Format("2006-01-02")
	d.dayReady = false
	d.gaps = map[string]GapState{}
	d.retested = map[string]bool{}
	d.fired = map[firedKey]bool{}
	d.atr = 0
}

// ATR returns the session's daily ATR, zero before day init.
func (d *Detector) ATR() float64 { return d.atr }

// GapStates returns the day's computed gap facts, for observability.
func (d *Detector) GapStates() []GapState {
	out := make([]GapState, 0, len(d.gaps))
	for _, gs := range d.gaps {
		out = append(out, gs)
	}
	return out
}

func (d *Detector) ensureDayInit(ctx context.Context) (bool, error) {
	if d.dayReady {
		return true, nil
	}
	if len(d.cfg.Intervals) == 0 {
		return false, nil
	}
	iv := d.cfg.Intervals[0]
	day, err := time.ParseInLocation("2006-01-02", d.day, time.Local)
	if err != nil {
		return false, err
	}
	first, ok, err := d.src.FirstOfDay(ctx, iv, day)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	closeAt, err := first.CloseTime()
	if err != nil || d.nowFn().Before(closeAt) {
		return false, err
	}
	for _, lvl := range d.levelsFn() {
		if !lvl.GapFilter {
			continue
		}
		gs := ComputeGap(first.Open, lvl, d.cfg.GapThreshold)
		d.gaps[lvl.Name] = gs
		if gs.Detected {
			logger.Warnf("gap-%s detected at open: %.2f vs %s %.2f; trades at this level wait for retest (±%.0f)",
				gs.Direction, first.Open, lvl.Name, lvl.Value, d.cfg.RetestMargin)
		}
	}
	d.atr = computeATR(ctx, d.src, d.cfg.ATRLookbackDays)
	d.dayReady = true
	return true, nil
}

// Evaluate runs one detection tick. It returns at most one signal; a nil
// signal with nil error means nothing fired. An ErrIntegrity-wrapped error
// means the tick should be logged and skipped.
func (d *Detector) Evaluate(ctx context.Context) (*Signal, error) {
	ready, err := d.ensureDayInit(ctx)
	if err != nil || !ready {
		return nil, err
	}
	now := d.nowFn()
	lvls := d.levelsFn()
	var candidates []Signal

	for _, iv := range d.cfg.Intervals {
		candles, err := d.src.Recent(ctx, iv, 4)
		if err != nil {
			return nil, err
		}
		if err := market.CheckContinuity(candles, iv); err != nil {
			return nil, err
		}
		candles = dropUnclosed(candles, now)
		if len(candles) < 2 {
			continue
		}
		prev, curr := candles[len(candles)-2], candles[len(candles)-1]
		closeAt, err := curr.CloseTime()
		if err != nil {
			return nil, err
		}
		age := now.Sub(closeAt)
		if age > time.Duration(d.cfg.MaxCandleAgeSec)*time.Second {
			continue // stale candle, the move is long over
		}

		for _, lvl := range lvls {
			if d.suppressedByGap(lvl, curr.Close) {
				continue
			}
			pattern, direction, ok := classify(prev.Close, curr, lvl.Value)
			if !ok {
				continue
			}
			key := firedKey{interval: iv, level: lvl.Name, openUnix: curr.OpenTime.Unix()}
			if d.fired[key] {
				continue
			}
			dist := 0.0
			if d.atr > 0 {
				dist = (curr.Close - lvl.Value) / d.atr
			}
			prob := probabilityFromATR(dist)
			if pattern == Breakout || pattern == Breakdown {
				prob = 90
			}
			candidates = append(candidates, Signal{
				Direction:   direction,
				Pattern:     pattern,
				Level:       lvl,
				Candle:      curr,
				Interval:    iv,
				ClosePrice:  curr.Close,
				Probability: prob,
				DistanceATR: dist,
			})
			d.fired[key] = true
		}
	}

	if len(candidates) == 0 {
		return nil, nil
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.Probability > best.Probability ||
			(c.Probability == best.Probability && math.Abs(c.DistanceATR) < math.Abs(best.DistanceATR)) {
			best = c
		}
	}
	best.ConfluenceScore = len(candidates)
	return &best, nil
}

// suppressedByGap applies the one-way retest latch: while a level's gap is
// detected and unretested, it is skipped; the first close inside the retest
// zone releases it for the rest of the day.
func (d *Detector) suppressedByGap(lvl levels.Level, price float64) bool {
	gs, ok := d.gaps[lvl.Name]
	if !ok || !gs.Detected || d.retested[lvl.Name] {
		return false
	}
	if gs.InRetestZone(price, d.cfg.RetestMargin) {
		d.retested[lvl.Name] = true
		logger.Infof("retest zone reached: %s %.2f @ price %.2f, level active again", lvl.Name, lvl.Value, price)
		return false
	}
	return true
}

func classify(prevClose float64, curr market.Candle, level float64) (Pattern, Direction, bool) {
	switch {
	case prevClose <= level && curr.Close > level:
		return Breakout, Bullish, true
	case prevClose >= level && curr.Close < level:
		return Breakdown, Bearish, true
	case curr.High >= level && curr.Close < level:
		return Rejection, Bearish, true
	case curr.Low <= level && curr.Close > level:
		return Bounce, Bullish, true
	}
	return "", "", false
}

func dropUnclosed(candles []market.Candle, now time.Time) []market.Candle {
	for len(candles) > 0 {
		last := candles[len(candles)-1]
		closeAt, err := last.CloseTime()
		if err != nil || closeAt.After(now) {
			candles = candles[:len(candles)-1]
			continue
		}
		break
	}
	return candles
}
