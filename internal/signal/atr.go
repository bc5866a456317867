package signal

import (
	"context"
	"math"

	"levelbot/internal/market"

	"github.com/markcheno/go-talib"
)

// fallback when the daily history is too short for a real ATR.
const defaultATR = 50.0

func computeATR(ctx context.Context, src market.CandleSource, lookback int) float64 {
	candles, err := src.Daily(ctx, lookback*3)
	if err != nil || len(candles) < lookback+1 {
		return defaultATR
	}
	high := make([]float64, len(candles))
	low := make([]float64, len(candles))
	clos := make([]float64, len(candles))
	for i, c := range candles {
		high[i], low[i], clos[i] = c.High, c.Low, c.Close
	}
	out := talib.Atr(high, low, clos, lookback)
	atr := out[len(out)-1]
	if atr <= 0 || math.IsNaN(atr) {
		return defaultATR
	}
	return atr
}

// probabilityFromATR maps distance-to-level in ATR units onto the historical
// breakout probability bands.
func probabilityFromATR(distATR float64) int {
	d := math.Abs(distATR)
	switch {
	case d < 0.25:
		return 85
	case d < 0.5:
		return 70
	case d < 1.0:
		return 55
	case d < 2.0:
		return 40
	default:
		return 25
	}
}
