package signal

import (
	"levelbot/internal/levels"
	"levelbot/internal/market"
)

type Direction string

const (
	Bullish Direction = "bullish"
	Bearish Direction = "bearish"
)

// Sign returns +1 for bullish and -1 for bearish.
func (d Direction) Sign() float64 {
	if d == Bearish {
		return -1
	}
	return 1
}

type Pattern string

const (
	Breakout  Pattern = "breakout"
	Breakdown Pattern = "breakdown"
	Rejection Pattern = "rejection"
	Bounce    Pattern = "bounce"
)

// Signal is one candidate trade emitted by the detector. Ephemeral: the
// controller either acts on it within the tick or drops it.
type Signal struct {
	Direction       Direction     `json:"direction"`
	Pattern         Pattern       `json:"pattern"`
	Level           levels.Level  `json:"level"`
	Candle          market.Candle `json:"candle"`
	Interval        string        `json:"interval"`
	ClosePrice      float64       `json:"close_price"`
	Probability     int           `json:"probability"`
	DistanceATR     float64       `json:"distance_atr"`
	ConfluenceScore int           `json:"confluence_score"`
}

// GapState is the day-scoped gap fact for one gap-filter level. Computed once
// from the first candle close of the session, immutable afterwards.
type GapState struct {
	Detected     bool         `json:"detected"`
	Direction    GapDirection `json:"direction"`
	Level        levels.Level `json:"level"`
	OpeningPrice float64      `json:"opening_price"`
}

type GapDirection string

const (
	GapUp   GapDirection = "up"
	GapDown GapDirection = "down"
)
