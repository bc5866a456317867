package signal

import "levelbot/internal/levels"

// ComputeGap evaluates the day-open gap for one gap-filter level.
// A resistance level gaps up when the session opens more than threshold above
// it; a support level gaps down symmetrically. Pure function of
// (opening price, level, threshold).
func ComputeGap(opening float64, level levels.Level, threshold float64) GapState {
	gs := GapState{Level: level, OpeningPrice: opening}
	switch level.Kind {
	case levels.Resistance:
		if opening-level.Value > threshold {
			gs.Detected = true
			gs.Direction = GapUp
		}
	case levels.Support:
		if level.Value-opening > threshold {
			gs.Detected = true
			gs.Direction = GapDown
		}
	}
	return gs
}

// InRetestZone reports whether price sits inside the band around the gapped
// level where evaluation resumes.
func (g GapState) InRetestZone(price, margin float64) bool {
	return price >= g.Level.Value-margin && price <= g.Level.Value+margin
}
