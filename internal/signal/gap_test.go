package signal

import (
	"testing"

	"levelbot/internal/levels"

	"github.com/stretchr/testify/assert"
)

func TestComputeGap(t *testing.T) {
	pdh := levels.Level{Name: "previous_day_high", Value: 25713, Kind: levels.Resistance}
	pdl := levels.Level{Name: "previous_day_low", Value: 25450, Kind: levels.Support}

	tests := []struct {
		name      string
		level     levels.Level
		opening   float64
		detected  bool
		direction GapDirection
	}{
		{"large gap up", pdh, 25850, true, GapUp},
		{"normal open", pdh, 25700, false, ""},
		{"small gap up stays inactive", pdh, 25750, false, ""},
		{"exactly at threshold is not a gap", pdh, 25763, false, ""},
		{"large gap down", pdl, 25350, true, GapDown},
		{"open above support", pdl, 25460, false, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			gs := ComputeGap(tc.opening, tc.level, 50)
			assert.Equal(t, tc.detected, gs.Detected)
			if tc.detected {
				assert.Equal(t, tc.direction, gs.Direction)
			}
			assert.Equal(t, tc.opening, gs.OpeningPrice)
		})
	}
}

func TestInRetestZone(t *testing.T) {
	gs := GapState{
		Detected:  true,
		Direction: GapUp,
		Level:     levels.Level{Name: "previous_day_high", Value: 25713, Kind: levels.Resistance},
	}
	assert.False(t, gs.InRetestZone(25870, 20))
	assert.True(t, gs.InRetestZone(25720, 20))
	assert.True(t, gs.InRetestZone(25693, 20))
	assert.True(t, gs.InRetestZone(25733, 20))
	assert.False(t, gs.InRetestZone(25734, 20))
}
