// Package levels holds the precomputed price levels supplied to a trading
// session. Levels are static for a trading day; the file may be rewritten
// between sessions and is re-read on the next day roll.
package levels

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Kind string

const (
	Resistance Kind = "resistance"
	Support    Kind = "support"
)

// Level is one precomputed price line the detector evaluates candles against.
type Level struct {
	Name   string  `yaml:"name"`
	Value  float64 `yaml:"value"`
	Kind   Kind    `yaml:"kind"`
	Source string  `yaml:"source"` // granularity the level was derived from, e.g. "1d", "5m"

	// Gapped levels participate in the day-open gap filter (previous-day
	// high/low in practice).
	GapFilter bool `yaml:"gap_filter"`
}

// DayFile is the on-disk shape of the levels file.
type DayFile struct {
	Date   string  `yaml:"date"`
	Levels []Level `yaml:"levels"`
}

// ParseFile decodes and validates a levels file.
func ParseFile(path string) (*DayFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading levels file failed: %w", err)
	}
	var df DayFile
	if err := yaml.Unmarshal(raw, &df); err != nil {
		return nil, fmt.Errorf("parsing levels file failed: %w", err)
	}
	for i := range df.Levels {
		l := &df.Levels[i]
		l.Name = strings.TrimSpace(l.Name)
		if l.Name == "" {
			return nil, fmt.Errorf("levels[%d]: name is required", i)
		}
		if l.Value <= 0 {
			return nil, fmt.Errorf("level %q: value must be positive", l.Name)
		}
		switch l.Kind {
		case Resistance, Support:
		default:
			return nil, fmt.Errorf("level %q: kind must be resistance or support", l.Name)
		}
	}
	return &df, nil
}
