package session

import (
	"fmt"
	"time"
)

// Hours is the trading window within a day, local time.
type Hours struct {
	open  int // minutes since midnight
	close int
}

func ParseHours(open, close string) (Hours, error) {
	o, err := clockMinutes(open)
	if err != nil {
		return Hours{}, fmt.Errorf("trading.hours_open: %w", err)
	}
	c, err := clockMinutes(close)
	if err != nil {
		return Hours{}, fmt.Errorf("trading.hours_close: %w", err)
	}
	if o >= c {
		return Hours{}, fmt.Errorf("trading hours open %q must be before close %q", open, close)
	}
	return Hours{open: o, close: c}, nil
}

// Within reports whether t falls inside the trading window. The open minute
// is inclusive, the close minute exclusive.
func (h Hours) Within(t time.Time) bool {
	m := t.Hour()*60 + t.Minute()
	return m >= h.open && m < h.close
}

func clockMinutes(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid clock %q: %w", s, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}
