package config

import (
	"fmt"
	"strings"
	"time"
)

func validate(c *Config) error {
	if c.Budget.SafetyMargin >= c.Budget.Ceiling {
		return fmt.Errorf("budget: safety_margin (%d) must be below ceiling (%d)",
			c.Budget.SafetyMargin, c.Budget.Ceiling)
	}
	switch strings.ToLower(c.Broker.Mode) {
	case "paper":
	case "breeze":
		if c.Broker.APIURL == "" {
			return fmt.Errorf("broker: api_url is required in breeze mode")
		}
		if c.Broker.APIKey == "" || c.Broker.SessionToken == "" {
			return fmt.Errorf("broker: api_key and session_token are required in breeze mode")
		}
	default:
		return fmt.Errorf("broker: unknown mode %q", c.Broker.Mode)
	}
	if len(c.Market.CandleDBs) == 0 {
		return fmt.Errorf("market: candle_dbs cannot be empty")
	}
	for _, iv := range c.Signal.Intervals {
		if _, ok := c.Market.CandleDBs[iv]; !ok {
			return fmt.Errorf("signal: interval %q has no candle_dbs entry", iv)
		}
	}
	if _, ok := c.Market.CandleDBs[c.Trading.StopLossInterval]; !ok {
		return fmt.Errorf("trading: stop_loss_interval %q has no candle_dbs entry", c.Trading.StopLossInterval)
	}
	if _, err := parseClock(c.Trading.HoursOpen); err != nil {
		return fmt.Errorf("trading: invalid hours_open: %w", err)
	}
	if _, err := parseClock(c.Trading.HoursClose); err != nil {
		return fmt.Errorf("trading: invalid hours_close: %w", err)
	}
	open, _ := parseClock(c.Trading.HoursOpen)
	clos, _ := parseClock(c.Trading.HoursClose)
	if !open.Before(clos) {
		return fmt.Errorf("trading: hours_open must precede hours_close")
	}
	return nil
}

func parseClock(s string) (time.Time, error) {
	return time.Parse("15:04", strings.TrimSpace(s))
}
