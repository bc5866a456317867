// Package session runs the trading control loop: gate on trading hours, poll
// the detector, enter through the gateway, manage the single live position
// and evaluate exits. All broker traffic flows through the gateway, so the
// loop can never exceed the call budget.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"levelbot/internal/broker"
	"levelbot/internal/config"
	"levelbot/internal/gateway"
	"levelbot/internal/ledger"
	"levelbot/internal/logger"
	"levelbot/internal/market"
	"levelbot/internal/metrics"
	"levelbot/internal/ratebudget"
	"levelbot/internal/signal"

	"github.com/shopspring/decimal"
)

type State string

const (
	StateIdle           State = "idle"
	StateAwaitingSignal State = "awaiting_signal"
	StateEntryPending   State = "entry_pending"
	StatePositionOpen   State = "position_open"
	StateExitPending    State = "exit_pending"
)

// entryCallCost is the number of broker calls one entry sequence needs
// (quote, order, verify). Scanning stops when the window cannot fit it.
const entryCallCost = 3

// SignalSource is the detector surface the controller polls.
type SignalSource interface {
	StartDay(day time.Time)
	Evaluate(ctx context.Context) (*signal.Signal, error)
}

// Gate is the broker surface, always the rate-budgeted gateway in production.
type Gate interface {
	Enter(ctx context.Context, req broker.OrderRequest) (broker.OrderResult, error)
	Quote(ctx context.Context, strike int, right broker.OptionRight) (decimal.Decimal, error)
	Exit(ctx context.Context, req broker.OrderRequest) (broker.OrderResult, error)
	Verify(ctx context.Context, orderID string) (broker.OrderStatus, error)
	Usage() ratebudget.Usage
}

// Book is the position persistence surface.
type Book interface {
	Open(ctx context.Context, pos *ledger.Position) error
	Update(ctx context.Context, pos *ledger.Position) error
	CloseOut(ctx context.Context, pos *ledger.Position, reason, exitOrderID string, exitPremium float64) error
	Live(ctx context.Context) (*ledger.Position, error)
}

var (
	_ Gate = (*gateway.Gateway)(nil)
	_ Book = (*ledger.Store)(nil)
)

// Controller owns the single live position and drives the state machine
// Idle -> AwaitingSignal -> EntryPending -> PositionOpen -> ExitPending.
type Controller struct {
	cfg           config.TradingConfig
	minConfluence int
	hours         Hours

	detector SignalSource
	gw       Gate
	book     Book
	candles  market.CandleSource
	rollFn   func()

	nowFn func() time.Time

	mu            sync.Mutex
	state         State
	pos           *ledger.Position
	day           string
	lastStopClose time.Time
}

func New(cfg config.Config, det SignalSource, gw Gate, book Book, candles market.CandleSource, rollFn func()) (*Controller, error) {
	hours, err := ParseHours(cfg.Trading.HoursOpen, cfg.Trading.HoursClose)
	if err != nil {
		return nil, err
	}
	if rollFn == nil {
		rollFn = func() {}
	}
	return &Controller{
		cfg:           cfg.Trading,
		minConfluence: cfg.Signal.MinConfluence,
		hours:         hours,
		detector:      det,
		gw:            gw,
		book:          book,
		candles:       candles,
		rollFn:        rollFn,
		nowFn:         time.Now,
		state:         StateIdle,
	}, nil
}

// Snapshot is the controller view served by the status endpoint.
type Snapshot struct {
	State    State            `json:"state"`
	Day      string           `json:"day"`
	Position *ledger.Position `json:"position,omitempty"`
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Snapshot{State: c.state, Day: c.day}
	if c.pos != nil {
		cp := *c.pos
		s.Position = &cp
	}
	return s
}

// Run ticks the state machine until the context ends. Most tick errors are
// logged and the loop carries on; the external data feed or broker being
// briefly down must not kill the session. A ledger conflict is the exception:
// it means the single-position invariant is broken and every further entry
// would place another untracked order, so the loop halts for manual
// reconciliation.
func (c *Controller) Run(ctx context.Context) error {
	logger.Infof("session loop started (poll=%ds idle=%ds window=%s-%s)",
		c.cfg.PollSeconds, c.cfg.IdleSeconds, c.cfg.HoursOpen, c.cfg.HoursClose)
	for {
		if err := c.Tick(ctx); err != nil && !errors.Is(err, context.Canceled) {
			if errors.Is(err, ledger.ErrConflict) {
				logger.Errorf("ledger conflict, halting session until the book is reconciled: %v", err)
				return err
			}
			logger.Errorf("session tick: %v", err)
		}
		wait := time.Duration(c.cfg.PollSeconds) * time.Second
		if c.currentState() == StateIdle {
			wait = time.Duration(c.cfg.IdleSeconds) * time.Second
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (c *Controller) currentState() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Tick advances the state machine once.
func (c *Controller) Tick(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.nowFn()
	if !c.hours.Within(now) {
		return c.outOfHours(ctx)
	}

	if day := now.Format("2006-01-02"); day != c.day {
		if err := c.startDay(ctx, now, day); err != nil {
			c.day = "" // retry next tick
			return err
		}
	}

	switch c.state {
	case StateIdle:
		c.state = StateAwaitingSignal
		return nil
	case StateAwaitingSignal:
		return c.scan(ctx)
	case StateEntryPending:
		return c.confirmEntry(ctx)
	case StatePositionOpen:
		return c.manage(ctx)
	case StateExitPending:
		return c.confirmExit(ctx)
	default:
		return fmt.Errorf("unknown state %q", c.state)
	}
}

// outOfHours resolves anything still in flight, then rests. An open position
// is squared off rather than carried overnight.
func (c *Controller) outOfHours(ctx context.Context) error {
	switch c.state {
	case StateEntryPending:
		return c.confirmEntry(ctx)
	case StateExitPending:
		return c.confirmExit(ctx)
	case StatePositionOpen:
		premium := c.pos.EntryPremium
		if q, err := c.gw.Quote(ctx, c.pos.Strike, broker.OptionRight(c.pos.Right)); err == nil {
			premium, _ = q.Float64()
		}
		logger.Warnf("market closed with position open, squaring off")
		return c.submitExit(ctx, ledger.ExitSessionEnd, premium)
	default:
		c.state = StateIdle
		return nil
	}
}

// startDay promotes staged levels, resets the detector and reconciles any
// position left over from a previous process.
func (c *Controller) startDay(ctx context.Context, now time.Time, day string) error {
	c.day = day
	c.lastStopClose = time.Time{}
	c.rollFn()
	c.detector.StartDay(now)
	logger.Infof("trading day %s started", day)
	return c.reconcile(ctx)
}

// reconcile restores controller state from the ledger after a restart or at
// day start. A pending entry is verified exactly once; orders the broker
// rejected or cancelled while we were away are closed as RECONCILED.
func (c *Controller) reconcile(ctx context.Context) error {
	pos, err := c.book.Live(ctx)
	if err != nil {
		return err
	}
	if pos == nil {
		c.pos = nil
		c.state = StateAwaitingSignal
		return nil
	}
	c.pos = pos
	logger.Infof("reconciling %s position %d (order %s)", pos.Status, pos.ID, pos.EntryOrderID)
	switch pos.Status {
	case ledger.StatusPending:
		st, err := c.gw.Verify(ctx, pos.EntryOrderID)
		if err != nil {
			c.state = StateEntryPending
			return err
		}
		switch st {
		case broker.StatusExecuted:
			pos.Status = ledger.StatusOpen
			c.state = StatePositionOpen
			return c.book.Update(ctx, pos)
		case broker.StatusRejected, broker.StatusCancelled:
			if err := c.book.CloseOut(ctx, pos, ledger.ExitReconciled, "", pos.EntryPremium); err != nil {
				return err
			}
			metrics.Trades.WithLabelValues(ledger.ExitReconciled).Inc()
			c.pos = nil
			c.state = StateAwaitingSignal
			return nil
		default:
			c.state = StateEntryPending
			return nil
		}
	default: // open
		if pos.ExitOrderID != "" {
			c.state = StateExitPending
		} else {
			c.state = StatePositionOpen
		}
		return nil
	}
}

// scan polls the detector and enters on a qualifying signal.
func (c *Controller) scan(ctx context.Context) error {
	sig, err := c.detector.Evaluate(ctx)
	if err != nil {
		if errors.Is(err, market.ErrIntegrity) {
			logger.Warnf("candle feed integrity fault, skipping tick: %v", err)
			return nil
		}
		return err
	}
	if sig == nil {
		return nil
	}
	metrics.Signals.WithLabelValues(string(sig.Pattern)).Inc()
	if sig.ConfluenceScore < c.minConfluence {
		logger.Infof("ignoring %s at %s (confluence %d < %d)",
			sig.Pattern, sig.Level.Name, sig.ConfluenceScore, c.minConfluence)
		return nil
	}
	if u := c.gw.Usage(); u.Effective-u.InWindow < entryCallCost {
		logger.Warnf("deferring entry, call budget too tight (%d/%d admissible)", u.InWindow, u.Effective)
		return nil
	}
	return c.enter(ctx, sig)
}

func (c *Controller) enter(ctx context.Context, sig *signal.Signal) error {
	// The ledger is checked before any broker call: if a live row exists that
	// the controller does not hold, placing the order first would leave it
	// recorded nowhere.
	if live, err := c.book.Live(ctx); err != nil {
		return err
	} else if live != nil {
		return fmt.Errorf("position %d already %s: %w", live.ID, live.Status, ledger.ErrConflict)
	}

	right := gateway.RightFor(sig.Direction)
	strike := NearestStrike(sig.ClosePrice, c.cfg.StrikeIncrement)

	quote, err := c.gw.Quote(ctx, strike, right)
	if err != nil {
		return fmt.Errorf("entry quote failed: %w", err)
	}
	req := broker.OrderRequest{
		Right:    right,
		Strike:   strike,
		Quantity: c.cfg.LotSize,
		Remark:   fmt.Sprintf("%s %s@%v", sig.Pattern, sig.Level.Name, sig.Level.Value),
	}
	res, err := c.gw.Enter(ctx, req)
	if err != nil {
		if errors.Is(err, broker.ErrRejected) {
			logger.Warnf("entry rejected by broker: %v", err)
			return nil
		}
		return fmt.Errorf("entry failed: %w", err)
	}

	premium, _ := quote.Float64()
	raw, _ := json.Marshal(sig)
	pos := &ledger.Position{
		Day:          c.day,
		Direction:    string(sig.Direction),
		Pattern:      string(sig.Pattern),
		LevelName:    sig.Level.Name,
		LevelValue:   sig.Level.Value,
		Strike:       strike,
		Right:        string(right),
		Quantity:     c.cfg.LotSize,
		EntryOrderID: res.OrderID,
		EntryPremium: premium,
		SignalJSON:   raw,
	}
	if err := c.book.Open(ctx, pos); err != nil {
		return fmt.Errorf("recording entry: %w", err)
	}
	c.pos = pos
	c.state = StateEntryPending
	logger.Infof("entry submitted: %s %d %s x%d @ %.2f (order %s, signal %s %s)",
		right, strike, sig.Direction, c.cfg.LotSize, premium, res.OrderID, sig.Pattern, sig.Level.Name)
	return c.confirmEntry(ctx)
}

func (c *Controller) confirmEntry(ctx context.Context) error {
	st, err := c.gw.Verify(ctx, c.pos.EntryOrderID)
	if err != nil {
		return err
	}
	if !st.Terminal() {
		return nil // still pending, verify again next tick
	}
	if st == broker.StatusExecuted {
		c.pos.Status = ledger.StatusOpen
		if err := c.book.Update(ctx, c.pos); err != nil {
			return err
		}
		c.state = StatePositionOpen
		logger.Infof("position open: %s %d x%d @ %.2f", c.pos.Right, c.pos.Strike, c.pos.Quantity, c.pos.EntryPremium)
		return nil
	}
	logger.Warnf("entry order %s %s", c.pos.EntryOrderID, st)
	if err := c.book.CloseOut(ctx, c.pos, ledger.ExitEntryFailed, "", c.pos.EntryPremium); err != nil {
		return err
	}
	metrics.Trades.WithLabelValues(ledger.ExitEntryFailed).Inc()
	c.pos = nil
	c.state = StateAwaitingSignal
	return nil
}

// manage polls the premium and evaluates the target and level-stop exits.
func (c *Controller) manage(ctx context.Context) error {
	quote, err := c.gw.Quote(ctx, c.pos.Strike, broker.OptionRight(c.pos.Right))
	if err != nil {
		return fmt.Errorf("premium quote failed: %w", err)
	}
	premium, _ := quote.Float64()

	gain := quote.Sub(decimal.NewFromFloat(c.pos.EntryPremium))
	if gain.GreaterThanOrEqual(decimal.NewFromFloat(c.cfg.TargetPoints)) {
		logger.Infof("target hit: premium %.2f entry %.2f", premium, c.pos.EntryPremium)
		return c.submitExit(ctx, ledger.ExitTarget, premium)
	}

	trigger, err := c.updateStopStreak(ctx)
	if err != nil {
		if errors.Is(err, market.ErrIntegrity) {
			logger.Warnf("stop-loss candles unusable this tick: %v", err)
			return nil
		}
		return err
	}
	if trigger {
		logger.Infof("level stop hit: %d consecutive closes against %s %.2f",
			c.pos.AdverseStreak, c.pos.LevelName, c.pos.LevelValue)
		return c.submitExit(ctx, ledger.ExitStopLoss, premium)
	}
	return nil
}

// updateStopStreak counts each newly closed candle at the stop-loss
// granularity once: a close against the entry level increments the streak, a
// close back on the favorable side resets it.
func (c *Controller) updateStopStreak(ctx context.Context) (bool, error) {
	candles, err := c.candles.Recent(ctx, c.cfg.StopLossInterval, 3)
	if err != nil {
		return false, err
	}
	now := c.nowFn()
	var latest *market.Candle
	for i := len(candles) - 1; i >= 0; i-- {
		closeAt, err := candles[i].CloseTime()
		if err != nil {
			return false, fmt.Errorf("%w: %v", market.ErrIntegrity, err)
		}
		if !closeAt.After(now) {
			latest = &candles[i]
			break
		}
	}
	if latest == nil || !latest.OpenTime.After(c.lastStopClose) {
		return false, nil
	}
	c.lastStopClose = latest.OpenTime

	diff := latest.Close - c.pos.LevelValue
	if c.pos.Direction == string(signal.Bearish) {
		diff = -diff
	}
	switch {
	case diff < 0:
		c.pos.AdverseStreak++
	case diff > 0:
		c.pos.AdverseStreak = 0
	}
	if err := c.book.Update(ctx, c.pos); err != nil {
		return false, err
	}
	return c.pos.AdverseStreak >= c.cfg.StopLossStreak, nil
}

// submitExit sends the square-off and immediately tries to confirm it.
func (c *Controller) submitExit(ctx context.Context, reason string, premium float64) error {
	req := broker.OrderRequest{
		Right:    broker.OptionRight(c.pos.Right),
		Strike:   c.pos.Strike,
		Quantity: c.pos.Quantity,
		Remark:   reason,
	}
	res, err := c.gw.Exit(ctx, req)
	if err != nil {
		// Stay in PositionOpen and retry on the next tick. An exit must not
		// be abandoned because one square-off call failed.
		return fmt.Errorf("square-off failed: %w", err)
	}
	c.pos.ExitOrderID = res.OrderID
	c.pos.ExitReason = reason
	c.pos.ExitPremium = premium
	if err := c.book.Update(ctx, c.pos); err != nil {
		return err
	}
	c.state = StateExitPending
	return c.confirmExit(ctx)
}

func (c *Controller) confirmExit(ctx context.Context) error {
	st, err := c.gw.Verify(ctx, c.pos.ExitOrderID)
	if err != nil {
		return err
	}
	if !st.Terminal() {
		return nil
	}
	if st == broker.StatusExecuted {
		reason := c.pos.ExitReason
		if err := c.book.CloseOut(ctx, c.pos, reason, c.pos.ExitOrderID, c.pos.ExitPremium); err != nil {
			return err
		}
		metrics.Trades.WithLabelValues(reason).Inc()
		logger.Infof("position closed: %s pnl=%.2f", reason, c.pos.PnL)
		c.pos = nil
		c.state = StateAwaitingSignal
		return nil
	}
	logger.Warnf("exit order %s %s, will resubmit", c.pos.ExitOrderID, st)
	c.pos.ExitOrderID = ""
	c.pos.ExitReason = ""
	if err := c.book.Update(ctx, c.pos); err != nil {
		return err
	}
	c.state = StatePositionOpen
	return nil
}

// EmergencyExit squares off the live position immediately. Calling it while
// flat is a no-op.
func (c *Controller) EmergencyExit(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pos == nil {
		pos, err := c.book.Live(ctx)
		if err != nil {
			return err
		}
		if pos == nil {
			return nil
		}
		c.pos = pos
	}
	if !c.pos.Live() {
		c.pos = nil
		return nil
	}
	logger.Warnf("emergency exit requested for position %d", c.pos.ID)
	switch {
	case c.pos.Status == ledger.StatusPending:
		// Entry never confirmed; verify once and settle the row either way.
		st, err := c.gw.Verify(ctx, c.pos.EntryOrderID)
		if err != nil {
			return err
		}
		if st != broker.StatusExecuted {
			if err := c.book.CloseOut(ctx, c.pos, ledger.ExitReconciled, "", c.pos.EntryPremium); err != nil {
				return err
			}
			c.pos = nil
			c.state = StateAwaitingSignal
			return nil
		}
		c.pos.Status = ledger.StatusOpen
		if err := c.book.Update(ctx, c.pos); err != nil {
			return err
		}
		fallthrough
	default:
		if c.pos.ExitOrderID != "" {
			c.state = StateExitPending
			return c.confirmExit(ctx)
		}
		premium := c.pos.EntryPremium
		if q, err := c.gw.Quote(ctx, c.pos.Strike, broker.OptionRight(c.pos.Right)); err == nil {
			premium, _ = q.Float64()
		}
		return c.submitExit(ctx, ledger.ExitEmergency, premium)
	}
}

// NearestStrike rounds a spot price to the closest strike increment.
func NearestStrike(price float64, increment int) int {
	if increment <= 0 {
		increment = 100
	}
	n := int(price/float64(increment) + 0.5)
	return n * increment
}
