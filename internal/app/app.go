// Package app wires configuration into the running services: the session
// control loop and the HTTP status surface.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"levelbot/internal/broker"
	"levelbot/internal/broker/breeze"
	"levelbot/internal/broker/paper"
	"levelbot/internal/config"
	"levelbot/internal/gateway"
	"levelbot/internal/ledger"
	"levelbot/internal/levels"
	"levelbot/internal/logger"
	"levelbot/internal/market"
	"levelbot/internal/pkg/circuit"
	"levelbot/internal/ratebudget"
	"levelbot/internal/session"
	"levelbot/internal/signal"
	statushttp "levelbot/internal/transport/http"

	"golang.org/x/sync/errgroup"
)

type App struct {
	cfg      *config.Config
	ctrl     *session.Controller
	server   *statushttp.Server
	store    *ledger.Store
	source   *market.SQLiteSource
	registry *levels.Registry
}

func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)

	store, err := ledger.NewStore(cfg.Ledger.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening position ledger: %w", err)
	}
	source, err := market.NewSQLiteSource(cfg.Market.CandleDBs, cfg.Signal.DailyDBInterval)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("opening candle databases: %w", err)
	}
	registry, err := levels.NewRegistry(cfg.App.LevelsPath)
	if err != nil {
		store.Close()
		source.Close()
		return nil, fmt.Errorf("loading price levels: %w", err)
	}

	detector := signal.NewDetector(source, cfg.Signal, registry.Active)

	budget := ratebudget.New(cfg.Budget.Ceiling, cfg.Budget.SafetyMargin,
		time.Duration(cfg.Budget.WindowSeconds)*time.Second)
	breaker := circuit.NewBreaker("broker", 5, 30*time.Second)

	var brk broker.Broker
	switch cfg.Broker.Mode {
	case "breeze":
		brk, err = breeze.NewClient(cfg.Broker)
		if err != nil {
			store.Close()
			source.Close()
			registry.Close()
			return nil, fmt.Errorf("building breeze client: %w", err)
		}
	default:
		logger.Warnf("broker mode %q, orders are simulated", cfg.Broker.Mode)
		brk = paper.New()
	}
	gw := gateway.New(brk, budget, breaker)

	ctrl, err := session.New(*cfg, detector, gw, store, source, registry.Roll)
	if err != nil {
		store.Close()
		source.Close()
		registry.Close()
		return nil, err
	}

	server, err := statushttp.NewServer(statushttp.ServerConfig{
		Addr:    cfg.App.HTTPAddr,
		Session: ctrl,
		Usage:   gw.Usage,
		Gaps:    detector.GapStates,
		Levels:  registry.Active,
		ATR:     detector.ATR,
	})
	if err != nil {
		store.Close()
		source.Close()
		registry.Close()
		return nil, err
	}

	return &App{
		cfg:      cfg,
		ctrl:     ctrl,
		server:   server,
		store:    store,
		source:   source,
		registry: registry,
	}, nil
}

// Run starts the session loop and the status server, returning when the
// context ends or either service fails.
func (a *App) Run(ctx context.Context) error {
	logger.Infof("levelbot starting (symbol=%s broker=%s http=%s)",
		a.cfg.Market.Symbol, a.cfg.Broker.Mode, a.server.Addr())
	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return a.server.Start(ctx)
	})
	group.Go(func() error {
		err := a.ctrl.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	err := group.Wait()
	a.Close()
	return err
}

func (a *App) Close() {
	if a.registry != nil {
		a.registry.Close()
	}
	if a.source != nil {
		a.source.Close()
	}
	if a.store != nil {
		a.store.Close()
	}
}
