// Package statushttp serves the operator surface: a JSON status snapshot,
// Prometheus metrics and the emergency-exit trigger.
package statushttp

import (
	"context"
	"errors"
	"net/http"
	"time"

	"levelbot/internal/levels"
	"levelbot/internal/logger"
	"levelbot/internal/ratebudget"
	"levelbot/internal/session"
	"levelbot/internal/signal"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SessionView is the controller surface the server needs.
type SessionView interface {
	Snapshot() session.Snapshot
	EmergencyExit(ctx context.Context) error
}

// ServerConfig describes the read-only views the server publishes.
type ServerConfig struct {
	Addr    string
	Session SessionView
	Usage   func() ratebudget.Usage
	Gaps    func() []signal.GapState
	Levels  func() []levels.Level
	ATR     func() float64
}

type Server struct {
	addr   string
	router *gin.Engine
}

func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Session == nil {
		return nil, errors.New("status server requires a session controller")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9985"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	api.GET("/status", statusHandler(cfg))
	api.POST("/emergency-exit", emergencyHandler(cfg.Session))

	return &Server{addr: cfg.Addr, router: router}, nil
}

func statusHandler(cfg ServerConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		resp := gin.H{"session": cfg.Session.Snapshot()}
		if cfg.Usage != nil {
			resp["budget"] = cfg.Usage()
		}
		if cfg.Levels != nil {
			resp["levels"] = cfg.Levels()
		}
		if cfg.Gaps != nil {
			resp["gaps"] = cfg.Gaps()
		}
		if cfg.ATR != nil {
			resp["atr"] = cfg.ATR()
		}
		c.JSON(http.StatusOK, resp)
	}
}

func emergencyHandler(view SessionView) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := view.EmergencyExit(c.Request.Context()); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "flat"})
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method
		path := c.Request.URL.Path
		c.Next()
		logger.Debugf("HTTP %s %s status=%d ip=%s dur=%s",
			method, path, c.Writer.Status(), c.ClientIP(), time.Since(start))
	}
}

func (s *Server) Addr() string {
	if s == nil {
		return ""
	}
	return s.addr
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	logger.Infof("status server listening on %s", s.addr)
	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
