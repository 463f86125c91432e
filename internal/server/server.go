// Package server is the host HTTP surface: the bridge websocket endpoint,
// Prometheus metrics, health, the active policy and a one-shot evaluator.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/ppiankov/geowatch/internal/logging"
	"github.com/ppiankov/geowatch/internal/metrics"
	"github.com/ppiankov/geowatch/internal/model"
	"github.com/ppiankov/geowatch/internal/policy"
)

// MonitorStatus is the read side of the running monitor.
type MonitorStatus interface {
	Running() bool
	Session() string
	LastSample() (model.Sample, bool)
}

// Config holds HTTP server configuration.
type Config struct {
	Addr    string
	Version string

	Policy  *policy.Store
	Metrics *metrics.Collector
	// Bridge serves the page websocket at /bridge when set.
	Bridge  http.Handler
	Monitor MonitorStatus
	Log     logrus.FieldLogger

	ReadTimeout     time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// Server wraps a gin engine in an http.Server.
type Server struct {
	cfg    Config
	engine *gin.Engine
	srv    *http.Server
	log    logrus.FieldLogger
}

// New creates a server with all routes registered.
func New(cfg Config) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":8787"
	}
	if cfg.Policy == nil {
		cfg.Policy = policy.NewStore(nil, "")
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 120 * time.Second
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}

	s := &Server{cfg: cfg, log: logging.OrNop(cfg.Log)}
	s.engine = s.router()
	s.srv = &http.Server{
		Addr:        cfg.Addr,
		Handler:     s.engine,
		ReadTimeout: cfg.ReadTimeout,
		IdleTimeout: cfg.IdleTimeout,
	}
	return s
}

func (s *Server) router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.requestLogger())
	if s.cfg.Metrics != nil {
		r.Use(s.cfg.Metrics.Middleware())
		r.GET("/metrics", s.cfg.Metrics.Handler())
	}

	r.GET("/healthz", s.health)
	r.GET("/policy", s.policy)
	r.GET("/status", s.status)
	r.POST("/evaluate", s.evaluate)
	if s.cfg.Bridge != nil {
		r.GET("/bridge", gin.WrapH(s.cfg.Bridge))
	}
	return r
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Serve listens on cfg.Addr until ctx ends, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr, err)
	}
	return s.ServeOn(ctx, lis)
}

// ServeOn serves on lis until ctx ends.
func (s *Server) ServeOn(ctx context.Context, lis net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", lis.Addr().String()).Info("http server listening")
		errCh <- s.srv.Serve(lis)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	s.log.Info("http server stopped")
	return nil
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.FullPath(),
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		}).Debug("http request")
	}
}

func (s *Server) health(c *gin.Context) {
	resp := gin.H{
		"status":      "ok",
		"version":     s.cfg.Version,
		"policy_hash": s.cfg.Policy.Hash(),
	}
	if m := s.cfg.Monitor; m != nil {
		resp["monitoring"] = m.Running()
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) policy(c *gin.Context) {
	cfg := s.cfg.Policy.Config()
	c.JSON(http.StatusOK, gin.H{
		"hash":       s.cfg.Policy.Hash(),
		"thresholds": cfg.Thresholds,
		"monitor": gin.H{
			"interval":      cfg.Monitor.Interval.String(),
			"initial_delay": cfg.Monitor.InitialDelay.String(),
		},
		"spoofer_apps": cfg.SpooferApps,
	})
}

func (s *Server) status(c *gin.Context) {
	if s.cfg.Monitor == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "monitor not configured"})
		return
	}
	resp := gin.H{
		"running": s.cfg.Monitor.Running(),
		"session": s.cfg.Monitor.Session(),
	}
	if last, ok := s.cfg.Monitor.LastSample(); ok {
		resp["last_sample"] = last
	}
	c.JSON(http.StatusOK, resp)
}

// EvaluateRequest is the body of POST /evaluate.
type EvaluateRequest struct {
	Sample   model.RawReading  `json:"sample"`
	Previous *model.RawReading `json:"previous,omitempty"`
	Mode     string            `json:"mode,omitempty"`
}

func (s *Server) evaluate(c *gin.Context) {
	var req EvaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var prev *model.Sample
	if req.Previous != nil {
		p := model.NewSample(*req.Previous)
		prev = &p
	}
	v := policy.Evaluate(model.NewSample(req.Sample), prev, s.cfg.Policy.Thresholds(policy.ParseMode(req.Mode)))
	c.JSON(http.StatusOK, v)
}
