// Package api serves cache configurations over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/oriys/cachebridge/internal/auth"
	"github.com/oriys/cachebridge/internal/bridge"
	"github.com/oriys/cachebridge/internal/logging"
	"github.com/oriys/cachebridge/internal/metrics"
	"github.com/oriys/cachebridge/internal/observability"
	"github.com/oriys/cachebridge/internal/ratelimit"
)

// ServerConfig contains dependencies for the HTTP server.
type ServerConfig struct {
	Bridges *bridge.Resolver
	// Auth protects /v1 when set.
	Auth auth.Authenticator
	// RateLimiter throttles /v1 when set.
	RateLimiter *ratelimit.Limiter
	// Metrics exposes /metrics and /v1/stats.
	Metrics bool
	// Stats backs /v1/stats; the global stats when nil.
	Stats *metrics.Stats
	// PingTimeout bounds each engine ping on /health.
	PingTimeout time.Duration
}

// Server holds the HTTP handlers.
type Server struct {
	bridges     *bridge.Resolver
	auth        auth.Authenticator
	limiter     *ratelimit.Limiter
	stats       *metrics.Stats
	metrics     bool
	pingTimeout time.Duration
}

// NewServer creates a Server from cfg.
func NewServer(cfg ServerConfig) *Server {
	if cfg.Stats == nil {
		cfg.Stats = metrics.Global()
	}
	if cfg.PingTimeout <= 0 {
		cfg.PingTimeout = 2 * time.Second
	}
	return &Server{
		bridges:     cfg.Bridges,
		auth:        cfg.Auth,
		limiter:     cfg.RateLimiter,
		stats:       cfg.Stats,
		metrics:     cfg.Metrics,
		pingTimeout: cfg.PingTimeout,
	}
}

// Router builds the gin engine with every route and middleware installed.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestID(), observability.GinMiddleware(), accessLog())

	r.GET("/health", s.health)
	if s.metrics {
		r.GET("/metrics", gin.WrapH(metrics.PrometheusHandler()))
	}

	v1 := r.Group("/v1")
	if s.auth != nil {
		v1.Use(authenticate(s.auth))
	}
	if s.limiter != nil {
		v1.Use(ratelimit.Middleware(s.limiter))
	}
	if s.metrics {
		v1.GET("/stats", s.stats.Handler())
	}
	v1.GET("/caches", s.listCaches)

	c := v1.Group("/caches/:cache")
	c.Use(authorize())
	c.GET("", s.describeCache)
	c.GET("/items/:key", s.getItem)
	c.HEAD("/items/:key", s.hasItem)
	c.PUT("/items/:key", s.setItem)
	c.DELETE("/items/:key", s.deleteItem)
	c.DELETE("/items", s.clear)
	c.POST("/batch/get", s.getMany)
	c.POST("/batch/set", s.setMany)
	c.POST("/batch/delete", s.deleteMany)

	return r
}

// StartHTTPServer creates and starts the HTTP server.
func StartHTTPServer(addr string, cfg ServerConfig) *http.Server {
	server := &http.Server{
		Addr:              addr,
		Handler:           NewServer(cfg).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logging.Op().Info("HTTP API started", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Op().Error("HTTP server error", "error", err)
		}
	}()

	return server
}

// health pings every configured engine.
func (s *Server) health(c *gin.Context) {
	names := s.bridges.Names()
	caches := make(map[string]string, len(names))
	healthy := true
	for _, name := range names {
		e, err := s.bridges.Registry().Engine(name)
		if err == nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), s.pingTimeout)
			err = e.Ping(ctx)
			cancel()
		}
		if err != nil {
			healthy = false
			caches[name] = err.Error()
			continue
		}
		caches[name] = "ok"
	}

	status, code := "ok", http.StatusOK
	if !healthy {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":         status,
		"caches":         caches,
		"uptime_seconds": int64(time.Since(metrics.StartTime()).Seconds()),
	})
}
