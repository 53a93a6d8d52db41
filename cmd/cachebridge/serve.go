package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/oriys/cachebridge/internal/api"
	"github.com/oriys/cachebridge/internal/auth"
	"github.com/oriys/cachebridge/internal/bridge"
	"github.com/oriys/cachebridge/internal/config"
	"github.com/oriys/cachebridge/internal/engine"
	grpcserver "github.com/oriys/cachebridge/internal/grpc"
	"github.com/oriys/cachebridge/internal/logging"
	"github.com/oriys/cachebridge/internal/mcptools"
	"github.com/oriys/cachebridge/internal/metrics"
	"github.com/oriys/cachebridge/internal/observability"
	"github.com/oriys/cachebridge/internal/ratelimit"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	var (
		httpAddr string
		grpcAddr string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and gRPC health server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if httpAddr != "" {
				cfg.Daemon.HTTPAddr = httpAddr
			}
			if grpcAddr != "" {
				cfg.Daemon.GRPCAddr = grpcAddr
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			if err := observability.Init(ctx, cfg.Tracing); err != nil {
				return err
			}
			defer shutdownTelemetry()
			if cfg.Metrics.Enabled {
				metrics.InitPrometheus(cfg.Metrics.Namespace, nil)
			}
			if err := logging.Default().Configure(cfg.Daemon.AccessLog); err != nil {
				return err
			}
			defer logging.Default().Close()

			reg, err := openCaches(ctx, cfg.Caches)
			if err != nil {
				return err
			}
			defer reg.Close()

			var authenticator auth.Authenticator
			if cfg.Auth.Enabled {
				a, err := auth.NewJWTAuthenticator(auth.JWTAuthConfig{
					Secret:   cfg.Auth.Secret,
					Issuer:   cfg.Auth.Issuer,
					Audience: cfg.Auth.Audience,
				})
				if err != nil {
					return err
				}
				authenticator = a
				logging.Op().Info("API authentication enabled", "issuer", cfg.Auth.Issuer)
			}

			limiter, closeLimiter := newLimiter(cfg.RateLimit)
			defer closeLimiter()

			httpServer := api.StartHTTPServer(cfg.Daemon.HTTPAddr, api.ServerConfig{
				Bridges:     newResolver(reg),
				Auth:        authenticator,
				RateLimiter: limiter,
				Metrics:     cfg.Metrics.Enabled,
			})

			var health *grpcserver.HealthServer
			if cfg.Daemon.GRPCAddr != "" {
				health = grpcserver.NewHealthServer(grpcserver.Config{Registry: reg})
				if err := health.Start(cfg.Daemon.GRPCAddr); err != nil {
					_ = httpServer.Shutdown(context.Background())
					return err
				}
			}

			logging.Op().Info("cachebridge started", "version", observability.Version, "caches", reg.Configured())

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			select {
			case sig := <-sigCh:
				logging.Op().Info("shutting down", "signal", sig.String())
			case <-ctx.Done():
			}

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil && err != http.ErrServerClosed {
				logging.Op().Error("HTTP shutdown failed", "error", err)
			}
			if health != nil {
				health.Stop()
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&httpAddr, "http", "", "HTTP address (overrides config)")
	cmd.Flags().StringVar(&grpcAddr, "grpc", "", "gRPC health address (overrides config)")

	return cmd
}

func mcpCmd() *cobra.Command {
	var cache string

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the cache tools over MCP on stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			reg, err := openCaches(ctx, cfg.Caches)
			if err != nil {
				return err
			}
			defer reg.Close()

			tools := mcptools.New(newResolver(reg), cache)
			logging.Op().Info("starting MCP server on stdio", "default_cache", cache)
			return server.ServeStdio(mcptools.NewServer(tools, observability.Version))
		},
	}

	cmd.Flags().StringVar(&cache, "cache", config.DefaultCache, "Cache used when a tool call names none")
	return cmd
}

func tokenCmd() *cobra.Command {
	var (
		subject string
		ttl     time.Duration
		caches  []string
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an API bearer token signed with the configured secret",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := auth.NewJWTAuthenticator(auth.JWTAuthConfig{
				Secret:   cfg.Auth.Secret,
				Issuer:   cfg.Auth.Issuer,
				Audience: cfg.Auth.Audience,
			})
			if err != nil {
				return err
			}
			token, err := a.Generate(subject, ttl, caches...)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "cachebridge-cli", "Token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	cmd.Flags().StringSliceVar(&caches, "cache", nil, "Restrict the token to these caches")
	return cmd
}

// newResolver creates bridges that report to the metrics and tracing
// observers.
func newResolver(reg *engine.Registry) *bridge.Resolver {
	return bridge.NewResolver(reg, bridge.WithObserver(bridge.Observers(
		metrics.NewObserver(nil),
		observability.BridgeObserver{},
	)))
}

// newLimiter returns nil when rate limiting is off. With a Redis address
// the buckets are shared and fall back to local ones while Redis is down.
func newLimiter(cfg config.RateLimitConfig) (*ratelimit.Limiter, func()) {
	if !cfg.Enabled {
		return nil, func() {}
	}
	limits := ratelimit.Config{RequestsPerSecond: cfg.RequestsPerSecond, BurstSize: cfg.Burst}
	if cfg.RedisAddr == "" {
		logging.Op().Info("rate limiting enabled", "rps", cfg.RequestsPerSecond, "backend", "local")
		return ratelimit.New(ratelimit.NewLocalTokenBucketBackend(), limits), func() {}
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	backend := ratelimit.NewFallbackBackend(ratelimit.NewRedisBackend(client))
	logging.Op().Info("rate limiting enabled", "rps", cfg.RequestsPerSecond, "backend", "redis", "addr", cfg.RedisAddr)
	return ratelimit.New(backend, limits), func() { _ = client.Close() }
}

func shutdownTelemetry() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := observability.Shutdown(ctx); err != nil {
		logging.Op().Warn("telemetry shutdown failed", "error", err)
	}
}
