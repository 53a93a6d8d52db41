// Package grpc serves the standard gRPC health protocol for every cache
// configuration. The empty service name reports the daemon as a whole and
// each cache is reported under its own name.
package grpc

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/oriys/cachebridge/internal/engine"
	"github.com/oriys/cachebridge/internal/logging"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// Config holds configuration for the health server.
type Config struct {
	Registry *engine.Registry
	// Interval between engine pings. Defaults to 10s.
	Interval time.Duration
	// PingTimeout bounds each ping. Defaults to 2s.
	PingTimeout time.Duration
}

// HealthServer probes cache engines and publishes their status.
type HealthServer struct {
	cfg        Config
	health     *health.Server
	grpcServer *grpc.Server
	listener   net.Listener

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewHealthServer creates the gRPC server with the health and reflection
// services registered.
func NewHealthServer(cfg Config) *HealthServer {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	if cfg.PingTimeout <= 0 {
		cfg.PingTimeout = 2 * time.Second
	}

	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			loggingInterceptor,
			errorHandlingInterceptor,
		),
	)
	hs := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, hs)
	reflection.Register(grpcServer)

	return &HealthServer{
		cfg:        cfg,
		health:     hs,
		grpcServer: grpcServer,
		stop:       make(chan struct{}),
	}
}

// Start probes once, then listens on address and keeps probing in the
// background.
func (s *HealthServer) Start(address string) error {
	s.Probe(context.Background())

	lis, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	s.listener = lis

	go func() {
		if err := s.grpcServer.Serve(lis); err != nil {
			logging.Op().Error("gRPC server error", "error", err)
		}
	}()

	s.wg.Add(1)
	go s.probeLoop()

	logging.Op().Info("gRPC health server started", "address", address)
	return nil
}

func (s *HealthServer) probeLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.Probe(context.Background())
		}
	}
}

// Probe pings every engine and updates the published statuses. The overall
// status is NOT_SERVING when any engine fails.
func (s *HealthServer) Probe(ctx context.Context) {
	overall := grpc_health_v1.HealthCheckResponse_SERVING
	for _, name := range s.cfg.Registry.Configured() {
		status := grpc_health_v1.HealthCheckResponse_SERVING
		e, err := s.cfg.Registry.Engine(name)
		if err == nil {
			pctx, cancel := context.WithTimeout(ctx, s.cfg.PingTimeout)
			err = e.Ping(pctx)
			cancel()
		}
		if err != nil {
			status = grpc_health_v1.HealthCheckResponse_NOT_SERVING
			overall = status
			logging.ForCache(name).Warn("cache engine unhealthy", "error", err)
		}
		s.health.SetServingStatus(name, status)
	}
	s.health.SetServingStatus("", overall)
}

// Check answers a health request without going through the network.
func (s *HealthServer) Check(ctx context.Context, service string) (grpc_health_v1.HealthCheckResponse_ServingStatus, error) {
	resp, err := s.health.Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: service})
	if err != nil {
		return grpc_health_v1.HealthCheckResponse_UNKNOWN, err
	}
	return resp.GetStatus(), nil
}

// Stop gracefully stops the gRPC server
func (s *HealthServer) Stop() {
	select {
	case <-s.stop:
		return
	default:
		close(s.stop)
	}
	s.wg.Wait()
	s.health.Shutdown()
	logging.Op().Info("stopping gRPC server")
	s.grpcServer.GracefulStop()
	if s.listener != nil {
		s.listener.Close()
	}
}
