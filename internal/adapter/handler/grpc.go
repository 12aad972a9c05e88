package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
)

const healthService = "callshield.reputation"

// HealthServer implements grpc.health.v1 for orchestrators. It reports
// SERVING while the database answers pings and the server is not draining.
type HealthServer struct {
	healthpb.UnimplementedHealthServer

	db       Pinger
	draining atomic.Bool
	server   *grpc.Server
	logger   *slog.Logger
}

func NewHealthServer(db Pinger, logger *slog.Logger) *HealthServer {
	h := &HealthServer{
		db:     db,
		server: grpc.NewServer(),
		logger: logger.With("component", "grpc_health"),
	}
	healthpb.RegisterHealthServer(h.server, h)
	reflection.Register(h.server)
	return h
}

func (h *HealthServer) Check(ctx context.Context, req *healthpb.HealthCheckRequest) (*healthpb.HealthCheckResponse, error) {
	if svc := req.GetService(); svc != "" && svc != healthService {
		return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_SERVICE_UNKNOWN}, nil
	}
	if h.draining.Load() {
		return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_NOT_SERVING}, nil
	}

	if h.db != nil {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := h.db.Ping(pingCtx); err != nil {
			h.logger.WarnContext(ctx, "database ping failed", "error", err)
			return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_NOT_SERVING}, nil
		}
	}
	return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_SERVING}, nil
}

func (h *HealthServer) Watch(_ *healthpb.HealthCheckRequest, _ grpc.ServerStreamingServer[healthpb.HealthCheckResponse]) error {
	return status.Error(codes.Unimplemented, "health watch not supported")
}

// Serve blocks until the listener fails or Stop is called.
func (h *HealthServer) Serve(lis net.Listener) error {
	h.logger.Info("grpc health server listening", "addr", lis.Addr().String())
	if err := h.server.Serve(lis); err != nil && err != grpc.ErrServerStopped {
		return fmt.Errorf("grpc health server: %w", err)
	}
	return nil
}

// Drain flips the reported status to NOT_SERVING ahead of shutdown.
func (h *HealthServer) Drain() {
	h.draining.Store(true)
}

func (h *HealthServer) Stop(ctx context.Context) {
	h.Drain()

	stopped := make(chan struct{})
	go func() {
		h.server.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-ctx.Done():
		h.logger.Warn("grpc graceful stop timed out, forcing stop")
		h.server.Stop()
	}
}
