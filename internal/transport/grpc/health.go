// Package grpc exposes the catalog's serving status through the standard gRPC health service.
package grpc

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health check name of the catalog. The empty name reports the whole server.
const ServiceName = "catalog"

// ReadinessChecker reports whether the catalog snapshot has been loaded.
type ReadinessChecker interface {
	Ready() bool
}

type Health struct {
	server    *health.Server
	readiness ReadinessChecker
	logger    *slog.Logger
}

// NewHealth creates a health service that starts as NOT_SERVING.
func NewHealth(readiness ReadinessChecker, logger *slog.Logger) *Health {
	h := &Health{
		server:    health.NewServer(),
		readiness: readiness,
		logger:    logger.With("component", "grpc-health"),
	}
	h.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return h
}

// Register adds the health service to s.
func (h *Health) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, h.server)
}

// Watch keeps the reported status in line with the readiness checker until ctx is done,
// then reports NOT_SERVING for good.
func (h *Health) Watch(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	h.sync()
	for {
		select {
		case <-ctx.Done():
			h.Shutdown()
			return ctx.Err()
		case <-ticker.C:
			h.sync()
		}
	}
}

// Shutdown reports NOT_SERVING and ignores any later updates.
func (h *Health) Shutdown() {
	h.logger.Info("gRPC health set to NOT_SERVING for shutdown")
	h.server.Shutdown()
}

func (h *Health) sync() {
	if h.readiness.Ready() {
		h.set(healthpb.HealthCheckResponse_SERVING)
		return
	}
	h.set(healthpb.HealthCheckResponse_NOT_SERVING)
}

func (h *Health) set(status healthpb.HealthCheckResponse_ServingStatus) {
	h.server.SetServingStatus("", status)
	h.server.SetServingStatus(ServiceName, status)
}
