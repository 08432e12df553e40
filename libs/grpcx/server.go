package grpcx

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// NewServer builds a gRPC server with OpenTelemetry instrumentation.
func NewServer(extra ...grpc.ServerOption) *grpc.Server {
	opts := []grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
	}
	opts = append(opts, extra...)
	return grpc.NewServer(opts...)
}

// HealthReporter keeps the standard gRPC health service in sync with a readiness probe.
type HealthReporter struct {
	server  *health.Server
	service string
	check   func(context.Context) error
	logger  *slog.Logger

	mu   sync.Mutex
	last healthpb.HealthCheckResponse_ServingStatus
}

func RegisterHealth(s *grpc.Server, service string, check func(context.Context) error, logger *slog.Logger) *HealthReporter {
	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	return &HealthReporter{
		server:  hs,
		service: service,
		check:   check,
		logger:  logger,
		last:    healthpb.HealthCheckResponse_SERVICE_UNKNOWN,
	}
}

// Refresh runs the probe once and publishes the result for the service and
// the server as a whole. Only status changes are logged.
func (h *HealthReporter) Refresh(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	var checkErr error
	if h.check != nil {
		checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		checkErr = h.check(checkCtx)
		cancel()
		if checkErr != nil {
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	h.server.SetServingStatus("", status)
	h.server.SetServingStatus(h.service, status)

	h.mu.Lock()
	prev := h.last
	h.last = status
	h.mu.Unlock()

	if prev != status && h.logger != nil {
		if checkErr != nil {
			h.logger.Warn("grpc health changed", "service", h.service, "status", status.String(), "err", checkErr)
		} else {
			h.logger.Info("grpc health changed", "service", h.service, "status", status.String())
		}
	}
	return status
}

// Run refreshes the health status every interval until ctx is done, then marks it NOT_SERVING.
func (h *HealthReporter) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	h.Refresh(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			h.server.Shutdown()
			return
		case <-ticker.C:
			h.Refresh(ctx)
		}
	}
}
