package grpcx

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func TestHealthReporterRefresh(t *testing.T) {
	var failing error
	s := NewServer()
	h := RegisterHealth(s, "studiobook.booking", func(context.Context) error { return failing }, nil)

	if got := h.Refresh(context.Background()); got != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("expected SERVING, got %s", got)
	}
	resp, err := h.server.Check(context.Background(), &healthpb.HealthCheckRequest{Service: "studiobook.booking"})
	if err != nil || resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("unexpected health %v (%v)", resp.GetStatus(), err)
	}

	failing = errors.New("db down")
	if got := h.Refresh(context.Background()); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("expected NOT_SERVING, got %s", got)
	}
	resp, err = h.server.Check(context.Background(), &healthpb.HealthCheckRequest{})
	if err != nil || resp.GetStatus() != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("unexpected overall health %v (%v)", resp.GetStatus(), err)
	}
}

func TestHealthReporterLogsTransitionsOnly(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	failing := errors.New("kafka: dial tcp: refused")
	h := RegisterHealth(NewServer(), "studiobook.booking", func(context.Context) error { return failing }, logger)

	h.Refresh(context.Background())
	h.Refresh(context.Background())
	if n := strings.Count(buf.String(), "grpc health changed"); n != 1 {
		t.Fatalf("expected one transition log, got %d:\n%s", n, buf.String())
	}

	failing = nil
	h.Refresh(context.Background())
	if !strings.Contains(buf.String(), "status=SERVING") {
		t.Fatalf("expected recovery to be logged:\n%s", buf.String())
	}
}
