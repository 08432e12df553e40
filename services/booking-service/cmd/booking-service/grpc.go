package main

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/md-rashed-zaman/studiobook/libs/config"
	"github.com/md-rashed-zaman/studiobook/libs/grpcx"
	"github.com/md-rashed-zaman/studiobook/libs/runtime"
)

// startGrpcServer exposes the standard health service, fed by the same
// readiness checks as /readyz.
func startGrpcServer(ctx context.Context, logger *slog.Logger, checks []runtime.ReadyCheck) error {
	port, err := config.Port("GRPC_PORT", "9093")
	if err != nil {
		return err
	}
	lis, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return err
	}

	srv := grpcx.NewServer()
	health := grpcx.RegisterHealth(srv, "studiobook.booking", func(ctx context.Context) error {
		return runtime.CheckAll(ctx, checks...)
	}, logger)
	go health.Run(ctx, 10*time.Second)

	go func() {
		logger.Info("grpc server starting", "addr", lis.Addr().String())
		if err := srv.Serve(lis); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()

	go func() {
		<-ctx.Done()
		srv.GracefulStop()
	}()

	return nil
}
