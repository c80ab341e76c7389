package health

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// NewGRPCServer returns a gRPC server exposing the checker over
// grpc.health.v1.Health.
func NewGRPCServer(c *Checker) *grpc.Server {
	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, c.grpc)
	return srv
}

// ServeGRPC listens on addr and serves the health service until ctx is done.
func ServeGRPC(ctx context.Context, addr string, c *Checker, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen grpc health %s: %w", addr, err)
	}

	srv := NewGRPCServer(c)
	stop := context.AfterFunc(ctx, srv.GracefulStop)
	defer stop()

	logger.Info("gRPC health service listening", "addr", lis.Addr().String())
	if err := srv.Serve(lis); err != nil {
		return fmt.Errorf("serve grpc health: %w", err)
	}
	return nil
}
