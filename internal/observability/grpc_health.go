package observability

import (
	"context"
	"fmt"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// GRPCHealthServer exposes the readiness checks over the standard gRPC health protocol
type GRPCHealthServer struct {
	server   *grpc.Server
	health   *health.Server
	checks   map[string]HealthCheckFunc
	interval time.Duration
}

// NewGRPCHealthServer creates a gRPC health server that re-evaluates checks every interval
func NewGRPCHealthServer(checks map[string]HealthCheckFunc, interval time.Duration) *GRPCHealthServer {
	if interval <= 0 {
		interval = 10 * time.Second
	}

	srv := grpc.NewServer()
	hs := health.NewServer()
	grpc_health_v1.RegisterHealthServer(srv, hs)

	return &GRPCHealthServer{
		server:   srv,
		health:   hs,
		checks:   checks,
		interval: interval,
	}
}

// Serve listens on addr until ctx is done
func (g *GRPCHealthServer) Serve(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen for gRPC health on %s: %w", addr, err)
	}
	return g.ServeListener(ctx, lis)
}

// ServeListener serves on an existing listener until ctx is done
func (g *GRPCHealthServer) ServeListener(ctx context.Context, lis net.Listener) error {
	g.refresh(ctx)

	go func() {
		ticker := time.NewTicker(g.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				g.health.Shutdown()
				g.server.GracefulStop()
				return
			case <-ticker.C:
				g.refresh(ctx)
			}
		}
	}()

	logger := GetLogger()
	logger.Info().Str("addr", lis.Addr().String()).Msg("gRPC health server listening")

	if err := g.server.Serve(lis); err != nil && err != grpc.ErrServerStopped {
		return fmt.Errorf("gRPC health server failed: %w", err)
	}
	return nil
}

func (g *GRPCHealthServer) refresh(ctx context.Context) {
	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, healthy := CheckDependencies(checkCtx, g.checks)

	status := grpc_health_v1.HealthCheckResponse_SERVING
	if !healthy {
		status = grpc_health_v1.HealthCheckResponse_NOT_SERVING
	}
	g.health.SetServingStatus("", status)
	g.health.SetServingStatus(serviceName, status)
}
