// ABOUTME: Optional gRPC server exposing the standard health checking service
// ABOUTME: Lets orchestrators probe coven-chat over gRPC alongside the HTTP /health endpoints

package gateway

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
)

// ServiceName is the service name reported by the gRPC health service.
const ServiceName = "coven.chat.v1.Chat"

// healthServer wraps a gRPC server that only serves grpc.health.v1.Health.
type healthServer struct {
	server *grpc.Server
	health *health.Server
	logger *slog.Logger
}

// newHealthServer creates the gRPC server and registers the health service.
// Both the overall status and ServiceName start as NOT_SERVING.
func newHealthServer(logger *slog.Logger) *healthServer {
	server := grpc.NewServer(
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    15 * time.Second,
			Timeout: 5 * time.Second,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             5 * time.Second,
			PermitWithoutStream: true,
		}),
	)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(server, hs)

	h := &healthServer{server: server, health: hs, logger: logger}
	h.setServing(false)
	return h
}

// setServing updates the reported status for the whole server and for ServiceName.
func (h *healthServer) setServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	h.health.SetServingStatus("", status)
	h.health.SetServingStatus(ServiceName, status)
	h.logger.Debug("health status changed", "status", status.String())
}

// shutdown marks the service as not serving and stops the server,
// force-stopping if ctx expires before in-flight RPCs finish.
func (h *healthServer) shutdown(ctx context.Context) {
	h.health.Shutdown()

	stopped := make(chan struct{})
	go func() {
		h.server.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-ctx.Done():
		h.server.Stop()
	}
}
