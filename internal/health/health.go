// Package health exposes the monitor's state over the standard gRPC health
// checking protocol.
package health

import (
	"context"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is SERVING while the payment status monitor runs.
const ServiceName = "masumi.PaymentMonitor"

// MonitorState is satisfied by *payment.Tracker.
type MonitorState interface {
	Monitoring() bool
}

type Server struct {
	grpc   *grpc.Server
	health *health.Server
	log    *zap.Logger
}

func NewServer(log *zap.Logger) *Server {
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	gs := grpc.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	return &Server{grpc: gs, health: hs, log: log}
}

// SetMonitoring updates the monitor service status.
func (s *Server) SetMonitoring(running bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if running {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(ServiceName, status)
}

// Sync mirrors src into the health status every interval until ctx ends.
func (s *Server) Sync(ctx context.Context, src MonitorState, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := src.Monitoring()
	s.SetMonitoring(last)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if now := src.Monitoring(); now != last {
				s.log.Info("monitor health changed", zap.Bool("serving", now))
				s.SetMonitoring(now)
				last = now
			}
		}
	}
}

func (s *Server) Serve(lis net.Listener) error {
	return s.grpc.Serve(lis)
}

// Stop marks every service NOT_SERVING and drains open streams.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
