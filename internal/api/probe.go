package api

import (
	"context"
	"fmt"
	"net"

	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ProbeServer runs the gRPC health-check listener consumed by orchestration
// probes. Its serving status follows the pipeline's connectivity diagnostics.
type ProbeServer struct {
	grpcServer *grpc.Server
	listener   net.Listener
	health     *health.Server
}

// NewProbeServer constructs a gRPC server exposing only the standard health
// service, instrumented with the prometheus interceptors.
func NewProbeServer(address string, opts ...grpc.ServerOption) (*ProbeServer, error) {
	lis, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", address, err)
	}

	serverOpts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(grpc_prometheus.UnaryServerInterceptor),
		grpc.ChainStreamInterceptor(grpc_prometheus.StreamServerInterceptor),
	}
	serverOpts = append(serverOpts, opts...)
	grpcServer := grpc.NewServer(serverOpts...)

	healthSrv := health.NewServer()
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthSrv)
	grpc_prometheus.Register(grpcServer)

	// Enable server reflection so probe tooling can discover the service.
	reflection.Register(grpcServer)

	return &ProbeServer{
		grpcServer: grpcServer,
		listener:   lis,
		health:     healthSrv,
	}, nil
}

// Start serves probe requests until Shutdown is invoked.
func (p *ProbeServer) Start() error {
	if p.grpcServer == nil || p.listener == nil {
		return fmt.Errorf("probe server not initialised")
	}
	return p.grpcServer.Serve(p.listener)
}

// SetServing flips the health service between SERVING and NOT_SERVING.
func (p *ProbeServer) SetServing(ok bool) {
	status := healthpb.HealthCheckResponse_SERVING
	if !ok {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	p.health.SetServingStatus("", status)
}

// Shutdown attempts a graceful stop, falling back to a hard stop when ctx
// expires first.
func (p *ProbeServer) Shutdown(ctx context.Context) {
	if p.grpcServer == nil {
		return
	}

	stopped := make(chan struct{})
	go func() {
		p.grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-ctx.Done():
		p.grpcServer.Stop()
	case <-stopped:
	}
}

// Address exposes the bound listener address (useful for tests).
func (p *ProbeServer) Address() string {
	if p.listener == nil {
		return ""
	}
	return p.listener.Addr().String()
}
