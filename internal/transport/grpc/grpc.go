package grpctransport

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/spf13/viper"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the health-checked service in addition to the server as a whole.
const ServiceName = "storefront.OrderService"

// pinger reports whether storage is reachable.
type pinger interface {
	Ping(ctx context.Context) error
}

// GRPCTransport serves the standard health service, reporting SERVING only
// while the connection pool answers pings.
type GRPCTransport struct {
	server   *grpc.Server
	listener net.Listener
	health   *health.Server
	storage  pinger
	interval time.Duration
}

// NewGRPCTransport creates a new GRPCTransport.
func NewGRPCTransport(storage pinger) *GRPCTransport {
	listener, err := net.Listen("tcp", ":"+viper.GetString("server.grpc.port"))
	if err != nil {
		panic(err)
	}

	return newTransport(listener, storage, viper.GetDuration("server.grpc.health_interval"))
}

func newTransport(listener net.Listener, storage pinger, interval time.Duration) *GRPCTransport {
	if interval <= 0 {
		interval = 5 * time.Second
	}

	g := &GRPCTransport{
		server:   newGRPCServer(),
		listener: listener,
		health:   health.NewServer(),
		storage:  storage,
		interval: interval,
	}
	g.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)

	return g
}

// Run starts the gRPC server and the health watcher.
func (g *GRPCTransport) Run(ctx context.Context) error {
	g.RegisterServices()
	go g.watchHealth(ctx)

	slog.Info("Starting gRPC server", "address", g.listener.Addr().String())

	return g.server.Serve(g.listener)
}

// Shutdown gracefully shuts down the gRPC server.
func (g *GRPCTransport) Shutdown(ctx context.Context) error {
	g.health.Shutdown()

	done := make(chan struct{})
	go func() {
		g.server.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		g.server.Stop()

		return ctx.Err()
	}
}

// RegisterServices registers the gRPC services.
func (g *GRPCTransport) RegisterServices() {
	healthpb.RegisterHealthServer(g.server, g.health)
	reflection.Register(g.server)
}

func (g *GRPCTransport) watchHealth(ctx context.Context) {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	g.checkHealth(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.checkHealth(ctx)
		}
	}
}

// checkHealth pings storage once and publishes the result.
func (g *GRPCTransport) checkHealth(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, g.interval)
	defer cancel()

	if err := g.storage.Ping(ctx); err != nil {
		slog.Warn("Storage ping failed", "error", err)
		g.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)

		return
	}

	g.setStatus(healthpb.HealthCheckResponse_SERVING)
}

func (g *GRPCTransport) setStatus(status healthpb.HealthCheckResponse_ServingStatus) {
	g.health.SetServingStatus("", status)
	g.health.SetServingStatus(ServiceName, status)
}

// newGRPCServer creates a new gRPC server with default settings.
func newGRPCServer() *grpc.Server {
	keepaliveParams := keepalive.ServerParameters{
		MaxConnectionIdle: time.Duration(
			viper.GetInt("server.grpc.keepalive.max_connection_idle"),
		) * time.Minute,
		MaxConnectionAge: time.Duration(
			viper.GetInt("server.grpc.keepalive.max_connection_age"),
		) * time.Minute,
		MaxConnectionAgeGrace: time.Duration(
			viper.GetInt("server.grpc.keepalive.max_connection_age_grace"),
		) * time.Second,
		Time: time.Duration(
			viper.GetInt("server.grpc.keepalive.time"),
		) * time.Second,
		Timeout: time.Duration(
			viper.GetInt("server.grpc.keepalive.timeout"),
		) * time.Second,
	}

	keepalivePolicy := keepalive.EnforcementPolicy{
		MinTime: time.Duration(
			viper.GetInt("server.grpc.keepalive.min_time"),
		) * time.Second,
		PermitWithoutStream: viper.GetBool("server.grpc.keepalive.permit_without_stream"),
	}

	opts := []grpc.ServerOption{
		grpc.KeepaliveParams(keepaliveParams),
		grpc.KeepaliveEnforcementPolicy(keepalivePolicy),
	}

	return grpc.NewServer(opts...)
}
