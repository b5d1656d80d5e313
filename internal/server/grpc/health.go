// Package grpcserver runs the gRPC side listener that reports store health
// through the standard grpc.health.v1 service.
package grpcserver

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the health service name reported alongside the server-wide "" entry.
const ServiceName = "passvault.v1.CredentialStore"

// Health drives grpc health status from a periodic store ping.
type Health struct {
	hs       *health.Server
	ping     func(ctx context.Context) error
	interval time.Duration
	log      *zap.Logger
	onChange func(up bool)

	up bool
}

// NewHealth constructs a Health that starts in NOT_SERVING until the first ping.
// onChange may be nil.
func NewHealth(ping func(ctx context.Context) error, interval time.Duration, log *zap.Logger, onChange func(up bool)) *Health {
	if onChange == nil {
		onChange = func(bool) {}
	}
	h := &Health{hs: health.NewServer(), ping: ping, interval: interval, log: log, onChange: onChange}
	h.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return h
}

// Register attaches the health service to s.
func (h *Health) Register(s *grpc.Server) { healthpb.RegisterHealthServer(s, h.hs) }

// Check pings the store once and updates the reported status.
func (h *Health) Check(ctx context.Context) bool {
	timeout := h.interval
	if timeout <= 0 || timeout > 5*time.Second {
		timeout = 5 * time.Second
	}
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := h.ping(pctx)
	up := err == nil
	if up != h.up {
		if up {
			h.log.Info("store reachable")
		} else {
			h.log.Warn("store unreachable", zap.Error(err))
		}
	}
	h.up = up
	if up {
		h.set(healthpb.HealthCheckResponse_SERVING)
	} else {
		h.set(healthpb.HealthCheckResponse_NOT_SERVING)
	}
	h.onChange(up)
	return up
}

// Run checks immediately, then every interval until ctx is done, and finally
// marks everything NOT_SERVING so in-flight probes see the shutdown.
func (h *Health) Run(ctx context.Context) {
	h.Check(ctx)
	t := time.NewTicker(h.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			h.hs.Shutdown()
			return
		case <-t.C:
			h.Check(ctx)
		}
	}
}

func (h *Health) set(st healthpb.HealthCheckResponse_ServingStatus) {
	h.hs.SetServingStatus("", st)
	h.hs.SetServingStatus(ServiceName, st)
}

// NewServer builds a gRPC server with recovery and logging interceptors and the
// health service registered. Reflection is enabled in dev mode.
func NewServer(log *zap.Logger, h *Health, dev bool, opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts,
		grpc.ChainUnaryInterceptor(RecoverUnary(log), LoggingUnary(log)),
		grpc.ChainStreamInterceptor(RecoverStream(log), LoggingStream(log)),
	)
	s := grpc.NewServer(opts...)
	h.Register(s)
	if dev {
		reflection.Register(s)
	}
	return s
}
