package healthcheck

import (
	"context"
	"log/slog"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/becomeliminal/nim-memory/logging"
	"github.com/becomeliminal/nim-memory/memory"
)

// GRPC checks a remote service through the standard gRPC health protocol.
type GRPC struct {
	conn    *grpc.ClientConn
	client  healthpb.HealthClient
	service string
}

// DialGRPC connects to target without TLS. Extra options are appended,
// so callers can override transport credentials.
func DialGRPC(target, service string, opts ...grpc.DialOption) (*GRPC, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create grpc client", goerr.V("target", target))
	}
	return &GRPC{
		conn:    conn,
		client:  healthpb.NewHealthClient(conn),
		service: service,
	}, nil
}

// HealthCheck passes when the service reports SERVING.
func (g *GRPC) HealthCheck(ctx context.Context) error {
	resp, err := g.client.Check(ctx, &healthpb.HealthCheckRequest{Service: g.service})
	if err != nil {
		return goerr.Wrap(err, "grpc health check failed",
			goerr.V("service", g.service), goerr.T(memory.ErrTagStoreUnavailable))
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return goerr.New("service not serving",
			goerr.V("service", g.service), goerr.V("status", resp.GetStatus().String()), goerr.T(memory.ErrTagStoreUnavailable))
	}
	return nil
}

// Close closes the connection.
func (g *GRPC) Close() error {
	return g.conn.Close()
}

// Publisher mirrors a memory.Manager's availability onto a gRPC health
// server. An unchecked probe is reported as NOT_SERVING until a check runs.
type Publisher struct {
	server   *health.Server
	service  string
	manager  memory.Manager
	interval time.Duration
	logger   *slog.Logger
}

// NewPublisher creates a publisher for service. Register it on a grpc.Server
// and then call Run.
func NewPublisher(service string, manager memory.Manager, interval time.Duration) *Publisher {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Publisher{
		server:   health.NewServer(),
		service:  service,
		manager:  manager,
		interval: interval,
		logger:   logging.Default(),
	}
}

// Register attaches the health service to s.
func (p *Publisher) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, p.server)
}

// Update publishes the current availability once.
func (p *Publisher) Update() {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if p.manager.Availability() == memory.ProbeAvailable {
		status = healthpb.HealthCheckResponse_SERVING
	}
	p.server.SetServingStatus(p.service, status)
}

// Run publishes availability every interval until ctx ends, then marks the
// service as shutting down.
func (p *Publisher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.Update()
	for {
		select {
		case <-ctx.Done():
			p.server.Shutdown()
			p.logger.Debug("grpc health publisher stopped")
			return
		case <-ticker.C:
			p.Update()
		}
	}
}

var _ memory.HealthChecker = (*GRPC)(nil)
