package control

import (
	"context"
	"fmt"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/core-tools/hsu-spotbot/pkg/errors"
	"github.com/core-tools/hsu-spotbot/pkg/logging"
	"github.com/core-tools/hsu-spotbot/pkg/monitoring"
	"github.com/core-tools/hsu-spotbot/pkg/notify"
)

// VMService is the health service name reflecting the last VM sample.
// The empty service name reports the bot process itself.
const VMService = "spotbot.vm"

// Server answers grpc.health.v1 checks for the bot
type Server struct {
	listener net.Listener
	grpc     *grpc.Server
	health   *health.Server
	logger   logging.Logger
}

func Listen(port int, logger logging.Logger) (*Server, error) {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, errors.NewNetworkError("failed to listen for control connections", err).WithContext("port", port)
	}

	server := &Server{
		listener: listener,
		grpc:     grpc.NewServer(),
		health:   health.NewServer(),
		logger:   logger,
	}
	// Nothing is known about the VM before the first sample
	server.health.SetServingStatus(VMService, healthpb.HealthCheckResponse_UNKNOWN)
	RegisterGRPCServerHandler(server.grpc, server.health, logger)
	return server, nil
}

// RegisterGRPCServerHandler exposes health on the given registrar
func RegisterGRPCServerHandler(grpcServerRegistrar grpc.ServiceRegistrar, handler healthpb.HealthServer, logger logging.Logger) {
	healthpb.RegisterHealthServer(grpcServerRegistrar, handler)
	logger.Debugf("Health service registered")
}

func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Close releases the listener of a server that was never served
func (s *Server) Close() error {
	return s.listener.Close()
}

func (s *Server) Port() int {
	return s.listener.Addr().(*net.TCPAddr).Port
}

// Sink returns a metrics sink driving the VM service status
func (s *Server) Sink() notify.MetricsSink {
	return &healthSink{health: s.health, logger: s.logger}
}

// Serve blocks until ctx is done, then stops gracefully
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Infof("Serving control, addr: %s", s.Addr())

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.grpc.Serve(s.listener)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return errors.NewNetworkError("control server failed", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.health.Shutdown()
	s.grpc.GracefulStop()
	s.logger.Infof("Control server stopped")
	return nil
}

type healthSink struct {
	health *health.Server
	logger logging.Logger
}

func (h *healthSink) Push(_ context.Context, sample notify.Sample) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if sample.Value == monitoring.SampleUp {
		status = healthpb.HealthCheckResponse_SERVING
	}
	h.health.SetServingStatus(VMService, status)
	h.logger.Debugf("Health status updated, service: %s, status: %s", VMService, status)
}
