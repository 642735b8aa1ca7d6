package control

import (
	"context"
	"time"

	"github.com/avast/retry-go/v4"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/core-tools/hsu-spotbot/pkg/errors"
	"github.com/core-tools/hsu-spotbot/pkg/logging"
)

// Contract is what a client can ask a running bot
type Contract interface {
	Ping(ctx context.Context) error
	Status(ctx context.Context) (string, error)
}

type RetryPingOptions struct {
	RetryAttempts uint
	RetryInterval time.Duration
}

// Dial connects to a bot listening on the local control port
func Dial(address string) (*grpc.ClientConn, error) {
	conn, err := grpc.NewClient(address, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, errors.NewNetworkError("failed to create control connection", err).WithContext("address", address)
	}
	return conn, nil
}

func NewGRPCClientGateway(grpcClientConnection grpc.ClientConnInterface, logger logging.Logger) Contract {
	return &grpcClientGateway{
		grpcClient: healthpb.NewHealthClient(grpcClientConnection),
		logger:     logger,
	}
}

type grpcClientGateway struct {
	grpcClient healthpb.HealthClient
	logger     logging.Logger
}

func (gw *grpcClientGateway) Ping(ctx context.Context) error {
	response, err := gw.grpcClient.Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		gw.logger.Debugf("Ping client gateway: %v", err)
		return errors.NewNetworkError("ping failed", err)
	}
	if response.Status != healthpb.HealthCheckResponse_SERVING {
		return errors.NewNetworkError("bot is not serving", nil).WithContext("status", response.Status.String())
	}
	gw.logger.Debugf("Ping client gateway done")
	return nil
}

// Status returns the VM service status name, e.g. SERVING or NOT_SERVING
func (gw *grpcClientGateway) Status(ctx context.Context) (string, error) {
	response, err := gw.grpcClient.Check(ctx, &healthpb.HealthCheckRequest{Service: VMService})
	if err != nil {
		gw.logger.Errorf("Status client gateway: %v", err)
		return "", errors.NewNetworkError("status request failed", err)
	}
	gw.logger.Debugf("Status client gateway done")
	return response.Status.String(), nil
}

// RetryPing waits for a freshly started bot to come up
func RetryPing(ctx context.Context, contract Contract, options RetryPingOptions, logger logging.Logger) error {
	return retry.Do(
		func() error { return contract.Ping(ctx) },
		retry.Context(ctx),
		retry.Attempts(options.RetryAttempts),
		retry.Delay(options.RetryInterval),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(attempt uint, err error) {
			logger.Infof("Ping attempt %d failed: %v", attempt+1, err)
		}),
	)
}
