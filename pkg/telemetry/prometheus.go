package telemetry

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/core-tools/hsu-spotbot/pkg/errors"
	"github.com/core-tools/hsu-spotbot/pkg/logging"
	"github.com/core-tools/hsu-spotbot/pkg/notify"
)

const shutdownTimeout = 5 * time.Second

// PrometheusSink mirrors pushed samples into a scrapeable registry
type PrometheusSink struct {
	registry *prometheus.Registry
	up       *prometheus.GaugeVec
	samples  *prometheus.CounterVec
	lastSeen *prometheus.GaugeVec
}

func NewPrometheusSink() *PrometheusSink {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	return &PrometheusSink{
		registry: registry,
		up: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "spotbot",
			Name:      "vm_up",
			Help:      "Last observed availability of the monitored VM (1 running, 0 otherwise)",
		}, []string{"metric"}),
		samples: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "spotbot",
			Name:      "samples_total",
			Help:      "Samples emitted, by value",
		}, []string{"metric", "value"}),
		lastSeen: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "spotbot",
			Name:      "last_sample_timestamp_seconds",
			Help:      "Unix time of the last emitted sample",
		}, []string{"metric"}),
	}
}

func (s *PrometheusSink) Push(_ context.Context, sample notify.Sample) {
	s.up.WithLabelValues(sample.Name).Set(float64(sample.Value))
	s.samples.WithLabelValues(sample.Name, strconv.Itoa(sample.Value)).Inc()
	s.lastSeen.WithLabelValues(sample.Name).Set(float64(sample.Time.Unix()))
}

func (s *PrometheusSink) Registry() *prometheus.Registry {
	return s.registry
}

func (s *PrometheusSink) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
}

// Server exposes /metrics until its context is done
type Server struct {
	listener net.Listener
	server   *http.Server
	logger   logging.Logger
}

// Listen binds addr; use Addr to learn the port when addr ends in ":0"
func Listen(addr string, sink *PrometheusSink, logger logging.Logger) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.NewNetworkError("failed to listen for metrics scrapes", err).WithContext("addr", addr)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", sink.Handler())
	return &Server{
		listener: listener,
		server:   &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		logger:   logger,
	}, nil
}

func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Close releases the listener of a server that was never served
func (s *Server) Close() error {
	return s.listener.Close()
}

// Serve blocks until ctx is done, then shuts the server down
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Infof("Serving Prometheus metrics, addr: %s", s.Addr())

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.server.Serve(s.listener)
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return errors.NewNetworkError("metrics server failed", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		s.logger.Warnf("Metrics server shutdown: %v", err)
	}
	s.logger.Infof("Prometheus metrics server stopped")
	return nil
}
