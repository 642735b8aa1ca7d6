package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/core-tools/hsu-spotbot/pkg/logging"
)

type MetricsFormat string

const (
	// MetricsFormatJSON is the Graphite HTTP API JSON array
	MetricsFormatJSON MetricsFormat = "json"
	// MetricsFormatGraphite is the legacy "<name> <value> <timestamp>" line protocol
	MetricsFormatGraphite MetricsFormat = "graphite"
)

// GrafanaConfig points at a Grafana Cloud Graphite push endpoint
type GrafanaConfig struct {
	URL    string
	User   string
	Token  string
	Format MetricsFormat
}

type grafanaSample struct {
	Name     string `json:"name"`
	Value    int    `json:"value"`
	Time     int64  `json:"time"`
	Interval int    `json:"interval"`
}

type grafanaSink struct {
	config GrafanaConfig
	poster *poster
	logger logging.Logger
}

// NewGrafanaSink returns a no-op sink when no URL is configured
func NewGrafanaSink(config GrafanaConfig, options HTTPOptions, logger logging.Logger) MetricsSink {
	if config.URL == "" {
		return NopMetricsSink()
	}
	if config.Format == "" {
		config.Format = MetricsFormatJSON
	}
	return &grafanaSink{
		config: config,
		poster: newPoster(options, true, logger),
		logger: logger,
	}
}

func (s *grafanaSink) Push(ctx context.Context, sample Sample) {
	body, contentType, err := encodeSample(s.config.Format, sample)
	if err != nil {
		s.logger.Errorf("Failed to encode metrics sample, metric: %s, error: %v", sample.Name, err)
		return
	}

	err = s.poster.post(ctx, s.config.URL, contentType, body, s.authorize)
	if err != nil {
		s.logger.Errorf("Failed to push metrics sample, metric: %s, value: %d, error: %v", sample.Name, sample.Value, err)
		return
	}
	s.logger.Debugf("Metrics sample pushed, metric: %s, value: %d", sample.Name, sample.Value)
}

func (s *grafanaSink) authorize(req *http.Request) {
	switch {
	case s.config.User != "":
		req.SetBasicAuth(s.config.User, s.config.Token)
	case s.config.Token != "":
		req.Header.Set("Authorization", "Bearer "+s.config.Token)
	}
}

func encodeSample(format MetricsFormat, sample Sample) ([]byte, string, error) {
	switch format {
	case MetricsFormatJSON:
		body, err := json.Marshal([]grafanaSample{{
			Name:     sample.Name,
			Value:    sample.Value,
			Time:     sample.Time.Unix(),
			Interval: int(sample.Interval.Seconds()),
		}})
		return body, "application/json", err
	case MetricsFormatGraphite:
		line := fmt.Sprintf("%s %d %d", sample.Name, sample.Value, sample.Time.Unix())
		return []byte(line), "text/plain", nil
	default:
		return nil, "", fmt.Errorf("unsupported metrics format: %s", format)
	}
}
