package config

import (
	"fmt"
	"math"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/vrischmann/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/core-tools/hsu-spotbot/pkg/compute"
	"github.com/core-tools/hsu-spotbot/pkg/errors"
	"github.com/core-tools/hsu-spotbot/pkg/logging"
	"github.com/core-tools/hsu-spotbot/pkg/notify"
)

const (
	DefaultCheckInterval = 60 * time.Second
	DefaultEnvFile       = ".env"
)

// Config is read once at startup. Every key can come from the YAML file or the
// environment; the environment wins.
type Config struct {
	// Target
	ResourceGroup string `yaml:"resource_group" envconfig:"AZURE_RESOURCE_GROUP"`
	VMName        string `yaml:"vm_name" envconfig:"AZURE_VM_NAME"`

	// Kept as text so that garbage falls back to the default instead of failing startup
	CheckIntervalSeconds string `yaml:"check_interval_seconds" envconfig:"CHECK_INTERVAL_SECONDS"`

	// Azure credentials
	TenantID       string        `yaml:"tenant_id" envconfig:"AZURE_TENANT_ID"`
	ClientID       string        `yaml:"client_id" envconfig:"AZURE_CLIENT_ID"`
	ClientSecret   string        `yaml:"client_secret" envconfig:"AZURE_CLIENT_SECRET"`
	SubscriptionID string        `yaml:"subscription_id" envconfig:"AZURE_SUBSCRIPTION_ID"`
	StartTimeout   time.Duration `yaml:"start_timeout" envconfig:"START_TIMEOUT"`

	// Metrics
	GrafanaURI    string `yaml:"grafana_uri" envconfig:"GRAFANA_URI"`
	GrafanaUser   string `yaml:"grafana_user" envconfig:"GRAFANA_USER"`
	GrafanaToken  string `yaml:"grafana_token" envconfig:"GRAFANA_TOKEN"`
	MetricsFormat string `yaml:"metrics_format" envconfig:"METRICS_FORMAT"`

	// Alerts
	TeamsWebhookURL string `yaml:"teams_webhook_url" envconfig:"TEAMS_WEBHOOK_URL"`
	AlertFormat     string `yaml:"alert_format" envconfig:"ALERT_FORMAT"`

	// Sink transport
	HTTPTimeout       time.Duration `yaml:"http_timeout" envconfig:"HTTP_TIMEOUT"`
	SinkRetryAttempts uint          `yaml:"sink_retry_attempts" envconfig:"SINK_RETRY_ATTEMPTS"`

	// Local endpoints, disabled when empty
	PrometheusListenAddr string `yaml:"prometheus_listen_addr" envconfig:"PROMETHEUS_LISTEN_ADDR"`
	ControlPort          int    `yaml:"control_port" envconfig:"CONTROL_PORT"`

	LogLevel  string `yaml:"log_level" envconfig:"LOG_LEVEL"`
	LogFormat string `yaml:"log_format" envconfig:"LOG_FORMAT"`
}

// LoadOptions selects the optional file sources
type LoadOptions struct {
	ConfigFile string
	// EnvFile is loaded if it exists; variables already set in the process win
	EnvFile string
}

// Load merges defaults, the YAML file, the .env file and the environment
func Load(options LoadOptions) (*Config, error) {
	config := &Config{}
	if options.ConfigFile != "" {
		fileConfig, err := LoadConfigFromFile(options.ConfigFile)
		if err != nil {
			return nil, err
		}
		config = fileConfig
	}

	if options.EnvFile != "" {
		if err := loadEnvFile(options.EnvFile); err != nil {
			return nil, err
		}
	}

	envConfig, err := LoadFromEnv()
	if err != nil {
		return nil, err
	}
	overlay(config, envConfig)

	setConfigDefaults(config)
	return config, nil
}

// LoadConfigFromFile reads a YAML configuration file
func LoadConfigFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.NewConfigurationError("failed to read configuration file", err).WithContext("filename", filename)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, errors.NewValidationError("failed to parse YAML configuration", err).WithContext("filename", filename)
	}
	return &config, nil
}

// LoadFromEnv reads every key from the process environment, all of them optional
func LoadFromEnv() (*Config, error) {
	var config Config
	if err := envconfig.InitWithOptions(&config, envconfig.Options{AllOptional: true}); err != nil {
		return nil, errors.NewValidationError("failed to parse environment configuration", err)
	}
	return &config, nil
}

func loadEnvFile(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.NewConfigurationError("failed to stat env file", err).WithContext("filename", path)
	}
	if err := godotenv.Load(path); err != nil {
		return errors.NewConfigurationError("failed to load env file", err).WithContext("filename", path)
	}
	return nil
}

// overlay copies every non-zero field of src into dst
func overlay(dst *Config, src *Config) {
	dstValue := reflect.ValueOf(dst).Elem()
	srcValue := reflect.ValueOf(src).Elem()
	for i := 0; i < srcValue.NumField(); i++ {
		if field := srcValue.Field(i); !field.IsZero() {
			dstValue.Field(i).Set(field)
		}
	}
}

func setConfigDefaults(config *Config) {
	if config.StartTimeout == 0 {
		config.StartTimeout = compute.DefaultStartTimeout
	}
	if config.HTTPTimeout == 0 {
		config.HTTPTimeout = notify.DefaultHTTPTimeout
	}
	if config.SinkRetryAttempts == 0 {
		config.SinkRetryAttempts = notify.DefaultRetryAttempts
	}
	if config.MetricsFormat == "" {
		config.MetricsFormat = string(notify.MetricsFormatJSON)
	}
	if config.AlertFormat == "" {
		config.AlertFormat = string(notify.AlertFormatAdaptiveCard)
	}
	if config.LogLevel == "" {
		config.LogLevel = "info"
	}
	if config.LogFormat == "" {
		config.LogFormat = "console"
	}
}

// ValidateConfig only checks that required identifiers are present, plus the
// enumerations that select an adapter
func ValidateConfig(config *Config) error {
	if config == nil {
		return errors.NewValidationError("configuration cannot be nil", nil)
	}

	required := []struct {
		key   string
		value string
	}{
		{"AZURE_RESOURCE_GROUP", config.ResourceGroup},
		{"AZURE_VM_NAME", config.VMName},
		{"AZURE_SUBSCRIPTION_ID", config.SubscriptionID},
	}
	var missing []string
	for _, entry := range required {
		if strings.TrimSpace(entry.value) == "" {
			missing = append(missing, entry.key)
		}
	}
	if len(missing) > 0 {
		return errors.NewConfigurationError(
			fmt.Sprintf("missing required settings: %s", strings.Join(missing, ", ")),
			nil,
		).WithContext("missing", missing)
	}

	switch notify.MetricsFormat(config.MetricsFormat) {
	case notify.MetricsFormatJSON, notify.MetricsFormatGraphite, "":
	default:
		return errors.NewValidationError(fmt.Sprintf("invalid metrics format: %s", config.MetricsFormat), nil).
			WithContext("valid_formats", "json, graphite")
	}
	switch notify.AlertFormat(config.AlertFormat) {
	case notify.AlertFormatAdaptiveCard, notify.AlertFormatMessageCard, "":
	default:
		return errors.NewValidationError(fmt.Sprintf("invalid alert format: %s", config.AlertFormat), nil).
			WithContext("valid_formats", "adaptive, messagecard")
	}
	if config.ControlPort < 0 || config.ControlPort > 65535 {
		return errors.NewValidationError(fmt.Sprintf("invalid control port: %d", config.ControlPort), nil).
			WithContext("valid_range", "1-65535")
	}
	return nil
}

// CheckInterval parses CHECK_INTERVAL_SECONDS. Fractions are truncated; empty,
// non-numeric or values below one second yield the default and ok=false when
// a value was given.
func (c *Config) CheckInterval() (interval time.Duration, ok bool) {
	raw := strings.TrimSpace(c.CheckIntervalSeconds)
	if raw == "" {
		return DefaultCheckInterval, true
	}
	seconds, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 1 {
		return DefaultCheckInterval, false
	}
	// Larger values overflow time.Duration
	if seconds >= float64(math.MaxInt64/int64(time.Second)) {
		return DefaultCheckInterval, false
	}
	interval = time.Duration(int64(seconds)) * time.Second
	if interval <= 0 {
		return DefaultCheckInterval, false
	}
	return interval, true
}

func (c *Config) Target() compute.Target {
	return compute.Target{ResourceGroup: c.ResourceGroup, VMName: c.VMName}
}

func (c *Config) AzureConfig() compute.AzureConfig {
	return compute.AzureConfig{
		TenantID:       c.TenantID,
		ClientID:       c.ClientID,
		ClientSecret:   c.ClientSecret,
		SubscriptionID: c.SubscriptionID,
		StartTimeout:   c.StartTimeout,
	}
}

func (c *Config) GrafanaConfig() notify.GrafanaConfig {
	return notify.GrafanaConfig{
		URL:    c.GrafanaURI,
		User:   c.GrafanaUser,
		Token:  c.GrafanaToken,
		Format: notify.MetricsFormat(c.MetricsFormat),
	}
}

func (c *Config) TeamsConfig() notify.TeamsConfig {
	return notify.TeamsConfig{
		WebhookURL: c.TeamsWebhookURL,
		Format:     notify.AlertFormat(c.AlertFormat),
	}
}

func (c *Config) HTTPOptions() notify.HTTPOptions {
	return notify.HTTPOptions{
		Timeout:       c.HTTPTimeout,
		RetryAttempts: c.SinkRetryAttempts,
	}
}

func (c *Config) ZapConfig() logging.ZapConfig {
	zapConfig := logging.DefaultZapConfig()
	if c.LogLevel != "" {
		zapConfig.Level = c.LogLevel
	}
	if c.LogFormat != "" {
		zapConfig.Format = c.LogFormat
	}
	return zapConfig
}

// Summary is safe to log: secrets are reduced to whether they are set
func (c *Config) Summary() string {
	interval, _ := c.CheckInterval()
	return fmt.Sprintf("target: %s, interval: %v, metrics: %t, alerts: %t, client_secret: %t, prometheus: %q, control_port: %d",
		c.Target(), interval, c.GrafanaURI != "", c.TeamsWebhookURL != "", c.ClientSecret != "",
		c.PrometheusListenAddr, c.ControlPort)
}
