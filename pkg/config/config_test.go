package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/core-tools/hsu-spotbot/pkg/compute"
	"github.com/core-tools/hsu-spotbot/pkg/errors"
	"github.com/core-tools/hsu-spotbot/pkg/notify"
)

var allKeys = []string{
	"AZURE_RESOURCE_GROUP", "AZURE_VM_NAME", "CHECK_INTERVAL_SECONDS",
	"AZURE_TENANT_ID", "AZURE_CLIENT_ID", "AZURE_CLIENT_SECRET", "AZURE_SUBSCRIPTION_ID", "START_TIMEOUT",
	"GRAFANA_URI", "GRAFANA_USER", "GRAFANA_TOKEN", "METRICS_FORMAT",
	"TEAMS_WEBHOOK_URL", "ALERT_FORMAT",
	"HTTP_TIMEOUT", "SINK_RETRY_ATTEMPTS",
	"PROMETHEUS_LISTEN_ADDR", "CONTROL_PORT",
	"LOG_LEVEL", "LOG_FORMAT",
}

// clearEnv blanks every key for the duration of the test. Empty values are
// treated as unset by the loader.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range allKeys {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_FromEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("AZURE_RESOURCE_GROUP", "rg-spot")
	t.Setenv("AZURE_VM_NAME", "spot-01")
	t.Setenv("AZURE_SUBSCRIPTION_ID", "sub-123")
	t.Setenv("CHECK_INTERVAL_SECONDS", "30")
	t.Setenv("GRAFANA_URI", "https://grafana.example/api/metrics")
	t.Setenv("HTTP_TIMEOUT", "3s")
	t.Setenv("CONTROL_PORT", "50055")

	config, err := Load(LoadOptions{})
	require.NoError(t, err)
	require.NoError(t, ValidateConfig(config))

	assert.Equal(t, compute.Target{ResourceGroup: "rg-spot", VMName: "spot-01"}, config.Target())
	interval, ok := config.CheckInterval()
	assert.True(t, ok)
	assert.Equal(t, 30*time.Second, interval)
	assert.Equal(t, 3*time.Second, config.HTTPTimeout)
	assert.Equal(t, 50055, config.ControlPort)
	assert.Equal(t, "https://grafana.example/api/metrics", config.GrafanaConfig().URL)
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	config, err := Load(LoadOptions{})
	require.NoError(t, err)

	interval, ok := config.CheckInterval()
	assert.True(t, ok)
	assert.Equal(t, DefaultCheckInterval, interval)
	assert.Equal(t, compute.DefaultStartTimeout, config.StartTimeout)
	assert.Equal(t, notify.DefaultHTTPTimeout, config.HTTPTimeout)
	assert.Equal(t, uint(notify.DefaultRetryAttempts), config.SinkRetryAttempts)
	assert.Equal(t, notify.MetricsFormatJSON, config.GrafanaConfig().Format)
	assert.Equal(t, notify.AlertFormatAdaptiveCard, config.TeamsConfig().Format)
	assert.Equal(t, "info", config.ZapConfig().Level)
	assert.Empty(t, config.PrometheusListenAddr)
	assert.Zero(t, config.ControlPort)
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "spotbot.yaml", `
resource_group: rg-file
vm_name: vm-file
subscription_id: sub-file
check_interval_seconds: 120
start_timeout: 5m
teams_webhook_url: https://teams.example/hook
`)
	t.Setenv("AZURE_VM_NAME", "vm-env")

	config, err := Load(LoadOptions{ConfigFile: path})
	require.NoError(t, err)

	assert.Equal(t, "rg-file", config.ResourceGroup)
	assert.Equal(t, "vm-env", config.VMName)
	assert.Equal(t, 5*time.Minute, config.StartTimeout)
	assert.Equal(t, "https://teams.example/hook", config.TeamsWebhookURL)
	interval, ok := config.CheckInterval()
	assert.True(t, ok)
	assert.Equal(t, 120*time.Second, interval)
}

func TestLoad_EnvFile(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, ".env", "AZURE_RESOURCE_GROUP=rg-dotenv\nAZURE_VM_NAME=vm-dotenv\n")
	t.Setenv("AZURE_VM_NAME", "vm-process")
	t.Cleanup(func() { _ = os.Unsetenv("AZURE_RESOURCE_GROUP") })

	config, err := Load(LoadOptions{EnvFile: path})
	require.NoError(t, err)

	assert.Equal(t, "rg-dotenv", config.ResourceGroup)
	assert.Equal(t, "vm-process", config.VMName)
}

func TestLoad_MissingEnvFileIsIgnored(t *testing.T) {
	clearEnv(t)

	_, err := Load(LoadOptions{EnvFile: filepath.Join(t.TempDir(), "missing.env")})
	assert.NoError(t, err)
}

func TestLoad_Errors(t *testing.T) {
	clearEnv(t)

	_, err := Load(LoadOptions{ConfigFile: filepath.Join(t.TempDir(), "missing.yaml")})
	assert.True(t, errors.IsConfigurationError(err))

	path := writeFile(t, "broken.yaml", "resource_group: [unclosed")
	_, err = Load(LoadOptions{ConfigFile: path})
	assert.True(t, errors.IsValidationError(err))

	t.Setenv("HTTP_TIMEOUT", "soon")
	_, err = Load(LoadOptions{})
	assert.True(t, errors.IsValidationError(err))
}

func TestValidateConfig_MissingRequired(t *testing.T) {
	err := ValidateConfig(&Config{VMName: "spot-01"})
	require.Error(t, err)
	assert.True(t, errors.IsConfigurationError(err))
	assert.Contains(t, err.Error(), "AZURE_RESOURCE_GROUP")
	assert.Contains(t, err.Error(), "AZURE_SUBSCRIPTION_ID")
	assert.NotContains(t, err.Error(), "AZURE_VM_NAME")

	assert.Error(t, ValidateConfig(nil))
}

func TestValidateConfig_Enumerations(t *testing.T) {
	valid := Config{ResourceGroup: "rg", VMName: "vm", SubscriptionID: "sub"}
	assert.NoError(t, ValidateConfig(&valid))

	badMetrics := valid
	badMetrics.MetricsFormat = "influx"
	assert.True(t, errors.IsValidationError(ValidateConfig(&badMetrics)))

	badAlerts := valid
	badAlerts.AlertFormat = "slack"
	assert.True(t, errors.IsValidationError(ValidateConfig(&badAlerts)))

	badPort := valid
	badPort.ControlPort = 70000
	assert.True(t, errors.IsValidationError(ValidateConfig(&badPort)))
}

func TestConfig_CheckInterval(t *testing.T) {
	tests := []struct {
		raw      string
		expected time.Duration
		ok       bool
	}{
		{"", DefaultCheckInterval, true},
		{"60", 60 * time.Second, true},
		{" 15 ", 15 * time.Second, true},
		{"90.7", 90 * time.Second, true},
		{"abc", DefaultCheckInterval, false},
		{"0", DefaultCheckInterval, false},
		{"-5", DefaultCheckInterval, false},
		{"0.5", DefaultCheckInterval, false},
		{"NaN", DefaultCheckInterval, false},
		{"10000000000", DefaultCheckInterval, false},
		{"1e300", DefaultCheckInterval, false},
		{"9223372036", DefaultCheckInterval, false},
		{"9223372035", 9223372035 * time.Second, true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			config := Config{CheckIntervalSeconds: tt.raw}
			interval, ok := config.CheckInterval()
			assert.Equal(t, tt.expected, interval)
			assert.Equal(t, tt.ok, ok)
		})
	}
}

func TestConfig_SummaryHidesSecrets(t *testing.T) {
	config := Config{
		ResourceGroup:   "rg",
		VMName:          "vm",
		ClientSecret:    "super-secret",
		GrafanaToken:    "token-value",
		TeamsWebhookURL: "https://teams.example/hook/secret",
	}
	summary := config.Summary()
	assert.Contains(t, summary, "rg/vm")
	assert.NotContains(t, summary, "super-secret")
	assert.NotContains(t, summary, "token-value")
	assert.NotContains(t, summary, "hook/secret")
}
