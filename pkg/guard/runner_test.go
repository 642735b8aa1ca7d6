package guard

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/core-tools/hsu-spotbot/pkg/compute/computetest"
	"github.com/core-tools/hsu-spotbot/pkg/config"
	"github.com/core-tools/hsu-spotbot/pkg/errors"
	"github.com/core-tools/hsu-spotbot/pkg/logging"
	"github.com/core-tools/hsu-spotbot/pkg/notify/notifytest"
	"github.com/core-tools/hsu-spotbot/pkg/recovery"
)

func testConfig() *config.Config {
	return &config.Config{
		ResourceGroup:  target.ResourceGroup,
		VMName:         target.VMName,
		SubscriptionID: "sub-123",
	}
}

func runBot(t *testing.T, bot *Bot) (context.CancelFunc, <-chan struct{}) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		bot.Run(ctx)
	}()
	return cancel, done
}

func waitStopped(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("bot did not stop")
	}
}

func TestBot_RecoversDeallocatedVM(t *testing.T) {
	provider := &computetest.MockProvider{}
	provider.On("InstanceStatuses", mock.Anything, target).
		Return(computetest.Statuses("PowerState/deallocated"), nil).Once()
	provider.On("InstanceStatuses", mock.Anything, target).
		Return(computetest.Statuses("PowerState/running"), nil).Maybe()
	provider.On("BeginStart", mock.Anything, target).Return(&computetest.Operation{}, nil).Once()
	recorder := &notifytest.Recorder{}

	bot, err := NewBot(testConfig(), Dependencies{Provider: provider, Metrics: recorder, Alerts: recorder}, logging.NewNopLogger())
	require.NoError(t, err)

	cancel, done := runBot(t, bot)
	require.Eventually(t, func() bool { return len(recorder.Metrics()) == 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	waitStopped(t, done)

	assert.Equal(t, []int{0, 1}, recorder.Metrics())
	alerts := recorder.Alerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, recovery.RecoveredTitle, alerts[0].Title)
}

func TestBot_ServesPrometheusMetrics(t *testing.T) {
	provider := &computetest.MockProvider{}
	provider.On("InstanceStatuses", mock.Anything, target).
		Return(computetest.Statuses("PowerState/running"), nil)
	recorder := &notifytest.Recorder{}

	cfg := testConfig()
	cfg.PrometheusListenAddr = "127.0.0.1:0"
	bot, err := NewBot(cfg, Dependencies{Provider: provider, Metrics: recorder, Alerts: recorder}, logging.NewNopLogger())
	require.NoError(t, err)
	require.NotNil(t, bot.prometheus)

	cancel, done := runBot(t, bot)
	defer func() {
		cancel()
		waitStopped(t, done)
	}()
	require.Eventually(t, func() bool { return len(recorder.Metrics()) == 1 }, 2*time.Second, 5*time.Millisecond)

	resp, err := http.Get("http://" + bot.prometheus.Addr() + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, resp.Body.Close())
	require.NoError(t, err)
	assert.Contains(t, string(body), `spotbot_vm_up{metric="azure.vm.spot-01.up"} 1`)
}

func TestBot_CheckOnce(t *testing.T) {
	provider := &computetest.MockProvider{}
	provider.On("InstanceStatuses", mock.Anything, target).
		Return(computetest.Statuses("PowerState/stopped"), nil).Once()
	recorder := &notifytest.Recorder{}

	bot, err := NewBot(testConfig(), Dependencies{Provider: provider, Metrics: recorder, Alerts: recorder}, logging.NewNopLogger())
	require.NoError(t, err)

	result, err := bot.CheckOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "PowerState/stopped", result.Observation.Code())
	assert.Equal(t, []int{0}, recorder.Metrics())
}

func TestNewBot_Errors(t *testing.T) {
	_, err := NewBot(testConfig(), Dependencies{}, logging.NewNopLogger())
	assert.True(t, errors.IsValidationError(err))

	cfg := testConfig()
	cfg.PrometheusListenAddr = "256.0.0.1:bad"
	_, err = NewBot(cfg, Dependencies{Provider: &computetest.MockProvider{}}, logging.NewNopLogger())
	assert.True(t, errors.IsNetworkError(err))
}

func TestNewBot_InvalidIntervalFallsBack(t *testing.T) {
	logs, logger := newLogRecorder()
	cfg := testConfig()
	cfg.CheckIntervalSeconds = "soon"

	bot, err := NewBot(cfg, Dependencies{Provider: &computetest.MockProvider{}, Metrics: &notifytest.Recorder{}, Alerts: &notifytest.Recorder{}}, logger)
	require.NoError(t, err)

	assert.Equal(t, config.DefaultCheckInterval, bot.loop.interval)
	require.NotEmpty(t, logs.get("warn"))
	assert.Contains(t, logs.get("warn")[0], "CHECK_INTERVAL_SECONDS")
}
