package guard

import (
	"context"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/core-tools/hsu-spotbot/pkg/compute"
	"github.com/core-tools/hsu-spotbot/pkg/config"
	"github.com/core-tools/hsu-spotbot/pkg/control"
	"github.com/core-tools/hsu-spotbot/pkg/errors"
	"github.com/core-tools/hsu-spotbot/pkg/logging"
	"github.com/core-tools/hsu-spotbot/pkg/notify"
	"github.com/core-tools/hsu-spotbot/pkg/telemetry"
)

// RunOptions come from the command line
type RunOptions struct {
	ConfigFile  string
	EnvFile     string
	RunDuration time.Duration
	// LogLevel overrides LOG_LEVEL when set
	LogLevel string
}

// Dependencies replace the collaborators built from configuration
type Dependencies struct {
	Provider compute.Provider
	// Metrics replaces the Grafana sink when set
	Metrics notify.MetricsSink
	// Alerts replaces the Teams sink when set
	Alerts notify.AlertSink
}

// Bot owns the guard, the loop and the optional local endpoints
type Bot struct {
	config     *config.Config
	guard      *Guard
	loop       *Loop
	prometheus *telemetry.Server
	control    *control.Server
	logger     logging.Logger
}

func NewBot(cfg *config.Config, deps Dependencies, logger logging.Logger) (*Bot, error) {
	if deps.Provider == nil {
		return nil, errors.NewValidationError("provider is required", nil)
	}

	interval, ok := cfg.CheckInterval()
	if !ok {
		logger.Warnf("Invalid CHECK_INTERVAL_SECONDS %q, using %v", cfg.CheckIntervalSeconds, interval)
	}

	bot := &Bot{config: cfg, logger: logger}

	metrics := deps.Metrics
	if metrics == nil {
		metrics = notify.NewGrafanaSink(cfg.GrafanaConfig(), cfg.HTTPOptions(), logging.WithPrefix(logger, "grafana: "))
	}
	alerts := deps.Alerts
	if alerts == nil {
		alerts = notify.NewTeamsSink(cfg.TeamsConfig(), cfg.HTTPOptions(), logging.WithPrefix(logger, "teams: "))
	}
	if metrics == notify.NopMetricsSink() {
		logger.Infof("GRAFANA_URI is not set, metrics push is disabled")
	}
	if alerts == notify.NopAlertSink() {
		logger.Infof("TEAMS_WEBHOOK_URL is not set, alerting is disabled")
	}

	sinks := []notify.MetricsSink{metrics}
	if cfg.PrometheusListenAddr != "" {
		promSink := telemetry.NewPrometheusSink()
		server, err := telemetry.Listen(cfg.PrometheusListenAddr, promSink, logging.WithPrefix(logger, "telemetry: "))
		if err != nil {
			return nil, err
		}
		bot.prometheus = server
		sinks = append(sinks, promSink)
	}
	if cfg.ControlPort != 0 {
		server, err := control.Listen(cfg.ControlPort, logging.WithPrefix(logger, "control: "))
		if err != nil {
			bot.close()
			return nil, err
		}
		bot.control = server
		sinks = append(sinks, server.Sink())
	}

	reporter := notify.NewUpReporter(notify.MultiMetricsSink(sinks...), cfg.VMName, interval)
	bot.guard = NewGuard(deps.Provider, cfg.Target(), reporter, alerts, logger)
	bot.loop = NewLoop(interval, logger)
	return bot, nil
}

func (b *Bot) close() {
	if b.prometheus != nil {
		_ = b.prometheus.Close()
	}
	if b.control != nil {
		_ = b.control.Close()
	}
}

// Run blocks until ctx is done and every endpoint has stopped
func (b *Bot) Run(ctx context.Context) {
	var wg sync.WaitGroup
	serve := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil {
				b.logger.Errorf("%s server: %v", name, err)
			}
		}()
	}
	if b.prometheus != nil {
		serve("Prometheus", b.prometheus.Serve)
	}
	if b.control != nil {
		serve("Control", b.control.Serve)
	}

	b.loop.Run(ctx, func(ctx context.Context) error {
		_, err := b.guard.CheckAndAct(ctx)
		return err
	})

	wg.Wait()
}

// CheckOnce runs a single cycle without the loop
func (b *Bot) CheckOnce(ctx context.Context) (CycleResult, error) {
	defer b.close()
	return b.guard.CheckAndAct(ctx)
}

// Setup loads and validates configuration, then builds the logger it asks for
func Setup(options RunOptions) (*config.Config, *logging.ZapLogger, error) {
	cfg, err := config.Load(config.LoadOptions{ConfigFile: options.ConfigFile, EnvFile: options.EnvFile})
	if err != nil {
		return nil, nil, err
	}
	if err := config.ValidateConfig(cfg); err != nil {
		return nil, nil, err
	}

	zapConfig := cfg.ZapConfig()
	if options.LogLevel != "" {
		zapConfig.Level = options.LogLevel
	}
	zapLogger, err := logging.NewZapLogger(zapConfig)
	if err != nil {
		return nil, nil, errors.NewConfigurationError("failed to create logger", err)
	}
	return cfg, zapLogger, nil
}

// Run starts the bot against Azure and blocks until a signal or the run
// duration elapses
func Run(options RunOptions) error {
	cfg, zapLogger, err := Setup(options)
	if err != nil {
		return err
	}
	defer func() { _ = zapLogger.Sync() }()
	logger := logging.NewLogger(logging.ModulePrefix("spotbot"), logging.LogFuncs{
		Debugf: zapLogger.Debugf,
		Infof:  zapLogger.Infof,
		Warnf:  zapLogger.Warnf,
		Errorf: zapLogger.Errorf,
	})

	logger.Infof("Spot bot runner starting...")
	logger.Infof("Configuration: %s", cfg.Summary())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if options.RunDuration > 0 {
		logger.Infof("Using RUN DURATION of %v", options.RunDuration)
		ctx, cancel = context.WithTimeout(ctx, options.RunDuration)
		defer cancel()
	}

	provider, err := compute.NewAzureProvider(cfg.AzureConfig(), logging.WithPrefix(logger, "azure: "))
	if err != nil {
		return err
	}
	bot, err := NewBot(cfg, Dependencies{Provider: provider}, logger)
	if err != nil {
		return err
	}

	sig := make(chan os.Signal, 1)
	if runtime.GOOS == "windows" {
		signal.Notify(sig) // Unix signals not implemented on Windows
	} else {
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	}
	defer signal.Stop(sig)

	go func() {
		select {
		case receivedSignal := <-sig:
			logger.Infof("Spot bot runner received signal: %v", receivedSignal)
			cancel()
		case <-ctx.Done():
		}
	}()

	bot.Run(ctx)

	logger.Infof("Spot bot runner stopped")
	return nil
}

// RunOnce performs a single check against Azure, for ad hoc use and cron
func RunOnce(ctx context.Context, options RunOptions) (CycleResult, error) {
	cfg, zapLogger, err := Setup(options)
	if err != nil {
		return CycleResult{}, err
	}
	defer func() { _ = zapLogger.Sync() }()

	// Local endpoints make no sense for a single check
	cfg.PrometheusListenAddr = ""
	cfg.ControlPort = 0

	provider, err := compute.NewAzureProvider(cfg.AzureConfig(), zapLogger)
	if err != nil {
		return CycleResult{}, err
	}
	bot, err := NewBot(cfg, Dependencies{Provider: provider}, zapLogger)
	if err != nil {
		return CycleResult{}, err
	}
	return bot.CheckOnce(ctx)
}

// ValidateOnly loads and validates configuration without contacting anything
func ValidateOnly(options RunOptions) (*config.Config, error) {
	cfg, err := config.Load(config.LoadOptions{ConfigFile: options.ConfigFile, EnvFile: options.EnvFile})
	if err != nil {
		return nil, err
	}
	if err := config.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
