package recovery

import (
	"context"
	"fmt"
	"time"

	"github.com/core-tools/hsu-spotbot/pkg/compute"
	"github.com/core-tools/hsu-spotbot/pkg/errors"
	"github.com/core-tools/hsu-spotbot/pkg/logging"
	"github.com/core-tools/hsu-spotbot/pkg/monitoring"
	"github.com/core-tools/hsu-spotbot/pkg/notify"
)

const (
	RecoveredTitle = "✅ VM Saved"
	FailureTitle   = "🔥 Critical Spot VM Failure"
)

// Outcome is the terminal result of one restart attempt
type Outcome struct {
	Succeeded bool
	Err       error
	Duration  time.Duration
}

// Actor restarts a deallocated VM once per invocation and reports how it went.
// Retrying is left to the next poll cycle.
type Actor struct {
	provider compute.Provider
	target   compute.Target
	reporter *notify.UpReporter
	alerts   notify.AlertSink
	logger   logging.Logger
}

func NewActor(provider compute.Provider, target compute.Target, reporter *notify.UpReporter, alerts notify.AlertSink, logger logging.Logger) *Actor {
	return &Actor{
		provider: provider,
		target:   target,
		reporter: reporter,
		alerts:   alerts,
		logger:   logger,
	}
}

// Recover submits a start command, waits for it to finish, then notifies.
// On success: one recovered alert followed by an up sample.
// On failure: one error alert carrying the detail, no sample.
func (a *Actor) Recover(ctx context.Context) Outcome {
	startedAt := time.Now()
	err := a.start(ctx)
	outcome := Outcome{
		Succeeded: err == nil,
		Err:       err,
		Duration:  time.Since(startedAt),
	}

	// Outcome notifications go out even when the cycle was cancelled mid restart
	notifyCtx := context.WithoutCancel(ctx)

	if !outcome.Succeeded {
		a.logger.Errorf("Restart failed, target: %s, duration: %v, error: %v", a.target, outcome.Duration, err)
		a.alerts.Notify(notifyCtx, notify.Alert{
			Title: FailureTitle,
			Body: fmt.Sprintf("The VM **%s** is down and the bot cannot restart it "+
				"(probably out of Spot capacity or price too high).\n\nError: %v", a.target.VMName, err),
			IsError: true,
		})
		return outcome
	}

	a.logger.Infof("VM successfully restarted, target: %s, duration: %v", a.target, outcome.Duration)
	a.alerts.Notify(notifyCtx, notify.Alert{
		Title:   RecoveredTitle,
		Body:    fmt.Sprintf("The Spot VM **%s** has been successfully restarted by the bot.", a.target.VMName),
		IsError: false,
	})
	a.reporter.Report(notifyCtx, monitoring.SampleUp)
	return outcome
}

func (a *Actor) start(ctx context.Context) error {
	operation, err := a.provider.BeginStart(ctx, a.target)
	if err != nil {
		return errors.NewRestartError("start command rejected", err)
	}
	a.logger.Infof("Start command sent, waiting for completion, target: %s", a.target)

	if err := operation.Wait(ctx); err != nil {
		return errors.NewRestartError("start operation failed", err)
	}
	return nil
}
