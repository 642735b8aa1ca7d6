package guard

import (
	"context"

	"github.com/core-tools/hsu-spotbot/pkg/compute"
	"github.com/core-tools/hsu-spotbot/pkg/errors"
	"github.com/core-tools/hsu-spotbot/pkg/logging"
	"github.com/core-tools/hsu-spotbot/pkg/monitoring"
	"github.com/core-tools/hsu-spotbot/pkg/notify"
	"github.com/core-tools/hsu-spotbot/pkg/recovery"
)

// CycleResult describes what one check did
type CycleResult struct {
	Observation monitoring.Observation
	Plan        monitoring.ActionPlan
	Recovery    *recovery.Outcome
	State       monitoring.TrackerState
}

// Guard runs one poll-decide-act cycle against a single VM
type Guard struct {
	provider compute.Provider
	target   compute.Target
	reporter *notify.UpReporter
	actor    *recovery.Actor
	// tracker only feeds logs and CycleResult.State, never the plan
	tracker  *monitoring.Tracker
	logger   logging.Logger
}

func NewGuard(provider compute.Provider, target compute.Target, reporter *notify.UpReporter, alerts notify.AlertSink, logger logging.Logger) *Guard {
	return &Guard{
		provider: provider,
		target:   target,
		reporter: reporter,
		actor:    recovery.NewActor(provider, target, reporter, alerts, logger),
		tracker:  monitoring.NewTracker(logger),
		logger:   logger,
	}
}

// CheckAndAct reads the instance view once and emits the sample for it. A
// deallocated VM is restarted after its down sample is pushed.
// Read failures are returned and nothing is emitted for that cycle.
func (g *Guard) CheckAndAct(ctx context.Context) (CycleResult, error) {
	statuses, err := g.provider.InstanceStatuses(ctx, g.target)
	if err != nil {
		if errors.IsProviderError(err) {
			return CycleResult{}, err
		}
		return CycleResult{}, errors.NewProviderError("failed to read instance view", err).
			WithContext("target", g.target.String())
	}

	observation := monitoring.Classify(statuses)
	g.logger.Infof("State: %s", observation.Code())

	plan := monitoring.Plan(observation)
	result := CycleResult{Observation: observation, Plan: plan}

	g.reporter.Report(ctx, plan.Sample)
	result.State = g.tracker.Update(observation, plan)

	if plan.Restart {
		g.logger.Warnf("VM is deallocated, attempting restart, target: %s", g.target)
		outcome := g.actor.Recover(ctx)
		result.Recovery = &outcome
		if outcome.Succeeded {
			g.tracker.RecordRestart()
			result.State = g.tracker.State()
		}
	}
	return result, nil
}
