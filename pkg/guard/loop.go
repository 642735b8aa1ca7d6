package guard

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/core-tools/hsu-spotbot/pkg/errors"
	"github.com/core-tools/hsu-spotbot/pkg/logging"
)

// Cycle is one unit of work run by Loop
type Cycle func(ctx context.Context) error

// Loop runs a cycle immediately and then again interval after each cycle has
// finished, so cycles never overlap.
type Loop struct {
	interval time.Duration
	logger   logging.Logger
	after    func(time.Duration) <-chan time.Time
}

func NewLoop(interval time.Duration, logger logging.Logger) *Loop {
	return &Loop{
		interval: interval,
		logger:   logger,
		after:    time.After,
	}
}

// Run blocks until ctx is done. A cycle already in progress when ctx is
// cancelled is allowed to finish; no new cycle starts afterwards.
func (l *Loop) Run(ctx context.Context, cycle Cycle) {
	l.logger.Infof("Monitoring loop started, interval: %v", l.interval)
	defer l.logger.Infof("Monitoring loop stopped")

	for {
		if ctx.Err() != nil {
			return
		}

		if err := l.runCycle(context.WithoutCancel(ctx), cycle); err != nil {
			l.logger.Errorf("Error during check: %v", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-l.after(l.interval):
		}
	}
}

func (l *Loop) runCycle(ctx context.Context, cycle Cycle) (err error) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Debugf("Check panic stack: %s", debug.Stack())
			err = errors.NewInternalError(fmt.Sprintf("check panicked: %v", r), nil)
		}
	}()
	return cycle(ctx)
}
