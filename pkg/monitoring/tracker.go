package monitoring

import (
	"sync"
	"time"

	"github.com/core-tools/hsu-spotbot/pkg/logging"
)

type AvailabilityStatus string

const (
	AvailabilityUnknown AvailabilityStatus = "unknown"
	AvailabilityUp      AvailabilityStatus = "up"
	// AvailabilityDown after a single down sample, AvailabilityOutage after several in a row
	AvailabilityDown   AvailabilityStatus = "down"
	AvailabilityOutage AvailabilityStatus = "outage"
)

// TrackerState summarizes the samples seen so far. It never feeds back into
// Plan; every cycle is decided on its own observation.
type TrackerState struct {
	Status          AvailabilityStatus
	LastCheck       time.Time
	LastCode        string
	ConsecutiveUp   int
	ConsecutiveDown int
	Restarts        int
}

// Tracker logs availability transitions across cycles
type Tracker struct {
	mutex  sync.Mutex
	state  TrackerState
	logger logging.Logger
	now    func() time.Time
}

func NewTracker(logger logging.Logger) *Tracker {
	return &Tracker{
		state:  TrackerState{Status: AvailabilityUnknown},
		logger: logger,
		now:    time.Now,
	}
}

func (t *Tracker) State() TrackerState {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.state
}

// Update records the observation of one cycle and returns the new state
func (t *Tracker) Update(observation Observation, plan ActionPlan) TrackerState {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	previous := t.state.Status
	t.state.LastCheck = t.now()
	t.state.LastCode = observation.Code()

	if plan.Sample == SampleUp {
		t.state.ConsecutiveUp++
		t.state.ConsecutiveDown = 0
		t.state.Status = AvailabilityUp
		if previous == AvailabilityDown || previous == AvailabilityOutage {
			t.logger.Infof("VM is back up, previous: %s, code: %s", previous, t.state.LastCode)
		}
		return t.state
	}

	t.state.ConsecutiveDown++
	t.state.ConsecutiveUp = 0
	if t.state.ConsecutiveDown == 1 {
		t.state.Status = AvailabilityDown
	} else {
		t.state.Status = AvailabilityOutage
	}
	if t.state.Status != previous {
		t.logger.Warnf("VM availability changed, status: %s->%s, consecutive_down: %d, code: %s",
			previous, t.state.Status, t.state.ConsecutiveDown, t.state.LastCode)
	}
	return t.state
}

// RecordRestart counts a successful restart
func (t *Tracker) RecordRestart() {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.state.Restarts++
}
