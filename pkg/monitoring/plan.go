package monitoring

const (
	SampleDown = 0
	SampleUp   = 1
)

// ActionPlan tells the cycle which sample to emit and whether to attempt a restart.
// The sample is always emitted before the restart.
type ActionPlan struct {
	Sample  int
	Restart bool
}

// Plan maps an observation to its action plan:
//
//	running      -> sample 1, no restart
//	deallocated  -> sample 0, restart
//	other/unknown-> sample 0, no restart
func Plan(observation Observation) ActionPlan {
	switch observation.State {
	case PowerStateRunning:
		return ActionPlan{Sample: SampleUp}
	case PowerStateDeallocated:
		return ActionPlan{Sample: SampleDown, Restart: true}
	default:
		return ActionPlan{Sample: SampleDown}
	}
}
