package monitoring

import (
	"strings"

	"github.com/core-tools/hsu-spotbot/pkg/compute"
)

// PowerStatePrefix marks the power state entry in an instance view status list
const PowerStatePrefix = "PowerState/"

type PowerState string

const (
	PowerStateRunning     PowerState = "running"
	PowerStateDeallocated PowerState = "deallocated"
	PowerStateOther       PowerState = "other"
	PowerStateUnknown     PowerState = "unknown"
)

// Observation is the classified state of one poll cycle
type Observation struct {
	State PowerState
	// Token is the raw code remainder after PowerStatePrefix, empty when State is unknown
	Token string
}

// Code renders the observation the way the provider reports it
func (o Observation) Code() string {
	if o.State == PowerStateUnknown {
		return "Unknown"
	}
	return PowerStatePrefix + o.Token
}

// Classify picks the first status whose code starts with PowerStatePrefix.
// Tokens are compared exactly, so "Running" or "running " are Other.
func Classify(statuses []compute.StatusRecord) Observation {
	for _, status := range statuses {
		if !strings.HasPrefix(status.Code, PowerStatePrefix) {
			continue
		}
		token := strings.TrimPrefix(status.Code, PowerStatePrefix)
		switch token {
		case string(PowerStateRunning):
			return Observation{State: PowerStateRunning, Token: token}
		case string(PowerStateDeallocated):
			return Observation{State: PowerStateDeallocated, Token: token}
		default:
			return Observation{State: PowerStateOther, Token: token}
		}
	}
	return Observation{State: PowerStateUnknown}
}
