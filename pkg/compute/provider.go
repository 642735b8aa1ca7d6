package compute

import (
	"context"
	"fmt"
)

// Target identifies the monitored VM
type Target struct {
	ResourceGroup string
	VMName        string
}

func (t Target) String() string {
	return fmt.Sprintf("%s/%s", t.ResourceGroup, t.VMName)
}

// StatusRecord is one entry of the VM instance view status list
type StatusRecord struct {
	Code string
}

// StartOperation is a submitted start command
type StartOperation interface {
	// Wait blocks until the operation reaches a terminal state.
	// A nil error means the VM is running again.
	Wait(ctx context.Context) error
}

// Provider queries and starts the monitored VM. Implementations own cloud authentication.
type Provider interface {
	InstanceStatuses(ctx context.Context, target Target) ([]StatusRecord, error)
	BeginStart(ctx context.Context, target Target) (StartOperation, error)
}
