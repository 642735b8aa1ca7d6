// Package computetest provides a testify mock of compute.Provider.
package computetest

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/core-tools/hsu-spotbot/pkg/compute"
)

type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) InstanceStatuses(ctx context.Context, target compute.Target) ([]compute.StatusRecord, error) {
	args := m.Called(ctx, target)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]compute.StatusRecord), args.Error(1)
}

func (m *MockProvider) BeginStart(ctx context.Context, target compute.Target) (compute.StartOperation, error) {
	args := m.Called(ctx, target)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(compute.StartOperation), args.Error(1)
}

// Operation is a StartOperation finishing with Err
type Operation struct {
	Err    error
	Waited int
}

func (o *Operation) Wait(context.Context) error {
	o.Waited++
	return o.Err
}

// Statuses builds a status list from codes
func Statuses(codes ...string) []compute.StatusRecord {
	records := make([]compute.StatusRecord, 0, len(codes))
	for _, code := range codes {
		records = append(records, compute.StatusRecord{Code: code})
	}
	return records
}
