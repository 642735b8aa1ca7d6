package notify

import (
	"context"
	"fmt"
	"regexp"
	"time"
)

// Sample is one up/down observation of the monitored VM
type Sample struct {
	Name     string
	Value    int
	Time     time.Time
	Interval time.Duration
}

// Alert is a human-facing notification
type Alert struct {
	Title   string
	Body    string
	IsError bool
}

// MetricsSink accepts samples. Implementations handle their own transport
// errors; a lost sample must never affect the caller.
type MetricsSink interface {
	Push(ctx context.Context, sample Sample)
}

// AlertSink accepts alerts with the same error contract as MetricsSink
type AlertSink interface {
	Notify(ctx context.Context, alert Alert)
}

type nopMetricsSink struct{}

func (nopMetricsSink) Push(context.Context, Sample) {}

type nopAlertSink struct{}

func (nopAlertSink) Notify(context.Context, Alert) {}

// NopMetricsSink is used when no metrics endpoint is configured
func NopMetricsSink() MetricsSink { return nopMetricsSink{} }

// NopAlertSink is used when no webhook is configured
func NopAlertSink() AlertSink { return nopAlertSink{} }

type multiMetricsSink []MetricsSink

func (m multiMetricsSink) Push(ctx context.Context, sample Sample) {
	for _, sink := range m {
		sink.Push(ctx, sample)
	}
}

// MultiMetricsSink pushes each sample to every sink in order
func MultiMetricsSink(sinks ...MetricsSink) MetricsSink {
	filtered := make(multiMetricsSink, 0, len(sinks))
	for _, sink := range sinks {
		if sink == nil {
			continue
		}
		if _, nop := sink.(nopMetricsSink); nop {
			continue
		}
		filtered = append(filtered, sink)
	}
	switch len(filtered) {
	case 0:
		return NopMetricsSink()
	case 1:
		return filtered[0]
	}
	return filtered
}

var invalidMetricChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// MetricName derives the up metric of a VM, e.g. "my-vm.01!" -> "azure.vm.my-vm.01_.up"
func MetricName(vmName string) string {
	return fmt.Sprintf("azure.vm.%s.up", invalidMetricChars.ReplaceAllString(vmName, "_"))
}

// UpReporter stamps samples for one VM and hands them to a sink
type UpReporter struct {
	sink     MetricsSink
	name     string
	interval time.Duration
	now      func() time.Time
}

func NewUpReporter(sink MetricsSink, vmName string, interval time.Duration) *UpReporter {
	return &UpReporter{
		sink:     sink,
		name:     MetricName(vmName),
		interval: interval,
		now:      time.Now,
	}
}

func (r *UpReporter) MetricName() string {
	return r.name
}

func (r *UpReporter) Report(ctx context.Context, value int) {
	r.sink.Push(ctx, Sample{
		Name:     r.name,
		Value:    value,
		Time:     r.now(),
		Interval: r.interval,
	})
}
