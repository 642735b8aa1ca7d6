// Package notifytest provides sinks that record calls for tests.
package notifytest

import (
	"context"
	"sync"

	"github.com/core-tools/hsu-spotbot/pkg/notify"
)

type EventKind string

const (
	EventMetric EventKind = "metric"
	EventAlert  EventKind = "alert"
)

// Event is one sink call, in the order it happened
type Event struct {
	Kind   EventKind
	Sample notify.Sample
	Alert  notify.Alert
	// ContextErr is ctx.Err() at the time of the call
	ContextErr error
}

// Recorder implements both notify.MetricsSink and notify.AlertSink and keeps a
// single ordered log, optionally shared with other fakes through OnEvent.
type Recorder struct {
	mutex   sync.Mutex
	events  []Event
	OnEvent func(Event)
}

func (r *Recorder) Push(ctx context.Context, sample notify.Sample) {
	r.add(Event{Kind: EventMetric, Sample: sample, ContextErr: ctx.Err()})
}

func (r *Recorder) Notify(ctx context.Context, alert notify.Alert) {
	r.add(Event{Kind: EventAlert, Alert: alert, ContextErr: ctx.Err()})
}

func (r *Recorder) add(event Event) {
	r.mutex.Lock()
	r.events = append(r.events, event)
	hook := r.OnEvent
	r.mutex.Unlock()
	if hook != nil {
		hook(event)
	}
}

func (r *Recorder) Events() []Event {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return append([]Event(nil), r.events...)
}

// Metrics returns the pushed sample values in order
func (r *Recorder) Metrics() []int {
	var values []int
	for _, event := range r.Events() {
		if event.Kind == EventMetric {
			values = append(values, event.Sample.Value)
		}
	}
	return values
}

func (r *Recorder) Alerts() []notify.Alert {
	var alerts []notify.Alert
	for _, event := range r.Events() {
		if event.Kind == EventAlert {
			alerts = append(alerts, event.Alert)
		}
	}
	return alerts
}
