// Package notifytest provides a Notifier that records events for assertions.
package notifytest

import (
	"context"
	"sync"

	"proctrack/internal/notify"
)

// Recorder keeps every event it is handed. Safe for concurrent use.
type Recorder struct {
	mu            sync.Mutex
	outOfWorkflow []notify.OutOfWorkflowEvent
	received      []notify.ReceivedEvent
	completed     []notify.CompletedEvent
	overdue       []notify.OverdueEvent
	overdueErr    error
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) OutOfWorkflow(_ context.Context, event notify.OutOfWorkflowEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outOfWorkflow = append(r.outOfWorkflow, event)
}

func (r *Recorder) Received(_ context.Context, event notify.ReceivedEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.received = append(r.received, event)
}

func (r *Recorder) Completed(_ context.Context, event notify.CompletedEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed = append(r.completed, event)
}

// FailOverdue makes Overdue reject events with err until called with nil.
func (r *Recorder) FailOverdue(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.overdueErr = err
}

func (r *Recorder) Overdue(_ context.Context, event notify.OverdueEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.overdueErr != nil {
		return r.overdueErr
	}
	r.overdue = append(r.overdue, event)
	return nil
}

func (r *Recorder) OutOfWorkflowEvents() []notify.OutOfWorkflowEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.OutOfWorkflowEvent(nil), r.outOfWorkflow...)
}

func (r *Recorder) ReceivedEvents() []notify.ReceivedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.ReceivedEvent(nil), r.received...)
}

func (r *Recorder) CompletedEvents() []notify.CompletedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.CompletedEvent(nil), r.completed...)
}

func (r *Recorder) OverdueEvents() []notify.OverdueEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.OverdueEvent(nil), r.overdue...)
}
