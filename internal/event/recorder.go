// Package event provides domain event recording for the automation layer.
// Execution outcomes are written to the automation log first and then
// published to the in-process event bus for downstream consumers.
package event

import (
	"context"

	"github.com/matthewbaird/rentpulse/internal/types"
)

// Publisher sends domain events to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, evt DomainEvent)
}

// NopPublisher discards every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, DomainEvent) {}

// LogWriter appends entries to the automation log.
type LogWriter interface {
	AppendLog(ctx context.Context, entry types.AutomationLog) error
}

// ExecutionRecorder writes an AutomationLog entry and, once the write has
// succeeded, publishes the matching event.
type ExecutionRecorder struct {
	logs LogWriter
	bus  Publisher
}

// NewExecutionRecorder creates a recorder backed by the given log writer.
func NewExecutionRecorder(logs LogWriter) *ExecutionRecorder {
	return &ExecutionRecorder{logs: logs, bus: NopPublisher{}}
}

// SetPublisher attaches an event bus. Events are published after log writes.
func (r *ExecutionRecorder) SetPublisher(p Publisher) {
	if p == nil {
		p = NopPublisher{}
	}
	r.bus = p
}

// Publish forwards an event that has no log entry of its own.
func (r *ExecutionRecorder) Publish(ctx context.Context, evt DomainEvent) {
	r.bus.Publish(ctx, evt)
}

// Record appends entry to the log and publishes evt.
func (r *ExecutionRecorder) Record(ctx context.Context, entry types.AutomationLog, evt DomainEvent) error {
	if err := r.logs.AppendLog(ctx, entry); err != nil {
		return err
	}
	r.bus.Publish(ctx, evt)
	return nil
}
