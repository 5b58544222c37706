// Package events carries generation progress to observers.
//
// The orchestrator emits an Event at every stage transition and for
// previews, review retries, warnings and the final outcome. Sinks decide
// where events go: in-memory subscribers (Broadcaster), the log (LogSink)
// or a NATS subject (NATSSink).
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Type identifies what happened.
type Type string

// Event types.
const (
	TypeStage        Type = "stage"
	TypePreview      Type = "preview"
	TypePending      Type = "pending"
	TypeAutoApproved Type = "auto_approved"
	TypeReviewRetry  Type = "review_retry"
	TypeReviewPassed Type = "review_passed"
	TypeWarning      Type = "warning"
	TypeInstalled    Type = "installed"
	TypeCompleted    Type = "completed"
	TypeFailed       Type = "failed"
	TypeCancelled    Type = "cancelled"
)

// Terminal reports whether no further events follow for the generation.
func (t Type) Terminal() bool {
	switch t {
	case TypePending, TypeCompleted, TypeFailed, TypeCancelled:
		return true
	}
	return false
}

// Event is one progress notification.
type Event struct {
	ID           string    `json:"id"`
	GenerationID string    `json:"generation_id"`
	Type         Type      `json:"type"`
	Step         int       `json:"step"`
	TotalSteps   int       `json:"total_steps"`
	PluginName   string    `json:"plugin_name,omitempty"`
	Message      string    `json:"message"`
	Time         time.Time `json:"time"`
}

// New creates an event with a fresh ID and timestamp.
func New(generationID string, typ Type, step, total int, plugin, message string) Event {
	return Event{
		ID:           uuid.NewString(),
		GenerationID: generationID,
		Type:         typ,
		Step:         step,
		TotalSteps:   total,
		PluginName:   plugin,
		Message:      message,
		Time:         time.Now().UTC(),
	}
}

// Sink receives events. Emit must not block the caller for long.
type Sink interface {
	Emit(ctx context.Context, e Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, e Event)

// Emit calls f.
func (f SinkFunc) Emit(ctx context.Context, e Event) { f(ctx, e) }

// Nop discards events.
var Nop Sink = SinkFunc(func(context.Context, Event) {})

type multi []Sink

// Multi fans an event out to every non-nil sink in order.
func Multi(sinks ...Sink) Sink {
	out := make(multi, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (m multi) Emit(ctx context.Context, e Event) {
	for _, s := range m {
		s.Emit(ctx, e)
	}
}
