// Package events publishes authorization outcomes for auditing.
package events

import (
	"context"
	"log/slog"
	"time"

	"go.uber.org/multierr"
)

// Event records one stage decision for one invocation.
type Event struct {
	InvocationID string    `json:"invocation_id"`
	Method       string    `json:"method"`
	Stage        string    `json:"stage"`
	Outcome      string    `json:"outcome"`
	Reason       string    `json:"reason,omitempty"`
	Principal    string    `json:"principal,omitempty"`
	At           time.Time `json:"at"`
}

// Publisher delivers events. A failing publisher never changes the outcome
// of the call that produced the event.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Slog writes events to the default slog logger.
type Slog struct {
	Level slog.Level
}

func (s Slog) Publish(ctx context.Context, e Event) error {
	slog.Log(ctx, s.Level, "authz_event",
		"inv", e.InvocationID,
		"method", e.Method,
		"stage", e.Stage,
		"outcome", e.Outcome,
		"reason", e.Reason,
		"principal", e.Principal,
	)
	return nil
}

// Multi fans an event out to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, e Event) error {
	var err error
	for _, p := range m {
		err = multierr.Append(err, p.Publish(ctx, e))
	}
	return err
}
