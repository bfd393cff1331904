package core

import (
	"context"
	"encoding/json"
)

// Handler consumes the data half of a signaling envelope.
type Handler func(data json.RawMessage)

// SignalChannel abstracts the long-lived bidirectional event connection.
// Owned by the session; the session must Close() it.
type SignalChannel interface {
	// Open dials and starts the pumps; reconnects happen internally
	// until the retry budget is exhausted.
	Open(ctx context.Context) error
	Close()
	Connected() bool

	// Emit is fire-and-forget; returns ErrNotConnected while down.
	Emit(event string, payload any) error

	// Subscribe registers h for event under key. Re-subscribing with
	// the same key replaces the handler, it never duplicates delivery.
	Subscribe(event, key string, h Handler)
	Unsubscribe(event, key string)

	// OnStatus observes connected/disconnected transitions, keyed the
	// same way subscriptions are.
	OnStatus(key string, fn func(connected bool))
}
