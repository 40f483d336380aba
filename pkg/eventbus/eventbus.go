// Package eventbus defines the contract for publishing and subscribing to
// escrow domain events.
package eventbus

import (
	"context"

	"github.com/amirasaad/escrow/pkg/domain/events"
)

// HandlerFunc handles one event. A returned error is logged by the bus; durable
// buses may redeliver the event.
type HandlerFunc func(ctx context.Context, e events.Event) error

// Bus dispatches events to the handlers registered for their type.
type Bus interface {
	Emit(ctx context.Context, e events.Event) error
	Register(eventType string, handler HandlerFunc)
}
