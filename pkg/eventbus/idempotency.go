package eventbus

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/amirasaad/escrow/pkg/domain/events"
	"golang.org/x/sync/singleflight"
)

// KeyExtractor extracts an idempotency key from an event.
type KeyExtractor func(events.Event) string

// ByEventID keys events by their unique id.
func ByEventID(e events.Event) string {
	return e.EventID().String()
}

// DefaultRetention is how long a processed key suppresses redelivery.
const DefaultRetention = 24 * time.Hour

// IdempotencyTracker tracks processed events by key. Keys older than the
// retention window are forgotten so the tracker stays bounded.
type IdempotencyTracker struct {
	mu        sync.Mutex
	processed map[string]time.Time
	retention time.Duration
	lastSweep time.Time
	now       func() time.Time
	inflight  singleflight.Group
}

// NewIdempotencyTracker creates a tracker with DefaultRetention.
func NewIdempotencyTracker() *IdempotencyTracker {
	return &IdempotencyTracker{
		processed: make(map[string]time.Time),
		retention: DefaultRetention,
		now:       time.Now,
	}
}

// WithRetention replaces the retention window.
func (t *IdempotencyTracker) WithRetention(d time.Duration) *IdempotencyTracker {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.retention = d
	return t
}

// Seen reports whether key was processed successfully within the window.
func (t *IdempotencyTracker) Seen(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	at, ok := t.processed[key]
	if !ok {
		return false
	}
	if t.now().Sub(at) >= t.retention {
		delete(t.processed, key)
		return false
	}
	return true
}

// Len returns how many keys are currently tracked.
func (t *IdempotencyTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.processed)
}

func (t *IdempotencyTracker) markProcessed(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	t.processed[key] = now
	if now.Sub(t.lastSweep) < t.retention {
		return
	}
	for k, at := range t.processed {
		if now.Sub(at) >= t.retention {
			delete(t.processed, k)
		}
	}
	t.lastSweep = now
}

// WithIdempotency wraps handler so that redelivered events with the same key
// run at most once successfully. Concurrent deliveries of one key share the
// outcome of the in-flight attempt; a failed attempt can be retried.
func WithIdempotency(
	handler HandlerFunc,
	tracker *IdempotencyTracker,
	keyExtractor KeyExtractor,
	handlerName string,
	logger *slog.Logger,
) HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, e events.Event) error {
		key := keyExtractor(e)
		if key == "" {
			return handler(ctx, e)
		}

		log := logger.With(
			"handler", handlerName,
			"event_type", e.Type(),
			"idempotency_key", key,
		)

		if tracker.Seen(key) {
			log.Info("🔁 [SKIP] Event already processed")
			return nil
		}

		_, err, _ := tracker.inflight.Do(key, func() (any, error) {
			if tracker.Seen(key) {
				return nil, nil
			}
			if err := handler(ctx, e); err != nil {
				return nil, err
			}
			tracker.markProcessed(key)
			return nil, nil
		})
		return err
	}
}
