// Package eventbus is a process-local publish/subscribe channel that
// decouples post mutations from cache synchronization.
//
// Delivery is synchronous fire-and-forget: a subscriber failure is recovered
// and logged, never propagated to the emitter, because cache staleness is
// tolerable but breaking the mutation path that emitted the event is not.
package eventbus

import (
	"context"
	"sync"

	"postflow/internal/domain"

	"github.com/rs/zerolog"
)

// HandlerFunc consumes one event. Errors are logged, not returned to the
// publisher.
type HandlerFunc func(ctx context.Context, ev domain.Event) error

type Bus struct {
	mu   sync.RWMutex
	subs map[domain.EventKind][]HandlerFunc
	log  zerolog.Logger
}

func New(log zerolog.Logger) *Bus {
	return &Bus{
		subs: make(map[domain.EventKind][]HandlerFunc),
		log:  log.With().Str("component", "eventbus").Logger(),
	}
}

// Subscribe registers a handler for one or more event kinds. Subscriptions
// happen at process startup; there is no unsubscribe.
func (b *Bus) Subscribe(h HandlerFunc, kinds ...domain.EventKind) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, k := range kinds {
		b.subs[k] = append(b.subs[k], h)
	}
}

// Publish delivers the event to every subscriber of its kind, in
// subscription order, on the caller's goroutine.
func (b *Bus) Publish(ctx context.Context, ev domain.Event) {
	b.mu.RLock()
	handlers := b.subs[ev.Kind]
	b.mu.RUnlock()

	for _, h := range handlers {
		b.dispatch(ctx, ev, h)
	}
}

func (b *Bus) dispatch(ctx context.Context, ev domain.Event, h HandlerFunc) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error().Interface("panic", r).Str("kind", string(ev.Kind)).
				Int64("post_id", ev.Post.ID).Msg("event subscriber panicked")
		}
	}()
	if err := h(ctx, ev); err != nil {
		b.log.Warn().Err(err).Str("kind", string(ev.Kind)).
			Int64("post_id", ev.Post.ID).Msg("event subscriber failed")
	}
}
