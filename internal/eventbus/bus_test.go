package eventbus

import (
	"context"
	"errors"
	"testing"

	"postflow/internal/domain"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishDeliversInSubscriptionOrder(t *testing.T) {
	bus := New(zerolog.Nop())
	var order []string
	bus.Subscribe(func(_ context.Context, _ domain.Event) error {
		order = append(order, "first")
		return nil
	}, domain.EventScheduled)
	bus.Subscribe(func(_ context.Context, _ domain.Event) error {
		order = append(order, "second")
		return nil
	}, domain.EventScheduled)

	bus.Publish(context.Background(), domain.Event{Kind: domain.EventScheduled})
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestPublishFiltersByKind(t *testing.T) {
	bus := New(zerolog.Nop())
	var got []domain.EventKind
	bus.Subscribe(func(_ context.Context, ev domain.Event) error {
		got = append(got, ev.Kind)
		return nil
	}, domain.EventScheduled, domain.EventUpdated)

	ctx := context.Background()
	bus.Publish(ctx, domain.Event{Kind: domain.EventScheduled})
	bus.Publish(ctx, domain.Event{Kind: domain.EventPublished})
	bus.Publish(ctx, domain.Event{Kind: domain.EventUpdated})

	require.Len(t, got, 2)
	assert.Equal(t, domain.EventScheduled, got[0])
	assert.Equal(t, domain.EventUpdated, got[1])
}

func TestSubscriberFailureDoesNotStopDelivery(t *testing.T) {
	bus := New(zerolog.Nop())
	delivered := false
	bus.Subscribe(func(_ context.Context, _ domain.Event) error {
		return errors.New("cache write failed")
	}, domain.EventScheduled)
	bus.Subscribe(func(_ context.Context, _ domain.Event) error {
		delivered = true
		return nil
	}, domain.EventScheduled)

	bus.Publish(context.Background(), domain.Event{Kind: domain.EventScheduled})
	assert.True(t, delivered)
}

func TestSubscriberPanicIsContained(t *testing.T) {
	bus := New(zerolog.Nop())
	delivered := false
	bus.Subscribe(func(_ context.Context, _ domain.Event) error {
		panic("boom")
	}, domain.EventScheduled)
	bus.Subscribe(func(_ context.Context, _ domain.Event) error {
		delivered = true
		return nil
	}, domain.EventScheduled)

	assert.NotPanics(t, func() {
		bus.Publish(context.Background(), domain.Event{Kind: domain.EventScheduled})
	})
	assert.True(t, delivered)
}
