package eventbus

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"example.com/libraria/services/library/domain"
)

func TestPublishFansOutInSubscriptionOrder(t *testing.T) {
	bus := New()

	var order []string
	bus.Subscribe(domain.BookCreated, "first", func(_ context.Context, _ domain.Event) error {
		order = append(order, "first")
		return nil
	})
	bus.Subscribe(domain.BookCreated, "second", func(_ context.Context, _ domain.Event) error {
		order = append(order, "second")
		return nil
	})
	bus.Subscribe(domain.BookDeleted, "other", func(_ context.Context, _ domain.Event) error {
		order = append(order, "other")
		return nil
	})

	bus.Publish(context.Background(), domain.Event{Type: domain.BookCreated, AggregateID: "b-1"})
	require.Equal(t, []string{"first", "second"}, order)
}

func TestPublishWithoutSubscribersIsANoOp(t *testing.T) {
	bus := New()
	bus.Publish(context.Background(), domain.Event{Type: domain.BookCreated})
}

func TestFailingSubscriberDoesNotStopTheRest(t *testing.T) {
	bus := New()

	delivered := 0
	bus.Subscribe(domain.BookCreated, "failing", func(_ context.Context, _ domain.Event) error {
		return errors.New("projection down")
	})
	bus.Subscribe(domain.BookCreated, "healthy", func(_ context.Context, _ domain.Event) error {
		delivered++
		return nil
	})

	bus.Publish(context.Background(), domain.Event{Type: domain.BookCreated, AggregateID: "b-1"})
	require.Equal(t, 1, delivered)
}

func TestPanickingSubscriberIsRecovered(t *testing.T) {
	bus := New()

	delivered := 0
	bus.Subscribe(domain.BookCreated, "panicking", func(_ context.Context, _ domain.Event) error {
		panic("nil map write")
	})
	bus.Subscribe(domain.BookCreated, "healthy", func(_ context.Context, _ domain.Event) error {
		delivered++
		return nil
	})

	require.NotPanics(t, func() {
		bus.Publish(context.Background(), domain.Event{Type: domain.BookCreated, AggregateID: "b-1"})
	})
	require.Equal(t, 1, delivered)
}

func TestSubscriberReceivesTheEvent(t *testing.T) {
	bus := New()

	var got domain.Event
	bus.Subscribe(domain.WalletCreated, "capture", func(_ context.Context, ev domain.Event) error {
		got = ev
		return nil
	})

	published := domain.Event{
		Type:        domain.WalletCreated,
		AggregateID: "w-1",
		Version:     1,
		Data:        domain.WalletCreatedPayload{WalletID: "w-1", UserID: "user-1", BalanceCents: 500},
	}
	bus.Publish(context.Background(), published)
	require.Equal(t, published, got)
}
