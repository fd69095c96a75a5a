package repository

import (
	"context"

	"example.com/libraria/services/library/domain"
	"example.com/libraria/services/library/eventstore"
)

// ReservationRepository loads and saves reservation aggregates. Reservations
// have no natural key; lookups always go through the aggregate ID.
type ReservationRepository struct {
	store eventstore.EventStore
}

// NewReservationRepository creates a new reservation repository.
func NewReservationRepository(store eventstore.EventStore) *ReservationRepository {
	return &ReservationRepository{store: store}
}

// Load rehydrates a reservation from its event stream.
func (r *ReservationRepository) Load(ctx context.Context, aggregateID string) (*domain.ReservationAggregate, error) {
	if aggregateID == "" {
		return nil, ErrInvalidAggregateID
	}
	events, err := r.store.Load(ctx, aggregateID)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, domain.ErrAggregateNotFound
	}
	return domain.RehydrateReservation(aggregateID, events)
}

// Save appends the aggregate's pending events gated on its committed version.
func (r *ReservationRepository) Save(ctx context.Context, res *domain.ReservationAggregate) ([]domain.Event, error) {
	pending := res.PendingEvents()
	if len(pending) == 0 {
		return nil, nil
	}
	if err := r.store.AppendBatch(ctx, pending, res.Version()); err != nil {
		return nil, err
	}
	res.MarkCommitted()
	return pending, nil
}
