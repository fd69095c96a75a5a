package eventstore

import (
	"context"
	"errors"
	"fmt"

	"example.com/libraria/services/library/domain"
)

// ErrConcurrencyConflict signals that the expected version no longer matches
// the stream head. Callers match with errors.Is.
var ErrConcurrencyConflict = errors.New("concurrency conflict")

// ConcurrencyError carries the versions involved in a failed append.
type ConcurrencyError struct {
	AggregateID     string
	ExpectedVersion int
	FoundVersion    int
}

func (e *ConcurrencyError) Error() string {
	return fmt.Sprintf("concurrency conflict on aggregate %s: expected version %d, found %d",
		e.AggregateID, e.ExpectedVersion, e.FoundVersion)
}

func (e *ConcurrencyError) Is(target error) bool {
	return target == ErrConcurrencyConflict
}

// EventStore is the append-only log of domain events. Appends are gated on
// the expected current version of the target stream; per-aggregate versions
// stay gapless, and the store assigns a global version to every stored event.
type EventStore interface {
	// Append stores one event, failing with a ConcurrencyError unless the
	// stream head is exactly expectedVersion.
	Append(ctx context.Context, event domain.Event, expectedVersion int) error

	// AppendBatch stores a run of events for one aggregate atomically, gated
	// on expectedVersion. All or none are stored.
	AppendBatch(ctx context.Context, events []domain.Event, expectedVersion int) error

	// Load returns all events of an aggregate in version order. A missing
	// aggregate yields an empty slice, not an error.
	Load(ctx context.Context, aggregateID string) ([]domain.Event, error)

	// Exists reports whether any event was stored for the aggregate.
	Exists(ctx context.Context, aggregateID string) (bool, error)

	// StreamEvents returns up to batchSize events with a global version
	// strictly greater than fromGlobalVersion, in global order.
	StreamEvents(ctx context.Context, fromGlobalVersion int64, batchSize int) ([]domain.Event, error)

	// GetUnprocessedEvents returns events not yet handed to the background
	// processor, oldest first.
	GetUnprocessedEvents(ctx context.Context, limit int) ([]domain.Event, error)

	// MarkEventProcessed flags an event as handled by the background
	// processor.
	MarkEventProcessed(ctx context.Context, eventID string) error
}
