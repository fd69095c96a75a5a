package repository

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/libraria/services/library/domain"
	"example.com/libraria/services/library/eventstore"
)

// BookRepository loads and saves book aggregates against the event store and
// keeps the ISBN index pointing at the live stream for each ISBN.
type BookRepository struct {
	store eventstore.EventStore
	keys  KeyIndex
}

// NewBookRepository creates a new book repository.
func NewBookRepository(store eventstore.EventStore, keys KeyIndex) *BookRepository {
	return &BookRepository{store: store, keys: keys}
}

// Load rehydrates a book from its event stream.
func (r *BookRepository) Load(ctx context.Context, aggregateID string) (*domain.BookAggregate, error) {
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
	return domain.RehydrateBook(aggregateID, events)
}

// Save appends the aggregate's pending events gated on its committed
// version, then refreshes the ISBN index. The index update is best effort;
// the log stays authoritative and FindIDByISBN falls back to scanning it.
func (r *BookRepository) Save(ctx context.Context, book *domain.BookAggregate) ([]domain.Event, error) {
	pending := book.PendingEvents()
	if len(pending) == 0 {
		return nil, nil
	}

	if err := r.store.AppendBatch(ctx, pending, book.Version()); err != nil {
		return nil, err
	}

	for _, ev := range pending {
		switch ev.Data.(type) {
		case domain.BookCreatedPayload:
			if err := r.keys.Put(ctx, KeyTypeISBN, book.ISBN, book.ID()); err != nil {
				log.Warn().Err(err).Str("isbn", book.ISBN).Msg("Failed to index ISBN")
			}
		case domain.BookDeletedPayload:
			if err := r.keys.Delete(ctx, KeyTypeISBN, book.ISBN); err != nil {
				log.Warn().Err(err).Str("isbn", book.ISBN).Msg("Failed to unindex ISBN")
			}
		}
	}

	book.MarkCommitted()
	return pending, nil
}

// FindIDByISBN resolves an ISBN to the aggregate ID of the live (non-deleted)
// book carrying it, or "" when none does. A missing index entry triggers a
// scan of the global log so index lag never hides a book.
func (r *BookRepository) FindIDByISBN(ctx context.Context, isbn string) (string, error) {
	id, err := r.keys.Get(ctx, KeyTypeISBN, isbn)
	if err != nil {
		return "", err
	}
	if id != "" {
		book, err := r.Load(ctx, id)
		if err != nil && !errors.Is(err, domain.ErrAggregateNotFound) {
			return "", err
		}
		if err == nil && !book.IsDeleted() && book.ISBN == isbn {
			return id, nil
		}
	}
	return r.scanForISBN(ctx, isbn)
}

// scanForISBN walks the global log and returns the newest live stream whose
// ISBN matches. Deleted streams release the ISBN for re-registration.
func (r *BookRepository) scanForISBN(ctx context.Context, isbn string) (string, error) {
	const batchSize = 500

	live := make(map[string]bool)
	var cursor int64
	for {
		events, err := r.store.StreamEvents(ctx, cursor, batchSize)
		if err != nil {
			return "", err
		}
		for _, ev := range events {
			cursor = ev.GlobalVersion
			switch p := ev.Data.(type) {
			case domain.BookCreatedPayload:
				if p.ISBN == isbn {
					live[ev.AggregateID] = true
				}
			case domain.BookDeletedPayload:
				delete(live, ev.AggregateID)
			}
		}
		if len(events) < batchSize {
			break
		}
	}

	var found string
	for id := range live {
		if found != "" {
			return "", errors.Errorf("ISBN %s maps to multiple live books", isbn)
		}
		found = id
	}
	return found, nil
}
