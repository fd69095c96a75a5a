package eventstore

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"example.com/libraria/services/library/domain"
)

func newBookWithHistory(t *testing.T) *domain.BookAggregate {
	t.Helper()
	book, err := domain.CreateBook("978-0-1", "T", "A", "P", 2020, domain.MoneyFromCents(1500))
	require.NoError(t, err)
	return book
}

func TestMemoryStoreAppendAndLoadRoundtrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryEventStore()
	book := newBookWithHistory(t)

	require.NoError(t, store.AppendBatch(ctx, book.PendingEvents(), book.Version()))
	book.MarkCommitted()

	title := "T2"
	require.NoError(t, book.Update(domain.BookChanges{Title: &title}))
	require.NoError(t, store.AppendBatch(ctx, book.PendingEvents(), book.Version()))
	book.MarkCommitted()

	events, err := store.Load(ctx, book.ID())
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, 1, events[0].Version)
	require.Equal(t, 2, events[1].Version)
	require.Equal(t, int64(1), events[0].GlobalVersion)
	require.Equal(t, int64(2), events[1].GlobalVersion)

	replayed, err := domain.RehydrateBook(book.ID(), events)
	require.NoError(t, err)
	require.Equal(t, "T2", replayed.Title)
	require.Equal(t, 2, replayed.Version())

	exists, err := store.Exists(ctx, book.ID())
	require.NoError(t, err)
	require.True(t, exists)
	exists, err = store.Exists(ctx, "nope")
	require.NoError(t, err)
	require.False(t, exists)
}

func TestMemoryStoreRejectsStaleExpectedVersion(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryEventStore()
	book := newBookWithHistory(t)
	require.NoError(t, store.AppendBatch(ctx, book.PendingEvents(), 0))
	book.MarkCommitted()

	// Two writers each load version 1 and try to append version 2
	titleA, titleB := "A-side", "B-side"
	first, err := domain.RehydrateBook(book.ID(), mustLoad(t, store, book.ID()))
	require.NoError(t, err)
	second, err := domain.RehydrateBook(book.ID(), mustLoad(t, store, book.ID()))
	require.NoError(t, err)

	require.NoError(t, first.Update(domain.BookChanges{Title: &titleA}))
	require.NoError(t, second.Update(domain.BookChanges{Title: &titleB}))

	require.NoError(t, store.AppendBatch(ctx, first.PendingEvents(), first.Version()))
	err = store.AppendBatch(ctx, second.PendingEvents(), second.Version())
	require.ErrorIs(t, err, ErrConcurrencyConflict)

	var cErr *ConcurrencyError
	require.ErrorAs(t, err, &cErr)
	require.Equal(t, book.ID(), cErr.AggregateID)
	require.Equal(t, 1, cErr.ExpectedVersion)
	require.Equal(t, 2, cErr.FoundVersion)
}

func TestMemoryStoreBadBatchPersistsNothing(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryEventStore()
	book := newBookWithHistory(t)

	created := book.PendingEvents()[0]
	gapped := created
	gapped.Version = 3

	// A gap in the batch tail must leave the whole batch out of the store
	err := store.AppendBatch(ctx, []domain.Event{created, gapped}, 0)
	require.ErrorIs(t, err, ErrConcurrencyConflict)
	require.Empty(t, mustLoad(t, store, book.ID()))

	foreign := created
	foreign.AggregateID = "other-aggregate"
	foreign.Version = 2
	err = store.AppendBatch(ctx, []domain.Event{created, foreign}, 0)
	require.ErrorIs(t, err, ErrConcurrencyConflict)
	require.Empty(t, mustLoad(t, store, book.ID()))

	// The global log is untouched too
	page, err := store.StreamEvents(ctx, 0, 10)
	require.NoError(t, err)
	require.Empty(t, page)

	// The same batch, repaired, then goes through
	require.NoError(t, store.AppendBatch(ctx, []domain.Event{created}, 0))
	require.Len(t, mustLoad(t, store, book.ID()), 1)
}

func TestMemoryStoreConcurrentWritersExactlyOneWins(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryEventStore()
	book := newBookWithHistory(t)
	require.NoError(t, store.AppendBatch(ctx, book.PendingEvents(), 0))
	book.MarkCommitted()

	// Every writer rehydrates from the same snapshot so all of them race to
	// append version 2.
	snapshot := mustLoad(t, store, book.ID())

	const writers = 8
	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			replayed, err := domain.RehydrateBook(book.ID(), snapshot)
			if err != nil {
				errs[i] = err
				return
			}
			title := "winner"
			if err := replayed.Update(domain.BookChanges{Title: &title}); err != nil {
				errs[i] = err
				return
			}
			errs[i] = store.AppendBatch(ctx, replayed.PendingEvents(), replayed.Version())
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else {
			require.ErrorIs(t, err, ErrConcurrencyConflict)
		}
	}
	require.Equal(t, 1, winners)

	events := mustLoad(t, store, book.ID())
	require.Len(t, events, 2)
}

func TestMemoryStoreStreamEventsPagesByGlobalVersion(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryEventStore()

	for i := 0; i < 3; i++ {
		book := newBookWithHistory(t)
		require.NoError(t, store.AppendBatch(ctx, book.PendingEvents(), 0))
		book.MarkCommitted()
		require.NoError(t, book.Delete())
		require.NoError(t, store.AppendBatch(ctx, book.PendingEvents(), book.Version()))
		book.MarkCommitted()
	}

	page, err := store.StreamEvents(ctx, 0, 4)
	require.NoError(t, err)
	require.Len(t, page, 4)
	require.Equal(t, int64(1), page[0].GlobalVersion)
	require.Equal(t, int64(4), page[3].GlobalVersion)

	page, err = store.StreamEvents(ctx, page[3].GlobalVersion, 4)
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.Equal(t, int64(5), page[0].GlobalVersion)

	page, err = store.StreamEvents(ctx, 6, 4)
	require.NoError(t, err)
	require.Empty(t, page)
}

func TestMemoryStoreUnprocessedTracking(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryEventStore()
	book := newBookWithHistory(t)
	require.NoError(t, store.AppendBatch(ctx, book.PendingEvents(), 0))
	created := book.PendingEvents()[0]
	book.MarkCommitted()

	unprocessed, err := store.GetUnprocessedEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, unprocessed, 1)

	require.NoError(t, store.MarkEventProcessed(ctx, created.ID))

	unprocessed, err = store.GetUnprocessedEvents(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, unprocessed)
}

func mustLoad(t *testing.T, store *MemoryEventStore, aggregateID string) []domain.Event {
	t.Helper()
	events, err := store.Load(context.Background(), aggregateID)
	require.NoError(t, err)
	return events
}
