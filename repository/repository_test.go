package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"example.com/libraria/services/library/domain"
	"example.com/libraria/services/library/eventstore"
)

func newBookRepo() *BookRepository {
	return NewBookRepository(eventstore.NewMemoryEventStore(), NewMemoryKeyIndex())
}

func TestBookRepositorySaveLoadRoundtrip(t *testing.T) {
	ctx := context.Background()
	repo := newBookRepo()

	book, err := domain.CreateBook("978-0-1", "T", "A", "P", 2020, domain.MoneyFromCents(1500))
	require.NoError(t, err)

	committed, err := repo.Save(ctx, book)
	require.NoError(t, err)
	require.Len(t, committed, 1)
	require.Equal(t, domain.BookCreated, committed[0].Type)
	require.Empty(t, book.PendingEvents())
	require.Equal(t, 1, book.Version())

	loaded, err := repo.Load(ctx, book.ID())
	require.NoError(t, err)
	require.Equal(t, "T", loaded.Title)
	require.Equal(t, 1, loaded.Version())
}

func TestBookRepositorySaveNothingPending(t *testing.T) {
	ctx := context.Background()
	repo := newBookRepo()

	book, err := domain.CreateBook("978-0-1", "T", "A", "", 2020, 0)
	require.NoError(t, err)
	_, err = repo.Save(ctx, book)
	require.NoError(t, err)

	committed, err := repo.Save(ctx, book)
	require.NoError(t, err)
	require.Empty(t, committed)
}

func TestBookRepositoryLoadMissing(t *testing.T) {
	ctx := context.Background()
	repo := newBookRepo()

	_, err := repo.Load(ctx, "unknown")
	require.ErrorIs(t, err, domain.ErrAggregateNotFound)

	_, err = repo.Load(ctx, "")
	require.ErrorIs(t, err, ErrInvalidAggregateID)
}

func TestBookRepositoryConflictOnStaleSave(t *testing.T) {
	ctx := context.Background()
	repo := newBookRepo()

	book, err := domain.CreateBook("978-0-1", "T", "A", "", 2020, 0)
	require.NoError(t, err)
	_, err = repo.Save(ctx, book)
	require.NoError(t, err)

	stale, err := repo.Load(ctx, book.ID())
	require.NoError(t, err)
	fresh, err := repo.Load(ctx, book.ID())
	require.NoError(t, err)

	title := "fresh"
	require.NoError(t, fresh.Update(domain.BookChanges{Title: &title}))
	_, err = repo.Save(ctx, fresh)
	require.NoError(t, err)

	title = "stale"
	require.NoError(t, stale.Update(domain.BookChanges{Title: &title}))
	_, err = repo.Save(ctx, stale)
	require.ErrorIs(t, err, eventstore.ErrConcurrencyConflict)
}

func TestFindIDByISBNUsesIndex(t *testing.T) {
	ctx := context.Background()
	repo := newBookRepo()

	book, err := domain.CreateBook("978-0-1", "T", "A", "", 2020, 0)
	require.NoError(t, err)
	_, err = repo.Save(ctx, book)
	require.NoError(t, err)

	id, err := repo.FindIDByISBN(ctx, "978-0-1")
	require.NoError(t, err)
	require.Equal(t, book.ID(), id)

	id, err = repo.FindIDByISBN(ctx, "978-0-2")
	require.NoError(t, err)
	require.Empty(t, id)
}

func TestFindIDByISBNFallsBackToLogScan(t *testing.T) {
	ctx := context.Background()
	store := eventstore.NewMemoryEventStore()
	repo := NewBookRepository(store, NewMemoryKeyIndex())

	book, err := domain.CreateBook("978-0-1", "T", "A", "", 2020, 0)
	require.NoError(t, err)
	require.NoError(t, store.AppendBatch(ctx, book.PendingEvents(), 0))
	book.MarkCommitted()

	// The event is in the log but the index never saw it
	id, err := repo.FindIDByISBN(ctx, "978-0-1")
	require.NoError(t, err)
	require.Equal(t, book.ID(), id)
}

func TestFindIDByISBNAfterDeleteAndReRegister(t *testing.T) {
	ctx := context.Background()
	repo := newBookRepo()

	old, err := domain.CreateBook("978-0-1", "T", "A", "", 2020, 0)
	require.NoError(t, err)
	_, err = repo.Save(ctx, old)
	require.NoError(t, err)
	require.NoError(t, old.Delete())
	_, err = repo.Save(ctx, old)
	require.NoError(t, err)

	// Deleted ISBN resolves to nothing
	id, err := repo.FindIDByISBN(ctx, "978-0-1")
	require.NoError(t, err)
	require.Empty(t, id)

	// A fresh stream can take the ISBN over
	fresh, err := domain.CreateBook("978-0-1", "T2", "A2", "", 2021, 0)
	require.NoError(t, err)
	_, err = repo.Save(ctx, fresh)
	require.NoError(t, err)

	id, err = repo.FindIDByISBN(ctx, "978-0-1")
	require.NoError(t, err)
	require.Equal(t, fresh.ID(), id)
	require.NotEqual(t, old.ID(), id)
}

func TestFindIDByISBNStaleIndexEntryIsVerified(t *testing.T) {
	ctx := context.Background()
	store := eventstore.NewMemoryEventStore()
	keys := NewMemoryKeyIndex()
	repo := NewBookRepository(store, keys)

	// Index points at a stream that turns out deleted
	book, err := domain.CreateBook("978-0-1", "T", "A", "", 2020, 0)
	require.NoError(t, err)
	require.NoError(t, store.AppendBatch(ctx, book.PendingEvents(), 0))
	book.MarkCommitted()
	require.NoError(t, book.Delete())
	require.NoError(t, store.AppendBatch(ctx, book.PendingEvents(), book.Version()))
	book.MarkCommitted()
	require.NoError(t, keys.Put(ctx, KeyTypeISBN, "978-0-1", book.ID()))

	id, err := repo.FindIDByISBN(ctx, "978-0-1")
	require.NoError(t, err)
	require.Empty(t, id)
}

func TestWalletRepositoryFindIDByUser(t *testing.T) {
	ctx := context.Background()
	repo := NewWalletRepository(eventstore.NewMemoryEventStore(), NewMemoryKeyIndex())

	wallet, err := domain.CreateWallet("user-1", domain.MoneyFromCents(1000))
	require.NoError(t, err)
	_, err = repo.Save(ctx, wallet)
	require.NoError(t, err)

	id, err := repo.FindIDByUserID(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, wallet.ID(), id)

	id, err = repo.FindIDByUserID(ctx, "user-2")
	require.NoError(t, err)
	require.Empty(t, id)
}

func TestReservationRepositoryRoundtrip(t *testing.T) {
	ctx := context.Background()
	repo := NewReservationRepository(eventstore.NewMemoryEventStore())

	res, err := domain.CreateReservation("book-1", "user-1", domain.MoneyFromCents(300))
	require.NoError(t, err)
	committed, err := repo.Save(ctx, res)
	require.NoError(t, err)
	require.Len(t, committed, 1)

	loaded, err := repo.Load(ctx, res.ID())
	require.NoError(t, err)
	require.Equal(t, domain.ReservationStatusCreated, loaded.Status)
	require.Equal(t, "book-1", loaded.BookID)
}
