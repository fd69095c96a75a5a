package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCreateBookRecordsFirstEvent(t *testing.T) {
	book, err := CreateBook("978-0-1", "T", "A", "P", 2020, MoneyFromCents(1500))
	require.NoError(t, err)

	require.Equal(t, 0, book.Version())
	pending := book.PendingEvents()
	require.Len(t, pending, 1)
	require.Equal(t, BookCreated, pending[0].Type)
	require.Equal(t, 1, pending[0].Version)
	require.Equal(t, book.ID(), pending[0].AggregateID)

	payload, ok := pending[0].Data.(BookCreatedPayload)
	require.True(t, ok)
	require.Equal(t, "978-0-1", payload.ISBN)
	require.Equal(t, int64(1500), payload.PriceCents)
}

func TestCreateBookValidation(t *testing.T) {
	_, err := CreateBook("", "T", "A", "", 2020, 0)
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	require.Equal(t, "isbn", vErr.Field)

	_, err = CreateBook("978-0-1", "", "A", "", 2020, 0)
	require.ErrorAs(t, err, &vErr)
	require.Equal(t, "title", vErr.Field)

	_, err = CreateBook("978-0-1", "T", "A", "", 2020, MoneyFromCents(-1))
	require.ErrorAs(t, err, &vErr)
	require.Equal(t, "price", vErr.Field)
}

func TestBookUpdateBuffersChangedFieldsOnly(t *testing.T) {
	book, err := CreateBook("978-0-1", "T", "A", "", 2020, MoneyFromCents(1500))
	require.NoError(t, err)
	book.MarkCommitted()
	require.Equal(t, 1, book.Version())

	title := "T2"
	require.NoError(t, book.Update(BookChanges{Title: &title}))
	require.Equal(t, "T2", book.Title)

	pending := book.PendingEvents()
	require.Len(t, pending, 1)
	require.Equal(t, BookUpdated, pending[0].Type)
	require.Equal(t, 2, pending[0].Version)

	payload := pending[0].Data.(BookUpdatedPayload)
	require.NotNil(t, payload.Title)
	require.Equal(t, "T2", *payload.Title)
	require.Nil(t, payload.Author)
	require.Nil(t, payload.PriceCents)
}

func TestBookUpdateRejectedLeavesAggregateIntact(t *testing.T) {
	book, err := CreateBook("978-0-1", "T", "A", "", 2020, MoneyFromCents(1500))
	require.NoError(t, err)
	book.MarkCommitted()

	// One valid field alongside one invalid must not apply either
	title := "T2"
	badYear := -1
	err = book.Update(BookChanges{Title: &title, PublicationYear: &badYear})
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	require.Equal(t, "T", book.Title)
	require.Equal(t, 2020, book.PublicationYear)
	require.Empty(t, book.PendingEvents())

	// The corrected retry still sees the original state and records both
	year := 2021
	require.NoError(t, book.Update(BookChanges{Title: &title, PublicationYear: &year}))
	require.Equal(t, "T2", book.Title)
	require.Equal(t, 2021, book.PublicationYear)

	pending := book.PendingEvents()
	require.Len(t, pending, 1)
	payload := pending[0].Data.(BookUpdatedPayload)
	require.NotNil(t, payload.Title)
	require.Equal(t, "T2", *payload.Title)
	require.NotNil(t, payload.PublicationYear)
	require.Equal(t, 2021, *payload.PublicationYear)
}

func TestBookUpdateNoEffectiveChange(t *testing.T) {
	book, err := CreateBook("978-0-1", "T", "A", "", 2020, MoneyFromCents(1500))
	require.NoError(t, err)
	book.MarkCommitted()

	// Same value is a no-op, no event buffered
	title := "T"
	require.NoError(t, book.Update(BookChanges{Title: &title}))
	require.Empty(t, book.PendingEvents())

	// No fields at all is a validation error
	err = book.Update(BookChanges{})
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
}

func TestBookDeleteTwice(t *testing.T) {
	book, err := CreateBook("978-0-1", "T", "A", "", 2020, MoneyFromCents(1500))
	require.NoError(t, err)
	book.MarkCommitted()

	require.NoError(t, book.Delete())
	require.True(t, book.IsDeleted())
	require.ErrorIs(t, book.Delete(), ErrAlreadyDeleted)

	require.ErrorIs(t, book.Update(BookChanges{Title: strPtr("X")}), ErrAlreadyDeleted)
}

func TestRehydrateBookReplaysHistory(t *testing.T) {
	book, err := CreateBook("978-0-1", "T", "A", "", 2020, MoneyFromCents(1500))
	require.NoError(t, err)
	title := "T2"
	price := int64(2000)

	var history []Event
	history = append(history, book.PendingEvents()...)
	book.MarkCommitted()
	require.NoError(t, book.Update(BookChanges{Title: &title, PriceCents: &price}))
	history = append(history, book.PendingEvents()...)
	book.MarkCommitted()
	require.NoError(t, book.Delete())
	history = append(history, book.PendingEvents()...)
	book.MarkCommitted()

	replayed, err := RehydrateBook(book.ID(), history)
	require.NoError(t, err)
	require.Equal(t, 3, replayed.Version())
	require.Equal(t, "T2", replayed.Title)
	require.Equal(t, MoneyFromCents(2000), replayed.Price)
	require.True(t, replayed.IsDeleted())
	require.Empty(t, replayed.PendingEvents())
}

func TestRehydrateBookRejectsBadStreams(t *testing.T) {
	_, err := RehydrateBook("b-1", nil)
	var rErr *RehydrationError
	require.ErrorAs(t, err, &rErr)

	// First event must be the creation
	_, err = RehydrateBook("b-1", []Event{{
		Type: BookUpdated, Version: 1, Data: BookUpdatedPayload{BookID: "b-1"},
	}})
	require.ErrorAs(t, err, &rErr)

	// Versions must be gapless from 1
	created := Event{
		Type: BookCreated, Version: 1, Timestamp: time.Now(),
		Data: BookCreatedPayload{BookID: "b-1", ISBN: "978-0-1", Title: "T", Author: "A"},
	}
	gapped := Event{
		Type: BookDeleted, Version: 3,
		Data: BookDeletedPayload{BookID: "b-1", ISBN: "978-0-1"},
	}
	_, err = RehydrateBook("b-1", []Event{created, gapped})
	require.ErrorAs(t, err, &rErr)
}

func strPtr(s string) *string { return &s }
