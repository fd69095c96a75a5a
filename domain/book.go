package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// BookAggregate is the write model for a catalog entry. The ISBN is the
// natural key; the aggregate ID is a surrogate UUID so a deleted ISBN can be
// re-registered under a fresh stream.
type BookAggregate struct {
	AggregateBase

	ISBN            string
	Title           string
	Author          string
	Publisher       string
	PublicationYear int
	Price           Money
}

// BookChanges lists the updatable fields. Nil means unchanged.
type BookChanges struct {
	Title           *string
	Author          *string
	Publisher       *string
	PublicationYear *int
	PriceCents      *int64
}

func (c BookChanges) isEmpty() bool {
	return c.Title == nil && c.Author == nil && c.Publisher == nil &&
		c.PublicationYear == nil && c.PriceCents == nil
}

// CreateBook validates the input and returns a fresh aggregate with a
// BookCreated event pending.
func CreateBook(isbn, title, author, publisher string, publicationYear int, price Money) (*BookAggregate, error) {
	if isbn == "" {
		return nil, NewValidationError("isbn", "must not be empty")
	}
	if title == "" {
		return nil, NewValidationError("title", "must not be empty")
	}
	if author == "" {
		return nil, NewValidationError("author", "must not be empty")
	}
	if publicationYear < 0 {
		return nil, NewValidationError("publication_year", "must not be negative")
	}
	if price.IsNegative() {
		return nil, NewValidationError("price", "must not be negative")
	}

	b := &BookAggregate{
		AggregateBase:   newAggregateBase(uuid.New().String(), AggregateTypeBook),
		ISBN:            isbn,
		Title:           title,
		Author:          author,
		Publisher:       publisher,
		PublicationYear: publicationYear,
		Price:           price,
	}
	b.record(BookCreatedPayload{
		BookID:          b.ID(),
		ISBN:            isbn,
		Title:           title,
		Author:          author,
		Publisher:       publisher,
		PublicationYear: publicationYear,
		PriceCents:      price.Cents(),
	}, time.Now().UTC())
	return b, nil
}

// Update applies the non-nil changes and records a BookUpdated event carrying
// only the changed fields. Updating with no effective change is a no-op.
func (b *BookAggregate) Update(changes BookChanges) error {
	if b.IsDeleted() {
		return ErrAlreadyDeleted
	}

	// Validate every field before touching the receiver so a rejected
	// update leaves the aggregate exactly as it was.
	if changes.Title != nil && *changes.Title == "" {
		return NewValidationError("title", "must not be empty")
	}
	if changes.Author != nil && *changes.Author == "" {
		return NewValidationError("author", "must not be empty")
	}
	if changes.PublicationYear != nil && *changes.PublicationYear < 0 {
		return NewValidationError("publication_year", "must not be negative")
	}
	if changes.PriceCents != nil && *changes.PriceCents < 0 {
		return NewValidationError("price", "must not be negative")
	}

	payload := BookUpdatedPayload{BookID: b.ID()}
	changed := false

	if changes.Title != nil && *changes.Title != b.Title {
		b.Title = *changes.Title
		payload.Title = changes.Title
		changed = true
	}
	if changes.Author != nil && *changes.Author != b.Author {
		b.Author = *changes.Author
		payload.Author = changes.Author
		changed = true
	}
	if changes.Publisher != nil && *changes.Publisher != b.Publisher {
		b.Publisher = *changes.Publisher
		payload.Publisher = changes.Publisher
		changed = true
	}
	if changes.PublicationYear != nil && *changes.PublicationYear != b.PublicationYear {
		b.PublicationYear = *changes.PublicationYear
		payload.PublicationYear = changes.PublicationYear
		changed = true
	}
	if changes.PriceCents != nil && Money(*changes.PriceCents) != b.Price {
		b.Price = Money(*changes.PriceCents)
		payload.PriceCents = changes.PriceCents
		changed = true
	}

	if !changed {
		if changes.isEmpty() {
			return NewValidationError("changes", "at least one field must be provided")
		}
		return nil
	}

	b.record(payload, time.Now().UTC())
	return nil
}

// Delete soft-deletes the book. Deleting twice returns ErrAlreadyDeleted.
func (b *BookAggregate) Delete() error {
	if b.IsDeleted() {
		return ErrAlreadyDeleted
	}
	now := time.Now().UTC()
	b.deletedAt = &now
	b.record(BookDeletedPayload{
		BookID:    b.ID(),
		ISBN:      b.ISBN,
		DeletedAt: now,
	}, now)
	return nil
}

// RehydrateBook replays a committed event stream into a BookAggregate. The
// stream must start with BookCreated at version 1 and be gapless.
func RehydrateBook(aggregateID string, events []Event) (*BookAggregate, error) {
	if len(events) == 0 {
		return nil, &RehydrationError{AggregateID: aggregateID, Reason: "empty event stream"}
	}
	if events[0].Type != BookCreated {
		return nil, &RehydrationError{
			AggregateID: aggregateID,
			Reason:      "stream does not begin with " + BookCreated,
		}
	}

	b := &BookAggregate{AggregateBase: newAggregateBase(aggregateID, AggregateTypeBook)}
	for i, ev := range events {
		if ev.Version != i+1 {
			return nil, &RehydrationError{AggregateID: aggregateID, Reason: "version gap in event stream"}
		}
		if err := b.apply(ev); err != nil {
			return nil, errors.Wrapf(err, "replaying event %s v%d", ev.Type, ev.Version)
		}
		b.setCommittedVersion(ev.Version)
	}
	return b, nil
}

func (b *BookAggregate) apply(ev Event) error {
	switch p := ev.Data.(type) {
	case BookCreatedPayload:
		b.ISBN = p.ISBN
		b.Title = p.Title
		b.Author = p.Author
		b.Publisher = p.Publisher
		b.PublicationYear = p.PublicationYear
		b.Price = Money(p.PriceCents)
	case BookUpdatedPayload:
		if p.Title != nil {
			b.Title = *p.Title
		}
		if p.Author != nil {
			b.Author = *p.Author
		}
		if p.Publisher != nil {
			b.Publisher = *p.Publisher
		}
		if p.PublicationYear != nil {
			b.PublicationYear = *p.PublicationYear
		}
		if p.PriceCents != nil {
			b.Price = Money(*p.PriceCents)
		}
	case BookDeletedPayload:
		at := p.DeletedAt
		b.deletedAt = &at
	default:
		return errors.Errorf("unexpected event type %s on book stream", ev.Type)
	}
	return nil
}
