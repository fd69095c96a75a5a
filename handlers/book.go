package handlers

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/libraria/services/library/domain"
	"example.com/libraria/services/library/eventbus"
	"example.com/libraria/services/library/repository"
	"example.com/libraria/services/library/utils"
)

// ErrDuplicateISBN signals an attempt to register an ISBN that a live book
// already carries.
var ErrDuplicateISBN = errors.New("a book with this ISBN already exists")

// Command structs
type CreateBookCommand struct {
	ISBN            string `json:"isbn" validate:"required"`
	Title           string `json:"title" validate:"required"`
	Author          string `json:"author" validate:"required"`
	Publisher       string `json:"publisher"`
	PublicationYear int    `json:"publication_year" validate:"gte=0"`
	PriceCents      int64  `json:"price_cents" validate:"gte=0"`
}

type UpdateBookCommand struct {
	AggregateID     string  `json:"aggregate_id" validate:"required"`
	Title           *string `json:"title"`
	Author          *string `json:"author"`
	Publisher       *string `json:"publisher"`
	PublicationYear *int    `json:"publication_year"`
	PriceCents      *int64  `json:"price_cents"`
}

type DeleteBookCommand struct {
	AggregateID string `json:"aggregate_id" validate:"required"`
}

// BookHandler executes catalog commands against the event-sourced write
// model and publishes the committed events on the bus.
type BookHandler struct {
	books *repository.BookRepository
	bus   *eventbus.Bus
}

// NewBookHandler creates a new book handler.
func NewBookHandler(books *repository.BookRepository, bus *eventbus.Bus) *BookHandler {
	return &BookHandler{books: books, bus: bus}
}

// HandleCreateBook registers a new book. The ISBN must not belong to a live
// book; a previously deleted ISBN may be re-registered under a new stream.
func (h *BookHandler) HandleCreateBook(ctx context.Context, cmd CreateBookCommand) (*domain.BookAggregate, error) {
	if err := utils.ValidateStruct(cmd); err != nil {
		return nil, err
	}

	existingID, err := h.books.FindIDByISBN(ctx, cmd.ISBN)
	if err != nil {
		return nil, err
	}
	if existingID != "" {
		return nil, ErrDuplicateISBN
	}

	book, err := domain.CreateBook(cmd.ISBN, cmd.Title, cmd.Author, cmd.Publisher,
		cmd.PublicationYear, domain.Money(cmd.PriceCents))
	if err != nil {
		return nil, err
	}

	saved, err := h.books.Save(ctx, book)
	if err != nil {
		return nil, err
	}
	h.publish(ctx, saved)

	log.Info().
		Str("aggregateID", book.ID()).
		Str("isbn", cmd.ISBN).
		Msg("Book created")
	return book, nil
}

// HandleUpdateBook applies a partial update to a book.
func (h *BookHandler) HandleUpdateBook(ctx context.Context, cmd UpdateBookCommand) (*domain.BookAggregate, error) {
	if err := utils.ValidateStruct(cmd); err != nil {
		return nil, err
	}

	book, err := h.books.Load(ctx, cmd.AggregateID)
	if err != nil {
		return nil, err
	}

	if err := book.Update(domain.BookChanges{
		Title:           cmd.Title,
		Author:          cmd.Author,
		Publisher:       cmd.Publisher,
		PublicationYear: cmd.PublicationYear,
		PriceCents:      cmd.PriceCents,
	}); err != nil {
		return nil, err
	}

	saved, err := h.books.Save(ctx, book)
	if err != nil {
		return nil, err
	}
	h.publish(ctx, saved)
	return book, nil
}

// HandleDeleteBook soft-deletes a book, releasing its ISBN.
func (h *BookHandler) HandleDeleteBook(ctx context.Context, cmd DeleteBookCommand) error {
	if err := utils.ValidateStruct(cmd); err != nil {
		return err
	}

	book, err := h.books.Load(ctx, cmd.AggregateID)
	if err != nil {
		return err
	}
	if err := book.Delete(); err != nil {
		return err
	}

	saved, err := h.books.Save(ctx, book)
	if err != nil {
		return err
	}
	h.publish(ctx, saved)

	log.Info().
		Str("aggregateID", cmd.AggregateID).
		Msg("Book deleted")
	return nil
}

func (h *BookHandler) publish(ctx context.Context, events []domain.Event) {
	for _, ev := range events {
		h.bus.Publish(ctx, ev)
	}
}
