package projections

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/elastic/go-elasticsearch/v7"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"example.com/libraria/services/library/cache"
	"example.com/libraria/services/library/config"
	"example.com/libraria/services/library/domain"
	"example.com/libraria/services/library/models"
)

// EventPublisher puts integration events on the in-process bus.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.Event)
}

// BookProjector folds book events into the catalog read model. Handlers are
// idempotent: each row remembers the version of the last event applied and
// older or replayed events fall through without effect.
type BookProjector struct {
	db            *gorm.DB
	elasticClient *elasticsearch.Client
	cache         *cache.RedisCache
	cfg           config.Config
}

// NewBookProjector creates a new book projector.
func NewBookProjector(db *gorm.DB, elasticClient *elasticsearch.Client, cache *cache.RedisCache, cfg config.Config) *BookProjector {
	return &BookProjector{
		db:            db,
		elasticClient: elasticClient,
		cache:         cache,
		cfg:           cfg,
	}
}

// Project projects an event
func (p *BookProjector) Project(ctx context.Context, event domain.Event) error {
	switch event.Type {
	case domain.BookCreated:
		return p.projectBookCreated(ctx, event)
	case domain.BookUpdated:
		return p.projectBookUpdated(ctx, event)
	case domain.BookDeleted:
		return p.projectBookDeleted(ctx, event)
	default:
		return nil
	}
}

func (p *BookProjector) projectBookCreated(ctx context.Context, event domain.Event) error {
	data, ok := event.Data.(domain.BookCreatedPayload)
	if !ok {
		return errors.Errorf("unexpected payload for %s", event.Type)
	}

	book := models.BookProjection{
		AggregateID:     event.AggregateID,
		Version:         event.Version,
		ISBN:            data.ISBN,
		Title:           data.Title,
		Author:          data.Author,
		Publisher:       data.Publisher,
		PublicationYear: data.PublicationYear,
		PriceCents:      data.PriceCents,
		CreatedAt:       event.Timestamp,
		UpdatedAt:       event.Timestamp,
	}

	if err := p.db.WithContext(ctx).Create(&book).Error; err != nil {
		// A duplicate means the event was already projected
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil
		}
		return fmt.Errorf("failed to create book projection: %w", err)
	}

	p.invalidate(ctx, event.AggregateID)
	return p.indexBook(ctx, book)
}

func (p *BookProjector) projectBookUpdated(ctx context.Context, event domain.Event) error {
	data, ok := event.Data.(domain.BookUpdatedPayload)
	if !ok {
		return errors.Errorf("unexpected payload for %s", event.Type)
	}

	updates := map[string]interface{}{
		"version":    event.Version,
		"updated_at": event.Timestamp,
	}
	if data.Title != nil {
		updates["title"] = *data.Title
	}
	if data.Author != nil {
		updates["author"] = *data.Author
	}
	if data.Publisher != nil {
		updates["publisher"] = *data.Publisher
	}
	if data.PublicationYear != nil {
		updates["publication_year"] = *data.PublicationYear
	}
	if data.PriceCents != nil {
		updates["price_cents"] = *data.PriceCents
	}

	// The version gate skips events already folded in
	res := p.db.WithContext(ctx).
		Model(&models.BookProjection{}).
		Where("aggregate_id = ? AND version < ?", event.AggregateID, event.Version).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to update book projection: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil
	}

	p.invalidate(ctx, event.AggregateID)

	var book models.BookProjection
	if err := p.db.WithContext(ctx).
		Where("aggregate_id = ?", event.AggregateID).
		First(&book).Error; err != nil {
		return fmt.Errorf("failed to reload book projection: %w", err)
	}
	return p.indexBook(ctx, book)
}

func (p *BookProjector) projectBookDeleted(ctx context.Context, event domain.Event) error {
	res := p.db.WithContext(ctx).
		Model(&models.BookProjection{}).
		Where("aggregate_id = ? AND version < ?", event.AggregateID, event.Version).
		Update("version", event.Version)
	if res.Error != nil {
		return fmt.Errorf("failed to version book projection: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil
	}

	if err := p.db.WithContext(ctx).
		Where("aggregate_id = ?", event.AggregateID).
		Delete(&models.BookProjection{}).Error; err != nil {
		return fmt.Errorf("failed to delete book projection: %w", err)
	}

	p.invalidate(ctx, event.AggregateID)
	return p.deleteFromIndex(ctx, event.AggregateID)
}

func (p *BookProjector) invalidate(ctx context.Context, aggregateID string) {
	if p.cache == nil {
		return
	}
	if err := p.cache.DeleteBook(ctx, aggregateID); err != nil {
		log.Warn().Err(err).Str("aggregateID", aggregateID).Msg("Failed to invalidate book cache")
	}
}

func (p *BookProjector) indexBook(ctx context.Context, book models.BookProjection) error {
	if p.elasticClient == nil {
		return nil
	}

	doc, err := json.Marshal(book)
	if err != nil {
		return fmt.Errorf("failed to marshal book: %w", err)
	}

	index := FormatIndex(BooksIndex, p.cfg)
	res, err := p.elasticClient.Index(
		index,
		bytes.NewReader(doc),
		p.elasticClient.Index.WithDocumentID(book.AggregateID),
		p.elasticClient.Index.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("failed to index book in Elasticsearch: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("failed to index book in Elasticsearch: %s", res.String())
	}
	return nil
}

func (p *BookProjector) deleteFromIndex(ctx context.Context, aggregateID string) error {
	if p.elasticClient == nil {
		return nil
	}

	index := FormatIndex(BooksIndex, p.cfg)
	res, err := p.elasticClient.Delete(
		index,
		aggregateID,
		p.elasticClient.Delete.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("failed to delete book from Elasticsearch: %w", err)
	}
	defer res.Body.Close()

	// 404 means it was never indexed, which is fine
	if res.IsError() && res.StatusCode != 404 {
		return fmt.Errorf("failed to delete book from Elasticsearch: %s", res.String())
	}
	return nil
}

// BookValidator answers book validation requests from the reservation flow.
// It consults the catalog read model and reports back over the bus.
type BookValidator struct {
	db  *gorm.DB
	bus EventPublisher
}

// NewBookValidator creates a new book validator.
func NewBookValidator(db *gorm.DB, bus EventPublisher) *BookValidator {
	return &BookValidator{db: db, bus: bus}
}

// HandleValidationRequest checks whether the requested book exists and is
// not deleted, then publishes the result.
func (v *BookValidator) HandleValidationRequest(ctx context.Context, event domain.Event) error {
	data, ok := event.Data.(domain.ReservationBookValidationRequestedPayload)
	if !ok {
		return errors.Errorf("unexpected payload for %s", event.Type)
	}

	result := domain.BookValidationResultedPayload{
		ReservationID: data.ReservationID,
		BookID:        data.BookID,
	}

	var book models.BookProjection
	err := v.db.WithContext(ctx).
		Where("aggregate_id = ?", data.BookID).
		First(&book).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		result.IsValid = false
		result.Reason = "book not found"
	case err != nil:
		return fmt.Errorf("failed to look up book: %w", err)
	default:
		result.IsValid = true
		result.Title = book.Title
		result.RetailPriceCents = book.PriceCents
	}

	v.bus.Publish(ctx, domain.NewIntegrationEvent(
		domain.AggregateTypeBook, data.BookID, event.CorrelationID, result))
	return nil
}
