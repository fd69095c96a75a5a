package projections

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"example.com/libraria/services/library/cache"
	"example.com/libraria/services/library/domain"
	"example.com/libraria/services/library/models"
)

// ReservationProjector folds reservation events into the loans read model.
// It also consumes catalog events to keep the denormalized book title fresh.
type ReservationProjector struct {
	db    *gorm.DB
	cache *cache.RedisCache
}

// NewReservationProjector creates a new reservation projector.
func NewReservationProjector(db *gorm.DB, cache *cache.RedisCache) *ReservationProjector {
	return &ReservationProjector{db: db, cache: cache}
}

// Project projects an event
func (p *ReservationProjector) Project(ctx context.Context, event domain.Event) error {
	switch event.Type {
	case domain.ReservationCreated:
		return p.projectCreated(ctx, event)
	case domain.ReservationPendingPayment:
		return p.projectPendingPayment(ctx, event)
	case domain.ReservationRejected:
		return p.projectRejected(ctx, event)
	case domain.ReservationConfirmed:
		return p.projectConfirmed(ctx, event)
	case domain.ReservationCancelled:
		return p.projectCancelled(ctx, event)
	case domain.ReservationMarkedLate:
		return p.projectMarkedLate(ctx, event)
	case domain.ReservationReturned:
		return p.projectReturned(ctx, event)
	case domain.ReservationBought:
		return p.projectBought(ctx, event)
	case domain.BookUpdated:
		return p.projectBookTitleChanged(ctx, event)
	case domain.BookValidationResulted:
		return p.projectValidationResult(ctx, event)
	default:
		return nil
	}
}

func (p *ReservationProjector) projectCreated(ctx context.Context, event domain.Event) error {
	data, ok := event.Data.(domain.ReservationCreatedPayload)
	if !ok {
		return errors.Errorf("unexpected payload for %s", event.Type)
	}

	res := models.ReservationProjection{
		AggregateID: event.AggregateID,
		Version:     event.Version,
		BookID:      data.BookID,
		UserID:      data.UserID,
		Status:      domain.ReservationStatusCreated,
		FeeCents:    data.FeeCents,
		CreatedAt:   event.Timestamp,
		UpdatedAt:   event.Timestamp,
	}
	if err := p.db.WithContext(ctx).Create(&res).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil
		}
		return fmt.Errorf("failed to create reservation projection: %w", err)
	}
	p.invalidate(ctx, event.AggregateID)
	return nil
}

func (p *ReservationProjector) projectPendingPayment(ctx context.Context, event domain.Event) error {
	data, ok := event.Data.(domain.ReservationPendingPaymentPayload)
	if !ok {
		return errors.Errorf("unexpected payload for %s", event.Type)
	}
	return p.gatedUpdate(ctx, event, map[string]interface{}{
		"status":             domain.ReservationStatusPendingPayment,
		"retail_price_cents": data.RetailPriceCents,
	})
}

func (p *ReservationProjector) projectRejected(ctx context.Context, event domain.Event) error {
	return p.gatedUpdate(ctx, event, map[string]interface{}{
		"status": domain.ReservationStatusRejected,
	})
}

func (p *ReservationProjector) projectConfirmed(ctx context.Context, event domain.Event) error {
	data, ok := event.Data.(domain.ReservationConfirmedPayload)
	if !ok {
		return errors.Errorf("unexpected payload for %s", event.Type)
	}
	due := data.DueDate
	ref := data.PaymentReference
	return p.gatedUpdate(ctx, event, map[string]interface{}{
		"status":            domain.ReservationStatusReserved,
		"due_date":          &due,
		"payment_reference": &ref,
	})
}

func (p *ReservationProjector) projectCancelled(ctx context.Context, event domain.Event) error {
	return p.gatedUpdate(ctx, event, map[string]interface{}{
		"status": domain.ReservationStatusCancelled,
	})
}

func (p *ReservationProjector) projectMarkedLate(ctx context.Context, event domain.Event) error {
	return p.gatedUpdate(ctx, event, map[string]interface{}{
		"status": domain.ReservationStatusLate,
	})
}

func (p *ReservationProjector) projectReturned(ctx context.Context, event domain.Event) error {
	data, ok := event.Data.(domain.ReservationReturnedPayload)
	if !ok {
		return errors.Errorf("unexpected payload for %s", event.Type)
	}
	at := data.ReturnedAt
	return p.gatedUpdate(ctx, event, map[string]interface{}{
		"status":         domain.ReservationStatusReturned,
		"returned_at":    &at,
		"late_fee_cents": data.LateFeeCents,
	})
}

func (p *ReservationProjector) projectBought(ctx context.Context, event domain.Event) error {
	data, ok := event.Data.(domain.ReservationBoughtPayload)
	if !ok {
		return errors.Errorf("unexpected payload for %s", event.Type)
	}
	at := data.ReturnedAt
	return p.gatedUpdate(ctx, event, map[string]interface{}{
		"status":         domain.ReservationStatusBought,
		"returned_at":    &at,
		"late_fee_cents": data.AccruedFeeCents,
	})
}

// projectBookTitleChanged pushes a renamed title into every reservation row
// referencing the book. Not version gated; the title is informational.
func (p *ReservationProjector) projectBookTitleChanged(ctx context.Context, event domain.Event) error {
	data, ok := event.Data.(domain.BookUpdatedPayload)
	if !ok {
		return errors.Errorf("unexpected payload for %s", event.Type)
	}
	if data.Title == nil {
		return nil
	}
	if err := p.db.WithContext(ctx).
		Model(&models.ReservationProjection{}).
		Where("book_id = ?", data.BookID).
		Update("book_title", *data.Title).Error; err != nil {
		return fmt.Errorf("failed to propagate book title: %w", err)
	}
	return nil
}

// projectValidationResult denormalizes title and retail price once the book
// proved valid. Integration events carry no stream version, so the update is
// keyed on the row alone.
func (p *ReservationProjector) projectValidationResult(ctx context.Context, event domain.Event) error {
	data, ok := event.Data.(domain.BookValidationResultedPayload)
	if !ok {
		return errors.Errorf("unexpected payload for %s", event.Type)
	}
	if !data.IsValid {
		return nil
	}
	if err := p.db.WithContext(ctx).
		Model(&models.ReservationProjection{}).
		Where("aggregate_id = ?", data.ReservationID).
		Updates(map[string]interface{}{
			"book_title":         data.Title,
			"retail_price_cents": data.RetailPriceCents,
		}).Error; err != nil {
		return fmt.Errorf("failed to denormalize validation result: %w", err)
	}
	return nil
}

func (p *ReservationProjector) gatedUpdate(ctx context.Context, event domain.Event, updates map[string]interface{}) error {
	updates["version"] = event.Version
	updates["updated_at"] = event.Timestamp

	res := p.db.WithContext(ctx).
		Model(&models.ReservationProjection{}).
		Where("aggregate_id = ? AND version < ?", event.AggregateID, event.Version).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to update reservation projection: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		p.invalidate(ctx, event.AggregateID)
	}
	return nil
}

func (p *ReservationProjector) invalidate(ctx context.Context, aggregateID string) {
	if p.cache == nil {
		return
	}
	if err := p.cache.DeleteReservation(ctx, aggregateID); err != nil {
		log.Warn().Err(err).Str("aggregateID", aggregateID).Msg("Failed to invalidate reservation cache")
	}
}
