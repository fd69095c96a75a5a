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

// WalletProjector folds wallet events into the balances read model. Balance
// changes apply the event's signed delta relationally, so per-aggregate
// ordering is the only ordering the projection needs.
type WalletProjector struct {
	db    *gorm.DB
	cache *cache.RedisCache
}

// NewWalletProjector creates a new wallet projector.
func NewWalletProjector(db *gorm.DB, cache *cache.RedisCache) *WalletProjector {
	return &WalletProjector{db: db, cache: cache}
}

// Project projects an event
func (p *WalletProjector) Project(ctx context.Context, event domain.Event) error {
	switch event.Type {
	case domain.WalletCreated:
		return p.projectCreated(ctx, event)
	case domain.WalletBalanceUpdated:
		return p.projectBalanceUpdated(ctx, event)
	case domain.WalletDeleted:
		return p.projectDeleted(ctx, event)
	default:
		return nil
	}
}

func (p *WalletProjector) projectCreated(ctx context.Context, event domain.Event) error {
	data, ok := event.Data.(domain.WalletCreatedPayload)
	if !ok {
		return errors.Errorf("unexpected payload for %s", event.Type)
	}

	wallet := models.WalletProjection{
		AggregateID:  event.AggregateID,
		Version:      event.Version,
		UserID:       data.UserID,
		BalanceCents: data.BalanceCents,
		CreatedAt:    event.Timestamp,
		UpdatedAt:    event.Timestamp,
	}
	if err := p.db.WithContext(ctx).Create(&wallet).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil
		}
		return fmt.Errorf("failed to create wallet projection: %w", err)
	}
	p.invalidate(ctx, data.UserID)
	return nil
}

func (p *WalletProjector) projectBalanceUpdated(ctx context.Context, event domain.Event) error {
	data, ok := event.Data.(domain.WalletBalanceUpdatedPayload)
	if !ok {
		return errors.Errorf("unexpected payload for %s", event.Type)
	}

	res := p.db.WithContext(ctx).
		Model(&models.WalletProjection{}).
		Where("aggregate_id = ? AND version < ?", event.AggregateID, event.Version).
		Updates(map[string]interface{}{
			"balance_cents": gorm.Expr("balance_cents + ?", data.DeltaCents),
			"version":       event.Version,
			"updated_at":    event.Timestamp,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to update wallet projection: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		p.invalidate(ctx, data.UserID)
	}
	return nil
}

func (p *WalletProjector) projectDeleted(ctx context.Context, event domain.Event) error {
	data, ok := event.Data.(domain.WalletDeletedPayload)
	if !ok {
		return errors.Errorf("unexpected payload for %s", event.Type)
	}

	res := p.db.WithContext(ctx).
		Model(&models.WalletProjection{}).
		Where("aggregate_id = ? AND version < ?", event.AggregateID, event.Version).
		Update("version", event.Version)
	if res.Error != nil {
		return fmt.Errorf("failed to version wallet projection: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil
	}

	if err := p.db.WithContext(ctx).
		Where("aggregate_id = ?", event.AggregateID).
		Delete(&models.WalletProjection{}).Error; err != nil {
		return fmt.Errorf("failed to delete wallet projection: %w", err)
	}
	p.invalidate(ctx, data.UserID)
	return nil
}

func (p *WalletProjector) invalidate(ctx context.Context, userID string) {
	if p.cache == nil {
		return
	}
	if err := p.cache.DeleteWallet(ctx, userID); err != nil {
		log.Warn().Err(err).Str("userID", userID).Msg("Failed to invalidate wallet cache")
	}
}
