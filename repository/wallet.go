package repository

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/libraria/services/library/domain"
	"example.com/libraria/services/library/eventstore"
)

// WalletRepository loads and saves wallet aggregates and keeps the per-user
// index pointing at each user's live wallet.
type WalletRepository struct {
	store eventstore.EventStore
	keys  KeyIndex
}

// NewWalletRepository creates a new wallet repository.
func NewWalletRepository(store eventstore.EventStore, keys KeyIndex) *WalletRepository {
	return &WalletRepository{store: store, keys: keys}
}

// Load rehydrates a wallet from its event stream.
func (r *WalletRepository) Load(ctx context.Context, aggregateID string) (*domain.WalletAggregate, error) {
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
	return domain.RehydrateWallet(aggregateID, events)
}

// Save appends the aggregate's pending events gated on its committed version,
// then refreshes the user index.
func (r *WalletRepository) Save(ctx context.Context, wallet *domain.WalletAggregate) ([]domain.Event, error) {
	pending := wallet.PendingEvents()
	if len(pending) == 0 {
		return nil, nil
	}

	if err := r.store.AppendBatch(ctx, pending, wallet.Version()); err != nil {
		return nil, err
	}

	for _, ev := range pending {
		switch ev.Data.(type) {
		case domain.WalletCreatedPayload:
			if err := r.keys.Put(ctx, KeyTypeWalletUser, wallet.UserID, wallet.ID()); err != nil {
				log.Warn().Err(err).Str("userID", wallet.UserID).Msg("Failed to index wallet user")
			}
		case domain.WalletDeletedPayload:
			if err := r.keys.Delete(ctx, KeyTypeWalletUser, wallet.UserID); err != nil {
				log.Warn().Err(err).Str("userID", wallet.UserID).Msg("Failed to unindex wallet user")
			}
		}
	}

	wallet.MarkCommitted()
	return pending, nil
}

// FindIDByUserID resolves a user to their live wallet's aggregate ID, or ""
// when the user has none. Falls back to a log scan when the index misses.
func (r *WalletRepository) FindIDByUserID(ctx context.Context, userID string) (string, error) {
	id, err := r.keys.Get(ctx, KeyTypeWalletUser, userID)
	if err != nil {
		return "", err
	}
	if id != "" {
		wallet, err := r.Load(ctx, id)
		if err != nil && !errors.Is(err, domain.ErrAggregateNotFound) {
			return "", err
		}
		if err == nil && !wallet.IsDeleted() && wallet.UserID == userID {
			return id, nil
		}
	}
	return r.scanForUser(ctx, userID)
}

func (r *WalletRepository) scanForUser(ctx context.Context, userID string) (string, error) {
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
			case domain.WalletCreatedPayload:
				if p.UserID == userID {
					live[ev.AggregateID] = true
				}
			case domain.WalletDeletedPayload:
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
			return "", errors.Errorf("user %s has multiple live wallets", userID)
		}
		found = id
	}
	return found, nil
}
