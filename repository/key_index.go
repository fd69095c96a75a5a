package repository

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"example.com/libraria/services/library/models"
)

// Natural key types tracked by the index.
const (
	KeyTypeISBN       = "isbn"
	KeyTypeWalletUser = "wallet_user"
)

// ErrInvalidAggregateID signals a lookup with an empty or malformed ID.
var ErrInvalidAggregateID = errors.New("invalid aggregate ID")

// KeyIndex resolves natural keys to aggregate IDs. The index is a cache, not
// a source of truth: writes to it happen after the event append, so readers
// fall back to scanning the log when a key is missing.
type KeyIndex interface {
	// Put points the key at an aggregate, replacing any previous owner.
	Put(ctx context.Context, keyType, keyValue, aggregateID string) error

	// Get returns the aggregate ID owning the key, or "" when unmapped.
	Get(ctx context.Context, keyType, keyValue string) (string, error)

	// Delete removes the mapping for a key.
	Delete(ctx context.Context, keyType, keyValue string) error
}

// GormKeyIndex stores the mappings in a relational table.
type GormKeyIndex struct {
	db *gorm.DB
}

// NewGormKeyIndex creates a new GORM key index.
func NewGormKeyIndex(db *gorm.DB) *GormKeyIndex {
	return &GormKeyIndex{db: db}
}

func (i *GormKeyIndex) Put(ctx context.Context, keyType, keyValue, aggregateID string) error {
	row := models.AggregateKey{
		KeyType:     keyType,
		KeyValue:    keyValue,
		AggregateID: aggregateID,
	}
	if err := i.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key_type"}, {Name: "key_value"}},
			DoUpdates: clause.AssignmentColumns([]string{"aggregate_id", "updated_at"}),
		}).
		Create(&row).Error; err != nil {
		return fmt.Errorf("failed to upsert aggregate key: %w", err)
	}
	return nil
}

func (i *GormKeyIndex) Get(ctx context.Context, keyType, keyValue string) (string, error) {
	var row models.AggregateKey
	err := i.db.WithContext(ctx).
		Where("key_type = ? AND key_value = ?", keyType, keyValue).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up aggregate key: %w", err)
	}
	return row.AggregateID, nil
}

func (i *GormKeyIndex) Delete(ctx context.Context, keyType, keyValue string) error {
	if err := i.db.WithContext(ctx).
		Where("key_type = ? AND key_value = ?", keyType, keyValue).
		Delete(&models.AggregateKey{}).Error; err != nil {
		return fmt.Errorf("failed to delete aggregate key: %w", err)
	}
	return nil
}

// MemoryKeyIndex is an in-process KeyIndex for tests and local runs.
type MemoryKeyIndex struct {
	mu   sync.Mutex
	keys map[string]string
}

// NewMemoryKeyIndex creates an empty in-memory key index.
func NewMemoryKeyIndex() *MemoryKeyIndex {
	return &MemoryKeyIndex{keys: make(map[string]string)}
}

func (i *MemoryKeyIndex) Put(_ context.Context, keyType, keyValue, aggregateID string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.keys[keyType+"/"+keyValue] = aggregateID
	return nil
}

func (i *MemoryKeyIndex) Get(_ context.Context, keyType, keyValue string) (string, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.keys[keyType+"/"+keyValue], nil
}

func (i *MemoryKeyIndex) Delete(_ context.Context, keyType, keyValue string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.keys, keyType+"/"+keyValue)
	return nil
}
