package eventstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"example.com/libraria/services/library/domain"
	"example.com/libraria/services/library/models"
)

// eventMetadata is the envelope state persisted next to the payload.
type eventMetadata struct {
	CorrelationID string `json:"correlation_id,omitempty"`
}

// GormEventStore implements EventStore on a relational events table. The
// version gate is a MAX(version) check inside the insert transaction; the
// unique index on (aggregate_id, version) backstops races the check misses.
type GormEventStore struct {
	db *gorm.DB
}

// NewGormEventStore creates a new GORM event store.
func NewGormEventStore(db *gorm.DB) *GormEventStore {
	return &GormEventStore{db: db}
}

// Append stores a single event gated on expectedVersion.
func (s *GormEventStore) Append(ctx context.Context, event domain.Event, expectedVersion int) error {
	return s.AppendBatch(ctx, []domain.Event{event}, expectedVersion)
}

// AppendBatch stores a run of events for one aggregate atomically.
func (s *GormEventStore) AppendBatch(ctx context.Context, events []domain.Event, expectedVersion int) error {
	if len(events) == 0 {
		return nil
	}
	aggregateID := events[0].AggregateID
	for _, ev := range events[1:] {
		if ev.AggregateID != aggregateID {
			return errors.New("batch spans multiple aggregates")
		}
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current int
		if err := tx.Model(&models.Event{}).
			Select("COALESCE(MAX(version), 0)").
			Where("aggregate_id = ?", aggregateID).
			Scan(&current).Error; err != nil {
			return fmt.Errorf("failed to read stream head: %w", err)
		}
		if current != expectedVersion {
			return &ConcurrencyError{
				AggregateID:     aggregateID,
				ExpectedVersion: expectedVersion,
				FoundVersion:    current,
			}
		}

		for i, ev := range events {
			if ev.Version != expectedVersion+i+1 {
				return errors.Errorf("event version %d breaks the stream at head %d", ev.Version, expectedVersion)
			}

			data, err := json.Marshal(ev.Data)
			if err != nil {
				return fmt.Errorf("failed to marshal event data: %w", err)
			}
			meta, err := json.Marshal(eventMetadata{CorrelationID: ev.CorrelationID})
			if err != nil {
				return fmt.Errorf("failed to marshal event metadata: %w", err)
			}

			dbEvent := models.Event{
				EventID:       ev.ID,
				AggregateID:   ev.AggregateID,
				AggregateType: ev.AggregateType,
				EventType:     ev.Type,
				Version:       ev.Version,
				SchemaVersion: ev.SchemaVersion,
				Data:          data,
				Metadata:      meta,
				Timestamp:     ev.Timestamp,
				Processed:     false,
			}
			if err := tx.Create(&dbEvent).Error; err != nil {
				if errors.Is(err, gorm.ErrDuplicatedKey) {
					return &ConcurrencyError{
						AggregateID:     aggregateID,
						ExpectedVersion: expectedVersion,
						FoundVersion:    ev.Version,
					}
				}
				return fmt.Errorf("failed to save event: %w", err)
			}

			log.Info().
				Str("aggregateID", ev.AggregateID).
				Str("eventType", ev.Type).
				Int("version", ev.Version).
				Msg("Event appended")
		}
		return nil
	})
	return err
}

// Load returns all events of an aggregate in version order.
func (s *GormEventStore) Load(ctx context.Context, aggregateID string) ([]domain.Event, error) {
	if aggregateID == "" {
		return nil, errors.New("aggregate ID is empty")
	}

	var dbEvents []models.Event
	if err := s.db.WithContext(ctx).
		Where("aggregate_id = ?", aggregateID).
		Order("version ASC").
		Find(&dbEvents).Error; err != nil {
		return nil, fmt.Errorf("failed to load events: %w", err)
	}

	return s.toDomainEvents(dbEvents)
}

// Exists checks if any event was stored for the aggregate.
func (s *GormEventStore) Exists(ctx context.Context, aggregateID string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&models.Event{}).
		Where("aggregate_id = ?", aggregateID).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check if aggregate exists: %w", err)
	}
	return count > 0, nil
}

// StreamEvents pages the global log from a cursor.
func (s *GormEventStore) StreamEvents(ctx context.Context, fromGlobalVersion int64, batchSize int) ([]domain.Event, error) {
	var dbEvents []models.Event
	if err := s.db.WithContext(ctx).
		Where("id > ?", fromGlobalVersion).
		Order("id ASC").
		Limit(batchSize).
		Find(&dbEvents).Error; err != nil {
		return nil, fmt.Errorf("failed to stream events: %w", err)
	}
	return s.toDomainEvents(dbEvents)
}

// GetUnprocessedEvents gets events the background processor has not handled.
func (s *GormEventStore) GetUnprocessedEvents(ctx context.Context, limit int) ([]domain.Event, error) {
	var dbEvents []models.Event
	if err := s.db.WithContext(ctx).
		Where("processed = ?", false).
		Order("id ASC").
		Limit(limit).
		Find(&dbEvents).Error; err != nil {
		return nil, fmt.Errorf("failed to get unprocessed events: %w", err)
	}
	return s.toDomainEvents(dbEvents)
}

// MarkEventProcessed flags an event as handled.
func (s *GormEventStore) MarkEventProcessed(ctx context.Context, eventID string) error {
	if err := s.db.WithContext(ctx).
		Model(&models.Event{}).
		Where("event_id = ?", eventID).
		Update("processed", true).
		Error; err != nil {
		return fmt.Errorf("failed to mark event as processed: %w", err)
	}
	return nil
}

func (s *GormEventStore) toDomainEvents(dbEvents []models.Event) ([]domain.Event, error) {
	events := make([]domain.Event, 0, len(dbEvents))
	for _, dbEvent := range dbEvents {
		payload, err := domain.DecodePayload(dbEvent.EventType, dbEvent.Data)
		if err != nil {
			return nil, err
		}
		var meta eventMetadata
		if len(dbEvent.Metadata) > 0 {
			if err := json.Unmarshal(dbEvent.Metadata, &meta); err != nil {
				return nil, fmt.Errorf("failed to unmarshal event metadata: %w", err)
			}
		}
		events = append(events, domain.Event{
			ID:            dbEvent.EventID,
			AggregateID:   dbEvent.AggregateID,
			AggregateType: dbEvent.AggregateType,
			Type:          dbEvent.EventType,
			Version:       dbEvent.Version,
			GlobalVersion: int64(dbEvent.ID),
			SchemaVersion: dbEvent.SchemaVersion,
			CorrelationID: meta.CorrelationID,
			Timestamp:     dbEvent.Timestamp,
			StoredAt:      dbEvent.CreatedAt,
			Data:          payload,
		})
	}
	return events, nil
}
