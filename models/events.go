package models

import (
	"time"
)

// Event represents a stored domain event. The autoincrement primary key
// doubles as the global version; the composite unique index on
// (aggregate_id, version) enforces gapless per-aggregate versions.
type Event struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	EventID       string    `gorm:"uniqueIndex" json:"event_id"`
	AggregateID   string    `gorm:"index;uniqueIndex:idx_events_aggregate_version" json:"aggregate_id"`
	AggregateType string    `json:"aggregate_type"`
	EventType     string    `json:"event_type"`
	Data          []byte    `json:"data"`
	Metadata      []byte    `json:"metadata"`
	Version       int       `gorm:"uniqueIndex:idx_events_aggregate_version" json:"version"`
	SchemaVersion int       `json:"schema_version"`
	Timestamp     time.Time `json:"timestamp"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	Error         *string   `json:"error"`
	Processed     bool      `gorm:"index" json:"processed"`
}

// AggregateKey maps a natural key (an ISBN, a user ID) to the aggregate ID
// currently owning it. Rows are upserted so a re-registered key points at
// the newest stream.
type AggregateKey struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	KeyType     string    `gorm:"uniqueIndex:idx_aggregate_keys_type_value" json:"key_type"`
	KeyValue    string    `gorm:"uniqueIndex:idx_aggregate_keys_type_value" json:"key_value"`
	AggregateID string    `json:"aggregate_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
