package domain

import (
	"time"

	"github.com/google/uuid"
)

// Aggregate is the common surface the repositories work against.
type Aggregate interface {
	ID() string
	Type() string
	Version() int
	PendingEvents() []Event
	MarkCommitted()
	IsDeleted() bool
}

// AggregateBase carries identity, version bookkeeping, and the buffer of
// events recorded since the last save. Version is the version of the last
// committed event; pending events are numbered from Version+1.
type AggregateBase struct {
	id            string
	aggregateType string
	version       int
	deletedAt     *time.Time
	pending       []Event
}

func newAggregateBase(id, aggregateType string) AggregateBase {
	return AggregateBase{id: id, aggregateType: aggregateType}
}

func (a *AggregateBase) ID() string   { return a.id }
func (a *AggregateBase) Type() string { return a.aggregateType }
func (a *AggregateBase) Version() int { return a.version }

func (a *AggregateBase) IsDeleted() bool { return a.deletedAt != nil }

func (a *AggregateBase) DeletedAt() *time.Time { return a.deletedAt }

// PendingEvents returns the events recorded since the last commit, in the
// order they were recorded.
func (a *AggregateBase) PendingEvents() []Event {
	out := make([]Event, len(a.pending))
	copy(out, a.pending)
	return out
}

// MarkCommitted advances the committed version past the pending events and
// clears the buffer. Repositories call it after a successful append.
func (a *AggregateBase) MarkCommitted() {
	a.version += len(a.pending)
	a.pending = nil
}

// Correlate stamps the given correlation ID onto all pending events.
func (a *AggregateBase) Correlate(correlationID string) {
	for i := range a.pending {
		a.pending[i].CorrelationID = correlationID
	}
}

func (a *AggregateBase) nextVersion() int {
	return a.version + len(a.pending) + 1
}

// record buffers a new event at the next free version. State mutation is the
// caller's job; record only captures the fact.
func (a *AggregateBase) record(payload EventPayload, at time.Time) Event {
	ev := Event{
		ID:            uuid.New().String(),
		AggregateID:   a.id,
		AggregateType: a.aggregateType,
		Type:          payload.EventType(),
		Version:       a.nextVersion(),
		SchemaVersion: SchemaVersion,
		Timestamp:     at,
		Data:          payload,
	}
	a.pending = append(a.pending, ev)
	return ev
}

// setCommittedVersion is used during rehydration, where events are already
// stored and must not re-enter the pending buffer.
func (a *AggregateBase) setCommittedVersion(v int) {
	a.version = v
}
