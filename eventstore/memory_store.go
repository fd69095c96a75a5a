package eventstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"example.com/libraria/services/library/domain"
)

// MemoryEventStore is an in-process EventStore with the same version-gate
// semantics as the GORM store. It backs tests and local runs without a
// database.
type MemoryEventStore struct {
	mu            sync.Mutex
	byAggregate   map[string][]domain.Event
	globalLog     []domain.Event
	processed     map[string]bool
	globalCounter int64
}

// NewMemoryEventStore creates an empty in-memory store.
func NewMemoryEventStore() *MemoryEventStore {
	return &MemoryEventStore{
		byAggregate: make(map[string][]domain.Event),
		processed:   make(map[string]bool),
	}
}

func (s *MemoryEventStore) Append(ctx context.Context, event domain.Event, expectedVersion int) error {
	return s.AppendBatch(ctx, []domain.Event{event}, expectedVersion)
}

func (s *MemoryEventStore) AppendBatch(_ context.Context, events []domain.Event, expectedVersion int) error {
	if len(events) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	aggregateID := events[0].AggregateID
	current := len(s.byAggregate[aggregateID])
	if current != expectedVersion {
		return &ConcurrencyError{
			AggregateID:     aggregateID,
			ExpectedVersion: expectedVersion,
			FoundVersion:    current,
		}
	}

	// Validate the whole batch before mutating anything so a bad tail
	// never persists its leading events.
	for i, ev := range events {
		if ev.AggregateID != aggregateID {
			return &ConcurrencyError{AggregateID: ev.AggregateID, ExpectedVersion: expectedVersion}
		}
		if ev.Version != expectedVersion+i+1 {
			return &ConcurrencyError{
				AggregateID:     aggregateID,
				ExpectedVersion: expectedVersion,
				FoundVersion:    ev.Version,
			}
		}
	}

	now := time.Now().UTC()
	for _, ev := range events {
		s.globalCounter++
		ev.GlobalVersion = s.globalCounter
		ev.StoredAt = now
		s.byAggregate[aggregateID] = append(s.byAggregate[aggregateID], ev)
		s.globalLog = append(s.globalLog, ev)
	}
	return nil
}

func (s *MemoryEventStore) Load(_ context.Context, aggregateID string) ([]domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stream := s.byAggregate[aggregateID]
	out := make([]domain.Event, len(stream))
	copy(out, stream)
	return out, nil
}

func (s *MemoryEventStore) Exists(_ context.Context, aggregateID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byAggregate[aggregateID]) > 0, nil
}

func (s *MemoryEventStore) StreamEvents(_ context.Context, fromGlobalVersion int64, batchSize int) ([]domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := sort.Search(len(s.globalLog), func(i int) bool {
		return s.globalLog[i].GlobalVersion > fromGlobalVersion
	})
	end := start + batchSize
	if end > len(s.globalLog) {
		end = len(s.globalLog)
	}
	out := make([]domain.Event, end-start)
	copy(out, s.globalLog[start:end])
	return out, nil
}

func (s *MemoryEventStore) GetUnprocessedEvents(_ context.Context, limit int) ([]domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Event, 0, limit)
	for _, ev := range s.globalLog {
		if s.processed[ev.ID] {
			continue
		}
		out = append(out, ev)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryEventStore) MarkEventProcessed(_ context.Context, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed[eventID] = true
	return nil
}
