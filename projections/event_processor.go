package projections

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"example.com/libraria/services/library/domain"
	"example.com/libraria/services/library/eventstore"
	"example.com/libraria/services/library/models"
)

// OutboundPublisher relays stored events to an external broker. Optional.
type OutboundPublisher interface {
	PublishEvent(ctx context.Context, event domain.Event) error
}

// EventProcessor replays unprocessed stored events through the projectors.
// The in-process bus projects events as they happen; this loop is the
// catch-up path after a crash or when projections fall behind.
type EventProcessor struct {
	db                   *gorm.DB
	bookProjector        *BookProjector
	reservationProjector *ReservationProjector
	walletProjector      *WalletProjector
	eventStore           eventstore.EventStore
	publisher            OutboundPublisher
	batchSize            int
	processingInterval   time.Duration
	running              bool
	mutex                sync.Mutex
	stopChan             chan struct{}
}

// NewEventProcessor creates a new event processor
func NewEventProcessor(
	db *gorm.DB,
	bookProjector *BookProjector,
	reservationProjector *ReservationProjector,
	walletProjector *WalletProjector,
	eventStore eventstore.EventStore,
	publisher OutboundPublisher,
	batchSize int,
) *EventProcessor {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &EventProcessor{
		db:                   db,
		bookProjector:        bookProjector,
		reservationProjector: reservationProjector,
		walletProjector:      walletProjector,
		eventStore:           eventStore,
		publisher:            publisher,
		batchSize:            batchSize,
		processingInterval:   5 * time.Second,
		stopChan:             make(chan struct{}),
	}
}

// Start starts the event processor
func (p *EventProcessor) Start() {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.running {
		return
	}

	p.running = true
	go p.processEvents()
}

// Stop stops the event processor
func (p *EventProcessor) Stop() {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if !p.running {
		return
	}

	p.running = false
	p.stopChan <- struct{}{}
}

// processEvents processes events in a loop
func (p *EventProcessor) processEvents() {
	ticker := time.NewTicker(p.processingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := p.processBatch(); err != nil {
				log.Error().Err(err).Msg("Failed to process event batch")
			}
		case <-p.stopChan:
			return
		}
	}
}

// processBatch projects one batch of unprocessed events
func (p *EventProcessor) processBatch() error {
	ctx := context.Background()

	events, err := p.eventStore.GetUnprocessedEvents(ctx, p.batchSize)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}

	log.Info().Msgf("Processing %d events", len(events))

	for _, event := range events {
		if err := p.processEvent(ctx, event); err != nil {
			log.Error().Err(err).Str("event_id", event.ID).Msg("Failed to process event")
			errMsg := err.Error()
			p.db.Model(&models.Event{}).
				Where("event_id = ?", event.ID).
				Update("error", &errMsg)
			continue
		}

		if err := p.eventStore.MarkEventProcessed(ctx, event.ID); err != nil {
			log.Error().Err(err).Str("event_id", event.ID).Msg("Failed to mark event as processed")
		}
	}

	return nil
}

// processEvent routes a single event to its projector and, when configured,
// relays it outward.
func (p *EventProcessor) processEvent(ctx context.Context, event domain.Event) error {
	switch event.AggregateType {
	case domain.AggregateTypeBook:
		if err := p.bookProjector.Project(ctx, event); err != nil {
			return err
		}
		// Title changes also touch reservation rows
		if err := p.reservationProjector.Project(ctx, event); err != nil {
			return err
		}
	case domain.AggregateTypeReservation:
		if err := p.reservationProjector.Project(ctx, event); err != nil {
			return err
		}
	case domain.AggregateTypeWallet:
		if err := p.walletProjector.Project(ctx, event); err != nil {
			return err
		}
	default:
		log.Warn().Str("aggregate_type", event.AggregateType).Msg("Unknown aggregate type")
		return nil
	}

	if p.publisher != nil {
		if err := p.publisher.PublishEvent(ctx, event); err != nil {
			return err
		}
	}
	return nil
}
