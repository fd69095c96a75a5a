package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/rs/zerolog/log"

	"example.com/libraria/services/library/domain"
)

// EventPublisher relays stored domain events to an outbound queue. Sessions
// are keyed by aggregate ID so consumers see each stream in order.
type EventPublisher struct {
	sender *azservicebus.Sender
}

// NewEventPublisher creates a publisher for the given queue.
func NewEventPublisher(client *azservicebus.Client, queueName string) (*EventPublisher, error) {
	sender, err := client.NewSender(queueName, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create sender: %w", err)
	}
	return &EventPublisher{sender: sender}, nil
}

// PublishEvent sends one domain event.
func (p *EventPublisher) PublishEvent(ctx context.Context, event domain.Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	sessionID := event.AggregateID
	msg := &azservicebus.Message{
		MessageID: &event.ID,
		SessionID: &sessionID,
		Subject:   &event.Type,
		Body:      body,
	}
	if err := p.sender.SendMessage(ctx, msg, nil); err != nil {
		return fmt.Errorf("failed to send event: %w", err)
	}

	log.Debug().
		Str("eventType", event.Type).
		Str("aggregateID", event.AggregateID).
		Msg("Event relayed to queue")
	return nil
}

// Close shuts down the sender.
func (p *EventPublisher) Close(ctx context.Context) error {
	return p.sender.Close(ctx)
}
