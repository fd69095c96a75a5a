package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SchemaVersion is stamped on every event written by this build.
const SchemaVersion = 1

// Aggregate type identifiers
const (
	AggregateTypeBook        = "book"
	AggregateTypeReservation = "reservation"
	AggregateTypeWallet      = "wallet"
)

// EventType constants
const (
	// Book events
	BookCreated = "BookCreated"
	BookUpdated = "BookUpdated"
	BookDeleted = "BookDeleted"

	// Reservation events
	ReservationCreated        = "ReservationCreated"
	ReservationPendingPayment = "ReservationPendingPayment"
	ReservationRejected       = "ReservationRejected"
	ReservationConfirmed      = "ReservationConfirmed"
	ReservationCancelled      = "ReservationCancelled"
	ReservationMarkedLate     = "ReservationMarkedLate"
	ReservationReturned       = "ReservationReturned"
	ReservationBought         = "ReservationBought"

	// Wallet events
	WalletCreated        = "WalletCreated"
	WalletBalanceUpdated = "WalletBalanceUpdated"
	WalletDeleted        = "WalletDeleted"

	// Integration events carried on the bus only, never appended to a stream
	ReservationBookValidationRequested = "ReservationBookValidationRequested"
	BookValidationResulted             = "BookValidationResulted"
	WalletPaymentSucceeded             = "WalletPaymentSucceeded"
	WalletPaymentDeclined              = "WalletPaymentDeclined"
)

// EventPayload is implemented by every event's typed payload.
type EventPayload interface {
	EventType() string
}

// Event is the envelope for a domain event. Data always holds the typed
// payload for Type; projection code switches on the payload type instead of
// probing loose maps.
type Event struct {
	ID            string       `json:"id"`
	AggregateID   string       `json:"aggregate_id"`
	AggregateType string       `json:"aggregate_type"`
	Type          string       `json:"type"`
	Version       int          `json:"version"`
	GlobalVersion int64        `json:"global_version"`
	SchemaVersion int          `json:"schema_version"`
	CorrelationID string       `json:"correlation_id,omitempty"`
	Timestamp     time.Time    `json:"timestamp"`
	StoredAt      time.Time    `json:"stored_at,omitempty"`
	Data          EventPayload `json:"data"`
}

// NewIntegrationEvent builds a bus-only event (version 0, never persisted).
func NewIntegrationEvent(aggregateType, aggregateID, correlationID string, payload EventPayload) Event {
	return Event{
		ID:            uuid.New().String(),
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		Type:          payload.EventType(),
		SchemaVersion: SchemaVersion,
		CorrelationID: correlationID,
		Timestamp:     time.Now().UTC(),
		Data:          payload,
	}
}

// Book event payloads

type BookCreatedPayload struct {
	BookID          string `json:"book_id"`
	ISBN            string `json:"isbn"`
	Title           string `json:"title"`
	Author          string `json:"author"`
	Publisher       string `json:"publisher,omitempty"`
	PublicationYear int    `json:"publication_year"`
	PriceCents      int64  `json:"price_cents"`
}

func (BookCreatedPayload) EventType() string { return BookCreated }

// BookUpdatedPayload carries only the fields that changed.
type BookUpdatedPayload struct {
	BookID          string  `json:"book_id"`
	Title           *string `json:"title,omitempty"`
	Author          *string `json:"author,omitempty"`
	Publisher       *string `json:"publisher,omitempty"`
	PublicationYear *int    `json:"publication_year,omitempty"`
	PriceCents      *int64  `json:"price_cents,omitempty"`
}

func (BookUpdatedPayload) EventType() string { return BookUpdated }

type BookDeletedPayload struct {
	BookID    string    `json:"book_id"`
	ISBN      string    `json:"isbn"`
	DeletedAt time.Time `json:"deleted_at"`
}

func (BookDeletedPayload) EventType() string { return BookDeleted }

// Reservation event payloads

type ReservationCreatedPayload struct {
	ReservationID string `json:"reservation_id"`
	BookID        string `json:"book_id"`
	UserID        string `json:"user_id"`
	FeeCents      int64  `json:"fee_cents"`
}

func (ReservationCreatedPayload) EventType() string { return ReservationCreated }

type ReservationPendingPaymentPayload struct {
	ReservationID    string `json:"reservation_id"`
	UserID           string `json:"user_id"`
	FeeCents         int64  `json:"fee_cents"`
	RetailPriceCents int64  `json:"retail_price_cents"`
}

func (ReservationPendingPaymentPayload) EventType() string { return ReservationPendingPayment }

type ReservationRejectedPayload struct {
	ReservationID string `json:"reservation_id"`
	Reason        string `json:"reason"`
}

func (ReservationRejectedPayload) EventType() string { return ReservationRejected }

type ReservationConfirmedPayload struct {
	ReservationID    string    `json:"reservation_id"`
	DueDate          time.Time `json:"due_date"`
	PaymentReference string    `json:"payment_reference"`
}

func (ReservationConfirmedPayload) EventType() string { return ReservationConfirmed }

type ReservationCancelledPayload struct {
	ReservationID string    `json:"reservation_id"`
	CancelledAt   time.Time `json:"cancelled_at"`
}

func (ReservationCancelledPayload) EventType() string { return ReservationCancelled }

type ReservationMarkedLatePayload struct {
	ReservationID string    `json:"reservation_id"`
	DueDate       time.Time `json:"due_date"`
}

func (ReservationMarkedLatePayload) EventType() string { return ReservationMarkedLate }

type ReservationReturnedPayload struct {
	ReservationID string    `json:"reservation_id"`
	ReturnedAt    time.Time `json:"returned_at"`
	LateFeeCents  int64     `json:"late_fee_cents"`
}

func (ReservationReturnedPayload) EventType() string { return ReservationReturned }

// ReservationBoughtPayload records a purchase conversion: the accrued late
// fee reached the book's retail price, so the copy changes hands.
type ReservationBoughtPayload struct {
	ReservationID    string    `json:"reservation_id"`
	ReturnedAt       time.Time `json:"returned_at"`
	AccruedFeeCents  int64     `json:"accrued_fee_cents"`
	RetailPriceCents int64     `json:"retail_price_cents"`
}

func (ReservationBoughtPayload) EventType() string { return ReservationBought }

// Wallet event payloads

type WalletCreatedPayload struct {
	WalletID     string `json:"wallet_id"`
	UserID       string `json:"user_id"`
	BalanceCents int64  `json:"balance_cents"`
}

func (WalletCreatedPayload) EventType() string { return WalletCreated }

// WalletBalanceUpdatedPayload carries the signed delta, not the absolute
// balance, so replay only depends on per-aggregate order.
type WalletBalanceUpdatedPayload struct {
	WalletID      string `json:"wallet_id"`
	UserID        string `json:"user_id"`
	DeltaCents    int64  `json:"delta_cents"`
	Reason        string `json:"reason,omitempty"`
	ReservationID string `json:"reservation_id,omitempty"`
}

func (WalletBalanceUpdatedPayload) EventType() string { return WalletBalanceUpdated }

type WalletDeletedPayload struct {
	WalletID  string    `json:"wallet_id"`
	UserID    string    `json:"user_id"`
	DeletedAt time.Time `json:"deleted_at"`
}

func (WalletDeletedPayload) EventType() string { return WalletDeleted }

// Integration event payloads

type ReservationBookValidationRequestedPayload struct {
	ReservationID string `json:"reservation_id"`
	BookID        string `json:"book_id"`
	UserID        string `json:"user_id"`
}

func (ReservationBookValidationRequestedPayload) EventType() string {
	return ReservationBookValidationRequested
}

type BookValidationResultedPayload struct {
	ReservationID    string `json:"reservation_id"`
	BookID           string `json:"book_id"`
	IsValid          bool   `json:"is_valid"`
	Reason           string `json:"reason,omitempty"`
	Title            string `json:"title,omitempty"`
	RetailPriceCents int64  `json:"retail_price_cents"`
}

func (BookValidationResultedPayload) EventType() string { return BookValidationResulted }

type WalletPaymentSucceededPayload struct {
	ReservationID    string `json:"reservation_id"`
	UserID           string `json:"user_id"`
	WalletID         string `json:"wallet_id"`
	AmountCents      int64  `json:"amount_cents"`
	PaymentReference string `json:"payment_reference"`
	PaymentMethod    string `json:"payment_method"`
}

func (WalletPaymentSucceededPayload) EventType() string { return WalletPaymentSucceeded }

type WalletPaymentDeclinedPayload struct {
	ReservationID string `json:"reservation_id"`
	UserID        string `json:"user_id"`
	AmountCents   int64  `json:"amount_cents"`
	Reason        string `json:"reason"`
}

func (WalletPaymentDeclinedPayload) EventType() string { return WalletPaymentDeclined }

// DecodePayload unmarshals raw event data into the typed payload for the
// given event type. Unknown types are an error so a schema drift never
// passes silently.
func DecodePayload(eventType string, data []byte) (EventPayload, error) {
	var (
		payload EventPayload
		err     error
	)

	switch eventType {
	case BookCreated:
		var p BookCreatedPayload
		err = json.Unmarshal(data, &p)
		payload = p
	case BookUpdated:
		var p BookUpdatedPayload
		err = json.Unmarshal(data, &p)
		payload = p
	case BookDeleted:
		var p BookDeletedPayload
		err = json.Unmarshal(data, &p)
		payload = p
	case ReservationCreated:
		var p ReservationCreatedPayload
		err = json.Unmarshal(data, &p)
		payload = p
	case ReservationPendingPayment:
		var p ReservationPendingPaymentPayload
		err = json.Unmarshal(data, &p)
		payload = p
	case ReservationRejected:
		var p ReservationRejectedPayload
		err = json.Unmarshal(data, &p)
		payload = p
	case ReservationConfirmed:
		var p ReservationConfirmedPayload
		err = json.Unmarshal(data, &p)
		payload = p
	case ReservationCancelled:
		var p ReservationCancelledPayload
		err = json.Unmarshal(data, &p)
		payload = p
	case ReservationMarkedLate:
		var p ReservationMarkedLatePayload
		err = json.Unmarshal(data, &p)
		payload = p
	case ReservationReturned:
		var p ReservationReturnedPayload
		err = json.Unmarshal(data, &p)
		payload = p
	case ReservationBought:
		var p ReservationBoughtPayload
		err = json.Unmarshal(data, &p)
		payload = p
	case WalletCreated:
		var p WalletCreatedPayload
		err = json.Unmarshal(data, &p)
		payload = p
	case WalletBalanceUpdated:
		var p WalletBalanceUpdatedPayload
		err = json.Unmarshal(data, &p)
		payload = p
	case WalletDeleted:
		var p WalletDeletedPayload
		err = json.Unmarshal(data, &p)
		payload = p
	case ReservationBookValidationRequested:
		var p ReservationBookValidationRequestedPayload
		err = json.Unmarshal(data, &p)
		payload = p
	case BookValidationResulted:
		var p BookValidationResultedPayload
		err = json.Unmarshal(data, &p)
		payload = p
	case WalletPaymentSucceeded:
		var p WalletPaymentSucceededPayload
		err = json.Unmarshal(data, &p)
		payload = p
	case WalletPaymentDeclined:
		var p WalletPaymentDeclinedPayload
		err = json.Unmarshal(data, &p)
		payload = p
	default:
		return nil, fmt.Errorf("unknown event type: %s", eventType)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s payload: %w", eventType, err)
	}
	return payload, nil
}
