package saga

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"example.com/libraria/services/library/domain"
	"example.com/libraria/services/library/eventbus"
	"example.com/libraria/services/library/models"
)

// Saga states.
const (
	StatusStarted          = "STARTED"
	StatusPaymentProcessed = "PAYMENT_PROCESSED"
	StatusCompleted        = "COMPLETED"
	StatusFailed           = "FAILED"
)

// Store persists saga state keyed by reservation ID.
type Store interface {
	// FindByReservationID returns the saga row, or nil when none exists.
	FindByReservationID(ctx context.Context, reservationID string) (*models.ReservationSaga, error)

	// Save upserts the saga row.
	Save(ctx context.Context, saga *models.ReservationSaga) error
}

// ReservationConfirmer moves a reservation to RESERVED after payment.
type ReservationConfirmer interface {
	ConfirmReservation(ctx context.Context, reservationID, paymentReference string) error
}

// ReservationPaymentSaga choreographs the payment leg of a reservation. It
// listens for the pending-payment signal and the wallet's verdict, records
// progress, and closes the loop by confirming the reservation. Every handler
// is idempotent under event redelivery.
type ReservationPaymentSaga struct {
	store     Store
	confirmer ReservationConfirmer
}

// NewReservationPaymentSaga creates a new saga coordinator.
func NewReservationPaymentSaga(store Store, confirmer ReservationConfirmer) *ReservationPaymentSaga {
	return &ReservationPaymentSaga{store: store, confirmer: confirmer}
}

// Register hooks the saga into the bus.
func (s *ReservationPaymentSaga) Register(bus *eventbus.Bus) {
	bus.Subscribe(domain.ReservationPendingPayment, "saga.pending_payment", s.onPendingPayment)
	bus.Subscribe(domain.WalletPaymentSucceeded, "saga.payment_succeeded", s.onPaymentSucceeded)
	bus.Subscribe(domain.WalletPaymentDeclined, "saga.payment_declined", s.onPaymentDeclined)
	bus.Subscribe(domain.ReservationConfirmed, "saga.reservation_confirmed", s.onReservationConfirmed)
	bus.Subscribe(domain.ReservationRejected, "saga.reservation_rejected", s.onReservationRejected)
}

func (s *ReservationPaymentSaga) onPendingPayment(ctx context.Context, event domain.Event) error {
	data, ok := event.Data.(domain.ReservationPendingPaymentPayload)
	if !ok {
		return errors.Errorf("unexpected payload for %s", event.Type)
	}

	existing, err := s.store.FindByReservationID(ctx, data.ReservationID)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	now := time.Now().UTC()
	saga := &models.ReservationSaga{
		ReservationID: data.ReservationID,
		UserID:        data.UserID,
		Status:        StatusStarted,
		AmountCents:   data.FeeCents,
		StartedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.Save(ctx, saga); err != nil {
		return err
	}

	log.Info().
		Str("reservationID", data.ReservationID).
		Int64("amountCents", data.FeeCents).
		Msg("Reservation payment saga started")
	return nil
}

func (s *ReservationPaymentSaga) onPaymentSucceeded(ctx context.Context, event domain.Event) error {
	data, ok := event.Data.(domain.WalletPaymentSucceededPayload)
	if !ok {
		return errors.Errorf("unexpected payload for %s", event.Type)
	}

	saga, err := s.store.FindByReservationID(ctx, data.ReservationID)
	if err != nil {
		return err
	}
	if saga == nil {
		// Payment outran the pending-payment signal; start the record here
		now := time.Now().UTC()
		saga = &models.ReservationSaga{
			ReservationID: data.ReservationID,
			UserID:        data.UserID,
			Status:        StatusStarted,
			AmountCents:   data.AmountCents,
			StartedAt:     now,
			UpdatedAt:     now,
		}
	}
	if saga.Status != StatusStarted {
		return nil
	}

	ref := data.PaymentReference
	method := data.PaymentMethod
	saga.Status = StatusPaymentProcessed
	saga.PaymentReference = &ref
	saga.PaymentMethod = &method
	saga.UpdatedAt = time.Now().UTC()
	if err := s.store.Save(ctx, saga); err != nil {
		return err
	}

	if err := s.confirmer.ConfirmReservation(ctx, data.ReservationID, data.PaymentReference); err != nil {
		return errors.Wrap(err, "failed to confirm reservation after payment")
	}
	return nil
}

func (s *ReservationPaymentSaga) onPaymentDeclined(ctx context.Context, event domain.Event) error {
	data, ok := event.Data.(domain.WalletPaymentDeclinedPayload)
	if !ok {
		return errors.Errorf("unexpected payload for %s", event.Type)
	}

	saga, err := s.store.FindByReservationID(ctx, data.ReservationID)
	if err != nil {
		return err
	}
	if saga == nil || saga.Status == StatusFailed || saga.Status == StatusCompleted {
		return nil
	}

	now := time.Now().UTC()
	reason := data.Reason
	saga.Status = StatusFailed
	saga.Error = &reason
	saga.UpdatedAt = now
	saga.CompletedAt = &now
	if err := s.store.Save(ctx, saga); err != nil {
		return err
	}

	log.Info().
		Str("reservationID", data.ReservationID).
		Str("reason", data.Reason).
		Msg("Reservation payment saga failed")
	return nil
}

func (s *ReservationPaymentSaga) onReservationConfirmed(ctx context.Context, event domain.Event) error {
	data, ok := event.Data.(domain.ReservationConfirmedPayload)
	if !ok {
		return errors.Errorf("unexpected payload for %s", event.Type)
	}

	saga, err := s.store.FindByReservationID(ctx, data.ReservationID)
	if err != nil {
		return err
	}
	if saga == nil || saga.Status == StatusCompleted {
		return nil
	}

	now := time.Now().UTC()
	saga.Status = StatusCompleted
	saga.UpdatedAt = now
	saga.CompletedAt = &now
	return s.store.Save(ctx, saga)
}

// onReservationRejected fails an open saga when the reservation is rejected
// out of band, such as a payment verdict lost and timed out.
func (s *ReservationPaymentSaga) onReservationRejected(ctx context.Context, event domain.Event) error {
	data, ok := event.Data.(domain.ReservationRejectedPayload)
	if !ok {
		return errors.Errorf("unexpected payload for %s", event.Type)
	}

	saga, err := s.store.FindByReservationID(ctx, data.ReservationID)
	if err != nil {
		return err
	}
	if saga == nil || saga.Status == StatusFailed || saga.Status == StatusCompleted {
		return nil
	}

	now := time.Now().UTC()
	reason := data.Reason
	saga.Status = StatusFailed
	saga.Error = &reason
	saga.UpdatedAt = now
	saga.CompletedAt = &now
	if err := s.store.Save(ctx, saga); err != nil {
		return err
	}

	log.Info().
		Str("reservationID", data.ReservationID).
		Str("reason", data.Reason).
		Msg("Reservation payment saga failed")
	return nil
}

// GormStore persists saga rows in a relational table.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM saga store.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) FindByReservationID(ctx context.Context, reservationID string) (*models.ReservationSaga, error) {
	var row models.ReservationSaga
	err := s.db.WithContext(ctx).
		Where("reservation_id = ?", reservationID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load saga: %w", err)
	}
	return &row, nil
}

func (s *GormStore) Save(ctx context.Context, saga *models.ReservationSaga) error {
	if err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "reservation_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"status", "payment_reference", "payment_method", "error", "updated_at", "completed_at",
			}),
		}).
		Create(saga).Error; err != nil {
		return fmt.Errorf("failed to save saga: %w", err)
	}
	return nil
}
