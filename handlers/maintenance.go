package handlers

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"example.com/libraria/services/library/domain"
	"example.com/libraria/services/library/models"
)

// MaintenanceHandler runs the periodic loan sweeps. It selects candidates
// from the read model but applies every change through the write model, so
// the usual state-machine checks still decide each case.
type MaintenanceHandler struct {
	db           *gorm.DB
	reservations *ReservationHandler

	validationTimeout time.Duration
}

// NewMaintenanceHandler creates a new maintenance handler.
func NewMaintenanceHandler(db *gorm.DB, reservations *ReservationHandler, validationTimeout time.Duration) *MaintenanceHandler {
	return &MaintenanceHandler{
		db:                db,
		reservations:      reservations,
		validationTimeout: validationTimeout,
	}
}

// SweepOverdue marks every RESERVED loan past its due date as LATE.
func (h *MaintenanceHandler) SweepOverdue(ctx context.Context) error {
	var rows []models.ReservationProjection
	if err := h.db.WithContext(ctx).
		Where("status = ? AND due_date < ?", domain.ReservationStatusReserved, time.Now().UTC()).
		Find(&rows).Error; err != nil {
		return err
	}

	for _, row := range rows {
		if err := h.reservations.HandleMarkLate(ctx, MarkLateCommand{AggregateID: row.AggregateID}); err != nil {
			log.Error().Err(err).
				Str("aggregateID", row.AggregateID).
				Msg("Failed to mark reservation late")
		}
	}

	if len(rows) > 0 {
		log.Info().Int("count", len(rows)).Msg("Overdue sweep finished")
	}
	return nil
}

// RejectStale rejects reservations stuck in CREATED or PENDING_PAYMENT
// longer than the validation timeout, usually because a validation result
// or a payment verdict was lost.
func (h *MaintenanceHandler) RejectStale(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-h.validationTimeout)

	var rows []models.ReservationProjection
	if err := h.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ?",
			[]string{domain.ReservationStatusCreated, domain.ReservationStatusPendingPayment}, cutoff).
		Find(&rows).Error; err != nil {
		return err
	}

	for _, row := range rows {
		res, err := h.reservations.reservations.Load(ctx, row.AggregateID)
		if err != nil {
			log.Error().Err(err).Str("aggregateID", row.AggregateID).Msg("Failed to load stale reservation")
			continue
		}
		reason := ""
		switch res.Status {
		case domain.ReservationStatusCreated:
			reason = "book validation timed out"
		case domain.ReservationStatusPendingPayment:
			reason = "payment timed out"
		default:
			// The write model moved on since the read model was queried
			continue
		}
		if err := res.Reject(reason); err != nil {
			log.Error().Err(err).Str("aggregateID", row.AggregateID).Msg("Failed to reject stale reservation")
			continue
		}
		saved, err := h.reservations.reservations.Save(ctx, res)
		if err != nil {
			log.Error().Err(err).Str("aggregateID", row.AggregateID).Msg("Failed to save stale reservation")
			continue
		}
		h.reservations.publish(ctx, saved)
	}

	if len(rows) > 0 {
		log.Info().Int("count", len(rows)).Msg("Stale reservation sweep finished")
	}
	return nil
}
