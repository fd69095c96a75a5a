package handlers

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/libraria/services/library/domain"
	"example.com/libraria/services/library/eventbus"
	"example.com/libraria/services/library/repository"
	"example.com/libraria/services/library/utils"
)

// Command structs
type CreateReservationCommand struct {
	BookID string `json:"book_id" validate:"required"`
	UserID string `json:"user_id" validate:"required"`
}

type CancelReservationCommand struct {
	AggregateID string `json:"aggregate_id" validate:"required"`
}

type ReturnReservationCommand struct {
	AggregateID string `json:"aggregate_id" validate:"required"`
}

type MarkLateCommand struct {
	AggregateID string `json:"aggregate_id" validate:"required"`
}

// ReservationHandler drives the reservation lifecycle. Creation is
// optimistic: the CREATED event commits immediately and book validation runs
// asynchronously over the bus.
type ReservationHandler struct {
	reservations *repository.ReservationRepository
	bus          *eventbus.Bus

	loanFee        domain.Money
	loanPeriodDays int
	dailyLateFee   domain.Money
}

// NewReservationHandler creates a new reservation handler.
func NewReservationHandler(
	reservations *repository.ReservationRepository,
	bus *eventbus.Bus,
	loanFee domain.Money,
	loanPeriodDays int,
	dailyLateFee domain.Money,
) *ReservationHandler {
	return &ReservationHandler{
		reservations:   reservations,
		bus:            bus,
		loanFee:        loanFee,
		loanPeriodDays: loanPeriodDays,
		dailyLateFee:   dailyLateFee,
	}
}

// Register hooks the asynchronous reactions into the bus.
func (h *ReservationHandler) Register(bus *eventbus.Bus) {
	bus.Subscribe(domain.BookValidationResulted, "reservation.validation_result", h.HandleBookValidationResulted)
	bus.Subscribe(domain.WalletPaymentDeclined, "reservation.payment_declined", h.HandleWalletPaymentDeclined)
}

// HandleCreateReservation commits a CREATED reservation and asks the catalog
// to validate the book.
func (h *ReservationHandler) HandleCreateReservation(ctx context.Context, cmd CreateReservationCommand) (*domain.ReservationAggregate, error) {
	if err := utils.ValidateStruct(cmd); err != nil {
		return nil, err
	}

	res, err := domain.CreateReservation(cmd.BookID, cmd.UserID, h.loanFee)
	if err != nil {
		return nil, err
	}
	res.Correlate(res.ID())

	saved, err := h.reservations.Save(ctx, res)
	if err != nil {
		return nil, err
	}
	h.publish(ctx, saved)

	h.bus.Publish(ctx, domain.NewIntegrationEvent(
		domain.AggregateTypeReservation, res.ID(), res.ID(),
		domain.ReservationBookValidationRequestedPayload{
			ReservationID: res.ID(),
			BookID:        cmd.BookID,
			UserID:        cmd.UserID,
		}))

	log.Info().
		Str("aggregateID", res.ID()).
		Str("bookID", cmd.BookID).
		Str("userID", cmd.UserID).
		Msg("Reservation created")
	return res, nil
}

// HandleBookValidationResulted advances a CREATED reservation to
// PENDING_PAYMENT or rejects it, depending on the catalog's verdict.
// Redeliveries find the reservation past CREATED and fall through.
func (h *ReservationHandler) HandleBookValidationResulted(ctx context.Context, event domain.Event) error {
	data, ok := event.Data.(domain.BookValidationResultedPayload)
	if !ok {
		return errors.Errorf("unexpected payload for %s", event.Type)
	}

	res, err := h.reservations.Load(ctx, data.ReservationID)
	if err != nil {
		return err
	}
	if res.Status != domain.ReservationStatusCreated {
		return nil
	}

	if data.IsValid {
		if err := res.MarkPendingPayment(domain.Money(data.RetailPriceCents)); err != nil {
			return err
		}
	} else {
		if err := res.Reject(data.Reason); err != nil {
			return err
		}
	}
	res.Correlate(event.CorrelationID)

	saved, err := h.reservations.Save(ctx, res)
	if err != nil {
		return err
	}
	h.publish(ctx, saved)
	return nil
}

// HandleWalletPaymentDeclined rejects a reservation whose fee could not be
// charged.
func (h *ReservationHandler) HandleWalletPaymentDeclined(ctx context.Context, event domain.Event) error {
	data, ok := event.Data.(domain.WalletPaymentDeclinedPayload)
	if !ok {
		return errors.Errorf("unexpected payload for %s", event.Type)
	}

	res, err := h.reservations.Load(ctx, data.ReservationID)
	if err != nil {
		return err
	}
	if res.Status != domain.ReservationStatusPendingPayment {
		return nil
	}

	if err := res.Reject("payment declined: " + data.Reason); err != nil {
		return err
	}
	res.Correlate(event.CorrelationID)

	saved, err := h.reservations.Save(ctx, res)
	if err != nil {
		return err
	}
	h.publish(ctx, saved)
	return nil
}

// ConfirmReservation moves a paid reservation to RESERVED with a due date a
// loan period out. A reservation already RESERVED is left alone so the saga
// can retry safely.
func (h *ReservationHandler) ConfirmReservation(ctx context.Context, reservationID, paymentReference string) error {
	res, err := h.reservations.Load(ctx, reservationID)
	if err != nil {
		return err
	}
	if res.Status == domain.ReservationStatusReserved {
		return nil
	}

	dueDate := time.Now().UTC().AddDate(0, 0, h.loanPeriodDays)
	if err := res.Confirm(dueDate, paymentReference); err != nil {
		return err
	}
	res.Correlate(reservationID)

	saved, err := h.reservations.Save(ctx, res)
	if err != nil {
		return err
	}
	h.publish(ctx, saved)

	log.Info().
		Str("aggregateID", reservationID).
		Time("dueDate", dueDate).
		Msg("Reservation confirmed")
	return nil
}

// HandleCancelReservation ends an active loan early.
func (h *ReservationHandler) HandleCancelReservation(ctx context.Context, cmd CancelReservationCommand) error {
	if err := utils.ValidateStruct(cmd); err != nil {
		return err
	}

	res, err := h.reservations.Load(ctx, cmd.AggregateID)
	if err != nil {
		return err
	}
	if err := res.Cancel(); err != nil {
		return err
	}

	saved, err := h.reservations.Save(ctx, res)
	if err != nil {
		return err
	}
	h.publish(ctx, saved)
	return nil
}

// HandleReturnReservation settles a loan, accruing the late fee and
// converting to a purchase when it reaches the retail price.
func (h *ReservationHandler) HandleReturnReservation(ctx context.Context, cmd ReturnReservationCommand) (*domain.ReservationAggregate, error) {
	if err := utils.ValidateStruct(cmd); err != nil {
		return nil, err
	}

	res, err := h.reservations.Load(ctx, cmd.AggregateID)
	if err != nil {
		return nil, err
	}
	if err := res.MarkAsReturned(time.Now().UTC(), h.dailyLateFee); err != nil {
		return nil, err
	}

	saved, err := h.reservations.Save(ctx, res)
	if err != nil {
		return nil, err
	}
	h.publish(ctx, saved)
	return res, nil
}

// HandleMarkLate flags an overdue loan.
func (h *ReservationHandler) HandleMarkLate(ctx context.Context, cmd MarkLateCommand) error {
	if err := utils.ValidateStruct(cmd); err != nil {
		return err
	}

	res, err := h.reservations.Load(ctx, cmd.AggregateID)
	if err != nil {
		return err
	}
	if err := res.MarkLate(); err != nil {
		return err
	}

	saved, err := h.reservations.Save(ctx, res)
	if err != nil {
		return err
	}
	h.publish(ctx, saved)
	return nil
}

func (h *ReservationHandler) publish(ctx context.Context, events []domain.Event) {
	for _, ev := range events {
		h.bus.Publish(ctx, ev)
	}
}
