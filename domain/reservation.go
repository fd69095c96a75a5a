package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Reservation lifecycle states.
const (
	ReservationStatusCreated        = "CREATED"
	ReservationStatusPendingPayment = "PENDING_PAYMENT"
	ReservationStatusReserved       = "RESERVED"
	ReservationStatusReturned       = "RETURNED"
	ReservationStatusBought         = "BOUGHT"
	ReservationStatusCancelled      = "CANCELLED"
	ReservationStatusRejected       = "REJECTED"
	ReservationStatusLate           = "LATE"
)

// ReservationAggregate tracks one copy of a book loaned to one user.
// Reservations are created optimistically: book existence is validated
// asynchronously after the CREATED event is committed.
type ReservationAggregate struct {
	AggregateBase

	BookID           string
	UserID           string
	Status           string
	Fee              Money
	RetailPrice      Money
	DueDate          time.Time
	PaymentReference string
	ReturnedAt       time.Time
}

// CreateReservation starts a reservation in CREATED with the flat loan fee.
func CreateReservation(bookID, userID string, fee Money) (*ReservationAggregate, error) {
	if bookID == "" {
		return nil, NewValidationError("book_id", "must not be empty")
	}
	if userID == "" {
		return nil, NewValidationError("user_id", "must not be empty")
	}
	if fee.IsNegative() {
		return nil, NewValidationError("fee", "must not be negative")
	}

	r := &ReservationAggregate{
		AggregateBase: newAggregateBase(uuid.New().String(), AggregateTypeReservation),
		BookID:        bookID,
		UserID:        userID,
		Status:        ReservationStatusCreated,
		Fee:           fee,
	}
	r.record(ReservationCreatedPayload{
		ReservationID: r.ID(),
		BookID:        bookID,
		UserID:        userID,
		FeeCents:      fee.Cents(),
	}, time.Now().UTC())
	return r, nil
}

// MarkPendingPayment moves CREATED to PENDING_PAYMENT once the book proved
// valid, capturing the retail price for a later purchase conversion.
func (r *ReservationAggregate) MarkPendingPayment(retailPrice Money) error {
	if r.Status != ReservationStatusCreated {
		return r.invalidTransition("mark pending payment")
	}
	r.Status = ReservationStatusPendingPayment
	r.RetailPrice = retailPrice
	r.record(ReservationPendingPaymentPayload{
		ReservationID:    r.ID(),
		UserID:           r.UserID,
		FeeCents:         r.Fee.Cents(),
		RetailPriceCents: retailPrice.Cents(),
	}, time.Now().UTC())
	return nil
}

// Reject terminates a reservation that never reached RESERVED, either because
// the book turned out invalid or the payment was declined.
func (r *ReservationAggregate) Reject(reason string) error {
	if r.Status != ReservationStatusCreated && r.Status != ReservationStatusPendingPayment {
		return r.invalidTransition("reject")
	}
	r.Status = ReservationStatusRejected
	r.record(ReservationRejectedPayload{
		ReservationID: r.ID(),
		Reason:        reason,
	}, time.Now().UTC())
	return nil
}

// Confirm moves PENDING_PAYMENT to RESERVED after a successful charge.
func (r *ReservationAggregate) Confirm(dueDate time.Time, paymentReference string) error {
	if r.Status != ReservationStatusPendingPayment {
		return r.invalidTransition("confirm")
	}
	r.Status = ReservationStatusReserved
	r.DueDate = dueDate
	r.PaymentReference = paymentReference
	r.record(ReservationConfirmedPayload{
		ReservationID:    r.ID(),
		DueDate:          dueDate,
		PaymentReference: paymentReference,
	}, time.Now().UTC())
	return nil
}

// Cancel ends an active loan early, before the due date.
func (r *ReservationAggregate) Cancel() error {
	if r.Status != ReservationStatusReserved {
		return r.invalidTransition("cancel")
	}
	now := time.Now().UTC()
	r.Status = ReservationStatusCancelled
	r.record(ReservationCancelledPayload{
		ReservationID: r.ID(),
		CancelledAt:   now,
	}, now)
	return nil
}

// MarkLate flags a RESERVED loan whose due date passed without a return.
func (r *ReservationAggregate) MarkLate() error {
	if r.Status != ReservationStatusReserved {
		return r.invalidTransition("mark late")
	}
	r.Status = ReservationStatusLate
	r.record(ReservationMarkedLatePayload{
		ReservationID: r.ID(),
		DueDate:       r.DueDate,
	}, time.Now().UTC())
	return nil
}

// MarkAsReturned settles a RESERVED or LATE loan. Days past the due date
// accrue dailyFee each; when the accrued fee reaches the book's retail price
// the return converts into a purchase and the loan ends as BOUGHT.
func (r *ReservationAggregate) MarkAsReturned(at time.Time, dailyFee Money) error {
	if r.Status != ReservationStatusReserved && r.Status != ReservationStatusLate {
		return r.invalidTransition("return")
	}

	lateFee := r.lateFeeAt(at, dailyFee)
	if r.RetailPrice > 0 && lateFee >= r.RetailPrice {
		r.Status = ReservationStatusBought
		r.ReturnedAt = at
		r.record(ReservationBoughtPayload{
			ReservationID:    r.ID(),
			ReturnedAt:       at,
			AccruedFeeCents:  lateFee.Cents(),
			RetailPriceCents: r.RetailPrice.Cents(),
		}, at)
		return nil
	}

	r.Status = ReservationStatusReturned
	r.ReturnedAt = at
	r.record(ReservationReturnedPayload{
		ReservationID: r.ID(),
		ReturnedAt:    at,
		LateFeeCents:  lateFee.Cents(),
	}, at)
	return nil
}

// lateFeeAt charges dailyFee per started day past the due date. An exact
// multiple of 24h counts that many days; any extra time starts a new one.
func (r *ReservationAggregate) lateFeeAt(at time.Time, dailyFee Money) Money {
	if r.DueDate.IsZero() || !at.After(r.DueDate) {
		return 0
	}
	const day = 24 * time.Hour
	days := int64((at.Sub(r.DueDate) + day - 1) / day)
	return Money(days * dailyFee.Cents())
}

// IsActive reports whether the reservation still holds the copy.
func (r *ReservationAggregate) IsActive() bool {
	return r.Status == ReservationStatusReserved || r.Status == ReservationStatusLate
}

func (r *ReservationAggregate) invalidTransition(op string) error {
	return NewValidationError("status", "cannot "+op+" a reservation in status "+r.Status)
}

// RehydrateReservation replays a committed event stream. The stream must
// start with ReservationCreated at version 1 and be gapless.
func RehydrateReservation(aggregateID string, events []Event) (*ReservationAggregate, error) {
	if len(events) == 0 {
		return nil, &RehydrationError{AggregateID: aggregateID, Reason: "empty event stream"}
	}
	if events[0].Type != ReservationCreated {
		return nil, &RehydrationError{
			AggregateID: aggregateID,
			Reason:      "stream does not begin with " + ReservationCreated,
		}
	}

	r := &ReservationAggregate{AggregateBase: newAggregateBase(aggregateID, AggregateTypeReservation)}
	for i, ev := range events {
		if ev.Version != i+1 {
			return nil, &RehydrationError{AggregateID: aggregateID, Reason: "version gap in event stream"}
		}
		if err := r.apply(ev); err != nil {
			return nil, errors.Wrapf(err, "replaying event %s v%d", ev.Type, ev.Version)
		}
		r.setCommittedVersion(ev.Version)
	}
	return r, nil
}

func (r *ReservationAggregate) apply(ev Event) error {
	switch p := ev.Data.(type) {
	case ReservationCreatedPayload:
		r.BookID = p.BookID
		r.UserID = p.UserID
		r.Fee = Money(p.FeeCents)
		r.Status = ReservationStatusCreated
	case ReservationPendingPaymentPayload:
		r.Status = ReservationStatusPendingPayment
		r.RetailPrice = Money(p.RetailPriceCents)
	case ReservationRejectedPayload:
		r.Status = ReservationStatusRejected
	case ReservationConfirmedPayload:
		r.Status = ReservationStatusReserved
		r.DueDate = p.DueDate
		r.PaymentReference = p.PaymentReference
	case ReservationCancelledPayload:
		r.Status = ReservationStatusCancelled
	case ReservationMarkedLatePayload:
		r.Status = ReservationStatusLate
	case ReservationReturnedPayload:
		r.Status = ReservationStatusReturned
		r.ReturnedAt = p.ReturnedAt
	case ReservationBoughtPayload:
		r.Status = ReservationStatusBought
		r.ReturnedAt = p.ReturnedAt
	default:
		return errors.Errorf("unexpected event type %s on reservation stream", ev.Type)
	}
	return nil
}
