package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// WalletAggregate holds a user's prepaid balance. Balance updates are signed
// deltas; ChargedReservations tracks which reservations already took a fee so
// redelivered payment requests stay idempotent.
type WalletAggregate struct {
	AggregateBase

	UserID              string
	Balance             Money
	ChargedReservations map[string]bool
}

// CreateWallet opens a wallet for a user with an initial balance.
func CreateWallet(userID string, initialBalance Money) (*WalletAggregate, error) {
	if userID == "" {
		return nil, NewValidationError("user_id", "must not be empty")
	}
	if initialBalance.IsNegative() {
		return nil, NewValidationError("balance", "must not be negative")
	}

	w := &WalletAggregate{
		AggregateBase:       newAggregateBase(uuid.New().String(), AggregateTypeWallet),
		UserID:              userID,
		Balance:             initialBalance,
		ChargedReservations: make(map[string]bool),
	}
	w.record(WalletCreatedPayload{
		WalletID:     w.ID(),
		UserID:       userID,
		BalanceCents: initialBalance.Cents(),
	}, time.Now().UTC())
	return w, nil
}

// UpdateBalance applies a signed delta. The balance may go negative here;
// callers that charge fees check funds before calling.
func (w *WalletAggregate) UpdateBalance(delta Money, reason, reservationID string) error {
	if w.IsDeleted() {
		return ErrAlreadyDeleted
	}

	w.Balance = w.Balance.Add(delta)
	if reservationID != "" {
		w.ChargedReservations[reservationID] = true
	}
	w.record(WalletBalanceUpdatedPayload{
		WalletID:      w.ID(),
		UserID:        w.UserID,
		DeltaCents:    delta.Cents(),
		Reason:        reason,
		ReservationID: reservationID,
	}, time.Now().UTC())
	return nil
}

// HasChargedReservation reports whether a fee for the reservation was already
// taken from this wallet.
func (w *WalletAggregate) HasChargedReservation(reservationID string) bool {
	return w.ChargedReservations[reservationID]
}

// Delete closes the wallet. Deleting twice returns ErrAlreadyDeleted.
func (w *WalletAggregate) Delete() error {
	if w.IsDeleted() {
		return ErrAlreadyDeleted
	}
	now := time.Now().UTC()
	w.deletedAt = &now
	w.record(WalletDeletedPayload{
		WalletID:  w.ID(),
		UserID:    w.UserID,
		DeletedAt: now,
	}, now)
	return nil
}

// RehydrateWallet replays a committed event stream. The stream must start
// with WalletCreated at version 1 and be gapless.
func RehydrateWallet(aggregateID string, events []Event) (*WalletAggregate, error) {
	if len(events) == 0 {
		return nil, &RehydrationError{AggregateID: aggregateID, Reason: "empty event stream"}
	}
	if events[0].Type != WalletCreated {
		return nil, &RehydrationError{
			AggregateID: aggregateID,
			Reason:      "stream does not begin with " + WalletCreated,
		}
	}

	w := &WalletAggregate{
		AggregateBase:       newAggregateBase(aggregateID, AggregateTypeWallet),
		ChargedReservations: make(map[string]bool),
	}
	for i, ev := range events {
		if ev.Version != i+1 {
			return nil, &RehydrationError{AggregateID: aggregateID, Reason: "version gap in event stream"}
		}
		if err := w.apply(ev); err != nil {
			return nil, errors.Wrapf(err, "replaying event %s v%d", ev.Type, ev.Version)
		}
		w.setCommittedVersion(ev.Version)
	}
	return w, nil
}

func (w *WalletAggregate) apply(ev Event) error {
	switch p := ev.Data.(type) {
	case WalletCreatedPayload:
		w.UserID = p.UserID
		w.Balance = Money(p.BalanceCents)
	case WalletBalanceUpdatedPayload:
		w.Balance = w.Balance.Add(Money(p.DeltaCents))
		if p.ReservationID != "" {
			w.ChargedReservations[p.ReservationID] = true
		}
	case WalletDeletedPayload:
		at := p.DeletedAt
		w.deletedAt = &at
	default:
		return errors.Errorf("unexpected event type %s on wallet stream", ev.Type)
	}
	return nil
}
