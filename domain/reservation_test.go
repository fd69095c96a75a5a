package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func pendingReservation(t *testing.T) *ReservationAggregate {
	t.Helper()
	res, err := CreateReservation("book-1", "user-1", MoneyFromCents(300))
	require.NoError(t, err)
	res.MarkCommitted()
	require.NoError(t, res.MarkPendingPayment(MoneyFromCents(2500)))
	res.MarkCommitted()
	return res
}

func reservedReservation(t *testing.T, dueDate time.Time) *ReservationAggregate {
	t.Helper()
	res := pendingReservation(t)
	require.NoError(t, res.Confirm(dueDate, "pay-"+res.ID()))
	res.MarkCommitted()
	return res
}

func TestCreateReservationStartsCreated(t *testing.T) {
	res, err := CreateReservation("book-1", "user-1", MoneyFromCents(300))
	require.NoError(t, err)
	require.Equal(t, ReservationStatusCreated, res.Status)

	pending := res.PendingEvents()
	require.Len(t, pending, 1)
	require.Equal(t, ReservationCreated, pending[0].Type)
	payload := pending[0].Data.(ReservationCreatedPayload)
	require.Equal(t, int64(300), payload.FeeCents)

	_, err = CreateReservation("", "user-1", 0)
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
}

func TestReservationHappyPath(t *testing.T) {
	due := time.Now().UTC().Add(14 * 24 * time.Hour)
	res := reservedReservation(t, due)
	require.Equal(t, ReservationStatusReserved, res.Status)
	require.Equal(t, due, res.DueDate)
	require.Equal(t, MoneyFromCents(2500), res.RetailPrice)
	require.True(t, res.IsActive())

	require.NoError(t, res.MarkAsReturned(due.Add(-24*time.Hour), MoneyFromCents(20)))
	require.Equal(t, ReservationStatusReturned, res.Status)
	require.False(t, res.IsActive())

	events := res.PendingEvents()
	require.Len(t, events, 1)
	payload := events[0].Data.(ReservationReturnedPayload)
	require.Zero(t, payload.LateFeeCents)
}

func TestReservationInvalidTransitions(t *testing.T) {
	res, err := CreateReservation("book-1", "user-1", MoneyFromCents(300))
	require.NoError(t, err)
	res.MarkCommitted()

	var vErr *ValidationError
	require.ErrorAs(t, res.Confirm(time.Now(), "pay-x"), &vErr)
	require.ErrorAs(t, res.Cancel(), &vErr)
	require.ErrorAs(t, res.MarkLate(), &vErr)
	require.ErrorAs(t, res.MarkAsReturned(time.Now(), 0), &vErr)

	// A rejected reservation accepts nothing further
	require.NoError(t, res.Reject("book not found"))
	require.Equal(t, ReservationStatusRejected, res.Status)
	require.ErrorAs(t, res.MarkPendingPayment(0), &vErr)
	require.ErrorAs(t, res.Reject("again"), &vErr)
}

func TestReservationRejectFromPendingPayment(t *testing.T) {
	res := pendingReservation(t)
	require.NoError(t, res.Reject("insufficient funds"))
	require.Equal(t, ReservationStatusRejected, res.Status)
	payload := res.PendingEvents()[0].Data.(ReservationRejectedPayload)
	require.Equal(t, "insufficient funds", payload.Reason)
}

func TestReservationLateFeePerStartedDay(t *testing.T) {
	due := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	daily := MoneyFromCents(20)

	cases := []struct {
		name     string
		returned time.Time
		want     int64
	}{
		{"on the due date", due, 0},
		{"an hour late counts a full day", due.Add(time.Hour), 20},
		{"one day and a bit counts two days", due.Add(25 * time.Hour), 40},
		{"exactly ten days counts ten", due.Add(10 * 24 * time.Hour), 200},
		{"ten days and a minute counts eleven", due.Add(10*24*time.Hour + time.Minute), 220},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := reservedReservation(t, due)
			require.NoError(t, res.MarkAsReturned(tc.returned, daily))
			payload := res.PendingEvents()[0].Data.(ReservationReturnedPayload)
			require.Equal(t, tc.want, payload.LateFeeCents)
		})
	}
}

func TestReservationConvertsToBoughtWhenFeeReachesPrice(t *testing.T) {
	due := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	res := reservedReservation(t, due) // retail price 2500, daily fee 20

	// 125 started days accrue exactly the retail price
	late := due.Add(124*24*time.Hour + time.Hour)
	require.NoError(t, res.MarkAsReturned(late, MoneyFromCents(20)))
	require.Equal(t, ReservationStatusBought, res.Status)

	payload := res.PendingEvents()[0].Data.(ReservationBoughtPayload)
	require.Equal(t, int64(2500), payload.AccruedFeeCents)
	require.Equal(t, int64(2500), payload.RetailPriceCents)
}

func TestReservationReturnFromLate(t *testing.T) {
	due := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	res := reservedReservation(t, due)
	require.NoError(t, res.MarkLate())
	require.Equal(t, ReservationStatusLate, res.Status)
	res.MarkCommitted()

	require.NoError(t, res.MarkAsReturned(due.Add(48*time.Hour), MoneyFromCents(20)))
	require.Equal(t, ReservationStatusReturned, res.Status)
	payload := res.PendingEvents()[0].Data.(ReservationReturnedPayload)
	require.Equal(t, int64(40), payload.LateFeeCents)
}

func TestRehydrateReservationReplaysLifecycle(t *testing.T) {
	due := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	res := reservedReservation(t, due)

	history := []Event{
		{Type: ReservationCreated, Version: 1, Data: ReservationCreatedPayload{
			ReservationID: res.ID(), BookID: "book-1", UserID: "user-1", FeeCents: 300,
		}},
		{Type: ReservationPendingPayment, Version: 2, Data: ReservationPendingPaymentPayload{
			ReservationID: res.ID(), UserID: "user-1", FeeCents: 300, RetailPriceCents: 2500,
		}},
		{Type: ReservationConfirmed, Version: 3, Data: ReservationConfirmedPayload{
			ReservationID: res.ID(), DueDate: due, PaymentReference: "pay-" + res.ID(),
		}},
	}
	replayed, err := RehydrateReservation(res.ID(), history)
	require.NoError(t, err)
	require.Equal(t, 3, replayed.Version())
	require.Equal(t, ReservationStatusReserved, replayed.Status)
	require.Equal(t, due, replayed.DueDate)
	require.Equal(t, MoneyFromCents(2500), replayed.RetailPrice)
	require.Equal(t, "pay-"+res.ID(), replayed.PaymentReference)

	// The replayed aggregate keeps working
	require.NoError(t, replayed.Cancel())
	require.Equal(t, 4, replayed.PendingEvents()[0].Version)
}

func TestRehydrateReservationRejectsGaps(t *testing.T) {
	history := []Event{
		{Type: ReservationCreated, Version: 1, Data: ReservationCreatedPayload{
			ReservationID: "r-1", BookID: "book-1", UserID: "user-1",
		}},
		{Type: ReservationRejected, Version: 3, Data: ReservationRejectedPayload{
			ReservationID: "r-1", Reason: "book not found",
		}},
	}
	_, err := RehydrateReservation("r-1", history)
	var rErr *RehydrationError
	require.ErrorAs(t, err, &rErr)
}
