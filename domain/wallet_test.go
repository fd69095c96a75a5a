package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCreateWalletRecordsInitialBalance(t *testing.T) {
	wallet, err := CreateWallet("user-1", MoneyFromCents(5000))
	require.NoError(t, err)
	require.Equal(t, MoneyFromCents(5000), wallet.Balance)

	pending := wallet.PendingEvents()
	require.Len(t, pending, 1)
	require.Equal(t, WalletCreated, pending[0].Type)
	payload := pending[0].Data.(WalletCreatedPayload)
	require.Equal(t, int64(5000), payload.BalanceCents)

	var vErr *ValidationError
	_, err = CreateWallet("", 0)
	require.ErrorAs(t, err, &vErr)
	_, err = CreateWallet("user-1", MoneyFromCents(-1))
	require.ErrorAs(t, err, &vErr)
}

func TestWalletUpdateBalanceAppliesSignedDelta(t *testing.T) {
	wallet, err := CreateWallet("user-1", MoneyFromCents(1000))
	require.NoError(t, err)
	wallet.MarkCommitted()

	require.NoError(t, wallet.UpdateBalance(MoneyFromCents(-300), "loan fee", "res-1"))
	require.Equal(t, MoneyFromCents(700), wallet.Balance)
	require.True(t, wallet.HasChargedReservation("res-1"))

	require.NoError(t, wallet.UpdateBalance(MoneyFromCents(500), "top up", ""))
	require.Equal(t, MoneyFromCents(1200), wallet.Balance)

	pending := wallet.PendingEvents()
	require.Len(t, pending, 2)
	require.Equal(t, int64(-300), pending[0].Data.(WalletBalanceUpdatedPayload).DeltaCents)
	require.Equal(t, "res-1", pending[0].Data.(WalletBalanceUpdatedPayload).ReservationID)
	require.Equal(t, int64(500), pending[1].Data.(WalletBalanceUpdatedPayload).DeltaCents)
}

func TestWalletBalanceMayGoNegative(t *testing.T) {
	wallet, err := CreateWallet("user-1", MoneyFromCents(200))
	require.NoError(t, err)
	wallet.MarkCommitted()

	// No floor at this layer; charging callers check funds first
	require.NoError(t, wallet.UpdateBalance(MoneyFromCents(-300), "correction", ""))
	require.Equal(t, MoneyFromCents(-100), wallet.Balance)
	require.True(t, wallet.Balance.IsNegative())
}

func TestWalletDelete(t *testing.T) {
	wallet, err := CreateWallet("user-1", 0)
	require.NoError(t, err)
	wallet.MarkCommitted()

	require.NoError(t, wallet.Delete())
	require.True(t, wallet.IsDeleted())
	require.ErrorIs(t, wallet.Delete(), ErrAlreadyDeleted)
	require.ErrorIs(t, wallet.UpdateBalance(MoneyFromCents(100), "top up", ""), ErrAlreadyDeleted)
}

func TestRehydrateWalletRestoresChargedReservations(t *testing.T) {
	now := time.Now().UTC()
	history := []Event{
		{Type: WalletCreated, Version: 1, Timestamp: now, Data: WalletCreatedPayload{
			WalletID: "w-1", UserID: "user-1", BalanceCents: 1000,
		}},
		{Type: WalletBalanceUpdated, Version: 2, Timestamp: now, Data: WalletBalanceUpdatedPayload{
			WalletID: "w-1", UserID: "user-1", DeltaCents: -300, Reason: "loan fee", ReservationID: "res-1",
		}},
		{Type: WalletBalanceUpdated, Version: 3, Timestamp: now, Data: WalletBalanceUpdatedPayload{
			WalletID: "w-1", UserID: "user-1", DeltaCents: 500, Reason: "top up",
		}},
	}

	wallet, err := RehydrateWallet("w-1", history)
	require.NoError(t, err)
	require.Equal(t, 3, wallet.Version())
	require.Equal(t, MoneyFromCents(1200), wallet.Balance)
	require.True(t, wallet.HasChargedReservation("res-1"))
	require.False(t, wallet.HasChargedReservation("res-2"))
}

func TestRehydrateWalletRejectsForeignFirstEvent(t *testing.T) {
	history := []Event{
		{Type: BookCreated, Version: 1, Data: BookCreatedPayload{BookID: "b-1"}},
	}
	_, err := RehydrateWallet("w-1", history)
	var rErr *RehydrationError
	require.ErrorAs(t, err, &rErr)
}
