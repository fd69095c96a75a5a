package handlers

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/libraria/services/library/domain"
	"example.com/libraria/services/library/eventbus"
	"example.com/libraria/services/library/repository"
	"example.com/libraria/services/library/utils"
)

// ErrDuplicateWallet signals an attempt to open a second live wallet for the
// same user.
var ErrDuplicateWallet = errors.New("user already has a wallet")

// Command structs
type CreateWalletCommand struct {
	UserID              string `json:"user_id" validate:"required"`
	InitialBalanceCents int64  `json:"initial_balance_cents" validate:"gte=0"`
}

type UpdateBalanceCommand struct {
	AggregateID string `json:"aggregate_id" validate:"required"`
	DeltaCents  int64  `json:"delta_cents" validate:"required"`
	Reason      string `json:"reason"`
}

type DeleteWalletCommand struct {
	AggregateID string `json:"aggregate_id" validate:"required"`
}

// WalletHandler executes wallet commands and reacts to reservations entering
// PENDING_PAYMENT by charging the user's wallet.
type WalletHandler struct {
	wallets *repository.WalletRepository
	bus     *eventbus.Bus
}

// NewWalletHandler creates a new wallet handler.
func NewWalletHandler(wallets *repository.WalletRepository, bus *eventbus.Bus) *WalletHandler {
	return &WalletHandler{wallets: wallets, bus: bus}
}

// Register hooks the payment reaction into the bus.
func (h *WalletHandler) Register(bus *eventbus.Bus) {
	bus.Subscribe(domain.ReservationPendingPayment, "wallet.charge", h.HandleReservationPendingPayment)
}

// HandleCreateWallet opens a wallet. One live wallet per user.
func (h *WalletHandler) HandleCreateWallet(ctx context.Context, cmd CreateWalletCommand) (*domain.WalletAggregate, error) {
	if err := utils.ValidateStruct(cmd); err != nil {
		return nil, err
	}

	existingID, err := h.wallets.FindIDByUserID(ctx, cmd.UserID)
	if err != nil {
		return nil, err
	}
	if existingID != "" {
		return nil, ErrDuplicateWallet
	}

	wallet, err := domain.CreateWallet(cmd.UserID, domain.Money(cmd.InitialBalanceCents))
	if err != nil {
		return nil, err
	}

	saved, err := h.wallets.Save(ctx, wallet)
	if err != nil {
		return nil, err
	}
	h.publish(ctx, saved)

	log.Info().
		Str("aggregateID", wallet.ID()).
		Str("userID", cmd.UserID).
		Msg("Wallet created")
	return wallet, nil
}

// HandleUpdateBalance applies a signed balance adjustment.
func (h *WalletHandler) HandleUpdateBalance(ctx context.Context, cmd UpdateBalanceCommand) (*domain.WalletAggregate, error) {
	if err := utils.ValidateStruct(cmd); err != nil {
		return nil, err
	}

	wallet, err := h.wallets.Load(ctx, cmd.AggregateID)
	if err != nil {
		return nil, err
	}
	if err := wallet.UpdateBalance(domain.Money(cmd.DeltaCents), cmd.Reason, ""); err != nil {
		return nil, err
	}

	saved, err := h.wallets.Save(ctx, wallet)
	if err != nil {
		return nil, err
	}
	h.publish(ctx, saved)
	return wallet, nil
}

// HandleDeleteWallet closes a wallet.
func (h *WalletHandler) HandleDeleteWallet(ctx context.Context, cmd DeleteWalletCommand) error {
	if err := utils.ValidateStruct(cmd); err != nil {
		return err
	}

	wallet, err := h.wallets.Load(ctx, cmd.AggregateID)
	if err != nil {
		return err
	}
	if err := wallet.Delete(); err != nil {
		return err
	}

	saved, err := h.wallets.Save(ctx, wallet)
	if err != nil {
		return err
	}
	h.publish(ctx, saved)
	return nil
}

// HandleReservationPendingPayment charges the reservation fee from the
// user's wallet and reports the outcome. The payment reference is derived
// from the reservation ID so redeliveries republish the same result instead
// of charging twice.
func (h *WalletHandler) HandleReservationPendingPayment(ctx context.Context, event domain.Event) error {
	data, ok := event.Data.(domain.ReservationPendingPaymentPayload)
	if !ok {
		return errors.Errorf("unexpected payload for %s", event.Type)
	}

	decline := func(reason string) {
		h.bus.Publish(ctx, domain.NewIntegrationEvent(
			domain.AggregateTypeWallet, "", event.CorrelationID,
			domain.WalletPaymentDeclinedPayload{
				ReservationID: data.ReservationID,
				UserID:        data.UserID,
				AmountCents:   data.FeeCents,
				Reason:        reason,
			}))
	}

	walletID, err := h.wallets.FindIDByUserID(ctx, data.UserID)
	if err != nil {
		return err
	}
	if walletID == "" {
		decline("user has no wallet")
		return nil
	}

	wallet, err := h.wallets.Load(ctx, walletID)
	if err != nil {
		return err
	}

	paymentRef := "pay-" + data.ReservationID

	if !wallet.HasChargedReservation(data.ReservationID) {
		// The aggregate allows negative balances, so the funds check sits here
		if wallet.Balance.Cents() < data.FeeCents {
			decline("insufficient funds")
			return nil
		}
		if err := wallet.UpdateBalance(domain.Money(-data.FeeCents), "reservation fee", data.ReservationID); err != nil {
			return err
		}

		saved, err := h.wallets.Save(ctx, wallet)
		if err != nil {
			return err
		}
		h.publish(ctx, saved)
	}

	h.bus.Publish(ctx, domain.NewIntegrationEvent(
		domain.AggregateTypeWallet, wallet.ID(), event.CorrelationID,
		domain.WalletPaymentSucceededPayload{
			ReservationID:    data.ReservationID,
			UserID:           data.UserID,
			WalletID:         wallet.ID(),
			AmountCents:      data.FeeCents,
			PaymentReference: paymentRef,
			PaymentMethod:    "wallet",
		}))
	return nil
}

func (h *WalletHandler) publish(ctx context.Context, events []domain.Event) {
	for _, ev := range events {
		h.bus.Publish(ctx, ev)
	}
}
