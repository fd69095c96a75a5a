package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/rs/zerolog/log"

	"example.com/libraria/services/library/handlers"
)

// Command type definitions for inbound bus messages
const (
	CreateBook    = "CreateBook"
	UpdateBook    = "UpdateBook"
	DeleteBook    = "DeleteBook"
	CreateWallet  = "CreateWallet"
	UpdateBalance = "UpdateBalance"
	DeleteWallet  = "DeleteWallet"
	ReserveBook   = "ReserveBook"
	CancelLoan    = "CancelLoan"
	ReturnLoan    = "ReturnLoan"
)

// AzureBusMessage is the common message structure
type AzureBusMessage struct {
	EventType string          `json:"eventType"`
	Data      json.RawMessage `json:"data"`
}

type MessageProcessor interface {
	ProcessMessage(ctx context.Context, message *azservicebus.ReceivedMessage) error
}

// Processor routes inbound queue messages to the command handlers.
type Processor struct {
	bookHandler        *handlers.BookHandler
	reservationHandler *handlers.ReservationHandler
	walletHandler      *handlers.WalletHandler
}

func NewProcessor(
	bookHandler *handlers.BookHandler,
	reservationHandler *handlers.ReservationHandler,
	walletHandler *handlers.WalletHandler,
) *Processor {
	return &Processor{
		bookHandler:        bookHandler,
		reservationHandler: reservationHandler,
		walletHandler:      walletHandler,
	}
}

func (p *Processor) ProcessMessage(ctx context.Context, message *azservicebus.ReceivedMessage) error {
	var msg AzureBusMessage
	if err := json.Unmarshal(message.Body, &msg); err != nil {
		return fmt.Errorf("error unmarshalling message: %w", err)
	}

	log.Info().Str("eventType", msg.EventType).Msg("Processing message")

	switch msg.EventType {
	// Book commands
	case CreateBook:
		var cmd handlers.CreateBookCommand
		if err := json.Unmarshal(msg.Data, &cmd); err != nil {
			return err
		}
		_, err := p.bookHandler.HandleCreateBook(ctx, cmd)
		return err

	case UpdateBook:
		var cmd handlers.UpdateBookCommand
		if err := json.Unmarshal(msg.Data, &cmd); err != nil {
			return err
		}
		_, err := p.bookHandler.HandleUpdateBook(ctx, cmd)
		return err

	case DeleteBook:
		var cmd handlers.DeleteBookCommand
		if err := json.Unmarshal(msg.Data, &cmd); err != nil {
			return err
		}
		return p.bookHandler.HandleDeleteBook(ctx, cmd)

	// Wallet commands
	case CreateWallet:
		var cmd handlers.CreateWalletCommand
		if err := json.Unmarshal(msg.Data, &cmd); err != nil {
			return err
		}
		_, err := p.walletHandler.HandleCreateWallet(ctx, cmd)
		return err

	case UpdateBalance:
		var cmd handlers.UpdateBalanceCommand
		if err := json.Unmarshal(msg.Data, &cmd); err != nil {
			return err
		}
		_, err := p.walletHandler.HandleUpdateBalance(ctx, cmd)
		return err

	case DeleteWallet:
		var cmd handlers.DeleteWalletCommand
		if err := json.Unmarshal(msg.Data, &cmd); err != nil {
			return err
		}
		return p.walletHandler.HandleDeleteWallet(ctx, cmd)

	// Reservation commands
	case ReserveBook:
		var cmd handlers.CreateReservationCommand
		if err := json.Unmarshal(msg.Data, &cmd); err != nil {
			return err
		}
		_, err := p.reservationHandler.HandleCreateReservation(ctx, cmd)
		return err

	case CancelLoan:
		var cmd handlers.CancelReservationCommand
		if err := json.Unmarshal(msg.Data, &cmd); err != nil {
			return err
		}
		return p.reservationHandler.HandleCancelReservation(ctx, cmd)

	case ReturnLoan:
		var cmd handlers.ReturnReservationCommand
		if err := json.Unmarshal(msg.Data, &cmd); err != nil {
			return err
		}
		_, err := p.reservationHandler.HandleReturnReservation(ctx, cmd)
		return err

	default:
		return fmt.Errorf("unsupported event type: %s", msg.EventType)
	}
}
