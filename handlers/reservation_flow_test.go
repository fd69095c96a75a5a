package handlers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"example.com/libraria/services/library/domain"
	"example.com/libraria/services/library/eventbus"
	"example.com/libraria/services/library/eventstore"
	"example.com/libraria/services/library/models"
	"example.com/libraria/services/library/repository"
	"example.com/libraria/services/library/saga"
)

// flowFixture wires the reservation choreography over one in-process bus with
// in-memory stores. The catalog verdict comes from a stub subscriber keyed by
// book ID, standing in for the projection-backed validator.
type flowFixture struct {
	bus          *eventbus.Bus
	reservations *ReservationHandler
	wallets      *WalletHandler
	walletRepo   *repository.WalletRepository
	resRepo      *repository.ReservationRepository
	sagaStore    *memorySagaStore
	catalog      map[string]domain.BookValidationResultedPayload
}

func newFlowFixture(t *testing.T) *flowFixture {
	t.Helper()

	bus := eventbus.New()
	resRepo := repository.NewReservationRepository(eventstore.NewMemoryEventStore())
	walletRepo := repository.NewWalletRepository(eventstore.NewMemoryEventStore(), repository.NewMemoryKeyIndex())

	f := &flowFixture{
		bus:        bus,
		resRepo:    resRepo,
		walletRepo: walletRepo,
		sagaStore:  newMemorySagaStore(),
		catalog:    make(map[string]domain.BookValidationResultedPayload),
	}
	f.reservations = NewReservationHandler(resRepo, bus, domain.MoneyFromCents(300), 14, domain.MoneyFromCents(20))
	f.wallets = NewWalletHandler(walletRepo, bus)

	bus.Subscribe(domain.ReservationBookValidationRequested, "catalog.validate", func(ctx context.Context, event domain.Event) error {
		data := event.Data.(domain.ReservationBookValidationRequestedPayload)
		result, ok := f.catalog[data.BookID]
		if !ok {
			result = domain.BookValidationResultedPayload{IsValid: false, Reason: "book not found"}
		}
		result.ReservationID = data.ReservationID
		result.BookID = data.BookID
		bus.Publish(ctx, domain.NewIntegrationEvent(
			domain.AggregateTypeBook, data.BookID, event.CorrelationID, result))
		return nil
	})

	saga.NewReservationPaymentSaga(f.sagaStore, f.reservations).Register(bus)
	f.reservations.Register(bus)
	f.wallets.Register(bus)
	return f
}

func (f *flowFixture) addBook(bookID, title string, retailPriceCents int64) {
	f.catalog[bookID] = domain.BookValidationResultedPayload{
		IsValid:          true,
		Title:            title,
		RetailPriceCents: retailPriceCents,
	}
}

func (f *flowFixture) addWallet(t *testing.T, userID string, balanceCents int64) *domain.WalletAggregate {
	t.Helper()
	wallet, err := f.wallets.HandleCreateWallet(context.Background(), CreateWalletCommand{
		UserID:              userID,
		InitialBalanceCents: balanceCents,
	})
	require.NoError(t, err)
	return wallet
}

func TestReservationFlowHappyPath(t *testing.T) {
	ctx := context.Background()
	f := newFlowFixture(t)
	f.addBook("book-1", "The Go Programming Language", 2500)
	wallet := f.addWallet(t, "user-1", 1000)

	res, err := f.reservations.HandleCreateReservation(ctx, CreateReservationCommand{
		BookID: "book-1",
		UserID: "user-1",
	})
	require.NoError(t, err)

	// The whole choreography ran synchronously on the bus
	final, err := f.resRepo.Load(ctx, res.ID())
	require.NoError(t, err)
	require.Equal(t, domain.ReservationStatusReserved, final.Status)
	require.Equal(t, "pay-"+res.ID(), final.PaymentReference)
	require.Equal(t, domain.MoneyFromCents(2500), final.RetailPrice)
	require.False(t, final.DueDate.IsZero())

	charged, err := f.walletRepo.Load(ctx, wallet.ID())
	require.NoError(t, err)
	require.Equal(t, domain.MoneyFromCents(700), charged.Balance)
	require.True(t, charged.HasChargedReservation(res.ID()))

	row, err := f.sagaStore.FindByReservationID(ctx, res.ID())
	require.NoError(t, err)
	require.NotNil(t, row)
	require.Equal(t, saga.StatusCompleted, row.Status)
}

func TestReservationFlowRejectsUnknownBook(t *testing.T) {
	ctx := context.Background()
	f := newFlowFixture(t)
	f.addWallet(t, "user-1", 1000)

	res, err := f.reservations.HandleCreateReservation(ctx, CreateReservationCommand{
		BookID: "no-such-book",
		UserID: "user-1",
	})
	require.NoError(t, err)

	final, err := f.resRepo.Load(ctx, res.ID())
	require.NoError(t, err)
	require.Equal(t, domain.ReservationStatusRejected, final.Status)

	// No payment leg ever started
	row, err := f.sagaStore.FindByReservationID(ctx, res.ID())
	require.NoError(t, err)
	require.Nil(t, row)
}

func TestReservationFlowRejectsOnInsufficientFunds(t *testing.T) {
	ctx := context.Background()
	f := newFlowFixture(t)
	f.addBook("book-1", "T", 2500)
	wallet := f.addWallet(t, "user-1", 100)

	res, err := f.reservations.HandleCreateReservation(ctx, CreateReservationCommand{
		BookID: "book-1",
		UserID: "user-1",
	})
	require.NoError(t, err)

	final, err := f.resRepo.Load(ctx, res.ID())
	require.NoError(t, err)
	require.Equal(t, domain.ReservationStatusRejected, final.Status)

	// The wallet kept its balance
	untouched, err := f.walletRepo.Load(ctx, wallet.ID())
	require.NoError(t, err)
	require.Equal(t, domain.MoneyFromCents(100), untouched.Balance)

	row, err := f.sagaStore.FindByReservationID(ctx, res.ID())
	require.NoError(t, err)
	require.NotNil(t, row)
	require.Equal(t, saga.StatusFailed, row.Status)
}

func TestReservationFlowRejectsWhenUserHasNoWallet(t *testing.T) {
	ctx := context.Background()
	f := newFlowFixture(t)
	f.addBook("book-1", "T", 2500)

	res, err := f.reservations.HandleCreateReservation(ctx, CreateReservationCommand{
		BookID: "book-1",
		UserID: "user-1",
	})
	require.NoError(t, err)

	final, err := f.resRepo.Load(ctx, res.ID())
	require.NoError(t, err)
	require.Equal(t, domain.ReservationStatusRejected, final.Status)
}

func TestReservationFlowRedeliveredPendingPaymentChargesOnce(t *testing.T) {
	ctx := context.Background()
	f := newFlowFixture(t)
	f.addBook("book-1", "T", 2500)
	wallet := f.addWallet(t, "user-1", 1000)

	res, err := f.reservations.HandleCreateReservation(ctx, CreateReservationCommand{
		BookID: "book-1",
		UserID: "user-1",
	})
	require.NoError(t, err)

	// Redeliver the pending-payment event as a catch-up processor would
	confirmed, err := f.resRepo.Load(ctx, res.ID())
	require.NoError(t, err)
	require.Equal(t, domain.ReservationStatusReserved, confirmed.Status)

	f.bus.Publish(ctx, domain.NewIntegrationEvent(
		domain.AggregateTypeReservation, res.ID(), res.ID(),
		domain.ReservationPendingPaymentPayload{
			ReservationID:    res.ID(),
			UserID:           "user-1",
			FeeCents:         300,
			RetailPriceCents: 2500,
		}))

	charged, err := f.walletRepo.Load(ctx, wallet.ID())
	require.NoError(t, err)
	require.Equal(t, domain.MoneyFromCents(700), charged.Balance)
}

func TestWalletHandlerRejectsSecondWalletForUser(t *testing.T) {
	f := newFlowFixture(t)
	f.addWallet(t, "user-1", 1000)

	_, err := f.wallets.HandleCreateWallet(context.Background(), CreateWalletCommand{
		UserID:              "user-1",
		InitialBalanceCents: 500,
	})
	require.ErrorIs(t, err, ErrDuplicateWallet)
}

func TestReturnFlowAfterConfirmation(t *testing.T) {
	ctx := context.Background()
	f := newFlowFixture(t)
	f.addBook("book-1", "T", 2500)
	f.addWallet(t, "user-1", 1000)

	res, err := f.reservations.HandleCreateReservation(ctx, CreateReservationCommand{
		BookID: "book-1",
		UserID: "user-1",
	})
	require.NoError(t, err)

	returned, err := f.reservations.HandleReturnReservation(ctx, ReturnReservationCommand{AggregateID: res.ID()})
	require.NoError(t, err)
	require.Equal(t, domain.ReservationStatusReturned, returned.Status)

	// A second return hits an invalid transition
	_, err = f.reservations.HandleReturnReservation(ctx, ReturnReservationCommand{AggregateID: res.ID()})
	var vErr *domain.ValidationError
	require.ErrorAs(t, err, &vErr)
}

type memorySagaStore struct {
	rows map[string]*models.ReservationSaga
}

func newMemorySagaStore() *memorySagaStore {
	return &memorySagaStore{rows: make(map[string]*models.ReservationSaga)}
}

func (s *memorySagaStore) FindByReservationID(_ context.Context, reservationID string) (*models.ReservationSaga, error) {
	row, ok := s.rows[reservationID]
	if !ok {
		return nil, nil
	}
	clone := *row
	return &clone, nil
}

func (s *memorySagaStore) Save(_ context.Context, saga *models.ReservationSaga) error {
	clone := *saga
	s.rows[saga.ReservationID] = &clone
	return nil
}
