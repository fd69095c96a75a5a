package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/elastic/go-elasticsearch/v7"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"example.com/libraria/services/library/api"
	"example.com/libraria/services/library/cache"
	"example.com/libraria/services/library/domain"
	"example.com/libraria/services/library/eventbus"
	"example.com/libraria/services/library/eventstore"
	"example.com/libraria/services/library/handlers"
	"example.com/libraria/services/library/messaging"
	"example.com/libraria/services/library/projections"
	"example.com/libraria/services/library/repository"
	"example.com/libraria/services/library/saga"
	"example.com/libraria/services/library/tracing"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the API server",
	Run:   runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)
}

func runServer(cmd *cobra.Command, args []string) {
	log.Info().Msg("Starting server")

	// Connect to database
	db, err := openDatabase()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}

	// Auto migrate tables
	if cfg.EnableMigrations {
		if err := migrateTables(db); err != nil {
			log.Fatal().Err(err).Msg("Failed to migrate database")
		}
	}

	// Initialize event store and key index
	eventStore := eventstore.NewGormEventStore(db)
	keyIndex := repository.NewGormKeyIndex(db)

	// Initialize repositories
	bookRepo := repository.NewBookRepository(eventStore, keyIndex)
	reservationRepo := repository.NewReservationRepository(eventStore)
	walletRepo := repository.NewWalletRepository(eventStore, keyIndex)

	// Initialize Redis cache
	redisCache, err := cache.NewRedisCache(cfg)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Redis cache, continuing without caching")
		redisCache = nil
	}

	// Initialize Elasticsearch client
	var esClient *elasticsearch.Client
	if cfg.ElasticSearchEnabled {
		esClient, err = projections.NewElasticsearchClient(cfg)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize Elasticsearch, continuing without search")
			esClient = nil
		}
	}

	// Initialize tracer
	tracer, err := tracing.NewTracer(cfg)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
	}

	// Initialize event bus and command handlers
	bus := eventbus.New()
	bookHandler := handlers.NewBookHandler(bookRepo, bus)
	reservationHandler := handlers.NewReservationHandler(
		reservationRepo, bus,
		domain.Money(cfg.LoanFeeCents), cfg.LoanPeriodDays, domain.Money(cfg.DailyLateFeeCents))
	walletHandler := handlers.NewWalletHandler(walletRepo, bus)
	queryHandler := handlers.NewQueryHandler(db, redisCache, esClient, cfg)

	// Initialize projectors
	bookProjector := projections.NewBookProjector(db, esClient, redisCache, cfg)
	reservationProjector := projections.NewReservationProjector(db, redisCache)
	walletProjector := projections.NewWalletProjector(db, redisCache)

	// Wire subscribers: projections, validation, payment reaction, saga
	registerProjectors(bus, bookProjector, reservationProjector, walletProjector)

	validator := projections.NewBookValidator(db, bus)
	bus.Subscribe(domain.ReservationBookValidationRequested, "catalog.validate", validator.HandleValidationRequest)

	reservationHandler.Register(bus)
	walletHandler.Register(bus)

	paymentSaga := saga.NewReservationPaymentSaga(saga.NewGormStore(db), reservationHandler)
	paymentSaga.Register(bus)

	// Start inbound queue consumers when a connection string is configured
	if cfg.AzureQueueConnStr != "" {
		azureClient, err := messaging.NewAzureClient(cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize Azure Service Bus")
		}

		msgProcessor := messaging.NewProcessor(bookHandler, reservationHandler, walletHandler)
		go func() {
			if err := azureClient.StartConsumers(cfg.AzureCommandsQueueName, msgProcessor); err != nil {
				log.Fatal().Err(err).Msg("Failed to start commands queue consumer")
			}
		}()
	}

	// Initialize server
	server := api.NewServer(cfg, bookHandler, reservationHandler, walletHandler, queryHandler, tracer)

	// Start HTTP server
	go func() {
		if err := server.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start HTTP server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Create context with timeout for shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Shutdown server gracefully
	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited properly")
}

// registerProjectors subscribes each projector to the event types it folds.
func registerProjectors(
	bus *eventbus.Bus,
	books *projections.BookProjector,
	reservations *projections.ReservationProjector,
	wallets *projections.WalletProjector,
) {
	for _, t := range []string{domain.BookCreated, domain.BookUpdated, domain.BookDeleted} {
		bus.Subscribe(t, "projection.books", books.Project)
	}
	for _, t := range []string{
		domain.ReservationCreated, domain.ReservationPendingPayment, domain.ReservationRejected,
		domain.ReservationConfirmed, domain.ReservationCancelled, domain.ReservationMarkedLate,
		domain.ReservationReturned, domain.ReservationBought,
		domain.BookUpdated, domain.BookValidationResulted,
	} {
		bus.Subscribe(t, "projection.reservations", reservations.Project)
	}
	for _, t := range []string{domain.WalletCreated, domain.WalletBalanceUpdated, domain.WalletDeleted} {
		bus.Subscribe(t, "projection.wallets", wallets.Project)
	}
}
