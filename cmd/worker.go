package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/elastic/go-elasticsearch/v7"
	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"example.com/libraria/services/library/cache"
	"example.com/libraria/services/library/domain"
	"example.com/libraria/services/library/eventbus"
	"example.com/libraria/services/library/eventstore"
	"example.com/libraria/services/library/handlers"
	"example.com/libraria/services/library/messaging"
	"example.com/libraria/services/library/projections"
	"example.com/libraria/services/library/repository"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start the projection worker",
	Long:  `Start the background worker that replays unprocessed events into the read models, relays them to the outbound queue, and runs the loan maintenance sweeps`,
	RunE:  runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
	log.Info().Msg("Starting worker")

	// Set up signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Connect to database
	db, err := openDatabase()
	if err != nil {
		return err
	}
	if cfg.EnableMigrations {
		if err := migrateTables(db); err != nil {
			return err
		}
	}

	// Initialize event store
	eventStore := eventstore.NewGormEventStore(db)

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

	// Initialize projectors
	bookProjector := projections.NewBookProjector(db, esClient, redisCache, cfg)
	reservationProjector := projections.NewReservationProjector(db, redisCache)
	walletProjector := projections.NewWalletProjector(db, redisCache)

	// Initialize the outbound event relay when publishing is enabled
	var publisher projections.OutboundPublisher
	if cfg.AzurePublishEnabled && cfg.AzureQueueConnStr != "" {
		azureClient, err := messaging.NewAzureClient(cfg)
		if err != nil {
			return err
		}
		eventPublisher, err := messaging.NewEventPublisher(azureClient.Client(), cfg.AzureEventsQueueName)
		if err != nil {
			return err
		}
		defer eventPublisher.Close(context.Background())
		publisher = eventPublisher
	}

	// Initialize and start the event processor
	processor := projections.NewEventProcessor(
		db, bookProjector, reservationProjector, walletProjector,
		eventStore, publisher, cfg.ProcessorBatchSize)
	processor.Start()
	defer processor.Stop()

	// Wire the maintenance handler. Its writes go through the regular
	// command path, so the local bus projects them immediately.
	bus := eventbus.New()
	for _, t := range []string{
		domain.ReservationRejected, domain.ReservationMarkedLate,
	} {
		bus.Subscribe(t, "projection.reservations", reservationProjector.Project)
	}
	reservationRepo := repository.NewReservationRepository(eventStore)
	reservationHandler := handlers.NewReservationHandler(
		reservationRepo, bus,
		domain.Money(cfg.LoanFeeCents), cfg.LoanPeriodDays, domain.Money(cfg.DailyLateFeeCents))
	maintenance := handlers.NewMaintenanceHandler(db, reservationHandler, cfg.ValidationTimeout)

	// Run the loan sweeps on a schedule
	g.Go(func() error {
		scheduler, err := gocron.NewScheduler()
		if err != nil {
			return err
		}

		_, err = scheduler.NewJob(
			gocron.DurationJob(cfg.MaintenanceInterval),
			gocron.NewTask(func() {
				if err := maintenance.SweepOverdue(ctx); err != nil {
					log.Error().Err(err).Msg("Overdue sweep failed")
				}
				if err := maintenance.RejectStale(ctx); err != nil {
					log.Error().Err(err).Msg("Stale reservation sweep failed")
				}
			}),
		)
		if err != nil {
			return err
		}

		scheduler.Start()
		<-ctx.Done()
		return scheduler.Shutdown()
	})

	// Wait for shutdown
	if err := g.Wait(); err != nil && err != context.Canceled {
		return err
	}

	log.Info().Msg("Worker exited properly")
	return nil
}
