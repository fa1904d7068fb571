package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"example.com/studyabroad/services/applications/config"
	"example.com/studyabroad/services/applications/internal/cache"
	"example.com/studyabroad/services/applications/internal/clients"
	"example.com/studyabroad/services/applications/internal/messaging"
	"example.com/studyabroad/services/applications/internal/metrics"
	"example.com/studyabroad/services/applications/internal/repositories"
	"example.com/studyabroad/services/applications/internal/search"
	"example.com/studyabroad/services/applications/internal/services"
	"example.com/studyabroad/services/applications/internal/tracing"
)

// republishBatchSize caps how many unpublished events one worker run drains.
const republishBatchSize = 100

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start the background worker",
	Long:  `Start the background worker that republishes audit events whose post-commit delivery failed`,
	RunE:  runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return err
	}

	if cfg.Environment == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	db, readOnlyDB, err := initDatabases(cfg)
	if err != nil {
		return err
	}

	redisCache, err := cache.NewRedisCache(cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Redis cache, continuing without caching")
	}

	tracer, err := tracing.NewTracer(cfg.Tracing)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
		tracer = tracing.NewNoopTracer()
	}

	elasticClient, err := search.NewElasticClient(cfg.Elastic)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Elasticsearch client, continuing without search functionality")
		elasticClient = nil
	}

	// The worker exists to drain the outbox, so the publisher is required.
	publisher, err := messaging.NewServiceBusPublisher(cfg.Azure)
	if err != nil {
		return err
	}

	metricsCollector := metrics.NewMetrics()

	store := repositories.NewGormStore(db, readOnlyDB)
	catalogClient := clients.NewCatalogClient(cfg.Catalog, redisCache)
	documentsClient := clients.NewDocumentsClient(cfg.Documents)

	engine := services.NewApplicationService(
		store, catalogClient, documentsClient,
		publisher, indexerOrNil(elasticClient),
		metricsCollector, tracer,
	)

	g.Go(func() error {
		log.Info().Str("queue", cfg.Azure.QueueName).Msg("Starting event republish job")

		scheduler, err := gocron.NewScheduler()
		if err != nil {
			return err
		}

		_, err = scheduler.NewJob(
			gocron.DurationJob(time.Minute),
			gocron.NewTask(func() {
				published, err := engine.PublishPendingEvents(ctx, republishBatchSize)
				if err != nil {
					log.Error().Err(err).Msg("Failed to republish pending events")
					return
				}
				if published > 0 {
					log.Info().Int("published", published).Msg("Republished pending events")
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

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Worker error")
		return err
	}

	if err := publisher.Close(); err != nil {
		log.Warn().Err(err).Msg("Service Bus publisher close error")
	}

	log.Info().Msg("Worker shutting down gracefully")
	return nil
}
