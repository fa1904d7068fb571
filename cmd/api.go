package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"example.com/studyabroad/services/applications/config"
	"example.com/studyabroad/services/applications/internal/api"
	"example.com/studyabroad/services/applications/internal/auth"
	"example.com/studyabroad/services/applications/internal/cache"
	"example.com/studyabroad/services/applications/internal/clients"
	"example.com/studyabroad/services/applications/internal/messaging"
	"example.com/studyabroad/services/applications/internal/metrics"
	"example.com/studyabroad/services/applications/internal/models"
	"example.com/studyabroad/services/applications/internal/repositories"
	"example.com/studyabroad/services/applications/internal/search"
	"example.com/studyabroad/services/applications/internal/services"
	"example.com/studyabroad/services/applications/internal/tracing"
)

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Start the API server",
	Long:  `Start the HTTP API server that handles application lifecycle requests`,
	RunE:  runAPI,
}

func init() {
	rootCmd.AddCommand(apiCmd)
}

func runAPI(cmd *cobra.Command, args []string) error {
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

	publisher, err := messaging.NewServiceBusPublisher(cfg.Azure)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Service Bus publisher, events stay queued for the worker")
		publisher = nil
	}

	metricsCollector := metrics.NewMetrics()

	store := repositories.NewGormStore(db, readOnlyDB)
	catalogClient := clients.NewCatalogClient(cfg.Catalog, redisCache)
	documentsClient := clients.NewDocumentsClient(cfg.Documents)

	engine := services.NewApplicationService(
		store, catalogClient, documentsClient,
		publisherOrNil(publisher), indexerOrNil(elasticClient),
		metricsCollector, tracer,
	)

	server := api.NewServer(cfg, engine, auth.NewHeaderResolver(), metricsCollector, tracer)

	go func() {
		if err := server.Start(); err != nil {
			log.Error().Err(err).Msg("Server error")
		}
	}()

	<-ctx.Done()

	if err := server.Shutdown(context.Background()); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			log.Warn().Err(err).Msg("Service Bus publisher close error")
		}
	}
	if redisCache != nil {
		if err := redisCache.Close(); err != nil {
			log.Warn().Err(err).Msg("Redis close error")
		}
	}
	tracer.Close()

	log.Info().Msg("Shutting down API server")
	return nil
}

// publisherOrNil keeps a typed-nil *ServiceBusPublisher out of the engine's
// interface field.
func publisherOrNil(p *messaging.ServiceBusPublisher) messaging.EventPublisher {
	if p == nil {
		return nil
	}
	return p
}

func indexerOrNil(c *search.ElasticClient) services.ApplicationIndexer {
	if c == nil {
		return nil
	}
	return c
}

func initDatabases(cfg config.Config) (*gorm.DB, *gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DB.DSN), &gorm.Config{})
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to connect to write database")
	}

	readOnlyDB, err := gorm.Open(postgres.Open(cfg.DB.ReadOnlyDSN), &gorm.Config{})
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to connect to read-only database")
	}

	// Auto-migrate only the write database.
	if err := models.SetupModels(db); err != nil {
		return nil, nil, errors.Wrap(err, "failed to run migrations")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to get underlying write DB connection")
	}
	sqlDB.SetMaxIdleConns(cfg.DB.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.DB.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.DB.ConnMaxLifetime)

	readSqlDB, err := readOnlyDB.DB()
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to get underlying read-only DB connection")
	}
	readSqlDB.SetMaxIdleConns(cfg.DB.MaxIdleConns * 2)
	readSqlDB.SetMaxOpenConns(cfg.DB.MaxOpenConns * 2)
	readSqlDB.SetConnMaxLifetime(cfg.DB.ConnMaxLifetime)

	return db, readOnlyDB, nil
}
