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

	"example.com/foundry/services/scheduling/config"
	"example.com/foundry/services/scheduling/internal/cache"
	"example.com/foundry/services/scheduling/internal/database"
	"example.com/foundry/services/scheduling/internal/messaging"
	"example.com/foundry/services/scheduling/internal/search"
	"example.com/foundry/services/scheduling/internal/services"
	"example.com/foundry/services/scheduling/internal/tracing"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start the background worker",
	Long:  `Start the background worker to process upload pipeline events and run the planner on a schedule`,
	RunE:  runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return err
	}

	// Configure logging
	if cfg.Environment == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	// Set up signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// Create an error group to manage goroutines
	g, ctx := errgroup.WithContext(ctx)

	// Initialize database connections
	db, readOnlyDB, err := database.Connect(cfg.DB)
	if err != nil {
		return err
	}

	// Initialize cache
	redisCache, err := cache.NewRedisCache(cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Redis cache, continuing without caching")
	}

	// Initialize tracer
	tracer, err := tracing.NewTracer(cfg.Tracing)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
	}

	// Initialize Elasticsearch client
	elasticClient, err := search.NewElasticClient(cfg.Elastic)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Elasticsearch client, continuing without search functionality")
	}

	// Initialize services
	dispatchService := services.NewDispatchService(db, readOnlyDB, redisCache, tracer, cfg.Dispatch)
	plannerService := services.NewPlannerService(db, readOnlyDB, redisCache, elasticClient, tracer, cfg.Planner)

	// Initialize Azure Service Bus client
	azureClient, err := messaging.NewAzureClient(cfg.Azure)
	if err != nil {
		return err
	}
	defer azureClient.Close()

	processor := messaging.NewProcessor(dispatchService, plannerService)

	// Start the service bus consumer
	g.Go(func() error {
		log.Info().Str("queue", cfg.Azure.QueueName).Msg("Starting Azure Service Bus consumer")
		return azureClient.StartConsumer(ctx, processor)
	})

	// Start the planner cron job as a fallback mechanism for missed events
	g.Go(func() error {
		log.Info().Msg("Starting planner cron job as fallback mechanism")

		// Create a scheduler
		scheduler, err := gocron.NewScheduler()
		if err != nil {
			return err
		}

		interval := time.Duration(cfg.Planner.CronMinutes) * time.Minute
		if interval <= 0 {
			interval = 30 * time.Minute
		}

		_, err = scheduler.NewJob(
			gocron.DurationJob(interval),
			gocron.NewTask(func() {
				log.Info().Msg("Running fallback planner job to catch any missed plan requests")
				if err := plannerService.RunAll(ctx); err != nil {
					log.Error().Err(err).Msg("Failed to run planner in fallback job")
				}
			}),
		)
		if err != nil {
			return err
		}

		// Start the scheduler
		scheduler.Start()

		// Wait for context cancellation
		<-ctx.Done()

		// Shutdown the scheduler
		return scheduler.Shutdown()
	})

	// Wait for any goroutine to exit
	if err := g.Wait(); err != nil && ctx.Err() == nil {
		log.Error().Err(err).Msg("Worker error")
		return err
	}

	log.Info().Msg("Worker shutting down gracefully")
	return nil
}
