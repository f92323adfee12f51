package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	telegoBot "listingrelay/bot"
	"listingrelay/internal/auth"
	"listingrelay/internal/config"
	"listingrelay/internal/control"
	"listingrelay/internal/database"
	"listingrelay/internal/delivery"
	"listingrelay/internal/handlers"
	"listingrelay/internal/ingest"
	"listingrelay/internal/locales"
	"listingrelay/internal/metrics"
	"listingrelay/internal/scheduler"

	sentry "github.com/getsentry/sentry-go"
	telego "github.com/mymmrac/telego"
)

// storage bundles the repositories selected by STORAGE_DRIVER.
type storage struct {
	listings   database.ListingRepository
	deliveries database.DeliveryLogger
	actions    database.UserActionLogger
	operators  database.OperatorRepository
	close      func()
}

func openStorage(ctx context.Context, cfg *config.Config) (*storage, error) {
	if cfg.StorageDriver == config.StorageMemory {
		logOnly := database.LogOnlyLogger{}
		return &storage{
			listings:   database.NewMemoryListingRepository(),
			deliveries: logOnly,
			actions:    logOnly,
			operators:  logOnly,
			close:      func() {},
		}, nil
	}

	client, db, err := database.ConnectDB(ctx, cfg)
	if err != nil {
		return nil, err
	}
	listings := database.NewMongoListingRepository(db)
	if err := listings.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	mongoLogger := database.NewMongoLogger(db)
	return &storage{
		listings:   listings,
		deliveries: mongoLogger,
		actions:    mongoLogger,
		operators:  mongoLogger,
		close: func() {
			if err := client.Disconnect(context.Background()); err != nil {
				log.Printf("Error disconnecting from MongoDB: %v", err)
				sentry.CaptureException(err)
			} else {
				log.Println("Disconnected from MongoDB.")
			}
		},
	}, nil
}

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	// Initialize localization bundle
	if err := locales.Init(cfg.DefaultLanguage); err != nil {
		log.Fatalf("Localization error: %v", err)
	}

	// Initialize Sentry (if DSN is provided)
	err = sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.SentryDSN,
		Environment:      cfg.AppEnv,
		Release:          cfg.Version,
		EnableTracing:    true,
		TracesSampleRate: 1.0,
		Debug:            cfg.Debug,
	})
	if err != nil {
		log.Fatalf("sentry.Init: %s", err)
	}
	defer sentry.Flush(2 * time.Second)

	// Creating context for application lifecycle
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStorage(ctx, cfg)
	if err != nil {
		sentry.CaptureException(err)
		log.Fatal(err)
	}
	defer store.close()

	// --- Bot Initialization ---
	var bot *telego.Bot
	if cfg.Debug {
		bot, err = telego.NewBot(cfg.BotToken, telego.WithDefaultDebugLogger())
	} else {
		bot, err = telego.NewBot(cfg.BotToken, telego.WithDefaultLogger(false, false))
	}
	if err != nil {
		sentry.CaptureException(err)
		log.Fatalf("Failed to create telego bot: %v", err)
	}
	me, err := bot.GetMe(ctx)
	if err != nil {
		sentry.CaptureException(err)
		log.Fatalf("Failed to get bot info: %v", err)
	}
	log.Printf("Authorized as @%s", me.Username)

	adminChecker, err := auth.NewAdminChecker(cfg.AdminIDs)
	if err != nil {
		sentry.CaptureException(err)
		log.Fatalf("Failed to create admin checker: %v", err)
	}

	executor, err := delivery.NewExecutor(bot, store.listings, store.deliveries, cfg.TargetDelay, cfg.Debug)
	if err != nil {
		log.Fatalf("Failed to create delivery executor: %v", err)
	}

	controls := scheduler.NewControls(true)
	forwarder, err := scheduler.New(store.listings, executor, controls, scheduler.Options{
		Sources:       cfg.SourceGroups,
		Targets:       cfg.TargetGroups,
		Interval:      cfg.ForwardInterval,
		RefreshPause:  cfg.RefreshPause,
		BoostEvery:    cfg.BoostEveryN,
		RequeueErrors: cfg.RetryPolicy == config.RetryRequeue,
		Debug:         cfg.Debug,
	})
	if err != nil {
		log.Fatalf("Failed to create scheduler: %v", err)
	}

	controlService, err := control.NewService(bot, store.listings, controls)
	if err != nil {
		log.Fatalf("Failed to create control service: %v", err)
	}

	messageHandler, err := handlers.NewMessageHandler(controlService, store.actions, store.operators, adminChecker)
	if err != nil {
		log.Fatalf("Failed to create message handler: %v", err)
	}

	aggregator, err := ingest.NewAggregator(store.listings, cfg.SourceGroups, cfg.Debug)
	if err != nil {
		log.Fatalf("Failed to create aggregator: %v", err)
	}

	updates, err := bot.UpdatesViaLongPolling(ctx, &telego.GetUpdatesParams{
		AllowedUpdates: []string{"message", "channel_post"},
	})
	if err != nil {
		sentry.CaptureException(err)
		log.Fatalf("Failed to start long polling: %v", err)
	}

	appBot, err := telegoBot.New(telegoBot.BotDeps{
		Bot:         bot,
		UpdatesChan: updates,
		Debug:       cfg.Debug,
		Ingester:    aggregator,
		Handler:     messageHandler,
	})
	if err != nil {
		sentry.CaptureException(err)
		log.Fatal(err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		appBot.Start(ctx)
	}()
	go func() {
		defer wg.Done()
		forwarder.Run(ctx)
	}()
	if cfg.MetricsAddr != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := metrics.Serve(ctx, cfg.MetricsAddr); err != nil {
				log.Printf("Metrics server error: %v", err)
				sentry.CaptureException(err)
			}
		}()
	}

	// Wait for context cancellation (e.g., SIGINT, SIGTERM)
	<-ctx.Done()
	log.Println("Shutting down...")
	wg.Wait()
	log.Println("Shutdown complete.")
}
