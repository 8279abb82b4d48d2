package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"alfredoptarigan/job-agent/internal/config"
	"alfredoptarigan/job-agent/internal/handlers"
	"alfredoptarigan/job-agent/internal/logger"
	"alfredoptarigan/job-agent/internal/repositories"
	"alfredoptarigan/job-agent/internal/services"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	zl, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer zl.Sync()

	if err := run(cfg, zl); err != nil {
		zl.Fatal("job agent stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, zl *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, pool, err := config.InitDatabase(ctx, cfg, zl)
	if err != nil {
		return err
	}
	defer pool.Close()

	rdb, err := config.InitRedis(ctx, cfg, zl)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
	}

	profileRepo := repositories.NewProfileRepository(db)
	prefsRepo := repositories.NewPreferencesRepository(db)
	appRepo := repositories.NewApplicationRepository(db)
	runRepo := repositories.NewAgentRunRepository(db)

	storageService := services.NewStorageService(cfg.Storage.UploadPath, cfg.Storage.MaxFileSize)
	if err := storageService.EnsureUploadDir(); err != nil {
		return err
	}

	var (
		gemini    services.GeminiService
		index     services.ResumeIndex
		extractor services.ProfileExtractor
	)
	if cfg.Gemini.APIKey != "" {
		gemini, err = services.NewGeminiService(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model, cfg.Gemini.EmbedModel)
		if err != nil {
			return fmt.Errorf("failed to initialize gemini: %w", err)
		}
		extractor = services.NewGeminiProfileExtractor(gemini)
		zl.Info("gemini initialized", zap.String("model", cfg.Gemini.Model))

		if cfg.Qdrant.URL != "" {
			index, err = services.NewQdrantResumeIndex(ctx, cfg.Qdrant.URL, cfg.Qdrant.APIKey, cfg.Qdrant.Collection, gemini, zl)
			if err != nil {
				return fmt.Errorf("failed to initialize qdrant: %w", err)
			}
			zl.Info("resume index initialized", zap.String("collection", cfg.Qdrant.Collection))
		}
	}

	scorer, err := buildScorer(cfg, gemini, index, zl)
	if err != nil {
		return err
	}

	providers := buildProviders(cfg, zl)
	if len(providers) == 0 {
		zl.Warn("no job providers configured, runs will fail with source unavailable")
	}

	var cache services.SearchCache
	var events services.EventPublisher
	if rdb != nil {
		cache = services.NewRedisSearchCache(rdb, cfg.Redis.CacheTTL, zl)
		events = services.NewRedisEventPublisher(rdb, zl)
	}

	aggregator := services.NewAggregator(providers, services.AggregatorOptions{
		ProviderTimeout: cfg.Agent.ProviderTimeout,
		MaxResults:      cfg.Sources.MaxResults,
		Cache:           cache,
	}, zl)

	var submitter services.Submitter
	if cfg.Submit.WebhookURL != "" {
		submitter = services.NewWebhookSubmitter(cfg.Submit.WebhookURL, cfg.Submit.Timeout, zl)
	}

	var notifier services.Notifier
	if cfg.Telegram.Token != "" {
		notifier, err = services.NewTelegramNotifier(cfg.Telegram.Token, zl)
		if err != nil {
			return fmt.Errorf("failed to initialize telegram: %w", err)
		}
	}

	submitRetry := services.DefaultRetryConfig
	submitRetry.MaxRetries = cfg.Agent.SubmitRetries
	submitRetry.InitialWait = cfg.Agent.RetryInitialDelay

	orchestrator := services.NewOrchestrator(services.OrchestratorDeps{
		Profiles:     profileRepo,
		Preferences:  prefsRepo,
		Applications: appRepo,
		Runs:         runRepo,
		Aggregator:   aggregator,
		Scorer:       scorer,
		Submitter:    submitter,
		Notifier:     notifier,
		Events:       events,
	}, services.OrchestratorConfig{
		Concurrency: cfg.Agent.Concurrency,
		ClaimLease:  cfg.Agent.ClaimLease,
		SubmitRetry: submitRetry,
	}, zl)

	resumeService := services.NewResumeService(
		profileRepo,
		storageService,
		services.NewResumeParser(),
		extractor,
		index,
		zl,
	)

	worker := services.NewWorker(runRepo, orchestrator, cfg.Worker.Concurrency, cfg.Worker.PollInterval, cfg.Worker.StaleAfter, zl)
	worker.Start(ctx)

	var scheduler *services.Scheduler
	if cfg.Agent.Schedule != "" {
		scheduler = services.NewScheduler(cfg.Agent.Schedule, cfg.Agent.ScheduleAutoApply, profileRepo, orchestrator, worker, zl)
		if err := scheduler.Start(ctx); err != nil {
			return err
		}
	}

	app := fiber.New(fiber.Config{
		AppName:      "Job Agent API",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		BodyLimit:    int(cfg.Storage.MaxFileSize) + 1<<20,
		ErrorHandler: handlers.ErrorHandler,
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format:     "[${time}] ${status} - ${latency} ${method} ${path}\n",
		TimeFormat: "2006-01-02 15:04:05",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, " + handlers.UserIDHeader,
	}))

	handlers.RegisterRoutes(app.Group("/api/v1"), &handlers.Handlers{
		Profile:      handlers.NewProfileHandler(profileRepo, resumeService, cfg.Storage.MaxFileSize, zl),
		Preferences:  handlers.NewPreferencesHandler(prefsRepo),
		Agent:        handlers.NewAgentHandler(orchestrator, worker, zl),
		Applications: handlers.NewApplicationHandler(appRepo),
		Search:       handlers.NewSearchHandler(aggregator),
	})

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message":   "Job Agent API",
			"version":   "1.0.0",
			"providers": aggregator.Providers(),
			"scorer":    scorer.Name(),
		})
	})

	go func() {
		<-ctx.Done()
		zl.Info("shutting down server")
		if scheduler != nil {
			scheduler.Stop()
		}
		if err := app.ShutdownWithTimeout(30 * time.Second); err != nil {
			zl.Error("server forced to shutdown", zap.Error(err))
		}
		worker.Stop()
	}()

	addr := fmt.Sprintf(":%s", cfg.Server.Port)
	zl.Info("server starting", zap.String("addr", addr))

	if err := app.Listen(addr); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func buildScorer(cfg *config.Config, gemini services.GeminiService, index services.ResumeIndex, zl *zap.Logger) (services.Scorer, error) {
	var inner services.Scorer
	switch cfg.Scorer.Provider {
	case "openrouter":
		if cfg.OpenRouter.APIKey == "" {
			return nil, errors.New("OPENROUTER_API_KEY is required for the openrouter scorer")
		}
		completer, err := services.NewOpenRouterCompleter(cfg.OpenRouter.APIKey, cfg.OpenRouter.Model)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize openrouter: %w", err)
		}
		inner = services.NewOpenRouterScorer(completer, zl)
	default:
		if gemini == nil {
			return nil, errors.New("GEMINI_API_KEY is required for the gemini scorer")
		}
		inner = services.NewGeminiScorer(gemini, index, cfg.Scorer.Temperature, zl)
	}

	retry := services.DefaultRetryConfig
	retry.MaxRetries = cfg.Agent.ScoreRetries
	retry.InitialWait = cfg.Agent.RetryInitialDelay

	zl.Info("scorer initialized", zap.String("provider", inner.Name()))
	return services.NewRetryingScorer(inner, retry, zl), nil
}

func buildProviders(cfg *config.Config, zl *zap.Logger) []services.JobProvider {
	src := cfg.Sources
	opts := services.ProviderOptions{
		Timeout:       src.RequestTimeout,
		RatePerSecond: src.RatePerSecond,
		MaxRetries:    2,
	}

	var providers []services.JobProvider
	if src.AdzunaAppID != "" && src.AdzunaAppKey != "" {
		o := opts
		o.BaseURL = src.AdzunaBaseURL
		providers = append(providers, services.NewAdzunaProvider(src.AdzunaAppID, src.AdzunaAppKey, src.AdzunaCountry, o, zl))
	}
	if src.HHEnable {
		o := opts
		o.BaseURL = src.HHBaseURL
		providers = append(providers, services.NewHeadHunterProvider(src.HHArea, o, zl))
	}
	if src.LinkedInEnable {
		o := opts
		o.BaseURL = src.LinkedInURL
		providers = append(providers, services.NewLinkedInProvider(o, zl))
	}

	names := make([]string, 0, len(providers))
	for _, p := range providers {
		names = append(names, p.Name())
	}
	zl.Info("job providers configured", zap.Strings("providers", names))
	return providers
}
