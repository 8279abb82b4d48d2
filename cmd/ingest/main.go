package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"alfredoptarigan/job-agent/internal/config"
	"alfredoptarigan/job-agent/internal/logger"
	"alfredoptarigan/job-agent/internal/repositories"
	"alfredoptarigan/job-agent/internal/services"
)

// ingest rebuilds the résumé vector index from the stored profiles, for
// example after changing the embedding model or wiping the collection.
func main() {
	userID := flag.String("user", "", "re-index a single user instead of every profile")
	flag.Parse()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}
	zl, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer zl.Sync()

	if cfg.Gemini.APIKey == "" || cfg.Qdrant.URL == "" {
		zl.Fatal("GEMINI_API_KEY and QDRANT_URL are required for ingestion")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, pool, err := config.InitDatabase(ctx, cfg, zl)
	if err != nil {
		zl.Fatal("failed to initialize database", zap.Error(err))
	}
	defer pool.Close()

	gemini, err := services.NewGeminiService(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model, cfg.Gemini.EmbedModel)
	if err != nil {
		zl.Fatal("failed to initialize gemini", zap.Error(err))
	}
	index, err := services.NewQdrantResumeIndex(ctx, cfg.Qdrant.URL, cfg.Qdrant.APIKey, cfg.Qdrant.Collection, gemini, zl)
	if err != nil {
		zl.Fatal("failed to initialize qdrant", zap.Error(err))
	}

	profileRepo := repositories.NewProfileRepository(db)
	resumeService := services.NewResumeService(
		profileRepo,
		services.NewStorageService(cfg.Storage.UploadPath, cfg.Storage.MaxFileSize),
		services.NewResumeParser(),
		nil,
		index,
		zl,
	)

	userIDs := []string{*userID}
	if *userID == "" {
		userIDs, err = profileRepo.ListUserIDs(ctx)
		if err != nil {
			zl.Fatal("failed to list profiles", zap.Error(err))
		}
	}

	succeeded, failed, chunks := 0, 0, 0
	for _, id := range userIDs {
		if ctx.Err() != nil {
			break
		}
		n, err := resumeService.Reindex(ctx, id)
		if err != nil {
			zl.Error("failed to re-index resume", zap.String("user_id", id), zap.Error(err))
			failed++
			continue
		}
		zl.Info("resume re-indexed", zap.String("user_id", id), zap.Int("chunks", n))
		chunks += n
		succeeded++
	}

	zl.Info("ingestion finished",
		zap.Int("succeeded", succeeded),
		zap.Int("failed", failed),
		zap.Int("chunks", chunks),
	)
	if failed > 0 {
		os.Exit(1)
	}
}
