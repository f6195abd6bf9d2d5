// File: cmd/app/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"goods-registration/internal/config"
	"goods-registration/internal/domain/ports/adapter"
	aiAdapters "goods-registration/internal/infra/adapters/ai"
	searchAdapters "goods-registration/internal/infra/adapters/search"
	pg "goods-registration/internal/infra/db/postgres"
	httpapi "goods-registration/internal/infra/http"
	"goods-registration/internal/infra/logging"
	"goods-registration/internal/infra/metrics"
	red "goods-registration/internal/infra/redis"
	"goods-registration/internal/infra/staging"
	"goods-registration/internal/infra/storage"
	"goods-registration/internal/infra/worker"
	"goods-registration/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, verbose)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Info().Msg("[DEV MODE] Enabled")
	}

	metrics.MustRegister()

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 10)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	defer redisClient.Close()
	stateRepo := red.NewRegistrationStateRepo(redisClient, cfg.Redis.TTL)

	// ---- AI adapters (IO Intelligence primary, Gemini for alternates) ----
	providers := map[string]adapter.AIServiceAdapter{
		"iointelligence": aiAdapters.NewOpenAICompatAdapter("iointelligence", cfg.AI.APIKey, cfg.AI.BaseURL, cfg.AI.Timeout),
	}
	if cfg.AI.GeminiKey != "" {
		gemini, err := aiAdapters.NewGeminiAdapter(ctx, cfg.AI.GeminiKey, cfg.AI.GeminiURL)
		if err != nil {
			log.Fatalf("gemini adapter: %v", err)
		}
		providers["gemini"] = gemini
		logger.Info().Str("base", cfg.AI.GeminiURL).Msg("gemini adapter enabled")
	}
	ai := aiAdapters.NewMultiAIAdapter("iointelligence", providers)

	// ---- Infra adapters ----
	search := searchAdapters.NewIchibaAdapter(cfg.Search)
	assets := storage.NewObjectClient(cfg.Storage)
	stage := staging.NewFileStage("")

	// ---- Worker pool ----
	pool2 := worker.NewPool(cfg.Worker.Count, logger)
	pool2.Start(ctx)
	defer pool2.Stop()

	// ---- Use cases ----
	lookupUC := usecase.NewLookupUseCase(search, logger)
	visionUC := usecase.NewVisionUseCase(ai, cfg.AI.PrimaryModel, cfg.AI.FallbackModel, cfg.AI.AlternateModels, cfg.AI.Temperature, logger)
	tagsUC := usecase.NewTagUseCase(ai, cfg.AI.PrimaryModel, cfg.AI.Temperature, logger)
	commitUC := usecase.NewCommitUseCase(pg.NewRecordStore(pool), assets, stage, logger)
	registrationUC := usecase.NewRegistrationUseCase(stateRepo, lookupUC, visionUC, tagsUC, commitUC, stage, pool2, logger)

	// ---- HTTP server (registration API, /health, /metrics) ----
	admin := httpapi.NewServer(cfg, registrationUC, stage, logger)
	go func() {
		if err := admin.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server stopped")
			cancel()
		}
	}()
	logger.Info().Int("port", cfg.Admin.Port).Msg("http server listening")

	// ---- Shutdown ----
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case s := <-sig:
		logger.Info().Str("signal", s.String()).Msg("shutting down")
	case <-ctx.Done():
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := admin.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http server shutdown")
	}
}
