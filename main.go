package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"consorcio_bot/internal/config"
	"consorcio_bot/internal/flow"
	"consorcio_bot/internal/logger"
	"consorcio_bot/internal/session"
	"consorcio_bot/internal/storage"
	"consorcio_bot/internal/webhook"
	"consorcio_bot/internal/whatsapp"
	"consorcio_bot/internal/writer"
)

func main() {
	// Load environment variables from .env file. Running without one is
	// fine in containers.
	_ = godotenv.Load()

	cfg, cfgErr := config.Load("config.yaml")
	if cfgErr != nil {
		cfg = config.Default()
	}

	if err := logger.Init(cfg.Log); err != nil {
		os.Exit(1)
	}
	if cfgErr != nil {
		logger.Warn().Err(cfgErr).Msg("config.yaml not loaded, using defaults")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cache, err := storage.NewRedisCache(ctx, storage.RedisCacheConfig{
		URL:          os.Getenv("REDIS_URL"),
		SessionTTL:   cfg.SessionTTL(),
		HistoryTTL:   cfg.SessionTTL(),
		HistoryLimit: cfg.Session.HistoryLimit,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer cache.Close()

	store, err := storage.NewPostgresStore(os.Getenv("DATABASE_URL"))
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer store.Close()

	questions, err := flow.LoadQuestions(cfg.Flow.QuestionsPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load question flow")
	}

	sessions := session.NewManager(cache, store, cfg.Session.HistoryLimit)

	dbWriter := writer.New(store, writer.Config{
		BatchSize:     cfg.Writer.BatchSize,
		BatchTimeout:  cfg.BatchTimeout(),
		QueueCapacity: cfg.Writer.QueueCapacity,
	})
	dbWriter.Start()

	notifier := whatsapp.NewClient(
		os.Getenv("WHATSAPP_ACCESS_TOKEN"),
		os.Getenv("WHATSAPP_PHONE_NUMBER_ID"),
	)

	handler := webhook.NewHandler(
		sessions,
		dbWriter,
		store,
		flow.NewProcessor(questions),
		notifier,
		os.Getenv("WHATSAPP_VERIFY_TOKEN"),
	)

	mux := http.NewServeMux()
	handler.Routes(mux)

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.Server.Addr).Msg("Webhook server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP shutdown failed")
	}

	// Drain queued durable writes before exiting.
	dbWriter.Close()
	logger.Info().Msg("Write-behind queue drained")
}
