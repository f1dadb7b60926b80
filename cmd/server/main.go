package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/xaenox/shopchat/internal/agent"
	"github.com/xaenox/shopchat/internal/api"
	"github.com/xaenox/shopchat/internal/catalog"
	"github.com/xaenox/shopchat/internal/orchestrator"
	"github.com/xaenox/shopchat/internal/reasoning"
	"github.com/xaenox/shopchat/internal/storage"
	"github.com/xaenox/shopchat/internal/telemetry"
	"github.com/xaenox/shopchat/pkg/config"
	"go.uber.org/zap"
)

func main() {
	// Initialize logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	if err := godotenv.Load(); err != nil {
		logger.Info("No .env file found, using environment variables")
	}

	// Load configuration
	cfg, err := config.LoadConfig("config.yaml")
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err), zap.String("path", "config.yaml"))
	}

	// Initialize storage and telemetry
	var store storage.ConversationStore
	var tracker telemetry.Tracker
	if cfg.Database.UseInMemory {
		logger.Info("Using in-memory storage")
		store = storage.NewMemoryStorage()
		tracker = telemetry.NewMemoryTracker()
	} else {
		logger.Info("Using PostgreSQL storage")
		pg, err := storage.NewPostgresStorage(cfg.Database.Storage())
		if err != nil {
			logger.Fatal("Failed to initialize storage", zap.Error(err))
		}
		store = pg

		tracker, err = telemetry.NewPostgresTracker(pg.DB())
		if err != nil {
			logger.Fatal("Failed to initialize quality tracker", zap.Error(err))
		}
	}
	defer store.Close()

	// Load the product catalog
	cat, err := catalog.New()
	if err != nil {
		logger.Fatal("Failed to load product catalog", zap.Error(err))
	}

	// Initialize the reasoning engine and router
	engine := reasoning.NewOpenAIEngine(
		cfg.OpenAI.APIKey,
		cfg.OpenAI.Model,
		cfg.OpenAI.MaxTokens,
		cfg.OpenAI.Temperature,
		reasoning.RetryConfig{
			Attempts:     cfg.OpenAI.RetryAttempts,
			InitialDelay: time.Duration(cfg.OpenAI.RetryInitialDelay) * time.Second,
		},
		logger,
	)
	router := agent.NewRouter(engine, cat, cfg.Chat.MaxSteps, logger)

	orch := orchestrator.New(store, tracker, router, orchestrator.Limits{
		HistoryMessages: cfg.Chat.HistoryLimit,
		ContextMessages: cfg.Chat.ContextLimit,
	}, logger)

	handler := api.NewHandler(orch, store, tracker, cat, cfg.Server.AllowedOrigins, logger)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      handler.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
	}

	go func() {
		logger.Info("Starting server", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Forced shutdown", zap.Error(err))
	}
}
