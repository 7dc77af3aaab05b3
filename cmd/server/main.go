package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/format37/panthera/internal/history"
	"github.com/format37/panthera/internal/llm"
	"github.com/format37/panthera/internal/menu"
	"github.com/format37/panthera/internal/server"
	"github.com/format37/panthera/internal/storage"
	"github.com/format37/panthera/pkg/config"
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

	// Initialize storage
	defaultPath := filepath.Join(cfg.Storage.DataDir, "users", "default.json")
	var store storage.Storage
	switch cfg.Storage.Backend {
	case "postgres":
		logger.Info("Using PostgreSQL storage")
		def, err := storage.LoadDefaultSession(defaultPath)
		if err != nil {
			logger.Fatal("Failed to load default session template", zap.Error(err))
		}
		store, err = storage.NewPostgresStorage(storage.DatabaseConfig{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			DBName:   cfg.Database.DBName,
			SSLMode:  cfg.Database.SSLMode,
		}, def)
		if err != nil {
			logger.Fatal("Failed to initialize storage", zap.Error(err))
		}
	case "memory":
		logger.Info("Using in-memory storage")
		def, err := storage.LoadDefaultSession(defaultPath)
		if err != nil {
			logger.Fatal("Failed to load default session template", zap.Error(err))
		}
		store = storage.NewMemoryStorage(def)
	default:
		logger.Info("Using file storage", zap.String("data_dir", cfg.Storage.DataDir))
		store, err = storage.NewFileStorage(cfg.Storage.DataDir, logger)
		if err != nil {
			logger.Fatal("Failed to initialize storage", zap.Error(err))
		}
	}
	defer store.Close()

	// Load the button menu
	m, err := menu.Load(cfg.Storage.MenuPath)
	if err != nil {
		logger.Fatal("Failed to load menu", zap.Error(err), zap.String("path", cfg.Storage.MenuPath))
	}

	// Initialize LLM clients and the history assembler
	counter := llm.NewTokenCounterClient(cfg.LLM.BaseURL, logger)
	completer := llm.NewCompletionClient(cfg.LLM.APIKey, cfg.LLM.BaseURL, cfg.LLM.Temperature, logger)
	assembler := history.New(store, counter, cfg.History.TokenBudget, logger)

	srv := server.New(store, assembler, completer, m, server.Options{
		DefaultModel: cfg.LLM.DefaultModel,
		SystemPrompt: cfg.History.SystemPrompt,
	}, logger)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: srv,
	}

	go func() {
		logger.Info("Starting server", zap.Int("port", cfg.Server.Port))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server error", zap.Error(err))
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("Shutdown error", zap.Error(err))
	}
}
