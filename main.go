package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/yunaworks/dearbot/errors"
	"github.com/yunaworks/dearbot/server"
)

func main() {
	// Load .env if present; the config file references ${OPENAI_API_KEY}.
	_ = godotenv.Load()

	// Create logger with explicit error handling
	logger, err := zap.NewProduction()
	if err != nil {
		// Fail fast if logger creation fails
		fmt.Printf("Critical error: Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	// Ensure logger is synced, with robust error handling
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Printf("Warning: Failed to sync logger: %v\n", syncErr)
		}
	}()

	// Set global logger
	errors.SetLogger(logger)

	configPath := "config.yaml"
	if p := os.Getenv("DEARBOT_CONFIG"); p != "" {
		configPath = p
	}

	srv, err := server.NewServer(configPath, logger)
	if err != nil {
		logger.Fatal("Server initialization failed",
			zap.Error(err),
			zap.String("config_path", configPath),
		)
	}

	// Graceful shutdown infrastructure
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("Shutdown signal received",
			zap.String("signal", sig.String()),
		)
		cancel()
	}()

	if err := srv.Start(ctx); err != nil {
		logger.Fatal("Server startup or runtime error",
			zap.Error(err),
		)
	}
}
