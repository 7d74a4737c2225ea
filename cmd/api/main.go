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
	"go.uber.org/zap"

	"github.com/zhouzirui/medrag-chat/internal/app"
	"github.com/zhouzirui/medrag-chat/internal/config"
	"github.com/zhouzirui/medrag-chat/internal/handler"
	"github.com/zhouzirui/medrag-chat/internal/handler/stream"
	"github.com/zhouzirui/medrag-chat/internal/logging"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "medrag-chat: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	if envErr != nil {
		logger.Debug("no .env file loaded, continuing with system environment variables only", zap.Error(envErr))
	}

	broker := stream.NewBroker(0, logger)
	application, err := app.New(ctx, cfg, logger, broker.Publish)
	if err != nil {
		return err
	}
	defer func() {
		if err := application.Close(); err != nil {
			logger.Error("failed to close application", zap.Error(err))
		}
	}()

	router := handler.NewRouter(application.Controller, broker, logger)
	return startServer(ctx, cfg.Server, router, logger, broker.Close)
}

// startServer serves until ctx ends. onShutdown runs as shutdown begins and
// must end any long-lived streams, which Shutdown would otherwise wait on.
func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, logger *zap.Logger, onShutdown func()) error {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	if onShutdown != nil {
		srv.RegisterOnShutdown(onShutdown)
	}

	logger.Info("medrag-chat listening", zap.String("addr", addr))
	if err := runServer(ctx, srv); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	logger.Info("medrag-chat stopped")
	return nil
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
