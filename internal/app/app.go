// Package app assembles a chat controller from configuration. Both the HTTP
// and terminal shells start from here.
package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/zhouzirui/medrag-chat/internal/config"
	"github.com/zhouzirui/medrag-chat/internal/service/ai"
	"github.com/zhouzirui/medrag-chat/internal/service/ask"
	chatsvc "github.com/zhouzirui/medrag-chat/internal/service/chat"
	"github.com/zhouzirui/medrag-chat/internal/service/typewriter"
	"github.com/zhouzirui/medrag-chat/internal/storage"
)

// App owns the controller and the resources behind it.
type App struct {
	Controller *chatsvc.Controller
	closers    []func() error
}

// New opens the store, builds the asker and starts a controller that
// reports to listener.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, listener chatsvc.Listener) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	kv, closeKV, err := OpenStore(cfg.Store)
	if err != nil {
		return nil, err
	}

	asker, err := NewAsker(ctx, cfg, logger)
	if err != nil {
		_ = closeKV()
		return nil, err
	}

	manager := chatsvc.NewManager(storage.NewSessionStore(kv, logger), logger)
	renderer := typewriter.New(
		typewriter.WithInterval(cfg.Typewriter.Interval),
		typewriter.WithMaxLength(cfg.Typewriter.MaxLength),
	)
	ctrl := chatsvc.NewController(manager, asker, renderer, chatsvc.Options{
		RequestTimeout: cfg.Ask.Timeout,
		Logger:         logger,
		Listener:       listener,
	})

	logger.Info("chat controller ready",
		zap.String("askMode", cfg.Ask.Mode),
		zap.String("store", cfg.Store.Driver),
		zap.Int("historyEntries", len(ctrl.History())))

	return &App{Controller: ctrl, closers: []func() error{closeKV}}, nil
}

// Close stops the controller, then releases the store.
func (a *App) Close() error {
	a.Controller.Close()
	var errs []error
	for _, closeFn := range a.closers {
		if err := closeFn(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// OpenStore returns the configured key-value backend and its close func.
func OpenStore(cfg config.StoreConfig) (storage.KV, func() error, error) {
	switch cfg.Driver {
	case config.StoreDriverMemory:
		return storage.NewMemoryKV(), func() error { return nil }, nil
	case config.StoreDriverSQLite, "":
		kv, err := storage.OpenSQLite(cfg.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite store %s: %w", cfg.Path, err)
		}
		return kv, kv.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// NewAsker returns the backend client, or the direct model asker when
// ASK_MODE=llm.
func NewAsker(ctx context.Context, cfg *config.Config, logger *zap.Logger) (chatsvc.Asker, error) {
	switch cfg.Ask.Mode {
	case config.AskModeLLM:
		chatModel, err := cfg.AI.NewChatModel(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create chat model: %w", err)
		}
		svc, err := ai.NewService(ctx, chatModel, ai.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		return svc, nil
	case config.AskModeHTTP, "":
		return ask.New(cfg.Ask.BaseURL, cfg.Ask.Timeout, logger), nil
	default:
		return nil, fmt.Errorf("unknown ask mode %q", cfg.Ask.Mode)
	}
}
