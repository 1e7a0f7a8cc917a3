package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/teilomillet/gollm"
	"go.uber.org/zap"

	"github.com/yunaworks/dearbot/config"
	"github.com/yunaworks/dearbot/server/dispatch"
	"github.com/yunaworks/dearbot/server/handlers"
	"github.com/yunaworks/dearbot/server/metrics"
	"github.com/yunaworks/dearbot/server/middleware"
)

// NewRouter builds the HTTP routing table with the full middleware stack.
// The skill endpoint is registered under both the canonical path and its
// trailing-slash alias because the platform console is inconsistent about
// which one it stores.
func NewRouter(respond http.Handler, m *metrics.Metrics, logger *zap.Logger) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTimer)
	r.Use(middleware.Logging(logger))
	r.Use(middleware.PrometheusMetrics(m))
	r.Use(middleware.PanicRecovery)
	r.Use(middleware.CORS)
	r.Use(middleware.RateLimit(m))

	r.Post("/bot/respond", respond.ServeHTTP)
	r.Post("/bot/respond/", respond.ServeHTTP)
	r.Get("/", handlers.Liveness())
	r.Head("/", handlers.Liveness())
	r.Get("/health", handlers.Health())
	r.Method(http.MethodGet, "/metrics", m.Handler())

	return r
}

// Server is the dearbot HTTP server together with the background pieces it
// owns: the config watcher and the callback delivery worker pool.
type Server struct {
	httpServer *http.Server
	watcher    config.Watcher
	deliverer  *dispatch.Deliverer
	logger     *zap.Logger
}

// NewServer creates a server from a config file path. The completion backend
// is built from the configured provider and credential; a missing credential
// is tolerated so the skill endpoint can answer with the fixed
// configuration-error message instead of the process refusing to start.
func NewServer(configPath string, logger *zap.Logger) (*Server, error) {
	watcher, err := config.NewConfigWatcher(configPath, logger)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	cfg := watcher.GetCurrentConfig()

	var backend gollm.LLM
	if cfg.LLM.APIKey == "" {
		logger.Warn("no completion API key configured, all replies will use the configuration-error message")
	} else {
		backend, err = gollm.NewLLM(
			gollm.SetProvider(cfg.LLM.Provider),
			gollm.SetModel(cfg.LLM.Model),
			gollm.SetAPIKey(cfg.LLM.APIKey),
			gollm.SetMaxTokens(cfg.LLM.MaxTokens),
		)
		if err != nil {
			return nil, fmt.Errorf("initialize completion backend: %w", err)
		}
	}

	return NewServerWithBackend(watcher, backend, logger)
}

// NewServerWithBackend wires the server around an existing completion
// backend. Tests use this with a mock LLM; backend may be nil to exercise
// the missing-credential path.
func NewServerWithBackend(watcher config.Watcher, backend gollm.LLM, logger *zap.Logger) (*Server, error) {
	cfg := watcher.GetCurrentConfig()

	m := metrics.NewMetrics()
	dispatcher := dispatch.NewDispatcher(backend, watcher, m, logger)
	deliverer := dispatch.NewDeliverer(dispatcher, watcher, m, logger)
	respond := handlers.NewRespondHandler(dispatcher, deliverer, watcher, m, logger)

	return &Server{
		httpServer: &http.Server{
			Addr:           fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:        NewRouter(respond, m, logger),
			ReadTimeout:    cfg.Server.ReadTimeout,
			WriteTimeout:   cfg.Server.WriteTimeout,
			MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
		},
		watcher:   watcher,
		deliverer: deliverer,
		logger:    logger,
	}, nil
}

// Deliverer exposes the callback worker pool, mainly for tests.
func (s *Server) Deliverer() *dispatch.Deliverer {
	return s.deliverer
}

// Start runs the server and blocks until ctx is cancelled or the listener
// fails. On shutdown the HTTP server stops accepting first, then the
// callback worker drains its queue best-effort within the shutdown budget.
func (s *Server) Start(ctx context.Context) error {
	errChan := make(chan error, 1)

	go func() {
		s.logger.Info("server started", zap.String("address", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	go s.logConfigReloads(ctx)

	select {
	case <-ctx.Done():
		return s.shutdown()
	case err := <-errChan:
		_ = s.shutdown()
		return err
	}
}

func (s *Server) logConfigReloads(ctx context.Context) {
	updates := s.watcher.Subscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-updates:
			if !ok {
				return
			}
			s.logger.Info("configuration updated",
				zap.Duration("sync_timeout", cfg.Bot.SyncTimeout),
				zap.Duration("async_timeout", cfg.Bot.AsyncTimeout),
				zap.Int("max_lines", cfg.Bot.MaxLines),
			)
		}
	}
}

func (s *Server) shutdown() error {
	timeout := s.watcher.GetCurrentConfig().Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.logger.Info("shutting down server")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("error during server shutdown: %w", err)
	}

	if err := s.deliverer.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("callback worker did not drain before deadline", zap.Error(err))
	}

	return s.watcher.Close()
}
