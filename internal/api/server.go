// Package api exposes the core over HTTP. Handlers stay thin: decode,
// delegate, encode; every rule lives in the packages behind them.
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/aliendevit/minuteone/internal/chips"
	"github.com/aliendevit/minuteone/internal/config"
	"github.com/aliendevit/minuteone/internal/delta"
	"github.com/aliendevit/minuteone/internal/extract"
	"github.com/aliendevit/minuteone/internal/guard"
	"github.com/aliendevit/minuteone/internal/metrics"
	"github.com/aliendevit/minuteone/internal/planpack"
	"github.com/aliendevit/minuteone/internal/store"
)

// Server wires the HTTP boundary to the core services.
type Server struct {
	cfg       *config.Config
	store     *store.SQLiteStore
	manager   *chips.Manager
	deltas    *delta.Engine
	guards    *guard.Evaluator
	packs     map[string]*planpack.Pack
	extractor extract.Extractor
	log       *zap.Logger

	http *http.Server
}

// Deps carries the constructed services the server delegates to.
type Deps struct {
	Store     *store.SQLiteStore
	Manager   *chips.Manager
	Deltas    *delta.Engine
	Guards    *guard.Evaluator
	Packs     map[string]*planpack.Pack
	Extractor extract.Extractor
}

// New creates the HTTP server.
func New(cfg *config.Config, d Deps, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		cfg:       cfg,
		store:     d.Store,
		manager:   d.Manager,
		deltas:    d.Deltas,
		guards:    d.Guards,
		packs:     d.Packs,
		extractor: d.Extractor,
		log:       log,
	}
	s.http = &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      s.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	return s
}

// Router builds the route table.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	r.Get("/stats", s.handleStats)

	r.Route("/facts", func(r chi.Router) {
		r.Post("/ingest", s.handleIngest)
		r.Get("/context", s.handleContext)
		r.Get("/search", s.handleSearch)
		r.Get("/delta/{name}", s.handleDelta)
	})

	r.Post("/extract", s.handleExtract)

	r.Route("/chips", func(r chi.Router) {
		r.Get("/", s.handleListChips)
		r.Post("/resolve", s.handleResolve)
		r.Get("/{chipID}", s.handleGetChip)
		r.Get("/{chipID}/audit", s.handleAudit)
		r.Get("/{chipID}/evidence", s.handleEvidence)
	})

	r.Post("/planpack/{pathway}/evaluate", s.handlePlanPack)
	r.Post("/compose/{kind}", s.handleCompose)

	r.Route("/session/{sessionID}", func(r chi.Router) {
		r.Post("/start", s.handleSessionStart)
		r.Get("/", s.handleSessionGet)
		r.Post("/events", s.handleSessionEvents)
	})

	return r
}

// Start begins serving and blocks until the context is cancelled or the
// listener fails.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", zap.String("addr", s.http.Addr))
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	}
}
