// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package api is the control plane and media transport of the relay daemon.
package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/ManuGH/streamrelay/internal/api/middleware"
	"github.com/ManuGH/streamrelay/internal/bus"
	"github.com/ManuGH/streamrelay/internal/config"
	"github.com/ManuGH/streamrelay/internal/health"
	"github.com/ManuGH/streamrelay/internal/journal"
	xglog "github.com/ManuGH/streamrelay/internal/log"
	"github.com/ManuGH/streamrelay/internal/relay"
	"github.com/ManuGH/streamrelay/internal/version"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Relay is the session controller as seen by the API.
type Relay interface {
	Start(ctx context.Context, cfg relay.SessionConfig) (relay.SessionInfo, error)
	Stop(ctx context.Context) error
	PushChunk(chunk []byte)
	Status() relay.Status
}

// Deps are the collaborators of the API server.
type Deps struct {
	Relay   Relay
	Bus     bus.Bus
	Journal journal.Store
	// Health serves /healthz and /readyz. Nil reports only the relay state.
	Health *health.Manager
	Logger *zerolog.Logger
	// TracingService names otelhttp spans; empty disables HTTP tracing.
	TracingService string
}

// Server serves the relay API.
type Server struct {
	cfg     config.APIConfig
	relay   Relay
	bus     bus.Bus
	journal journal.Store
	health  *health.Manager
	logger  zerolog.Logger

	router   chi.Router
	upgrader websocket.Upgrader

	mu      sync.Mutex
	httpSrv *http.Server

	// rootCtx outlives requests; hijacked WebSocket connections watch it.
	rootCtx    context.Context
	rootCancel context.CancelFunc
	wsConns    sync.WaitGroup
}

// New builds the server and its routes.
func New(cfg config.APIConfig, deps Deps) *Server {
	s := &Server{
		cfg:     cfg,
		relay:   deps.Relay,
		bus:     deps.Bus,
		journal: deps.Journal,
		health:  deps.Health,
	}
	if s.health == nil {
		s.health = health.NewManager(version.Version)
		s.health.RegisterChecker(health.NewInfoChecker("relay", func() string {
			return string(s.relay.Status().State)
		}))
	}
	if deps.Logger != nil {
		s.logger = *deps.Logger
	} else {
		s.logger = xglog.WithComponent("api")
	}
	s.rootCtx, s.rootCancel = context.WithCancel(context.Background())
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  64 * 1024,
		WriteBufferSize: 16 * 1024,
		CheckOrigin: func(r *http.Request) bool {
			return middleware.OriginAllowed(cfg.AllowedOrigins, r.Header.Get("Origin"))
		},
	}
	s.router = s.routes(deps.TracingService)
	return s
}

func (s *Server) routes(tracingService string) chi.Router {
	r := middleware.NewRouter(middleware.StackConfig{
		EnableCORS:     true,
		AllowedOrigins: s.cfg.AllowedOrigins,
		EnableMetrics:  true,
		TracingService: tracingService,
		EnableLogging:  true,
	})

	r.Get("/healthz", s.health.ServeHealth)
	r.Get("/readyz", s.health.ServeReady)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/stream", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(middleware.ControlRateLimit(s.cfg.RateLimitRPM))
				r.Post("/start", s.handleStart)
				r.Post("/stop", s.handleStop)
			})
			r.Post("/chunks", s.handleChunk)
			r.Get("/status", s.handleStatus)
			r.Get("/ws", s.handleWS)
		})
		r.Get("/sessions", s.handleSessions)
	})
	return r
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves on the configured address until Shutdown.
func (s *Server) ListenAndServe() error {
	srv := &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	s.mu.Lock()
	if s.rootCtx.Err() != nil {
		// Shutdown already ran.
		s.mu.Unlock()
		return nil
	}
	s.httpSrv = srv
	s.mu.Unlock()

	s.logger.Info().
		Str(xglog.FieldEvent, "api.listening").
		Str("addr", s.cfg.ListenAddr).
		Msg("relay API listening")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, closes WebSocket connections and
// waits for in-flight handlers until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.rootCancel()

	s.mu.Lock()
	srv := s.httpSrv
	s.mu.Unlock()

	var err error
	if srv != nil {
		err = srv.Shutdown(ctx)
	}

	done := make(chan struct{})
	go func() {
		s.wsConns.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		if err == nil {
			err = ctx.Err()
		}
	}
	return err
}
