// Package server provides the HTTP server for the guard service. It
// wires the rule store, geo resolver, access logger, and guard pipeline
// together and manages the server lifecycle including graceful shutdown.
package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/guardpost/guardpost/internal/accesslog"
	"github.com/guardpost/guardpost/internal/config"
	"github.com/guardpost/guardpost/internal/constants"
	"github.com/guardpost/guardpost/internal/database"
	"github.com/guardpost/guardpost/internal/geo"
	"github.com/guardpost/guardpost/internal/repository"
	"github.com/guardpost/guardpost/internal/rules"
	"github.com/guardpost/guardpost/internal/service"
)

// Server represents the guard API server.
type Server struct {
	// Config contains application configuration.
	Config *config.AppConfig

	// Db provides rule storage access.
	Db *database.Pool

	store     *rules.Store
	resolver  *geo.Resolver
	accessLog *accesslog.Logger
	guard     *service.GuardService

	router     chi.Router
	httpServer *http.Server
}

// NewServer creates a server with all components initialized. The order
// matters: durable storage is replayed into the rule store and the geo
// database is opened before any route is registered, so the process
// refuses to start rather than serve half-functional.
func NewServer(cfg *config.AppConfig) (*Server, error) {
	s := &Server{Config: cfg}

	db, err := database.Connect(cfg.Guard.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("failed to set up rule storage: %w", err)
	}
	s.Db = db

	s.store = rules.NewStore(repository.NewRuleRepository(db))
	if err := s.store.Load(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to load rule store: %w", err)
	}

	resolver, err := geo.NewResolver(cfg.Guard.GeoDBPath, cfg.Guard.GeoCacheSize)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set up geo resolver: %w", err)
	}
	s.resolver = resolver

	accessLog, err := accesslog.New(cfg.Guard.AccessLogDir)
	if err != nil {
		resolver.Close()
		db.Close()
		return nil, fmt.Errorf("failed to set up access log: %w", err)
	}
	s.accessLog = accessLog

	s.guard = service.NewGuardService(s.store, s.resolver, s.accessLog)

	s.SetupRoutes()

	s.httpServer = &http.Server{
		Addr:         cfg.Server.ServerAddress(),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  constants.DefaultIdleTimeout,
	}

	return s, nil
}

// Start runs the server until SIGINT/SIGTERM, then shuts down
// gracefully: in-flight decisions run to completion within the shutdown
// timeout before the log and database handles are closed.
func (s *Server) Start() error {
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	s.store.StartSweeper(sweepCtx, s.Config.Guard.PurgeInterval)

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.httpServer.Addr).Msg("Guard server listening")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		stopSweep()
		s.closeResources()
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("Shutting down")
	}

	stopSweep()

	ctx, cancel := context.WithTimeout(context.Background(), s.Config.Server.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Graceful shutdown failed")
	}

	s.closeResources()
	log.Info().Msg("Server stopped")
	return nil
}

// closeResources releases the access log, geo database, and rule
// storage handles.
func (s *Server) closeResources() {
	if err := s.accessLog.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close access log")
	}
	if err := s.resolver.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close geo database")
	}
	s.Db.Close()
}
