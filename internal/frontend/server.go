// Package frontend serves the HTTP API. It is a thin adapter: every
// route maps 1:1 onto an engine, scheduler or trigger operation.
package frontend

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/flowrun-dev/flowrun/internal/config"
	"github.com/flowrun-dev/flowrun/internal/engine"
	"github.com/flowrun-dev/flowrun/internal/logger"
	"github.com/flowrun-dev/flowrun/internal/scheduler"
	"github.com/flowrun-dev/flowrun/internal/trigger"
)

// Server hosts the REST API over the core registries.
type Server struct {
	cfg       *config.Config
	engine    *engine.Engine
	scheduler *scheduler.Scheduler
	triggers  *trigger.Manager
}

// New creates a server over the given registries.
func New(cfg *config.Config, eng *engine.Engine, sc *scheduler.Scheduler, tm *trigger.Manager) *Server {
	return &Server{
		cfg:       cfg,
		engine:    eng,
		scheduler: sc,
		triggers:  tm,
	}
}

// Start serves the API until the context is canceled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info(ctx, "Server started", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("server failed: %w", err)

	case <-ctx.Done():
		logger.Info(ctx, "Server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	}
}
