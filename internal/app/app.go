// Package app wires the sync engine and provides the lifecycle of the
// sync server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"
)

// SyncApp runs the HTTP server, the trigger loop and the connectivity
// monitor until stopped.
type SyncApp struct {
	components *Components
	httpServer *http.Server

	// Lifecycle management
	ctx        context.Context
	cancelFunc context.CancelFunc
	background sync.WaitGroup
}

// Start starts the background loops and serves HTTP. It blocks until the
// HTTP server stops or fails.
func (app *SyncApp) Start() error {
	listener, err := net.Listen("tcp", app.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", app.httpServer.Addr, err)
	}
	return app.Serve(listener)
}

// Serve is Start on an existing listener.
func (app *SyncApp) Serve(listener net.Listener) error {
	app.background.Add(2)
	go func() {
		defer app.background.Done()
		app.components.Monitor.Run(app.ctx)
	}()
	go func() {
		defer app.background.Done()
		if err := app.components.Coordinator.Start(app.ctx); err != nil {
			slog.Error("Sync coordinator failed", "error", err)
		}
	}()

	slog.Info("Server listening", "address", listener.Addr().String())
	if err := app.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server failed: %w", err)
	}
	return nil
}

// Stop gracefully stops the application with the given timeout. It stops
// the trigger loop first, then HTTP, then releases the components.
func (app *SyncApp) Stop(timeout time.Duration) error {
	slog.Info("Shutting down server...")

	if err := app.components.Coordinator.Stop(); err != nil {
		slog.Error("Failed to stop sync coordinator", "error", err)
	}
	if app.cancelFunc != nil {
		app.cancelFunc()
	}
	app.background.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	if err := app.httpServer.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("server forced to shutdown: %w", err))
	}
	if err := app.components.Close(shutdownCtx); err != nil {
		errs = append(errs, err)
	}

	slog.Info("Server shutdown complete")
	return errors.Join(errs...)
}

// Components returns the wired sync engine
func (app *SyncApp) Components() *Components {
	return app.components
}

// GetHTTPServer returns the HTTP server
func (app *SyncApp) GetHTTPServer() *http.Server {
	return app.httpServer
}
