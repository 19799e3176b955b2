package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// run starts the pipeline and the HTTP server, then blocks until the
// context is canceled and everything has shut down gracefully.
func (app *application) run(ctx context.Context) error {
	if err := app.start(); err != nil {
		return fmt.Errorf("failed to start pipeline: %w", err)
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", app.config.Server.Port),
		Handler:           app.setupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		app.logger.Info("starting server", "port", app.config.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		app.cleanup()
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
		app.logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		app.logger.Error("server shutdown failed", "error", err)
	}

	// In-flight jobs finish before the pools stop; anything still queued
	// is recovered from the job store on the next start.
	app.cleanup()

	app.logger.Info("server shutdown completed")
	return nil
}
