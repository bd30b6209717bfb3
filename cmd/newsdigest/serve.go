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

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	chiTransport "github.com/kailas-cloud/newsdigest/internal/transport/chi"
	healthuc "github.com/kailas-cloud/newsdigest/internal/usecase/health"
	usageuc "github.com/kailas-cloud/newsdigest/internal/usecase/usage"
)

// serveAction runs the HTTP API until SIGINT/SIGTERM, then drains in-flight requests.
func serveAction(c *cli.Context) error {
	d, err := bootstrap(c)
	if err != nil {
		return err
	}
	defer d.Close()

	// Nil interfaces, not typed nil pointers, for absent components.
	var cache, archive healthuc.Pinger
	if d.store != nil {
		cache = d.store
	}
	if d.archive != nil {
		archive = d.archive
	}
	healthSvc := healthuc.New(cache, archive, providerChecker{gen: d.provider})

	var budget usageuc.BudgetReader
	if d.budget != nil {
		budget = d.budget
	}
	usageSvc := usageuc.New(budget, d.cfg.Inference.Provider)

	server := chiTransport.NewServer(d.annotator, healthSvc, d.logger).
		WithUsage(usageSvc).
		WithMaxItems(d.cfg.HTTP.MaxItems)
	if d.archive != nil {
		server = server.WithRuns(d.archive)
	}

	addr := fmt.Sprintf(":%d", d.cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      server.Router(d.cfg.Auth.APIKeys),
		ReadTimeout:  time.Duration(d.cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(d.cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		d.logger.Info("Starting HTTP server",
			zap.String("addr", addr),
			zap.Bool("auth", len(d.cfg.Auth.APIKeys) > 0),
			zap.Bool("archive", d.archive != nil),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
		d.logger.Info("Received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(d.cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		d.logger.Error("Error during shutdown", zap.Error(err))
		return fmt.Errorf("shutdown: %w", err)
	}

	d.logger.Info("Server stopped gracefully")
	return nil
}
