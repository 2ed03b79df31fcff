package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/desertthunder/docdash/internal/jobs"
	"github.com/desertthunder/docdash/internal/notify"
	"github.com/desertthunder/docdash/internal/repositories"
	"github.com/desertthunder/docdash/internal/server"
	"github.com/desertthunder/docdash/internal/tasks"
	"github.com/urfave/cli/v3"
)

const shutdownTimeout = 15 * time.Second

// Serve wires the history store, emitter, task manager, sweeper and HTTP API, then blocks until
// SIGINT/SIGTERM or a listener error.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	cfg := r.config
	addr := cmd.String("addr")
	if addr == "" {
		addr = cfg.Server.Addr()
	}

	store, err := repositories.Open(ctx, cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to open task history: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			r.logger.Warn("failed to close task history", "error", err)
		}
	}()

	broker := notify.NewBroker(cfg.Engine.SubscriberBuffer)
	emitter := notify.NewEmitter(broker, notify.OptionsFromConfig(cfg.Engine), r.logger)
	catalog := jobs.NewCatalog(cfg, r.logger)
	manager := tasks.NewManager(emitter, store, catalog, tasks.OptionsFromConfig(cfg.Engine), r.logger)

	sweeper, err := tasks.NewSweeper(manager, cfg.Engine.SweepInterval.Duration, r.logger)
	if err != nil {
		return err
	}
	sweeper.Start()

	srv := server.New(addr, server.NewRouter(server.NewAPI(manager, broker, r.logger)), r.logger)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	r.logger.Info("docdash ready", "addr", addr, "kinds", catalog.Kinds(), "history", cfg.History.Backend)

	var serveErr error
	select {
	case serveErr = <-errc:
	case <-ctx.Done():
		r.logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if err := srv.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if err := sweeper.Stop(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("sweeper stop: %w", err))
	}
	if err := manager.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("task manager shutdown: %w", err))
	}
	if serveErr != nil {
		errs = append(errs, fmt.Errorf("http server: %w", serveErr))
	}
	return errors.Join(errs...)
}
