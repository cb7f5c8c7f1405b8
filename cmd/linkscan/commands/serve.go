package commands

import (
	"context"
	stderrors "errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"git.home.luguber.info/inful/linkscan/internal/api"
	"git.home.luguber.info/inful/linkscan/internal/config"
	"git.home.luguber.info/inful/linkscan/internal/foundation/errors"
	"git.home.luguber.info/inful/linkscan/internal/logfields"
	"git.home.luguber.info/inful/linkscan/internal/metrics"
	"git.home.luguber.info/inful/linkscan/internal/scan"
)

// ServeCmd implements the 'serve' command.
type ServeCmd struct {
	Addr string `help:"Listen address, overrides http.addr"`
}

func (s *ServeCmd) Run(_ *Global, root *CLI) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	if s.Addr != "" {
		cfg.HTTP.Addr = s.Addr
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return RunServe(ctx, cfg)
}

// RunServe runs the API server until ctx is cancelled or the listener fails.
func RunServe(ctx context.Context, cfg *config.Config) error {
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		_ = a.close(sctx)
	}()

	if n, err := a.coordinator.RecoverInterrupted(ctx); err != nil {
		slog.Warn("Could not recover interrupted scans", logfields.Error(err))
	} else if n > 0 {
		slog.Info("Recovered interrupted scans", slog.Int("count", n))
	}

	if err := scheduleJobs(ctx, a); err != nil {
		return err
	}
	if cfg.Catalog.Watch {
		go func() {
			if err := a.catalog.Watch(ctx, cfg.Catalog.WatchDebounce); err != nil && ctx.Err() == nil {
				slog.Error("Content watcher stopped", logfields.Error(err))
			}
		}()
	}

	opts := api.Options{
		Addr:        cfg.HTTP.Addr,
		Scans:       a.coordinator,
		Store:       a.store,
		Defaults:    cfg.ScanRequest(),
		CORSOrigins: cfg.HTTP.CORSOrigins,
	}
	if a.registry != nil {
		opts.Metrics = metrics.HTTPHandler(a.registry)
		opts.MetricsPath = cfg.Metrics.Path
	}
	srv := api.NewServer(opts)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		if !stderrors.Is(err, http.ErrServerClosed) {
			return errors.WrapError(err, errors.CategoryRuntime, "API server failed").
				WithContext("addr", cfg.HTTP.Addr).Build()
		}
		return nil
	case <-ctx.Done():
		slog.Info("Shutdown signal received, stopping server...")
	}

	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return errors.WrapError(err, errors.CategoryRuntime, "failed to stop API server").Build()
	}
	slog.Info("Server stopped successfully")
	return nil
}

// scheduleJobs registers the recurring scan and the content sync.
func scheduleJobs(ctx context.Context, a *app) error {
	if expr := a.cfg.Scan.Schedule; expr != "" {
		req := a.cfg.ScanRequest()
		if _, err := a.scheduler.ScheduleCron("scheduled-scan", expr, func() {
			id, err := a.coordinator.Start(ctx, req)
			switch {
			case stderrors.Is(err, scan.ErrScanInProgress):
				slog.Info("Skipping scheduled scan, another scan is running")
			case err != nil:
				slog.Error("Scheduled scan failed to start", logfields.Error(err))
			default:
				slog.Info("Scheduled scan started", logfields.ScanID(int64(id)))
			}
		}); err != nil {
			return errors.WrapError(err, errors.CategoryConfig, "invalid scan schedule").
				WithContext("schedule", expr).Build()
		}
		slog.Info("Recurring scan scheduled", logfields.Schedule(expr))
	}

	if g := a.cfg.Catalog.Git; g != nil && g.SyncSchedule != "" {
		if _, err := a.scheduler.ScheduleCron("content-sync", g.SyncSchedule, func() {
			if err := a.syncContent(ctx); err != nil {
				slog.Error("Content sync failed", logfields.Error(err))
			}
		}); err != nil {
			return errors.WrapError(err, errors.CategoryConfig, "invalid content sync schedule").
				WithContext("schedule", g.SyncSchedule).Build()
		}
		slog.Info("Content sync scheduled", logfields.Schedule(g.SyncSchedule))
	}
	return nil
}
