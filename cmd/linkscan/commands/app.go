package commands

import (
	"context"
	stderrors "errors"
	"log/slog"

	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/linkscan/internal/catalog"
	"git.home.luguber.info/inful/linkscan/internal/config"
	"git.home.luguber.info/inful/linkscan/internal/linkverify"
	"git.home.luguber.info/inful/linkscan/internal/logfields"
	"git.home.luguber.info/inful/linkscan/internal/metrics"
	"git.home.luguber.info/inful/linkscan/internal/progress"
	"git.home.luguber.info/inful/linkscan/internal/scan"
	"git.home.luguber.info/inful/linkscan/internal/scheduler"
	"git.home.luguber.info/inful/linkscan/internal/store"
)

// app is the wired scanning stack shared by serve and scan.
type app struct {
	cfg         *config.Config
	git         *catalog.GitSource
	catalog     *catalog.FSCatalog
	store       store.Store
	tracker     progress.Tracker
	nats        *linkverify.NATSClient
	registry    *prom.Registry
	recorder    metrics.Recorder
	scheduler   *scheduler.Scheduler
	coordinator *scan.Coordinator
}

// newApp builds every collaborator from cfg. On error, whatever was already
// opened is closed again.
func newApp(ctx context.Context, cfg *config.Config) (a *app, err error) {
	a = &app{cfg: cfg, recorder: metrics.NoopRecorder{}}
	defer func() {
		if err != nil {
			_ = a.close(context.WithoutCancel(ctx))
			a = nil
		}
	}()

	if g := cfg.Catalog.Git; g != nil {
		a.git = &catalog.GitSource{URL: g.URL, Branch: g.Branch, Token: g.Token, Dir: cfg.Catalog.Root}
		if err = a.git.Sync(ctx); err != nil {
			return a, err
		}
	}
	if a.catalog, err = catalog.NewFS(ctx, catalog.FSOptions{
		Root:        cfg.Catalog.Root,
		SiteURL:     cfg.Site.URL,
		PublicTypes: cfg.Catalog.PublicTypes,
	}); err != nil {
		return a, err
	}

	dialect, err := store.ParseDialect(string(cfg.Store.Driver))
	if err != nil {
		return a, err
	}
	if a.store, err = store.Open(ctx, store.Options{
		Dialect:     dialect,
		DSN:         cfg.Store.DSN,
		TablePrefix: cfg.Store.TablePrefix,
	}); err != nil {
		return a, err
	}

	if cfg.Metrics.Enabled {
		a.registry = prom.NewRegistry()
		a.recorder = metrics.NewPrometheusRecorder(a.registry)
	}

	if cfg.NATS.Enabled() {
		if a.nats, err = linkverify.NewNATSClient(ctx, linkverify.NATSOptions{
			URL:     cfg.NATS.URL,
			Subject: cfg.NATS.Subject,
			Stream:  cfg.NATS.Stream,
			Name:    cfg.NATS.Name,
		}); err != nil {
			return a, err
		}
	}
	if a.tracker, err = a.newTracker(ctx); err != nil {
		return a, err
	}

	prober := linkverify.NewHTTPProber(linkverify.ProberOptions{
		Timeout:         cfg.Probe.Timeout,
		MaxRedirects:    cfg.Probe.MaxRedirects,
		UserAgent:       cfg.Probe.UserAgent,
		HeadFallbackGET: cfg.Probe.FallbackToGET(),
	})
	validator := linkverify.NewValidator(a.catalog, prober, linkverify.WithRecorder(a.recorder))

	if a.scheduler, err = scheduler.New(); err != nil {
		return a, err
	}
	opts := scan.Options{
		Catalog:          a.catalog,
		Store:            a.store,
		Tracker:          a.tracker,
		Validator:        validator,
		Trigger:          a.scheduler,
		Recorder:         a.recorder,
		Throttle:         cfg.Scan.Throttle,
		ProbeConcurrency: cfg.Scan.ProbeConcurrency,
	}
	if a.nats != nil {
		opts.Publisher = a.nats
	}
	if a.coordinator, err = scan.New(opts); err != nil {
		return a, err
	}
	a.scheduler.Start()
	return a, nil
}

func (a *app) newTracker(ctx context.Context) (progress.Tracker, error) {
	if a.cfg.Progress.Backend != config.ProgressNATS {
		return progress.NewMemoryTracker(), nil
	}
	kv, err := a.nats.KeyValue(ctx, a.cfg.Progress.Bucket, a.cfg.Progress.TTL)
	if err != nil {
		return nil, err
	}
	return progress.NewKVTracker(kv), nil
}

// syncContent pulls the content repository and reloads the catalog.
func (a *app) syncContent(ctx context.Context) error {
	if a.git != nil {
		if err := a.git.Sync(ctx); err != nil {
			return err
		}
	}
	return a.catalog.Reload(ctx)
}

// close shuts components down in reverse order of construction.
func (a *app) close(ctx context.Context) error {
	var errs []error
	if a.coordinator != nil {
		errs = append(errs, a.coordinator.Shutdown(ctx))
	}
	if a.scheduler != nil {
		errs = append(errs, a.scheduler.Stop(ctx))
	}
	if a.nats != nil {
		errs = append(errs, a.nats.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	err := stderrors.Join(errs...)
	if err != nil {
		slog.Warn("Shutdown finished with errors", logfields.Error(err))
	}
	return err
}
