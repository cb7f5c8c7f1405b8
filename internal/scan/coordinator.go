// Package scan runs bounded link scans over a content catalog.
//
// A Coordinator owns the lifecycle of scans: Start persists the scan record
// and hands Run to an async trigger, Run walks the selected documents and
// records broken links, and Stop ends a scan cooperatively. At most one scan
// is active at a time.
package scan

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"git.home.luguber.info/inful/linkscan/internal/catalog"
	"git.home.luguber.info/inful/linkscan/internal/foundation/errors"
	"git.home.luguber.info/inful/linkscan/internal/linkverify"
	"git.home.luguber.info/inful/linkscan/internal/logfields"
	"git.home.luguber.info/inful/linkscan/internal/metrics"
	"git.home.luguber.info/inful/linkscan/internal/model"
	"git.home.luguber.info/inful/linkscan/internal/progress"
	"git.home.luguber.info/inful/linkscan/internal/store"
)

var (
	// ErrScanInProgress is returned by Start while another scan is active.
	ErrScanInProgress = errors.ScanError("a scan is already in progress").Build()
	// ErrStartFailed wraps the cause when a scan could not be started.
	ErrStartFailed = errors.StoreError("could not start scan").Build()
	// ErrShuttingDown is returned by Start after Shutdown was called.
	ErrShuttingDown = errors.RuntimeError("scan coordinator is shutting down").Build()
)

const (
	// DefaultThrottle is the pause between documents.
	DefaultThrottle = 100 * time.Millisecond
	// DefaultProbeConcurrency bounds parallel link checks within a document.
	DefaultProbeConcurrency = 4

	// reserving marks the gate while Start waits for the store to assign an id.
	reserving int64 = -1
)

// Trigger schedules a function for near-immediate background execution.
type Trigger interface {
	Enqueue(name string, fn func()) error
}

// LinkValidator checks one classified link.
type LinkValidator interface {
	Validate(ctx context.Context, rawURL string, class linkverify.LinkClass, includeExternal bool) linkverify.Result
}

// Publisher receives an event for every persisted finding.
type Publisher interface {
	PublishBrokenLink(ctx context.Context, event *linkverify.BrokenLinkEvent) error
}

// Options wires a Coordinator to its collaborators. Publisher and Recorder
// are optional.
type Options struct {
	Catalog   catalog.Catalog
	Store     store.Store
	Tracker   progress.Tracker
	Validator LinkValidator
	Trigger   Trigger
	Publisher Publisher
	Recorder  metrics.Recorder

	// Throttle is the minimum interval between documents. Zero disables it.
	Throttle time.Duration
	// ProbeConcurrency bounds parallel link checks; <= 0 uses the default.
	ProbeConcurrency int
	// Now overrides the clock in tests.
	Now func() time.Time
}

// runState is the in-process handle of a started scan.
type runState struct {
	ctx     context.Context
	cancel  context.CancelFunc
	claimed atomic.Bool
	stopped atomic.Bool
	done    chan struct{}
	once    sync.Once
}

func (st *runState) finish() {
	st.once.Do(func() {
		st.cancel()
		close(st.done)
	})
}

// Coordinator starts, runs and stops scans.
type Coordinator struct {
	opts Options

	// active holds the id of the current scan, 0 when idle.
	active atomic.Int64

	extracted *extractionCache

	mu      sync.Mutex
	runs    map[model.ScanID]*runState
	closing bool
	wg      sync.WaitGroup

	root   context.Context
	cancel context.CancelFunc
}

// New validates opts and returns an idle Coordinator.
func New(opts Options) (*Coordinator, error) {
	switch {
	case opts.Catalog == nil:
		return nil, errors.ConfigError("scan coordinator requires a catalog").Build()
	case opts.Store == nil:
		return nil, errors.ConfigError("scan coordinator requires a store").Build()
	case opts.Tracker == nil:
		return nil, errors.ConfigError("scan coordinator requires a progress tracker").Build()
	case opts.Validator == nil:
		return nil, errors.ConfigError("scan coordinator requires a validator").Build()
	case opts.Trigger == nil:
		return nil, errors.ConfigError("scan coordinator requires a trigger").Build()
	}
	if opts.Recorder == nil {
		opts.Recorder = metrics.NoopRecorder{}
	}
	if opts.ProbeConcurrency <= 0 {
		opts.ProbeConcurrency = DefaultProbeConcurrency
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	root, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		opts:      opts,
		extracted: newExtractionCache(),
		runs:      make(map[model.ScanID]*runState),
		root:      root,
		cancel:    cancel,
	}, nil
}

// Start persists a new running scan, publishes its initial progress and
// schedules Run. It returns as soon as the run is scheduled.
func (c *Coordinator) Start(ctx context.Context, req model.ScanRequest) (model.ScanID, error) {
	c.mu.Lock()
	closing := c.closing
	c.mu.Unlock()
	if closing {
		return 0, ErrShuttingDown
	}
	if !c.active.CompareAndSwap(0, reserving) {
		return 0, ErrScanInProgress
	}

	req = req.Normalize()
	rec, err := model.NewScan(req, c.opts.Now())
	if err != nil {
		c.active.Store(0)
		return 0, ErrStartFailed.Wrap(err)
	}
	id, err := c.opts.Store.CreateScan(ctx, rec)
	if err != nil {
		c.active.Store(0)
		slog.Error("Failed to create scan record", logfields.Error(err))
		return 0, ErrStartFailed.Wrap(err)
	}
	c.active.Store(int64(id))

	if err := c.opts.Tracker.Reset(ctx, progress.Initial(id)); err != nil {
		slog.Warn("Failed to publish initial progress", logfields.ScanID(int64(id)), logfields.Error(err))
	}

	st := c.register(id)
	if err := c.opts.Trigger.Enqueue(fmt.Sprintf("scan-%d", id), func() { c.Run(id) }); err != nil {
		slog.Error("Failed to schedule scan", logfields.ScanID(int64(id)), logfields.Error(err))
		c.abandon(ctx, id, st)
		return 0, ErrStartFailed.Wrap(err)
	}

	slog.Info("Scan started",
		logfields.ScanID(int64(id)),
		slog.Int("depth", int(req.Depth)),
		slog.Int("max_pages", req.MaxPages),
		slog.Bool("include_external", req.IncludeExternal))
	return id, nil
}

// Stop ends the current scan. Stopping a scan that is not current is a
// no-op, as long as the scan exists.
func (c *Coordinator) Stop(ctx context.Context, id model.ScanID) error {
	if id <= 0 || c.active.Load() != int64(id) {
		_, err := c.opts.Store.GetScan(ctx, id)
		return err
	}
	st := c.state(id)
	if st != nil && !st.stopped.CompareAndSwap(false, true) {
		return nil
	}
	if st != nil {
		st.cancel()
	}

	err := c.markStopped(ctx, id)
	c.active.CompareAndSwap(int64(id), 0)
	c.opts.Recorder.IncScanOutcome(metrics.OutcomeStopped)
	slog.Info("Scan stopped", logfields.ScanID(int64(id)))
	if err != nil {
		return errors.WrapError(err, errors.CategoryStore, "failed to persist stopped scan").
			WithContext("scan_id", int64(id)).
			Build()
	}
	return nil
}

// Progress returns the latest snapshot of a scan, or
// progress.ErrNoScanInProgress.
func (c *Coordinator) Progress(ctx context.Context, id model.ScanID) (progress.Snapshot, error) {
	return c.opts.Tracker.Get(ctx, id)
}

// Current returns the active scan id, if any.
func (c *Coordinator) Current() (model.ScanID, bool) {
	id := c.active.Load()
	if id <= 0 {
		return 0, false
	}
	return model.ScanID(id), true
}

// Wait blocks until the given scan's run has finished or ctx is done. It
// returns immediately for scans this coordinator is not running.
func (c *Coordinator) Wait(ctx context.Context, id model.ScanID) error {
	st := c.state(id)
	if st == nil {
		return nil
	}
	select {
	case <-st.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RecoverInterrupted marks scans left running by a previous process as
// stopped and returns how many were changed.
func (c *Coordinator) RecoverInterrupted(ctx context.Context) (int, error) {
	recs, err := c.opts.Store.ListScans(ctx, model.ScanFilter{Status: model.StatusRunning})
	if err != nil {
		return 0, err
	}
	n := 0
	for _, rec := range recs {
		if c.active.Load() == int64(rec.ID) {
			continue
		}
		if err := c.markStopped(ctx, rec.ID); err != nil {
			return n, err
		}
		slog.Warn("Marked interrupted scan as stopped", logfields.ScanID(int64(rec.ID)))
		n++
	}
	return n, nil
}

// Shutdown cancels running scans, waits for their runs to exit and marks
// scans that never ran as stopped.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	c.closing = true
	c.mu.Unlock()
	c.cancel()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	c.mu.Lock()
	pending := make(map[model.ScanID]*runState, len(c.runs))
	for id, st := range c.runs {
		pending[id] = st
	}
	c.mu.Unlock()
	for id, st := range pending {
		c.abandon(ctx, id, st)
	}
	return nil
}

func (c *Coordinator) register(id model.ScanID) *runState {
	ctx, cancel := context.WithCancel(c.root)
	st := &runState{ctx: ctx, cancel: cancel, done: make(chan struct{})}
	c.mu.Lock()
	c.runs[id] = st
	c.mu.Unlock()
	return st
}

func (c *Coordinator) state(id model.ScanID) *runState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runs[id]
}

func (c *Coordinator) unregister(id model.ScanID, st *runState) {
	c.mu.Lock()
	if c.runs[id] == st {
		delete(c.runs, id)
	}
	c.mu.Unlock()
	st.finish()
}

// abandon ends a scan whose run never started.
func (c *Coordinator) abandon(ctx context.Context, id model.ScanID, st *runState) {
	st.stopped.Store(true)
	if err := c.markStopped(context.WithoutCancel(ctx), id); err != nil {
		slog.Error("Failed to mark scan stopped", logfields.ScanID(int64(id)), logfields.Error(err))
	}
	c.unregister(id, st)
	c.active.CompareAndSwap(int64(id), 0)
}

// markStopped persists the stopped status and drops the progress snapshot.
func (c *Coordinator) markStopped(ctx context.Context, id model.ScanID) error {
	now := c.opts.Now()
	err := c.opts.Store.UpdateScan(ctx, id, model.ScanUpdate{Status: model.StatusStopped, CompletedAt: &now})
	if cerr := c.opts.Tracker.Clear(ctx, id); cerr != nil {
		slog.Warn("Failed to clear progress", logfields.ScanID(int64(id)), logfields.Error(cerr))
	}
	return err
}
