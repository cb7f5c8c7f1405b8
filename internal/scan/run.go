package scan

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"git.home.luguber.info/inful/linkscan/internal/catalog"
	"git.home.luguber.info/inful/linkscan/internal/linkverify"
	"git.home.luguber.info/inful/linkscan/internal/logfields"
	"git.home.luguber.info/inful/linkscan/internal/metrics"
	"git.home.luguber.info/inful/linkscan/internal/model"
	"git.home.luguber.info/inful/linkscan/internal/observability"
	"git.home.luguber.info/inful/linkscan/internal/progress"
)

// Run executes a started scan. It is the function handed to the trigger
// and is a no-op for unknown, finished or already claimed scans.
func (c *Coordinator) Run(id model.ScanID) {
	st := c.state(id)
	if st == nil {
		slog.Debug("Ignoring run for unregistered scan", logfields.ScanID(int64(id)))
		return
	}
	if !st.claimed.CompareAndSwap(false, true) {
		slog.Warn("Scan is already running, ignoring duplicate trigger", logfields.ScanID(int64(id)))
		return
	}
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		st.claimed.Store(false)
		return
	}
	c.wg.Add(1)
	c.mu.Unlock()

	defer c.wg.Done()
	defer c.unregister(id, st)
	defer func() {
		// Stop clears progress before the loop notices; a late merge must not
		// resurrect the snapshot.
		if st.stopped.Load() {
			_ = c.opts.Tracker.Clear(context.WithoutCancel(st.ctx), id)
		}
	}()

	c.run(st.ctx, id, st)
}

func (c *Coordinator) run(ctx context.Context, id model.ScanID, st *runState) {
	started := time.Now()
	ctx = observability.WithComponent(observability.WithScanID(ctx, int64(id)), "scan")

	if st.stopped.Load() {
		return
	}
	rec, err := c.opts.Store.GetScan(ctx, id)
	if err != nil {
		observability.DebugContext(ctx, "Scan record unavailable, aborting run", logfields.Error(err))
		c.interrupt(ctx, id, st)
		return
	}
	if rec.Status != model.StatusRunning {
		c.active.CompareAndSwap(int64(id), 0)
		return
	}
	req, err := rec.Request()
	if err != nil {
		observability.DebugContext(ctx, "Scan config undecodable, aborting run", logfields.Error(err))
		c.interrupt(ctx, id, st)
		return
	}
	req = req.Normalize()

	docs, err := c.selectDocuments(ctx, req)
	if err != nil {
		observability.ErrorContext(ctx, "Failed to load documents", logfields.Error(err))
		c.interrupt(ctx, id, st)
		return
	}
	c.extracted.retain(docs)
	planned := len(docs)
	c.merge(ctx, st, id, progress.Update{TotalPages: &planned})

	var limiter *rate.Limiter
	if c.opts.Throttle > 0 {
		limiter = rate.NewLimiter(rate.Every(c.opts.Throttle), 1)
	}

	var totals model.ScanTotals
	for _, doc := range docs {
		if st.stopped.Load() || ctx.Err() != nil {
			c.interrupt(ctx, id, st)
			return
		}
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				c.interrupt(ctx, id, st)
				return
			}
		}

		totals.Pages++
		c.merge(ctx, st, id, progress.Update{
			PagesScanned: progress.Ptr(totals.Pages),
			TotalPages:   &planned,
			CurrentPage:  progress.Ptr(doc.Title),
		})

		links, broken := c.processDocument(ctx, id, st, doc, req, c.opts.Catalog.SiteURL())
		totals.Links += links
		totals.Broken += broken
		c.opts.Recorder.AddPagesScanned(1)

		c.merge(ctx, st, id, progress.Update{
			LinksFound:  progress.Ptr(totals.Links),
			BrokenFound: progress.Ptr(totals.Broken),
		})
		observability.DebugContext(ctx, "Document scanned",
			logfields.DocumentID(int64(doc.ID)),
			logfields.SourceURL(doc.Permalink),
			logfields.Links(links),
			logfields.Broken(broken))
	}

	c.complete(ctx, id, st, totals, started)
}

// selectDocuments resolves the document set for req, newest first.
func (c *Coordinator) selectDocuments(ctx context.Context, req model.ScanRequest) ([]catalog.Document, error) {
	var registered []string
	if req.Depth == model.DepthAllTypes || req.Depth == model.DepthDeep {
		types, err := c.opts.Catalog.PublicTypes(ctx)
		if err != nil {
			observability.WarnContext(ctx, "Failed to list public content types, using pages and posts", logfields.Error(err))
		}
		registered = types
	}
	return c.opts.Catalog.Documents(ctx, catalog.Query{
		Types: req.Depth.ContentTypes(registered),
		Limit: req.MaxPages,
	})
}

type checkedLink struct {
	link   linkverify.ResolvedLink
	result linkverify.Result
}

// processDocument checks every link of doc and persists the broken ones.
// A panic while handling the document, including one inside a link check,
// counts as zero links.
func (c *Coordinator) processDocument(ctx context.Context, id model.ScanID, st *runState, doc catalog.Document, req model.ScanRequest, site string) (links, broken int) {
	ctx = observability.WithDocument(ctx, int64(doc.ID), doc.Permalink)
	defer func() {
		if r := recover(); r != nil {
			observability.ErrorContext(ctx, "Document processing panicked, skipping", slog.Any("panic", r))
			links, broken = 0, 0
		}
	}()

	extracted, cached := c.extracted.links(doc)
	if cached {
		observability.DebugContext(ctx, "Document unchanged, reusing parsed links", logfields.Fingerprint(doc.Fingerprint))
	}
	checked := make([]checkedLink, len(extracted))

	// Probes outlive a stop request; only unstarted checks are skipped.
	probeCtx := context.WithoutCancel(ctx)
	g := new(errgroup.Group)
	g.SetLimit(c.opts.ProbeConcurrency)
	for i, l := range extracted {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("checking %q panicked: %v", l.Href, r)
				}
			}()
			resolved := linkverify.ResolveLink(l, doc.Permalink, site)
			checked[i].link = resolved
			if st.stopped.Load() {
				return nil
			}
			checked[i].result = c.opts.Validator.Validate(probeCtx, resolved.URL, resolved.Class, req.IncludeExternal)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		observability.ErrorContext(ctx, "Link check failed, skipping document", logfields.Error(err))
		return 0, 0
	}

	for _, cl := range checked {
		links++
		c.opts.Recorder.IncLinksChecked(string(cl.link.Class))
		if !cl.result.IsBroken {
			continue
		}
		broken++
		c.opts.Recorder.IncBrokenLinks(string(cl.link.Class))
		c.recordFinding(probeCtx, id, doc, cl)
	}
	return links, broken
}

func (c *Coordinator) recordFinding(ctx context.Context, id model.ScanID, doc catalog.Document, cl checkedLink) {
	f := model.Finding{
		ScanID:       id,
		SourceURL:    doc.Permalink,
		TargetURL:    cl.link.URL,
		LinkText:     cl.link.Text,
		StatusCode:   cl.result.StatusCode,
		ErrorMessage: cl.result.ErrorMessage,
		IsBroken:     true,
		FoundAt:      c.opts.Now(),
	}
	observability.WarnContext(ctx, "Broken link found",
		logfields.URL(f.TargetURL),
		logfields.Status(f.StatusCode),
		logfields.LinkClass(string(cl.link.Class)))

	if _, err := c.opts.Store.InsertFinding(ctx, f); err != nil {
		c.opts.Recorder.IncFindingPersistFailure()
		observability.ErrorContext(ctx, "Failed to persist finding", logfields.URL(f.TargetURL), logfields.Error(err))
		return
	}
	if c.opts.Publisher == nil {
		return
	}
	event := &linkverify.BrokenLinkEvent{
		EventID:    uuid.New().String(),
		ScanID:     int64(id),
		SourceURL:  f.SourceURL,
		SourceDoc:  int64(doc.ID),
		Title:      doc.Title,
		TargetURL:  f.TargetURL,
		LinkText:   f.LinkText,
		Status:     f.StatusCode,
		Error:      f.ErrorMessage,
		IsInternal: cl.link.Class == linkverify.Internal,
		Revision:   doc.Fingerprint,
		Timestamp:  f.FoundAt,
	}
	if err := c.opts.Publisher.PublishBrokenLink(ctx, event); err != nil {
		c.opts.Recorder.IncEventPublishFailure()
		observability.WarnContext(ctx, "Failed to publish broken link event", logfields.Error(err))
	}
}

// merge publishes a progress update unless the scan was stopped.
func (c *Coordinator) merge(ctx context.Context, st *runState, id model.ScanID, u progress.Update) {
	if st.stopped.Load() {
		return
	}
	if err := c.opts.Tracker.Merge(context.WithoutCancel(ctx), id, u); err != nil {
		observability.WarnContext(ctx, "Failed to update progress", logfields.Error(err))
	}
}

// complete persists the final totals and releases the active gate.
func (c *Coordinator) complete(ctx context.Context, id model.ScanID, st *runState, totals model.ScanTotals, started time.Time) {
	ctx = context.WithoutCancel(ctx)
	if st.stopped.Load() {
		return
	}
	now := c.opts.Now()
	err := c.opts.Store.UpdateScan(ctx, id, model.ScanUpdate{
		Status:      model.StatusCompleted,
		Totals:      &totals,
		CompletedAt: &now,
	})
	if err != nil {
		observability.ErrorContext(ctx, "Failed to persist completed scan", logfields.Error(err))
		c.opts.Recorder.IncScanOutcome(metrics.OutcomeFailed)
	} else {
		c.opts.Recorder.IncScanOutcome(metrics.OutcomeCompleted)
	}
	c.merge(ctx, st, id, progress.Update{
		Status:       progress.Ptr(model.StatusCompleted),
		PagesScanned: progress.Ptr(totals.Pages),
		LinksFound:   progress.Ptr(totals.Links),
		BrokenFound:  progress.Ptr(totals.Broken),
	})
	c.active.CompareAndSwap(int64(id), 0)

	elapsed := time.Since(started)
	c.opts.Recorder.ObserveScanDuration(metrics.OutcomeCompleted, elapsed)
	observability.InfoContext(ctx, "Scan completed",
		logfields.Pages(totals.Pages),
		logfields.Links(totals.Links),
		logfields.Broken(totals.Broken),
		logfields.DurationMS(float64(elapsed.Milliseconds())))
}

// interrupt ends a run that did not complete. When Stop already recorded
// the transition it only releases resources.
func (c *Coordinator) interrupt(ctx context.Context, id model.ScanID, st *runState) {
	if !st.stopped.CompareAndSwap(false, true) {
		return
	}
	if err := c.markStopped(context.WithoutCancel(ctx), id); err != nil {
		slog.Error("Failed to mark scan stopped", logfields.ScanID(int64(id)), logfields.Error(err))
	}
	c.active.CompareAndSwap(int64(id), 0)
	c.opts.Recorder.IncScanOutcome(metrics.OutcomeStopped)
	slog.Info("Scan interrupted", logfields.ScanID(int64(id)))
}
