package scan

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/linkscan/internal/catalog"
	"git.home.luguber.info/inful/linkscan/internal/foundation/errors"
	"git.home.luguber.info/inful/linkscan/internal/linkverify"
	"git.home.luguber.info/inful/linkscan/internal/model"
	"git.home.luguber.info/inful/linkscan/internal/progress"
	"git.home.luguber.info/inful/linkscan/internal/store"
)

const site = "https://example.com"

// manualTrigger records scheduled runs without executing them.
type manualTrigger struct {
	mu   sync.Mutex
	fns  []func()
	fail error
}

func (m *manualTrigger) Enqueue(_ string, fn func()) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.fns = append(m.fns, fn)
	return nil
}

func (m *manualTrigger) last(t *testing.T) func() {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.fns)
	return m.fns[len(m.fns)-1]
}

// goTrigger runs every job on its own goroutine.
type goTrigger struct{}

func (goTrigger) Enqueue(_ string, fn func()) error {
	go fn()
	return nil
}

type countingProber struct {
	calls  atomic.Int32
	status int
}

func (p *countingProber) Probe(context.Context, string) (linkverify.ProbeResponse, error) {
	p.calls.Add(1)
	return linkverify.ProbeResponse{StatusCode: p.status, Status: fmt.Sprintf("%d Whatever", p.status)}, nil
}

type failingStore struct {
	*store.Memory
	createErr error
	getErr    error
	insertErr error
	badConfig bool
}

func (s *failingStore) CreateScan(ctx context.Context, rec model.ScanRecord) (model.ScanID, error) {
	if s.createErr != nil {
		return 0, s.createErr
	}
	return s.Memory.CreateScan(ctx, rec)
}

func (s *failingStore) GetScan(ctx context.Context, id model.ScanID) (model.ScanRecord, error) {
	if s.getErr != nil {
		return model.ScanRecord{}, s.getErr
	}
	rec, err := s.Memory.GetScan(ctx, id)
	if s.badConfig {
		rec.Config = "{depth"
	}
	return rec, err
}

func (s *failingStore) InsertFinding(ctx context.Context, f model.Finding) (model.FindingID, error) {
	if s.insertErr != nil {
		return 0, s.insertErr
	}
	return s.Memory.InsertFinding(ctx, f)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*linkverify.BrokenLinkEvent
}

func (p *recordingPublisher) PublishBrokenLink(_ context.Context, e *linkverify.BrokenLinkEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

type fixture struct {
	coord   *Coordinator
	catalog *catalog.Memory
	store   *store.Memory
	tracker *progress.MemoryTracker
	prober  *countingProber
}

var fixedNow = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func newFixture(t *testing.T, trigger Trigger, mutate ...func(*Options)) *fixture {
	t.Helper()
	f := &fixture{
		catalog: catalog.NewMemory(site, "post", "page", "product", "event"),
		store:   store.NewMemory(),
		tracker: progress.NewMemoryTracker(),
		prober:  &countingProber{status: 200},
	}
	opts := Options{
		Catalog:   f.catalog,
		Store:     f.store,
		Tracker:   f.tracker,
		Validator: linkverify.NewValidator(f.catalog, f.prober),
		Trigger:   trigger,
		Now:       func() time.Time { return fixedNow },
	}
	for _, m := range mutate {
		m(&opts)
	}
	c, err := New(opts)
	require.NoError(t, err)
	f.coord = c
	return f
}

func (f *fixture) addPages(n int, content string) {
	for i := 1; i <= n; i++ {
		f.catalog.Add(catalog.Document{
			Type:        "page",
			Title:       fmt.Sprintf("Page %d", i),
			Permalink:   fmt.Sprintf("%s/page-%d/", site, i),
			Content:     content,
			PublishedAt: fixedNow.Add(time.Duration(i) * time.Minute),
		})
	}
}

func waitDone(t *testing.T, c *Coordinator, id model.ScanID) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, c.Wait(ctx, id))
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryConfig))
}

func TestCoordinator_ScanRespectsMaxPages(t *testing.T) {
	f := newFixture(t, goTrigger{})
	f.addPages(100, `<p><a href="/page-1/">ok</a> <a href="/missing/">gone</a> <a href="https://elsewhere.org/">ext</a></p>`)
	ctx := context.Background()

	id, err := f.coord.Start(ctx, model.ScanRequest{Depth: model.DepthPages, MaxPages: 10})
	require.NoError(t, err)
	waitDone(t, f.coord, id)

	rec, err := f.store.GetScan(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, rec.Status)
	assert.Equal(t, 10, rec.TotalPages)
	assert.Equal(t, 30, rec.TotalLinks)
	assert.Equal(t, 10, rec.BrokenLinks)
	require.NotNil(t, rec.CompletedAt)
	assert.Zero(t, f.prober.calls.Load(), "external links are not probed unless requested")

	rows, total, err := f.store.ListFindings(ctx, model.FindingFilter{ScanID: id})
	require.NoError(t, err)
	assert.Equal(t, 10, total)
	assert.Equal(t, site+"/missing/", rows[0].TargetURL)
	assert.Equal(t, 404, rows[0].StatusCode)
	assert.Equal(t, linkverify.MsgPageNotFound, rows[0].ErrorMessage)
	assert.Equal(t, "gone", rows[0].LinkText)

	snap, err := f.coord.Progress(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, snap.Status)
	assert.Equal(t, 10, snap.PagesScanned)
	assert.Equal(t, 10, snap.TotalPages)
	assert.Equal(t, 30, snap.LinksFound)
	assert.Equal(t, 10, snap.BrokenFound)

	_, active := f.coord.Current()
	assert.False(t, active)
}

func TestCoordinator_ExtractsNavigableLinksOnly(t *testing.T) {
	f := newFixture(t, goTrigger{})
	f.catalog.Add(catalog.Document{Type: "page", Title: "Home", Permalink: site + "/", PublishedAt: fixedNow})
	f.catalog.Add(catalog.Document{Type: "page", Title: "Internal", Permalink: site + "/internal-page/", PublishedAt: fixedNow.Add(-time.Hour)})
	f.catalog.Add(catalog.Document{
		Type:      "post",
		Title:     "Links",
		Permalink: site + "/links/",
		Content: `<a href="https://example.com/page1">1</a><a href="/internal-page">2</a>` +
			`<a href="#anchor">3</a><a href="mailto:a@b.com">4</a><a href="">5</a>` +
			`<a href="https://example.com/page2">6</a>`,
		PublishedAt: fixedNow.Add(time.Hour),
	})
	ctx := context.Background()

	id, err := f.coord.Start(ctx, model.ScanRequest{})
	require.NoError(t, err)
	waitDone(t, f.coord, id)

	rec, err := f.store.GetScan(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 3, rec.TotalPages)
	assert.Equal(t, 3, rec.TotalLinks)
	assert.Equal(t, 2, rec.BrokenLinks)

	broken, err := f.store.BrokenFindings(ctx, id)
	require.NoError(t, err)
	targets := []string{broken[0].TargetURL, broken[1].TargetURL}
	assert.ElementsMatch(t, []string{site + "/page1", site + "/page2"}, targets)
}

func TestCoordinator_DepthSelectsContentTypes(t *testing.T) {
	cases := []struct {
		depth model.Depth
		pages int
	}{
		{model.DepthPages, 1},
		{model.DepthPagesPosts, 2},
		{model.DepthAllTypes, 4},
		{model.DepthDeep, 4},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("depth_%d", tc.depth), func(t *testing.T) {
			f := newFixture(t, goTrigger{})
			for i, typ := range []string{"post", "page", "product", "event"} {
				f.catalog.Add(catalog.Document{
					Type:        typ,
					Title:       typ,
					Permalink:   fmt.Sprintf("%s/%s/", site, typ),
					PublishedAt: fixedNow.Add(time.Duration(i) * time.Hour),
				})
			}
			ctx := context.Background()
			id, err := f.coord.Start(ctx, model.ScanRequest{Depth: tc.depth})
			require.NoError(t, err)
			waitDone(t, f.coord, id)

			rec, err := f.store.GetScan(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, tc.pages, rec.TotalPages)
		})
	}
}

func TestCoordinator_SingleActiveScan(t *testing.T) {
	trig := &manualTrigger{}
	f := newFixture(t, trig)
	ctx := context.Background()

	id, err := f.coord.Start(ctx, model.ScanRequest{})
	require.NoError(t, err)
	current, ok := f.coord.Current()
	require.True(t, ok)
	assert.Equal(t, id, current)

	_, err = f.coord.Start(ctx, model.ScanRequest{})
	assert.ErrorIs(t, err, ErrScanInProgress)

	require.NoError(t, f.coord.Stop(ctx, id))
	next, err := f.coord.Start(ctx, model.ScanRequest{})
	require.NoError(t, err)
	assert.NotEqual(t, id, next)
}

func TestCoordinator_StartPublishesInitialProgress(t *testing.T) {
	f := newFixture(t, &manualTrigger{})
	ctx := context.Background()

	id, err := f.coord.Start(ctx, model.ScanRequest{})
	require.NoError(t, err)

	snap, err := f.coord.Progress(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusRunning, snap.Status)
	assert.Equal(t, progress.InitialLabel, snap.CurrentPage)
	assert.Zero(t, snap.PagesScanned)

	rec, err := f.store.GetScan(ctx, id)
	require.NoError(t, err)
	req, err := rec.Request()
	require.NoError(t, err)
	assert.Equal(t, model.DefaultDepth, req.Depth)
	assert.Equal(t, model.DefaultMaxPages, req.MaxPages)
}

func TestCoordinator_StopIsIdempotent(t *testing.T) {
	trig := &manualTrigger{}
	f := newFixture(t, trig)
	f.addPages(3, `<a href="/missing/">x</a>`)
	ctx := context.Background()

	id, err := f.coord.Start(ctx, model.ScanRequest{})
	require.NoError(t, err)

	require.NoError(t, f.coord.Stop(ctx, id))
	rec, err := f.store.GetScan(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusStopped, rec.Status)
	require.NotNil(t, rec.CompletedAt)

	_, err = f.coord.Progress(ctx, id)
	assert.ErrorIs(t, err, progress.ErrNoScanInProgress)
	_, active := f.coord.Current()
	assert.False(t, active)

	require.NoError(t, f.coord.Stop(ctx, id))

	// The scheduled run fires late and must not touch the stopped scan.
	trig.last(t)()
	rec, err = f.store.GetScan(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusStopped, rec.Status)
	assert.Zero(t, rec.TotalPages)
	_, total, err := f.store.ListFindings(ctx, model.FindingFilter{ScanID: id})
	require.NoError(t, err)
	assert.Zero(t, total)
	_, err = f.coord.Progress(ctx, id)
	assert.ErrorIs(t, err, progress.ErrNoScanInProgress)
}

func TestCoordinator_StopUnknownScan(t *testing.T) {
	f := newFixture(t, &manualTrigger{})
	err := f.coord.Stop(context.Background(), 42)
	assert.ErrorIs(t, err, store.ErrScanNotFound)
}

func TestCoordinator_DuplicateRunIsIgnored(t *testing.T) {
	trig := &manualTrigger{}
	f := newFixture(t, trig)
	f.addPages(2, `<a href="/missing/">x</a>`)
	ctx := context.Background()

	id, err := f.coord.Start(ctx, model.ScanRequest{})
	require.NoError(t, err)
	run := trig.last(t)

	var wg sync.WaitGroup
	for range 3 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			run()
		}()
	}
	wg.Wait()
	f.coord.Run(id)

	rec, err := f.store.GetScan(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, rec.Status)
	assert.Equal(t, 2, rec.BrokenLinks)
	_, total, err := f.store.ListFindings(ctx, model.FindingFilter{ScanID: id})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
}

type blockingValidator struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
	calls   atomic.Int32
}

func (b *blockingValidator) Validate(context.Context, string, linkverify.LinkClass, bool) linkverify.Result {
	b.calls.Add(1)
	b.once.Do(func() { close(b.entered) })
	<-b.release
	return linkverify.Result{IsBroken: true, StatusCode: 404, ErrorMessage: "Page not found"}
}

func TestCoordinator_StopDuringRun(t *testing.T) {
	bv := &blockingValidator{entered: make(chan struct{}), release: make(chan struct{})}
	f := newFixture(t, goTrigger{}, func(o *Options) { o.Validator = bv })
	f.addPages(5, `<a href="/missing/">x</a>`)
	ctx := context.Background()

	id, err := f.coord.Start(ctx, model.ScanRequest{})
	require.NoError(t, err)
	<-bv.entered

	require.NoError(t, f.coord.Stop(ctx, id))
	close(bv.release)
	waitDone(t, f.coord, id)

	rec, err := f.store.GetScan(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusStopped, rec.Status)
	assert.Zero(t, rec.TotalPages)
	assert.Equal(t, int32(1), bv.calls.Load(), "no further documents after stop")

	_, err = f.coord.Progress(ctx, id)
	assert.ErrorIs(t, err, progress.ErrNoScanInProgress)
}

func TestCoordinator_StartFailures(t *testing.T) {
	t.Run("store", func(t *testing.T) {
		fs := &failingStore{Memory: store.NewMemory(), createErr: stderrors.New("disk full")}
		f := newFixture(t, &manualTrigger{}, func(o *Options) { o.Store = fs })

		_, err := f.coord.Start(context.Background(), model.ScanRequest{})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrStartFailed)
		assert.Contains(t, err.Error(), "disk full")
		_, active := f.coord.Current()
		assert.False(t, active)

		fs.createErr = nil
		_, err = f.coord.Start(context.Background(), model.ScanRequest{})
		assert.NoError(t, err)
	})

	t.Run("trigger", func(t *testing.T) {
		trig := &manualTrigger{fail: stderrors.New("scheduler stopped")}
		f := newFixture(t, trig)

		_, err := f.coord.Start(context.Background(), model.ScanRequest{})
		assert.ErrorIs(t, err, ErrStartFailed)

		scans, err := f.store.ListScans(context.Background(), model.ScanFilter{})
		require.NoError(t, err)
		require.Len(t, scans, 1)
		assert.Equal(t, model.StatusStopped, scans[0].Status)
		_, active := f.coord.Current()
		assert.False(t, active)
	})
}

func TestCoordinator_ExternalProbesAndEvents(t *testing.T) {
	pub := &recordingPublisher{}
	f := newFixture(t, goTrigger{}, func(o *Options) { o.Publisher = pub })
	f.prober.status = 503
	f.addPages(1, `<a href="https://down.example.org/">down</a><a href="/page-1/">self</a>`)
	ctx := context.Background()

	id, err := f.coord.Start(ctx, model.ScanRequest{IncludeExternal: true})
	require.NoError(t, err)
	waitDone(t, f.coord, id)

	assert.Equal(t, int32(1), f.prober.calls.Load())
	broken, err := f.store.BrokenFindings(ctx, id)
	require.NoError(t, err)
	require.Len(t, broken, 1)
	assert.Equal(t, 503, broken[0].StatusCode)
	assert.Equal(t, "Whatever", broken[0].ErrorMessage)

	require.Len(t, pub.events, 1)
	ev := pub.events[0]
	assert.NotEmpty(t, ev.EventID)
	assert.Equal(t, int64(id), ev.ScanID)
	assert.Equal(t, "https://down.example.org/", ev.TargetURL)
	assert.False(t, ev.IsInternal)
	assert.Equal(t, "Page 1", ev.Title)
}

func TestCoordinator_RecoverInterrupted(t *testing.T) {
	f := newFixture(t, &manualTrigger{})
	ctx := context.Background()
	rec, err := model.NewScan(model.ScanRequest{}, fixedNow)
	require.NoError(t, err)
	leftover, err := f.store.CreateScan(ctx, rec)
	require.NoError(t, err)

	n, err := f.coord.RecoverInterrupted(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := f.store.GetScan(ctx, leftover)
	require.NoError(t, err)
	assert.Equal(t, model.StatusStopped, got.Status)
}

func TestCoordinator_Shutdown(t *testing.T) {
	f := newFixture(t, &manualTrigger{})
	ctx := context.Background()

	id, err := f.coord.Start(ctx, model.ScanRequest{})
	require.NoError(t, err)
	require.NoError(t, f.coord.Shutdown(ctx))

	rec, err := f.store.GetScan(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusStopped, rec.Status)

	_, err = f.coord.Start(ctx, model.ScanRequest{})
	assert.ErrorIs(t, err, ErrShuttingDown)
}

func TestCoordinator_ThrottleSpacesDocuments(t *testing.T) {
	f := newFixture(t, goTrigger{}, func(o *Options) { o.Throttle = 20 * time.Millisecond })
	f.addPages(4, "")
	ctx := context.Background()

	start := time.Now()
	id, err := f.coord.Start(ctx, model.ScanRequest{})
	require.NoError(t, err)
	waitDone(t, f.coord, id)

	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
}

func TestCoordinator_FindingPersistFailureDoesNotAbort(t *testing.T) {
	fs := &failingStore{Memory: store.NewMemory(), insertErr: stderrors.New("table locked")}
	f := newFixture(t, goTrigger{}, func(o *Options) { o.Store = fs })
	f.addPages(3, `<a href="/missing/">gone</a>`)
	ctx := context.Background()

	id, err := f.coord.Start(ctx, model.ScanRequest{})
	require.NoError(t, err)
	waitDone(t, f.coord, id)

	rec, err := fs.GetScan(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, rec.Status)
	assert.Equal(t, 3, rec.TotalPages)
	assert.Equal(t, 3, rec.TotalLinks)
	assert.Equal(t, 3, rec.BrokenLinks)

	_, total, err := fs.ListFindings(ctx, model.FindingFilter{ScanID: id})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestCoordinator_RunAbortsOnUnusableRecord(t *testing.T) {
	cases := map[string]func(*failingStore){
		"missing":     func(fs *failingStore) { fs.getErr = store.ErrScanNotFound },
		"undecodable": func(fs *failingStore) { fs.badConfig = true },
	}
	for name, breakStore := range cases {
		t.Run(name, func(t *testing.T) {
			fs := &failingStore{Memory: store.NewMemory()}
			trig := &manualTrigger{}
			f := newFixture(t, trig, func(o *Options) { o.Store = fs })
			f.addPages(2, `<a href="https://elsewhere.org/">ext</a>`)
			ctx := context.Background()

			id, err := f.coord.Start(ctx, model.ScanRequest{IncludeExternal: true})
			require.NoError(t, err)
			breakStore(fs)

			assert.NotPanics(t, trig.last(t))

			_, active := f.coord.Current()
			assert.False(t, active)
			assert.Zero(t, f.prober.calls.Load())
			_, total, err := fs.ListFindings(ctx, model.FindingFilter{ScanID: id})
			require.NoError(t, err)
			assert.Zero(t, total)

			fs.getErr, fs.badConfig = nil, false
			_, err = f.coord.Start(ctx, model.ScanRequest{})
			assert.NoError(t, err, "gate is released after an aborted run")
		})
	}
}

type panickingValidator struct {
	LinkValidator
	target string
}

func (p panickingValidator) Validate(ctx context.Context, url string, class linkverify.LinkClass, external bool) linkverify.Result {
	if url == p.target {
		panic("validator exploded")
	}
	return p.LinkValidator.Validate(ctx, url, class, external)
}

func TestCoordinator_PanicInOneDocumentSkipsOnlyThatDocument(t *testing.T) {
	f := newFixture(t, goTrigger{})
	f.coord.opts.Validator = panickingValidator{LinkValidator: f.coord.opts.Validator, target: site + "/boom/"}
	f.addPages(2, `<a href="/missing/">gone</a>`)
	f.catalog.Add(catalog.Document{
		Type:        "page",
		Title:       "Boom",
		Permalink:   site + "/boom-page/",
		Content:     `<a href="/boom/">boom</a><a href="/missing/">gone</a>`,
		PublishedAt: fixedNow.Add(time.Hour),
	})
	ctx := context.Background()

	id, err := f.coord.Start(ctx, model.ScanRequest{})
	require.NoError(t, err)
	waitDone(t, f.coord, id)

	rec, err := f.store.GetScan(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, rec.Status)
	assert.Equal(t, 3, rec.TotalPages)
	assert.Equal(t, 2, rec.TotalLinks)
	assert.Equal(t, 2, rec.BrokenLinks)

	rows, err := f.store.BrokenFindings(ctx, id)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, r := range rows {
		assert.NotEqual(t, site+"/boom-page/", r.SourceURL)
	}
}
