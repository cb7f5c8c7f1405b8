package linkverify

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"git.home.luguber.info/inful/linkscan/internal/catalog"
	"git.home.luguber.info/inful/linkscan/internal/logfields"
	"git.home.luguber.info/inful/linkscan/internal/metrics"
)

// MsgPageNotFound is recorded for internal links with no published target.
const MsgPageNotFound = "Page not found"

// DocumentIndex is the part of the catalog used to check internal links.
type DocumentIndex interface {
	Lookup(ctx context.Context, rawURL string) (catalog.DocID, bool, error)
	Status(ctx context.Context, id catalog.DocID) (catalog.Status, error)
}

// Result is the verdict for one link. StatusCode 0 with IsBroken set means
// the probe failed below HTTP.
type Result struct {
	IsBroken     bool
	StatusCode   int
	ErrorMessage string
}

// Validator decides whether a classified link is broken.
type Validator struct {
	index    DocumentIndex
	prober   Prober
	recorder metrics.Recorder
}

// ValidatorOption customizes a Validator.
type ValidatorOption func(*Validator)

// WithRecorder sets the metrics recorder for probe timings.
func WithRecorder(r metrics.Recorder) ValidatorOption {
	return func(v *Validator) {
		if r != nil {
			v.recorder = r
		}
	}
}

// NewValidator creates a validator over a document index and an external prober.
func NewValidator(index DocumentIndex, prober Prober, opts ...ValidatorOption) *Validator {
	v := &Validator{index: index, prober: prober, recorder: metrics.NoopRecorder{}}
	for _, o := range opts {
		o(v)
	}
	return v
}

// Validate checks one link. Internal links are resolved against the catalog
// only. External links are probed over the network when includeExternal is
// set, and reported healthy without a probe otherwise.
func (v *Validator) Validate(ctx context.Context, rawURL string, class LinkClass, includeExternal bool) Result {
	if class == Internal {
		return v.validateInternal(ctx, rawURL)
	}
	if !includeExternal {
		return Result{}
	}
	return v.validateExternal(ctx, rawURL)
}

func (v *Validator) validateInternal(ctx context.Context, rawURL string) Result {
	notFound := Result{IsBroken: true, StatusCode: http.StatusNotFound, ErrorMessage: MsgPageNotFound}

	id, ok, err := v.index.Lookup(ctx, rawURL)
	if err != nil {
		slog.Debug("Catalog lookup failed", logfields.URL(rawURL), logfields.Error(err))
		return notFound
	}
	if !ok {
		return notFound
	}
	status, err := v.index.Status(ctx, id)
	if err != nil || status != catalog.StatusPublished {
		return notFound
	}
	return Result{}
}

func (v *Validator) validateExternal(ctx context.Context, rawURL string) Result {
	start := time.Now()
	resp, err := v.prober.Probe(ctx, rawURL)
	if err != nil {
		v.recorder.ObserveProbeDuration(metrics.ProbeTransport, time.Since(start))
		return Result{IsBroken: true, StatusCode: 0, ErrorMessage: err.Error()}
	}
	if resp.StatusCode >= 400 {
		v.recorder.ObserveProbeDuration(metrics.ProbeBroken, time.Since(start))
		return Result{IsBroken: true, StatusCode: resp.StatusCode, ErrorMessage: statusMessage(resp)}
	}
	v.recorder.ObserveProbeDuration(metrics.ProbeOK, time.Since(start))
	return Result{StatusCode: resp.StatusCode}
}

// statusMessage returns the reason phrase the server sent, falling back to
// the standard text for the code.
func statusMessage(resp ProbeResponse) string {
	msg := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	if msg != "" {
		return msg
	}
	if msg = http.StatusText(resp.StatusCode); msg != "" {
		return msg
	}
	return "HTTP " + strconv.Itoa(resp.StatusCode)
}
