package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prom.NewRegistry()
	pr := NewPrometheusRecorder(reg)

	pr.ObserveScanDuration(OutcomeCompleted, 2*time.Second)
	pr.IncScanOutcome(OutcomeCompleted)
	pr.AddPagesScanned(3)
	pr.IncLinksChecked("internal")
	pr.IncLinksChecked("external")
	pr.IncBrokenLinks("external")
	pr.ObserveProbeDuration(ProbeBroken, 120*time.Millisecond)
	pr.IncFindingPersistFailure()

	assert.InDelta(t, 3, testutil.ToFloat64(pr.pagesScanned), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(pr.brokenLinks.WithLabelValues("external")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(pr.scanOutcomes.WithLabelValues("completed")), 0)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, mfs)
}

func TestNilPrometheusRecorderIsSafe(t *testing.T) {
	var pr *PrometheusRecorder
	pr.IncScanOutcome(OutcomeStopped)
	pr.AddPagesScanned(1)
	pr.IncEventPublishFailure()
}

func TestHTTPHandler(t *testing.T) {
	reg := prom.NewRegistry()
	NewPrometheusRecorder(reg).IncScanOutcome(OutcomeStopped)

	srv := httptest.NewServer(HTTPHandler(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "linkscan_scan_outcomes_total")
}

var _ Recorder = NoopRecorder{}
var _ Recorder = (*PrometheusRecorder)(nil)
