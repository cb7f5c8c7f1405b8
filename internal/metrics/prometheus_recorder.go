package metrics

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "linkscan"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	scanDuration    *prom.HistogramVec
	scanOutcomes    *prom.CounterVec
	pagesScanned    prom.Counter
	linksChecked    *prom.CounterVec
	brokenLinks     *prom.CounterVec
	probeDuration   *prom.HistogramVec
	persistFailures prom.Counter
	publishFailures prom.Counter
}

// NewPrometheusRecorder constructs the scan metrics and registers them on reg.
// A nil reg gets a private registry.
func NewPrometheusRecorder(reg prom.Registerer) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		scanDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "scan_duration_seconds",
			Help:      "Wall time of scans by outcome",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}, []string{"outcome"}),
		scanOutcomes: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "scan_outcomes_total",
			Help:      "Scans by final status",
		}, []string{"outcome"}),
		pagesScanned: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "pages_scanned_total",
			Help:      "Documents processed across all scans",
		}),
		linksChecked: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "links_checked_total",
			Help:      "Links validated by classification",
		}, []string{"class"}),
		brokenLinks: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "broken_links_total",
			Help:      "Broken links found by classification",
		}, []string{"class"}),
		probeDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "probe_duration_seconds",
			Help:      "Duration of external link probes",
			Buckets:   prom.DefBuckets,
		}, []string{"result"}),
		persistFailures: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "finding_persist_failures_total",
			Help:      "Findings that could not be written to the store",
		}),
		publishFailures: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "event_publish_failures_total",
			Help:      "Broken link events that could not be published",
		}),
	}
	reg.MustRegister(pr.scanDuration, pr.scanOutcomes, pr.pagesScanned, pr.linksChecked,
		pr.brokenLinks, pr.probeDuration, pr.persistFailures, pr.publishFailures)
	return pr
}

func (p *PrometheusRecorder) ObserveScanDuration(outcome ScanOutcome, d time.Duration) {
	if p == nil {
		return
	}
	p.scanDuration.WithLabelValues(string(outcome)).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncScanOutcome(outcome ScanOutcome) {
	if p == nil {
		return
	}
	p.scanOutcomes.WithLabelValues(string(outcome)).Inc()
}

func (p *PrometheusRecorder) AddPagesScanned(n int) {
	if p == nil || n <= 0 {
		return
	}
	p.pagesScanned.Add(float64(n))
}

func (p *PrometheusRecorder) IncLinksChecked(class string) {
	if p == nil {
		return
	}
	p.linksChecked.WithLabelValues(class).Inc()
}

func (p *PrometheusRecorder) IncBrokenLinks(class string) {
	if p == nil {
		return
	}
	p.brokenLinks.WithLabelValues(class).Inc()
}

func (p *PrometheusRecorder) ObserveProbeDuration(result ProbeResult, d time.Duration) {
	if p == nil {
		return
	}
	p.probeDuration.WithLabelValues(string(result)).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncFindingPersistFailure() {
	if p == nil {
		return
	}
	p.persistFailures.Inc()
}

func (p *PrometheusRecorder) IncEventPublishFailure() {
	if p == nil {
		return
	}
	p.publishFailures.Inc()
}
