package metrics

import "time"

// ScanOutcome enumerates how a scan ended.
type ScanOutcome string

const (
	OutcomeCompleted ScanOutcome = "completed"
	OutcomeStopped   ScanOutcome = "stopped"
	OutcomeFailed    ScanOutcome = "failed"
)

// ProbeResult enumerates external probe outcomes.
type ProbeResult string

const (
	ProbeOK        ProbeResult = "ok"
	ProbeBroken    ProbeResult = "broken"
	ProbeTransport ProbeResult = "transport_error"
)

// Recorder defines observability hooks for scans and link probes. Implementations
// may forward to Prometheus, OpenTelemetry, etc.
type Recorder interface {
	ObserveScanDuration(outcome ScanOutcome, d time.Duration)
	IncScanOutcome(outcome ScanOutcome)
	AddPagesScanned(n int)
	IncLinksChecked(class string)
	IncBrokenLinks(class string)
	ObserveProbeDuration(result ProbeResult, d time.Duration)
	IncFindingPersistFailure()
	IncEventPublishFailure()
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveScanDuration(ScanOutcome, time.Duration)  {}
func (NoopRecorder) IncScanOutcome(ScanOutcome)                      {}
func (NoopRecorder) AddPagesScanned(int)                             {}
func (NoopRecorder) IncLinksChecked(string)                          {}
func (NoopRecorder) IncBrokenLinks(string)                           {}
func (NoopRecorder) ObserveProbeDuration(ProbeResult, time.Duration) {}
func (NoopRecorder) IncFindingPersistFailure()                       {}
func (NoopRecorder) IncEventPublishFailure()                         {}
