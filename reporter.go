package testrun

import (
	"github.com/ethereum-optimism/infra/op-testrun/collector"
	"github.com/ethereum-optimism/infra/op-testrun/logging"
	"github.com/ethereum-optimism/infra/op-testrun/metrics"
	"github.com/ethereum-optimism/infra/op-testrun/reporting"
	"github.com/ethereum-optimism/infra/op-testrun/types"
	"github.com/ethereum/go-ethereum/log"
)

// MetricsReporter is responsible for reporting metrics from run summaries.
type MetricsReporter interface {
	ReportResults(summary *types.RunSummary)
}

// DefaultMetricsReporter implements the MetricsReporter interface.
type DefaultMetricsReporter struct{}

// NewDefaultMetricsReporter creates a new DefaultMetricsReporter.
func NewDefaultMetricsReporter() *DefaultMetricsReporter {
	return &DefaultMetricsReporter{}
}

// ReportResults reports the run counts to metrics systems.
func (r *DefaultMetricsReporter) ReportResults(summary *types.RunSummary) {
	metrics.RecordRun(
		summary.RunID,
		runResult(summary),
		summary.Passed(),
		summary.Failed,
		summary.Errored,
		summary.Skipped,
		summary.Duration,
	)
}

func runResult(summary *types.RunSummary) string {
	if summary.WasSuccessful() {
		return "pass"
	}
	return "fail"
}

var _ collector.Reporter = (*caseReporter)(nil)

// caseReporter fans collector events out to the console, the per-run log
// files and the case metrics. Log file failures are logged, never fatal.
type caseReporter struct {
	log       log.Logger
	presenter *reporting.Presenter
	files     *logging.FileLogger
}

func (r *caseReporter) CaseStarted(tc types.TestCase) {
	r.presenter.CaseStarted(tc)
}

func (r *caseReporter) CaseOutcome(tc types.TestCase, outcome types.Outcome) {
	r.presenter.CaseOutcome(tc, outcome)
}

func (r *caseReporter) CaseCaptured(record types.CaptureRecord) {
	r.presenter.CaseCaptured(record)
	metrics.RecordCase(record)
	if r.files == nil {
		return
	}
	if err := r.files.LogRecord(&record); err != nil {
		r.log.Error("Failed to write case log", "case", record.Case, "err", err)
		metrics.RecordErrorDetails("case_log", err)
	}
}
