package metrics

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ethereum-optimism/infra/op-testrun/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	MetricsNamespace = "testrun"
)

var (
	Debug                bool = true
	nonAlphanumericRegex      = regexp.MustCompile(`[^a-zA-Z ]+`)

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	casesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "cases_total",
		Help:      "Count of finished test cases",
	}, []string{
		"container",
		"result",
	})

	caseDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: MetricsNamespace,
		Name:      "case_duration_seconds",
		Help:      "Duration of test cases",
		Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
	}, []string{
		"result",
	})

	capturedBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "captured_bytes_total",
		Help:      "Bytes of captured output",
	}, []string{
		"channel",
	})

	runResults = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_results",
		Help:      "Result of test runs",
	}, []string{
		"run_id",
		"result",
	})

	runCases = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_cases",
		Help:      "Number of cases of a run by outcome",
	}, []string{
		"run_id",
		"outcome",
	})

	runDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_duration_seconds",
		Help:      "Duration of test runs",
	}, []string{
		"run_id",
	})
)

// errToLabel tries to make the error string a more valid Prometheus label
func errToLabel(err error) string {
	if err == nil {
		return "nil"
	}
	errClean := nonAlphanumericRegex.ReplaceAllString(err.Error(), "")
	errClean = strings.ReplaceAll(errClean, " ", "_")
	errClean = strings.ReplaceAll(errClean, "__", "_")
	return errClean
}

func RecordError(error string) {
	if Debug {
		log.Debug("metric inc",
			"m", "errors_total",
			"error", error,
		)
	}
	errorsTotal.WithLabelValues(error).Inc()
}

// RecordErrorDetails concats the error message to the label
// and also tries to clean the label to be a valid Prometheus label
func RecordErrorDetails(label string, err error) {
	if err == nil {
		return
	}
	label = fmt.Sprintf("%s.%s", label, errToLabel(err))
	RecordError(label)
}

// RecordCase records a finalized capture record
func RecordCase(record types.CaptureRecord) {
	if !record.Outcome.Kind.Valid() {
		log.Error("RecordCase - invalid outcome", "case", record.Case, "outcome", record.Outcome.Kind)
		return
	}
	result := string(record.Outcome.Kind)
	if Debug {
		log.Debug("metric inc",
			"m", "cases_total",
			"container", record.Case.Container,
			"case", record.Case.Name,
			"result", result)
	}
	casesTotal.WithLabelValues(record.Case.Container, result).Inc()
	caseDuration.WithLabelValues(result).Observe(record.Duration.Seconds())
	capturedBytes.WithLabelValues("stdout").Add(float64(len(record.Output)))
	capturedBytes.WithLabelValues("stderr").Add(float64(len(record.ErrorOutput)))
}

// RecordRun records the final counts of a run
func RecordRun(runID string, result string, passed, failed, errored, skipped int, duration time.Duration) {
	runResults.WithLabelValues(runID, result).Set(1)
	runCases.WithLabelValues(runID, string(types.OutcomeSuccess)).Set(float64(passed))
	runCases.WithLabelValues(runID, string(types.OutcomeFailure)).Set(float64(failed))
	runCases.WithLabelValues(runID, string(types.OutcomeError)).Set(float64(errored))
	runCases.WithLabelValues(runID, string(types.OutcomeSkipped)).Set(float64(skipped))
	runDuration.WithLabelValues(runID).Set(duration.Seconds())
}
