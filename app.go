package testrun

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/ethereum-optimism/infra/op-testrun/collector"
	"github.com/ethereum-optimism/infra/op-testrun/logging"
	"github.com/ethereum-optimism/infra/op-testrun/metrics"
	"github.com/ethereum-optimism/infra/op-testrun/reporting"
	"github.com/ethereum-optimism/infra/op-testrun/runner"
	"github.com/ethereum-optimism/infra/op-testrun/service"
	"github.com/ethereum-optimism/infra/op-testrun/testlist"
	"github.com/ethereum-optimism/infra/op-testrun/types"
	"github.com/ethereum-optimism/optimism/op-service/cliapp"
)

const tableTitle = "Test Run Results"

// testRun implements the cliapp.Lifecycle interface.
var _ cliapp.Lifecycle = &testRun{}

// testRun discovers the configured cases, runs them once under a collector
// and reports the result.
type testRun struct {
	config   *Config
	version  string
	console  io.Writer
	executor *runner.GoTestExecutor
	service  *service.Service
	metrics  MetricsReporter
	summary  *types.RunSummary

	running atomic.Bool

	shutdownCallback func(error) // Callback to signal application shutdown
}

// New creates the application. The console is the process stdout as it is
// now, before any case redirects it.
func New(ctx context.Context, config *Config, version string, shutdownCallback func(error)) (*testRun, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}
	if err := config.Check(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if shutdownCallback == nil {
		shutdownCallback = func(error) {}
	}

	executor, err := runner.NewGoTestExecutor(runner.ExecutorConfig{
		Log:      config.Log,
		TestDir:  config.TestDir,
		GoBinary: config.GoBinary,
		Timeout:  config.Timeout,
		Env:      config.TestEnv,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create test executor: %w", err)
	}

	config.Log.Debug("Creating test run",
		"testDir", config.TestDir,
		"packages", config.Packages,
		"cases", config.CaseFile,
		"verbosity", config.Verbosity,
		"logDir", config.LogDir)

	return &testRun{
		config:           config,
		version:          version,
		console:          os.Stdout,
		executor:         executor,
		service:          service.New(config.Log, config.Service),
		metrics:          NewDefaultMetricsReporter(),
		shutdownCallback: shutdownCallback,
	}, nil
}

// Start runs the cases once. A run with failures or errors returns a
// TestFailureError, a run that could not complete returns a RuntimeError.
// Start implements the cliapp.Lifecycle interface.
func (a *testRun) Start(ctx context.Context) error {
	a.running.Store(true)
	a.config.Log.Info("Starting op-testrun", "version", a.version)

	if err := a.service.Start(); err != nil {
		return NewRuntimeError(err)
	}

	summary, err := a.Run(ctx)
	if err != nil {
		a.config.Log.Error("Runtime error running tests", "error", err)
		metrics.RecordErrorDetails("run", err)
		return NewRuntimeError(err)
	}

	if !summary.WasSuccessful() {
		a.config.Log.Warn("Test run completed with failures, returning exit code 1")
		return NewTestFailureError(summary)
	}

	a.config.Log.Info("Tests completed, exiting")
	go func() {
		a.shutdownCallback(nil)
	}()
	return nil
}

// Stop implements the cliapp.Lifecycle interface.
func (a *testRun) Stop(ctx context.Context) error {
	a.config.Log.Info("Stopping op-testrun")
	if !a.running.Swap(false) {
		a.config.Log.Debug("Service already stopped, nothing to do")
		return nil
	}
	return a.service.Shutdown(ctx)
}

// Stopped implements the cliapp.Lifecycle interface.
func (a *testRun) Stopped() bool {
	return !a.running.Load()
}

// Summary returns the summary of the last completed run
func (a *testRun) Summary() *types.RunSummary {
	return a.summary
}

// Run executes every configured case under a fresh collector and prints the summary
func (a *testRun) Run(ctx context.Context) (*types.RunSummary, error) {
	testCases, err := a.discover()
	if err != nil {
		return nil, fmt.Errorf("failed to discover tests: %w", err)
	}
	runID := uuid.New().String()
	a.config.Log.Info("Running tests", "run_id", runID, "cases", len(testCases))

	var files *logging.FileLogger
	if a.config.LogDir != "" {
		if files, err = logging.NewFileLogger(a.config.LogDir, runID); err != nil {
			return nil, fmt.Errorf("failed to create file logger: %w", err)
		}
	}

	presenter := reporting.NewPresenter(a.console, a.config.Log, a.config.Verbosity, a.config.Colors)
	coll := collector.New(collector.Config{
		Log:      a.config.Log,
		RunID:    runID,
		Reporter: &caseReporter{log: a.config.Log, presenter: presenter, files: files},

		MaxCaptureBytes: a.config.MaxCaptureBytes,
		DrainTimeout:    a.config.CaptureDrainTimeout,
	})
	r, err := runner.New(runner.Config{Log: a.config.Log, Hooks: coll})
	if err != nil {
		return nil, err
	}

	cases := make([]runner.Case, 0, len(testCases))
	for _, tc := range testCases {
		cases = append(cases, a.executor.Case(tc.Container, tc.Name))
	}

	if err := r.Run(ctx, cases); err != nil {
		return nil, errors.Join(fmt.Errorf("test run aborted: %w", err), coll.Abort())
	}

	summary := coll.Summary()
	a.summary = summary
	presenter.PrintSummary(summary)
	if a.config.SummaryTable {
		if err := reporting.NewTableReporter(tableTitle, a.config.Colors).Print(a.console, summary); err != nil {
			a.config.Log.Warn("Failed to print results table", "err", err)
		}
	}
	if files != nil {
		a.writeRunLogs(files, summary)
	}
	a.metrics.ReportResults(summary)

	a.config.Log.Info("Test run completed", "run_id", runID, "summary", summary)
	return summary, nil
}

func (a *testRun) discover() ([]types.TestCase, error) {
	if a.config.CaseFile != "" {
		cf, err := testlist.LoadCaseFile(a.config.CaseFile)
		if err != nil {
			return nil, err
		}
		return cf.Resolve(a.config.TestDir)
	}
	return testlist.Discover(a.config.TestDir, a.config.Packages)
}

// writeRunLogs stores the plain text summary and table, then completes the sinks
func (a *testRun) writeRunLogs(files *logging.FileLogger, summary *types.RunSummary) {
	var buf bytes.Buffer
	reporting.NewPresenter(&buf, a.config.Log, reporting.VerbosityQuiet, false).PrintSummary(summary)
	buf.WriteString(reporting.NewTableReporter(tableTitle, false).Generate(summary))
	buf.WriteString("\n")

	if err := files.LogSummary(buf.String()); err != nil {
		a.config.Log.Error("Failed to write summary log", "err", err)
	}
	if err := files.Complete(summary); err != nil {
		a.config.Log.Error("Failed to complete run logs", "err", err)
		metrics.RecordErrorDetails("run_logs", err)
		return
	}
	a.config.Log.Info("Run logs written", "dir", files.Dir())
}
