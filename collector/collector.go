package collector

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ethereum-optimism/infra/op-testrun/capture"
	"github.com/ethereum-optimism/infra/op-testrun/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
)

var (
	// ErrCaseInFlight is returned when a case starts while another is still running
	ErrCaseInFlight = errors.New("another case is still running")
	// ErrCaseNotRunning is returned when a case ends without having started
	ErrCaseNotRunning = errors.New("case is not running")
	// ErrRunFinished is returned when a case starts after the summary was produced
	ErrRunFinished = errors.New("run already finished")
)

// Reporter receives collector events as they happen
type Reporter interface {
	CaseStarted(tc types.TestCase)
	CaseOutcome(tc types.TestCase, outcome types.Outcome)
	CaseCaptured(record types.CaptureRecord)
}

type nopReporter struct{}

func (nopReporter) CaseStarted(types.TestCase) {}

func (nopReporter) CaseOutcome(types.TestCase, types.Outcome) {}

func (nopReporter) CaseCaptured(types.CaptureRecord) {}

// Captured is what the collector stores per case identity once the case ends
type Captured struct {
	Output      string
	ErrorOutput string
	Duration    time.Duration
}

// Config holds configuration for creating a new collector
type Config struct {
	Log      log.Logger
	Reporter Reporter // Receives events; nil discards them
	RunID    string   // Generated when empty

	// Stdout and Stderr are the process-wide channels to redirect.
	// They default to &os.Stdout and &os.Stderr.
	Stdout **os.File
	Stderr **os.File

	MaxCaptureBytes int              // Per-channel cap; zero means unbounded
	DrainTimeout    time.Duration    // Wait for captured pipes to close; zero uses capture.DefaultDrainTimeout
	Clock           func() time.Time // Defaults to time.Now
}

// Collector builds one CaptureRecord per started case.
// It is not safe for concurrent use: redirection targets process-wide state,
// so only one case can be in flight at a time.
type Collector struct {
	log         log.Logger
	reporter    Reporter
	stdout      **os.File
	stderr      **os.File
	captureOpts capture.Options
	now         func() time.Time

	current  *inflight
	captured map[types.TestCase]Captured
	summary  *types.RunSummary
}

type inflight struct {
	record  *types.CaptureRecord
	guard   *capture.Guard
	outcome types.Outcome
}

// New creates a collector with an empty run summary
func New(cfg Config) *Collector {
	if cfg.Log == nil {
		cfg.Log = log.Root()
	}
	if cfg.Reporter == nil {
		cfg.Reporter = nopReporter{}
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.New().String()
	}
	if cfg.Stdout == nil {
		cfg.Stdout = &os.Stdout
	}
	if cfg.Stderr == nil {
		cfg.Stderr = &os.Stderr
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	return &Collector{
		log:         cfg.Log,
		reporter:    cfg.Reporter,
		stdout:      cfg.Stdout,
		stderr:      cfg.Stderr,
		captureOpts: capture.Options{MaxBytes: cfg.MaxCaptureBytes, DrainTimeout: cfg.DrainTimeout},
		now:         cfg.Clock,
		captured:    make(map[types.TestCase]Captured),
		summary:     types.NewRunSummary(cfg.RunID, cfg.Clock()),
	}
}

// RunID returns the identifier of the run this collector is building
func (c *Collector) RunID() string {
	return c.summary.RunID
}

// OnCaseStart records the start time and redirects stdout and stderr into
// fresh buffers until OnCaseEnd
func (c *Collector) OnCaseStart(tc types.TestCase) error {
	if c.summary.IsFinalized() {
		return fmt.Errorf("cannot start %s: %w", tc, ErrRunFinished)
	}
	if err := tc.Validate(); err != nil {
		return fmt.Errorf("invalid test case: %w", err)
	}
	if c.current != nil {
		return fmt.Errorf("cannot start %s while %s is running: %w", tc, c.current.record.Case, ErrCaseInFlight)
	}

	start := c.now()
	guard, err := capture.AcquireFiles(c.stdout, c.stderr, c.captureOpts)
	if err != nil {
		return fmt.Errorf("failed to capture output for %s: %w", tc, err)
	}

	c.current = &inflight{
		record: types.NewCaptureRecord(tc, start),
		guard:  guard,
	}
	c.log.Debug("Case started", "case", tc)
	c.reporter.CaseStarted(tc)
	return nil
}

// OnSuccess marks the running case as successful.
// The first outcome reported for a case wins; later reports are logged and ignored.
func (c *Collector) OnSuccess(tc types.TestCase) {
	c.finalize(tc, types.Success())
}

// OnFailure marks the running case as failed: an assertion did not hold.
// The first outcome reported for a case wins.
func (c *Collector) OnFailure(tc types.TestCase, details string) {
	c.finalize(tc, types.Failure(details))
}

// OnError marks the running case as errored: an unexpected fault occurred.
// The first outcome reported for a case wins.
func (c *Collector) OnError(tc types.TestCase, details string) {
	c.finalize(tc, types.Error(details))
}

// OnSkip marks the running case as skipped, keeping the reason verbatim.
// The first outcome reported for a case wins.
func (c *Collector) OnSkip(tc types.TestCase, reason string) {
	c.finalize(tc, types.Skipped(reason))
}

// finalize assigns the terminal outcome of the in-flight case
func (c *Collector) finalize(tc types.TestCase, outcome types.Outcome) {
	if c.current == nil || c.current.record.Case != tc {
		c.log.Warn("Outcome reported for a case that is not running", "case", tc, "outcome", outcome.Kind)
		return
	}
	if !c.current.outcome.IsZero() {
		c.log.Warn("Ignoring repeated outcome report", "case", tc,
			"kept", c.current.outcome.Kind, "ignored", outcome.Kind)
		return
	}
	c.current.outcome = outcome
	c.reporter.CaseOutcome(tc, outcome)
}

// OnCaseEnd restores the output channels and appends the finalized record to
// the run summary. A case with no reported outcome is a success.
// A case that leaves a writer holding a captured pipe open is finalized as an
// error with the output drained so far.
// An error means the channels could not be restored; the run must not continue.
func (c *Collector) OnCaseEnd(tc types.TestCase) error {
	if c.current == nil || c.current.record.Case != tc {
		return fmt.Errorf("cannot end %s: %w", tc, ErrCaseNotRunning)
	}
	current := c.current
	c.current = nil

	record := current.record
	record.Duration = c.now().Sub(record.StartTime)

	var undrained error
	if err := current.guard.Release(); err != nil {
		if !capture.IsDrainTimeout(err) {
			return fmt.Errorf("failed to restore output channels after %s: %w", tc, err)
		}
		c.log.Warn("Captured output was not closed by the case", "case", tc, "err", err)
		undrained = err
	}
	record.Output = current.guard.Stdout()
	record.ErrorOutput = current.guard.Stderr()
	if current.guard.Truncated() {
		c.log.Warn("Captured output was truncated", "case", tc, "limit", c.captureOpts.MaxBytes)
	}

	outcome := current.outcome
	reported := !outcome.IsZero()
	if !reported {
		outcome = types.Success()
	}
	if undrained != nil {
		outcome = undrainedOutcome(outcome, undrained)
	}
	if !reported {
		c.reporter.CaseOutcome(tc, outcome)
	}
	if err := record.Finalize(outcome); err != nil {
		return fmt.Errorf("failed to finalize %s: %w", tc, err)
	}

	c.captured[tc] = Captured{
		Output:      record.Output,
		ErrorOutput: record.ErrorOutput,
		Duration:    record.Duration,
	}
	if err := c.summary.Add(record); err != nil {
		return fmt.Errorf("failed to record %s: %w", tc, err)
	}

	c.log.Debug("Case finished", "case", tc, "outcome", outcome.Kind, "duration", record.Duration)
	c.reporter.CaseCaptured(*record)
	return nil
}

// undrainedOutcome turns the outcome of a case whose output pipes stayed open
// into an error. A failure keeps its kind and gains the note.
func undrainedOutcome(outcome types.Outcome, err error) types.Outcome {
	note := fmt.Sprintf("captured output was not closed: %v", err)
	if outcome.Detail != "" && (outcome.Kind == types.OutcomeFailure || outcome.Kind == types.OutcomeError) {
		note = outcome.Detail + "\n" + note
	}
	if outcome.Kind == types.OutcomeFailure {
		return types.Failure(note)
	}
	return types.Error(note)
}

// Abort releases the capture of the running case without recording it.
// It is only meant for fatal paths where the run is being torn down.
func (c *Collector) Abort() error {
	if c.current == nil {
		return nil
	}
	current := c.current
	c.current = nil
	c.log.Warn("Aborting running case", "case", current.record.Case)
	return current.guard.Release()
}

// Running returns the case currently in flight, if any
func (c *Collector) Running() (types.TestCase, bool) {
	if c.current == nil {
		return types.TestCase{}, false
	}
	return c.current.record.Case, true
}

// Captured returns the text and duration stored for a finished case.
// For a case that ran more than once, the last run is returned.
func (c *Collector) Captured(tc types.TestCase) (Captured, bool) {
	captured, ok := c.captured[tc]
	return captured, ok
}

// Summary finalizes and returns the run summary.
// Only finished cases are included.
func (c *Collector) Summary() *types.RunSummary {
	if c.current != nil {
		c.log.Warn("Producing summary while a case is still running", "case", c.current.record.Case)
	}
	c.summary.Finalize(c.now())
	return c.summary
}
