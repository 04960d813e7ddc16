package collector

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/ethereum-optimism/infra/op-testrun/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockReporter struct {
	mock.Mock
}

func (m *mockReporter) CaseStarted(tc types.TestCase) {
	m.Called(tc)
}

func (m *mockReporter) CaseOutcome(tc types.TestCase, outcome types.Outcome) {
	m.Called(tc, outcome)
}

func (m *mockReporter) CaseCaptured(record types.CaptureRecord) {
	m.Called(record)
}

// channels is a pair of redirectable file variables backed by temp files
type channels struct {
	stdout *os.File
	stderr *os.File
}

func newChannels(t *testing.T) *channels {
	t.Helper()
	dir := t.TempDir()
	out, err := os.Create(dir + "/stdout")
	require.NoError(t, err)
	errFile, err := os.Create(dir + "/stderr")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = out.Close()
		_ = errFile.Close()
	})
	return &channels{stdout: out, stderr: errFile}
}

func newTestCollector(t *testing.T, ch *channels, reporter Reporter) *Collector {
	t.Helper()
	return New(Config{
		Log:      log.NewLogger(log.DiscardHandler()),
		Reporter: reporter,
		RunID:    "test-run",
		Stdout:   &ch.stdout,
		Stderr:   &ch.stderr,
	})
}

func runCase(t *testing.T, c *Collector, ch *channels, tc types.TestCase, body func(), report func()) {
	t.Helper()
	require.NoError(t, c.OnCaseStart(tc))
	body()
	if report != nil {
		report()
	}
	require.NoError(t, c.OnCaseEnd(tc))
}

func TestCollector_CapturesOutputRoundTrip(t *testing.T) {
	ch := newChannels(t)
	c := newTestCollector(t, ch, nil)
	tc := types.NewTestCase("EchoSuite", "TestEcho")

	runCase(t, c, ch, tc, func() {
		fmt.Fprint(ch.stdout, "hello")
		fmt.Fprint(ch.stderr, "warn")
	}, nil)

	summary := c.Summary()
	require.Len(t, summary.Records, 1)
	rec := summary.Records[0]
	assert.Equal(t, "hello", rec.Output)
	assert.Equal(t, "warn", rec.ErrorOutput)
	assert.Equal(t, types.OutcomeSuccess, rec.Outcome.Kind)

	captured, ok := c.Captured(tc)
	require.True(t, ok)
	assert.Equal(t, "hello", captured.Output)
	assert.Equal(t, "warn", captured.ErrorOutput)
	assert.Equal(t, rec.Duration, captured.Duration)
}

func TestCollector_TrimsCapturedText(t *testing.T) {
	ch := newChannels(t)
	c := newTestCollector(t, ch, nil)
	tc := types.NewTestCase("EchoSuite", "TestNewlines")

	runCase(t, c, ch, tc, func() {
		fmt.Fprintln(ch.stdout, "  line one")
		fmt.Fprintln(ch.stdout, "line two  ")
	}, nil)

	assert.Equal(t, "line one\nline two", c.Summary().Records[0].Output)
}

func TestCollector_RestoresProcessChannels(t *testing.T) {
	dir := t.TempDir()
	outSentinel, err := os.Create(dir + "/stdout")
	require.NoError(t, err)
	errSentinel, err := os.Create(dir + "/stderr")
	require.NoError(t, err)

	origOut, origErr := os.Stdout, os.Stderr
	os.Stdout, os.Stderr = outSentinel, errSentinel
	t.Cleanup(func() {
		os.Stdout, os.Stderr = origOut, origErr
		_ = outSentinel.Close()
		_ = errSentinel.Close()
	})

	c := New(Config{Log: log.NewLogger(log.DiscardHandler())})
	tc := types.NewTestCase("Suite", "TestRestore")

	require.NoError(t, c.OnCaseStart(tc))
	assert.NotSame(t, outSentinel, os.Stdout)
	fmt.Println("captured")
	c.OnFailure(tc, "boom")
	require.NoError(t, c.OnCaseEnd(tc))

	assert.Same(t, outSentinel, os.Stdout)
	assert.Same(t, errSentinel, os.Stderr)
	assert.Equal(t, "captured", c.Summary().Records[0].Output)
}

func TestCollector_MixedOutcomes(t *testing.T) {
	ch := newChannels(t)
	c := newTestCollector(t, ch, nil)

	pass := types.NewTestCase("Suite", "TestPass")
	fail := types.NewTestCase("Suite", "TestFail")
	fault := types.NewTestCase("Suite", "TestFault")

	runCase(t, c, ch, pass, func() {}, func() { c.OnSuccess(pass) })
	runCase(t, c, ch, fail, func() {}, func() { c.OnFailure(fail, "expected 1, got 2") })
	runCase(t, c, ch, fault, func() {}, func() { c.OnError(fault, "") })

	summary := c.Summary()
	assert.Equal(t, 3, summary.Run)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Errored)
	assert.Equal(t, 0, summary.Skipped)
	assert.False(t, summary.WasSuccessful())

	// Empty buffers still produce records
	for _, rec := range summary.Records {
		assert.Empty(t, rec.Output)
		assert.Empty(t, rec.ErrorOutput)
		assert.True(t, rec.Finalized())
	}
}

func TestCollector_Skip(t *testing.T) {
	ch := newChannels(t)
	c := newTestCollector(t, ch, nil)
	tc := types.NewTestCase("Suite", "TestSkipped")

	runCase(t, c, ch, tc, func() {}, func() { c.OnSkip(tc, "not applicable") })

	summary := c.Summary()
	require.Len(t, summary.Records, 1)
	assert.Equal(t, types.OutcomeSkipped, summary.Records[0].Outcome.Kind)
	assert.Equal(t, "not applicable", summary.Records[0].Outcome.Reason())
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, 0, summary.Errored)
	assert.True(t, summary.WasSuccessful())
}

func TestCollector_ZeroCases(t *testing.T) {
	ch := newChannels(t)
	c := newTestCollector(t, ch, nil)

	summary := c.Summary()
	assert.Equal(t, 0, summary.Run)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, 0, summary.Errored)
	assert.Equal(t, 0, summary.Skipped)
	assert.True(t, summary.WasSuccessful())
	assert.Equal(t, "test-run", summary.RunID)
}

func TestCollector_FirstReportedOutcomeWins(t *testing.T) {
	ch := newChannels(t)
	c := newTestCollector(t, ch, nil)
	tc := types.NewTestCase("Suite", "TestDouble")

	runCase(t, c, ch, tc, func() {}, func() {
		c.OnFailure(tc, "assertion")
		c.OnError(tc, "late fault")
		c.OnSuccess(tc)
	})

	rec := c.Summary().Records[0]
	assert.Equal(t, types.OutcomeFailure, rec.Outcome.Kind)
	assert.Equal(t, "assertion", rec.Outcome.Detail)
}

func TestCollector_PreservesExecutionOrder(t *testing.T) {
	ch := newChannels(t)
	now := time.Unix(1700000000, 0)
	c := New(Config{
		Log:    log.NewLogger(log.DiscardHandler()),
		Stdout: &ch.stdout,
		Stderr: &ch.stderr,
		Clock: func() time.Time {
			now = now.Add(time.Second)
			return now
		},
	})

	names := []string{"TestZ", "TestA", "TestM"}
	for _, n := range names {
		tc := types.NewTestCase("Suite", n)
		runCase(t, c, ch, tc, func() {}, nil)
	}

	records := c.Summary().Records
	require.Len(t, records, len(names))
	for i := range records {
		assert.Equal(t, names[i], records[i].Case.Name)
		assert.Equal(t, time.Second, records[i].Duration)
		if i > 0 {
			assert.False(t, records[i].StartTime.Before(records[i-1].StartTime))
		}
	}
}

func TestCollector_LifecycleErrors(t *testing.T) {
	ch := newChannels(t)
	c := newTestCollector(t, ch, nil)
	first := types.NewTestCase("Suite", "TestFirst")
	second := types.NewTestCase("Suite", "TestSecond")

	err := c.OnCaseEnd(first)
	require.True(t, errors.Is(err, ErrCaseNotRunning))

	require.Error(t, c.OnCaseStart(types.TestCase{Container: "Suite"}))

	require.NoError(t, c.OnCaseStart(first))
	err = c.OnCaseStart(second)
	require.True(t, errors.Is(err, ErrCaseInFlight))

	running, ok := c.Running()
	require.True(t, ok)
	assert.Equal(t, first, running)

	// Reports for a case that is not running are ignored
	c.OnFailure(second, "wrong case")
	err = c.OnCaseEnd(second)
	require.True(t, errors.Is(err, ErrCaseNotRunning))

	require.NoError(t, c.OnCaseEnd(first))
	assert.Equal(t, types.OutcomeSuccess, c.Summary().Records[0].Outcome.Kind)

	err = c.OnCaseStart(second)
	require.True(t, errors.Is(err, ErrRunFinished))
}

func TestCollector_Abort(t *testing.T) {
	ch := newChannels(t)
	orig := ch.stdout
	c := newTestCollector(t, ch, nil)
	tc := types.NewTestCase("Suite", "TestAbort")

	require.NoError(t, c.OnCaseStart(tc))
	require.NoError(t, c.Abort())
	assert.Same(t, orig, ch.stdout)
	assert.Equal(t, 0, c.Summary().Run)
	require.NoError(t, c.Abort())
}

func TestCollector_ReporterEvents(t *testing.T) {
	ch := newChannels(t)
	reporter := &mockReporter{}
	c := newTestCollector(t, ch, reporter)

	quiet := types.NewTestCase("Suite", "TestQuiet")
	failing := types.NewTestCase("Suite", "TestFailing")

	reporter.On("CaseStarted", quiet).Return().Once()
	reporter.On("CaseOutcome", quiet, types.Success()).Return().Once()
	reporter.On("CaseCaptured", mock.MatchedBy(func(rec types.CaptureRecord) bool {
		return rec.Case == quiet && !rec.HasCapturedText()
	})).Return().Once()

	reporter.On("CaseStarted", failing).Return().Once()
	reporter.On("CaseOutcome", failing, types.Failure("bad")).Return().Once()
	reporter.On("CaseCaptured", mock.MatchedBy(func(rec types.CaptureRecord) bool {
		return rec.Case == failing && rec.Output == "noise"
	})).Return().Once()

	runCase(t, c, ch, quiet, func() {}, nil)
	runCase(t, c, ch, failing, func() { fmt.Fprint(ch.stdout, "noise") }, func() { c.OnFailure(failing, "bad") })

	reporter.AssertExpectations(t)
}

func TestCollector_NestedCollectors(t *testing.T) {
	ch := newChannels(t)
	orig := ch.stdout
	outer := newTestCollector(t, ch, nil)
	inner := newTestCollector(t, ch, nil)

	outerCase := types.NewTestCase("Outer", "TestRunsInner")
	innerCase := types.NewTestCase("Inner", "TestInner")

	runCase(t, outer, ch, outerCase, func() {
		fmt.Fprint(ch.stdout, "outer ")
		runCase(t, inner, ch, innerCase, func() {
			fmt.Fprint(ch.stdout, "inner")
		}, nil)
		fmt.Fprint(ch.stdout, "done")
	}, nil)

	assert.Same(t, orig, ch.stdout)
	assert.Equal(t, "inner", inner.Summary().Records[0].Output)
	assert.Equal(t, "outer done", outer.Summary().Records[0].Output)
}

// leakStdout starts a child process that inherits the captured stdout and
// outlives its case
func leakStdout(t *testing.T, stdout *os.File) {
	t.Helper()
	cmd := exec.Command("sleep", "5")
	cmd.Stdout = stdout
	require.NoError(t, cmd.Start())
	t.Cleanup(func() {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	})
}

func TestCollector_LeakedWriterIsCaseError(t *testing.T) {
	ch := newChannels(t)
	sentinel := ch.stdout
	c := New(Config{
		Log:          log.NewLogger(log.DiscardHandler()),
		RunID:        "test-run",
		Stdout:       &ch.stdout,
		Stderr:       &ch.stderr,
		DrainTimeout: 100 * time.Millisecond,
	})

	leaky := types.NewTestCase("Suite", "TestLeaks")
	failing := types.NewTestCase("Suite", "TestLeaksAndFails")
	next := types.NewTestCase("Suite", "TestNext")

	runCase(t, c, ch, leaky, func() {
		fmt.Fprint(ch.stdout, "before leak")
		leakStdout(t, ch.stdout)
	}, nil)
	assert.Same(t, sentinel, ch.stdout)

	runCase(t, c, ch, failing, func() { leakStdout(t, ch.stdout) }, func() { c.OnFailure(failing, "expected 1, got 2") })
	runCase(t, c, ch, next, func() { fmt.Fprint(ch.stdout, "still captured") }, nil)

	summary := c.Summary()
	require.Len(t, summary.Records, 3)

	leaked := summary.Records[0]
	assert.Equal(t, types.OutcomeError, leaked.Outcome.Kind)
	assert.Contains(t, leaked.Outcome.Detail, "captured output was not closed")
	assert.Equal(t, "before leak", leaked.Output)

	failed := summary.Records[1]
	assert.Equal(t, types.OutcomeFailure, failed.Outcome.Kind)
	assert.Contains(t, failed.Outcome.Detail, "expected 1, got 2")
	assert.Contains(t, failed.Outcome.Detail, "captured output was not closed")

	assert.Equal(t, types.Success(), summary.Records[2].Outcome)
	assert.Equal(t, "still captured", summary.Records[2].Output)
	assert.Equal(t, 1, summary.Errored)
	assert.Equal(t, 1, summary.Failed)
	assert.Same(t, sentinel, ch.stdout)
}
