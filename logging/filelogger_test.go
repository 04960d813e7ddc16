package logging

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum-optimism/infra/op-testrun/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func finalized(t *testing.T, tc types.TestCase, outcome types.Outcome, stdout, stderr string) *types.CaptureRecord {
	t.Helper()
	rec := types.NewCaptureRecord(tc, time.Unix(1700000000, 0).UTC())
	rec.Output = stdout
	rec.ErrorOutput = stderr
	rec.Duration = 250 * time.Millisecond
	require.NoError(t, rec.Finalize(outcome))
	return rec
}

func TestNewFileLogger(t *testing.T) {
	tmpDir := t.TempDir()

	_, err := NewFileLogger(tmpDir, "")
	require.EqualError(t, err, "runID cannot be empty")
	_, err = NewFileLogger("", "run")
	require.EqualError(t, err, "baseDir cannot be empty")

	logger, err := NewFileLogger(tmpDir, "abc")
	require.NoError(t, err)

	assert.Equal(t, "abc", logger.RunID())
	assert.Equal(t, filepath.Join(tmpDir, "testrun-abc"), logger.Dir())
	assert.DirExists(t, logger.PassedDir())
	assert.DirExists(t, logger.FailedDir())
}

func TestFileLogger_WritesRun(t *testing.T) {
	tmpDir := t.TempDir()
	logger, err := NewFileLogger(tmpDir, "run-1")
	require.NoError(t, err)

	pass := finalized(t, types.NewTestCase("./calc", "TestAdd"), types.Success(), "hello", "")
	fail := finalized(t, types.NewTestCase("./calc", "TestSub"), types.Failure("expected 3, got 4"), "", "\x1b[31mwarn\x1b[0m")
	skip := finalized(t, types.NewTestCase("", "TestLonely"), types.Skipped("not applicable"), "", "")

	summary := types.NewRunSummary("run-1", time.Unix(1700000000, 0))
	for _, rec := range []*types.CaptureRecord{pass, fail, skip} {
		require.NoError(t, logger.LogRecord(rec))
		require.NoError(t, summary.Add(rec))
	}
	summary.Finalize(time.Unix(1700000001, 0))

	require.NoError(t, logger.LogSummary("\x1b[32mOK\x1b[0m\n"))
	require.NoError(t, logger.Complete(summary))

	// per-case files
	passed, err := os.ReadFile(filepath.Join(logger.PassedDir(), "calc_TestAdd.log"))
	require.NoError(t, err)
	assert.Contains(t, string(passed), "Case:     ./calc.TestAdd")
	assert.Contains(t, string(passed), "STDOUT:\n~~~~~~~\n  hello")

	failed, err := os.ReadFile(filepath.Join(logger.FailedDir(), "calc_TestSub.log"))
	require.NoError(t, err)
	assert.Contains(t, string(failed), "DETAIL:\n~~~~~~~\nexpected 3, got 4")
	assert.Contains(t, string(failed), "STDERR:\n~~~~~~~\n  warn\n")
	assert.NotContains(t, string(failed), "\x1b[")

	skipped, err := os.ReadFile(filepath.Join(logger.PassedDir(), "TestLonely.log"))
	require.NoError(t, err)
	assert.Contains(t, string(skipped), "SKIP REASON:")
	assert.Contains(t, string(skipped), "No output captured.")

	// all.log keeps execution order
	all, err := os.ReadFile(logger.AllLogsFile())
	require.NoError(t, err)
	assert.Regexp(t, `(?s)CASE: ./calc.TestAdd.*CASE: ./calc.TestSub.*CASE: TestLonely`, string(all))

	// summary.log has no color codes
	summaryLog, err := os.ReadFile(logger.SummaryFile())
	require.NoError(t, err)
	assert.Equal(t, "OK\n", string(summaryLog))

	// records.json round-trips the summary
	data, err := os.ReadFile(logger.RecordsFile())
	require.NoError(t, err)
	var decoded types.RunSummary
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "run-1", decoded.RunID)
	assert.Equal(t, 3, decoded.Run)
	assert.Equal(t, 1, decoded.Failed)
	assert.Equal(t, 1, decoded.Skipped)
	require.Len(t, decoded.Records, 3)
	assert.Equal(t, types.Failure("expected 3, got 4"), decoded.Records[1].Outcome)
}

func TestFileLogger_Errors(t *testing.T) {
	logger, err := NewFileLogger(t.TempDir(), "run")
	require.NoError(t, err)

	require.Error(t, logger.LogRecord(nil))
	require.Error(t, logger.Complete(nil))
}

type recordingSink struct {
	consumed  []string
	completed *types.RunSummary
	err       error
}

func (s *recordingSink) Consume(record *types.CaptureRecord, runID string) error {
	s.consumed = append(s.consumed, runID+"/"+record.Case.QualifiedName())
	return s.err
}

func (s *recordingSink) Complete(summary *types.RunSummary) error {
	s.completed = summary
	return s.err
}

func TestFileLogger_Sinks(t *testing.T) {
	logger, err := NewFileLogger(t.TempDir(), "run")
	require.NoError(t, err)
	require.Len(t, logger.sinks, 3)

	sink := &recordingSink{}
	logger.addSink(sink)

	rec := finalized(t, types.NewTestCase("./calc", "TestAdd"), types.Success(), "", "")
	require.NoError(t, logger.LogRecord(rec))
	summary := types.NewRunSummary("run", time.Unix(1700000000, 0))
	require.NoError(t, logger.Complete(summary))

	assert.Equal(t, []string{"run/./calc.TestAdd"}, sink.consumed)
	assert.Same(t, summary, sink.completed)
	assert.FileExists(t, logger.RecordsFile(), "default sinks still run")

	failing, err := NewFileLogger(t.TempDir(), "run")
	require.NoError(t, err)
	failing.addSink(&recordingSink{err: errors.New("disk full")})
	require.ErrorContains(t, failing.LogRecord(rec), "disk full")
	require.ErrorContains(t, failing.Complete(summary), "disk full")
}

func TestPerCaseFileSink_FirstRecordWins(t *testing.T) {
	logger, err := NewFileLogger(t.TempDir(), "run")
	require.NoError(t, err)

	tc := types.NewTestCase("./calc", "TestAdd")
	require.NoError(t, logger.LogRecord(finalized(t, tc, types.Success(), "first", "")))
	require.NoError(t, logger.LogRecord(finalized(t, tc, types.Success(), "second", "")))

	content, err := os.ReadFile(filepath.Join(logger.PassedDir(), "calc_TestAdd.log"))
	require.NoError(t, err)
	assert.Contains(t, string(content), "first")
	assert.NotContains(t, string(content), "second")
}

func TestCaseFilename(t *testing.T) {
	tests := []struct {
		tc       types.TestCase
		expected string
	}{
		{types.NewTestCase("github.com/org/repo/calc", "TestAdd"), "calc_TestAdd"},
		{types.NewTestCase("./calc/", "TestAdd"), "calc_TestAdd"},
		{types.NewTestCase(".", "TestAdd"), "TestAdd"},
		{types.NewTestCase("", "TestAdd"), "TestAdd"},
		{types.NewTestCase("MathSuite", "test add:1"), "MathSuite_test_add_1"},
	}
	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, caseFilename(tt.tc))
		})
	}
}

func TestAsyncFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	af, err := NewAsyncFile(path)
	require.NoError(t, err)

	require.NoError(t, af.Write([]byte("a")))
	require.NoError(t, af.Write([]byte("b")))
	require.NoError(t, af.Close())
	require.Error(t, af.Write([]byte("c")))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "ab", string(content))
}
