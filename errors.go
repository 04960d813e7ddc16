package testrun

import (
	"errors"
	"fmt"

	"github.com/ethereum-optimism/infra/op-testrun/types"
)

// RuntimeError means the run itself could not be carried out: bad
// configuration, discovery failures or collector bookkeeping faults.
// It maps to exit code 2.
type RuntimeError struct {
	Err error
}

// NewRuntimeError wraps err
func NewRuntimeError(err error) *RuntimeError {
	return &RuntimeError{Err: err}
}

func (e *RuntimeError) Error() string {
	return "runtime error: " + e.Err.Error()
}

func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// IsRuntimeError reports whether err or anything it wraps is a RuntimeError
func IsRuntimeError(err error) bool {
	var target *RuntimeError
	return errors.As(err, &target)
}

// TestFailureError reports a completed run in which cases failed or errored.
// It maps to exit code 1.
type TestFailureError struct {
	RunID   string
	Run     int
	Failed  int
	Errored int
	Skipped int
}

// NewTestFailureError captures the counts of a finished run
func NewTestFailureError(summary *types.RunSummary) *TestFailureError {
	return &TestFailureError{
		RunID:   summary.RunID,
		Run:     summary.Run,
		Failed:  summary.Failed,
		Errored: summary.Errored,
		Skipped: summary.Skipped,
	}
}

func (e *TestFailureError) Error() string {
	return fmt.Sprintf("%d of %d cases did not pass in run %s (failures=%d, errors=%d, skipped=%d)",
		e.Failed+e.Errored, e.Run, e.RunID, e.Failed, e.Errored, e.Skipped)
}

// IsTestFailureError reports whether err or anything it wraps is a TestFailureError
func IsTestFailureError(err error) bool {
	var target *TestFailureError
	return errors.As(err, &target)
}
