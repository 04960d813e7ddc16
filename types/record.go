package types

import (
	"fmt"
	"time"
)

// CaptureRecord holds everything observed while a single case ran.
// It is created when the case starts and finalized when the case ends;
// a finalized record is never mutated again.
type CaptureRecord struct {
	Case        TestCase      `json:"case"`
	Output      string        `json:"output"`
	ErrorOutput string        `json:"error_output"`
	Duration    time.Duration `json:"duration"`
	Outcome     Outcome       `json:"outcome"`
	StartTime   time.Time     `json:"start_time"`
}

// NewCaptureRecord creates an in-flight record for a case that started at startTime
func NewCaptureRecord(tc TestCase, startTime time.Time) *CaptureRecord {
	return &CaptureRecord{
		Case:      tc,
		StartTime: startTime,
	}
}

// Finalized reports whether an outcome has been assigned
func (r *CaptureRecord) Finalized() bool {
	return !r.Outcome.IsZero()
}

// Finalize assigns the outcome. It fails if the record was already finalized
// or the outcome is not a terminal kind.
func (r *CaptureRecord) Finalize(outcome Outcome) error {
	if r.Finalized() {
		return fmt.Errorf("record for %s already finalized as %s", r.Case, r.Outcome.Kind)
	}
	if !outcome.Kind.Valid() {
		return fmt.Errorf("invalid outcome kind %q for %s", outcome.Kind, r.Case)
	}
	r.Outcome = outcome
	return nil
}

// HasCapturedText reports whether either captured buffer is non-empty
func (r *CaptureRecord) HasCapturedText() bool {
	return r.Output != "" || r.ErrorOutput != ""
}
