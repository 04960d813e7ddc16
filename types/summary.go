package types

import (
	"errors"
	"fmt"
	"time"
)

// RunSummary aggregates the finalized records of one run.
// Records are kept in the order they were added, which is execution order.
type RunSummary struct {
	RunID     string          `json:"run_id"`
	Records   []CaptureRecord `json:"records"`
	Run       int             `json:"run"`
	Failed    int             `json:"failed"`
	Errored   int             `json:"errored"`
	Skipped   int             `json:"skipped"`
	StartTime time.Time       `json:"start_time"`
	EndTime   time.Time       `json:"end_time"`
	Duration  time.Duration   `json:"duration"`

	finalized bool
}

// NewRunSummary creates an empty summary for a run starting at startTime
func NewRunSummary(runID string, startTime time.Time) *RunSummary {
	return &RunSummary{
		RunID:     runID,
		Records:   make([]CaptureRecord, 0),
		StartTime: startTime,
	}
}

// Add appends a copy of a finalized record and updates the counts
func (s *RunSummary) Add(record *CaptureRecord) error {
	if record == nil {
		return errors.New("record cannot be nil")
	}
	if s.finalized {
		return fmt.Errorf("cannot add %s: summary already finalized", record.Case)
	}
	if !record.Finalized() {
		return fmt.Errorf("cannot add %s: record has no outcome", record.Case)
	}

	s.Records = append(s.Records, *record)
	s.Run++
	switch record.Outcome.Kind {
	case OutcomeFailure:
		s.Failed++
	case OutcomeError:
		s.Errored++
	case OutcomeSkipped:
		s.Skipped++
	}
	return nil
}

// Finalize stamps the end time. Calling it more than once keeps the first end time.
func (s *RunSummary) Finalize(endTime time.Time) {
	if s.finalized {
		return
	}
	s.finalized = true
	s.EndTime = endTime
	s.Duration = endTime.Sub(s.StartTime)
}

// IsFinalized reports whether Finalize has been called
func (s *RunSummary) IsFinalized() bool {
	return s.finalized
}

// Passed returns the number of successful records
func (s *RunSummary) Passed() int {
	return s.Run - s.Failed - s.Errored - s.Skipped
}

// WasSuccessful is true iff no record failed or errored. Skips don't count.
func (s *RunSummary) WasSuccessful() bool {
	return s.Failed == 0 && s.Errored == 0
}

// AllSucceeded is true iff every record is a success (vacuously true for an empty run)
func (s *RunSummary) AllSucceeded() bool {
	return s.Passed() == s.Run
}

// FailedRecords returns the failure and error records in execution order
func (s *RunSummary) FailedRecords() []CaptureRecord {
	var out []CaptureRecord
	for _, rec := range s.Records {
		if rec.Outcome.Kind == OutcomeFailure || rec.Outcome.Kind == OutcomeError {
			out = append(out, rec)
		}
	}
	return out
}

func (s *RunSummary) String() string {
	return fmt.Sprintf("Run %s: run=%d passed=%d failed=%d errored=%d skipped=%d duration=%s",
		s.RunID, s.Run, s.Passed(), s.Failed, s.Errored, s.Skipped, s.Duration.Round(time.Millisecond))
}
