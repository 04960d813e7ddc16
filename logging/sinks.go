package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/acarl005/stripansi"
	"github.com/ethereum-optimism/infra/op-testrun/types"
)

// AllLogsFileSink writes every record to a single all.log file
type AllLogsFileSink struct {
	logger *FileLogger
}

// Consume appends a record to all.log
func (s *AllLogsFileSink) Consume(record *types.CaptureRecord, _ string) error {
	writer, err := s.logger.getAsyncWriter(s.logger.AllLogsFile())
	if err != nil {
		return err
	}

	var content strings.Builder
	fmt.Fprintf(&content, "\n")
	fmt.Fprintf(&content, "┌─────────────────────────────────────────────────────────────────────┐\n")
	fmt.Fprintf(&content, "│ CASE: %-61s │\n", truncateString(record.Case.QualifiedName(), 61))
	fmt.Fprintf(&content, "├─────────────────────────────────────────────────────────────────────┤\n")
	fmt.Fprintf(&content, "│ Outcome:   %-56s │\n", record.Outcome.Kind)
	fmt.Fprintf(&content, "│ Container: %-56s │\n", truncateString(record.Case.Container, 56))
	fmt.Fprintf(&content, "│ Duration:  %-56s │\n", record.Duration)
	fmt.Fprintf(&content, "│ Started:   %-56s │\n", record.StartTime.Format("2006-01-02T15:04:05Z07:00"))
	fmt.Fprintf(&content, "└─────────────────────────────────────────────────────────────────────┘\n\n")
	writeRecordSections(&content, record)

	return writer.Write([]byte(content.String()))
}

// Complete is a no-op for AllLogsFileSink
func (s *AllLogsFileSink) Complete(*types.RunSummary) error {
	return nil
}

func writeRecordSections(content *strings.Builder, record *types.CaptureRecord) {
	if record.Outcome.Detail != "" {
		label := "DETAIL"
		if record.Outcome.Kind == types.OutcomeSkipped {
			label = "SKIP REASON"
		}
		fmt.Fprintf(content, "%s:\n", label)
		fmt.Fprintf(content, "%s\n", strings.Repeat("~", len(label)+1))
		fmt.Fprintf(content, "%s\n\n", stripansi.Strip(record.Outcome.Detail))
	}
	if record.Output != "" {
		fmt.Fprintf(content, "STDOUT:\n")
		fmt.Fprintf(content, "~~~~~~~\n")
		fmt.Fprintf(content, "%s\n\n", indentText(stripansi.Strip(record.Output), "  "))
	}
	if record.ErrorOutput != "" {
		fmt.Fprintf(content, "STDERR:\n")
		fmt.Fprintf(content, "~~~~~~~\n")
		fmt.Fprintf(content, "%s\n\n", indentText(stripansi.Strip(record.ErrorOutput), "  "))
	}
}

// indentText adds indentation to each non-empty line
func indentText(text, indent string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if line != "" {
			lines[i] = indent + line
		}
	}
	return strings.Join(lines, "\n")
}

// truncateString truncates a string to maxLen and adds an ellipsis if needed
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

// PerCaseFileSink writes one log file per case, under failed/ for failures
// and errors and under passed/ otherwise
type PerCaseFileSink struct {
	logger    *FileLogger
	mu        sync.Mutex
	processed map[string]bool
}

// Consume writes a record's file. A case that already has a file keeps the first one.
func (s *PerCaseFileSink) Consume(record *types.CaptureRecord, _ string) error {
	targetDir := s.logger.PassedDir()
	if failedOutcome(record.Outcome.Kind) {
		targetDir = s.logger.FailedDir()
	}
	path := filepath.Join(targetDir, caseFilename(record.Case)+".log")

	s.mu.Lock()
	if s.processed[path] {
		s.mu.Unlock()
		return nil
	}
	s.processed[path] = true
	s.mu.Unlock()

	var content strings.Builder
	fmt.Fprintf(&content, "Case:     %s\n", record.Case.QualifiedName())
	fmt.Fprintf(&content, "Outcome:  %s\n", record.Outcome.Kind)
	fmt.Fprintf(&content, "Duration: %s\n", record.Duration)
	fmt.Fprintf(&content, "%s\n\n", strings.Repeat("-", 80))
	writeRecordSections(&content, record)
	if !record.HasCapturedText() {
		fmt.Fprintf(&content, "No output captured.\n")
	}

	if err := os.WriteFile(path, []byte(content.String()), 0644); err != nil {
		return fmt.Errorf("failed to write case log %s: %w", path, err)
	}
	return nil
}

// Complete is a no-op for PerCaseFileSink
func (s *PerCaseFileSink) Complete(*types.RunSummary) error {
	return nil
}

// RecordsJSONSink writes the final summary, with every record, to records.json
type RecordsJSONSink struct {
	logger *FileLogger
}

// Consume is a no-op: records are taken from the summary on completion
func (s *RecordsJSONSink) Consume(*types.CaptureRecord, string) error {
	return nil
}

// Complete writes records.json
func (s *RecordsJSONSink) Complete(summary *types.RunSummary) error {
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode records: %w", err)
	}
	if err := os.WriteFile(s.logger.RecordsFile(), data, 0644); err != nil {
		return fmt.Errorf("failed to write records: %w", err)
	}
	return nil
}
