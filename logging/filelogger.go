package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/acarl005/stripansi"
	"github.com/ethereum-optimism/infra/op-testrun/types"
)

const (
	RunDirectoryPrefix = "testrun-" // Standardized prefix for run directories
	PassedDirName      = "passed"
	FailedDirName      = "failed"
	SummaryFilename    = "summary.log"
	AllLogsFilename    = "all.log"
	RecordsFilename    = "records.json"
)

// ResultSink is an interface for different ways of consuming capture records
type ResultSink interface {
	// Consume processes a single finalized record
	Consume(record *types.CaptureRecord, runID string) error
	// Complete is called once the run summary is final
	Complete(summary *types.RunSummary) error
}

// FileLogger writes the records of one run under <baseDir>/testrun-<runID>/
type FileLogger struct {
	baseDir      string                // Base directory for logs
	logDir       string                // Directory of this run
	mu           sync.Mutex            // Protects asyncWriters
	sinks        []ResultSink          // Collection of result consumers
	asyncWriters map[string]*AsyncFile // Map of async file writers
	runID        string
}

// AsyncFile provides non-blocking file writing capabilities
type AsyncFile struct {
	file    *os.File
	queue   chan []byte
	wg      sync.WaitGroup
	mu      sync.Mutex
	stopped bool
	err     error
}

// NewAsyncFile creates a new AsyncFile for non-blocking writes
func NewAsyncFile(path string) (*AsyncFile, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create file %s: %w", path, err)
	}

	af := &AsyncFile{
		file:  file,
		queue: make(chan []byte, 100),
	}
	af.wg.Add(1)
	go af.processQueue()
	return af, nil
}

// Write queues data to be written asynchronously
func (af *AsyncFile) Write(data []byte) error {
	af.mu.Lock()
	defer af.mu.Unlock()

	if af.stopped {
		return fmt.Errorf("async file is closed")
	}

	dataCopy := make([]byte, len(data))
	copy(dataCopy, data)
	af.queue <- dataCopy
	return nil
}

func (af *AsyncFile) processQueue() {
	defer af.wg.Done()

	for data := range af.queue {
		if _, err := af.file.Write(data); err != nil && af.err == nil {
			// reported by Close
			af.err = err
		}
	}
}

// Close stops the async writer, closes the file and returns the first write error
func (af *AsyncFile) Close() error {
	af.mu.Lock()
	if !af.stopped {
		af.stopped = true
		close(af.queue)
	}
	af.mu.Unlock()

	af.wg.Wait()
	closeErr := af.file.Close()
	if af.err != nil {
		return af.err
	}
	return closeErr
}

// NewFileLogger creates the run directory and the default sinks
func NewFileLogger(baseDir string, runID string) (*FileLogger, error) {
	if runID == "" {
		return nil, fmt.Errorf("runID cannot be empty")
	}
	if baseDir == "" {
		return nil, fmt.Errorf("baseDir cannot be empty")
	}

	logDir := filepath.Join(baseDir, RunDirectoryPrefix+runID)
	for _, dir := range []string{
		baseDir,
		logDir,
		filepath.Join(logDir, PassedDirName),
		filepath.Join(logDir, FailedDirName),
	} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	logger := &FileLogger{
		baseDir:      baseDir,
		logDir:       logDir,
		asyncWriters: make(map[string]*AsyncFile),
		runID:        runID,
	}
	logger.addSink(&AllLogsFileSink{logger: logger})
	logger.addSink(&PerCaseFileSink{logger: logger, processed: make(map[string]bool)})
	logger.addSink(&RecordsJSONSink{logger: logger})
	return logger, nil
}

// addSink registers a sink; sinks consume records in registration order
func (l *FileLogger) addSink(sink ResultSink) {
	l.sinks = append(l.sinks, sink)
}

// getAsyncWriter gets or creates an AsyncFile for the given path
func (l *FileLogger) getAsyncWriter(path string) (*AsyncFile, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if writer, exists := l.asyncWriters[path]; exists {
		return writer, nil
	}
	writer, err := NewAsyncFile(path)
	if err != nil {
		return nil, err
	}
	l.asyncWriters[path] = writer
	return writer, nil
}

// closeAllWriters closes all async writers and returns the first error
func (l *FileLogger) closeAllWriters() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var firstErr error
	for path, writer := range l.asyncWriters {
		if err := writer.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to write %s: %w", path, err)
		}
	}
	l.asyncWriters = make(map[string]*AsyncFile)
	return firstErr
}

// LogRecord feeds a finalized record to all sinks
func (l *FileLogger) LogRecord(record *types.CaptureRecord) error {
	if record == nil {
		return fmt.Errorf("record cannot be nil")
	}
	for _, sink := range l.sinks {
		if err := sink.Consume(record, l.runID); err != nil {
			return fmt.Errorf("error in sink: %w", err)
		}
	}
	return nil
}

// LogSummary writes the rendered summary to summary.log, without color codes
func (l *FileLogger) LogSummary(summary string) error {
	writer, err := l.getAsyncWriter(l.SummaryFile())
	if err != nil {
		return err
	}
	return writer.Write([]byte(stripansi.Strip(summary)))
}

// Complete finalizes all sinks and closes all file writers
func (l *FileLogger) Complete(summary *types.RunSummary) error {
	if summary == nil {
		return fmt.Errorf("summary cannot be nil")
	}
	for _, sink := range l.sinks {
		if err := sink.Complete(summary); err != nil {
			_ = l.closeAllWriters()
			return fmt.Errorf("error completing sink: %w", err)
		}
	}
	return l.closeAllWriters()
}

// RunID returns the run this logger writes for
func (l *FileLogger) RunID() string {
	return l.runID
}

// Dir returns the directory of this run
func (l *FileLogger) Dir() string {
	return l.logDir
}

func (l *FileLogger) PassedDir() string {
	return filepath.Join(l.logDir, PassedDirName)
}

func (l *FileLogger) FailedDir() string {
	return filepath.Join(l.logDir, FailedDirName)
}

func (l *FileLogger) SummaryFile() string {
	return filepath.Join(l.logDir, SummaryFilename)
}

func (l *FileLogger) AllLogsFile() string {
	return filepath.Join(l.logDir, AllLogsFilename)
}

func (l *FileLogger) RecordsFile() string {
	return filepath.Join(l.logDir, RecordsFilename)
}

// safeFilename converts a string to a safe filename by replacing problematic characters
func safeFilename(s string) string {
	s = strings.ReplaceAll(s, "...", "")
	replacer := strings.NewReplacer(
		"/", "_", "\\", "_", ":", "_", "*", "_", "?", "_",
		"\"", "_", "<", "_", ">", "_", "|", "_", " ", "_",
	)
	return replacer.Replace(s)
}

// caseFilename is "<package basename>_<name>", or just the name without a container
func caseFilename(tc types.TestCase) string {
	container := strings.TrimRight(tc.Container, "/")
	if idx := strings.LastIndex(container, "/"); idx >= 0 {
		container = container[idx+1:]
	}
	container = strings.Trim(container, ".")
	if container == "" || container == tc.Name {
		return safeFilename(tc.Name)
	}
	return safeFilename(container + "_" + tc.Name)
}

func failedOutcome(kind types.OutcomeKind) bool {
	return kind == types.OutcomeFailure || kind == types.OutcomeError
}
