package runner

import "time"

// Test execution constants
const (
	// Default go binary name
	DefaultGoBinary = "go"

	// Test command arguments
	TestCommand = "test"
	JSONFlag    = "-json"
	VerboseFlag = "-v"
	TimeoutFlag = "-timeout"
	CountFlag   = "-count"
	RunFlag     = "-run"

	// Test count to disable caching
	DisableCacheCount = "1"

	// timeoutGrace lets the child process trigger its own timeout before the parent kills it
	timeoutGrace = 200 * time.Millisecond

	// defaultWaitDelay bounds how long Wait waits for output copies once the
	// test process has exited
	defaultWaitDelay = 2 * time.Second

	// maxEventLineBytes bounds a single line of `go test -json` output
	maxEventLineBytes = 16 * 1024 * 1024
)
