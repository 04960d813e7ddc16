package runner

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/ethereum-optimism/infra/op-testrun/types"
	"github.com/ethereum-optimism/optimism/devnet-sdk/telemetry"
	"github.com/ethereum/go-ethereum/log"
)

// TestEvent represents a test event from go test -json output
type TestEvent struct {
	Time    time.Time
	Action  string
	Package string
	Test    string
	Elapsed float64
	Output  string
}

// Terminal test2json actions
const (
	ActionPass   = "pass"
	ActionFail   = "fail"
	ActionSkip   = "skip"
	ActionOutput = "output"
)

// CmdBuilder creates the command for a go invocation and a cleanup func
type CmdBuilder func(ctx context.Context, name string, arg ...string) (*exec.Cmd, func())

// ExecutorConfig holds the configuration for a GoTestExecutor
type ExecutorConfig struct {
	Log      log.Logger
	TestDir  string
	GoBinary string
	// Timeout applies to every single test; zero disables it
	Timeout time.Duration
	// Env is appended to the current process environment
	Env []string
	// Stdout and Stderr default to the process channels as they are when a case runs
	Stdout     io.Writer
	Stderr     io.Writer
	CmdBuilder CmdBuilder
	// WaitDelay bounds waiting for processes the test leaves holding its
	// output after it exits; zero uses a default
	WaitDelay time.Duration
}

// GoTestExecutor runs individual Go test functions in `go test` subprocesses
type GoTestExecutor struct {
	log        log.Logger
	testDir    string
	goBinary   string
	timeout    time.Duration
	env        []string
	stdout     io.Writer
	stderr     io.Writer
	cmdBuilder CmdBuilder
	waitDelay  time.Duration
}

// NewGoTestExecutor creates a new executor
func NewGoTestExecutor(cfg ExecutorConfig) (*GoTestExecutor, error) {
	if cfg.TestDir == "" {
		return nil, errors.New("testDir cannot be empty")
	}
	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("timeout cannot be negative: %v", cfg.Timeout)
	}
	e := &GoTestExecutor{
		log:        cfg.Log,
		testDir:    cfg.TestDir,
		goBinary:   cfg.GoBinary,
		timeout:    cfg.Timeout,
		env:        cfg.Env,
		stdout:     cfg.Stdout,
		stderr:     cfg.Stderr,
		cmdBuilder: cfg.CmdBuilder,
		waitDelay:  cfg.WaitDelay,
	}
	if e.log == nil {
		e.log = log.Root()
	}
	if e.goBinary == "" {
		e.goBinary = DefaultGoBinary
	}
	if e.cmdBuilder == nil {
		e.cmdBuilder = e.testCommandContext
	}
	if e.waitDelay <= 0 {
		e.waitDelay = defaultWaitDelay
	}
	return e, nil
}

// Case returns a Case running the test function name of package pkg
func (e *GoTestExecutor) Case(pkg, name string) Case {
	return &GoTestCase{executor: e, pkg: pkg, name: name}
}

// Cases returns one Case per test function, in the given order
func (e *GoTestExecutor) Cases(pkg string, names []string) []Case {
	cases := make([]Case, 0, len(names))
	for _, name := range names {
		cases = append(cases, e.Case(pkg, name))
	}
	return cases
}

func (e *GoTestExecutor) testCommandContext(ctx context.Context, name string, arg ...string) (*exec.Cmd, func()) {
	cmd := exec.CommandContext(ctx, name, arg...)
	cmd.Dir = e.testDir
	env := append(os.Environ(), e.env...)
	cmd.Env = telemetry.InstrumentEnvironment(ctx, env)
	return cmd, func() {}
}

func (e *GoTestExecutor) buildTestArgs(pkg, name string) []string {
	args := []string{TestCommand, JSONFlag, VerboseFlag, CountFlag, DisableCacheCount}
	if e.timeout > 0 {
		args = append(args, TimeoutFlag, e.timeout.String())
	}
	args = append(args, pkg, RunFlag, fmt.Sprintf("^%s$", regexp.QuoteMeta(name)))
	return args
}

func (e *GoTestExecutor) outputs() (io.Writer, io.Writer) {
	stdout, stderr := e.stdout, e.stderr
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	return stdout, stderr
}

// GoTestCase runs one Go test function. Its container is the package path.
type GoTestCase struct {
	executor *GoTestExecutor
	pkg      string
	name     string
}

var _ Case = (*GoTestCase)(nil)

func (c *GoTestCase) ID() types.TestCase {
	return types.NewTestCase(c.pkg, c.name)
}

// Run executes the test and maps its terminal action onto t.
// Missing results, build failures and timeouts are returned as errors.
func (c *GoTestCase) Run(ctx context.Context, t *T) error {
	e := c.executor
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout+timeoutGrace)
		defer cancel()
	}

	args := e.buildTestArgs(c.pkg, c.name)
	cmd, cleanup := e.cmdBuilder(ctx, e.goBinary, args...)
	defer cleanup()
	if cmd.WaitDelay == 0 {
		cmd.WaitDelay = e.waitDelay
	}

	stdout, stderr := e.outputs()
	cmd.Stderr = stderr
	pipe, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to open stdout pipe: %w", err)
	}

	e.log.Debug("Running test command",
		"dir", cmd.Dir,
		"package", c.pkg,
		"test", c.name,
		"command", cmd.String(),
		"timeout", e.timeout)

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to run test: %w", err)
	}
	result, parseErr := parseEvents(pipe, stdout, c.name)
	runErr := cmd.Wait()
	if errors.Is(runErr, exec.ErrWaitDelay) {
		e.log.Warn("Test left processes holding its output", "package", c.pkg, "test", c.name)
		runErr = nil
	}

	if parseErr != nil {
		return fmt.Errorf("failed to parse test output: %w", parseErr)
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) && result.action != ActionPass {
		return fmt.Errorf("test timed out after %v", e.timeout)
	}

	var exitCode int
	if runErr != nil {
		exitErr := &exec.ExitError{}
		if !errors.As(runErr, &exitErr) {
			return fmt.Errorf("failed to run test: %w", runErr)
		}
		exitCode = exitErr.ExitCode()
	}

	switch result.action {
	case ActionPass:
		return nil
	case ActionFail:
		detail := result.failureDetail()
		if detail == "" {
			detail = fmt.Sprintf("%s failed", c.name)
		}
		t.Error(detail)
		return nil
	case ActionSkip:
		t.Skip(result.skipReason())
		return nil
	}

	switch exitCode {
	case 0:
		return fmt.Errorf("no test named %s found in %s", c.name, c.pkg)
	case 2:
		return fmt.Errorf("test compilation failed for %s (exit code 2)", c.pkg)
	default:
		return fmt.Errorf("test %s produced no result (exit code %d)", c.name, exitCode)
	}
}

// goTestResult is what the event stream says about one top-level test
type goTestResult struct {
	action  string
	elapsed float64
	lines   []string
}

var sourcePrefix = regexp.MustCompile(`^\s*[\w.-]+\.go:\d+: `)

// failureDetail keeps the messages the test logged, without the framing lines
func (r *goTestResult) failureDetail() string {
	var out []string
	for _, line := range r.lines {
		if isFramingLine(line) {
			continue
		}
		out = append(out, strings.TrimSpace(line))
	}
	return strings.Join(out, "\n")
}

// skipReason is the last message logged before the skip, without its source location
func (r *goTestResult) skipReason() string {
	for i := len(r.lines) - 1; i >= 0; i-- {
		line := r.lines[i]
		if isFramingLine(line) || strings.TrimSpace(line) == "" {
			continue
		}
		return strings.TrimSpace(sourcePrefix.ReplaceAllString(line, ""))
	}
	return ""
}

func isFramingLine(line string) bool {
	trimmed := strings.TrimSpace(line)
	for _, prefix := range []string{"=== RUN", "=== PAUSE", "=== CONT", "=== NAME", "--- PASS", "--- FAIL", "--- SKIP"} {
		if strings.HasPrefix(trimmed, prefix) {
			return true
		}
	}
	return trimmed == ""
}

// parseEvents forwards every output line to w and records the terminal action
// of the top-level test name. Lines that are not JSON, such as build errors,
// are forwarded verbatim.
func parseEvents(r io.Reader, w io.Writer, name string) (*goTestResult, error) {
	result := &goTestResult{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventLineBytes)

	for scanner.Scan() {
		line := scanner.Bytes()
		var event TestEvent
		if err := json.Unmarshal(line, &event); err != nil || event.Action == "" {
			_, _ = fmt.Fprintf(w, "%s\n", line)
			continue
		}

		switch event.Action {
		case ActionOutput:
			_, _ = io.WriteString(w, event.Output)
			if event.Test == name {
				result.lines = append(result.lines, strings.TrimRight(event.Output, "\n"))
			}
		case ActionPass, ActionFail, ActionSkip:
			if event.Test == name {
				result.action = event.Action
				result.elapsed = event.Elapsed
			}
		}
	}
	// drain so the child never blocks on a full pipe
	_, _ = io.Copy(io.Discard, r)
	return result, scanner.Err()
}
