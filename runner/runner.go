package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"runtime/debug"
	"strings"
	"sync"

	"github.com/ethereum-optimism/infra/op-testrun/types"
	"github.com/ethereum/go-ethereum/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Lifecycle receives the hooks of every case. Between OnCaseStart and
// OnCaseEnd exactly one of the outcome hooks is called.
type Lifecycle interface {
	OnCaseStart(tc types.TestCase) error
	OnSuccess(tc types.TestCase)
	OnFailure(tc types.TestCase, details string)
	OnError(tc types.TestCase, details string)
	OnSkip(tc types.TestCase, reason string)
	OnCaseEnd(tc types.TestCase) error
}

// Case is a single runnable test case.
// A non-nil error from Run is reported as an error outcome.
type Case interface {
	ID() types.TestCase
	Run(ctx context.Context, t *T) error
}

type funcCase struct {
	tc types.TestCase
	fn func(t *T)
}

func (c funcCase) ID() types.TestCase {
	return c.tc
}

func (c funcCase) Run(_ context.Context, t *T) error {
	c.fn(t)
	return nil
}

// Func wraps a plain function as a Case
func Func(tc types.TestCase, fn func(t *T)) Case {
	return funcCase{tc: tc, fn: fn}
}

// T is handed to a running case. Its methods mirror testing.T:
// FailNow, Fatal and the Skip family stop the case immediately and
// must be called from the goroutine running the case.
type T struct {
	ctx  context.Context
	name string

	mu         sync.Mutex
	failed     bool
	skipped    bool
	details    []string
	skipReason string
}

func newT(ctx context.Context, tc types.TestCase) *T {
	return &T{ctx: ctx, name: tc.QualifiedName()}
}

// Name returns the qualified name of the running case
func (t *T) Name() string {
	return t.name
}

// Context is cancelled when the run is cancelled
func (t *T) Context() context.Context {
	return t.ctx
}

// Log writes to the process stdout, which is captured while the case runs
func (t *T) Log(args ...any) {
	_, _ = fmt.Fprintln(os.Stdout, args...)
}

func (t *T) Logf(format string, args ...any) {
	_, _ = fmt.Fprintln(os.Stdout, fmt.Sprintf(format, args...))
}

// Fail marks the case as failed and continues execution
func (t *T) Fail() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failed = true
}

// FailNow marks the case as failed and stops it
func (t *T) FailNow() {
	t.Fail()
	runtime.Goexit()
}

func (t *T) Error(args ...any) {
	t.addDetail(fmt.Sprint(args...))
	t.Fail()
}

func (t *T) Errorf(format string, args ...any) {
	t.addDetail(fmt.Sprintf(format, args...))
	t.Fail()
}

func (t *T) Fatal(args ...any) {
	t.addDetail(fmt.Sprint(args...))
	t.FailNow()
}

func (t *T) Fatalf(format string, args ...any) {
	t.addDetail(fmt.Sprintf(format, args...))
	t.FailNow()
}

// Skip records the reason and stops the case
func (t *T) Skip(args ...any) {
	t.skip(fmt.Sprint(args...))
	runtime.Goexit()
}

func (t *T) Skipf(format string, args ...any) {
	t.skip(fmt.Sprintf(format, args...))
	runtime.Goexit()
}

// SkipNow stops the case with an empty skip reason
func (t *T) SkipNow() {
	t.skip("")
	runtime.Goexit()
}

// Failed reports whether the case has been marked as failed
func (t *T) Failed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.failed
}

// Skipped reports whether the case was skipped
func (t *T) Skipped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.skipped
}

func (t *T) addDetail(s string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.details = append(t.details, s)
}

func (t *T) skip(reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.skipped = true
	t.skipReason = reason
}

// outcome folds the recorded state into a terminal outcome. A failure
// takes precedence over a later skip.
func (t *T) outcome() types.Outcome {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch {
	case t.failed:
		return types.Failure(strings.Join(t.details, "\n"))
	case t.skipped:
		return types.Skipped(t.skipReason)
	default:
		return types.Success()
	}
}

// Config holds the configuration for a Runner
type Config struct {
	Log    log.Logger
	Hooks  Lifecycle
	Tracer trace.Tracer
}

// Runner executes cases sequentially against a Lifecycle
type Runner struct {
	log    log.Logger
	hooks  Lifecycle
	tracer trace.Tracer
}

// New creates a new Runner
func New(cfg Config) (*Runner, error) {
	if cfg.Hooks == nil {
		return nil, errors.New("hooks cannot be nil")
	}
	if cfg.Log == nil {
		cfg.Log = log.Root()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = otel.Tracer("test runner")
	}
	return &Runner{
		log:    cfg.Log,
		hooks:  cfg.Hooks,
		tracer: cfg.Tracer,
	}, nil
}

// Run executes the cases in order. It stops at the first lifecycle error or
// when ctx is cancelled; cases that never started are not reported.
func (r *Runner) Run(ctx context.Context, cases []Case) error {
	ctx, span := r.tracer.Start(ctx, "run")
	defer span.End()
	span.SetAttributes(attribute.Int("cases", len(cases)))

	for i, c := range cases {
		if err := ctx.Err(); err != nil {
			r.log.Warn("Run cancelled", "completed", i, "remaining", len(cases)-i)
			span.SetStatus(codes.Error, "cancelled")
			return err
		}
		if err := r.runCase(ctx, c); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
	}
	return nil
}

func (r *Runner) runCase(ctx context.Context, c Case) (err error) {
	tc := c.ID()
	ctx, span := r.tracer.Start(ctx, fmt.Sprintf("case %s", tc.QualifiedName()))
	defer span.End()

	if err := r.hooks.OnCaseStart(tc); err != nil {
		return fmt.Errorf("failed to start case %s: %w", tc, err)
	}
	defer func() {
		if endErr := r.hooks.OnCaseEnd(tc); endErr != nil && err == nil {
			err = fmt.Errorf("failed to end case %s: %w", tc, endErr)
		}
	}()

	outcome := r.execute(ctx, c)
	span.SetAttributes(attribute.String("outcome", string(outcome.Kind)))
	r.report(tc, outcome)
	return nil
}

// execute runs the case on its own goroutine so that FailNow and SkipNow can
// stop it with runtime.Goexit, and converts panics into error outcomes
func (r *Runner) execute(ctx context.Context, c Case) types.Outcome {
	t := newT(ctx, c.ID())

	var (
		runErr   error
		panicked any
		stack    []byte
		returned bool
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer func() {
			if returned {
				return
			}
			if p := recover(); p != nil {
				panicked = p
				stack = debug.Stack()
			}
		}()
		runErr = c.Run(ctx, t)
		returned = true
	}()
	<-done

	switch {
	case panicked != nil:
		r.log.Debug("Case panicked", "case", t.Name(), "panic", panicked)
		return types.Error(fmt.Sprintf("panic: %v\n%s", panicked, stack))
	case runErr != nil:
		return types.Error(runErr.Error())
	default:
		return t.outcome()
	}
}

func (r *Runner) report(tc types.TestCase, outcome types.Outcome) {
	switch outcome.Kind {
	case types.OutcomeSuccess:
		r.hooks.OnSuccess(tc)
	case types.OutcomeFailure:
		r.hooks.OnFailure(tc, outcome.Detail)
	case types.OutcomeError:
		r.hooks.OnError(tc, outcome.Detail)
	case types.OutcomeSkipped:
		r.hooks.OnSkip(tc, outcome.Reason())
	}
}
