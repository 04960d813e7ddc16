// Package capture redirects the process-wide standard output and standard
// error channels into in-memory buffers for a bounded scope.
//
// A Guard is acquired before the scope and released after it. Release restores
// exactly the *os.File values that were installed when the guard was acquired,
// so guards can nest: an inner guard restores the outer guard's pipes, and the
// outer guard restores the real console.
//
// Redirection mutates package-level variables of the os package and is not
// safe for concurrent scopes.
package capture

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// DefaultDrainTimeout bounds how long Release waits for the pipe readers once
// the write ends are closed. A child process that outlives its case can keep a
// write end open.
const DefaultDrainTimeout = 5 * time.Second

// ErrDrainTimeout is returned by Release when captured output could not be
// fully drained in time. The channels are restored regardless and the text
// drained so far stays available.
var ErrDrainTimeout = errors.New("timed out draining captured output")

// IsDrainTimeout reports whether err is made only of drain timeouts, meaning
// a leftover writer kept a pipe open but every channel was restored and closed
func IsDrainTimeout(err error) bool {
	if err == nil {
		return false
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			if !IsDrainTimeout(e) {
				return false
			}
		}
		return true
	}
	return errors.Is(err, ErrDrainTimeout)
}

// Options tunes a Guard
type Options struct {
	// MaxBytes caps each buffer, keeping the tail. Zero means unbounded.
	MaxBytes int
	// DrainTimeout overrides DefaultDrainTimeout when positive
	DrainTimeout time.Duration
}

// Guard owns the redirection of a stdout/stderr pair for one scope
type Guard struct {
	stdout *redirect
	stderr *redirect

	drainTimeout time.Duration
	released     bool
}

type redirect struct {
	name   string
	target **os.File
	saved  *os.File
	r, w   *os.File
	buf    *Buffer
	done   chan error
}

// Acquire redirects os.Stdout and os.Stderr until Release is called
func Acquire() (*Guard, error) {
	return AcquireFiles(&os.Stdout, &os.Stderr, Options{})
}

// AcquireFiles redirects the given file variables until Release is called.
// The values currently stored in stdout and stderr are saved and restored verbatim.
func AcquireFiles(stdout, stderr **os.File, opts Options) (*Guard, error) {
	if stdout == nil || stderr == nil {
		return nil, errors.New("capture targets cannot be nil")
	}
	if stdout == stderr {
		return nil, errors.New("stdout and stderr targets must be distinct")
	}

	outRedirect, err := newRedirect("stdout", stdout, opts.MaxBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to redirect stdout: %w", err)
	}
	errRedirect, err := newRedirect("stderr", stderr, opts.MaxBytes)
	if err != nil {
		outRedirect.abandon()
		return nil, fmt.Errorf("failed to redirect stderr: %w", err)
	}

	drainTimeout := opts.DrainTimeout
	if drainTimeout <= 0 {
		drainTimeout = DefaultDrainTimeout
	}

	outRedirect.install()
	errRedirect.install()

	return &Guard{
		stdout:       outRedirect,
		stderr:       errRedirect,
		drainTimeout: drainTimeout,
	}, nil
}

func newRedirect(name string, target **os.File, maxBytes int) (*redirect, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	return &redirect{
		name:   name,
		target: target,
		r:      r,
		w:      w,
		buf:    NewBuffer(maxBytes),
		done:   make(chan error, 1),
	}, nil
}

func (rd *redirect) install() {
	rd.saved = *rd.target
	*rd.target = rd.w
	go func() {
		_, err := io.Copy(rd.buf, rd.r)
		rd.done <- err
	}()
}

// abandon closes a pipe that was never installed
func (rd *redirect) abandon() {
	_ = rd.w.Close()
	_ = rd.r.Close()
}

// restore puts back the saved file, then closes the write end and waits for
// the reader to hit EOF
func (rd *redirect) restore(timeout time.Duration) error {
	*rd.target = rd.saved

	var errs []error
	if err := rd.w.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close capture pipe: %w", err))
	}
	select {
	case err := <-rd.done:
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to drain capture pipe: %w", err))
		}
	case <-time.After(timeout):
		errs = append(errs, fmt.Errorf("%s: %w", rd.name, ErrDrainTimeout))
	}
	if err := rd.r.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close capture reader: %w", err))
	}
	return errors.Join(errs...)
}

// Release restores the saved channels and collects the captured text.
// It is safe to call more than once; only the first call does any work.
// Both channels are restored even when an error is returned.
func (g *Guard) Release() error {
	if g.released {
		return nil
	}
	g.released = true

	// Restore in reverse order of installation
	errErr := g.stderr.restore(g.drainTimeout)
	outErr := g.stdout.restore(g.drainTimeout)
	return errors.Join(outErr, errErr)
}

// Released reports whether Release has been called
func (g *Guard) Released() bool {
	return g.released
}

// Stdout returns the trimmed text captured from standard output
func (g *Guard) Stdout() string {
	return strings.TrimSpace(g.stdout.buf.String())
}

// Stderr returns the trimmed text captured from standard error
func (g *Guard) Stderr() string {
	return strings.TrimSpace(g.stderr.buf.String())
}

// Truncated reports whether either channel exceeded its byte limit
func (g *Guard) Truncated() bool {
	return g.stdout.buf.Truncated() || g.stderr.buf.Truncated()
}
