// Package ffmpeg runs single ffmpeg processes and turns their textual
// reports into typed metrics.
package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"time"
)

// DefaultTimeout stops any worker process that runs longer than this.
const DefaultTimeout = 120 * time.Second

// ErrorLog receives the raw output of failed runs, framed by the command
// that produced it.
type ErrorLog interface {
	TestError(command string, output string)
}

// FailKind distinguishes how a single process run failed.
type FailKind int

const (
	// FailProcess means the process exited with a non-zero status.
	FailProcess FailKind = iota
	// FailTimeout means the process was killed after exceeding the timeout.
	FailTimeout
)

// RunError describes one failed process run. Output carries the captured
// text so callers like the session-limit probe can still inspect it.
type RunError struct {
	Kind     FailKind
	Reason   string
	ExitCode int
	Output   string
}

func (e *RunError) Error() string {
	if e.Kind == FailTimeout {
		return "ffmpeg run timed out"
	}
	return fmt.Sprintf("ffmpeg exited with status %d: %s", e.ExitCode, e.Reason)
}

// Runner executes one external process per call with captured output and a
// hard timeout.
type Runner struct {
	timeout time.Duration
	log     *slog.Logger
	errLog  ErrorLog
}

// NewRunner builds a Runner. A zero timeout selects DefaultTimeout; errLog
// may be nil when no failure log is wanted.
func NewRunner(timeout time.Duration, log *slog.Logger, errLog ErrorLog) *Runner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	return &Runner{timeout: timeout, log: log, errLog: errLog}
}

// Run executes the command and returns its captured stderr, which is where
// ffmpeg writes progress and benchmark reports. On timeout the process is
// killed and a RunError with FailTimeout is returned. A non-zero exit is
// classified against the known failure patterns. When the parent context is
// cancelled (a sibling worker failed) the context error is returned as-is.
func (r *Runner) Run(ctx context.Context, cmd Command) (string, error) {
	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	proc := exec.CommandContext(runCtx, cmd.Path(), cmd.Args()...)
	var stdout, stderr bytes.Buffer
	proc.Stdout = &stdout
	proc.Stderr = &stderr

	start := time.Now()
	err := proc.Run()
	output := stderr.String()
	if output == "" {
		output = stdout.String()
	}

	if err == nil {
		r.log.Debug("ffmpeg finished", slog.Duration("took", time.Since(start)))
		return output, nil
	}

	if ctx.Err() != nil {
		// Cancelled from above; the trial is already failing elsewhere.
		return "", ctx.Err()
	}

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		r.logFailure(cmd, output)
		return "", &RunError{Kind: FailTimeout, Reason: "timeout", Output: output}
	}

	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return "", fmt.Errorf("run %s: %w", cmd.Path(), err)
	}

	code := exitErr.ExitCode()
	reason := UnclassifiedFailure
	if code > 0 && code < 255 {
		if extracted := classifyFailure(output); extracted != "" {
			reason = extracted
		}
	} else {
		reason = fmt.Sprintf("ffmpeg exited with status %d", code)
	}
	r.logFailure(cmd, output)
	return "", &RunError{Kind: FailProcess, Reason: reason, ExitCode: code, Output: output}
}

func (r *Runner) logFailure(cmd Command, output string) {
	if r.errLog != nil {
		r.errLog.TestError(cmd.String(), output)
	}
}
