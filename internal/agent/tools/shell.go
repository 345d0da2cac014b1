// Package tools implements Lyra's deterministic tool handlers and the
// shell executor they run through.
package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// Shell runs one command line and renders the outcome as text. It never
// returns an error: timeouts and failures become part of the text.
type Shell interface {
	Run(ctx context.Context, command string) string
}

// Result is the raw outcome of one execution.
type Result struct {
	Command  string
	Output   string
	ExitCode int
	TimedOut bool
	Err      error
	Duration time.Duration
}

// Text renders r the way the user sees it.
func (r Result) Text() string {
	switch {
	case r.TimedOut:
		return "[TIMEOUT] " + r.Command
	case r.Err != nil:
		return fmt.Sprintf("[ERROR] %s: %v", r.Command, r.Err)
	}
	out := strings.TrimRight(r.Output, "\n")
	if r.ExitCode != 0 {
		if out == "" {
			return fmt.Sprintf("[exit %d]", r.ExitCode)
		}
		return fmt.Sprintf("%s\n[exit %d]", out, r.ExitCode)
	}
	if strings.TrimSpace(out) == "" {
		return "✅ Wykonano pomyślnie: " + r.Command
	}
	return out
}

// Executor runs commands with `sh -c` under a timeout and returns combined
// stdout and stderr.
type Executor struct {
	Timeout time.Duration
	Dir     string
	Logger  *slog.Logger
	// OnRun, when set, sees every finished execution.
	OnRun func(Result)
}

// NewExecutor returns an executor with the given per-command timeout.
func NewExecutor(timeout time.Duration, logger *slog.Logger) *Executor {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{Timeout: timeout, Logger: logger.With("component", "shell")}
}

// Run implements Shell.
func (e *Executor) Run(ctx context.Context, command string) string {
	return e.Exec(ctx, command).Text()
}

// Exec runs command and returns the raw result.
func (e *Executor) Exec(ctx context.Context, command string) Result {
	command = strings.TrimSpace(command)
	res := Result{Command: command}
	if command == "" {
		res.Err = errors.New("empty command")
		return res
	}

	runCtx, cancel := context.WithTimeout(ctx, e.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "sh", "-c", command)
	cmd.Dir = e.Dir
	cmd.WaitDelay = 500 * time.Millisecond
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	start := time.Now()
	err := cmd.Run()
	res.Duration = time.Since(start)
	res.Output = buf.String()

	switch {
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		res.TimedOut = true
	case err != nil:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
		} else {
			res.Err = err
		}
	}

	e.Logger.Info("shell command",
		"command", command,
		"exit", res.ExitCode,
		"timeout", res.TimedOut,
		"duration_ms", res.Duration.Milliseconds(),
	)
	if e.OnRun != nil {
		e.OnRun(res)
	}
	return res
}
