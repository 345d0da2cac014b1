package providers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// BrainTimeout bounds one `ollama run` invocation.
const BrainTimeout = 120 * time.Second

// CommandRunner runs a program and returns its stdout.
type CommandRunner func(ctx context.Context, name string, args ...string) (string, error)

// ExecRunner runs the program with os/exec; stderr is folded into the error.
func ExecRunner(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return "", err
		}
		return "", fmt.Errorf("%w: %s", err, msg)
	}
	return stdout.String(), nil
}

// BrainBackend is the last model resort: the ollama CLI with the prompt as
// an argument.
type BrainBackend struct {
	model   string
	run     CommandRunner
	timeout time.Duration
}

// NewBrainBackend uses ExecRunner when run is nil.
func NewBrainBackend(model string, run CommandRunner) *BrainBackend {
	if run == nil {
		run = ExecRunner
	}
	return &BrainBackend{model: model, run: run, timeout: BrainTimeout}
}

func (b *BrainBackend) Name() string  { return NameBrain }
func (b *BrainBackend) Model() string { return b.model }

// Generate runs `ollama run <model> <prompt>`.
func (b *BrainBackend) Generate(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(b.model) == "" {
		return Result{}, errors.New("brak aktywnego modelu lokalnego")
	}
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	out, err := b.run(ctx, "ollama", "run", b.model, joinPrompt(req))
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Result{}, fmt.Errorf("ollama run: timeout after %s", b.timeout)
		}
		return Result{}, fmt.Errorf("ollama run: %w", err)
	}
	return Result{Text: strings.TrimSpace(out), Model: b.model}, nil
}
