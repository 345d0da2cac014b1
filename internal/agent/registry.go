package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lyra-agent/lyra/internal/agent/tools"
)

// ToolStatus is the outcome class of one dispatch.
type ToolStatus string

const (
	ToolOK      ToolStatus = "success"
	ToolError   ToolStatus = "error"
	ToolRefused ToolStatus = "refused"
	ToolUnknown ToolStatus = "unknown"
)

// ToolRun is the detailed result of a dispatch.
type ToolRun struct {
	Name     string
	Arg      string
	Text     string
	Status   ToolStatus
	Duration time.Duration
}

// ToolRegistry maps tool names to handlers. Registration is closed by the
// first dispatch.
type ToolRegistry struct {
	mu     sync.RWMutex
	tools  map[string]tools.Spec
	sealed bool
	shell  tools.Shell
	level  func() int
	logger *slog.Logger
}

// NewToolRegistry creates an empty registry. level reports the current
// exec_level and is read on every dispatch.
func NewToolRegistry(sh tools.Shell, level func() int, logger *slog.Logger) *ToolRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	if level == nil {
		level = func() int { return 1 }
	}
	return &ToolRegistry{
		tools:  make(map[string]tools.Spec),
		shell:  sh,
		level:  level,
		logger: logger.With("component", "tool"),
	}
}

// Register adds a tool. Names are stored upper-case.
func (r *ToolRegistry) Register(spec tools.Spec) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return fmt.Errorf("tool registry is sealed, cannot add %s", spec.Name)
	}
	name := normalizeToolName(spec.Name)
	if name == "" || spec.Handler == nil {
		return fmt.Errorf("invalid tool spec %q", spec.Name)
	}
	if _, dup := r.tools[name]; dup {
		return fmt.Errorf("tool %s already registered", name)
	}
	spec.Name = name
	r.tools[name] = spec
	return nil
}

// RegisterAll adds every spec, stopping at the first error.
func (r *ToolRegistry) RegisterAll(specs []tools.Spec) error {
	for _, s := range specs {
		if err := r.Register(s); err != nil {
			return err
		}
	}
	return nil
}

// Specs returns all registered tool specs.
func (r *ToolRegistry) Specs() []tools.Spec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	specs := make([]tools.Spec, 0, len(r.tools))
	for _, s := range r.tools {
		specs = append(specs, s)
	}
	sort.Slice(specs, func(i, j int) bool {
		return specs[i].Name < specs[j].Name
	})
	return specs
}

// Lookup finds a tool by case-insensitive name.
func (r *ToolRegistry) Lookup(name string) (tools.Spec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.tools[normalizeToolName(name)]
	return s, ok
}

// Has reports whether a tool is registered.
func (r *ToolRegistry) Has(name string) bool {
	_, ok := r.Lookup(name)
	return ok
}

// Dispatch runs a tool and returns its text. It never fails.
func (r *ToolRegistry) Dispatch(ctx context.Context, name, arg string) string {
	return r.Run(ctx, name, arg).Text
}

// Run is Dispatch with the outcome details.
func (r *ToolRegistry) Run(ctx context.Context, name, arg string) (run ToolRun) {
	r.mu.Lock()
	r.sealed = true
	r.mu.Unlock()

	name = normalizeToolName(name)
	run = ToolRun{Name: name, Arg: arg}
	spec, ok := r.Lookup(name)
	if !ok {
		run.Status = ToolUnknown
		run.Text = "❓ Nieznane narzędzie: " + name
		r.logger.Warn("unknown tool", "tool", name)
		return run
	}

	policy := ExecPolicy{Level: r.level()}
	if !policy.AllowsTool(spec.Capability) {
		run.Status = ToolRefused
		run.Text = policy.ToolRefusal(name, spec.Capability)
		r.logger.Info("tool refused by exec level", "tool", name, "level", policy.Level)
		return run
	}

	log := r.logger.With("tool", name)
	start := time.Now()
	defer func() {
		run.Duration = time.Since(start)
		if p := recover(); p != nil {
			run.Status = ToolError
			run.Text = fmt.Sprintf("❌ Błąd narzędzia %s: %v", name, p)
			log.Error("tool panicked", "panic", p)
		}
	}()

	out, err := spec.Handler(ctx, arg, r.shell, log)
	if err != nil {
		run.Status = ToolError
		run.Text = fmt.Sprintf("❌ Błąd narzędzia %s: %v", name, err)
		log.Warn("tool failed", "error", err)
		return run
	}
	run.Status = ToolOK
	run.Text = out
	log.Info("tool finished", "arg", arg, "bytes", len(out))
	return run
}

func normalizeToolName(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}
