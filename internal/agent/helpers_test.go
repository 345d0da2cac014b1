package agent

import (
	"context"
	"io"
	"log/slog"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"

	"github.com/lyra-agent/lyra/internal/agent/providers"
	"github.com/lyra-agent/lyra/internal/agent/tools"
	"github.com/lyra-agent/lyra/internal/config"
	"github.com/lyra-agent/lyra/internal/store"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type reply struct {
	text string
	err  error
}

// fakeBackend answers from a script; the last reply repeats.
type fakeBackend struct {
	name         string
	model        string
	unconfigured bool

	mu      sync.Mutex
	replies []reply
	calls   int
	prompts []providers.Request
}

func newFake(name string, replies ...reply) *fakeBackend {
	return &fakeBackend{name: name, model: name + "-model", replies: replies}
}

func (f *fakeBackend) Name() string     { return f.name }
func (f *fakeBackend) Model() string    { return f.model }
func (f *fakeBackend) Configured() bool { return !f.unconfigured }

func (f *fakeBackend) Generate(_ context.Context, req providers.Request) (providers.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.prompts = append(f.prompts, req)
	if len(f.replies) == 0 {
		return providers.Result{}, nil
	}
	r := f.replies[min(f.calls-1, len(f.replies)-1)]
	if r.err != nil {
		return providers.Result{}, r.err
	}
	return providers.Result{Text: r.text}, nil
}

func (f *fakeBackend) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestConfig(t *testing.T, values map[string]any) *config.Store {
	t.Helper()
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("LYRA_LOGS_DIR", "")
	path := filepath.Join(t.TempDir(), "config.json")
	cfg, err := config.Create(path, values, false)
	if err != nil {
		t.Fatalf("create config: %v", err)
	}
	return cfg
}

type testRig struct {
	cfg      *config.Store
	pipeline *Pipeline
	shell    *spyShell
	local    *fakeBackend
	cloud    *fakeBackend
	brain    *fakeBackend
	memory   *store.MemoryLog
	state    *store.StateStore
	routed   int
	prompter *scriptedPrompter
}

type scriptedPrompter struct {
	answers []string
	asked   int
}

func (p *scriptedPrompter) Ask(context.Context, string) (string, error) {
	p.asked++
	if len(p.answers) == 0 {
		return "", nil
	}
	a := p.answers[0]
	p.answers = p.answers[1:]
	return a, nil
}

// newRig wires a pipeline over fakes. Every route attempt is counted.
func newRig(t *testing.T, values map[string]any) *testRig {
	t.Helper()
	return rigFor(t, newTestConfig(t, values))
}

// rigFor wires a pipeline over an existing config, as a second lyra process
// would.
func rigFor(t *testing.T, cfg *config.Store) *testRig {
	t.Helper()
	rig := &testRig{
		cfg:      cfg,
		shell:    &spyShell{},
		local:    newFake("ollama", reply{text: "lokalna odpowiedź"}),
		cloud:    newFake("openai", reply{text: "odpowiedź z chmury"}),
		brain:    newFake("brain", reply{text: "odpowiedź mózgu"}),
		prompter: &scriptedPrompter{},
	}
	snap := cfg.Snapshot()
	rig.state = store.NewStateStore(cfg.Resolve(snap.StateFile), discard)
	rig.memory = store.NewMemoryLog(cfg.Resolve(snap.MemoryFile), store.MemoryOptions{}, discard)
	stats := store.NewStatsCache(filepath.Join(cfg.LogsDir(), store.StatsFile), snap.StatsClampFloor, snap.StatsClampFactor, discard)

	registry := NewToolRegistry(rig.shell, func() int { return cfg.Snapshot().ExecLevel }, discard)
	err := registry.RegisterAll(tools.Builtin(tools.Options{
		LookPath: func(name string) (string, error) {
			if name == "apt" {
				return "/usr/bin/apt", nil
			}
			return "", exec.ErrNotFound
		},
	}))
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	rules := DefaultIntentRules()
	spy := IntentRule{Name: "spy", Match: func(RouteInput) (Intent, bool) {
		rig.routed++
		return Intent{}, false
	}}
	router := NewIntentRouter(append([]IntentRule{spy}, rules...))

	consent := NewConsentManager(cfg, rig.prompter, discard)
	chain := NewChain(ChainOptions{
		Local: rig.local, Cloud: rig.cloud, Brain: rig.brain,
		Consent: consent, Stats: stats, Logger: discard,
	})
	chain.retryDelay = 0

	rig.pipeline = NewPipeline(Options{
		Config:   cfg,
		State:    rig.state,
		Memory:   rig.memory,
		Stats:    stats,
		Router:   router,
		Registry: registry,
		Chain:    chain,
		Consent:  consent,
		Shell:    rig.shell,
		Logger:   discard,
	})
	return rig
}

func (r *testRig) modelCalls() int {
	return r.local.Calls() + r.cloud.Calls() + r.brain.Calls()
}

func (r *testRig) entries(t *testing.T) []store.Entry {
	t.Helper()
	all, err := r.memory.All()
	if err != nil {
		t.Fatalf("memory: %v", err)
	}
	return all
}
