package agent

import (
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/lyra-agent/lyra/internal/agent/providers"
	"github.com/lyra-agent/lyra/internal/agent/tools"
	"github.com/lyra-agent/lyra/internal/config"
	"github.com/lyra-agent/lyra/internal/infra"
	"github.com/lyra-agent/lyra/internal/store"
	"github.com/lyra-agent/lyra/internal/system/tasklog"
)

// stateFiles keeps FILE_READ's last file in the persistent state.
type stateFiles struct {
	state  *store.StateStore
	logger *slog.Logger
}

func (s stateFiles) LastFile() string { return s.state.Get(store.KeyLastFile) }

func (s stateFiles) SetLastFile(path string) {
	if err := s.state.Set(store.KeyLastFile, path); err != nil {
		s.logger.Warn("remember last file failed", "path", path, "error", err)
	}
}

func seconds(n, fallback int) time.Duration {
	if n <= 0 {
		n = fallback
	}
	return time.Duration(n) * time.Second
}

// Backends builds the local, cloud and brain backends for cfg.
func Backends(cfg config.Config) (local, cloud, brain providers.Backend) {
	model := cfg.LocalModelName()
	timeout := seconds(cfg.LocalTimeout, 90)
	if cfg.LocalBackend == config.LocalLlama {
		local = providers.NewLlamaBackend(cfg.LlamaURL, model, timeout)
	} else {
		local = providers.NewOllamaBackend(cfg.OllamaURL, model, timeout)
	}
	cloud = providers.NewCloudBackend(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel, seconds(cfg.CloudTimeout, 20))
	brain = providers.NewBrainBackend(model, nil)
	return local, cloud, brain
}

// Build wires a Pipeline from the configuration. prompter and audit may be
// nil.
func Build(cfgStore *config.Store, prompter Prompter, audit *tasklog.Store, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	cfg := cfgStore.Snapshot()

	state := store.NewStateStore(cfgStore.Resolve(cfg.StateFile), logger)
	memory := store.NewMemoryLog(cfgStore.Resolve(cfg.MemoryFile), store.MemoryOptions{
		Threshold: cfg.MemoryArchiveThreshold,
		Keep:      cfg.MemoryArchiveKeep,
	}, logger)
	stats := store.NewStatsCache(filepath.Join(cfgStore.LogsDir(), store.StatsFile), cfg.StatsClampFloor, cfg.StatsClampFactor, logger)

	shell := tools.NewExecutor(seconds(cfg.ShellTimeout, 30), logger)
	registry := NewToolRegistry(shell, func() int { return cfgStore.Snapshot().ExecLevel }, logger)
	if err := registry.RegisterAll(tools.Builtin(tools.Options{
		SearchURL: cfg.SearchURL,
		Files:     stateFiles{state: state, logger: logger},
	})); err != nil {
		logger.Error("register tools failed", "error", err)
	}

	consent := NewConsentManager(cfgStore, prompter, logger)
	local, cloud, brain := Backends(cfg)
	chain := NewChain(ChainOptions{
		Local:   local,
		Cloud:   cloud,
		Brain:   brain,
		Consent: consent,
		Stats:   stats,
		Logger:  logger,
	})

	return NewPipeline(Options{
		Config:   cfgStore,
		State:    state,
		Memory:   memory,
		Stats:    stats,
		Audit:    audit,
		Registry: registry,
		Chain:    chain,
		Consent:  consent,
		Shell:    shell,
		Logger:   logger,
	})
}

// Reconfigure rebuilds backends and timeouts after a config change. The
// session, consent and stats cache are kept.
func (p *Pipeline) Reconfigure() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reconfigureLocked()
}

func (p *Pipeline) reconfigureLocked() {
	cfg := p.cfg.Snapshot()
	local, cloud, brain := Backends(cfg)
	acceptable := p.chain.acceptable
	p.chain = NewChain(ChainOptions{
		Local:      local,
		Cloud:      cloud,
		Brain:      brain,
		Consent:    p.consent,
		Stats:      p.stats,
		Acceptable: acceptable,
		Logger:     p.logger,
	})
	if ex, ok := p.shell.(*tools.Executor); ok {
		ex.Timeout = seconds(cfg.ShellTimeout, 30)
	}
	p.logger.Info("pipeline reconfigured", "local_backend", cfg.LocalBackend, "model", cfg.LocalModelName(), "exec_level", cfg.ExecLevel)
}

// Start records the session and host facts in the state file and picks up
// a command still waiting for confirmation from an earlier run.
func (p *Pipeline) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.restorePending()
	host := infra.Host()
	p.persist(map[string]any{
		store.KeyOS:     host.OS,
		store.KeyKernel: host.Kernel,
	})
	p.logger.Info("session started", "session", p.session.ID)
}

// pendingTTL bounds how long a persisted confirmation survives between runs.
const pendingTTL = 10 * time.Minute

func (p *Pipeline) restorePending() {
	cmd := strings.TrimSpace(p.state.Get(store.KeyPendingCommand))
	if cmd == "" {
		return
	}
	since, err := time.Parse(time.RFC3339, p.state.Get(store.KeyPendingSince))
	if err != nil || p.now().Sub(since) > pendingTTL {
		p.logger.Info("dropping stale pending command", "command", cmd)
		p.persist(clearPending(nil))
		return
	}
	if _, ok := p.session.Confirm.Request(cmd); ok {
		p.logger.Info("restored pending command", "command", cmd)
	}
}

// clearPending marks the persisted confirmation as resolved.
func clearPending(updates map[string]any) map[string]any {
	if updates == nil {
		updates = map[string]any{}
	}
	updates[store.KeyPendingCommand] = ""
	updates[store.KeyPendingSince] = ""
	return updates
}

// Store accessors for the CLI.

func (p *Pipeline) State() *store.StateStore { return p.state }
func (p *Pipeline) Memory() *store.MemoryLog { return p.memory }
func (p *Pipeline) Stats() *store.StatsCache { return p.stats }
func (p *Pipeline) Consent() *ConsentManager { return p.consent }
