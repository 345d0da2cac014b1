package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/lyra-agent/lyra/internal/agent/tools"
	"github.com/lyra-agent/lyra/internal/config"
	"github.com/lyra-agent/lyra/internal/store"
	"github.com/lyra-agent/lyra/internal/system/tasklog"
)

// ReplyKind says which stage produced a reply.
type ReplyKind string

const (
	KindEmpty    ReplyKind = "empty"
	KindExit     ReplyKind = "exit"
	KindConfirm  ReplyKind = "confirm"
	KindControl  ReplyKind = "control"
	KindTool     ReplyKind = "tool"
	KindSystem   ReplyKind = "system"
	KindModel    ReplyKind = "model"
	KindProposal ReplyKind = "proposal"
	KindError    ReplyKind = "error"
)

// Reply is the result of handling one line.
type Reply struct {
	Text string
	Kind ReplyKind
	Exit bool
}

// BackendLyra marks memory entries answered by Lyra itself rather than a
// model; they are left out of the prompt context.
const BackendLyra = "lyra"

// Options are the collaborators of a Pipeline. Audit may be nil.
type Options struct {
	Config   *config.Store
	State    *store.StateStore
	Memory   *store.MemoryLog
	Stats    *store.StatsCache
	Audit    *tasklog.Store
	Router   *IntentRouter
	Registry *ToolRegistry
	Chain    *Chain
	Consent  *ConsentManager
	Shell    tools.Shell
	Session  *Session
	Logger   *slog.Logger
}

// Pipeline handles one input line at a time.
type Pipeline struct {
	mu sync.Mutex

	cfg      *config.Store
	state    *store.StateStore
	memory   *store.MemoryLog
	stats    *store.StatsCache
	audit    *tasklog.Store
	router   *IntentRouter
	registry *ToolRegistry
	chain    *Chain
	consent  *ConsentManager
	shell    tools.Shell
	session  *Session
	prompts  PromptBuilder
	logger   *slog.Logger
	now      func() time.Time
}

// NewPipeline wires the given collaborators. Router and Session default to
// fresh values.
func NewPipeline(opts Options) *Pipeline {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Router == nil {
		opts.Router = NewIntentRouter(nil)
	}
	if opts.Session == nil {
		opts.Session = NewSession()
	}
	p := &Pipeline{
		cfg:      opts.Config,
		state:    opts.State,
		memory:   opts.Memory,
		stats:    opts.Stats,
		audit:    opts.Audit,
		router:   opts.Router,
		registry: opts.Registry,
		chain:    opts.Chain,
		consent:  opts.Consent,
		shell:    opts.Shell,
		session:  opts.Session,
		logger:   opts.Logger.With("component", "pipeline"),
		now:      time.Now,
	}
	if p.registry != nil {
		for _, s := range p.registry.Specs() {
			p.prompts.ToolNames = append(p.prompts.ToolNames, s.Name)
		}
	}
	return p
}

// Session returns the pipeline's session.
func (p *Pipeline) Session() *Session { return p.session }

// Registry returns the tool registry.
func (p *Pipeline) Registry() *ToolRegistry { return p.registry }

// Handle runs one line through the pipeline. It never panics and never
// returns an error; failures come back as text.
func (p *Pipeline) Handle(ctx context.Context, line string) (reply Reply) {
	p.mu.Lock()
	defer p.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("pipeline panic", "panic", r, "input", line)
			reply = Reply{Text: fmt.Sprintf("❌ Błąd wewnętrzny: %v", r), Kind: KindError}
		}
	}()

	in := Normalize(line)
	if in.Empty() {
		return Reply{Kind: KindEmpty}
	}
	cmd := stripWake(in.Text)
	switch Fold(cmd) {
	case "exit", "quit":
		return Reply{Text: "👋 Do zobaczenia!", Kind: KindExit, Exit: true}
	}
	p.session.Handled++
	p.logger.Debug("handling input", "text", in.Text, "session", p.session.ID)

	if _, pending := p.session.Confirm.Pending(); pending {
		return p.resolvePending(ctx, in)
	}
	if text, name, ok := p.control(ctx, cmd); ok {
		p.remember(store.TextEntry(in.Text, text, BackendLyra, ""))
		p.persist(nil)
		p.record(&tasklog.Record{Action: tasklog.ActionControl, Name: name, Input: in.Text, Output: text})
		return Reply{Text: text, Kind: KindControl}
	}
	if intent, ok := p.router.Route(in.Text); ok {
		return p.runTool(ctx, in, intent.Tool, intent.Arg)
	}
	return p.askModel(ctx, in, cmd)
}

func (p *Pipeline) resolvePending(ctx context.Context, in Normalized) Reply {
	if cmd, _ := p.session.Confirm.Pending(); p.dryRun() && answerToken(in.Text) == "yes" {
		p.session.Confirm.Reset()
		text := dryRunCommandText(cmd)
		p.remember(store.TextEntry(in.Text, text, BackendLyra, ""))
		p.persist(clearPending(nil))
		p.record(&tasklog.Record{Action: tasklog.ActionSystem, Name: "confirmed", Input: cmd, Output: text, Status: tasklog.StatusDryRun})
		return Reply{Text: text, Kind: KindConfirm}
	}

	res := p.session.Confirm.Resolve(ctx, in.Text, p.shell)
	updates := map[string]any{}
	switch res.Outcome {
	case Executed:
		p.remember(store.SystemEntry(res.Command, res.Output))
		updates[store.KeyLastSystemCmd] = res.Command
		updates[store.KeyLastSystemOutput] = res.Output
		p.persist(clearPending(updates))
		p.record(&tasklog.Record{Action: tasklog.ActionSystem, Name: "confirmed", Input: res.Command, Output: res.Output, Status: shellStatus(res.Output)})
		return Reply{Text: res.Text, Kind: KindSystem}
	case Cancelled:
		clearPending(updates)
		p.record(&tasklog.Record{Action: tasklog.ActionSystem, Name: "confirmed", Input: res.Command, Output: res.Text, Status: tasklog.StatusRefused})
	}
	p.remember(store.TextEntry(in.Text, res.Text, BackendLyra, ""))
	p.persist(updates)
	return Reply{Text: res.Text, Kind: KindConfirm}
}

// runTool dispatches a tool and follows a SYSTEM: proposal in its output.
func (p *Pipeline) runTool(ctx context.Context, in Normalized, name, arg string) Reply {
	if spec, ok := p.registry.Lookup(name); ok && p.dryRun() && !spec.Capability.ReadOnly() &&
		(ExecPolicy{Level: p.cfg.Snapshot().ExecLevel}).AllowsTool(spec.Capability) {
		text := fmt.Sprintf("🧪 Tryb próbny: narzędzie %s (%s) nie zostało uruchomione.", spec.Name, spec.Capability)
		p.remember(store.ToolEntry(spec.Name, arg, text))
		p.persist(map[string]any{
			store.KeyLastTool:       spec.Name,
			store.KeyLastToolArg:    arg,
			store.KeyLastToolOutput: text,
		})
		p.record(&tasklog.Record{Action: tasklog.ActionTool, Name: spec.Name, Input: in.Text, Output: text, Status: tasklog.StatusDryRun})
		return Reply{Text: text, Kind: KindTool}
	}

	run := p.registry.Run(ctx, name, arg)
	text := run.Text
	kind := KindTool
	updates := map[string]any{
		store.KeyLastTool:    run.Name,
		store.KeyLastToolArg: arg,
	}
	if run.Status == ToolOK {
		if d := ParseDirective(text); d.Kind == DirectiveSystem && strings.HasPrefix(strings.TrimSpace(text), tools.SystemPrefix) {
			text = p.systemDirective(ctx, d.Command, run.Name, updates)
			if _, pending := p.session.Confirm.Pending(); pending {
				kind = KindConfirm
			}
		}
	}
	updates[store.KeyLastToolOutput] = text
	p.remember(store.ToolEntry(run.Name, arg, text))
	p.persist(updates)
	p.record(&tasklog.Record{
		Action: tasklog.ActionTool, Name: run.Name, Input: in.Text, Output: text,
		Status: toolAuditStatus(run.Status), DurationMs: run.Duration.Milliseconds(),
	})
	return Reply{Text: text, Kind: kind}
}

// systemDirective applies the exec policy to a proposed shell command and
// returns the text to show. Executed commands land in updates.
func (p *Pipeline) systemDirective(ctx context.Context, command, source string, updates map[string]any) string {
	policy := ExecPolicy{Level: p.cfg.Snapshot().ExecLevel}
	verdict, risk := policy.Directive(command)
	log := p.logger.With("command", command, "risk", risk.String(), "source", source)

	if verdict != VerdictRefuse && p.dryRun() {
		log.Info("system directive skipped in dry-run")
		text := dryRunCommandText(command)
		p.record(&tasklog.Record{Action: tasklog.ActionSystem, Name: source, Input: command, Output: text, Status: tasklog.StatusDryRun})
		return text
	}

	switch verdict {
	case VerdictRun:
		start := p.now()
		out := p.shell.Run(ctx, command)
		updates[store.KeyLastSystemCmd] = command
		updates[store.KeyLastSystemOutput] = out
		log.Info("system directive executed")
		p.record(&tasklog.Record{Action: tasklog.ActionSystem, Name: source, Input: command, Output: out,
			Status: shellStatus(out), DurationMs: p.now().Sub(start).Milliseconds()})
		return out
	case VerdictConfirm:
		prompt, accepted := p.session.Confirm.Request(command)
		if accepted {
			updates[store.KeyPendingCommand] = command
			updates[store.KeyPendingSince] = p.now().Format(time.RFC3339)
		}
		log.Info("system directive awaiting confirmation", "accepted", accepted)
		p.record(&tasklog.Record{Action: tasklog.ActionSystem, Name: source, Input: command, Output: prompt, Status: tasklog.StatusPending})
		return prompt
	default:
		log.Info("system directive refused")
		text := fmt.Sprintf("⛔ Poziom %d: polecenie o ryzyku %s jest zablokowane:\n    %s\nUżyj: lyra poziom 2 lub 3.",
			ClampLevel(policy.Level), riskLabel(risk), command)
		p.record(&tasklog.Record{Action: tasklog.ActionSystem, Name: source, Input: command, Output: text, Status: tasklog.StatusRefused})
		return text
	}
}

func (p *Pipeline) askModel(ctx context.Context, in Normalized, question string) Reply {
	cfg := p.cfg.Snapshot()
	forced := p.session.Forced
	if forced == ForceNone && cfg.Backend == config.BackendOpenAI {
		forced = ForceCloud
	}

	window := contextWindow(cfg)
	history, err := p.memory.TailText(window * 3)
	if err != nil {
		p.logger.Warn("read memory context failed", "error", err)
	}
	state, err := p.state.Load()
	if err != nil {
		p.logger.Warn("read state failed", "error", err)
	}
	system, prompt := p.prompts.Build(modelHistory(history, window), state, question)

	start := p.now()
	ans := p.chain.Ask(ctx, Query{System: system, Prompt: prompt, UserText: question, Forced: forced})
	p.record(&tasklog.Record{
		Action: tasklog.ActionModel, Name: ans.Backend, Model: ans.Model, Input: question, Output: ans.Text,
		Status: modelAuditStatus(ans), Error: attemptErrors(ans), DurationMs: p.now().Sub(start).Milliseconds(),
		TokensIn: ans.Stats.PromptTokens, TokensOut: ans.Stats.GenTokens,
	})

	updates := map[string]any{store.KeyLastInference: ans.Inference}
	if !ans.Degraded && !ans.Failed {
		p.session.LastBackend = ans.Backend
		p.session.LastModel = ans.Model
		p.session.LastInference = ans.Inference
		if !ans.Stats.IsZero() {
			p.session.LastStats = ans.Stats
		}
		updates[store.KeyLastBackend] = ans.Backend
		updates[store.KeyLastModel] = ans.Model

		switch d := ParseDirective(ans.Text); d.Kind {
		case DirectiveSystem:
			text := p.systemDirective(ctx, d.Command, ans.Backend, updates)
			p.remember(store.SystemEntry(d.Command, text))
			p.persist(updates)
			kind := KindSystem
			if _, pending := p.session.Confirm.Pending(); pending {
				kind = KindConfirm
			}
			return Reply{Text: text, Kind: kind}
		case DirectiveTool:
			p.persist(updates)
			return p.runTool(ctx, in, d.Tool, d.Arg)
		case DirectivePropose:
			text := "💡 Propozycja narzędzia (nie wykonano):\n" + d.Proposal
			updates[store.KeyLastProposal] = d.Proposal
			p.remember(store.ProposalEntry(d.Proposal))
			p.persist(updates)
			p.record(&tasklog.Record{Action: tasklog.ActionPropose, Name: ans.Backend, Model: ans.Model, Input: question, Output: d.Proposal})
			return Reply{Text: text, Kind: KindProposal}
		}
	}

	backend := ans.Backend
	if backend == "" {
		backend = InferenceNone
	}
	p.remember(store.TextEntry(in.Text, ans.Text, backend, ans.Model))
	p.persist(updates)
	return Reply{Text: ans.Text, Kind: KindModel}
}

func (p *Pipeline) dryRun() bool { return p.cfg.Snapshot().DryRun }

func dryRunCommandText(command string) string {
	return "🧪 Tryb próbny: polecenie nie zostało wykonane:\n    " + command
}

func (p *Pipeline) remember(e store.Entry) {
	if err := p.memory.Append(e); err != nil {
		p.logger.Error("memory append failed", "type", e.Type, "error", err)
	}
}

func (p *Pipeline) persist(updates map[string]any) {
	if updates == nil {
		updates = map[string]any{}
	}
	updates[store.KeyLastSeen] = p.now().Format(time.RFC3339)
	updates[store.KeySessionID] = p.session.ID
	if err := p.state.Merge(updates); err != nil {
		p.logger.Error("state update failed", "error", err)
	}
}

func (p *Pipeline) record(rec *tasklog.Record) {
	if p.audit == nil {
		return
	}
	rec.SessionID = p.session.ID
	if err := p.audit.Log(rec); err != nil {
		p.logger.Warn("audit log failed", "action", rec.Action, "error", err)
	}
}

func contextWindow(cfg config.Config) int {
	if cfg.ContextWindow <= 0 {
		return 5
	}
	return cfg.ContextWindow
}

// modelHistory keeps TEXT entries answered by a model, newest last.
func modelHistory(entries []store.Entry, n int) []store.Entry {
	out := make([]store.Entry, 0, len(entries))
	for _, e := range entries {
		if e.Backend == BackendLyra || e.Backend == InferenceNone {
			continue
		}
		out = append(out, e)
	}
	if len(out) > n {
		out = out[len(out)-n:]
	}
	return out
}

func shellStatus(out string) string {
	if strings.HasPrefix(out, "[TIMEOUT]") || strings.HasPrefix(out, "[ERROR]") || strings.Contains(out, "\n[exit ") || strings.HasPrefix(out, "[exit ") {
		return tasklog.StatusError
	}
	return tasklog.StatusSuccess
}

func toolAuditStatus(s ToolStatus) string {
	switch s {
	case ToolOK:
		return tasklog.StatusSuccess
	case ToolRefused:
		return tasklog.StatusRefused
	}
	return tasklog.StatusError
}

func modelAuditStatus(a Answer) string {
	switch {
	case a.Degraded:
		return tasklog.StatusDegraded
	case a.Failed:
		return tasklog.StatusError
	}
	return tasklog.StatusSuccess
}

func attemptErrors(a Answer) string {
	var errs []string
	for _, at := range a.Attempts {
		if at.Error != "" {
			errs = append(errs, at.Backend+": "+at.Error)
		}
	}
	return strings.Join(errs, "; ")
}

func riskLabel(r Risk) string {
	switch r {
	case RiskHigh:
		return "wysokim"
	case RiskMedium:
		return "średnim"
	}
	return "niskim"
}
