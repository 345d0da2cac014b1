package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lyra-agent/lyra/internal/agent/providers"
	"github.com/lyra-agent/lyra/internal/store"
)

// DegradedMessage is the chain's answer when no backend produced anything.
const DegradedMessage = "⚠️ Żaden model nie jest teraz dostępny. Sprawdź, czy działa lokalny serwer modeli (ollama/llama.cpp) albo ustaw zgodę na GPT: zgoda gpt zawsze."

const brainInstruction = "Odpowiedz krótko i konkretnie po polsku, jednym akapitem."

// Forced backend values kept in the session.
const (
	ForceNone  = ""
	ForceLocal = "local"
	ForceCloud = "cloud"
)

// Inference kinds recorded in state.
const (
	InferenceLocal = "local"
	InferenceCloud = "cloud"
	InferenceBrain = "brain"
	InferenceNone  = "none"
)

var unacceptableMarkers = []string{
	"nie wiem",
	"brak odpowiedzi",
	"brak danych",
	"nie mam danych",
	"nie jestem pewien",
	"nie jestem pewna",
	"nie posiadam informacji",
	"nie mam informacji",
	"offline + lokalny model nie działa",
	"błąd modelu",
}

var errorPrefixes = []string{"błąd api", "blad api", "connection error", "[error]"}

// DefaultAcceptable rejects empty answers, "I don't know" boilerplate and
// error texts.
func DefaultAcceptable(text string) bool {
	low := strings.ToLower(strings.TrimSpace(text))
	if low == "" {
		return false
	}
	for _, p := range errorPrefixes {
		if strings.HasPrefix(low, p) {
			return false
		}
	}
	return !containsAny(low, unacceptableMarkers...)
}

// Query is one model question.
type Query struct {
	System   string
	Prompt   string
	UserText string // raw question, used for the terse brain prompt
	Forced   string
}

// Attempt records one backend call.
type Attempt struct {
	Backend  string
	Model    string
	Accepted bool
	Error    string
	Duration time.Duration
}

// Answer is the outcome of Chain.Ask. Text is never empty.
type Answer struct {
	Text      string
	Backend   string
	Model     string
	Inference string
	Stats     store.Stats
	Attempts  []Attempt
	Degraded  bool
	Failed    bool // a forced backend failed
}

// ChainOptions are the collaborators of a Chain.
type ChainOptions struct {
	Local      providers.Backend
	Cloud      providers.Backend
	Brain      providers.Backend
	Consent    *ConsentManager
	Stats      *store.StatsCache
	Acceptable func(string) bool
	Logger     *slog.Logger
}

// Chain tries local, then cloud under consent, then the brain.
type Chain struct {
	local, cloud, brain providers.Backend
	consent             *ConsentManager
	stats               *store.StatsCache
	acceptable          func(string) bool
	logger              *slog.Logger
	retryDelay          time.Duration
	now                 func() time.Time
}

// NewChain builds a chain; a nil Acceptable uses DefaultAcceptable.
func NewChain(opts ChainOptions) *Chain {
	if opts.Acceptable == nil {
		opts.Acceptable = DefaultAcceptable
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Chain{
		local:      opts.Local,
		cloud:      opts.Cloud,
		brain:      opts.Brain,
		consent:    opts.Consent,
		stats:      opts.Stats,
		acceptable: opts.Acceptable,
		logger:     opts.Logger.With("component", "chain"),
		retryDelay: 500 * time.Millisecond,
		now:        time.Now,
	}
}

// Ask runs the chain. It never fails: the worst case is DegradedMessage.
func (c *Chain) Ask(ctx context.Context, q Query) Answer {
	req := providers.Request{System: q.System, Prompt: q.Prompt}
	var ans Answer

	switch q.Forced {
	case ForceLocal:
		return c.forced(ctx, c.local, InferenceLocal, req, &ans)
	case ForceCloud:
		return c.forced(ctx, c.cloud, InferenceCloud, req, &ans)
	}

	if c.local != nil {
		res, err := c.try(ctx, c.local, req, true, &ans)
		if err == nil && c.acceptable(res.Text) {
			return c.finish(ans, c.local, res, InferenceLocal)
		}
		if err == nil {
			c.logger.Info("local answer not acceptable", "backend", c.local.Name(), "chars", len(res.Text))
		}
	}

	if c.cloudConfigured() && c.consent != nil {
		allowed, err := c.consent.MayUseCloud(ctx)
		if err != nil {
			c.logger.Warn("consent prompt failed", "error", err)
		}
		if allowed {
			res, err := c.try(ctx, c.cloud, req, false, &ans)
			if cerr := c.consent.ConsumeOnce(); cerr != nil {
				c.logger.Warn("consume once consent failed", "error", cerr)
			}
			if err == nil && strings.TrimSpace(res.Text) != "" {
				return c.finish(ans, c.cloud, res, InferenceCloud)
			}
		} else {
			c.logger.Info("cloud escalation skipped", "policy", c.consent.Policy())
		}
	}

	if c.brain != nil {
		brainReq := providers.Request{System: brainInstruction, Prompt: q.UserText}
		if strings.TrimSpace(brainReq.Prompt) == "" {
			brainReq.Prompt = q.Prompt
		}
		res, err := c.try(ctx, c.brain, brainReq, false, &ans)
		if err == nil && strings.TrimSpace(res.Text) != "" {
			return c.finish(ans, c.brain, res, InferenceBrain)
		}
	}

	c.logger.Warn("every backend failed", "attempts", len(ans.Attempts))
	ans.Text = DegradedMessage
	ans.Inference = InferenceNone
	ans.Degraded = true
	return ans
}

func (c *Chain) forced(ctx context.Context, b providers.Backend, inference string, req providers.Request, ans *Answer) Answer {
	if b == nil {
		ans.Text = fmt.Sprintf("❌ Backend %s: nie skonfigurowano", inference)
		ans.Inference = InferenceNone
		ans.Failed = true
		return *ans
	}
	res, err := c.try(ctx, b, req, inference == InferenceLocal, ans)
	if err == nil && strings.TrimSpace(res.Text) == "" {
		err = errors.New("pusta odpowiedź")
	}
	if err != nil {
		ans.Text = fmt.Sprintf("❌ Backend %s: %s", b.Name(), providers.Describe(err))
		ans.Backend = b.Name()
		ans.Model = b.Model()
		ans.Inference = InferenceNone
		ans.Failed = true
		return *ans
	}
	return c.finish(*ans, b, res, inference)
}

// try calls b once, or twice when retry is set and the first error is
// transient.
func (c *Chain) try(ctx context.Context, b providers.Backend, req providers.Request, retry bool, ans *Answer) (providers.Result, error) {
	maxAttempts := 1
	if retry {
		maxAttempts = 2
	}
	var lastErr error
	for i := 1; i <= maxAttempts; i++ {
		start := c.now()
		res, err := b.Generate(ctx, req)
		att := Attempt{Backend: b.Name(), Model: b.Model(), Duration: c.now().Sub(start)}
		if err == nil {
			att.Accepted = true
			ans.Attempts = append(ans.Attempts, att)
			return res, nil
		}
		att.Error = providers.Describe(err)
		ans.Attempts = append(ans.Attempts, att)
		lastErr = err
		c.logger.Warn("backend call failed", "backend", b.Name(), "model", b.Model(), "attempt", i, "error", att.Error)
		if i == maxAttempts || !providers.IsRetryable(err) {
			break
		}
		select {
		case <-ctx.Done():
			return providers.Result{}, ctx.Err()
		case <-time.After(c.retryDelay):
		}
	}
	return providers.Result{}, lastErr
}

func (c *Chain) finish(ans Answer, b providers.Backend, res providers.Result, inference string) Answer {
	ans.Text = strings.TrimSpace(res.Text)
	ans.Backend = b.Name()
	ans.Model = res.Model
	if ans.Model == "" {
		ans.Model = b.Model()
	}
	ans.Inference = inference
	ans.Stats = res.Stats
	if c.stats != nil && !res.Stats.IsZero() {
		fresh := res.Stats
		if fresh.Backend == "" {
			fresh.Backend = ans.Backend
		}
		if fresh.Model == "" {
			fresh.Model = ans.Model
		}
		fresh.UpdatedAt = c.now().UTC().Format(time.RFC3339)
		merged, err := c.stats.Update(fresh)
		if err != nil {
			c.logger.Warn("stats cache update failed", "error", err)
		} else {
			ans.Stats = merged
		}
	}
	c.logger.Info("model answered", "backend", ans.Backend, "model", ans.Model, "inference", inference, "chars", len(ans.Text))
	return ans
}

func (c *Chain) cloudConfigured() bool {
	if c.cloud == nil {
		return false
	}
	if cfg, ok := c.cloud.(interface{ Configured() bool }); ok {
		return cfg.Configured()
	}
	return true
}
