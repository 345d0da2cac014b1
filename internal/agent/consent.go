package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lyra-agent/lyra/internal/config"
)

// ErrInvalidConsent is returned by Set for an unknown policy.
var ErrInvalidConsent = errors.New("nieznana polityka zgody (zawsze|raz|nie|pytaj)")

// Prompter asks the user a yes/no style question and returns the raw answer.
type Prompter interface {
	Ask(ctx context.Context, question string) (string, error)
}

// PrompterFunc adapts a function to Prompter.
type PrompterFunc func(ctx context.Context, question string) (string, error)

func (f PrompterFunc) Ask(ctx context.Context, question string) (string, error) {
	return f(ctx, question)
}

// ConsentQuestion is shown when the local model could not answer.
const ConsentQuestion = "Lokalny model nie zna odpowiedzi. Użyć GPT? (raz/zawsze/nie): "

var consentAliases = map[string]string{
	"ask": config.ConsentAsk, "pytaj": config.ConsentAsk,
	"once": config.ConsentOnce, "raz": config.ConsentOnce, "jednorazowo": config.ConsentOnce, "tylko raz": config.ConsentOnce,
	"always": config.ConsentAlways, "zawsze": config.ConsentAlways, "stale": config.ConsentAlways,
	"never": config.ConsentNever, "nie": config.ConsentNever, "nigdy": config.ConsentNever,
}

// ParseConsent maps English and Polish spellings to a policy value.
func ParseConsent(v string) (string, bool) {
	p, ok := consentAliases[strings.TrimSpace(Fold(v))]
	return p, ok
}

// ConsentManager owns the cloud_consent setting.
type ConsentManager struct {
	cfg      *config.Store
	prompter Prompter
	logger   *slog.Logger
}

// NewConsentManager wires the policy to the config store. prompter may be
// nil, in which case "ask" always means no.
func NewConsentManager(cfg *config.Store, prompter Prompter, logger *slog.Logger) *ConsentManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConsentManager{cfg: cfg, prompter: prompter, logger: logger.With("component", "consent")}
}

// SetPrompter replaces the prompter.
func (c *ConsentManager) SetPrompter(p Prompter) { c.prompter = p }

// Policy returns the current policy; unknown stored values read as ask.
func (c *ConsentManager) Policy() string {
	p := c.cfg.Snapshot().CloudConsent
	if !config.ValidConsent(p) {
		return config.ConsentAsk
	}
	return p
}

// Set validates and persists a policy. It returns the canonical value.
func (c *ConsentManager) Set(policy string) (string, error) {
	p, ok := ParseConsent(policy)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidConsent, policy)
	}
	if err := c.cfg.SetValue("cloud_consent", p); err != nil {
		return "", fmt.Errorf("save cloud_consent: %w", err)
	}
	c.logger.Info("cloud consent changed", "policy", p)
	return p, nil
}

// MayUseCloud decides one escalation. Under "once" the caller must call
// ConsumeOnce after the cloud attempt.
func (c *ConsentManager) MayUseCloud(ctx context.Context) (bool, error) {
	switch c.Policy() {
	case config.ConsentAlways, config.ConsentOnce:
		return true, nil
	case config.ConsentNever:
		return false, nil
	}
	if c.prompter == nil {
		return false, nil
	}
	answer, err := c.prompter.Ask(ctx, ConsentQuestion)
	if err != nil {
		return false, fmt.Errorf("ask for cloud consent: %w", err)
	}
	switch Fold(strings.TrimSpace(answer)) {
	case "zawsze", "always", "stale":
		if _, err := c.Set(config.ConsentAlways); err != nil {
			c.logger.Warn("persist consent failed", "error", err)
		}
		return true, nil
	case "raz", "once", "tak", "t", "y", "yes", "ok", "dobrze", "jednorazowo", "tylko raz":
		return true, nil
	}
	return false, nil
}

// ConsumeOnce turns a spent "once" back into "ask".
func (c *ConsentManager) ConsumeOnce() error {
	if c.Policy() != config.ConsentOnce {
		return nil
	}
	if err := c.cfg.SetValue("cloud_consent", config.ConsentAsk); err != nil {
		return fmt.Errorf("clear once consent: %w", err)
	}
	c.logger.Info("one-time cloud consent used")
	return nil
}
