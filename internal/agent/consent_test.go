package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/lyra-agent/lyra/internal/config"
)

func TestParseConsent(t *testing.T) {
	cases := map[string]string{
		"zawsze": config.ConsentAlways,
		"ALWAYS": config.ConsentAlways,
		"raz":    config.ConsentOnce,
		"once":   config.ConsentOnce,
		"nie":    config.ConsentNever,
		"nigdy":  config.ConsentNever,
		"pytaj":  config.ConsentAsk,
		" ask ":  config.ConsentAsk,
	}
	for in, want := range cases {
		got, ok := ParseConsent(in)
		if !ok || got != want {
			t.Errorf("ParseConsent(%q) = %q, %v", in, got, ok)
		}
	}
	if _, ok := ParseConsent("czasem"); ok {
		t.Fatal("unknown policy accepted")
	}
}

func TestConsentSetPersists(t *testing.T) {
	cfg := newTestConfig(t, nil)
	m := NewConsentManager(cfg, nil, discard)
	p, err := m.Set("zawsze")
	if err != nil || p != config.ConsentAlways {
		t.Fatalf("Set = %q, %v", p, err)
	}
	reloaded, err := config.Load(cfg.Path())
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Snapshot().CloudConsent != config.ConsentAlways {
		t.Fatal("policy not written to the config file")
	}
	if _, err := m.Set("czasem"); !errors.Is(err, ErrInvalidConsent) {
		t.Fatalf("expected ErrInvalidConsent, got %v", err)
	}
}

func TestConsentMayUseCloud(t *testing.T) {
	ctx := context.Background()
	for policy, want := range map[string]bool{
		config.ConsentAlways: true,
		config.ConsentOnce:   true,
		config.ConsentNever:  false,
		config.ConsentAsk:    false,
	} {
		cfg := newTestConfig(t, map[string]any{"cloud_consent": policy})
		got, err := NewConsentManager(cfg, nil, discard).MayUseCloud(ctx)
		if err != nil || got != want {
			t.Errorf("%s: MayUseCloud = %v, %v", policy, got, err)
		}
	}
}

func TestConsentAskUsesPrompter(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		answer  string
		allowed bool
		stored  string
	}{
		{"raz", true, config.ConsentAsk},
		{"tak", true, config.ConsentAsk},
		{"Zawsze", true, config.ConsentAlways},
		{"nie", false, config.ConsentAsk},
		{"", false, config.ConsentAsk},
	}
	for _, tc := range cases {
		cfg := newTestConfig(t, nil)
		pr := &scriptedPrompter{answers: []string{tc.answer}}
		m := NewConsentManager(cfg, pr, discard)
		got, err := m.MayUseCloud(ctx)
		if err != nil || got != tc.allowed {
			t.Errorf("%q: MayUseCloud = %v, %v", tc.answer, got, err)
		}
		if pr.asked != 1 {
			t.Errorf("%q: prompter asked %d times", tc.answer, pr.asked)
		}
		if s := cfg.Snapshot().CloudConsent; s != tc.stored {
			t.Errorf("%q: stored policy %q, want %q", tc.answer, s, tc.stored)
		}
	}

	cfg := newTestConfig(t, nil)
	failing := PrompterFunc(func(context.Context, string) (string, error) { return "", errors.New("tty closed") })
	if ok, err := NewConsentManager(cfg, failing, discard).MayUseCloud(ctx); ok || err == nil {
		t.Fatalf("prompter failure = %v, %v", ok, err)
	}
}

func TestConsumeOnce(t *testing.T) {
	cfg := newTestConfig(t, map[string]any{"cloud_consent": config.ConsentOnce})
	m := NewConsentManager(cfg, nil, discard)
	if err := m.ConsumeOnce(); err != nil {
		t.Fatal(err)
	}
	if m.Policy() != config.ConsentAsk {
		t.Fatalf("policy after consume = %q", m.Policy())
	}

	cfg = newTestConfig(t, map[string]any{"cloud_consent": config.ConsentAlways})
	m = NewConsentManager(cfg, nil, discard)
	if err := m.ConsumeOnce(); err != nil || m.Policy() != config.ConsentAlways {
		t.Fatalf("always must survive ConsumeOnce, got %q", m.Policy())
	}
}
