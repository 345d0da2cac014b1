package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/lyra-agent/lyra/internal/agent/providers"
	"github.com/lyra-agent/lyra/internal/config"
)

func testChain(t *testing.T, consent string, local, cloud, brain *fakeBackend) (*Chain, *config.Store) {
	t.Helper()
	cfg := newTestConfig(t, map[string]any{"cloud_consent": consent})
	opts := ChainOptions{Consent: NewConsentManager(cfg, nil, discard), Logger: discard}
	if local != nil {
		opts.Local = local
	}
	if cloud != nil {
		opts.Cloud = cloud
	}
	if brain != nil {
		opts.Brain = brain
	}
	c := NewChain(opts)
	c.retryDelay = 0
	return c, cfg
}

func TestChainLocalAnswer(t *testing.T) {
	local := newFake("ollama", reply{text: "  Cześć!  "})
	cloud := newFake("openai", reply{text: "chmura"})
	c, _ := testChain(t, config.ConsentAlways, local, cloud, nil)
	ans := c.Ask(context.Background(), Query{Prompt: "hej"})
	if ans.Text != "Cześć!" || ans.Backend != "ollama" || ans.Inference != InferenceLocal {
		t.Fatalf("answer = %+v", ans)
	}
	if cloud.Calls() != 0 {
		t.Fatal("cloud must not run after an acceptable local answer")
	}
}

func TestChainEscalatesOnUnacceptableLocal(t *testing.T) {
	local := newFake("ollama", reply{text: "Nie wiem, przykro mi."})
	cloud := newFake("openai", reply{text: "Warszawa"})
	c, _ := testChain(t, config.ConsentAlways, local, cloud, nil)
	ans := c.Ask(context.Background(), Query{Prompt: "stolica?"})
	if ans.Text != "Warszawa" || ans.Inference != InferenceCloud {
		t.Fatalf("answer = %+v", ans)
	}
	if len(ans.Attempts) != 2 {
		t.Fatalf("attempts = %+v", ans.Attempts)
	}
}

func TestChainRetriesTransientLocalError(t *testing.T) {
	transient := &providers.TransportError{URL: "http://127.0.0.1:11434", Err: errors.New("connection refused")}
	local := newFake("ollama", reply{err: transient}, reply{text: "za drugim razem"})
	c, _ := testChain(t, config.ConsentNever, local, nil, nil)
	ans := c.Ask(context.Background(), Query{Prompt: "x"})
	if ans.Text != "za drugim razem" || local.Calls() != 2 {
		t.Fatalf("answer = %+v after %d calls", ans, local.Calls())
	}

	local = newFake("ollama", reply{err: &providers.APIError{StatusCode: 404, Body: "model not found"}})
	c, _ = testChain(t, config.ConsentNever, local, nil, nil)
	c.Ask(context.Background(), Query{Prompt: "x"})
	if local.Calls() != 1 {
		t.Fatalf("4xx must not be retried, got %d calls", local.Calls())
	}
}

func TestChainEmptyLocalWithNeverIsDegraded(t *testing.T) {
	local := newFake("ollama", reply{text: ""})
	cloud := newFake("openai", reply{text: "chmura"})
	brain := newFake("brain", reply{err: errors.New("ollama: not found")})
	c, _ := testChain(t, config.ConsentNever, local, cloud, brain)
	ans := c.Ask(context.Background(), Query{Prompt: "x", UserText: "x"})
	if ans.Text != DegradedMessage || !ans.Degraded || ans.Inference != InferenceNone {
		t.Fatalf("answer = %+v", ans)
	}
	if cloud.Calls() != 0 {
		t.Fatal("cloud must not be called under never")
	}
}

func TestChainOnceConsentIsSingleUse(t *testing.T) {
	local := newFake("ollama", reply{text: ""})
	cloud := newFake("openai", reply{err: errors.New("boom")})
	brain := newFake("brain", reply{text: "z mózgu"})
	c, cfg := testChain(t, config.ConsentOnce, local, cloud, brain)

	first := c.Ask(context.Background(), Query{Prompt: "x"})
	if cloud.Calls() != 1 || first.Inference != InferenceBrain {
		t.Fatalf("first ask: cloud calls %d, answer %+v", cloud.Calls(), first)
	}
	if got := cfg.Snapshot().CloudConsent; got != config.ConsentAsk {
		t.Fatalf("once must turn into ask after the attempt, got %q", got)
	}

	c.Ask(context.Background(), Query{Prompt: "y"})
	if cloud.Calls() != 1 {
		t.Fatalf("second ask reached the cloud: %d calls", cloud.Calls())
	}
}

func TestChainSkipsUnconfiguredCloud(t *testing.T) {
	local := newFake("ollama", reply{text: ""})
	cloud := newFake("openai", reply{text: "x"})
	cloud.unconfigured = true
	brain := newFake("brain", reply{text: "z mózgu"})
	c, cfg := testChain(t, config.ConsentOnce, local, cloud, brain)
	ans := c.Ask(context.Background(), Query{Prompt: "x"})
	if cloud.Calls() != 0 || ans.Inference != InferenceBrain {
		t.Fatalf("cloud calls %d, answer %+v", cloud.Calls(), ans)
	}
	if cfg.Snapshot().CloudConsent != config.ConsentOnce {
		t.Fatal("an unused once consent must be kept")
	}
}

func TestChainBrainGetsTersePrompt(t *testing.T) {
	local := newFake("ollama", reply{err: errors.New("down")})
	brain := newFake("brain", reply{text: "ok"})
	c, _ := testChain(t, config.ConsentNever, local, nil, brain)
	c.Ask(context.Background(), Query{System: "persona", Prompt: "KONTEKST...\nZapytanie: ile to 2+2", UserText: "ile to 2+2"})
	if len(brain.prompts) != 1 || brain.prompts[0].Prompt != "ile to 2+2" || brain.prompts[0].System != brainInstruction {
		t.Fatalf("brain request = %+v", brain.prompts)
	}
}

func TestChainForcedBackend(t *testing.T) {
	local := newFake("ollama", reply{text: "lokalnie"})
	cloud := newFake("openai", reply{err: &providers.APIError{StatusCode: 401, Body: "bad key"}})
	brain := newFake("brain", reply{text: "mózg"})
	c, _ := testChain(t, config.ConsentNever, local, cloud, brain)

	ans := c.Ask(context.Background(), Query{Prompt: "x", Forced: ForceCloud})
	if !ans.Failed || !strings.HasPrefix(ans.Text, "❌ Backend openai:") {
		t.Fatalf("forced cloud answer = %+v", ans)
	}
	if local.Calls() != 0 || brain.Calls() != 0 {
		t.Fatal("a forced backend must not fall back")
	}

	ans = c.Ask(context.Background(), Query{Prompt: "x", Forced: ForceLocal})
	if ans.Text != "lokalnie" || ans.Inference != InferenceLocal {
		t.Fatalf("forced local answer = %+v", ans)
	}
}

// Every combination of backend failures ends with a non-empty text.
func TestChainTerminalGuarantee(t *testing.T) {
	outcomes := []reply{
		{text: "dobra odpowiedź"},
		{text: ""},
		{text: "nie wiem"},
		{err: errors.New("down")},
	}
	policies := []string{config.ConsentAsk, config.ConsentOnce, config.ConsentAlways, config.ConsentNever}
	for li, l := range outcomes {
		for ci, cl := range outcomes {
			for bi, b := range outcomes {
				for _, policy := range policies {
					name := fmt.Sprintf("l%d-c%d-b%d-%s", li, ci, bi, policy)
					local, cloud, brain := newFake("ollama", l), newFake("openai", cl), newFake("brain", b)
					c, _ := testChain(t, policy, local, cloud, brain)
					ans := c.Ask(context.Background(), Query{Prompt: "q", UserText: "q"})
					if strings.TrimSpace(ans.Text) == "" {
						t.Fatalf("%s: empty answer", name)
					}
					if ans.Degraded && ans.Text != DegradedMessage {
						t.Fatalf("%s: degraded with %q", name, ans.Text)
					}
				}
			}
		}
	}

	c := NewChain(ChainOptions{Logger: discard})
	if ans := c.Ask(context.Background(), Query{Prompt: "q"}); ans.Text != DegradedMessage {
		t.Fatalf("chain without backends = %+v", ans)
	}
}

func TestDefaultAcceptable(t *testing.T) {
	cases := map[string]bool{
		"Warszawa":                      true,
		"":                              false,
		"   ":                           false,
		"Nie wiem.":                     false,
		"Błąd API: 500":                 false,
		"connection error (x): refused": false,
		"Brak danych o tym.":            false,
		"Wiem, że to trudne.":           true,
	}
	for in, want := range cases {
		if got := DefaultAcceptable(in); got != want {
			t.Errorf("DefaultAcceptable(%q) = %v, want %v", in, got, want)
		}
	}
}
