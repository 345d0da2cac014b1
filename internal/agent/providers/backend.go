// Package providers talks to the model backends: the local ollama and
// llama.cpp servers, the OpenAI-compatible cloud API and the `ollama run`
// fallback. Every backend turns one prompt into one answer.
package providers

import (
	"context"
	"strings"

	"github.com/lyra-agent/lyra/internal/store"
)

// Backend names as recorded in state and memory.
const (
	NameOllama = "ollama"
	NameLlama  = "llama"
	NameOpenAI = "openai"
	NameBrain  = "brain"
)

// Persona is the system message sent with every chat-style request.
const Persona = "Jesteś Lyra, zaawansowany asystent AI."

// Request is one model query.
type Request struct {
	System string
	Prompt string
}

// Result is a backend answer with optional throughput figures.
type Result struct {
	Text  string
	Model string
	Stats store.Stats
}

// Backend generates a single answer.
type Backend interface {
	Name() string
	Model() string
	Generate(ctx context.Context, req Request) (Result, error)
}

// tps converts a token count and a duration in the given unit (ns per
// second or ms per second) to tokens per second.
func tps(tokens int, duration, perSecond float64) float64 {
	if tokens <= 0 || duration <= 0 {
		return 0
	}
	return float64(tokens) / (duration / perSecond)
}

func joinPrompt(req Request) string {
	if strings.TrimSpace(req.System) == "" {
		return req.Prompt
	}
	return req.System + "\n\n" + req.Prompt
}
