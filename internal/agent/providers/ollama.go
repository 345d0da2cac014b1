package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/lyra-agent/lyra/internal/store"
)

// OllamaBackend calls {ollama_url}/api/generate with streaming enabled and
// assembles the NDJSON chunks.
type OllamaBackend struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewOllamaBackend builds the backend.
func NewOllamaBackend(baseURL, model string, timeout time.Duration) *OllamaBackend {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		base = "http://127.0.0.1:11434"
	}
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &OllamaBackend{baseURL: base, model: model, client: &http.Client{Timeout: timeout}}
}

func (b *OllamaBackend) Name() string  { return NameOllama }
func (b *OllamaBackend) Model() string { return b.model }

type ollamaGenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	System string `json:"system,omitempty"`
	Stream bool   `json:"stream"`
}

type ollamaGenerateChunk struct {
	Model              string `json:"model"`
	Response           string `json:"response"`
	Done               bool   `json:"done"`
	Error              string `json:"error"`
	PromptEvalCount    int    `json:"prompt_eval_count"`
	PromptEvalDuration int64  `json:"prompt_eval_duration"`
	EvalCount          int    `json:"eval_count"`
	EvalDuration       int64  `json:"eval_duration"`
}

// Generate streams one answer.
func (b *OllamaBackend) Generate(ctx context.Context, req Request) (Result, error) {
	body, err := json.Marshal(ollamaGenerateRequest{Model: b.model, Prompt: req.Prompt, System: req.System, Stream: true})
	if err != nil {
		return Result{}, fmt.Errorf("marshal request: %w", err)
	}
	url := b.baseURL + "/api/generate"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return Result{}, &TransportError{URL: url, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Result{}, newAPIError(resp.StatusCode, string(raw))
	}
	return decodeGenerateStream(resp.Body, b.model)
}

func decodeGenerateStream(r io.Reader, model string) (Result, error) {
	var (
		text strings.Builder
		last ollamaGenerateChunk
		seen bool
	)
	dec := json.NewDecoder(r)
	for {
		var chunk ollamaGenerateChunk
		err := dec.Decode(&chunk)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if seen {
				// Truncated stream: keep what arrived.
				break
			}
			return Result{}, fmt.Errorf("decode ollama stream: %w", err)
		}
		seen = true
		if chunk.Error != "" {
			return Result{}, fmt.Errorf("ollama: %s", sanitizeAPIError(chunk.Error))
		}
		text.WriteString(chunk.Response)
		if chunk.Done {
			last = chunk
			break
		}
	}
	if last.Model != "" {
		model = last.Model
	}
	return Result{
		Text:  text.String(),
		Model: model,
		Stats: store.Stats{
			PromptTPS:    tps(last.PromptEvalCount, float64(last.PromptEvalDuration), 1e9),
			GenTPS:       tps(last.EvalCount, float64(last.EvalDuration), 1e9),
			PromptTokens: last.PromptEvalCount,
			GenTokens:    last.EvalCount,
			Backend:      NameOllama,
			Model:        model,
		},
	}, nil
}
