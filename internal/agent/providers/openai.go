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

// OpenAIClient is a minimal Chat Completions client. It serves both the
// cloud API and llama.cpp's OpenAI-compatible server.
type OpenAIClient struct {
	APIKey  string
	BaseURL string
	Headers map[string]string
	client  *http.Client
}

// NewOpenAIClient creates a client for baseURL (the part before
// /chat/completions). An empty APIKey sends no Authorization header.
func NewOpenAIClient(apiKey, baseURL string, timeout time.Duration) *OpenAIClient {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		base = "https://api.openai.com/v1"
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &OpenAIClient{
		APIKey:  apiKey,
		BaseURL: base,
		client:  &http.Client{Timeout: timeout},
	}
}

// OpenAIChatRequest is the request body.
type OpenAIChatRequest struct {
	Model       string          `json:"model"`
	Messages    []OpenAIMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float64         `json:"temperature,omitempty"`
}

// OpenAIMessage is one chat message.
type OpenAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// OpenAIChatResponse is the subset of the response Lyra reads. Timings is
// only sent by llama.cpp.
type OpenAIChatResponse struct {
	ID      string           `json:"id"`
	Model   string           `json:"model"`
	Choices []OpenAIChoice   `json:"choices"`
	Usage   OpenAIUsageStats `json:"usage"`
	Timings *LlamaTimings    `json:"timings,omitempty"`
}

// OpenAIChoice is a single completion choice.
type OpenAIChoice struct {
	Index        int           `json:"index"`
	Message      OpenAIMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

// OpenAIUsageStats tracks token consumption.
type OpenAIUsageStats struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// LlamaTimings are llama.cpp's per-request throughput figures.
type LlamaTimings struct {
	PromptN            int     `json:"prompt_n"`
	PromptMs           float64 `json:"prompt_ms"`
	PromptPerSecond    float64 `json:"prompt_per_second"`
	PredictedN         int     `json:"predicted_n"`
	PredictedMs        float64 `json:"predicted_ms"`
	PredictedPerSecond float64 `json:"predicted_per_second"`
}

// Content returns the first choice's text.
func (r *OpenAIChatResponse) Content() string {
	if r == nil || len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Message.Content
}

// Chat sends req to {BaseURL}/chat/completions.
func (c *OpenAIClient) Chat(ctx context.Context, req *OpenAIChatRequest) (*OpenAIChatResponse, error) {
	reqBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	url := c.BaseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)
	}
	for k, v := range c.Headers {
		if strings.TrimSpace(k) == "" || strings.TrimSpace(v) == "" {
			continue
		}
		httpReq.Header.Set(k, v)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, &TransportError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, newAPIError(resp.StatusCode, string(body))
	}
	var chatResp OpenAIChatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return &chatResp, nil
}

func chatMessages(req Request) []OpenAIMessage {
	var msgs []OpenAIMessage
	if strings.TrimSpace(req.System) != "" {
		msgs = append(msgs, OpenAIMessage{Role: "system", Content: req.System})
	}
	return append(msgs, OpenAIMessage{Role: "user", Content: req.Prompt})
}

// CloudBackend is the OpenAI cloud. The persona is the system message; the
// caller's preamble travels with the prompt in the user message.
type CloudBackend struct {
	client *OpenAIClient
	model  string
}

// NewCloudBackend builds the cloud backend.
func NewCloudBackend(apiKey, baseURL, model string, timeout time.Duration) *CloudBackend {
	return &CloudBackend{client: NewOpenAIClient(apiKey, baseURL, timeout), model: model}
}

func (b *CloudBackend) Name() string  { return NameOpenAI }
func (b *CloudBackend) Model() string { return b.model }

// Configured reports whether an API key is present.
func (b *CloudBackend) Configured() bool {
	return strings.TrimSpace(b.client.APIKey) != ""
}

// Generate asks the cloud model.
func (b *CloudBackend) Generate(ctx context.Context, req Request) (Result, error) {
	if !b.Configured() {
		return Result{}, ErrNoAPIKey
	}
	msgs := chatMessages(Request{System: Persona, Prompt: joinPrompt(req)})
	resp, err := b.client.Chat(ctx, &OpenAIChatRequest{Model: b.model, Messages: msgs})
	if err != nil {
		return Result{}, err
	}
	model := resp.Model
	if model == "" {
		model = b.model
	}
	return Result{
		Text:  resp.Content(),
		Model: model,
		Stats: store.Stats{
			PromptTokens: resp.Usage.PromptTokens,
			GenTokens:    resp.Usage.CompletionTokens,
			Backend:      NameOpenAI,
			Model:        model,
		},
	}, nil
}

// LlamaBackend is a llama.cpp server reached through /v1/chat/completions.
type LlamaBackend struct {
	client *OpenAIClient
	model  string
}

// NewLlamaBackend builds the backend for llama_url.
func NewLlamaBackend(baseURL, model string, timeout time.Duration) *LlamaBackend {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	return &LlamaBackend{client: NewOpenAIClient("", base+"/v1", timeout), model: model}
}

func (b *LlamaBackend) Name() string  { return NameLlama }
func (b *LlamaBackend) Model() string { return b.model }

// Generate asks the llama.cpp server and reads its timings block.
func (b *LlamaBackend) Generate(ctx context.Context, req Request) (Result, error) {
	resp, err := b.client.Chat(ctx, &OpenAIChatRequest{Model: b.model, Messages: chatMessages(req)})
	if err != nil {
		return Result{}, err
	}
	st := store.Stats{
		PromptTokens: resp.Usage.PromptTokens,
		GenTokens:    resp.Usage.CompletionTokens,
		Backend:      NameLlama,
		Model:        b.model,
	}
	if t := resp.Timings; t != nil {
		st.PromptTPS = t.PromptPerSecond
		st.GenTPS = t.PredictedPerSecond
		if st.PromptTPS == 0 {
			st.PromptTPS = tps(t.PromptN, t.PromptMs, 1000)
		}
		if st.GenTPS == 0 {
			st.GenTPS = tps(t.PredictedN, t.PredictedMs, 1000)
		}
		if st.PromptTokens == 0 {
			st.PromptTokens = t.PromptN
		}
		if st.GenTokens == 0 {
			st.GenTokens = t.PredictedN
		}
	}
	return Result{Text: resp.Content(), Model: b.model, Stats: st}, nil
}

// ErrNoAPIKey is returned by the cloud backend without a key.
var ErrNoAPIKey = errors.New("brak klucza openai_api_key")
