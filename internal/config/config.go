// Package config loads and persists Lyra's flat JSON configuration.
// The file is a single JSON object; missing keys are filled from defaults
// and written back, every mutation rewrites the whole file after a backup.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Backend values.
const (
	BackendLocal  = "local"
	BackendOpenAI = "openai"

	LocalOllama = "ollama"
	LocalLlama  = "llama"
)

// Consent policy values stored under cloud_consent.
const (
	ConsentAsk    = "ask"
	ConsentOnce   = "once"
	ConsentAlways = "always"
	ConsentNever  = "never"
)

// ErrNotFound is returned by Load when the config file does not exist.
var ErrNotFound = errors.New("config file not found")

// Config is the typed view of the flat configuration object.
type Config struct {
	Backend        string `json:"backend" yaml:"backend"`
	LocalBackend   string `json:"local_backend" yaml:"local_backend"`
	LocalModel     string `json:"local_model" yaml:"local_model"`
	Model          string `json:"model" yaml:"model"`
	OpenAIModel    string `json:"openai_model" yaml:"openai_model"`
	OpenAIAPIKey   string `json:"openai_api_key" yaml:"openai_api_key"`
	OpenAIBaseURL  string `json:"openai_base_url" yaml:"openai_base_url"`
	OllamaURL      string `json:"ollama_url" yaml:"ollama_url"`
	LlamaURL       string `json:"llama_url" yaml:"llama_url"`
	LocalModelPath string `json:"local_model_path" yaml:"local_model_path"`

	MemoryFile string `json:"memory_file" yaml:"memory_file"`
	StateFile  string `json:"state_file" yaml:"state_file"`
	ModelsFile string `json:"models_file" yaml:"models_file"`
	LogsDir    string `json:"logs_dir" yaml:"logs_dir"`

	CloudConsent string `json:"cloud_consent" yaml:"cloud_consent"`
	ExecLevel    int    `json:"exec_level" yaml:"exec_level"`
	// DryRun reports shell commands and fix/action tools instead of running them.
	DryRun bool `json:"dry_run" yaml:"dry_run"`

	LocalTimeout int `json:"local_timeout" yaml:"local_timeout"`
	CloudTimeout int `json:"cloud_timeout" yaml:"cloud_timeout"`
	ShellTimeout int `json:"shell_timeout" yaml:"shell_timeout"`

	ContextWindow          int `json:"context_window" yaml:"context_window"`
	MemoryArchiveThreshold int `json:"memory_archive_threshold" yaml:"memory_archive_threshold"`
	MemoryArchiveKeep      int `json:"memory_archive_keep" yaml:"memory_archive_keep"`

	StatsClampFloor  float64 `json:"stats_clamp_floor" yaml:"stats_clamp_floor"`
	StatsClampFactor float64 `json:"stats_clamp_factor" yaml:"stats_clamp_factor"`

	SearchURL string `json:"search_url" yaml:"search_url"`
	UserName  string `json:"user_name" yaml:"user_name"`
}

// Default returns the configuration used to fill missing keys.
func Default() Config {
	return Config{
		Backend:                BackendLocal,
		LocalBackend:           LocalOllama,
		LocalModel:             "llama3",
		Model:                  "llama3",
		OpenAIModel:            "gpt-5.1",
		OpenAIBaseURL:          "https://api.openai.com/v1",
		OllamaURL:              "http://127.0.0.1:11434",
		LlamaURL:               "http://127.0.0.1:8080",
		MemoryFile:             "agent_memory.json",
		StateFile:              "agent_state.json",
		ModelsFile:             "models.json",
		LogsDir:                "logs",
		CloudConsent:           ConsentAsk,
		ExecLevel:              1,
		LocalTimeout:           90,
		CloudTimeout:           20,
		ShellTimeout:           30,
		ContextWindow:          5,
		MemoryArchiveThreshold: 200,
		MemoryArchiveKeep:      50,
		StatsClampFloor:        5000,
		StatsClampFactor:       100,
		SearchURL:              "https://html.duckduckgo.com/html/",
		UserName:               "Tomek",
	}
}

// Validate checks enumerated keys and numeric ranges.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendLocal, BackendOpenAI:
	default:
		return fmt.Errorf("backend must be %q or %q, got %q", BackendLocal, BackendOpenAI, c.Backend)
	}
	switch c.LocalBackend {
	case LocalOllama, LocalLlama:
	default:
		return fmt.Errorf("local_backend must be %q or %q, got %q", LocalOllama, LocalLlama, c.LocalBackend)
	}
	if !ValidConsent(c.CloudConsent) {
		return fmt.Errorf("cloud_consent must be one of ask|once|always|never, got %q", c.CloudConsent)
	}
	if c.ExecLevel < 1 || c.ExecLevel > 3 {
		return fmt.Errorf("exec_level must be 1..3, got %d", c.ExecLevel)
	}
	if c.MemoryArchiveKeep < 0 || (c.MemoryArchiveThreshold > 0 && c.MemoryArchiveKeep >= c.MemoryArchiveThreshold) {
		return fmt.Errorf("memory_archive_keep must be smaller than memory_archive_threshold")
	}
	return nil
}

// ValidConsent reports whether v is a known consent policy.
func ValidConsent(v string) bool {
	switch v {
	case ConsentAsk, ConsentOnce, ConsentAlways, ConsentNever:
		return true
	}
	return false
}

// LocalModelName prefers local_model and falls back to the legacy model key.
func (c Config) LocalModelName() string {
	if strings.TrimSpace(c.LocalModel) != "" {
		return c.LocalModel
	}
	return c.Model
}

// ConfigDir returns ~/.lyra.
func ConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".lyra"
	}
	return filepath.Join(home, ".lyra")
}

// ConfigPath resolves the config file: LYRA_CONFIG, then ./config.json,
// then ~/.lyra/config.json.
func ConfigPath() string {
	if p := strings.TrimSpace(os.Getenv("LYRA_CONFIG")); p != "" {
		return p
	}
	if _, err := os.Stat("config.json"); err == nil {
		if abs, err := filepath.Abs("config.json"); err == nil {
			return abs
		}
		return "config.json"
	}
	return filepath.Join(ConfigDir(), "config.json")
}

// defaultMap renders Default() as the flat map used for merging.
func defaultMap() map[string]any {
	raw, _ := json.Marshal(Default())
	out := map[string]any{}
	_ = json.Unmarshal(raw, &out)
	return out
}

// DefaultKeys lists every recognized key in sorted order.
func DefaultKeys() []string {
	m := defaultMap()
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// decode converts the flat map into the typed view.
func decode(raw map[string]any) (Config, error) {
	cfg := Default()
	data, err := json.Marshal(raw)
	if err != nil {
		return cfg, err
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// mergeDefaults adds missing keys and reports whether anything was added.
func mergeDefaults(raw map[string]any) bool {
	added := false
	for k, v := range defaultMap() {
		if _, ok := raw[k]; !ok {
			raw[k] = v
			added = true
		}
	}
	return added
}

func parseObject(data []byte) (map[string]any, error) {
	clean := preprocessJSONLike(string(data))
	raw := map[string]any{}
	if strings.TrimSpace(clean) == "" {
		return raw, nil
	}
	if err := json.Unmarshal([]byte(clean), &raw); err != nil {
		return nil, err
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

func encodeObject(raw map[string]any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(raw); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// applyEnvOverrides merges environment variables into the typed view only;
// they are never written back to disk.
func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("OPENAI_API_KEY")); v != "" {
		cfg.OpenAIAPIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("LYRA_LOGS_DIR")); v != "" {
		cfg.LogsDir = v
	}
}

// preprocessJSONLike strips // and /* */ comments and trailing commas so
// hand-edited files still parse.
func preprocessJSONLike(input string) string {
	s := input
	for {
		start := strings.Index(s, "/*")
		if start < 0 {
			break
		}
		end := strings.Index(s[start+2:], "*/")
		if end < 0 {
			s = s[:start]
			break
		}
		s = s[:start] + s[start+2+end+2:]
	}

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		inString := false
		escape := false
		for j := 0; j < len(line)-1; j++ {
			ch := line[j]
			if escape {
				escape = false
				continue
			}
			if ch == '\\' && inString {
				escape = true
				continue
			}
			if ch == '"' {
				inString = !inString
				continue
			}
			if !inString && ch == '/' && line[j+1] == '/' {
				line = line[:j]
				break
			}
		}
		lines[i] = strings.TrimRight(line, " \t\r")
	}
	s = strings.Join(lines, "\n")
	for _, pair := range [][2]string{{",}", "}"}, {",]", "]"}, {",\n}", "\n}"}, {",\n]", "\n]"}} {
		s = strings.ReplaceAll(s, pair[0], pair[1])
	}
	return s
}
