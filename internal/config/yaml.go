package config

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/goccy/go-yaml"
)

// secretKeys are masked when the config is rendered for display.
var secretKeys = map[string]bool{
	"openai_api_key": true,
}

// MarshalYAML renders the flat object as YAML with keys in sorted order.
func MarshalYAML(raw map[string]any, redact bool) ([]byte, error) {
	return yaml.Marshal(orderedSlice(raw, redact))
}

// Redacted returns a copy of raw with secret values masked.
func Redacted(raw map[string]any) map[string]any {
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		out[k] = maskValue(k, v)
	}
	return out
}

func orderedSlice(raw map[string]any, redact bool) yaml.MapSlice {
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make(yaml.MapSlice, 0, len(keys))
	for _, k := range keys {
		v := raw[k]
		if redact {
			v = maskValue(k, v)
		}
		out = append(out, yaml.MapItem{Key: k, Value: v})
	}
	return out
}

func maskValue(key string, v any) any {
	s, ok := v.(string)
	if !ok || !secretKeys[key] || strings.TrimSpace(s) == "" {
		return v
	}
	if len(s) <= 8 {
		return "****"
	}
	return s[:3] + "****" + s[len(s)-4:]
}

// computeHash digests the canonical YAML rendering of raw.
func computeHash(raw map[string]any) string {
	data, err := MarshalYAML(raw, false)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
