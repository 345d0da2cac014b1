// Package store holds the agent's file-backed stores: the latest-value
// state map, the append-only memory log and the throughput stats cache.
// Every read-modify-write holds an in-process mutex and an advisory lock
// on a sibling .lock file, so a tray app or a second REPL can share them.
package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// errCorrupt marks a file that exists but does not parse.
var errCorrupt = errors.New("corrupt json")

// readJSON decodes path into v. A missing or empty file leaves v untouched
// and returns nil.
func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", errCorrupt, path, err)
	}
	return nil
}

// writeJSON writes v atomically through a temp file in the same directory.
func writeJSON(path string, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dir for %s: %w", path, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

// quarantine moves a corrupt file aside as <file>.corrupted-<stamp>.json and
// returns the new name.
func quarantine(path string) (string, error) {
	ext := filepath.Ext(path)
	base := path[:len(path)-len(ext)]
	target := fmt.Sprintf("%s.corrupted-%s.json", base, time.Now().Format("20060102-150405"))
	if _, err := os.Stat(target); err == nil {
		target = fmt.Sprintf("%s.corrupted-%s.json", base, time.Now().Format("20060102-150405.000000"))
	}
	if err := os.Rename(path, target); err != nil {
		return "", fmt.Errorf("quarantine %s: %w", path, err)
	}
	return target, nil
}
