package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/lyra-agent/lyra/internal/system/fslock"
)

const maxConfigBackups = 20

// Store owns the config file. All mutations go through Update, which
// re-reads the file under lock so edits made by other processes survive.
type Store struct {
	path string
	lock *fslock.Lock

	mu   sync.RWMutex
	raw  map[string]any
	cfg  Config
	hash string
}

// Load reads path, fills missing keys with defaults and writes them back.
// A missing file is fatal for the caller: it yields ErrNotFound.
func Load(path string) (*Store, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	s := &Store{path: abs, lock: fslock.New(abs)}
	err = s.lock.With(func() error {
		raw, err := s.readLocked()
		if err != nil {
			return err
		}
		if mergeDefaults(raw) {
			if err := s.writeLocked(raw, false); err != nil {
				return fmt.Errorf("write defaults: %w", err)
			}
		}
		return s.adoptLocked(raw)
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Create writes a new config file from defaults overlaid with values.
// It refuses to overwrite an existing file unless force is set.
func Create(path string, values map[string]any, force bool) (*Store, error) {
	if _, err := os.Stat(path); err == nil && !force {
		return nil, fmt.Errorf("config already exists: %s", path)
	}
	raw := defaultMap()
	for k, v := range values {
		raw[k] = v
	}
	cfg, err := decode(raw)
	if err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create config dir: %w", err)
	}
	data, err := encodeObject(raw)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, fmt.Errorf("write config: %w", err)
	}
	return Load(path)
}

// Path returns the absolute config file path.
func (s *Store) Path() string { return s.path }

// Dir returns the directory relative paths are resolved against.
func (s *Store) Dir() string { return filepath.Dir(s.path) }

// Snapshot returns the current typed configuration with env overrides.
func (s *Store) Snapshot() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Raw returns a copy of the flat key-value object as stored on disk.
func (s *Store) Raw() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.raw))
	for k, v := range s.raw {
		out[k] = v
	}
	return out
}

// Get returns the stored value of key.
func (s *Store) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.raw[key]
	return v, ok
}

// Hash identifies the current content; unchanged files keep their hash.
func (s *Store) Hash() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hash
}

// Resolve makes p absolute relative to the config directory.
func (s *Store) Resolve(p string) string {
	p = strings.TrimSpace(p)
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	if strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, p[2:])
		}
	}
	return filepath.Join(s.Dir(), p)
}

// LogsDir returns the resolved logs directory.
func (s *Store) LogsDir() string {
	return s.Resolve(s.Snapshot().LogsDir)
}

// Set parses value according to the kind of key's default and persists it.
// Unknown keys are stored as strings.
func (s *Store) Set(key, value string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("empty config key")
	}
	v, err := coerce(key, value)
	if err != nil {
		return err
	}
	return s.SetValue(key, v)
}

// SetValue persists one key.
func (s *Store) SetValue(key string, value any) error {
	return s.Update(func(raw map[string]any) error {
		raw[key] = value
		if key == "local_model" {
			// The legacy key mirrors local_model.
			raw["model"] = value
		}
		return nil
	})
}

// Update performs a locked read-modify-write of the whole file. The
// previous file is copied to logs_dir/config_backups before rewriting.
func (s *Store) Update(fn func(raw map[string]any) error) error {
	return s.lock.With(func() error {
		raw, err := s.readLocked()
		if err != nil {
			return err
		}
		mergeDefaults(raw)
		if err := fn(raw); err != nil {
			return err
		}
		cfg, err := decode(raw)
		if err != nil {
			return fmt.Errorf("invalid config value: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		if err := s.writeLocked(raw, true); err != nil {
			return err
		}
		return s.adoptLocked(raw)
	})
}

// Reload re-reads the file and reports whether its content changed.
func (s *Store) Reload() (bool, error) {
	before := s.Hash()
	err := s.lock.With(func() error {
		raw, err := s.readLocked()
		if err != nil {
			return err
		}
		mergeDefaults(raw)
		cfg, err := decode(raw)
		if err != nil {
			return fmt.Errorf("parse config %s: %w", s.path, err)
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		return s.adoptLocked(raw)
	})
	if err != nil {
		return false, err
	}
	return s.Hash() != before, nil
}

func (s *Store) readLocked() (map[string]any, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, s.path)
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	raw, err := parseObject(data)
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", s.path, err)
	}
	return raw, nil
}

func (s *Store) adoptLocked(raw map[string]any) error {
	cfg, err := decode(raw)
	if err != nil {
		return fmt.Errorf("parse config %s: %w", s.path, err)
	}
	applyEnvOverrides(&cfg)
	hash := computeHash(raw)

	s.mu.Lock()
	s.raw = raw
	s.cfg = cfg
	s.hash = hash
	s.mu.Unlock()
	return nil
}

func (s *Store) writeLocked(raw map[string]any, backup bool) error {
	data, err := encodeObject(raw)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if backup {
		s.backupLocked(raw)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace config: %w", err)
	}
	return nil
}

// backupLocked copies the current file into logs_dir/config_backups and
// keeps the newest maxConfigBackups copies. Failures are not fatal.
func (s *Store) backupLocked(next map[string]any) {
	current, err := os.ReadFile(s.path)
	if err != nil {
		return
	}
	logs, _ := next["logs_dir"].(string)
	if strings.TrimSpace(logs) == "" {
		logs = Default().LogsDir
	}
	dir := filepath.Join(s.Resolve(logs), "config_backups")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return
	}
	stamp := time.Now().Format("20060102_150405.000000")
	_ = os.WriteFile(filepath.Join(dir, "config_"+stamp+".json"), current, 0o644)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), "config_") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for len(names) > maxConfigBackups {
		_ = os.Remove(filepath.Join(dir, names[0]))
		names = names[1:]
	}
}

// coerce converts a CLI string into the kind of the key's default value.
func coerce(key, value string) (any, error) {
	value = strings.TrimSpace(value)
	def, known := defaultMap()[key]
	if !known {
		return value, nil
	}
	switch def.(type) {
	case float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("%s expects a number: %w", key, err)
		}
		return f, nil
	case bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("%s expects true/false: %w", key, err)
		}
		return b, nil
	default:
		return value, nil
	}
}
