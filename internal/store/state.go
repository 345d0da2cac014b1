package store

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/lyra-agent/lyra/internal/system/fslock"
)

// State keys written by the agent.
const (
	KeyLastSystemCmd    = "last_system_cmd"
	KeyLastSystemOutput = "last_system_output"
	KeyLastTool         = "last_tool"
	KeyLastToolArg      = "last_tool_arg"
	KeyLastToolOutput   = "last_tool_output"
	KeyLastModel        = "last_model"
	KeyLastBackend      = "last_backend"
	KeyLastInference    = "last_inference"
	KeyLastProposal     = "last_proposal"
	KeyLastSeen         = "last_seen"
	KeyLastFile         = "last_file"
	KeySessionID        = "session_id"
	KeyKernel           = "kernel"
	KeyOS               = "os"
	KeyPendingCommand   = "pending_command"
	KeyPendingSince     = "pending_since"
)

// StateStore is a flat latest-value-per-key JSON object.
type StateStore struct {
	path   string
	lock   *fslock.Lock
	logger *slog.Logger
}

// NewStateStore does not touch the disk; the file is created on first write.
func NewStateStore(path string, logger *slog.Logger) *StateStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &StateStore{
		path:   path,
		lock:   fslock.New(path),
		logger: logger.With("component", "state"),
	}
}

// Path returns the backing file.
func (s *StateStore) Path() string { return s.path }

// Load returns the whole state. A corrupt file is quarantined and an empty
// state returned.
func (s *StateStore) Load() (map[string]any, error) {
	var out map[string]any
	err := s.lock.With(func() error {
		var err error
		out, err = s.loadLocked()
		return err
	})
	return out, err
}

// Get returns one key as a string; non-string values are formatted.
func (s *StateStore) Get(key string) string {
	st, err := s.Load()
	if err != nil {
		return ""
	}
	v, ok := st[key]
	if !ok || v == nil {
		return ""
	}
	if str, ok := v.(string); ok {
		return str
	}
	return fmt.Sprint(v)
}

// Merge writes the given keys over the stored state and keeps the rest.
func (s *StateStore) Merge(values map[string]any) error {
	if len(values) == 0 {
		return nil
	}
	return s.lock.With(func() error {
		st, err := s.loadLocked()
		if err != nil {
			return err
		}
		for k, v := range values {
			st[k] = v
		}
		return writeJSON(s.path, st)
	})
}

// Set is Merge for one key.
func (s *StateStore) Set(key string, value any) error {
	return s.Merge(map[string]any{key: value})
}

// Clear resets the state to {}.
func (s *StateStore) Clear() error {
	return s.lock.With(func() error {
		return writeJSON(s.path, map[string]any{})
	})
}

// Keys returns the stored keys sorted.
func (s *StateStore) Keys() []string {
	st, _ := s.Load()
	keys := make([]string, 0, len(st))
	for k := range st {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (s *StateStore) loadLocked() (map[string]any, error) {
	st := map[string]any{}
	err := readJSON(s.path, &st)
	if errors.Is(err, errCorrupt) {
		moved, qerr := quarantine(s.path)
		if qerr != nil {
			return nil, qerr
		}
		s.logger.Warn("state file corrupt, starting empty", "path", s.path, "moved_to", moved, "error", err)
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, err
	}
	if st == nil {
		st = map[string]any{}
	}
	return st, nil
}
