package store

import (
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/lyra-agent/lyra/internal/system/fslock"
)

// StatsFile is the cache name inside logs_dir.
const StatsFile = "llama_stats.json"

// Stats are throughput figures reported by a backend.
type Stats struct {
	PromptTPS    float64 `json:"prompt_tps,omitempty"`
	GenTPS       float64 `json:"gen_tps,omitempty"`
	PromptTokens int     `json:"prompt_tokens,omitempty"`
	GenTokens    int     `json:"gen_tokens,omitempty"`
	Backend      string  `json:"backend,omitempty"`
	Model        string  `json:"model,omitempty"`
	UpdatedAt    string  `json:"updated_at,omitempty"`
}

// IsZero reports whether no throughput field is known.
func (s Stats) IsZero() bool {
	return s.PromptTPS == 0 && s.GenTPS == 0 && s.PromptTokens == 0 && s.GenTokens == 0
}

// Merge overlays the non-zero fields of fresh onto s.
func (s Stats) Merge(fresh Stats) Stats {
	if fresh.PromptTPS > 0 {
		s.PromptTPS = fresh.PromptTPS
	}
	if fresh.GenTPS > 0 {
		s.GenTPS = fresh.GenTPS
	}
	if fresh.PromptTokens > 0 {
		s.PromptTokens = fresh.PromptTokens
	}
	if fresh.GenTokens > 0 {
		s.GenTokens = fresh.GenTokens
	}
	if fresh.Backend != "" {
		s.Backend = fresh.Backend
	}
	if fresh.Model != "" {
		s.Model = fresh.Model
	}
	if fresh.UpdatedAt != "" {
		s.UpdatedAt = fresh.UpdatedAt
	}
	return s
}

// Clamp caps implausible generation speeds. The limit is
// max(floor, prompt_tps*factor); above it gen_tps falls back to prompt_tps,
// or to the limit itself when prompt_tps is unknown.
func (s Stats) Clamp(floor, factor float64) Stats {
	if s.GenTPS <= 0 {
		return s
	}
	limit := math.Max(floor, s.PromptTPS*factor)
	if s.GenTPS > limit {
		if s.PromptTPS > 0 {
			s.GenTPS = s.PromptTPS
		} else {
			s.GenTPS = limit
		}
	}
	return s
}

// StatsCache persists the last known stats at <logs_dir>/llama_stats.json.
type StatsCache struct {
	path   string
	lock   *fslock.Lock
	floor  float64
	factor float64
	logger *slog.Logger
}

// NewStatsCache returns a cache with the given clamp thresholds.
func NewStatsCache(path string, floor, factor float64, logger *slog.Logger) *StatsCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &StatsCache{
		path:   path,
		lock:   fslock.New(path),
		floor:  floor,
		factor: factor,
		logger: logger.With("component", "stats"),
	}
}

// Path returns the cache file.
func (c *StatsCache) Path() string { return c.path }

// Load returns the clamped cached stats. A corrupt cache reads as empty.
func (c *StatsCache) Load() Stats {
	var st Stats
	_ = c.lock.With(func() error {
		st = c.loadLocked()
		return nil
	})
	return st.Clamp(c.floor, c.factor)
}

// Update merges fresh into the cache, clamps and persists the result.
func (c *StatsCache) Update(fresh Stats) (Stats, error) {
	var merged Stats
	err := c.lock.With(func() error {
		if fresh.UpdatedAt == "" && !fresh.IsZero() {
			fresh.UpdatedAt = time.Now().Format(time.RFC3339)
		}
		merged = c.loadLocked().Merge(fresh).Clamp(c.floor, c.factor)
		return writeJSON(c.path, merged)
	})
	return merged, err
}

func (c *StatsCache) loadLocked() Stats {
	var st Stats
	err := readJSON(c.path, &st)
	if errors.Is(err, errCorrupt) {
		c.logger.Warn("stats cache corrupt, ignoring", "path", c.path, "error", err)
		return Stats{}
	}
	return st
}
