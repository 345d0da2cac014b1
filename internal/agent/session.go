package agent

import (
	"time"

	"github.com/google/uuid"

	"github.com/lyra-agent/lyra/internal/store"
)

// Session is the per-process conversation state owned by a Pipeline.
type Session struct {
	ID        string
	StartedAt time.Time

	// Forced pins a backend for this session: ForceLocal or ForceCloud.
	Forced string

	LastBackend   string
	LastModel     string
	LastInference string
	LastStats     store.Stats

	Confirm Confirmation
	Handled int
}

// NewSession starts a session with a fresh id.
func NewSession() *Session {
	return &Session{ID: uuid.NewString(), StartedAt: time.Now()}
}
