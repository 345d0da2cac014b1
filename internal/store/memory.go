package store

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lyra-agent/lyra/internal/system/fslock"
)

// Entry types.
const (
	EntryText        = "TEXT"
	EntryTool        = "TOOL"
	EntrySystem      = "SYSTEM"
	EntryProposeTool = "PROPOSE_TOOL"
)

// Entry is one memory log record. Only the fields of its Type are set.
type Entry struct {
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`

	User      string `json:"user,omitempty"`
	Assistant string `json:"assistant,omitempty"`
	Backend   string `json:"backend,omitempty"`
	Model     string `json:"model,omitempty"`

	Tool   string `json:"tool,omitempty"`
	Args   string `json:"args,omitempty"`
	Output string `json:"output,omitempty"`

	Command string `json:"command,omitempty"`

	Proposal string `json:"proposal,omitempty"`
}

// TextEntry builds a TEXT entry.
func TextEntry(user, assistant, backend, model string) Entry {
	return Entry{Type: EntryText, User: user, Assistant: assistant, Backend: backend, Model: model}
}

// ToolEntry builds a TOOL entry.
func ToolEntry(tool, args, output string) Entry {
	return Entry{Type: EntryTool, Tool: tool, Args: args, Output: output}
}

// SystemEntry builds a SYSTEM entry.
func SystemEntry(command, output string) Entry {
	return Entry{Type: EntrySystem, Command: command, Output: output}
}

// ProposalEntry builds a PROPOSE_TOOL entry.
func ProposalEntry(proposal string) Entry {
	return Entry{Type: EntryProposeTool, Proposal: proposal}
}

// MemoryOptions configures archival. A zero Threshold disables it.
type MemoryOptions struct {
	Threshold int
	Keep      int
}

// MemoryLog is an append-only JSON array of entries. When it reaches
// Threshold entries, everything but the newest Keep entries is appended to
// <memory_file>.archive.json; archived entries are never discarded.
type MemoryLog struct {
	path   string
	lock   *fslock.Lock
	opts   MemoryOptions
	logger *slog.Logger
	now    func() time.Time
}

// NewMemoryLog prepares the log; the file is created on first append.
func NewMemoryLog(path string, opts MemoryOptions, logger *slog.Logger) *MemoryLog {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Keep < 0 {
		opts.Keep = 0
	}
	return &MemoryLog{
		path:   path,
		lock:   fslock.New(path),
		opts:   opts,
		logger: logger.With("component", "memory"),
		now:    time.Now,
	}
}

// Path returns the memory file.
func (m *MemoryLog) Path() string { return m.path }

// ArchivePath returns <memory_file>.archive.json.
func (m *MemoryLog) ArchivePath() string {
	return strings.TrimSuffix(m.path, ".json") + ".archive.json"
}

// Append stamps e and adds it to the end of the log, then archives if the
// threshold was reached.
func (m *MemoryLog) Append(e Entry) error {
	if e.Type == "" {
		return errors.New("memory entry without type")
	}
	if e.Timestamp == "" {
		e.Timestamp = m.now().Format(time.RFC3339Nano)
	}
	return m.lock.With(func() error {
		entries, err := m.loadLocked()
		if err != nil {
			return err
		}
		entries = append(entries, e)
		if m.opts.Threshold > 0 && len(entries) >= m.opts.Threshold {
			entries, err = m.archiveLocked(entries, m.opts.Keep)
			if err != nil {
				return err
			}
		}
		return writeJSON(m.path, entries)
	})
}

// All returns every live entry.
func (m *MemoryLog) All() ([]Entry, error) {
	var out []Entry
	err := m.lock.With(func() error {
		var err error
		out, err = m.loadLocked()
		return err
	})
	return out, err
}

// Len returns the number of live entries.
func (m *MemoryLog) Len() int {
	entries, _ := m.All()
	return len(entries)
}

// Tail returns the newest n entries in log order.
func (m *MemoryLog) Tail(n int) ([]Entry, error) {
	entries, err := m.All()
	if err != nil || n <= 0 {
		return nil, err
	}
	if len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	return entries, nil
}

// TailText returns the newest n TEXT entries in log order.
func (m *MemoryLog) TailText(n int) ([]Entry, error) {
	entries, err := m.All()
	if err != nil || n <= 0 {
		return nil, err
	}
	var out []Entry
	for i := len(entries) - 1; i >= 0 && len(out) < n; i-- {
		if entries[i].Type == EntryText {
			out = append(out, entries[i])
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// ArchiveNow moves all but the newest keep entries to the archive
// regardless of the threshold and returns how many moved.
func (m *MemoryLog) ArchiveNow(keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}
	moved := 0
	err := m.lock.With(func() error {
		entries, err := m.loadLocked()
		if err != nil {
			return err
		}
		before := len(entries)
		entries, err = m.archiveLocked(entries, keep)
		if err != nil {
			return err
		}
		moved = before - len(entries)
		if moved == 0 {
			return nil
		}
		return writeJSON(m.path, entries)
	})
	return moved, err
}

// ArchiveLen returns the number of archived entries.
func (m *MemoryLog) ArchiveLen() (int, error) {
	var archived []Entry
	err := m.lock.With(func() error {
		return readJSON(m.ArchivePath(), &archived)
	})
	return len(archived), err
}

// archiveLocked appends the old head of entries to the archive file and
// returns the kept tail. The archive is written before the live log.
func (m *MemoryLog) archiveLocked(entries []Entry, keep int) ([]Entry, error) {
	if len(entries) <= keep {
		return entries, nil
	}
	cut := len(entries) - keep
	var archived []Entry
	if err := readJSON(m.ArchivePath(), &archived); err != nil {
		return nil, fmt.Errorf("read memory archive: %w", err)
	}
	archived = append(archived, entries[:cut]...)
	if err := writeJSON(m.ArchivePath(), archived); err != nil {
		return nil, err
	}
	m.logger.Info("memory archived", "moved", cut, "kept", keep, "archive", m.ArchivePath())
	kept := make([]Entry, 0, keep)
	return append(kept, entries[cut:]...), nil
}

func (m *MemoryLog) loadLocked() ([]Entry, error) {
	var entries []Entry
	err := readJSON(m.path, &entries)
	if errors.Is(err, errCorrupt) {
		moved, qerr := quarantine(m.path)
		if qerr != nil {
			return nil, qerr
		}
		m.logger.Warn("memory file corrupt, starting empty", "path", m.path, "moved_to", moved, "error", err)
		return nil, nil
	}
	return entries, err
}
