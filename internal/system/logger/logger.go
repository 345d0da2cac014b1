// Package logger manages Lyra's log files: one file per day in logs_dir,
// size based rollover and optional mirroring to stderr. Raw files stay
// readable even when the agent itself fails to start.
package logger

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const filePrefix = "lyra-"

// Config controls where and how logs are written.
type Config struct {
	Dir           string
	Level         slog.Level
	MaxAgeDays    int // 0 disables Cleanup
	MaxSizeMB     int // rollover threshold per file
	StderrEnabled bool
}

// Manager is an io.Writer that rotates the underlying file by date and size.
type Manager struct {
	cfg     Config
	mu      sync.Mutex
	file    *os.File
	curDate string
	stderr  io.Writer
}

// DefaultConfig returns the settings used when logs_dir is not configured.
func DefaultConfig() Config {
	return Config{
		Dir:        "logs",
		Level:      slog.LevelInfo,
		MaxAgeDays: 30,
		MaxSizeMB:  20,
	}
}

// New creates the log directory and opens today's file.
func New(cfg Config) (*Manager, error) {
	if cfg.Dir == "" {
		cfg.Dir = DefaultConfig().Dir
	}
	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = DefaultConfig().MaxSizeMB
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	m := &Manager{cfg: cfg, stderr: os.Stderr}
	m.mu.Lock()
	err := m.rotateLocked()
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return m, nil
}

// NewLogger returns a text slog.Logger writing through the manager.
func (m *Manager) NewLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(m, &slog.HandlerOptions{Level: m.cfg.Level}))
}

// Write appends p to the current file, rotating first when the day changed
// or the file grew past MaxSizeMB.
func (m *Manager) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_ = m.rotateLocked()

	var (
		n   int
		err error
	)
	if m.file != nil {
		n, err = m.file.Write(p)
	}
	if m.cfg.StderrEnabled && m.stderr != nil {
		_, _ = m.stderr.Write(p)
	}
	return n, err
}

// Close closes the current file.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.file == nil {
		return nil
	}
	err := m.file.Close()
	m.file = nil
	return err
}

// Dir returns the log directory.
func (m *Manager) Dir() string { return m.cfg.Dir }

// CurrentFile returns the path of the file currently written to.
func (m *Manager) CurrentFile() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.file != nil {
		return m.file.Name()
	}
	return dailyFile(m.cfg.Dir, today())
}

func (m *Manager) rotateLocked() error {
	date := today()
	limit := int64(m.cfg.MaxSizeMB) * 1024 * 1024

	if m.file != nil && m.curDate == date {
		info, err := m.file.Stat()
		if err != nil || info.Size() < limit {
			return nil
		}
	}
	if m.file != nil {
		_ = m.file.Close()
		m.file = nil
	}

	path := dailyFile(m.cfg.Dir, date)
	if info, err := os.Stat(path); err == nil && info.Size() >= limit {
		for seq := 1; seq < 100; seq++ {
			candidate := filepath.Join(m.cfg.Dir, fmt.Sprintf("%s%s.%d.log", filePrefix, date, seq))
			info, err := os.Stat(candidate)
			if os.IsNotExist(err) || (err == nil && info.Size() < limit) {
				path = candidate
				break
			}
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	m.file = f
	m.curDate = date
	return nil
}

// Cleanup removes log files older than MaxAgeDays and returns how many
// were deleted.
func (m *Manager) Cleanup() (int, error) {
	if m.cfg.MaxAgeDays <= 0 {
		return 0, nil
	}
	files, err := ListLogFiles(m.cfg.Dir)
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().AddDate(0, 0, -m.cfg.MaxAgeDays)
	current := m.CurrentFile()
	removed := 0
	for _, f := range files {
		if f.Path == current || !f.ModTime.Before(cutoff) {
			continue
		}
		if err := os.Remove(f.Path); err == nil {
			removed++
		}
	}
	return removed, nil
}

// FileInfo describes one log file.
type FileInfo struct {
	Name    string
	Path    string
	Size    int64
	ModTime time.Time
}

// ListLogFiles returns the *.log files in dir, newest first.
func ListLogFiles(dir string) ([]FileInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var files []FileInfo
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".log") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, FileInfo{
			Name:    e.Name(),
			Path:    filepath.Join(dir, e.Name()),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	sort.Slice(files, func(i, j int) bool {
		return files[i].ModTime.After(files[j].ModTime)
	})
	return files, nil
}

// TotalSize sums the sizes of all log files in dir.
func TotalSize(dir string) (int64, error) {
	files, err := ListLogFiles(dir)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, f := range files {
		total += f.Size
	}
	return total, nil
}

// TailFile returns the last n non-empty lines of path.
func TailFile(path string, n int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if n <= 0 {
		n = 100
	}
	ring := make([]string, 0, n)
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		if len(ring) == n {
			ring = ring[1:]
		}
		ring = append(ring, line)
	}
	return ring, sc.Err()
}

// FollowFile copies data appended to path into w until stop is closed.
func FollowFile(path string, w io.Writer, stop <-chan struct{}) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		return err
	}
	buf := make([]byte, 4096)
	for {
		select {
		case <-stop:
			return nil
		default:
		}
		n, readErr := f.Read(buf)
		if n > 0 {
			_, _ = w.Write(buf[:n])
		}
		if readErr == io.EOF {
			time.Sleep(300 * time.Millisecond)
			continue
		}
		if readErr != nil {
			return readErr
		}
	}
}

func today() string {
	return time.Now().Format("2006-01-02")
}

func dailyFile(dir, date string) string {
	return filepath.Join(dir, filePrefix+date+".log")
}
