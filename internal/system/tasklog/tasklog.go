// Package tasklog keeps a SQLite audit trail of what the agent did: tool
// dispatches, shell commands and model answers. It lives next to the logs
// in <logs_dir>/audit.db and is independent from the memory log, which
// feeds prompts; the audit trail is only read by `lyra audit`.
package tasklog

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Action kinds.
const (
	ActionTool    = "tool"    // tool dispatch
	ActionSystem  = "system"  // shell command (directive or confirmed)
	ActionModel   = "model"   // answer from the model chain
	ActionControl = "control" // session control command
	ActionPropose = "propose" // PROPOSE_TOOL directive
)

// Status values.
const (
	StatusSuccess  = "success"
	StatusError    = "error"
	StatusRefused  = "refused"
	StatusPending  = "pending"
	StatusDegraded = "degraded"
	StatusDryRun   = "dry-run"
)

const dbFile = "audit.db"

// Config controls the audit store.
type Config struct {
	Dir        string
	MaxAgeDays int // 0 keeps everything
	MaxRecords int // 0 is unlimited
}

// Record is one audited action.
type Record struct {
	ID         int64  `json:"id"`
	Action     string `json:"action"`
	Name       string `json:"name"` // tool name, backend or control command
	SessionID  string `json:"sessionId"`
	Input      string `json:"input"`
	Output     string `json:"output"`
	Status     string `json:"status"`
	Error      string `json:"error"`
	DurationMs int64  `json:"durationMs"`
	TokensIn   int    `json:"tokensIn"`
	TokensOut  int    `json:"tokensOut"`
	Model      string `json:"model"`
	CreatedAt  string `json:"createdAt"`
}

// Store is the audit database.
type Store struct {
	dbPath string
	db     *sql.DB
	mu     sync.Mutex
}

// DefaultConfig keeps 90 days and at most 50k rows.
func DefaultConfig(dir string) Config {
	return Config{Dir: dir, MaxAgeDays: 90, MaxRecords: 50000}
}

// Open creates the directory and schema if needed.
func Open(cfg Config) (*Store, error) {
	if cfg.Dir == "" {
		return nil, errors.New("tasklog: empty dir")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}
	s := &Store{dbPath: filepath.Join(cfg.Dir, dbFile)}
	if err := s.init(); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.openDB()
	if err != nil {
		return err
	}

	ddl := `
CREATE TABLE IF NOT EXISTS audit_records (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  action TEXT NOT NULL DEFAULT '',
  name TEXT NOT NULL DEFAULT '',
  session_id TEXT NOT NULL DEFAULT '',
  input TEXT NOT NULL DEFAULT '',
  output TEXT NOT NULL DEFAULT '',
  status TEXT NOT NULL DEFAULT 'success',
  error TEXT NOT NULL DEFAULT '',
  duration_ms INTEGER NOT NULL DEFAULT 0,
  tokens_in INTEGER NOT NULL DEFAULT 0,
  tokens_out INTEGER NOT NULL DEFAULT 0,
  model TEXT NOT NULL DEFAULT '',
  created_at TEXT NOT NULL
);`
	if _, err := db.Exec(ddl); err != nil {
		return fmt.Errorf("create audit_records table: %w", err)
	}
	for _, idx := range []string{
		"CREATE INDEX IF NOT EXISTS idx_audit_created ON audit_records(created_at DESC);",
		"CREATE INDEX IF NOT EXISTS idx_audit_action ON audit_records(action);",
		"CREATE INDEX IF NOT EXISTS idx_audit_session ON audit_records(session_id);",
	} {
		_, _ = db.Exec(idx)
	}

	_, _ = db.Exec(`CREATE VIRTUAL TABLE IF NOT EXISTS audit_records_fts USING fts5(
		input, output, error,
		content=audit_records, content_rowid=id
	);`)
	_, _ = db.Exec(`CREATE TRIGGER IF NOT EXISTS audit_records_fts_ai AFTER INSERT ON audit_records BEGIN
		INSERT INTO audit_records_fts(rowid, input, output, error) VALUES (new.id, new.input, new.output, new.error);
	END;`)
	_, _ = db.Exec(`CREATE TRIGGER IF NOT EXISTS audit_records_fts_ad AFTER DELETE ON audit_records BEGIN
		INSERT INTO audit_records_fts(audit_records_fts, rowid, input, output, error) VALUES ('delete', old.id, old.input, old.output, old.error);
	END;`)
	return nil
}

func (s *Store) openDB() (*sql.DB, error) {
	if s.db != nil {
		return s.db, nil
	}
	db, err := sql.Open("sqlite", s.dbPath+"?_pragma=busy_timeout%3d5000&_pragma=journal_mode%3dwal")
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	db.SetMaxOpenConns(1)
	s.db = db
	return db, nil
}

const selectColumns = "id, action, name, session_id, input, output, status, error, duration_ms, tokens_in, tokens_out, model, created_at"

// Log inserts rec and fills its ID and CreatedAt.
func (s *Store) Log(rec *Record) error {
	if s == nil || rec == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.openDB()
	if err != nil {
		return err
	}
	if rec.CreatedAt == "" {
		rec.CreatedAt = time.Now().UTC().Format(time.RFC3339Nano)
	}
	if rec.Status == "" {
		rec.Status = StatusSuccess
	}
	result, err := db.Exec(
		`INSERT INTO audit_records(action, name, session_id, input, output, status, error, duration_ms, tokens_in, tokens_out, model, created_at)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?,?)`,
		rec.Action, rec.Name, rec.SessionID, rec.Input, rec.Output, rec.Status, rec.Error,
		rec.DurationMs, rec.TokensIn, rec.TokensOut, rec.Model, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	rec.ID, _ = result.LastInsertId()
	return nil
}

// Get returns the record with id, or nil when absent.
func (s *Store) Get(id int64) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.openDB()
	if err != nil {
		return nil, err
	}
	var r Record
	err = db.QueryRow("SELECT "+selectColumns+" FROM audit_records WHERE id=?", id).Scan(recordFields(&r)...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// Query filters records. Zero values mean "any".
type Query struct {
	Action    string
	Name      string
	SessionID string
	Status    string
	Search    string // full text over input, output and error
	Since     string // RFC3339, inclusive
	Limit     int
	Offset    int
}

// Query returns matching records newest first and the total match count.
func (s *Store) Query(q Query) ([]Record, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.openDB()
	if err != nil {
		return nil, 0, err
	}
	if q.Limit <= 0 {
		q.Limit = 50
	}

	var conditions []string
	var args []any
	add := func(cond string, v any) {
		conditions = append(conditions, cond)
		args = append(args, v)
	}
	if q.Action != "" {
		add("action=?", q.Action)
	}
	if q.Name != "" {
		add("name=?", q.Name)
	}
	if q.SessionID != "" {
		add("session_id=?", q.SessionID)
	}
	if q.Status != "" {
		add("status=?", q.Status)
	}
	if q.Search != "" {
		add("id IN (SELECT rowid FROM audit_records_fts WHERE audit_records_fts MATCH ?)", buildFTSQuery(q.Search))
	}
	if q.Since != "" {
		add("created_at>=?", q.Since)
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	_ = db.QueryRow("SELECT COUNT(*) FROM audit_records"+where, args...).Scan(&total)

	rows, err := db.Query("SELECT "+selectColumns+" FROM audit_records"+where+" ORDER BY id DESC LIMIT ? OFFSET ?",
		append(args, q.Limit, q.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(recordFields(&r)...); err != nil {
			continue
		}
		records = append(records, r)
	}
	return records, total, rows.Err()
}

// Stats summarizes the audit trail.
type Stats struct {
	TotalRecords   int            `json:"totalRecords"`
	TotalTokensIn  int64          `json:"totalTokensIn"`
	TotalTokensOut int64          `json:"totalTokensOut"`
	ByAction       map[string]int `json:"byAction"`
	ByName         map[string]int `json:"byName"`
	ByStatus       map[string]int `json:"byStatus"`
	AvgDurationMs  float64        `json:"avgDurationMs"`
	EarliestRecord string         `json:"earliestRecord"`
	LatestRecord   string         `json:"latestRecord"`
}

// GetStats aggregates counts and token totals.
func (s *Store) GetStats() (*Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.openDB()
	if err != nil {
		return nil, err
	}
	st := &Stats{
		ByAction: make(map[string]int),
		ByName:   make(map[string]int),
		ByStatus: make(map[string]int),
	}
	_ = db.QueryRow("SELECT COUNT(*), COALESCE(SUM(tokens_in),0), COALESCE(SUM(tokens_out),0), COALESCE(MIN(created_at),''), COALESCE(MAX(created_at),'') FROM audit_records").
		Scan(&st.TotalRecords, &st.TotalTokensIn, &st.TotalTokensOut, &st.EarliestRecord, &st.LatestRecord)
	_ = db.QueryRow("SELECT COALESCE(AVG(duration_ms),0) FROM audit_records WHERE duration_ms>0").Scan(&st.AvgDurationMs)

	scanGroupBy(db, "SELECT action, COUNT(*) FROM audit_records GROUP BY action", st.ByAction)
	scanGroupBy(db, "SELECT name, COUNT(*) FROM audit_records WHERE name<>'' GROUP BY name", st.ByName)
	scanGroupBy(db, "SELECT status, COUNT(*) FROM audit_records GROUP BY status", st.ByStatus)
	return st, nil
}

// Cleanup deletes rows older than maxAgeDays and then trims to the newest
// maxRecords. It returns the number of deleted rows.
func (s *Store) Cleanup(maxAgeDays, maxRecords int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.openDB()
	if err != nil {
		return 0, err
	}
	var deleted int64
	if maxAgeDays > 0 {
		cutoff := time.Now().AddDate(0, 0, -maxAgeDays).UTC().Format(time.RFC3339Nano)
		res, err := db.Exec("DELETE FROM audit_records WHERE created_at < ?", cutoff)
		if err != nil {
			return deleted, fmt.Errorf("delete old audit records: %w", err)
		}
		n, _ := res.RowsAffected()
		deleted += n
	}
	if maxRecords > 0 {
		res, err := db.Exec("DELETE FROM audit_records WHERE id NOT IN (SELECT id FROM audit_records ORDER BY id DESC LIMIT ?)", maxRecords)
		if err != nil {
			return deleted, fmt.Errorf("trim audit records: %w", err)
		}
		n, _ := res.RowsAffected()
		deleted += n
	}
	if deleted > 0 {
		_, _ = db.Exec("INSERT INTO audit_records_fts(audit_records_fts) VALUES('rebuild')")
	}
	return deleted, nil
}

// Count returns the number of rows.
func (s *Store) Count() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	db, err := s.openDB()
	if err != nil {
		return 0, err
	}
	var n int
	err = db.QueryRow("SELECT COUNT(*) FROM audit_records").Scan(&n)
	return n, err
}

// Close closes the database. Safe on a nil store.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// DBPath returns the database file path.
func (s *Store) DBPath() string { return s.dbPath }

func recordFields(r *Record) []any {
	return []any{&r.ID, &r.Action, &r.Name, &r.SessionID, &r.Input, &r.Output, &r.Status, &r.Error,
		&r.DurationMs, &r.TokensIn, &r.TokensOut, &r.Model, &r.CreatedAt}
}

func scanGroupBy(db *sql.DB, query string, target map[string]int) {
	rows, err := db.Query(query)
	if err != nil {
		return
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		var n int
		if rows.Scan(&key, &n) == nil {
			target[key] = n
		}
	}
}

// buildFTSQuery quotes every word and ORs them together so user input
// cannot inject FTS5 syntax.
func buildFTSQuery(input string) string {
	words := strings.Fields(input)
	if len(words) == 0 {
		return `""`
	}
	parts := make([]string, 0, len(words))
	for _, w := range words {
		parts = append(parts, `"`+strings.ReplaceAll(w, `"`, `""`)+`"`)
	}
	return strings.Join(parts, " OR ")
}
