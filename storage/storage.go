// Storage module - SQLite-backed chat history and session metadata
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Storage wraps the history database
type Storage struct {
	db *sql.DB

	insertMsg  *sql.Stmt
	recentMsgs *sql.Stmt
}

// Message is one history entry
type Message struct {
	ID         int64
	SessionKey string
	Role       string // user, assistant, tool
	Content    string
	ToolName   string
	CreatedAt  time.Time
}

// SessionMeta tracks per-session bookkeeping
type SessionMeta struct {
	SessionKey  string
	UserID      string
	TurnCount   int
	FailedTurns int
	LastSummary string
	UpdatedAt   time.Time
}

// New opens (or creates) the history database at dbPath
func New(dbPath string) (*Storage, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// Single writer; SQLite serializes conflicting session writes for us
	db.SetMaxOpenConns(1)

	s := &Storage{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.initPreparedStmts(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Storage) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_key TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT,
			tool_name TEXT DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
		CREATE TABLE IF NOT EXISTS session_meta (
			session_key TEXT PRIMARY KEY,
			user_id TEXT DEFAULT '',
			turn_count INTEGER DEFAULT 0,
			failed_turns INTEGER DEFAULT 0,
			last_summary TEXT DEFAULT '',
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_key, id)`)
	return err
}

func (s *Storage) initPreparedStmts() error {
	var err error
	s.insertMsg, err = s.db.Prepare(`INSERT INTO messages (session_key, role, content, tool_name) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	s.recentMsgs, err = s.db.Prepare(`
		SELECT id, session_key, role, content, tool_name, created_at
		FROM (SELECT * FROM messages WHERE session_key = ? ORDER BY id DESC LIMIT ?)
		ORDER BY id ASC
	`)
	return err
}

// AddMessage appends one entry to a session's history
func (s *Storage) AddMessage(sessionKey, role, content, toolName string) error {
	_, err := s.insertMsg.Exec(sessionKey, role, content, toolName)
	if err != nil {
		return fmt.Errorf("add message: %w", err)
	}
	return nil
}

// GetRecentMessages returns the last n entries in chronological order
func (s *Storage) GetRecentMessages(sessionKey string, n int) ([]Message, error) {
	if n <= 0 {
		n = 50
	}
	rows, err := s.recentMsgs.Query(sessionKey, n)
	if err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.SessionKey, &m.Role, &m.Content, &m.ToolName, &m.CreatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// ClearMessages removes all history for a session
func (s *Storage) ClearMessages(sessionKey string) error {
	_, err := s.db.Exec(`DELETE FROM messages WHERE session_key = ?`, sessionKey)
	return err
}

// GetSessionMeta returns meta for a session (zero value if unseen)
func (s *Storage) GetSessionMeta(sessionKey string) (SessionMeta, error) {
	meta := SessionMeta{SessionKey: sessionKey}
	err := s.db.QueryRow(`
		SELECT session_key, user_id, turn_count, failed_turns, last_summary, updated_at
		FROM session_meta WHERE session_key = ?
	`, sessionKey).Scan(&meta.SessionKey, &meta.UserID, &meta.TurnCount, &meta.FailedTurns, &meta.LastSummary, &meta.UpdatedAt)
	if err == sql.ErrNoRows {
		return meta, nil
	}
	return meta, err
}

// RecordTurn bumps turn counters and stores the latest summary if non-empty
func (s *Storage) RecordTurn(sessionKey, userID, summary string, failed bool) error {
	failedInc := 0
	if failed {
		failedInc = 1
	}
	_, err := s.db.Exec(`
		INSERT INTO session_meta (session_key, user_id, turn_count, failed_turns, last_summary, updated_at)
		VALUES (?, ?, 1, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(session_key) DO UPDATE SET
			user_id = excluded.user_id,
			turn_count = turn_count + 1,
			failed_turns = failed_turns + ?,
			last_summary = CASE WHEN excluded.last_summary != '' THEN excluded.last_summary ELSE last_summary END,
			updated_at = CURRENT_TIMESTAMP
	`, sessionKey, userID, failedInc, summary, failedInc)
	if err != nil {
		return fmt.Errorf("record turn: %w", err)
	}
	return nil
}

// Stats returns row counts for diagnostics
func (s *Storage) Stats() (map[string]int, error) {
	stats := make(map[string]int)
	for name, q := range map[string]string{
		"messages": `SELECT COUNT(*) FROM messages`,
		"sessions": `SELECT COUNT(*) FROM session_meta`,
	} {
		var n int
		if err := s.db.QueryRow(q).Scan(&n); err != nil {
			return nil, err
		}
		stats[name] = n
	}
	return stats, nil
}

// Close closes the database
func (s *Storage) Close() error {
	if s.insertMsg != nil {
		_ = s.insertMsg.Close()
	}
	if s.recentMsgs != nil {
		_ = s.recentMsgs.Close()
	}
	return s.db.Close()
}
