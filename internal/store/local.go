// Package store holds the persistence sinks: a local SQLite store and
// an optional REST cloud store. Both are side channels of the pipeline;
// the in-memory conversation store stays authoritative and sink
// failures never surface as chat errors.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/foxai-labs/oceep/internal/logging"
	"github.com/foxai-labs/oceep/internal/types"
)

// LocalStore persists sessions and messages in SQLite.
type LocalStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// NewLocalStore initializes the SQLite database at the given path.
func NewLocalStore(path string) (*LocalStore, error) {
	timer := logging.StartTimer(logging.CategoryStore, "NewLocalStore")
	defer timer.Stop()

	logging.Store("Initializing LocalStore at path: %s", path)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite journal_mode=WAL: %v", err)
	}
	// synchronous=NORMAL is safe with WAL and much faster than FULL.
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite synchronous=NORMAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		logging.StoreDebug("Failed to enable sqlite foreign_keys: %v", err)
	}

	s := &LocalStore{db: db, dbPath: path}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logging.Store("LocalStore ready at %s", path)
	return s, nil
}

func (s *LocalStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id         TEXT PRIMARY KEY,
		title      TEXT NOT NULL,
		persona_id TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		id         TEXT PRIMARY KEY,
		session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		position   INTEGER NOT NULL,
		role       TEXT NOT NULL,
		content    TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		metadata   TEXT NOT NULL DEFAULT '{}'
	);

	CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, position);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return nil
}

// Close closes the database.
func (s *LocalStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// messageMeta is the JSON sidecar for the message fields that have no
// column of their own.
type messageMeta struct {
	Attachments      []string         `json:"attachments,omitempty"`
	Tier             types.ModelTier  `json:"tier,omitempty"`
	ThinkingDuration float64          `json:"thinkingDuration,omitempty"`
	Citations        []types.Citation `json:"citations,omitempty"`
	SpeechAudio      string           `json:"speechAudio,omitempty"`
	Error            bool             `json:"error,omitempty"`
}

func encodeMeta(m types.Message) string {
	meta := messageMeta{
		Attachments:      m.Attachments,
		Tier:             m.Tier,
		ThinkingDuration: m.ThinkingDuration,
		Citations:        m.Citations,
		SpeechAudio:      m.SpeechAudio,
		Error:            m.Error,
	}
	data, err := json.Marshal(meta)
	if err != nil {
		logging.StoreWarn("failed to encode message metadata: %v", err)
		return "{}"
	}
	return string(data)
}

func applyMeta(m *types.Message, raw string) {
	var meta messageMeta
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		logging.StoreWarn("failed to decode message metadata: %v", err)
		return
	}
	m.Attachments = meta.Attachments
	m.Tier = meta.Tier
	m.ThinkingDuration = meta.ThinkingDuration
	m.Citations = meta.Citations
	m.SpeechAudio = meta.SpeechAudio
	m.Error = meta.Error
}

// SaveSession writes the whole session atomically, replacing its
// messages. Streaming placeholders are persisted as they are; load
// clears the transient flags.
func (s *LocalStore) SaveSession(sess types.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`INSERT OR REPLACE INTO sessions (id, title, persona_id, created_at) VALUES (?, ?, ?, ?)`,
		sess.ID, sess.Title, sess.PersonaID, sess.CreatedAt,
	); err != nil {
		return fmt.Errorf("failed to upsert session: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM messages WHERE session_id = ?`, sess.ID); err != nil {
		return fmt.Errorf("failed to clear session messages: %w", err)
	}

	stmt, err := tx.Prepare(
		`INSERT INTO messages (id, session_id, position, role, content, created_at, metadata) VALUES (?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("failed to prepare message insert: %w", err)
	}
	defer stmt.Close()

	for i, m := range sess.Messages {
		if _, err := stmt.Exec(m.ID, sess.ID, i, string(m.Role), m.Content, m.CreatedAt, encodeMeta(m)); err != nil {
			return fmt.Errorf("failed to insert message %s: %w", m.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit session: %w", err)
	}

	logging.StoreDebug("saved session %s (%d messages)", sess.ID, len(sess.Messages))
	return nil
}

// LoadSessions returns all sessions newest first with their messages
// in order. Transient streaming flags do not survive a restart.
func (s *LocalStore) LoadSessions() ([]types.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT id, title, persona_id, created_at FROM sessions ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []types.Session
	for rows.Next() {
		var sess types.Session
		if err := rows.Scan(&sess.ID, &sess.Title, &sess.PersonaID, &sess.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}

	for i := range sessions {
		msgs, err := s.loadMessages(sessions[i].ID)
		if err != nil {
			return nil, err
		}
		sessions[i].Messages = msgs
	}

	logging.StoreDebug("loaded %d sessions", len(sessions))
	return sessions, nil
}

func (s *LocalStore) loadMessages(sessionID string) ([]types.Message, error) {
	rows, err := s.db.Query(
		`SELECT id, role, content, created_at, metadata FROM messages WHERE session_id = ? ORDER BY position ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	msgs := []types.Message{}
	for rows.Next() {
		var m types.Message
		var role, meta string
		if err := rows.Scan(&m.ID, &role, &m.Content, &m.CreatedAt, &meta); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.Role = types.Role(role)
		applyMeta(&m, meta)
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// DeleteSession removes a session and its messages.
func (s *LocalStore) DeleteSession(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Explicit delete in case foreign_keys could not be enabled.
	if _, err := s.db.Exec(`DELETE FROM messages WHERE session_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete session messages: %w", err)
	}
	if _, err := s.db.Exec(`DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	logging.StoreDebug("deleted session %s", id)
	return nil
}
