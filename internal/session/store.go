package session

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

var (
	ErrSessionNotFound = errors.New("session not found")
)

// Store handles session persistence
type Store struct {
	db *sql.DB
}

// NewStore creates a new session store with SQLite backend
func NewStore(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "sessions.db")
	// Enable WAL mode and busy timeout for better concurrent access
	db, err := sql.Open("sqlite", dbPath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		sandbox_id TEXT NOT NULL,
		runtime_session_id TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL DEFAULT '',
		model TEXT NOT NULL DEFAULT '',
		agent TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'active',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		input_tokens INTEGER NOT NULL DEFAULT 0,
		output_tokens INTEGER NOT NULL DEFAULT 0,
		reasoning_tokens INTEGER NOT NULL DEFAULT 0,
		cache_read_tokens INTEGER NOT NULL DEFAULT 0,
		cache_write_tokens INTEGER NOT NULL DEFAULT 0,
		cost REAL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_sandbox ON sessions(sandbox_id);
	CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);

	CREATE TABLE IF NOT EXISTS turns (
		session_id TEXT NOT NULL,
		turn_number INTEGER NOT NULL,
		prompt TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		completed_at DATETIME NOT NULL,
		output TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		input_tokens INTEGER NOT NULL DEFAULT 0,
		output_tokens INTEGER NOT NULL DEFAULT 0,
		reasoning_tokens INTEGER NOT NULL DEFAULT 0,
		cache_read_tokens INTEGER NOT NULL DEFAULT 0,
		cache_write_tokens INTEGER NOT NULL DEFAULT 0,
		cost REAL,
		PRIMARY KEY (session_id, turn_number),
		FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Create inserts a new session record
func (s *Store) Create(sess *Session) error {
	if sess.SessionID == "" {
		sess.SessionID = "ses_" + uuid.New().String()
	}
	if sess.Status == "" {
		sess.Status = StatusActive
	}
	now := time.Now()
	sess.CreatedAt = now
	sess.UpdatedAt = now

	_, err := s.db.Exec(`
		INSERT INTO sessions (id, sandbox_id, runtime_session_id, title, model, agent, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.SessionID, sess.SandboxID, sess.RuntimeSessionID, sess.Title,
		sess.Model, sess.Agent, sess.Status, sess.CreatedAt, sess.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

// Get retrieves a session by ID with its turns
func (s *Store) Get(id string) (*Session, error) {
	var sess Session
	var cost sql.NullFloat64

	err := s.db.QueryRow(`
		SELECT id, sandbox_id, runtime_session_id, title, model, agent, status,
		       created_at, updated_at,
		       input_tokens, output_tokens, reasoning_tokens, cache_read_tokens, cache_write_tokens, cost
		FROM sessions WHERE id = ?`, id,
	).Scan(
		&sess.SessionID, &sess.SandboxID, &sess.RuntimeSessionID, &sess.Title,
		&sess.Model, &sess.Agent, &sess.Status, &sess.CreatedAt, &sess.UpdatedAt,
		&sess.TotalUsage.InputTokens, &sess.TotalUsage.OutputTokens, &sess.TotalUsage.ReasoningTokens,
		&sess.TotalUsage.CacheReadTokens, &sess.TotalUsage.CacheWriteTokens, &cost,
	)
	if err == sql.ErrNoRows {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session: %w", err)
	}

	if cost.Valid {
		sess.TotalUsage.Cost = &cost.Float64
	}

	turns, err := s.getTurns(id)
	if err != nil {
		return nil, err
	}
	sess.Turns = turns

	return &sess, nil
}

func (s *Store) getTurns(sessionID string) ([]Turn, error) {
	rows, err := s.db.Query(`
		SELECT turn_number, prompt, started_at, completed_at, output, error,
		       input_tokens, output_tokens, reasoning_tokens, cache_read_tokens, cache_write_tokens, cost
		FROM turns WHERE session_id = ? ORDER BY turn_number ASC`, sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query turns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var turns []Turn
	for rows.Next() {
		var turn Turn
		var cost sql.NullFloat64

		if err := rows.Scan(
			&turn.TurnNumber, &turn.Prompt, &turn.StartedAt, &turn.CompletedAt,
			&turn.Output, &turn.Error,
			&turn.Usage.InputTokens, &turn.Usage.OutputTokens, &turn.Usage.ReasoningTokens,
			&turn.Usage.CacheReadTokens, &turn.Usage.CacheWriteTokens, &cost,
		); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		if cost.Valid {
			turn.Usage.Cost = &cost.Float64
		}
		turns = append(turns, turn)
	}

	return turns, rows.Err()
}

// List returns session summaries matching the filter, newest first
func (s *Store) List(filter *ListFilter) ([]*Summary, error) {
	query := `
		SELECT s.id, s.sandbox_id, s.status, s.title, s.created_at, s.updated_at,
		       (SELECT COUNT(*) FROM turns t WHERE t.session_id = s.id)
		FROM sessions s`
	var args []interface{}
	var conditions []string

	if filter != nil {
		if filter.SandboxID != "" {
			conditions = append(conditions, "s.sandbox_id = ?")
			args = append(args, filter.SandboxID)
		}
		if filter.Status != "" {
			conditions = append(conditions, "s.status = ?")
			args = append(args, filter.Status)
		}
	}

	if len(conditions) > 0 {
		query += " WHERE " + conditions[0]
		for i := 1; i < len(conditions); i++ {
			query += " AND " + conditions[i]
		}
	}

	query += " ORDER BY s.created_at DESC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var summaries []*Summary
	for rows.Next() {
		var summary Summary
		if err := rows.Scan(
			&summary.SessionID, &summary.SandboxID, &summary.Status, &summary.Title,
			&summary.CreatedAt, &summary.UpdatedAt, &summary.TurnCount,
		); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		summaries = append(summaries, &summary)
	}

	return summaries, rows.Err()
}

// SetStatus updates the session status
func (s *Store) SetStatus(id string, status Status) error {
	result, err := s.db.Exec(`
		UPDATE sessions SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update session status: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// SetRuntimeSessionID records the backend session ID for continuation
func (s *Store) SetRuntimeSessionID(id, runtimeSessionID string) error {
	result, err := s.db.Exec(`
		UPDATE sessions SET runtime_session_id = ?, updated_at = ? WHERE id = ?`,
		runtimeSessionID, time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update runtime session id: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// AppendTurn records a turn and accumulates its usage into the session totals
func (s *Store) AppendTurn(sessionID string, turn *Turn) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if turn.TurnNumber == 0 {
		var max sql.NullInt64
		if err := tx.QueryRow(
			"SELECT MAX(turn_number) FROM turns WHERE session_id = ?", sessionID,
		).Scan(&max); err != nil {
			return fmt.Errorf("failed to number turn: %w", err)
		}
		turn.TurnNumber = int(max.Int64) + 1
	}

	var cost interface{}
	if turn.Usage.Cost != nil {
		cost = *turn.Usage.Cost
	}

	_, err = tx.Exec(`
		INSERT INTO turns (session_id, turn_number, prompt, started_at, completed_at, output, error,
		                   input_tokens, output_tokens, reasoning_tokens, cache_read_tokens, cache_write_tokens, cost)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, turn.TurnNumber, turn.Prompt, turn.StartedAt, turn.CompletedAt,
		turn.Output, turn.Error,
		turn.Usage.InputTokens, turn.Usage.OutputTokens, turn.Usage.ReasoningTokens,
		turn.Usage.CacheReadTokens, turn.Usage.CacheWriteTokens, cost,
	)
	if err != nil {
		return fmt.Errorf("failed to insert turn: %w", err)
	}

	result, err := tx.Exec(`
		UPDATE sessions SET
			input_tokens = input_tokens + ?,
			output_tokens = output_tokens + ?,
			reasoning_tokens = reasoning_tokens + ?,
			cache_read_tokens = cache_read_tokens + ?,
			cache_write_tokens = cache_write_tokens + ?,
			cost = COALESCE(cost, 0) + COALESCE(?, 0),
			updated_at = ?
		WHERE id = ?`,
		turn.Usage.InputTokens, turn.Usage.OutputTokens, turn.Usage.ReasoningTokens,
		turn.Usage.CacheReadTokens, turn.Usage.CacheWriteTokens, cost,
		time.Now(), sessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to accumulate usage: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrSessionNotFound
	}

	return tx.Commit()
}

// Delete removes a session and its turns (CASCADE)
func (s *Store) Delete(id string) error {
	result, err := s.db.Exec("DELETE FROM sessions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrSessionNotFound
	}

	return nil
}
