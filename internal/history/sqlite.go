package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const historySchema = `
CREATE TABLE IF NOT EXISTS history_turns (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	role       TEXT NOT NULL,
	content    TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_history_session ON history_turns(session_id, id);
`

// SQLiteStore persists turns in SQLite, pruning each session to maxTurns on append.
type SQLiteStore struct {
	db       *sql.DB
	maxTurns int
}

// NewSQLiteStore keeps history in db, creating its table if needed. The
// database belongs to the caller; Close leaves it open.
func NewSQLiteStore(db *sql.DB, maxTurns int) (*SQLiteStore, error) {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	if _, err := db.Exec(historySchema); err != nil {
		return nil, fmt.Errorf("create history schema: %w", err)
	}
	return &SQLiteStore{db: db, maxTurns: maxTurns}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, sessionID string) ([]Turn, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT role, content FROM history_turns WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	turns := []Turn{}
	for rows.Next() {
		var t Turn
		if err := rows.Scan(&t.Role, &t.Content); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

func (s *SQLiteStore) Append(ctx context.Context, sessionID string, turns ...Turn) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin history tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	for _, t := range turns {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO history_turns (session_id, role, content, created_at) VALUES (?, ?, ?, ?)`,
			sessionID, t.Role, t.Content, now)
		if err != nil {
			return fmt.Errorf("insert turn: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		DELETE FROM history_turns
		WHERE session_id = ? AND id NOT IN (
			SELECT id FROM history_turns WHERE session_id = ? ORDER BY id DESC LIMIT ?
		)`, sessionID, sessionID, s.maxTurns)
	if err != nil {
		return fmt.Errorf("prune history: %w", err)
	}

	return tx.Commit()
}

func (s *SQLiteStore) Clear(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM history_turns WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return nil
}
