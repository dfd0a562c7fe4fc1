// Package uploads records metadata about every uploaded document.
package uploads

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

const uploadsSchema = `
CREATE TABLE IF NOT EXISTS uploads (
	file_id     TEXT PRIMARY KEY,
	filename    TEXT NOT NULL,
	session_id  TEXT NOT NULL,
	upload_time INTEGER NOT NULL,
	metadata    TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_uploads_session ON uploads(session_id);
`

// Record describes one uploaded file.
type Record struct {
	FileID     string            `json:"file_id"`
	Filename   string            `json:"filename"`
	SessionID  string            `json:"session_id"`
	UploadTime time.Time         `json:"upload_time"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Store persists upload records in SQLite.
type Store struct {
	db *sql.DB
}

// New keeps upload records in db, creating the table if needed. The database
// belongs to the caller.
func New(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(uploadsSchema); err != nil {
		return nil, fmt.Errorf("create uploads schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Save inserts or replaces rec.
func (s *Store) Save(ctx context.Context, rec Record) error {
	md, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("encode upload metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO uploads (file_id, filename, session_id, upload_time, metadata)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(file_id) DO UPDATE SET
			filename = excluded.filename,
			session_id = excluded.session_id,
			upload_time = excluded.upload_time,
			metadata = excluded.metadata`,
		rec.FileID, rec.Filename, rec.SessionID, rec.UploadTime.UnixMilli(), string(md))
	if err != nil {
		return fmt.Errorf("save upload %s: %w", rec.FileID, err)
	}
	return nil
}

// ListSession returns the uploads of a session, oldest first.
func (s *Store) ListSession(ctx context.Context, sessionID string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT file_id, filename, session_id, upload_time, metadata FROM uploads WHERE session_id = ? ORDER BY upload_time`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list uploads: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			rec    Record
			millis int64
			md     string
		)
		if err := rows.Scan(&rec.FileID, &rec.Filename, &rec.SessionID, &millis, &md); err != nil {
			return nil, fmt.Errorf("scan upload: %w", err)
		}
		rec.UploadTime = time.UnixMilli(millis).UTC()
		if err := json.Unmarshal([]byte(md), &rec.Metadata); err != nil {
			return nil, fmt.Errorf("decode upload metadata: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
