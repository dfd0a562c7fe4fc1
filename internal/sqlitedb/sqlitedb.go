// Package sqlitedb opens the SQLite database shared by the history and
// upload stores.
package sqlitedb

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Pragmas applied to every connection. WAL lets readers proceed during a
// write and busy_timeout makes other processes on the same file wait for the
// lock instead of failing with SQLITE_BUSY.
const Pragmas = "_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"

// Open opens the database at path. The pool is limited to one connection so
// writers in this process are serialized.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path+"?"+Pragmas)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	return db, nil
}
