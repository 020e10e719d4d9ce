// Package store persists accepted job matches in SQLite.
//
// The table is append-mostly: matches are inserted by the save_job_match
// tool, never updated, and removed only by Clear. IDs are UUIDv7 so
// concurrent sessions can insert without coordinating.
package store

import (
	"database/sql"

	"github.com/hazyhaar/chasse/idgen"
)

// Store wraps a *sql.DB with match persistence operations.
type Store struct {
	DB    *sql.DB
	NewID idgen.Generator
}

// NewStore creates a Store over an opened database.
func NewStore(db *sql.DB) *Store {
	return &Store{DB: db, NewID: idgen.Prefixed("job_", idgen.UUIDv7())}
}
