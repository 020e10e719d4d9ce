package store

import "database/sql"

// Schema is the match store schema. Scores are double-checked here so a
// record can never enter the table outside [0, 100] even if a future caller
// skips the Go-side validation.
const Schema = `
-- Accepted job matches
CREATE TABLE IF NOT EXISTS job_matches (
    id           TEXT PRIMARY KEY,
    session_id   TEXT NOT NULL DEFAULT '',
    url          TEXT NOT NULL,
    title        TEXT NOT NULL DEFAULT '',
    company      TEXT NOT NULL DEFAULT '',
    location     TEXT NOT NULL DEFAULT '',
    match_score  REAL NOT NULL CHECK(match_score >= 0 AND match_score <= 100),
    summary      TEXT NOT NULL DEFAULT '',
    raw_excerpt  TEXT NOT NULL DEFAULT '',
    created_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_job_matches_created ON job_matches(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_job_matches_session ON job_matches(session_id);
`

// ApplySchema creates all tables and indexes on the given database.
func ApplySchema(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}
