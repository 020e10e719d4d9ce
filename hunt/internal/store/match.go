package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrScoreRange is returned when a match score lies outside [0, 100].
var ErrScoreRange = errors.New("store: match score out of range [0, 100]")

// ErrMissingURL is returned when a match has no source URL.
var ErrMissingURL = errors.New("store: match URL is required")

// InsertMatch persists a new match and returns the stored record including
// the generated id. The insert is a single statement: it either fully
// succeeds or leaves no partial row.
func (s *Store) InsertMatch(ctx context.Context, in *MatchInput) (*JobMatch, error) {
	if in.URL == "" {
		return nil, ErrMissingURL
	}
	if in.MatchScore < 0 || in.MatchScore > 100 {
		return nil, fmt.Errorf("%w: %g", ErrScoreRange, in.MatchScore)
	}

	m := &JobMatch{
		ID:         s.NewID(),
		SessionID:  in.SessionID,
		URL:        in.URL,
		Title:      in.Title,
		Company:    in.Company,
		Location:   in.Location,
		MatchScore: in.MatchScore,
		Summary:    in.Summary,
		RawExcerpt: in.RawExcerpt,
		CreatedAt:  time.Now().UnixMilli(),
	}

	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO job_matches (id, session_id, url, title, company, location,
		match_score, summary, raw_excerpt, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.SessionID, m.URL, m.Title, m.Company, m.Location,
		m.MatchScore, m.Summary, m.RawExcerpt, m.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert match: %w", err)
	}
	return m, nil
}

// ListRecent returns up to limit matches, most recent first. UUIDv7 ids break
// ties between matches created in the same millisecond.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]*JobMatch, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, session_id, url, title, company, location,
		match_score, summary, raw_excerpt, created_at
		FROM job_matches
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list matches: %w", err)
	}
	defer rows.Close()

	var matches []*JobMatch
	for rows.Next() {
		m := &JobMatch{}
		if err := rows.Scan(&m.ID, &m.SessionID, &m.URL, &m.Title, &m.Company,
			&m.Location, &m.MatchScore, &m.Summary, &m.RawExcerpt, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// Clear removes all matches and returns the number removed.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM job_matches`)
	if err != nil {
		return 0, fmt.Errorf("clear matches: %w", err)
	}
	return res.RowsAffected()
}

// Count returns the total number of stored matches.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM job_matches`).Scan(&n)
	return n, err
}
