package store

// JobMatch is one scored listing accepted into the store. URL and ID are
// immutable after creation; there is no update operation.
type JobMatch struct {
	ID         string  `json:"id"`
	SessionID  string  `json:"session_id,omitempty"`
	URL        string  `json:"url"`
	Title      string  `json:"title,omitempty"`
	Company    string  `json:"company,omitempty"`
	Location   string  `json:"location,omitempty"`
	MatchScore float64 `json:"match_score"`
	Summary    string  `json:"summary"`
	RawExcerpt string  `json:"raw_excerpt,omitempty"`
	CreatedAt  int64   `json:"created_at"` // unix milliseconds
}

// MatchInput is the caller-supplied portion of a JobMatch: everything except
// the generated id and timestamp.
type MatchInput struct {
	SessionID  string  `json:"session_id,omitempty"`
	URL        string  `json:"url"`
	Title      string  `json:"title,omitempty"`
	Company    string  `json:"company,omitempty"`
	Location   string  `json:"location,omitempty"`
	MatchScore float64 `json:"match_score"`
	Summary    string  `json:"summary"`
	RawExcerpt string  `json:"raw_excerpt,omitempty"`
}
