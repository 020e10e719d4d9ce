package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"

	_ "modernc.org/sqlite"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA busy_timeout=10000")
	if err := ApplySchema(db); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestApplySchema(t *testing.T) {
	// WHAT: Schema creates the job_matches table.
	// WHY: Everything else depends on it.
	db := openTestDB(t)
	var name string
	err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name='job_matches'`).Scan(&name)
	if err != nil {
		t.Fatalf("job_matches table not found: %v", err)
	}
}

func TestInsertMatch(t *testing.T) {
	// WHAT: Insert generates an id and timestamp and stores all fields.
	db := openTestDB(t)
	s := NewStore(db)
	ctx := context.Background()

	m, err := s.InsertMatch(ctx, &MatchInput{
		SessionID:  "ses_1",
		URL:        "https://example.com/jobs/42",
		Title:      "Backend Engineer",
		Company:    "Example Corp",
		Location:   "Remote",
		MatchScore: 82,
		Summary:    "Strong fit",
		RawExcerpt: "We are hiring...",
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if m.ID == "" {
		t.Error("id should be generated")
	}
	if m.CreatedAt == 0 {
		t.Error("created_at should be set")
	}

	got, err := s.ListRecent(ctx, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 match, got %d", len(got))
	}
	if got[0].ID != m.ID || got[0].Title != "Backend Engineer" || got[0].MatchScore != 82 {
		t.Errorf("stored match mismatch: %+v", got[0])
	}
}

func TestInsertMatch_ScoreBounds(t *testing.T) {
	// WHAT: Scores -5 and 150 are rejected; 0 and 100 are accepted.
	// WHY: The score invariant is the store's one validation duty.
	db := openTestDB(t)
	s := NewStore(db)
	ctx := context.Background()

	for _, score := range []float64{-5, 150, 100.01} {
		_, err := s.InsertMatch(ctx, &MatchInput{URL: "https://example.com", MatchScore: score})
		if !errors.Is(err, ErrScoreRange) {
			t.Errorf("score %g: expected ErrScoreRange, got %v", score, err)
		}
	}
	for _, score := range []float64{0, 100, 50.5} {
		if _, err := s.InsertMatch(ctx, &MatchInput{URL: "https://example.com", MatchScore: score}); err != nil {
			t.Errorf("score %g: unexpected error %v", score, err)
		}
	}
}

func TestInsertMatch_MissingURL(t *testing.T) {
	db := openTestDB(t)
	s := NewStore(db)
	_, err := s.InsertMatch(context.Background(), &MatchInput{MatchScore: 50})
	if !errors.Is(err, ErrMissingURL) {
		t.Errorf("expected ErrMissingURL, got %v", err)
	}
}

func TestListRecent_OrderAndLimit(t *testing.T) {
	// WHAT: ListRecent returns at most limit records, newest first.
	db := openTestDB(t)
	s := NewStore(db)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := s.InsertMatch(ctx, &MatchInput{
			URL:        fmt.Sprintf("https://example.com/jobs/%d", i),
			MatchScore: float64(i * 10),
		})
		if err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}

	got, err := s.ListRecent(ctx, 3)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3, got %d", len(got))
	}
	// Inserted in order 0..4; newest (4) first.
	if got[0].URL != "https://example.com/jobs/4" {
		t.Errorf("newest first: got %s", got[0].URL)
	}
	for i := 1; i < len(got); i++ {
		if got[i].CreatedAt > got[i-1].CreatedAt {
			t.Errorf("order violated at %d", i)
		}
	}
}

func TestClear(t *testing.T) {
	// WHAT: Clear removes everything and reports the count.
	db := openTestDB(t)
	s := NewStore(db)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		s.InsertMatch(ctx, &MatchInput{URL: "https://example.com", MatchScore: 10})
	}
	n, err := s.Clear(ctx)
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if n != 3 {
		t.Errorf("removed: got %d, want 3", n)
	}
	count, _ := s.Count(ctx)
	if count != 0 {
		t.Errorf("count after clear: got %d", count)
	}
}

func TestInsertMatch_Concurrent(t *testing.T) {
	// WHAT: N concurrent inserts with distinct payloads yield exactly N
	// records with unique ids.
	// WHY: Sessions run in parallel supervisors; the store must not lose
	// or merge records.
	db := openTestDB(t)
	s := NewStore(db)
	ctx := context.Background()

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.InsertMatch(ctx, &MatchInput{
				URL:        fmt.Sprintf("https://example.com/jobs/%d", i),
				MatchScore: 50,
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent insert: %v", err)
		}
	}

	got, err := s.ListRecent(ctx, n*2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != n {
		t.Fatalf("expected %d records, got %d", n, len(got))
	}
	ids := make(map[string]bool)
	for _, m := range got {
		if ids[m.ID] {
			t.Errorf("duplicate id %s", m.ID)
		}
		ids[m.ID] = true
	}
}
