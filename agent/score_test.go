package agent

import (
	"strings"
	"testing"

	"github.com/hazyhaar/chasse/extract"
	"github.com/hazyhaar/chasse/settings"
)

func prefsWith(mutate func(*settings.Preferences)) *settings.Preferences {
	p := &settings.Preferences{}
	if mutate != nil {
		mutate(p)
	}
	return p
}

// WHAT: base score is the keyword hit ratio, 50 when no keywords exist.
func TestScore_KeywordRatio(t *testing.T) {
	l := &extract.Listing{Text: "we use go and kubernetes daily"}

	r := Score(l, prefsWith(nil))
	if r.Score != 50 {
		t.Fatalf("no keywords: score = %v, want 50", r.Score)
	}

	r = Score(l, prefsWith(func(p *settings.Preferences) {
		p.Keywords = []string{"go", "kubernetes", "rust", "java"}
	}))
	if r.Score != 50 {
		t.Fatalf("2/4 keywords: score = %v, want 50", r.Score)
	}

	r = Score(l, prefsWith(func(p *settings.Preferences) {
		p.Keywords = []string{"go", "kubernetes"}
	}))
	if r.Score != 100 {
		t.Fatalf("2/2 keywords: score = %v, want 100", r.Score)
	}
}

// WHAT: fixed bonuses for title, location and remote signal.
func TestScore_Bonuses(t *testing.T) {
	l := &extract.Listing{
		Title:    "Senior Go Engineer",
		Location: "Berlin, Germany",
		Text:     "remote friendly team",
	}
	p := prefsWith(func(p *settings.Preferences) {
		p.PreferredTitles = []string{"engineer"}
		p.Locations = []string{"berlin"}
		p.RemoteOnly = true
	})

	// 50 base (no keywords) + 10 title + 6 location + 8 remote.
	if r := Score(l, p); r.Score != 74 {
		t.Fatalf("score = %v, want 74", r.Score)
	}

	// Remote bonus requires the flag and the word.
	p.RemoteOnly = false
	if r := Score(l, p); r.Score != 66 {
		t.Fatalf("score without remote flag = %v, want 66", r.Score)
	}
}

// WHAT: blacklisted companies lose 15 points; scores clamp to [0, 100].
func TestScore_BlacklistAndClamp(t *testing.T) {
	l := &extract.Listing{
		Company: "Shady Corp",
		Text:    "nothing relevant",
	}
	p := prefsWith(func(p *settings.Preferences) {
		p.Keywords = []string{"go"}
		p.CompanyBlacklist = []string{"shady corp"}
	})
	// 0/1 keywords = 0, minus 15, clamped to 0.
	if r := Score(l, p); r.Score != 0 {
		t.Fatalf("score = %v, want 0", r.Score)
	}

	full := &extract.Listing{
		Title:    "Go Engineer",
		Location: "Berlin",
		Text:     "go remote",
	}
	pf := prefsWith(func(p *settings.Preferences) {
		p.Keywords = []string{"go"}
		p.PreferredTitles = []string{"engineer"}
		p.Locations = []string{"berlin"}
		p.RemoteOnly = true
	})
	// 100 + 10 + 6 + 8 clamps to 100.
	if r := Score(full, pf); r.Score != 100 {
		t.Fatalf("score = %v, want 100", r.Score)
	}
}

// WHAT: the summary names the final score, remote preference and title.
func TestScore_Summary(t *testing.T) {
	l := &extract.Listing{Title: "Platform Engineer", Text: "go"}
	p := prefsWith(func(p *settings.Preferences) {
		p.Keywords = []string{"go"}
		p.RemoteOnly = true
	})
	r := Score(l, p)
	want := "Matched 100% of keywords. Remote preference: on. Title signal: Platform Engineer."
	if r.Summary != want {
		t.Fatalf("summary = %q, want %q", r.Summary, want)
	}

	r = Score(&extract.Listing{}, prefsWith(nil))
	if !strings.Contains(r.Summary, "Title signal: unknown.") {
		t.Fatalf("summary = %q", r.Summary)
	}
	if !strings.Contains(r.Summary, "Remote preference: off.") {
		t.Fatalf("summary = %q", r.Summary)
	}
}
