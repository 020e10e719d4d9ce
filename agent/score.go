package agent

import (
	"fmt"
	"strings"

	"github.com/hazyhaar/chasse/extract"
	"github.com/hazyhaar/chasse/settings"
)

// MatchResult is the scored verdict on one listing.
type MatchResult struct {
	Score   float64
	Summary string
}

// Score rates a listing against the user's preferences on a 0-100 scale.
//
// The base score is the fraction of keywords found in the listing text
// (50 when no keywords are configured), adjusted by fixed bonuses: +10 for
// a preferred title, +6 for a target location, +8 when remote-only is set
// and the text mentions remote, -15 for a blacklisted company.
func Score(l *extract.Listing, prefs *settings.Preferences) MatchResult {
	textLower := strings.ToLower(l.Text)

	hits := 0
	for _, kw := range prefs.Keywords {
		if kw != "" && strings.Contains(textLower, strings.ToLower(kw)) {
			hits++
		}
	}
	var score float64
	if len(prefs.Keywords) == 0 {
		score = 50
	} else {
		score = float64(hits) / float64(len(prefs.Keywords)) * 100
	}

	if l.Title != "" {
		titleLower := strings.ToLower(l.Title)
		for _, want := range prefs.PreferredTitles {
			if want != "" && strings.Contains(titleLower, strings.ToLower(want)) {
				score += 10
				break
			}
		}
	}

	if l.Location != "" {
		locationLower := strings.ToLower(l.Location)
		for _, want := range prefs.Locations {
			if want != "" && strings.Contains(locationLower, strings.ToLower(want)) {
				score += 6
				break
			}
		}
	}

	if prefs.RemoteOnly && strings.Contains(textLower, "remote") {
		score += 8
	}

	if l.Company != "" {
		companyLower := strings.ToLower(l.Company)
		for _, banned := range prefs.CompanyBlacklist {
			if banned != "" && strings.Contains(companyLower, strings.ToLower(banned)) {
				score -= 15
				break
			}
		}
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	remote := "off"
	if prefs.RemoteOnly {
		remote = "on"
	}
	title := l.Title
	if title == "" {
		title = "unknown"
	}
	summary := fmt.Sprintf("Matched %.0f%% of keywords. Remote preference: %s. Title signal: %s.",
		score, remote, title)

	return MatchResult{Score: score, Summary: summary}
}
