// Package settings persists the user's job-search preferences as a JSON file
// and hands out immutable snapshots. Reads always return a copy taken at call
// time: an analysis session that spans a preference edit sees whichever
// snapshot each tool call happened to load, never a live reference.
package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ErrInvalid is returned when a preferences payload fails validation.
var ErrInvalid = errors.New("settings: invalid preferences")

// ErrUnavailable is returned when the backing file cannot be read or written.
var ErrUnavailable = errors.New("settings: store unavailable")

// Preferences describes what the user is hunting for. JSON keys are camelCase
// to match the front end's settings document.
type Preferences struct {
	PreferredTitles  []string `json:"preferredTitles"`
	Locations        []string `json:"locations"`
	Keywords         []string `json:"keywords"`
	RemoteOnly       bool     `json:"remoteOnly"`
	SalaryMin        *int64   `json:"salaryMin,omitempty"`
	SalaryMax        *int64   `json:"salaryMax,omitempty"`
	CompanyBlacklist []string `json:"companyBlacklist"`
}

// Defaults returns the preferences seeded on first run.
func Defaults() *Preferences {
	min, max := int64(120_000), int64(200_000)
	return &Preferences{
		PreferredTitles: []string{
			"Software Engineer",
			"Full Stack Engineer",
			"Backend Engineer",
		},
		Locations:        []string{"Remote", "United States"},
		Keywords:         []string{"Go", "Distributed Systems", "SQLite", "gRPC", "Kubernetes"},
		RemoteOnly:       true,
		SalaryMin:        &min,
		SalaryMax:        &max,
		CompanyBlacklist: []string{},
	}
}

// Clone returns a deep copy. Snapshots handed to callers are always clones so
// nobody holds a reference into the store's state.
func (p *Preferences) Clone() *Preferences {
	c := &Preferences{
		PreferredTitles:  cloneList(p.PreferredTitles),
		Locations:        cloneList(p.Locations),
		Keywords:         cloneList(p.Keywords),
		RemoteOnly:       p.RemoteOnly,
		CompanyBlacklist: cloneList(p.CompanyBlacklist),
	}
	if p.SalaryMin != nil {
		v := *p.SalaryMin
		c.SalaryMin = &v
	}
	if p.SalaryMax != nil {
		v := *p.SalaryMax
		c.SalaryMax = &v
	}
	return c
}

// normalize trims list entries, drops empties, and lowercases the company
// blacklist (comparison is case-insensitive, so storage is too).
func (p *Preferences) normalize() {
	p.PreferredTitles = cleanList(p.PreferredTitles, false)
	p.Locations = cleanList(p.Locations, false)
	p.Keywords = cleanList(p.Keywords, false)
	p.CompanyBlacklist = cleanList(p.CompanyBlacklist, true)
}

// validate checks invariants. Salary bounds are optional, but when both are
// present the floor must not exceed the ceiling.
func (p *Preferences) validate() error {
	if p.SalaryMin != nil && *p.SalaryMin < 0 {
		return fmt.Errorf("%w: salary floor must be non-negative", ErrInvalid)
	}
	if p.SalaryMax != nil && *p.SalaryMax < 0 {
		return fmt.Errorf("%w: salary ceiling must be non-negative", ErrInvalid)
	}
	if p.SalaryMin != nil && p.SalaryMax != nil && *p.SalaryMin > *p.SalaryMax {
		return fmt.Errorf("%w: salary floor %d exceeds ceiling %d", ErrInvalid, *p.SalaryMin, *p.SalaryMax)
	}
	return nil
}

// cloneList copies a slice, preserving non-nil emptiness so JSON round trips
// compare equal.
func cloneList(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func cleanList(in []string, lower bool) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if lower {
			s = strings.ToLower(s)
		}
		out = append(out, s)
	}
	return out
}

// Store reads and writes the preferences file. All access is serialized by a
// mutex; writes are atomic (temp file + rename).
type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore creates a Store backed by the JSON file at path. The file is
// created with defaults on the first Load or Save if it does not exist.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load returns a snapshot of the current preferences. A missing file yields
// the defaults (and seeds the file so later edits start from them).
func (s *Store) Load() (*Preferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		def := Defaults()
		if err := s.writeLocked(def); err != nil {
			return nil, err
		}
		return def, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrUnavailable, s.path, err)
	}

	var p Preferences
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrUnavailable, s.path, err)
	}
	return p.Clone(), nil
}

// Save validates, normalizes, and persists p, returning the stored snapshot.
func (s *Store) Save(p *Preferences) (*Preferences, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: nil preferences", ErrInvalid)
	}
	c := p.Clone()
	c.normalize()
	if err := c.validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writeLocked(c); err != nil {
		return nil, err
	}
	return c.Clone(), nil
}

// writeLocked writes atomically. Caller holds s.mu.
func (s *Store) writeLocked(p *Preferences) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: marshal: %v", ErrUnavailable, err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: mkdir %s: %v", ErrUnavailable, dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".settings-*.json")
	if err != nil {
		return fmt.Errorf("%w: temp file: %v", ErrUnavailable, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: write: %v", ErrUnavailable, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: close: %v", ErrUnavailable, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: rename: %v", ErrUnavailable, err)
	}
	return nil
}
