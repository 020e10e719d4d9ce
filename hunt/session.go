package hunt

import (
	"sync"
	"time"
)

// State is an analysis session's lifecycle state.
type State string

const (
	// StateStarted: session created, worker dispatch requested.
	StateStarted State = "started"
	// StateRunning: worker connected and issuing tool calls.
	StateRunning State = "running"
	// StateCompleted: worker exited cleanly. Terminal.
	StateCompleted State = "completed"
	// StateFailed: worker crashed, timed out or was cancelled. Terminal.
	StateFailed State = "failed"
)

// FailReason classifies a StateFailed transition.
type FailReason string

const (
	ReasonTimeout     FailReason = "timeout"
	ReasonCancelled   FailReason = "cancelled"
	ReasonWorkerError FailReason = "worker_error"
)

// session is one analysis run. Created by StartAnalysis, mutated only under
// Service.mu, retained in memory for the process lifetime.
type session struct {
	ID        string
	URL       string
	State     State
	Reason    FailReason
	CreatedAt time.Time
	MatchID   string

	lastActivity time.Time

	// callMu serializes tool calls within the session so no two handlers
	// interleave writes on behalf of the same worker.
	callMu sync.Mutex

	// stopWatch ends the watchdog goroutine once the session is terminal.
	stopWatch func()
}

func (s *session) terminal() bool {
	return s.State == StateCompleted || s.State == StateFailed
}

// SessionView is the externally visible snapshot of a session.
type SessionView struct {
	ID        string     `json:"id"`
	URL       string     `json:"url"`
	State     State      `json:"state"`
	Reason    FailReason `json:"reason,omitempty"`
	CreatedAt int64      `json:"created_at"` // unix milliseconds
	MatchID   string     `json:"match_id,omitempty"`
}

func (s *session) view() SessionView {
	return SessionView{
		ID:        s.ID,
		URL:       s.URL,
		State:     s.State,
		Reason:    s.Reason,
		CreatedAt: s.CreatedAt.UnixMilli(),
		MatchID:   s.MatchID,
	}
}
