package hunt

import "errors"

// ErrValidation is returned for malformed caller input. Not retried.
var ErrValidation = errors.New("hunt: validation failed")

// ErrFetchFailed is returned when a page fetch fails. The worker may retry;
// the orchestrator never does.
var ErrFetchFailed = errors.New("hunt: fetch failed")

// ErrPersistFailed is returned when the match store rejects a write for a
// reason other than validation.
var ErrPersistFailed = errors.New("hunt: persist failed")

// ErrSessionBusy is returned when an analysis is requested while another
// session is active. New requests are rejected, never queued.
var ErrSessionBusy = errors.New("hunt: another analysis session is active")

// ErrUnknownSession is returned for a tool call or query that names no live
// session.
var ErrUnknownSession = errors.New("hunt: unknown session")

// ErrStoreUnavailable is returned when the settings source cannot be read.
var ErrStoreUnavailable = errors.New("hunt: settings store unavailable")

// Kind maps an error to a stable machine-readable kind for API responses
// and tool failures. Unclassified errors report as "internal".
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "validation_failed"
	case errors.Is(err, ErrFetchFailed):
		return "fetch_failed"
	case errors.Is(err, ErrPersistFailed):
		return "persist_failed"
	case errors.Is(err, ErrSessionBusy):
		return "session_busy"
	case errors.Is(err, ErrUnknownSession):
		return "unknown_session"
	case errors.Is(err, ErrStoreUnavailable):
		return "store_unavailable"
	default:
		return "internal"
	}
}
