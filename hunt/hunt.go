// Package hunt orchestrates automated job-listing analysis: it accepts a
// target URL, spawns a supervised worker process for it, serves the worker's
// tool calls, persists accepted matches and publishes lifecycle events.
package hunt

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/chasse/hunt/internal/fetch"
	"github.com/hazyhaar/chasse/hunt/internal/store"
	"github.com/hazyhaar/chasse/idgen"
	"github.com/hazyhaar/chasse/mcptcp"
	"github.com/hazyhaar/chasse/safeurl"
	"github.com/hazyhaar/chasse/settings"
)

// LaunchFunc starts one worker for a session and returns a channel that
// yields its exit result exactly once. Overridable for tests.
type LaunchFunc func(sessionID, url, toolAddr string) (<-chan error, error)

// Service is the analysis orchestrator.
type Service struct {
	config     *Config
	logger     *slog.Logger
	store      *store.Store
	settings   *settings.Store
	fetcher    *fetch.Fetcher
	bus        *Bus
	supervisor *Supervisor
	tools      *mcptcp.Server
	newID      idgen.Generator
	launch     LaunchFunc

	// urlValidator checks analysis-request URLs. Shape only: targets may
	// legitimately be anywhere, including intranet boards.
	urlValidator func(string) error

	toolAddr string

	mu       sync.Mutex
	sessions map[string]*session
	active   *session
}

// ServiceOption configures a Service during creation.
type ServiceOption func(*Service)

// WithIDGenerator sets a custom session id generator.
func WithIDGenerator(gen idgen.Generator) ServiceOption {
	return func(svc *Service) { svc.newID = gen }
}

// WithLaunchFunc replaces the worker launcher. Use in tests to run an
// in-process fake worker instead of spawning a binary.
func WithLaunchFunc(fn LaunchFunc) ServiceOption {
	return func(svc *Service) { svc.launch = fn }
}

// WithURLValidator overrides validation of analysis-request URLs.
func WithURLValidator(fn func(string) error) ServiceOption {
	return func(svc *Service) { svc.urlValidator = fn }
}

// New creates an analysis Service on top of an open match database.
func New(db *sql.DB, cfg *Config, logger *slog.Logger, opts ...ServiceOption) (*Service, error) {
	if cfg == nil {
		cfg = defaultConfig()
	}
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	if err := store.ApplySchema(db); err != nil {
		return nil, fmt.Errorf("hunt: apply schema: %w", err)
	}

	svc := &Service{
		config:       cfg,
		logger:       logger,
		store:        store.NewStore(db),
		settings:     settings.NewStore(cfg.SettingsPath),
		fetcher:      fetch.New(cfg.Fetch),
		bus:          NewBus(),
		newID:        idgen.Prefixed("sess_", idgen.UUIDv7()),
		urlValidator: safeurl.ValidateShape,
		sessions:     make(map[string]*session),
	}
	for _, opt := range opts {
		opt(svc)
	}

	svc.supervisor = NewSupervisor(cfg.WorkerCommand, cfg.WorkerArgs, logger)
	if svc.launch == nil {
		svc.launch = func(sessionID, url, toolAddr string) (<-chan error, error) {
			return svc.supervisor.Start(workerSpec{
				SessionID: sessionID,
				URL:       url,
				ToolAddr:  toolAddr,
			})
		}
	}
	svc.tools = mcptcp.NewServer(svc.toolServer(), svc.authorizeSession, logger)
	return svc, nil
}

// Start binds the tool listener and begins serving worker connections.
// Non-blocking.
func (svc *Service) Start(ctx context.Context) error {
	addr, err := svc.tools.Listen(svc.config.ToolAddr)
	if err != nil {
		return fmt.Errorf("tool listener: %w", err)
	}
	svc.toolAddr = addr
	go svc.tools.Serve(ctx)
	svc.logger.Info("hunt: started", "tool_addr", addr)
	return nil
}

// ToolAddr returns the bound tool listener address. Empty before Start.
func (svc *Service) ToolAddr() string { return svc.toolAddr }

// Events returns the lifecycle event bus.
func (svc *Service) Events() *Bus { return svc.bus }

// Close terminates live workers, the tool listener and the event bus.
func (svc *Service) Close() error {
	svc.supervisor.StopAll(svc.config.GracePeriod)
	err := svc.tools.Close()
	svc.bus.Close()
	svc.logger.Info("hunt: closed")
	return err
}

// StartAnalysis creates a session for url and dispatches a worker. The
// "started" event fires before this returns. A second request while a
// session is active is rejected with ErrSessionBusy.
func (svc *Service) StartAnalysis(ctx context.Context, url string) (string, error) {
	if err := svc.urlValidator(url); err != nil {
		return "", fmt.Errorf("%w: %v", ErrValidation, err)
	}

	svc.mu.Lock()
	if svc.active != nil && !svc.active.terminal() {
		svc.mu.Unlock()
		return "", fmt.Errorf("%w: session %s is %s", ErrSessionBusy, svc.active.ID, svc.active.State)
	}
	now := time.Now()
	s := &session{
		ID:           svc.newID(),
		URL:          url,
		State:        StateStarted,
		CreatedAt:    now,
		lastActivity: now,
	}
	svc.sessions[s.ID] = s
	svc.active = s
	svc.mu.Unlock()

	svc.logger.Info("analysis requested", "session", s.ID, "url", url)
	svc.bus.Publish(Event{Type: EventStarted, SessionID: s.ID, URL: url})

	done, err := svc.launch(s.ID, url, svc.toolAddr)
	if err != nil {
		svc.failSession(s, ReasonWorkerError, err)
		return "", fmt.Errorf("dispatch worker: %w", err)
	}
	go svc.watch(s, done)
	return s.ID, nil
}

// Cancel stops an in-flight session: signal, grace, kill, Failed(Cancelled).
// Idempotent on terminal sessions.
func (svc *Service) Cancel(ctx context.Context, sessionID string) error {
	svc.mu.Lock()
	s, ok := svc.sessions[sessionID]
	svc.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSession, sessionID)
	}
	if !svc.failSession(s, ReasonCancelled, nil) {
		return nil
	}
	svc.supervisor.Stop(sessionID, svc.config.GracePeriod)
	return nil
}

// Session returns the current view of a session; ids stay resolvable for the
// process lifetime.
func (svc *Service) Session(sessionID string) (SessionView, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	s, ok := svc.sessions[sessionID]
	if !ok {
		return SessionView{}, fmt.Errorf("%w: %s", ErrUnknownSession, sessionID)
	}
	return s.view(), nil
}

// ListMatches returns the most recent persisted matches.
func (svc *Service) ListMatches(ctx context.Context, limit int) ([]*store.JobMatch, error) {
	matches, err := svc.store.ListRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistFailed, err)
	}
	return matches, nil
}

// ClearMatches removes every persisted match and returns the count removed.
func (svc *Service) ClearMatches(ctx context.Context) (int64, error) {
	n, err := svc.store.Clear(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrPersistFailed, err)
	}
	return n, nil
}

// GetSettings returns the current preference snapshot.
func (svc *Service) GetSettings() (*settings.Preferences, error) {
	p, err := svc.settings.Load()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return p, nil
}

// UpdateSettings validates, normalizes and persists prefs, returning the
// stored snapshot.
func (svc *Service) UpdateSettings(prefs *settings.Preferences) (*settings.Preferences, error) {
	p, err := svc.settings.Save(prefs)
	if err != nil {
		if errors.Is(err, settings.ErrInvalid) {
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return p, nil
}

// --- Internal ---

// watch drives the session to a terminal state: worker exit, idle timeout or
// max-duration timeout, whichever comes first.
func (svc *Service) watch(s *session, done <-chan error) {
	deadline := time.NewTimer(svc.config.MaxSessionDuration)
	defer deadline.Stop()
	idle := time.NewTicker(time.Second)
	defer idle.Stop()

	stopped := make(chan struct{})
	svc.mu.Lock()
	s.stopWatch = func() { close(stopped) }
	if s.terminal() {
		// Lost the race with an early failure (cancel before watch ran).
		svc.mu.Unlock()
		<-done
		return
	}
	svc.mu.Unlock()

	for {
		select {
		case err := <-done:
			if err != nil {
				svc.failSession(s, ReasonWorkerError, err)
			} else {
				svc.completeSession(s)
			}
			return
		case <-stopped:
			// Terminal transition happened elsewhere; drain the worker.
			<-done
			return
		case <-deadline.C:
			svc.timeout(s, "max session duration reached")
			<-done
			return
		case <-idle.C:
			svc.mu.Lock()
			quiet := time.Since(s.lastActivity)
			svc.mu.Unlock()
			if quiet >= svc.config.IdleTimeout {
				svc.timeout(s, "no tool activity")
				<-done
				return
			}
		}
	}
}

func (svc *Service) timeout(s *session, why string) {
	if svc.failSession(s, ReasonTimeout, fmt.Errorf("%s", why)) {
		svc.supervisor.Stop(s.ID, svc.config.GracePeriod)
	}
}

// completeSession transitions to Completed exactly once.
func (svc *Service) completeSession(s *session) {
	svc.mu.Lock()
	if s.terminal() {
		svc.mu.Unlock()
		return
	}
	s.State = StateCompleted
	if svc.active == s {
		svc.active = nil
	}
	stop := s.stopWatch
	matchID := s.MatchID
	svc.mu.Unlock()

	if stop != nil {
		stop()
	}
	svc.logger.Info("session completed", "session", s.ID, "match", matchID)
	svc.bus.Publish(Event{
		Type:      EventCompleted,
		SessionID: s.ID,
		URL:       s.URL,
		MatchID:   matchID,
	})
}

// failSession transitions to Failed exactly once. Reports whether this call
// performed the transition.
func (svc *Service) failSession(s *session, reason FailReason, cause error) bool {
	svc.mu.Lock()
	if s.terminal() {
		svc.mu.Unlock()
		return false
	}
	s.State = StateFailed
	s.Reason = reason
	if svc.active == s {
		svc.active = nil
	}
	stop := s.stopWatch
	svc.mu.Unlock()

	if stop != nil {
		stop()
	}
	svc.logger.Warn("session failed",
		"session", s.ID, "reason", reason, "error", cause)
	svc.bus.Publish(Event{
		Type:      EventFailed,
		SessionID: s.ID,
		URL:       s.URL,
		Reason:    string(reason),
	})
	return true
}

// touch resolves a live session for a tool call, marks it running on first
// contact and resets the idle clock.
func (svc *Service) touch(sessionID string) (*session, error) {
	svc.mu.Lock()
	s, ok := svc.sessions[sessionID]
	if !ok || s.terminal() {
		svc.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrUnknownSession, sessionID)
	}
	s.lastActivity = time.Now()
	first := s.State == StateStarted
	if first {
		s.State = StateRunning
	}
	svc.mu.Unlock()

	if first {
		svc.bus.Publish(Event{Type: EventRunning, SessionID: s.ID, URL: s.URL})
	}
	return s, nil
}

// authorizeSession gates worker connections on the tool listener.
func (svc *Service) authorizeSession(sessionID string) error {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	s, ok := svc.sessions[sessionID]
	if !ok || s.terminal() {
		return fmt.Errorf("%w: %s", ErrUnknownSession, sessionID)
	}
	return nil
}
