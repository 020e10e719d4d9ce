package hunt

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// Env var names the worker reads at startup.
const (
	EnvSessionID = "CHASSE_SESSION_ID"
	EnvTargetURL = "CHASSE_TARGET_URL"
	EnvToolAddr  = "CHASSE_TOOL_ADDR"
)

// workerSpec carries everything a worker needs to run one session.
type workerSpec struct {
	SessionID string
	URL       string
	ToolAddr  string
}

// Supervisor owns the worker process handles. One worker per session; the
// handle is released on every exit path, clean or killed.
type Supervisor struct {
	command string
	args    []string
	logger  *slog.Logger

	mu      sync.Mutex
	running map[string]*exec.Cmd // keyed by session id
}

// NewSupervisor prepares a supervisor for the given worker command.
func NewSupervisor(command string, args []string, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		command: command,
		args:    args,
		logger:  logger,
		running: make(map[string]*exec.Cmd),
	}
}

// Start launches a worker for spec. The returned channel receives the exit
// result exactly once: nil for exit status 0, an error otherwise. The process
// handle is released before the channel fires.
func (sup *Supervisor) Start(spec workerSpec) (<-chan error, error) {
	if strings.TrimSpace(spec.SessionID) == "" {
		return nil, fmt.Errorf("session id is required")
	}
	if strings.TrimSpace(sup.command) == "" {
		return nil, fmt.Errorf("worker command is required")
	}

	sup.mu.Lock()
	if _, ok := sup.running[spec.SessionID]; ok {
		sup.mu.Unlock()
		return nil, fmt.Errorf("worker already running for session %s", spec.SessionID)
	}
	sup.mu.Unlock()

	cmd := exec.Command(sup.command, sup.args...)
	cmd.Env = append(os.Environ(),
		EnvSessionID+"="+spec.SessionID,
		EnvTargetURL+"="+spec.URL,
		EnvToolAddr+"="+spec.ToolAddr,
	)
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	configureWorkerProcess(cmd)

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start worker: %w", err)
	}

	sup.mu.Lock()
	sup.running[spec.SessionID] = cmd
	sup.mu.Unlock()

	sup.logger.Info("worker started",
		"session", spec.SessionID, "pid", cmd.Process.Pid, "url", spec.URL)

	done := make(chan error, 1)
	go func() {
		err := cmd.Wait()
		sup.mu.Lock()
		delete(sup.running, spec.SessionID)
		sup.mu.Unlock()
		if err != nil {
			sup.logger.Warn("worker exited with error",
				"session", spec.SessionID, "error", err)
		} else {
			sup.logger.Info("worker exited", "session", spec.SessionID)
		}
		done <- err
	}()
	return done, nil
}

// Stop signals the session's worker to terminate, waits up to grace, then
// kills the whole process group. No-op if the worker already exited.
func (sup *Supervisor) Stop(sessionID string, grace time.Duration) {
	sup.mu.Lock()
	cmd, ok := sup.running[sessionID]
	sup.mu.Unlock()
	if !ok {
		return
	}
	sup.logger.Info("stopping worker", "session", sessionID, "grace", grace)
	terminateWorkerProcess(cmd, grace)
}

// Running reports whether a worker is live for the session.
func (sup *Supervisor) Running(sessionID string) bool {
	sup.mu.Lock()
	defer sup.mu.Unlock()
	_, ok := sup.running[sessionID]
	return ok
}

// StopAll terminates every live worker. Used on service shutdown.
func (sup *Supervisor) StopAll(grace time.Duration) {
	sup.mu.Lock()
	ids := make([]string, 0, len(sup.running))
	for id := range sup.running {
		ids = append(ids, id)
	}
	sup.mu.Unlock()
	for _, id := range ids {
		sup.Stop(id, grace)
	}
}
