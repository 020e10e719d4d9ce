//go:build !windows

package hunt

import (
	"log/slog"
	"testing"
	"time"
)

func waitExit(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for worker exit")
		return nil
	}
}

// WHAT: clean exit releases the handle and reports nil.
func TestSupervisor_CleanExit(t *testing.T) {
	sup := NewSupervisor("sh", []string{"-c", "exit 0"}, slog.Default())
	done, err := sup.Start(workerSpec{SessionID: "sess_1", URL: "https://example.com", ToolAddr: "127.0.0.1:1"})
	if err != nil {
		t.Fatal(err)
	}
	if err := waitExit(t, done); err != nil {
		t.Fatalf("exit: %v", err)
	}
	if sup.Running("sess_1") {
		t.Fatal("handle not released after clean exit")
	}
}

// WHAT: nonzero exit surfaces as an error on the done channel.
func TestSupervisor_FailedExit(t *testing.T) {
	sup := NewSupervisor("sh", []string{"-c", "exit 3"}, slog.Default())
	done, err := sup.Start(workerSpec{SessionID: "sess_1"})
	if err != nil {
		t.Fatal(err)
	}
	if err := waitExit(t, done); err == nil {
		t.Fatal("expected error for exit status 3")
	}
	if sup.Running("sess_1") {
		t.Fatal("handle not released after failed exit")
	}
}

// WHAT: the session env vars reach the worker.
func TestSupervisor_WorkerEnv(t *testing.T) {
	script := `[ "$CHASSE_SESSION_ID" = sess_env ] || exit 9
[ "$CHASSE_TARGET_URL" = "https://example.com/jobs/1" ] || exit 9
[ -n "$CHASSE_TOOL_ADDR" ] || exit 9`
	sup := NewSupervisor("sh", []string{"-c", script}, slog.Default())
	done, err := sup.Start(workerSpec{
		SessionID: "sess_env",
		URL:       "https://example.com/jobs/1",
		ToolAddr:  "127.0.0.1:40000",
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := waitExit(t, done); err != nil {
		t.Fatalf("env vars missing in worker: %v", err)
	}
}

// WHAT: Stop terminates a hung worker and the handle is released.
func TestSupervisor_StopHungWorker(t *testing.T) {
	sup := NewSupervisor("sh", []string{"-c", "sleep 60"}, slog.Default())
	done, err := sup.Start(workerSpec{SessionID: "sess_hung"})
	if err != nil {
		t.Fatal(err)
	}
	if !sup.Running("sess_hung") {
		t.Fatal("worker should be running")
	}

	sup.Stop("sess_hung", 100*time.Millisecond)
	if err := waitExit(t, done); err == nil {
		t.Fatal("killed worker should report an error")
	}
	if sup.Running("sess_hung") {
		t.Fatal("handle not released after Stop")
	}
}

// WHAT: a worker that dies on SIGTERM releases Stop immediately instead of
// holding it for the whole grace period.
func TestSupervisor_StopTermResponsiveWorker(t *testing.T) {
	sup := NewSupervisor("sh", []string{"-c", "sleep 60"}, slog.Default())
	done, err := sup.Start(workerSpec{SessionID: "sess_term"})
	if err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	sup.Stop("sess_term", 5*time.Second)
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("Stop took %v for a worker that exits on SIGTERM", elapsed)
	}
	if err := waitExit(t, done); err == nil {
		t.Fatal("terminated worker should report an error")
	}
}

// WHAT: a second worker for the same session is refused.
func TestSupervisor_DuplicateSession(t *testing.T) {
	sup := NewSupervisor("sh", []string{"-c", "sleep 60"}, slog.Default())
	done, err := sup.Start(workerSpec{SessionID: "sess_dup"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := sup.Start(workerSpec{SessionID: "sess_dup"}); err == nil {
		t.Fatal("expected error for duplicate session")
	}
	sup.Stop("sess_dup", 50*time.Millisecond)
	waitExit(t, done)
}

// WHAT: StopAll sweeps every live worker on shutdown.
func TestSupervisor_StopAll(t *testing.T) {
	sup := NewSupervisor("sh", []string{"-c", "sleep 60"}, slog.Default())
	d1, err := sup.Start(workerSpec{SessionID: "sess_a"})
	if err != nil {
		t.Fatal(err)
	}
	d2, err := sup.Start(workerSpec{SessionID: "sess_b"})
	if err != nil {
		t.Fatal(err)
	}

	sup.StopAll(50 * time.Millisecond)
	waitExit(t, d1)
	waitExit(t, d2)
	if sup.Running("sess_a") || sup.Running("sess_b") {
		t.Fatal("handles not released after StopAll")
	}
}
