package hunt

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hazyhaar/chasse/hunt/internal/store"
	"github.com/hazyhaar/chasse/settings"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestAPI(t *testing.T) (*Service, *httptest.Server, chan error) {
	t.Helper()
	launch, done := blockingLaunch(t)
	svc := newTestService(t, nil, WithLaunchFunc(launch))
	ts := httptest.NewServer(svc.Routes())
	t.Cleanup(func() {
		ts.Close()
		svc.Close()
	})
	return svc, ts, done
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, []byte) {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, r)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp, data
}

// WHAT: POST /analyze returns a session id; malformed URLs get a classified
// 400; a busy orchestrator gets a 409.
func TestAPI_Analyze(t *testing.T) {
	svc, ts, done := newTestAPI(t)

	resp, body := doJSON(t, http.MethodPost, ts.URL+"/analyze", map[string]string{"url": "https://example.com/jobs/42"})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d: %s", resp.StatusCode, body)
	}
	var out map[string]string
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatal(err)
	}
	id := out["sessionId"]
	if id == "" {
		t.Fatalf("no session id in %s", body)
	}

	resp, body = doJSON(t, http.MethodPost, ts.URL+"/analyze", map[string]string{"url": "https://example.com/more"})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("busy status = %d: %s", resp.StatusCode, body)
	}
	if !strings.Contains(string(body), "session_busy") {
		t.Fatalf("missing kind in %s", body)
	}

	resp, body = doJSON(t, http.MethodPost, ts.URL+"/analyze", map[string]string{"url": "::::"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("invalid url status = %d: %s", resp.StatusCode, body)
	}

	done <- nil
	waitForState(t, svc, id, StateCompleted)
}

// WHAT: session views are queryable during and after the run; unknown ids 404.
func TestAPI_Sessions(t *testing.T) {
	svc, ts, done := newTestAPI(t)

	id, err := svc.StartAnalysis(context.Background(), "https://example.com/jobs/1")
	if err != nil {
		t.Fatal(err)
	}

	resp, body := doJSON(t, http.MethodGet, ts.URL+"/sessions/"+id, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.StatusCode, body)
	}
	var view SessionView
	if err := json.Unmarshal(body, &view); err != nil {
		t.Fatal(err)
	}
	if view.ID != id || view.State != StateStarted {
		t.Fatalf("view = %+v", view)
	}

	resp, _ = doJSON(t, http.MethodGet, ts.URL+"/sessions/sess_nope", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown session status = %d", resp.StatusCode)
	}

	done <- nil
	waitForState(t, svc, id, StateCompleted)
}

// WHAT: cancel over HTTP fails the session with reason cancelled.
func TestAPI_Cancel(t *testing.T) {
	svc, ts, done := newTestAPI(t)

	id, err := svc.StartAnalysis(context.Background(), "https://example.com/jobs/1")
	if err != nil {
		t.Fatal(err)
	}
	resp, body := doJSON(t, http.MethodPost, ts.URL+"/sessions/"+id+"/cancel", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.StatusCode, body)
	}
	done <- fmt.Errorf("killed")

	view := waitForState(t, svc, id, StateFailed)
	if view.Reason != ReasonCancelled {
		t.Fatalf("reason = %s", view.Reason)
	}
}

// WHAT: match listing and clearing round-trip over HTTP.
func TestAPI_Matches(t *testing.T) {
	svc, ts, _ := newTestAPI(t)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := svc.store.InsertMatch(ctx, &store.MatchInput{
			URL:        fmt.Sprintf("https://example.com/jobs/%d", i),
			MatchScore: float64(50 + i),
			Summary:    "fit",
		}); err != nil {
			t.Fatal(err)
		}
	}

	resp, body := doJSON(t, http.MethodGet, ts.URL+"/matches?limit=2", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.StatusCode, body)
	}
	var matches []store.JobMatch
	if err := json.Unmarshal(body, &matches); err != nil {
		t.Fatal(err)
	}
	if len(matches) != 2 {
		t.Fatalf("matches = %d, want 2", len(matches))
	}

	resp, body = doJSON(t, http.MethodDelete, ts.URL+"/matches", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("clear status = %d: %s", resp.StatusCode, body)
	}
	var cleared map[string]int64
	if err := json.Unmarshal(body, &cleared); err != nil {
		t.Fatal(err)
	}
	if cleared["removed"] != 3 {
		t.Fatalf("removed = %d, want 3", cleared["removed"])
	}
}

// WHAT: settings round-trip over HTTP, invalid payloads get a 400.
func TestAPI_Settings(t *testing.T) {
	_, ts, _ := newTestAPI(t)

	resp, body := doJSON(t, http.MethodGet, ts.URL+"/settings", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.StatusCode, body)
	}

	update := settings.Defaults()
	update.Keywords = []string{"go", "grpc"}
	update.RemoteOnly = false
	resp, body = doJSON(t, http.MethodPut, ts.URL+"/settings", update)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("put status = %d: %s", resp.StatusCode, body)
	}
	var stored settings.Preferences
	if err := json.Unmarshal(body, &stored); err != nil {
		t.Fatal(err)
	}
	if len(stored.Keywords) != 2 || stored.RemoteOnly {
		t.Fatalf("stored = %+v", stored)
	}

	bad := settings.Defaults()
	floor, ceiling := int64(200000), int64(100000)
	bad.SalaryMin, bad.SalaryMax = &floor, &ceiling
	resp, body = doJSON(t, http.MethodPut, ts.URL+"/settings", bad)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("invalid settings status = %d: %s", resp.StatusCode, body)
	}
	if !strings.Contains(string(body), "validation_failed") {
		t.Fatalf("missing kind in %s", body)
	}
}

// WHAT: the SSE stream carries published events to a connected observer.
func TestAPI_EventStream(t *testing.T) {
	svc, ts, _ := newTestAPI(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/events", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	// Give the handler a moment to subscribe before publishing.
	time.Sleep(100 * time.Millisecond)
	svc.Events().Publish(Event{Type: EventApplyQuery, SessionID: "sess_1", URL: "https://example.com/q"})

	scanner := bufio.NewScanner(resp.Body)
	var eventLine, dataLine string
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "event: ") {
			eventLine = line
		}
		if strings.HasPrefix(line, "data: ") {
			dataLine = line
			break
		}
	}
	if eventLine != "event: apply-query" {
		t.Fatalf("event line = %q", eventLine)
	}
	if !strings.Contains(dataLine, `"sessionId":"sess_1"`) {
		t.Fatalf("data line = %q", dataLine)
	}
}
