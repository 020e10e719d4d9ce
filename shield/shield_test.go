package shield

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			if _, err := io.ReadAll(r.Body); err != nil {
				http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})
}

// WHAT: every response carries the hardening headers.
func TestSecurityHeaders(t *testing.T) {
	h := SecurityHeaders()(okHandler())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/api/matches", nil))

	for header, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Referrer-Policy":        "strict-origin-when-cross-origin",
	} {
		if got := rec.Header().Get(header); got != want {
			t.Errorf("%s = %q, want %q", header, got, want)
		}
	}
	if csp := rec.Header().Get("Content-Security-Policy"); !strings.Contains(csp, "default-src 'none'") {
		t.Errorf("CSP = %q", csp)
	}
}

// WHAT: bodies over the cap fail, bodies under it pass.
func TestMaxBody(t *testing.T) {
	h := MaxBody(16)(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/", strings.NewReader("small")))
	if rec.Code != http.StatusOK {
		t.Fatalf("small body: status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/", strings.NewReader(strings.Repeat("x", 64))))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("oversized body: status = %d", rec.Code)
	}
}

// WHAT: requests beyond the per-IP budget get 429; the window resets;
// other IPs are unaffected.
func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(2, 50*time.Millisecond)
	h := rl.Middleware(okHandler())

	send := func(addr string) int {
		req := httptest.NewRequest("POST", "/api/analyze", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	if send("10.0.0.1:1111") != http.StatusOK || send("10.0.0.1:2222") != http.StatusOK {
		t.Fatal("first two requests should pass")
	}
	if send("10.0.0.1:3333") != http.StatusTooManyRequests {
		t.Fatal("third request should be limited")
	}
	if send("10.0.0.2:1111") != http.StatusOK {
		t.Fatal("other IP should be unaffected")
	}

	time.Sleep(60 * time.Millisecond)
	if send("10.0.0.1:4444") != http.StatusOK {
		t.Fatal("window should have reset")
	}
}
