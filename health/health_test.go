package health

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
)

type stubStatus struct {
	last time.Time
	rows int
}

func (s *stubStatus) Status() (time.Time, int) { return s.last, s.rows }

func doHealth(t *testing.T, source StatusSource) (*http.Response, Status) {
	t.Helper()
	s := New(source, time.Hour, 0, zap.NewNop())
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	s.handleHealth(w, req)

	resp := w.Result()
	var body Status
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return resp, body
}

func TestHandleHealth_RecentCycleIsHealthy(t *testing.T) {
	resp, body := doHealth(t, &stubStatus{last: time.Now().Add(-30 * time.Minute), rows: 42})
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200, got %d", resp.StatusCode)
	}
	if body.Status != "healthy" {
		t.Errorf("Expected healthy, got %q", body.Status)
	}
	if body.TableRows != 42 {
		t.Errorf("Expected 42 rows reported, got %d", body.TableRows)
	}
}

func TestHandleHealth_StaleCycleIsUnhealthy(t *testing.T) {
	resp, body := doHealth(t, &stubStatus{last: time.Now().Add(-3 * time.Hour), rows: 42})
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("Expected 503, got %d", resp.StatusCode)
	}
	if body.Status != "unhealthy" {
		t.Errorf("Expected unhealthy, got %q", body.Status)
	}
}

func TestHandleHealth_NoCycleYetIsHealthy(t *testing.T) {
	// Startup grace: before the first cycle completes there is nothing stale.
	resp, _ := doHealth(t, &stubStatus{})
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200 before first cycle, got %d", resp.StatusCode)
	}
}
