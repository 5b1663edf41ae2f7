package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHealthz_ReportsDegradedUntilDependenciesUp(t *testing.T) {
	health := NewHealthStatus()
	srv := NewServer(":0", health, nil)

	get := func() (int, map[string]interface{}) {
		t.Helper()
		rec := httptest.NewRecorder()
		srv.srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		var body map[string]interface{}
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
			t.Fatalf("decode healthz body: %v", err)
		}
		return rec.Code, body
	}

	code, body := get()
	if code != http.StatusServiceUnavailable {
		t.Errorf("cold healthz code = %d, want 503", code)
	}
	if body["status"] != "unhealthy" {
		t.Errorf("cold status = %v, want unhealthy", body["status"])
	}

	health.SetWSConnected(true)
	health.SetRedisConnected(true)
	health.SetSQLiteOK(true)
	health.SetLastTickTime(time.Now())

	code, body = get()
	if code != http.StatusOK {
		t.Errorf("healthz code = %d, want 200", code)
	}
	if body["status"] != "healthy" {
		t.Errorf("status = %v, want healthy", body["status"])
	}
}

func TestTrigger_SchedulesChainSync(t *testing.T) {
	health := NewHealthStatus()
	triggered := 0
	srv := NewServer(":0", health, func() { triggered++ })

	rec := httptest.NewRecorder()
	srv.srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/trigger", nil))
	if rec.Code != http.StatusAccepted {
		t.Errorf("trigger code = %d, want 202", rec.Code)
	}
	if triggered != 1 {
		t.Errorf("trigger ran %d times, want 1", triggered)
	}

	// GET is not a valid method for the trigger route.
	rec = httptest.NewRecorder()
	srv.srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/trigger", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET trigger code = %d, want 405", rec.Code)
	}
}
