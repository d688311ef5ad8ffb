package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func ok(state string) func(context.Context) (string, error) {
	return func(context.Context) (string, error) { return state, nil }
}

func failing(msg string) func(context.Context) (string, error) {
	return func(context.Context) (string, error) { return "", errors.New(msg) }
}

func TestHealthz(t *testing.T) {
	tests := []struct {
		name       string
		checks     []Check
		wantCode   int
		wantStatus string
		wantDB     string
	}{
		{
			name: "all ok",
			checks: []Check{
				{Name: "db", Critical: true, Run: ok("ok")},
				{Name: "llm", Run: ok("configured")},
			},
			wantCode:   http.StatusOK,
			wantStatus: "healthy",
			wantDB:     "ok",
		},
		{
			name: "optional check failing stays healthy",
			checks: []Check{
				{Name: "db", Critical: true, Run: ok("ok")},
				{Name: "llm", Run: failing("not found")},
			},
			wantCode:   http.StatusOK,
			wantStatus: "healthy",
			wantDB:     "ok",
		},
		{
			name: "database down",
			checks: []Check{
				{Name: "db", Critical: true, Run: failing("disk I/O error")},
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "unhealthy",
			wantDB:     "error: disk I/O error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewServer(":0", tt.checks, nil, nil)
			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

			if rec.Code != tt.wantCode {
				t.Errorf("code = %d, want %d", rec.Code, tt.wantCode)
			}
			var body struct {
				Status string            `json:"status"`
				Checks map[string]string `json:"checks"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body.Status != tt.wantStatus || body.Checks["db"] != tt.wantDB {
				t.Errorf("body = %+v", body)
			}
			if rec.Header().Get("X-Request-ID") == "" {
				t.Error("missing request id header")
			}
			if got := rec.Header().Get("Cache-Control"); got != "no-store" {
				t.Errorf("Cache-Control = %q, want no-store", got)
			}
		})
	}
}

func TestMetricsRoute(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("kazo_up 1\n"))
	})
	s := NewServer(":0", nil, metrics, nil)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "kazo_up 1\n" {
		t.Errorf("metrics = %d %q", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	NewServer(":0", nil, nil, nil).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("metrics without handler = %d, want 404", rec.Code)
	}
}
