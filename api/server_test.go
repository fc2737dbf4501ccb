package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"histlink/config"
)

func TestServerAddress(t *testing.T) {
	s := NewServer(&config.WebConfig{Host: "0.0.0.0", Port: 8080}, http.NotFoundHandler())
	if s.Address() != "http://0.0.0.0:8080" {
		t.Errorf("Address() = %q", s.Address())
	}
}

func TestServerLifecycle(t *testing.T) {
	s := NewServer(&config.WebConfig{Host: "127.0.0.1", Port: 0}, http.NotFoundHandler())

	if s.IsRunning() {
		t.Error("new server should not be running")
	}

	// Stop before start is a no-op
	if err := s.Stop(); err != nil {
		t.Errorf("Stop before Start failed: %v", err)
	}

	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !s.IsRunning() {
		t.Error("server should be running after Start")
	}

	// Second start is a no-op
	if err := s.Start(); err != nil {
		t.Errorf("second Start failed: %v", err)
	}

	if err := s.Stop(); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
	if s.IsRunning() {
		t.Error("server should not be running after Stop")
	}
}

func TestCORSMiddleware(t *testing.T) {
	handler := corsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	t.Run("headers added", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
		if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
			t.Error("missing CORS origin header")
		}
		if rec.Code != http.StatusTeapot {
			t.Errorf("status = %d, inner handler not reached", rec.Code)
		}
	})

	t.Run("preflight short-circuits", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest("OPTIONS", "/", nil))
		if rec.Code != http.StatusOK {
			t.Errorf("preflight status = %d, want 200", rec.Code)
		}
	})
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, http.StatusBadRequest, "bad input")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rec.Code)
	}
	var resp map[string]string
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["error"] != "bad input" {
		t.Errorf("body = %v", resp)
	}
}
