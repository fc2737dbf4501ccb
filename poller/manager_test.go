package poller

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"histlink/config"
	"histlink/piweb"
)

// fakeHistorian is a minimal historian backend with one data server and a
// fixed point catalog. Stream reads return whatever values holds.
type fakeHistorian struct {
	mu     sync.Mutex
	points map[string]string      // tag name -> web id
	values map[string]interface{} // web id -> current value
}

func (f *fakeHistorian) setValue(webID string, value interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[webID] = value
}

func (f *fakeHistorian) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/piwebapi/dataservers", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"WebId":"ds-1","Name":"PRIMARY"}`))
	})
	mux.HandleFunc("/piwebapi/dataservers/ds-1/points", func(w http.ResponseWriter, r *http.Request) {
		filter := r.URL.Query().Get("nameFilter")
		f.mu.Lock()
		defer f.mu.Unlock()
		items := []string{}
		for name, id := range f.points {
			if name == filter {
				items = append(items, `{"WebId":"`+id+`","Name":"`+name+`"}`)
			}
		}
		w.Write([]byte(`{"Items":[` + strings.Join(items, ",") + `]}`))
	})
	mux.HandleFunc("/piwebapi/streams/", func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(r.URL.Path, "/")
		webID := parts[3]
		switch parts[4] {
		case "recordedattime":
			f.mu.Lock()
			value, ok := f.values[webID]
			f.mu.Unlock()
			if !ok {
				w.Write([]byte(`{"Value":null}`))
				return
			}
			resp := map[string]interface{}{"Value": map[string]interface{}{
				"Timestamp": "2026-08-30T10:00:00Z",
				"Value":     value,
				"Good":      true,
			}}
			writeJSON(w, resp)
		case "value":
			w.Header().Set("Location", "/recorded/"+webID)
			w.WriteHeader(http.StatusNoContent)
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func newTestManager(t *testing.T, f *fakeHistorian, tags []config.TagConfig) *Manager {
	t.Helper()
	srv := f.server(t)
	client := piweb.NewClient(&piweb.Config{Host: srv.URL})
	m := NewManager(client, "PRIMARY", 20*time.Millisecond)
	m.LoadFromConfig(tags)
	return m
}

func TestManagerResolve(t *testing.T) {
	f := &fakeHistorian{
		points: map[string]string{"FLOW.01": "w-1"},
		values: map[string]interface{}{"w-1": 1.0},
	}
	m := newTestManager(t, f, []config.TagConfig{
		{Name: "FLOW.01"},
		{Name: "MISSING"},
	})

	m.Start()
	defer m.Stop()

	snap, ok := m.GetTag("FLOW.01")
	if !ok {
		t.Fatal("FLOW.01 not managed")
	}
	if snap.WebID != "w-1" {
		t.Errorf("WebID = %q, want w-1", snap.WebID)
	}

	snap, ok = m.GetTag("MISSING")
	if !ok {
		t.Fatal("MISSING not managed")
	}
	if snap.Error == "" {
		t.Error("expected resolution error for MISSING")
	}
	if m.GetStatus() != StatusPolling {
		t.Errorf("status = %v, want Polling", m.GetStatus())
	}
}

func TestManagerPollAndChangeDetection(t *testing.T) {
	f := &fakeHistorian{
		points: map[string]string{"FLOW.01": "w-1"},
		values: map[string]interface{}{"w-1": 10.0},
	}
	m := newTestManager(t, f, []config.TagConfig{{Name: "FLOW.01"}})

	var mu sync.Mutex
	var changes []ValueChange
	m.SetOnValueChange(func(cs []ValueChange) {
		mu.Lock()
		changes = append(changes, cs...)
		mu.Unlock()
	})

	m.Start()
	defer m.Stop()

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(changes) >= 1
	})

	mu.Lock()
	first := changes[0]
	mu.Unlock()
	if first.Tag != "FLOW.01" || first.Value != 10.0 {
		t.Errorf("first change = %+v", first)
	}

	// An unchanged value must not emit again; a changed one must.
	time.Sleep(60 * time.Millisecond)
	mu.Lock()
	count := len(changes)
	mu.Unlock()
	if count != 1 {
		t.Errorf("got %d changes for a constant value, want 1", count)
	}

	f.setValue("w-1", 11.5)
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(changes) >= 2
	})

	mu.Lock()
	second := changes[1]
	mu.Unlock()
	if second.Value != 11.5 {
		t.Errorf("second change value = %v, want 11.5", second.Value)
	}
}

func TestManagerIgnoreChanges(t *testing.T) {
	f := &fakeHistorian{
		points: map[string]string{"FLOW.01": "w-1"},
		values: map[string]interface{}{"w-1": 10.0},
	}
	m := newTestManager(t, f, []config.TagConfig{{Name: "FLOW.01", IgnoreChanges: true}})

	var mu sync.Mutex
	var changes []ValueChange
	m.SetOnValueChange(func(cs []ValueChange) {
		mu.Lock()
		changes = append(changes, cs...)
		mu.Unlock()
	})

	m.Start()
	defer m.Stop()

	waitFor(t, func() bool {
		snap, _ := m.GetTag("FLOW.01")
		return !snap.LastPoll.IsZero()
	})

	mu.Lock()
	count := len(changes)
	mu.Unlock()
	if count != 0 {
		t.Errorf("got %d changes for an ignored tag, want 0", count)
	}

	// The value is still tracked even though changes are suppressed.
	value, err := m.ReadTag("FLOW.01")
	if err != nil {
		t.Fatalf("ReadTag failed: %v", err)
	}
	if value != 10.0 {
		t.Errorf("value = %v, want 10.0", value)
	}
}

func TestManagerReadTag(t *testing.T) {
	f := &fakeHistorian{
		points: map[string]string{"FLOW.01": "w-1"},
		values: map[string]interface{}{"w-1": 3.0},
	}
	m := newTestManager(t, f, []config.TagConfig{{Name: "FLOW.01"}})

	if _, err := m.ReadTag("FLOW.01"); err == nil {
		t.Error("expected error before first poll")
	}
	if _, err := m.ReadTag("UNKNOWN"); err == nil {
		t.Error("expected error for unmanaged tag")
	}

	m.Start()
	defer m.Stop()

	waitFor(t, func() bool {
		_, err := m.ReadTag("FLOW.01")
		return err == nil
	})
	value, err := m.ReadTag("FLOW.01")
	if err != nil {
		t.Fatalf("ReadTag failed: %v", err)
	}
	if value != 3.0 {
		t.Errorf("value = %v, want 3.0", value)
	}
}

func TestManagerWriteTag(t *testing.T) {
	f := &fakeHistorian{
		points: map[string]string{"FLOW.01": "w-1", "OTHER.01": "w-2"},
		values: map[string]interface{}{"w-1": 1.0},
	}
	m := newTestManager(t, f, []config.TagConfig{{Name: "FLOW.01"}})

	m.Start()
	defer m.Stop()

	t.Run("managed tag uses resolved web id", func(t *testing.T) {
		location, err := m.WriteTag(context.Background(), "FLOW.01", 5.5, time.Time{})
		if err != nil {
			t.Fatalf("WriteTag failed: %v", err)
		}
		if location != "/recorded/w-1" {
			t.Errorf("location = %q", location)
		}
	})

	t.Run("unmanaged tag resolves by name", func(t *testing.T) {
		location, err := m.WriteTag(context.Background(), "OTHER.01", 7.0, time.Time{})
		if err != nil {
			t.Fatalf("WriteTag failed: %v", err)
		}
		if location != "/recorded/w-2" {
			t.Errorf("location = %q", location)
		}
	})
}

func TestManagerLifecycle(t *testing.T) {
	f := &fakeHistorian{
		points: map[string]string{},
		values: map[string]interface{}{},
	}
	m := newTestManager(t, f, nil)

	if m.GetStatus() != StatusStopped {
		t.Errorf("initial status = %v, want Stopped", m.GetStatus())
	}

	m.Start()
	m.Start() // Second start is a no-op
	if m.GetStatus() != StatusPolling {
		t.Errorf("status = %v, want Polling", m.GetStatus())
	}

	m.Stop()
	if m.GetStatus() != StatusStopped {
		t.Errorf("status after stop = %v, want Stopped", m.GetStatus())
	}

	// Restart after stop works
	m.Start()
	if m.GetStatus() != StatusPolling {
		t.Errorf("status after restart = %v, want Polling", m.GetStatus())
	}
	m.Stop()
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
