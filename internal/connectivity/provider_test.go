package connectivity

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

// TestManualNotifiesOnlyOnChange verifies subscribers hear transitions, not
// repeated writes of the same state.
func TestManualNotifiesOnlyOnChange(t *testing.T) {
	m := NewManual(true)
	var events []bool
	m.OnChange(func(online bool) { events = append(events, online) })

	m.SetOnline(true)
	m.SetOnline(false)
	m.SetOnline(false)
	m.SetOnline(true)

	if len(events) != 2 || events[0] != false || events[1] != true {
		t.Errorf("events = %v, want [false true]", events)
	}
}

// TestManualUnsubscribe verifies an unsubscribed callback is not called.
func TestManualUnsubscribe(t *testing.T) {
	m := NewManual(false)
	calls := 0
	unsub := m.OnChange(func(bool) { calls++ })
	unsub()
	m.SetOnline(true)
	if calls != 0 {
		t.Errorf("calls = %d after unsubscribe, want 0", calls)
	}
}

// TestProbeTracksHealth verifies the probe flips state with the health
// endpoint's status and notifies on each flip.
func TestProbeTracksHealth(t *testing.T) {
	var healthy atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/healthz" {
			t.Errorf("probe hit %s, want /healthz", r.URL.Path)
		}
		if !healthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := NewProbe(srv.URL+"/", 0, slog.New(slog.NewTextHandler(io.Discard, nil)))
	var events []bool
	p.OnChange(func(online bool) { events = append(events, online) })

	ctx := context.Background()
	if p.Check(ctx) {
		t.Error("Check = true while unhealthy")
	}
	healthy.Store(true)
	if !p.Check(ctx) || !p.IsOnline() {
		t.Error("probe should be online once healthy")
	}
	healthy.Store(false)
	p.Check(ctx)

	if len(events) != 2 || events[0] != true || events[1] != false {
		t.Errorf("events = %v, want [true false]", events)
	}
}
