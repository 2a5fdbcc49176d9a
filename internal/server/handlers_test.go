package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/claude/fittrack/internal/metrics"
	"github.com/claude/fittrack/internal/records"
	"github.com/claude/fittrack/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func newTestServer(t *testing.T, apiKey string) (*Server, *storage.Memory) {
	t.Helper()
	store := storage.NewMemory()
	return New(store, Options{APIKey: apiKey}, discard), store
}

func do(t *testing.T, s http.Handler, method, path, apiKey string, body any) (*httptest.ResponseRecorder, records.Response) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	var resp records.Response
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode %s %s: %v (%s)", method, path, err, rec.Body.String())
		}
	}
	return rec, resp
}

const workoutPath = "/api/v1/tables/workout/records"

// TestRecordLifecycle verifies create, get, list with projection, merge
// update and idempotent delete through the HTTP routes.
func TestRecordLifecycle(t *testing.T) {
	s, _ := newTestServer(t, "")

	rec, resp := do(t, s, http.MethodPost, workoutPath, "", records.WriteRequest{
		Records: []records.Record{{"Id": "w1", "Name": "Legs", "duration": 40}},
	})
	if rec.Code != http.StatusOK || !resp.Success || len(resp.Results) != 1 || !resp.Results[0].Success {
		t.Fatalf("create: %d %+v", rec.Code, resp)
	}

	_, resp = do(t, s, http.MethodPatch, workoutPath, "", records.WriteRequest{
		Records: []records.Record{{"Id": "w1", "category": "strength"}},
	})
	if resp.Results[0].Data["Name"] != "Legs" || resp.Results[0].Data["category"] != "strength" {
		t.Errorf("merged data = %v", resp.Results[0].Data)
	}

	rec, resp = do(t, s, http.MethodGet, workoutPath+"/w1", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	var got records.Record
	if err := json.Unmarshal(resp.Data, &got); err != nil {
		t.Fatal(err)
	}
	if got["duration"] != float64(40) {
		t.Errorf("duration = %v", got["duration"])
	}

	_, resp = do(t, s, http.MethodGet, workoutPath+"?fields=Id,Name", "", nil)
	var list []records.Record
	if err := json.Unmarshal(resp.Data, &list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || len(list[0]) != 2 {
		t.Errorf("projected list = %v", list)
	}

	for i := 0; i < 2; i++ {
		rec, resp = do(t, s, http.MethodDelete, workoutPath, "", records.DeleteRequest{RecordIDs: []string{"w1"}})
		if rec.Code != http.StatusOK || !resp.Results[0].Success {
			t.Errorf("delete #%d: %d %+v", i+1, rec.Code, resp)
		}
	}

	rec, resp = do(t, s, http.MethodGet, workoutPath+"/w1", "", nil)
	if rec.Code != http.StatusNotFound || !resp.NotFound {
		t.Errorf("get after delete: %d %+v", rec.Code, resp)
	}
}

// TestUpdateMissingRecord verifies a merge on an unknown id reports a
// not-found result.
func TestUpdateMissingRecord(t *testing.T) {
	s, _ := newTestServer(t, "")
	_, resp := do(t, s, http.MethodPatch, workoutPath, "", records.WriteRequest{
		Records: []records.Record{{"Id": "nope", "Name": "x"}},
	})
	res, failed := resp.FirstFailure()
	if !failed || !res.NotFound {
		t.Errorf("response = %+v", resp)
	}
}

// TestRejectsBadRequests verifies unknown tables, unknown fields, read-only
// fields and missing ids are rejected before anything is stored.
func TestRejectsBadRequests(t *testing.T) {
	s, store := newTestServer(t, "")

	tests := []struct {
		name   string
		method string
		path   string
		body   any
	}{
		{"unknown table", http.MethodGet, "/api/v1/tables/meal/records", nil},
		{"unknown projected field", http.MethodGet, workoutPath + "?fields=Owner", nil},
		{"unknown write field", http.MethodPost, workoutPath, records.WriteRequest{Records: []records.Record{{"Name": "x", "Owner": "me"}}}},
		{"read-only field", http.MethodPost, workoutPath, records.WriteRequest{Records: []records.Record{{"Name": "x", "CreatedOn": "now"}}}},
		{"update without id", http.MethodPatch, workoutPath, records.WriteRequest{Records: []records.Record{{"Name": "x"}}}},
		{"empty create", http.MethodPost, workoutPath, records.WriteRequest{}},
		{"empty delete", http.MethodDelete, workoutPath, records.DeleteRequest{}},
		{"unknown body key", http.MethodPost, workoutPath, map[string]any{"rows": []any{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, resp := do(t, s, tt.method, tt.path, "", tt.body)
			if rec.Code != http.StatusBadRequest || resp.Success {
				t.Errorf("got %d %+v, want 400", rec.Code, resp)
			}
		})
	}

	list, _ := store.List(context.Background(), records.TableWorkout)
	if len(list) != 0 {
		t.Errorf("store has %d records after rejected writes", len(list))
	}
}

// TestAPIKeyRequired verifies the record routes check X-API-Key while the
// health check stays open.
func TestAPIKeyRequired(t *testing.T) {
	s, _ := newTestServer(t, "secret")

	if rec, _ := do(t, s, http.MethodGet, workoutPath, "", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("missing key status = %d, want 401", rec.Code)
	}
	if rec, _ := do(t, s, http.MethodGet, workoutPath, "wrong", nil); rec.Code != http.StatusForbidden {
		t.Errorf("wrong key status = %d, want 403", rec.Code)
	}
	if rec, _ := do(t, s, http.MethodGet, workoutPath, "secret", nil); rec.Code != http.StatusOK {
		t.Errorf("valid key status = %d, want 200", rec.Code)
	}
	if rec, _ := do(t, s, http.MethodGet, "/healthz", "", nil); rec.Code != http.StatusOK {
		t.Errorf("healthz status = %d, want 200", rec.Code)
	}
}

// TestRequestMetrics verifies requests are counted by method and status and
// exposed on /metrics.
func TestRequestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewHTTP(reg)
	s := New(storage.NewMemory(), Options{Metrics: m, Gatherer: reg}, discard)

	do(t, s, http.MethodGet, workoutPath, "", nil)
	do(t, s, http.MethodGet, "/api/v1/tables/meal/records", "", nil)

	if got := testutil.ToFloat64(m.CounterRequests.WithLabelValues("GET", "200")); got != 1 {
		t.Errorf("GET 200 count = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.CounterRequests.WithLabelValues("GET", "400")); got != 1 {
		t.Errorf("GET 400 count = %v, want 1", got)
	}

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if !strings.Contains(rec.Body.String(), "fittrack_record_api_requests_total") {
		t.Error("/metrics does not expose the request counter")
	}
}

// TestHandleMeDefault verifies the /api/v1/me endpoint returns the dev user
// identity when no Tailscale identity is configured.
func TestHandleMeDefault(t *testing.T) {
	s, _ := newTestServer(t, "")
	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	var info UserInfo
	if err := json.NewDecoder(rec.Body).Decode(&info); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if info.Login != "local" {
		t.Errorf("login = %q, want %q", info.Login, "local")
	}
}
