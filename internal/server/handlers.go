package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/claude/fittrack/internal/records"
	"github.com/claude/fittrack/internal/storage"
	"github.com/go-chi/chi/v5"
)

const maxBodyBytes = 4 << 20

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, userInfoFromContext(r))
}

// table resolves the {table} URL parameter or writes a 400.
func (s *Server) table(w http.ResponseWriter, r *http.Request) (records.Table, bool) {
	name := chi.URLParam(r, "table")
	t, ok := records.Lookup(name)
	if !ok {
		writeJSON(w, http.StatusBadRequest, records.Response{Message: fmt.Sprintf("unknown table %q", name)})
		return records.Table{}, false
	}
	return t, true
}

// fields parses ?fields=a,b and rejects names the table does not have.
func fieldsParam(t records.Table, r *http.Request) ([]string, error) {
	raw := r.URL.Query().Get("fields")
	if raw == "" {
		return nil, nil
	}
	known := map[string]bool{}
	for _, f := range t.Fields() {
		known[f] = true
	}
	var out []string
	for _, f := range strings.Split(raw, ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		if !known[f] {
			return nil, fmt.Errorf("unknown field %q in table %s", f, t.Name)
		}
		out = append(out, f)
	}
	return out, nil
}

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	t, ok := s.table(w, r)
	if !ok {
		return
	}
	fields, err := fieldsParam(t, r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, records.Response{Message: err.Error()})
		return
	}

	recs, err := s.store.List(r.Context(), t.Name)
	if err != nil {
		s.log.Error("listing records", "table", t.Name, "error", err)
		writeJSON(w, http.StatusInternalServerError, records.Response{Message: "failed to list records"})
		return
	}
	out := make([]records.Record, 0, len(recs))
	for _, rec := range recs {
		out = append(out, records.Project(rec, fields))
	}
	writeData(w, out)
}

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	t, ok := s.table(w, r)
	if !ok {
		return
	}
	fields, err := fieldsParam(t, r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, records.Response{Message: err.Error()})
		return
	}

	id := chi.URLParam(r, "id")
	rec, err := s.store.Get(r.Context(), t.Name, id)
	if errors.Is(err, storage.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, records.Response{NotFound: true, Message: fmt.Sprintf("%s %s not found", t.Name, id)})
		return
	}
	if err != nil {
		s.log.Error("getting record", "table", t.Name, "id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, records.Response{Message: "failed to get record"})
		return
	}
	writeData(w, records.Project(rec, fields))
}

func (s *Server) handleCreateRecords(w http.ResponseWriter, r *http.Request) {
	t, ok := s.table(w, r)
	if !ok {
		return
	}
	var req records.WriteRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, records.Response{Message: err.Error()})
		return
	}
	if err := checkRecords(t, req.Records, false); err != nil {
		writeJSON(w, http.StatusBadRequest, records.Response{Message: err.Error()})
		return
	}

	results := make([]records.Result, 0, len(req.Records))
	for _, rec := range req.Records {
		saved, err := s.store.Upsert(r.Context(), t.Name, rec)
		if err != nil {
			s.log.Error("creating record", "table", t.Name, "error", err)
			results = append(results, records.Result{Message: "failed to create record"})
			continue
		}
		results = append(results, records.Result{Success: true, Data: saved})
	}
	s.log.Debug("records created", "table", t.Name, "count", len(results))
	writeJSON(w, http.StatusOK, records.Response{Success: true, Results: results})
}

func (s *Server) handleUpdateRecords(w http.ResponseWriter, r *http.Request) {
	t, ok := s.table(w, r)
	if !ok {
		return
	}
	var req records.WriteRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, records.Response{Message: err.Error()})
		return
	}
	if err := checkRecords(t, req.Records, true); err != nil {
		writeJSON(w, http.StatusBadRequest, records.Response{Message: err.Error()})
		return
	}

	results := make([]records.Result, 0, len(req.Records))
	for _, rec := range req.Records {
		id := rec[records.FieldID].(string)
		saved, err := s.store.Merge(r.Context(), t.Name, id, rec)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			results = append(results, records.Result{NotFound: true, Message: fmt.Sprintf("%s %s not found", t.Name, id)})
		case err != nil:
			s.log.Error("updating record", "table", t.Name, "id", id, "error", err)
			results = append(results, records.Result{Message: "failed to update record"})
		default:
			results = append(results, records.Result{Success: true, Data: saved})
		}
	}
	writeJSON(w, http.StatusOK, records.Response{Success: true, Results: results})
}

func (s *Server) handleDeleteRecords(w http.ResponseWriter, r *http.Request) {
	t, ok := s.table(w, r)
	if !ok {
		return
	}
	var req records.DeleteRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, records.Response{Message: err.Error()})
		return
	}
	if len(req.RecordIDs) == 0 {
		writeJSON(w, http.StatusBadRequest, records.Response{Message: "RecordIds is required"})
		return
	}

	results := make([]records.Result, 0, len(req.RecordIDs))
	for _, id := range req.RecordIDs {
		if err := s.store.Delete(r.Context(), t.Name, id); err != nil {
			s.log.Error("deleting record", "table", t.Name, "id", id, "error", err)
			results = append(results, records.Result{Message: "failed to delete record"})
			continue
		}
		results = append(results, records.Result{Success: true, Data: records.Record{records.FieldID: id}})
	}
	writeJSON(w, http.StatusOK, records.Response{Success: true, Results: results})
}

// checkRecords validates a whole write request before anything is stored.
func checkRecords(t records.Table, recs []records.Record, needID bool) error {
	if len(recs) == 0 {
		return errors.New("records is required")
	}
	for i, rec := range recs {
		if err := t.CheckWritable(rec); err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
		if v, ok := rec[records.FieldID]; ok {
			if _, isString := v.(string); !isString {
				return fmt.Errorf("record %d: Id must be a string", i)
			}
		}
		if needID {
			if id, _ := rec[records.FieldID].(string); id == "" {
				return fmt.Errorf("record %d: Id is required", i)
			}
		}
	}
	return nil
}

func decodeBody(r *http.Request, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("reading body: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

func writeData(w http.ResponseWriter, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, records.Response{Message: "failed to encode data"})
		return
	}
	writeJSON(w, http.StatusOK, records.Response{Success: true, Data: data})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
