// Package records defines the tables of the record API and its wire format.
// Both the server and the client adapter use these definitions so the
// enumerated field lists live in one place.
package records

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Record is one row of a table, keyed by field name.
type Record map[string]any

// System fields maintained by the record API itself.
const (
	FieldID         = "Id"
	FieldCreatedOn  = "CreatedOn"
	FieldModifiedOn = "ModifiedOn"
)

const (
	TableWorkout    = "workout"
	TableCompletion = "workout_completion"
)

// Table lists the fields a client may write.
type Table struct {
	Name       string
	Updateable []string
}

// Tables is the full set of tables the record API serves.
var Tables = map[string]Table{
	TableWorkout: {
		Name: TableWorkout,
		Updateable: []string{
			"Name", "description", "duration", "difficulty", "category",
			"target_muscles", "calories_burned", "exercises",
		},
	},
	TableCompletion: {
		Name: TableCompletion,
		Updateable: []string{
			"Name", "workout_id", "completed_at", "duration",
			"calories_burned", "exercises", "notes",
		},
	},
}

// Lookup returns the table definition for name.
func Lookup(name string) (Table, bool) {
	t, ok := Tables[name]
	return t, ok
}

// Fields returns every readable field: system fields plus updateable ones.
func (t Table) Fields() []string {
	return append([]string{FieldID, FieldCreatedOn, FieldModifiedOn}, t.Updateable...)
}

// CheckWritable rejects any key that is neither Id nor an updateable field.
func (t Table) CheckWritable(rec Record) error {
	var unknown []string
	for k := range rec {
		if k == FieldID || t.isUpdateable(k) {
			continue
		}
		unknown = append(unknown, k)
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("table %s: unknown or read-only fields: %s", t.Name, strings.Join(unknown, ", "))
	}
	return nil
}

// Project keeps only the requested fields. An empty list keeps everything.
func Project(rec Record, fields []string) Record {
	if len(fields) == 0 {
		return rec
	}
	out := make(Record, len(fields))
	for _, f := range fields {
		if v, ok := rec[f]; ok {
			out[f] = v
		}
	}
	return out
}

func (t Table) isUpdateable(field string) bool {
	for _, f := range t.Updateable {
		if f == field {
			return true
		}
	}
	return false
}

// Response is the envelope of every record API reply.
type Response struct {
	Success  bool            `json:"success"`
	Message  string          `json:"message,omitempty"`
	NotFound bool            `json:"not_found,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
	Results  []Result        `json:"results,omitempty"`
}

// Result is the per-record outcome of a create, update or delete.
type Result struct {
	Success  bool   `json:"success"`
	Message  string `json:"message,omitempty"`
	NotFound bool   `json:"not_found,omitempty"`
	Data     Record `json:"data,omitempty"`
}

// FirstFailure returns the first failed result, if any.
func (r *Response) FirstFailure() (Result, bool) {
	for _, res := range r.Results {
		if !res.Success {
			return res, true
		}
	}
	return Result{}, false
}

// WriteRequest is the body of create and update calls.
type WriteRequest struct {
	Records []Record `json:"records"`
}

// DeleteRequest is the body of delete calls.
type DeleteRequest struct {
	RecordIDs []string `json:"RecordIds"`
}
