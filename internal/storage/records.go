package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/claude/fittrack/internal/records"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrNotFound is returned when no record has the requested id.
var ErrNotFound = errors.New("record not found")

// RecordStore persists the rows of the record API. Every table lives in the
// same store, keyed by (table, id).
type RecordStore interface {
	List(ctx context.Context, table string) ([]records.Record, error)
	Get(ctx context.Context, table, id string) (records.Record, error)
	// Upsert creates the record, or replaces its fields when the id exists.
	// A missing Id is generated.
	Upsert(ctx context.Context, table string, rec records.Record) (records.Record, error)
	// Merge overlays fields onto an existing record.
	Merge(ctx context.Context, table, id string, fields records.Record) (records.Record, error)
	// Delete removes the record. Deleting a missing id is not an error.
	Delete(ctx context.Context, table, id string) error
	Ping(ctx context.Context) error
}

// splitID separates the Id from the stored fields, generating one if absent.
func splitID(rec records.Record) (string, records.Record, error) {
	fields := make(records.Record, len(rec))
	for k, v := range rec {
		if k == records.FieldID || k == records.FieldCreatedOn || k == records.FieldModifiedOn {
			continue
		}
		fields[k] = v
	}
	id, _ := rec[records.FieldID].(string)
	if id == "" {
		u, err := uuid.NewV7()
		if err != nil {
			return "", nil, fmt.Errorf("generating record id: %w", err)
		}
		id = u.String()
	}
	return id, fields, nil
}

// assemble builds the API view of a stored row.
func assemble(id string, fields records.Record, created, modified time.Time) records.Record {
	out := make(records.Record, len(fields)+3)
	for k, v := range fields {
		out[k] = v
	}
	out[records.FieldID] = id
	out[records.FieldCreatedOn] = created.UTC()
	out[records.FieldModifiedOn] = modified.UTC()
	return out
}

func scanRecord(row pgx.Row) (records.Record, error) {
	var (
		id                string
		raw               []byte
		created, modified time.Time
	)
	if err := row.Scan(&id, &raw, &created, &modified); err != nil {
		return nil, err
	}
	var fields records.Record
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("decoding fields of %s: %w", id, err)
	}
	return assemble(id, fields, created, modified), nil
}

// List returns every record of table, oldest first.
func (db *DB) List(ctx context.Context, table string) ([]records.Record, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT id, fields, created_at, modified_at FROM records
		 WHERE table_name = $1 ORDER BY created_at, id`, table)
	if err != nil {
		return nil, fmt.Errorf("querying %s records: %w", table, err)
	}
	defer rows.Close()

	var out []records.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning %s record: %w", table, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Get returns one record.
func (db *DB) Get(ctx context.Context, table, id string) (records.Record, error) {
	rec, err := scanRecord(db.Pool.QueryRow(ctx,
		`SELECT id, fields, created_at, modified_at FROM records
		 WHERE table_name = $1 AND id = $2`, table, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting %s/%s: %w", table, id, err)
	}
	return rec, nil
}

// Upsert inserts or replaces a record.
func (db *DB) Upsert(ctx context.Context, table string, rec records.Record) (records.Record, error) {
	id, fields, err := splitID(rec)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("encoding fields: %w", err)
	}
	out, err := scanRecord(db.Pool.QueryRow(ctx,
		`INSERT INTO records (table_name, id, fields) VALUES ($1, $2, $3::jsonb)
		 ON CONFLICT (table_name, id) DO UPDATE SET fields = EXCLUDED.fields, modified_at = now()
		 RETURNING id, fields, created_at, modified_at`,
		table, id, string(data)))
	if err != nil {
		return nil, fmt.Errorf("upserting %s/%s: %w", table, id, err)
	}
	return out, nil
}

// Merge overlays fields onto the stored record with jsonb concatenation.
func (db *DB) Merge(ctx context.Context, table, id string, fields records.Record) (records.Record, error) {
	_, clean, err := splitID(fields)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(clean)
	if err != nil {
		return nil, fmt.Errorf("encoding fields: %w", err)
	}
	out, err := scanRecord(db.Pool.QueryRow(ctx,
		`UPDATE records SET fields = fields || $3::jsonb, modified_at = now()
		 WHERE table_name = $1 AND id = $2
		 RETURNING id, fields, created_at, modified_at`,
		table, id, string(data)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("merging %s/%s: %w", table, id, err)
	}
	return out, nil
}

// Delete removes a record if present.
func (db *DB) Delete(ctx context.Context, table, id string) error {
	_, err := db.Pool.Exec(ctx, `DELETE FROM records WHERE table_name = $1 AND id = $2`, table, id)
	if err != nil {
		return fmt.Errorf("deleting %s/%s: %w", table, id, err)
	}
	return nil
}
