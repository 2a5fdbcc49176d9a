package storage

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/claude/fittrack/internal/records"
)

type memoryRow struct {
	fields            records.Record
	created, modified time.Time
}

// Memory is an in-process RecordStore for development and tests. Rows are
// kept in insertion order.
type Memory struct {
	mu     sync.Mutex
	tables map[string]map[string]*memoryRow
	order  map[string][]string
	now    func() time.Time
}

// Compile-time check: Memory satisfies RecordStore.
var _ RecordStore = (*Memory)(nil)

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{
		tables: map[string]map[string]*memoryRow{},
		order:  map[string][]string{},
		now:    time.Now,
	}
}

func (m *Memory) List(ctx context.Context, table string) ([]records.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []records.Record
	for _, id := range m.order[table] {
		r := m.tables[table][id]
		out = append(out, assemble(id, copyFields(r.fields), r.created, r.modified))
	}
	return out, nil
}

func (m *Memory) Get(ctx context.Context, table, id string) (records.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.tables[table][id]
	if !ok {
		return nil, ErrNotFound
	}
	return assemble(id, copyFields(r.fields), r.created, r.modified), nil
}

func (m *Memory) Upsert(ctx context.Context, table string, rec records.Record) (records.Record, error) {
	id, fields, err := splitID(rec)
	if err != nil {
		return nil, err
	}
	fields = normalize(fields)

	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	rows := m.tables[table]
	if rows == nil {
		rows = map[string]*memoryRow{}
		m.tables[table] = rows
	}
	r, ok := rows[id]
	if ok {
		r.fields = fields
		r.modified = now
	} else {
		r = &memoryRow{fields: fields, created: now, modified: now}
		rows[id] = r
		m.order[table] = append(m.order[table], id)
	}
	return assemble(id, copyFields(r.fields), r.created, r.modified), nil
}

func (m *Memory) Merge(ctx context.Context, table, id string, fields records.Record) (records.Record, error) {
	_, clean, err := splitID(fields)
	if err != nil {
		return nil, err
	}
	clean = normalize(clean)

	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.tables[table][id]
	if !ok {
		return nil, ErrNotFound
	}
	for k, v := range clean {
		r.fields[k] = v
	}
	r.modified = m.now()
	return assemble(id, copyFields(r.fields), r.created, r.modified), nil
}

func (m *Memory) Delete(ctx context.Context, table, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tables[table][id]; !ok {
		return nil
	}
	delete(m.tables[table], id)
	ids := m.order[table]
	for i, other := range ids {
		if other == id {
			m.order[table] = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
	return nil
}

func (m *Memory) Ping(ctx context.Context) error {
	return nil
}

func copyFields(in records.Record) records.Record {
	out := make(records.Record, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// normalize round-trips fields through JSON so stored values have the same
// shapes Postgres would return (numbers as float64, nested maps and slices).
func normalize(fields records.Record) records.Record {
	data, err := json.Marshal(fields)
	if err != nil {
		return fields
	}
	var out records.Record
	if err := json.Unmarshal(data, &out); err != nil {
		return fields
	}
	return out
}
