package store

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Memory is an in-process RecordStore. It backs unit tests and the
// MEMORY_STORE dev mode; production deployments use Postgres.
type Memory struct {
	mu     sync.RWMutex
	tables map[string][]Record

	lockMu sync.Mutex
	locks  map[string]*sync.Mutex
}

// NewMemory creates an empty in-memory record store.
func NewMemory() *Memory {
	return &Memory{
		tables: make(map[string][]Record),
		locks:  make(map[string]*sync.Mutex),
	}
}

// Insert stores a copy of fields as a new row.
func (s *Memory) Insert(ctx context.Context, table string, fields Record) (Record, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("insert into %s: no fields", table)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := cloneRecord(fields)
	s.tables[table] = append(s.tables[table], rec)
	return cloneRecord(rec), nil
}

// SelectOne returns the first matching row, or nil when none match.
func (s *Memory) SelectOne(ctx context.Context, table string, filters Filters) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rec := range s.tables[table] {
		if matches(rec, filters) {
			return cloneRecord(rec), nil
		}
	}
	return nil, nil
}

// SelectAll returns every matching row.
func (s *Memory) SelectAll(ctx context.Context, table string, filters Filters) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Record
	for _, rec := range s.tables[table] {
		if matches(rec, filters) {
			out = append(out, cloneRecord(rec))
		}
	}
	return out, nil
}

// Update patches all matching rows and returns the first patched row, or nil.
func (s *Memory) Update(ctx context.Context, table string, filters Filters, patch Record) (Record, error) {
	if len(patch) == 0 || len(filters) == 0 {
		return nil, fmt.Errorf("update %s: filters and patch must be non-empty", table)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var first Record
	for _, rec := range s.tables[table] {
		if !matches(rec, filters) {
			continue
		}
		for k, v := range patch {
			rec[k] = v
		}
		if first == nil {
			first = cloneRecord(rec)
		}
	}
	return first, nil
}

// Delete removes all matching rows.
func (s *Memory) Delete(ctx context.Context, table string, filters Filters) (bool, error) {
	if len(filters) == 0 {
		return false, fmt.Errorf("delete from %s: filters must be non-empty", table)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := s.tables[table]
	kept := rows[:0]
	removed := false
	for _, rec := range rows {
		if matches(rec, filters) {
			removed = true
			continue
		}
		kept = append(kept, rec)
	}
	s.tables[table] = kept
	return removed, nil
}

// WithLock serializes callers sharing a key with a per-key mutex. The store
// itself is handed back to fn; memory stores have no connections to pin.
func (s *Memory) WithLock(ctx context.Context, key string, fn func(ctx context.Context, st RecordStore) error) error {
	s.lockMu.Lock()
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	s.lockMu.Unlock()

	l.Lock()
	defer l.Unlock()
	return fn(ctx, s)
}

func cloneRecord(r Record) Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

func matches(rec Record, filters Filters) bool {
	for k, want := range filters {
		got, ok := rec[k]
		if !ok {
			return false
		}
		if !valuesEqual(got, want) {
			return false
		}
	}
	return true
}

// valuesEqual compares loosely across the representations different callers
// use for the same logical value (int vs int64, time.Time vs RFC 3339 string).
func valuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if at, ok := asTime(a); ok {
		if bt, ok := asTime(b); ok {
			return at.Equal(bt)
		}
		return false
	}
	if af, ok := asFloat(a); ok {
		if bf, ok := asFloat(b); ok {
			return af == bf
		}
		return false
	}
	return a == b
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case float32:
		return float64(t), true
	case float64:
		return t, true
	default:
		return 0, false
	}
}

func asTime(v any) (time.Time, bool) {
	t, ok := v.(time.Time)
	return t, ok
}
