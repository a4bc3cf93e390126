package store

import (
	"context"
	"fmt"
	"time"
)

// Record is an untyped row as returned by the record store. Entity packages
// convert Records into typed values and validate field presence on read.
type Record map[string]any

// Filters is an exact-equality, AND-combined filter set. No range or ordering
// primitives exist at this layer; callers needing "most recent" sort client-side.
type Filters map[string]any

// RecordStore is the generic persistence contract the core components consume.
// A nil Record together with a nil error means "no matching row".
type RecordStore interface {
	Insert(ctx context.Context, table string, fields Record) (Record, error)
	SelectOne(ctx context.Context, table string, filters Filters) (Record, error)
	SelectAll(ctx context.Context, table string, filters Filters) ([]Record, error)
	// Update patches every row matching filters and returns the first patched
	// row, or nil when nothing matched. Because the filter and the patch apply
	// in one statement, callers can use it as a conditional (compare-and-set)
	// update by filtering on the field being changed.
	Update(ctx context.Context, table string, filters Filters, patch Record) (Record, error)
	Delete(ctx context.Context, table string, filters Filters) (bool, error)
	// WithLock runs fn while holding an exclusive lock on key, serializing
	// all WithLock callers that use the same key across instances sharing
	// the store. The RecordStore handed to fn is the lock holder's own
	// handle; all store calls made under the lock must go through it, never
	// through the outer store, so implementations can bind the critical
	// section to a dedicated connection or transaction.
	WithLock(ctx context.Context, key string, fn func(ctx context.Context, s RecordStore) error) error
}

// String returns the named field as a string.
func (r Record) String(key string) string {
	switch v := r[key].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Bool returns the named field as a bool; absent or non-bool values read as false.
func (r Record) Bool(key string) bool {
	b, _ := r[key].(bool)
	return b
}

// Int returns the named field as an int, covering the numeric types drivers produce.
func (r Record) Int(key string) int {
	switch v := r[key].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

// Float returns the named field as a float64.
func (r Record) Float(key string) float64 {
	switch v := r[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return 0
	}
}

// Time returns the named field as a time.Time. Timestamps may arrive as native
// time.Time or as RFC 3339 strings depending on the backing store.
func (r Record) Time(key string) (time.Time, bool) {
	switch v := r[key].(type) {
	case time.Time:
		return v, true
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			t, err = time.Parse(time.RFC3339, v)
		}
		return t, err == nil
	case []byte:
		t, err := time.Parse(time.RFC3339Nano, string(v))
		return t, err == nil
	default:
		return time.Time{}, false
	}
}

// Has reports whether the field is present and non-nil.
func (r Record) Has(key string) bool {
	v, ok := r[key]
	return ok && v != nil
}
