package store

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
)

// identPattern limits table and column names to plain lowercase identifiers;
// everything else is rejected before it can reach a query string.
var identPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// querier is the query surface shared by *sql.DB and *sql.Tx, letting the
// same statement builders run against the pool or inside a lock transaction.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Postgres implements RecordStore over a *sql.DB using parametrized SQL built
// from the equality filters. Rows come back as generic Records keyed by column.
type Postgres struct {
	q  querier
	db *sql.DB // nil when the store is bound to a lock transaction
}

// NewPostgres creates a Postgres-backed record store.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{q: db, db: db}
}

// Insert inserts a single row and returns it as stored.
func (s *Postgres) Insert(ctx context.Context, table string, fields Record) (Record, error) {
	if err := checkIdent(table); err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("insert into %s: no fields", table)
	}

	cols := sortedKeys(fields)
	placeholders := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, c := range cols {
		if err := checkIdent(c); err != nil {
			return nil, err
		}
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = fields[c]
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) RETURNING *",
		table, strings.Join(cols, ", "), strings.Join(placeholders, ", "),
	)
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("insert into %s: %w", table, err)
	}
	defer rows.Close()

	recs, err := scanRecords(rows)
	if err != nil {
		return nil, fmt.Errorf("insert into %s: %w", table, err)
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("insert into %s: no row returned", table)
	}
	return recs[0], nil
}

// SelectOne returns the first row matching the filters, or nil when none match.
func (s *Postgres) SelectOne(ctx context.Context, table string, filters Filters) (Record, error) {
	if err := checkIdent(table); err != nil {
		return nil, err
	}
	where, args, err := buildWhere(filters)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT * FROM %s%s LIMIT 1", table, where)
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select from %s: %w", table, err)
	}
	defer rows.Close()

	recs, err := scanRecords(rows)
	if err != nil {
		return nil, fmt.Errorf("select from %s: %w", table, err)
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return recs[0], nil
}

// SelectAll returns every row matching the filters.
func (s *Postgres) SelectAll(ctx context.Context, table string, filters Filters) ([]Record, error) {
	if err := checkIdent(table); err != nil {
		return nil, err
	}
	where, args, err := buildWhere(filters)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT * FROM %s%s", table, where)
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select from %s: %w", table, err)
	}
	defer rows.Close()

	recs, err := scanRecords(rows)
	if err != nil {
		return nil, fmt.Errorf("select from %s: %w", table, err)
	}
	return recs, nil
}

// Update patches all rows matching the filters in a single statement and
// returns the first patched row, or nil when nothing matched.
func (s *Postgres) Update(ctx context.Context, table string, filters Filters, patch Record) (Record, error) {
	if err := checkIdent(table); err != nil {
		return nil, err
	}
	if len(patch) == 0 || len(filters) == 0 {
		return nil, fmt.Errorf("update %s: filters and patch must be non-empty", table)
	}

	cols := sortedKeys(patch)
	sets := make([]string, len(cols))
	args := make([]any, 0, len(cols)+len(filters))
	for i, c := range cols {
		if err := checkIdent(c); err != nil {
			return nil, err
		}
		sets[i] = fmt.Sprintf("%s = $%d", c, i+1)
		args = append(args, patch[c])
	}

	where, whereArgs, err := buildWhereOffset(filters, len(cols))
	if err != nil {
		return nil, err
	}
	args = append(args, whereArgs...)

	query := fmt.Sprintf("UPDATE %s SET %s%s RETURNING *", table, strings.Join(sets, ", "), where)
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", table, err)
	}
	defer rows.Close()

	recs, err := scanRecords(rows)
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", table, err)
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return recs[0], nil
}

// Delete removes all rows matching the filters and reports whether any row went away.
func (s *Postgres) Delete(ctx context.Context, table string, filters Filters) (bool, error) {
	if err := checkIdent(table); err != nil {
		return false, err
	}
	if len(filters) == 0 {
		return false, fmt.Errorf("delete from %s: filters must be non-empty", table)
	}
	where, args, err := buildWhere(filters)
	if err != nil {
		return false, err
	}
	result, err := s.q.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s%s", table, where), args...)
	if err != nil {
		return false, fmt.Errorf("delete from %s: %w", table, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete from %s: %w", table, err)
	}
	return n > 0, nil
}

// WithLock serializes callers sharing a key via a transaction-scoped advisory
// lock. Blocks until the lock is held; released on COMMIT/ROLLBACK. The store
// handed to fn runs on the lock transaction itself, so the critical section
// never borrows extra pool connections while the lock's connection is pinned.
func (s *Postgres) WithLock(ctx context.Context, key string, fn func(ctx context.Context, st RecordStore) error) error {
	if s.db == nil {
		// Already inside a lock transaction. Advisory locks are re-entrant
		// within the owning transaction, so take the key on the same tx.
		if _, err := s.q.ExecContext(ctx, `SELECT pg_advisory_xact_lock(1, hashtext($1))`, key); err != nil {
			return fmt.Errorf("advisory lock: %w", err)
		}
		return fn(ctx, s)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin lock tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(1, hashtext($1))`, key); err != nil {
		return fmt.Errorf("advisory lock: %w", err)
	}

	if err := fn(ctx, &Postgres{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}

func checkIdent(name string) error {
	if !identPattern.MatchString(name) {
		return fmt.Errorf("invalid identifier %q", name)
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func buildWhere(filters Filters) (string, []any, error) {
	return buildWhereOffset(filters, 0)
}

// buildWhereOffset renders the filters as an AND-combined WHERE clause with
// placeholders starting after the given offset. Nil filter values become IS NULL.
func buildWhereOffset(filters Filters, offset int) (string, []any, error) {
	if len(filters) == 0 {
		return "", nil, nil
	}
	conds := make([]string, 0, len(filters))
	args := make([]any, 0, len(filters))
	for _, c := range sortedKeys(filters) {
		if err := checkIdent(c); err != nil {
			return "", nil, err
		}
		v := filters[c]
		if v == nil {
			conds = append(conds, fmt.Sprintf("%s IS NULL", c))
			continue
		}
		args = append(args, v)
		conds = append(conds, fmt.Sprintf("%s = $%d", c, offset+len(args)))
	}
	return " WHERE " + strings.Join(conds, " AND "), args, nil
}

// scanRecords drains rows into generic Records, normalizing driver byte slices
// to strings and keeping native timestamps.
func scanRecords(rows *sql.Rows) ([]Record, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var recs []Record
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		rec := make(Record, len(cols))
		for i, c := range cols {
			rec[c] = normalizeValue(vals[i])
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case []byte:
		return string(t)
	case time.Time:
		return t.UTC()
	default:
		return v
	}
}
