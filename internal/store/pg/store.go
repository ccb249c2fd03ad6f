// Package pg is the Postgres-backed implementation of internal/store's
// generic repository (§4.1), modeled on the teacher's raw-SQL, lib/pq
// placeholder style.
package pg

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/nanocl-io/nanocld/internal/nerr"
	"github.com/nanocl-io/nanocld/internal/store"
)

// Scanner is satisfied by both *sql.Row and *sql.Rows, and is the type
// every Mapper's Scan function receives a row through.
type Scanner interface {
	Scan(dest ...interface{}) error
}

// Mapper binds a Go type T to one table: its column list (in Args order),
// how to extract bind args from a value, and how to scan a row back into T.
type Mapper[T any] struct {
	Table    string
	PKColumn string
	Columns  []string
	Args     func(T) []interface{}
	Scan     func(Scanner) (T, error)
}

// Store is a generic repository over one entity type, implementing the
// create/read_by_pk/read_one_by/read_by/count_by/update_by_pk/delete_by_pk/
// delete_by operation set of §4.1.
type Store[T any] struct {
	db *sql.DB
	m  Mapper[T]
}

// New builds a Store for the given database handle and entity mapper.
func New[T any](db *sql.DB, m Mapper[T]) *Store[T] {
	return &Store[T]{db: db, m: m}
}

// Create inserts item and returns the store error taxonomy on failure.
func (s *Store[T]) Create(ctx context.Context, item T) error {
	placeholders := make([]string, len(s.m.Columns))
	for i := range s.m.Columns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		s.m.Table, strings.Join(s.m.Columns, ", "), strings.Join(placeholders, ", "))
	if _, err := s.db.ExecContext(ctx, query, s.m.Args(item)...); err != nil {
		return nerr.Internal(fmt.Sprintf("insert into %s", s.m.Table), err)
	}
	return nil
}

// ReadByPK fetches the current row for pk, newest first.
func (s *Store[T]) ReadByPK(ctx context.Context, pk string) (T, error) {
	var zero T
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1 ORDER BY created_at DESC LIMIT 1",
		strings.Join(s.m.Columns, ", "), s.m.Table, s.m.PKColumn)
	row := s.db.QueryRowContext(ctx, query, pk)
	item, err := s.m.Scan(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return zero, nerr.NotFound(s.m.Table, pk)
		}
		return zero, nerr.Internal(fmt.Sprintf("read %s by pk", s.m.Table), err)
	}
	return item, nil
}

// ReadOneBy returns the first row matching filter.
func (s *Store[T]) ReadOneBy(ctx context.Context, f *store.Filter) (T, error) {
	var zero T
	where, args := buildWhere(f, 0)
	query := fmt.Sprintf("SELECT %s FROM %s%s%s",
		strings.Join(s.m.Columns, ", "), s.m.Table, where, buildTail(f))
	row := s.db.QueryRowContext(ctx, query, args...)
	item, err := s.m.Scan(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return zero, nerr.NotFound(s.m.Table, "")
		}
		return zero, nerr.Internal(fmt.Sprintf("read one %s", s.m.Table), err)
	}
	return item, nil
}

// ReadBy returns every row matching filter.
func (s *Store[T]) ReadBy(ctx context.Context, f *store.Filter) ([]T, error) {
	where, args := buildWhere(f, 0)
	query := fmt.Sprintf("SELECT %s FROM %s%s%s",
		strings.Join(s.m.Columns, ", "), s.m.Table, where, buildTail(f))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, nerr.Internal(fmt.Sprintf("read %s", s.m.Table), err)
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		item, err := s.m.Scan(rows)
		if err != nil {
			return nil, nerr.Internal(fmt.Sprintf("scan %s", s.m.Table), err)
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// CountBy counts rows matching filter, ignoring its Limit/Offset/OrderBy.
func (s *Store[T]) CountBy(ctx context.Context, f *store.Filter) (int64, error) {
	where, args := buildWhere(f, 0)
	query := fmt.Sprintf("SELECT count(*) FROM %s%s", s.m.Table, where)
	var n int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, nerr.Internal(fmt.Sprintf("count %s", s.m.Table), err)
	}
	return n, nil
}

// UpdateByPK overwrites every non-pk column of the row identified by pk.
func (s *Store[T]) UpdateByPK(ctx context.Context, pk string, item T) error {
	args := s.m.Args(item)
	var sets []string
	pkIdx := -1
	for i, col := range s.m.Columns {
		if col == s.m.PKColumn {
			pkIdx = i
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(sets)+1))
	}
	if pkIdx < 0 {
		return nerr.Internal(fmt.Sprintf("update %s", s.m.Table), fmt.Errorf("mapper has no pk column %s", s.m.PKColumn))
	}
	var updateArgs []interface{}
	for i, v := range args {
		if i == pkIdx {
			continue
		}
		updateArgs = append(updateArgs, v)
	}
	updateArgs = append(updateArgs, pk)
	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = $%d",
		s.m.Table, strings.Join(sets, ", "), s.m.PKColumn, len(updateArgs))
	result, err := s.db.ExecContext(ctx, query, updateArgs...)
	if err != nil {
		return nerr.Internal(fmt.Sprintf("update %s", s.m.Table), err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nerr.NotFound(s.m.Table, pk)
	}
	return nil
}

// DeleteByPK removes the row identified by pk.
func (s *Store[T]) DeleteByPK(ctx context.Context, pk string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE %s = $1", s.m.Table, s.m.PKColumn)
	result, err := s.db.ExecContext(ctx, query, pk)
	if err != nil {
		return nerr.Internal(fmt.Sprintf("delete %s", s.m.Table), err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nerr.NotFound(s.m.Table, pk)
	}
	return nil
}

// DeleteBy removes every row matching filter.
func (s *Store[T]) DeleteBy(ctx context.Context, f *store.Filter) error {
	where, args := buildWhere(f, 0)
	query := fmt.Sprintf("DELETE FROM %s%s", s.m.Table, where)
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return nerr.Internal(fmt.Sprintf("delete %s", s.m.Table), err)
	}
	return nil
}
