// Package memstore is an in-memory Store implementation for tests and
// prototyping, grounded on the teacher's thread-safe map-backed Memory type.
// Unlike internal/store/pg it has no native JSON containment operator, so
// Contains clauses fall back to client-side filtering via tidwall/gjson
// (§9 Open Question) — acceptable for small test fixtures, not for
// production-scale datasets, since it scans every row on every query.
package memstore

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nanocl-io/nanocld/internal/nerr"
	"github.com/nanocl-io/nanocld/internal/store"
	"github.com/tidwall/gjson"
)

// Mapper binds a Go type T to a primary key accessor and a created_at
// accessor, mirroring pg.Mapper's role for the Postgres backend.
type Mapper[T any] struct {
	PK        func(T) string
	CreatedAt func(T) time.Time
	Kind      string // used in NotFound errors, e.g. "cargo"
}

// Store is a generic, mutex-guarded map keyed by primary key.
type Store[T any] struct {
	mu   sync.RWMutex
	rows map[string]T
	m    Mapper[T]
}

// New returns an empty Store.
func New[T any](m Mapper[T]) *Store[T] {
	return &Store[T]{rows: make(map[string]T), m: m}
}

func (s *Store[T]) Create(_ context.Context, item T) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[s.m.PK(item)] = item
	return nil
}

func (s *Store[T]) ReadByPK(_ context.Context, pk string) (T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.rows[pk]
	if !ok {
		var zero T
		return zero, nerr.NotFound(s.m.Kind, pk)
	}
	return item, nil
}

func (s *Store[T]) ReadOneBy(ctx context.Context, f *store.Filter) (T, error) {
	items, err := s.ReadBy(ctx, f)
	if err != nil {
		var zero T
		return zero, err
	}
	if len(items) == 0 {
		var zero T
		return zero, nerr.NotFound(s.m.Kind, "")
	}
	return items[0], nil
}

func (s *Store[T]) ReadBy(_ context.Context, f *store.Filter) ([]T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []T
	for _, item := range s.rows {
		if matches(item, f) {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return s.m.CreatedAt(out[i]).After(s.m.CreatedAt(out[j]))
	})
	if f != nil && f.Offset > 0 && f.Offset < len(out) {
		out = out[f.Offset:]
	}
	if f != nil && f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *Store[T]) CountBy(ctx context.Context, f *store.Filter) (int64, error) {
	items, err := s.ReadBy(ctx, f)
	if err != nil {
		return 0, err
	}
	return int64(len(items)), nil
}

func (s *Store[T]) UpdateByPK(_ context.Context, pk string, item T) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[pk]; !ok {
		return nerr.NotFound(s.m.Kind, pk)
	}
	s.rows[pk] = item
	return nil
}

func (s *Store[T]) DeleteByPK(_ context.Context, pk string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[pk]; !ok {
		return nerr.NotFound(s.m.Kind, pk)
	}
	delete(s.rows, pk)
	return nil
}

func (s *Store[T]) DeleteBy(ctx context.Context, f *store.Filter) error {
	items, err := s.ReadBy(ctx, f)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range items {
		delete(s.rows, s.m.PK(item))
	}
	return nil
}

// matches evaluates every clause in f against item's JSON projection,
// extracting each field with gjson and comparing against the clause value.
func matches(item interface{}, f *store.Filter) bool {
	if f == nil || len(f.Where) == 0 {
		return true
	}
	raw, err := json.Marshal(item)
	if err != nil {
		return false
	}
	for field, clause := range f.Where {
		result := gjson.GetBytes(raw, field)
		if !clauseMatches(result, clause) {
			return false
		}
	}
	return true
}

func clauseMatches(field gjson.Result, clause store.Clause) bool {
	switch clause.Op {
	case store.OpEq:
		return field.String() == toString(clause.Value) || field.Value() == clause.Value
	case store.OpNe:
		return field.String() != toString(clause.Value)
	case store.OpLike:
		pattern, _ := clause.Value.(string)
		return gjson.Valid(field.Raw) && matchLike(field.String(), pattern)
	case store.OpIn:
		return containsAny(clause.Value, field.Value())
	case store.OpNotIn:
		return !containsAny(clause.Value, field.Value())
	case store.OpGt:
		return field.Num > toFloat(clause.Value)
	case store.OpLt:
		return field.Num < toFloat(clause.Value)
	case store.OpGe:
		return field.Num >= toFloat(clause.Value)
	case store.OpLe:
		return field.Num <= toFloat(clause.Value)
	case store.OpContains:
		var want interface{}
		raw, err := json.Marshal(clause.Value)
		if err != nil || json.Unmarshal(raw, &want) != nil {
			return false
		}
		return jsonContains(field.Value(), want)
	default:
		return false
	}
}

func toString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, _ := json.Marshal(v)
	return string(b)
}

func toFloat(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return 0
	}
}

func matchLike(s, pattern string) bool {
	// Minimal SQL LIKE semantics: a leading/trailing "%" is a substring match;
	// anything else requires exact equality.
	if pattern == "" {
		return s == ""
	}
	prefix := strings.HasPrefix(pattern, "%")
	suffix := strings.HasSuffix(pattern, "%")
	core := pattern
	if prefix {
		core = core[1:]
	}
	if suffix && len(core) > 0 {
		core = core[:len(core)-1]
	}
	switch {
	case prefix && suffix:
		return len(core) == 0 || strings.Contains(s, core)
	case prefix:
		return strings.HasSuffix(s, core)
	case suffix:
		return strings.HasPrefix(s, core)
	default:
		return s == pattern
	}
}

func containsAny(set interface{}, v interface{}) bool {
	b, _ := json.Marshal(set)
	var list []interface{}
	if err := json.Unmarshal(b, &list); err != nil {
		return false
	}
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// jsonContains reports whether sub's keys/values are all present in full,
// mirroring Postgres jsonb `@>` for the object case the bus/process label
// queries use (§9 Open Question fallback).
func jsonContains(full interface{}, sub interface{}) bool {
	fullMap, fOK := full.(map[string]interface{})
	subMap, sOK := sub.(map[string]interface{})
	if fOK && sOK {
		for k, v := range subMap {
			fv, ok := fullMap[k]
			if !ok || !jsonContains(fv, v) {
				return false
			}
		}
		return true
	}
	return full == sub
}

