// Package store defines the generic filter/clause vocabulary used by every
// entity-specific repository (internal/store/pg, internal/store/memstore).
package store

// Op names a comparison clause understood by a Store backend.
type Op string

const (
	OpEq       Op = "eq"
	OpNe       Op = "ne"
	OpIn       Op = "in"
	OpNotIn    Op = "not_in"
	OpGt       Op = "gt"
	OpLt       Op = "lt"
	OpGe       Op = "ge"
	OpLe       Op = "le"
	OpLike     Op = "like"
	OpContains Op = "contains"
)

// Clause pairs an operator with its comparison value.
type Clause struct {
	Op    Op
	Value interface{}
}

func Eq(v interface{}) Clause       { return Clause{Op: OpEq, Value: v} }
func Ne(v interface{}) Clause       { return Clause{Op: OpNe, Value: v} }
func In(v interface{}) Clause       { return Clause{Op: OpIn, Value: v} }
func NotIn(v interface{}) Clause    { return Clause{Op: OpNotIn, Value: v} }
func Gt(v interface{}) Clause       { return Clause{Op: OpGt, Value: v} }
func Lt(v interface{}) Clause       { return Clause{Op: OpLt, Value: v} }
func Ge(v interface{}) Clause       { return Clause{Op: OpGe, Value: v} }
func Le(v interface{}) Clause       { return Clause{Op: OpLe, Value: v} }
func Like(pattern string) Clause    { return Clause{Op: OpLike, Value: pattern} }

// Contains builds a clause requiring a JSON column to contain v (Postgres
// `@>` semantics). Backends without native JSON containment fall back to
// client-side filtering (internal/store/memstore) — see its doc comment for
// the accepted performance cost.
func Contains(v interface{}) Clause { return Clause{Op: OpContains, Value: v} }

// Filter is the generic query shape every read/count/delete-by operation
// accepts (§4.1): a set of per-field clauses, pagination, and ordering.
// Default order is created_at DESC unless OrderBy is set.
type Filter struct {
	Where   map[string]Clause
	Limit   int
	Offset  int
	OrderBy string
}

// NewFilter returns an empty, ready-to-use Filter.
func NewFilter() *Filter {
	return &Filter{Where: make(map[string]Clause)}
}

// With adds a field clause and returns the Filter for chaining.
func (f *Filter) With(field string, c Clause) *Filter {
	if f.Where == nil {
		f.Where = make(map[string]Clause)
	}
	f.Where[field] = c
	return f
}

// WithLimit sets the page size.
func (f *Filter) WithLimit(n int) *Filter {
	f.Limit = n
	return f
}

// WithOffset sets the page offset.
func (f *Filter) WithOffset(n int) *Filter {
	f.Offset = n
	return f
}
