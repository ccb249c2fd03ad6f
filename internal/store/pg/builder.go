package pg

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/nanocl-io/nanocld/internal/store"
)

// buildWhere renders filter into a `WHERE ...` clause (or "" if filter has
// no predicates) plus its positional arguments, starting placeholders at
// argOffset+1 ($1-based, lib/pq style). Contains clauses assume a jsonb
// column and use Postgres's native `@>` containment operator (§9 Open
// Question: a store without this would need the memstore fallback).
func buildWhere(f *store.Filter, argOffset int) (string, []interface{}) {
	if f == nil || len(f.Where) == 0 {
		return "", nil
	}
	var conds []string
	var args []interface{}
	n := argOffset
	for field, clause := range f.Where {
		n++
		switch clause.Op {
		case store.OpEq:
			conds = append(conds, fmt.Sprintf("%s = $%d", field, n))
			args = append(args, clause.Value)
		case store.OpNe:
			conds = append(conds, fmt.Sprintf("%s != $%d", field, n))
			args = append(args, clause.Value)
		case store.OpGt:
			conds = append(conds, fmt.Sprintf("%s > $%d", field, n))
			args = append(args, clause.Value)
		case store.OpLt:
			conds = append(conds, fmt.Sprintf("%s < $%d", field, n))
			args = append(args, clause.Value)
		case store.OpGe:
			conds = append(conds, fmt.Sprintf("%s >= $%d", field, n))
			args = append(args, clause.Value)
		case store.OpLe:
			conds = append(conds, fmt.Sprintf("%s <= $%d", field, n))
			args = append(args, clause.Value)
		case store.OpLike:
			conds = append(conds, fmt.Sprintf("%s LIKE $%d", field, n))
			args = append(args, clause.Value)
		case store.OpIn:
			conds = append(conds, fmt.Sprintf("%s = ANY($%d)", field, n))
			args = append(args, pqArrayArg(clause.Value))
		case store.OpNotIn:
			conds = append(conds, fmt.Sprintf("%s != ALL($%d)", field, n))
			args = append(args, pqArrayArg(clause.Value))
		case store.OpContains:
			payload, err := json.Marshal(clause.Value)
			if err != nil {
				payload = []byte("{}")
			}
			conds = append(conds, fmt.Sprintf("%s @> $%d::jsonb", field, n))
			args = append(args, string(payload))
		default:
			n--
			continue
		}
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// buildTail renders ORDER BY / LIMIT / OFFSET, defaulting order to
// created_at DESC as §4.1 specifies.
func buildTail(f *store.Filter) string {
	orderBy := "created_at DESC"
	if f != nil && f.OrderBy != "" {
		orderBy = f.OrderBy
	}
	tail := " ORDER BY " + orderBy
	if f != nil && f.Limit > 0 {
		tail += fmt.Sprintf(" LIMIT %d", f.Limit)
	}
	if f != nil && f.Offset > 0 {
		tail += fmt.Sprintf(" OFFSET %d", f.Offset)
	}
	return tail
}

// pqArrayArg converts a Go slice into the shape lib/pq expects for `= ANY($n)`
// binding.
func pqArrayArg(v interface{}) interface{} {
	switch vv := v.(type) {
	case []string:
		return pq.Array(vv)
	case []int64:
		return pq.Array(vv)
	case []int:
		return pq.Array(vv)
	default:
		return v
	}
}
