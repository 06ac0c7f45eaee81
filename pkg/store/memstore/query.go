package memstore

import (
	"maps"
	"reflect"
	"slices"
	"strings"

	"github.com/marshallshelly/pebble-permanent/pkg/builder"
	"github.com/marshallshelly/pebble-permanent/pkg/store"
)

// query evaluates a SELECT: joins, WHERE, ORDER BY, projection, DISTINCT,
// then LIMIT and OFFSET. FOR UPDATE needs no work since transactions are
// serialized.
func (db *database) query(q *builder.SelectQuery) ([]store.Row, error) {
	base := q.Alias()
	var scopes []scope
	for _, row := range db.rows(q.Table().Name) {
		scopes = append(scopes, newScope(base, row))
	}

	for _, join := range q.Joins() {
		var next []scope
		targets := db.rows(join.Table)
		for _, sc := range scopes {
			matched := false
			for _, target := range targets {
				candidate := sc.with(join.Alias, target)
				t, err := evalList(join.On, candidate)
				if err != nil {
					return nil, err
				}
				if t == tTrue {
					next = append(next, candidate)
					matched = true
				}
			}
			if !matched && join.Type == builder.LeftJoin {
				next = append(next, sc.with(join.Alias, nil))
			}
		}
		scopes = next
	}

	filtered := scopes[:0:0]
	for _, sc := range scopes {
		ok, err := matchWhere(q.Conditions(), sc)
		if err != nil {
			return nil, err
		}
		if ok {
			filtered = append(filtered, sc)
		}
	}

	if err := sortScopes(filtered, q.Ordering()); err != nil {
		return nil, err
	}

	rows := make([]store.Row, 0, len(filtered))
	columns := q.SelectedColumns()
	for _, sc := range filtered {
		if len(columns) == 0 {
			rows = append(rows, maps.Clone(sc.rows[base]))
			continue
		}
		row := make(store.Row, len(columns))
		for _, c := range columns {
			v, err := sc.lookup(c)
			if err != nil {
				return nil, err
			}
			row[columnKey(c)] = v
		}
		rows = append(rows, row)
	}

	if q.IsDistinct() {
		rows = distinct(rows)
	}
	return window(rows, q), nil
}

func columnKey(ref string) string {
	if i := strings.LastIndexByte(ref, '.'); i >= 0 {
		return ref[i+1:]
	}
	return ref
}

func sortScopes(scopes []scope, order []builder.OrderBy) error {
	if len(order) == 0 {
		return nil
	}
	var sortErr error
	slices.SortStableFunc(scopes, func(a, b scope) int {
		for _, o := range order {
			av, err := a.lookup(o.Column)
			if err != nil {
				sortErr = err
				return 0
			}
			bv, err := b.lookup(o.Column)
			if err != nil {
				sortErr = err
				return 0
			}
			av, bv = normalize(av), normalize(bv)

			nullsFirst := o.Direction == builder.Desc
			switch o.NullsPos {
			case builder.NullsFirst:
				nullsFirst = true
			case builder.NullsLast:
				nullsFirst = false
			}
			switch {
			case av == nil && bv == nil:
				continue
			case av == nil:
				if nullsFirst {
					return -1
				}
				return 1
			case bv == nil:
				if nullsFirst {
					return 1
				}
				return -1
			}

			n, err := compare(av, bv)
			if err != nil {
				sortErr = err
				return 0
			}
			if o.Direction == builder.Desc {
				n = -n
			}
			if n != 0 {
				return n
			}
		}
		return 0
	})
	return sortErr
}

func distinct(rows []store.Row) []store.Row {
	out := rows[:0:0]
	for _, row := range rows {
		if !slices.ContainsFunc(out, func(seen store.Row) bool { return reflect.DeepEqual(seen, row) }) {
			out = append(out, row)
		}
	}
	return out
}

func window(rows []store.Row, q *builder.SelectQuery) []store.Row {
	limit, offset := q.Window()
	if offset != nil {
		if *offset >= len(rows) {
			return nil
		}
		rows = rows[*offset:]
	}
	if limit != nil && *limit < len(rows) {
		rows = rows[:*limit]
	}
	return rows
}
