package builder

import (
	"strings"

	"github.com/marshallshelly/pebble-permanent/pkg/schema"
)

// View selects which rows of a soft-deletable model a query sees.
type View int

const (
	// ViewLive hides soft-deleted rows. It is the default.
	ViewLive View = iota
	// ViewDeleted shows only soft-deleted rows.
	ViewDeleted
	// ViewAll adds no predicate.
	ViewAll
)

func (v View) String() string {
	switch v {
	case ViewLive:
		return "live"
	case ViewDeleted:
		return "deleted"
	case ViewAll:
		return "all"
	default:
		return "unknown"
	}
}

// LivePredicate restricts column ref of table to live rows. ok is false when
// the table is not soft-deletable.
func LivePredicate(table *schema.TableMetadata, ref string) (Condition, bool) {
	if !table.IsSoftDeletable() {
		return Condition{}, false
	}
	sd := table.SoftDelete
	cond := IsNull(ref)
	if sd.Unset != nil {
		cond = Eq(ref, sd.Unset)
	}
	cond.Auto = true
	return cond, true
}

// ViewPredicate returns the automatic predicate for view on table, qualified
// with alias. ok is false for ViewAll and for models without a soft-delete column.
func ViewPredicate(table *schema.TableMetadata, alias string, view View) (Condition, bool) {
	if view == ViewAll || !table.IsSoftDeletable() {
		return Condition{}, false
	}
	cond, _ := LivePredicate(table, qualify(alias, table.SoftDelete.Column))
	if view == ViewDeleted {
		switch cond.Operator {
		case OpIsNull:
			cond.Operator = OpIsNotNull
		case OpEqual:
			cond.Operator = OpNotEqual
		}
	}
	return cond, true
}

// IsViewPredicate reports whether cond is an automatic view predicate on the
// soft-delete column of table: marked Auto, targeting exactly that column
// and testing it with IS [NOT] NULL or [in]equality.
func IsViewPredicate(table *schema.TableMetadata, cond Condition) bool {
	if !cond.Auto || !table.IsSoftDeletable() || len(cond.Group) > 0 || cond.Not {
		return false
	}
	if unqualify(cond.Column) != table.SoftDelete.Column {
		return false
	}
	switch cond.Operator {
	case OpIsNull, OpIsNotNull, OpEqual, OpNotEqual:
		return true
	}
	return false
}

func qualify(alias, column string) string {
	if alias == "" || strings.Contains(column, ".") {
		return column
	}
	return alias + "." + column
}

func unqualify(column string) string {
	if i := strings.LastIndexByte(column, '.'); i >= 0 {
		return column[i+1:]
	}
	return column
}
