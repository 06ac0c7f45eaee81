package permanent

import (
	"context"
	"fmt"
	"reflect"

	"github.com/marshallshelly/pebble-permanent/pkg/builder"
	"github.com/marshallshelly/pebble-permanent/pkg/schema"
	"github.com/marshallshelly/pebble-permanent/pkg/visibility"
)

// Resolve loads the record a to-one relation of owner points at. field is
// a belongsTo or hasOne relationship field, or the Go field of a foreign
// key column. The target is looked up among live rows, or among all rows
// when ctx shows all or owner itself is soft-deleted. A nil foreign key
// resolves to nil.
func Resolve[T any](ctx context.Context, e *Engine, owner any, field string) (*T, error) {
	ownerTable, err := e.Table(owner)
	if err != nil {
		return nil, err
	}
	acc, err := AccessorFor(ownerTable, owner)
	if err != nil {
		return nil, err
	}
	target, err := e.tableOf(reflect.TypeFor[T]())
	if err != nil {
		return nil, err
	}
	local, remote, err := toOne(ownerTable, target, field)
	if err != nil {
		return nil, err
	}

	v, _ := acc.Get(local)
	if v == nil {
		return nil, nil
	}

	view := builder.ViewLive
	if visibility.ShowAll(ctx) || isRemoved(ownerTable, acc) {
		view = builder.ViewAll
	}
	rows, err := e.store.Select(ctx, builder.SelectView(target, view).Where(builder.Eq(remote, v)).Limit(2))
	if err != nil {
		return nil, err
	}
	switch len(rows) {
	case 0:
		return nil, fmt.Errorf("%s.%s: %w", ownerTable.Name, field, ErrNotFound)
	case 1:
		rec, err := decode[T](target, rows[0])
		if err != nil {
			return nil, err
		}
		return &rec, nil
	default:
		return nil, fmt.Errorf("%s.%s: %w", ownerTable.Name, field, ErrMultipleRows)
	}
}

// toOne returns the owner column and the target column joined by field.
func toOne(owner, target *schema.TableMetadata, field string) (local, remote string, err error) {
	if rel := owner.GetRelationship(field); rel != nil {
		if !rel.IsToOne() {
			return "", "", fmt.Errorf("%s.%s is a %s relationship", owner.Name, field, rel.Type)
		}
		if rel.TargetTable != target.Name {
			return "", "", fmt.Errorf("%s.%s points at %s, not %s", owner.Name, field, rel.TargetTable, target.Name)
		}
		if rel.Type == schema.BelongsTo {
			return rel.ForeignKey, rel.References, nil
		}
		return rel.References, rel.ForeignKey, nil
	}
	col := owner.GetColumnByField(field)
	if col == nil {
		return "", "", fmt.Errorf("%s has no field %s", owner.Name, field)
	}
	fk := owner.ForeignKeyFor(col.Name)
	if fk == nil || fk.ReferencedTable != target.Name {
		return "", "", fmt.Errorf("%s.%s is not a foreign key to %s", owner.Name, field, target.Name)
	}
	for i, c := range fk.Columns {
		if c == col.Name {
			return col.Name, fk.ReferencedColumns[i], nil
		}
	}
	return col.Name, fk.ReferencedColumns[0], nil
}

func isRemoved(table *schema.TableMetadata, acc Accessor) bool {
	if !table.IsSoftDeletable() {
		return false
	}
	v, _ := acc.Get(table.SoftDelete.Column)
	return !isLive(table, v)
}
