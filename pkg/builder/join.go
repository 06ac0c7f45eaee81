package builder

import (
	"context"

	"github.com/marshallshelly/pebble-permanent/pkg/registry"
	"github.com/marshallshelly/pebble-permanent/pkg/schema"
	"github.com/marshallshelly/pebble-permanent/pkg/visibility"
)

// Relation is a graph edge with both endpoint tables resolved. Source holds
// the foreign key, Target is the referenced model.
type Relation struct {
	Edge   registry.Edge
	Source *schema.TableMetadata
	Target *schema.TableMetadata
}

// ResolveRelation looks up both endpoints of edge in g.
func ResolveRelation(g *registry.Graph, edge registry.Edge) (Relation, bool) {
	src, ok := g.Table(edge.Source)
	if !ok {
		return Relation{}, false
	}
	dst, ok := g.Table(edge.Target)
	if !ok {
		return Relation{}, false
	}
	return Relation{Edge: edge, Source: src, Target: dst}, true
}

// JoinSpec describes one traversal of a relation.
//
// A forward join starts from the row holding the foreign key (From is a
// Source alias) and joins the referenced Target. A reverse join starts from
// the Target and joins the dependent Source rows.
type JoinSpec struct {
	Relation Relation
	Alias    string
	From     string
	Reverse  bool
	Type     JoinType
}

// JoinRestrictions returns the extra ON predicates for a join between the
// aliases of rel's endpoints, read from the visibility flags in ctx:
//
//   - the Target side is restricted to live rows unless ShowAll is set;
//   - the Source side is restricted to live rows unless ShowAll or
//     IsDeleting is set, or the relation points back at its own model.
//
// A side whose model has no soft-delete column gets no predicate.
func JoinRestrictions(ctx context.Context, rel Relation, sourceAlias, targetAlias string) []Condition {
	if visibility.ShowAll(ctx) {
		return nil
	}
	var conds []Condition
	if cond, ok := LivePredicate(rel.Target, qualify(targetAlias, softColumn(rel.Target))); ok {
		conds = append(conds, cond)
	}
	if !visibility.IsDeleting(ctx) && rel.Source.Name != rel.Target.Name {
		if cond, ok := LivePredicate(rel.Source, qualify(sourceAlias, softColumn(rel.Source))); ok {
			conds = append(conds, cond)
		}
	}
	return conds
}

func softColumn(table *schema.TableMetadata) string {
	if table.IsSoftDeletable() {
		return table.SoftDelete.Column
	}
	return ""
}

// buildJoin renders spec against a query whose own alias is base.
func buildJoin(ctx context.Context, spec JoinSpec, base string) JoinClause {
	from := spec.From
	if from == "" {
		from = base
	}
	rel := spec.Relation
	joinType := spec.Type
	if joinType == "" {
		joinType = InnerJoin
	}

	var clause JoinClause
	var sourceAlias, targetAlias string
	if spec.Reverse {
		clause = JoinClause{Type: joinType, Table: rel.Source.Name, Alias: aliasOr(spec.Alias, rel.Source.Name)}
		sourceAlias, targetAlias = clause.Alias, from
		clause.On = []Condition{ColEq(qualify(sourceAlias, rel.Edge.Column), qualify(targetAlias, rel.Edge.References))}
	} else {
		clause = JoinClause{Type: joinType, Table: rel.Target.Name, Alias: aliasOr(spec.Alias, rel.Target.Name)}
		sourceAlias, targetAlias = from, clause.Alias
		clause.On = []Condition{ColEq(qualify(targetAlias, rel.Edge.References), qualify(sourceAlias, rel.Edge.Column))}
	}
	clause.On = append(clause.On, JoinRestrictions(ctx, rel, sourceAlias, targetAlias)...)
	return clause
}

func aliasOr(alias, table string) string {
	if alias != "" {
		return alias
	}
	return table
}
