package permanent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marshallshelly/pebble-permanent/pkg/builder"
	"github.com/marshallshelly/pebble-permanent/pkg/visibility"
)

func TestQuerySet_Immutable(t *testing.T) {
	v := newEnv(t)

	base := v.parents.Objects()
	filtered := base.Filter(builder.Eq("name", "ada")).Limit(1)

	assert.Len(t, base.Query().Conditions(), 1)
	assert.False(t, base.Query().IsSliced())
	assert.Len(t, filtered.Query().Conditions(), 2)
	assert.True(t, filtered.Query().IsSliced())
}

func TestQuerySet_Views(t *testing.T) {
	v := newEnv(t)
	ctx := context.Background()
	v.parent(t, "ada")
	gone := v.parent(t, "bob")
	_, err := v.parents.Delete(ctx, gone, false)
	require.NoError(t, err)

	tests := []struct {
		name string
		qs   *QuerySet[Parent]
		want []string
	}{
		{"objects", v.parents.Objects(), []string{"ada"}},
		{"deleted", v.parents.Deleted(), []string{"bob"}},
		{"all", v.parents.All(), []string{"ada", "bob"}},
		{"objects or", v.parents.Objects().Filter(builder.Eq("name", "ada"), builder.Or(builder.Eq("name", "bob"))), []string{"ada"}},
		{"exclude", v.parents.All().Exclude(builder.Eq("name", "ada")), []string{"bob"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs, err := tt.qs.OrderBy("name", builder.Asc).All(ctx)
			require.NoError(t, err)
			var names []string
			for _, r := range recs {
				names = append(names, r.Name)
			}
			assert.Equal(t, tt.want, names)
		})
	}
}

func TestQuerySet_DeletedOfPlainModel(t *testing.T) {
	v := newEnv(t)
	ctx := context.Background()
	p := v.parent(t, "ada")
	require.NoError(t, v.memos.Create(ctx, &Memo{ParentID: p.ID, Body: "x"}))

	assert.Zero(t, count(t, v.memos.Deleted()))
	assert.Equal(t, int64(1), count(t, v.memos.Objects()))
	assert.Equal(t, int64(1), count(t, v.memos.All()))
}

func TestQuerySet_GetFirstExists(t *testing.T) {
	v := newEnv(t)
	ctx := context.Background()

	_, err := v.parents.Objects().Get(ctx)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = v.parents.Objects().First(ctx)
	assert.ErrorIs(t, err, ErrNotFound)
	ok, err := v.parents.Objects().Exists(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	v.parent(t, "ada")
	v.parent(t, "bob")

	_, err = v.parents.Objects().Get(ctx)
	assert.ErrorIs(t, err, ErrMultipleRows)

	first, err := v.parents.Objects().OrderBy("name", builder.Desc).First(ctx)
	require.NoError(t, err)
	assert.Equal(t, "bob", first.Name)

	ok, err = v.parents.Objects().Exists(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestQuerySet_JoinVisibility(t *testing.T) {
	v := newEnv(t)
	ctx := context.Background()
	p := v.parent(t, "ada")
	require.NoError(t, v.memos.Create(ctx, &Memo{ParentID: p.ID, Body: "x"}))
	_, err := v.parents.Delete(ctx, p, false)
	require.NoError(t, err)

	rel, err := v.engine.Relation("memo", "parent_id")
	require.NoError(t, err)

	live := v.memos.Objects().Join(ctx, builder.JoinSpec{Relation: rel})
	assert.Zero(t, count(t, live))

	all := v.memos.Objects().Join(visibility.WithShowAll(ctx), builder.JoinSpec{Relation: rel})
	assert.Equal(t, int64(1), count(t, all))

	// the unfiltered view joins deleted parents too
	reverse := v.parents.All().Join(ctx, builder.JoinSpec{Relation: rel, Reverse: true})
	assert.Equal(t, int64(1), count(t, reverse))

	reverse = v.parents.Objects().Join(ctx, builder.JoinSpec{Relation: rel, Reverse: true})
	assert.Zero(t, count(t, reverse))
}

func TestQuerySet_AllJoinKeepsDeletedRows(t *testing.T) {
	v := newEnv(t)
	ctx := context.Background()
	p := v.parent(t, "ada")
	c := v.child(t, p, "first")
	_, err := v.children.Delete(ctx, c, false)
	require.NoError(t, err)

	rel, err := v.engine.Relation("child", "parent_id")
	require.NoError(t, err)
	spec := builder.JoinSpec{Relation: rel}
	byParent := builder.Eq("parent.name", "ada")

	all := v.children.All().Join(ctx, spec).Filter(byParent)
	assert.Equal(t, int64(1), count(t, all))
	assert.Len(t, all.Query().Joins()[0].On, 1)

	assert.Equal(t, int64(1), count(t, v.children.Deleted().Join(visibility.WithShowAll(ctx), spec).Filter(byParent)))
	assert.Zero(t, count(t, v.children.Objects().Join(ctx, spec).Filter(byParent)))
}

func TestQuerySet_Update(t *testing.T) {
	v := newEnv(t)
	ctx := context.Background()
	v.parent(t, "ada")
	gone := v.parent(t, "bob")
	_, err := v.parents.Delete(ctx, gone, false)
	require.NoError(t, err)

	n, err := v.parents.Objects().Update(ctx, builder.Assignment{Column: "name", Value: "ada lovelace"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// writing the removed column reaches rows outside the view
	n, err = v.parents.Objects().Filter(builder.Eq("name", "bob")).Update(ctx, builder.Assignment{Column: "removed", Value: nil})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, int64(2), count(t, v.parents.Objects()))

	_, err = v.parents.Objects().Limit(1).Update(ctx, builder.Assignment{Column: "name", Value: "x"})
	assert.ErrorIs(t, err, ErrSlicedOperation)
}

func TestQuerySet_DeleteThroughJoin(t *testing.T) {
	v := newEnv(t)
	ctx := context.Background()
	ada := v.parent(t, "ada")
	bob := v.parent(t, "bob")
	v.child(t, ada, "first")
	v.child(t, bob, "second")

	rel, err := v.engine.Relation("child", "parent_id")
	require.NoError(t, err)
	res, err := v.children.Objects().
		Join(ctx, builder.JoinSpec{Relation: rel}).
		Filter(builder.Eq("parent.name", "bob")).
		Delete(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"child": 1}, res.PerModel)

	left, err := v.children.Objects().Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "first", left.Name)
}
