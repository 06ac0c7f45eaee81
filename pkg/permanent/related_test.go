package permanent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marshallshelly/pebble-permanent/pkg/builder"
	"github.com/marshallshelly/pebble-permanent/pkg/visibility"
)

func TestResolve(t *testing.T) {
	v := newEnv(t)
	ctx := context.Background()
	p := v.parent(t, "ada")
	c := v.child(t, p, "first")

	for _, field := range []string{"Parent", "ParentID"} {
		got, err := Resolve[Parent](ctx, v.engine, c, field)
		require.NoError(t, err, field)
		assert.Equal(t, p.ID, got.ID, field)
	}

	_, err := Resolve[Parent](ctx, v.engine, c, "Name")
	assert.Error(t, err)
	_, err = Resolve[Memo](ctx, v.engine, c, "Parent")
	assert.Error(t, err)
}

func TestResolve_DeletedTarget(t *testing.T) {
	v := newEnv(t)
	ctx := context.Background()
	p := v.parent(t, "ada")
	m := &Memo{ParentID: p.ID, Body: "x"}
	require.NoError(t, v.memos.Create(ctx, m))
	_, err := v.parents.Delete(ctx, p, false)
	require.NoError(t, err)

	_, err = Resolve[Parent](ctx, v.engine, m, "ParentID")
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := Resolve[Parent](visibility.WithShowAll(ctx), v.engine, m, "ParentID")
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
	assert.NotNil(t, got.Removed)
}

func TestResolve_DeletedOwner(t *testing.T) {
	v := newEnv(t)
	ctx := context.Background()
	p := v.parent(t, "ada")
	v.child(t, p, "first")
	_, err := v.parents.Delete(ctx, p, false)
	require.NoError(t, err)

	c, err := v.children.Deleted().Filter(builder.Eq("name", "first")).Get(ctx)
	require.NoError(t, err)

	got, err := Resolve[Parent](ctx, v.engine, c, "Parent")
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
}

func TestResolve_NullForeignKey(t *testing.T) {
	v := newEnv(t)
	ctx := context.Background()
	a := &Attachment{Path: "/a"}
	require.NoError(t, v.attachments.Create(ctx, a))

	got, err := Resolve[Parent](ctx, v.engine, a, "ParentID")
	require.NoError(t, err)
	assert.Nil(t, got)
}
