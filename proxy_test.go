package neomodel

import (
	"context"
	"errors"
	"maps"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	personSchema = MustDefineNode("person",
		Prop("name", String, Required()),
		Prop("age", Integer),
		Prop("active", Bool, WithDefault(true)),
	)
	knowsSchema = MustDefineRelationship("knows",
		Prop("since", Integer),
	)
)

func newPeople(t *testing.T, opts ...Option) (*NodeProxy, *Graph, *fakeResource) {
	t.Helper()
	g, f := newTestGraph(t, opts...)
	people, err := g.NodeProxy(context.Background(), personSchema)
	require.NoError(t, err)
	return people, g, f
}

func TestNodeProxy_Create(t *testing.T) {
	ctx := context.Background()
	people, _, f := newPeople(t)

	james, err := people.Create(ctx, map[string]any{"name": "James", "age": 34})
	require.NoError(t, err)

	assert.NotEmpty(t, james.ID())
	assert.Equal(t, "person", james.Type())
	assert.Equal(t, VertexKind, james.Kind())
	assert.Equal(t, "fake://"+string(james.ID()), james.URI())
	assert.Equal(t, map[string]any{"name": "James", "age": int64(34), "active": true}, james.Properties())
	assert.Same(t, people.Index(), james.Index())

	// The discriminator is written with the data and indexed.
	stored := f.vertices[james.ID()]
	assert.Equal(t, "person", stored["element_type"])
	assert.Equal(t, 1, f.calls["CreateIndexedVertex"])
}

func TestNodeProxy_CreateValidation(t *testing.T) {
	ctx := context.Background()
	people, _, f := newPeople(t)
	before := f.total()

	_, err := people.Create(ctx, map[string]any{"age": 3})
	assert.ErrorIs(t, err, ErrRequired)

	_, err = people.Create(ctx, map[string]any{"name": "x", "email": "x@example.com"})
	assert.ErrorIs(t, err, ErrUnknownProperty)

	_, err = people.Create(ctx, map[string]any{"name": "x", "age": "old"})
	assert.ErrorIs(t, err, ErrValidation)

	assert.Equal(t, before, f.total(), "invalid elements never reach the backend")
}

func TestNodeProxy_Validator(t *testing.T) {
	ctx := context.Background()
	g, _ := newTestGraph(t)
	adult := MustDefineNode("adult",
		Prop("age", Integer, WithValidator(func(v any) error {
			if v.(int64) < 18 {
				return errors.New("must be at least 18")
			}
			return nil
		})),
	)
	proxy, err := g.NodeProxy(ctx, adult)
	require.NoError(t, err)

	_, err = proxy.Create(ctx, map[string]any{"age": 12})
	require.ErrorIs(t, err, ErrValidation)
	var se *SchemaError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "age", se.Property)

	_, err = proxy.Create(ctx, map[string]any{"age": 40})
	assert.NoError(t, err)
}

func TestNodeProxy_Get(t *testing.T) {
	ctx := context.Background()
	people, _, _ := newPeople(t)
	james, err := people.Create(ctx, map[string]any{"name": "James"})
	require.NoError(t, err)

	got, err := people.Get(ctx, james.ID())
	require.NoError(t, err)
	assert.Equal(t, james.ID(), got.ID())
	assert.Equal(t, "James", got.Properties()["name"])
	assert.Nil(t, got.Properties()["age"])

	missing, err := people.Get(ctx, "999")
	assert.NoError(t, err)
	assert.Nil(t, missing)
}

func TestNodeProxy_GetPropagatesOtherErrors(t *testing.T) {
	people, _, f := newPeople(t)
	f.fail = NewTransportError(CategoryServerError, 500, "boom", nil)

	_, err := people.Get(context.Background(), "1")
	assert.ErrorIs(t, err, ErrServerError)
}

func TestNodeProxy_Update(t *testing.T) {
	ctx := context.Background()
	people, _, _ := newPeople(t)
	james, err := people.Create(ctx, map[string]any{"name": "James", "age": 30})
	require.NoError(t, err)

	updated, err := people.Update(ctx, james, map[string]any{"name": "Jim"})
	require.NoError(t, err)
	assert.Equal(t, james.ID(), updated.ID())
	assert.Equal(t, "Jim", updated.Properties()["name"])
	assert.Nil(t, updated.Properties()["age"], "update replaces every property")

	all, err := people.GetAll(ctx)
	require.NoError(t, err)
	var names []any
	for n := range all {
		names = append(names, n.Properties()["name"])
	}
	assert.Equal(t, []any{"Jim"}, names)

	_, err = people.Update(ctx, "404", map[string]any{"name": "x"})
	assert.True(t, IsNotFound(err))
}

func TestNodeProxy_GetAllAndDelete(t *testing.T) {
	ctx := context.Background()
	people, g, _ := newPeople(t)
	a, err := people.Create(ctx, map[string]any{"name": "a"})
	require.NoError(t, err)
	_, err = people.Create(ctx, map[string]any{"name": "b"})
	require.NoError(t, err)

	// A schema-less vertex of another type is not part of GetAll.
	_, err = g.Vertices().Create(ctx, map[string]any{"name": "loose"})
	require.NoError(t, err)

	all, err := people.GetAll(ctx)
	require.NoError(t, err)
	count := 0
	for range all {
		count++
	}
	assert.Equal(t, 2, count)

	require.NoError(t, people.Delete(ctx, a.ID()))
	got, err := people.Get(ctx, a.ID())
	require.NoError(t, err)
	assert.Nil(t, got)

	n, err := people.Index().Count(ctx, "element_type", "person")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.True(t, IsNotFound(people.Delete(ctx, a.ID())))

	_, err = g.Vertices().GetAll(ctx)
	assert.ErrorIs(t, err, ErrNoIndex)
}

func TestNode_SchemaLess(t *testing.T) {
	ctx := context.Background()
	g, f := newTestGraph(t)

	n, err := g.Vertices().Create(ctx, map[string]any{"name": "loose", "tags": []string{"a"}})
	require.NoError(t, err)
	assert.Nil(t, n.Schema())
	assert.Nil(t, n.Index())
	assert.Equal(t, 1, f.calls["CreateVertex"])
	assert.Equal(t, map[string]any{"name": "loose", "tags": []any{"a"}}, n.Properties())

	require.NoError(t, n.Set("score", 1.5))
	assert.ErrorIs(t, n.Set("bad", struct{}{}), ErrUnsupportedValue)

	_, err = g.Vertices().Create(ctx, map[string]any{"bad": make(chan int)})
	assert.ErrorIs(t, err, ErrUnsupportedValue)
}

func TestNode_SetAndSave(t *testing.T) {
	ctx := context.Background()
	people, _, f := newPeople(t)
	james, err := people.Create(ctx, map[string]any{"name": "James"})
	require.NoError(t, err)

	require.NoError(t, james.Set("age", "41"))
	v, _ := james.Get("age")
	assert.Equal(t, int64(41), v, "values are coerced on assignment")

	assert.ErrorIs(t, james.Set("nickname", "J"), ErrUnknownProperty)

	require.NoError(t, james.Save(ctx))
	assert.Equal(t, 1, f.calls["UpdateIndexedVertex"])
	assert.Equal(t, 41.0, f.vertices[james.ID()]["age"])

	v, _ = james.Get("age")
	assert.Equal(t, int64(41), v)

	require.NoError(t, james.Set("name", nil))
	assert.ErrorIs(t, james.Save(ctx), ErrRequired)
}

func TestNode_SaveRequiresPersistence(t *testing.T) {
	g, _ := newTestGraph(t)
	n := &Node{element: newElement(g, VertexKind, nil)}
	assert.ErrorIs(t, n.Save(context.Background()), ErrNotPersisted)

	_, err := n.OutE(context.Background(), "")
	assert.ErrorIs(t, err, ErrNotPersisted)
}

func TestNode_HydrateRejectsIdentityChange(t *testing.T) {
	people, _, _ := newPeople(t)
	n, err := people.Create(context.Background(), map[string]any{"name": "a"})
	require.NoError(t, err)

	err = n.hydrate(&fakeResult{id: "other", kind: VertexKind})
	assert.ErrorIs(t, err, ErrIdentityChanged)
}

func TestRelationshipProxy(t *testing.T) {
	ctx := context.Background()
	people, g, f := newPeople(t)
	knows, err := g.RelationshipProxy(ctx, knowsSchema)
	require.NoError(t, err)

	a, err := people.Create(ctx, map[string]any{"name": "a"})
	require.NoError(t, err)
	b, err := people.Create(ctx, map[string]any{"name": "b"})
	require.NoError(t, err)

	rel, err := knows.Create(ctx, a, "", b.ID(), map[string]any{"since": 2010})
	require.NoError(t, err)
	assert.Equal(t, EdgeKind, rel.Kind())
	assert.Equal(t, "knows", rel.Label())
	assert.Equal(t, a.ID(), rel.OutV())
	assert.Equal(t, b.ID(), rel.InV())
	assert.Equal(t, int64(2010), rel.Properties()["since"])
	assert.NotContains(t, f.edges[rel.ID()].data, "element_type")

	_, err = knows.Create(ctx, a, "likes", b, nil)
	var se *SchemaError
	assert.ErrorAs(t, err, &se)

	out, err := rel.OutVertex(ctx)
	require.NoError(t, err)
	assert.Equal(t, a.ID(), out.ID())
	assert.Equal(t, "person", out.Type())

	in, err := rel.InVertex(ctx)
	require.NoError(t, err)
	assert.Equal(t, b.ID(), in.ID())

	got, err := knows.Get(ctx, rel.ID())
	require.NoError(t, err)
	assert.Equal(t, rel.ID(), got.ID())

	updated, err := knows.Update(ctx, rel.ID(), map[string]any{"since": 2011})
	require.NoError(t, err)
	assert.Equal(t, int64(2011), updated.Properties()["since"])

	all, err := knows.GetAll(ctx)
	require.NoError(t, err)
	n := 0
	for r := range all {
		n++
		assert.Equal(t, rel.ID(), r.ID())
	}
	assert.Equal(t, 1, n)

	require.NoError(t, knows.Delete(ctx, rel.ID()))
	missing, err := knows.Get(ctx, rel.ID())
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRelationshipProxy_SchemaLess(t *testing.T) {
	ctx := context.Background()
	g, _ := newTestGraph(t)
	a, err := g.Vertices().Create(ctx, map[string]any{"name": "a"})
	require.NoError(t, err)
	b, err := g.Vertices().Create(ctx, map[string]any{"name": "b"})
	require.NoError(t, err)

	_, err = g.Edges().Create(ctx, a, "", b, nil)
	assert.Error(t, err)

	rel, err := g.Edges().Create(ctx, a, "follows", b, map[string]any{"weight": 0.5})
	require.NoError(t, err)
	assert.Equal(t, "follows", rel.Label())
	assert.Nil(t, rel.Schema())
	assert.Equal(t, 0.5, rel.Properties()["weight"])

	require.NoError(t, rel.Set("weight", 0.7))
	require.NoError(t, rel.Save(ctx))
	assert.Equal(t, 0.7, rel.Properties()["weight"])

	_, err = g.Edges().Create(ctx, &Node{element: newElement(g, VertexKind, nil)}, "follows", b, nil)
	assert.ErrorIs(t, err, ErrNotPersisted)
}

func TestNode_Adjacency(t *testing.T) {
	ctx := context.Background()
	people, g, _ := newPeople(t)
	knows, err := g.RelationshipProxy(ctx, knowsSchema)
	require.NoError(t, err)

	a, _ := people.Create(ctx, map[string]any{"name": "a"})
	b, _ := people.Create(ctx, map[string]any{"name": "b"})
	c, _ := people.Create(ctx, map[string]any{"name": "c"})
	_, err = knows.Create(ctx, a, "", b, nil)
	require.NoError(t, err)
	_, err = knows.Create(ctx, c, "", a, nil)
	require.NoError(t, err)
	_, err = g.Edges().Create(ctx, a, "likes", c, nil)
	require.NoError(t, err)

	names := func(seq func(func(*Node) bool)) []any {
		var out []any
		for n := range seq {
			out = append(out, n.Properties()["name"])
		}
		return out
	}

	outV, err := a.OutV(ctx, "knows")
	require.NoError(t, err)
	assert.Equal(t, []any{"b"}, names(outV))

	inV, err := a.InV(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []any{"c"}, names(inV))

	bothV, err := a.BothV(ctx, "")
	require.NoError(t, err)
	assert.ElementsMatch(t, []any{"b", "c", "c"}, names(bothV))

	outE, err := a.OutE(ctx, "")
	require.NoError(t, err)
	var labels []string
	for r := range outE {
		labels = append(labels, r.Label())
	}
	assert.ElementsMatch(t, []string{"knows", "likes"}, labels)

	inE, err := a.InE(ctx, "likes")
	require.NoError(t, err)
	for range inE {
		t.Fatal("a has no incoming likes")
	}

	bothE, err := a.BothE(ctx, "knows")
	require.NoError(t, err)
	n := 0
	for r := range bothE {
		n++
		assert.NotNil(t, r.Schema(), "registered labels hydrate with their schema")
	}
	assert.Equal(t, 2, n)
}

func TestNodeProxy_UpdateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	people, _, f := newPeople(t)
	james, err := people.Create(ctx, map[string]any{"name": "James", "age": 34})
	require.NoError(t, err)
	fields := map[string]any{"name": "Jim", "age": 35, "active": false}

	first, err := people.Update(ctx, james.ID(), fields)
	require.NoError(t, err)
	stored := maps.Clone(f.vertices[james.ID()])
	entries := slices.Clone(f.indices[VertexKind]["person"].entries)

	second, err := people.Update(ctx, james.ID(), fields)
	require.NoError(t, err)
	assert.Equal(t, first.Properties(), second.Properties())
	assert.Equal(t, stored, f.vertices[james.ID()])
	assert.ElementsMatch(t, entries, f.indices[VertexKind]["person"].entries)

	require.NoError(t, second.Save(ctx))
	require.NoError(t, second.Save(ctx))
	assert.Equal(t, first.Properties(), second.Properties())
	assert.Equal(t, stored, f.vertices[james.ID()])
	assert.ElementsMatch(t, entries, f.indices[VertexKind]["person"].entries)

	n, err := people.Index().Count(ctx, "name", "Jim")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = people.Index().Count(ctx, "name", "James")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestGraph_VertexEdgeLifecycle(t *testing.T) {
	ctx := context.Background()
	people, g, f := newPeople(t)
	knows, err := g.RelationshipProxy(ctx, knowsSchema)
	require.NoError(t, err)

	james, err := people.Create(ctx, map[string]any{"name": "James"})
	require.NoError(t, err)
	julie, err := people.Create(ctx, map[string]any{"name": "Julie"})
	require.NoError(t, err)

	rel, err := knows.Create(ctx, james, "", julie, map[string]any{"since": 2011})
	require.NoError(t, err)

	got, err := knows.Get(ctx, rel.ID())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, james.ID(), got.OutV())
	assert.Equal(t, julie.ID(), got.InV())
	assert.Equal(t, "knows", got.Label())
	assert.Equal(t, int64(2011), got.Properties()["since"])

	require.NoError(t, people.Delete(ctx, james))

	gone, err := people.Get(ctx, james.ID())
	require.NoError(t, err)
	assert.Nil(t, gone)
	assert.NotContains(t, f.edges, rel.ID())

	edge, err := knows.Get(ctx, rel.ID())
	require.NoError(t, err)
	assert.Nil(t, edge)
}
