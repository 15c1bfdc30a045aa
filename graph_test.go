package neomodel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewGraph_Defaults(t *testing.T) {
	g, f := newTestGraph(t)
	assert.Same(t, f, g.Resource())
	assert.Equal(t, DefaultConfig(), g.Config())
	assert.NotNil(t, g.TypeSystem())
	assert.NotNil(t, g.Registry())
	assert.NotNil(t, g.Logger())
}

func TestGraph_ProxyKindMismatch(t *testing.T) {
	ctx := context.Background()
	g, f := newTestGraph(t)

	_, err := g.NodeProxy(ctx, knowsSchema)
	var se *SchemaError
	assert.ErrorAs(t, err, &se)

	_, err = g.RelationshipProxy(ctx, personSchema)
	assert.ErrorAs(t, err, &se)
	assert.Zero(t, f.total())
}

func TestGraph_ProxyIndexFailure(t *testing.T) {
	g, f := newTestGraph(t)
	f.fail = NewTransportError(CategoryServerError, 500, "down", nil)

	_, err := g.NodeProxy(context.Background(), personSchema)
	assert.ErrorIs(t, err, ErrServerError)
	_, ok := g.Registry().Schema(VertexKind, "person")
	assert.False(t, ok)
}

func TestGraph_QuerySkipsNonElements(t *testing.T) {
	ctx := context.Background()
	people, g, _ := newPeople(t)
	a, err := people.Create(ctx, map[string]any{"name": "a"})
	require.NoError(t, err)
	b, err := g.Vertices().Create(ctx, map[string]any{"name": "b"})
	require.NoError(t, err)
	_, err = g.Edges().Create(ctx, a, "knows", b, nil)
	require.NoError(t, err)

	seq, err := g.Query(ctx, "vertices", nil)
	require.NoError(t, err)

	var kinds []ElementKind
	var typed []bool
	for e := range seq {
		kinds = append(kinds, e.Kind())
		typed = append(typed, e.Schema() != nil)
	}
	assert.Equal(t, []ElementKind{VertexKind, VertexKind, EdgeKind}, kinds)
	assert.Equal(t, []bool{true, false, false}, typed)

	_, err = g.Script(ctx, "fail", nil)
	assert.ErrorIs(t, err, ErrBadRequest)

	_, err = g.Script(ctx, "unknown", nil)
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestGraph_Element(t *testing.T) {
	g, _ := newTestGraph(t)
	g.Define(personSchema, knowsSchema)

	e, err := g.Element(&fakeResult{id: "1", kind: VertexKind, data: map[string]any{"element_type": "person", "name": "a"}})
	require.NoError(t, err)
	n, ok := e.(*Node)
	require.True(t, ok)
	assert.Same(t, personSchema, n.Schema())
	assert.Equal(t, "person", n.Type())
	assert.Nil(t, n.Index(), "no index has been fetched for person")

	e, err = g.Element(&fakeResult{id: "2", kind: EdgeKind, outV: "1", inV: "3", label: "knows"})
	require.NoError(t, err)
	rel, ok := e.(*Relationship)
	require.True(t, ok)
	assert.Same(t, knowsSchema, rel.Schema())
	assert.Equal(t, ID("3"), rel.InV())

	e, err = g.Element(&fakeResult{id: "4", kind: VertexKind, data: map[string]any{"element_type": "robot", "serial": 7.0}})
	require.NoError(t, err)
	assert.Nil(t, e.Schema())
	assert.Equal(t, map[string]any{"serial": 7.0}, e.Properties())

	_, err = g.Element(&fakeResult{id: "idx"})
	assert.Error(t, err)
}

func TestGraph_CoercionFailureIsLogged(t *testing.T) {
	ctx := context.Background()
	core, logs := observer.New(zap.WarnLevel)
	people, _, f := newPeople(t, WithLogger(zap.New(core)))

	f.vertices["77"] = map[string]any{"element_type": "person", "name": "x", "age": "old"}
	n, err := people.Get(ctx, "77")
	require.NoError(t, err)
	require.NotNil(t, n)

	age, ok := n.Get("age")
	assert.True(t, ok)
	assert.Nil(t, age)
	assert.Equal(t, "x", n.Properties()["name"])

	entries := logs.FilterMessage("property coercion failed").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "person", fields["schema"])
	assert.Equal(t, "age", fields["property"])
	assert.Equal(t, "77", fields["id"])
}

func TestGraph_CoercionHook(t *testing.T) {
	ctx := context.Background()
	var failures []*CoercionFailure
	people, _, f := newPeople(t, WithCoercionHook(func(cf *CoercionFailure) any {
		failures = append(failures, cf)
		return int64(-1)
	}))

	f.vertices["5"] = map[string]any{"element_type": "person", "name": "x", "age": "old"}
	n, err := people.Get(ctx, "5")
	require.NoError(t, err)

	age, _ := n.Get("age")
	assert.Equal(t, int64(-1), age)
	require.Len(t, failures, 1)
	assert.Equal(t, "old", failures[0].Value)
	assert.ErrorIs(t, failures[0], failures[0].Err)
}

func TestGraph_SharedRegistry(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry()
	g1, f := newTestGraph(t, WithRegistry(reg))
	_, err := g1.NodeProxy(ctx, personSchema)
	require.NoError(t, err)

	g2 := NewGraph(f, WithRegistry(reg))
	_, err = g2.NodeProxy(ctx, personSchema)
	require.NoError(t, err)
	assert.Equal(t, 1, f.calls["CreateIndex"])
	assert.Equal(t, 1, f.calls["GetIndex"], "only the first graph misses the cache")
}

func TestRegistry(t *testing.T) {
	g, _ := newTestGraph(t)
	r := NewRegistry()
	idx := &ManualIndex{indexBase: indexBase{graph: g, name: "people", class: VertexKind, kind: Manual}}

	r.AddIndex(idx)
	got, ok := r.Index(VertexKind, "people")
	require.True(t, ok)
	assert.Same(t, idx, got)
	_, ok = r.Index(EdgeKind, "people")
	assert.False(t, ok)

	r.AddSchema(personSchema)
	s, ok := r.Schema(VertexKind, "person")
	require.True(t, ok)
	assert.Same(t, personSchema, s)

	r.Invalidate(VertexKind, "people")
	_, ok = r.Index(VertexKind, "people")
	assert.False(t, ok)
	r.Invalidate(EdgeKind, "never-added")

	r.AddIndex(idx)
	r.Reset()
	_, ok = r.Index(VertexKind, "people")
	assert.False(t, ok)
	_, ok = r.Schema(VertexKind, "person")
	assert.False(t, ok)
}
