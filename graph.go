// Package neomodel maps typed nodes and relationships onto remote graph
// databases.
//
// A Graph binds one backend Resource to the TypeSystem, Registry and
// configuration used by every element read or written through it. Element
// types are declared once with DefineNode or DefineRelationship and used
// through proxies:
//
//	person := neomodel.MustDefineNode("person",
//		neomodel.Prop("name", neomodel.String, neomodel.Required()),
//		neomodel.Prop("age", neomodel.Integer),
//	)
//	people, err := g.NodeProxy(ctx, person)
//	james, err := people.Create(ctx, map[string]any{"name": "James"})
package neomodel

import (
	"context"
	"fmt"
	"iter"
	"sync"

	"go.uber.org/zap"
)

// CoercionHook receives every hydration conversion failure. Its return value
// becomes the property value.
type CoercionHook func(f *CoercionFailure) any

// Graph is a session over one Resource. It is not safe for concurrent use.
type Graph struct {
	resource Resource
	config   *Config
	types    TypeSystem
	registry *Registry
	logger   *zap.Logger
	onCoerce CoercionHook

	// metaCache stores parsed struct metadata keyed by reflect.Type.
	metaCache sync.Map
}

// Option configures a Graph.
type Option func(*Graph)

// WithConfig sets the configuration. The default is DefaultConfig.
func WithConfig(cfg *Config) Option {
	return func(g *Graph) { g.config = cfg }
}

// WithTypeSystem sets the TypeSystem. The default is JSONTypeSystem.
func WithTypeSystem(ts TypeSystem) Option {
	return func(g *Graph) { g.types = ts }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(g *Graph) { g.logger = l }
}

// WithRegistry sets the Registry, so that several Graphs over the same
// server can share cached indices.
func WithRegistry(r *Registry) Option {
	return func(g *Graph) { g.registry = r }
}

// WithCoercionHook replaces the handling of hydration conversion failures.
// The default logs the failure and sets the property to nil.
func WithCoercionHook(h CoercionHook) Option {
	return func(g *Graph) { g.onCoerce = h }
}

// NewGraph creates a Graph over the given Resource.
func NewGraph(resource Resource, opts ...Option) *Graph {
	g := &Graph{resource: resource}
	for _, opt := range opts {
		opt(g)
	}
	if g.config == nil {
		g.config = DefaultConfig()
	}
	if g.types == nil {
		g.types = JSONTypeSystem()
	}
	if g.registry == nil {
		g.registry = NewRegistry()
	}
	if g.logger == nil {
		g.logger = zap.NewNop()
	}
	if g.onCoerce == nil {
		g.onCoerce = g.logCoercion
	}
	return g
}

// Resource returns the backend the graph talks to.
func (g *Graph) Resource() Resource { return g.resource }

// Config returns the graph configuration.
func (g *Graph) Config() *Config { return g.config }

// TypeSystem returns the type system used to convert property values.
func (g *Graph) TypeSystem() TypeSystem { return g.types }

// Registry returns the schema and index registry shared by the graph.
func (g *Graph) Registry() *Registry { return g.registry }

// Logger returns the graph's logger.
func (g *Graph) Logger() *zap.Logger { return g.logger }

func (g *Graph) logCoercion(f *CoercionFailure) any {
	g.logger.Warn("property coercion failed",
		zap.String("schema", f.Schema),
		zap.String("property", f.Property),
		zap.String("id", string(f.ID)),
		zap.Any("value", f.Value),
		zap.Error(f.Err),
	)
	return nil
}

func (g *Graph) coercionFailed(f *CoercionFailure) any {
	return g.onCoerce(f)
}

// Define registers schemas so that elements whose discriminator matches are
// hydrated with them.
func (g *Graph) Define(schemas ...*Schema) {
	for _, s := range schemas {
		g.registry.AddSchema(s)
	}
}

// Vertices returns a proxy for schema-less vertices.
func (g *Graph) Vertices() *NodeProxy {
	return &NodeProxy{graph: g}
}

// Edges returns a proxy for schema-less edges.
func (g *Graph) Edges() *RelationshipProxy {
	return &RelationshipProxy{graph: g}
}

// VertexIndices returns the proxy managing vertex indices.
func (g *Graph) VertexIndices() *IndexProxy {
	return &IndexProxy{graph: g, class: VertexKind}
}

// EdgeIndices returns the proxy managing edge indices.
func (g *Graph) EdgeIndices() *IndexProxy {
	return &IndexProxy{graph: g, class: EdgeKind}
}

// NodeProxy registers a node schema and returns its proxy. The proxy is
// backed by a manual vertex index named after the element type, created on
// first use.
func (g *Graph) NodeProxy(ctx context.Context, s *Schema) (*NodeProxy, error) {
	if s.Kind() != VertexKind {
		return nil, &SchemaError{Schema: s.Name(), Err: fmt.Errorf("not a node schema")}
	}
	idx, err := g.VertexIndices().GetOrCreate(ctx, s.Name(), Manual)
	if err != nil {
		return nil, fmt.Errorf("index for %s: %w", s.Name(), err)
	}
	g.Define(s)
	return &NodeProxy{graph: g, schema: s, index: idx}, nil
}

// RelationshipProxy registers a relationship schema and returns its proxy,
// backed by a manual edge index named after the label.
func (g *Graph) RelationshipProxy(ctx context.Context, s *Schema) (*RelationshipProxy, error) {
	if s.Kind() != EdgeKind {
		return nil, &SchemaError{Schema: s.Name(), Err: fmt.Errorf("not a relationship schema")}
	}
	idx, err := g.EdgeIndices().GetOrCreate(ctx, s.Name(), Manual)
	if err != nil {
		return nil, fmt.Errorf("index for %s: %w", s.Name(), err)
	}
	g.Define(s)
	return &RelationshipProxy{graph: g, schema: s, index: idx}, nil
}

// Query runs a backend query and returns the elements it produced.
func (g *Graph) Query(ctx context.Context, query string, params map[string]any) (iter.Seq[Element], error) {
	resp, err := g.resource.Query(ctx, query, params)
	if err != nil {
		return nil, err
	}
	return g.elements(resp), nil
}

// Script runs a backend-native script and returns the elements it produced.
func (g *Graph) Script(ctx context.Context, script string, params map[string]any) (iter.Seq[Element], error) {
	resp, err := g.resource.RunScript(ctx, script, params)
	if err != nil {
		return nil, err
	}
	return g.elements(resp), nil
}

// Element hydrates a Result into a Node or Relationship, using the
// registered schema matching its discriminator.
func (g *Graph) Element(r Result) (Element, error) {
	switch r.Kind() {
	case VertexKind:
		var s *Schema
		if v, ok := r.Data()[g.config.TypeVar].(string); ok {
			s, _ = g.registry.Schema(VertexKind, v)
		}
		n, err := g.node(s, r)
		if err != nil {
			return nil, err
		}
		return n, nil
	case EdgeKind:
		s, _ := g.registry.Schema(EdgeKind, r.Label())
		rel, err := g.relationship(s, r)
		if err != nil {
			return nil, err
		}
		return rel, nil
	}
	return nil, fmt.Errorf("result %q is not an element (kind %q)", r.ID(), r.Kind())
}

func (g *Graph) node(s *Schema, r Result) (*Node, error) {
	n := &Node{element: newElement(g, VertexKind, s)}
	if err := n.hydrate(r); err != nil {
		return nil, err
	}
	return n, nil
}

func (g *Graph) relationship(s *Schema, r Result) (*Relationship, error) {
	rel := &Relationship{element: newElement(g, EdgeKind, s)}
	if err := rel.hydrate(r); err != nil {
		return nil, err
	}
	return rel, nil
}

// elements lazily hydrates the results of resp. Results that are not
// elements are skipped. The sequence can be ranged over more than once.
func (g *Graph) elements(resp *Response) iter.Seq[Element] {
	return func(yield func(Element) bool) {
		for r := range resp.Results() {
			e, err := g.Element(r)
			if err != nil {
				g.logger.Debug("skipping result", zap.Error(err))
				continue
			}
			if !yield(e) {
				return
			}
		}
	}
}
