package neomodel

import (
	"context"
	"fmt"
	"iter"
	"maps"
	"slices"

	"github.com/spf13/cast"
)

// Element is a node or relationship bound to a Graph.
type Element interface {
	// ID returns the backend identifier, or "" for an element that has not
	// been persisted.
	ID() ID
	Kind() ElementKind
	URI() string
	// Schema returns the element's schema, or nil for a schema-less element.
	Schema() *Schema
	Get(name string) (any, bool)
	Set(name string, value any) error
	Properties() map[string]any
	// Index returns the index backing the element's type, or nil.
	Index() Index
	Save(ctx context.Context) error

	base() *element
}

type element struct {
	graph  *Graph
	schema *Schema
	kind   ElementKind
	id     ID
	uri    string
	// discriminator is the element type of a node, or the label of a
	// relationship.
	discriminator string
	props         map[string]any
	index         Index
}

func newElement(g *Graph, kind ElementKind, s *Schema) element {
	e := element{graph: g, schema: s, kind: kind, props: make(map[string]any)}
	if s != nil {
		e.discriminator = s.Name()
	}
	return e
}

func (e *element) base() *element { return e }

// ID returns the backend identifier, empty until the element is persisted.
func (e *element) ID() ID { return e.id }

// Kind reports whether the element is a vertex or an edge.
func (e *element) Kind() ElementKind { return e.kind }

// URI returns the element's address on the backend, if it has one.
func (e *element) URI() string { return e.uri }

// Schema returns the element's schema, or nil for schema-less elements.
func (e *element) Schema() *Schema { return e.schema }

// Index returns the index registered for the element's type, or nil.
func (e *element) Index() Index { return e.index }

// Get returns the value of a property.
func (e *element) Get(name string) (any, bool) {
	v, ok := e.props[name]
	return v, ok
}

// Properties returns a copy of the property values.
func (e *element) Properties() map[string]any {
	return maps.Clone(e.props)
}

// Set assigns a property. For elements with a schema the value is coerced to
// the declared type and unknown names are rejected; schema-less elements
// accept any value that has a wire representation. A nil value clears the
// property.
func (e *element) Set(name string, value any) error {
	if e.schema == nil {
		if _, err := InferType(value); err != nil {
			return &SchemaError{Schema: e.discriminator, Property: name, Err: err}
		}
		e.props[name] = value
		return nil
	}

	p, ok := e.schema.Property(name)
	if !ok {
		return &SchemaError{Schema: e.schema.Name(), Property: name, Err: ErrUnknownProperty}
	}
	if value == nil {
		e.props[name] = nil
		return nil
	}
	v, err := e.graph.types.ToDomain(p, value)
	if err != nil {
		return &SchemaError{Schema: e.schema.Name(), Property: name, Err: fmt.Errorf("%w: %w", ErrValidation, err)}
	}
	e.props[name] = v
	return nil
}

// setFields initializes a transient element from caller-supplied fields,
// applying schema defaults first.
func (e *element) setFields(fields map[string]any) error {
	if e.schema != nil {
		for _, p := range e.schema.props {
			if d := p.Default(); d != nil {
				if err := e.Set(p.name, d); err != nil {
					return err
				}
			} else {
				e.props[p.name] = nil
			}
		}
	}
	for _, k := range slices.Sorted(maps.Keys(fields)) {
		if err := e.Set(k, fields[k]); err != nil {
			return err
		}
	}
	return nil
}

// hydrate replaces the element's state with the contents of r. Property
// conversion failures are handed to the Graph's CoercionHook and never
// returned.
func (e *element) hydrate(r Result) error {
	if e.id != "" && r.ID() != e.id {
		return fmt.Errorf("%w: %q to %q", ErrIdentityChanged, e.id, r.ID())
	}
	e.id = r.ID()
	e.uri = r.URI()
	if k := r.Kind(); k != "" {
		e.kind = k
	}

	data := r.Data()
	typeVar := e.graph.config.TypeVar
	switch e.kind {
	case VertexKind:
		if v, ok := data[typeVar]; ok && v != nil {
			e.discriminator = cast.ToString(v)
		}
	case EdgeKind:
		e.discriminator = r.Label()
	}

	props := make(map[string]any)
	if e.schema != nil {
		for _, p := range e.schema.props {
			raw, ok := data[p.name]
			if !ok || raw == nil {
				props[p.name] = nil
				continue
			}
			v, err := e.graph.types.ToDomain(p, raw)
			if err != nil {
				v = e.graph.coercionFailed(&CoercionFailure{
					Schema:   e.schema.Name(),
					Property: p.name,
					ID:       e.id,
					Value:    raw,
					Err:      err,
				})
			}
			props[p.name] = v
		}
	} else {
		for k, v := range data {
			if e.kind == VertexKind && k == typeVar {
				continue
			}
			props[k] = v
		}
	}
	e.props = props

	e.index = nil
	if e.discriminator != "" {
		if idx, ok := e.graph.registry.Index(e.kind, e.discriminator); ok {
			e.index = idx
		}
	}
	return nil
}

// propertyData returns the wire-ready property data of the element. The
// discriminator of a vertex is emitted first, then each declared property is
// validated and converted in schema order.
func (e *element) propertyData() (map[string]any, error) {
	data := make(map[string]any, len(e.props)+1)
	if e.kind == VertexKind && e.discriminator != "" {
		data[e.graph.config.TypeVar] = e.discriminator
	}

	if e.schema != nil {
		for _, p := range e.schema.props {
			v := e.props[p.name]
			if err := p.validate(e.schema.Name(), v); err != nil {
				return nil, err
			}
			w, err := e.graph.types.ToWire(p, v)
			if err != nil {
				return nil, &SchemaError{Schema: e.schema.Name(), Property: p.name, Err: err}
			}
			data[p.name] = w
		}
		return data, nil
	}

	for _, k := range slices.Sorted(maps.Keys(e.props)) {
		v := e.props[k]
		dt, err := InferType(v)
		if err != nil {
			return nil, &SchemaError{Schema: e.discriminator, Property: k, Err: err}
		}
		p := Prop(k, dt)
		w, err := e.graph.types.ToWire(&p, v)
		if err != nil {
			return nil, &SchemaError{Schema: e.discriminator, Property: k, Err: err}
		}
		data[k] = w
	}
	return data, nil
}

// Node is a vertex element.
type Node struct {
	element
}

// Type returns the element type of the node.
func (n *Node) Type() string { return n.discriminator }

// Save writes the node's current state and re-hydrates it from the server's
// reply.
func (n *Node) Save(ctx context.Context) error {
	if n.id == "" {
		return ErrNotPersisted
	}
	data, err := n.propertyData()
	if err != nil {
		return err
	}
	var resp *Response
	if n.index != nil {
		resp, err = n.graph.resource.UpdateIndexedVertex(ctx, n.id, data, n.index.Name(), nil)
	} else {
		resp, err = n.graph.resource.UpdateVertex(ctx, n.id, data)
	}
	if err != nil {
		return err
	}
	r := resp.One()
	if r == nil {
		return ErrEmptyResponse
	}
	return n.hydrate(r)
}

// OutE returns the outgoing edges of the node. An empty label matches all.
func (n *Node) OutE(ctx context.Context, label string) (iter.Seq[*Relationship], error) {
	return adjacentEdges(ctx, n, Out, label)
}

// InE returns the incoming edges of the node.
func (n *Node) InE(ctx context.Context, label string) (iter.Seq[*Relationship], error) {
	return adjacentEdges(ctx, n, In, label)
}

// BothE returns the incoming and outgoing edges of the node.
func (n *Node) BothE(ctx context.Context, label string) (iter.Seq[*Relationship], error) {
	return adjacentEdges(ctx, n, Both, label)
}

// OutV returns the vertices at the head of the node's outgoing edges.
func (n *Node) OutV(ctx context.Context, label string) (iter.Seq[*Node], error) {
	return adjacentVertices(ctx, n, Out, label)
}

// InV returns the vertices at the tail of the node's incoming edges.
func (n *Node) InV(ctx context.Context, label string) (iter.Seq[*Node], error) {
	return adjacentVertices(ctx, n, In, label)
}

// BothV returns the vertices adjacent to the node.
func (n *Node) BothV(ctx context.Context, label string) (iter.Seq[*Node], error) {
	return adjacentVertices(ctx, n, Both, label)
}

func adjacentEdges(ctx context.Context, n *Node, dir Direction, label string) (iter.Seq[*Relationship], error) {
	if n.id == "" {
		return nil, ErrNotPersisted
	}
	resp, err := n.graph.resource.Adjacent(ctx, n.id, dir, EdgeKind, label)
	if err != nil {
		return nil, err
	}
	return relationships(n.graph.elements(resp)), nil
}

func adjacentVertices(ctx context.Context, n *Node, dir Direction, label string) (iter.Seq[*Node], error) {
	if n.id == "" {
		return nil, ErrNotPersisted
	}
	resp, err := n.graph.resource.Adjacent(ctx, n.id, dir, VertexKind, label)
	if err != nil {
		return nil, err
	}
	return nodes(n.graph.elements(resp)), nil
}

// Relationship is an edge element.
type Relationship struct {
	element
	outV ID
	inV  ID
}

// Label returns the relationship label.
func (r *Relationship) Label() string { return r.discriminator }

// OutV returns the identifier of the start vertex.
func (r *Relationship) OutV() ID { return r.outV }

// InV returns the identifier of the end vertex.
func (r *Relationship) InV() ID { return r.inV }

func (r *Relationship) hydrate(res Result) error {
	if err := r.element.hydrate(res); err != nil {
		return err
	}
	r.outV = res.OutV()
	r.inV = res.InV()
	return nil
}

// OutVertex fetches the start vertex.
func (r *Relationship) OutVertex(ctx context.Context) (*Node, error) {
	return r.graph.Vertices().Get(ctx, r.outV)
}

// InVertex fetches the end vertex.
func (r *Relationship) InVertex(ctx context.Context) (*Node, error) {
	return r.graph.Vertices().Get(ctx, r.inV)
}

// Save writes the relationship's current state and re-hydrates it from the
// server's reply.
func (r *Relationship) Save(ctx context.Context) error {
	if r.id == "" {
		return ErrNotPersisted
	}
	data, err := r.propertyData()
	if err != nil {
		return err
	}
	var resp *Response
	if r.index != nil {
		resp, err = r.graph.resource.UpdateIndexedEdge(ctx, r.id, data, r.index.Name(), nil)
	} else {
		resp, err = r.graph.resource.UpdateEdge(ctx, r.id, data)
	}
	if err != nil {
		return err
	}
	res := resp.One()
	if res == nil {
		return ErrEmptyResponse
	}
	return r.hydrate(res)
}

func nodes(seq iter.Seq[Element]) iter.Seq[*Node] {
	return func(yield func(*Node) bool) {
		for e := range seq {
			if n, ok := e.(*Node); ok && !yield(n) {
				return
			}
		}
	}
}

func relationships(seq iter.Seq[Element]) iter.Seq[*Relationship] {
	return func(yield func(*Relationship) bool) {
		for e := range seq {
			if r, ok := e.(*Relationship); ok && !yield(r) {
				return
			}
		}
	}
}
