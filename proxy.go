package neomodel

import (
	"context"
	"fmt"
	"iter"
)

// NodeProxy creates, fetches, updates and deletes the nodes of one type. A
// proxy obtained from Graph.Vertices is schema-less and has no index.
type NodeProxy struct {
	graph  *Graph
	schema *Schema
	index  Index
}

// Schema returns the proxy's schema, or nil.
func (p *NodeProxy) Schema() *Schema { return p.schema }

// Index returns the proxy's backing index, or nil.
func (p *NodeProxy) Index() Index { return p.index }

func (p *NodeProxy) instantiate(fields map[string]any) (*Node, error) {
	n := &Node{element: newElement(p.graph, VertexKind, p.schema)}
	if err := n.setFields(fields); err != nil {
		return nil, err
	}
	return n, nil
}

func (p *NodeProxy) materialize(r Result) (*Node, error) {
	if r.Kind() != "" && r.Kind() != VertexKind {
		return nil, fmt.Errorf("expected a vertex, got %s %q", r.Kind(), r.ID())
	}
	if p.schema != nil {
		return p.graph.node(p.schema, r)
	}
	e, err := p.graph.Element(r)
	if err != nil {
		return nil, err
	}
	return e.(*Node), nil
}

// Create persists a new node built from fields and returns it as the server
// stored it.
func (p *NodeProxy) Create(ctx context.Context, fields map[string]any) (*Node, error) {
	n, err := p.instantiate(fields)
	if err != nil {
		return nil, err
	}
	data, err := n.propertyData()
	if err != nil {
		return nil, err
	}

	var resp *Response
	if p.index != nil {
		resp, err = p.graph.resource.CreateIndexedVertex(ctx, data, p.index.Name(), nil)
	} else {
		resp, err = p.graph.resource.CreateVertex(ctx, data)
	}
	if err != nil {
		return nil, err
	}
	r := resp.One()
	if r == nil {
		return nil, ErrEmptyResponse
	}
	return p.materialize(r)
}

// Update replaces the properties of the node with the given identifier.
func (p *NodeProxy) Update(ctx context.Context, id any, fields map[string]any) (*Node, error) {
	nid, err := ToID(id)
	if err != nil {
		return nil, err
	}
	n, err := p.instantiate(fields)
	if err != nil {
		return nil, err
	}
	data, err := n.propertyData()
	if err != nil {
		return nil, err
	}

	var resp *Response
	if p.index != nil {
		resp, err = p.graph.resource.UpdateIndexedVertex(ctx, nid, data, p.index.Name(), nil)
	} else {
		resp, err = p.graph.resource.UpdateVertex(ctx, nid, data)
	}
	if err != nil {
		return nil, err
	}
	r := resp.One()
	if r == nil {
		return nil, ErrEmptyResponse
	}
	return p.materialize(r)
}

// Get fetches a node. It returns nil and no error when the node does not
// exist.
func (p *NodeProxy) Get(ctx context.Context, id any) (*Node, error) {
	nid, err := ToID(id)
	if err != nil {
		return nil, err
	}
	resp, err := p.graph.resource.GetVertex(ctx, nid)
	if IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r := resp.One()
	if r == nil {
		return nil, nil
	}
	return p.materialize(r)
}

// GetAll returns every node of the proxy's type, as found in its index.
func (p *NodeProxy) GetAll(ctx context.Context) (iter.Seq[*Node], error) {
	if p.index == nil || p.schema == nil {
		return nil, ErrNoIndex
	}
	seq, err := p.index.Lookup(ctx, p.graph.config.TypeVar, p.schema.Name())
	if err != nil {
		return nil, err
	}
	return nodes(seq), nil
}

// Delete removes a node.
func (p *NodeProxy) Delete(ctx context.Context, id any) error {
	nid, err := ToID(id)
	if err != nil {
		return err
	}
	_, err = p.graph.resource.DeleteVertex(ctx, nid)
	return err
}

// RelationshipProxy creates, fetches, updates and deletes the relationships
// of one label. A proxy obtained from Graph.Edges is schema-less.
type RelationshipProxy struct {
	graph  *Graph
	schema *Schema
	index  Index
}

// Schema returns the proxy's schema, or nil.
func (p *RelationshipProxy) Schema() *Schema { return p.schema }

// Index returns the proxy's backing index, or nil.
func (p *RelationshipProxy) Index() Index { return p.index }

func (p *RelationshipProxy) instantiate(label string, fields map[string]any) (*Relationship, error) {
	r := &Relationship{element: newElement(p.graph, EdgeKind, p.schema)}
	r.discriminator = label
	if err := r.setFields(fields); err != nil {
		return nil, err
	}
	return r, nil
}

func (p *RelationshipProxy) materialize(r Result) (*Relationship, error) {
	if r.Kind() != "" && r.Kind() != EdgeKind {
		return nil, fmt.Errorf("expected an edge, got %s %q", r.Kind(), r.ID())
	}
	if p.schema != nil {
		return p.graph.relationship(p.schema, r)
	}
	e, err := p.graph.Element(r)
	if err != nil {
		return nil, err
	}
	return e.(*Relationship), nil
}

// resolveLabel returns the label to create with. Typed proxies default to
// their schema label and reject any other.
func (p *RelationshipProxy) resolveLabel(label string) (string, error) {
	if p.schema == nil {
		if label == "" {
			return "", fmt.Errorf("relationship label is required")
		}
		return label, nil
	}
	if label != "" && label != p.schema.Name() {
		return "", &SchemaError{Schema: p.schema.Name(), Err: fmt.Errorf("label %q does not match", label)}
	}
	return p.schema.Name(), nil
}

// Create persists a relationship from outV to inV. Endpoints may be
// identifiers or persisted elements. label may be empty for typed proxies.
func (p *RelationshipProxy) Create(ctx context.Context, outV any, label string, inV any, fields map[string]any) (*Relationship, error) {
	out, err := ToID(outV)
	if err != nil {
		return nil, fmt.Errorf("out vertex: %w", err)
	}
	in, err := ToID(inV)
	if err != nil {
		return nil, fmt.Errorf("in vertex: %w", err)
	}
	label, err = p.resolveLabel(label)
	if err != nil {
		return nil, err
	}
	rel, err := p.instantiate(label, fields)
	if err != nil {
		return nil, err
	}
	data, err := rel.propertyData()
	if err != nil {
		return nil, err
	}

	var resp *Response
	if p.index != nil {
		resp, err = p.graph.resource.CreateIndexedEdge(ctx, out, label, in, data, p.index.Name(), nil)
	} else {
		resp, err = p.graph.resource.CreateEdge(ctx, out, label, in, data)
	}
	if err != nil {
		return nil, err
	}
	r := resp.One()
	if r == nil {
		return nil, ErrEmptyResponse
	}
	return p.materialize(r)
}

// Update replaces the properties of the relationship with the given
// identifier.
func (p *RelationshipProxy) Update(ctx context.Context, id any, fields map[string]any) (*Relationship, error) {
	rid, err := ToID(id)
	if err != nil {
		return nil, err
	}
	label := ""
	if p.schema != nil {
		label = p.schema.Name()
	}
	rel, err := p.instantiate(label, fields)
	if err != nil {
		return nil, err
	}
	data, err := rel.propertyData()
	if err != nil {
		return nil, err
	}

	var resp *Response
	if p.index != nil {
		resp, err = p.graph.resource.UpdateIndexedEdge(ctx, rid, data, p.index.Name(), nil)
	} else {
		resp, err = p.graph.resource.UpdateEdge(ctx, rid, data)
	}
	if err != nil {
		return nil, err
	}
	r := resp.One()
	if r == nil {
		return nil, ErrEmptyResponse
	}
	return p.materialize(r)
}

// Get fetches a relationship. It returns nil and no error when the
// relationship does not exist.
func (p *RelationshipProxy) Get(ctx context.Context, id any) (*Relationship, error) {
	rid, err := ToID(id)
	if err != nil {
		return nil, err
	}
	resp, err := p.graph.resource.GetEdge(ctx, rid)
	if IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r := resp.One()
	if r == nil {
		return nil, nil
	}
	return p.materialize(r)
}

// GetAll returns every relationship with the proxy's label, as found in its
// index.
func (p *RelationshipProxy) GetAll(ctx context.Context) (iter.Seq[*Relationship], error) {
	if p.index == nil || p.schema == nil {
		return nil, ErrNoIndex
	}
	seq, err := p.index.Lookup(ctx, p.graph.config.LabelVar, p.schema.Name())
	if err != nil {
		return nil, err
	}
	return relationships(seq), nil
}

// Delete removes a relationship.
func (p *RelationshipProxy) Delete(ctx context.Context, id any) error {
	rid, err := ToID(id)
	if err != nil {
		return err
	}
	_, err = p.graph.resource.DeleteEdge(ctx, rid)
	return err
}
