package neomodel

import (
	"context"
	"fmt"
	"iter"

	"github.com/spf13/cast"
)

// Index is a named key/value lookup structure over vertices or edges.
type Index interface {
	Name() string
	// Class is the kind of element the index holds.
	Class() ElementKind
	Kind() IndexKind

	// Lookup returns the elements indexed at key/value. The round trip
	// happens before Lookup returns; elements are hydrated as the sequence
	// is consumed, and the sequence may be ranged over again. No match is
	// an empty sequence, not an error.
	Lookup(ctx context.Context, key string, value any) (iter.Seq[Element], error)
	// LookupUnique returns the first element indexed at key/value, or nil.
	LookupUnique(ctx context.Context, key string, value any) (Element, error)
	// Count returns the number of elements indexed at key/value.
	Count(ctx context.Context, key string, value any) (int, error)
	Keys(ctx context.Context) ([]string, error)
}

type indexBase struct {
	graph *Graph
	name  string
	class ElementKind
	kind  IndexKind
}

func (i *indexBase) Name() string       { return i.name }
func (i *indexBase) Class() ElementKind { return i.class }
func (i *indexBase) Kind() IndexKind    { return i.kind }

func (i *indexBase) Lookup(ctx context.Context, key string, value any) (iter.Seq[Element], error) {
	resp, err := i.graph.resource.LookupIndex(ctx, i.class, i.name, key, value)
	if err != nil {
		return nil, err
	}
	return i.graph.elements(resp), nil
}

func (i *indexBase) LookupUnique(ctx context.Context, key string, value any) (Element, error) {
	resp, err := i.graph.resource.LookupIndex(ctx, i.class, i.name, key, value)
	if err != nil {
		return nil, err
	}
	r := resp.One()
	if r == nil {
		return nil, nil
	}
	return i.graph.Element(r)
}

func (i *indexBase) Count(ctx context.Context, key string, value any) (int, error) {
	return i.graph.resource.CountIndex(ctx, i.class, i.name, key, value)
}

func (i *indexBase) Keys(ctx context.Context) ([]string, error) {
	return i.graph.resource.IndexKeys(ctx, i.class, i.name)
}

// ManualIndex is an index maintained by the caller.
type ManualIndex struct {
	indexBase
}

// Put adds the element to the index at key/value. An element may be put
// more than once, and several elements may share a key/value.
func (i *ManualIndex) Put(ctx context.Context, id ID, key string, value any) error {
	_, err := i.graph.resource.PutIndexEntry(ctx, i.class, i.name, key, value, id)
	return err
}

// PutUnique makes id the only element at key/value: every existing entry at
// key/value is removed, then id is put. The removals and the put are
// separate round trips, so concurrent callers on the same key/value can
// interleave.
func (i *ManualIndex) PutUnique(ctx context.Context, id ID, key string, value any) error {
	resp, err := i.graph.resource.LookupIndex(ctx, i.class, i.name, key, value)
	if err != nil {
		return err
	}
	for r := range resp.Results() {
		if _, err := i.graph.resource.RemoveIndexEntry(ctx, i.class, i.name, r.ID(), key, value); err != nil {
			return fmt.Errorf("remove %q from %s: %w", r.ID(), i.name, err)
		}
	}
	return i.Put(ctx, id, key, value)
}

// Update is PutUnique.
func (i *ManualIndex) Update(ctx context.Context, id ID, key string, value any) error {
	return i.PutUnique(ctx, id, key, value)
}

// Remove removes the element's entry at key/value.
func (i *ManualIndex) Remove(ctx context.Context, id ID, key string, value any) error {
	_, err := i.graph.resource.RemoveIndexEntry(ctx, i.class, i.name, id, key, value)
	return err
}

// AutomaticIndex is maintained by the server on every write; callers can
// only read it or ask for it to be rebuilt.
type AutomaticIndex struct {
	indexBase
}

// Rebuild asks the server to regenerate the index and returns the entries
// it reports.
func (i *AutomaticIndex) Rebuild(ctx context.Context) ([]Result, error) {
	resp, err := i.graph.resource.RebuildIndex(ctx, i.class, i.name)
	if err != nil {
		return nil, err
	}
	out := make([]Result, 0, resp.Len())
	for r := range resp.Results() {
		out = append(out, r)
	}
	return out, nil
}

// newIndex builds an Index from a result describing it.
func (g *Graph) newIndex(class ElementKind, r Result) (Index, error) {
	name, _ := r.Get("name")
	base := indexBase{graph: g, name: cast.ToString(name), class: class}
	if base.name == "" {
		return nil, fmt.Errorf("index result has no name")
	}
	if c, ok := r.Get("class"); ok && cast.ToString(c) != "" && ElementKind(cast.ToString(c)) != class {
		return nil, fmt.Errorf("index %s holds %v, not %s", base.name, c, class)
	}
	kind, _ := r.Get("type")
	switch IndexKind(cast.ToString(kind)) {
	case Manual:
		base.kind = Manual
		return &ManualIndex{indexBase: base}, nil
	case Automatic:
		base.kind = Automatic
		return &AutomaticIndex{indexBase: base}, nil
	}
	return nil, fmt.Errorf("index %s has unknown type %v", base.name, kind)
}

// IndexProxy creates, fetches and deletes the indices of one element class.
// Every index it returns is cached in the Graph's Registry.
type IndexProxy struct {
	graph *Graph
	class ElementKind
}

// Create creates an index. keys restricts the properties an automatic index
// maintains; nil means all.
func (p *IndexProxy) Create(ctx context.Context, name string, kind IndexKind, keys ...string) (Index, error) {
	resp, err := p.graph.resource.CreateIndex(ctx, p.class, name, kind, keys)
	if err != nil {
		return nil, err
	}
	r := resp.One()
	if r == nil {
		return nil, ErrEmptyResponse
	}
	idx, err := p.graph.newIndex(p.class, r)
	if err != nil {
		return nil, err
	}
	p.graph.registry.AddIndex(idx)
	return idx, nil
}

// Get returns the named index, or nil and no error when it does not exist.
// A cached index is returned without a round trip.
func (p *IndexProxy) Get(ctx context.Context, name string) (Index, error) {
	if idx, ok := p.graph.registry.Index(p.class, name); ok {
		return idx, nil
	}
	resp, err := p.graph.resource.GetIndex(ctx, p.class, name)
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
	idx, err := p.graph.newIndex(p.class, r)
	if err != nil {
		return nil, err
	}
	p.graph.registry.AddIndex(idx)
	return idx, nil
}

// GetOrCreate returns the named index, creating it when it does not exist.
func (p *IndexProxy) GetOrCreate(ctx context.Context, name string, kind IndexKind, keys ...string) (Index, error) {
	idx, err := p.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	if idx != nil {
		return idx, nil
	}
	return p.Create(ctx, name, kind, keys...)
}

// Delete drops the index and evicts it from the Registry.
func (p *IndexProxy) Delete(ctx context.Context, name string) error {
	p.graph.registry.Invalidate(p.class, name)
	_, err := p.graph.resource.DeleteIndex(ctx, p.class, name)
	return err
}
