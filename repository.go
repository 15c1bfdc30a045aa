package neomodel

import (
	"context"
	"fmt"
	"reflect"
)

// Repository provides typed CRUD for one struct type T, mapped onto a node
// type by the `neo` struct tags of T (see SchemaFor).
type Repository[T any] struct {
	proxy *NodeProxy
	meta  *entityMetadata
}

// RepositoryFor returns the repository of T on g. The node type is the
// struct name.
//
// Returns:
//
//	A new Repository, or an error if the struct tags are invalid or the
//	backing index cannot be obtained.
func RepositoryFor[T any](ctx context.Context, g *Graph) (*Repository[T], error) {
	meta, err := metadataFor[T](g)
	if err != nil {
		return nil, err
	}
	proxy, err := g.NodeProxy(ctx, meta.Schema)
	if err != nil {
		return nil, err
	}
	return &Repository[T]{proxy: proxy, meta: meta}, nil
}

// Proxy returns the NodeProxy behind the repository.
func (r *Repository[T]) Proxy() *NodeProxy { return r.proxy }

// Save creates the node when the entity's ID field is empty and updates it
// otherwise. The entity is then rewritten from the server's copy, including
// its ID.
func (r *Repository[T]) Save(ctx context.Context, entity *T) error {
	fields := structToFields(entity, r.meta)

	var id ID
	if r.meta.IDField != "" {
		id = ID(reflect.ValueOf(entity).Elem().FieldByName(r.meta.IDField).String())
	}

	var n *Node
	var err error
	if id == "" {
		n, err = r.proxy.Create(ctx, fields)
	} else {
		n, err = r.proxy.Update(ctx, id, fields)
	}
	if err != nil {
		return err
	}
	return mapNodeToStruct(n, entity, r.meta)
}

// FindByID retrieves an entity by its element ID.
//
// Returns:
//
//	The entity, ErrNotFound if no node exists, or another error if the fetch
//	or the mapping fails.
func (r *Repository[T]) FindByID(ctx context.Context, id ID) (*T, error) {
	n, err := r.proxy.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if n == nil {
		return nil, ErrNotFound
	}
	return r.toEntity(n)
}

// FindAll retrieves every entity of the type.
func (r *Repository[T]) FindAll(ctx context.Context) ([]*T, error) {
	seq, err := r.proxy.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	var out []*T
	for n := range seq {
		e, err := r.toEntity(n)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// FindByProperty retrieves the entities whose property key equals value.
func (r *Repository[T]) FindByProperty(ctx context.Context, key string, value any) ([]*T, error) {
	seq, err := r.proxy.Index().Lookup(ctx, key, value)
	if err != nil {
		return nil, err
	}
	var out []*T
	for n := range nodes(seq) {
		if n.Type() != r.meta.Schema.Name() {
			continue
		}
		e, err := r.toEntity(n)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// Count returns the number of entities of the type.
func (r *Repository[T]) Count(ctx context.Context) (int, error) {
	return r.proxy.Index().Count(ctx, r.proxy.graph.config.TypeVar, r.meta.Schema.Name())
}

// CountByProperty returns the number of entities whose property key equals
// value.
func (r *Repository[T]) CountByProperty(ctx context.Context, key string, value any) (int, error) {
	return r.proxy.Index().Count(ctx, key, value)
}

// Delete removes the entity's node.
func (r *Repository[T]) Delete(ctx context.Context, id ID) error {
	return r.proxy.Delete(ctx, id)
}

func (r *Repository[T]) toEntity(n *Node) (*T, error) {
	entity := new(T)
	if err := mapNodeToStruct(n, entity, r.meta); err != nil {
		return nil, fmt.Errorf("map node %q: %w", n.ID(), err)
	}
	return entity, nil
}
