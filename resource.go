package neomodel

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"math"
	"strconv"
)

// ID is a backend-assigned element identifier. Integer identifiers are
// rendered in decimal.
type ID string

// String returns the identifier text.
func (id ID) String() string { return string(id) }

// ToID normalizes an identifier or an element into an ID.
func ToID(v any) (ID, error) {
	switch x := v.(type) {
	case nil:
		return "", fmt.Errorf("nil identifier")
	case ID:
		return x, nil
	case string:
		return ID(x), nil
	case int:
		return ID(strconv.Itoa(x)), nil
	case int32:
		return ID(strconv.FormatInt(int64(x), 10)), nil
	case int64:
		return ID(strconv.FormatInt(x, 10)), nil
	case uint64:
		return ID(strconv.FormatUint(x, 10)), nil
	case float64:
		if x != math.Trunc(x) {
			return "", fmt.Errorf("non-integral identifier %v", x)
		}
		return ID(strconv.FormatInt(int64(x), 10)), nil
	case json.Number:
		return ID(x.String()), nil
	case Element:
		if x.ID() == "" {
			return "", ErrNotPersisted
		}
		return x.ID(), nil
	}
	return "", fmt.Errorf("unsupported identifier type %T", v)
}

// Result is one normalized backend object. Implementations are read-only
// views over the raw payload.
type Result interface {
	ID() ID
	// Kind reports whether the object is a vertex or an edge. Results that
	// are not elements, such as index metadata, report "".
	Kind() ElementKind
	URI() string
	// OutV and InV are the edge endpoints; empty for vertices.
	OutV() ID
	InV() ID
	// Label is the edge label; empty for vertices.
	Label() string
	// Data returns the element's property data, without backend metadata.
	Data() map[string]any
	// Get returns a raw field of the payload.
	Get(key string) (any, bool)
	Raw() any
}

// Response is the successful outcome of one round trip. Failed round trips
// produce a *TransportError instead, so a Response is always a success.
type Response struct {
	raw     any
	content map[string]any
	results []Result
	total   int
}

// NewResponse builds a Response. A negative total defaults to the number of
// results.
func NewResponse(raw any, content map[string]any, results []Result, total int) *Response {
	if total < 0 {
		total = len(results)
	}
	if content == nil {
		content = map[string]any{}
	}
	return &Response{raw: raw, content: content, results: results, total: total}
}

// Raw returns the undecoded backend reply.
func (r *Response) Raw() any { return r.raw }

// Content returns the reply envelope as a map.
func (r *Response) Content() map[string]any { return r.content }

// Get returns a field of the content envelope.
func (r *Response) Get(key string) (any, bool) {
	v, ok := r.content[key]
	return v, ok
}

// Results returns a restartable sequence over the results.
func (r *Response) Results() iter.Seq[Result] {
	return func(yield func(Result) bool) {
		for _, res := range r.results {
			if !yield(res) {
				return
			}
		}
	}
}

// One returns the first result, or nil.
func (r *Response) One() Result {
	if len(r.results) == 0 {
		return nil
	}
	return r.results[0]
}

// Len returns the number of results carried by this response.
func (r *Response) Len() int { return len(r.results) }

// TotalSize returns the total reported by the backend, which can exceed Len
// for paged replies.
func (r *Response) TotalSize() int { return r.total }

// Direction selects which incident edges or adjacent vertices to traverse.
type Direction string

const (
	Out  Direction = "out"
	In   Direction = "in"
	Both Direction = "both"
)

// IndexKind distinguishes server-maintained from caller-maintained indices.
type IndexKind string

const (
	Automatic IndexKind = "automatic"
	Manual    IndexKind = "manual"
)

// VertexStore is primitive vertex CRUD.
type VertexStore interface {
	CreateVertex(ctx context.Context, data map[string]any) (*Response, error)
	GetVertex(ctx context.Context, id ID) (*Response, error)
	UpdateVertex(ctx context.Context, id ID, data map[string]any) (*Response, error)
	DeleteVertex(ctx context.Context, id ID) (*Response, error)
}

// EdgeStore is primitive edge CRUD.
type EdgeStore interface {
	CreateEdge(ctx context.Context, outV ID, label string, inV ID, data map[string]any) (*Response, error)
	GetEdge(ctx context.Context, id ID) (*Response, error)
	UpdateEdge(ctx context.Context, id ID, data map[string]any) (*Response, error)
	DeleteEdge(ctx context.Context, id ID) (*Response, error)
}

// AdjacencyReader traverses from a vertex. kind selects edges or vertices;
// an empty label matches every label.
type AdjacencyReader interface {
	Adjacent(ctx context.Context, id ID, dir Direction, kind ElementKind, label string) (*Response, error)
}

// IndexStore manages indices and their membership. class is the kind of
// element the index holds.
type IndexStore interface {
	// CreateIndex returns a single Result whose "name", "class" and "type"
	// fields describe the index.
	CreateIndex(ctx context.Context, class ElementKind, name string, kind IndexKind, keys []string) (*Response, error)
	// GetIndex returns a not-found TransportError for a missing index.
	GetIndex(ctx context.Context, class ElementKind, name string) (*Response, error)
	DeleteIndex(ctx context.Context, class ElementKind, name string) (*Response, error)
	IndexKeys(ctx context.Context, class ElementKind, name string) ([]string, error)
	RebuildIndex(ctx context.Context, class ElementKind, name string) (*Response, error)

	PutIndexEntry(ctx context.Context, class ElementKind, name, key string, value any, id ID) (*Response, error)
	// LookupIndex returns the indexed elements; an empty Response when
	// nothing matches.
	LookupIndex(ctx context.Context, class ElementKind, name, key string, value any) (*Response, error)
	CountIndex(ctx context.Context, class ElementKind, name, key string, value any) (int, error)
	RemoveIndexEntry(ctx context.Context, class ElementKind, name string, id ID, key string, value any) (*Response, error)
}

// IndexedElementStore creates or updates an element and indexes it. A nil
// keys slice indexes every property in data.
type IndexedElementStore interface {
	CreateIndexedVertex(ctx context.Context, data map[string]any, index string, keys []string) (*Response, error)
	UpdateIndexedVertex(ctx context.Context, id ID, data map[string]any, index string, keys []string) (*Response, error)
	CreateIndexedEdge(ctx context.Context, outV ID, label string, inV ID, data map[string]any, index string, keys []string) (*Response, error)
	UpdateIndexedEdge(ctx context.Context, id ID, data map[string]any, index string, keys []string) (*Response, error)
}

// ScriptRunner executes backend-native scripts and queries.
type ScriptRunner interface {
	RunScript(ctx context.Context, script string, params map[string]any) (*Response, error)
	Query(ctx context.Context, query string, params map[string]any) (*Response, error)
}

// Resource is the capability surface a backend adapter implements. It is the
// only place backend wire shapes are handled.
type Resource interface {
	VertexStore
	EdgeStore
	AdjacencyReader
	IndexStore
	IndexedElementStore
	ScriptRunner
}
