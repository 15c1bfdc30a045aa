package neo4jserver

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/saulfrancisco-ruizacevedo/go-neomodel"
	"github.com/saulfrancisco-ruizacevedo/gocypher"
	"github.com/spf13/cast"
	"go.uber.org/zap"
)

const (
	// DefaultVertexLabel is the Neo4j label carried by every vertex.
	DefaultVertexLabel = "Vertex"

	indexLabel = "NeomodelIndex"
	entryLabel = "NeomodelIndexEntry"
)

// Resource implements neomodel.Resource over Cypher.
//
// Manual indices are stored in the graph itself: each index is a
// (:NeomodelIndex {name, class, type, keys}) node and each entry a
// (:NeomodelIndexEntry {index, class, key, value, element}) node. Automatic
// indices are answered by matching properties directly. Compound operations
// such as CreateIndexedVertex issue their statements in sequence and do not
// roll back earlier ones when a later one fails.
type Resource struct {
	runner      Runner
	logger      *zap.Logger
	vertexLabel string
	labelVar    string
}

// Option configures a Resource.
type Option func(*Resource)

// WithLogger sets the logger used for query tracing.
func WithLogger(l *zap.Logger) Option {
	return func(r *Resource) { r.logger = l }
}

// WithVertexLabel sets the Neo4j label of vertices.
func WithVertexLabel(label string) Option {
	return func(r *Resource) { r.vertexLabel = label }
}

// WithLabelVar sets the index key under which edge labels are indexed. It
// must match the Graph's Config.LabelVar.
func WithLabelVar(key string) Option {
	return func(r *Resource) { r.labelVar = key }
}

// New creates a Resource that runs its queries through runner.
func New(runner Runner, opts ...Option) *Resource {
	r := &Resource{
		runner:      runner,
		logger:      zap.NewNop(),
		vertexLabel: DefaultVertexLabel,
		labelVar:    neomodel.DefaultConfig().LabelVar,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var _ neomodel.Resource = (*Resource)(nil)

func (r *Resource) run(ctx context.Context, query string, params map[string]any) (*neo4j.EagerResult, error) {
	r.logger.Debug("cypher", zap.String("query", query), zap.Int("params", len(params)))
	res, err := r.runner.Run(ctx, query, params)
	if err != nil {
		return nil, classify(err)
	}
	return res, nil
}

// expectOne runs query and returns a not-found error when no record is
// produced.
func (r *Resource) expectOne(ctx context.Context, what string, query string, params map[string]any) (*neomodel.Response, error) {
	res, err := r.run(ctx, query, params)
	if err != nil {
		return nil, err
	}
	if len(res.Records) == 0 {
		return nil, notFound("%s not found", what)
	}
	return decode(res), nil
}

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// quote renders a Cypher identifier.
func quote(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// CreateVertex creates a vertex with the given properties.
func (r *Resource) CreateVertex(ctx context.Context, data map[string]any) (*neomodel.Response, error) {
	query := fmt.Sprintf("CREATE (n:%s) SET n = $props RETURN n", quote(r.vertexLabel))
	return r.expectOne(ctx, "vertex", query, map[string]any{"props": nonNil(data)})
}

func (r *Resource) GetVertex(ctx context.Context, id neomodel.ID) (*neomodel.Response, error) {
	query := fmt.Sprintf("MATCH (n:%s) WHERE elementId(n) = $id RETURN n", quote(r.vertexLabel))
	return r.expectOne(ctx, "vertex "+string(id), query, map[string]any{"id": string(id)})
}

// UpdateVertex replaces all properties of the vertex.
func (r *Resource) UpdateVertex(ctx context.Context, id neomodel.ID, data map[string]any) (*neomodel.Response, error) {
	query := fmt.Sprintf("MATCH (n:%s) WHERE elementId(n) = $id SET n = $props RETURN n", quote(r.vertexLabel))
	return r.expectOne(ctx, "vertex "+string(id), query, map[string]any{"id": string(id), "props": nonNil(data)})
}

// DeleteVertex removes the vertex, its edges and its index entries.
func (r *Resource) DeleteVertex(ctx context.Context, id neomodel.ID) (*neomodel.Response, error) {
	query := fmt.Sprintf(`MATCH (n:%s) WHERE elementId(n) = $id
OPTIONAL MATCH (e:%s {element: $id})
DETACH DELETE e, n
RETURN DISTINCT $id AS deleted`, quote(r.vertexLabel), entryLabel)
	return r.expectOne(ctx, "vertex "+string(id), query, map[string]any{"id": string(id)})
}

func (r *Resource) CreateEdge(ctx context.Context, outV neomodel.ID, label string, inV neomodel.ID, data map[string]any) (*neomodel.Response, error) {
	if label == "" {
		return nil, neomodel.NewTransportError(neomodel.CategoryBadRequest, 0, "edge label is required", nil)
	}
	query := fmt.Sprintf(`MATCH (a:%[1]s), (b:%[1]s) WHERE elementId(a) = $out AND elementId(b) = $in
CREATE (a)-[r:%[2]s]->(b)
SET r = $props
RETURN r`, quote(r.vertexLabel), quote(label))
	params := map[string]any{"out": string(outV), "in": string(inV), "props": nonNil(data)}
	return r.expectOne(ctx, fmt.Sprintf("endpoints %s, %s", outV, inV), query, params)
}

func (r *Resource) GetEdge(ctx context.Context, id neomodel.ID) (*neomodel.Response, error) {
	query := "MATCH ()-[r]->() WHERE elementId(r) = $id RETURN r"
	return r.expectOne(ctx, "edge "+string(id), query, map[string]any{"id": string(id)})
}

// UpdateEdge replaces all properties of the edge.
func (r *Resource) UpdateEdge(ctx context.Context, id neomodel.ID, data map[string]any) (*neomodel.Response, error) {
	query := "MATCH ()-[r]->() WHERE elementId(r) = $id SET r = $props RETURN r"
	return r.expectOne(ctx, "edge "+string(id), query, map[string]any{"id": string(id), "props": nonNil(data)})
}

// DeleteEdge removes the edge and its index entries.
func (r *Resource) DeleteEdge(ctx context.Context, id neomodel.ID) (*neomodel.Response, error) {
	query := fmt.Sprintf(`MATCH ()-[r]->() WHERE elementId(r) = $id
OPTIONAL MATCH (e:%s {element: $id})
DELETE e, r
RETURN DISTINCT $id AS deleted`, entryLabel)
	return r.expectOne(ctx, "edge "+string(id), query, map[string]any{"id": string(id)})
}

// Adjacent returns the edges incident to, or the vertices adjacent to, the
// vertex. An unknown vertex yields an empty response.
func (r *Resource) Adjacent(ctx context.Context, id neomodel.ID, dir neomodel.Direction, kind neomodel.ElementKind, label string) (*neomodel.Response, error) {
	var pattern string
	switch dir {
	case neomodel.Out:
		pattern = "(n:%s)-[r]->(m)"
	case neomodel.In:
		pattern = "(n:%s)<-[r]-(m)"
	case neomodel.Both:
		pattern = "(n:%s)-[r]-(m)"
	default:
		return nil, fmt.Errorf("unknown direction %q", dir)
	}
	ret := "r"
	if kind == neomodel.VertexKind {
		ret = "m"
	}

	query := "MATCH " + fmt.Sprintf(pattern, quote(r.vertexLabel)) + " WHERE elementId(n) = $id"
	params := map[string]any{"id": string(id)}
	if label != "" {
		query += " AND type(r) = $label"
		params["label"] = label
	}
	query += " RETURN " + ret

	res, err := r.run(ctx, query, params)
	if err != nil {
		return nil, err
	}
	return decode(res), nil
}

// indexMeta is the stored description of an index.
type indexMeta struct {
	kind neomodel.IndexKind
	keys []string
}

func (r *Resource) indexMeta(ctx context.Context, class neomodel.ElementKind, name string) (*indexMeta, error) {
	resp, err := r.GetIndex(ctx, class, name)
	if err != nil {
		return nil, err
	}
	m := resp.One()
	kind, _ := m.Get("type")
	keys, _ := m.Get("keys")
	return &indexMeta{
		kind: neomodel.IndexKind(cast.ToString(kind)),
		keys: cast.ToStringSlice(keys),
	}, nil
}

// CreateIndex stores the index description. It is a conflict error when an
// index of that class and name already exists.
func (r *Resource) CreateIndex(ctx context.Context, class neomodel.ElementKind, name string, kind neomodel.IndexKind, keys []string) (*neomodel.Response, error) {
	if keys == nil {
		keys = []string{}
	}
	query := fmt.Sprintf(`OPTIONAL MATCH (x:%[1]s {name: $name, class: $class})
WITH x WHERE x IS NULL
CREATE (i:%[1]s {name: $name, class: $class, type: $type, keys: $keys})
RETURN i {.*} AS index`, indexLabel)
	params := map[string]any{"name": name, "class": string(class), "type": string(kind), "keys": keys}
	res, err := r.run(ctx, query, params)
	if err != nil {
		return nil, err
	}
	if len(res.Records) == 0 {
		return nil, neomodel.NewTransportError(neomodel.CategoryConflict, 0,
			fmt.Sprintf("%s index %s already exists", class, name), nil)
	}
	return decode(res), nil
}

func (r *Resource) GetIndex(ctx context.Context, class neomodel.ElementKind, name string) (*neomodel.Response, error) {
	query := fmt.Sprintf("MATCH (i:%s {name: $name, class: $class}) RETURN i {.*} AS index", indexLabel)
	return r.expectOne(ctx, fmt.Sprintf("%s index %s", class, name), query,
		map[string]any{"name": name, "class": string(class)})
}

// DeleteIndex removes the index and all of its entries.
func (r *Resource) DeleteIndex(ctx context.Context, class neomodel.ElementKind, name string) (*neomodel.Response, error) {
	query := fmt.Sprintf(`MATCH (i:%s {name: $name, class: $class})
OPTIONAL MATCH (e:%s {index: $name, class: $class})
DETACH DELETE e, i
RETURN DISTINCT $name AS deleted`, indexLabel, entryLabel)
	return r.expectOne(ctx, fmt.Sprintf("%s index %s", class, name), query,
		map[string]any{"name": name, "class": string(class)})
}

// IndexKeys returns the keys in use in a manual index, or the keys an
// automatic index is restricted to. An unrestricted automatic index returns
// no keys.
func (r *Resource) IndexKeys(ctx context.Context, class neomodel.ElementKind, name string) ([]string, error) {
	meta, err := r.indexMeta(ctx, class, name)
	if err != nil {
		return nil, err
	}
	if meta.kind == neomodel.Automatic {
		return meta.keys, nil
	}
	query := fmt.Sprintf("MATCH (e:%s {index: $name, class: $class}) RETURN DISTINCT e.key AS key", entryLabel)
	res, err := r.run(ctx, query, map[string]any{"name": name, "class": string(class)})
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(res.Records))
	for _, rec := range res.Records {
		if k, ok := rec.Get("key"); ok {
			keys = append(keys, cast.ToString(k))
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// RebuildIndex is only valid for automatic indices. Their lookups read live
// properties, so there is nothing to regenerate; the index description is
// returned.
func (r *Resource) RebuildIndex(ctx context.Context, class neomodel.ElementKind, name string) (*neomodel.Response, error) {
	meta, err := r.indexMeta(ctx, class, name)
	if err != nil {
		return nil, err
	}
	if meta.kind != neomodel.Automatic {
		return nil, neomodel.NewTransportError(neomodel.CategoryBadRequest, 0,
			fmt.Sprintf("%s index %s is not automatic", class, name), nil)
	}
	return r.GetIndex(ctx, class, name)
}

func (r *Resource) PutIndexEntry(ctx context.Context, class neomodel.ElementKind, name, key string, value any, id neomodel.ID) (*neomodel.Response, error) {
	meta, err := r.indexMeta(ctx, class, name)
	if err != nil {
		return nil, err
	}
	if meta.kind != neomodel.Manual {
		return nil, neomodel.NewTransportError(neomodel.CategoryBadRequest, 0,
			fmt.Sprintf("%s index %s is not manual", class, name), nil)
	}
	query := fmt.Sprintf(`CREATE (e:%s {index: $name, class: $class, key: $key, value: $value, element: $id})
RETURN e {.*} AS entry`, entryLabel)
	params := map[string]any{"name": name, "class": string(class), "key": key, "value": value, "id": string(id)}
	res, err := r.run(ctx, query, params)
	if err != nil {
		return nil, err
	}
	return decode(res), nil
}

// elementMatch returns the MATCH clause binding x to the live element of
// the class whose id is e.element.
func (r *Resource) elementMatch(class neomodel.ElementKind) string {
	if class == neomodel.EdgeKind {
		return "MATCH ()-[x]->() WHERE elementId(x) = e.element"
	}
	return fmt.Sprintf("MATCH (x:%s) WHERE elementId(x) = e.element", quote(r.vertexLabel))
}

// manualLookup returns the clauses binding x to every live element at
// key/value in a manual index.
func (r *Resource) manualLookup(class neomodel.ElementKind) string {
	return fmt.Sprintf("MATCH (e:%s {index: $name, class: $class, key: $key, value: $value}) ", entryLabel) +
		r.elementMatch(class)
}

// automaticLookup builds the Cypher binding x to every element whose key
// property equals value, returning ret. It returns "" when the index does
// not cover key.
func (r *Resource) automaticLookup(class neomodel.ElementKind, meta *indexMeta, key string, value any, ret string) (string, map[string]any, error) {
	if len(meta.keys) > 0 && !contains(meta.keys, key) {
		return "", nil, nil
	}
	// The builder writes keys and labels unescaped.
	if class == neomodel.VertexKind && ret == "x" && identifier.MatchString(key) && identifier.MatchString(r.vertexLabel) {
		return gocypher.NewQueryBuilder().
			Match(gocypher.N("x", r.vertexLabel).WithProperties(map[string]any{key: value})).
			Return("x").
			Build()
	}
	query := fmt.Sprintf("MATCH (x:%s) WHERE x[$key] = $value", quote(r.vertexLabel))
	if class == neomodel.EdgeKind {
		query = "MATCH ()-[x]->() WHERE x[$key] = $value"
		if key == r.labelVar {
			query = "MATCH ()-[x]->() WHERE type(x) = $value"
		}
	}
	return query + " RETURN " + ret, map[string]any{"key": key, "value": value}, nil
}

// LookupIndex returns the live elements indexed at key/value.
func (r *Resource) LookupIndex(ctx context.Context, class neomodel.ElementKind, name, key string, value any) (*neomodel.Response, error) {
	meta, err := r.indexMeta(ctx, class, name)
	if err != nil {
		return nil, err
	}

	var query string
	var params map[string]any
	if meta.kind == neomodel.Manual {
		query = r.manualLookup(class) + " RETURN x"
		params = map[string]any{"name": name, "class": string(class), "key": key, "value": value}
	} else {
		query, params, err = r.automaticLookup(class, meta, key, value, "x")
		if err != nil {
			return nil, fmt.Errorf("build lookup query: %w", err)
		}
		if query == "" {
			return neomodel.NewResponse(nil, nil, nil, 0), nil
		}
	}

	res, err := r.run(ctx, query, params)
	if err != nil {
		return nil, err
	}
	return decode(res), nil
}

// CountIndex counts the live elements indexed at key/value.
func (r *Resource) CountIndex(ctx context.Context, class neomodel.ElementKind, name, key string, value any) (int, error) {
	meta, err := r.indexMeta(ctx, class, name)
	if err != nil {
		return 0, err
	}

	var query string
	var params map[string]any
	if meta.kind == neomodel.Manual {
		query = r.manualLookup(class) + " RETURN count(x) AS total"
		params = map[string]any{"name": name, "class": string(class), "key": key, "value": value}
	} else {
		query, params, err = r.automaticLookup(class, meta, key, value, "count(x) AS total")
		if err != nil {
			return 0, fmt.Errorf("build count query: %w", err)
		}
		if query == "" {
			return 0, nil
		}
	}

	res, err := r.run(ctx, query, params)
	if err != nil {
		return 0, err
	}
	if len(res.Records) == 0 {
		return 0, nil
	}
	total, _ := res.Records[0].Get("total")
	return cast.ToIntE(total)
}

// RemoveIndexEntry removes the element's entries from a manual index. An
// empty key removes the entries at every key, and a nil value those at every
// value.
func (r *Resource) RemoveIndexEntry(ctx context.Context, class neomodel.ElementKind, name string, id neomodel.ID, key string, value any) (*neomodel.Response, error) {
	query := fmt.Sprintf(`MATCH (e:%s {index: $name, class: $class, element: $id})
WHERE ($key IS NULL OR e.key = $key) AND ($value IS NULL OR e.value = $value)
WITH e, e {.*} AS entry
DELETE e
RETURN entry`, entryLabel)
	params := map[string]any{"name": name, "class": string(class), "id": string(id), "key": nilIfEmpty(key), "value": value}
	res, err := r.run(ctx, query, params)
	if err != nil {
		return nil, err
	}
	return decode(res), nil
}

// putEntries replaces the element's entries at the given keys with entries.
func (r *Resource) putEntries(ctx context.Context, class neomodel.ElementKind, name string, id neomodel.ID, entries map[string]any) error {
	keys := make([]string, 0, len(entries))
	rows := make([]map[string]any, 0, len(entries))
	for _, k := range sortedKeys(entries) {
		keys = append(keys, k)
		if v, ok := indexable(entries[k]); ok {
			rows = append(rows, map[string]any{"key": k, "value": v})
		}
	}
	query := fmt.Sprintf(`MATCH (i:%s {name: $name, class: $class})
OPTIONAL MATCH (old:%s {index: $name, class: $class, element: $id}) WHERE old.key IN $keys
DELETE old
WITH DISTINCT i
UNWIND $entries AS entry
CREATE (:%s {index: $name, class: $class, key: entry.key, value: entry.value, element: $id})
RETURN count(*) AS created`, indexLabel, entryLabel, entryLabel)
	params := map[string]any{"name": name, "class": string(class), "id": string(id), "keys": keys, "entries": rows}
	res, err := r.run(ctx, query, params)
	if err != nil {
		return err
	}
	if len(rows) > 0 {
		created := 0
		if len(res.Records) > 0 {
			v, _ := res.Records[0].Get("created")
			created = cast.ToInt(v)
		}
		if created == 0 {
			return notFound("%s index %s not found", class, name)
		}
	}
	return nil
}

func (r *Resource) indexElement(ctx context.Context, class neomodel.ElementKind, resp *neomodel.Response, index string, entries map[string]any) (*neomodel.Response, error) {
	res := resp.One()
	if res == nil {
		return nil, neomodel.ErrEmptyResponse
	}
	if err := r.putEntries(ctx, class, index, res.ID(), entries); err != nil {
		return nil, fmt.Errorf("index %s %s: %w", class, res.ID(), err)
	}
	return resp, nil
}

func (r *Resource) CreateIndexedVertex(ctx context.Context, data map[string]any, index string, keys []string) (*neomodel.Response, error) {
	resp, err := r.CreateVertex(ctx, data)
	if err != nil {
		return nil, err
	}
	return r.indexElement(ctx, neomodel.VertexKind, resp, index, selectKeys(data, keys))
}

func (r *Resource) UpdateIndexedVertex(ctx context.Context, id neomodel.ID, data map[string]any, index string, keys []string) (*neomodel.Response, error) {
	resp, err := r.UpdateVertex(ctx, id, data)
	if err != nil {
		return nil, err
	}
	return r.indexElement(ctx, neomodel.VertexKind, resp, index, selectKeys(data, keys))
}

// CreateIndexedEdge creates the edge and indexes it, including its label
// under the configured label key.
func (r *Resource) CreateIndexedEdge(ctx context.Context, outV neomodel.ID, label string, inV neomodel.ID, data map[string]any, index string, keys []string) (*neomodel.Response, error) {
	resp, err := r.CreateEdge(ctx, outV, label, inV, data)
	if err != nil {
		return nil, err
	}
	entries := selectKeys(data, keys)
	entries[r.labelVar] = label
	return r.indexElement(ctx, neomodel.EdgeKind, resp, index, entries)
}

func (r *Resource) UpdateIndexedEdge(ctx context.Context, id neomodel.ID, data map[string]any, index string, keys []string) (*neomodel.Response, error) {
	resp, err := r.UpdateEdge(ctx, id, data)
	if err != nil {
		return nil, err
	}
	return r.indexElement(ctx, neomodel.EdgeKind, resp, index, selectKeys(data, keys))
}

// RunScript is not supported: Neo4j servers do not evaluate Gremlin.
func (r *Resource) RunScript(ctx context.Context, script string, params map[string]any) (*neomodel.Response, error) {
	return nil, fmt.Errorf("gremlin scripts on neo4j: %w", neomodel.ErrUnsupported)
}

// Query runs a Cypher statement.
func (r *Resource) Query(ctx context.Context, query string, params map[string]any) (*neomodel.Response, error) {
	res, err := r.run(ctx, query, params)
	if err != nil {
		return nil, err
	}
	return decode(res), nil
}

func selectKeys(data map[string]any, keys []string) map[string]any {
	out := make(map[string]any)
	if keys == nil {
		for k, v := range data {
			out[k] = v
		}
		return out
	}
	for _, k := range keys {
		if v, ok := data[k]; ok {
			out[k] = v
		}
	}
	return out
}

// indexable reports whether v can be stored as an entry value. Nil, lists
// and maps are not indexed.
func indexable(v any) (any, bool) {
	switch v.(type) {
	case nil, []any, map[string]any:
		return nil, false
	}
	return v, true
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nonNil(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
