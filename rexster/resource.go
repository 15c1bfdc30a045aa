// Package rexster is the Rexster backend of neomodel. It speaks the Rexster
// REST API and runs compound operations as Gremlin scripts.
package rexster

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"net/http"
	"net/url"
	"sort"

	"github.com/saulfrancisco-ruizacevedo/go-neomodel"
	"github.com/saulfrancisco-ruizacevedo/go-neomodel/scripts"
	"github.com/spf13/cast"
	"go.uber.org/zap"
)

//go:embed gremlin.yaml
var gremlinYAML []byte

// DefaultScripts returns the built-in Gremlin templates.
func DefaultScripts() (*scripts.Templates, error) {
	return scripts.Load(bytes.NewReader(gremlinYAML))
}

// Resource implements neomodel.Resource over a Rexster server.
type Resource struct {
	transport Transport
	graph     string
	labelVar  string
	scripts   *scripts.Templates
	logger    *zap.Logger
}

// Option configures a Resource.
type Option func(*Resource)

// WithScripts overrides built-in templates with those of t.
func WithScripts(t *scripts.Templates) Option {
	return func(r *Resource) { r.scripts.Override(t) }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Resource) { r.logger = l }
}

// New creates a Resource for the graph cfg.Graph, reached through
// transport. Edge labels are indexed under cfg.LabelVar.
func New(transport Transport, cfg *neomodel.Config, opts ...Option) (*Resource, error) {
	templates, err := DefaultScripts()
	if err != nil {
		return nil, fmt.Errorf("load gremlin scripts: %w", err)
	}
	r := &Resource{
		transport: transport,
		graph:     cfg.Graph,
		labelVar:  cfg.LabelVar,
		scripts:   templates,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Open creates a Resource over an HTTPTransport built from cfg.
func Open(cfg *neomodel.Config, opts ...Option) (*Resource, error) {
	t, err := NewHTTPTransport(cfg)
	if err != nil {
		return nil, err
	}
	return New(t, cfg, opts...)
}

var _ neomodel.Resource = (*Resource)(nil)

func (r *Resource) path(parts ...string) string {
	p := "graphs/" + url.PathEscape(r.graph)
	for _, part := range parts {
		p += "/" + url.PathEscape(part)
	}
	return p
}

func (r *Resource) do(ctx context.Context, method, path string, params map[string]any) (*neomodel.Response, error) {
	reply, err := r.transport.Request(ctx, method, path, params)
	if err != nil {
		return nil, neomodel.NewTransportError(neomodel.CategoryServerError, 0, err.Error(), err)
	}
	return parseReply(reply)
}

func (r *Resource) CreateVertex(ctx context.Context, data map[string]any) (*neomodel.Response, error) {
	return r.do(ctx, http.MethodPost, r.path("vertices"), data)
}

func (r *Resource) GetVertex(ctx context.Context, id neomodel.ID) (*neomodel.Response, error) {
	return r.do(ctx, http.MethodGet, r.path("vertices", string(id)), nil)
}

func (r *Resource) UpdateVertex(ctx context.Context, id neomodel.ID, data map[string]any) (*neomodel.Response, error) {
	return r.do(ctx, http.MethodPut, r.path("vertices", string(id)), data)
}

func (r *Resource) DeleteVertex(ctx context.Context, id neomodel.ID) (*neomodel.Response, error) {
	return r.do(ctx, http.MethodDelete, r.path("vertices", string(id)), nil)
}

func (r *Resource) CreateEdge(ctx context.Context, outV neomodel.ID, label string, inV neomodel.ID, data map[string]any) (*neomodel.Response, error) {
	params := make(map[string]any, len(data)+3)
	for k, v := range data {
		params[k] = v
	}
	params["_outV"] = string(outV)
	params["_label"] = label
	params["_inV"] = string(inV)
	return r.do(ctx, http.MethodPost, r.path("edges"), params)
}

func (r *Resource) GetEdge(ctx context.Context, id neomodel.ID) (*neomodel.Response, error) {
	return r.do(ctx, http.MethodGet, r.path("edges", string(id)), nil)
}

func (r *Resource) UpdateEdge(ctx context.Context, id neomodel.ID, data map[string]any) (*neomodel.Response, error) {
	return r.do(ctx, http.MethodPut, r.path("edges", string(id)), data)
}

func (r *Resource) DeleteEdge(ctx context.Context, id neomodel.ID) (*neomodel.Response, error) {
	return r.do(ctx, http.MethodDelete, r.path("edges", string(id)), nil)
}

var adjacentPaths = map[neomodel.ElementKind]map[neomodel.Direction]string{
	neomodel.EdgeKind:   {neomodel.Out: "outE", neomodel.In: "inE", neomodel.Both: "bothE"},
	neomodel.VertexKind: {neomodel.Out: "out", neomodel.In: "in", neomodel.Both: "both"},
}

func (r *Resource) Adjacent(ctx context.Context, id neomodel.ID, dir neomodel.Direction, kind neomodel.ElementKind, label string) (*neomodel.Response, error) {
	segment, ok := adjacentPaths[kind][dir]
	if !ok {
		return nil, fmt.Errorf("unknown traversal %s/%s", kind, dir)
	}
	var params map[string]any
	if label != "" {
		params = map[string]any{"_label": label}
	}
	return r.do(ctx, http.MethodGet, r.path("vertices", string(id), segment), params)
}

// CreateIndex creates an index. Automatic indices may be restricted to
// keys.
func (r *Resource) CreateIndex(ctx context.Context, class neomodel.ElementKind, name string, kind neomodel.IndexKind, keys []string) (*neomodel.Response, error) {
	params := map[string]any{"class": string(class), "type": string(kind)}
	if kind == neomodel.Automatic && len(keys) > 0 {
		params["keys"] = queryValue(keys)
	}
	resp, err := r.do(ctx, http.MethodPost, r.path("indices", name), params)
	if err != nil {
		return nil, err
	}
	return normalizeIndex(resp), nil
}

// GetIndex fetches the index description. An index of another class is not
// found.
func (r *Resource) GetIndex(ctx context.Context, class neomodel.ElementKind, name string) (*neomodel.Response, error) {
	resp, err := r.do(ctx, http.MethodGet, r.path("indices", name), nil)
	if err != nil {
		return nil, err
	}
	resp = normalizeIndex(resp)
	if res := resp.One(); res != nil {
		if c, _ := res.Get("class"); c != string(class) {
			return nil, neomodel.NewTransportError(neomodel.CategoryNotFound, http.StatusNotFound,
				fmt.Sprintf("index %s holds %v, not %s", name, c, class), nil)
		}
	}
	return resp, nil
}

func (r *Resource) DeleteIndex(ctx context.Context, class neomodel.ElementKind, name string) (*neomodel.Response, error) {
	return r.do(ctx, http.MethodDelete, r.path("indices", name), nil)
}

func (r *Resource) IndexKeys(ctx context.Context, class neomodel.ElementKind, name string) ([]string, error) {
	resp, err := r.do(ctx, http.MethodGet, r.path("indices", name, "keys"), nil)
	if err != nil {
		return nil, err
	}
	raw, ok := resp.Get("results")
	if !ok || raw == nil {
		return nil, nil
	}
	keys, err := cast.ToStringSliceE(raw)
	if err != nil {
		return nil, fmt.Errorf("index %s keys: %w", name, err)
	}
	sort.Strings(keys)
	return keys, nil
}

// RebuildIndex reindexes every element of the class into an automatic
// index and returns the reindexed elements.
func (r *Resource) RebuildIndex(ctx context.Context, class neomodel.ElementKind, name string) (*neomodel.Response, error) {
	return r.script(ctx, "rebuild_index", map[string]any{"index_name": name, "index_class": string(class)})
}

func (r *Resource) PutIndexEntry(ctx context.Context, class neomodel.ElementKind, name, key string, value any, id neomodel.ID) (*neomodel.Response, error) {
	params := map[string]any{"key": key, "value": value, "id": string(id), "class": string(class)}
	return r.do(ctx, http.MethodPut, r.path("indices", name), params)
}

func (r *Resource) LookupIndex(ctx context.Context, class neomodel.ElementKind, name, key string, value any) (*neomodel.Response, error) {
	params := map[string]any{"key": key, "value": value}
	return r.do(ctx, http.MethodGet, r.path("indices", name), params)
}

func (r *Resource) CountIndex(ctx context.Context, class neomodel.ElementKind, name, key string, value any) (int, error) {
	params := map[string]any{"key": key, "value": value}
	resp, err := r.do(ctx, http.MethodGet, r.path("indices", name, "count"), params)
	if err != nil {
		return 0, err
	}
	return resp.TotalSize(), nil
}

// RemoveIndexEntry removes the element's entries. An empty key or a nil
// value widens the removal to every key or value.
func (r *Resource) RemoveIndexEntry(ctx context.Context, class neomodel.ElementKind, name string, id neomodel.ID, key string, value any) (*neomodel.Response, error) {
	params := map[string]any{"id": string(id), "class": string(class)}
	if key != "" {
		params["key"] = key
	}
	if value != nil {
		params["value"] = value
	}
	return r.do(ctx, http.MethodDelete, r.path("indices", name), params)
}

func (r *Resource) CreateIndexedVertex(ctx context.Context, data map[string]any, index string, keys []string) (*neomodel.Response, error) {
	return r.script(ctx, "create_indexed_vertex", map[string]any{
		"data":       nonNil(data),
		"index_name": index,
		"keys":       keysParam(keys),
	})
}

func (r *Resource) UpdateIndexedVertex(ctx context.Context, id neomodel.ID, data map[string]any, index string, keys []string) (*neomodel.Response, error) {
	return r.script(ctx, "update_indexed_vertex", map[string]any{
		"_id":        id,
		"data":       nonNil(data),
		"index_name": index,
		"keys":       keysParam(keys),
	})
}

func (r *Resource) CreateIndexedEdge(ctx context.Context, outV neomodel.ID, label string, inV neomodel.ID, data map[string]any, index string, keys []string) (*neomodel.Response, error) {
	return r.script(ctx, "create_indexed_edge", map[string]any{
		"outV":       outV,
		"label":      label,
		"inV":        inV,
		"data":       nonNil(data),
		"index_name": index,
		"keys":       keysParam(keys),
		"label_var":  r.labelVar,
	})
}

func (r *Resource) UpdateIndexedEdge(ctx context.Context, id neomodel.ID, data map[string]any, index string, keys []string) (*neomodel.Response, error) {
	return r.script(ctx, "update_indexed_edge", map[string]any{
		"_id":        id,
		"data":       nonNil(data),
		"index_name": index,
		"keys":       keysParam(keys),
	})
}

// script renders a named template and runs it.
func (r *Resource) script(ctx context.Context, name string, params map[string]any) (*neomodel.Response, error) {
	s, err := r.scripts.Get(name, params)
	if err != nil {
		return nil, err
	}
	return r.RunScript(ctx, s, nil)
}

// RunScript evaluates a Gremlin script on the server's Gremlin extension.
func (r *Resource) RunScript(ctx context.Context, script string, params map[string]any) (*neomodel.Response, error) {
	body := map[string]any{"script": script}
	if len(params) > 0 {
		body["params"] = params
	}
	r.logger.Debug("gremlin", zap.String("script", script))
	return r.do(ctx, http.MethodPost, r.path("tp", "gremlin"), body)
}

// Query is RunScript: Rexster's query language is Gremlin.
func (r *Resource) Query(ctx context.Context, query string, params map[string]any) (*neomodel.Response, error) {
	return r.RunScript(ctx, query, params)
}

// normalizeIndex rewrites index descriptions whose class is a Java type
// name, as older servers report it, to "vertex" or "edge".
func normalizeIndex(resp *neomodel.Response) *neomodel.Response {
	for res := range resp.Results() {
		m, ok := res.Raw().(map[string]any)
		if !ok {
			continue
		}
		m["class"] = string(indexClass(cast.ToString(m["class"])))
	}
	return resp
}

func indexClass(c string) neomodel.ElementKind {
	switch c {
	case "vertex", "com.tinkerpop.blueprints.pgm.Vertex", "com.tinkerpop.blueprints.Vertex":
		return neomodel.VertexKind
	case "edge", "com.tinkerpop.blueprints.pgm.Edge", "com.tinkerpop.blueprints.Edge":
		return neomodel.EdgeKind
	}
	return neomodel.ElementKind(c)
}

// keysParam renders a nil key list as Groovy null so that every key is
// indexed.
func keysParam(keys []string) any {
	if keys == nil {
		return nil
	}
	return keys
}

func nonNil(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
