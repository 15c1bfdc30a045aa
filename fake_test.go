package neomodel

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"reflect"
	"slices"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeResult is a Result backed by plain fields.
type fakeResult struct {
	id     ID
	kind   ElementKind
	outV   ID
	inV    ID
	label  string
	data   map[string]any
	fields map[string]any
}

func (r *fakeResult) ID() ID               { return r.id }
func (r *fakeResult) Kind() ElementKind    { return r.kind }
func (r *fakeResult) URI() string          { return "fake://" + string(r.id) }
func (r *fakeResult) OutV() ID             { return r.outV }
func (r *fakeResult) InV() ID              { return r.inV }
func (r *fakeResult) Label() string        { return r.label }
func (r *fakeResult) Data() map[string]any { return maps.Clone(r.data) }
func (r *fakeResult) Raw() any             { return r }
func (r *fakeResult) Get(key string) (any, bool) {
	if v, ok := r.fields[key]; ok {
		return v, true
	}
	v, ok := r.data[key]
	return v, ok
}

type fakeEdge struct {
	outV, inV ID
	label     string
	data      map[string]any
}

type fakeEntry struct {
	key   string
	value any
	id    ID
}

type fakeIndex struct {
	kind    IndexKind
	keys    []string
	entries []fakeEntry
}

// fakeResource is an in-memory Resource. Stored data goes through a JSON
// round trip, so numbers come back as float64 the way they would from a
// JSON server.
type fakeResource struct {
	t        *testing.T
	labelVar string
	nextID   int
	vertices map[ID]map[string]any
	edges    map[ID]*fakeEdge
	indices  map[ElementKind]map[string]*fakeIndex

	// calls counts round trips per method.
	calls map[string]int
	// fail, when set, is returned by the next round trip.
	fail error
}

func newFakeResource(t *testing.T) *fakeResource {
	return &fakeResource{
		t:        t,
		labelVar: DefaultConfig().LabelVar,
		vertices: make(map[ID]map[string]any),
		edges:    make(map[ID]*fakeEdge),
		indices:  map[ElementKind]map[string]*fakeIndex{VertexKind: {}, EdgeKind: {}},
		calls:    make(map[string]int),
	}
}

var _ Resource = (*fakeResource)(nil)

func (f *fakeResource) roundTrip(name string) error {
	f.calls[name]++
	if err := f.fail; err != nil {
		f.fail = nil
		return err
	}
	return nil
}

func (f *fakeResource) total() int {
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *fakeResource) wire(data map[string]any) map[string]any {
	b, err := json.Marshal(data)
	require.NoError(f.t, err)
	out := make(map[string]any)
	require.NoError(f.t, json.Unmarshal(b, &out))
	return out
}

func (f *fakeResource) newID() ID {
	f.nextID++
	return ID(strconv.Itoa(f.nextID))
}

func notFoundError(what string) error {
	return NewTransportError(CategoryNotFound, 404, what+" not found", nil)
}

func (f *fakeResource) vertexResult(id ID) *fakeResult {
	return &fakeResult{id: id, kind: VertexKind, data: maps.Clone(f.vertices[id])}
}

func (f *fakeResource) edgeResult(id ID) *fakeResult {
	e := f.edges[id]
	return &fakeResult{id: id, kind: EdgeKind, outV: e.outV, inV: e.inV, label: e.label, data: maps.Clone(e.data)}
}

func one(r Result) *Response { return NewResponse(r, nil, []Result{r}, -1) }

func (f *fakeResource) CreateVertex(_ context.Context, data map[string]any) (*Response, error) {
	if err := f.roundTrip("CreateVertex"); err != nil {
		return nil, err
	}
	id := f.newID()
	f.vertices[id] = f.wire(data)
	return one(f.vertexResult(id)), nil
}

func (f *fakeResource) GetVertex(_ context.Context, id ID) (*Response, error) {
	if err := f.roundTrip("GetVertex"); err != nil {
		return nil, err
	}
	if _, ok := f.vertices[id]; !ok {
		return nil, notFoundError("vertex " + string(id))
	}
	return one(f.vertexResult(id)), nil
}

func (f *fakeResource) UpdateVertex(_ context.Context, id ID, data map[string]any) (*Response, error) {
	if err := f.roundTrip("UpdateVertex"); err != nil {
		return nil, err
	}
	if _, ok := f.vertices[id]; !ok {
		return nil, notFoundError("vertex " + string(id))
	}
	f.vertices[id] = f.wire(data)
	return one(f.vertexResult(id)), nil
}

func (f *fakeResource) DeleteVertex(_ context.Context, id ID) (*Response, error) {
	if err := f.roundTrip("DeleteVertex"); err != nil {
		return nil, err
	}
	if _, ok := f.vertices[id]; !ok {
		return nil, notFoundError("vertex " + string(id))
	}
	delete(f.vertices, id)
	for eid, e := range f.edges {
		if e.outV == id || e.inV == id {
			delete(f.edges, eid)
			f.dropEntries(EdgeKind, eid)
		}
	}
	f.dropEntries(VertexKind, id)
	return NewResponse(nil, nil, nil, 0), nil
}

func (f *fakeResource) dropEntries(class ElementKind, id ID) {
	for _, idx := range f.indices[class] {
		idx.entries = slices.DeleteFunc(idx.entries, func(e fakeEntry) bool { return e.id == id })
	}
}

func (f *fakeResource) CreateEdge(_ context.Context, outV ID, label string, inV ID, data map[string]any) (*Response, error) {
	if err := f.roundTrip("CreateEdge"); err != nil {
		return nil, err
	}
	return f.createEdge(outV, label, inV, data)
}

func (f *fakeResource) createEdge(outV ID, label string, inV ID, data map[string]any) (*Response, error) {
	if _, ok := f.vertices[outV]; !ok {
		return nil, notFoundError("vertex " + string(outV))
	}
	if _, ok := f.vertices[inV]; !ok {
		return nil, notFoundError("vertex " + string(inV))
	}
	if label == "" {
		return nil, NewTransportError(CategoryBadRequest, 400, "label is required", nil)
	}
	id := f.newID()
	f.edges[id] = &fakeEdge{outV: outV, inV: inV, label: label, data: f.wire(data)}
	return one(f.edgeResult(id)), nil
}

func (f *fakeResource) GetEdge(_ context.Context, id ID) (*Response, error) {
	if err := f.roundTrip("GetEdge"); err != nil {
		return nil, err
	}
	if _, ok := f.edges[id]; !ok {
		return nil, notFoundError("edge " + string(id))
	}
	return one(f.edgeResult(id)), nil
}

func (f *fakeResource) UpdateEdge(_ context.Context, id ID, data map[string]any) (*Response, error) {
	if err := f.roundTrip("UpdateEdge"); err != nil {
		return nil, err
	}
	e, ok := f.edges[id]
	if !ok {
		return nil, notFoundError("edge " + string(id))
	}
	e.data = f.wire(data)
	return one(f.edgeResult(id)), nil
}

func (f *fakeResource) DeleteEdge(_ context.Context, id ID) (*Response, error) {
	if err := f.roundTrip("DeleteEdge"); err != nil {
		return nil, err
	}
	if _, ok := f.edges[id]; !ok {
		return nil, notFoundError("edge " + string(id))
	}
	delete(f.edges, id)
	f.dropEntries(EdgeKind, id)
	return NewResponse(nil, nil, nil, 0), nil
}

func (f *fakeResource) Adjacent(_ context.Context, id ID, dir Direction, kind ElementKind, label string) (*Response, error) {
	if err := f.roundTrip("Adjacent"); err != nil {
		return nil, err
	}
	var results []Result
	for _, eid := range slices.Sorted(maps.Keys(f.edges)) {
		e := f.edges[eid]
		if label != "" && e.label != label {
			continue
		}
		var other ID
		switch {
		case (dir == Out || dir == Both) && e.outV == id:
			other = e.inV
		case (dir == In || dir == Both) && e.inV == id:
			other = e.outV
		default:
			continue
		}
		if kind == EdgeKind {
			results = append(results, f.edgeResult(eid))
		} else {
			results = append(results, f.vertexResult(other))
		}
	}
	return NewResponse(nil, nil, results, -1), nil
}

func indexResult(class ElementKind, name string, idx *fakeIndex) *fakeResult {
	return &fakeResult{fields: map[string]any{"name": name, "class": string(class), "type": string(idx.kind)}}
}

func (f *fakeResource) index(class ElementKind, name string) (*fakeIndex, error) {
	idx, ok := f.indices[class][name]
	if !ok {
		return nil, notFoundError(fmt.Sprintf("%s index %s", class, name))
	}
	return idx, nil
}

func (f *fakeResource) CreateIndex(_ context.Context, class ElementKind, name string, kind IndexKind, keys []string) (*Response, error) {
	if err := f.roundTrip("CreateIndex"); err != nil {
		return nil, err
	}
	if _, ok := f.indices[class][name]; ok {
		return nil, NewTransportError(CategoryConflict, 409, "index exists", nil)
	}
	idx := &fakeIndex{kind: kind, keys: keys}
	f.indices[class][name] = idx
	return one(indexResult(class, name, idx)), nil
}

func (f *fakeResource) GetIndex(_ context.Context, class ElementKind, name string) (*Response, error) {
	if err := f.roundTrip("GetIndex"); err != nil {
		return nil, err
	}
	idx, err := f.index(class, name)
	if err != nil {
		return nil, err
	}
	return one(indexResult(class, name, idx)), nil
}

func (f *fakeResource) DeleteIndex(_ context.Context, class ElementKind, name string) (*Response, error) {
	if err := f.roundTrip("DeleteIndex"); err != nil {
		return nil, err
	}
	if _, err := f.index(class, name); err != nil {
		return nil, err
	}
	delete(f.indices[class], name)
	return NewResponse(nil, nil, nil, 0), nil
}

func (f *fakeResource) IndexKeys(_ context.Context, class ElementKind, name string) ([]string, error) {
	if err := f.roundTrip("IndexKeys"); err != nil {
		return nil, err
	}
	idx, err := f.index(class, name)
	if err != nil {
		return nil, err
	}
	if idx.kind == Automatic {
		return idx.keys, nil
	}
	seen := make(map[string]bool)
	for _, e := range idx.entries {
		seen[e.key] = true
	}
	return slices.Sorted(maps.Keys(seen)), nil
}

func (f *fakeResource) RebuildIndex(_ context.Context, class ElementKind, name string) (*Response, error) {
	if err := f.roundTrip("RebuildIndex"); err != nil {
		return nil, err
	}
	idx, err := f.index(class, name)
	if err != nil {
		return nil, err
	}
	if idx.kind != Automatic {
		return nil, NewTransportError(CategoryBadRequest, 400, "not automatic", nil)
	}
	return NewResponse(nil, nil, f.elementsOf(class), -1), nil
}

func (f *fakeResource) elementsOf(class ElementKind) []Result {
	var out []Result
	if class == VertexKind {
		for _, id := range slices.Sorted(maps.Keys(f.vertices)) {
			out = append(out, f.vertexResult(id))
		}
		return out
	}
	for _, id := range slices.Sorted(maps.Keys(f.edges)) {
		out = append(out, f.edgeResult(id))
	}
	return out
}

func (f *fakeResource) PutIndexEntry(_ context.Context, class ElementKind, name, key string, value any, id ID) (*Response, error) {
	if err := f.roundTrip("PutIndexEntry"); err != nil {
		return nil, err
	}
	idx, err := f.index(class, name)
	if err != nil {
		return nil, err
	}
	if idx.kind != Manual {
		return nil, NewTransportError(CategoryBadRequest, 400, "not manual", nil)
	}
	idx.entries = append(idx.entries, fakeEntry{key: key, value: f.wireValue(value), id: id})
	return NewResponse(nil, nil, nil, 0), nil
}

func (f *fakeResource) wireValue(v any) any {
	return f.wire(map[string]any{"v": v})["v"]
}

func (f *fakeResource) matches(class ElementKind, name, key string, value any) ([]Result, error) {
	idx, err := f.index(class, name)
	if err != nil {
		return nil, err
	}
	value = f.wireValue(value)

	var out []Result
	if idx.kind == Manual {
		for _, e := range idx.entries {
			if e.key != key || !reflect.DeepEqual(e.value, value) {
				continue
			}
			if class == VertexKind {
				if _, ok := f.vertices[e.id]; ok {
					out = append(out, f.vertexResult(e.id))
				}
			} else if _, ok := f.edges[e.id]; ok {
				out = append(out, f.edgeResult(e.id))
			}
		}
		return out, nil
	}

	if len(idx.keys) > 0 && !slices.Contains(idx.keys, key) {
		return nil, nil
	}
	for _, r := range f.elementsOf(class) {
		fr := r.(*fakeResult)
		if class == EdgeKind && key == f.labelVar {
			if fr.label == value {
				out = append(out, r)
			}
			continue
		}
		if reflect.DeepEqual(fr.data[key], value) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeResource) LookupIndex(_ context.Context, class ElementKind, name, key string, value any) (*Response, error) {
	if err := f.roundTrip("LookupIndex"); err != nil {
		return nil, err
	}
	out, err := f.matches(class, name, key, value)
	if err != nil {
		return nil, err
	}
	return NewResponse(nil, nil, out, -1), nil
}

func (f *fakeResource) CountIndex(_ context.Context, class ElementKind, name, key string, value any) (int, error) {
	if err := f.roundTrip("CountIndex"); err != nil {
		return 0, err
	}
	out, err := f.matches(class, name, key, value)
	if err != nil {
		return 0, err
	}
	return len(out), nil
}

func (f *fakeResource) RemoveIndexEntry(_ context.Context, class ElementKind, name string, id ID, key string, value any) (*Response, error) {
	if err := f.roundTrip("RemoveIndexEntry"); err != nil {
		return nil, err
	}
	idx, err := f.index(class, name)
	if err != nil {
		return nil, err
	}
	value = f.wireValue(value)
	idx.entries = slices.DeleteFunc(idx.entries, func(e fakeEntry) bool {
		return e.id == id && (key == "" || e.key == key) && (value == nil || reflect.DeepEqual(e.value, value))
	})
	return NewResponse(nil, nil, nil, 0), nil
}

// reindex replaces the element's entries at the selected keys.
func (f *fakeResource) reindex(class ElementKind, name string, id ID, data map[string]any, keys []string) error {
	idx, err := f.index(class, name)
	if err != nil {
		return err
	}
	if keys == nil {
		keys = slices.Sorted(maps.Keys(data))
	}
	idx.entries = slices.DeleteFunc(idx.entries, func(e fakeEntry) bool {
		return e.id == id && slices.Contains(keys, e.key)
	})
	for _, k := range keys {
		if v, ok := data[k]; ok && v != nil {
			idx.entries = append(idx.entries, fakeEntry{key: k, value: f.wireValue(v), id: id})
		}
	}
	return nil
}

func (f *fakeResource) CreateIndexedVertex(_ context.Context, data map[string]any, index string, keys []string) (*Response, error) {
	if err := f.roundTrip("CreateIndexedVertex"); err != nil {
		return nil, err
	}
	if _, err := f.index(VertexKind, index); err != nil {
		return nil, err
	}
	id := f.newID()
	f.vertices[id] = f.wire(data)
	if err := f.reindex(VertexKind, index, id, data, keys); err != nil {
		return nil, err
	}
	return one(f.vertexResult(id)), nil
}

func (f *fakeResource) UpdateIndexedVertex(_ context.Context, id ID, data map[string]any, index string, keys []string) (*Response, error) {
	if err := f.roundTrip("UpdateIndexedVertex"); err != nil {
		return nil, err
	}
	if _, ok := f.vertices[id]; !ok {
		return nil, notFoundError("vertex " + string(id))
	}
	f.vertices[id] = f.wire(data)
	if err := f.reindex(VertexKind, index, id, data, keys); err != nil {
		return nil, err
	}
	return one(f.vertexResult(id)), nil
}

func (f *fakeResource) CreateIndexedEdge(_ context.Context, outV ID, label string, inV ID, data map[string]any, index string, keys []string) (*Response, error) {
	if err := f.roundTrip("CreateIndexedEdge"); err != nil {
		return nil, err
	}
	if _, err := f.index(EdgeKind, index); err != nil {
		return nil, err
	}
	resp, err := f.createEdge(outV, label, inV, data)
	if err != nil {
		return nil, err
	}
	id := resp.One().ID()
	if err := f.reindex(EdgeKind, index, id, data, keys); err != nil {
		return nil, err
	}
	idx := f.indices[EdgeKind][index]
	idx.entries = append(idx.entries, fakeEntry{key: f.labelVar, value: label, id: id})
	return resp, nil
}

func (f *fakeResource) UpdateIndexedEdge(_ context.Context, id ID, data map[string]any, index string, keys []string) (*Response, error) {
	if err := f.roundTrip("UpdateIndexedEdge"); err != nil {
		return nil, err
	}
	e, ok := f.edges[id]
	if !ok {
		return nil, notFoundError("edge " + string(id))
	}
	e.data = f.wire(data)
	if err := f.reindex(EdgeKind, index, id, data, keys); err != nil {
		return nil, err
	}
	return one(f.edgeResult(id)), nil
}

// RunScript understands two scripts: "vertices", returning every vertex
// and edge plus one non-element result, and "fail", which is rejected.
func (f *fakeResource) RunScript(_ context.Context, script string, _ map[string]any) (*Response, error) {
	if err := f.roundTrip("RunScript"); err != nil {
		return nil, err
	}
	switch script {
	case "vertices":
		results := f.elementsOf(VertexKind)
		results = append(results, &fakeResult{fields: map[string]any{"name": "not an element"}})
		results = append(results, f.elementsOf(EdgeKind)...)
		return NewResponse(nil, nil, results, -1), nil
	case "fail":
		return nil, NewTransportError(CategoryBadRequest, 400, "script rejected", nil)
	}
	return nil, fmt.Errorf("unknown script %q: %w", script, ErrUnsupported)
}

func (f *fakeResource) Query(ctx context.Context, query string, params map[string]any) (*Response, error) {
	return f.RunScript(ctx, query, params)
}

// newTestGraph returns a Graph over a fresh fakeResource.
func newTestGraph(t *testing.T, opts ...Option) (*Graph, *fakeResource) {
	t.Helper()
	f := newFakeResource(t)
	return NewGraph(f, opts...), f
}
