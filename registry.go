package neomodel

// Registry caches indices by (class, name) and schemas by (kind, name) for
// one Graph. It is not safe for concurrent use, and nothing invalidates it
// except the caller: entries live until Invalidate, Reset, or an explicit
// delete through an IndexProxy.
type Registry struct {
	indices map[ElementKind]map[string]Index
	schemas map[ElementKind]map[string]*Schema
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		indices: make(map[ElementKind]map[string]Index),
		schemas: make(map[ElementKind]map[string]*Schema),
	}
}

// AddIndex caches idx under its class and name, replacing any previous entry.
func (r *Registry) AddIndex(idx Index) {
	m, ok := r.indices[idx.Class()]
	if !ok {
		m = make(map[string]Index)
		r.indices[idx.Class()] = m
	}
	m[idx.Name()] = idx
}

// Index returns the cached index.
func (r *Registry) Index(class ElementKind, name string) (Index, bool) {
	idx, ok := r.indices[class][name]
	return idx, ok
}

// Invalidate drops the cached index, if any.
func (r *Registry) Invalidate(class ElementKind, name string) {
	delete(r.indices[class], name)
}

// AddSchema caches s under its kind and name.
func (r *Registry) AddSchema(s *Schema) {
	m, ok := r.schemas[s.Kind()]
	if !ok {
		m = make(map[string]*Schema)
		r.schemas[s.Kind()] = m
	}
	m[s.Name()] = s
}

// Schema returns the cached schema.
func (r *Registry) Schema(kind ElementKind, name string) (*Schema, bool) {
	s, ok := r.schemas[kind][name]
	return s, ok
}

// Reset drops every cached index and schema.
func (r *Registry) Reset() {
	r.indices = make(map[ElementKind]map[string]Index)
	r.schemas = make(map[ElementKind]map[string]*Schema)
}
