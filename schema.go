package neomodel

import "fmt"

// ElementKind distinguishes vertices from edges.
type ElementKind string

const (
	VertexKind ElementKind = "vertex"
	EdgeKind   ElementKind = "edge"
)

// Schema is the frozen, ordered property table of one element type. The
// schema name is the discriminator value: the element type of a node, or the
// label of a relationship.
type Schema struct {
	kind   ElementKind
	name   string
	props  []*Property
	byName map[string]int
}

// DefineNode builds the schema of a node type. It fails with a *SchemaError
// when a property name is declared twice.
func DefineNode(elementType string, props ...Property) (*Schema, error) {
	return define(VertexKind, elementType, nil, props)
}

// DefineRelationship builds the schema of a relationship type whose label is
// label.
func DefineRelationship(label string, props ...Property) (*Schema, error) {
	return define(EdgeKind, label, nil, props)
}

// MustDefineNode is like DefineNode but panics on error. It is meant for
// package-level schema variables.
func MustDefineNode(elementType string, props ...Property) *Schema {
	s, err := DefineNode(elementType, props...)
	if err != nil {
		panic(err)
	}
	return s
}

// MustDefineRelationship is like DefineRelationship but panics on error.
func MustDefineRelationship(label string, props ...Property) *Schema {
	s, err := DefineRelationship(label, props...)
	if err != nil {
		panic(err)
	}
	return s
}

// Extend derives a new schema of the same kind from s. The parent table is
// copied, then props are applied: a name inherited from s is overridden in
// place, a new name is appended. s itself is not modified.
func (s *Schema) Extend(name string, props ...Property) (*Schema, error) {
	return define(s.kind, name, s, props)
}

func define(kind ElementKind, name string, parent *Schema, props []Property) (*Schema, error) {
	if name == "" {
		return nil, &SchemaError{Schema: name, Err: fmt.Errorf("%s schema needs a name", kind)}
	}
	s := &Schema{kind: kind, name: name, byName: make(map[string]int)}
	if parent != nil {
		s.props = make([]*Property, len(parent.props))
		copy(s.props, parent.props)
		for k, v := range parent.byName {
			s.byName[k] = v
		}
	}

	declared := make(map[string]bool, len(props))
	for i := range props {
		p := props[i]
		if p.name == "" {
			return nil, &SchemaError{Schema: name, Err: fmt.Errorf("property %d has no name", i)}
		}
		if declared[p.name] {
			return nil, &SchemaError{Schema: name, Property: p.name, Err: ErrDuplicateProperty}
		}
		declared[p.name] = true

		if idx, ok := s.byName[p.name]; ok {
			s.props[idx] = &p
			continue
		}
		s.byName[p.name] = len(s.props)
		s.props = append(s.props, &p)
	}
	return s, nil
}

// Kind reports whether the schema describes vertices or edges.
func (s *Schema) Kind() ElementKind { return s.kind }

// Name returns the element type of a node schema or the label of a
// relationship schema.
func (s *Schema) Name() string { return s.name }

// Len returns the number of properties.
func (s *Schema) Len() int { return len(s.props) }

// Property returns the named property.
func (s *Schema) Property(name string) (*Property, bool) {
	idx, ok := s.byName[name]
	if !ok {
		return nil, false
	}
	return s.props[idx], true
}

// Properties returns the properties in declaration order, inherited first.
func (s *Schema) Properties() []*Property {
	out := make([]*Property, len(s.props))
	copy(out, s.props)
	return out
}

// Names returns the property names in declaration order.
func (s *Schema) Names() []string {
	out := make([]string, len(s.props))
	for i, p := range s.props {
		out[i] = p.name
	}
	return out
}
