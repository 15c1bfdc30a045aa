package neomodel

import (
	"fmt"
	"reflect"
	"strings"
)

// entityMetadata holds the parsed `neo` tag information of a struct type.
// It is cached on the Graph to avoid costly reflection on every call.
type entityMetadata struct {
	Schema *Schema
	// IDField is the name of the struct field holding the element ID, or "".
	IDField string
	// Mappings maps struct field names to their property names.
	Mappings map[string]string
}

// parseTagsFromType inspects a struct type and builds a node schema from its
// `neo` struct tags. The tag format is
//
//	neo:"<property>[,<datatype>][,required]"
//
// where datatype is one of the DataType names and defaults to the one
// inferred from the field type. A field tagged `neo:",id"` receives the
// element ID and is not a property. Pointer fields map to the datatype of
// their element type, and a nil pointer is a nil property. Untagged fields
// are ignored.
func parseTagsFromType(typ reflect.Type, name string) (*entityMetadata, error) {
	if typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	if typ.Kind() != reflect.Struct {
		return nil, fmt.Errorf("type %s is not a struct", typ.Name())
	}
	if name == "" {
		name = typ.Name()
	}

	meta := &entityMetadata{Mappings: make(map[string]string)}
	var props []Property

	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		tag, ok := field.Tag.Lookup("neo")
		if !ok || tag == "-" {
			continue
		}

		parts := strings.Split(tag, ",")
		propName := parts[0]
		var opts []PropertyOption
		isID := false
		datatype := Null
		explicitType := false

		for _, part := range parts[1:] {
			switch part {
			case "id":
				isID = true
			case "required":
				opts = append(opts, Required())
			case "":
			default:
				dt, err := ParseDataType(part)
				if err != nil {
					return nil, fmt.Errorf("field %s: %w", field.Name, err)
				}
				datatype = dt
				explicitType = true
			}
		}

		if isID {
			if field.Type.Kind() != reflect.String {
				return nil, fmt.Errorf("id field %s must be a string or ID", field.Name)
			}
			meta.IDField = field.Name
			continue
		}
		if propName == "" {
			return nil, fmt.Errorf("field %s is missing a property name", field.Name)
		}
		if !explicitType {
			ft := field.Type
			if ft.Kind() == reflect.Ptr {
				ft = ft.Elem()
			}
			dt, err := InferType(reflect.Zero(ft).Interface())
			if err != nil || dt == Null {
				return nil, fmt.Errorf("field %s: cannot infer datatype of %s", field.Name, field.Type)
			}
			datatype = dt
		}

		props = append(props, Prop(propName, datatype, opts...))
		meta.Mappings[field.Name] = propName
	}

	s, err := DefineNode(name, props...)
	if err != nil {
		return nil, err
	}
	meta.Schema = s
	return meta, nil
}

// metadataFor returns the cached metadata for T, parsing it on first use.
func metadataFor[T any](g *Graph) (*entityMetadata, error) {
	typ := reflect.TypeFor[T]()
	if cached, ok := g.metaCache.Load(typ); ok {
		return cached.(*entityMetadata), nil
	}
	meta, err := parseTagsFromType(typ, "")
	if err != nil {
		return nil, err
	}
	g.metaCache.Store(typ, meta)
	return meta, nil
}

// SchemaFor builds the node schema described by the `neo` tags of T. The
// element type is name, or the struct name when name is empty.
func SchemaFor[T any](name string) (*Schema, error) {
	meta, err := parseTagsFromType(reflect.TypeFor[T](), name)
	if err != nil {
		return nil, err
	}
	return meta.Schema, nil
}

// structToFields reads the mapped fields of entity into property values.
func structToFields(entity any, meta *entityMetadata) map[string]any {
	val := reflect.ValueOf(entity).Elem()
	fields := make(map[string]any, len(meta.Mappings))
	for fieldName, propName := range meta.Mappings {
		f := val.FieldByName(fieldName)
		if f.Kind() == reflect.Ptr {
			if f.IsNil() {
				fields[propName] = nil
				continue
			}
			f = f.Elem()
		}
		fields[propName] = f.Interface()
	}
	return fields
}

// mapNodeToStruct populates a struct's fields from a Node, based on the
// parsed metadata. Nil properties leave the zero value.
func mapNodeToStruct(n *Node, entity any, meta *entityMetadata) error {
	val := reflect.ValueOf(entity).Elem()

	if meta.IDField != "" {
		val.FieldByName(meta.IDField).SetString(string(n.ID()))
	}
	for fieldName, propName := range meta.Mappings {
		field := val.FieldByName(fieldName)
		if !field.IsValid() || !field.CanSet() {
			continue
		}
		v, _ := n.Get(propName)
		if v == nil {
			field.Set(reflect.Zero(field.Type()))
			continue
		}
		rv, err := convertValue(reflect.ValueOf(v), field.Type())
		if err != nil {
			return fmt.Errorf("field %s: %w", fieldName, err)
		}
		field.Set(rv)
	}
	return nil
}

// convertValue converts v to type t, element-wise for slices and maps.
func convertValue(v reflect.Value, t reflect.Type) (reflect.Value, error) {
	if !v.IsValid() {
		return reflect.Zero(t), nil
	}
	if v.Type().AssignableTo(t) {
		return v, nil
	}
	switch {
	case t.Kind() == reflect.Ptr:
		ev, err := convertValue(v, t.Elem())
		if err != nil {
			return reflect.Value{}, err
		}
		p := reflect.New(t.Elem())
		p.Elem().Set(ev)
		return p, nil
	case t.Kind() == reflect.Slice && v.Kind() == reflect.Slice:
		out := reflect.MakeSlice(t, v.Len(), v.Len())
		for i := 0; i < v.Len(); i++ {
			ev, err := convertValue(reflect.ValueOf(v.Index(i).Interface()), t.Elem())
			if err != nil {
				return reflect.Value{}, err
			}
			out.Index(i).Set(ev)
		}
		return out, nil
	case t.Kind() == reflect.Map && v.Kind() == reflect.Map:
		out := reflect.MakeMapWithSize(t, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			ev, err := convertValue(reflect.ValueOf(iter.Value().Interface()), t.Elem())
			if err != nil {
				return reflect.Value{}, err
			}
			out.SetMapIndex(iter.Key().Convert(t.Key()), ev)
		}
		return out, nil
	case t.Kind() == reflect.Interface && v.Type().Implements(t):
		return v, nil
	case isNumeric(v.Kind()) && isNumeric(t.Kind()),
		v.Kind() == reflect.String && t.Kind() == reflect.String,
		v.Kind() == reflect.Bool && t.Kind() == reflect.Bool:
		return v.Convert(t), nil
	}
	return reflect.Value{}, fmt.Errorf("cannot convert %s to %s", v.Type(), t)
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
