package neomodel

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// DataType is the wire datatype tag of a declared property.
type DataType int

const (
	Null DataType = iota
	String
	Integer
	Float
	Bool
	List
	Map
)

// String returns the tag name of the DataType.
func (d DataType) String() string {
	switch d {
	case Null:
		return "null"
	case String:
		return "string"
	case Integer:
		return "int"
	case Float:
		return "float"
	case Bool:
		return "bool"
	case List:
		return "list"
	case Map:
		return "map"
	default:
		return fmt.Sprintf("DataType(%d)", int(d))
	}
}

// ParseDataType returns the DataType for a tag name as produced by String.
func ParseDataType(name string) (DataType, error) {
	switch name {
	case "null":
		return Null, nil
	case "string":
		return String, nil
	case "int", "integer":
		return Integer, nil
	case "float":
		return Float, nil
	case "bool":
		return Bool, nil
	case "list":
		return List, nil
	case "map", "dict":
		return Map, nil
	}
	return Null, fmt.Errorf("unknown datatype %q", name)
}

// convert dispatches v to the Converter method for this DataType.
func (d DataType) convert(c Converter, v any) (any, error) {
	switch d {
	case Null:
		return c.ToNull(v)
	case String:
		return c.ToString(v)
	case Integer:
		return c.ToInteger(v)
	case Float:
		return c.ToFloat(v)
	case Bool:
		return c.ToBool(v)
	case List:
		return c.ToList(v)
	case Map:
		return c.ToMap(v)
	}
	return nil, fmt.Errorf("%w: datatype %s", ErrUnsupportedValue, d)
}

// InferType returns the DataType of a value from its runtime representation.
// It is used for properties of schema-less elements.
func InferType(v any) (DataType, error) {
	if v == nil {
		return Null, nil
	}
	if _, ok := v.(json.Number); ok {
		return Float, nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return String, nil
	case reflect.Bool:
		return Bool, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return Integer, nil
	case reflect.Float32, reflect.Float64:
		return Float, nil
	case reflect.Slice, reflect.Array:
		return List, nil
	case reflect.Map:
		if rv.Type().Key().Kind() == reflect.String {
			return Map, nil
		}
	}
	return Null, fmt.Errorf("%w: %T", ErrUnsupportedValue, v)
}

// Validator checks a domain value before it is serialized.
type Validator func(value any) error

// Property describes one declared field of an element type. Properties are
// immutable once their schema is built.
type Property struct {
	name        string
	datatype    DataType
	def         any
	defaultFunc func() any
	validator   Validator
	required    bool
}

// PropertyOption configures a Property.
type PropertyOption func(*Property)

// WithDefault sets the value a new element receives when the field is not
// supplied.
func WithDefault(v any) PropertyOption {
	return func(p *Property) { p.def = v }
}

// WithDefaultFunc sets a function producing the default value for each new
// element.
func WithDefaultFunc(fn func() any) PropertyOption {
	return func(p *Property) { p.defaultFunc = fn }
}

// WithValidator sets a validation rule run on serialize.
func WithValidator(v Validator) PropertyOption {
	return func(p *Property) { p.validator = v }
}

// Required rejects nil values on serialize.
func Required() PropertyOption {
	return func(p *Property) { p.required = true }
}

// Prop declares a property.
func Prop(name string, datatype DataType, opts ...PropertyOption) Property {
	p := Property{name: name, datatype: datatype}
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

// Name returns the property name.
func (p *Property) Name() string { return p.name }

// DataType returns the declared type of the property.
func (p *Property) DataType() DataType { return p.datatype }

// IsRequired reports whether a nil value fails validation.
func (p *Property) IsRequired() bool { return p.required }

// Default returns the default value for a new element, or nil.
func (p *Property) Default() any {
	if p.defaultFunc != nil {
		return p.defaultFunc()
	}
	return p.def
}

// validate runs the required check and the validator against v.
func (p *Property) validate(schema string, v any) error {
	if v == nil {
		if p.required {
			return &SchemaError{Schema: schema, Property: p.name, Err: ErrRequired}
		}
		return nil
	}
	if p.validator == nil {
		return nil
	}
	if err := p.validator(v); err != nil {
		return &SchemaError{Schema: schema, Property: p.name, Err: fmt.Errorf("%w: %w", ErrValidation, err)}
	}
	return nil
}
