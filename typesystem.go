package neomodel

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"

	"github.com/spf13/cast"
)

// TypeSystem converts property values between their domain and wire forms.
// Both directions dispatch on the declared DataType of the property.
type TypeSystem interface {
	// ContentType is the media type of the wire encoding.
	ContentType() string

	// ToWire converts a domain value for storage on the backend.
	ToWire(p *Property, v any) (any, error)

	// ToDomain converts a value read from the backend.
	ToDomain(p *Property, v any) (any, error)
}

// Converter has one conversion method per DataType.
type Converter interface {
	ToString(v any) (any, error)
	ToInteger(v any) (any, error)
	ToFloat(v any) (any, error)
	ToBool(v any) (any, error)
	ToList(v any) (any, error)
	ToMap(v any) (any, error)
	ToNull(v any) (any, error)
}

// ConverterTypeSystem is a TypeSystem assembled from a Converter for each
// direction.
type ConverterTypeSystem struct {
	contentType string
	wire        Converter
	domain      Converter
}

// NewTypeSystem assembles a TypeSystem.
func NewTypeSystem(contentType string, wire, domain Converter) *ConverterTypeSystem {
	return &ConverterTypeSystem{contentType: contentType, wire: wire, domain: domain}
}

// JSONTypeSystem is permissive: wire values pass through once their
// representation is known, and wire values are coerced to the declared type.
func JSONTypeSystem() *ConverterTypeSystem {
	return NewTypeSystem("application/json", passthrough{}, coercing{})
}

// StrictTypeSystem rejects any value whose representation does not already
// match the declared type, in both directions.
func StrictTypeSystem() *ConverterTypeSystem {
	return NewTypeSystem("application/json", strict{}, strict{})
}

// ContentType returns the media type of the wire encoding.
func (ts *ConverterTypeSystem) ContentType() string { return ts.contentType }

// ToWire converts v with the wire Converter. nil stays nil.
func (ts *ConverterTypeSystem) ToWire(p *Property, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	return p.datatype.convert(ts.wire, v)
}

// ToDomain converts v with the domain Converter. nil stays nil.
func (ts *ConverterTypeSystem) ToDomain(p *Property, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	return p.datatype.convert(ts.domain, v)
}

// passthrough returns values unchanged after checking they have a wire
// representation.
type passthrough struct{}

func (passthrough) check(v any) (any, error) {
	if _, err := InferType(v); err != nil {
		return nil, err
	}
	return v, nil
}

func (c passthrough) ToString(v any) (any, error)  { return c.check(v) }
func (c passthrough) ToInteger(v any) (any, error) { return c.check(v) }
func (c passthrough) ToFloat(v any) (any, error)   { return c.check(v) }
func (c passthrough) ToBool(v any) (any, error)    { return c.check(v) }
func (c passthrough) ToList(v any) (any, error)    { return c.check(v) }
func (c passthrough) ToMap(v any) (any, error)     { return c.check(v) }
func (passthrough) ToNull(any) (any, error)        { return nil, nil }

// coercing converts wire values to the canonical domain representation.
type coercing struct{}

func (coercing) ToString(v any) (any, error) {
	switch v.(type) {
	case []any, map[string]any:
		return nil, fmt.Errorf("cannot coerce %T to string", v)
	}
	return cast.ToStringE(v)
}

func (coercing) ToInteger(v any) (any, error) {
	if f, ok := v.(float64); ok && f != math.Trunc(f) {
		return nil, fmt.Errorf("cannot coerce non-integral %v to int", f)
	}
	return cast.ToInt64E(v)
}

func (coercing) ToFloat(v any) (any, error) { return cast.ToFloat64E(v) }
func (coercing) ToBool(v any) (any, error)  { return cast.ToBoolE(v) }
func (coercing) ToNull(any) (any, error)    { return nil, nil }

func (coercing) ToMap(v any) (any, error) {
	m, err := cast.ToStringMapE(v)
	if err != nil {
		return nil, err
	}
	return NormalizeNumbers(m), nil
}

func (coercing) ToList(v any) (any, error) {
	l, err := (strict{}).ToList(v)
	if err != nil {
		if l, err = cast.ToSliceE(v); err != nil {
			return nil, err
		}
	}
	return NormalizeNumbers(l), nil
}

// NormalizeNumbers replaces every json.Number in v, including those nested
// in []any and map[string]any values, with an int64 or, when the number is
// not integral, a float64. Containers are copied; v is not modified.
func NormalizeNumbers(v any) any {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = NormalizeNumbers(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = NormalizeNumbers(e)
		}
		return out
	}
	return v
}

// strict accepts only values already of the declared kind. Integral JSON
// numbers are accepted as integers since JSON has a single number type.
type strict struct{}

func (strict) ToString(v any) (any, error) {
	if s, ok := v.(string); ok {
		return s, nil
	}
	return nil, fmt.Errorf("expected string, got %T", v)
}

func (strict) ToInteger(v any) (any, error) {
	switch n := v.(type) {
	case float64:
		if n != math.Trunc(n) {
			return nil, fmt.Errorf("expected int, got %v", n)
		}
		return int64(n), nil
	case json.Number:
		return n.Int64()
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return nil, fmt.Errorf("integer %d overflows int64", u)
		}
		return int64(u), nil
	}
	return nil, fmt.Errorf("expected int, got %T", v)
}

func (strict) ToFloat(v any) (any, error) {
	if n, ok := v.(json.Number); ok {
		return n.Float64()
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), nil
	}
	return nil, fmt.Errorf("expected float, got %T", v)
}

func (strict) ToBool(v any) (any, error) {
	if b, ok := v.(bool); ok {
		return b, nil
	}
	return nil, fmt.Errorf("expected bool, got %T", v)
}

func (strict) ToList(v any) (any, error) {
	if l, ok := v.([]any); ok {
		return l, nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("expected list, got %T", v)
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, nil
}

func (strict) ToMap(v any) (any, error) {
	if m, ok := v.(map[string]any); ok {
		return m, nil
	}
	return nil, fmt.Errorf("expected map, got %T", v)
}

func (strict) ToNull(v any) (any, error) {
	if v != nil {
		return nil, fmt.Errorf("expected null, got %T", v)
	}
	return nil, nil
}
