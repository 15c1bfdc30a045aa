// Package scripts loads named Gremlin script templates and renders them into
// scripts ready to send to a server.
//
// A template file is a YAML mapping of names to Groovy method definitions:
//
//	create_indexed_vertex: |
//	  def create_indexed_vertex(data, index_name, keys) {
//	    ...
//	  }
//
// Rendering a template appends a call to the method with every parameter
// substituted as a quoted Groovy literal.
package scripts

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"math"
	"os"
	"reflect"
	"regexp"
	"slices"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrUnknownScript is returned by Get for a name with no template.
var ErrUnknownScript = errors.New("unknown script")

// ScriptDefinitionError reports a template whose first line is not a Groovy
// method signature of the form "def name(args) {".
type ScriptDefinitionError struct {
	Name string
	Line string
}

func (e *ScriptDefinitionError) Error() string {
	return fmt.Sprintf("script %q: first line %q is not a method definition", e.Name, e.Line)
}

var signature = regexp.MustCompile(`^def\s+([A-Za-z_]\w*)\s*\(([^)]*)\)\s*\{\s*$`)

// Script is one parsed template.
type Script struct {
	Name   string
	Params []string
	Body   string
}

// Templates is a set of named scripts.
type Templates struct {
	scripts map[string]*Script
}

// New returns an empty set.
func New() *Templates {
	return &Templates{scripts: make(map[string]*Script)}
}

// Load reads a YAML template file.
func Load(r io.Reader) (*Templates, error) {
	raw := make(map[string]string)
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode scripts: %w", err)
	}

	t := New()
	for _, name := range slices.Sorted(maps.Keys(raw)) {
		s, err := parse(name, raw[name])
		if err != nil {
			return nil, err
		}
		t.scripts[name] = s
	}
	return t, nil
}

// LoadFile reads a YAML template file from disk.
func LoadFile(path string) (*Templates, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open scripts: %w", err)
	}
	defer f.Close()
	return Load(f)
}

func parse(name, source string) (*Script, error) {
	source = strings.TrimSpace(source)
	first, _, _ := strings.Cut(source, "\n")
	first = strings.TrimSpace(first)

	m := signature.FindStringSubmatch(first)
	if m == nil || m[1] != name {
		return nil, &ScriptDefinitionError{Name: name, Line: first}
	}

	var params []string
	for _, p := range strings.Split(m[2], ",") {
		if p = strings.TrimSpace(p); p != "" {
			params = append(params, p)
		}
	}
	return &Script{Name: name, Params: params, Body: source}, nil
}

// Override replaces or adds every script of other.
func (t *Templates) Override(other *Templates) {
	for name, s := range other.scripts {
		t.scripts[name] = s
	}
}

// Names returns the script names, sorted.
func (t *Templates) Names() []string {
	names := make([]string, 0, len(t.scripts))
	for name := range t.scripts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Script returns the named template.
func (t *Templates) Script(name string) (*Script, bool) {
	s, ok := t.scripts[name]
	return s, ok
}

// Get renders the named script: its definition followed by a call whose
// arguments are params, in signature order, as Groovy literals. Every
// parameter of the signature must be present in params.
func (t *Templates) Get(name string, params map[string]any) (string, error) {
	s, ok := t.scripts[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownScript, name)
	}

	args := make([]string, 0, len(s.Params))
	for _, p := range s.Params {
		v, ok := params[p]
		if !ok {
			return "", fmt.Errorf("script %s: missing parameter %q", name, p)
		}
		lit, err := Literal(v)
		if err != nil {
			return "", fmt.Errorf("script %s: parameter %q: %w", name, p, err)
		}
		args = append(args, lit)
	}

	var b strings.Builder
	b.WriteString(s.Body)
	b.WriteString("\n")
	b.WriteString(s.Name)
	b.WriteString("(")
	b.WriteString(strings.Join(args, ", "))
	b.WriteString(")")
	return b.String(), nil
}

// Literal renders v as a Groovy literal. Strings are single-quoted, lists
// become [a, b] and maps ['k': v], with keys in sorted order.
func Literal(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "null", nil
	case string:
		return quote(x), nil
	case bool:
		return strconv.FormatBool(x), nil
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return "", fmt.Errorf("cannot render %v", x)
		}
		return strconv.FormatFloat(x, 'g', -1, 64), nil
	case float32:
		return Literal(float64(x))
	case json.Number:
		if _, err := x.Float64(); err != nil {
			return "", fmt.Errorf("cannot render number %q", x.String())
		}
		return x.String(), nil
	case fmt.Stringer:
		return quote(x.String()), nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10), nil
	case reflect.String:
		return quote(rv.String()), nil
	case reflect.Slice, reflect.Array:
		items := make([]string, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			lit, err := Literal(rv.Index(i).Interface())
			if err != nil {
				return "", err
			}
			items = append(items, lit)
		}
		return "[" + strings.Join(items, ", ") + "]", nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return "", fmt.Errorf("map keys must be strings, got %s", rv.Type().Key())
		}
		if rv.Len() == 0 {
			return "[:]", nil
		}
		keys := make([]string, 0, rv.Len())
		for _, k := range rv.MapKeys() {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)
		items := make([]string, 0, len(keys))
		for _, k := range keys {
			lit, err := Literal(rv.MapIndex(reflect.ValueOf(k).Convert(rv.Type().Key())).Interface())
			if err != nil {
				return "", err
			}
			items = append(items, quote(k)+": "+lit)
		}
		return "[" + strings.Join(items, ", ") + "]", nil
	}
	return "", fmt.Errorf("cannot render %T", v)
}

var quoter = strings.NewReplacer(`\`, `\\`, `'`, `\'`, "\n", `\n`, "\r", `\r`, "\t", `\t`)

func quote(s string) string {
	return "'" + quoter.Replace(s) + "'"
}
