package neo4jserver

import (
	"errors"
	"fmt"
	"maps"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/saulfrancisco-ruizacevedo/go-neomodel"
)

// nodeResult is a vertex returned by Cypher.
type nodeResult struct {
	node neo4j.Node
}

func (r nodeResult) ID() neomodel.ID              { return neomodel.ID(r.node.ElementId) }
func (r nodeResult) Kind() neomodel.ElementKind   { return neomodel.VertexKind }
func (r nodeResult) URI() string                  { return "" }
func (r nodeResult) OutV() neomodel.ID            { return "" }
func (r nodeResult) InV() neomodel.ID             { return "" }
func (r nodeResult) Label() string                { return "" }
func (r nodeResult) Data() map[string]any         { return maps.Clone(r.node.Props) }
func (r nodeResult) Raw() any                     { return r.node }
func (r nodeResult) Get(key string) (any, bool) {
	switch key {
	case "labels":
		return r.node.Labels, true
	case "elementId":
		return r.node.ElementId, true
	}
	v, ok := r.node.Props[key]
	return v, ok
}

// relResult is an edge returned by Cypher.
type relResult struct {
	rel neo4j.Relationship
}

func (r relResult) ID() neomodel.ID            { return neomodel.ID(r.rel.ElementId) }
func (r relResult) Kind() neomodel.ElementKind { return neomodel.EdgeKind }
func (r relResult) URI() string                { return "" }
func (r relResult) OutV() neomodel.ID          { return neomodel.ID(r.rel.StartElementId) }
func (r relResult) InV() neomodel.ID           { return neomodel.ID(r.rel.EndElementId) }
func (r relResult) Label() string              { return r.rel.Type }
func (r relResult) Data() map[string]any       { return maps.Clone(r.rel.Props) }
func (r relResult) Raw() any                   { return r.rel }
func (r relResult) Get(key string) (any, bool) {
	switch key {
	case "type":
		return r.rel.Type, true
	case "elementId":
		return r.rel.ElementId, true
	}
	v, ok := r.rel.Props[key]
	return v, ok
}

// mapResult is a map projection, such as index metadata. It is not an
// element.
type mapResult struct {
	m map[string]any
}

func (r mapResult) ID() neomodel.ID {
	if v, ok := r.m["name"].(string); ok {
		return neomodel.ID(v)
	}
	return ""
}
func (r mapResult) Kind() neomodel.ElementKind { return "" }
func (r mapResult) URI() string                { return "" }
func (r mapResult) OutV() neomodel.ID          { return "" }
func (r mapResult) InV() neomodel.ID           { return "" }
func (r mapResult) Label() string              { return "" }
func (r mapResult) Data() map[string]any       { return maps.Clone(r.m) }
func (r mapResult) Raw() any                   { return r.m }
func (r mapResult) Get(key string) (any, bool) {
	v, ok := r.m[key]
	return v, ok
}

// decode normalizes an EagerResult into a Response. Every node,
// relationship, path member and map in every record becomes a Result, in
// record order; scalar values are left in the raw result.
func decode(eager *neo4j.EagerResult) *neomodel.Response {
	var results []neomodel.Result
	for _, record := range eager.Records {
		for _, value := range record.Values {
			results = appendValue(results, value)
		}
	}
	content := map[string]any{
		"keys":    eager.Keys,
		"records": len(eager.Records),
	}
	return neomodel.NewResponse(eager, content, results, -1)
}

func appendValue(results []neomodel.Result, value any) []neomodel.Result {
	switch v := value.(type) {
	case neo4j.Node:
		return append(results, nodeResult{node: v})
	case neo4j.Relationship:
		return append(results, relResult{rel: v})
	case neo4j.Path:
		for _, n := range v.Nodes {
			results = append(results, nodeResult{node: n})
		}
		for _, rel := range v.Relationships {
			results = append(results, relResult{rel: rel})
		}
	case map[string]any:
		return append(results, mapResult{m: v})
	case []any:
		for _, item := range v {
			results = appendValue(results, item)
		}
	}
	return results
}

// classify converts a driver error into a categorized TransportError.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var neoErr *neo4j.Neo4jError
	if errors.As(err, &neoErr) {
		return neomodel.NewTransportError(classifyCode(neoErr.Code), 0, neoErr.Msg, err)
	}
	return neomodel.NewTransportError(neomodel.CategoryServerError, 0, err.Error(), err)
}

func classifyCode(code string) neomodel.Category {
	switch {
	case strings.HasSuffix(code, "ConstraintValidationFailed"),
		strings.HasSuffix(code, "EquivalentSchemaRuleAlreadyExists"):
		return neomodel.CategoryConflict
	case strings.HasSuffix(code, "NotFound"):
		return neomodel.CategoryNotFound
	case strings.HasPrefix(code, "Neo.ClientError."):
		return neomodel.CategoryBadRequest
	}
	return neomodel.CategoryServerError
}

func notFound(format string, args ...any) error {
	return neomodel.NewTransportError(neomodel.CategoryNotFound, 0, fmt.Sprintf(format, args...), nil)
}
