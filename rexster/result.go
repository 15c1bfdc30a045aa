package rexster

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/saulfrancisco-ruizacevedo/go-neomodel"
	"github.com/spf13/cast"
)

// result is one Rexster JSON object. Element metadata lives in the
// underscore-prefixed fields.
type result struct {
	m map[string]any
}

func (r result) ID() neomodel.ID {
	id, err := neomodel.ToID(r.m["_id"])
	if err != nil {
		return ""
	}
	return id
}

func (r result) Kind() neomodel.ElementKind {
	switch cast.ToString(r.m["_type"]) {
	case "vertex":
		return neomodel.VertexKind
	case "edge":
		return neomodel.EdgeKind
	}
	return ""
}

func (r result) URI() string { return "" }

func (r result) OutV() neomodel.ID {
	id, _ := neomodel.ToID(r.m["_outV"])
	return id
}

func (r result) InV() neomodel.ID {
	id, _ := neomodel.ToID(r.m["_inV"])
	return id
}

func (r result) Label() string { return cast.ToString(r.m["_label"]) }

// Data returns every field that is not element metadata.
func (r result) Data() map[string]any {
	data := make(map[string]any, len(r.m))
	for k, v := range r.m {
		if strings.HasPrefix(k, "_") {
			continue
		}
		data[k] = v
	}
	return data
}

func (r result) Get(key string) (any, bool) {
	v, ok := r.m[key]
	return v, ok
}

func (r result) Raw() any { return r.m }

// parseReply classifies the reply by status and normalizes its envelope.
// A failed status becomes a *neomodel.TransportError carrying the server's
// message. Numbers are decoded as int64 when integral and float64 otherwise.
func parseReply(reply *Reply) (*neomodel.Response, error) {
	cat := neomodel.Classify(reply.StatusCode)

	content := map[string]any{}
	if len(bytes.TrimSpace(reply.Body)) > 0 {
		dec := json.NewDecoder(bytes.NewReader(reply.Body))
		dec.UseNumber()
		if err := dec.Decode(&content); err != nil {
			if cat != neomodel.CategorySuccess {
				return nil, neomodel.NewTransportError(cat, reply.StatusCode, string(reply.Body), nil)
			}
			return nil, fmt.Errorf("decode reply: %w", err)
		}
		content = neomodel.NormalizeNumbers(content).(map[string]any)
	}

	if cat != neomodel.CategorySuccess {
		return nil, neomodel.NewTransportError(cat, reply.StatusCode, errorMessage(content), nil)
	}

	var results []neomodel.Result
	switch v := content["results"].(type) {
	case map[string]any:
		results = append(results, result{m: v})
	case []any:
		for _, item := range v {
			if m, ok := item.(map[string]any); ok {
				results = append(results, result{m: m})
			}
		}
	}

	total := -1
	if n, ok := content["totalSize"]; ok {
		if t, err := cast.ToIntE(n); err == nil {
			total = t
		}
	}
	return neomodel.NewResponse(content, content, results, total), nil
}

func errorMessage(content map[string]any) string {
	for _, k := range []string{"message", "error"} {
		if s := cast.ToString(content[k]); s != "" {
			return s
		}
	}
	return ""
}
