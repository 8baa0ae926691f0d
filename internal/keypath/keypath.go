// Package keypath extracts values from arbitrary JSON-like document
// trees by dotted path, supporting the ".field", ".a.b", and ".arr[]"
// forms used by untyped secondary-index definitions.
package keypath

import (
	"fmt"
	"strings"
)

// Extract evaluates path against doc, which must be the result of
// unmarshaling JSON into any (so objects are map[string]any, arrays are
// []any). ".arr[]" fans out: Extract returns one result per element of
// the named array.
//
// Examples: "email", "address.city", "tags[]".
func Extract(doc any, path string) ([]any, error) {
	segments, err := parse(path)
	if err != nil {
		return nil, err
	}
	return walk([]any{doc}, segments)
}

type segment struct {
	field   string
	isArray bool
}

func parse(path string) ([]segment, error) {
	if path == "" {
		return nil, fmt.Errorf("keypath: empty path")
	}
	parts := strings.Split(strings.TrimPrefix(path, "."), ".")
	segments := make([]segment, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			return nil, fmt.Errorf("keypath: empty segment in %q", path)
		}
		seg := segment{field: p}
		if strings.HasSuffix(p, "[]") {
			seg.field = strings.TrimSuffix(p, "[]")
			seg.isArray = true
		}
		segments = append(segments, seg)
	}
	return segments, nil
}

func walk(values []any, segments []segment) ([]any, error) {
	if len(segments) == 0 {
		return values, nil
	}
	seg := segments[0]

	var next []any
	for _, v := range values {
		obj, ok := v.(map[string]any)
		if !ok {
			continue
		}
		field, present := obj[seg.field]
		if !present {
			continue
		}
		if seg.isArray {
			arr, ok := field.([]any)
			if !ok {
				continue
			}
			next = append(next, arr...)
			continue
		}
		next = append(next, field)
	}

	return walk(next, segments[1:])
}
