package fountainstore

// document.go implements an untyped collection for callers who don't
// want a Go struct per document shape. A Document is whatever
// encoding/json produces for an arbitrary JSON value, and its secondary
// indexes are declared by dotted key path instead of a compile-time
// projector function.

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Fountain-Coach/Fountain-Store/internal/keypath"
)

// Document is an untyped JSON-like value. Object documents unmarshal as
// map[string]any; Collection[Document] stores whichever shape the
// caller puts in.
type Document = map[string]any

// OpenDocumentCollection opens an untyped collection named name, whose
// document id is the string value of its "id" field. Indexes declared
// through the DefineXKeyPathIndex helpers below are recorded in the
// store's manifest by field path, so unlike a typed Collection[T] -
// whose projector function is a Go closure the manifest can't
// reconstruct - they are rebuilt here automatically on every open. A
// caller that only ever uses DefineXKeyPathIndex never has to
// re-declare an index after a restart.
func OpenDocumentCollection(s *Store, name string) (*Collection[Document], error) {
	c, err := OpenCollection(s, name, documentID)
	if err != nil {
		return nil, err
	}
	if err := rebuildKeyPathIndexes(s, c, name); err != nil {
		return nil, err
	}
	return c, nil
}

// rebuildKeyPathIndexes re-declares every key-path index the manifest
// has on record for name, skipping ones c already has (because this
// Collection handle was served from the store's open-collection cache
// rather than freshly bootstrapped).
func rebuildKeyPathIndexes(s *Store, c *Collection[Document], name string) error {
	defs := s.manifestSt.State().IndexCatalog[name]
	for _, def := range defs {
		if c.hasIndexNamed(def.Name) {
			continue
		}
		var err error
		switch def.Kind {
		case "unique":
			err = DefineUniqueKeyPathIndex(c, def.Name, def.Field)
		case "multi":
			err = DefineMultiKeyPathIndex(c, def.Name, def.Field)
		case "fts":
			err = DefineFTSKeyPathIndex(c, def.Name, def.Field)
		case "vector":
			err = DefineVectorKeyPathIndex(c, def.Name, def.Field, def.Dim)
		default:
			continue
		}
		if err != nil {
			return fmt.Errorf("fountainstore: rebuilding index %q on %q: %w", def.Name, name, err)
		}
	}
	return nil
}

func documentID(doc Document) string {
	v, ok := doc["id"]
	if !ok {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// DefineUniqueKeyPathIndex declares a unique index over the value found
// at path (see internal/keypath for path syntax). OpenDocumentCollection
// re-declares it automatically on every future open; no caller action is
// needed after a restart.
func DefineUniqueKeyPathIndex(c *Collection[Document], name, path string) error {
	return c.DefineUniqueIndex(name, path, func(doc Document) (string, bool) {
		vals, err := keypath.Extract(doc, path)
		if err != nil || len(vals) == 0 {
			return "", false
		}
		return fmt.Sprint(vals[0]), true
	})
}

// DefineMultiKeyPathIndex declares a multi-valued index over path. A
// ".arr[]" path segment fans out into one index entry per element.
func DefineMultiKeyPathIndex(c *Collection[Document], name, path string) error {
	return c.DefineMultiIndex(name, path, func(doc Document) []string {
		vals, err := keypath.Extract(doc, path)
		if err != nil {
			return nil
		}
		keys := make([]string, 0, len(vals))
		for _, v := range vals {
			keys = append(keys, fmt.Sprint(v))
		}
		return keys
	})
}

// DefineFTSKeyPathIndex declares a full-text index over the
// whitespace-joined string value(s) found at path.
func DefineFTSKeyPathIndex(c *Collection[Document], name, path string) error {
	return c.DefineFTSIndex(name, path, func(doc Document) string {
		vals, err := keypath.Extract(doc, path)
		if err != nil {
			return ""
		}
		parts := make([]string, 0, len(vals))
		for _, v := range vals {
			parts = append(parts, fmt.Sprint(v))
		}
		return strings.Join(parts, " ")
	})
}

// DefineVectorKeyPathIndex declares a nearest-neighbor index over the
// numeric array found at path. Documents whose array doesn't decode to
// dim float64s are skipped by the index rather than rejected.
func DefineVectorKeyPathIndex(c *Collection[Document], name, path string, dim int) error {
	return c.DefineVectorIndex(name, path, dim, func(doc Document) []float64 {
		vals, err := keypath.Extract(doc, path)
		if err != nil || len(vals) != dim {
			return nil
		}
		vec := make([]float64, len(vals))
		for i, v := range vals {
			f, ok := toFloat64(v)
			if !ok {
				return nil
			}
			vec[i] = f
		}
		return vec
	})
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
