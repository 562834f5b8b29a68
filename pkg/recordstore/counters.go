package recordstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// UpdateCounters applies additive updates to numeric fields nested at a
// dot-separated key path inside an object-shaped document, e.g.
//
//	store.UpdateCounters(ctx, "metadata", map[string]float64{"total_runs": 1})
//
// bumps metadata.total_runs by one. An empty docPath targets the document
// root. Missing intermediate objects and missing fields are created; a
// non-object along the path yields ErrNotAnObject and a non-numeric target
// field yields ErrNotANumber.
//
// The read-modify-write runs under one exclusive lock acquisition.
// Sequential calls therefore accumulate exactly; concurrent callers in
// separate processes serialize on the lock.
func (s *Store) UpdateCounters(ctx context.Context, docPath string, deltas map[string]float64) error {
	if len(deltas) == 0 {
		return nil
	}

	release, err := s.acquire(ctx, lockExclusive)
	if err != nil {
		return err
	}
	defer release()

	doc, err := s.readObjectLocked()
	if err != nil {
		return err
	}

	section, err := descend(doc, docPath)
	if err != nil {
		return fmt.Errorf("%w: %s in %s", err, docPath, s.path)
	}

	for field, delta := range deltas {
		switch current := section[field].(type) {
		case nil:
			section[field] = delta
		case float64:
			section[field] = current + delta
		default:
			return fmt.Errorf("%w: %s.%s in %s", ErrNotANumber, docPath, field, s.path)
		}
	}

	raw, err := marshalDocument(doc)
	if err != nil {
		return storageErr("encode", s.path, err)
	}
	return s.writeLocked(raw)
}

// readObjectLocked loads the document as an object. Callers hold the
// exclusive lock. Empty and (under CorruptReset) invalid files fall back to
// the default document, and a non-object default falls back to an empty
// object.
func (s *Store) readObjectLocked() (map[string]any, error) {
	data, err := os.ReadFile(s.path)
	if err != nil && !os.IsNotExist(err) {
		return nil, storageErr("read", s.path, err)
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return s.defaultObject(), nil
	}

	var doc map[string]any
	if jsonErr := json.Unmarshal(data, &doc); jsonErr != nil {
		if json.Valid(data) {
			return nil, fmt.Errorf("%w: document root in %s", ErrNotAnObject, s.path)
		}
		var discard any
		if err := s.recoverCorrupt(data, jsonErr, &discard); err != nil {
			return nil, err
		}
		return s.defaultObject(), nil
	}
	if doc == nil {
		doc = map[string]any{}
	}
	return doc, nil
}

// defaultObject decodes the default document as an object, or an empty
// object when the default has another shape.
func (s *Store) defaultObject() map[string]any {
	var doc map[string]any
	if err := json.Unmarshal(s.defaultDoc, &doc); err != nil || doc == nil {
		return map[string]any{}
	}
	return doc
}

// descend walks a dot-separated path of nested objects, creating missing
// levels, and returns the object at the end of the path.
func descend(doc map[string]any, path string) (map[string]any, error) {
	if path == "" {
		return doc, nil
	}

	current := doc
	for _, key := range strings.Split(path, ".") {
		switch child := current[key].(type) {
		case nil:
			next := map[string]any{}
			current[key] = next
			current = next
		case map[string]any:
			current = child
		default:
			return nil, ErrNotAnObject
		}
	}
	return current, nil
}
