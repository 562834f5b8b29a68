package recordstore

import (
	"fmt"
	"time"
)

// Field names managed by the store within a record.
const (
	// FieldID is the record identifier key.
	FieldID = "id"

	// FieldCreatedAt is the record creation timestamp key (RFC 3339).
	FieldCreatedAt = "created_at"
)

// Record is one entry in a list-shaped document. Payload fields are
// caller-defined; the store manages FieldID and FieldCreatedAt.
type Record map[string]any

// ID returns the record identifier, or "" when unset or not a string.
func (r Record) ID() string {
	id, _ := r[FieldID].(string)
	return id
}

// CreatedAt parses the record's creation timestamp. Returns the zero time
// when the field is missing or malformed.
func (r Record) CreatedAt() time.Time {
	raw, _ := r[FieldCreatedAt].(string)
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

// clone copies the record one level deep so stamping the identifier does not
// mutate the caller's map.
func (r Record) clone() Record {
	out := make(Record, len(r)+2)
	for k, v := range r {
		out[k] = v
	}
	return out
}

// idTimeLayout is the second-resolution layout for derived identifiers.
const idTimeLayout = "20060102T150405Z"

// nextID derives a timestamp identifier, suffixing a sequence number when
// called more than once in the same wall-clock second. Uniqueness holds
// within this process; two independent processes appending in the same
// second can still collide (a documented best-effort limit of the format).
func (s *Store) nextID(now time.Time) string {
	second := now.Format(idTimeLayout)

	s.idMu.Lock()
	defer s.idMu.Unlock()

	if second == s.idSecond {
		s.idSequence++
		return fmt.Sprintf("%s-%d", second, s.idSequence)
	}
	s.idSecond = second
	s.idSequence = 0
	return second
}
