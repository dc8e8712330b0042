// Package entry encodes and decodes the JSON-discipline cache record: an
// arbitrary JSON value plus an optional absolute expiration and an optional
// advisory duration literal. It knows nothing about the store or the clock;
// it only converts between a Record and the bytes that get put in the store.
package entry

import (
	"encoding/json"
	"fmt"

	"github.com/gisman/bigcache/internal/duration"
)

// ErrInvalidDuration is returned by Decode when the record's duration field
// is present but doesn't match the duration grammar.
var ErrInvalidDuration = fmt.Errorf("entry: invalid duration literal")

// Record is the logical shape of a JSON-discipline cache entry. Value is
// carried as json.RawMessage so this package stays payload-agnostic: it
// never inspects or re-encodes the caller's JSON tree.
type Record struct {
	Value    json.RawMessage `json:"value"`
	Expire   *float64        `json:"expire"`
	Duration *string         `json:"duration"`
}

// Encode produces the stable on-disk representation of a record. Absent
// fields are encoded as JSON null under their canonical names.
func Encode(value json.RawMessage, expire *float64, dur *string) ([]byte, error) {
	if len(value) == 0 {
		value = json.RawMessage("null")
	}
	return json.Marshal(Record{Value: value, Expire: expire, Duration: dur})
}

// Decode is Encode's inverse. It rejects a present duration field that
// doesn't match the duration grammar; expire may be encoded as either an
// integer or a real number, which json.Unmarshal into *float64 already
// handles.
func Decode(data []byte) (Record, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("entry: decode: %w", err)
	}
	if rec.Duration != nil && !duration.Valid(*rec.Duration) {
		return Record{}, fmt.Errorf("%w: %q", ErrInvalidDuration, *rec.Duration)
	}
	return rec, nil
}
