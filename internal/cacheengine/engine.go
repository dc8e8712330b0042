// Package cacheengine is the semantic layer over the store and entry codec:
// TTL on write, expire-on-read, prefix delete, counters, and destructive
// reset. It knows nothing about HTTP; it speaks Go values in and out.
package cacheengine

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/gisman/bigcache/internal/duration"
	"github.com/gisman/bigcache/internal/entry"
	"github.com/gisman/bigcache/internal/store"
)

// deleteBatchSize bounds how many keys DeletePrefix buffers before issuing
// an atomic batch delete, so a prefix spanning millions of keys never holds
// them all in memory at once.
const deleteBatchSize = 1000

var (
	// ErrMiss is returned by Get/GetOpaque/Delete when the key is not present.
	ErrMiss = errors.New("cacheengine: miss")
	// ErrExpired is returned by Get when the key was present but past its
	// expiration; the stale entry has already been deleted as a side effect
	// by the time this is returned. GetOpaque never returns it: opaque
	// entries do not expire.
	ErrExpired = errors.New("cacheengine: expired")
	// ErrBadRequest is returned for malformed input: an empty prefix to
	// DeletePrefix, or a duration literal that fails to parse on Set.
	ErrBadRequest = errors.New("cacheengine: bad request")
	// ErrUnavailable wraps every store-level failure.
	ErrUnavailable = store.ErrUnavailable
)

// Record is a decoded JSON-discipline entry as returned by Get.
type Record struct {
	Value    json.RawMessage
	Expire   *float64
	Duration *string
}

// Counters tallies the four process-wide, monitoring-only outcomes. Fields
// are atomic.Int64 so increments never serialize with the data path they
// describe, per the concurrency model: a counter is an observability aid,
// not a consistency boundary.
type Counters struct {
	hit    int64Counter
	miss   int64Counter
	expire int64Counter
	delete int64Counter
}

// Snapshot is a point-in-time read of Counters plus the derived hit rate.
// Field tags fix the wire names at hit/miss/expire/delete/hit_rate, the
// documented /stat contract; the Go field names alone are not the contract.
type Snapshot struct {
	Hit     int64   `json:"hit"`
	Miss    int64   `json:"miss"`
	Expire  int64   `json:"expire"`
	Delete  int64   `json:"delete"`
	HitRate float64 `json:"hit_rate"` // percentage, two decimal digits' worth of precision
}

// Engine is the Cache Engine: a store handle, the request-coalescing group
// guarding reads, and the counters. The zero value is not usable; build one
// with New.
type Engine struct {
	st       *store.Store
	counters Counters
	reads    singleflight.Group
}

// New wraps an already-open store in a fresh Engine with zeroed counters.
func New(st *store.Store) *Engine {
	return &Engine{st: st}
}

// Set resolves duration (if present) into an authoritative expire, encodes
// the record, and writes it. The returned expire is what was actually
// stored, not merely echoed input.
func (e *Engine) Set(key string, value json.RawMessage, expire *float64, dur *string) (storedExpire *float64, err error) {
	if dur != nil {
		if !duration.Valid(*dur) {
			return nil, fmt.Errorf("%w: invalid duration %q", ErrBadRequest, *dur)
		}
		resolved, rerr := duration.Resolve(*dur, time.Now())
		if rerr != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadRequest, rerr)
		}
		secs := float64(resolved.UnixNano()) / float64(time.Second)
		expire = &secs
	}

	data, err := entry.Encode(value, expire, dur)
	if err != nil {
		return nil, fmt.Errorf("%w: encode: %v", ErrBadRequest, err)
	}
	if err := e.st.Put([]byte(key), data); err != nil {
		return nil, err
	}
	return expire, nil
}

// SetOpaque writes raw, uninterpreted bytes under key. Opaque entries never
// expire.
func (e *Engine) SetOpaque(key string, raw []byte) error {
	return e.st.Put([]byte(key), raw)
}

// Get performs a JSON-discipline read. A present-but-expired entry is
// deleted before ErrExpired is returned: the caller never observes a stale
// value, only the fact that it is gone.
func (e *Engine) Get(key string) (Record, error) {
	v, err, _ := e.reads.Do(key, func() (any, error) {
		return e.getUncoalesced(key)
	})
	if err != nil {
		return Record{}, err
	}
	return v.(Record), nil
}

func (e *Engine) getUncoalesced(key string) (Record, error) {
	data, found, err := e.st.Get([]byte(key))
	if err != nil {
		return Record{}, err
	}
	if !found {
		e.counters.miss.add(1)
		return Record{}, ErrMiss
	}

	rec, err := entry.Decode(data)
	if err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if rec.Expire != nil && *rec.Expire <= nowUnixSeconds() {
		e.counters.expire.add(1)
		if derr := e.st.Delete([]byte(key)); derr != nil {
			return Record{}, derr
		}
		return Record{}, ErrExpired
	}

	e.counters.hit.add(1)
	return Record{Value: rec.Value, Expire: rec.Expire, Duration: rec.Duration}, nil
}

// GetOpaque performs an opaque-discipline read: raw bytes, no expiration.
func (e *Engine) GetOpaque(key string) ([]byte, error) {
	data, found, err := e.st.Get([]byte(key))
	if err != nil {
		return nil, err
	}
	if !found {
		e.counters.miss.add(1)
		return nil, ErrMiss
	}
	e.counters.hit.add(1)
	return data, nil
}

// Delete checks for presence before deleting, so a caller can distinguish
// "nothing to delete" from a successful delete. The check and the delete
// are two separate store calls and are not atomic with respect to a
// concurrent writer, which may re-insert the key between them.
func (e *Engine) Delete(key string) error {
	_, found, err := e.st.Get([]byte(key))
	if err != nil {
		return err
	}
	if !found {
		return ErrMiss
	}
	if err := e.st.Delete([]byte(key)); err != nil {
		return err
	}
	e.counters.delete.add(1)
	return nil
}

// DeletePrefix removes every key starting with prefix, batching deletes at
// deleteBatchSize so an enormous prefix never holds its whole key set in
// memory. It returns the number of keys removed.
func (e *Engine) DeletePrefix(prefix string) (int64, error) {
	if prefix == "" {
		return 0, fmt.Errorf("%w: empty prefix", ErrBadRequest)
	}
	prefixBytes := []byte(prefix)

	var total int64
	cursor := prefixBytes
	for {
		keys, err := e.st.Iterate(cursor, deleteBatchSize)
		if err != nil {
			return total, err
		}

		var batch [][]byte
		ranOutOfPrefix := false
		for _, k := range keys {
			if !hasPrefix(k, prefixBytes) {
				ranOutOfPrefix = true
				break
			}
			batch = append(batch, k)
		}

		if len(batch) > 0 {
			if err := e.st.BatchDelete(batch); err != nil {
				return total, err
			}
			total += int64(len(batch))
		}

		if ranOutOfPrefix || len(keys) < deleteBatchSize {
			break
		}
		cursor = successor(keys[len(keys)-1])
	}

	if total > 0 {
		e.counters.delete.add(total)
	}
	return total, nil
}

// Count walks the entire keyspace. O(n); see store.Store.CountAll for the
// consistency caveat.
func (e *Engine) Count() (int64, error) {
	return e.st.CountAll()
}

// Stats returns a snapshot of the four counters plus the derived hit rate.
func (e *Engine) Stats() Snapshot {
	hit := e.counters.hit.load()
	miss := e.counters.miss.load()
	expire := e.counters.expire.load()
	del := e.counters.delete.load()

	var rate float64
	if hit+miss > 0 {
		rate = round2(100 * float64(hit) / float64(hit+miss))
	}

	return Snapshot{Hit: hit, Miss: miss, Expire: expire, Delete: del, HitRate: rate}
}

// Close releases the underlying store handle.
func (e *Engine) Close() error {
	return e.st.Close()
}

// Reset destroys and recreates the underlying store in place. Counters are
// not touched here; the Lifecycle Controller's Clear zeroes them separately
// with ResetCounters after the store reset succeeds.
func (e *Engine) Reset() error {
	return e.st.Reset()
}

// ResetCounters zeroes hit/miss/expire/delete. Exposed for the Lifecycle
// Controller's /clear path, which resets counters alongside the store.
func (e *Engine) ResetCounters() {
	e.counters.hit.store(0)
	e.counters.miss.store(0)
	e.counters.expire.store(0)
	e.counters.delete.store(0)
}

func hasPrefix(key, prefix []byte) bool {
	if len(key) < len(prefix) {
		return false
	}
	for i := range prefix {
		if key[i] != prefix[i] {
			return false
		}
	}
	return true
}

// successor returns the lexicographic successor of key, used to resume
// iteration just past the last key already consumed.
func successor(key []byte) []byte {
	out := make([]byte, len(key)+1)
	copy(out, key)
	return out
}

func nowUnixSeconds() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}

func round2(f float64) float64 {
	return float64(int64(f*100+0.5)) / 100
}
