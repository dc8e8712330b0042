// Package store is a thin facade over an embedded, ordered, disk-resident
// key/value engine (goleveldb, the LevelDB/Pebble/RocksDB family). It is the
// only package that imports the engine directly; everything above it speaks
// in terms of Get/Put/Delete/Iterate/BatchDelete and the single ErrUnavailable
// sentinel.
//
// Every exported operation runs on a single dedicated worker goroutine reached
// through a task queue, never on the caller's goroutine. This satisfies the
// offload discipline required of anything that fronts a blocking disk store
// with a cooperative network layer: a slow disk operation suspends only the
// caller that issued it, never unrelated requests.
package store

import (
	"fmt"
	"os"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	levelerrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// ErrUnavailable is returned for every engine-level failure: an open that
// can't acquire the directory, an operation against a closed handle, or an
// I/O error from the underlying engine. Callers must not depend on the
// wrapped detail; it exists for logs, not for clients.
var ErrUnavailable = fmt.Errorf("store: unavailable")

type task struct {
	fn   func() (any, error)
	resp chan result
}

type result struct {
	val any
	err error
}

// Store is a single open handle on one on-disk store directory. The zero
// value is not usable; construct one with Open.
type Store struct {
	path string

	mu     sync.RWMutex // guards closed; held briefly around task enqueue
	closed bool

	tasks  chan task
	stopCh chan struct{}
	wg     sync.WaitGroup

	db *leveldb.DB // touched only by the worker goroutine
}

// Open creates the store directory if absent and opens (or creates) the
// engine under it, then starts the worker goroutine that will execute every
// subsequent operation.
func Open(path string) (*Store, error) {
	db, err := openLevelDB(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrUnavailable, path, err)
	}

	s := &Store{
		path:   path,
		tasks:  make(chan task, 256),
		stopCh: make(chan struct{}),
		db:     db,
	}
	s.wg.Add(1)
	go s.run()
	return s, nil
}

func openLevelDB(path string) (*leveldb.DB, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, err
	}

	opts := &opt.Options{
		Compression: opt.SnappyCompression,
	}

	db, err := leveldb.OpenFile(path, opts)
	if levelerrors.IsCorrupted(err) {
		db, err = leveldb.RecoverFile(path, nil)
	}
	return db, err
}

func (s *Store) run() {
	defer s.wg.Done()
	for {
		select {
		case t := <-s.tasks:
			val, err := t.fn()
			t.resp <- result{val: val, err: err}
		case <-s.stopCh:
			return
		}
	}
}

// submit enqueues fn to run on the worker goroutine and blocks until it
// completes. The caller's goroutine suspends here; it never touches the
// engine directly.
func (s *Store) submit(fn func() (any, error)) (any, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, ErrUnavailable
	}
	resp := make(chan result, 1)
	s.tasks <- task{fn: fn, resp: resp}
	s.mu.RUnlock()

	r := <-resp
	if r.err != nil {
		return r.val, fmt.Errorf("%w: %v", ErrUnavailable, r.err)
	}
	return r.val, nil
}

// Get performs a point lookup. absent is reported via the bool return, not
// an error: a missing key is a first-class outcome, not a failure.
func (s *Store) Get(key []byte) (value []byte, found bool, err error) {
	v, err := s.submit(func() (any, error) {
		val, gerr := s.db.Get(key, nil)
		if gerr == leveldb.ErrNotFound {
			return nil, nil
		}
		if gerr != nil {
			return nil, gerr
		}
		out := make([]byte, len(val))
		copy(out, val)
		return out, nil
	})
	if err != nil {
		return nil, false, err
	}
	if v == nil {
		return nil, false, nil
	}
	return v.([]byte), true, nil
}

// Put overwrites key in place. Durability follows the engine's default:
// write-ahead logged, crash-safe up to the last successful Put.
func (s *Store) Put(key, value []byte) error {
	_, err := s.submit(func() (any, error) {
		return nil, s.db.Put(key, value, nil)
	})
	return err
}

// Delete is idempotent: deleting an absent key is not an error.
func (s *Store) Delete(key []byte) error {
	_, err := s.submit(func() (any, error) {
		derr := s.db.Delete(key, nil)
		if derr == leveldb.ErrNotFound {
			return nil, nil
		}
		return nil, derr
	})
	return err
}

// Iterate returns up to n keys in ascending byte order starting at the first
// key >= from. It does not materialize the whole keyspace: a caller wanting
// more keys re-issues Iterate with from set to the successor of the last key
// returned, which is what makes this restartable across separate worker
// submissions instead of holding one long-lived iterator open.
func (s *Store) Iterate(from []byte, n int) ([][]byte, error) {
	v, err := s.submit(func() (any, error) {
		iter := s.db.NewIterator(&util.Range{Start: from}, nil)
		defer iter.Release()

		keys := make([][]byte, 0, n)
		for len(keys) < n && iter.Next() {
			k := make([]byte, len(iter.Key()))
			copy(k, iter.Key())
			keys = append(keys, k)
		}
		if ierr := iter.Error(); ierr != nil {
			return nil, ierr
		}
		return keys, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([][]byte), nil
}

// CountAll walks the entire keyspace and returns the number of keys it saw.
// O(n) and offers no consistency guarantee against concurrent writers; it is
// a single pass over whatever the engine's iterator snapshot happens to see.
func (s *Store) CountAll() (int64, error) {
	v, err := s.submit(func() (any, error) {
		iter := s.db.NewIterator(nil, nil)
		defer iter.Release()

		var n int64
		for iter.Next() {
			n++
		}
		if ierr := iter.Error(); ierr != nil {
			return nil, ierr
		}
		return n, nil
	})
	if err != nil {
		return 0, err
	}
	return v.(int64), nil
}

// BatchDelete atomically deletes every key in keys in a single engine write.
func (s *Store) BatchDelete(keys [][]byte) error {
	if len(keys) == 0 {
		return nil
	}
	_, err := s.submit(func() (any, error) {
		batch := new(leveldb.Batch)
		for _, k := range keys {
			batch.Delete(k)
		}
		return nil, s.db.Write(batch, nil)
	})
	return err
}

// Close releases the engine handle. Subsequent operations fail with
// ErrUnavailable.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrUnavailable
	}

	resp := make(chan result, 1)
	s.tasks <- task{fn: func() (any, error) { return nil, s.db.Close() }, resp: resp}
	r := <-resp

	s.closed = true
	close(s.stopCh)
	s.wg.Wait()

	if r.err != nil {
		return fmt.Errorf("%w: close: %v", ErrUnavailable, r.err)
	}
	return nil
}

// Reset closes the engine, recursively removes every file under the store's
// directory, and reopens a fresh empty store at the same path. It returns
// only once the reopen has completed, so a caller that has received a nil
// error is guaranteed the same *Store is immediately usable again.
func (s *Store) Reset() error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrUnavailable
	}

	resp := make(chan result, 1)
	s.tasks <- task{fn: s.resetTask, resp: resp}
	s.mu.RUnlock()

	r := <-resp
	if r.err != nil {
		return fmt.Errorf("%w: reset: %v", ErrUnavailable, r.err)
	}
	return nil
}

// resetTask runs on the worker goroutine; it is the only place s.db is ever
// reassigned, so no synchronization beyond single-goroutine ownership is
// needed for that field.
func (s *Store) resetTask() (any, error) {
	if err := s.db.Close(); err != nil {
		return nil, fmt.Errorf("close before reset: %w", err)
	}
	if err := os.RemoveAll(s.path); err != nil {
		return nil, fmt.Errorf("remove store directory: %w", err)
	}
	db, err := openLevelDB(s.path)
	if err != nil {
		return nil, fmt.Errorf("reopen: %w", err)
	}
	s.db = db
	return nil, nil
}
