// Package lifecycle owns the single open store/engine pair for the life of
// the process: opening it at startup, closing it at shutdown, and the two
// administrative operations (/close, /clear) that the HTTP surface exposes
// directly over it.
package lifecycle

import (
	"fmt"
	"log"
	"sync"

	"github.com/gisman/bigcache/internal/cacheengine"
	"github.com/gisman/bigcache/internal/store"
)

// Controller is the exclusive owner of the open store handle. All other
// components reach the engine only through the reference Controller
// publishes; only Controller may close or replace the underlying store.
type Controller struct {
	path string

	mu     sync.RWMutex
	engine *cacheengine.Engine
	closed bool
}

// Open creates the store directory if absent, opens it, and returns a
// Controller ready to publish its Engine to the HTTP surface.
func Open(path string) (*Controller, error) {
	st, err := store.Open(path)
	if err != nil {
		return nil, err
	}
	return &Controller{path: path, engine: cacheengine.New(st)}, nil
}

// Engine returns the active engine. Its identity is stable across Clear:
// store.Store.Reset reopens the same handle in place, so a Clear never
// requires Controller to swap the pointer HTTP handlers hold.
func (c *Controller) Engine() (*cacheengine.Engine, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, cacheengine.ErrUnavailable
	}
	return c.engine, nil
}

// Shutdown closes the store. Logged once, per the requirement that
// lifecycle transitions are not silent.
func (c *Controller) Shutdown() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	err := c.engine.Close()
	c.closed = true
	log.Printf("lifecycle: store closed (%s)", c.path)
	return err
}

// Close implements the /close endpoint: identical to Shutdown, but named
// separately because it is reachable from an HTTP handler rather than only
// from process teardown.
func (c *Controller) Close() error {
	return c.Shutdown()
}

// Clear implements /clear: close the store, recursively remove its on-disk
// directory, and reopen a fresh empty store at the same path, resetting the
// counters alongside it. The engine is reset in place (the same *Engine
// stays published), the reopen completes before Clear returns, and the
// exclusive lock is held for the whole operation, so no Engine() call can
// observe a half-open Controller.
func (c *Controller) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return cacheengine.ErrUnavailable
	}
	if err := c.engine.Reset(); err != nil {
		return fmt.Errorf("lifecycle: clear: %w", err)
	}
	c.engine.ResetCounters()
	log.Printf("lifecycle: store cleared and reopened (%s)", c.path)
	return nil
}
