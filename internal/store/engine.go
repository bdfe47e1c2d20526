// Package store implements the persistent Store the core depends on (§4.A):
// a typed map holding per-worker asset state, per-worker query-id sets, and
// the active registry, backed by an embedded key/value engine.
package store

import "errors"

// ErrNotFound is returned by Engine.Get when the key does not exist.
var ErrNotFound = errors.New("store: key not found")

// Engine is the minimal key/value contract the Store needs from its
// persistence layer (the spec treats the persistent engine itself as an
// opaque external collaborator; this is the seam between the two).
type Engine interface {
	Get(key []byte) ([]byte, error) // returns ErrNotFound if absent
	Put(key, value []byte) error
	WriteBatch(b *Batch) error
	Close() error
}

// Batch collects writes to be applied atomically via Engine.WriteBatch.
type Batch struct {
	entries []kv
}

type kv struct {
	key, value []byte
}

// Put stages a write in the batch.
func (b *Batch) Put(key, value []byte) {
	b.entries = append(b.entries, kv{key: key, value: value})
}

// Len reports the number of staged writes.
func (b *Batch) Len() int { return len(b.entries) }
