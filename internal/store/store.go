package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"bothan/internal/asset"
	"bothan/internal/registry"
)

// Key layout, mirroring the spec's namespacing under a single "bothan::"
// root so the engine can be shared by unrelated processes without
// collision:
//
//	bothan::asset_store::{worker}::{id}   -> json(asset.Info)
//	bothan::query_id::{worker}            -> json([]string)
//	bothan::registry                      -> registry.Serialize output
//	bothan::registry_ipfs_hash            -> raw hash string
const keyRoot = "bothan::"

func assetKey(worker, id string) []byte {
	return []byte(keyRoot + "asset_store::" + worker + "::" + id)
}

func queryIDKey(worker string) []byte {
	return []byte(keyRoot + "query_id::" + worker)
}

var registryKey = []byte(keyRoot + "registry")
var registryIPFSHashKey = []byte(keyRoot + "registry_ipfs_hash")

// Error is the store's error type, distinguishing engine failures from a
// corrupt on-disk encoding so callers can tell "I/O broke" from "the data
// I wrote is not the data I'm reading back".
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("store: %s: %v", e.Op, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// Store is the persistent state the manager and workers share: the latest
// known value for every (worker, id) pair, each worker's active query-id
// set, and the currently-installed registry.
type Store struct {
	engine Engine

	workerLocksMu sync.Mutex
	workerLocks   map[string]*sync.Mutex
}

// New wraps engine in a Store.
func New(engine Engine) *Store {
	return &Store{engine: engine, workerLocks: make(map[string]*sync.Mutex)}
}

func (s *Store) lockFor(worker string) *sync.Mutex {
	s.workerLocksMu.Lock()
	defer s.workerLocksMu.Unlock()
	l, ok := s.workerLocks[worker]
	if !ok {
		l = &sync.Mutex{}
		s.workerLocks[worker] = l
	}
	return l
}

// GetAsset returns the last value a worker recorded for id. The second
// return value is false if nothing has ever been recorded; the caller
// (the price engine) treats that as Unsupported rather than an error.
func (s *Store) GetAsset(worker, id string) (asset.Info, bool, error) {
	raw, err := s.engine.Get(assetKey(worker, id))
	if errors.Is(err, ErrNotFound) {
		return asset.Info{}, false, nil
	}
	if err != nil {
		return asset.Info{}, false, &Error{Op: "get_asset", Err: err}
	}
	var info asset.Info
	if err := json.Unmarshal(raw, &info); err != nil {
		return asset.Info{}, false, &Error{Op: "get_asset: decode", Err: err}
	}
	return info, true, nil
}

// SetAssets persists a worker's freshly-fetched values in a single batch,
// so a fetch cycle either lands in full or not at all.
func (s *Store) SetAssets(worker string, infos []asset.Info) error {
	batch := new(Batch)
	for _, info := range infos {
		raw, err := json.Marshal(info)
		if err != nil {
			return &Error{Op: "set_assets: encode", Err: err}
		}
		batch.Put(assetKey(worker, info.ID), raw)
	}
	if batch.Len() == 0 {
		return nil
	}
	if err := s.engine.WriteBatch(batch); err != nil {
		return &Error{Op: "set_assets", Err: err}
	}
	return nil
}

// GetQueryIDs returns the query ids a worker is currently subscribed to or
// polling. An unset worker has an empty set, not an error.
func (s *Store) GetQueryIDs(worker string) (map[string]struct{}, error) {
	raw, err := s.engine.Get(queryIDKey(worker))
	if errors.Is(err, ErrNotFound) {
		return map[string]struct{}{}, nil
	}
	if err != nil {
		return nil, &Error{Op: "get_query_ids", Err: err}
	}
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, &Error{Op: "get_query_ids: decode", Err: err}
	}
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set, nil
}

// ComputeQueryIDDiff is the pure half of SetQueryIDs: given the previously
// stored set and the newly requested set, it reports which ids a worker
// must start and stop tracking.
func ComputeQueryIDDiff(old, newSet map[string]struct{}) (added, removed []string) {
	for id := range newSet {
		if _, ok := old[id]; !ok {
			added = append(added, id)
		}
	}
	for id := range old {
		if _, ok := newSet[id]; !ok {
			removed = append(removed, id)
		}
	}
	return added, removed
}

// SetQueryIDs installs newSet as worker's active query-id set and reports
// the added/removed diff against whatever was stored before. The
// read-modify-write is serialized per worker: two concurrent calls for the
// same worker must not interleave and silently drop one side's diff.
func (s *Store) SetQueryIDs(worker string, newSet map[string]struct{}) (added, removed []string, err error) {
	lock := s.lockFor(worker)
	lock.Lock()
	defer lock.Unlock()

	old, err := s.GetQueryIDs(worker)
	if err != nil {
		return nil, nil, err
	}
	added, removed = ComputeQueryIDDiff(old, newSet)

	ids := make([]string, 0, len(newSet))
	for id := range newSet {
		ids = append(ids, id)
	}
	raw, encErr := json.Marshal(ids)
	if encErr != nil {
		return nil, nil, &Error{Op: "set_query_ids: encode", Err: encErr}
	}
	if err := s.engine.Put(queryIDKey(worker), raw); err != nil {
		return nil, nil, &Error{Op: "set_query_ids", Err: err}
	}
	return added, removed, nil
}

// SetRegistry persists the active registry and the IPFS hash it was
// loaded from, if any.
func (s *Store) SetRegistry(v registry.Valid, ipfsHash string) error {
	raw, err := registry.Serialize(v.Signals())
	if err != nil {
		return &Error{Op: "set_registry: encode", Err: err}
	}
	if err := s.engine.Put(registryKey, raw); err != nil {
		return &Error{Op: "set_registry", Err: err}
	}
	if ipfsHash != "" {
		if err := s.engine.Put(registryIPFSHashKey, []byte(ipfsHash)); err != nil {
			return &Error{Op: "set_registry_ipfs_hash", Err: err}
		}
	}
	return nil
}

// GetRegistry loads and re-validates the currently installed registry.
func (s *Store) GetRegistry() (registry.Valid, error) {
	raw, err := s.engine.Get(registryKey)
	if errors.Is(err, ErrNotFound) {
		return registry.Valid{}, &Error{Op: "get_registry", Err: ErrNotFound}
	}
	if err != nil {
		return registry.Valid{}, &Error{Op: "get_registry", Err: err}
	}
	r, err := registry.Parse(raw)
	if err != nil {
		return registry.Valid{}, &Error{Op: "get_registry: parse", Err: err}
	}
	v, err := registry.Validate(r)
	if err != nil {
		return registry.Valid{}, &Error{Op: "get_registry: validate", Err: err}
	}
	return v, nil
}

// GetRegistryIPFSHash reports the hash the installed registry was loaded
// from. ok is false if the registry was installed from a local file or no
// registry has ever been installed.
func (s *Store) GetRegistryIPFSHash() (hash string, ok bool, err error) {
	raw, err := s.engine.Get(registryIPFSHashKey)
	if errors.Is(err, ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, &Error{Op: "get_registry_ipfs_hash", Err: err}
	}
	return string(raw), true, nil
}

// Close releases the underlying engine.
func (s *Store) Close() error {
	return s.engine.Close()
}
