package store

import (
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
)

// LevelDBEngine is the production Engine backed by an embedded goleveldb
// database file, one per bothand process.
type LevelDBEngine struct {
	db *leveldb.DB
}

// OpenLevelDB opens (creating if absent) the database at path.
func OpenLevelDB(path string) (*LevelDBEngine, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("store: open leveldb at %s: %w", path, err)
	}
	return &LevelDBEngine{db: db}, nil
}

func (e *LevelDBEngine) Get(key []byte) ([]byte, error) {
	v, err := e.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get %q: %w", key, err)
	}
	return v, nil
}

func (e *LevelDBEngine) Put(key, value []byte) error {
	if err := e.db.Put(key, value, nil); err != nil {
		return fmt.Errorf("store: put %q: %w", key, err)
	}
	return nil
}

func (e *LevelDBEngine) WriteBatch(b *Batch) error {
	batch := new(leveldb.Batch)
	for _, entry := range b.entries {
		batch.Put(entry.key, entry.value)
	}
	if err := e.db.Write(batch, nil); err != nil {
		return fmt.Errorf("store: write batch: %w", err)
	}
	return nil
}

func (e *LevelDBEngine) Close() error {
	if err := e.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}
