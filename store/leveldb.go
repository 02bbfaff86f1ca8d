package store

import (
	"context"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
)

// LevelDB is the persisted Store, adapted from the node's chain database:
// same goleveldb handle, generalized from block/height keys to arbitrary
// digest keys.
type LevelDB struct {
	db *leveldb.DB
}

// NewLevelDB opens (or creates) a LevelDB database at path.
func NewLevelDB(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("store: open leveldb %q: %w", path, err)
	}
	return &LevelDB{db: db}, nil
}

func (l *LevelDB) Write(_ context.Context, key, value []byte) error {
	return l.db.Put(key, value, nil)
}

func (l *LevelDB) Read(_ context.Context, key []byte) ([]byte, bool, error) {
	val, err := l.db.Get(key, nil)
	if err == leveldb.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (l *LevelDB) Close() error {
	return l.db.Close()
}
