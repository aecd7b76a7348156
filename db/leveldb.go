package db

import (
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
	"go.uber.org/multierr"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = leveldb.ErrNotFound

// LevelDB wraps the actual LevelDB connection
type LevelDB struct {
	conn *leveldb.DB
	mem  storage.Storage // set for in-memory instances
}

// NewLevelDB opens (or creates) a LevelDB instance at the given path
func NewLevelDB(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &LevelDB{conn: db}, nil
}

// NewMemLevelDB opens a LevelDB instance backed by memory. Nothing survives Close.
func NewMemLevelDB() (*LevelDB, error) {
	mem := storage.NewMemStorage()
	db, err := leveldb.Open(mem, nil)
	if err != nil {
		return nil, multierr.Append(err, mem.Close())
	}
	return &LevelDB{conn: db, mem: mem}, nil
}

// Close safely closes the LevelDB connection
func (l *LevelDB) Close() error {
	err := l.conn.Close()
	if l.mem != nil {
		err = multierr.Append(err, l.mem.Close())
	}
	return err
}

// Put inserts or updates a key-value pair
func (l *LevelDB) Put(key, value []byte) error {
	return l.conn.Put(key, value, nil)
}

// Get retrieves the value for a given key
func (l *LevelDB) Get(key []byte) ([]byte, error) {
	return l.conn.Get(key, nil)
}

// NewIterator returns an iterator over every key starting with prefix.
// A nil prefix iterates the whole database.
func (l *LevelDB) NewIterator(prefix []byte) iterator.Iterator {
	if prefix == nil {
		return l.conn.NewIterator(nil, nil)
	}
	return l.conn.NewIterator(util.BytesPrefix(prefix), nil)
}

// Begin opens a change set reading from a snapshot of the current state.
func (l *LevelDB) Begin() (*ChangeSet, error) {
	snap, err := l.conn.GetSnapshot()
	if err != nil {
		return nil, err
	}
	return &ChangeSet{db: l, snap: snap, writes: map[string]entry{}}, nil
}
