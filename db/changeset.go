package db

import (
	"errors"

	"github.com/syndtr/goleveldb/leveldb"
)

// ErrDone is returned when a change set is used after Commit or Discard.
var ErrDone = errors.New("change set already committed or discarded")

type entry struct {
	value  []byte
	delete bool
}

// ChangeSet buffers writes on top of a snapshot. Reads see the buffered
// writes. Commit applies everything as one leveldb batch, Discard drops it.
// A ChangeSet is not safe for concurrent use.
type ChangeSet struct {
	db     *LevelDB
	snap   *leveldb.Snapshot
	writes map[string]entry
	done   bool
}

// Get returns the value for key, or ErrNotFound.
func (c *ChangeSet) Get(key []byte) ([]byte, error) {
	if c.done {
		return nil, ErrDone
	}
	if e, ok := c.writes[string(key)]; ok {
		if e.delete {
			return nil, ErrNotFound
		}
		return e.value, nil
	}
	v, err := c.snap.Get(key, nil)
	if err != nil {
		return nil, err
	}
	u := make([]byte, len(v))
	copy(u, v)
	return u, nil
}

// Has reports whether key exists.
func (c *ChangeSet) Has(key []byte) (bool, error) {
	_, err := c.Get(key)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// Put buffers a write.
func (c *ChangeSet) Put(key, value []byte) error {
	if c.done {
		return ErrDone
	}
	v := make([]byte, len(value))
	copy(v, value)
	c.writes[string(key)] = entry{value: v}
	return nil
}

// Delete buffers a deletion.
func (c *ChangeSet) Delete(key []byte) error {
	if c.done {
		return ErrDone
	}
	c.writes[string(key)] = entry{delete: true}
	return nil
}

// Pending returns the number of buffered writes and deletions.
func (c *ChangeSet) Pending() int {
	return len(c.writes)
}

// Commit writes every buffered change atomically and releases the snapshot.
func (c *ChangeSet) Commit() error {
	if c.done {
		return ErrDone
	}
	c.done = true
	defer c.snap.Release()

	if len(c.writes) == 0 {
		return nil
	}
	batch := new(leveldb.Batch)
	for k, e := range c.writes {
		if e.delete {
			batch.Delete([]byte(k))
		} else {
			batch.Put([]byte(k), e.value)
		}
	}
	return c.db.conn.Write(batch, nil)
}

// Discard drops every buffered change. Calling it after Commit is a no-op.
func (c *ChangeSet) Discard() {
	if c.done {
		return
	}
	c.done = true
	c.writes = nil
	c.snap.Release()
}
