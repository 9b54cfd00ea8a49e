package storage

import (
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// Transaction is a read-only, point-in-time view of a shard's store.
// The scanner uses it purely for its ttl index cursor; nothing in this
// package needs transactional writes, so there is no Commit.
type Transaction struct {
	engine *Engine
	snap   *leveldb.Snapshot
}

// Discard releases the snapshot. Safe to call multiple times.
func (tx *Transaction) Discard() {
	if tx.snap != nil {
		tx.snap.Release()
		tx.snap = nil
	}
}

// TTLCursor returns an iterator over ttl index entries whose
// expiration is at or before now, ordered by increasing expiration
// time. Callers drive it with Seek/Next, matching the scan-and-resume
// pattern the dispatch loop relies on.
func (tx *Transaction) TTLCursor(now int64) *Cursor {
	rng := &util.Range{
		Start: []byte{ttlPrefix},
		Limit: ttlScanBound(now),
	}
	return &Cursor{it: tx.snap.NewIterator(rng, nil)}
}

// Cursor walks the ttl index in expiration order.
type Cursor struct {
	it      iterator.Iterator
	started bool
}

// Seek positions the cursor at the first entry whose encoded key is
// >= resumeKey. Passing nil or an empty slice seeks to the beginning.
func (c *Cursor) Seek(resumeKey []byte) bool {
	c.started = true
	if len(resumeKey) == 0 {
		return c.it.First()
	}
	return c.it.Seek(resumeKey)
}

// Next advances the cursor and reports whether an entry is available.
func (c *Cursor) Next() bool {
	if !c.started {
		c.started = true
		return c.it.First()
	}
	return c.it.Next()
}

// Entry decodes the entry the cursor currently points at. Only valid
// after Seek or Next returned true.
func (c *Cursor) Entry() (TTLIndexEntry, error) {
	expireAt, dbID, _, err := decodeTTLKey(c.it.Key())
	if err != nil {
		return TTLIndexEntry{}, err
	}
	_, typeTag, priKey, err := decodeTTLValue(c.it.Value())
	if err != nil {
		return TTLIndexEntry{}, err
	}
	return TTLIndexEntry{DBID: dbID, TypeTag: typeTag, PriKey: priKey, ExpireAt: expireAt}, nil
}

// Key returns the raw encoded key the cursor is positioned at, used as
// an opaque resume token by the scanner.
func (c *Cursor) Key() []byte {
	return append([]byte(nil), c.it.Key()...)
}

// Close releases cursor resources.
func (c *Cursor) Close() {
	c.it.Release()
}
