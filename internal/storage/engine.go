package storage

import (
	"os"
	"sync/atomic"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

// Engine is the per-shard ordered key-value store backing a single
// database directory. It folds the primary key space and the TTL
// secondary index into one LevelDB instance so that a Set carrying an
// expiration is durable and visible to both in the same batch write.
//
// This intentionally stays much simpler than a full MVCC engine: the
// TTL index expiration engine only ever needs snapshot-consistent,
// ordered reads of the ttl keyspace plus point writes/deletes of the
// data keyspace, so a plain LevelDB batch gives us everything the
// contract in contracts.go asks for without a WAL/value-log split.
type Engine struct {
	dir    string
	ldb    *leveldb.DB
	mode   atomic.Int32
	closed atomic.Bool
}

// Open creates or reopens the shard's on-disk store at dir.
func Open(dir string) (*Engine, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	ldb, err := leveldb.OpenFile(dir, &opt.Options{
		Compression:           opt.SnappyCompression,
		BlockCacheCapacity:    64 * 1024 * 1024,
		WriteBuffer:           32 * 1024 * 1024,
		OpenFilesCacheCapacity: 50,
	})
	if err != nil {
		return nil, err
	}
	e := &Engine{dir: dir, ldb: ldb}
	return e, nil
}

// Mode reports whether the shard currently accepts local writes.
func (e *Engine) Mode() Mode { return Mode(e.mode.Load()) }

// SetMode is called by the replication manager when a shard is
// promoted to leader or demoted to follower.
func (e *Engine) SetMode(m Mode) { e.mode.Store(int32(m)) }

// IsOpen reports whether the shard is usable for reads and writes.
func (e *Engine) IsOpen() bool { return !e.closed.Load() }

// CurrentTime is the clock the scanner bounds its ttl cursor by. It is
// a method (not a free function) so that a future replica-aware clock
// source, or a fake clock in tests, can be substituted per shard.
func (e *Engine) CurrentTime() int64 { return time.Now().UnixMilli() }

// Set writes key's value under dbID, recording expireAtMillis (0 for
// no expiration) into the ttl index in the same atomic batch.
func (e *Engine) Set(dbID uint32, key, value []byte, typeTag uint8, expireAtMillis int64) error {
	if !e.IsOpen() {
		return ErrClosed
	}
	batch := new(leveldb.Batch)
	if err := e.stageOverwrite(batch, dbID, key); err != nil {
		return err
	}
	batch.Put(encodeDataKey(dbID, key), encodeRecord(record{typeTag: typeTag, expireAt: expireAtMillis, value: value}))
	if expireAtMillis > 0 {
		batch.Put(encodeTTLKey(expireAtMillis, dbID, key), encodeTTLValue(dbID, typeTag, key))
	}
	return e.ldb.Write(batch, nil)
}

// stageOverwrite removes a stale ttl index entry left behind by a
// previous Set of the same key with a different expiration, so the
// ttl keyspace never accumulates more than one live entry per key.
func (e *Engine) stageOverwrite(batch *leveldb.Batch, dbID uint32, key []byte) error {
	existing, err := e.ldb.Get(encodeDataKey(dbID, key), nil)
	if err == leveldb.ErrNotFound {
		return nil
	}
	if err != nil {
		return err
	}
	rec, err := decodeRecord(existing)
	if err != nil {
		return err
	}
	if rec.expireAt > 0 {
		batch.Delete(encodeTTLKey(rec.expireAt, dbID, key))
	}
	return nil
}

// Get returns the value, type tag and expiration (0 if none) for key.
func (e *Engine) Get(dbID uint32, key []byte) ([]byte, uint8, int64, error) {
	if !e.IsOpen() {
		return nil, 0, 0, ErrClosed
	}
	b, err := e.ldb.Get(encodeDataKey(dbID, key), nil)
	if err == leveldb.ErrNotFound {
		return nil, 0, 0, ErrNotFound
	}
	if err != nil {
		return nil, 0, 0, err
	}
	rec, err := decodeRecord(b)
	if err != nil {
		return nil, 0, 0, err
	}
	return rec.value, rec.typeTag, rec.expireAt, nil
}

// Delete removes key from the data keyspace. It intentionally leaves
// any ttl index entry in place: a scanner that later observes it will
// find the data key gone and treat the deletion as already complete,
// which is the idempotence the engine's at-least-once delivery model
// requires from callers anyway.
func (e *Engine) Delete(dbID uint32, key []byte) error {
	if !e.IsOpen() {
		return ErrClosed
	}
	return e.ldb.Delete(encodeDataKey(dbID, key), nil)
}

// BeginReadTx opens a consistent point-in-time read view for the
// scanner to walk the ttl index without racing concurrent writers.
func (e *Engine) BeginReadTx() (*Transaction, error) {
	if !e.IsOpen() {
		return nil, ErrClosed
	}
	snap, err := e.ldb.GetSnapshot()
	if err != nil {
		return nil, err
	}
	return &Transaction{engine: e, snap: snap}, nil
}

// Close releases the underlying LevelDB handle.
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	e.SetMode(ModeClosed)
	return e.ldb.Close()
}

// Destroy closes the engine and removes its on-disk directory,
// retiring the store permanently. Nothing in this repository calls it.
func (e *Engine) Destroy() error {
	if err := e.Close(); err != nil {
		return err
	}
	return os.RemoveAll(e.dir)
}
