// Package dispatch implements the small set of Redis-compatible
// commands the server understands, plus the idempotent expiry check
// the ttl index engine calls back into once it has observed a key
// past its expiration.
package dispatch

import (
	"time"

	"tidekv/internal/segment"
	"tidekv/internal/storage"
	"tidekv/internal/ttlindex"
)

// Dispatcher resolves keys to shards and executes commands against
// the underlying storage engine. It implements ttlindex.CommandDispatcher.
type Dispatcher struct {
	segments *segment.Manager
}

// New returns a Dispatcher backed by segments.
func New(segments *segment.Manager) *Dispatcher {
	return &Dispatcher{segments: segments}
}

// ExpireKeyIfNeeded implements ttlindex.CommandDispatcher. It is the
// single place that turns a ttl index observation into an actual
// deletion, and it must remain idempotent: the same (key, type) pair
// may be observed more than once (duplicate scans across restarts,
// overlapping resume windows), so a key that is already gone, or whose
// live expiration no longer matches what the index entry implied, is
// treated as a no-op rather than an error.
func (d *Dispatcher) ExpireKeyIfNeeded(sess ttlindex.Session, priKey []byte, typeTag uint8) error {
	eng, err := d.segments.Engine(d.shardFor(priKey))
	if err != nil {
		return err
	}

	_, storedType, expireAt, err := eng.Get(sess.DBID(), priKey)
	if err == storage.ErrNotFound {
		return nil
	}
	if err != nil {
		return err
	}
	if storedType != typeTag {
		// The key was overwritten with a different type after the ttl
		// index entry was recorded; leave it alone.
		return nil
	}
	if expireAt == 0 || expireAt > time.Now().UnixMilli() {
		// The key's ttl was cleared or refreshed since the scan
		// observed it; nothing to do.
		return nil
	}
	return eng.Delete(sess.DBID(), priKey)
}

func (d *Dispatcher) shardFor(key []byte) ttlindex.ShardID {
	return d.segments.ShardFor(key)
}

// Set stores key with an optional ttl (0 means no expiration).
func (d *Dispatcher) Set(dbID uint32, key, value []byte, ttl time.Duration) error {
	eng, err := d.segments.Engine(d.shardFor(key))
	if err != nil {
		return err
	}
	var expireAt int64
	if ttl > 0 {
		expireAt = time.Now().Add(ttl).UnixMilli()
	}
	return eng.Set(dbID, key, value, 0, expireAt)
}

// Get returns key's value, or storage.ErrNotFound.
func (d *Dispatcher) Get(dbID uint32, key []byte) ([]byte, error) {
	eng, err := d.segments.Engine(d.shardFor(key))
	if err != nil {
		return nil, err
	}
	v, _, expireAt, err := eng.Get(dbID, key)
	if err != nil {
		return nil, err
	}
	if expireAt != 0 && expireAt <= time.Now().UnixMilli() {
		// Lazily honor an expiration the background engine hasn't
		// gotten to yet, same as a live Redis server would.
		return nil, storage.ErrNotFound
	}
	return v, nil
}

// Del removes key.
func (d *Dispatcher) Del(dbID uint32, key []byte) error {
	eng, err := d.segments.Engine(d.shardFor(key))
	if err != nil {
		return err
	}
	return eng.Delete(dbID, key)
}

// Expire sets or refreshes key's ttl without touching its value.
func (d *Dispatcher) Expire(dbID uint32, key []byte, ttl time.Duration) (bool, error) {
	eng, err := d.segments.Engine(d.shardFor(key))
	if err != nil {
		return false, err
	}
	v, typeTag, _, err := eng.Get(dbID, key)
	if err == storage.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	expireAt := time.Now().Add(ttl).UnixMilli()
	if err := eng.Set(dbID, key, v, typeTag, expireAt); err != nil {
		return false, err
	}
	return true, nil
}

// TTL returns the remaining lifetime of key, or -1 if it has none,
// or storage.ErrNotFound if it does not exist.
func (d *Dispatcher) TTL(dbID uint32, key []byte) (time.Duration, error) {
	eng, err := d.segments.Engine(d.shardFor(key))
	if err != nil {
		return 0, err
	}
	_, _, expireAt, err := eng.Get(dbID, key)
	if err != nil {
		return 0, err
	}
	if expireAt == 0 {
		return -1, nil
	}
	remaining := time.Until(time.UnixMilli(expireAt))
	if remaining < 0 {
		return 0, storage.ErrNotFound
	}
	return remaining, nil
}
