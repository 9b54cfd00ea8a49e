// Package segment resolves shard ids to open storage engines, the
// role a segment/lock manager plays in a sharded store. Callers name
// the lock mode they intend to hold, but no shard lock is taken.
package segment

import (
	"fmt"
	"path/filepath"
	"sync"

	"tidekv/internal/storage"
	"tidekv/internal/ttlindex"
)

// Manager owns one storage.Engine per shard and implements
// ttlindex.SegmentManager.
type Manager struct {
	mu     sync.RWMutex
	stores []*storage.Engine
}

// Open creates or reopens shardCount shard directories under baseDir,
// each named shard-<n>.
func Open(baseDir string, shardCount int) (*Manager, error) {
	m := &Manager{stores: make([]*storage.Engine, shardCount)}
	for i := 0; i < shardCount; i++ {
		dir := filepath.Join(baseDir, fmt.Sprintf("shard-%d", i))
		eng, err := storage.Open(dir)
		if err != nil {
			m.Close()
			return nil, fmt.Errorf("open shard %d: %w", i, err)
		}
		m.stores[i] = eng
	}
	return m, nil
}

// segmentStore adapts *storage.Engine to ttlindex.StorageEngine. It is
// a distinct type (rather than using *storage.Engine directly) so the
// contract boundary between the engine and its storage backend stays
// explicit and independently mockable.
type segmentStore struct {
	eng *storage.Engine
}

func (s segmentStore) Mode() storage.Mode { return s.eng.Mode() }
func (s segmentStore) IsOpen() bool       { return s.eng.IsOpen() }
func (s segmentStore) CurrentTime() int64 { return s.eng.CurrentTime() }
func (s segmentStore) BeginReadTx() (*storage.Transaction, error) {
	return s.eng.BeginReadTx()
}

// GetDB implements ttlindex.SegmentManager. The lock mode is
// advisory here: callers that only read the ttl index (the scanner)
// pass LockIntentShared and never block a concurrent writer, since
// storage.Engine's LevelDB-backed snapshots already give them a
// consistent view without an explicit shard-wide lock.
func (m *Manager) GetDB(_ ttlindex.Session, shard ttlindex.ShardID, _ ttlindex.LockMode) (ttlindex.Handle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if int(shard) >= len(m.stores) || m.stores[shard] == nil {
		return ttlindex.Handle{}, fmt.Errorf("segment: unknown shard %d", shard)
	}
	return ttlindex.Handle{Store: segmentStore{eng: m.stores[shard]}}, nil
}

// ShardCount implements ttlindex.SegmentManager.
func (m *Manager) ShardCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.stores)
}

// Engine exposes the raw shard storage for the command dispatcher,
// which needs direct Get/Set/Delete access the ttlindex contract
// deliberately doesn't expose.
func (m *Manager) Engine(shard ttlindex.ShardID) (*storage.Engine, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if int(shard) >= len(m.stores) || m.stores[shard] == nil {
		return nil, fmt.Errorf("segment: unknown shard %d", shard)
	}
	return m.stores[shard], nil
}

// ShardFor picks a shard for a key using a simple FNV-1a hash, used
// by single-node deployments that still want to exercise multiple
// shards.
func (m *Manager) ShardFor(key []byte) ttlindex.ShardID {
	const prime = 16777619
	var h uint32 = 2166136261
	for _, b := range key {
		h ^= uint32(b)
		h *= prime
	}
	n := uint32(m.ShardCount())
	if n == 0 {
		return 0
	}
	return ttlindex.ShardID(h % n)
}

// Close closes every shard's storage engine.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var firstErr error
	for _, s := range m.stores {
		if s == nil {
			continue
		}
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
