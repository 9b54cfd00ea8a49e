// Package migrate tracks which shards currently have a cluster
// migration task in flight. The ttl index engine consults this
// before scanning a shard so it never races a migration relocating
// the same keys it would otherwise queue for deletion.
package migrate

import (
	"sync"

	"tidekv/internal/ttlindex"
)

// LocalManager is an in-process MigrateManager backed by a plain map,
// suitable for single-node deployments and tests.
type LocalManager struct {
	mu    sync.RWMutex
	tasks map[ttlindex.ShardID]bool
}

// NewLocal returns an empty LocalManager: no shard has a migrate task.
func NewLocal() *LocalManager {
	return &LocalManager{tasks: make(map[ttlindex.ShardID]bool)}
}

// ExistsMigrateTask implements ttlindex.MigrateManager.
func (m *LocalManager) ExistsMigrateTask(shard ttlindex.ShardID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tasks[shard]
}

// BeginTask records that shard now has a migration in flight.
func (m *LocalManager) BeginTask(shard ttlindex.ShardID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[shard] = true
}

// EndTask clears shard's in-flight migration flag.
func (m *LocalManager) EndTask(shard ttlindex.ShardID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tasks, shard)
}
