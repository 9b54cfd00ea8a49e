package ttlindex

import (
	"sync"

	"tidekv/internal/storage"
)

// fakeSession is the minimal Session implementation used by tests.
type fakeSession struct {
	authed bool
	dbID   uint32
}

func (s *fakeSession) SetAuthed()       { s.authed = true }
func (s *fakeSession) SetDBID(id uint32) { s.dbID = id }
func (s *fakeSession) DBID() uint32      { return s.dbID }

// fakeStore wraps a real storage.Engine so tests get genuine ttl
// index ordering/cursor semantics, while letting tests flip Mode/open
// state to exercise the engine's guard clauses.
type fakeStore struct {
	eng *storage.Engine
}

func (f *fakeStore) Mode() storage.Mode           { return f.eng.Mode() }
func (f *fakeStore) IsOpen() bool                 { return f.eng.IsOpen() }
func (f *fakeStore) CurrentTime() int64           { return f.eng.CurrentTime() }
func (f *fakeStore) BeginReadTx() (*storage.Transaction, error) { return f.eng.BeginReadTx() }

// fakeSegmentManager serves a fixed set of in-memory shards.
type fakeSegmentManager struct {
	stores []*fakeStore
}

func (m *fakeSegmentManager) GetDB(_ Session, shard ShardID, _ LockMode) (Handle, error) {
	if int(shard) >= len(m.stores) {
		return Handle{}, ErrUnknownShard
	}
	return Handle{Store: m.stores[shard]}, nil
}

func (m *fakeSegmentManager) ShardCount() int { return len(m.stores) }

// fakeMigrateManager lets tests toggle migration-in-progress per shard.
type fakeMigrateManager struct {
	mu       sync.Mutex
	migrating map[ShardID]bool
}

func newFakeMigrateManager() *fakeMigrateManager {
	return &fakeMigrateManager{migrating: make(map[ShardID]bool)}
}

func (m *fakeMigrateManager) ExistsMigrateTask(shard ShardID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.migrating[shard]
}

func (m *fakeMigrateManager) setMigrating(shard ShardID, v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.migrating[shard] = v
}

// fakeDispatcher records every ExpireKeyIfNeeded call it receives and
// deletes the key from the backing store, mirroring a real command
// dispatcher's idempotent expiry check.
type fakeDispatcher struct {
	mu    sync.Mutex
	calls []string
	store *storage.Engine
}

func (d *fakeDispatcher) ExpireKeyIfNeeded(sess Session, priKey []byte, typeTag uint8) error {
	d.mu.Lock()
	d.calls = append(d.calls, string(priKey))
	d.mu.Unlock()

	dbID := sess.DBID()
	_, _, _, err := d.store.Get(dbID, priKey)
	if err == storage.ErrNotFound {
		return nil
	}
	if err != nil {
		return err
	}
	return d.store.Delete(dbID, priKey)
}

func (d *fakeDispatcher) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}
