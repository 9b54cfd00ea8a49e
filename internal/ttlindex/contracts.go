package ttlindex

import "tidekv/internal/storage"

// ShardID identifies one of the server's shards. Shards are numbered
// densely from 0, matching the slice-indexed shard state table in
// shardstate.go.
type ShardID uint32

// LockMode mirrors the intent locks a segment manager would normally
// take out on a shard's handle. The engine only ever asks for an
// intent-shared lock before reading the ttl index.
type LockMode int

const (
	LockIntentShared LockMode = iota
)

// StorageEngine is the per-shard storage contract the engine drives.
// internal/storage.Engine implements it; tests may supply a fake.
type StorageEngine interface {
	Mode() storage.Mode
	IsOpen() bool
	CurrentTime() int64
	BeginReadTx() (*storage.Transaction, error)
}

// Handle is what a SegmentManager hands back for a locked shard.
type Handle struct {
	Store StorageEngine
}

// SegmentManager resolves a shard id to its storage engine, taking out
// whatever lock mode the caller asks for.
type SegmentManager interface {
	GetDB(session Session, shard ShardID, lockMode LockMode) (Handle, error)
	ShardCount() int
}

// MigrateManager reports whether cluster migration work is currently
// in flight. While true, the scanner must not run: a migration may be
// relocating the very keys the scanner would otherwise queue for
// deletion, and a delete racing a migration could resurrect a key on
// the destination node.
type MigrateManager interface {
	ExistsMigrateTask(shard ShardID) bool
}

// Session is the ephemeral, per-job execution context the engine
// creates to call into the command dispatcher. It carries just enough
// state for ExpireKeyIfNeeded to resolve the right database.
type Session interface {
	SetAuthed()
	SetDBID(dbID uint32)
	DBID() uint32
}

// CommandDispatcher performs the actual idempotent expiration: it
// checks whether the key is still expired (ttl index entries can be
// stale: overwritten, deleted, or duplicated across restarts) and,
// only if so, removes it.
type CommandDispatcher interface {
	ExpireKeyIfNeeded(session Session, priKey []byte, typeTag uint8) error
}
