package ttlindex

import (
	"bytes"

	"tidekv/internal/storage"
)

// scanExpiredKeysJob walks shard's ttl index from where the previous
// scan left off, enqueueing up to params.ScanBatch newly-observed
// expired entries for the deleter pool to drain later.
//
// Single-flight: if a scan is already running for this shard the call
// returns immediately. Invariants I1-I4 in the design notes (single-
// flight, resume monotonicity, queue-under-lock, no-work-on-disabled)
// all fall out of this one function's structure.
func (e *Engine) scanExpiredKeysJob(shard ShardID) error {
	state, ok := e.shards.get(shard)
	if !ok {
		return ErrUnknownShard
	}

	if !state.scanBusy.CompareAndSwap(false, true) {
		return nil
	}
	state.scanJobCnt.Add(1)
	defer func() {
		state.scanJobCnt.Add(-1)
		state.scanBusy.Store(false)
	}()

	if state.disabled.Load() {
		return nil
	}

	if e.params.ClusterEnabled && e.migrate.ExistsMigrateTask(shard) {
		return nil
	}

	sess := e.newSession()
	handle, err := e.segments.GetDB(sess, shard, LockIntentShared)
	if err != nil {
		return err
	}

	store := handle.Store
	if !isScannable(store) {
		return nil
	}

	tx, err := store.BeginReadTx()
	if err != nil {
		return err
	}
	defer tx.Discard()

	cur := tx.TTLCursor(store.CurrentTime())
	defer cur.Close()

	resume := state.resumeFrom()

	var ok2 bool
	if len(resume) > 0 {
		ok2 = cur.Seek(resume)
		if ok2 && bytes.Equal(cur.Key(), resume) {
			ok2 = cur.Next()
		}
	} else {
		ok2 = cur.Next()
	}

	for ok2 {
		entry, derr := cur.Entry()
		if derr != nil {
			break
		}
		n := state.enqueue(e.shards, entry, cur.Key())
		if n >= e.params.ScanBatch {
			break
		}
		ok2 = cur.Next()
	}

	return nil
}

// isScannable reports whether store is eligible for scanning: open
// and not a replication-only follower. Expressed as a free function
// so scanExpiredKeysJob reads as a single straight-line sequence of
// guard clauses, matching the early-return style of the job it is
// modeled on.
func isScannable(store StorageEngine) bool {
	return store.IsOpen() && store.Mode() == storage.ModeReadWrite
}
