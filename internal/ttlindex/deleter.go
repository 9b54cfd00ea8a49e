package ttlindex

// tryDelExpiredKeysJob drains up to params.DelBatch entries from
// shard's queue, calling into the command dispatcher to idempotently
// expire each one. It returns the number of keys processed.
//
// The queue entry is popped only after expireKeyIfNeeded returns, so a
// crash mid-job leaves the entry in place for the next delete job to
// retry — the at-least-once guarantee the dispatcher's idempotent
// expiry check exists to support.
func (e *Engine) tryDelExpiredKeysJob(shard ShardID) int {
	state, ok := e.shards.get(shard)
	if !ok {
		return 0
	}

	if !state.delBusy.CompareAndSwap(false, true) {
		return 0
	}
	state.delJobCnt.Add(1)
	defer func() {
		state.delJobCnt.Add(-1)
		state.delBusy.Store(false)
	}()

	if state.disabled.Load() {
		return 0
	}

	deletes := 0
	for {
		entry, ok := state.peekFront()
		if !ok {
			break
		}

		sess := e.newSession()
		sess.SetAuthed()
		sess.SetDBID(entry.DBID)

		if err := e.dispatcher.ExpireKeyIfNeeded(sess, entry.PriKey, entry.TypeTag); err != nil {
			e.logger.Warn("ttl expiry failed", "shard", shard, "err", err)
		}

		state.popFront(e.shards)
		deletes++

		if deletes == e.params.DelBatch {
			break
		}
	}

	return deletes
}
