package ttlindex

import (
	"sync"
	"sync/atomic"
)

// shardState holds everything the engine tracks for one shard: the
// queue of observed-expired entries awaiting deletion, the cursor the
// scanner resumes from, and the single-flight/disabled flags that keep
// at most one scan job and one delete job in flight per shard at a
// time.
//
// queue and resumeCursor are guarded by mu. The busy/disabled flags
// and counters are atomics so a job can check them without taking the
// lock on the hot path.
type shardState struct {
	mu           sync.Mutex
	queue        []TTLIndexEntry
	resumeCursor []byte

	scanBusy atomic.Bool
	delBusy  atomic.Bool
	disabled atomic.Bool

	scanJobCnt atomic.Int32
	delJobCnt  atomic.Int32
}

// shardStateTable is the ShardId -> shardState map. It is sized once
// at startup from SegmentManager.ShardCount and never resized, so a
// plain slice gives O(1) lookups without needing a concurrent map.
type shardStateTable struct {
	shards []*shardState

	totalEnqueue atomic.Uint64
	totalDequeue atomic.Uint64
}

func newShardStateTable(n int) *shardStateTable {
	t := &shardStateTable{shards: make([]*shardState, n)}
	for i := range t.shards {
		t.shards[i] = &shardState{}
	}
	return t
}

func (t *shardStateTable) get(shard ShardID) (*shardState, bool) {
	if int(shard) < 0 || int(shard) >= len(t.shards) {
		return nil, false
	}
	return t.shards[shard], true
}

// enqueue appends an entry to the shard's queue and advances its
// resume cursor, under the shard's lock. Returns the new queue length.
func (s *shardState) enqueue(t *shardStateTable, entry TTLIndexEntry, cursorKey []byte) int {
	s.mu.Lock()
	s.queue = append(s.queue, entry)
	s.resumeCursor = cursorKey
	n := len(s.queue)
	s.mu.Unlock()
	t.totalEnqueue.Add(1)
	return n
}

// resumeFrom returns the cursor the scanner should resume from.
func (s *shardState) resumeFrom() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resumeCursor
}

// peekFront returns the head of the queue without removing it, along
// with whether the queue was non-empty.
func (s *shardState) peekFront() (TTLIndexEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return TTLIndexEntry{}, false
	}
	return s.queue[0], true
}

// popFront removes the head of the queue. It is only safe to call
// after the corresponding expireKeyIfNeeded call has completed, so
// that a crash mid-delete leaves the entry for a future scan to
// rediscover rather than silently dropping it.
func (s *shardState) popFront(t *shardStateTable) {
	s.mu.Lock()
	if len(s.queue) > 0 {
		s.queue = s.queue[1:]
	}
	s.mu.Unlock()
	t.totalDequeue.Add(1)
}

func (s *shardState) queueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// stop disables the shard and discards any queued, not-yet-deleted
// work: the entries are still expired and will be rediscovered by the
// next scan once the shard is re-enabled, so dropping them here is
// safe and matches the at-least-once delivery contract.
func (s *shardState) stop() {
	s.mu.Lock()
	s.queue = nil
	s.resumeCursor = nil
	s.mu.Unlock()
	s.scanJobCnt.Store(0)
	s.delJobCnt.Store(0)
	s.disabled.Store(true)
}

// enable clears the disabled flag, e.g. after a shard finishes loading.
func (s *shardState) enable() {
	s.disabled.Store(false)
}
