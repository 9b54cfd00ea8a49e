package ttlindex

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Engine is the TTL index expiration engine: a dispatch loop plus two
// worker pools (scan, delete) that cooperatively drain every shard's
// ttl index. It owns no storage itself; everything it touches is
// reached through the SegmentManager/MigrateManager/CommandDispatcher
// contracts in contracts.go.
type Engine struct {
	params     Params
	segments   SegmentManager
	migrate    MigrateManager
	dispatcher CommandDispatcher
	newSession func() Session
	logger     *slog.Logger

	shards   *shardStateTable
	scanPool *workerPool
	delPool  *workerPool

	running    atomic.Bool
	stopCh     chan struct{}
	loopDone   chan struct{}
	startOnce  sync.Once
	stopOnce   sync.Once
}

// Deps bundles the engine's external collaborators, matching the
// contracts a real server wires in at startup.
type Deps struct {
	Segments   SegmentManager
	Migrate    MigrateManager
	Dispatcher CommandDispatcher
	NewSession func() Session
	Logger     *slog.Logger
}

// New constructs an engine. Startup must be called before it does
// any work.
func New(params Params, deps Deps) *Engine {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		params:     params,
		segments:   deps.Segments,
		migrate:    deps.Migrate,
		dispatcher: deps.Dispatcher,
		newSession: deps.NewSession,
		logger:     logger,
		shards:     newShardStateTable(deps.Segments.ShardCount()),
		scanPool:   newWorkerPool("ttl-scan", params.ScanPoolSize),
		delPool:    newWorkerPool("ttl-del", params.DelPoolSize),
	}
}

// Startup launches the worker pools and the dispatch loop goroutine.
// Safe to call once; subsequent calls are no-ops.
func (e *Engine) Startup() {
	e.startOnce.Do(func() {
		e.scanPool.start(e.params.ScanPoolSize)
		e.delPool.start(e.params.DelPoolSize)

		e.stopCh = make(chan struct{})
		e.loopDone = make(chan struct{})
		e.running.Store(true)

		e.logger.Warn("ttl index engine running")
		go e.run()
	})
}

// run is the single long-lived dispatch loop: every pause interval it
// schedules a scan job for every shard, then schedules a delete job
// for every shard whose queue is currently non-empty.
func (e *Engine) run() {
	defer close(e.loopDone)
	for e.running.Load() {
		e.scheduleScans()
		e.scheduleDeletes()

		select {
		case <-e.stopCh:
			return
		case <-time.After(e.params.PauseTime):
		}
	}
}

func (e *Engine) scheduleScans() {
	n := e.segments.ShardCount()
	for i := 0; i < n; i++ {
		shard := ShardID(i)
		e.scanPool.schedule(func() {
			if err := e.scanExpiredKeysJob(shard); err != nil {
				e.logger.Debug("scan job error", "shard", shard, "err", err)
			}
		})
	}
}

func (e *Engine) scheduleDeletes() {
	n := e.segments.ShardCount()
	var withExpires []ShardID
	for i := 0; i < n; i++ {
		state, ok := e.shards.get(ShardID(i))
		if ok && state.queueLen() > 0 {
			withExpires = append(withExpires, ShardID(i))
		}
	}
	for _, shard := range withExpires {
		shard := shard
		e.delPool.schedule(func() {
			e.tryDelExpiredKeysJob(shard)
		})
	}
}

// StopStore disables shard and discards its queued-but-undeleted
// work. The entries are still genuinely expired and will be
// rediscovered by the next scan once the shard is reopened, so this
// never loses an expiration — it only defers it.
func (e *Engine) StopStore(shard ShardID) error {
	state, ok := e.shards.get(shard)
	if !ok {
		return ErrUnknownShard
	}
	state.stop()
	return nil
}

// EnableStore clears the disabled flag set by StopStore, e.g. once a
// shard has finished (re)loading.
func (e *Engine) EnableStore(shard ShardID) error {
	state, ok := e.shards.get(shard)
	if !ok {
		return ErrUnknownShard
	}
	state.enable()
	return nil
}

// Stop halts the dispatch loop and both worker pools, blocking until
// all in-flight jobs have returned.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		if !e.running.CompareAndSwap(true, false) {
			return
		}
		close(e.stopCh)
		<-e.loopDone
		e.scanPool.stop()
		e.delPool.stop()
		e.logger.Warn("ttl index engine stopped")
	})
}

// IsRunning reports whether the dispatch loop is active.
func (e *Engine) IsRunning() bool { return e.running.Load() }

// Stats is a point-in-time snapshot of the engine's counters, exposed
// for metrics collection.
type Stats struct {
	TotalEnqueue uint64
	TotalDequeue uint64
	QueueDepth   map[ShardID]int
}

// Stats returns the current counters and per-shard queue depths.
func (e *Engine) Stats() Stats {
	depth := make(map[ShardID]int, len(e.shards.shards))
	for i, s := range e.shards.shards {
		depth[ShardID(i)] = s.queueLen()
	}
	return Stats{
		TotalEnqueue: e.shards.totalEnqueue.Load(),
		TotalDequeue: e.shards.totalDequeue.Load(),
		QueueDepth:   depth,
	}
}
