package ttlindex

import (
	"time"

	"tidekv/internal/storage"
)

// TTLIndexEntry is re-exported so callers outside this package never
// need to import internal/storage directly just to read a scan result.
type TTLIndexEntry = storage.TTLIndexEntry

// Params configures the engine. Field names mirror the ServerParams
// knobs the engine was modeled on (scan_cnt_index_mgr and friends),
// translated to Go config conventions.
type Params struct {
	// ScanBatch bounds how many ttl entries a single scan job enqueues
	// before yielding the worker back to the pool.
	ScanBatch int
	// ScanPoolSize is the number of concurrent scan workers.
	ScanPoolSize int
	// DelBatch bounds how many keys a single delete job processes
	// before yielding the worker back to the pool.
	DelBatch int
	// DelPoolSize is the number of concurrent delete workers.
	DelPoolSize int
	// PauseTime is how long the dispatch loop sleeps between rounds.
	PauseTime time.Duration
	// ClusterEnabled gates scanning on MigrateManager.ExistsMigrateTask.
	ClusterEnabled bool
}

// DefaultParams returns conservative defaults suitable for a small
// development deployment.
func DefaultParams() Params {
	return Params{
		ScanBatch:      128,
		ScanPoolSize:   2,
		DelBatch:       128,
		DelPoolSize:    2,
		PauseTime:      100 * time.Millisecond,
		ClusterEnabled: false,
	}
}
