package ttlindex

import "errors"

var (
	// ErrNotRunning reports that the engine's dispatch loop is not
	// active. No function in this package returns it.
	ErrNotRunning = errors.New("ttlindex: engine is not running")
	// ErrUnknownShard is returned when a shard id is outside the range
	// the segment manager knows about.
	ErrUnknownShard = errors.New("ttlindex: unknown shard id")
)
