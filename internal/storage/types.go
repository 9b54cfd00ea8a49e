package storage

import "errors"

// Mode describes whether a shard accepts writes locally or is only
// receiving them from a replication stream. The TTL index engine must
// never schedule deletion work against a shard in ModeReplicateOnly.
type Mode int32

const (
	ModeReadWrite Mode = iota
	ModeReplicateOnly
	ModeClosed
)

func (m Mode) String() string {
	switch m {
	case ModeReadWrite:
		return "read-write"
	case ModeReplicateOnly:
		return "replicate-only"
	case ModeClosed:
		return "closed"
	default:
		return "unknown"
	}
}

var (
	ErrNotFound = errors.New("storage: key not found")
	ErrClosed   = errors.New("storage: engine is closed")
)

// TTLIndexEntry is a single observation the scanner pulls off the
// ordered ttl index: a (db, key, type) tuple whose expiration time has
// already passed as of the moment it was read.
type TTLIndexEntry struct {
	DBID     uint32
	TypeTag  uint8
	PriKey   []byte
	ExpireAt int64 // unix millis
}

// Encode returns a byte string that totally orders entries by
// ExpireAt and is safe to persist as a resume cursor.
func (e TTLIndexEntry) Encode() []byte {
	return encodeTTLKey(e.ExpireAt, e.DBID, e.PriKey)
}
