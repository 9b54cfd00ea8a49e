package storage

import (
	"encoding/binary"
	"errors"
	"math"
)

// Key space layout inside the per-shard LevelDB instance:
//
//	dataPrefix + dbID(4) + key                    -> record{typeTag, expireAt, value}
//	ttlPrefix  + expireAtMillis(8, big-endian) + dbID(4) + key -> ttlEntryValue{dbID, typeTag, key}
//
// expireAtMillis is stored as a plain big-endian uint64, so ascending
// byte order over the ttl keyspace visits entries in order of
// increasing expireAtMillis, matching the ordered-cursor semantics the
// scanner relies on (earliest expirations first).
const (
	dataPrefix byte = 0x01
	ttlPrefix  byte = 0x02
)

var errShortKey = errors.New("storage: truncated key")

func encodeDataKey(dbID uint32, key []byte) []byte {
	buf := make([]byte, 1+4+len(key))
	buf[0] = dataPrefix
	binary.BigEndian.PutUint32(buf[1:5], dbID)
	copy(buf[5:], key)
	return buf
}

func clampNonNegative(millis int64) uint64 {
	if millis < 0 {
		return 0
	}
	return uint64(millis)
}

func encodeTTLKey(expireAtMillis int64, dbID uint32, key []byte) []byte {
	buf := make([]byte, 1+8+4+len(key))
	buf[0] = ttlPrefix
	binary.BigEndian.PutUint64(buf[1:9], clampNonNegative(expireAtMillis))
	binary.BigEndian.PutUint32(buf[9:13], dbID)
	copy(buf[13:], key)
	return buf
}

// ttlScanBound returns the exclusive upper bound for a range scan that
// should only surface entries whose expireAtMillis is <= now: the
// encoded prefix for expireAtMillis == now+1. Every real entry with
// expireAtMillis <= now compares less than this bound (its 8-byte
// timestamp field is strictly smaller), and every entry with
// expireAtMillis >= now+1 compares greater than or equal to it,
// regardless of dbID or key suffix.
func ttlScanBound(now int64) []byte {
	buf := make([]byte, 9)
	buf[0] = ttlPrefix
	bound := clampNonNegative(now)
	if bound != math.MaxUint64 {
		bound++
	}
	binary.BigEndian.PutUint64(buf[1:9], bound)
	return buf
}

func decodeTTLKey(k []byte) (expireAtMillis int64, dbID uint32, key []byte, err error) {
	if len(k) < 13 || k[0] != ttlPrefix {
		return 0, 0, nil, errShortKey
	}
	expireAtMillis = int64(binary.BigEndian.Uint64(k[1:9]))
	dbID = binary.BigEndian.Uint32(k[9:13])
	key = append([]byte(nil), k[13:]...)
	return expireAtMillis, dbID, key, nil
}

// record is the value stored under a data key.
type record struct {
	typeTag  uint8
	expireAt int64 // 0 means no expiration
	value    []byte
}

func encodeRecord(r record) []byte {
	buf := make([]byte, 1+8+len(r.value))
	buf[0] = r.typeTag
	binary.BigEndian.PutUint64(buf[1:9], uint64(r.expireAt))
	copy(buf[9:], r.value)
	return buf
}

func decodeRecord(b []byte) (record, error) {
	if len(b) < 9 {
		return record{}, errShortKey
	}
	return record{
		typeTag:  b[0],
		expireAt: int64(binary.BigEndian.Uint64(b[1:9])),
		value:    append([]byte(nil), b[9:]...),
	}, nil
}

func encodeTTLValue(dbID uint32, typeTag uint8, key []byte) []byte {
	buf := make([]byte, 4+1+len(key))
	binary.BigEndian.PutUint32(buf[0:4], dbID)
	buf[4] = typeTag
	copy(buf[5:], key)
	return buf
}

func decodeTTLValue(b []byte) (dbID uint32, typeTag uint8, key []byte, err error) {
	if len(b) < 5 {
		return 0, 0, nil, errShortKey
	}
	dbID = binary.BigEndian.Uint32(b[0:4])
	typeTag = b[4]
	key = append([]byte(nil), b[5:]...)
	return dbID, typeTag, key, nil
}
