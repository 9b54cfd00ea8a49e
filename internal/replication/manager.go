// Package replication tracks each shard's replication role (leader or
// follower) and keeps it durable across restarts so a follower that
// crashes and restarts does not briefly look like a leader — and
// therefore scannable — before its role is reasserted.
package replication

import (
	"encoding/binary"
	"fmt"

	"go.etcd.io/bbolt"

	"tidekv/internal/storage"
	"tidekv/internal/ttlindex"
)

// Role is a shard's replication role.
type Role uint8

const (
	RoleLeader Role = iota
	RoleFollower
)

var rolesBucket = []byte("roles")

// StoreModeSetter is satisfied by *storage.Engine; kept as a narrow
// interface so Manager doesn't need to import the segment package
// (which would create an import cycle with cmd's wiring).
type StoreModeSetter interface {
	SetMode(storage.Mode)
}

// Manager persists per-shard replication role in a small embedded
// bbolt database and applies the corresponding storage.Mode to each
// shard's engine whenever the role changes.
type Manager struct {
	db     *bbolt.DB
	stores map[ttlindex.ShardID]StoreModeSetter
}

// Open opens (creating if necessary) the role database at path and
// registers the storage handles whose mode it should drive.
func Open(path string, stores map[ttlindex.ShardID]StoreModeSetter) (*Manager, error) {
	db, err := bbolt.Open(path, 0o644, nil)
	if err != nil {
		return nil, fmt.Errorf("replication: open role db: %w", err)
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(rolesBucket)
		return err
	}); err != nil {
		db.Close()
		return nil, err
	}
	m := &Manager{db: db, stores: stores}
	if err := m.applyPersistedRoles(); err != nil {
		db.Close()
		return nil, err
	}
	return m, nil
}

func shardKey(shard ttlindex.ShardID) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, uint32(shard))
	return buf
}

// applyPersistedRoles pushes whatever role was last durably recorded
// for each known shard into its storage engine's mode, so a restart
// picks up where replication state left off rather than defaulting to
// leader (which would make the shard scannable before replication
// catches up).
func (m *Manager) applyPersistedRoles() error {
	return m.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(rolesBucket)
		for shard, store := range m.stores {
			v := b.Get(shardKey(shard))
			if len(v) == 1 && Role(v[0]) == RoleFollower {
				store.SetMode(storage.ModeReplicateOnly)
			}
		}
		return nil
	})
}

// SetRole persists shard's role and applies the matching storage mode.
func (m *Manager) SetRole(shard ttlindex.ShardID, role Role) error {
	err := m.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(rolesBucket).Put(shardKey(shard), []byte{byte(role)})
	})
	if err != nil {
		return err
	}
	if store, ok := m.stores[shard]; ok {
		if role == RoleFollower {
			store.SetMode(storage.ModeReplicateOnly)
		} else {
			store.SetMode(storage.ModeReadWrite)
		}
	}
	return nil
}

// Role returns shard's last persisted role, defaulting to leader for
// shards with no recorded role.
func (m *Manager) Role(shard ttlindex.ShardID) Role {
	role := RoleLeader
	m.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(rolesBucket).Get(shardKey(shard))
		if len(v) == 1 {
			role = Role(v[0])
		}
		return nil
	})
	return role
}

// Close closes the underlying role database.
func (m *Manager) Close() error {
	return m.db.Close()
}
