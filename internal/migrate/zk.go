package migrate

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-zookeeper/zk"

	"tidekv/internal/ttlindex"
)

// ZKManager reports migration-in-flight state by checking for an
// ephemeral znode under rootPath/tasks/<shard>, written by whatever
// external migration coordinator is moving a shard's keyspace between
// nodes. This lets several server processes agree on migration state
// without each one needing a side channel to the others.
type ZKManager struct {
	conn     *zk.Conn
	rootPath string
}

// DialZK connects to the given ZooKeeper ensemble and ensures the
// task registry path exists.
func DialZK(servers []string, rootPath string) (*ZKManager, error) {
	conn, _, err := zk.Connect(servers, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("migrate: zk connect: %w", err)
	}
	m := &ZKManager{conn: conn, rootPath: rootPath}
	if err := m.ensurePath(rootPath + "/tasks"); err != nil {
		conn.Close()
		return nil, err
	}
	return m, nil
}

func (m *ZKManager) ensurePath(path string) error {
	parts := strings.Split(path, "/")
	cur := ""
	for _, p := range parts {
		if p == "" {
			continue
		}
		cur = cur + "/" + p
		exists, _, err := m.conn.Exists(cur)
		if err != nil {
			return err
		}
		if !exists {
			if _, err := m.conn.Create(cur, nil, 0, zk.WorldACL(zk.PermAll)); err != nil && err != zk.ErrNodeExists {
				return err
			}
		}
	}
	return nil
}

func (m *ZKManager) taskPath(shard ttlindex.ShardID) string {
	return m.rootPath + "/tasks/" + strconv.FormatUint(uint64(shard), 10)
}

// ExistsMigrateTask implements ttlindex.MigrateManager by checking for
// the shard's task znode.
func (m *ZKManager) ExistsMigrateTask(shard ttlindex.ShardID) bool {
	exists, _, err := m.conn.Exists(m.taskPath(shard))
	if err != nil {
		// A coordinator hiccup should not let the scanner assume it's
		// safe to proceed: fail closed.
		return true
	}
	return exists
}

// BeginTask creates shard's ephemeral task znode, claiming it as
// under migration for as long as this process stays connected.
func (m *ZKManager) BeginTask(shard ttlindex.ShardID) error {
	_, err := m.conn.Create(m.taskPath(shard), nil, zk.FlagEphemeral, zk.WorldACL(zk.PermAll))
	if err != nil && err != zk.ErrNodeExists {
		return err
	}
	return nil
}

// EndTask removes shard's task znode.
func (m *ZKManager) EndTask(shard ttlindex.ShardID) error {
	err := m.conn.Delete(m.taskPath(shard), -1)
	if err != nil && err != zk.ErrNoNode {
		return err
	}
	return nil
}

// Close releases the ZooKeeper session.
func (m *ZKManager) Close() error {
	m.conn.Close()
	return nil
}
