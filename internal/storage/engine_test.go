package storage

import (
	"testing"
)

func TestEngineSetGetDelete(t *testing.T) {
	dir := t.TempDir()
	e, err := Open(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer e.Close()

	if err := e.Set(0, []byte("foo"), []byte("bar"), 1, 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	v, typeTag, expireAt, err := e.Get(0, []byte("foo"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(v) != "bar" || typeTag != 1 || expireAt != 0 {
		t.Fatalf("unexpected record: %q %d %d", v, typeTag, expireAt)
	}

	if err := e.Delete(0, []byte("foo")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, _, _, err := e.Get(0, []byte("foo")); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestEngineTTLCursorOrdering(t *testing.T) {
	dir := t.TempDir()
	e, err := Open(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer e.Close()

	entries := []struct {
		key      string
		expireAt int64
	}{
		{"c", 300},
		{"a", 100},
		{"b", 200},
		{"d", 1000}, // not yet expired relative to now=500
	}
	for _, e2 := range entries {
		if err := e.Set(0, []byte(e2.key), []byte("v"), 0, e2.expireAt); err != nil {
			t.Fatalf("set %s: %v", e2.key, err)
		}
	}

	tx, err := e.BeginReadTx()
	if err != nil {
		t.Fatalf("begin read tx: %v", err)
	}
	defer tx.Discard()

	cur := tx.TTLCursor(500)
	defer cur.Close()

	var order []string
	for cur.Next() {
		ent, err := cur.Entry()
		if err != nil {
			t.Fatalf("entry: %v", err)
		}
		order = append(order, string(ent.PriKey))
	}
	if len(order) != 3 || order[0] != "a" || order[1] != "b" || order[2] != "c" {
		t.Fatalf("unexpected scan order: %v", order)
	}
}

func TestEngineModeAndLifecycle(t *testing.T) {
	dir := t.TempDir()
	e, err := Open(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if e.Mode() != ModeReadWrite {
		t.Fatalf("expected default mode read-write, got %v", e.Mode())
	}
	e.SetMode(ModeReplicateOnly)
	if e.Mode() != ModeReplicateOnly {
		t.Fatalf("expected replicate-only, got %v", e.Mode())
	}
	if !e.IsOpen() {
		t.Fatalf("expected engine open")
	}
	if err := e.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if e.IsOpen() {
		t.Fatalf("expected engine closed")
	}
	if _, _, _, err := e.Get(0, []byte("x")); err != ErrClosed {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
