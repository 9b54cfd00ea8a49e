package dispatch

import (
	"testing"
	"time"

	"tidekv/internal/segment"
	"tidekv/internal/session"
	"tidekv/internal/storage"
)

func TestDispatcherSetGetExpire(t *testing.T) {
	segments, err := segment.Open(t.TempDir(), 4)
	if err != nil {
		t.Fatalf("open segments: %v", err)
	}
	defer segments.Close()

	d := New(segments)

	if err := d.Set(0, []byte("foo"), []byte("bar"), 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	v, err := d.Get(0, []byte("foo"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(v) != "bar" {
		t.Fatalf("unexpected value %q", v)
	}

	ok, err := d.Expire(0, []byte("foo"), time.Minute)
	if err != nil || !ok {
		t.Fatalf("expire: ok=%v err=%v", ok, err)
	}
	ttl, err := d.TTL(0, []byte("foo"))
	if err != nil {
		t.Fatalf("ttl: %v", err)
	}
	if ttl <= 0 || ttl > time.Minute {
		t.Fatalf("unexpected ttl %v", ttl)
	}

	if err := d.Del(0, []byte("foo")); err != nil {
		t.Fatalf("del: %v", err)
	}
	if _, err := d.Get(0, []byte("foo")); err != storage.ErrNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDispatcherExpireKeyIfNeededIdempotent(t *testing.T) {
	segments, err := segment.Open(t.TempDir(), 1)
	if err != nil {
		t.Fatalf("open segments: %v", err)
	}
	defer segments.Close()

	d := New(segments)
	if err := d.Set(0, []byte("k"), []byte("v"), time.Millisecond); err != nil {
		t.Fatalf("set: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	sess := session.New()
	sess.SetAuthed()
	sess.SetDBID(0)

	if err := d.ExpireKeyIfNeeded(sess, []byte("k"), 0); err != nil {
		t.Fatalf("expire: %v", err)
	}
	// A second call against an already-deleted key must stay a no-op.
	if err := d.ExpireKeyIfNeeded(sess, []byte("k"), 0); err != nil {
		t.Fatalf("expire (second call): %v", err)
	}
}
