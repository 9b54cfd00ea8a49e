package ttlindex

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"tidekv/internal/storage"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(t *testing.T, nShards int, params Params) (*Engine, []*storage.Engine, *fakeDispatcher, *fakeMigrateManager) {
	t.Helper()
	stores := make([]*storage.Engine, nShards)
	fstores := make([]*fakeStore, nShards)
	for i := 0; i < nShards; i++ {
		eng, err := storage.Open(t.TempDir())
		if err != nil {
			t.Fatalf("open shard %d: %v", i, err)
		}
		t.Cleanup(func() { eng.Close() })
		stores[i] = eng
		fstores[i] = &fakeStore{eng: eng}
	}

	disp := &fakeDispatcher{store: stores[0]}
	migrate := newFakeMigrateManager()
	segments := &fakeSegmentManager{stores: fstores}

	e := New(params, Deps{
		Segments:   segments,
		Migrate:    migrate,
		Dispatcher: disp,
		NewSession: func() Session { return &fakeSession{} },
		Logger:     discardLogger(),
	})
	return e, stores, disp, migrate
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

// S1: a key set with an already-past expiration is eventually deleted.
func TestEngine_BasicExpiration(t *testing.T) {
	params := DefaultParams()
	params.PauseTime = 5 * time.Millisecond
	e, stores, disp, _ := newTestEngine(t, 1, params)

	past := time.Now().Add(-time.Minute).UnixMilli()
	if err := stores[0].Set(0, []byte("k1"), []byte("v"), 0, past); err != nil {
		t.Fatalf("set: %v", err)
	}

	e.Startup()
	defer e.Stop()

	waitFor(t, time.Second, func() bool {
		_, _, _, err := stores[0].Get(0, []byte("k1"))
		return err == storage.ErrNotFound
	})
	if disp.callCount() == 0 {
		t.Fatalf("expected dispatcher to be invoked")
	}
}

// P6: duplicate/stale ttl observations must not break idempotence —
// deleting an already-gone key must not error the job.
func TestEngine_IdempotentUnderDuplicateObservation(t *testing.T) {
	params := DefaultParams()
	params.PauseTime = 5 * time.Millisecond
	e, stores, disp, _ := newTestEngine(t, 1, params)

	past := time.Now().Add(-time.Minute).UnixMilli()
	for _, k := range []string{"a", "b", "c"} {
		if err := stores[0].Set(0, []byte(k), []byte("v"), 0, past); err != nil {
			t.Fatalf("set %s: %v", k, err)
		}
	}

	e.Startup()
	defer e.Stop()

	waitFor(t, time.Second, func() bool {
		for _, k := range []string{"a", "b", "c"} {
			if _, _, _, err := stores[0].Get(0, []byte(k)); err != storage.ErrNotFound {
				return false
			}
		}
		return true
	})

	// Delete leaves the ttl index entries in place, and resetting the
	// shard clears its resume cursor, so the next scan observes a, b and
	// c a second time and hands the already-gone keys to the dispatcher.
	if err := e.StopStore(0); err != nil {
		t.Fatalf("stop store: %v", err)
	}
	if err := e.EnableStore(0); err != nil {
		t.Fatalf("enable store: %v", err)
	}
	waitFor(t, time.Second, func() bool { return disp.callCount() >= 6 })
}

// P5: a disabled shard receives no scan or delete work.
func TestEngine_DisabledShardIsolation(t *testing.T) {
	params := DefaultParams()
	params.PauseTime = 5 * time.Millisecond
	e, stores, disp, _ := newTestEngine(t, 2, params)

	past := time.Now().Add(-time.Minute).UnixMilli()
	if err := stores[1].Set(0, []byte("k"), []byte("v"), 0, past); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := e.StopStore(1); err != nil {
		t.Fatalf("stop store: %v", err)
	}

	e.Startup()
	time.Sleep(50 * time.Millisecond)
	e.Stop()

	if _, _, _, err := stores[1].Get(0, []byte("k")); err != nil {
		t.Fatalf("expected key to survive on disabled shard, got err=%v", err)
	}
	// Shard 0 holds no ttl entries, so any dispatcher call would have
	// come from work scheduled against the disabled shard 1.
	if n := disp.callCount(); n != 0 {
		t.Fatalf("expected no expiry calls for a disabled shard, got %d", n)
	}
}

// P1: concurrent scan invocations for the same shard single-flight —
// only one can be running at a time.
func TestEngine_ScanSingleFlight(t *testing.T) {
	params := DefaultParams()
	e, _, _, _ := newTestEngine(t, 1, params)

	state, ok := e.shards.get(0)
	if !ok {
		t.Fatalf("missing shard state")
	}
	if !state.scanBusy.CompareAndSwap(false, true) {
		t.Fatalf("expected to acquire busy flag")
	}

	// A concurrent scan attempt must be a no-op while busy.
	if err := e.scanExpiredKeysJob(0); err != nil {
		t.Fatalf("scan returned error: %v", err)
	}
	if state.scanJobCnt.Load() != 0 {
		t.Fatalf("expected in-flight scan job count unaffected by the skipped attempt")
	}
}

// Cluster migration gating: scanning is suppressed while a migrate
// task is reported in flight for the shard.
func TestEngine_MigrationGating(t *testing.T) {
	params := DefaultParams()
	params.ClusterEnabled = true
	e, stores, _, migrate := newTestEngine(t, 1, params)
	migrate.setMigrating(0, true)

	past := time.Now().Add(-time.Minute).UnixMilli()
	if err := stores[0].Set(0, []byte("k"), []byte("v"), 0, past); err != nil {
		t.Fatalf("set: %v", err)
	}

	if err := e.scanExpiredKeysJob(0); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if n := e.Stats().QueueDepth[0]; n != 0 {
		t.Fatalf("expected no entries enqueued while migrating, got %d", n)
	}
}

// Replica safety: a shard in replicate-only mode is never scanned.
func TestEngine_ReplicaShardNeverScanned(t *testing.T) {
	params := DefaultParams()
	e, stores, _, _ := newTestEngine(t, 1, params)
	stores[0].SetMode(storage.ModeReplicateOnly)

	past := time.Now().Add(-time.Minute).UnixMilli()
	if err := stores[0].Set(0, []byte("k"), []byte("v"), 0, past); err != nil {
		t.Fatalf("set: %v", err)
	}

	if err := e.scanExpiredKeysJob(0); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if n := e.Stats().QueueDepth[0]; n != 0 {
		t.Fatalf("expected no entries enqueued on a replica shard, got %d", n)
	}
}

// Bounded work per job: a scan never enqueues more than ScanBatch
// entries in one invocation.
func TestEngine_ScanBatchBound(t *testing.T) {
	params := DefaultParams()
	params.ScanBatch = 3
	e, stores, _, _ := newTestEngine(t, 1, params)

	past := time.Now().Add(-time.Minute).UnixMilli()
	for i := 0; i < 10; i++ {
		k := []byte{byte('a' + i)}
		if err := stores[0].Set(0, k, []byte("v"), 0, past); err != nil {
			t.Fatalf("set: %v", err)
		}
	}

	if err := e.scanExpiredKeysJob(0); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if n := e.Stats().QueueDepth[0]; n != 3 {
		t.Fatalf("expected exactly ScanBatch=3 entries enqueued, got %d", n)
	}
}

// Clean shutdown: Stop must return only after in-flight pool workers
// have drained.
func TestEngine_CleanShutdown(t *testing.T) {
	params := DefaultParams()
	params.PauseTime = 2 * time.Millisecond
	e, _, _, _ := newTestEngine(t, 4, params)
	e.Startup()
	time.Sleep(10 * time.Millisecond)
	e.Stop()
	if e.IsRunning() {
		t.Fatalf("expected engine to report stopped")
	}
}
