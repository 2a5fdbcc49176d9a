package autosync

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/claude/fittrack/internal/connectivity"
	"github.com/claude/fittrack/internal/notify"
	"github.com/claude/fittrack/internal/workout"
	"go.uber.org/goleak"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// TestMain fails the package if a runner leaves goroutines behind.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeSyncer struct {
	calls   atomic.Int32
	result  workout.SyncResult
	started chan struct{}
	release chan struct{}
}

func (f *fakeSyncer) SyncOfflineData(ctx context.Context) workout.SyncResult {
	f.calls.Add(1)
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
		}
	}
	return f.result
}

// TestReconnectTriggersSync verifies going online runs a sync and notifies
// the applied count, while going offline does not.
func TestReconnectTriggersSync(t *testing.T) {
	conn := connectivity.NewManual(false)
	syncer := &fakeSyncer{
		result:  workout.SyncResult{Success: true, Message: "Synced 2 items successfully", Applied: 2},
		started: make(chan struct{}, 1),
	}
	notes := notify.NewRecorder(nil)
	r := New(syncer, conn, "", notes, discard)
	if err := r.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	conn.SetOnline(true)
	select {
	case <-syncer.started:
	case <-time.After(2 * time.Second):
		t.Fatal("reconnect did not trigger a sync")
	}
	conn.SetOnline(false)
	r.Stop()

	if got := syncer.calls.Load(); got != 1 {
		t.Errorf("sync calls = %d, want 1", got)
	}
	if notes.Count("Synced 2 items successfully") != 1 {
		t.Errorf("notifications = %+v", notes.Messages())
	}
}

// TestTriggerSkipsWhenOffline verifies no sync runs without connectivity.
func TestTriggerSkipsWhenOffline(t *testing.T) {
	syncer := &fakeSyncer{}
	r := New(syncer, connectivity.NewManual(false), "", notify.NewRecorder(nil), discard)
	if r.Trigger("manual") {
		t.Error("Trigger ran while offline")
	}
	if syncer.calls.Load() != 0 {
		t.Errorf("calls = %d", syncer.calls.Load())
	}
}

// TestOverlappingTriggersSkipped verifies a trigger during a running sync is
// dropped, and Stop cancels the in-flight sync.
func TestOverlappingTriggersSkipped(t *testing.T) {
	syncer := &fakeSyncer{
		result:  workout.SyncResult{Success: true, Message: "No data to sync"},
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	r := New(syncer, connectivity.NewManual(true), "", notify.NewRecorder(nil), discard)
	if err := r.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	done := make(chan bool)
	go func() { done <- r.Trigger("first") }()
	<-syncer.started

	if r.Trigger("second") {
		t.Error("overlapping trigger ran")
	}
	close(syncer.release)
	if !<-done {
		t.Error("first trigger reported not running")
	}
	r.Stop()

	if got := syncer.calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
}

// TestFailureNotified verifies a failed sync surfaces its message as an
// error notification.
func TestFailureNotified(t *testing.T) {
	syncer := &fakeSyncer{result: workout.SyncResult{Message: "Sync failed: timeout"}}
	notes := notify.NewRecorder(nil)
	r := New(syncer, connectivity.NewManual(true), "", notes, discard)
	r.Trigger("manual")

	msgs := notes.Messages()
	if len(msgs) != 1 || msgs[0].Level != notify.LevelError || msgs[0].Text != "Sync failed: timeout" {
		t.Errorf("notifications = %+v", msgs)
	}
}

// TestBadSchedule verifies an invalid cron spec is rejected at start.
func TestBadSchedule(t *testing.T) {
	r := New(&fakeSyncer{}, connectivity.NewManual(true), "every tuesday", notify.NewRecorder(nil), discard)
	if err := r.Start(context.Background()); err == nil {
		r.Stop()
		t.Fatal("expected schedule parse error")
	}
}

// stickyConn delivers changes to its subscriber even after unsubscribe, like
// a notification already in flight when the runner stops.
type stickyConn struct {
	fn func(bool)
}

func (c *stickyConn) IsOnline() bool { return true }

func (c *stickyConn) OnChange(fn func(bool)) func() {
	c.fn = fn
	return func() {}
}

// TestNoSyncAfterStop verifies a reconnect delivered after Stop starts no
// sync and no goroutine.
func TestNoSyncAfterStop(t *testing.T) {
	conn := &stickyConn{}
	syncer := &fakeSyncer{result: workout.SyncResult{Success: true, Message: "No data to sync"}}
	r := New(syncer, conn, "", notify.NewRecorder(nil), discard)
	if err := r.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	r.Stop()

	conn.fn(true)
	r.wg.Wait()
	if got := syncer.calls.Load(); got != 0 {
		t.Errorf("sync calls after Stop = %d, want 0", got)
	}
}
