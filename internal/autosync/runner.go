// Package autosync drains the offline queue when connectivity returns and on
// a cron schedule.
package autosync

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/claude/fittrack/internal/connectivity"
	"github.com/claude/fittrack/internal/notify"
	"github.com/claude/fittrack/internal/workout"
	"github.com/robfig/cron/v3"
)

// Syncer drains pending offline data.
type Syncer interface {
	SyncOfflineData(ctx context.Context) workout.SyncResult
}

// Runner triggers syncs. At most one sync runs at a time; a trigger that
// arrives while one is running is dropped.
type Runner struct {
	syncer   Syncer
	conn     connectivity.Provider
	notify   notify.Notifier
	log      *slog.Logger
	schedule string

	running sync.Mutex
	wg      sync.WaitGroup

	// mu guards stopped against reconnect callbacks delivered during Stop.
	mu      sync.Mutex
	stopped bool

	cron        *cron.Cron
	ctx         context.Context
	cancel      context.CancelFunc
	unsubscribe func()
}

// New creates a runner. An empty schedule disables the periodic retry.
func New(syncer Syncer, conn connectivity.Provider, schedule string, n notify.Notifier, log *slog.Logger) *Runner {
	return &Runner{
		syncer:   syncer,
		conn:     conn,
		notify:   n,
		log:      log,
		schedule: schedule,
	}
}

// Start subscribes to connectivity changes and starts the schedule.
func (r *Runner) Start(ctx context.Context) error {
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.cron = cron.New()
	if r.schedule != "" {
		if _, err := r.cron.AddFunc(r.schedule, func() { r.Trigger("schedule") }); err != nil {
			r.cancel()
			return fmt.Errorf("parsing sync schedule %q: %w", r.schedule, err)
		}
	}
	r.cron.Start()

	r.unsubscribe = r.conn.OnChange(func(online bool) {
		if !online {
			r.log.Info("connectivity lost, mutations will be queued")
			return
		}
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.stopped {
			return
		}
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.Trigger("reconnect")
		}()
	})
	r.log.Info("auto-sync started", "schedule", r.schedule)
	return nil
}

// Trigger runs one sync unless offline or another sync is in flight. It
// reports whether a sync ran.
func (r *Runner) Trigger(reason string) bool {
	if !r.conn.IsOnline() {
		r.log.Debug("sync skipped while offline", "reason", reason)
		return false
	}
	if !r.running.TryLock() {
		r.log.Debug("sync already running", "reason", reason)
		return false
	}
	defer r.running.Unlock()

	ctx := r.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	res := r.syncer.SyncOfflineData(ctx)
	switch {
	case !res.Success:
		r.log.Warn("auto-sync failed", "reason", reason, "message", res.Message)
		r.notify.Notify(notify.LevelError, res.Message)
	case res.Applied > 0:
		r.log.Info("auto-sync applied queued changes", "reason", reason, "applied", res.Applied)
		r.notify.Notify(notify.LevelSuccess, res.Message)
	default:
		r.log.Debug("auto-sync found nothing to do", "reason", reason)
	}
	return true
}

// Stop unsubscribes, cancels any in-flight sync and waits for it to return.
func (r *Runner) Stop() {
	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()

	if r.unsubscribe != nil {
		r.unsubscribe()
	}
	if r.cancel != nil {
		r.cancel()
	}
	if r.cron != nil {
		<-r.cron.Stop().Done()
	}
	r.wg.Wait()
}
