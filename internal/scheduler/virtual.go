package scheduler

import (
	"sync"
	"time"
)

// Virtual is a Scheduler driven by Advance instead of the wall clock.
// Callbacks run synchronously on the goroutine calling Advance, in due-time
// order (ties broken by scheduling order), and may schedule or cancel timers.
type Virtual struct {
	mu     sync.Mutex
	now    time.Duration
	seq    int
	timers []*virtualTimer
}

type virtualTimer struct {
	v         *Virtual
	seq       int
	interval  time.Duration
	next      time.Duration
	fn        func()
	cancelled bool
}

// NewVirtual returns a virtual scheduler at time zero.
func NewVirtual() *Virtual {
	return &Virtual{}
}

func (v *Virtual) Schedule(interval time.Duration, fn func()) Handle {
	if interval <= 0 {
		interval = time.Nanosecond
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	t := &virtualTimer{v: v, seq: v.seq, interval: interval, next: v.now + interval, fn: fn}
	v.seq++
	v.timers = append(v.timers, t)
	return t
}

// Now returns the elapsed virtual time.
func (v *Virtual) Now() time.Duration {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.now
}

// Active returns the number of live timers.
func (v *Virtual) Active() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.timers)
}

// Advance moves the clock forward by d, firing every callback that comes due.
func (v *Virtual) Advance(d time.Duration) {
	v.mu.Lock()
	target := v.now + d
	v.mu.Unlock()

	for {
		v.mu.Lock()
		t := v.nextDue(target)
		if t == nil {
			v.now = target
			v.mu.Unlock()
			return
		}
		v.now = t.next
		t.next += t.interval
		fn := t.fn
		v.mu.Unlock()

		fn()
	}
}

// Tick advances by n whole seconds, one second at a time.
func (v *Virtual) Tick(n int) {
	for i := 0; i < n; i++ {
		v.Advance(time.Second)
	}
}

func (v *Virtual) nextDue(target time.Duration) *virtualTimer {
	var best *virtualTimer
	for _, t := range v.timers {
		if t.next > target {
			continue
		}
		if best == nil || t.next < best.next || (t.next == best.next && t.seq < best.seq) {
			best = t
		}
	}
	return best
}

func (t *virtualTimer) Cancel() {
	v := t.v
	v.mu.Lock()
	defer v.mu.Unlock()
	if t.cancelled {
		return
	}
	t.cancelled = true
	for i, other := range v.timers {
		if other == t {
			v.timers = append(v.timers[:i], v.timers[i+1:]...)
			break
		}
	}
}
