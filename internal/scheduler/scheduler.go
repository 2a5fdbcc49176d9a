// Package scheduler runs periodic callbacks. The real implementation uses
// tickers; Virtual advances a fake clock so timer-driven code can be tested
// deterministically.
package scheduler

import (
	"sync"
	"time"
)

// Handle cancels a scheduled callback. Cancel is idempotent and never blocks
// on an in-flight callback, so it is safe to call from inside one.
type Handle interface {
	Cancel()
}

// Scheduler runs fn every interval until the returned handle is cancelled.
type Scheduler interface {
	Schedule(interval time.Duration, fn func()) Handle
}

// Ticker is the wall-clock Scheduler. Each schedule owns one goroutine.
type Ticker struct{}

// NewTicker returns the wall-clock scheduler.
func NewTicker() *Ticker {
	return &Ticker{}
}

func (*Ticker) Schedule(interval time.Duration, fn func()) Handle {
	h := &tickerHandle{done: make(chan struct{})}
	t := time.NewTicker(interval)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-h.done:
				return
			case <-t.C:
				select {
				case <-h.done:
					return
				default:
				}
				fn()
			}
		}
	}()
	return h
}

type tickerHandle struct {
	once sync.Once
	done chan struct{}
}

func (h *tickerHandle) Cancel() {
	h.once.Do(func() { close(h.done) })
}
