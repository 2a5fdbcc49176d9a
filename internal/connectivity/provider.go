package connectivity

import "sync"

// Provider reports whether the remote authority is reachable and announces
// changes. Callbacks run on the goroutine that observed the change.
type Provider interface {
	IsOnline() bool
	OnChange(fn func(online bool)) (unsubscribe func())
}

// subscribers is the callback registry shared by the providers.
type subscribers struct {
	mu   sync.Mutex
	next int
	fns  map[int]func(bool)
}

func (s *subscribers) add(fn func(bool)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fns == nil {
		s.fns = make(map[int]func(bool))
	}
	id := s.next
	s.next++
	s.fns[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.fns, id)
	}
}

func (s *subscribers) notify(online bool) {
	s.mu.Lock()
	fns := make([]func(bool), 0, len(s.fns))
	for i := 0; i < s.next; i++ {
		if fn, ok := s.fns[i]; ok {
			fns = append(fns, fn)
		}
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(online)
	}
}

// Manual is a Provider whose state is set explicitly. It backs forced
// offline mode and tests.
type Manual struct {
	mu     sync.RWMutex
	online bool
	subs   subscribers
}

// NewManual returns a Manual provider in the given state.
func NewManual(online bool) *Manual {
	return &Manual{online: online}
}

func (m *Manual) IsOnline() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

func (m *Manual) OnChange(fn func(bool)) func() {
	return m.subs.add(fn)
}

// SetOnline changes the state and notifies subscribers when it differs.
func (m *Manual) SetOnline(online bool) {
	m.mu.Lock()
	changed := m.online != online
	m.online = online
	m.mu.Unlock()

	if changed {
		m.subs.notify(online)
	}
}
