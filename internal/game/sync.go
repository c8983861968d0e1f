package game

import (
	"sync"
	"time"
)

// sessionLocks hands out one mutex per session id and forgets it once no
// goroutine holds or waits for it.
type sessionLocks struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{locks: make(map[string]*refMutex)}
}

// lock blocks until the session's mutex is held and returns its release func.
func (l *sessionLocks) lock(sessionID string) func() {
	l.mu.Lock()
	m, ok := l.locks[sessionID]
	if !ok {
		m = &refMutex{}
		l.locks[sessionID] = m
	}
	m.refs++
	l.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		l.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(l.locks, sessionID)
		}
		l.mu.Unlock()
	}
}

// sessionTimers tracks pending continuations per session so they can be
// cancelled when the session finishes or the process shuts down.
type sessionTimers struct {
	mu     sync.Mutex
	timers map[string]map[*time.Timer]struct{}
	closed bool
}

func newSessionTimers() *sessionTimers {
	return &sessionTimers{timers: make(map[string]map[*time.Timer]struct{})}
}

func (t *sessionTimers) after(sessionID string, d time.Duration, fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}

	var tm *time.Timer
	// The callback takes t.mu before touching tm, so tm is always assigned.
	tm = time.AfterFunc(d, func() {
		t.mu.Lock()
		set, ok := t.timers[sessionID]
		_, pending := set[tm]
		if pending {
			delete(set, tm)
			if len(set) == 0 {
				delete(t.timers, sessionID)
			}
		}
		t.mu.Unlock()
		if ok && pending {
			fn()
		}
	})

	set, ok := t.timers[sessionID]
	if !ok {
		set = make(map[*time.Timer]struct{})
		t.timers[sessionID] = set
	}
	set[tm] = struct{}{}
}

func (t *sessionTimers) stop(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for tm := range t.timers[sessionID] {
		tm.Stop()
	}
	delete(t.timers, sessionID)
}

func (t *sessionTimers) pending(sessionID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.timers[sessionID])
}

func (t *sessionTimers) close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	for _, set := range t.timers {
		for tm := range set {
			tm.Stop()
		}
	}
	t.timers = make(map[string]map[*time.Timer]struct{})
}
