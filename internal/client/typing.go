package client

import (
	"sync"
	"time"
)

// typingState holds per-peer typing indicators with auto-expiry: a lost
// typing_stop event must not leave a stale indicator, so every typing_start
// arms a quiet-period timer that clears it.
type typingState struct {
	mu     sync.Mutex
	quiet  time.Duration
	active map[int64]bool
	timers map[int64]*time.Timer
	notify func(userID int64, isTyping bool)
}

func newTypingState(quiet time.Duration, notify func(int64, bool)) *typingState {
	return &typingState{
		quiet:  quiet,
		active: make(map[int64]bool),
		timers: make(map[int64]*time.Timer),
		notify: notify,
	}
}

func (t *typingState) set(userID int64, isTyping bool) {
	t.mu.Lock()
	if timer, ok := t.timers[userID]; ok {
		timer.Stop()
		delete(t.timers, userID)
	}
	if isTyping {
		t.active[userID] = true
		t.timers[userID] = time.AfterFunc(t.quiet, func() { t.expire(userID) })
	} else {
		delete(t.active, userID)
	}
	t.mu.Unlock()

	if t.notify != nil {
		t.notify(userID, isTyping)
	}
}

func (t *typingState) expire(userID int64) {
	t.mu.Lock()
	delete(t.active, userID)
	delete(t.timers, userID)
	t.mu.Unlock()

	if t.notify != nil {
		t.notify(userID, false)
	}
}

func (t *typingState) isTyping(userID int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active[userID]
}

func (t *typingState) stopAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for userID, timer := range t.timers {
		timer.Stop()
		delete(t.timers, userID)
	}
	for userID := range t.active {
		delete(t.active, userID)
	}
}
