// Package timer provides per-session countdown tasks for the debate engine:
// a turn timer reset on every accepted message and a total timer that runs
// for the whole debate. Both emit periodic ticks and a single expiry signal.
package timer

import (
	"sync"
	"time"
)

type kind int

const (
	kindTurn kind = iota
	kindTotal
)

// Scheduler owns all countdown tasks, keyed by session id. Tasks are
// cancelable at any time; a cancelled task never fires its expiry callback.
type Scheduler struct {
	interval time.Duration

	mu    sync.Mutex
	tasks map[string]map[kind]*task
}

type task struct {
	stop      chan struct{}
	stopOnce  sync.Once
	startedAt time.Time
	seconds   int
}

func (t *task) cancel() {
	t.stopOnce.Do(func() { close(t.stop) })
}

// New creates a scheduler. interval is the length of one countdown second;
// production uses time.Second, tests shrink it to run fast.
func New(interval time.Duration) *Scheduler {
	return &Scheduler{
		interval: interval,
		tasks:    make(map[string]map[kind]*task),
	}
}

// StartTurn begins (or restarts) the turn countdown for a session. onTick is
// called with the remaining seconds after every elapsed interval; onExpire is
// called exactly once when the countdown reaches zero.
func (s *Scheduler) StartTurn(sessionID string, seconds int, onTick func(remaining int), onExpire func()) {
	s.start(sessionID, kindTurn, seconds, onTick, onExpire)
}

// StartTotal begins (or restarts) the total-debate countdown for a session.
func (s *Scheduler) StartTotal(sessionID string, seconds int, onTick func(remaining int), onExpire func()) {
	s.start(sessionID, kindTotal, seconds, onTick, onExpire)
}

func (s *Scheduler) start(sessionID string, k kind, seconds int, onTick func(int), onExpire func()) {
	t := &task{
		stop:      make(chan struct{}),
		startedAt: time.Now(),
		seconds:   seconds,
	}

	s.mu.Lock()
	if s.tasks[sessionID] == nil {
		s.tasks[sessionID] = make(map[kind]*task)
	}
	if prev := s.tasks[sessionID][k]; prev != nil {
		prev.cancel()
	}
	s.tasks[sessionID][k] = t
	s.mu.Unlock()

	go s.run(sessionID, k, t, onTick, onExpire)
}

func (s *Scheduler) run(sessionID string, k kind, t *task, onTick func(int), onExpire func()) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	remaining := t.seconds
	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			remaining--
			if remaining > 0 {
				if onTick != nil {
					onTick(remaining)
				}
				continue
			}
			// Remove ourselves before firing so expiry handlers can
			// freely restart or cancel session timers.
			s.clear(sessionID, k, t)
			select {
			case <-t.stop:
				// Cancelled while the final tick was pending.
			default:
				onExpire()
			}
			return
		}
	}
}

// ConsumeTurn cancels the session's turn timer and returns how many whole
// seconds of it elapsed. Returns 0 when no turn timer is running.
func (s *Scheduler) ConsumeTurn(sessionID string) int {
	s.mu.Lock()
	t := s.take(sessionID, kindTurn)
	s.mu.Unlock()
	if t == nil {
		return 0
	}
	t.cancel()
	elapsed := int(time.Since(t.startedAt) / s.interval)
	if elapsed > t.seconds {
		elapsed = t.seconds
	}
	return elapsed
}

// RemainingTurn reports the seconds left on the session's turn timer.
func (s *Scheduler) RemainingTurn(sessionID string) (int, bool) {
	return s.remaining(sessionID, kindTurn)
}

// RemainingTotal reports the seconds left on the session's total timer.
func (s *Scheduler) RemainingTotal(sessionID string) (int, bool) {
	return s.remaining(sessionID, kindTotal)
}

func (s *Scheduler) remaining(sessionID string, k kind) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tasks[sessionID][k]
	if t == nil {
		return 0, false
	}
	left := t.seconds - int(time.Since(t.startedAt)/s.interval)
	if left < 0 {
		left = 0
	}
	return left, true
}

// CancelTurn stops the session's turn countdown, if any.
func (s *Scheduler) CancelTurn(sessionID string) {
	s.cancelKind(sessionID, kindTurn)
}

// CancelTotal stops the session's total countdown, if any.
func (s *Scheduler) CancelTotal(sessionID string) {
	s.cancelKind(sessionID, kindTotal)
}

// Cancel stops every countdown owned by the session. Called on any
// session-ending transition so no timer fires after completion.
func (s *Scheduler) Cancel(sessionID string) {
	s.mu.Lock()
	tasks := s.tasks[sessionID]
	delete(s.tasks, sessionID)
	s.mu.Unlock()
	for _, t := range tasks {
		t.cancel()
	}
}

// Shutdown cancels all countdowns across all sessions.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	all := s.tasks
	s.tasks = make(map[string]map[kind]*task)
	s.mu.Unlock()
	for _, tasks := range all {
		for _, t := range tasks {
			t.cancel()
		}
	}
}

func (s *Scheduler) cancelKind(sessionID string, k kind) {
	s.mu.Lock()
	t := s.take(sessionID, k)
	s.mu.Unlock()
	if t != nil {
		t.cancel()
	}
}

// take removes and returns the task under the lock.
func (s *Scheduler) take(sessionID string, k kind) *task {
	t := s.tasks[sessionID][k]
	if t != nil {
		delete(s.tasks[sessionID], k)
		if len(s.tasks[sessionID]) == 0 {
			delete(s.tasks, sessionID)
		}
	}
	return t
}

// clear removes the task only if it is still the registered one.
func (s *Scheduler) clear(sessionID string, k kind, t *task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tasks[sessionID][k] == t {
		delete(s.tasks[sessionID], k)
		if len(s.tasks[sessionID]) == 0 {
			delete(s.tasks, sessionID)
		}
	}
}
