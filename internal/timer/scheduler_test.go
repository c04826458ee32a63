package timer

import (
	"sync/atomic"
	"testing"
	"time"
)

const testInterval = 5 * time.Millisecond

func TestTurnTimerExpiresOnce(t *testing.T) {
	s := New(testInterval)
	defer s.Shutdown()

	var expired atomic.Int32
	var ticks atomic.Int32
	s.StartTurn("s1", 3,
		func(remaining int) { ticks.Add(1) },
		func() { expired.Add(1) },
	)

	time.Sleep(10 * testInterval)
	if got := expired.Load(); got != 1 {
		t.Fatalf("expiry fired %d times, want 1", got)
	}
	if got := ticks.Load(); got != 2 {
		t.Errorf("got %d ticks, want 2 (remaining 2 and 1)", got)
	}
	if _, ok := s.RemainingTurn("s1"); ok {
		t.Error("expired timer still registered")
	}
}

func TestCancelPreventsExpiry(t *testing.T) {
	s := New(testInterval)
	defer s.Shutdown()

	var expired atomic.Int32
	s.StartTurn("s1", 2, nil, func() { expired.Add(1) })
	s.CancelTurn("s1")

	time.Sleep(6 * testInterval)
	if got := expired.Load(); got != 0 {
		t.Fatalf("cancelled timer fired %d times", got)
	}
}

func TestCancelStopsBothTimers(t *testing.T) {
	s := New(testInterval)
	defer s.Shutdown()

	var fired atomic.Int32
	s.StartTurn("s1", 2, nil, func() { fired.Add(1) })
	s.StartTotal("s1", 2, nil, func() { fired.Add(1) })
	s.Cancel("s1")

	time.Sleep(6 * testInterval)
	if got := fired.Load(); got != 0 {
		t.Fatalf("cancelled timers fired %d times", got)
	}
	if _, ok := s.RemainingTotal("s1"); ok {
		t.Error("total timer still registered after Cancel")
	}
}

func TestRestartReplacesTurnTimer(t *testing.T) {
	s := New(testInterval)
	defer s.Shutdown()

	var first, second atomic.Int32
	s.StartTurn("s1", 2, nil, func() { first.Add(1) })
	s.StartTurn("s1", 4, nil, func() { second.Add(1) })

	time.Sleep(8 * testInterval)
	if got := first.Load(); got != 0 {
		t.Errorf("replaced timer fired %d times", got)
	}
	if got := second.Load(); got != 1 {
		t.Errorf("replacement fired %d times, want 1", got)
	}
}

func TestConsumeTurnReturnsElapsed(t *testing.T) {
	s := New(testInterval)
	defer s.Shutdown()

	var expired atomic.Int32
	s.StartTurn("s1", 20, nil, func() { expired.Add(1) })
	time.Sleep(4 * testInterval)

	elapsed := s.ConsumeTurn("s1")
	if elapsed < 2 || elapsed > 6 {
		t.Errorf("elapsed = %d, want roughly 4", elapsed)
	}

	time.Sleep(4 * testInterval)
	if got := expired.Load(); got != 0 {
		t.Fatalf("consumed timer fired %d times", got)
	}
	if again := s.ConsumeTurn("s1"); again != 0 {
		t.Errorf("second consume = %d, want 0", again)
	}
}

func TestTimersAreIndependentPerSession(t *testing.T) {
	s := New(testInterval)
	defer s.Shutdown()

	var a, b atomic.Int32
	s.StartTurn("a", 2, nil, func() { a.Add(1) })
	s.StartTurn("b", 2, nil, func() { b.Add(1) })
	s.CancelTurn("a")

	time.Sleep(6 * testInterval)
	if got := a.Load(); got != 0 {
		t.Errorf("session a fired %d times after cancel", got)
	}
	if got := b.Load(); got != 1 {
		t.Errorf("session b fired %d times, want 1", got)
	}
}
