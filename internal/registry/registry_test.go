package registry

import (
	"context"
	"testing"
	"time"

	"letsee/internal/model"
	"letsee/internal/moderation"
	"letsee/internal/timer"
)

type noopBroadcaster struct{}

func (noopBroadcaster) ToSession(sessionID string, event string, payload interface{}) {}
func (noopBroadcaster) ToRole(sessionID string, role model.Role, event string, payload interface{}) {
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	sched := timer.New(5 * time.Millisecond)
	t.Cleanup(sched.Shutdown)

	limits := model.Limits{
		TurnSeconds:       1000,
		TotalSeconds:      10000,
		MaxTurns:          60,
		TopicRefreshLimit: 1,
		MaxWarnings:       3,
	}
	return New(limits, Deps{
		Scheduler:   sched,
		Gate:        moderation.NewGate(nil),
		Broadcaster: noopBroadcaster{},
		Seed:        7,
	})
}

func TestCreateAndJoinInvite(t *testing.T) {
	r := newTestRegistry(t)

	snap, err := r.CreateInvite("alice")
	if err != nil {
		t.Fatalf("CreateInvite: %v", err)
	}
	if snap.Mode != model.ModeInvite {
		t.Fatalf("mode = %q, want invite", snap.Mode)
	}
	if len(snap.InviteCode) != 6 {
		t.Fatalf("invite code = %q, want 6 chars", snap.InviteCode)
	}
	if snap.Phase != model.PhaseLobby {
		t.Fatalf("phase = %q, want lobby", snap.Phase)
	}

	if _, err := r.JoinInvite("NOPE42", "bob"); err != model.ErrNotFound {
		t.Fatalf("join with bad code: err = %v, want ErrNotFound", err)
	}

	joined, err := r.JoinInvite(snap.InviteCode, "bob")
	if err != nil {
		t.Fatalf("JoinInvite: %v", err)
	}
	if joined.SessionID != snap.SessionID {
		t.Fatalf("joined session %q, want %q", joined.SessionID, snap.SessionID)
	}
	if joined.Phase != model.PhaseVeto {
		t.Fatalf("phase after join = %q, want veto", joined.Phase)
	}

	if _, err := r.JoinInvite(snap.InviteCode, "carol"); err != model.ErrSessionFull {
		t.Fatalf("third participant: err = %v, want ErrSessionFull", err)
	}
}

func TestJoinRandomMatchesWaitingPlayer(t *testing.T) {
	r := newTestRegistry(t)

	first, matched, err := r.JoinRandom("alice")
	if err != nil {
		t.Fatalf("first JoinRandom: %v", err)
	}
	if matched {
		t.Fatal("first caller must wait, not match")
	}
	if first.Mode != model.ModeRandom {
		t.Fatalf("mode = %q, want random", first.Mode)
	}

	second, matched, err := r.JoinRandom("bob")
	if err != nil {
		t.Fatalf("second JoinRandom: %v", err)
	}
	if !matched {
		t.Fatal("second caller must match the waiting session")
	}
	if second.SessionID != first.SessionID {
		t.Fatalf("matched into %q, want waiting session %q", second.SessionID, first.SessionID)
	}
	if second.Phase != model.PhaseVeto {
		t.Fatalf("phase after match = %q, want veto", second.Phase)
	}

	third, matched, err := r.JoinRandom("carol")
	if err != nil {
		t.Fatalf("third JoinRandom: %v", err)
	}
	if matched {
		t.Fatal("third caller must open a fresh waiting session")
	}
	if third.SessionID == first.SessionID {
		t.Fatal("consumed waiting slot was reused")
	}
}

func TestJoinRandomKeepsWaiterOnNameClash(t *testing.T) {
	r := newTestRegistry(t)

	waiting, _, err := r.JoinRandom("sam")
	if err != nil {
		t.Fatalf("JoinRandom: %v", err)
	}

	if _, _, err := r.JoinRandom("sam"); err != model.ErrAlreadyInvited {
		t.Fatalf("same name rematch: err = %v, want ErrAlreadyInvited", err)
	}

	// The waiting slot must survive the failed match.
	snap, matched, err := r.JoinRandom("pat")
	if err != nil {
		t.Fatalf("JoinRandom after clash: %v", err)
	}
	if !matched || snap.SessionID != waiting.SessionID {
		t.Fatalf("got session %q matched=%v, want waiting session %q", snap.SessionID, matched, waiting.SessionID)
	}
}

func TestGetAndRemove(t *testing.T) {
	r := newTestRegistry(t)

	snap, err := r.CreateInvite("alice")
	if err != nil {
		t.Fatalf("CreateInvite: %v", err)
	}
	if _, err := r.Get(snap.SessionID); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if _, err := r.Get("missing"); err != model.ErrNotFound {
		t.Fatalf("Get missing: err = %v, want ErrNotFound", err)
	}

	r.Remove(snap.SessionID)
	if _, err := r.Get(snap.SessionID); err != model.ErrNotFound {
		t.Fatalf("Get after remove: err = %v, want ErrNotFound", err)
	}
	if _, err := r.JoinInvite(snap.InviteCode, "bob"); err != model.ErrNotFound {
		t.Fatalf("join removed session: err = %v, want ErrNotFound", err)
	}
}

func TestReaperEvictsFinishedSessions(t *testing.T) {
	r := newTestRegistry(t)

	finished, err := r.CreateInvite("alice")
	if err != nil {
		t.Fatalf("CreateInvite: %v", err)
	}
	live, err := r.CreateInvite("bob")
	if err != nil {
		t.Fatalf("CreateInvite: %v", err)
	}

	engine, err := r.Get(finished.SessionID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := engine.Finalize(ctx); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	time.Sleep(10 * time.Millisecond)
	r.reapOnce(time.Millisecond)

	if _, err := r.Get(finished.SessionID); err != model.ErrNotFound {
		t.Fatal("finished session survived the reaper")
	}
	if _, err := r.Get(live.SessionID); err != nil {
		t.Fatalf("live session was reaped: %v", err)
	}
}

func TestInviteCodesAreUnique(t *testing.T) {
	r := newTestRegistry(t)

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		snap, err := r.CreateInvite("host")
		if err != nil {
			t.Fatalf("CreateInvite #%d: %v", i, err)
		}
		if seen[snap.InviteCode] {
			t.Fatalf("duplicate invite code %q", snap.InviteCode)
		}
		seen[snap.InviteCode] = true
	}
}
