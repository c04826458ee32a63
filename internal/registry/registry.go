// Package registry creates debate sessions and routes participant actions to
// the right engine. It owns the only shared mutable indexes: session id ->
// engine, invite code -> session id, and the single random-match waiting
// slot. Everything per-session is serialized inside the engine.
package registry

import (
	"context"
	crand "crypto/rand"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"letsee/internal/debate"
	"letsee/internal/model"
	"letsee/internal/moderation"
	"letsee/internal/timer"
)

// Deps are the collaborators handed to every session engine.
type Deps struct {
	Scheduler   *timer.Scheduler
	Gate        *moderation.Gate
	Broadcaster Broadcaster
	Judge       debate.Judge
	Logger      *slog.Logger

	// Seed drives all coin tosses; tests pin it for determinism.
	Seed int64
}

// Broadcaster re-exports the engine's fan-out contract.
type Broadcaster = debate.Broadcaster

// Registry is the injectable session store and matchmaker.
type Registry struct {
	limits model.Limits
	deps   Deps

	mu            sync.Mutex
	rng           *rand.Rand
	sessions      map[string]*debate.Engine
	byCode        map[string]string
	waitingRandom string
}

// New creates a registry. limits is the rule set stamped onto every new
// session.
func New(limits model.Limits, deps Deps) *Registry {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Seed == 0 {
		deps.Seed = time.Now().UnixNano()
	}
	return &Registry{
		limits:   limits,
		deps:     deps,
		rng:      rand.New(rand.NewSource(deps.Seed)),
		sessions: make(map[string]*debate.Engine),
		byCode:   make(map[string]string),
	}
}

// CreateInvite allocates an invite-mode session in the lobby phase with the
// caller bound to the pro role.
func (r *Registry) CreateInvite(name string) (*model.SessionSnapshot, error) {
	if name == "" {
		name = "Host"
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	code, err := r.generateInviteCode()
	if err != nil {
		return nil, err
	}
	engine := r.newSessionLocked(code, model.ModeInvite, name)
	return engine.Snapshot(), nil
}

// JoinInvite binds the caller to the unbound role of the session behind the
// given invite code and advances it to the veto phase.
func (r *Registry) JoinInvite(code, name string) (*model.SessionSnapshot, error) {
	if name == "" {
		name = "Guest"
	}
	r.mu.Lock()
	sessionID, ok := r.byCode[code]
	engine := r.sessions[sessionID]
	r.mu.Unlock()
	if !ok || engine == nil {
		return nil, model.ErrNotFound
	}
	return engine.JoinSecond(name)
}

// JoinRandom matches the caller with a waiting session or creates one.
// Matching is first-come-first-served: the oldest waiting session wins.
// matched reports whether a debate is ready (both sides bound).
func (r *Registry) JoinRandom(name string) (snap *model.SessionSnapshot, matched bool, err error) {
	if name == "" {
		name = "Player"
	}
	r.mu.Lock()
	if r.waitingRandom != "" {
		engine := r.sessions[r.waitingRandom]
		r.waitingRandom = ""
		r.mu.Unlock()
		if engine != nil {
			waitingID := engine.ID()
			snap, err = engine.JoinSecond(name)
			if err != nil {
				// Leave the waiting session available for the next caller.
				r.mu.Lock()
				if r.waitingRandom == "" {
					r.waitingRandom = waitingID
				}
				r.mu.Unlock()
				return nil, false, err
			}
			return snap, true, nil
		}
		r.mu.Lock()
	}
	defer r.mu.Unlock()

	code, err := r.generateInviteCode()
	if err != nil {
		return nil, false, err
	}
	engine := r.newSessionLocked(code, model.ModeRandom, name)
	r.waitingRandom = engine.ID()
	return engine.Snapshot(), false, nil
}

// Get returns the engine owning the given session.
func (r *Registry) Get(sessionID string) (*debate.Engine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	engine, ok := r.sessions[sessionID]
	if !ok {
		return nil, model.ErrNotFound
	}
	return engine, nil
}

// Remove evicts a session, closing its event loop and cancelling timers.
func (r *Registry) Remove(sessionID string) {
	r.mu.Lock()
	engine, ok := r.sessions[sessionID]
	if ok {
		delete(r.sessions, sessionID)
		if r.waitingRandom == sessionID {
			r.waitingRandom = ""
		}
		for code, id := range r.byCode {
			if id == sessionID {
				delete(r.byCode, code)
			}
		}
	}
	r.mu.Unlock()
	if ok {
		engine.Close()
	}
}

// StartReaper evicts finished sessions older than retention. Finished
// sessions are archived by the judging pipeline before eviction, so result
// and export queries keep working against the archive.
func (r *Registry) StartReaper(ctx context.Context, retention, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.reapOnce(retention)
			}
		}
	}()
}

func (r *Registry) reapOnce(retention time.Duration) {
	r.mu.Lock()
	engines := make([]*debate.Engine, 0, len(r.sessions))
	for _, engine := range r.sessions {
		engines = append(engines, engine)
	}
	r.mu.Unlock()

	cutoff := time.Now().Add(-retention)
	for _, engine := range engines {
		snap := engine.Snapshot()
		if snap.Phase == model.PhaseFinished && snap.FinishedAt != nil && snap.FinishedAt.Before(cutoff) {
			r.deps.Logger.Info("reaping finished session", "session", snap.SessionID)
			r.Remove(snap.SessionID)
		}
	}
}

// newSessionLocked allocates a session and its engine. Caller holds r.mu.
func (r *Registry) newSessionLocked(code string, mode model.SessionMode, hostName string) *debate.Engine {
	id := uuid.NewString()
	session := model.NewSession(id, code, mode, hostName, r.limits)
	engine := debate.NewEngine(session, debate.Deps{
		Scheduler:   r.deps.Scheduler,
		Gate:        r.deps.Gate,
		Broadcaster: r.deps.Broadcaster,
		Judge:       r.deps.Judge,
		Rand:        rand.New(rand.NewSource(r.rng.Int63())),
		Logger:      r.deps.Logger,
	})
	r.sessions[id] = engine
	r.byCode[code] = id
	r.deps.Logger.Info("session created", "session", id, "mode", mode, "code", code)
	return engine
}

// generateInviteCode creates a 6-char code unique among active sessions.
// Caller holds r.mu.
func (r *Registry) generateInviteCode() (string, error) {
	const chars = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	const codeLen = 6

	for attempts := 0; attempts < 10; attempts++ {
		b := make([]byte, codeLen)
		if _, err := crand.Read(b); err != nil {
			return "", err
		}
		code := make([]byte, codeLen)
		for i := range code {
			code[i] = chars[int(b[i])%len(chars)]
		}
		if _, taken := r.byCode[string(code)]; !taken {
			return string(code), nil
		}
	}
	return "", fmt.Errorf("failed to generate unique invite code")
}
