// Package debate owns the per-session state machine. Every mutating command
// against a session (participant actions, timer expiries, countdown ticks
// and the judging-result merge) is funneled through one ordered channel and
// applied by a single goroutine, so racing events resolve by arrival order
// and the loser gets a rejection instead of being merged.
package debate

import (
	"context"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"letsee/internal/model"
	"letsee/internal/moderation"
	"letsee/internal/timer"
)

// Broadcaster fans events out to the connections bound to a session. The
// realtime gateway implements it; tests plug in a recorder.
type Broadcaster interface {
	ToSession(sessionID string, event string, payload interface{})
	ToRole(sessionID string, role model.Role, event string, payload interface{})
}

// Judge runs the judging pipeline over a finished session snapshot.
type Judge interface {
	Judge(ctx context.Context, snap *model.SessionSnapshot) (*model.JudgingResult, error)
}

// Outbound event names.
const (
	EventSessionUpdate   = "session:update"
	EventSessionError    = "session:error"
	EventTopicVetoed     = "topic:vetoed"
	EventTopicProposed   = "topic:customProposed"
	EventTopicSelected   = "topic:selected"
	EventDebateStarted   = "debate:started"
	EventDebateFinished  = "debate:finished"
	EventMessageNew      = "message:new"
	EventTimerTurn       = "timer:turn"
	EventTimerTotal      = "timer:total"
	EventTimerTurnExp    = "timer:turnExpired"
	EventTimerTotalExp   = "timer:totalExpired"
	EventModerationWarn  = "moderation:warning"
	EventJudgingComplete = "judging:complete"
)

// Deps are the collaborators an engine needs. Rand must be dedicated to this
// engine; it is only used from inside the event loop.
type Deps struct {
	Scheduler   *timer.Scheduler
	Gate        *moderation.Gate
	Broadcaster Broadcaster
	Judge       Judge
	Rand        *rand.Rand
	Logger      *slog.Logger
}

type command struct {
	fn    func() error
	reply chan error
}

// Engine serializes all mutations of one session.
type Engine struct {
	session *model.Session
	deps    Deps

	cmds   chan command
	ctx    context.Context
	cancel context.CancelFunc

	// resultDone is closed once a judging result or judging error has
	// been merged, letting finalize/export calls wait for it.
	resultDone chan struct{}

	// turnEpoch identifies the currently armed turn timer. An expiry can
	// fire in the scheduler after the turn it timed was already consumed
	// by an accepted message; its post carries the epoch it was armed
	// with, and a mismatch means it lost the race and must be dropped.
	turnEpoch int
}

// NewEngine wraps a freshly created session and starts its event loop.
func NewEngine(session *model.Session, deps Deps) *Engine {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		session:    session,
		deps:       deps,
		cmds:       make(chan command, 64),
		ctx:        ctx,
		cancel:     cancel,
		resultDone: make(chan struct{}),
	}
	go e.run()
	return e
}

// ID returns the session identifier.
func (e *Engine) ID() string { return e.session.ID }

func (e *Engine) run() {
	for {
		select {
		case <-e.ctx.Done():
			return
		case cmd := <-e.cmds:
			err := cmd.fn()
			if cmd.reply != nil {
				cmd.reply <- err
			}
		}
	}
}

// do applies fn inside the event loop and waits for the outcome.
func (e *Engine) do(fn func() error) error {
	reply := make(chan error, 1)
	select {
	case e.cmds <- command{fn: fn, reply: reply}:
	case <-e.ctx.Done():
		return model.ErrNotFound
	}
	select {
	case err := <-reply:
		return err
	case <-e.ctx.Done():
		return model.ErrNotFound
	}
}

// post applies fn inside the event loop without waiting. Used by timer
// callbacks and the judging goroutine; dropped if the engine is closed.
func (e *Engine) post(fn func() error) {
	select {
	case e.cmds <- command{fn: fn}:
	case <-e.ctx.Done():
	}
}

// Close stops the event loop and cancels all timers. Outstanding judging
// results are discarded on arrival.
func (e *Engine) Close() {
	e.deps.Scheduler.Cancel(e.session.ID)
	e.cancel()
}

// Snapshot returns an independent copy of the current session state.
func (e *Engine) Snapshot() *model.SessionSnapshot {
	var snap *model.SessionSnapshot
	err := e.do(func() error {
		snap = e.session.Snapshot()
		return nil
	})
	if err != nil {
		return e.session.Snapshot() // engine closed; state is frozen
	}
	return snap
}

// JoinSecond binds the given name to the unbound con role and advances the
// session to the veto phase. Used for both invite joins and random matches.
func (e *Engine) JoinSecond(name string) (*model.SessionSnapshot, error) {
	var snap *model.SessionSnapshot
	err := e.do(func() error {
		s := e.session
		if _, bound := s.Participants[model.RoleCon]; bound {
			return model.ErrSessionFull
		}
		if s.Participants[model.RolePro].Name == name {
			return model.ErrAlreadyInvited
		}
		s.Participants[model.RoleCon] = &model.Participant{
			Name:     name,
			Role:     model.RoleCon,
			JoinedAt: time.Now().UTC(),
		}
		s.Phase = model.PhaseVeto
		snap = s.Snapshot()
		e.broadcastUpdate()
		return nil
	})
	return snap, err
}

// Connect binds a connection id to a participant and marks it connected.
func (e *Engine) Connect(role model.Role, connID string) (*model.SessionSnapshot, error) {
	var snap *model.SessionSnapshot
	err := e.do(func() error {
		p, ok := e.session.Participants[role]
		if !ok {
			return model.ErrNotFound
		}
		p.ConnID = connID
		p.Connected = true
		snap = e.session.Snapshot()
		e.broadcastUpdate()
		return nil
	})
	return snap, err
}

// Disconnect marks a participant disconnected. The session keeps running;
// reconnection is expected.
func (e *Engine) Disconnect(role model.Role, connID string) {
	e.post(func() error {
		p, ok := e.session.Participants[role]
		if !ok || p.ConnID != connID {
			return nil
		}
		p.ConnID = ""
		p.Connected = false
		e.broadcastUpdate()
		return nil
	})
}

// SetTopics installs (or refreshes) the topic candidate list. The caller is
// responsible for checking the refresh limit before generating new topics.
func (e *Engine) SetTopics(topics []string, refreshed bool) error {
	return e.do(func() error {
		s := e.session
		if s.Phase != model.PhaseLobby && s.Phase != model.PhaseVeto {
			return model.ErrInvalidTransition
		}
		if refreshed {
			if s.TopicRefreshes >= s.Limits.TopicRefreshLimit {
				return model.ErrRefreshLimitExceeded
			}
			s.TopicRefreshes++
			for _, p := range s.Participants {
				p.VetoedTopic = ""
			}
		}
		s.TopicOptions = append([]string(nil), topics...)
		e.broadcastUpdate()
		return nil
	})
}

// Veto removes one topic candidate on behalf of a participant. Each
// participant gets exactly one veto per candidate list. When a single
// candidate remains, or everyone has vetoed and several remain, the topic
// locks deterministically and the coin toss fires.
func (e *Engine) Veto(role model.Role, topic string) error {
	return e.do(func() error {
		s := e.session
		if s.Phase != model.PhaseVeto {
			return model.ErrInvalidTransition
		}
		p, ok := s.Participants[role]
		if !ok {
			return model.ErrNotFound
		}
		if p.VetoedTopic != "" {
			return model.ErrInvalidState
		}
		if !contains(s.TopicOptions, topic) {
			return model.ErrInvalidTopic
		}
		p.VetoedTopic = topic
		e.broadcast(EventTopicVetoed, map[string]interface{}{"role": role, "topic": topic})

		remaining := s.RemainingTopics()
		switch {
		case len(remaining) == 1:
			e.lockTopic(remaining[0])
		case s.VetoesExhausted() && s.TopicRefreshes >= s.Limits.TopicRefreshLimit && len(remaining) > 1:
			// Deadline rule: no vetoes and no refreshes left, pick the
			// first unvetoed candidate in list order.
			e.lockTopic(remaining[0])
		default:
			// Vetoes are spent but a refresh or custom topic can still
			// resolve the list, so the session stays in veto.
			e.broadcastUpdate()
		}
		return nil
	})
}

// ProposeCustomTopic handles the invite-mode custom topic path. The first
// proposal from one side is pending until the other side sends the same
// topic, which confirms it and locks it in.
func (e *Engine) ProposeCustomTopic(role model.Role, topic string) error {
	return e.do(func() error {
		s := e.session
		if !s.CustomTopicAllowed {
			return model.ErrInvalidState
		}
		if s.Phase != model.PhaseLobby && s.Phase != model.PhaseVeto {
			return model.ErrInvalidTransition
		}
		if _, ok := s.Participants[role]; !ok {
			return model.ErrNotFound
		}

		if s.PendingCustomTopic == topic && !s.CustomConfirms[role] && len(s.CustomConfirms) > 0 {
			s.CustomConfirms[role] = true
			if s.Phase == model.PhaseVeto && len(s.Participants) == 2 {
				e.lockTopic(topic)
				return nil
			}
			e.broadcastUpdate()
			return nil
		}

		s.PendingCustomTopic = topic
		s.CustomConfirms = map[model.Role]bool{role: true}
		e.broadcast(EventTopicProposed, map[string]interface{}{"role": role, "topic": topic})
		e.broadcastUpdate()
		return nil
	})
}

// SelectTopic confirms a topic through the request/response interface: a
// candidate from the list, or any topic when custom topics are allowed.
func (e *Engine) SelectTopic(topic string, custom bool) error {
	return e.do(func() error {
		s := e.session
		if s.Phase != model.PhaseVeto {
			return model.ErrInvalidTransition
		}
		if len(s.Participants) < 2 {
			return model.ErrInvalidState
		}
		if custom && !s.CustomTopicAllowed {
			return model.ErrInvalidState
		}
		if !custom && !contains(s.TopicOptions, topic) {
			return model.ErrInvalidTopic
		}
		e.lockTopic(topic)
		return nil
	})
}

// lockTopic resolves topic negotiation, computes the coin toss once and
// advances to the coin_toss phase. Must run inside the event loop.
func (e *Engine) lockTopic(topic string) {
	s := e.session
	s.ChosenTopic = topic
	s.Phase = model.PhaseCoinToss
	s.PendingCustomTopic = ""

	pro := s.Participants[model.RolePro]
	con := s.Participants[model.RoleCon]
	if e.deps.Rand.Intn(2) == 0 {
		// Swap: the two debaters trade sides.
		pro.Role, con.Role = model.RoleCon, model.RolePro
		s.Participants[model.RolePro], s.Participants[model.RoleCon] = con, pro
	}
	s.CoinToss = map[model.Role]string{
		model.RolePro: s.Participants[model.RolePro].Name,
		model.RoleCon: s.Participants[model.RoleCon].Name,
	}
	s.CurrentTurn = model.RolePro

	e.deps.Logger.Info("topic locked",
		"session", s.ID, "topic", topic,
		"pro", s.CoinToss[model.RolePro], "con", s.CoinToss[model.RoleCon])
	e.broadcast(EventTopicSelected, map[string]interface{}{"topic": topic})
	e.broadcastUpdate()
}

// CoinTossAck acknowledges the coin-toss reveal. The first ack from either
// side starts the debate; later acks are no-ops.
func (e *Engine) CoinTossAck(role model.Role) error {
	return e.do(func() error {
		s := e.session
		switch s.Phase {
		case model.PhaseDebating:
			return nil // already acknowledged, idempotent
		case model.PhaseCoinToss:
		default:
			return model.ErrInvalidTransition
		}
		s.Phase = model.PhaseDebating
		s.CoinTossDone = true
		s.CurrentTurn = model.RolePro

		e.startTotalTimer()
		e.startTurnTimer()
		e.broadcast(EventDebateStarted, s.Snapshot())
		e.broadcastUpdate()
		return nil
	})
}

// SubmitMessage runs the moderation gate and turn-order check, appends the
// turn and flips the active role. Out-of-turn or out-of-phase messages are
// rejected without mutating state.
func (e *Engine) SubmitMessage(role model.Role, text string, maxLength int) error {
	return e.do(func() error {
		s := e.session
		if s.Phase != model.PhaseDebating {
			return model.ErrInvalidTransition
		}
		if strings.TrimSpace(text) == "" {
			return model.ErrEmptyArgument
		}
		if maxLength > 0 && len(text) > maxLength {
			return model.ErrArgumentTooLong
		}
		if s.CurrentTurn != role {
			return model.ErrNotYourTurn
		}
		p := s.Participants[role]

		verdict := e.deps.Gate.Evaluate(text)
		if !verdict.Accepted {
			p.Warnings++
			e.deps.Broadcaster.ToRole(s.ID, role, EventModerationWarn, map[string]interface{}{
				"original":   text,
				"censored":   verdict.Sanitized,
				"violations": verdict.Violations,
				"warnings":   p.Warnings,
				"remaining":  s.Limits.MaxWarnings - p.Warnings,
			})
		}

		elapsed := e.deps.Scheduler.ConsumeTurn(s.ID)
		turn := s.RecordTurn(role, verdict.Sanitized, elapsed)
		p.TimeSpent += elapsed
		s.TotalElapsed += elapsed

		e.broadcast(EventMessageNew, turn)
		e.broadcastUpdate()

		if !verdict.Accepted && p.Warnings >= s.Limits.MaxWarnings {
			e.finish(model.EndReasonModerationCap)
			return nil
		}
		if len(s.Transcript) >= s.Limits.MaxTurns {
			e.finish(model.EndReasonMaxTurns)
			return nil
		}
		e.startTurnTimer()
		return nil
	})
}

// EndDebate is the explicit end action available to either participant
// while debating.
func (e *Engine) EndDebate(role model.Role) error {
	return e.do(func() error {
		if e.session.Phase != model.PhaseDebating {
			return model.ErrInvalidTransition
		}
		if _, ok := e.session.Participants[role]; !ok {
			return model.ErrNotFound
		}
		e.finish(model.EndReasonEnded)
		return nil
	})
}

// Finalize forces judging for a session in any non-terminal phase, then
// waits for the result (or judging failure) to be merged.
func (e *Engine) Finalize(ctx context.Context) (*model.SessionSnapshot, error) {
	err := e.do(func() error {
		if e.session.Phase == model.PhaseFinished {
			return nil
		}
		e.finish(model.EndReasonEnded)
		return nil
	})
	if err != nil {
		return nil, err
	}
	select {
	case <-e.resultDone:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-e.ctx.Done():
	}
	return e.Snapshot(), nil
}

// finish transitions to the terminal phase, cancels both timers and kicks
// off the judging pipeline. Must run inside the event loop; idempotent.
func (e *Engine) finish(reason model.EndReason) {
	s := e.session
	if s.Phase == model.PhaseFinished {
		return
	}
	e.deps.Scheduler.Cancel(s.ID)
	s.Phase = model.PhaseFinished
	s.EndReason = reason
	now := time.Now().UTC()
	s.FinishedAt = &now

	e.deps.Logger.Info("debate finished", "session", s.ID, "reason", reason, "turns", len(s.Transcript))
	e.broadcast(EventDebateFinished, s.Snapshot())
	e.broadcastUpdate()

	if e.deps.Judge == nil {
		close(e.resultDone)
		return
	}
	go e.runJudging(s.Snapshot())
}

// runJudging executes the pipeline off the event loop and merges the result
// back through it. A closed engine discards the result.
func (e *Engine) runJudging(snap *model.SessionSnapshot) {
	result, err := e.deps.Judge.Judge(e.ctx, snap)
	e.post(func() error {
		if err != nil {
			e.session.JudgingError = err.Error()
			e.deps.Logger.Error("judging failed", "session", e.session.ID, "error", err)
		} else {
			e.session.Result = result
		}
		close(e.resultDone)
		e.broadcast(EventJudgingComplete, e.session.Snapshot())
		e.broadcastUpdate()
		return nil
	})
}

func (e *Engine) startTurnTimer() {
	s := e.session
	e.turnEpoch++
	epoch := e.turnEpoch
	e.deps.Scheduler.StartTurn(s.ID, s.Limits.TurnSeconds,
		func(remaining int) {
			e.post(func() error {
				if e.session.Phase == model.PhaseDebating && epoch == e.turnEpoch {
					e.broadcast(EventTimerTurn, map[string]interface{}{"seconds": remaining})
				}
				return nil
			})
		},
		func() {
			e.post(func() error {
				return e.handleTurnExpiry(epoch)
			})
		},
	)
	e.broadcast(EventTimerTurn, map[string]interface{}{"seconds": s.Limits.TurnSeconds})
}

func (e *Engine) startTotalTimer() {
	s := e.session
	e.deps.Scheduler.StartTotal(s.ID, s.Limits.TotalSeconds,
		func(remaining int) {
			e.post(func() error {
				if e.session.Phase == model.PhaseDebating {
					e.broadcast(EventTimerTotal, map[string]interface{}{"seconds": remaining})
				}
				return nil
			})
		},
		func() {
			e.post(e.handleTotalExpiry)
		},
	)
	e.broadcast(EventTimerTotal, map[string]interface{}{"seconds": s.Limits.TotalSeconds})
}

// handleTurnExpiry force-switches the active role without appending a turn.
// Non-fatal: the debate continues with a fresh turn timer. An epoch mismatch
// means an accepted message already consumed the timed turn; the stale
// expiry is rejected, never merged.
func (e *Engine) handleTurnExpiry(epoch int) error {
	s := e.session
	if s.Phase != model.PhaseDebating || epoch != e.turnEpoch {
		return nil // lost the race against a finishing event or accepted turn
	}
	stalled := s.CurrentTurn
	s.Participants[stalled].TimeSpent += s.Limits.TurnSeconds
	s.TotalElapsed += s.Limits.TurnSeconds
	s.MissedTurns[stalled]++
	s.CurrentTurn = s.NextRole()

	e.broadcast(EventTimerTurnExp, map[string]interface{}{"role": stalled})
	e.broadcastUpdate()
	e.startTurnTimer()
	return nil
}

// handleTotalExpiry forces the debating -> finished transition.
func (e *Engine) handleTotalExpiry() error {
	s := e.session
	if s.Phase != model.PhaseDebating {
		return nil
	}
	s.TotalElapsed = s.Limits.TotalSeconds
	e.broadcast(EventTimerTotalExp, map[string]interface{}{})
	e.finish(model.EndReasonTotalTime)
	return nil
}

func (e *Engine) broadcast(event string, payload interface{}) {
	e.deps.Broadcaster.ToSession(e.session.ID, event, payload)
}

func (e *Engine) broadcastUpdate() {
	e.deps.Broadcaster.ToSession(e.session.ID, EventSessionUpdate, e.session.Snapshot())
}

func contains(list []string, item string) bool {
	for _, candidate := range list {
		if candidate == item {
			return true
		}
	}
	return false
}
