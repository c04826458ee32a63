package judge

import (
	"context"
	"errors"
	"strings"
	"testing"

	"letsee/internal/memory"
	"letsee/internal/model"
)

type stubScorer struct {
	calls int
	set   *model.ScoreSet
	err   error
}

func (s *stubScorer) ScoreTranscript(ctx context.Context, snap *model.SessionSnapshot) (*model.ScoreSet, error) {
	s.calls++
	return s.set, s.err
}

type stubReviewer struct {
	calls  int
	review *model.Review
	err    error
}

func (r *stubReviewer) ReviewTranscript(ctx context.Context, snap *model.SessionSnapshot, overall map[model.Role]float64) (*model.Review, error) {
	r.calls++
	return r.review, r.err
}

type fakeMemory struct {
	upserts   int
	searchErr error
	matches   []memory.Match
}

func (m *fakeMemory) Upsert(ctx context.Context, sessionID string, turns []model.Turn) error {
	m.upserts++
	return nil
}

func (m *fakeMemory) Search(ctx context.Context, content string, limit int) ([]memory.Match, error) {
	return m.matches, m.searchErr
}

type fakeArchive struct {
	saved *model.SessionSnapshot
}

func (a *fakeArchive) Save(ctx context.Context, snap *model.SessionSnapshot) error {
	a.saved = snap
	return nil
}

func (a *fakeArchive) GetByID(ctx context.Context, id string) (*model.SessionSnapshot, error) {
	return a.saved, nil
}

func (a *fakeArchive) Delete(ctx context.Context, id string) error { return nil }

func judgingSnapshot(turns []model.Turn) *model.SessionSnapshot {
	return &model.SessionSnapshot{
		SessionID: "sess-judge",
		Mode:      model.ModeInvite,
		Phase:     model.PhaseFinished,
		Participants: map[model.Role]model.ParticipantSnapshot{
			model.RolePro: {Name: "alice", TimeSpent: 40},
			model.RoleCon: {Name: "bob", TimeSpent: 35},
		},
		Transcript:   turns,
		TotalElapsed: 75,
		TotalSeconds: 600,
		MaxTurns:     60,
	}
}

func turnsOf(lengths ...int) []model.Turn {
	turns := make([]model.Turn, len(lengths))
	for i, length := range lengths {
		role := model.RolePro
		if i%2 == 1 {
			role = model.RoleCon
		}
		turns[i] = model.Turn{
			Index:   i,
			Role:    role,
			Speaker: string(role),
			Content: strings.Repeat("a", length),
		}
	}
	return turns
}

func TestEmptyTranscriptYieldsFlaggedTie(t *testing.T) {
	scorer := &stubScorer{err: errors.New("must not be called")}
	reviewer := &stubReviewer{err: errors.New("must not be called")}
	p := NewPipeline(scorer, reviewer, nil, nil, nil, nil)

	result, err := p.Judge(context.Background(), judgingSnapshot(nil))
	if err != nil {
		t.Fatalf("Judge: %v", err)
	}
	if result.Winner != "tie" {
		t.Fatalf("winner = %q, want tie", result.Winner)
	}
	if !result.Flagged {
		t.Fatal("empty transcript must be flagged for review")
	}
	if result.Overall[model.RolePro] != 0 || result.Overall[model.RoleCon] != 0 {
		t.Fatalf("overall = %v, want zeros", result.Overall)
	}
	if result.Rationale != "No arguments were submitted." {
		t.Fatalf("rationale = %q", result.Rationale)
	}
	if scorer.calls != 0 || reviewer.calls != 0 {
		t.Fatalf("external services called on empty transcript (%d, %d)", scorer.calls, reviewer.calls)
	}
	if result.Review.Overall == "" {
		t.Fatal("empty transcript still needs a review body")
	}
}

func TestScorerFailureFallsBackToHeuristic(t *testing.T) {
	scorer := &stubScorer{err: errors.New("upstream 503")}
	reviewer := &stubReviewer{err: errors.New("upstream 503")}
	p := NewPipeline(scorer, reviewer, nil, nil, nil, nil)

	// 300 chars earns the pro side a full length bonus over the con side.
	snap := judgingSnapshot(turnsOf(300, 30))

	result, err := p.Judge(context.Background(), snap)
	if err != nil {
		t.Fatalf("Judge: %v", err)
	}
	if scorer.calls != 3 {
		t.Fatalf("scorer called %d times, want initial try plus 2 retries", scorer.calls)
	}
	if reviewer.calls != 3 {
		t.Fatalf("reviewer called %d times, want initial try plus 2 retries", reviewer.calls)
	}
	if result.Winner != "pro" {
		t.Fatalf("winner = %q, want pro (longer argument)", result.Winner)
	}
	if result.Overall[model.RolePro] != 6.0 {
		t.Fatalf("pro overall = %v, want 6.0", result.Overall[model.RolePro])
	}
	if len(result.PerTurn) != 2 {
		t.Fatalf("per-turn scores = %d, want 2", len(result.PerTurn))
	}
	if result.Rationale != "Scores generated via fallback heuristic." {
		t.Fatalf("rationale = %q", result.Rationale)
	}
	if result.Review.Overall == "" {
		t.Fatal("fallback review missing")
	}
}

func TestExternalScoresUsedWhenAvailable(t *testing.T) {
	scorer := &stubScorer{set: &model.ScoreSet{
		PerTurn: []model.TurnScore{
			{Turn: 0, Role: model.RolePro, Score: 8.0, Rating: "Strong"},
			{Turn: 1, Role: model.RoleCon, Score: 9.0, Rating: "Outstanding"},
		},
		Summary: "Con argued with sharper evidence.",
	}}
	reviewer := &stubReviewer{review: &model.Review{Overall: "A close debate."}}
	p := NewPipeline(scorer, reviewer, nil, nil, nil, nil)

	result, err := p.Judge(context.Background(), judgingSnapshot(turnsOf(50, 50)))
	if err != nil {
		t.Fatalf("Judge: %v", err)
	}
	if scorer.calls != 1 {
		t.Fatalf("scorer called %d times, want 1", scorer.calls)
	}
	if result.Winner != "con" {
		t.Fatalf("winner = %q, want con", result.Winner)
	}
	if result.Rationale != "Con argued with sharper evidence." {
		t.Fatalf("rationale = %q", result.Rationale)
	}
	if result.Review.Overall != "A close debate." {
		t.Fatalf("review = %q", result.Review.Overall)
	}
	if result.Flagged {
		t.Fatal("decisive result must not be flagged")
	}
}

func TestTieScoresAreFlagged(t *testing.T) {
	scorer := &stubScorer{set: &model.ScoreSet{
		PerTurn: []model.TurnScore{
			{Turn: 0, Role: model.RolePro, Score: 7.0},
			{Turn: 1, Role: model.RoleCon, Score: 7.0},
		},
		Summary: "Evenly matched.",
	}}
	reviewer := &stubReviewer{review: &model.Review{Overall: "Even."}}
	p := NewPipeline(scorer, reviewer, nil, nil, nil, nil)

	result, err := p.Judge(context.Background(), judgingSnapshot(turnsOf(50, 50)))
	if err != nil {
		t.Fatalf("Judge: %v", err)
	}
	if result.Winner != "tie" {
		t.Fatalf("winner = %q, want tie", result.Winner)
	}
	if !result.Flagged {
		t.Fatal("tied totals must be flagged")
	}
}

func TestCalculatePenalties(t *testing.T) {
	p := NewPipeline(nil, nil, nil, nil, nil, nil)

	snap := judgingSnapshot(turnsOf(50, 50))
	snap.TotalElapsed = snap.TotalSeconds + 60
	pro := snap.Participants[model.RolePro]
	con := snap.Participants[model.RoleCon]
	con.TimeSpent = 0
	snap.Participants[model.RolePro] = pro
	snap.Participants[model.RoleCon] = con
	snap.MissedTurns = map[model.Role]int{model.RolePro: 2}

	penalties := p.calculatePenalties(snap)

	// Overtime 60s / 30 = 2.0, split 1.0 per side.
	if got := penalties[model.RolePro]; got != 1.0+2*missedTurnPenalty {
		t.Fatalf("pro penalty = %v, want overtime share plus missed turns", got)
	}
	if got := penalties[model.RoleCon]; got != 1.0+silentPenalty {
		t.Fatalf("con penalty = %v, want overtime share plus silent penalty", got)
	}
}

func TestPenaltiesLowerTotals(t *testing.T) {
	scorer := &stubScorer{set: &model.ScoreSet{
		PerTurn: []model.TurnScore{
			{Turn: 0, Role: model.RolePro, Score: 7.0},
			{Turn: 1, Role: model.RoleCon, Score: 6.0},
		},
		Summary: "Pro led on substance.",
	}}
	reviewer := &stubReviewer{review: &model.Review{Overall: "ok"}}
	p := NewPipeline(scorer, reviewer, nil, nil, nil, nil)

	snap := judgingSnapshot(turnsOf(50, 50))
	snap.MissedTurns = map[model.Role]int{model.RolePro: 3}

	result, err := p.Judge(context.Background(), snap)
	if err != nil {
		t.Fatalf("Judge: %v", err)
	}
	// 7.0 - 3 missed turns puts pro below con.
	if result.Winner != "con" {
		t.Fatalf("winner = %q, want con after penalties", result.Winner)
	}
	if result.Overall[model.RolePro] != 4.0 {
		t.Fatalf("pro overall = %v, want 4.0", result.Overall[model.RolePro])
	}
	if result.Penalties[model.RolePro] != 3.0 {
		t.Fatalf("pro penalty = %v, want 3.0", result.Penalties[model.RolePro])
	}
}

func TestIntakeRejectsMalformedSessions(t *testing.T) {
	p := NewPipeline(nil, nil, nil, nil, nil, nil)

	solo := judgingSnapshot(nil)
	delete(solo.Participants, model.RoleCon)
	if _, err := p.Judge(context.Background(), solo); err == nil {
		t.Fatal("single-participant session must fail intake")
	}

	shuffled := judgingSnapshot(turnsOf(50, 50))
	shuffled.Transcript[0].Index = 5
	if _, err := p.Judge(context.Background(), shuffled); err == nil {
		t.Fatal("out-of-order transcript must fail intake")
	}
}

func TestDeliverPersistsBestEffort(t *testing.T) {
	mem := &fakeMemory{searchErr: errors.New("redis down")}
	archive := &fakeArchive{}
	scorer := &stubScorer{err: errors.New("offline")}
	reviewer := &stubReviewer{err: errors.New("offline")}
	p := NewPipeline(scorer, reviewer, mem, archive, nil, nil)

	result, err := p.Judge(context.Background(), judgingSnapshot(turnsOf(300, 30)))
	if err != nil {
		t.Fatalf("Judge: %v", err)
	}
	if mem.upserts != 1 {
		t.Fatalf("memory upserts = %d, want 1", mem.upserts)
	}
	if archive.saved == nil {
		t.Fatal("finished session was not archived")
	}
	if archive.saved.Result == nil || archive.saved.Result.Winner != result.Winner {
		t.Fatal("archived snapshot missing the judging result")
	}
}
