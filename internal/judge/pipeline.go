// Package judge implements the five-stage judging pipeline run on a finished
// debate: Intake -> Understand -> Decide -> Review -> Deliver. Each stage
// takes and returns a pipeline context; external calls are retried a bounded
// number of times and then replaced by deterministic local fallbacks so a
// session never ends up without a result.
package judge

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"letsee/internal/cache"
	"letsee/internal/memory"
	"letsee/internal/model"
	"letsee/internal/repository"
)

// Penalty tuning. Overtime beyond the total limit is divided by the divisor
// and split evenly between both roles; a participant who never spoke is
// penalized a flat amount; every forced turn switch costs its role a point.
const (
	overtimeDivisor   = 30.0
	silentPenalty     = 2.5
	missedTurnPenalty = 1.0
)

const relatedMaterialLimit = 5

// Scorer produces per-argument scores for a transcript.
type Scorer interface {
	ScoreTranscript(ctx context.Context, snap *model.SessionSnapshot) (*model.ScoreSet, error)
}

// Reviewer produces the qualitative strengths/improvements assessment.
type Reviewer interface {
	ReviewTranscript(ctx context.Context, snap *model.SessionSnapshot, overall map[model.Role]float64) (*model.Review, error)
}

// Pipeline wires the five stages with their external collaborators. Memory,
// archive and cache are optional; a nil value skips that side effect.
type Pipeline struct {
	scorer   Scorer
	reviewer Reviewer
	memory   memory.Store
	archive  repository.ArchiveRepo
	cache    cache.SnapshotCache
	logger   *slog.Logger
	retries  int
}

// pipeContext carries state between stages. Stages never mutate the
// snapshot; they only add derived data.
type pipeContext struct {
	snap     *model.SessionSnapshot
	related  []memory.Match
	features []turnFeature
	scores   *model.ScoreSet
	totals   map[model.Role]float64
	penalty  map[model.Role]float64
	review   *model.Review
	flagged  bool
	empty    bool
	result   *model.JudgingResult
}

type turnFeature struct {
	Index  int
	Role   model.Role
	Length int
	Taken  int
}

type stage struct {
	name string
	run  func(ctx context.Context, pc *pipeContext) error
}

// NewPipeline creates a judging pipeline. scorer and reviewer may be nil, in
// which case the local fallbacks are used directly.
func NewPipeline(scorer Scorer, reviewer Reviewer, mem memory.Store, archive repository.ArchiveRepo, snapCache cache.SnapshotCache, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		scorer:   scorer,
		reviewer: reviewer,
		memory:   mem,
		archive:  archive,
		cache:    snapCache,
		logger:   logger,
		retries:  2,
	}
}

// Judge runs all five stages over a finished session snapshot and returns
// the assembled result. An error means a pipeline-fatal failure beyond
// fallback; the session then carries an explicit judging-failed status.
func (p *Pipeline) Judge(ctx context.Context, snap *model.SessionSnapshot) (*model.JudgingResult, error) {
	pc := &pipeContext{snap: snap}
	stages := []stage{
		{"intake", p.intake},
		{"understand", p.understand},
		{"decide", p.decide},
		{"review", p.review},
		{"deliver", p.deliver},
	}
	for _, st := range stages {
		if err := st.run(ctx, pc); err != nil {
			return nil, fmt.Errorf("judging stage %s: %w", st.name, err)
		}
		p.logger.Info("judging stage complete", "stage", st.name, "session", snap.SessionID)
	}
	return pc.result, nil
}

// intake validates transcript completeness and gathers related material. An
// empty transcript short-circuits to a deterministic zero-score result; the
// remaining stages still run and Deliver assembles it.
func (p *Pipeline) intake(ctx context.Context, pc *pipeContext) error {
	if len(pc.snap.Participants) < 2 {
		return fmt.Errorf("both participants must be present, have %d", len(pc.snap.Participants))
	}
	for role, participant := range pc.snap.Participants {
		if participant.Name == "" {
			return fmt.Errorf("participant %s has no name", role)
		}
	}
	for i, turn := range pc.snap.Transcript {
		if turn.Index != i {
			return fmt.Errorf("transcript out of order at position %d (index %d)", i, turn.Index)
		}
	}

	if len(pc.snap.Transcript) == 0 {
		pc.empty = true
		pc.totals = map[model.Role]float64{model.RolePro: 0, model.RoleCon: 0}
		pc.penalty = map[model.Role]float64{}
		return nil
	}

	if p.memory != nil {
		last := pc.snap.Transcript[len(pc.snap.Transcript)-1]
		related, err := p.memory.Search(ctx, last.Content, relatedMaterialLimit)
		if err != nil {
			p.logger.Warn("argument memory search failed", "session", pc.snap.SessionID, "error", err)
		} else {
			pc.related = related
		}
	}
	return nil
}

// understand extracts per-turn features for scoring.
func (p *Pipeline) understand(ctx context.Context, pc *pipeContext) error {
	if pc.empty {
		return nil
	}
	pc.features = make([]turnFeature, len(pc.snap.Transcript))
	for i, turn := range pc.snap.Transcript {
		pc.features[i] = turnFeature{
			Index:  turn.Index,
			Role:   turn.Role,
			Length: len(turn.Content),
			Taken:  turn.TimeTaken,
		}
	}
	return nil
}

// decide obtains scores (external with fallback), sums them per role and
// applies timing/participation penalties.
func (p *Pipeline) decide(ctx context.Context, pc *pipeContext) error {
	if pc.empty {
		return nil
	}

	scores := p.obtainScores(ctx, pc)
	pc.scores = scores

	totals := map[model.Role]float64{model.RolePro: 0, model.RoleCon: 0}
	for _, entry := range scores.PerTurn {
		totals[entry.Role] += entry.Score
	}

	pc.penalty = p.calculatePenalties(pc.snap)
	for role, amount := range pc.penalty {
		totals[role] -= amount
	}
	pc.totals = totals
	return nil
}

func (p *Pipeline) obtainScores(ctx context.Context, pc *pipeContext) *model.ScoreSet {
	if p.scorer != nil {
		for attempt := 0; attempt <= p.retries; attempt++ {
			scores, err := p.scorer.ScoreTranscript(ctx, pc.snap)
			if err == nil {
				return scores
			}
			p.logger.Warn("external scoring failed",
				"session", pc.snap.SessionID, "attempt", attempt+1, "error", err)
		}
	}
	p.logger.Info("using heuristic fallback scoring", "session", pc.snap.SessionID)
	return heuristicScores(pc.features)
}

func (p *Pipeline) calculatePenalties(snap *model.SessionSnapshot) map[model.Role]float64 {
	penalties := map[model.Role]float64{}
	if snap.TotalElapsed > snap.TotalSeconds {
		overtime := float64(snap.TotalElapsed - snap.TotalSeconds)
		shared := round2(overtime/overtimeDivisor) / 2
		penalties[model.RolePro] += shared
		penalties[model.RoleCon] += shared
	}
	for role, participant := range snap.Participants {
		if participant.TimeSpent == 0 {
			penalties[role] += silentPenalty
		}
	}
	for role, missed := range snap.MissedTurns {
		penalties[role] += missedTurnPenalty * float64(missed)
	}
	return penalties
}

// review derives the qualitative assessment and flags results that need a
// human look (ties and empty score sets).
func (p *Pipeline) review(ctx context.Context, pc *pipeContext) error {
	if pc.empty {
		pc.flagged = true
		pc.review = heuristicReview()
		return nil
	}

	pc.review = p.obtainReview(ctx, pc)

	proTotal := round2(pc.totals[model.RolePro])
	conTotal := round2(pc.totals[model.RoleCon])
	pc.flagged = proTotal == conTotal
	return nil
}

func (p *Pipeline) obtainReview(ctx context.Context, pc *pipeContext) *model.Review {
	if p.reviewer != nil {
		for attempt := 0; attempt <= p.retries; attempt++ {
			review, err := p.reviewer.ReviewTranscript(ctx, pc.snap, pc.totals)
			if err == nil {
				return review
			}
			p.logger.Warn("external review failed",
				"session", pc.snap.SessionID, "attempt", attempt+1, "error", err)
		}
	}
	p.logger.Info("using heuristic fallback review", "session", pc.snap.SessionID)
	return heuristicReview()
}

// deliver assembles the final result, persists argument embeddings and
// archives the finished session. Persistence failures are logged, never
// fatal.
func (p *Pipeline) deliver(ctx context.Context, pc *pipeContext) error {
	winner := "tie"
	rationale := "No arguments were submitted."
	var perTurn []model.TurnScore

	if !pc.empty {
		winner = decideWinner(pc.totals)
		rationale = pc.scores.Summary
		perTurn = pc.scores.PerTurn
	}

	overall := make(map[model.Role]float64, len(pc.totals))
	for role, total := range pc.totals {
		overall[role] = round2(total)
	}

	pc.result = &model.JudgingResult{
		Winner:    winner,
		Overall:   overall,
		PerTurn:   perTurn,
		Rationale: rationale,
		Flagged:   pc.flagged,
		Review:    *pc.review,
		Penalties: pc.penalty,
	}

	if p.memory != nil && len(pc.snap.Transcript) > 0 {
		if err := p.memory.Upsert(ctx, pc.snap.SessionID, pc.snap.Transcript); err != nil {
			p.logger.Warn("argument memory upsert failed", "session", pc.snap.SessionID, "error", err)
		}
	}

	archived := *pc.snap
	archived.Result = pc.result
	if p.archive != nil {
		if err := p.archive.Save(ctx, &archived); err != nil {
			p.logger.Warn("session archive failed", "session", pc.snap.SessionID, "error", err)
		}
	}
	if p.cache != nil {
		if err := p.cache.Set(ctx, &archived); err != nil {
			p.logger.Warn("snapshot cache write failed", "session", pc.snap.SessionID, "error", err)
		}
	}
	return nil
}

func decideWinner(totals map[model.Role]float64) string {
	pro := round2(totals[model.RolePro])
	con := round2(totals[model.RoleCon])
	switch {
	case pro > con:
		return string(model.RolePro)
	case con > pro:
		return string(model.RoleCon)
	default:
		return "tie"
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
