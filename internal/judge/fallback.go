package judge

import (
	"letsee/internal/model"
	"letsee/internal/service"
)

// heuristicScores is the deterministic local scorer used when the external
// service is unavailable: a flat base plus a length bonus per argument.
func heuristicScores(features []turnFeature) *model.ScoreSet {
	totals := map[model.Role]float64{}
	perTurn := make([]model.TurnScore, 0, len(features))
	for _, f := range features {
		score := 5.0 + lengthBonus(f.Length)
		totals[f.Role] += score
		perTurn = append(perTurn, model.TurnScore{
			Turn:     f.Index,
			Role:     f.Role,
			Score:    round2(score),
			Rating:   service.RatingLabel(score),
			Feedback: "Heuristic score assigned (scoring service offline).",
		})
	}
	for role, total := range totals {
		totals[role] = round2(total)
	}
	return &model.ScoreSet{
		PerTurn: perTurn,
		Overall: totals,
		Winner:  decideWinner(totals),
		Summary: "Scores generated via fallback heuristic.",
	}
}

func lengthBonus(length int) float64 {
	bonus := float64(length) / 300
	if bonus > 3 {
		bonus = 3
	}
	return bonus
}

// heuristicReview mirrors the shape of the external review so clients render
// fallback results identically.
func heuristicReview() *model.Review {
	return &model.Review{
		Pro: model.RoleReview{
			Strengths:    []string{"Consistent participation across turns."},
			Improvements: []string{"Incorporate more evidence to reinforce claims."},
		},
		Con: model.RoleReview{
			Strengths:    []string{"Provided clear rebuttals despite heuristic scoring."},
			Improvements: []string{"Expand on counterarguments to balance the discussion."},
		},
		Overall: "Heuristic review generated while the review service was unavailable.",
	}
}
