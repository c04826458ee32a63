package model

// TurnScore is the judged score for a single transcript turn.
type TurnScore struct {
	Turn     int     `json:"turn" bson:"turn"`
	Role     Role    `json:"role" bson:"role"`
	Score    float64 `json:"score" bson:"score"`
	Rating   string  `json:"rating" bson:"rating"`
	Feedback string  `json:"feedback" bson:"feedback"`
}

// RoleReview holds the qualitative assessment for one debate side.
type RoleReview struct {
	Strengths    []string `json:"strengths" bson:"strengths"`
	Improvements []string `json:"improvements" bson:"improvements"`
}

// Review is the structured qualitative section of a judging result.
type Review struct {
	Pro     RoleReview `json:"pro" bson:"pro"`
	Con     RoleReview `json:"con" bson:"con"`
	Overall string     `json:"overall" bson:"overall"`
}

// ScoreSet is the raw scoring output for a transcript, produced by the
// external scorer or the local heuristic fallback.
type ScoreSet struct {
	PerTurn []TurnScore      `json:"perArgument"`
	Overall map[Role]float64 `json:"overall"`
	Winner  string           `json:"winner"`
	Summary string           `json:"summary"`
}

// JudgingResult is the final outcome attached to a finished session.
// Winner is "pro", "con" or "tie".
type JudgingResult struct {
	Winner    string           `json:"winner" bson:"winner"`
	Overall   map[Role]float64 `json:"overall" bson:"overall"`
	PerTurn   []TurnScore      `json:"perArgument" bson:"perArgument"`
	Rationale string           `json:"rationale" bson:"rationale"`
	Flagged   bool             `json:"flagged" bson:"flagged"`
	Review    Review           `json:"review" bson:"review"`
	Penalties map[Role]float64 `json:"penalties" bson:"penalties"`
}
