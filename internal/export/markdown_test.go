package export

import (
	"strings"
	"testing"

	"letsee/internal/model"
)

func exportSnapshot() *model.SessionSnapshot {
	return &model.SessionSnapshot{
		SessionID:   "sess-42",
		Mode:        model.ModeInvite,
		Phase:       model.PhaseFinished,
		ChosenTopic: "Homework should be optional",
		EndReason:   model.EndReasonEnded,
		Participants: map[model.Role]model.ParticipantSnapshot{
			model.RolePro: {Name: "alice", TimeSpent: 42},
			model.RoleCon: {Name: "bob", TimeSpent: 38, Warnings: 1},
		},
		Transcript: []model.Turn{
			{Index: 0, Role: model.RolePro, Speaker: "alice", Content: "Opening statement.", TimeTaken: 20},
			{Index: 1, Role: model.RoleCon, Speaker: "bob", Content: "Counterpoint.", TimeTaken: 18},
		},
		Result: &model.JudgingResult{
			Winner:    "pro",
			Overall:   map[model.Role]float64{model.RolePro: 7.25, model.RoleCon: 6.5},
			Rationale: "Pro carried the burden of proof.",
			Penalties: map[model.Role]float64{model.RoleCon: 1.0},
			PerTurn: []model.TurnScore{
				{Turn: 0, Role: model.RolePro, Score: 7.25, Rating: "Strong", Feedback: "clear | structured"},
				{Turn: 1, Role: model.RoleCon, Score: 6.5, Rating: "Competent", Feedback: "needs evidence"},
			},
			Review: model.Review{
				Pro:     model.RoleReview{Strengths: []string{"Clear framing."}},
				Con:     model.RoleReview{Improvements: []string{"Cite sources."}},
				Overall: "A solid exchange.",
			},
		},
	}
}

func TestMarkdownFullDocument(t *testing.T) {
	doc := string(Markdown(exportSnapshot()))

	wantParts := []string{
		"# Debate Results — Homework should be optional",
		"- Ended by: explicit end action",
		"- **PRO**: alice (spoke for 42s)",
		"- **CON**: bob (spoke for 38s, 1 warning(s))",
		"**1. alice (pro)** — 20s",
		"Opening statement.",
		"**Winner: PRO**",
		"Pro carried the burden of proof.",
		"| pro | 7.25 |",
		"- con: -1.00",
		"| 1 | pro | 7.25 | Strong | clear \\| structured |",
		"**Overall**: A solid exchange.",
	}
	for _, part := range wantParts {
		if !strings.Contains(doc, part) {
			t.Errorf("document missing %q", part)
		}
	}
}

func TestMarkdownEmptyTranscript(t *testing.T) {
	snap := exportSnapshot()
	snap.Transcript = nil
	snap.Result = nil
	snap.JudgingError = "scoring service unreachable"

	doc := string(Markdown(snap))
	if !strings.Contains(doc, "_No arguments were submitted._") {
		t.Error("missing empty-transcript placeholder")
	}
	if !strings.Contains(doc, "_Judging failed: scoring service unreachable_") {
		t.Error("missing judging failure note")
	}
}

func TestMarkdownFlaggedResult(t *testing.T) {
	snap := exportSnapshot()
	snap.Result.Flagged = true

	doc := string(Markdown(snap))
	if !strings.Contains(doc, "_This result was flagged for review._") {
		t.Error("missing flagged marker")
	}
}

func TestMarkdownFallsBackToSessionTitle(t *testing.T) {
	snap := exportSnapshot()
	snap.ChosenTopic = ""

	doc := string(Markdown(snap))
	if !strings.Contains(doc, "# Debate Results — Debate sess-42") {
		t.Error("missing session-id title fallback")
	}
}
