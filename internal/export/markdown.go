// Package export renders a finished debate as a downloadable Markdown
// transcript document.
package export

import (
	"fmt"
	"strings"

	"letsee/internal/model"
)

// Markdown renders the full transcript document: topic, roster, coin toss,
// every turn, the verdict with scores and penalties, and the review.
func Markdown(snap *model.SessionSnapshot) []byte {
	var b strings.Builder

	title := snap.ChosenTopic
	if title == "" {
		title = "Debate " + snap.SessionID
	}
	fmt.Fprintf(&b, "# Debate Results — %s\n\n", title)
	fmt.Fprintf(&b, "- Session: `%s`\n", snap.SessionID)
	fmt.Fprintf(&b, "- Mode: %s\n", snap.Mode)
	fmt.Fprintf(&b, "- Status: %s\n", snap.Phase)
	if snap.EndReason != "" {
		fmt.Fprintf(&b, "- Ended by: %s\n", endReasonLabel(snap.EndReason))
	}
	b.WriteString("\n## Participants\n\n")
	for _, role := range []model.Role{model.RolePro, model.RoleCon} {
		if p, ok := snap.Participants[role]; ok {
			fmt.Fprintf(&b, "- **%s**: %s (spoke for %ds", strings.ToUpper(string(role)), p.Name, p.TimeSpent)
			if p.Warnings > 0 {
				fmt.Fprintf(&b, ", %d warning(s)", p.Warnings)
			}
			b.WriteString(")\n")
		}
	}

	b.WriteString("\n## Transcript\n\n")
	if len(snap.Transcript) == 0 {
		b.WriteString("_No arguments were submitted._\n")
	}
	for _, turn := range snap.Transcript {
		fmt.Fprintf(&b, "**%d. %s (%s)** — %ds\n\n%s\n\n",
			turn.Index+1, turn.Speaker, turn.Role, turn.TimeTaken, turn.Content)
	}

	if snap.Result != nil {
		writeResult(&b, snap.Result)
	} else if snap.JudgingError != "" {
		fmt.Fprintf(&b, "\n## Verdict\n\n_Judging failed: %s_\n", snap.JudgingError)
	}

	return []byte(b.String())
}

func writeResult(b *strings.Builder, result *model.JudgingResult) {
	b.WriteString("\n## Verdict\n\n")
	fmt.Fprintf(b, "**Winner: %s**\n\n", strings.ToUpper(result.Winner))
	if result.Rationale != "" {
		fmt.Fprintf(b, "%s\n\n", result.Rationale)
	}

	b.WriteString("| Role | Score |\n|------|-------|\n")
	for _, role := range []model.Role{model.RolePro, model.RoleCon} {
		fmt.Fprintf(b, "| %s | %.2f |\n", role, result.Overall[role])
	}

	if len(result.Penalties) > 0 {
		b.WriteString("\n### Penalties\n\n")
		for _, role := range []model.Role{model.RolePro, model.RoleCon} {
			if amount, ok := result.Penalties[role]; ok && amount > 0 {
				fmt.Fprintf(b, "- %s: -%.2f\n", role, amount)
			}
		}
	}

	if len(result.PerTurn) > 0 {
		b.WriteString("\n### Argument Scores\n\n")
		b.WriteString("| Turn | Role | Score | Rating | Feedback |\n|------|------|-------|--------|----------|\n")
		for _, score := range result.PerTurn {
			fmt.Fprintf(b, "| %d | %s | %.2f | %s | %s |\n",
				score.Turn+1, score.Role, score.Score, score.Rating,
				strings.ReplaceAll(score.Feedback, "|", "\\|"))
		}
	}

	b.WriteString("\n### Review\n\n")
	writeRoleReview(b, "Pro", result.Review.Pro)
	writeRoleReview(b, "Con", result.Review.Con)
	if result.Review.Overall != "" {
		fmt.Fprintf(b, "**Overall**: %s\n", result.Review.Overall)
	}
	if result.Flagged {
		b.WriteString("\n_This result was flagged for review._\n")
	}
}

func writeRoleReview(b *strings.Builder, label string, review model.RoleReview) {
	fmt.Fprintf(b, "**%s**\n\n", label)
	for _, s := range review.Strengths {
		fmt.Fprintf(b, "- Strength: %s\n", s)
	}
	for _, s := range review.Improvements {
		fmt.Fprintf(b, "- Improve: %s\n", s)
	}
	b.WriteString("\n")
}

func endReasonLabel(reason model.EndReason) string {
	switch reason {
	case model.EndReasonEnded:
		return "explicit end action"
	case model.EndReasonTotalTime:
		return "total time expired"
	case model.EndReasonMaxTurns:
		return "turn ceiling reached"
	case model.EndReasonModerationCap:
		return "moderation warning cap"
	default:
		return string(reason)
	}
}
