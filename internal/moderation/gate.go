// Package moderation implements the stateless content gate applied to every
// debate message before it can be appended to the transcript.
package moderation

import (
	"regexp"
	"strings"
)

// Verdict is the outcome of evaluating one message.
type Verdict struct {
	// Accepted is false only when the message violated the policy. The
	// sanitized text is still usable as turn content either way.
	Accepted   bool
	Sanitized  string
	Violations []string
}

// Gate masks blocked phrases in debate messages. It holds no per-session
// state; warning accounting lives on the session.
type Gate struct {
	patterns []gatePattern
}

type gatePattern struct {
	phrase string
	re     *regexp.Regexp
}

// NewGate compiles the given blocked phrases into a gate. Empty phrases are
// ignored.
func NewGate(phrases []string) *Gate {
	g := &Gate{}
	for _, phrase := range phrases {
		phrase = strings.TrimSpace(phrase)
		if phrase == "" {
			continue
		}
		g.patterns = append(g.patterns, gatePattern{
			phrase: phrase,
			re:     regexp.MustCompile("(?i)" + regexp.QuoteMeta(phrase)),
		})
	}
	return g
}

// Evaluate returns a censored version of the text and any violations found.
// Each matched phrase is replaced by asterisks of the same length.
func (g *Gate) Evaluate(text string) Verdict {
	sanitized := text
	var violations []string
	for _, p := range g.patterns {
		if !p.re.MatchString(sanitized) {
			continue
		}
		violations = append(violations, p.phrase)
		sanitized = p.re.ReplaceAllStringFunc(sanitized, func(match string) string {
			return strings.Repeat("*", len(match))
		})
	}
	return Verdict{
		Accepted:   len(violations) == 0,
		Sanitized:  sanitized,
		Violations: violations,
	}
}
