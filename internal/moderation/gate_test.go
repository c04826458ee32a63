package moderation

import (
	"reflect"
	"testing"
)

func TestEvaluate(t *testing.T) {
	gate := NewGate([]string{"hate", "violence", "terror"})

	tests := []struct {
		name           string
		text           string
		wantAccepted   bool
		wantSanitized  string
		wantViolations []string
	}{
		{
			name:          "clean message",
			text:          "Renewable energy reduces long-term costs.",
			wantAccepted:  true,
			wantSanitized: "Renewable energy reduces long-term costs.",
		},
		{
			name:           "single violation masked",
			text:           "I hate this argument.",
			wantAccepted:   false,
			wantSanitized:  "I **** this argument.",
			wantViolations: []string{"hate"},
		},
		{
			name:           "case insensitive match",
			text:           "HATE is not an argument",
			wantAccepted:   false,
			wantSanitized:  "**** is not an argument",
			wantViolations: []string{"hate"},
		},
		{
			name:           "multiple phrases",
			text:           "violence and terror everywhere",
			wantAccepted:   false,
			wantSanitized:  "******** and ****** everywhere",
			wantViolations: []string{"violence", "terror"},
		},
		{
			name:           "repeated phrase masked everywhere",
			text:           "hate hate hate",
			wantAccepted:   false,
			wantSanitized:  "**** **** ****",
			wantViolations: []string{"hate"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := gate.Evaluate(tt.text)
			if got.Accepted != tt.wantAccepted {
				t.Errorf("Accepted = %v, want %v", got.Accepted, tt.wantAccepted)
			}
			if got.Sanitized != tt.wantSanitized {
				t.Errorf("Sanitized = %q, want %q", got.Sanitized, tt.wantSanitized)
			}
			if !reflect.DeepEqual(got.Violations, tt.wantViolations) {
				t.Errorf("Violations = %v, want %v", got.Violations, tt.wantViolations)
			}
		})
	}
}

func TestNewGateSkipsEmptyPhrases(t *testing.T) {
	gate := NewGate([]string{"", "  ", "spam"})
	if got := gate.Evaluate("no spam here"); got.Accepted {
		t.Error("expected violation for 'spam'")
	}
	if got := gate.Evaluate("perfectly fine"); !got.Accepted {
		t.Errorf("clean text rejected: %+v", got)
	}
}
