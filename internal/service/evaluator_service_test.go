package service

import (
	"context"
	"errors"
	"testing"

	"letsee/internal/config"
	"letsee/internal/model"
)

func disabledService() *EvaluatorService {
	cfg := config.DefaultAIConfig()
	cfg.APIKey = ""
	return NewEvaluatorService(cfg, nil)
}

func TestGenerateTopicsFallsBackWhenDisabled(t *testing.T) {
	s := disabledService()

	topics := s.GenerateTopics(context.Background(), "")
	if len(topics) != 3 {
		t.Fatalf("topics = %d, want 3", len(topics))
	}
	for i, topic := range topics {
		if topic == "" {
			t.Fatalf("topic %d is empty", i)
		}
	}
}

func TestScoreTranscriptDisabled(t *testing.T) {
	s := disabledService()

	if _, err := s.ScoreTranscript(context.Background(), &model.SessionSnapshot{}); !errors.Is(err, ErrDisabled) {
		t.Fatalf("err = %v, want ErrDisabled", err)
	}
	if _, err := s.ReviewTranscript(context.Background(), &model.SessionSnapshot{}, nil); !errors.Is(err, ErrDisabled) {
		t.Fatalf("err = %v, want ErrDisabled", err)
	}
}

func TestRatingLabel(t *testing.T) {
	tests := []struct {
		score float64
		want  string
	}{
		{9.0, "Outstanding"},
		{8.5, "Outstanding"},
		{7.0, "Strong"},
		{6.0, "Competent"},
		{4.5, "Developing"},
		{2.0, "Needs Improvement"},
	}
	for _, tt := range tests {
		if got := RatingLabel(tt.score); got != tt.want {
			t.Errorf("RatingLabel(%v) = %q, want %q", tt.score, got, tt.want)
		}
	}
}
