package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"letsee/internal/config"
	"letsee/internal/model"
)

// ErrDisabled is returned when no API key is configured. Callers fall back
// to their deterministic local paths.
var ErrDisabled = errors.New("gemini api not configured")

// EvaluatorService calls the Gemini API for topic generation, transcript
// scoring and qualitative review. Scoring and review return errors so the
// judging pipeline owns retry and fallback; topic generation falls back
// internally because topics are cosmetic.
type EvaluatorService struct {
	config *config.AIConfig
	client *http.Client
	logger *slog.Logger
}

// NewEvaluatorService creates a new evaluator service.
func NewEvaluatorService(cfg *config.AIConfig, logger *slog.Logger) *EvaluatorService {
	if cfg == nil {
		cfg = config.DefaultAIConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &EvaluatorService{
		config: cfg,
		client: &http.Client{
			Timeout: time.Duration(cfg.TimeoutMS) * time.Millisecond,
		},
		logger: logger,
	}
}

// fallbackTopics is served whenever Gemini is unavailable.
var fallbackTopics = []string{
	"Should remote teams adopt four-day work weeks?",
	"Is universal basic income a sustainable policy?",
	"Do large language models improve developer productivity?",
}

// GenerateTopics asks Gemini for three balanced debate topics. Never fails:
// on any error the deterministic fallback list is returned.
func (s *EvaluatorService) GenerateTopics(ctx context.Context, hint string) []string {
	if !s.config.IsEnabled() {
		return fallbackTopics
	}
	prompt := "You are helping set up a friendly debate. Suggest three neutral," +
		" contemporary topics that work well for a timed debate." +
		" Avoid controversial or harmful content." +
		" Respond as a JSON list of short topic strings."
	if hint != "" {
		prompt += fmt.Sprintf(" The host hinted the debate should involve: %s.", hint)
	}

	response, err := s.callGemini(ctx, s.config.Models.Topics, prompt)
	if err != nil {
		s.logger.Warn("topic generation failed, using fallback topics", "error", err)
		return fallbackTopics
	}

	var topics []string
	if err := json.Unmarshal([]byte(response), &topics); err != nil {
		s.logger.Warn("unparseable topic response, using fallback topics", "error", err)
		return fallbackTopics
	}
	cleaned := make([]string, 0, 3)
	for _, topic := range topics {
		if t := strings.TrimSpace(topic); t != "" {
			cleaned = append(cleaned, t)
		}
		if len(cleaned) == 3 {
			break
		}
	}
	if len(cleaned) < 3 {
		return fallbackTopics
	}
	return cleaned
}

// ScoreTranscript asks Gemini to rate every argument and pick a winner.
func (s *EvaluatorService) ScoreTranscript(ctx context.Context, snap *model.SessionSnapshot) (*model.ScoreSet, error) {
	if !s.config.IsEnabled() {
		return nil, ErrDisabled
	}

	transcript, err := json.Marshal(snap.Transcript)
	if err != nil {
		return nil, err
	}
	topic := snap.ChosenTopic
	if topic == "" {
		topic = "General debate"
	}
	prompt := fmt.Sprintf("You are an impartial debate adjudicator. Rate each argument from 1"+
		" to 10 considering clarity, evidence, and responsiveness."+
		" Return ONLY valid JSON with keys: 'perArgument' (list of {turn, role,"+
		" score, rating, feedback}), 'overall' (object role->score), 'winner'"+
		" ('pro', 'con' or 'tie') and 'summary' (short rationale)."+
		" The debate topic was: %q.\nTranscript: %s", topic, transcript)

	response, err := s.callGemini(ctx, s.config.Models.Score, prompt)
	if err != nil {
		return nil, err
	}

	var scores model.ScoreSet
	if err := json.Unmarshal([]byte(response), &scores); err != nil {
		return nil, fmt.Errorf("unparseable scoring response: %w", err)
	}
	normalizeScores(&scores)
	return &scores, nil
}

// ReviewTranscript asks Gemini for strengths/improvements per role and an
// overall assessment.
func (s *EvaluatorService) ReviewTranscript(ctx context.Context, snap *model.SessionSnapshot, overall map[model.Role]float64) (*model.Review, error) {
	if !s.config.IsEnabled() {
		return nil, ErrDisabled
	}

	transcript, err := json.Marshal(snap.Transcript)
	if err != nil {
		return nil, err
	}
	totals, _ := json.Marshal(overall)
	prompt := fmt.Sprintf("You are an impartial debate coach reviewing a finished debate on %q."+
		" Return ONLY valid JSON: {\"pro\": {\"strengths\": [..], \"improvements\": [..]},"+
		" \"con\": {\"strengths\": [..], \"improvements\": [..]}, \"overall\": \"one paragraph\"}."+
		" Scores so far: %s.\nTranscript: %s", snap.ChosenTopic, totals, transcript)

	response, err := s.callGemini(ctx, s.config.Models.Review, prompt)
	if err != nil {
		return nil, err
	}

	var review model.Review
	if err := json.Unmarshal([]byte(response), &review); err != nil {
		return nil, fmt.Errorf("unparseable review response: %w", err)
	}
	return &review, nil
}

// callGemini makes a request to the Gemini API.
func (s *EvaluatorService) callGemini(ctx context.Context, modelName, prompt string) (string, error) {
	reqBody := map[string]interface{}{
		"contents": []map[string]interface{}{
			{
				"parts": []map[string]string{
					{"text": prompt},
				},
			},
		},
		"generationConfig": map[string]interface{}{
			"responseMimeType": "application/json",
		},
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s?key=%s", s.config.ModelEndpoint(modelName), s.config.APIKey)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("gemini returned status %d", resp.StatusCode)
	}

	// Parse Gemini response structure
	var geminiResp struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}

	if err := json.Unmarshal(body, &geminiResp); err != nil {
		return "", err
	}

	if len(geminiResp.Candidates) > 0 && len(geminiResp.Candidates[0].Content.Parts) > 0 {
		return geminiResp.Candidates[0].Content.Parts[0].Text, nil
	}

	return "", fmt.Errorf("empty response from Gemini")
}

// normalizeScores fills derived fields the model sometimes omits.
func normalizeScores(scores *model.ScoreSet) {
	for i := range scores.PerTurn {
		if scores.PerTurn[i].Rating == "" {
			scores.PerTurn[i].Rating = RatingLabel(scores.PerTurn[i].Score)
		}
	}
	if scores.Overall == nil {
		scores.Overall = map[model.Role]float64{}
	}
}

// RatingLabel maps a numeric argument score to its qualitative label.
func RatingLabel(score float64) string {
	switch {
	case score >= 8.5:
		return "Outstanding"
	case score >= 7:
		return "Strong"
	case score >= 5.5:
		return "Competent"
	case score >= 4:
		return "Developing"
	default:
		return "Needs Improvement"
	}
}
