package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"alfredoptarigan/job-agent/internal/models"
)

// Scorer rates one job against one profile. Implementations return errors
// wrapping ErrScoringUnavailable for transient trouble and
// ErrScoringRejected when the request itself cannot be served.
type Scorer interface {
	Name() string
	Score(ctx context.Context, profile *models.Profile, job *models.Job) (*models.ScoreResult, error)
}

// ValidateScoreInput rejects requests no provider could score.
func ValidateScoreInput(profile *models.Profile, job *models.Job) error {
	if profile.IsEmpty() {
		return fmt.Errorf("%w: profile is empty", ErrScoringRejected)
	}
	if job == nil || (strings.TrimSpace(job.Title) == "" && strings.TrimSpace(job.Description) == "") {
		return fmt.Errorf("%w: job has neither title nor description", ErrScoringRejected)
	}
	return nil
}

type RetryingScorer struct {
	inner  Scorer
	retry  RetryConfig
	logger *zap.Logger
}

// NewRetryingScorer retries ErrScoringUnavailable with backoff. Rejections
// and everything else are returned on the first attempt.
func NewRetryingScorer(inner Scorer, retry RetryConfig, logger *zap.Logger) *RetryingScorer {
	return &RetryingScorer{inner: inner, retry: retry, logger: logger}
}

func (s *RetryingScorer) Name() string { return s.inner.Name() }

func (s *RetryingScorer) Score(ctx context.Context, profile *models.Profile, job *models.Job) (*models.ScoreResult, error) {
	result, err := RetryDo(ctx, s.retry, s.logger, isScoringTransient, func(ctx context.Context) (*models.ScoreResult, error) {
		return s.inner.Score(ctx, profile, job)
	})
	if err != nil {
		return nil, err
	}
	result.Score = models.ClampScore(result.Score)
	if result.Provider == "" {
		result.Provider = s.inner.Name()
	}
	return result, nil
}

func isScoringTransient(err error) bool {
	return errors.Is(err, ErrScoringUnavailable) && !errors.Is(err, ErrScoringRejected)
}

type scorePayload struct {
	Score       *float64 `json:"score"`
	FitScore    *float64 `json:"fit_score"`
	MatchRate   *float64 `json:"match_rate"`
	Explanation string   `json:"explanation"`
	Feedback    string   `json:"feedback"`
	CoverLetter string   `json:"cover_letter"`
}

// parseScoreResponse reads a model answer into a ScoreResult. Scores on a
// 0-100 scale are rescaled, then everything is clamped to [0,1].
func parseScoreResponse(response, provider string) (*models.ScoreResult, error) {
	var payload scorePayload
	if err := parseJSONResponse(response, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrScoringUnavailable, err)
	}

	var raw *float64
	for _, candidate := range []*float64{payload.Score, payload.FitScore, payload.MatchRate} {
		if candidate != nil {
			raw = candidate
			break
		}
	}
	if raw == nil || math.IsNaN(*raw) || math.IsInf(*raw, 0) {
		return nil, fmt.Errorf("%w: response has no usable score", ErrScoringUnavailable)
	}

	score := *raw
	if score > 1 && score <= 100 {
		score /= 100
	}

	explanation := strings.TrimSpace(payload.Explanation)
	if explanation == "" {
		explanation = strings.TrimSpace(payload.Feedback)
	}

	return &models.ScoreResult{
		Score:       models.ClampScore(score),
		Explanation: explanation,
		CoverLetter: strings.TrimSpace(payload.CoverLetter),
		Provider:    provider,
	}, nil
}

func parseJSONResponse(response string, target interface{}) error {
	// LLMs like to wrap JSON in markdown fences.
	jsonStr := extractJSON(response)

	if err := json.Unmarshal([]byte(jsonStr), target); err != nil {
		return fmt.Errorf("failed to unmarshal JSON: %w", err)
	}

	return nil
}

// extractJSON tries to extract JSON from text that might contain markdown or other formatting
func extractJSON(text string) string {
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")

	startObj := strings.Index(text, "{")
	startArr := strings.Index(text, "[")
	endObj := strings.LastIndex(text, "}")
	endArr := strings.LastIndex(text, "]")

	if startObj != -1 && endObj != -1 && endObj > startObj {
		return text[startObj : endObj+1]
	} else if startArr != -1 && endArr != -1 && endArr > startArr {
		return text[startArr : endArr+1]
	}

	return strings.TrimSpace(text)
}
