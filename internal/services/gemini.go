package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"alfredoptarigan/job-agent/internal/models"
)

var errPromptBlocked = errors.New("prompt blocked by safety filters")

type GeminiService interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
	GenerateText(ctx context.Context, prompt string, temperature float32) (string, error)
}

type geminiService struct {
	client     *genai.Client
	modelName  string
	embedModel string
}

func NewGeminiService(ctx context.Context, apiKey, model, embedModel string) (GeminiService, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	if model == "" {
		model = "gemini-2.5-flash"
	}
	if embedModel == "" {
		embedModel = "text-embedding-004"
	}

	return &geminiService{
		client:     client,
		modelName:  model,
		embedModel: embedModel,
	}, nil
}

// GenerateEmbedding implements GeminiService.
func (g *geminiService) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	// Roughly the 10k token input limit of the embedding model.
	if len(text) > 40000 {
		text = text[:40000]
	}

	result, err := g.client.Models.EmbedContent(ctx, g.embedModel, genai.Text(text), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embedding: %w", err)
	}

	if result == nil || len(result.Embeddings) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}

	return result.Embeddings[0].Values, nil
}

// GenerateText implements GeminiService.
func (g *geminiService) GenerateText(ctx context.Context, prompt string, temperature float32) (string, error) {
	config := &genai.GenerateContentConfig{
		Temperature:      &temperature,
		MaxOutputTokens:  4096,
		ResponseMIMEType: "application/json",
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.modelName, genai.Text(prompt), config)
	if err != nil {
		return "", fmt.Errorf("failed to generate text: %w", err)
	}

	if resp == nil {
		return "", fmt.Errorf("no response generated (nil response)")
	}

	if resp.PromptFeedback != nil {
		if reason := string(resp.PromptFeedback.BlockReason); reason != "" && reason != "BLOCKED_REASON_UNSPECIFIED" {
			return "", fmt.Errorf("%w: %s", errPromptBlocked, reason)
		}
	}
	for _, candidate := range resp.Candidates {
		if string(candidate.FinishReason) == "SAFETY" {
			return "", fmt.Errorf("%w: candidate finished with SAFETY", errPromptBlocked)
		}
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("no text content in response")
	}

	return text, nil
}

// GeminiScorer scores with Gemini, optionally enriching the prompt with
// résumé excerpts retrieved from the vector index.
type GeminiScorer struct {
	gemini        GeminiService
	index         ResumeIndex
	promptBuilder *PromptBuilder
	temperature   float32
	logger        *zap.Logger
}

func NewGeminiScorer(gemini GeminiService, index ResumeIndex, temperature float32, logger *zap.Logger) *GeminiScorer {
	return &GeminiScorer{
		gemini:        gemini,
		index:         index,
		promptBuilder: NewPromptBuilder(),
		temperature:   temperature,
		logger:        logger.Named("gemini"),
	}
}

func (s *GeminiScorer) Name() string { return "gemini" }

// Score implements Scorer.
func (s *GeminiScorer) Score(ctx context.Context, profile *models.Profile, job *models.Job) (*models.ScoreResult, error) {
	if err := ValidateScoreInput(profile, job); err != nil {
		return nil, err
	}

	resumeContext := s.retrieveContext(ctx, profile, job)
	prompt := s.promptBuilder.BuildFitScorePrompt(profile, job, resumeContext)

	response, err := s.gemini.GenerateText(ctx, prompt, s.temperature)
	if err != nil {
		if errors.Is(err, errPromptBlocked) {
			return nil, fmt.Errorf("%w: %v", ErrScoringRejected, err)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %v", ErrScoringUnavailable, err)
	}

	return parseScoreResponse(response, s.Name())
}

// retrieveContext falls back to the raw résumé text when no index is
// configured or retrieval fails.
func (s *GeminiScorer) retrieveContext(ctx context.Context, profile *models.Profile, job *models.Job) string {
	if s.index != nil {
		chunks, err := s.index.Relevant(ctx, profile.UserID, s.promptBuilder.BuildRetrievalQuery(job), 4)
		if err == nil && len(chunks) > 0 {
			return FormatResumeContext(chunks)
		}
		if err != nil {
			s.logger.Warn("resume retrieval failed", zap.String("user_id", profile.UserID), zap.Error(err))
		}
	}
	if profile.ResumeText == "" {
		return FormatResumeContext(nil)
	}
	return truncate(profile.ResumeText, 8000)
}
