package services

import (
	"context"
	"fmt"

	"github.com/eduardolat/openroutergo"
	"go.uber.org/zap"

	"alfredoptarigan/job-agent/internal/models"
)

// ChatCompleter sends one system+user exchange and returns the reply text.
type ChatCompleter interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

type openRouterCompleter struct {
	client *openroutergo.Client
	model  string
}

func NewOpenRouterCompleter(apiKey, model string) (ChatCompleter, error) {
	client, err := openroutergo.
		NewClient().
		WithAPIKey(apiKey).
		Create()
	if err != nil {
		return nil, fmt.Errorf("failed to create openrouter client: %w", err)
	}
	return &openRouterCompleter{client: client, model: model}, nil
}

// Complete implements ChatCompleter. The client has no context support, so
// the call is abandoned, not aborted, when ctx ends first.
func (c *openRouterCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	type reply struct {
		text string
		err  error
	}
	done := make(chan reply, 1)

	go func() {
		_, resp, err := c.client.
			NewChatCompletion().
			WithModel(c.model).
			WithSystemMessage(system).
			WithUserMessage(user).
			Execute()
		if err != nil {
			done <- reply{err: fmt.Errorf("failed to execute completion: %w", err)}
			return
		}
		if len(resp.Choices) == 0 {
			done <- reply{err: fmt.Errorf("no response choices received from API")}
			return
		}
		done <- reply{text: resp.Choices[0].Message.Content}
	}()

	select {
	case r := <-done:
		return r.text, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

type OpenRouterScorer struct {
	completer     ChatCompleter
	promptBuilder *PromptBuilder
	logger        *zap.Logger
}

func NewOpenRouterScorer(completer ChatCompleter, logger *zap.Logger) *OpenRouterScorer {
	return &OpenRouterScorer{
		completer:     completer,
		promptBuilder: NewPromptBuilder(),
		logger:        logger.Named("openrouter"),
	}
}

func (s *OpenRouterScorer) Name() string { return "openrouter" }

// Score implements Scorer.
func (s *OpenRouterScorer) Score(ctx context.Context, profile *models.Profile, job *models.Job) (*models.ScoreResult, error) {
	if err := ValidateScoreInput(profile, job); err != nil {
		return nil, err
	}

	resumeContext := truncate(profile.ResumeText, 8000)
	if resumeContext == "" {
		resumeContext = FormatResumeContext(nil)
	}

	response, err := s.completer.Complete(ctx,
		s.promptBuilder.BuildScoringSystemPrompt(),
		s.promptBuilder.BuildFitScorePrompt(profile, job, resumeContext),
	)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		s.logger.Debug("completion failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrScoringUnavailable, err)
	}

	return parseScoreResponse(response, s.Name())
}
