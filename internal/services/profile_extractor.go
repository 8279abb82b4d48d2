package services

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// ExtractedProfile is what an extractor could read from résumé text.
type ExtractedProfile struct {
	FullName     string   `json:"full_name"`
	Email        string   `json:"email"`
	Phone        string   `json:"phone"`
	Location     string   `json:"location"`
	LinkedInURL  string   `json:"linkedin_url"`
	PortfolioURL string   `json:"portfolio_url"`
	Summary      string   `json:"summary"`
	Skills       []string `json:"skills"`
}

type ProfileExtractor interface {
	Extract(ctx context.Context, resumeText string) (*ExtractedProfile, error)
}

type geminiProfileExtractor struct {
	gemini        GeminiService
	promptBuilder *PromptBuilder
}

func NewGeminiProfileExtractor(gemini GeminiService) ProfileExtractor {
	return &geminiProfileExtractor{gemini: gemini, promptBuilder: NewPromptBuilder()}
}

func (e *geminiProfileExtractor) Extract(ctx context.Context, resumeText string) (*ExtractedProfile, error) {
	response, err := e.gemini.GenerateText(ctx, e.promptBuilder.BuildProfileExtractionPrompt(resumeText), 0.1)
	if err != nil {
		return nil, fmt.Errorf("failed to generate profile extraction: %w", err)
	}

	var out ExtractedProfile
	if err := parseJSONResponse(response, &out); err != nil {
		return nil, fmt.Errorf("failed to parse profile extraction: %w", err)
	}
	out.Skills = trimAll(out.Skills)
	return &out, nil
}

var (
	emailPattern    = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	linkedInPattern = regexp.MustCompile(`(?i)(https?://)?([a-z]{2,3}\.)?linkedin\.com/in/[A-Za-z0-9_\-%]+/?`)
	phonePattern    = regexp.MustCompile(`\+?\d[\d\s().\-]{7,}\d`)
)

// heuristicExtract pulls contact fields with regular expressions. It is used
// when no LLM extractor is configured or the extractor fails.
func heuristicExtract(text string) *ExtractedProfile {
	out := &ExtractedProfile{
		Email:       emailPattern.FindString(text),
		LinkedInURL: linkedInPattern.FindString(text),
		Phone:       strings.TrimSpace(phonePattern.FindString(text)),
	}
	if out.LinkedInURL != "" && !strings.HasPrefix(strings.ToLower(out.LinkedInURL), "http") {
		out.LinkedInURL = "https://" + out.LinkedInURL
	}
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			if len([]rune(line)) <= 60 && !strings.Contains(line, "@") {
				out.FullName = line
			}
			break
		}
	}
	return out
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || seen[strings.ToLower(v)] {
			continue
		}
		seen[strings.ToLower(v)] = true
		out = append(out, v)
	}
	return out
}
