package services

import (
	"fmt"
	"strings"

	"alfredoptarigan/job-agent/internal/models"
)

const maxPromptDescription = 12000

type PromptBuilder struct{}

func NewPromptBuilder() *PromptBuilder {
	return &PromptBuilder{}
}

// BuildFitScorePrompt asks for a fit score, an explanation and a cover
// letter in one JSON object.
func (pb *PromptBuilder) BuildFitScorePrompt(profile *models.Profile, job *models.Job, resumeContext string) string {
	return fmt.Sprintf(`You are an experienced technical recruiter assessing how well a candidate fits a job posting.

JOB POSTING:
Title: %s
Company: %s
Location: %s
Type: %s
Experience: %s

%s

CANDIDATE PROFILE:
Name: %s
Location: %s
Summary: %s
Skills: %s

RELEVANT RESUME EXCERPTS:
%s

Evaluate the match considering required skills, seniority, domain experience and location.
Then write a concise cover letter (3 short paragraphs) addressed to the hiring team of %s,
grounded only in facts from the profile.

Return ONLY a JSON object in this format:
{
  "score": <number between 0 and 1>,
  "explanation": "<2-4 sentences on strengths and gaps>",
  "cover_letter": "<cover letter text>"
}`,
		job.Title, orNA(job.Company), orNA(job.Location), orNA(job.JobType), orNA(job.ExperienceLevel),
		truncate(strings.TrimSpace(job.Description), maxPromptDescription),
		orNA(profile.FullName), orNA(profile.Location), orNA(profile.Summary),
		orNA(strings.Join(profile.Skills, ", ")),
		resumeContext,
		orNA(job.Company))
}

func (pb *PromptBuilder) BuildScoringSystemPrompt() string {
	return "You are an expert HR assistant that scores candidate to job fit. Always respond with a single valid JSON object and nothing else."
}

// BuildProfileExtractionPrompt turns raw résumé text into structured fields.
func (pb *PromptBuilder) BuildProfileExtractionPrompt(resumeText string) string {
	return fmt.Sprintf(`Extract structured information from the following resume.

RESUME:
%s

Return ONLY a JSON object in this format (use empty strings or an empty list when unknown):
{
  "full_name": "",
  "email": "",
  "phone": "",
  "location": "",
  "linkedin_url": "",
  "portfolio_url": "",
  "summary": "<2-3 sentence professional summary>",
  "skills": ["<skill>", "..."]
}`, truncate(resumeText, 30000))
}

// BuildRetrievalQuery builds the embedding query used to pull résumé
// excerpts relevant to a posting.
func (pb *PromptBuilder) BuildRetrievalQuery(job *models.Job) string {
	return fmt.Sprintf("Experience and skills relevant to %s: %s", job.Title, truncate(job.Description, 1500))
}

// FormatResumeContext renders retrieved chunks for prompt injection.
func FormatResumeContext(chunks []ResumeChunk) string {
	if len(chunks) == 0 {
		return "No additional excerpts."
	}

	var parts []string
	for i, chunk := range chunks {
		parts = append(parts, fmt.Sprintf("--- Excerpt %d (Score: %.2f) ---\n%s",
			i+1, chunk.Score, strings.TrimSpace(chunk.Text)))
	}

	return strings.Join(parts, "\n\n")
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "n/a"
	}
	return s
}
