package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"alfredoptarigan/job-agent/internal/models"
)

// Submitter delivers an application for a job. Failures wrap
// ErrSubmissionFailed.
type Submitter interface {
	Submit(ctx context.Context, profile *models.Profile, job *models.Job, app *models.Application) error
}

// ApplicationPacket is the body posted to the submission webhook.
type ApplicationPacket struct {
	ApplicationID string    `json:"application_id"`
	UserID        string    `json:"user_id"`
	JobKey        string    `json:"job_key"`
	JobTitle      string    `json:"job_title"`
	Company       string    `json:"company"`
	ApplyURL      string    `json:"apply_url"`
	Source        string    `json:"source"`
	FitScore      float64   `json:"fit_score"`
	CoverLetter   string    `json:"cover_letter"`
	Candidate     candidate `json:"candidate"`
	SubmittedAt   time.Time `json:"submitted_at"`
}

type candidate struct {
	FullName       string   `json:"full_name"`
	Email          string   `json:"email"`
	Phone          string   `json:"phone"`
	Location       string   `json:"location"`
	LinkedInURL    string   `json:"linkedin_url"`
	PortfolioURL   string   `json:"portfolio_url"`
	Skills         []string `json:"skills"`
	ResumeFilename string   `json:"resume_filename"`
}

type webhookSubmitter struct {
	url    string
	client *http.Client
	logger *zap.Logger
}

func NewWebhookSubmitter(url string, timeout time.Duration, logger *zap.Logger) Submitter {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &webhookSubmitter{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logger.Named("submitter"),
	}
}

func (s *webhookSubmitter) Submit(ctx context.Context, profile *models.Profile, job *models.Job, app *models.Application) error {
	packet := ApplicationPacket{
		ApplicationID: app.ID.String(),
		UserID:        app.UserID,
		JobKey:        app.JobKey,
		JobTitle:      job.Title,
		Company:       job.Company,
		ApplyURL:      job.Link(),
		Source:        job.Source,
		FitScore:      app.FitScore,
		CoverLetter:   app.CoverLetter,
		Candidate: candidate{
			FullName:       profile.FullName,
			Email:          profile.Email,
			Phone:          profile.Phone,
			Location:       profile.Location,
			LinkedInURL:    profile.LinkedInURL,
			PortfolioURL:   profile.PortfolioURL,
			Skills:         profile.Skills,
			ResumeFilename: profile.ResumeFilename,
		},
		SubmittedAt: time.Now().UTC(),
	}

	body, err := json.Marshal(packet)
	if err != nil {
		return fmt.Errorf("%w: encode packet: %v", ErrSubmissionFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: create request: %v", ErrSubmissionFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", app.UserID+":"+app.JobKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSubmissionFailed, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: webhook returned %d", ErrSubmissionFailed, resp.StatusCode)
	}

	s.logger.Debug("application submitted", zap.String("user_id", app.UserID), zap.String("job_key", app.JobKey))
	return nil
}
