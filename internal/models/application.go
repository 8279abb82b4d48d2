package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ApplicationStatus string

const (
	StatusDiscovered ApplicationStatus = "Discovered"
	StatusAnalyzed   ApplicationStatus = "Analyzed"
	StatusApplied    ApplicationStatus = "Applied"
	StatusSkipped    ApplicationStatus = "Skipped"
	StatusFailed     ApplicationStatus = "Failed"
)

var applicationStatuses = []ApplicationStatus{
	StatusDiscovered, StatusAnalyzed, StatusApplied, StatusSkipped, StatusFailed,
}

// ParseStatus converts a raw string to an ApplicationStatus, ignoring case.
func ParseStatus(s string) (ApplicationStatus, error) {
	raw := strings.TrimSpace(s)
	for _, st := range applicationStatuses {
		if strings.EqualFold(raw, string(st)) {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown application status %q", s)
}

// Application is the durable decision about one job for one user.
// (user_id, job_key) is unique.
type Application struct {
	ID           uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	UserID       string            `gorm:"type:text;not null;uniqueIndex:idx_applications_user_job,priority:1;index" json:"user_id"`
	JobKey       string            `gorm:"type:text;not null;uniqueIndex:idx_applications_user_job,priority:2" json:"job_key"`
	JobTitle     string            `gorm:"type:text" json:"job_title"`
	Company      string            `gorm:"type:text" json:"company"`
	JobURL       string            `gorm:"type:text" json:"job_url"`
	Location     string            `gorm:"type:text" json:"location"`
	Source       string            `gorm:"type:text" json:"source"`
	FitScore     float64           `gorm:"type:double precision" json:"fit_score"`
	Explanation  string            `gorm:"type:text" json:"explanation"`
	CoverLetter  string            `gorm:"type:text" json:"cover_letter"`
	Status       ApplicationStatus `gorm:"type:text;not null" json:"status"`
	ErrorMessage string            `gorm:"type:text" json:"error_message,omitempty"`
	RunID        string            `gorm:"type:text" json:"run_id"`
	LeaseUntil   int64             `json:"-"`
	Attempts     int               `json:"attempts"`
	AppliedAt    *time.Time        `json:"applied_at,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

func (Application) TableName() string {
	return "applications"
}

func (a *Application) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// NewApplication builds the Discovered record for a freshly found job.
func NewApplication(userID, runID string, job *Job) *Application {
	return &Application{
		ID:       uuid.New(),
		UserID:   userID,
		JobKey:   job.Key(),
		JobTitle: job.Title,
		Company:  job.Company,
		JobURL:   job.Link(),
		Location: job.Location,
		Source:   job.Source,
		Status:   StatusDiscovered,
		RunID:    runID,
	}
}

// Outcome is the terminal write of one job within one run.
type Outcome struct {
	Status       ApplicationStatus
	Score        *ScoreResult
	ErrorMessage string
	AppliedAt    *time.Time
}
