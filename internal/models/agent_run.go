package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type RunStatus string

const (
	RunQueued    RunStatus = "queued"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// RunCounts is the externally visible tally of one run.
type RunCounts struct {
	JobsDiscovered     int `json:"jobs_discovered"`
	JobsProcessed      int `json:"jobs_processed"`
	JobsScored         int `json:"jobs_scored"`
	JobsAnalyzed       int `json:"jobs_analyzed"`
	JobsApplied        int `json:"jobs_applied"`
	JobsSkipped        int `json:"jobs_skipped"`
	JobsFailed         int `json:"jobs_failed"`
	JobsAlreadyApplied int `json:"jobs_already_applied"`
	JobsContended      int `json:"jobs_contended"`
	JobsCancelled      int `json:"jobs_cancelled"`
}

type AgentRun struct {
	ID              uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	UserID          string       `gorm:"type:text;not null;index" json:"user_id"`
	AutoApply       bool         `json:"auto_apply"`
	Status          RunStatus    `gorm:"type:text;not null;index" json:"status"`
	Preferences     *Preferences `gorm:"type:text;serializer:json" json:"preferences,omitempty"`
	RunCounts       `gorm:"embedded"`
	Degraded        bool       `json:"degraded"`
	DegradedSources []string   `gorm:"type:text;serializer:json" json:"degraded_sources,omitempty"`
	ErrorMessage    string     `gorm:"type:text" json:"error_message,omitempty"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func (AgentRun) TableName() string {
	return "agent_runs"
}

func (r *AgentRun) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// JobOutcome reports what happened to one discovered job during a run.
type JobOutcome struct {
	JobKey   string            `json:"job_key"`
	Title    string            `json:"title"`
	Company  string            `json:"company"`
	URL      string            `json:"url"`
	Status   ApplicationStatus `json:"status,omitempty"`
	FitScore float64           `json:"fit_score"`
	Note     string            `json:"note,omitempty"`
	Error    string            `json:"error,omitempty"`
}

// RunSummary is the result of Orchestrator.Run.
type RunSummary struct {
	RunID     string `json:"run_id"`
	UserID    string `json:"user_id"`
	AutoApply bool   `json:"auto_apply"`
	RunCounts
	Degraded        bool         `json:"degraded"`
	DegradedSources []string     `json:"degraded_sources,omitempty"`
	Cancelled       bool         `json:"cancelled"`
	StartedAt       time.Time    `json:"started_at"`
	FinishedAt      time.Time    `json:"finished_at"`
	Jobs            []JobOutcome `json:"jobs"`
}
