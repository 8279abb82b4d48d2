package models

import "time"

type UploadResponse struct {
	UserID         string   `json:"user_id"`
	ResumeFilename string   `json:"resume_filename"`
	Characters     int      `json:"characters"`
	Skills         []string `json:"skills"`
	Extracted      bool     `json:"extracted"`
	Indexed        bool     `json:"indexed"`
}

type ProfileRequest struct {
	FullName       string   `json:"full_name"`
	Email          string   `json:"email"`
	Phone          string   `json:"phone"`
	Location       string   `json:"location"`
	LinkedInURL    string   `json:"linkedin_url"`
	PortfolioURL   string   `json:"portfolio_url"`
	Summary        string   `json:"summary"`
	Skills         []string `json:"skills"`
	TelegramChatID int64    `json:"telegram_chat_id"`
}

type PreferencesRequest struct {
	Roles            []string `json:"roles"`
	Locations        []string `json:"locations"`
	JobTypes         []string `json:"job_types"`
	ExperienceLevels []string `json:"experience_levels"`
	MinMatchScore    int      `json:"min_match_score"`
	PostedWithinDays int      `json:"posted_within_days"`
}

type AnalyzeRequest struct {
	Title       string    `json:"title"`
	Company     string    `json:"company"`
	Location    string    `json:"location"`
	Description string    `json:"description"`
	URL         string    `json:"url"`
	Source      string    `json:"source"`
	PostedAt    time.Time `json:"posted_at"`
}

func (r *AnalyzeRequest) Job() *Job {
	source := r.Source
	if source == "" {
		source = "manual"
	}
	return &Job{
		Source:      source,
		URL:         r.URL,
		Title:       r.Title,
		Company:     r.Company,
		Location:    r.Location,
		Description: r.Description,
		PostedAt:    r.PostedAt,
	}
}

type RunAcceptedResponse struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
}

type ApplicationListResponse struct {
	Applications []Application `json:"applications"`
	Total        int           `json:"total"`
}

type SearchResponse struct {
	Jobs            []Job    `json:"jobs"`
	Total           int      `json:"total"`
	Degraded        bool     `json:"degraded"`
	DegradedSources []string `json:"degraded_sources,omitempty"`
}
