package models

import (
	"strings"
	"time"
)

type Profile struct {
	UserID         string    `gorm:"type:text;primaryKey" json:"user_id"`
	FullName       string    `gorm:"type:text" json:"full_name"`
	Email          string    `gorm:"type:text" json:"email"`
	Phone          string    `gorm:"type:text" json:"phone"`
	Location       string    `gorm:"type:text" json:"location"`
	LinkedInURL    string    `gorm:"column:linkedin_url;type:text" json:"linkedin_url"`
	PortfolioURL   string    `gorm:"type:text" json:"portfolio_url"`
	Summary        string    `gorm:"type:text" json:"summary"`
	Skills         []string  `gorm:"type:text;serializer:json" json:"skills"`
	ResumeText     string    `gorm:"type:text" json:"-"`
	ResumeFilename string    `gorm:"type:text" json:"resume_filename"`
	ResumePath     string    `gorm:"type:text" json:"-"`
	TelegramChatID int64     `json:"telegram_chat_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (Profile) TableName() string {
	return "profiles"
}

// IsEmpty reports whether the profile carries nothing a scorer could use.
func (p *Profile) IsEmpty() bool {
	if p == nil {
		return true
	}
	return len(p.Skills) == 0 &&
		strings.TrimSpace(p.Summary) == "" &&
		strings.TrimSpace(p.ResumeText) == ""
}
