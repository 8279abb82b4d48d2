package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrInvalidPreferences = errors.New("invalid preferences")

type Preferences struct {
	UserID           string    `gorm:"type:text;primaryKey" json:"user_id"`
	Roles            []string  `gorm:"type:text;serializer:json" json:"roles"`
	Locations        []string  `gorm:"type:text;serializer:json" json:"locations"`
	JobTypes         []string  `gorm:"type:text;serializer:json" json:"job_types"`
	ExperienceLevels []string  `gorm:"type:text;serializer:json" json:"experience_levels"`
	MinMatchScore    int       `json:"min_match_score"`
	PostedWithinDays int       `json:"posted_within_days"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (Preferences) TableName() string {
	return "preferences"
}

// Validate enforces the invariants every saved preference set must hold.
func (p *Preferences) Validate() error {
	if p.MinMatchScore < 0 || p.MinMatchScore > 100 {
		return fmt.Errorf("%w: min_match_score must be between 0 and 100, got %d", ErrInvalidPreferences, p.MinMatchScore)
	}
	if p.PostedWithinDays <= 0 {
		return fmt.Errorf("%w: posted_within_days must be positive, got %d", ErrInvalidPreferences, p.PostedWithinDays)
	}
	if len(nonEmpty(p.Roles)) == 0 {
		return fmt.Errorf("%w: at least one role is required", ErrInvalidPreferences)
	}
	return nil
}

// Threshold is MinMatchScore on the fit score's [0,1] scale.
func (p *Preferences) Threshold() float64 {
	return float64(p.MinMatchScore) / 100
}

func (p *Preferences) PostedWithin() time.Duration {
	return time.Duration(p.PostedWithinDays) * 24 * time.Hour
}

// Normalize trims entries and drops blanks and duplicates, keeping order.
func (p *Preferences) Normalize() {
	p.Roles = dedupFold(p.Roles)
	p.Locations = dedupFold(p.Locations)
	p.JobTypes = dedupFold(p.JobTypes)
	p.ExperienceLevels = dedupFold(p.ExperienceLevels)
}

func nonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	return out
}

func dedupFold(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		key := strings.ToLower(v)
		if v == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, v)
	}
	return out
}
