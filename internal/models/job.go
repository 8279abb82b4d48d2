package models

import (
	"net/url"
	"strings"
	"time"
)

// Job is a posting normalised from an external provider. It lives only for
// the duration of a run; the Application is what gets persisted.
type Job struct {
	Source          string    `json:"source"`
	ExternalID      string    `json:"external_id,omitempty"`
	URL             string    `json:"url"`
	ApplyURL        string    `json:"apply_url,omitempty"`
	Title           string    `json:"title"`
	Company         string    `json:"company"`
	Location        string    `json:"location"`
	Description     string    `json:"description"`
	JobType         string    `json:"job_type,omitempty"`
	ExperienceLevel string    `json:"experience_level,omitempty"`
	SalaryMin       float64   `json:"salary_min,omitempty"`
	SalaryMax       float64   `json:"salary_max,omitempty"`
	Currency        string    `json:"currency,omitempty"`
	Remote          bool      `json:"remote,omitempty"`
	PostedAt        time.Time `json:"posted_at,omitempty"`
}

// Key is the stable identity used by the ledger: provider plus native id
// when both are known, otherwise the canonical posting URL.
func (j *Job) Key() string {
	if j.Source != "" && j.ExternalID != "" {
		return strings.ToLower(j.Source) + ":" + j.ExternalID
	}
	if canonical := CanonicalURL(j.URL); canonical != "" {
		return canonical
	}
	return CanonicalURL(j.ApplyURL)
}

// Link returns the URL a human should open to apply.
func (j *Job) Link() string {
	if j.ApplyURL != "" {
		return j.ApplyURL
	}
	return j.URL
}

// CanonicalURL lower-cases scheme and host and strips query, fragment and
// trailing slashes so that tracking parameters do not create new identities.
func CanonicalURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return strings.TrimRight(raw, "/")
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.RawQuery = ""
	u.Fragment = ""
	u.Path = strings.TrimRight(u.Path, "/")
	return u.String()
}

type ScoreResult struct {
	Score       float64 `json:"score"`
	Explanation string  `json:"explanation"`
	CoverLetter string  `json:"cover_letter,omitempty"`
	Provider    string  `json:"provider,omitempty"`
}

// ClampScore forces a fit score into [0,1].
func ClampScore(score float64) float64 {
	switch {
	case score != score: // NaN
		return 0
	case score < 0:
		return 0
	case score > 1:
		return 1
	}
	return score
}
