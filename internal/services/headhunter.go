package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"alfredoptarigan/job-agent/internal/models"
)

const (
	hhPerPage  = 50
	hhMaxPages = 2
	// hh.ru timestamps carry a numeric offset without a colon.
	hhTimeLayout = "2006-01-02T15:04:05-0700"
)

// HeadHunterProvider searches the hh.ru vacancies API.
type HeadHunterProvider struct {
	baseURL string
	area    string
	fetcher *httpFetcher
	logger  *zap.Logger
}

func NewHeadHunterProvider(area string, opts ProviderOptions, logger *zap.Logger) *HeadHunterProvider {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.hh.ru"
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "job-agent/1.0 (applications@job-agent.local)"
	}
	return &HeadHunterProvider{
		baseURL: baseURL,
		area:    area,
		fetcher: newHTTPFetcher(opts, logger),
		logger:  logger.Named("headhunter"),
	}
}

type hhSearchResponse struct {
	Items   []hhVacancy `json:"items"`
	Found   int         `json:"found"`
	Pages   int         `json:"pages"`
	Page    int         `json:"page"`
	PerPage int         `json:"per_page"`
}

type hhVacancy struct {
	ID                string     `json:"id"`
	Name              string     `json:"name"`
	Area              hhIDName   `json:"area"`
	Salary            *hhSalary  `json:"salary"`
	PublishedAt       string     `json:"published_at"`
	AlternateURL      string     `json:"alternate_url"`
	ApplyAlternateURL string     `json:"apply_alternate_url"`
	Employer          hhIDName   `json:"employer"`
	Snippet           *hhSnippet `json:"snippet"`
	Schedule          *hhIDName  `json:"schedule"`
	Experience        *hhIDName  `json:"experience"`
	Employment        *hhIDName  `json:"employment"`
	Archived          bool       `json:"archived"`
}

type hhIDName struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type hhSalary struct {
	From     *int   `json:"from"`
	To       *int   `json:"to"`
	Currency string `json:"currency"`
}

type hhSnippet struct {
	Requirement    string `json:"requirement"`
	Responsibility string `json:"responsibility"`
}

func (p *HeadHunterProvider) Name() string { return "headhunter" }

// Search implements JobProvider. A preferred location is sent as free text
// because hh.ru areas are numeric ids; HH_AREA pins one area explicitly.
func (p *HeadHunterProvider) Search(ctx context.Context, criteria Criteria) ([]models.Job, error) {
	var jobs []models.Job

	for _, q := range criteria.queries() {
		for page := 0; page < hhMaxPages; page++ {
			resp, err := p.searchPage(ctx, q, criteria.postedWithinDays(), page)
			if err != nil {
				return nil, fmt.Errorf("headhunter %q page %d: %w", q.Keywords, page, err)
			}
			for _, item := range resp.Items {
				if item.Archived {
					continue
				}
				jobs = append(jobs, p.toJob(item))
			}
			if criteria.Limit > 0 && len(jobs) >= criteria.Limit {
				return jobs[:criteria.Limit], nil
			}
			if resp.Pages <= page+1 {
				break
			}
		}
	}

	p.logger.Debug("headhunter search done", zap.Int("jobs", len(jobs)))
	return jobs, nil
}

func (p *HeadHunterProvider) searchPage(ctx context.Context, q searchQuery, periodDays, page int) (*hhSearchResponse, error) {
	params := url.Values{}
	text := q.Keywords
	if q.Location != "" && !strings.EqualFold(q.Location, "remote") && p.area == "" {
		text = q.Keywords + " " + q.Location
	}
	params.Set("text", text)
	if p.area != "" {
		params.Set("area", p.area)
	}
	if strings.EqualFold(q.Location, "remote") {
		params.Set("schedule", "remote")
	}
	params.Set("period", strconv.Itoa(periodDays))
	params.Set("page", strconv.Itoa(page))
	params.Set("per_page", strconv.Itoa(hhPerPage))

	body, err := p.fetcher.get(ctx, p.baseURL+"/vacancies?"+params.Encode(), "application/json")
	if err != nil {
		return nil, err
	}

	var resp hhSearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return &resp, nil
}

func (p *HeadHunterProvider) toJob(v hhVacancy) models.Job {
	job := models.Job{
		Source:     p.Name(),
		ExternalID: v.ID,
		URL:        v.AlternateURL,
		ApplyURL:   v.ApplyAlternateURL,
		Title:      v.Name,
		Company:    v.Employer.Name,
		Location:   v.Area.Name,
	}

	if v.Snippet != nil {
		parts := make([]string, 0, 2)
		if v.Snippet.Responsibility != "" {
			parts = append(parts, htmlToText(v.Snippet.Responsibility))
		}
		if v.Snippet.Requirement != "" {
			parts = append(parts, htmlToText(v.Snippet.Requirement))
		}
		job.Description = strings.Join(parts, "\n\n")
	}

	if v.Salary != nil {
		if v.Salary.From != nil {
			job.SalaryMin = float64(*v.Salary.From)
		}
		if v.Salary.To != nil {
			job.SalaryMax = float64(*v.Salary.To)
		}
		job.Currency = v.Salary.Currency
	}

	if v.Schedule != nil && v.Schedule.ID == "remote" {
		job.Remote = true
	}
	if v.Employment != nil {
		job.JobType = hhEmploymentType(v.Employment.ID)
	}
	if v.Experience != nil {
		job.ExperienceLevel = v.Experience.Name
	}

	if t, err := time.Parse(hhTimeLayout, v.PublishedAt); err == nil {
		job.PostedAt = t
	} else if t, err := time.Parse(time.RFC3339, v.PublishedAt); err == nil {
		job.PostedAt = t
	}
	return job
}

func hhEmploymentType(id string) string {
	switch id {
	case "full":
		return "full-time"
	case "part":
		return "part-time"
	case "project":
		return "contract"
	case "probation":
		return "internship"
	}
	return id
}
