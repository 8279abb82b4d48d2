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
	adzunaPageSize = 50
	adzunaMaxPages = 3
)

// AdzunaProvider searches the Adzuna public API.
type AdzunaProvider struct {
	appID   string
	appKey  string
	country string
	baseURL string
	fetcher *httpFetcher
	logger  *zap.Logger
}

func NewAdzunaProvider(appID, appKey, country string, opts ProviderOptions, logger *zap.Logger) *AdzunaProvider {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.adzuna.com/v1/api/jobs"
	}
	if country == "" {
		country = "gb"
	}
	return &AdzunaProvider{
		appID:   appID,
		appKey:  appKey,
		country: strings.ToLower(country),
		baseURL: baseURL,
		fetcher: newHTTPFetcher(opts, logger),
		logger:  logger.Named("adzuna"),
	}
}

type adzunaResponse struct {
	Results []adzunaResult `json:"results"`
	Count   int            `json:"count"`
}

type adzunaResult struct {
	ID           string         `json:"id"`
	Title        string         `json:"title"`
	Description  string         `json:"description"`
	Company      adzunaCompany  `json:"company"`
	Location     adzunaLocation `json:"location"`
	SalaryMin    float64        `json:"salary_min"`
	SalaryMax    float64        `json:"salary_max"`
	RedirectURL  string         `json:"redirect_url"`
	Created      string         `json:"created"`
	ContractTime string         `json:"contract_time"`
	ContractType string         `json:"contract_type"`
}

type adzunaCompany struct {
	DisplayName string `json:"display_name"`
}

type adzunaLocation struct {
	DisplayName string `json:"display_name"`
}

func (p *AdzunaProvider) Name() string { return "adzuna" }

// Search implements JobProvider. Every role/location pair is paged until a
// short page, adzunaMaxPages, or the criteria limit is reached.
func (p *AdzunaProvider) Search(ctx context.Context, criteria Criteria) ([]models.Job, error) {
	var jobs []models.Job

	for _, q := range criteria.queries() {
		for page := 1; page <= adzunaMaxPages; page++ {
			batch, err := p.fetchPage(ctx, q, criteria.postedWithinDays(), page)
			if err != nil {
				return nil, fmt.Errorf("adzuna %q page %d: %w", q.Keywords, page, err)
			}
			jobs = append(jobs, batch...)
			if criteria.Limit > 0 && len(jobs) >= criteria.Limit {
				return jobs[:criteria.Limit], nil
			}
			if len(batch) < adzunaPageSize {
				break
			}
		}
	}

	p.logger.Debug("adzuna search done", zap.Int("jobs", len(jobs)))
	return jobs, nil
}

func (p *AdzunaProvider) fetchPage(ctx context.Context, q searchQuery, maxDaysOld, page int) ([]models.Job, error) {
	endpoint := fmt.Sprintf("%s/%s/search/%d", p.baseURL, p.country, page)

	params := url.Values{}
	params.Set("app_id", p.appID)
	params.Set("app_key", p.appKey)
	params.Set("results_per_page", strconv.Itoa(adzunaPageSize))
	params.Set("what", q.Keywords)
	if q.Location != "" && !strings.EqualFold(q.Location, "remote") {
		params.Set("where", q.Location)
	}
	params.Set("max_days_old", strconv.Itoa(maxDaysOld))
	params.Set("sort_by", "date")

	body, err := p.fetcher.get(ctx, endpoint+"?"+params.Encode(), "application/json")
	if err != nil {
		return nil, err
	}

	var apiResp adzunaResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("json unmarshal: %w", err)
	}

	jobs := make([]models.Job, 0, len(apiResp.Results))
	for _, r := range apiResp.Results {
		job := models.Job{
			Source:      p.Name(),
			ExternalID:  r.ID,
			URL:         r.RedirectURL,
			Title:       strings.TrimSpace(htmlToText(r.Title)),
			Company:     r.Company.DisplayName,
			Location:    r.Location.DisplayName,
			Description: htmlToText(r.Description),
			JobType:     strings.ReplaceAll(r.ContractTime, "_", "-"),
			SalaryMin:   r.SalaryMin,
			SalaryMax:   r.SalaryMax,
			Remote:      isRemoteText(r.Title) || isRemoteText(r.Location.DisplayName),
		}
		if created, err := time.Parse(time.RFC3339, r.Created); err == nil {
			job.PostedAt = created
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}
