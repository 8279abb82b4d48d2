package services

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"alfredoptarigan/job-agent/internal/models"
)

const (
	linkedInPageSize = 25
	linkedInMaxPages = 2
)

var linkedInJobID = regexp.MustCompile(`(\d+)$`)

// LinkedInProvider scrapes the public guest job search listing.
type LinkedInProvider struct {
	baseURL string
	fetcher *httpFetcher
	logger  *zap.Logger
}

func NewLinkedInProvider(opts ProviderOptions, logger *zap.Logger) *LinkedInProvider {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = "https://www.linkedin.com/jobs-guest/jobs/api/seeMoreJobPostings/search"
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0 Safari/537.36"
	}
	return &LinkedInProvider{
		baseURL: baseURL,
		fetcher: newHTTPFetcher(opts, logger),
		logger:  logger.Named("linkedin"),
	}
}

func (p *LinkedInProvider) Name() string { return "linkedin" }

// Search implements JobProvider.
func (p *LinkedInProvider) Search(ctx context.Context, criteria Criteria) ([]models.Job, error) {
	var jobs []models.Job

	for _, q := range criteria.queries() {
		for page := 0; page < linkedInMaxPages; page++ {
			body, err := p.fetcher.get(ctx, p.buildSearchURL(q, criteria.PostedWithin, page), "text/html")
			if err != nil {
				return nil, fmt.Errorf("linkedin %q page %d: %w", q.Keywords, page, err)
			}
			batch, err := parseLinkedInCards(body)
			if err != nil {
				return nil, fmt.Errorf("linkedin parse: %w", err)
			}
			if strings.EqualFold(q.Location, "remote") {
				for i := range batch {
					batch[i].Remote = true
				}
			}
			jobs = append(jobs, batch...)
			if criteria.Limit > 0 && len(jobs) >= criteria.Limit {
				return jobs[:criteria.Limit], nil
			}
			if len(batch) < linkedInPageSize {
				break
			}
		}
	}

	p.logger.Debug("linkedin search done", zap.Int("jobs", len(jobs)))
	return jobs, nil
}

func (p *LinkedInProvider) buildSearchURL(q searchQuery, within time.Duration, page int) string {
	params := url.Values{}
	params.Set("keywords", q.Keywords)
	if strings.EqualFold(q.Location, "remote") {
		// f_WT=2 is the remote workplace type.
		params.Set("f_WT", "2")
	} else if q.Location != "" {
		params.Set("location", q.Location)
	}
	if within > 0 {
		params.Set("f_TPR", "r"+strconv.Itoa(int(within.Seconds())))
	}
	params.Set("start", strconv.Itoa(linkedInPageSize*page))

	return p.baseURL + "?" + params.Encode()
}

func parseLinkedInCards(body []byte) ([]models.Job, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	var jobs []models.Job
	doc.Find("li > div.base-card").Each(func(i int, s *goquery.Selection) {
		job := models.Job{
			Source:   "linkedin",
			Title:    strings.TrimSpace(s.Find("[class*=_title]").First().Text()),
			Company:  strings.TrimSpace(s.Find(".hidden-nested-link").First().Text()),
			Location: strings.TrimSpace(s.Find(".job-search-card__location").First().Text()),
			URL:      strings.TrimSpace(s.Find("a.base-card__full-link").AttrOr("href", "")),
		}
		if job.Title == "" || job.URL == "" {
			return
		}
		job.ExternalID = linkedInIDFromURL(job.URL)
		job.Remote = isRemoteText(job.Location)
		if dt, ok := s.Find("time").Attr("datetime"); ok {
			if t, err := time.Parse("2006-01-02", strings.TrimSpace(dt)); err == nil {
				job.PostedAt = t
			}
		}
		jobs = append(jobs, job)
	})
	return jobs, nil
}

func linkedInIDFromURL(jobURL string) string {
	parsed, err := url.Parse(jobURL)
	if err != nil {
		return ""
	}
	matches := linkedInJobID.FindStringSubmatch(path.Base(parsed.Path))
	if len(matches) < 2 {
		return ""
	}
	return matches[1]
}
