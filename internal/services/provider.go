package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"alfredoptarigan/job-agent/internal/models"
)

// JobProvider is one external job board.
type JobProvider interface {
	Name() string
	Search(ctx context.Context, criteria Criteria) ([]models.Job, error)
}

// Criteria is what a provider is asked for. Providers query every
// role/location pair and return postings in their native order.
type Criteria struct {
	Roles        []string
	Locations    []string
	PostedWithin time.Duration
	Limit        int
}

type searchQuery struct {
	Keywords string
	Location string
}

func (c Criteria) queries() []searchQuery {
	locations := c.Locations
	if len(locations) == 0 {
		locations = []string{""}
	}
	var out []searchQuery
	for _, role := range c.Roles {
		for _, loc := range locations {
			out = append(out, searchQuery{Keywords: role, Location: loc})
		}
	}
	return out
}

// postedWithinDays rounds up to whole days, minimum one.
func (c Criteria) postedWithinDays() int {
	days := int((c.PostedWithin + 24*time.Hour - 1) / (24 * time.Hour))
	if days < 1 {
		days = 1
	}
	return days
}

// ProviderOptions are shared by the HTTP backed providers.
type ProviderOptions struct {
	BaseURL       string
	Timeout       time.Duration
	RatePerSecond float64
	MaxRetries    int
	UserAgent     string
}

type httpStatusError struct {
	StatusCode int
	Body       string
}

func (e *httpStatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// httpFetcher performs rate limited GETs with retries on transient failures.
type httpFetcher struct {
	client    *http.Client
	limiter   *rate.Limiter
	retry     RetryConfig
	userAgent string
	logger    *zap.Logger
}

func newHTTPFetcher(opts ProviderOptions, logger *zap.Logger) *httpFetcher {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}
	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = "job-agent/1.0"
	}
	retry := DefaultRetryConfig
	retry.MaxRetries = opts.MaxRetries

	return &httpFetcher{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        50,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter:   rate.NewLimiter(limit, 1),
		retry:     retry,
		userAgent: userAgent,
		logger:    logger,
	}
}

func (f *httpFetcher) get(ctx context.Context, rawURL, accept string) ([]byte, error) {
	return RetryDo(ctx, f.retry, f.logger, isTransientHTTP, func(ctx context.Context) ([]byte, error) {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("User-Agent", f.userAgent)
		req.Header.Set("Accept", accept)

		resp, err := f.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("http GET: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
		if err != nil {
			return nil, fmt.Errorf("read response body: %w", err)
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, &httpStatusError{StatusCode: resp.StatusCode, Body: truncate(string(body), 200)}
		}
		return body, nil
	})
}

func isTransientHTTP(err error) bool {
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		switch statusErr.StatusCode {
		case http.StatusTooManyRequests, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return false
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}

// htmlToText turns a provider's HTML description into markdown text.
func htmlToText(html string) string {
	html = strings.TrimSpace(html)
	if html == "" {
		return ""
	}
	if !strings.ContainsAny(html, "<&") {
		return html
	}
	md, err := htmltomarkdown.ConvertString(html)
	if err != nil {
		return html
	}
	return strings.TrimSpace(md)
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}

func isRemoteText(s string) bool {
	s = strings.ToLower(s)
	return strings.Contains(s, "remote") || strings.Contains(s, "anywhere")
}
