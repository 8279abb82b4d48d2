package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"alfredoptarigan/job-agent/internal/models"
)

const (
	DefaultProviderTimeout = 20 * time.Second
	manualSearchWindow     = 7 * 24 * time.Hour
)

// AggregateResult is the deduplicated, filtered output of one search.
type AggregateResult struct {
	Jobs            []models.Job
	Fetched         int
	Degraded        bool
	DegradedSources []string
}

type Aggregator interface {
	Search(ctx context.Context, profile *models.Profile, prefs *models.Preferences) (*AggregateResult, error)
	SearchManual(ctx context.Context, query, location string) (*AggregateResult, error)
	Providers() []string
}

type AggregatorOptions struct {
	ProviderTimeout time.Duration
	MaxResults      int
	Cache           SearchCache
}

type aggregator struct {
	providers []JobProvider
	timeout   time.Duration
	limit     int
	cache     SearchCache
	logger    *zap.Logger
	now       func() time.Time
}

func NewAggregator(providers []JobProvider, opts AggregatorOptions, logger *zap.Logger) Aggregator {
	timeout := opts.ProviderTimeout
	if timeout <= 0 {
		timeout = DefaultProviderTimeout
	}
	return &aggregator{
		providers: providers,
		timeout:   timeout,
		limit:     opts.MaxResults,
		cache:     opts.Cache,
		logger:    logger.Named("aggregator"),
		now:       time.Now,
	}
}

func (a *aggregator) Providers() []string {
	names := make([]string, 0, len(a.providers))
	for _, p := range a.providers {
		names = append(names, p.Name())
	}
	return names
}

// Search implements Aggregator.
func (a *aggregator) Search(ctx context.Context, profile *models.Profile, prefs *models.Preferences) (*AggregateResult, error) {
	criteria := Criteria{
		Roles:        prefs.Roles,
		Locations:    prefs.Locations,
		PostedWithin: prefs.PostedWithin(),
		Limit:        a.limit,
	}
	if len(criteria.Locations) == 0 && profile != nil && strings.TrimSpace(profile.Location) != "" {
		criteria.Locations = []string{profile.Location}
	}

	result, err := a.collect(ctx, criteria)
	if err != nil {
		return nil, err
	}

	filter := newJobFilter(prefs, a.now())
	kept := result.Jobs[:0]
	for _, job := range result.Jobs {
		if filter.match(&job) {
			kept = append(kept, job)
		}
	}
	result.Jobs = kept

	a.logger.Info("search finished",
		zap.Int("fetched", result.Fetched),
		zap.Int("matched", len(result.Jobs)),
		zap.Strings("degraded_sources", result.DegradedSources),
	)
	return result, nil
}

// SearchManual implements Aggregator. Only the recency window applies.
func (a *aggregator) SearchManual(ctx context.Context, query, location string) (*AggregateResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: query is required", ErrInvalidJob)
	}
	criteria := Criteria{
		Roles:        []string{query},
		PostedWithin: manualSearchWindow,
		Limit:        a.limit,
	}
	if location = strings.TrimSpace(location); location != "" {
		criteria.Locations = []string{location}
	}

	result, err := a.collect(ctx, criteria)
	if err != nil {
		return nil, err
	}

	cutoff := a.now().Add(-manualSearchWindow)
	kept := result.Jobs[:0]
	for _, job := range result.Jobs {
		if job.PostedAt.IsZero() || !job.PostedAt.Before(cutoff) {
			kept = append(kept, job)
		}
	}
	result.Jobs = kept
	return result, nil
}

type providerResult struct {
	jobs []models.Job
	err  error
}

// collect queries every provider concurrently, each under its own timeout,
// and merges the answers in provider order keeping the first occurrence of
// each job identity.
func (a *aggregator) collect(ctx context.Context, criteria Criteria) (*AggregateResult, error) {
	if len(a.providers) == 0 {
		return nil, fmt.Errorf("%w: no providers configured", ErrSourceUnavailable)
	}

	results := make([]providerResult, len(a.providers))
	var wg sync.WaitGroup
	for i, provider := range a.providers {
		wg.Add(1)
		go func(i int, provider JobProvider) {
			defer wg.Done()
			jobs, err := a.queryProvider(ctx, provider, criteria)
			results[i] = providerResult{jobs: jobs, err: err}
		}(i, provider)
	}
	wg.Wait()

	out := &AggregateResult{}
	var errs error
	seen := make(map[string]bool)
	for i, r := range results {
		name := a.providers[i].Name()
		if r.err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", name, r.err))
			out.DegradedSources = append(out.DegradedSources, name)
			a.logger.Warn("provider failed", zap.String("provider", name), zap.Error(r.err))
			continue
		}
		out.Fetched += len(r.jobs)
		for _, job := range r.jobs {
			key := job.Key()
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			if job.Source == "" {
				job.Source = name
			}
			out.Jobs = append(out.Jobs, job)
		}
	}

	if len(out.DegradedSources) == len(a.providers) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, errs)
	}
	out.Degraded = len(out.DegradedSources) > 0
	return out, nil
}

func (a *aggregator) queryProvider(ctx context.Context, provider JobProvider, criteria Criteria) ([]models.Job, error) {
	if a.cache != nil {
		if jobs, ok := a.cache.Get(ctx, provider.Name(), criteria); ok {
			return jobs, nil
		}
	}

	pctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	// The provider runs in its own goroutine so a client that ignores its
	// context still cannot hold the search past the timeout.
	done := make(chan providerResult, 1)
	go func() {
		jobs, err := provider.Search(pctx, criteria)
		done <- providerResult{jobs: jobs, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, r.err
		}
		if a.cache != nil {
			a.cache.Set(ctx, provider.Name(), criteria, r.jobs)
		}
		return r.jobs, nil
	case <-pctx.Done():
		return nil, fmt.Errorf("provider timed out after %s: %w", a.timeout, pctx.Err())
	}
}

// jobFilter applies the preference filters the boards cannot be trusted
// to enforce themselves.
type jobFilter struct {
	roles     []string
	locations []string
	jobTypes  []string
	levels    []string
	cutoff    time.Time
}

func newJobFilter(prefs *models.Preferences, now time.Time) *jobFilter {
	return &jobFilter{
		roles:     lowerAll(prefs.Roles),
		locations: lowerAll(prefs.Locations),
		jobTypes:  normalizeTokens(prefs.JobTypes),
		levels:    lowerAll(prefs.ExperienceLevels),
		cutoff:    now.Add(-prefs.PostedWithin()),
	}
}

func (f *jobFilter) match(job *models.Job) bool {
	if !job.PostedAt.IsZero() && job.PostedAt.Before(f.cutoff) {
		return false
	}

	if len(f.roles) > 0 {
		text := strings.ToLower(job.Title + "\n" + job.Description)
		if !containsAny(text, f.roles) {
			return false
		}
	}

	if len(f.locations) > 0 {
		loc := strings.ToLower(job.Location)
		ok := false
		for _, want := range f.locations {
			if (want == "remote" && job.Remote) || strings.Contains(loc, want) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}

	if len(f.jobTypes) > 0 && job.JobType != "" {
		if !containsToken(normalizeToken(job.JobType), f.jobTypes) {
			return false
		}
	}

	if len(f.levels) > 0 && job.ExperienceLevel != "" {
		if !containsAny(strings.ToLower(job.ExperienceLevel), f.levels) {
			return false
		}
	}
	return true
}

func lowerAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func normalizeToken(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer("_", "-", " ", "-").Replace(s)
}

func normalizeTokens(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = normalizeToken(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func containsAny(text string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(text, n) {
			return true
		}
	}
	return false
}

func containsToken(token string, tokens []string) bool {
	for _, t := range tokens {
		if t == token {
			return true
		}
	}
	return false
}
