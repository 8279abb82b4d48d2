package services

import (
	"context"
	"sync"
	"time"

	"alfredoptarigan/job-agent/internal/models"
)

type fakeProvider struct {
	name  string
	jobs  []models.Job
	err   error
	delay time.Duration

	mu    sync.Mutex
	calls int
	seen  []Criteria
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) Search(ctx context.Context, criteria Criteria) ([]models.Job, error) {
	p.mu.Lock()
	p.calls++
	p.seen = append(p.seen, criteria)
	p.mu.Unlock()

	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if p.err != nil {
		return nil, p.err
	}
	out := make([]models.Job, len(p.jobs))
	copy(out, p.jobs)
	return out, nil
}

func (p *fakeProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// fakeScorer answers per job key. errs are returned, one per call, before
// the score is.
type fakeScorer struct {
	mu     sync.Mutex
	scores map[string]float64
	errs   map[string][]error
	calls  map[string]int
	block  chan struct{}
}

func newFakeScorer(scores map[string]float64) *fakeScorer {
	return &fakeScorer{
		scores: scores,
		errs:   make(map[string][]error),
		calls:  make(map[string]int),
	}
}

func (s *fakeScorer) Name() string { return "fake" }

func (s *fakeScorer) Score(ctx context.Context, profile *models.Profile, job *models.Job) (*models.ScoreResult, error) {
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	key := job.Key()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[key]++
	if pending := s.errs[key]; len(pending) > 0 {
		s.errs[key] = pending[1:]
		return nil, pending[0]
	}
	score, ok := s.scores[key]
	if !ok {
		return nil, ErrScoringRejected
	}
	return &models.ScoreResult{Score: score, Explanation: "fit " + key, CoverLetter: "Dear " + job.Company}, nil
}

func (s *fakeScorer) callsFor(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[key]
}

func (s *fakeScorer) totalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.calls {
		total += n
	}
	return total
}

type fakeSubmitter struct {
	mu        sync.Mutex
	errs      map[string][]error
	submitted []string
	// accepted runs after a successful submission.
	accepted func(job *models.Job)
}

func (s *fakeSubmitter) Submit(ctx context.Context, profile *models.Profile, job *models.Job, app *models.Application) error {
	s.mu.Lock()
	if pending := s.errs[job.Key()]; len(pending) > 0 {
		s.errs[job.Key()] = pending[1:]
		s.mu.Unlock()
		return pending[0]
	}
	s.submitted = append(s.submitted, job.Key())
	accepted := s.accepted
	s.mu.Unlock()

	if accepted != nil {
		accepted(job)
	}
	return nil
}

func (s *fakeSubmitter) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.submitted)
}

type fakeNotifier struct {
	mu        sync.Mutex
	summaries []*models.RunSummary
}

func (n *fakeNotifier) RunFinished(ctx context.Context, profile *models.Profile, summary *models.RunSummary) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.summaries = append(n.summaries, summary)
	return nil
}

type memoryCache struct {
	mu   sync.Mutex
	data map[string][]models.Job
}

func newMemoryCache() *memoryCache {
	return &memoryCache{data: make(map[string][]models.Job)}
}

func (c *memoryCache) Get(ctx context.Context, provider string, criteria Criteria) ([]models.Job, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	jobs, ok := c.data[SearchCacheKey(provider, criteria)]
	return jobs, ok
}

func (c *memoryCache) Set(ctx context.Context, provider string, criteria Criteria, jobs []models.Job) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[SearchCacheKey(provider, criteria)] = jobs
}

func job(source, id, title string, posted time.Time) models.Job {
	return models.Job{
		Source:      source,
		ExternalID:  id,
		URL:         "https://jobs.test/" + source + "/" + id,
		Title:       title,
		Company:     "Acme " + id,
		Location:    "Berlin",
		Description: "We build backend services in Go.",
		PostedAt:    posted,
	}
}
