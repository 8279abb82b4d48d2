package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"alfredoptarigan/job-agent/internal/models"
)

func testPrefs() *models.Preferences {
	return &models.Preferences{
		UserID:           "u1",
		Roles:            []string{"go"},
		MinMatchScore:    70,
		PostedWithinDays: 7,
	}
}

func newTestAggregator(providers ...JobProvider) *aggregator {
	a := NewAggregator(providers, AggregatorOptions{ProviderTimeout: time.Second}, zap.NewNop()).(*aggregator)
	return a
}

func TestAggregatorDeduplicatesFirstWins(t *testing.T) {
	now := time.Now()
	shared := job("adzuna", "1", "Go Engineer", now)
	dup := shared
	dup.Title = "Go Engineer (copy)"

	a := newTestAggregator(
		&fakeProvider{name: "adzuna", jobs: []models.Job{shared, job("adzuna", "2", "Senior Go Developer", now)}},
		&fakeProvider{name: "mirror", jobs: []models.Job{dup, job("mirror", "3", "Go Platform Engineer", now)}},
	)

	res, err := a.Search(context.Background(), &models.Profile{}, testPrefs())
	require.NoError(t, err)
	require.Len(t, res.Jobs, 3)
	assert.Equal(t, 4, res.Fetched)
	assert.Equal(t, "Go Engineer", res.Jobs[0].Title)
	assert.False(t, res.Degraded)
}

func TestAggregatorRecencyFilter(t *testing.T) {
	now := time.Now()
	a := newTestAggregator(&fakeProvider{name: "p", jobs: []models.Job{
		job("p", "fresh", "Go Engineer", now.Add(-24*time.Hour)),
		job("p", "old", "Go Engineer", now.Add(-30*24*time.Hour)),
		job("p", "undated", "Go Engineer", time.Time{}),
	}})

	res, err := a.Search(context.Background(), nil, testPrefs())
	require.NoError(t, err)

	var ids []string
	for _, j := range res.Jobs {
		ids = append(ids, j.ExternalID)
	}
	assert.Equal(t, []string{"fresh", "undated"}, ids)
}

func TestAggregatorPreferenceFilters(t *testing.T) {
	now := time.Now()
	remote := job("p", "remote", "Go Engineer", now)
	remote.Location = "Anywhere"
	remote.Remote = true
	partTime := job("p", "part", "Go Engineer", now)
	partTime.JobType = "part_time"
	fullTime := job("p", "full", "Go Engineer", now)
	fullTime.JobType = "Full Time"
	junior := job("p", "junior", "Go Engineer", now)
	junior.ExperienceLevel = "Junior"
	otherRole := job("p", "java", "Java Engineer", now)
	otherRole.Description = "Spring"
	paris := job("p", "paris", "Go Engineer", now)
	paris.Location = "Paris"

	prefs := testPrefs()
	prefs.Locations = []string{"berlin", "remote"}
	prefs.JobTypes = []string{"full-time"}
	prefs.ExperienceLevels = []string{"senior"}

	a := newTestAggregator(&fakeProvider{name: "p", jobs: []models.Job{remote, partTime, fullTime, junior, otherRole, paris}})
	res, err := a.Search(context.Background(), nil, prefs)
	require.NoError(t, err)

	var ids []string
	for _, j := range res.Jobs {
		ids = append(ids, j.ExternalID)
	}
	assert.Equal(t, []string{"remote", "full"}, ids)
}

func TestAggregatorDegradedSource(t *testing.T) {
	a := newTestAggregator(
		&fakeProvider{name: "up", jobs: []models.Job{job("up", "1", "Go Engineer", time.Now())}},
		&fakeProvider{name: "down", err: errors.New("connection refused")},
	)

	res, err := a.Search(context.Background(), nil, testPrefs())
	require.NoError(t, err)
	assert.True(t, res.Degraded)
	assert.Equal(t, []string{"down"}, res.DegradedSources)
	assert.Len(t, res.Jobs, 1)
}

func TestAggregatorAllProvidersDown(t *testing.T) {
	a := newTestAggregator(
		&fakeProvider{name: "a", err: errors.New("boom")},
		&fakeProvider{name: "b", err: errors.New("boom")},
	)

	_, err := a.Search(context.Background(), nil, testPrefs())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSourceUnavailable)

	_, err = newTestAggregator().Search(context.Background(), nil, testPrefs())
	assert.ErrorIs(t, err, ErrSourceUnavailable)
}

func TestAggregatorSlowProviderTimesOut(t *testing.T) {
	a := NewAggregator([]JobProvider{
		&fakeProvider{name: "slow", delay: 5 * time.Second},
		&fakeProvider{name: "fast", jobs: []models.Job{job("fast", "1", "Go Engineer", time.Now())}},
	}, AggregatorOptions{ProviderTimeout: 50 * time.Millisecond}, zap.NewNop())

	start := time.Now()
	res, err := a.Search(context.Background(), nil, testPrefs())
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, []string{"slow"}, res.DegradedSources)
	assert.Len(t, res.Jobs, 1)
}

func TestAggregatorUsesProfileLocation(t *testing.T) {
	p := &fakeProvider{name: "p"}
	a := newTestAggregator(p)

	_, err := a.Search(context.Background(), &models.Profile{Location: "Lisbon"}, testPrefs())
	require.NoError(t, err)
	require.Len(t, p.seen, 1)
	assert.Equal(t, []string{"Lisbon"}, p.seen[0].Locations)
	assert.Equal(t, 7*24*time.Hour, p.seen[0].PostedWithin)
}

func TestAggregatorCache(t *testing.T) {
	p := &fakeProvider{name: "p", jobs: []models.Job{job("p", "1", "Go Engineer", time.Now())}}
	a := NewAggregator([]JobProvider{p}, AggregatorOptions{Cache: newMemoryCache()}, zap.NewNop())

	for i := 0; i < 2; i++ {
		res, err := a.Search(context.Background(), nil, testPrefs())
		require.NoError(t, err)
		assert.Len(t, res.Jobs, 1)
	}
	assert.Equal(t, 1, p.callCount())
}

func TestSearchManual(t *testing.T) {
	now := time.Now()
	p := &fakeProvider{name: "p", jobs: []models.Job{
		job("p", "new", "Anything", now),
		job("p", "stale", "Anything", now.Add(-10*24*time.Hour)),
	}}
	a := newTestAggregator(p)

	res, err := a.SearchManual(context.Background(), "rust", "")
	require.NoError(t, err)
	require.Len(t, res.Jobs, 1)
	assert.Equal(t, "new", res.Jobs[0].ExternalID)
	assert.Equal(t, []string{"rust"}, p.seen[0].Roles)

	_, err = a.SearchManual(context.Background(), "  ", "")
	assert.ErrorIs(t, err, ErrInvalidJob)
}
