package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCriteriaQueries(t *testing.T) {
	c := Criteria{Roles: []string{"go", "rust"}, Locations: []string{"Berlin", "remote"}}
	assert.Len(t, c.queries(), 4)

	c = Criteria{Roles: []string{"go"}}
	assert.Equal(t, []searchQuery{{Keywords: "go"}}, c.queries())

	assert.Equal(t, 1, Criteria{}.postedWithinDays())
	assert.Equal(t, 2, Criteria{PostedWithin: 25 * time.Hour}.postedWithinDays())
}

const adzunaBody = `{
  "count": 2,
  "results": [
    {
      "id": "4711",
      "title": "<strong>Senior Go</strong> Engineer",
      "description": "<p>Build <b>APIs</b></p>",
      "company": {"display_name": "Acme"},
      "location": {"display_name": "Berlin, Germany"},
      "salary_min": 60000,
      "salary_max": 80000,
      "redirect_url": "https://www.adzuna.de/details/4711?utm=x",
      "created": "2024-05-01T10:00:00Z",
      "contract_time": "full_time"
    },
    {
      "id": "4712",
      "title": "Remote Go Developer",
      "description": "plain text",
      "company": {"display_name": "Beta"},
      "location": {"display_name": "UK"},
      "redirect_url": "https://www.adzuna.de/details/4712",
      "created": "not a date"
    }
  ]
}`

func TestAdzunaProviderSearch(t *testing.T) {
	var gotPath, gotWhat, gotWhere, gotDays string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotWhat = r.URL.Query().Get("what")
		gotWhere = r.URL.Query().Get("where")
		gotDays = r.URL.Query().Get("max_days_old")
		assert.Equal(t, "id", r.URL.Query().Get("app_id"))
		assert.Equal(t, "key", r.URL.Query().Get("app_key"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(adzunaBody))
	}))
	defer srv.Close()

	p := NewAdzunaProvider("id", "key", "DE", ProviderOptions{BaseURL: srv.URL}, zap.NewNop())
	jobs, err := p.Search(context.Background(), Criteria{
		Roles:        []string{"golang"},
		Locations:    []string{"Berlin"},
		PostedWithin: 3 * 24 * time.Hour,
	})
	require.NoError(t, err)
	require.Len(t, jobs, 2)

	assert.Equal(t, "/de/search/1", gotPath)
	assert.Equal(t, "golang", gotWhat)
	assert.Equal(t, "Berlin", gotWhere)
	assert.Equal(t, "3", gotDays)

	first := jobs[0]
	assert.Equal(t, "adzuna:4711", first.Key())
	assert.Equal(t, "Acme", first.Company)
	assert.Equal(t, "full-time", first.JobType)
	assert.Contains(t, first.Title, "Senior Go")
	assert.NotContains(t, first.Title, "<strong>")
	assert.Contains(t, first.Description, "APIs")
	assert.Equal(t, 2024, first.PostedAt.Year())
	assert.InDelta(t, 60000, first.SalaryMin, 0.1)

	assert.True(t, jobs[1].Remote)
	assert.True(t, jobs[1].PostedAt.IsZero())
}

func TestAdzunaRemoteLocationIsNotSentAsWhere(t *testing.T) {
	var where atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		where.Store(r.URL.Query().Get("where"))
		w.Write([]byte(`{"results": []}`))
	}))
	defer srv.Close()

	p := NewAdzunaProvider("id", "key", "gb", ProviderOptions{BaseURL: srv.URL}, zap.NewNop())
	jobs, err := p.Search(context.Background(), Criteria{Roles: []string{"go"}, Locations: []string{"Remote"}})
	require.NoError(t, err)
	assert.Empty(t, jobs)
	assert.Equal(t, "", where.Load())
}

func TestAdzunaServerError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	p := NewAdzunaProvider("id", "bad", "gb", ProviderOptions{BaseURL: srv.URL, MaxRetries: 2}, zap.NewNop())
	_, err := p.Search(context.Background(), Criteria{Roles: []string{"go"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls), "4xx is not retried")
}

func TestHTTPFetcherRetriesTransientStatus(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := newHTTPFetcher(ProviderOptions{MaxRetries: 1}, zap.NewNop())
	f.retry.InitialWait = time.Millisecond
	body, err := f.get(context.Background(), srv.URL, "text/plain")
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

const hhBody = `{
  "found": 2, "pages": 1, "page": 0, "per_page": 50,
  "items": [
    {
      "id": "93000001",
      "name": "Golang developer",
      "area": {"id": "1", "name": "Moscow"},
      "salary": {"from": 250000, "to": null, "currency": "RUR"},
      "published_at": "2024-05-02T12:30:00+0300",
      "alternate_url": "https://hh.ru/vacancy/93000001",
      "apply_alternate_url": "https://hh.ru/applicant/vacancy_response?vacancyId=93000001",
      "employer": {"id": "7", "name": "Yandex"},
      "snippet": {"requirement": "Experience with <highlighttext>Go</highlighttext>", "responsibility": "Write services"},
      "schedule": {"id": "remote", "name": "Remote"},
      "experience": {"id": "between3And6", "name": "3-6 years"},
      "employment": {"id": "full", "name": "Full"}
    },
    {"id": "93000002", "name": "Old one", "archived": true, "employer": {"name": "X"}, "area": {"name": "Y"}}
  ]
}`

func TestHeadHunterProviderSearch(t *testing.T) {
	var query atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/vacancies", r.URL.Path)
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		query.Store(r.URL.RawQuery)
		w.Write([]byte(hhBody))
	}))
	defer srv.Close()

	p := NewHeadHunterProvider("", ProviderOptions{BaseURL: srv.URL}, zap.NewNop())
	jobs, err := p.Search(context.Background(), Criteria{
		Roles:        []string{"golang"},
		Locations:    []string{"remote"},
		PostedWithin: 7 * 24 * time.Hour,
	})
	require.NoError(t, err)
	require.Len(t, jobs, 1, "archived vacancies are dropped")

	raw := query.Load().(string)
	assert.Contains(t, raw, "schedule=remote")
	assert.Contains(t, raw, "period=7")

	j := jobs[0]
	assert.Equal(t, "headhunter:93000001", j.Key())
	assert.Equal(t, "Yandex", j.Company)
	assert.Equal(t, "full-time", j.JobType)
	assert.Equal(t, "3-6 years", j.ExperienceLevel)
	assert.True(t, j.Remote)
	assert.Equal(t, "RUR", j.Currency)
	assert.InDelta(t, 250000, j.SalaryMin, 0.1)
	assert.Contains(t, j.Description, "Write services")
	assert.Contains(t, j.Description, "Go")
	assert.Contains(t, j.Link(), "vacancy_response")
	assert.Equal(t, 9, j.PostedAt.UTC().Hour())
}

const linkedInHTML = `
<ul>
  <li>
    <div class="base-card job-search-card">
      <a class="base-card__full-link" href="https://de.linkedin.com/jobs/view/senior-go-engineer-at-acme-3912345678?refId=abc"></a>
      <h3 class="base-search-card__title">Senior Go Engineer</h3>
      <h4 class="base-search-card__subtitle"><a class="hidden-nested-link">Acme</a></h4>
      <span class="job-search-card__location">Berlin, Germany (Remote)</span>
      <time class="job-search-card__listdate" datetime="2024-05-03">1 day ago</time>
    </div>
  </li>
  <li>
    <div class="base-card">
      <h3 class="base-search-card__title">No link card</h3>
    </div>
  </li>
</ul>`

func TestParseLinkedInCards(t *testing.T) {
	jobs, err := parseLinkedInCards([]byte(linkedInHTML))
	require.NoError(t, err)
	require.Len(t, jobs, 1)

	j := jobs[0]
	assert.Equal(t, "Senior Go Engineer", j.Title)
	assert.Equal(t, "Acme", j.Company)
	assert.Equal(t, "3912345678", j.ExternalID)
	assert.Equal(t, "linkedin:3912345678", j.Key())
	assert.True(t, j.Remote)
	assert.Equal(t, time.Date(2024, 5, 3, 0, 0, 0, 0, time.UTC), j.PostedAt)
}

func TestLinkedInProviderSearch(t *testing.T) {
	var raw atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw.Store(r.URL.RawQuery)
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(linkedInHTML))
	}))
	defer srv.Close()

	p := NewLinkedInProvider(ProviderOptions{BaseURL: srv.URL}, zap.NewNop())
	jobs, err := p.Search(context.Background(), Criteria{
		Roles:        []string{"go engineer"},
		Locations:    []string{"remote"},
		PostedWithin: 24 * time.Hour,
	})
	require.NoError(t, err)
	require.Len(t, jobs, 1)

	q := raw.Load().(string)
	assert.True(t, strings.Contains(q, "f_WT=2"))
	assert.True(t, strings.Contains(q, "f_TPR=r86400"))
	assert.True(t, strings.Contains(q, "keywords=go+engineer"))
}
