package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"alfredoptarigan/job-agent/internal/models"
	"alfredoptarigan/job-agent/internal/repositories"
	"alfredoptarigan/job-agent/internal/testutil"
)

type harness struct {
	db        *gorm.DB
	profiles  repositories.ProfileRepository
	prefs     repositories.PreferencesRepository
	apps      repositories.ApplicationRepository
	runs      repositories.AgentRunRepository
	provider  *fakeProvider
	scorer    *fakeScorer
	submitter *fakeSubmitter
	notifier  *fakeNotifier
}

func newHarness(t *testing.T, jobs []models.Job, scores map[string]float64) *harness {
	t.Helper()
	db := testutil.NewDB(t)
	return &harness{
		db:        db,
		profiles:  repositories.NewProfileRepository(db),
		prefs:     repositories.NewPreferencesRepository(db),
		apps:      repositories.NewApplicationRepository(db),
		runs:      repositories.NewAgentRunRepository(db),
		provider:  &fakeProvider{name: "p", jobs: jobs},
		scorer:    newFakeScorer(scores),
		submitter: &fakeSubmitter{errs: make(map[string][]error)},
		notifier:  &fakeNotifier{},
	}
}

func (h *harness) orchestrator(withSubmitter bool) Orchestrator {
	deps := OrchestratorDeps{
		Profiles:     h.profiles,
		Preferences:  h.prefs,
		Applications: h.apps,
		Runs:         h.runs,
		Aggregator:   NewAggregator([]JobProvider{h.provider}, AggregatorOptions{ProviderTimeout: time.Second}, zap.NewNop()),
		Scorer:       NewRetryingScorer(h.scorer, fastRetry, zap.NewNop()),
		Notifier:     h.notifier,
	}
	if withSubmitter {
		deps.Submitter = h.submitter
	}
	return NewOrchestrator(deps, OrchestratorConfig{
		Concurrency: 3,
		SubmitRetry: RetryConfig{MaxRetries: 1, InitialWait: time.Millisecond, Multiplier: 1},
	}, zap.NewNop())
}

func (h *harness) seedUser(t *testing.T, userID string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, h.profiles.Replace(ctx, &models.Profile{
		UserID:     userID,
		FullName:   "Jane Doe",
		Summary:    "Backend engineer",
		Skills:     []string{"go", "postgres"},
		ResumeText: "Seven years of Go.",
	}))
	prefs := testPrefs()
	prefs.UserID = userID
	require.NoError(t, h.prefs.Replace(ctx, prefs))
}

func (h *harness) ledger(t *testing.T, userID string) map[string]models.Application {
	t.Helper()
	apps, err := h.apps.ListByUser(context.Background(), userID, "")
	require.NoError(t, err)
	out := make(map[string]models.Application, len(apps))
	for _, a := range apps {
		out[a.JobKey] = a
	}
	return out
}

func threeJobs() ([]models.Job, map[string]float64) {
	now := time.Now()
	jobs := []models.Job{
		job("p", "a", "Go Engineer", now),
		job("p", "b", "Go Developer", now),
		job("p", "c", "Senior Go Engineer", now),
	}
	return jobs, map[string]float64{"p:a": 0.9, "p:b": 0.5, "p:c": 0.75}
}

func parseRunID(t *testing.T, id string) uuid.UUID {
	t.Helper()
	parsed, err := uuid.Parse(id)
	require.NoError(t, err)
	return parsed
}

func outcomes(summary *models.RunSummary) map[string]models.JobOutcome {
	out := make(map[string]models.JobOutcome, len(summary.Jobs))
	for _, j := range summary.Jobs {
		out[j.JobKey] = j
	}
	return out
}

func TestRunAnalyzeOnly(t *testing.T) {
	jobs, scores := threeJobs()
	h := newHarness(t, jobs, scores)
	h.seedUser(t, "u1")

	summary, err := h.orchestrator(true).Run(context.Background(), "u1", RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, 3, summary.JobsDiscovered)
	assert.Equal(t, 3, summary.JobsProcessed)
	assert.Equal(t, 3, summary.JobsScored)
	assert.Equal(t, 2, summary.JobsAnalyzed)
	assert.Equal(t, 1, summary.JobsSkipped)
	assert.Equal(t, 0, summary.JobsApplied)
	assert.Equal(t, 0, summary.JobsFailed)
	assert.False(t, summary.Cancelled)
	assert.Equal(t, 0, h.submitter.count())

	ledger := h.ledger(t, "u1")
	require.Len(t, ledger, 3)
	assert.Equal(t, models.StatusAnalyzed, ledger["p:a"].Status)
	assert.InDelta(t, 0.9, ledger["p:a"].FitScore, 1e-9)
	assert.Equal(t, "Dear Acme a", ledger["p:a"].CoverLetter)
	assert.Equal(t, models.StatusSkipped, ledger["p:b"].Status)
	assert.Equal(t, models.StatusAnalyzed, ledger["p:c"].Status)
	assert.Zero(t, ledger["p:a"].LeaseUntil, "outcome releases the lease")

	run, err := h.runs.FindByID(context.Background(), "u1", parseRunID(t, summary.RunID))
	require.NoError(t, err)
	assert.Equal(t, models.RunCompleted, run.Status)
	assert.Equal(t, 2, run.JobsAnalyzed)
	assert.NotNil(t, run.FinishedAt)

	require.Len(t, h.notifier.summaries, 1)
}

func TestRunAutoApplyIsIdempotent(t *testing.T) {
	jobs, scores := threeJobs()
	h := newHarness(t, jobs, scores)
	h.seedUser(t, "u1")
	o := h.orchestrator(true)

	first, err := o.Run(context.Background(), "u1", RunOptions{AutoApply: true})
	require.NoError(t, err)
	assert.Equal(t, 2, first.JobsApplied)
	assert.Equal(t, 1, first.JobsSkipped)
	assert.Equal(t, 2, h.submitter.count())

	ledger := h.ledger(t, "u1")
	assert.Equal(t, models.StatusApplied, ledger["p:a"].Status)
	require.NotNil(t, ledger["p:a"].AppliedAt)
	assert.Equal(t, models.StatusApplied, ledger["p:c"].Status)

	second, err := o.Run(context.Background(), "u1", RunOptions{AutoApply: true})
	require.NoError(t, err)
	assert.Equal(t, 2, second.JobsAlreadyApplied)
	assert.Equal(t, 0, second.JobsApplied)
	assert.Equal(t, 1, second.JobsProcessed, "only the skipped job is reconsidered")
	assert.Equal(t, 2, h.submitter.count(), "nothing is submitted twice")
	assert.Equal(t, 1, h.scorer.callsFor("p:a"))
	assert.Equal(t, 1, h.scorer.callsFor("p:c"))
	assert.Equal(t, "already applied", outcomes(second)["p:a"].Note)
}

func TestRunPartialScoringFailure(t *testing.T) {
	jobs, scores := threeJobs()
	delete(scores, "p:b")
	h := newHarness(t, jobs, scores)
	h.seedUser(t, "u1")

	summary, err := h.orchestrator(false).Run(context.Background(), "u1", RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, summary.JobsProcessed)
	assert.Equal(t, 2, summary.JobsAnalyzed)
	assert.Equal(t, 1, summary.JobsFailed)
	assert.Equal(t, 2, summary.JobsScored)
	assert.NotEmpty(t, outcomes(summary)["p:b"].Error)

	failed := h.ledger(t, "u1")["p:b"]
	assert.Equal(t, models.StatusFailed, failed.Status)
	assert.Contains(t, failed.ErrorMessage, ErrScoringRejected.Error())
	assert.Equal(t, 1, h.scorer.callsFor("p:b"), "rejections are not retried")
}

func TestRunRetriesTransientScoring(t *testing.T) {
	jobs, scores := threeJobs()
	h := newHarness(t, jobs, scores)
	h.scorer.errs["p:a"] = []error{fmt.Errorf("%w: 503", ErrScoringUnavailable)}
	h.seedUser(t, "u1")

	summary, err := h.orchestrator(false).Run(context.Background(), "u1", RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, summary.JobsFailed)
	assert.Equal(t, 2, h.scorer.callsFor("p:a"))
	assert.Equal(t, models.StatusAnalyzed, h.ledger(t, "u1")["p:a"].Status)
}

func TestRunNoJobs(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.seedUser(t, "u1")

	summary, err := h.orchestrator(false).Run(context.Background(), "u1", RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, models.RunCounts{}, summary.RunCounts)
	assert.Empty(t, summary.Jobs)
	assert.Equal(t, 0, h.scorer.totalCalls())
}

func TestRunPreconditions(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(t *testing.T, h *harness)
		autoApply bool
		submitter bool
		wantErr   error
	}{
		{
			name:    "missing profile",
			setup:   func(t *testing.T, h *harness) {},
			wantErr: ErrProfileMissing,
		},
		{
			name: "empty profile",
			setup: func(t *testing.T, h *harness) {
				require.NoError(t, h.profiles.Replace(context.Background(), &models.Profile{UserID: "u1", FullName: "Jane"}))
			},
			wantErr: ErrProfileMissing,
		},
		{
			name: "missing preferences",
			setup: func(t *testing.T, h *harness) {
				require.NoError(t, h.profiles.Replace(context.Background(), &models.Profile{UserID: "u1", Skills: []string{"go"}}))
			},
			wantErr: ErrPreferencesMissing,
		},
		{
			name: "invalid preferences",
			setup: func(t *testing.T, h *harness) {
				h.seedUser(t, "u1")
				prefs := testPrefs()
				prefs.MinMatchScore = 150
				require.NoError(t, h.prefs.Replace(context.Background(), prefs))
			},
			wantErr: models.ErrInvalidPreferences,
		},
		{
			name:      "auto apply without submitter",
			setup:     func(t *testing.T, h *harness) { h.seedUser(t, "u1") },
			autoApply: true,
			submitter: false,
			wantErr:   ErrSubmitterUnavailable,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jobs, scores := threeJobs()
			h := newHarness(t, jobs, scores)
			tt.setup(t, h)

			summary, err := h.orchestrator(tt.submitter).Run(context.Background(), "u1", RunOptions{AutoApply: tt.autoApply})
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, summary)
			assert.Equal(t, 0, h.provider.callCount(), "no source is queried")
			assert.Empty(t, h.ledger(t, "u1"))
		})
	}
}

func TestRunAllSourcesDown(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.provider.err = fmt.Errorf("board offline")
	h.seedUser(t, "u1")

	summary, err := h.orchestrator(false).Run(context.Background(), "u1", RunOptions{})
	assert.ErrorIs(t, err, ErrSourceUnavailable)
	assert.Nil(t, summary)

	var run models.AgentRun
	require.NoError(t, h.db.Where("user_id = ?", "u1").First(&run).Error)
	assert.Equal(t, models.RunFailed, run.Status)
	assert.Contains(t, run.ErrorMessage, "board offline")
}

func TestRunCancellation(t *testing.T) {
	jobs, scores := threeJobs()
	h := newHarness(t, jobs, scores)
	h.scorer.block = make(chan struct{})
	h.seedUser(t, "u1")

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	summary, err := h.orchestrator(false).Run(ctx, "u1", RunOptions{})
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, summary)
	assert.True(t, summary.Cancelled)
	assert.Equal(t, 3, summary.JobsCancelled)
	assert.Equal(t, 0, summary.JobsProcessed)

	for key, app := range h.ledger(t, "u1") {
		assert.Equal(t, models.StatusFailed, app.Status, key)
		assert.Equal(t, "run cancelled during scoring", app.ErrorMessage, key)
	}

	// Nothing was committed as analyzed, so a fresh run picks every job up.
	close(h.scorer.block)
	h.scorer.block = nil
	again, err := h.orchestrator(false).Run(context.Background(), "u1", RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, again.JobsAnalyzed)
	assert.Equal(t, 1, again.JobsSkipped)
}

func TestRunSubmissionRetryAndFailure(t *testing.T) {
	jobs, scores := threeJobs()
	h := newHarness(t, jobs, scores)
	h.submitter.errs["p:a"] = []error{fmt.Errorf("%w: 502", ErrSubmissionFailed)}
	h.submitter.errs["p:c"] = []error{
		fmt.Errorf("%w: 502", ErrSubmissionFailed),
		fmt.Errorf("%w: 502", ErrSubmissionFailed),
	}
	h.seedUser(t, "u1")

	summary, err := h.orchestrator(true).Run(context.Background(), "u1", RunOptions{AutoApply: true})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.JobsApplied)
	assert.Equal(t, 1, summary.JobsFailed)
	assert.Equal(t, 1, summary.JobsSkipped)

	ledger := h.ledger(t, "u1")
	assert.Equal(t, models.StatusApplied, ledger["p:a"].Status)
	failed := ledger["p:c"]
	assert.Equal(t, models.StatusFailed, failed.Status)
	assert.InDelta(t, 0.75, failed.FitScore, 1e-9, "the score survives a failed submission")
	assert.Contains(t, failed.ErrorMessage, ErrSubmissionFailed.Error())
}

func TestRunSkipsJobLeasedByAnotherRun(t *testing.T) {
	jobs, scores := threeJobs()
	h := newHarness(t, jobs, scores)
	h.seedUser(t, "u1")

	_, ok, err := h.apps.Claim(context.Background(), models.NewApplication("u1", "other-run", &jobs[0]), time.Hour)
	require.NoError(t, err)
	require.True(t, ok)

	summary, err := h.orchestrator(false).Run(context.Background(), "u1", RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.JobsContended)
	assert.Equal(t, 2, summary.JobsProcessed)
	assert.Equal(t, 0, h.scorer.callsFor("p:a"))
}

func TestRunRecordsSubmissionAfterLostClaim(t *testing.T) {
	jobs, scores := threeJobs()
	h := newHarness(t, jobs, scores)
	h.seedUser(t, "u1")

	// Another run takes the row over while the board accepts the application.
	h.submitter.accepted = func(job *models.Job) {
		if job.Key() != "p:a" {
			return
		}
		err := h.db.Model(&models.Application{}).
			Where("user_id = ? AND job_key = ?", "u1", job.Key()).
			Updates(map[string]interface{}{
				"run_id":      "run-other",
				"lease_until": time.Now().Add(time.Hour).Unix(),
			}).Error
		assert.NoError(t, err)
	}

	summary, err := h.orchestrator(true).Run(context.Background(), "u1", RunOptions{AutoApply: true})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.JobsApplied)
	assert.Equal(t, 0, summary.JobsContended)
	assert.Equal(t, models.StatusApplied, outcomes(summary)["p:a"].Status)

	ledger := h.ledger(t, "u1")
	assert.Equal(t, models.StatusApplied, ledger["p:a"].Status)
	assert.Equal(t, summary.RunID, ledger["p:a"].RunID)
	require.NotNil(t, ledger["p:a"].AppliedAt)

	h.submitter.accepted = nil
	again, err := h.orchestrator(true).Run(context.Background(), "u1", RunOptions{AutoApply: true})
	require.NoError(t, err)
	assert.Equal(t, 2, again.JobsAlreadyApplied)
	assert.Equal(t, 2, h.submitter.count(), "never submitted twice")
}

func TestQueueRunThenRun(t *testing.T) {
	jobs, scores := threeJobs()
	h := newHarness(t, jobs, scores)
	h.seedUser(t, "u1")
	o := h.orchestrator(false)

	run, err := o.QueueRun(context.Background(), "u1", false)
	require.NoError(t, err)
	assert.Equal(t, models.RunQueued, run.Status)
	require.NotNil(t, run.Preferences)
	assert.Equal(t, 70, run.Preferences.MinMatchScore)
	assert.Equal(t, 0, h.provider.callCount())

	summary, err := o.Run(context.Background(), "u1", RunOptions{RunID: run.ID})
	require.NoError(t, err)
	assert.Equal(t, run.ID.String(), summary.RunID)

	stored, err := o.GetRun(context.Background(), "u1", run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunCompleted, stored.Status)
	assert.Equal(t, 3, stored.JobsProcessed)

	_, err = o.GetRun(context.Background(), "someone-else", run.ID)
	assert.ErrorIs(t, err, repositories.ErrRunNotFound)

	_, err = o.QueueRun(context.Background(), "nobody", false)
	assert.ErrorIs(t, err, ErrProfileMissing)
}

func TestAnalyzeOne(t *testing.T) {
	now := time.Now()
	manual := job("manual", "x", "Go Engineer", now)
	h := newHarness(t, nil, map[string]float64{manual.Key(): 0.66})
	h.seedUser(t, "u1")
	o := h.orchestrator(false)

	got, err := o.AnalyzeOne(context.Background(), "u1", &manual)
	require.NoError(t, err)
	assert.InDelta(t, 0.66, got.Score, 1e-9)
	assert.Empty(t, h.ledger(t, "u1"), "analysis never touches the ledger")

	_, err = o.AnalyzeOne(context.Background(), "u1", &models.Job{Company: "Acme"})
	assert.ErrorIs(t, err, ErrInvalidJob)

	_, err = o.AnalyzeOne(context.Background(), "nobody", &manual)
	assert.ErrorIs(t, err, ErrProfileMissing)
}

func TestHistory(t *testing.T) {
	jobs, scores := threeJobs()
	h := newHarness(t, jobs, scores)
	h.seedUser(t, "u1")
	h.seedUser(t, "u2")
	o := h.orchestrator(false)

	_, err := o.Run(context.Background(), "u1", RunOptions{})
	require.NoError(t, err)

	all, err := o.History(context.Background(), "u1", "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	skipped, err := o.History(context.Background(), "u1", models.StatusSkipped)
	require.NoError(t, err)
	require.Len(t, skipped, 1)
	assert.Equal(t, "p:b", skipped[0].JobKey)

	other, err := o.History(context.Background(), "u2", "")
	require.NoError(t, err)
	assert.Empty(t, other)
}
