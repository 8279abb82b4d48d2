package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"alfredoptarigan/job-agent/internal/models"
	"alfredoptarigan/job-agent/internal/repositories"
)

const (
	DefaultConcurrency  = 6
	DefaultClaimLease   = 10 * time.Minute
	defaultWriteTimeout = 10 * time.Second
	notifyTimeout       = 15 * time.Second
)

type RunOptions struct {
	AutoApply bool
	// RunID continues a run queued earlier; zero creates a new one.
	RunID uuid.UUID
}

type Orchestrator interface {
	Run(ctx context.Context, userID string, opts RunOptions) (*models.RunSummary, error)
	QueueRun(ctx context.Context, userID string, autoApply bool) (*models.AgentRun, error)
	AnalyzeOne(ctx context.Context, userID string, job *models.Job) (*models.ScoreResult, error)
	History(ctx context.Context, userID string, status models.ApplicationStatus) ([]models.Application, error)
	GetRun(ctx context.Context, userID string, runID uuid.UUID) (*models.AgentRun, error)
}

type OrchestratorConfig struct {
	Concurrency  int
	ClaimLease   time.Duration
	SubmitRetry  RetryConfig
	WriteTimeout time.Duration
}

// OrchestratorDeps groups the collaborators. Submitter, Notifier and Events
// may be nil.
type OrchestratorDeps struct {
	Profiles     repositories.ProfileRepository
	Preferences  repositories.PreferencesRepository
	Applications repositories.ApplicationRepository
	Runs         repositories.AgentRunRepository
	Aggregator   Aggregator
	Scorer       Scorer
	Submitter    Submitter
	Notifier     Notifier
	Events       EventPublisher
}

type orchestrator struct {
	OrchestratorDeps
	cfg    OrchestratorConfig
	logger *zap.Logger
}

func NewOrchestrator(deps OrchestratorDeps, cfg OrchestratorConfig, logger *zap.Logger) Orchestrator {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.ClaimLease <= 0 {
		cfg.ClaimLease = DefaultClaimLease
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if deps.Events == nil {
		deps.Events = nopEventPublisher{}
	}
	return &orchestrator{
		OrchestratorDeps: deps,
		cfg:              cfg,
		logger:           logger.Named("orchestrator"),
	}
}

// preconditions loads and checks everything a run needs before any
// external call is made.
func (o *orchestrator) preconditions(ctx context.Context, userID string, autoApply bool) (*models.Profile, *models.Preferences, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, nil, fmt.Errorf("%w: user id is required", ErrProfileMissing)
	}

	profile, err := o.Profiles.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrProfileNotFound) {
			return nil, nil, ErrProfileMissing
		}
		return nil, nil, err
	}
	if profile.IsEmpty() {
		return nil, nil, ErrProfileMissing
	}

	prefs, err := o.Preferences.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrPreferencesNotFound) {
			return nil, nil, ErrPreferencesMissing
		}
		return nil, nil, err
	}
	if err := prefs.Validate(); err != nil {
		return nil, nil, err
	}

	if autoApply && o.Submitter == nil {
		return nil, nil, ErrSubmitterUnavailable
	}
	return profile, prefs, nil
}

// QueueRun implements Orchestrator. Preconditions are checked now so the
// caller learns about a misconfigured profile immediately.
func (o *orchestrator) QueueRun(ctx context.Context, userID string, autoApply bool) (*models.AgentRun, error) {
	_, prefs, err := o.preconditions(ctx, userID, autoApply)
	if err != nil {
		return nil, err
	}
	run := &models.AgentRun{
		UserID:      userID,
		AutoApply:   autoApply,
		Status:      models.RunQueued,
		Preferences: prefs,
	}
	if err := o.Runs.Create(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

// Run implements Orchestrator. On cancellation the partial summary is
// returned together with the context error; records committed before that
// point stay as written.
func (o *orchestrator) Run(ctx context.Context, userID string, opts RunOptions) (*models.RunSummary, error) {
	profile, prefs, err := o.preconditions(ctx, userID, opts.AutoApply)
	if err != nil {
		if opts.RunID != uuid.Nil {
			o.failRun(ctx, opts.RunID, err)
		}
		return nil, err
	}

	startedAt := time.Now().UTC()
	runID := opts.RunID
	if runID == uuid.Nil {
		run := &models.AgentRun{
			UserID:      userID,
			AutoApply:   opts.AutoApply,
			Status:      models.RunRunning,
			Preferences: prefs,
			StartedAt:   &startedAt,
		}
		if err := o.Runs.Create(ctx, run); err != nil {
			return nil, err
		}
		runID = run.ID
	}

	log := o.logger.With(
		zap.String("run_id", runID.String()),
		zap.String("user_id", userID),
		zap.Bool("auto_apply", opts.AutoApply),
	)
	log.Info("agent run started")

	found, err := o.Aggregator.Search(ctx, profile, prefs)
	if err != nil {
		log.Error("job search failed", zap.Error(err))
		o.failRun(ctx, runID, err)
		return nil, err
	}

	r := &runState{
		orchestrator: o,
		ctx:          ctx,
		runID:        runID.String(),
		userID:       userID,
		profile:      profile,
		threshold:    prefs.Threshold(),
		autoApply:    opts.AutoApply,
		log:          log,
	}
	r.summary = &models.RunSummary{
		RunID:           runID.String(),
		UserID:          userID,
		AutoApply:       opts.AutoApply,
		Degraded:        found.Degraded,
		DegradedSources: found.DegradedSources,
		StartedAt:       startedAt,
		Jobs:            make([]models.JobOutcome, 0, len(found.Jobs)),
	}
	r.summary.JobsDiscovered = len(found.Jobs)

	var g errgroup.Group
	g.SetLimit(o.cfg.Concurrency)
	for i := range found.Jobs {
		if ctx.Err() != nil {
			r.cancelRemaining(found.Jobs[i:])
			break
		}
		job := found.Jobs[i]
		g.Go(func() error {
			r.process(&job)
			return nil
		})
	}
	g.Wait()

	summary := r.summary
	summary.FinishedAt = time.Now().UTC()
	summary.Cancelled = ctx.Err() != nil

	o.finish(ctx, runID, profile, summary, log)

	if summary.Cancelled {
		return summary, ctx.Err()
	}
	return summary, nil
}

func (o *orchestrator) detached(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), timeout)
}

func (o *orchestrator) failRun(ctx context.Context, runID uuid.UUID, cause error) {
	wctx, cancel := o.detached(ctx, o.cfg.WriteTimeout)
	defer cancel()
	if err := o.Runs.UpdateError(wctx, runID, cause.Error()); err != nil {
		o.logger.Warn("failed to record run failure", zap.String("run_id", runID.String()), zap.Error(err))
	}
}

// finish persists the summary and fans out notifications. None of these
// steps can fail the run.
func (o *orchestrator) finish(ctx context.Context, runID uuid.UUID, profile *models.Profile, summary *models.RunSummary, log *zap.Logger) {
	wctx, cancel := o.detached(ctx, notifyTimeout)
	defer cancel()

	if err := o.Runs.SaveSummary(wctx, runID, summary); err != nil {
		log.Warn("failed to persist run summary", zap.Error(err))
	}
	o.Events.RunCompleted(wctx, summary)
	if o.Notifier != nil {
		if err := o.Notifier.RunFinished(wctx, profile, summary); err != nil {
			log.Warn("run notification failed", zap.Error(err))
		}
	}

	log.Info("agent run finished",
		zap.Int("discovered", summary.JobsDiscovered),
		zap.Int("processed", summary.JobsProcessed),
		zap.Int("analyzed", summary.JobsAnalyzed),
		zap.Int("applied", summary.JobsApplied),
		zap.Int("skipped", summary.JobsSkipped),
		zap.Int("failed", summary.JobsFailed),
		zap.Int("already_applied", summary.JobsAlreadyApplied),
		zap.Int("contended", summary.JobsContended),
		zap.Int("cancelled", summary.JobsCancelled),
		zap.Bool("degraded", summary.Degraded),
	)
}

// AnalyzeOne implements Orchestrator. It scores a caller-supplied job and
// never reads or writes the ledger.
func (o *orchestrator) AnalyzeOne(ctx context.Context, userID string, job *models.Job) (*models.ScoreResult, error) {
	profile, err := o.Profiles.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrProfileNotFound) {
			return nil, ErrProfileMissing
		}
		return nil, err
	}
	if profile.IsEmpty() {
		return nil, ErrProfileMissing
	}

	if job == nil || (strings.TrimSpace(job.Title) == "" && strings.TrimSpace(job.Description) == "") {
		return nil, fmt.Errorf("%w: title or description is required", ErrInvalidJob)
	}

	return o.Scorer.Score(ctx, profile, job)
}

// History implements Orchestrator.
func (o *orchestrator) History(ctx context.Context, userID string, status models.ApplicationStatus) ([]models.Application, error) {
	return o.Applications.ListByUser(ctx, userID, status)
}

// GetRun implements Orchestrator.
func (o *orchestrator) GetRun(ctx context.Context, userID string, runID uuid.UUID) (*models.AgentRun, error) {
	return o.Runs.FindByID(ctx, userID, runID)
}
