package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"alfredoptarigan/job-agent/internal/models"
	"alfredoptarigan/job-agent/internal/repositories"
)

// runState carries one run's shared inputs and its summary. Every field but
// summary is read-only once the fan-out starts.
type runState struct {
	*orchestrator
	ctx       context.Context
	runID     string
	userID    string
	profile   *models.Profile
	threshold float64
	autoApply bool
	log       *zap.Logger

	mu      sync.Mutex
	summary *models.RunSummary
}

type jobResult int

const (
	resultAnalyzed jobResult = iota
	resultApplied
	resultSkipped
	resultFailed
	resultAlreadyApplied
	resultContended
	resultCancelled
)

func (r *runState) record(res jobResult, scored bool, outcome models.JobOutcome) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.summary
	switch res {
	case resultAnalyzed:
		s.JobsAnalyzed++
		s.JobsProcessed++
	case resultApplied:
		s.JobsApplied++
		s.JobsProcessed++
	case resultSkipped:
		s.JobsSkipped++
		s.JobsProcessed++
	case resultFailed:
		s.JobsFailed++
		s.JobsProcessed++
	case resultAlreadyApplied:
		s.JobsAlreadyApplied++
	case resultContended:
		s.JobsContended++
	case resultCancelled:
		s.JobsCancelled++
	}
	if scored {
		s.JobsScored++
	}
	s.Jobs = append(s.Jobs, outcome)
}

func (r *runState) cancelRemaining(jobs []models.Job) {
	for i := range jobs {
		r.record(resultCancelled, false, outcomeFor(&jobs[i], "", "run cancelled before dispatch"))
	}
}

func outcomeFor(job *models.Job, status models.ApplicationStatus, note string) models.JobOutcome {
	return models.JobOutcome{
		JobKey:  job.Key(),
		Title:   job.Title,
		Company: job.Company,
		URL:     job.Link(),
		Status:  status,
		Note:    note,
	}
}

func (r *runState) writeCtx() (context.Context, context.CancelFunc) {
	return r.detached(r.ctx, r.cfg.WriteTimeout)
}

func (r *runState) interrupted(err error) bool {
	return r.ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded))
}

// process takes one job through ledger check, claim, scoring and the
// optional submission. It always records exactly one result.
func (r *runState) process(job *models.Job) {
	log := r.log.With(zap.String("job_key", job.Key()))

	if r.ctx.Err() != nil {
		r.record(resultCancelled, false, outcomeFor(job, "", "run cancelled before dispatch"))
		return
	}

	existing, err := r.Applications.Seen(r.ctx, r.userID, job.Key())
	if err != nil {
		if r.interrupted(err) {
			r.record(resultCancelled, false, outcomeFor(job, "", "run cancelled before claim"))
			return
		}
		log.Error("ledger lookup failed", zap.Error(err))
		out := outcomeFor(job, models.StatusFailed, "")
		out.Error = err.Error()
		r.record(resultFailed, false, out)
		return
	}
	if existing != nil && existing.Status == models.StatusApplied {
		out := outcomeFor(job, models.StatusApplied, "already applied")
		out.FitScore = existing.FitScore
		r.record(resultAlreadyApplied, false, out)
		return
	}

	wctx, cancel := r.writeCtx()
	app, ok, err := r.Applications.Claim(wctx, models.NewApplication(r.userID, r.runID, job), r.cfg.ClaimLease)
	cancel()
	if err != nil {
		log.Error("claim failed", zap.Error(err))
		out := outcomeFor(job, models.StatusFailed, "")
		out.Error = err.Error()
		r.record(resultFailed, false, out)
		return
	}
	if !ok {
		r.refused(job)
		return
	}

	score, err := r.Scorer.Score(r.ctx, r.profile, job)
	if err != nil {
		if r.interrupted(err) {
			r.finalize(log, app, job, resultCancelled, false, models.Outcome{
				Status:       models.StatusFailed,
				ErrorMessage: "run cancelled during scoring",
			})
			return
		}
		log.Warn("scoring failed", zap.Error(err))
		r.finalize(log, app, job, resultFailed, false, models.Outcome{
			Status:       models.StatusFailed,
			ErrorMessage: err.Error(),
		})
		return
	}

	if score.Score < r.threshold {
		r.finalize(log, app, job, resultSkipped, true, models.Outcome{Status: models.StatusSkipped, Score: score})
		return
	}

	if !r.autoApply {
		r.finalize(log, app, job, resultAnalyzed, true, models.Outcome{Status: models.StatusAnalyzed, Score: score})
		return
	}

	r.apply(log, app, job, score)
}

// refused classifies a claim the ledger turned down: either another run
// applied meanwhile or it still holds the lease.
func (r *runState) refused(job *models.Job) {
	wctx, cancel := r.writeCtx()
	defer cancel()
	if current, err := r.Applications.Seen(wctx, r.userID, job.Key()); err == nil && current != nil && current.Status == models.StatusApplied {
		out := outcomeFor(job, models.StatusApplied, "already applied")
		out.FitScore = current.FitScore
		r.record(resultAlreadyApplied, false, out)
		return
	}
	r.record(resultContended, false, outcomeFor(job, "", "claimed by another run"))
}

func (r *runState) apply(log *zap.Logger, app *models.Application, job *models.Job, score *models.ScoreResult) {
	wctx, cancel := r.writeCtx()
	err := r.Applications.SaveAnalysis(wctx, app.ID, r.runID, score)
	cancel()
	if err != nil {
		r.writeFailed(log, job, true, score, err)
		return
	}

	app.Status = models.StatusAnalyzed
	app.FitScore = score.Score
	app.Explanation = score.Explanation
	app.CoverLetter = score.CoverLetter

	retry := r.cfg.SubmitRetry
	_, err = RetryDo(r.ctx, retry, log, isSubmissionRetryable, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, r.Submitter.Submit(ctx, r.profile, job, app)
	})
	if err != nil {
		log.Warn("submission failed", zap.Error(err))
		r.finalize(log, app, job, resultFailed, true, models.Outcome{
			Status:       models.StatusFailed,
			Score:        score,
			ErrorMessage: err.Error(),
		})
		return
	}

	appliedAt := time.Now().UTC()
	wctx, cancel = r.writeCtx()
	err = r.Applications.SaveOutcome(wctx, app.ID, r.runID, models.Outcome{
		Status:    models.StatusApplied,
		Score:     score,
		AppliedAt: &appliedAt,
	})
	cancel()
	if err != nil {
		r.submitted(log, app, job, score, appliedAt, err)
		return
	}

	out := outcomeFor(job, models.StatusApplied, "")
	out.FitScore = score.Score
	r.record(resultApplied, true, out)
}

// submitted records an application the board already accepted after the
// guarded write failed. The submission cannot be undone, so the row is
// forced to Applied to keep later runs from submitting again.
func (r *runState) submitted(log *zap.Logger, app *models.Application, job *models.Job, score *models.ScoreResult, appliedAt time.Time, cause error) {
	log.Warn("guarded write after submission failed, forcing applied", zap.Error(cause))

	wctx, cancel := r.writeCtx()
	err := r.Applications.MarkApplied(wctx, app.ID, r.runID, score, appliedAt)
	cancel()
	if err != nil {
		log.Error("submitted application not recorded, it may be submitted again",
			zap.String("application_id", app.ID.String()),
			zap.Error(multierr.Append(cause, err)),
		)
		out := outcomeFor(job, models.StatusFailed, "submitted but not recorded")
		out.FitScore = score.Score
		out.Error = err.Error()
		r.record(resultFailed, true, out)
		return
	}

	out := outcomeFor(job, models.StatusApplied, "")
	out.FitScore = score.Score
	r.record(resultApplied, true, out)
}

func isSubmissionRetryable(err error) bool {
	return errors.Is(err, ErrSubmissionFailed)
}

// finalize writes the terminal outcome under a detached context and records
// the result. A lost claim turns the job into a contended one.
func (r *runState) finalize(log *zap.Logger, app *models.Application, job *models.Job, res jobResult, scored bool, outcome models.Outcome) {
	wctx, cancel := r.writeCtx()
	err := r.Applications.SaveOutcome(wctx, app.ID, r.runID, outcome)
	cancel()
	if err != nil {
		r.writeFailed(log, job, scored, outcome.Score, err)
		return
	}

	out := outcomeFor(job, outcome.Status, "")
	if outcome.Score != nil {
		out.FitScore = outcome.Score.Score
	}
	out.Error = outcome.ErrorMessage
	if res == resultCancelled {
		out.Note = outcome.ErrorMessage
		out.Error = ""
	}
	r.record(res, scored, out)
}

func (r *runState) writeFailed(log *zap.Logger, job *models.Job, scored bool, score *models.ScoreResult, err error) {
	if errors.Is(err, repositories.ErrClaimLost) {
		log.Info("claim lost before write")
		r.record(resultContended, scored, outcomeFor(job, "", "claim lost to another run"))
		return
	}
	log.Error("failed to persist outcome", zap.Error(err))
	out := outcomeFor(job, models.StatusFailed, "")
	if score != nil {
		out.FitScore = score.Score
	}
	out.Error = err.Error()
	r.record(resultFailed, scored, out)
}
