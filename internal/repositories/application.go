package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"alfredoptarigan/job-agent/internal/models"
)

// ErrClaimLost is returned when a guarded write finds the row no longer
// belongs to the calling run (applied meanwhile or re-claimed elsewhere).
var ErrClaimLost = errors.New("application claim lost")

// ApplicationRepository is both the deduplication ledger and the record
// store: one row per (user, job identity), never deleted here.
type ApplicationRepository interface {
	Seen(ctx context.Context, userID, jobKey string) (*models.Application, error)
	Claim(ctx context.Context, app *models.Application, lease time.Duration) (*models.Application, bool, error)
	SaveAnalysis(ctx context.Context, id uuid.UUID, runID string, score *models.ScoreResult) error
	SaveOutcome(ctx context.Context, id uuid.UUID, runID string, outcome models.Outcome) error
	MarkApplied(ctx context.Context, id uuid.UUID, runID string, score *models.ScoreResult, appliedAt time.Time) error
	FindByID(ctx context.Context, userID string, id uuid.UUID) (*models.Application, error)
	ListByUser(ctx context.Context, userID string, status models.ApplicationStatus) ([]models.Application, error)
}

type applicationRepository struct {
	db *gorm.DB
}

func NewApplicationRepository(db *gorm.DB) ApplicationRepository {
	return &applicationRepository{db: db}
}

// Seen implements ApplicationRepository. A nil application means the
// identity has never been processed for this user.
func (r *applicationRepository) Seen(ctx context.Context, userID, jobKey string) (*models.Application, error) {
	var app models.Application
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND job_key = ?", userID, jobKey).
		First(&app).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to look up application: %w", err)
	}
	return &app, nil
}

// Claim implements ApplicationRepository. It inserts the Discovered row or
// takes over an existing one in a single conditional upsert: the update
// only applies when the row is not Applied and no other run holds a live
// lease on it. The returned bool is false when the claim was refused.
func (r *applicationRepository) Claim(ctx context.Context, app *models.Application, lease time.Duration) (*models.Application, bool, error) {
	now := time.Now().UTC()
	if app.ID == uuid.Nil {
		app.ID = uuid.New()
	}
	if app.Status == "" {
		app.Status = models.StatusDiscovered
	}
	app.LeaseUntil = now.Add(lease).Unix()
	app.Attempts = 1
	app.CreatedAt = now
	app.UpdatedAt = now

	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "job_key"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"job_title":     app.JobTitle,
			"company":       app.Company,
			"job_url":       app.JobURL,
			"location":      app.Location,
			"source":        app.Source,
			"run_id":        app.RunID,
			"lease_until":   app.LeaseUntil,
			"error_message": "",
			"attempts":      gorm.Expr("applications.attempts + 1"),
			"updated_at":    now,
		}),
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Expr{
				SQL:  "applications.status <> ? AND (applications.lease_until < ? OR applications.run_id = ?)",
				Vars: []interface{}{models.StatusApplied, now.Unix(), app.RunID},
			},
		}},
	}).Create(app)
	if result.Error != nil {
		return nil, false, fmt.Errorf("failed to claim application: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, false, nil
	}

	claimed, err := r.Seen(ctx, app.UserID, app.JobKey)
	if err != nil {
		return nil, false, err
	}
	if claimed == nil || claimed.RunID != app.RunID {
		return nil, false, nil
	}
	return claimed, true, nil
}

// SaveAnalysis implements ApplicationRepository. The lease is kept so the
// run can still submit.
func (r *applicationRepository) SaveAnalysis(ctx context.Context, id uuid.UUID, runID string, score *models.ScoreResult) error {
	return r.guardedUpdate(ctx, id, runID, map[string]interface{}{
		"status":        models.StatusAnalyzed,
		"fit_score":     models.ClampScore(score.Score),
		"explanation":   score.Explanation,
		"cover_letter":  score.CoverLetter,
		"error_message": "",
		"updated_at":    time.Now().UTC(),
	})
}

// SaveOutcome implements ApplicationRepository and releases the lease.
func (r *applicationRepository) SaveOutcome(ctx context.Context, id uuid.UUID, runID string, outcome models.Outcome) error {
	updates := map[string]interface{}{
		"status":        outcome.Status,
		"error_message": outcome.ErrorMessage,
		"lease_until":   0,
		"updated_at":    time.Now().UTC(),
	}
	if outcome.Score != nil {
		updates["fit_score"] = models.ClampScore(outcome.Score.Score)
		updates["explanation"] = outcome.Score.Explanation
		updates["cover_letter"] = outcome.Score.CoverLetter
	}
	if outcome.AppliedAt != nil {
		updates["applied_at"] = outcome.AppliedAt.UTC()
	}
	return r.guardedUpdate(ctx, id, runID, updates)
}

// MarkApplied implements ApplicationRepository. It records a submission that
// already happened, whatever run currently holds the row.
func (r *applicationRepository) MarkApplied(ctx context.Context, id uuid.UUID, runID string, score *models.ScoreResult, appliedAt time.Time) error {
	updates := map[string]interface{}{
		"status":        models.StatusApplied,
		"run_id":        runID,
		"error_message": "",
		"lease_until":   0,
		"applied_at":    appliedAt.UTC(),
		"updated_at":    time.Now().UTC(),
	}
	if score != nil {
		updates["fit_score"] = models.ClampScore(score.Score)
		updates["explanation"] = score.Explanation
		updates["cover_letter"] = score.CoverLetter
	}
	result := r.db.WithContext(ctx).Model(&models.Application{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to mark application applied: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrApplicationNotFound
	}
	return nil
}

func (r *applicationRepository) guardedUpdate(ctx context.Context, id uuid.UUID, runID string, updates map[string]interface{}) error {
	result := r.db.WithContext(ctx).Model(&models.Application{}).
		Where("id = ? AND run_id = ? AND status <> ?", id, runID, models.StatusApplied).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update application: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrClaimLost
	}
	return nil
}

// FindByID implements ApplicationRepository.
func (r *applicationRepository) FindByID(ctx context.Context, userID string, id uuid.UUID) (*models.Application, error) {
	var app models.Application
	if err := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&app).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrApplicationNotFound
		}
		return nil, fmt.Errorf("failed to find application: %w", err)
	}
	return &app, nil
}

// ListByUser implements ApplicationRepository. An empty status lists all.
func (r *applicationRepository) ListByUser(ctx context.Context, userID string, status models.ApplicationStatus) ([]models.Application, error) {
	query := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if status != "" {
		query = query.Where("status = ?", status)
	}

	apps := make([]models.Application, 0)
	if err := query.Order("updated_at DESC").Order("created_at DESC").Find(&apps).Error; err != nil {
		return nil, fmt.Errorf("failed to list applications: %w", err)
	}
	return apps, nil
}
