package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"alfredoptarigan/job-agent/internal/models"
)

type AgentRunRepository interface {
	Create(ctx context.Context, run *models.AgentRun) error
	FindByID(ctx context.Context, userID string, id uuid.UUID) (*models.AgentRun, error)
	Get(ctx context.Context, id uuid.UUID) (*models.AgentRun, error)
	MarkRunning(ctx context.Context, id uuid.UUID) (bool, error)
	SaveSummary(ctx context.Context, id uuid.UUID, summary *models.RunSummary) error
	UpdateError(ctx context.Context, id uuid.UUID, errorMsg string) error
	FindPendingRuns(ctx context.Context, limit int) ([]models.AgentRun, error)
	RequeueStale(ctx context.Context, startedBefore time.Time) (int64, error)
}

type agentRunRepository struct {
	db *gorm.DB
}

func NewAgentRunRepository(db *gorm.DB) AgentRunRepository {
	return &agentRunRepository{db: db}
}

func (r *agentRunRepository) Create(ctx context.Context, run *models.AgentRun) error {
	if err := r.db.WithContext(ctx).Create(run).Error; err != nil {
		return fmt.Errorf("failed to create agent run: %w", err)
	}
	return nil
}

func (r *agentRunRepository) FindByID(ctx context.Context, userID string, id uuid.UUID) (*models.AgentRun, error) {
	var run models.AgentRun
	if err := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&run).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("failed to find agent run: %w", err)
	}
	return &run, nil
}

func (r *agentRunRepository) Get(ctx context.Context, id uuid.UUID) (*models.AgentRun, error) {
	var run models.AgentRun
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&run).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("failed to find agent run: %w", err)
	}
	return &run, nil
}

// MarkRunning moves a queued run to running. It returns false when the run
// was already picked up, so a run enqueued twice executes once.
func (r *agentRunRepository) MarkRunning(ctx context.Context, id uuid.UUID) (bool, error) {
	now := time.Now().UTC()
	result := r.db.WithContext(ctx).Model(&models.AgentRun{}).
		Where("id = ? AND status = ?", id, models.RunQueued).
		Updates(map[string]interface{}{
			"status":     models.RunRunning,
			"started_at": now,
			"updated_at": now,
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to mark run running: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (r *agentRunRepository) SaveSummary(ctx context.Context, id uuid.UUID, summary *models.RunSummary) error {
	c := summary.RunCounts
	result := r.db.WithContext(ctx).Model(&models.AgentRun{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":               models.RunCompleted,
			"jobs_discovered":      c.JobsDiscovered,
			"jobs_processed":       c.JobsProcessed,
			"jobs_scored":          c.JobsScored,
			"jobs_analyzed":        c.JobsAnalyzed,
			"jobs_applied":         c.JobsApplied,
			"jobs_skipped":         c.JobsSkipped,
			"jobs_failed":          c.JobsFailed,
			"jobs_already_applied": c.JobsAlreadyApplied,
			"jobs_contended":       c.JobsContended,
			"jobs_cancelled":       c.JobsCancelled,
			"degraded":             summary.Degraded,
			"degraded_sources":     jsonText(summary.DegradedSources),
			"started_at":           summary.StartedAt.UTC(),
			"finished_at":          summary.FinishedAt.UTC(),
			"updated_at":           time.Now().UTC(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to save run summary: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrRunNotFound
	}
	return nil
}

func (r *agentRunRepository) UpdateError(ctx context.Context, id uuid.UUID, errorMsg string) error {
	now := time.Now().UTC()
	result := r.db.WithContext(ctx).Model(&models.AgentRun{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        models.RunFailed,
			"error_message": errorMsg,
			"finished_at":   now,
			"updated_at":    now,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update run error: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrRunNotFound
	}
	return nil
}

func (r *agentRunRepository) FindPendingRuns(ctx context.Context, limit int) ([]models.AgentRun, error) {
	var runs []models.AgentRun
	err := r.db.WithContext(ctx).
		Where("status = ?", models.RunQueued).
		Order("created_at ASC").
		Limit(limit).
		Find(&runs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find pending runs: %w", err)
	}
	return runs, nil
}

// RequeueStale puts runs that have been running since before startedBefore
// back in the queue. Their executor is assumed dead.
func (r *agentRunRepository) RequeueStale(ctx context.Context, startedBefore time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&models.AgentRun{}).
		Where("status = ? AND started_at < ?", models.RunRunning, startedBefore.UTC()).
		Updates(map[string]interface{}{
			"status":     models.RunQueued,
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to requeue stale runs: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// jsonText encodes v the way the json serializer stores it, for map based
// updates that bypass field serializers.
func jsonText(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}
