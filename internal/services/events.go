package services

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"alfredoptarigan/job-agent/internal/models"
)

const EventAgentRunCompleted = "EVENT_AGENT_RUN_COMPLETED"

// EventPublisher announces finished runs to other services. Failures are
// never surfaced to the run.
type EventPublisher interface {
	RunCompleted(ctx context.Context, summary *models.RunSummary)
}

type redisEventPublisher struct {
	rdb    *redis.Client
	logger *zap.Logger
}

func NewRedisEventPublisher(rdb *redis.Client, logger *zap.Logger) EventPublisher {
	return &redisEventPublisher{rdb: rdb, logger: logger}
}

func (p *redisEventPublisher) RunCompleted(ctx context.Context, summary *models.RunSummary) {
	event, err := json.Marshal(map[string]interface{}{
		"type":       EventAgentRunCompleted,
		"runId":      summary.RunID,
		"userId":     summary.UserID,
		"autoApply":  summary.AutoApply,
		"discovered": summary.JobsDiscovered,
		"analyzed":   summary.JobsAnalyzed,
		"applied":    summary.JobsApplied,
		"failed":     summary.JobsFailed,
		"degraded":   summary.Degraded,
		"cancelled":  summary.Cancelled,
		"finishedAt": summary.FinishedAt,
	})
	if err != nil {
		return
	}
	if err := p.rdb.Publish(ctx, EventAgentRunCompleted, event).Err(); err != nil {
		p.logger.Warn("publish run event failed", zap.String("run_id", summary.RunID), zap.Error(err))
	}
}

type nopEventPublisher struct{}

func (nopEventPublisher) RunCompleted(context.Context, *models.RunSummary) {}
