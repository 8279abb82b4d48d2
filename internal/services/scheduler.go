package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"alfredoptarigan/job-agent/internal/models"
	"alfredoptarigan/job-agent/internal/repositories"
)

// Scheduler queues a run for every eligible user on a cron spec such as
// "@every 6h" or "0 8 * * *".
type Scheduler struct {
	cron         *cron.Cron
	spec         string
	autoApply    bool
	profiles     repositories.ProfileRepository
	orchestrator Orchestrator
	worker       Worker
	logger       *zap.Logger
}

func NewScheduler(
	spec string,
	autoApply bool,
	profiles repositories.ProfileRepository,
	orchestrator Orchestrator,
	worker Worker,
	logger *zap.Logger,
) *Scheduler {
	logger = logger.Named("scheduler")
	return &Scheduler{
		cron:         cron.New(cron.WithLogger(cronLogger{logger.Sugar()})),
		spec:         spec,
		autoApply:    autoApply,
		profiles:     profiles,
		orchestrator: orchestrator,
		worker:       worker,
		logger:       logger,
	}
}

// Start registers the tick and starts the cron loop.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.spec, func() {
		s.Tick(ctx)
	})
	if err != nil {
		return fmt.Errorf("cron.AddFunc: %w", err)
	}
	s.cron.Start()
	s.logger.Info("scheduler started", zap.String("spec", s.spec), zap.Bool("auto_apply", s.autoApply))
	return nil
}

// Stop waits for a tick in progress.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// Tick queues one run per user whose profile and preferences allow it and
// returns how many were queued.
func (s *Scheduler) Tick(ctx context.Context) int {
	userIDs, err := s.profiles.ListUserIDs(ctx)
	if err != nil {
		s.logger.Error("failed to list users", zap.Error(err))
		return 0
	}

	queued := 0
	for _, userID := range userIDs {
		run, err := s.orchestrator.QueueRun(ctx, userID, s.autoApply)
		if err != nil {
			if isPrecondition(err) {
				s.logger.Debug("user not eligible for scheduled run", zap.String("user_id", userID), zap.Error(err))
			} else {
				s.logger.Warn("failed to queue scheduled run", zap.String("user_id", userID), zap.Error(err))
			}
			continue
		}
		s.worker.EnqueueRun(run.ID)
		queued++
	}

	s.logger.Info("scheduled runs queued", zap.Int("users", len(userIDs)), zap.Int("queued", queued))
	return queued
}

func isPrecondition(err error) bool {
	return errors.Is(err, ErrProfileMissing) ||
		errors.Is(err, ErrPreferencesMissing) ||
		errors.Is(err, ErrSubmitterUnavailable) ||
		errors.Is(err, models.ErrInvalidPreferences)
}

// cronLogger routes cron's own logging through zap.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
