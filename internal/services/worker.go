package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"alfredoptarigan/job-agent/internal/repositories"
)

// DefaultStaleRunAfter is how long a run may stay running before the poller
// assumes its worker died and queues it again.
const DefaultStaleRunAfter = time.Hour

// Worker executes queued agent runs in the background.
type Worker interface {
	Start(ctx context.Context)
	Stop()
	EnqueueRun(runID uuid.UUID)
}

type worker struct {
	runRepo      repositories.AgentRunRepository
	orchestrator Orchestrator
	runQueue     chan uuid.UUID
	concurrency  int
	pollInterval time.Duration
	staleAfter   time.Duration
	wg           sync.WaitGroup
	stopChan     chan struct{}
	stopOnce     sync.Once
	logger       *zap.Logger
}

func NewWorker(
	runRepo repositories.AgentRunRepository,
	orchestrator Orchestrator,
	concurrency int,
	pollInterval time.Duration,
	staleAfter time.Duration,
	logger *zap.Logger,
) Worker {
	if concurrency <= 0 {
		concurrency = 1
	}
	if pollInterval <= 0 {
		pollInterval = 10 * time.Second
	}
	if staleAfter <= 0 {
		staleAfter = DefaultStaleRunAfter
	}
	return &worker{
		runRepo:      runRepo,
		orchestrator: orchestrator,
		runQueue:     make(chan uuid.UUID, 100),
		concurrency:  concurrency,
		pollInterval: pollInterval,
		staleAfter:   staleAfter,
		stopChan:     make(chan struct{}),
		logger:       logger.Named("worker"),
	}
}

// Start implements Worker.
func (w *worker) Start(ctx context.Context) {
	w.logger.Info("starting worker", zap.Int("concurrency", w.concurrency))

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.processRuns(ctx, i+1)
	}

	w.wg.Add(1)
	go w.pollPendingRuns(ctx)
}

// Stop implements Worker. Runs already executing finish first.
func (w *worker) Stop() {
	w.stopOnce.Do(func() {
		w.logger.Info("stopping worker")
		close(w.stopChan)
	})
	w.wg.Wait()
	w.logger.Info("worker stopped")
}

// EnqueueRun implements Worker.
func (w *worker) EnqueueRun(runID uuid.UUID) {
	select {
	case w.runQueue <- runID:
		w.logger.Debug("run enqueued", zap.String("run_id", runID.String()))
	case <-w.stopChan:
		w.logger.Warn("worker stopped, cannot enqueue run", zap.String("run_id", runID.String()))
	}
}

func (w *worker) processRuns(ctx context.Context, workerID int) {
	defer w.wg.Done()
	log := w.logger.With(zap.Int("worker", workerID))

	for {
		select {
		case <-w.stopChan:
			return
		case <-ctx.Done():
			return
		case runID := <-w.runQueue:
			w.execute(ctx, log, runID)
		}
	}
}

func (w *worker) execute(ctx context.Context, log *zap.Logger, runID uuid.UUID) {
	log = log.With(zap.String("run_id", runID.String()))

	// The poller and the API may both enqueue the same run.
	started, err := w.runRepo.MarkRunning(ctx, runID)
	if err != nil {
		log.Error("failed to start run", zap.Error(err))
		return
	}
	if !started {
		return
	}

	run, err := w.runRepo.Get(ctx, runID)
	if err != nil {
		log.Error("failed to load run", zap.Error(err))
		return
	}

	summary, err := w.orchestrator.Run(ctx, run.UserID, RunOptions{AutoApply: run.AutoApply, RunID: run.ID})
	if err != nil {
		log.Warn("run ended with error", zap.Error(err))
		return
	}
	log.Info("run completed",
		zap.Int("processed", summary.JobsProcessed),
		zap.Int("applied", summary.JobsApplied),
		zap.Int("failed", summary.JobsFailed),
	)
}

func (w *worker) pollPendingRuns(ctx context.Context) {
	defer w.wg.Done()
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopChan:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.requeueStale(ctx)
			pending, err := w.runRepo.FindPendingRuns(ctx, 10)
			if err != nil {
				w.logger.Warn("failed to fetch pending runs", zap.Error(err))
				continue
			}
			if len(pending) > 0 {
				w.logger.Debug("found pending runs", zap.Int("count", len(pending)))
			}
			for _, run := range pending {
				w.EnqueueRun(run.ID)
			}
		}
	}
}

func (w *worker) requeueStale(ctx context.Context) {
	n, err := w.runRepo.RequeueStale(ctx, time.Now().Add(-w.staleAfter))
	if err != nil {
		w.logger.Warn("failed to requeue stale runs", zap.Error(err))
		return
	}
	if n > 0 {
		w.logger.Warn("requeued stale runs", zap.Int64("count", n))
	}
}
