package cascade

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"qalam-backend/internal/repository"
)

// Processor re-runs unfinished cascade jobs on an interval until they
// complete or fail permanently.
type Processor struct {
	jobs     repository.CascadeRepository
	runner   *Runner
	interval time.Duration
	logger   *zap.Logger

	stopChan    chan struct{}
	stoppedChan chan struct{}
	stopOnce    sync.Once
}

// NewProcessor creates a processor polling every interval.
func NewProcessor(jobs repository.CascadeRepository, runner *Runner, interval time.Duration, logger *zap.Logger) *Processor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Processor{
		jobs:        jobs,
		runner:      runner,
		interval:    interval,
		logger:      logger,
		stopChan:    make(chan struct{}),
		stoppedChan: make(chan struct{}),
	}
}

// Start begins polling in the background.
func (p *Processor) Start(ctx context.Context) {
	p.logger.Info("Starting cascade processor", zap.Duration("interval", p.interval))
	go p.loop(ctx)
}

// Stop ends polling and waits for the current batch to finish. It is safe
// to call more than once.
func (p *Processor) Stop() {
	p.stopOnce.Do(func() {
		p.logger.Info("Stopping cascade processor")
		close(p.stopChan)
	})
	<-p.stoppedChan
	p.logger.Info("Cascade processor stopped")
}

func (p *Processor) loop(ctx context.Context) {
	defer close(p.stoppedChan)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopChan:
			return
		case <-ticker.C:
			if _, err := p.ProcessPending(ctx); err != nil {
				p.logger.Error("Error processing cascade jobs", zap.Error(err))
			}
		}
	}
}

// ProcessPending runs every unfinished job once and returns how many
// completed.
func (p *Processor) ProcessPending(ctx context.Context) (int, error) {
	pending, err := p.jobs.ListPendingCascadeJobs(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing pending cascade jobs: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	completed := 0
	for _, job := range pending {
		if ctx.Err() != nil {
			return completed, ctx.Err()
		}
		if err := p.runner.Run(ctx, job); err != nil {
			p.logger.Warn("Cascade job run did not finish",
				zap.String("jobID", job.ID),
				zap.Int("attempts", job.Attempts),
				zap.Error(err))
			continue
		}
		completed++
	}

	p.logger.Debug("Processed cascade jobs",
		zap.Int("pending", len(pending)),
		zap.Int("completed", completed))
	return completed, nil
}
