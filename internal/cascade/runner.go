// Package cascade removes a deleted user's data through persisted,
// resumable jobs. Each job is a list of idempotent steps whose outcomes are
// saved after every step, so a failed run can be picked up again by the
// Processor until the store is consistent.
package cascade

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"qalam-backend/internal/domain"
	"qalam-backend/internal/repository"
)

// Steps of a DELETE_USER job, in execution order.
const (
	StepDeletePosts       = "delete-posts"
	StepRemoveLikes       = "remove-likes"
	StepRemoveFriendships = "remove-friendships"
	StepDeleteUser        = "delete-user"
)

var deleteUserSteps = []string{StepDeletePosts, StepRemoveLikes, StepRemoveFriendships, StepDeleteUser}

// Config tunes retries inside a run and across runs.
type Config struct {
	StepRetries    int           // attempts per step within one run
	StepRetryDelay time.Duration // pause between those attempts
	MaxJobAttempts int           // failed runs before the job is marked FAILED
}

// DefaultConfig returns the retry policy used in production.
func DefaultConfig() Config {
	return Config{
		StepRetries:    3,
		StepRetryDelay: 200 * time.Millisecond,
		MaxJobAttempts: 10,
	}
}

// RunObserver records the outcome of each job run.
type RunObserver interface {
	ObserveCascadeRun(kind, status string)
}

// Runner executes cascade jobs against the store.
type Runner struct {
	store    repository.Store
	config   Config
	observer RunObserver
	logger   *zap.Logger
	clock    func() time.Time
}

// Option configures a Runner.
type Option func(*Runner)

// WithObserver reports every run to o.
func WithObserver(o RunObserver) Option {
	return func(r *Runner) { r.observer = o }
}

// WithClock sets the time source for step timestamps.
func WithClock(clock func() time.Time) Option {
	return func(r *Runner) { r.clock = clock }
}

// NewRunner creates a runner.
func NewRunner(store repository.Store, config Config, logger *zap.Logger, opts ...Option) *Runner {
	if config.StepRetries < 1 {
		config.StepRetries = 1
	}
	if config.MaxJobAttempts < 1 {
		config.MaxJobAttempts = 1
	}
	r := &Runner{
		store:  store,
		config: config,
		logger: logger,
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewDeleteUserJob returns an unsaved job that removes userID and
// everything that references it.
func NewDeleteUserJob(userID string) *domain.CascadeJob {
	steps := make([]domain.CascadeStep, len(deleteUserSteps))
	for i, name := range deleteUserSteps {
		steps[i] = domain.CascadeStep{Name: name, Status: domain.CascadePending}
	}
	return &domain.CascadeJob{
		ID:        uuid.NewString(),
		Kind:      domain.CascadeDeleteUser,
		SubjectID: userID,
		Status:    domain.CascadePending,
		Steps:     steps,
	}
}

// DeleteUser persists a deletion job for userID and runs it once. A job
// that did not finish is returned PENDING with a nil error; the Processor
// completes it later.
func (r *Runner) DeleteUser(ctx context.Context, userID string) (*domain.CascadeJob, error) {
	job := NewDeleteUserJob(userID)
	if err := r.store.SaveCascadeJob(ctx, job); err != nil {
		return nil, fmt.Errorf("saving cascade job: %w", err)
	}

	if err := r.Run(ctx, job); err != nil {
		r.logger.Warn("Cascade job left for background processing",
			zap.String("jobID", job.ID),
			zap.String("userID", userID),
			zap.Error(err))
	}
	return job, nil
}

// Run executes the job's unfinished steps in order and saves the job after
// each one. It stops at the first step that still fails after its retries.
func (r *Runner) Run(ctx context.Context, job *domain.CascadeJob) error {
	if job.Done() {
		return nil
	}
	if job.Kind != domain.CascadeDeleteUser {
		return r.fail(ctx, job, fmt.Errorf("unknown cascade kind %q", job.Kind))
	}

	job.Status = domain.CascadeRunning
	if err := r.store.SaveCascadeJob(ctx, job); err != nil {
		return fmt.Errorf("claiming cascade job %s: %w", job.ID, err)
	}

	for i := range job.Steps {
		step := &job.Steps[i]
		if step.Status == domain.CascadeCompleted {
			continue
		}

		err := r.runStep(ctx, job.SubjectID, step)
		if err != nil {
			step.Status = domain.CascadeFailed
			step.LastError = err.Error()
			return r.fail(ctx, job, fmt.Errorf("step %s: %w", step.Name, err))
		}

		now := r.clock().UTC()
		step.Status = domain.CascadeCompleted
		step.LastError = ""
		step.CompletedAt = &now
		if err := r.store.SaveCascadeJob(ctx, job); err != nil {
			return fmt.Errorf("saving cascade job %s after %s: %w", job.ID, step.Name, err)
		}
	}

	job.Status = domain.CascadeCompleted
	if err := r.store.SaveCascadeJob(ctx, job); err != nil {
		return fmt.Errorf("completing cascade job %s: %w", job.ID, err)
	}
	r.observe(job, "completed")
	r.logger.Info("Cascade job completed",
		zap.String("jobID", job.ID),
		zap.String("kind", string(job.Kind)),
		zap.String("subjectID", job.SubjectID))
	return nil
}

// fail records a failed run. The job goes back to PENDING, or to FAILED
// once it has used up its attempts.
func (r *Runner) fail(ctx context.Context, job *domain.CascadeJob, cause error) error {
	job.Attempts++
	job.Status = domain.CascadePending
	status := "retry"
	if job.Attempts >= r.config.MaxJobAttempts {
		job.Status = domain.CascadeFailed
		status = "failed"
		r.logger.Error("Cascade job failed permanently",
			zap.String("jobID", job.ID),
			zap.String("subjectID", job.SubjectID),
			zap.Int("attempts", job.Attempts),
			zap.Error(cause))
	}
	r.observe(job, status)

	if err := r.store.SaveCascadeJob(ctx, job); err != nil {
		r.logger.Error("Failed to record cascade failure",
			zap.String("jobID", job.ID),
			zap.Error(err))
	}
	return cause
}

func (r *Runner) runStep(ctx context.Context, subjectID string, step *domain.CascadeStep) error {
	fn, err := r.stepFunc(step.Name)
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 1; attempt <= r.config.StepRetries; attempt++ {
		step.Attempts++
		if lastErr = fn(ctx, subjectID); lastErr == nil {
			return nil
		}
		r.logger.Warn("Cascade step failed",
			zap.String("step", step.Name),
			zap.String("subjectID", subjectID),
			zap.Int("attempt", attempt),
			zap.Error(lastErr))

		if attempt == r.config.StepRetries {
			break
		}
		timer := time.NewTimer(r.config.StepRetryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}

func (r *Runner) stepFunc(name string) (func(context.Context, string) error, error) {
	switch name {
	case StepDeletePosts:
		return r.deletePosts, nil
	case StepRemoveLikes:
		return r.removeLikes, nil
	case StepRemoveFriendships:
		return r.removeFriendships, nil
	case StepDeleteUser:
		return r.deleteUser, nil
	}
	return nil, fmt.Errorf("unknown cascade step %q", name)
}

func (r *Runner) deletePosts(ctx context.Context, userID string) error {
	posts, err := r.store.ListPostsByAuthor(ctx, userID)
	if err != nil {
		return err
	}
	for _, p := range posts {
		if err := r.store.DeletePost(ctx, p.ID); err != nil && !repository.IsNotFound(err) {
			return err
		}
	}
	r.logger.Debug("Deleted posts of user", zap.String("userID", userID), zap.Int("count", len(posts)))
	return nil
}

func (r *Runner) removeLikes(ctx context.Context, userID string) error {
	posts, err := r.store.ListAllPosts(ctx)
	if err != nil {
		return err
	}
	for _, p := range posts {
		if !p.IsLikedBy(userID) {
			continue
		}
		if _, err := r.store.UnlikePost(ctx, p.ID, userID); err != nil && !repository.IsNotFound(err) {
			return err
		}
	}
	return nil
}

func (r *Runner) removeFriendships(ctx context.Context, userID string) error {
	users, err := r.store.ListUsers(ctx)
	if err != nil {
		return err
	}
	for _, u := range users {
		if u.ID == userID || !u.HasFriend(userID) {
			continue
		}
		if _, err := r.store.RemoveFriend(ctx, u.ID, userID); err != nil && !repository.IsNotFound(err) {
			return err
		}
	}
	return nil
}

func (r *Runner) deleteUser(ctx context.Context, userID string) error {
	if err := r.store.DeleteUser(ctx, userID); err != nil && !repository.IsNotFound(err) {
		return err
	}
	return nil
}

func (r *Runner) observe(job *domain.CascadeJob, status string) {
	if r.observer != nil {
		r.observer.ObserveCascadeRun(string(job.Kind), status)
	}
}
