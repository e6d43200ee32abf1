package cascade

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"qalam-backend/internal/domain"
	"qalam-backend/internal/repository/memory"
)

type runRecorder struct {
	mu   sync.Mutex
	runs []string
}

func (r *runRecorder) ObserveCascadeRun(kind, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, kind+":"+status)
}

func (r *runRecorder) statuses() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.runs...)
}

func testConfig() Config {
	return Config{StepRetries: 2, StepRetryDelay: time.Millisecond, MaxJobAttempts: 3}
}

// world seeds a victim with posts, a like on someone else's post and two
// followers.
type world struct {
	store   *memory.Store
	victim  *domain.User
	friend  *domain.User
	other   *domain.User
	ownPost *domain.Post
	liked   *domain.Post
}

func seed(t *testing.T) *world {
	t.Helper()
	ctx := context.Background()
	w := &world{store: memory.New()}

	w.victim = &domain.User{Username: "victim"}
	w.friend = &domain.User{Username: "friend"}
	w.other = &domain.User{Username: "other"}
	for _, u := range []*domain.User{w.victim, w.friend, w.other} {
		require.NoError(t, w.store.CreateUser(ctx, u))
	}

	w.ownPost = &domain.Post{AuthorID: w.victim.ID, Title: "mine"}
	require.NoError(t, w.store.CreatePost(ctx, w.ownPost))
	require.NoError(t, w.store.CreatePost(ctx, &domain.Post{AuthorID: w.victim.ID, Title: "also mine"}))
	w.liked = &domain.Post{AuthorID: w.other.ID, Title: "theirs"}
	require.NoError(t, w.store.CreatePost(ctx, w.liked))

	_, err := w.store.LikePost(ctx, w.liked.ID, w.victim.ID)
	require.NoError(t, err)
	_, err = w.store.LikePost(ctx, w.liked.ID, w.friend.ID)
	require.NoError(t, err)
	_, err = w.store.AddFriend(ctx, w.friend.ID, w.victim.ID)
	require.NoError(t, err)
	_, err = w.store.AddFriend(ctx, w.other.ID, w.victim.ID)
	require.NoError(t, err)
	_, err = w.store.AddFriend(ctx, w.other.ID, w.friend.ID)
	require.NoError(t, err)
	return w
}

func (w *world) assertCleaned(t *testing.T) {
	t.Helper()
	ctx := context.Background()

	u, err := w.store.GetUserByID(ctx, w.victim.ID)
	require.NoError(t, err)
	assert.Nil(t, u)

	posts, err := w.store.ListPostsByAuthor(ctx, w.victim.ID)
	require.NoError(t, err)
	assert.Empty(t, posts)

	liked, err := w.store.GetPost(ctx, w.liked.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{w.friend.ID}, liked.LikedBy)
	assert.Equal(t, 1, liked.LikesCount)

	friend, err := w.store.GetUserByID(ctx, w.friend.ID)
	require.NoError(t, err)
	assert.Empty(t, friend.Friends)
	assert.Equal(t, 0, friend.FriendsCount)

	other, err := w.store.GetUserByID(ctx, w.other.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{w.friend.ID}, other.Friends)
	assert.Equal(t, 1, other.FriendsCount)
}

func TestDeleteUser_CompletesInOneRun(t *testing.T) {
	ctx := context.Background()
	w := seed(t)
	obs := &runRecorder{}
	runner := NewRunner(w.store, testConfig(), zap.NewNop(), WithObserver(obs))

	job, err := runner.DeleteUser(ctx, w.victim.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CascadeCompleted, job.Status)
	for _, step := range job.Steps {
		assert.Equal(t, domain.CascadeCompleted, step.Status, step.Name)
		assert.NotNil(t, step.CompletedAt)
	}
	w.assertCleaned(t)

	stored, err := w.store.GetCascadeJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CascadeCompleted, stored.Status)
	assert.Equal(t, []string{"DELETE_USER:completed"}, obs.statuses())

	pending, err := w.store.ListPendingCascadeJobs(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestDeleteUser_PartialFailureIsFinishedByProcessor(t *testing.T) {
	ctx := context.Background()
	w := seed(t)
	obs := &runRecorder{}
	runner := NewRunner(w.store, testConfig(), zap.NewNop(), WithObserver(obs))
	w.store.SetError("ListAllPosts", errors.New("throttled"))

	job, err := runner.DeleteUser(ctx, w.victim.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CascadePending, job.Status)
	assert.Equal(t, 1, job.Attempts)
	assert.Equal(t, domain.CascadeCompleted, job.Step(StepDeletePosts).Status)
	likes := job.Step(StepRemoveLikes)
	assert.Equal(t, domain.CascadeFailed, likes.Status)
	assert.Equal(t, 2, likes.Attempts)
	assert.Contains(t, likes.LastError, "throttled")
	assert.Equal(t, domain.CascadePending, job.Step(StepDeleteUser).Status)

	// Posts are gone but the user still exists.
	posts, err := w.store.ListPostsByAuthor(ctx, w.victim.ID)
	require.NoError(t, err)
	assert.Empty(t, posts)
	u, err := w.store.GetUserByID(ctx, w.victim.ID)
	require.NoError(t, err)
	assert.NotNil(t, u)

	w.store.SetError("ListAllPosts", nil)
	processor := NewProcessor(w.store, runner, time.Hour, zap.NewNop())
	completed, err := processor.ProcessPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, completed)
	w.assertCleaned(t)

	stored, err := w.store.GetCascadeJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CascadeCompleted, stored.Status)
	assert.Empty(t, stored.Step(StepRemoveLikes).LastError)
	assert.Equal(t, []string{"DELETE_USER:retry", "DELETE_USER:completed"}, obs.statuses())
}

func TestRun_FailsAfterMaxJobAttempts(t *testing.T) {
	ctx := context.Background()
	w := seed(t)
	obs := &runRecorder{}
	runner := NewRunner(w.store, testConfig(), zap.NewNop(), WithObserver(obs))
	w.store.SetError("ListUsers", errors.New("gone"))

	job, err := runner.DeleteUser(ctx, w.victim.ID)
	require.NoError(t, err)
	require.Equal(t, domain.CascadePending, job.Status)

	processor := NewProcessor(w.store, runner, time.Hour, zap.NewNop())
	for i := 0; i < 3; i++ {
		_, err := processor.ProcessPending(ctx)
		require.NoError(t, err)
	}

	stored, err := w.store.GetCascadeJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CascadeFailed, stored.Status)
	assert.Equal(t, 3, stored.Attempts)
	assert.Equal(t, []string{"DELETE_USER:retry", "DELETE_USER:retry", "DELETE_USER:failed"}, obs.statuses())

	pending, err := w.store.ListPendingCascadeJobs(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending, "failed jobs are not retried")
}

func TestRun_ToleratesAlreadyDeletedUser(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	runner := NewRunner(store, testConfig(), zap.NewNop())

	job, err := runner.DeleteUser(ctx, "never-existed")
	require.NoError(t, err)
	assert.Equal(t, domain.CascadeCompleted, job.Status)
}

func TestRun_SkipsDoneJobs(t *testing.T) {
	runner := NewRunner(memory.New(), testConfig(), zap.NewNop())
	job := NewDeleteUserJob("u")
	job.Status = domain.CascadeCompleted
	assert.NoError(t, runner.Run(context.Background(), job))
}

func TestNewDeleteUserJob(t *testing.T) {
	job := NewDeleteUserJob("u1")
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, domain.CascadeDeleteUser, job.Kind)
	assert.Equal(t, "u1", job.SubjectID)
	names := make([]string, 0, len(job.Steps))
	for _, s := range job.Steps {
		names = append(names, s.Name)
		assert.Equal(t, domain.CascadePending, s.Status)
	}
	assert.Equal(t, []string{StepDeletePosts, StepRemoveLikes, StepRemoveFriendships, StepDeleteUser}, names)
}

func TestProcessor_StartStop(t *testing.T) {
	ctx := context.Background()
	w := seed(t)
	runner := NewRunner(w.store, testConfig(), zap.NewNop())
	w.store.SetError("ListAllPosts", errors.New("throttled"))
	job, err := runner.DeleteUser(ctx, w.victim.ID)
	require.NoError(t, err)
	require.Equal(t, domain.CascadePending, job.Status)
	w.store.SetError("ListAllPosts", nil)

	processor := NewProcessor(w.store, runner, 5*time.Millisecond, zap.NewNop())
	processor.Start(ctx)
	assert.Eventually(t, func() bool {
		stored, err := w.store.GetCascadeJob(ctx, job.ID)
		return err == nil && stored.Status == domain.CascadeCompleted
	}, time.Second, 5*time.Millisecond)
	processor.Stop()

	w.assertCleaned(t)
}

func TestProcessor_StopTwice(t *testing.T) {
	w := seed(t)
	processor := NewProcessor(w.store, NewRunner(w.store, testConfig(), zap.NewNop()), time.Hour, zap.NewNop())
	processor.Start(context.Background())

	processor.Stop()
	assert.NotPanics(t, processor.Stop)
}
