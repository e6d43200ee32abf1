// Package memory is an in-process implementation of repository.Store.
//
// It follows the DynamoDB implementation's semantics, including versioned
// compare-and-swap writes for list attributes and the no-op on decrements at
// zero. It backs local development without AWS and the service tests.
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"qalam-backend/internal/domain"
	"qalam-backend/internal/repository"
)

// Store holds every entity in maps guarded by one mutex.
type Store struct {
	mu    sync.RWMutex
	users map[string]*domain.User
	posts map[string]*domain.Post
	jobs  map[string]*domain.CascadeJob

	shouldFailOn map[string]error

	retry  repository.RetryConfig
	logger *zap.Logger
	clock  func() time.Time
}

var _ repository.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithRetryConfig overrides the retry policy of versioned updates.
func WithRetryConfig(cfg repository.RetryConfig) Option {
	return func(s *Store) { s.retry = cfg }
}

// WithLogger sets the logger used for skipped decrements.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithClock sets the time source.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) { s.clock = clock }
}

// New returns an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		users:        make(map[string]*domain.User),
		posts:        make(map[string]*domain.Post),
		jobs:         make(map[string]*domain.CascadeJob),
		shouldFailOn: make(map[string]error),
		retry:        repository.DefaultRetryConfig(),
		logger:       zap.NewNop(),
		clock:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetError makes the named method return err until cleared with a nil err.
func (s *Store) SetError(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.shouldFailOn, method)
		return
	}
	s.shouldFailOn[method] = err
}

// ClearErrors removes all configured errors.
func (s *Store) ClearErrors() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shouldFailOn = make(map[string]error)
}

func (s *Store) checkError(method string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.shouldFailOn[method]
}

func (s *Store) now() time.Time {
	return s.clock().UTC()
}

func cloneUser(u *domain.User) *domain.User {
	c := *u
	c.Friends = slices.Clone(u.Friends)
	if c.Friends == nil {
		c.Friends = []string{}
	}
	return &c
}

func clonePost(p *domain.Post) *domain.Post {
	c := *p
	c.LikedBy = slices.Clone(p.LikedBy)
	c.Comments = slices.Clone(p.Comments)
	c.Tags = slices.Clone(p.Tags)
	if c.LikedBy == nil {
		c.LikedBy = []string{}
	}
	if c.Comments == nil {
		c.Comments = []domain.Comment{}
	}
	if c.Tags == nil {
		c.Tags = []string{}
	}
	return &c
}

func cloneJob(j *domain.CascadeJob) *domain.CascadeJob {
	c := *j
	c.Steps = slices.Clone(j.Steps)
	return &c
}

func newestFirst(posts []*domain.Post) {
	sort.SliceStable(posts, func(i, j int) bool {
		if posts[i].CreatedAt.Equal(posts[j].CreatedAt) {
			return posts[i].ID > posts[j].ID
		}
		return posts[i].CreatedAt.After(posts[j].CreatedAt)
	})
}

// ctxErr lets cancelled requests fail the same way a network call would.
func ctxErr(ctx context.Context) error {
	return ctx.Err()
}
