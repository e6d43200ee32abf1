// Package repository defines the data-access contracts of the platform.
//
// Read methods return (nil, nil) when an item does not exist. Mutations of
// list attributes (likes, comments, friends) are version-guarded and retried
// on conflict, so a post's likesCount always equals len(likedBy). User
// counters maintained as side effects of other writes (postCount, likesCount,
// commentsCount) are atomic increments and may drift from the collections
// they summarize.
package repository

import (
	"context"

	"qalam-backend/internal/domain"
)

// LikeResult is the state of a post's likes after a like or unlike.
type LikeResult struct {
	Liked      bool `json:"liked"`
	LikesCount int  `json:"likesCount"`
	Changed    bool `json:"-"`
}

// UserRepository stores user accounts.
type UserRepository interface {
	// CreateUser assigns an ID and writes u. It fails with ErrConflict if
	// the key already exists.
	CreateUser(ctx context.Context, u *domain.User) error
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
	GetUserByUsername(ctx context.Context, username string) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	// GetUserByProviderID finds the user linked to an OAuth account.
	GetUserByProviderID(ctx context.Context, provider, providerID string) (*domain.User, error)
	ListUsers(ctx context.Context) ([]*domain.User, error)
	UpdateUserAvatar(ctx context.Context, id, avatarURL string) error
	LinkGitHubID(ctx context.Context, id, githubID string) error
	LinkGoogleID(ctx context.Context, id, googleID string) error

	IncrementUserCounter(ctx context.Context, id string, c domain.Counter, delta int) error
	// DecrementUserCounter never takes a counter below zero. A decrement
	// that would is skipped and logged, not returned as an error.
	DecrementUserCounter(ctx context.Context, id string, c domain.Counter, delta int) error

	// AddFriend reports whether friendID was added to userID's list.
	AddFriend(ctx context.Context, userID, friendID string) (bool, error)
	// RemoveFriend reports whether friendID was present and removed.
	RemoveFriend(ctx context.Context, userID, friendID string) (bool, error)

	DeleteUser(ctx context.Context, id string) error
}

// PostRepository stores posts and their embedded comments.
type PostRepository interface {
	CreatePost(ctx context.Context, p *domain.Post) error
	GetPost(ctx context.Context, id string) (*domain.Post, error)
	// ListPostsByAuthor returns the author's posts, newest first.
	ListPostsByAuthor(ctx context.Context, authorID string) ([]*domain.Post, error)
	// ListAllPosts returns every post, newest first.
	ListAllPosts(ctx context.Context) ([]*domain.Post, error)
	DeletePost(ctx context.Context, id string) error

	LikePost(ctx context.Context, postID, userID string) (LikeResult, error)
	UnlikePost(ctx context.Context, postID, userID string) (LikeResult, error)

	// AddComment assigns an ID to c, appends it and returns the updated post.
	AddComment(ctx context.Context, postID string, c *domain.Comment) (*domain.Post, error)
	// DeleteComment removes a comment written by callerID and returns the
	// post's new comment count.
	DeleteComment(ctx context.Context, postID, commentID, callerID string) (int, error)
}

// CascadeRepository persists cascade jobs.
type CascadeRepository interface {
	// SaveCascadeJob creates the job when its Version is zero and otherwise
	// updates it conditionally on Version, bumping it on success.
	SaveCascadeJob(ctx context.Context, job *domain.CascadeJob) error
	GetCascadeJob(ctx context.Context, id string) (*domain.CascadeJob, error)
	// ListPendingCascadeJobs returns jobs that are neither completed nor failed.
	ListPendingCascadeJobs(ctx context.Context) ([]*domain.CascadeJob, error)
}

// Store is the full data-access surface.
type Store interface {
	UserRepository
	PostRepository
	CascadeRepository
}

// OAuth providers accepted by GetUserByProviderID.
const (
	ProviderGitHub = "github"
	ProviderGoogle = "google"
)
