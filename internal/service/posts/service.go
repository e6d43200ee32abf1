// Package posts implements publishing, the feed, likes and comments.
package posts

import (
	"context"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"qalam-backend/internal/domain"
	"qalam-backend/internal/events"
	"qalam-backend/internal/repository"
	"qalam-backend/internal/service"
	appErrors "qalam-backend/pkg/errors"
)

const maxCommentLength = 2000

// CreateRequest is a validated new post.
type CreateRequest struct {
	Title            string   `json:"title" validate:"required,max=200"`
	Subtitle         string   `json:"subtitle" validate:"max=300"`
	ContentStructure string   `json:"contentStructure"`
	MediaURL         string   `json:"mediaUrl" validate:"omitempty,max=2048"`
	MediaType        string   `json:"mediaType" validate:"omitempty,oneof=none image video"`
	ThumbnailURL     string   `json:"thumbnailUrl" validate:"omitempty,max=2048"`
	Tags             []string `json:"tags" validate:"max=20,dive,required,max=50"`
	IsPublished      *bool    `json:"isPublished"`
}

// Service coordinates post operations and the user counters they affect.
type Service struct {
	posts     repository.PostRepository
	users     repository.UserRepository
	validator *service.Validator
	publisher events.Publisher
	logger    *zap.Logger
}

// NewService creates a post service.
func NewService(posts repository.PostRepository, users repository.UserRepository, publisher events.Publisher, logger *zap.Logger) *Service {
	return &Service{
		posts:     posts,
		users:     users,
		validator: service.NewValidator(),
		publisher: publisher,
		logger:    logger,
	}
}

// Create publishes a post by authorID and bumps the author's post count.
func (s *Service) Create(ctx context.Context, authorID string, req CreateRequest) (*domain.Post, error) {
	req.Title = strings.TrimSpace(req.Title)
	req.Subtitle = strings.TrimSpace(req.Subtitle)
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}

	author, err := s.users.GetUserByID(ctx, authorID)
	if err != nil {
		return nil, service.Translate(err, "failed to load author")
	}
	if author == nil {
		return nil, appErrors.NewNotFound("author not found")
	}

	post := &domain.Post{
		AuthorID:         author.ID,
		AuthorUsername:   author.Username,
		AuthorFullName:   author.FullName,
		AuthorAvatarURL:  author.AvatarURL,
		Title:            req.Title,
		Subtitle:         req.Subtitle,
		ContentStructure: req.ContentStructure,
		MediaURL:         req.MediaURL,
		MediaType:        req.MediaType,
		ThumbnailURL:     req.ThumbnailURL,
		LikedBy:          []string{},
		Comments:         []domain.Comment{},
		Tags:             req.Tags,
		MinReadTime:      domain.ReadTime(req.ContentStructure),
		IsPublished:      true,
	}
	if post.MediaType == "" {
		post.MediaType = domain.MediaNone
	}
	if post.Tags == nil {
		post.Tags = []string{}
	}
	if req.IsPublished != nil {
		post.IsPublished = *req.IsPublished
	}

	if err := s.posts.CreatePost(ctx, post); err != nil {
		return nil, service.Translate(err, "failed to create post")
	}
	s.adjustCounter(ctx, author.ID, domain.CounterPosts, 1)

	s.logger.Info("Post created",
		zap.String("postID", post.ID),
		zap.String("authorID", author.ID))
	s.publish(ctx, events.New(events.PostCreated, post.ID, author.ID, map[string]any{
		"title": post.Title,
	}))
	return post, nil
}

// Get returns the post or NOT_FOUND.
func (s *Service) Get(ctx context.Context, postID string) (*domain.Post, error) {
	post, err := s.posts.GetPost(ctx, postID)
	if err != nil {
		return nil, service.Translate(err, "failed to get post")
	}
	if post == nil {
		return nil, appErrors.NewNotFound("post not found")
	}
	return post, nil
}

// ListAll returns the feed, newest first, without posts by excludeAuthorID.
func (s *Service) ListAll(ctx context.Context, excludeAuthorID string) ([]*domain.Post, error) {
	all, err := s.posts.ListAllPosts(ctx)
	if err != nil {
		return nil, service.Translate(err, "failed to list posts")
	}
	if excludeAuthorID == "" {
		return all, nil
	}
	out := make([]*domain.Post, 0, len(all))
	for _, p := range all {
		if p.AuthorID != excludeAuthorID {
			out = append(out, p)
		}
	}
	return out, nil
}

// ListByAuthor returns authorID's posts, newest first.
func (s *Service) ListByAuthor(ctx context.Context, authorID string) ([]*domain.Post, error) {
	list, err := s.posts.ListPostsByAuthor(ctx, authorID)
	if err != nil {
		return nil, service.Translate(err, "failed to list posts")
	}
	return list, nil
}

// Delete removes a post written by callerID.
func (s *Service) Delete(ctx context.Context, callerID, postID string) error {
	post, err := s.Get(ctx, postID)
	if err != nil {
		return err
	}
	if post.AuthorID != callerID {
		return appErrors.NewForbidden("you are not authorized to delete this post")
	}
	if err := s.posts.DeletePost(ctx, postID); err != nil {
		return service.Translate(err, "failed to delete post")
	}
	s.adjustCounter(ctx, callerID, domain.CounterPosts, -1)

	s.logger.Info("Post deleted",
		zap.String("postID", postID),
		zap.String("authorID", callerID))
	s.publish(ctx, events.New(events.PostDeleted, postID, callerID, nil))
	return nil
}

// Like records userID's like. Liking twice returns the same count.
func (s *Service) Like(ctx context.Context, postID, userID string) (repository.LikeResult, error) {
	result, err := s.posts.LikePost(ctx, postID, userID)
	if err != nil {
		return repository.LikeResult{}, service.Translate(err, "failed to like post")
	}
	if result.Changed {
		s.adjustCounter(ctx, userID, domain.CounterLikes, 1)
		s.publish(ctx, events.New(events.PostLiked, postID, userID, map[string]any{"likesCount": result.LikesCount}))
	}
	return result, nil
}

// Unlike removes userID's like. Unliking a post that is not liked is a
// no-op.
func (s *Service) Unlike(ctx context.Context, postID, userID string) (repository.LikeResult, error) {
	result, err := s.posts.UnlikePost(ctx, postID, userID)
	if err != nil {
		return repository.LikeResult{}, service.Translate(err, "failed to unlike post")
	}
	if result.Changed {
		s.adjustCounter(ctx, userID, domain.CounterLikes, -1)
		s.publish(ctx, events.New(events.PostUnliked, postID, userID, map[string]any{"likesCount": result.LikesCount}))
	}
	return result, nil
}

// LikeStatus reports whether userID likes the post and its like count.
func (s *Service) LikeStatus(ctx context.Context, postID, userID string) (repository.LikeResult, error) {
	post, err := s.Get(ctx, postID)
	if err != nil {
		return repository.LikeResult{}, err
	}
	return repository.LikeResult{Liked: post.IsLikedBy(userID), LikesCount: post.LikesCount}, nil
}

// AddComment appends a comment by userID and returns it with the post's
// new comment count.
func (s *Service) AddComment(ctx context.Context, postID, userID, content string) (*domain.Comment, int, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, 0, appErrors.NewValidation("content: is required")
	}
	if utf8.RuneCountInString(content) > maxCommentLength {
		return nil, 0, appErrors.NewValidation("content: must be at most 2000 characters")
	}

	author, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, 0, service.Translate(err, "failed to load commenter")
	}
	if author == nil {
		return nil, 0, appErrors.NewNotFound("user not found")
	}

	comment := &domain.Comment{
		AuthorID:        author.ID,
		AuthorUsername:  author.Username,
		AuthorFullName:  author.FullName,
		AuthorAvatarURL: author.AvatarURL,
		Content:         content,
	}
	updated, err := s.posts.AddComment(ctx, postID, comment)
	if err != nil {
		return nil, 0, service.Translate(err, "failed to add comment")
	}
	s.adjustCounter(ctx, userID, domain.CounterComments, 1)
	s.publish(ctx, events.New(events.CommentAdded, postID, userID, map[string]any{"commentId": comment.ID}))
	return comment, updated.CommentsCount, nil
}

// ListComments returns the post's comments, oldest first.
func (s *Service) ListComments(ctx context.Context, postID string) ([]domain.Comment, error) {
	post, err := s.Get(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post.Comments == nil {
		return []domain.Comment{}, nil
	}
	return post.Comments, nil
}

// DeleteComment removes a comment written by callerID and returns the
// post's new comment count.
func (s *Service) DeleteComment(ctx context.Context, postID, commentID, callerID string) (int, error) {
	count, err := s.posts.DeleteComment(ctx, postID, commentID, callerID)
	if err != nil {
		return 0, service.Translate(err, "failed to delete comment")
	}
	s.adjustCounter(ctx, callerID, domain.CounterComments, -1)
	s.publish(ctx, events.New(events.CommentDeleted, postID, callerID, map[string]any{"commentId": commentID}))
	return count, nil
}

// adjustCounter applies a side-effect counter change. Failures are logged
// because the primary write has already succeeded.
func (s *Service) adjustCounter(ctx context.Context, userID string, c domain.Counter, delta int) {
	var err error
	if delta >= 0 {
		err = s.users.IncrementUserCounter(ctx, userID, c, delta)
	} else {
		err = s.users.DecrementUserCounter(ctx, userID, c, -delta)
	}
	if err != nil {
		s.logger.Warn("Failed to update user counter",
			zap.String("userID", userID),
			zap.String("counter", string(c)),
			zap.Int("delta", delta),
			zap.Error(err))
	}
}

func (s *Service) publish(ctx context.Context, event events.Event) {
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("Failed to publish event",
			zap.String("eventType", string(event.Type)),
			zap.String("aggregateID", event.AggregateID),
			zap.Error(err))
	}
}
