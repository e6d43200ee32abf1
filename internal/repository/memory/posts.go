package memory

import (
	"context"
	"fmt"

	"qalam-backend/internal/domain"
	"qalam-backend/internal/repository"
)

// CreatePost stores a new post and assigns its ID.
func (s *Store) CreatePost(ctx context.Context, p *domain.Post) error {
	if err := s.checkError("CreatePost"); err != nil {
		return err
	}
	if err := ctxErr(ctx); err != nil {
		return err
	}

	now := s.now()
	p.ID = domain.NewID(now)
	p.CreatedAt = now
	p.UpdatedAt = now
	p.Version = 1

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, exists := s.posts[p.ID]; exists; _, exists = s.posts[p.ID] {
		p.ID = domain.NewID(now)
	}
	stored := clonePost(p)
	*p = *clonePost(stored)
	s.posts[p.ID] = stored
	return nil
}

// GetPost returns a copy of the post, or nil if it does not exist.
func (s *Store) GetPost(ctx context.Context, id string) (*domain.Post, error) {
	if err := s.checkError("GetPost"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.posts[id]; ok {
		return clonePost(p), nil
	}
	return nil, nil
}

func (s *Store) listPosts(method string, match func(*domain.Post) bool) ([]*domain.Post, error) {
	if err := s.checkError(method); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	posts := make([]*domain.Post, 0)
	for _, p := range s.posts {
		if match(p) {
			posts = append(posts, clonePost(p))
		}
	}
	newestFirst(posts)
	return posts, nil
}

// ListPostsByAuthor returns the author's posts, newest first.
func (s *Store) ListPostsByAuthor(ctx context.Context, authorID string) ([]*domain.Post, error) {
	return s.listPosts("ListPostsByAuthor", func(p *domain.Post) bool { return p.AuthorID == authorID })
}

// ListAllPosts returns every post, newest first.
func (s *Store) ListAllPosts(ctx context.Context) ([]*domain.Post, error) {
	return s.listPosts("ListAllPosts", func(*domain.Post) bool { return true })
}

// DeletePost removes the post.
func (s *Store) DeletePost(ctx context.Context, id string) error {
	if err := s.checkError("DeletePost"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.posts[id]; !ok {
		return repository.NewNotFound("post", id)
	}
	delete(s.posts, id)
	return nil
}

// LikePost adds userID to the post's likes.
func (s *Store) LikePost(ctx context.Context, postID, userID string) (repository.LikeResult, error) {
	return s.mutateLikes(ctx, "LikePost", postID, userID, func(p *domain.Post) bool { return p.Like(userID) })
}

// UnlikePost removes userID from the post's likes.
func (s *Store) UnlikePost(ctx context.Context, postID, userID string) (repository.LikeResult, error) {
	return s.mutateLikes(ctx, "UnlikePost", postID, userID, func(p *domain.Post) bool { return p.Unlike(userID) })
}

func (s *Store) mutateLikes(ctx context.Context, method, postID, userID string, fn func(*domain.Post) bool) (repository.LikeResult, error) {
	if err := s.checkError(method); err != nil {
		return repository.LikeResult{}, err
	}
	var result repository.LikeResult
	err := repository.RetryOnConflict(ctx, s.retry, func() error {
		p, err := s.GetPost(ctx, postID)
		if err != nil {
			return err
		}
		if p == nil {
			return repository.NewNotFound("post", postID)
		}
		changed := fn(p)
		result = repository.LikeResult{Liked: p.IsLikedBy(userID), LikesCount: p.LikesCount, Changed: changed}
		if !changed {
			return nil
		}
		return s.swapPost(p)
	})
	return result, err
}

// AddComment appends c to the post and returns the updated post.
func (s *Store) AddComment(ctx context.Context, postID string, c *domain.Comment) (*domain.Post, error) {
	if err := s.checkError("AddComment"); err != nil {
		return nil, err
	}
	now := s.now()
	c.ID = domain.NewID(now)
	c.PostID = postID
	c.CreatedAt = now
	c.UpdatedAt = now

	var updated *domain.Post
	err := repository.RetryOnConflict(ctx, s.retry, func() error {
		p, err := s.GetPost(ctx, postID)
		if err != nil {
			return err
		}
		if p == nil {
			return repository.NewNotFound("post", postID)
		}
		p.AddComment(*c)
		if err := s.swapPost(p); err != nil {
			return err
		}
		updated = p
		return nil
	})
	return updated, err
}

// DeleteComment removes a comment if callerID wrote it.
func (s *Store) DeleteComment(ctx context.Context, postID, commentID, callerID string) (int, error) {
	if err := s.checkError("DeleteComment"); err != nil {
		return 0, err
	}
	var count int
	err := repository.RetryOnConflict(ctx, s.retry, func() error {
		p, err := s.GetPost(ctx, postID)
		if err != nil {
			return err
		}
		if p == nil {
			return repository.NewNotFound("post", postID)
		}
		c := p.FindComment(commentID)
		if c == nil {
			return repository.NewNotFound("comment", commentID)
		}
		if c.AuthorID != callerID {
			return repository.NewForbidden("comment", commentID, "only the author may delete a comment")
		}
		p.RemoveComment(commentID)
		if err := s.swapPost(p); err != nil {
			return err
		}
		count = p.CommentsCount
		return nil
	})
	return count, err
}

// swapPost stores p if the stored version still equals p.Version.
func (s *Store) swapPost(p *domain.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.posts[p.ID]
	if !ok || current.Version != p.Version {
		return repository.NewConflict("post", p.ID, fmt.Sprintf("version %d is stale", p.Version))
	}
	p.Version++
	p.UpdatedAt = s.now()
	s.posts[p.ID] = clonePost(p)
	return nil
}
