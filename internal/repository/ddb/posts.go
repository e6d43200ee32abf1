package ddb

import (
	"context"
	"sort"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"

	"qalam-backend/internal/domain"
	"qalam-backend/internal/repository"
	appErrors "qalam-backend/pkg/errors"
)

// CreatePost writes a new post item. The ID is assigned here.
func (r *Repository) CreatePost(ctx context.Context, p *domain.Post) error {
	now := r.now()
	p.ID = domain.NewID(now)
	p.CreatedAt = now
	p.UpdatedAt = now
	p.Version = 1
	if p.LikedBy == nil {
		p.LikedBy = []string{}
	}
	if p.Comments == nil {
		p.Comments = []domain.Comment{}
	}
	if p.Tags == nil {
		p.Tags = []string{}
	}

	err := r.putItem(ctx, newPostItem(p), expression.AttributeNotExists(expression.Name(attrPK)), "post", p.ID)
	if err != nil {
		p.Version = 0
		return err
	}
	return nil
}

// GetPost returns the post or nil.
func (r *Repository) GetPost(ctx context.Context, id string) (*domain.Post, error) {
	return r.getPost(ctx, id, false)
}

func (r *Repository) getPost(ctx context.Context, id string, consistent bool) (*domain.Post, error) {
	var item postItem
	found, err := r.getItem(ctx, postKey(id), consistent, &item)
	if err != nil || !found {
		return nil, err
	}
	return item.toDomain(), nil
}

// ListPostsByAuthor queries GSI1 for AUTHOR#<authorID>.
func (r *Repository) ListPostsByAuthor(ctx context.Context, authorID string) ([]*domain.Post, error) {
	return r.listPosts(ctx, indexQuery{
		index:   r.config.GSI1Name,
		keyAttr: attrGSI1PK,
		value:   prefixAuthor + authorID,
	})
}

// ListAllPosts queries the ALL_POSTS partition of GSI2.
func (r *Repository) ListAllPosts(ctx context.Context) ([]*domain.Post, error) {
	return r.listPosts(ctx, indexQuery{
		index:   r.config.GSI2Name,
		keyAttr: attrGSI2PK,
		value:   allPostsKey,
	})
}

func (r *Repository) listPosts(ctx context.Context, q indexQuery) ([]*domain.Post, error) {
	items, err := r.queryIndex(ctx, q)
	if err != nil {
		return nil, err
	}

	var records []postItem
	if err := attributevalue.UnmarshalListOfMaps(items, &records); err != nil {
		return nil, appErrors.Wrap(err, "failed to unmarshal posts")
	}
	posts := make([]*domain.Post, 0, len(records))
	for _, rec := range records {
		posts = append(posts, rec.toDomain())
	}
	// Scan results come back unordered.
	sort.SliceStable(posts, func(i, j int) bool {
		return posts[i].CreatedAt.After(posts[j].CreatedAt)
	})
	return posts, nil
}

// DeletePost removes the post item with its embedded comments.
func (r *Repository) DeletePost(ctx context.Context, id string) error {
	return r.deleteItem(ctx, postKey(id), "post", id)
}

// LikePost adds userID to likedBy and sets likesCount in the same write.
func (r *Repository) LikePost(ctx context.Context, postID, userID string) (repository.LikeResult, error) {
	return r.mutateLikes(ctx, postID, userID, func(p *domain.Post) bool { return p.Like(userID) })
}

// UnlikePost removes userID from likedBy and sets likesCount in the same write.
func (r *Repository) UnlikePost(ctx context.Context, postID, userID string) (repository.LikeResult, error) {
	return r.mutateLikes(ctx, postID, userID, func(p *domain.Post) bool { return p.Unlike(userID) })
}

func (r *Repository) mutateLikes(ctx context.Context, postID, userID string, fn func(*domain.Post) bool) (repository.LikeResult, error) {
	var result repository.LikeResult
	err := repository.RetryOnConflict(ctx, r.retry, func() error {
		p, err := r.getPost(ctx, postID, true)
		if err != nil {
			return err
		}
		if p == nil {
			return repository.NewNotFound("post", postID)
		}

		changed := fn(p)
		result = repository.LikeResult{
			Liked:      p.IsLikedBy(userID),
			LikesCount: p.LikesCount,
			Changed:    changed,
		}
		if !changed {
			return nil
		}
		return r.versionedUpdate(ctx, postKey(postID), p.Version, map[string]any{
			"likedBy":    p.LikedBy,
			"likesCount": p.LikesCount,
		}, "post", postID)
	})
	return result, err
}

// AddComment appends c to the post's embedded comment list.
func (r *Repository) AddComment(ctx context.Context, postID string, c *domain.Comment) (*domain.Post, error) {
	now := r.now()
	c.ID = domain.NewID(now)
	c.PostID = postID
	c.CreatedAt = now
	c.UpdatedAt = now

	var updated *domain.Post
	err := repository.RetryOnConflict(ctx, r.retry, func() error {
		p, err := r.getPost(ctx, postID, true)
		if err != nil {
			return err
		}
		if p == nil {
			return repository.NewNotFound("post", postID)
		}

		p.AddComment(*c)
		if err := r.writeComments(ctx, p); err != nil {
			return err
		}
		updated = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteComment removes a comment if callerID wrote it.
func (r *Repository) DeleteComment(ctx context.Context, postID, commentID, callerID string) (int, error) {
	var count int
	err := repository.RetryOnConflict(ctx, r.retry, func() error {
		p, err := r.getPost(ctx, postID, true)
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
		if err := r.writeComments(ctx, p); err != nil {
			return err
		}
		count = p.CommentsCount
		return nil
	})
	return count, err
}

func (r *Repository) writeComments(ctx context.Context, p *domain.Post) error {
	return r.versionedUpdate(ctx, postKey(p.ID), p.Version, map[string]any{
		"comments":      newCommentItems(p.Comments),
		"commentsCount": p.CommentsCount,
	}, "post", p.ID)
}
