package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"qalam-backend/internal/service/posts"
	"qalam-backend/pkg/api"
)

// PostHandler serves posts, likes and comments.
type PostHandler struct {
	posts  *posts.Service
	logger *zap.Logger
}

// NewPostHandler creates a post handler.
func NewPostHandler(postService *posts.Service, logger *zap.Logger) *PostHandler {
	return &PostHandler{posts: postService, logger: logger}
}

// Create handles POST /posts.
func (h *PostHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req api.CreatePostRequest
	if !decodeBody(w, r, &req) {
		return
	}

	post, err := h.posts.Create(r.Context(), userID, posts.CreateRequest{
		Title:            req.Title,
		Subtitle:         req.Subtitle,
		ContentStructure: req.ContentStructure,
		MediaURL:         req.MediaURL,
		MediaType:        req.MediaType,
		ThumbnailURL:     req.ThumbnailURL,
		Tags:             req.Tags,
		IsPublished:      req.IsPublished,
	})
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	api.Success(w, http.StatusCreated, api.PostResponse{Message: "Post created successfully", Post: post})
}

// Feed handles GET /posts.
func (h *PostHandler) Feed(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireCaller(w, r)
	if !ok {
		return
	}
	list, err := h.posts.ListAll(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	api.Success(w, http.StatusOK, api.PostsResponse{Posts: list})
}

// Mine handles GET /posts/my-posts.
func (h *PostHandler) Mine(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireCaller(w, r)
	if !ok {
		return
	}
	h.listByAuthor(w, r, userID)
}

// ByAuthor handles GET /posts/{authorId}/posts.
func (h *PostHandler) ByAuthor(w http.ResponseWriter, r *http.Request) {
	h.listByAuthor(w, r, chi.URLParam(r, "authorId"))
}

func (h *PostHandler) listByAuthor(w http.ResponseWriter, r *http.Request, authorID string) {
	list, err := h.posts.ListByAuthor(r.Context(), authorID)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	api.Success(w, http.StatusOK, api.PostsResponse{Posts: list})
}

// Get handles GET /posts/{postId}.
func (h *PostHandler) Get(w http.ResponseWriter, r *http.Request) {
	post, err := h.posts.Get(r.Context(), chi.URLParam(r, "postId"))
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	api.Success(w, http.StatusOK, api.PostResponse{Post: post})
}

// Delete handles DELETE /posts/{postId}.
func (h *PostHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireCaller(w, r)
	if !ok {
		return
	}
	if err := h.posts.Delete(r.Context(), userID, chi.URLParam(r, "postId")); err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	api.Success(w, http.StatusOK, api.MessageResponse{Message: "Post deleted successfully"})
}

// Like handles POST /posts/{postId}/like.
func (h *PostHandler) Like(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireCaller(w, r)
	if !ok {
		return
	}
	result, err := h.posts.Like(r.Context(), chi.URLParam(r, "postId"), userID)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	api.Success(w, http.StatusOK, api.LikeResponse{
		Message:    "Post liked successfully",
		Liked:      result.Liked,
		LikesCount: result.LikesCount,
	})
}

// Unlike handles DELETE /posts/{postId}/like.
func (h *PostHandler) Unlike(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireCaller(w, r)
	if !ok {
		return
	}
	result, err := h.posts.Unlike(r.Context(), chi.URLParam(r, "postId"), userID)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	api.Success(w, http.StatusOK, api.LikeResponse{
		Message:    "Post unliked successfully",
		Liked:      result.Liked,
		LikesCount: result.LikesCount,
	})
}

// LikeStatus handles GET /posts/{postId}/like-status.
func (h *PostHandler) LikeStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireCaller(w, r)
	if !ok {
		return
	}
	result, err := h.posts.LikeStatus(r.Context(), chi.URLParam(r, "postId"), userID)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	api.Success(w, http.StatusOK, api.LikeStatusResponse{IsLiked: result.Liked, LikesCount: result.LikesCount})
}

// Comments handles GET /posts/{postId}/comments.
func (h *PostHandler) Comments(w http.ResponseWriter, r *http.Request) {
	comments, err := h.posts.ListComments(r.Context(), chi.URLParam(r, "postId"))
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	api.Success(w, http.StatusOK, api.CommentsResponse{Comments: comments})
}

// AddComment handles POST /posts/{postId}/comments.
func (h *PostHandler) AddComment(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req api.AddCommentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	postID := chi.URLParam(r, "postId")
	comment, count, err := h.posts.AddComment(r.Context(), postID, userID, req.Content)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	api.Success(w, http.StatusCreated, api.CommentResponse{
		Message:       "Comment created successfully",
		Comment:       comment,
		CommentsCount: count,
	})
}

// DeleteComment handles DELETE /posts/{postId}/comments/{commentId}.
func (h *PostHandler) DeleteComment(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireCaller(w, r)
	if !ok {
		return
	}
	count, err := h.posts.DeleteComment(r.Context(), chi.URLParam(r, "postId"), chi.URLParam(r, "commentId"), userID)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	api.Success(w, http.StatusOK, api.CommentCountResponse{Message: "Comment deleted successfully", CommentsCount: count})
}
