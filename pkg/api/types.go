package api

import "qalam-backend/internal/domain"

// SignupRequest is the body of POST /auth/signup.
type SignupRequest struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	FullName  string `json:"fullName"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// LoginRequest is the body of POST /auth/login. Username may hold a
// username or an email address; Identifier is accepted as an alias.
type LoginRequest struct {
	Username   string `json:"username"`
	Identifier string `json:"identifier,omitempty"`
	Password   string `json:"password"`
}

// AuthUser is the caller summary returned with a token.
type AuthUser struct {
	UserID            string  `json:"userId"`
	Username          string  `json:"username"`
	Email             *string `json:"email"`
	ProfilePictureKey *string `json:"profilePictureKey"`
}

// NewAuthUser builds the token summary of u.
func NewAuthUser(u *domain.User) AuthUser {
	return AuthUser{
		UserID:            u.ID,
		Username:          u.Username,
		Email:             optional(u.Email),
		ProfilePictureKey: optional(u.AvatarURL),
	}
}

// AuthResponse is returned by signup and login.
type AuthResponse struct {
	Message string   `json:"message,omitempty"`
	Token   string   `json:"access_token"`
	User    AuthUser `json:"user"`
}

// MessageResponse acknowledges an action without further data.
type MessageResponse struct {
	Message string `json:"message"`
}

// UserResponse wraps a single user.
type UserResponse struct {
	Message string `json:"message,omitempty"`
	User    any    `json:"user"`
}

// UsersResponse wraps a list of user summaries.
type UsersResponse struct {
	Users []domain.UserSummary `json:"users"`
}

// ProfileResponse is a user together with summaries of their friends.
type ProfileResponse struct {
	User    *domain.User         `json:"user"`
	Friends []domain.UserSummary `json:"friends"`
}

// FriendsResponse wraps a friend list.
type FriendsResponse struct {
	Friends []domain.UserSummary `json:"friends"`
}

// UpdateAvatarRequest is the body of PUT /users/profile/avatar.
type UpdateAvatarRequest struct {
	AvatarURL string `json:"avatarUrl"`
}

// ProfilePictureResponse carries a displayable avatar URL, null when the
// caller has none.
type ProfilePictureResponse struct {
	ProfilePictureURL *string `json:"profilePictureUrl"`
}

// FriendStatusResponse answers GET /users/friends/check/{friendId}.
type FriendStatusResponse struct {
	IsFriend bool `json:"isFriend"`
}

// FriendChangeResponse is returned by the add and remove friend routes.
type FriendChangeResponse struct {
	Message  string `json:"message"`
	FriendID string `json:"friendId"`
	Changed  bool   `json:"changed"`
}

// DeleteUserResponse reports how far the account deletion got.
type DeleteUserResponse struct {
	Message string `json:"message"`
	JobID   string `json:"jobId"`
	Status  string `json:"status"`
}

// CreatePostRequest is the body of POST /posts. ContentStructure is an
// opaque JSON array of content blocks stored as text.
type CreatePostRequest struct {
	Title            string   `json:"title"`
	Subtitle         string   `json:"subtitle,omitempty"`
	ContentStructure string   `json:"contentStructure"`
	MediaURL         string   `json:"mediaUrl,omitempty"`
	MediaType        string   `json:"mediaType,omitempty"`
	ThumbnailURL     string   `json:"thumbnailUrl,omitempty"`
	Tags             []string `json:"tags,omitempty"`
	IsPublished      *bool    `json:"isPublished,omitempty"`
}

// PostResponse wraps a single post.
type PostResponse struct {
	Message string       `json:"message,omitempty"`
	Post    *domain.Post `json:"post"`
}

// PostsResponse wraps a list of posts.
type PostsResponse struct {
	Posts []*domain.Post `json:"posts"`
}

// AddCommentRequest is the body of POST /posts/{postId}/comments.
type AddCommentRequest struct {
	Content string `json:"content"`
}

// CommentResponse is returned after a comment is added.
type CommentResponse struct {
	Message       string          `json:"message"`
	Comment       *domain.Comment `json:"comment"`
	CommentsCount int             `json:"commentsCount"`
}

// CommentsResponse wraps a post's comments.
type CommentsResponse struct {
	Comments []domain.Comment `json:"comments"`
}

// CommentCountResponse is returned after a comment is deleted.
type CommentCountResponse struct {
	Message       string `json:"message"`
	CommentsCount int    `json:"commentsCount"`
}

// LikeResponse is returned by the like and unlike routes.
type LikeResponse struct {
	Message    string `json:"message"`
	Liked      bool   `json:"liked"`
	LikesCount int    `json:"likesCount"`
}

// LikeStatusResponse answers GET /posts/{postId}/like-status.
type LikeStatusResponse struct {
	IsLiked    bool `json:"isLiked"`
	LikesCount int  `json:"likesCount"`
}

// UploadURLRequest asks for a presigned upload URL. Username is only read
// by the signup variant.
type UploadURLRequest struct {
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType"`
	Username    string `json:"username,omitempty"`
}

// UploadURLResponse is a presigned upload target and where the object will
// be readable afterwards.
type UploadURLResponse struct {
	UploadURL string `json:"uploadUrl"`
	FileKey   string `json:"fileKey"`
	PublicURL string `json:"publicUrl"`
	SignedURL string `json:"signedUrl"`
}

// RefreshURLRequest asks for a fresh signed GET URL for a stored object.
type RefreshURLRequest struct {
	FileKey string `json:"fileKey"`
}

// RefreshURLResponse carries a renewed signed GET URL.
type RefreshURLResponse struct {
	Success   bool   `json:"success"`
	SignedURL string `json:"signedUrl"`
}

// SignedURLResponse answers GET /signed-url/{key}.
type SignedURLResponse struct {
	URL string `json:"url"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status    string            `json:"status"`
	Service   string            `json:"service"`
	Timestamp string            `json:"timestamp"`
	Indexes   map[string]string `json:"indexes,omitempty"`
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
