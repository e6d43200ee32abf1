package domain

import (
	"math"
	"slices"
	"strings"
	"time"
)

// Media types accepted on a post.
const (
	MediaNone  = "none"
	MediaImage = "image"
	MediaVideo = "video"
)

const wordsPerMinute = 200

// Post is a published article. Comments are embedded in the post item.
type Post struct {
	ID               string    `json:"postId"`
	AuthorID         string    `json:"authorId"`
	AuthorUsername   string    `json:"authorUsername"`
	AuthorFullName   string    `json:"authorFullName"`
	AuthorAvatarURL  string    `json:"authorAvatarUrl"`
	Title            string    `json:"title"`
	Subtitle         string    `json:"subtitle"`
	ContentStructure string    `json:"contentStructure"`
	MediaURL         string    `json:"mediaUrl"`
	MediaType        string    `json:"mediaType"`
	ThumbnailURL     string    `json:"thumbnailUrl"`
	LikesCount       int       `json:"likesCount"`
	CommentsCount    int       `json:"commentsCount"`
	ViewsCount       int       `json:"viewsCount"`
	RepostsCount     int       `json:"repostsCount"`
	LikedBy          []string  `json:"likedBy"`
	Comments         []Comment `json:"comments"`
	Tags             []string  `json:"tags"`
	MinReadTime      int       `json:"minReadTime"`
	IsPublished      bool      `json:"isPublished"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
	Version          int       `json:"-"`
}

// Comment lives inside its parent post.
type Comment struct {
	ID              string    `json:"commentId"`
	PostID          string    `json:"postId"`
	AuthorID        string    `json:"authorId"`
	AuthorUsername  string    `json:"authorUsername"`
	AuthorFullName  string    `json:"authorFullName"`
	AuthorAvatarURL string    `json:"authorAvatarUrl"`
	Content         string    `json:"content"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// ReadTime estimates reading minutes for content, never less than one.
func ReadTime(content string) int {
	words := len(strings.Fields(content))
	return max(1, int(math.Ceil(float64(words)/wordsPerMinute)))
}

// IsLikedBy reports whether userID has liked the post.
func (p *Post) IsLikedBy(userID string) bool {
	return slices.Contains(p.LikedBy, userID)
}

// Like records a like from userID. LikesCount always equals len(LikedBy)
// afterwards. It returns false if the user had already liked the post.
func (p *Post) Like(userID string) bool {
	if p.IsLikedBy(userID) {
		p.LikesCount = len(p.LikedBy)
		return false
	}
	p.LikedBy = append(p.LikedBy, userID)
	p.LikesCount = len(p.LikedBy)
	return true
}

// Unlike removes userID's like. It returns false if there was none.
func (p *Post) Unlike(userID string) bool {
	idx := slices.Index(p.LikedBy, userID)
	if idx < 0 {
		p.LikesCount = len(p.LikedBy)
		return false
	}
	p.LikedBy = slices.Delete(p.LikedBy, idx, idx+1)
	p.LikesCount = len(p.LikedBy)
	return true
}

// AddComment appends c and keeps CommentsCount in step.
func (p *Post) AddComment(c Comment) {
	p.Comments = append(p.Comments, c)
	p.CommentsCount = len(p.Comments)
}

// FindComment returns the comment with the given id, or nil.
func (p *Post) FindComment(commentID string) *Comment {
	for i := range p.Comments {
		if p.Comments[i].ID == commentID {
			return &p.Comments[i]
		}
	}
	return nil
}

// RemoveComment deletes the comment with the given id. It returns false if
// no such comment exists.
func (p *Post) RemoveComment(commentID string) bool {
	idx := slices.IndexFunc(p.Comments, func(c Comment) bool { return c.ID == commentID })
	if idx < 0 {
		return false
	}
	p.Comments = slices.Delete(p.Comments, idx, idx+1)
	p.CommentsCount = len(p.Comments)
	return true
}
