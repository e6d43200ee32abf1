package ddb

import (
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"qalam-backend/internal/domain"
)

// Key prefixes and fixed key values of the single-table layout.
const (
	prefixUser     = "USER#"
	prefixPost     = "POST#"
	prefixCascade  = "CASCADE#"
	prefixUsername = "USERNAME#"
	prefixEmail    = "EMAIL#"
	prefixAuthor   = "AUTHOR#"

	allPostsKey        = "ALL_POSTS"
	pendingCascadesKey = "PENDING_CASCADES"
	metadataSK         = "METADATA"

	entityUser    = "USER"
	entityPost    = "POST"
	entityCascade = "CASCADE_JOB"
)

// Attribute names referenced in expressions.
const (
	attrPK         = "PK"
	attrSK         = "SK"
	attrEntityType = "EntityType"
	attrVersion    = "Version"
	attrGSI1PK     = "GSI1PK"
	attrGSI2PK     = "GSI2PK"
	attrUpdatedAt  = "updatedAt"
)

// timeLayout is fixed-width so GSI sort keys order lexically.
const timeLayout = "2006-01-02T15:04:05.000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t
}

func itemKey(pk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attrPK: &types.AttributeValueMemberS{Value: pk},
		attrSK: &types.AttributeValueMemberS{Value: metadataSK},
	}
}

func userKey(id string) map[string]types.AttributeValue    { return itemKey(prefixUser + id) }
func postKey(id string) map[string]types.AttributeValue    { return itemKey(prefixPost + id) }
func cascadeKey(id string) map[string]types.AttributeValue { return itemKey(prefixCascade + id) }

type userItem struct {
	PK         string `dynamodbav:"PK"`
	SK         string `dynamodbav:"SK"`
	EntityType string `dynamodbav:"EntityType"`
	Version    int    `dynamodbav:"Version"`
	GSI1PK     string `dynamodbav:"GSI1PK"`
	GSI1SK     string `dynamodbav:"GSI1SK"`
	GSI2PK     string `dynamodbav:"GSI2PK,omitempty"`
	GSI2SK     string `dynamodbav:"GSI2SK,omitempty"`

	UserID        string   `dynamodbav:"userId"`
	Username      string   `dynamodbav:"username"`
	Email         string   `dynamodbav:"email,omitempty"`
	FullName      string   `dynamodbav:"fullName"`
	PasswordHash  string   `dynamodbav:"passwordHash"`
	AvatarURL     string   `dynamodbav:"avatarUrl"`
	GitHubID      string   `dynamodbav:"githubId,omitempty"`
	GoogleID      string   `dynamodbav:"googleId,omitempty"`
	PostCount     int      `dynamodbav:"postCount"`
	LikesCount    int      `dynamodbav:"likesCount"`
	CommentsCount int      `dynamodbav:"commentsCount"`
	FriendsCount  int      `dynamodbav:"friendsCount"`
	Friends       []string `dynamodbav:"friends"`
	CreatedAt     string   `dynamodbav:"createdAt"`
	UpdatedAt     string   `dynamodbav:"updatedAt"`
}

func newUserItem(u *domain.User) userItem {
	item := userItem{
		PK:            prefixUser + u.ID,
		SK:            metadataSK,
		EntityType:    entityUser,
		Version:       u.Version,
		GSI1PK:        prefixUsername + u.Username,
		GSI1SK:        prefixUser + u.ID,
		UserID:        u.ID,
		Username:      u.Username,
		Email:         u.Email,
		FullName:      u.FullName,
		PasswordHash:  u.PasswordHash,
		AvatarURL:     u.AvatarURL,
		GitHubID:      u.GitHubID,
		GoogleID:      u.GoogleID,
		PostCount:     u.PostCount,
		LikesCount:    u.LikesCount,
		CommentsCount: u.CommentsCount,
		FriendsCount:  u.FriendsCount,
		Friends:       nonNil(u.Friends),
		CreatedAt:     formatTime(u.CreatedAt),
		UpdatedAt:     formatTime(u.UpdatedAt),
	}
	// Users without an email stay out of the email index.
	if u.Email != "" {
		item.GSI2PK = prefixEmail + u.Email
		item.GSI2SK = prefixUser + u.ID
	}
	return item
}

func (i userItem) toDomain() *domain.User {
	return &domain.User{
		ID:            i.UserID,
		Username:      i.Username,
		Email:         i.Email,
		FullName:      i.FullName,
		PasswordHash:  i.PasswordHash,
		AvatarURL:     i.AvatarURL,
		GitHubID:      i.GitHubID,
		GoogleID:      i.GoogleID,
		PostCount:     i.PostCount,
		LikesCount:    i.LikesCount,
		CommentsCount: i.CommentsCount,
		FriendsCount:  i.FriendsCount,
		Friends:       nonNil(i.Friends),
		CreatedAt:     parseTime(i.CreatedAt),
		UpdatedAt:     parseTime(i.UpdatedAt),
		Version:       i.Version,
	}
}

type commentItem struct {
	CommentID       string `dynamodbav:"commentId"`
	PostID          string `dynamodbav:"postId"`
	AuthorID        string `dynamodbav:"authorId"`
	AuthorUsername  string `dynamodbav:"authorUsername"`
	AuthorFullName  string `dynamodbav:"authorFullName"`
	AuthorAvatarURL string `dynamodbav:"authorAvatarUrl"`
	Content         string `dynamodbav:"content"`
	CreatedAt       string `dynamodbav:"createdAt"`
	UpdatedAt       string `dynamodbav:"updatedAt"`
}

type postItem struct {
	PK         string `dynamodbav:"PK"`
	SK         string `dynamodbav:"SK"`
	EntityType string `dynamodbav:"EntityType"`
	Version    int    `dynamodbav:"Version"`
	GSI1PK     string `dynamodbav:"GSI1PK"`
	GSI1SK     string `dynamodbav:"GSI1SK"`
	GSI2PK     string `dynamodbav:"GSI2PK"`
	GSI2SK     string `dynamodbav:"GSI2SK"`

	PostID           string        `dynamodbav:"postId"`
	AuthorID         string        `dynamodbav:"authorId"`
	AuthorUsername   string        `dynamodbav:"authorUsername"`
	AuthorFullName   string        `dynamodbav:"authorFullName"`
	AuthorAvatarURL  string        `dynamodbav:"authorAvatarUrl"`
	Title            string        `dynamodbav:"title"`
	Subtitle         string        `dynamodbav:"subtitle"`
	ContentStructure string        `dynamodbav:"contentStructure"`
	MediaURL         string        `dynamodbav:"mediaUrl"`
	MediaType        string        `dynamodbav:"mediaType"`
	ThumbnailURL     string        `dynamodbav:"thumbnailUrl"`
	LikesCount       int           `dynamodbav:"likesCount"`
	CommentsCount    int           `dynamodbav:"commentsCount"`
	ViewsCount       int           `dynamodbav:"viewsCount"`
	RepostsCount     int           `dynamodbav:"repostsCount"`
	LikedBy          []string      `dynamodbav:"likedBy"`
	Comments         []commentItem `dynamodbav:"comments"`
	Tags             []string      `dynamodbav:"tags"`
	MinReadTime      int           `dynamodbav:"minReadTime"`
	IsPublished      bool          `dynamodbav:"isPublished"`
	CreatedAt        string        `dynamodbav:"createdAt"`
	UpdatedAt        string        `dynamodbav:"updatedAt"`
}

func newCommentItems(comments []domain.Comment) []commentItem {
	items := make([]commentItem, 0, len(comments))
	for _, c := range comments {
		items = append(items, commentItem{
			CommentID:       c.ID,
			PostID:          c.PostID,
			AuthorID:        c.AuthorID,
			AuthorUsername:  c.AuthorUsername,
			AuthorFullName:  c.AuthorFullName,
			AuthorAvatarURL: c.AuthorAvatarURL,
			Content:         c.Content,
			CreatedAt:       formatTime(c.CreatedAt),
			UpdatedAt:       formatTime(c.UpdatedAt),
		})
	}
	return items
}

func newPostItem(p *domain.Post) postItem {
	created := formatTime(p.CreatedAt)
	return postItem{
		PK:               prefixPost + p.ID,
		SK:               metadataSK,
		EntityType:       entityPost,
		Version:          p.Version,
		GSI1PK:           prefixAuthor + p.AuthorID,
		GSI1SK:           created,
		GSI2PK:           allPostsKey,
		GSI2SK:           created,
		PostID:           p.ID,
		AuthorID:         p.AuthorID,
		AuthorUsername:   p.AuthorUsername,
		AuthorFullName:   p.AuthorFullName,
		AuthorAvatarURL:  p.AuthorAvatarURL,
		Title:            p.Title,
		Subtitle:         p.Subtitle,
		ContentStructure: p.ContentStructure,
		MediaURL:         p.MediaURL,
		MediaType:        p.MediaType,
		ThumbnailURL:     p.ThumbnailURL,
		LikesCount:       p.LikesCount,
		CommentsCount:    p.CommentsCount,
		ViewsCount:       p.ViewsCount,
		RepostsCount:     p.RepostsCount,
		LikedBy:          nonNil(p.LikedBy),
		Comments:         newCommentItems(p.Comments),
		Tags:             nonNil(p.Tags),
		MinReadTime:      p.MinReadTime,
		IsPublished:      p.IsPublished,
		CreatedAt:        created,
		UpdatedAt:        formatTime(p.UpdatedAt),
	}
}

func (i postItem) toDomain() *domain.Post {
	comments := make([]domain.Comment, 0, len(i.Comments))
	for _, c := range i.Comments {
		comments = append(comments, domain.Comment{
			ID:              c.CommentID,
			PostID:          c.PostID,
			AuthorID:        c.AuthorID,
			AuthorUsername:  c.AuthorUsername,
			AuthorFullName:  c.AuthorFullName,
			AuthorAvatarURL: c.AuthorAvatarURL,
			Content:         c.Content,
			CreatedAt:       parseTime(c.CreatedAt),
			UpdatedAt:       parseTime(c.UpdatedAt),
		})
	}
	return &domain.Post{
		ID:               i.PostID,
		AuthorID:         i.AuthorID,
		AuthorUsername:   i.AuthorUsername,
		AuthorFullName:   i.AuthorFullName,
		AuthorAvatarURL:  i.AuthorAvatarURL,
		Title:            i.Title,
		Subtitle:         i.Subtitle,
		ContentStructure: i.ContentStructure,
		MediaURL:         i.MediaURL,
		MediaType:        i.MediaType,
		ThumbnailURL:     i.ThumbnailURL,
		LikesCount:       i.LikesCount,
		CommentsCount:    i.CommentsCount,
		ViewsCount:       i.ViewsCount,
		RepostsCount:     i.RepostsCount,
		LikedBy:          nonNil(i.LikedBy),
		Comments:         comments,
		Tags:             nonNil(i.Tags),
		MinReadTime:      i.MinReadTime,
		IsPublished:      i.IsPublished,
		CreatedAt:        parseTime(i.CreatedAt),
		UpdatedAt:        parseTime(i.UpdatedAt),
		Version:          i.Version,
	}
}

type cascadeStepItem struct {
	Name        string `dynamodbav:"name"`
	Status      string `dynamodbav:"status"`
	Attempts    int    `dynamodbav:"attempts"`
	LastError   string `dynamodbav:"lastError,omitempty"`
	CompletedAt string `dynamodbav:"completedAt,omitempty"`
}

type cascadeItem struct {
	PK         string `dynamodbav:"PK"`
	SK         string `dynamodbav:"SK"`
	EntityType string `dynamodbav:"EntityType"`
	Version    int    `dynamodbav:"Version"`
	// GSI2PK is only set while the job is unfinished, which keeps the
	// PENDING_CASCADES partition small.
	GSI2PK string `dynamodbav:"GSI2PK,omitempty"`
	GSI2SK string `dynamodbav:"GSI2SK,omitempty"`

	JobID     string            `dynamodbav:"jobId"`
	Kind      string            `dynamodbav:"kind"`
	SubjectID string            `dynamodbav:"subjectId"`
	Status    string            `dynamodbav:"status"`
	Steps     []cascadeStepItem `dynamodbav:"steps"`
	Attempts  int               `dynamodbav:"attempts"`
	CreatedAt string            `dynamodbav:"createdAt"`
	UpdatedAt string            `dynamodbav:"updatedAt"`
}

func newCascadeItem(j *domain.CascadeJob) cascadeItem {
	steps := make([]cascadeStepItem, 0, len(j.Steps))
	for _, s := range j.Steps {
		step := cascadeStepItem{
			Name:      s.Name,
			Status:    string(s.Status),
			Attempts:  s.Attempts,
			LastError: s.LastError,
		}
		if s.CompletedAt != nil {
			step.CompletedAt = formatTime(*s.CompletedAt)
		}
		steps = append(steps, step)
	}
	item := cascadeItem{
		PK:         prefixCascade + j.ID,
		SK:         metadataSK,
		EntityType: entityCascade,
		Version:    j.Version,
		JobID:      j.ID,
		Kind:       string(j.Kind),
		SubjectID:  j.SubjectID,
		Status:     string(j.Status),
		Steps:      steps,
		Attempts:   j.Attempts,
		CreatedAt:  formatTime(j.CreatedAt),
		UpdatedAt:  formatTime(j.UpdatedAt),
	}
	if !j.Done() {
		item.GSI2PK = pendingCascadesKey
		item.GSI2SK = item.CreatedAt
	}
	return item
}

func (i cascadeItem) toDomain() *domain.CascadeJob {
	steps := make([]domain.CascadeStep, 0, len(i.Steps))
	for _, s := range i.Steps {
		step := domain.CascadeStep{
			Name:      s.Name,
			Status:    domain.CascadeStatus(s.Status),
			Attempts:  s.Attempts,
			LastError: s.LastError,
		}
		if s.CompletedAt != "" {
			t := parseTime(s.CompletedAt)
			step.CompletedAt = &t
		}
		steps = append(steps, step)
	}
	return &domain.CascadeJob{
		ID:        i.JobID,
		Kind:      domain.CascadeKind(i.Kind),
		SubjectID: i.SubjectID,
		Status:    domain.CascadeStatus(i.Status),
		Steps:     steps,
		Attempts:  i.Attempts,
		CreatedAt: parseTime(i.CreatedAt),
		UpdatedAt: parseTime(i.UpdatedAt),
		Version:   i.Version,
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
