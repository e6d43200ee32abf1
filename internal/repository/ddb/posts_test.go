package ddb

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"qalam-backend/internal/domain"
	"qalam-backend/internal/repository"
)

func storedPost(t *testing.T, p *domain.Post) *dynamodb.GetItemOutput {
	t.Helper()
	return &dynamodb.GetItemOutput{Item: mustMarshal(t, newPostItem(p))}
}

func TestCreatePost_ProjectsAuthorAndFeedKeys(t *testing.T) {
	var captured *dynamodb.PutItemInput
	api := &mockAPI{
		putItemFunc: func(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
			captured = params
			return &dynamodb.PutItemOutput{}, nil
		},
	}
	repo := newTestRepository(api)

	p := &domain.Post{AuthorID: "42", Title: "Hello", MediaType: domain.MediaNone}
	require.NoError(t, repo.CreatePost(context.Background(), p))

	var item postItem
	require.NoError(t, attributevalue.UnmarshalMap(captured.Item, &item))
	assert.Equal(t, "POST#"+p.ID, item.PK)
	assert.Equal(t, "POST", item.EntityType)
	assert.Equal(t, "AUTHOR#42", item.GSI1PK)
	assert.Equal(t, "ALL_POSTS", item.GSI2PK)
	assert.Equal(t, "2024-03-01T12:00:00.000Z", item.GSI2SK)
	assert.Empty(t, item.LikedBy)
	assert.NotNil(t, item.Comments)
}

// Two users like the same post at the same time. Both read likedBy=[u1]
// at version 3; the second writer's version check fails, it re-reads the
// post (now [u1 u2] at version 4) and writes a count matching the list.
func TestLikePost_ConcurrentLikeIsNotLost(t *testing.T) {
	reads := []*domain.Post{
		{ID: "p1", LikedBy: []string{"u1"}, LikesCount: 1, Version: 3},
		{ID: "p1", LikedBy: []string{"u1", "u2"}, LikesCount: 2, Version: 4},
	}
	readIdx, writes := 0, 0
	var written []any

	api := &mockAPI{
		getItemFunc: func(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
			p := reads[readIdx]
			readIdx++
			return storedPost(t, p), nil
		},
		updateItemFunc: func(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
			writes++
			if writes == 1 {
				return nil, conditionFailed()
			}
			written = valuesOf(t, params.ExpressionAttributeValues)
			return &dynamodb.UpdateItemOutput{}, nil
		},
	}
	repo := newTestRepository(api)

	res, err := repo.LikePost(context.Background(), "p1", "u3")

	require.NoError(t, err)
	assert.True(t, res.Liked)
	assert.True(t, res.Changed)
	assert.Equal(t, 3, res.LikesCount)
	assert.Contains(t, written, []any{"u1", "u2", "u3"})
	assert.Contains(t, written, float64(3))
	assert.Equal(t, 2, writes)
}

func TestLikePost_SecondLikeIsNoOp(t *testing.T) {
	api := &mockAPI{
		getItemFunc: func(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
			return storedPost(t, &domain.Post{ID: "p1", LikedBy: []string{"u1"}, LikesCount: 1, Version: 2}), nil
		},
		updateItemFunc: func(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
			t.Fatal("no write expected")
			return nil, nil
		},
	}
	repo := newTestRepository(api)

	res, err := repo.LikePost(context.Background(), "p1", "u1")

	require.NoError(t, err)
	assert.True(t, res.Liked)
	assert.False(t, res.Changed)
	assert.Equal(t, 1, res.LikesCount)
}

func TestUnlikePost_NotLikedIsNoOp(t *testing.T) {
	api := &mockAPI{
		getItemFunc: func(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
			return storedPost(t, &domain.Post{ID: "p1", LikedBy: []string{"u1"}, LikesCount: 1, Version: 2}), nil
		},
	}
	repo := newTestRepository(api)

	res, err := repo.UnlikePost(context.Background(), "p1", "u9")

	require.NoError(t, err)
	assert.False(t, res.Liked)
	assert.False(t, res.Changed)
	assert.Equal(t, 1, res.LikesCount)
}

func TestLikePost_MissingPostIsNotFound(t *testing.T) {
	repo := newTestRepository(&mockAPI{})

	_, err := repo.LikePost(context.Background(), "nope", "u1")
	assert.True(t, repository.IsNotFound(err))
}

func TestLikePost_ExhaustedRetriesSurfaceConflict(t *testing.T) {
	api := &mockAPI{
		getItemFunc: func(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
			return storedPost(t, &domain.Post{ID: "p1", Version: 1}), nil
		},
		updateItemFunc: func(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
			return nil, conditionFailed()
		},
	}
	repo := newTestRepository(api)

	_, err := repo.LikePost(context.Background(), "p1", "u1")
	assert.True(t, repository.IsConflict(err))
}

func TestAddComment(t *testing.T) {
	var written []any
	api := &mockAPI{
		getItemFunc: func(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
			return storedPost(t, &domain.Post{ID: "p1", Version: 1}), nil
		},
		updateItemFunc: func(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
			written = valuesOf(t, params.ExpressionAttributeValues)
			return &dynamodb.UpdateItemOutput{}, nil
		},
	}
	repo := newTestRepository(api)

	c := &domain.Comment{AuthorID: "u1", AuthorUsername: "alice", Content: "Nice post"}
	p, err := repo.AddComment(context.Background(), "p1", c)

	require.NoError(t, err)
	assert.NotEmpty(t, c.ID)
	assert.Equal(t, "p1", c.PostID)
	assert.Equal(t, 1, p.CommentsCount)
	assert.Contains(t, written, float64(1))
}

func TestDeleteComment(t *testing.T) {
	post := &domain.Post{
		ID:            "p1",
		Version:       5,
		Comments:      []domain.Comment{{ID: "c1", AuthorID: "u1"}, {ID: "c2", AuthorID: "u2"}},
		CommentsCount: 2,
	}
	newAPI := func() *mockAPI {
		return &mockAPI{
			getItemFunc: func(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
				return storedPost(t, post), nil
			},
		}
	}

	t.Run("AuthorCanDelete", func(t *testing.T) {
		repo := newTestRepository(newAPI())
		count, err := repo.DeleteComment(context.Background(), "p1", "c1", "u1")
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("OtherUserIsForbidden", func(t *testing.T) {
		repo := newTestRepository(newAPI())
		_, err := repo.DeleteComment(context.Background(), "p1", "c1", "u2")
		assert.True(t, repository.IsForbidden(err))
	})

	t.Run("UnknownCommentIsNotFound", func(t *testing.T) {
		repo := newTestRepository(newAPI())
		_, err := repo.DeleteComment(context.Background(), "p1", "c9", "u1")
		assert.True(t, repository.IsNotFound(err))
	})
}

func TestListAllPosts_ScanFallbackIsNewestFirst(t *testing.T) {
	older := newPostItem(&domain.Post{ID: "1", CreatedAt: testNow.Add(-time.Hour)})
	newer := newPostItem(&domain.Post{ID: "2", CreatedAt: testNow})
	api := &mockAPI{
		scanFunc: func(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
			return &dynamodb.ScanOutput{Items: []map[string]types.AttributeValue{
				mustMarshal(t, older), mustMarshal(t, newer),
			}}, nil
		},
		describeTableFunc: func(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
			return describeIndexes(map[string]types.IndexStatus{"GSI1": types.IndexStatusActive}), nil
		},
	}
	monitor := NewIndexMonitor(api, testConfig.TableName, zap.NewNop(), "GSI1", "GSI2")
	require.NoError(t, monitor.Refresh(context.Background()))
	repo := newTestRepository(api, WithIndexMonitor(monitor))

	posts, err := repo.ListAllPosts(context.Background())

	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, "2", posts[0].ID)
	assert.Equal(t, "1", posts[1].ID)
}

func TestListPostsByAuthor_QueriesNewestFirst(t *testing.T) {
	api := &mockAPI{
		queryFunc: func(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
			assert.Equal(t, "GSI1", aws.ToString(params.IndexName))
			assert.False(t, aws.ToBool(params.ScanIndexForward))
			assert.Contains(t, valuesOf(t, params.ExpressionAttributeValues), "AUTHOR#42")
			return &dynamodb.QueryOutput{}, nil
		},
	}
	repo := newTestRepository(api)

	posts, err := repo.ListPostsByAuthor(context.Background(), "42")
	require.NoError(t, err)
	assert.Empty(t, posts)
}

func TestSaveCascadeJob(t *testing.T) {
	var captured []*dynamodb.PutItemInput
	api := &mockAPI{
		putItemFunc: func(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
			captured = append(captured, params)
			return &dynamodb.PutItemOutput{}, nil
		},
	}
	repo := newTestRepository(api)

	job := &domain.CascadeJob{ID: "j1", Kind: domain.CascadeDeleteUser, SubjectID: "42", Status: domain.CascadePending}
	require.NoError(t, repo.SaveCascadeJob(context.Background(), job))
	assert.Equal(t, 1, job.Version)
	assert.Contains(t, aws.ToString(captured[0].ConditionExpression), "attribute_not_exists")

	var item cascadeItem
	require.NoError(t, attributevalue.UnmarshalMap(captured[0].Item, &item))
	assert.Equal(t, "PENDING_CASCADES", item.GSI2PK)

	job.Status = domain.CascadeCompleted
	require.NoError(t, repo.SaveCascadeJob(context.Background(), job))
	assert.Equal(t, 2, job.Version)
	_, pending := captured[1].Item["GSI2PK"]
	assert.False(t, pending, "finished jobs leave the pending index")
}
