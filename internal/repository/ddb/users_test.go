package ddb

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"qalam-backend/internal/domain"
	"qalam-backend/internal/repository"
)

func TestCreateUser_WritesTypedKeysAndProjections(t *testing.T) {
	var captured *dynamodb.PutItemInput
	api := &mockAPI{
		putItemFunc: func(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
			captured = params
			return &dynamodb.PutItemOutput{}, nil
		},
	}
	repo := newTestRepository(api)

	u := &domain.User{Username: "alice", Email: "alice@example.com", FullName: "Alice A"}
	require.NoError(t, repo.CreateUser(context.Background(), u))

	require.NotNil(t, captured)
	assert.Equal(t, "qalam-test", aws.ToString(captured.TableName))
	assert.Contains(t, aws.ToString(captured.ConditionExpression), "attribute_not_exists")

	var item userItem
	require.NoError(t, attributevalue.UnmarshalMap(captured.Item, &item))
	assert.Equal(t, "USER#"+u.ID, item.PK)
	assert.Equal(t, "METADATA", item.SK)
	assert.Equal(t, "USER", item.EntityType)
	assert.Equal(t, "USERNAME#alice", item.GSI1PK)
	assert.Equal(t, "EMAIL#alice@example.com", item.GSI2PK)
	assert.Equal(t, 1, item.Version)
	assert.Equal(t, 1, u.Version)
	assert.Equal(t, testNow, u.CreatedAt)
	assert.NotEmpty(t, u.ID)
}

func TestCreateUser_WithoutEmailStaysOutOfEmailIndex(t *testing.T) {
	var captured *dynamodb.PutItemInput
	api := &mockAPI{
		putItemFunc: func(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
			captured = params
			return &dynamodb.PutItemOutput{}, nil
		},
	}
	repo := newTestRepository(api)

	require.NoError(t, repo.CreateUser(context.Background(), &domain.User{Username: "octo"}))
	_, hasGSI2 := captured.Item["GSI2PK"]
	assert.False(t, hasGSI2)
}

func TestCreateUser_KeyCollisionIsConflict(t *testing.T) {
	api := &mockAPI{
		putItemFunc: func(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
			return nil, conditionFailed()
		},
	}
	repo := newTestRepository(api)

	u := &domain.User{Username: "alice"}
	err := repo.CreateUser(context.Background(), u)

	assert.True(t, repository.IsConflict(err))
	assert.Equal(t, 0, u.Version)
}

func TestGetUserByID_NotFoundReturnsNil(t *testing.T) {
	repo := newTestRepository(&mockAPI{})

	u, err := repo.GetUserByID(context.Background(), "123")

	require.NoError(t, err)
	assert.Nil(t, u)
}

func TestGetUserByUsername_QueriesIndex(t *testing.T) {
	stored := newUserItem(&domain.User{ID: "42", Username: "alice", Email: "a@example.com", Version: 2})
	scanned := false
	api := &mockAPI{
		queryFunc: func(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
			assert.Equal(t, "GSI1", aws.ToString(params.IndexName))
			assert.Contains(t, valuesOf(t, params.ExpressionAttributeValues), "USERNAME#alice")
			return &dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{mustMarshal(t, stored)}}, nil
		},
		scanFunc: func(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
			scanned = true
			return &dynamodb.ScanOutput{}, nil
		},
	}
	repo := newTestRepository(api)

	u, err := repo.GetUserByUsername(context.Background(), "alice")

	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "42", u.ID)
	assert.Equal(t, 2, u.Version)
	assert.False(t, scanned)
}

func TestGetUserByEmail_ScansWhileIndexIsCreating(t *testing.T) {
	stored := newUserItem(&domain.User{ID: "42", Username: "alice", Email: "a@example.com"})
	api := &mockAPI{
		queryFunc: func(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
			t.Fatal("query must not be issued while the index is creating")
			return nil, nil
		},
		scanFunc: func(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
			assert.Contains(t, valuesOf(t, params.ExpressionAttributeValues), "EMAIL#a@example.com")
			return &dynamodb.ScanOutput{Items: []map[string]types.AttributeValue{mustMarshal(t, stored)}}, nil
		},
		describeTableFunc: func(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
			return describeIndexes(map[string]types.IndexStatus{
				"GSI1": types.IndexStatusActive,
				"GSI2": types.IndexStatusCreating,
			}), nil
		},
	}
	monitor := NewIndexMonitor(api, testConfig.TableName, zap.NewNop(), "GSI1", "GSI2")
	require.NoError(t, monitor.Refresh(context.Background()))
	repo := newTestRepository(api, WithIndexMonitor(monitor))

	u, err := repo.GetUserByEmail(context.Background(), "a@example.com")

	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "alice", u.Username)
}

func TestGetUserByUsername_MissingIndexErrorFallsBackToScan(t *testing.T) {
	stored := newUserItem(&domain.User{ID: "7", Username: "bob"})
	queries := 0
	api := &mockAPI{
		queryFunc: func(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
			queries++
			return nil, &smithy.GenericAPIError{
				Code:    "ValidationException",
				Message: "The table does not have the specified index: GSI1",
			}
		},
		scanFunc: func(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
			return &dynamodb.ScanOutput{Items: []map[string]types.AttributeValue{mustMarshal(t, stored)}}, nil
		},
	}
	monitor := NewIndexMonitor(api, testConfig.TableName, zap.NewNop(), "GSI1", "GSI2")
	repo := newTestRepository(api, WithIndexMonitor(monitor))

	u, err := repo.GetUserByUsername(context.Background(), "bob")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "7", u.ID)

	// The index is now known to be unavailable, so the next lookup scans directly.
	_, err = repo.GetUserByUsername(context.Background(), "bob")
	require.NoError(t, err)
	assert.Equal(t, 1, queries)
	assert.Equal(t, IndexMissing, monitor.States()["GSI1"])
}

func TestGetUserByUsername_OtherQueryErrorsPropagate(t *testing.T) {
	api := &mockAPI{
		queryFunc: func(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
			return nil, &types.ProvisionedThroughputExceededException{Message: stringPtr("slow down")}
		},
	}
	repo := newTestRepository(api)

	_, err := repo.GetUserByUsername(context.Background(), "bob")
	assert.Error(t, err)
}

func TestDecrementUserCounter_AtZeroIsNoOp(t *testing.T) {
	var captured *dynamodb.UpdateItemInput
	api := &mockAPI{
		updateItemFunc: func(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
			captured = params
			return nil, &types.ConditionalCheckFailedException{
				Message: stringPtr("The conditional request failed"),
				Item: map[string]types.AttributeValue{
					"PK":         &types.AttributeValueMemberS{Value: "USER#42"},
					"likesCount": &types.AttributeValueMemberN{Value: "0"},
				},
			}
		},
	}
	repo := newTestRepository(api)

	err := repo.DecrementUserCounter(context.Background(), "42", domain.CounterLikes, 1)

	require.NoError(t, err)
	require.NotNil(t, captured)
	assert.Contains(t, aws.ToString(captured.UpdateExpression), "ADD")
	assert.Contains(t, aws.ToString(captured.ConditionExpression), ">=")
	assert.Contains(t, valuesOf(t, captured.ExpressionAttributeValues), float64(-1))
	assert.Equal(t, types.ReturnValuesOnConditionCheckFailureAllOld, captured.ReturnValuesOnConditionCheckFailure)
}

func TestDecrementUserCounter_MissingUserIsNotFound(t *testing.T) {
	api := &mockAPI{
		updateItemFunc: func(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
			return nil, conditionFailed()
		},
	}
	repo := newTestRepository(api)

	err := repo.DecrementUserCounter(context.Background(), "ghost", domain.CounterPosts, 1)

	assert.True(t, repository.IsNotFound(err))
	assert.True(t, repository.IsNotFound(repo.IncrementUserCounter(context.Background(), "ghost", domain.CounterPosts, 1)))
}

func TestIncrementUserCounter(t *testing.T) {
	t.Run("AddsDeltaAtomically", func(t *testing.T) {
		var captured *dynamodb.UpdateItemInput
		api := &mockAPI{
			updateItemFunc: func(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
				captured = params
				return &dynamodb.UpdateItemOutput{}, nil
			},
		}
		repo := newTestRepository(api)

		require.NoError(t, repo.IncrementUserCounter(context.Background(), "42", domain.CounterPosts, 1))
		assert.Contains(t, aws.ToString(captured.UpdateExpression), "ADD")
		assert.Contains(t, captured.ExpressionAttributeNames, "#0")
		assert.Contains(t, valuesOf(t, captured.ExpressionAttributeValues), float64(1))
	})

	t.Run("RejectsUnknownCounter", func(t *testing.T) {
		repo := newTestRepository(&mockAPI{})
		err := repo.IncrementUserCounter(context.Background(), "42", domain.Counter("viewsCount"), 1)
		assert.Error(t, err)
	})

	t.Run("MissingUserIsConflict", func(t *testing.T) {
		api := &mockAPI{
			updateItemFunc: func(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
				return nil, conditionFailed()
			},
		}
		repo := newTestRepository(api)
		err := repo.IncrementUserCounter(context.Background(), "42", domain.CounterPosts, 1)
		assert.True(t, repository.IsConflict(err))
	})
}

func TestAddFriend_RetriesOnStaleVersion(t *testing.T) {
	versions := []int{3, 4}
	friends := [][]string{{}, {"other"}}
	reads, writes := 0, 0
	var lastValues []any

	api := &mockAPI{
		getItemFunc: func(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
			assert.True(t, aws.ToBool(params.ConsistentRead))
			u := &domain.User{ID: "1", Username: "alice", Friends: friends[reads], FriendsCount: len(friends[reads]), Version: versions[reads]}
			reads++
			return &dynamodb.GetItemOutput{Item: mustMarshal(t, newUserItem(u))}, nil
		},
		updateItemFunc: func(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
			writes++
			lastValues = valuesOf(t, params.ExpressionAttributeValues)
			if writes == 1 {
				return nil, conditionFailed()
			}
			return &dynamodb.UpdateItemOutput{}, nil
		},
	}
	repo := newTestRepository(api)

	added, err := repo.AddFriend(context.Background(), "1", "2")

	require.NoError(t, err)
	assert.True(t, added)
	assert.Equal(t, 2, reads)
	assert.Equal(t, 2, writes)
	assert.Contains(t, lastValues, []any{"other", "2"})
	assert.Contains(t, lastValues, float64(2), "friendsCount written with the list")
	assert.Contains(t, lastValues, float64(5), "version bumped from the re-read value")
}

func TestAddFriend_AlreadyFriendsSkipsWrite(t *testing.T) {
	api := &mockAPI{
		getItemFunc: func(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
			u := &domain.User{ID: "1", Friends: []string{"2"}, FriendsCount: 1, Version: 1}
			return &dynamodb.GetItemOutput{Item: mustMarshal(t, newUserItem(u))}, nil
		},
		updateItemFunc: func(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
			t.Fatal("no write expected")
			return nil, nil
		},
	}
	repo := newTestRepository(api)

	added, err := repo.AddFriend(context.Background(), "1", "2")
	require.NoError(t, err)
	assert.False(t, added)
}

func TestRemoveFriend_UnknownUserIsNotFound(t *testing.T) {
	repo := newTestRepository(&mockAPI{})

	_, err := repo.RemoveFriend(context.Background(), "1", "2")
	assert.True(t, repository.IsNotFound(err))
}

func TestGetUserByProviderID(t *testing.T) {
	stored := newUserItem(&domain.User{ID: "9", Username: "octo", GitHubID: "555"})
	api := &mockAPI{
		scanFunc: func(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
			assert.Contains(t, valuesOf(t, params.ExpressionAttributeValues), "555")
			return &dynamodb.ScanOutput{Items: []map[string]types.AttributeValue{mustMarshal(t, stored)}}, nil
		},
	}
	repo := newTestRepository(api)

	u, err := repo.GetUserByProviderID(context.Background(), repository.ProviderGitHub, "555")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "octo", u.Username)

	_, err = repo.GetUserByProviderID(context.Background(), "gitlab", "555")
	assert.Error(t, err)
}

func TestDeleteUser_MissingIsNotFound(t *testing.T) {
	api := &mockAPI{
		deleteItemFunc: func(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
			return nil, conditionFailed()
		},
	}
	repo := newTestRepository(api)

	err := repo.DeleteUser(context.Background(), "1")
	assert.True(t, repository.IsNotFound(err))
}
