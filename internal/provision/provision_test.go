package provision

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockTables struct {
	mock.Mock
}

func (m *mockTables) CreateTable(ctx context.Context, in *dynamodb.CreateTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*dynamodb.CreateTableOutput)
	return out, args.Error(1)
}

func (m *mockTables) DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*dynamodb.DescribeTableOutput)
	return out, args.Error(1)
}

type mockBuckets struct {
	mock.Mock
}

func (m *mockBuckets) PutBucketCors(ctx context.Context, in *s3.PutBucketCorsInput, _ ...func(*s3.Options)) (*s3.PutBucketCorsOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*s3.PutBucketCorsOutput)
	return out, args.Error(1)
}

func (m *mockBuckets) PutBucketPolicy(ctx context.Context, in *s3.PutBucketPolicyInput, _ ...func(*s3.Options)) (*s3.PutBucketPolicyOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*s3.PutBucketPolicyOutput)
	return out, args.Error(1)
}

var spec = TableSpec{Name: "Qalam", GSI1Name: "GSI1", GSI2Name: "GSI2"}

func activeTable() *dynamodb.DescribeTableOutput {
	return &dynamodb.DescribeTableOutput{Table: &ddbtypes.TableDescription{
		TableName:   aws.String("Qalam"),
		TableStatus: ddbtypes.TableStatusActive,
	}}
}

func TestCreateTableInput(t *testing.T) {
	in := CreateTableInput(spec)

	assert.Equal(t, "Qalam", aws.ToString(in.TableName))
	assert.Equal(t, ddbtypes.BillingModePayPerRequest, in.BillingMode)
	require.Len(t, in.GlobalSecondaryIndexes, 2)
	for i, name := range []string{"GSI1", "GSI2"} {
		gsi := in.GlobalSecondaryIndexes[i]
		assert.Equal(t, name, aws.ToString(gsi.IndexName))
		assert.Equal(t, ddbtypes.ProjectionTypeAll, gsi.Projection.ProjectionType)
		require.Len(t, gsi.KeySchema, 2)
		assert.Equal(t, name+"PK", aws.ToString(gsi.KeySchema[0].AttributeName))
		assert.Equal(t, name+"SK", aws.ToString(gsi.KeySchema[1].AttributeName))
	}
	assert.Len(t, in.AttributeDefinitions, 6)
}

func TestEnsureTable(t *testing.T) {
	t.Run("creates and waits", func(t *testing.T) {
		tables := &mockTables{}
		tables.On("CreateTable", mock.Anything, mock.Anything).Return(&dynamodb.CreateTableOutput{}, nil)
		tables.On("DescribeTable", mock.Anything, mock.Anything).Return(activeTable(), nil)

		err := New(tables, nil, zap.NewNop()).EnsureTable(context.Background(), spec)

		require.NoError(t, err)
		tables.AssertExpectations(t)
	})

	t.Run("existing table is fine", func(t *testing.T) {
		tables := &mockTables{}
		tables.On("CreateTable", mock.Anything, mock.Anything).
			Return(nil, &ddbtypes.ResourceInUseException{Message: aws.String("exists")})
		tables.On("DescribeTable", mock.Anything, mock.Anything).Return(activeTable(), nil)

		err := New(tables, nil, zap.NewNop()).EnsureTable(context.Background(), spec)

		require.NoError(t, err)
	})

	t.Run("other errors fail", func(t *testing.T) {
		tables := &mockTables{}
		tables.On("CreateTable", mock.Anything, mock.Anything).Return(nil, errors.New("access denied"))

		err := New(tables, nil, zap.NewNop()).EnsureTable(context.Background(), spec)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "access denied")
		tables.AssertNotCalled(t, "DescribeTable", mock.Anything, mock.Anything)
	})
}

func TestPublicReadPolicy(t *testing.T) {
	policy, err := PublicReadPolicy("media")
	require.NoError(t, err)

	var doc policyDocument
	require.NoError(t, json.Unmarshal([]byte(policy), &doc))
	require.Len(t, doc.Statement, 1)
	assert.Equal(t, "s3:GetObject", doc.Statement[0].Action)
	assert.Equal(t, "arn:aws:s3:::media/uploads/*", doc.Statement[0].Resource)
}

func TestConfigureBucket(t *testing.T) {
	buckets := &mockBuckets{}
	origins := []string{"http://localhost:5173"}
	buckets.On("PutBucketCors", mock.Anything, mock.MatchedBy(func(in *s3.PutBucketCorsInput) bool {
		rule := in.CORSConfiguration.CORSRules[0]
		return aws.ToString(in.Bucket) == "media" &&
			assert.ObjectsAreEqual(origins, rule.AllowedOrigins) &&
			aws.ToInt32(rule.MaxAgeSeconds) == 3000
	})).Return(&s3.PutBucketCorsOutput{}, nil)
	buckets.On("PutBucketPolicy", mock.Anything, mock.Anything).Return(&s3.PutBucketPolicyOutput{}, nil)

	err := New(nil, buckets, zap.NewNop()).ConfigureBucket(context.Background(), "media", origins)

	require.NoError(t, err)
	buckets.AssertExpectations(t)
}

func TestConfigureBucket_CORSFailureStops(t *testing.T) {
	buckets := &mockBuckets{}
	buckets.On("PutBucketCors", mock.Anything, mock.Anything).Return(nil, errors.New("no such bucket"))

	err := New(nil, buckets, zap.NewNop()).ConfigureBucket(context.Background(), "media", nil)

	require.Error(t, err)
	buckets.AssertNotCalled(t, "PutBucketPolicy", mock.Anything, mock.Anything)
}
