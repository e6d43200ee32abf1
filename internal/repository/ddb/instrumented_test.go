package ddb

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	appErrors "qalam-backend/pkg/errors"
)

type recordingObserver struct {
	mu    sync.Mutex
	calls []string
	fails int
}

func (o *recordingObserver) ObserveStoreCall(operation string, _ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, operation)
	if err != nil {
		o.fails++
	}
}

func TestInstrument_ObservesCalls(t *testing.T) {
	obs := &recordingObserver{}
	api := Instrument(&mockAPI{}, testConfig.TableName, WithObserver(obs))

	_, err := api.GetItem(context.Background(), &dynamodb.GetItemInput{})
	require.NoError(t, err)
	_, err = api.Query(context.Background(), &dynamodb.QueryInput{IndexName: aws.String("GSI1")})
	require.NoError(t, err)

	assert.Equal(t, []string{"GetItem", "Query:GSI1"}, obs.calls)
}

func TestInstrument_BreakerOpensOnStoreFailures(t *testing.T) {
	calls := 0
	inner := &mockAPI{
		getItemFunc: func(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
			calls++
			return nil, errors.New("connection refused")
		},
	}
	breaker := NewBreaker(BreakerConfig{
		Name:             "test",
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          time.Minute,
		FailureThreshold: 0.5,
		MinRequests:      2,
	}, zap.NewNop())
	api := Instrument(inner, testConfig.TableName, WithBreaker(breaker))

	for i := 0; i < 2; i++ {
		_, err := api.GetItem(context.Background(), &dynamodb.GetItemInput{})
		require.Error(t, err)
	}
	_, err := api.GetItem(context.Background(), &dynamodb.GetItemInput{})

	require.Error(t, err)
	assert.True(t, appErrors.IsInternal(err))
	assert.Contains(t, err.Error(), "store unavailable")
	assert.Equal(t, 2, calls, "open breaker short-circuits the call")
}

func TestInstrument_ConditionFailuresDoNotTripBreaker(t *testing.T) {
	calls := 0
	inner := &mockAPI{
		putItemFunc: func(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
			calls++
			return nil, conditionFailed()
		},
	}
	breaker := NewBreaker(BreakerConfig{
		Name:             "test",
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          time.Minute,
		FailureThreshold: 0.5,
		MinRequests:      2,
	}, zap.NewNop())
	api := Instrument(inner, testConfig.TableName, WithBreaker(breaker))

	for i := 0; i < 5; i++ {
		_, err := api.PutItem(context.Background(), &dynamodb.PutItemInput{})
		assert.True(t, isConditionalCheckFailed(err))
	}
	assert.Equal(t, 5, calls)
}
