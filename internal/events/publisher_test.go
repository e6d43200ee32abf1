package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeBus struct {
	inputs []*eventbridge.PutEventsInput
	out    *eventbridge.PutEventsOutput
	err    error
}

func (f *fakeBus) PutEvents(ctx context.Context, in *eventbridge.PutEventsInput, _ ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error) {
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return nil, f.err
	}
	if f.out != nil {
		return f.out, nil
	}
	return &eventbridge.PutEventsOutput{}, nil
}

func TestPublish_Batches(t *testing.T) {
	bus := &fakeBus{}
	p := NewEventBridgePublisher(bus, "qalam-bus", "", zap.NewNop())

	var evs []Event
	for i := 0; i < 23; i++ {
		evs = append(evs, New(PostLiked, "p1", "u1", nil))
	}
	require.NoError(t, p.Publish(context.Background(), evs...))

	require.Len(t, bus.inputs, 3)
	assert.Len(t, bus.inputs[0].Entries, 10)
	assert.Len(t, bus.inputs[2].Entries, 3)

	entry := bus.inputs[0].Entries[0]
	assert.Equal(t, "qalam-bus", aws.ToString(entry.EventBusName))
	assert.Equal(t, Source, aws.ToString(entry.Source))
	assert.Equal(t, "PostLiked", aws.ToString(entry.DetailType))

	var detail Event
	require.NoError(t, json.Unmarshal([]byte(aws.ToString(entry.Detail)), &detail))
	assert.Equal(t, "p1", detail.AggregateID)
	assert.NotEmpty(t, detail.ID)
}

func TestPublish_FailedEntries(t *testing.T) {
	bus := &fakeBus{out: &eventbridge.PutEventsOutput{
		FailedEntryCount: 1,
		Entries:          []types.PutEventsResultEntry{{ErrorCode: aws.String("ThrottlingException")}},
	}}
	p := NewEventBridgePublisher(bus, "", "", zap.NewNop())

	err := p.Publish(context.Background(), New(UserRegistered, "u1", "u1", nil))
	assert.ErrorContains(t, err, "1 events failed")
}

func TestPublish_ClientError(t *testing.T) {
	p := NewEventBridgePublisher(&fakeBus{err: errors.New("boom")}, "", "", zap.NewNop())
	assert.Error(t, p.Publish(context.Background(), New(UserDeleted, "u1", "u1", nil)))
}

func TestPublish_NothingToSend(t *testing.T) {
	bus := &fakeBus{}
	p := NewEventBridgePublisher(bus, "", "", zap.NewNop())
	require.NoError(t, p.Publish(context.Background()))
	assert.Empty(t, bus.inputs)
}

func TestRecorder(t *testing.T) {
	var r Recorder
	require.NoError(t, r.Publish(context.Background(), New(FriendAdded, "u1", "u1", nil), New(FriendRemoved, "u1", "u1", nil)))
	assert.Equal(t, []Type{FriendAdded, FriendRemoved}, r.Types())
	assert.NoError(t, NopPublisher{}.Publish(context.Background(), New(FriendAdded, "u1", "u1", nil)))
}
