// Package events publishes domain events for downstream consumers such as
// notification fan-out and analytics.
package events

import (
	"time"

	"github.com/google/uuid"
)

// Source is the EventBridge source of every event this service emits.
const Source = "qalam.backend"

// Type names a domain event. It becomes the EventBridge detail-type.
type Type string

const (
	UserRegistered Type = "UserRegistered"
	UserDeleted    Type = "UserDeleted"
	PostCreated    Type = "PostCreated"
	PostDeleted    Type = "PostDeleted"
	PostLiked      Type = "PostLiked"
	PostUnliked    Type = "PostUnliked"
	CommentAdded   Type = "CommentAdded"
	CommentDeleted Type = "CommentDeleted"
	FriendAdded    Type = "FriendAdded"
	FriendRemoved  Type = "FriendRemoved"
)

// Event is one state change. AggregateID is the id of the user or post
// that changed and ActorID the user who caused it.
type Event struct {
	ID          string         `json:"eventId"`
	Type        Type           `json:"eventType"`
	AggregateID string         `json:"aggregateId"`
	ActorID     string         `json:"actorId,omitempty"`
	Data        map[string]any `json:"data,omitempty"`
	OccurredAt  time.Time      `json:"occurredAt"`
}

// New builds an event stamped with a fresh id and the current time.
func New(t Type, aggregateID, actorID string, data map[string]any) Event {
	return Event{
		ID:          uuid.NewString(),
		Type:        t,
		AggregateID: aggregateID,
		ActorID:     actorID,
		Data:        data,
		OccurredAt:  time.Now().UTC(),
	}
}
