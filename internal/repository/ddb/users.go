package ddb

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"qalam-backend/internal/domain"
	"qalam-backend/internal/repository"
	appErrors "qalam-backend/pkg/errors"
)

// CreateUser writes a new user item. The ID is assigned here.
func (r *Repository) CreateUser(ctx context.Context, u *domain.User) error {
	now := r.now()
	u.ID = domain.NewID(now)
	u.CreatedAt = now
	u.UpdatedAt = now
	u.Version = 1
	if u.Friends == nil {
		u.Friends = []string{}
	}

	err := r.putItem(ctx, newUserItem(u), expression.AttributeNotExists(expression.Name(attrPK)), "user", u.ID)
	if err != nil {
		u.Version = 0
		return err
	}
	return nil
}

// GetUserByID returns the user or nil.
func (r *Repository) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	return r.getUser(ctx, id, false)
}

func (r *Repository) getUser(ctx context.Context, id string, consistent bool) (*domain.User, error) {
	var item userItem
	found, err := r.getItem(ctx, userKey(id), consistent, &item)
	if err != nil || !found {
		return nil, err
	}
	return item.toDomain(), nil
}

// GetUserByUsername looks the user up through GSI1.
func (r *Repository) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.findUser(ctx, indexQuery{
		index:   r.config.GSI1Name,
		keyAttr: attrGSI1PK,
		value:   prefixUsername + username,
		limit:   1,
	})
}

// GetUserByEmail looks the user up through GSI2.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	if email == "" {
		return nil, nil
	}
	return r.findUser(ctx, indexQuery{
		index:   r.config.GSI2Name,
		keyAttr: attrGSI2PK,
		value:   prefixEmail + email,
		limit:   1,
	})
}

func (r *Repository) findUser(ctx context.Context, q indexQuery) (*domain.User, error) {
	items, err := r.queryIndex(ctx, q)
	if err != nil || len(items) == 0 {
		return nil, err
	}
	var item userItem
	if err := attributevalue.UnmarshalMap(items[0], &item); err != nil {
		return nil, appErrors.Wrap(err, "failed to unmarshal user")
	}
	return item.toDomain(), nil
}

// GetUserByProviderID scans for the user linked to an OAuth account. There
// is no index on provider ids, sign-ins through OAuth are rare enough.
func (r *Repository) GetUserByProviderID(ctx context.Context, provider, providerID string) (*domain.User, error) {
	var attr string
	switch provider {
	case repository.ProviderGitHub:
		attr = "githubId"
	case repository.ProviderGoogle:
		attr = "googleId"
	default:
		return nil, appErrors.NewValidation(fmt.Sprintf("unknown provider %q", provider))
	}

	filter := expression.Name(attrEntityType).Equal(expression.Value(entityUser)).
		And(expression.Name(attr).Equal(expression.Value(providerID)))
	items, err := r.scan(ctx, filter, 1)
	if err != nil {
		return nil, appErrors.Wrap(err, "failed to scan for provider id")
	}
	if len(items) == 0 {
		return nil, nil
	}
	var item userItem
	if err := attributevalue.UnmarshalMap(items[0], &item); err != nil {
		return nil, appErrors.Wrap(err, "failed to unmarshal user")
	}
	return item.toDomain(), nil
}

// ListUsers returns every user item.
func (r *Repository) ListUsers(ctx context.Context) ([]*domain.User, error) {
	items, err := r.scan(ctx, expression.Name(attrEntityType).Equal(expression.Value(entityUser)), 0)
	if err != nil {
		return nil, appErrors.Wrap(err, "failed to scan users")
	}

	var records []userItem
	if err := attributevalue.UnmarshalListOfMaps(items, &records); err != nil {
		return nil, appErrors.Wrap(err, "failed to unmarshal users")
	}
	users := make([]*domain.User, 0, len(records))
	for _, rec := range records {
		users = append(users, rec.toDomain())
	}
	return users, nil
}

// UpdateUserAvatar sets the avatar key or URL.
func (r *Repository) UpdateUserAvatar(ctx context.Context, id, avatarURL string) error {
	return r.setAttributes(ctx, userKey(id), map[string]any{"avatarUrl": avatarURL}, "user", id)
}

// LinkGitHubID records the GitHub account id on the user.
func (r *Repository) LinkGitHubID(ctx context.Context, id, githubID string) error {
	return r.setAttributes(ctx, userKey(id), map[string]any{"githubId": githubID}, "user", id)
}

// LinkGoogleID records the Google account id on the user.
func (r *Repository) LinkGoogleID(ctx context.Context, id, googleID string) error {
	return r.setAttributes(ctx, userKey(id), map[string]any{"googleId": googleID}, "user", id)
}

// IncrementUserCounter atomically adds delta to the counter.
func (r *Repository) IncrementUserCounter(ctx context.Context, id string, c domain.Counter, delta int) error {
	return r.addToCounter(ctx, id, c, delta, expression.AttributeExists(expression.Name(attrPK)))
}

// DecrementUserCounter atomically subtracts delta unless the counter would
// drop below zero, in which case the update is skipped with a warning. A
// missing user is repository.ErrNotFound.
func (r *Repository) DecrementUserCounter(ctx context.Context, id string, c domain.Counter, delta int) error {
	cond := expression.AttributeExists(expression.Name(attrPK)).
		And(expression.Name(string(c)).GreaterThanEqual(expression.Value(delta)))

	err := r.addToCounter(ctx, id, c, -delta, cond)
	if repository.IsConflict(err) {
		r.logger.Warn("counter decrement skipped, value would go below zero",
			zap.String("userID", id),
			zap.String("counter", string(c)),
			zap.Int("delta", delta))
		return nil
	}
	return err
}

func (r *Repository) addToCounter(ctx context.Context, id string, c domain.Counter, delta int, cond expression.ConditionBuilder) error {
	if !c.Valid() {
		return appErrors.NewValidation(fmt.Sprintf("unknown counter %q", c))
	}
	if delta == 0 {
		return nil
	}

	update := expression.
		Add(expression.Name(string(c)), expression.Value(delta)).
		Set(expression.Name(attrUpdatedAt), expression.Value(formatTime(r.now())))
	expr, err := expression.NewBuilder().WithUpdate(update).WithCondition(cond).Build()
	if err != nil {
		return appErrors.Wrap(err, "failed to build counter expression")
	}

	_, err = r.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.config.TableName),
		Key:                       userKey(id),
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),

		// The old item tells a missing user apart from a counter at zero.
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			if len(ccf.Item) == 0 {
				return repository.NewNotFound("user", id)
			}
			return repository.NewConflict("user", id, "counter condition failed")
		}
		return appErrors.Wrap(err, "failed to update counter")
	}
	return nil
}

// AddFriend appends friendID to the user's friend list.
func (r *Repository) AddFriend(ctx context.Context, userID, friendID string) (bool, error) {
	return r.mutateFriends(ctx, userID, func(u *domain.User) bool { return u.AddFriend(friendID) })
}

// RemoveFriend drops friendID from the user's friend list.
func (r *Repository) RemoveFriend(ctx context.Context, userID, friendID string) (bool, error) {
	return r.mutateFriends(ctx, userID, func(u *domain.User) bool { return u.RemoveFriend(friendID) })
}

// mutateFriends applies fn to a fresh copy of the user and writes friends
// and friendsCount together, retrying on version conflicts.
func (r *Repository) mutateFriends(ctx context.Context, userID string, fn func(*domain.User) bool) (bool, error) {
	var changed bool
	err := repository.RetryOnConflict(ctx, r.retry, func() error {
		u, err := r.getUser(ctx, userID, true)
		if err != nil {
			return err
		}
		if u == nil {
			return repository.NewNotFound("user", userID)
		}

		changed = fn(u)
		if !changed {
			return nil
		}
		return r.versionedUpdate(ctx, userKey(userID), u.Version, map[string]any{
			"friends":                     u.Friends,
			string(domain.CounterFriends): u.FriendsCount,
		}, "user", userID)
	})
	return changed, err
}

// DeleteUser removes the user item only. Cleaning up references to the
// user is the job of the cascade runner.
func (r *Repository) DeleteUser(ctx context.Context, id string) error {
	return r.deleteItem(ctx, userKey(id), "user", id)
}
