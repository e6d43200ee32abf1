// Package ddb implements the repository contracts on a single DynamoDB table.
//
// Every item is addressed by PK (USER#, POST# or CASCADE# plus an id) and
// SK=METADATA and carries an EntityType discriminator. GSI1 serves username
// and author lookups, GSI2 serves email lookups, the global post feed and the
// pending cascade jobs. When an index is not ACTIVE the repository degrades to
// a filtered Scan instead of failing.
package ddb

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	"qalam-backend/internal/repository"
	appErrors "qalam-backend/pkg/errors"
)

// Repository is the DynamoDB implementation of repository.Store.
type Repository struct {
	api     API
	config  Config
	indexes *IndexMonitor
	retry   repository.RetryConfig
	logger  *zap.Logger
	clock   func() time.Time
}

var _ repository.Store = (*Repository)(nil)

// New creates a Repository over api.
func New(api API, config Config, opts ...Option) *Repository {
	r := &Repository{
		api:    api,
		config: config,
		retry:  repository.DefaultRetryConfig(),
		logger: zap.NewNop(),
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Repository) now() time.Time {
	return r.clock().UTC()
}

// getItem loads the item at key into out. It reports false when the item
// does not exist.
func (r *Repository) getItem(ctx context.Context, key map[string]types.AttributeValue, consistent bool, out any) (bool, error) {
	result, err := r.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.config.TableName),
		Key:            key,
		ConsistentRead: aws.Bool(consistent),
	})
	if err != nil {
		return false, appErrors.Wrap(err, "failed to get item from DynamoDB")
	}
	if result.Item == nil {
		return false, nil
	}
	if err := attributevalue.UnmarshalMap(result.Item, out); err != nil {
		return false, appErrors.Wrap(err, "failed to unmarshal item")
	}
	return true, nil
}

// putItem writes item guarded by cond. A failed condition is reported as
// repository.ErrConflict.
func (r *Repository) putItem(ctx context.Context, item any, cond expression.ConditionBuilder, resource, id string) error {
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return appErrors.Wrap(err, "failed to marshal item")
	}
	expr, err := expression.NewBuilder().WithCondition(cond).Build()
	if err != nil {
		return appErrors.Wrap(err, "failed to build condition expression")
	}

	_, err = r.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                 aws.String(r.config.TableName),
		Item:                      av,
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			return repository.NewConflict(resource, id, "condition failed on put")
		}
		return appErrors.Wrap(err, "failed to put item in DynamoDB")
	}
	return nil
}

// versionedUpdate sets the given attributes on the item at key if its
// Version still equals version, then bumps Version. A stale version yields
// repository.ErrConflict so callers can re-read and retry.
func (r *Repository) versionedUpdate(ctx context.Context, key map[string]types.AttributeValue, version int, set map[string]any, resource, id string) error {
	update := expression.
		Set(expression.Name(attrVersion), expression.Value(version+1)).
		Set(expression.Name(attrUpdatedAt), expression.Value(formatTime(r.now())))
	for name, value := range set {
		update = update.Set(expression.Name(name), expression.Value(value))
	}
	cond := expression.Name(attrVersion).Equal(expression.Value(version))

	expr, err := expression.NewBuilder().WithUpdate(update).WithCondition(cond).Build()
	if err != nil {
		return appErrors.Wrap(err, "failed to build update expression")
	}

	_, err = r.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.config.TableName),
		Key:                       key,
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			return repository.NewConflict(resource, id, fmt.Sprintf("version %d is stale", version))
		}
		return appErrors.Wrap(err, "failed to update item in DynamoDB")
	}
	return nil
}

// setAttributes updates plain attributes on an existing item without a
// version check.
func (r *Repository) setAttributes(ctx context.Context, key map[string]types.AttributeValue, set map[string]any, resource, id string) error {
	update := expression.Set(expression.Name(attrUpdatedAt), expression.Value(formatTime(r.now())))
	for name, value := range set {
		update = update.Set(expression.Name(name), expression.Value(value))
	}
	expr, err := expression.NewBuilder().
		WithUpdate(update).
		WithCondition(expression.AttributeExists(expression.Name(attrPK))).
		Build()
	if err != nil {
		return appErrors.Wrap(err, "failed to build update expression")
	}

	_, err = r.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.config.TableName),
		Key:                       key,
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			return repository.NewNotFound(resource, id)
		}
		return appErrors.Wrap(err, "failed to update item in DynamoDB")
	}
	return nil
}

// deleteItem removes an existing item. A missing item is reported as
// repository.ErrNotFound.
func (r *Repository) deleteItem(ctx context.Context, key map[string]types.AttributeValue, resource, id string) error {
	expr, err := expression.NewBuilder().
		WithCondition(expression.AttributeExists(expression.Name(attrPK))).
		Build()
	if err != nil {
		return appErrors.Wrap(err, "failed to build condition expression")
	}

	_, err = r.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                aws.String(r.config.TableName),
		Key:                      key,
		ConditionExpression:      expr.Condition(),
		ExpressionAttributeNames: expr.Names(),
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			return repository.NewNotFound(resource, id)
		}
		return appErrors.Wrap(err, "failed to delete item from DynamoDB")
	}
	return nil
}

// indexQuery describes a lookup by a GSI partition key value.
type indexQuery struct {
	index   string // index name
	keyAttr string // GSI partition key attribute, also used as the scan filter
	value   string
	forward bool  // ascending sort key order
	limit   int32 // stop after this many items, zero for all
}

// queryIndex runs q against its GSI. While the index is not ACTIVE, or when
// DynamoDB reports it missing, the same items are found with a filtered Scan.
func (r *Repository) queryIndex(ctx context.Context, q indexQuery) ([]map[string]types.AttributeValue, error) {
	if r.indexes.Ready(q.index) {
		items, err := r.query(ctx, q)
		if err == nil {
			return items, nil
		}
		if !isIndexUnavailable(err) {
			return nil, appErrors.Wrap(err, "failed to query "+q.index)
		}
		r.indexes.MarkUnavailable(q.index)
	}

	r.logger.Warn("index not ready, falling back to scan",
		zap.String("index", q.index),
		zap.String("key", q.keyAttr),
		zap.String("value", q.value))
	items, err := r.scan(ctx, expression.Name(q.keyAttr).Equal(expression.Value(q.value)), q.limit)
	if err != nil {
		return nil, appErrors.Wrap(err, "failed to scan for "+q.keyAttr)
	}
	return items, nil
}

func (r *Repository) query(ctx context.Context, q indexQuery) ([]map[string]types.AttributeValue, error) {
	keyCond := expression.Key(q.keyAttr).Equal(expression.Value(q.value))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, err
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(r.config.TableName),
		IndexName:                 aws.String(q.index),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ScanIndexForward:          aws.Bool(q.forward),
	}
	if q.limit > 0 {
		input.Limit = aws.Int32(q.limit)
	}

	var items []map[string]types.AttributeValue
	paginator := dynamodb.NewQueryPaginator(r.api, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		items = append(items, page.Items...)
		if q.limit > 0 && len(items) >= int(q.limit) {
			return items[:q.limit], nil
		}
	}
	return items, nil
}

// scan returns every item matching filter, stopping early once limit
// items are found when limit is positive.
func (r *Repository) scan(ctx context.Context, filter expression.ConditionBuilder, limit int32) ([]map[string]types.AttributeValue, error) {
	expr, err := expression.NewBuilder().WithFilter(filter).Build()
	if err != nil {
		return nil, err
	}

	paginator := dynamodb.NewScanPaginator(r.api, &dynamodb.ScanInput{
		TableName:                 aws.String(r.config.TableName),
		FilterExpression:          expr.Filter(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})

	var items []map[string]types.AttributeValue
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		items = append(items, page.Items...)
		if limit > 0 && len(items) >= int(limit) {
			return items[:limit], nil
		}
	}
	return items, nil
}

func isConditionalCheckFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

// isIndexUnavailable reports whether err says the queried index does not
// exist (yet). DynamoDB signals this as a ValidationException naming the
// index, or a ResourceNotFoundException.
func isIndexUnavailable(err error) bool {
	var rnf *types.ResourceNotFoundException
	if errors.As(err, &rnf) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == "ValidationException" {
		return strings.Contains(strings.ToLower(apiErr.ErrorMessage()), "index")
	}
	return false
}
