package ddb

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"

	"qalam-backend/internal/domain"
	appErrors "qalam-backend/pkg/errors"
)

// SaveCascadeJob creates or conditionally replaces a cascade job item.
func (r *Repository) SaveCascadeJob(ctx context.Context, job *domain.CascadeJob) error {
	now := r.now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now

	cond := expression.AttributeNotExists(expression.Name(attrPK))
	if job.Version > 0 {
		cond = expression.Name(attrVersion).Equal(expression.Value(job.Version))
	}

	item := newCascadeItem(job)
	item.Version = job.Version + 1
	if err := r.putItem(ctx, item, cond, "cascade job", job.ID); err != nil {
		return err
	}
	job.Version = item.Version
	return nil
}

// GetCascadeJob returns the job or nil.
func (r *Repository) GetCascadeJob(ctx context.Context, id string) (*domain.CascadeJob, error) {
	var item cascadeItem
	found, err := r.getItem(ctx, cascadeKey(id), true, &item)
	if err != nil || !found {
		return nil, err
	}
	return item.toDomain(), nil
}

// ListPendingCascadeJobs reads the sparse PENDING_CASCADES partition of
// GSI2, oldest first.
func (r *Repository) ListPendingCascadeJobs(ctx context.Context) ([]*domain.CascadeJob, error) {
	items, err := r.queryIndex(ctx, indexQuery{
		index:   r.config.GSI2Name,
		keyAttr: attrGSI2PK,
		value:   pendingCascadesKey,
		forward: true,
	})
	if err != nil {
		return nil, err
	}

	var records []cascadeItem
	if err := attributevalue.UnmarshalListOfMaps(items, &records); err != nil {
		return nil, appErrors.Wrap(err, "failed to unmarshal cascade jobs")
	}
	jobs := make([]*domain.CascadeJob, 0, len(records))
	for _, rec := range records {
		jobs = append(jobs, rec.toDomain())
	}
	return jobs, nil
}
