// Package provision creates the table and configures the media bucket the
// service runs against. Both steps are idempotent.
package provision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"
)

// TableAPI is the subset of the DynamoDB client used to create the table.
type TableAPI interface {
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// BucketAPI is the subset of the S3 client used to configure the bucket.
type BucketAPI interface {
	PutBucketCors(ctx context.Context, params *s3.PutBucketCorsInput, optFns ...func(*s3.Options)) (*s3.PutBucketCorsOutput, error)
	PutBucketPolicy(ctx context.Context, params *s3.PutBucketPolicyInput, optFns ...func(*s3.Options)) (*s3.PutBucketPolicyOutput, error)
}

// TableSpec names the table and its two indexes.
type TableSpec struct {
	Name     string
	GSI1Name string
	GSI2Name string
}

// Provisioner runs the setup steps.
type Provisioner struct {
	tables  TableAPI
	buckets BucketAPI
	logger  *zap.Logger
	maxWait time.Duration
}

// New creates a Provisioner.
func New(tables TableAPI, buckets BucketAPI, logger *zap.Logger) *Provisioner {
	return &Provisioner{tables: tables, buckets: buckets, logger: logger, maxWait: 5 * time.Minute}
}

// CreateTableInput builds the table definition: PK/SK keys, GSI1 and GSI2
// with string hash and range keys, all attributes projected, on-demand
// billing.
func CreateTableInput(spec TableSpec) *dynamodb.CreateTableInput {
	attr := func(name string) ddbtypes.AttributeDefinition {
		return ddbtypes.AttributeDefinition{AttributeName: aws.String(name), AttributeType: ddbtypes.ScalarAttributeTypeS}
	}
	key := func(hash, rng string) []ddbtypes.KeySchemaElement {
		return []ddbtypes.KeySchemaElement{
			{AttributeName: aws.String(hash), KeyType: ddbtypes.KeyTypeHash},
			{AttributeName: aws.String(rng), KeyType: ddbtypes.KeyTypeRange},
		}
	}
	gsi := func(name, hash, rng string) ddbtypes.GlobalSecondaryIndex {
		return ddbtypes.GlobalSecondaryIndex{
			IndexName:  aws.String(name),
			KeySchema:  key(hash, rng),
			Projection: &ddbtypes.Projection{ProjectionType: ddbtypes.ProjectionTypeAll},
		}
	}

	return &dynamodb.CreateTableInput{
		TableName: aws.String(spec.Name),
		AttributeDefinitions: []ddbtypes.AttributeDefinition{
			attr("PK"), attr("SK"),
			attr("GSI1PK"), attr("GSI1SK"),
			attr("GSI2PK"), attr("GSI2SK"),
		},
		KeySchema: key("PK", "SK"),
		GlobalSecondaryIndexes: []ddbtypes.GlobalSecondaryIndex{
			gsi(spec.GSI1Name, "GSI1PK", "GSI1SK"),
			gsi(spec.GSI2Name, "GSI2PK", "GSI2SK"),
		},
		BillingMode: ddbtypes.BillingModePayPerRequest,
	}
}

// EnsureTable creates the table unless it exists and waits until it is
// ACTIVE.
func (p *Provisioner) EnsureTable(ctx context.Context, spec TableSpec) error {
	_, err := p.tables.CreateTable(ctx, CreateTableInput(spec))
	var inUse *ddbtypes.ResourceInUseException
	switch {
	case err == nil:
		p.logger.Info("Table creation started", zap.String("table", spec.Name))
	case errors.As(err, &inUse):
		p.logger.Info("Table already exists", zap.String("table", spec.Name))
	default:
		return fmt.Errorf("failed to create table %s: %w", spec.Name, err)
	}

	waiter := dynamodb.NewTableExistsWaiter(p.tables)
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(spec.Name)}, p.maxWait); err != nil {
		return fmt.Errorf("table %s did not become active: %w", spec.Name, err)
	}
	p.logger.Info("Table is active", zap.String("table", spec.Name))
	return nil
}

// CORSInput allows browsers on origins to upload to and read from bucket.
func CORSInput(bucket string, origins []string) *s3.PutBucketCorsInput {
	return &s3.PutBucketCorsInput{
		Bucket: aws.String(bucket),
		CORSConfiguration: &s3types.CORSConfiguration{
			CORSRules: []s3types.CORSRule{{
				AllowedHeaders: []string{"*"},
				AllowedMethods: []string{"GET", "PUT", "POST", "DELETE", "HEAD"},
				AllowedOrigins: origins,
				ExposeHeaders:  []string{"ETag"},
				MaxAgeSeconds:  aws.Int32(3000),
			}},
		},
	}
}

type policyStatement struct {
	Sid       string `json:"Sid"`
	Effect    string `json:"Effect"`
	Principal string `json:"Principal"`
	Action    string `json:"Action"`
	Resource  string `json:"Resource"`
}

type policyDocument struct {
	Version   string            `json:"Version"`
	Statement []policyStatement `json:"Statement"`
}

// PublicReadPolicy grants anonymous GetObject on the uploads/ prefix only.
func PublicReadPolicy(bucket string) (string, error) {
	doc := policyDocument{
		Version: "2012-10-17",
		Statement: []policyStatement{{
			Sid:       "AllowPublicRead",
			Effect:    "Allow",
			Principal: "*",
			Action:    "s3:GetObject",
			Resource:  fmt.Sprintf("arn:aws:s3:::%s/uploads/*", bucket),
		}},
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ConfigureBucket applies the CORS rules and the public read policy.
func (p *Provisioner) ConfigureBucket(ctx context.Context, bucket string, origins []string) error {
	if _, err := p.buckets.PutBucketCors(ctx, CORSInput(bucket, origins)); err != nil {
		return fmt.Errorf("failed to configure CORS on %s: %w", bucket, err)
	}
	p.logger.Info("Bucket CORS configured", zap.String("bucket", bucket), zap.Strings("origins", origins))

	policy, err := PublicReadPolicy(bucket)
	if err != nil {
		return err
	}
	if _, err := p.buckets.PutBucketPolicy(ctx, &s3.PutBucketPolicyInput{
		Bucket: aws.String(bucket),
		Policy: aws.String(policy),
	}); err != nil {
		return fmt.Errorf("failed to set policy on %s: %w", bucket, err)
	}
	p.logger.Info("Bucket policy applied", zap.String("bucket", bucket))
	return nil
}
