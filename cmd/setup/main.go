// Command setup provisions the DynamoDB table and configures the media
// bucket. It is safe to run repeatedly.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"go.uber.org/zap"

	"qalam-backend/internal/config"
	"qalam-backend/internal/di"
	"qalam-backend/internal/provision"
)

func main() {
	skipTable := flag.Bool("skip-table", false, "do not create the table")
	skipBucket := flag.Bool("skip-bucket", false, "do not configure the bucket")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	awsCfg, err := di.ProvideAWSConfig(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to load AWS configuration", zap.Error(err))
	}
	p := provision.New(di.ProvideDynamoDBClient(awsCfg, cfg), di.ProvideS3Client(awsCfg, cfg), logger)

	if !*skipTable {
		spec := provision.TableSpec{
			Name:     cfg.Database.TableName,
			GSI1Name: cfg.Database.GSI1Name,
			GSI2Name: cfg.Database.GSI2Name,
		}
		if err := p.EnsureTable(ctx, spec); err != nil {
			logger.Fatal("Table setup failed", zap.Error(err))
		}
	}
	if !*skipBucket {
		if err := p.ConfigureBucket(ctx, cfg.Storage.Bucket, cfg.CORS.AllowedOrigins); err != nil {
			logger.Fatal("Bucket setup failed", zap.Error(err))
		}
	}
	logger.Info("Setup complete")
}
