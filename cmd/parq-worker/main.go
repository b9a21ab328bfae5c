// Package main is the SQS-triggered conversion worker: it streams the
// source CSV through the pipeline into a Parquet object and resolves the
// job record.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/raphaelgruber/parq/internal/config"
	"github.com/raphaelgruber/parq/internal/jobstore"
	"github.com/raphaelgruber/parq/internal/metrics"
	"github.com/raphaelgruber/parq/internal/objectstore"
	"github.com/raphaelgruber/parq/internal/queue"
	"github.com/raphaelgruber/parq/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	logger, cleanup := config.SetupLogger(cfg)
	defer cleanup()

	ctx := context.Background()
	sdkConfig, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		logger.Error("load aws config", "error", err)
		os.Exit(1)
	}

	s3Client := s3.NewFromConfig(sdkConfig)
	store := jobstore.New(dynamodb.NewFromConfig(sdkConfig), cfg.TableName, logger)
	source := service.NewS3Source(s3Client, cfg.BucketName, cfg.ChunkBytes, logger)
	uploader := objectstore.NewUploader(s3Client, cfg.BucketName, logger)
	converter := service.NewConvertService(store, source, uploader, cfg, logger, metrics.NewCollector())

	lambda.Start(func(ctx context.Context, event events.SQSEvent) error {
		for _, record := range event.Records {
			msg, err := queue.Parse(record.Body)
			if err != nil {
				logger.Error("dropping unparseable job message", "error", err, "message_id", record.MessageId)
				continue
			}
			if err := converter.Run(ctx, msg); err != nil {
				return err
			}
		}
		return nil
	})
}
