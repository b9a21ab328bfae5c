// Package main is the Lambda entry point for POST /generate-parquet-query.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/raphaelgruber/parq/internal/config"
	"github.com/raphaelgruber/parq/internal/jobstore"
	"github.com/raphaelgruber/parq/internal/llm"
	"github.com/raphaelgruber/parq/internal/metrics"
	"github.com/raphaelgruber/parq/internal/objectstore"
	"github.com/raphaelgruber/parq/internal/queryengine"
	"github.com/raphaelgruber/parq/internal/server"
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

	completer, err := llm.NewCompleter(ctx, cfg)
	if err != nil {
		logger.Error("create completer", "error", err)
		os.Exit(1)
	}

	store := jobstore.New(dynamodb.NewFromConfig(sdkConfig), cfg.TableName, logger)
	fetcher := objectstore.NewFetcher(s3.NewFromConfig(sdkConfig), cfg.BucketName)
	querier := queryengine.NewService(store, fetcher, completer, cfg, logger, metrics.NewCollector())

	lambda.Start(server.QueryHandler(querier, logger))
}
