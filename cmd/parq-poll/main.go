// Package main is the Lambda entry point for GET /poll-parquet-status.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/raphaelgruber/parq/internal/config"
	"github.com/raphaelgruber/parq/internal/jobstore"
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

	sdkConfig, err := awsconfig.LoadDefaultConfig(context.Background())
	if err != nil {
		logger.Error("load aws config", "error", err)
		os.Exit(1)
	}

	store := jobstore.New(dynamodb.NewFromConfig(sdkConfig), cfg.TableName, logger)
	lambda.Start(server.PollHandler(store, logger))
}
