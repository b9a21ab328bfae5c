// Package main is the Lambda entry point for POST /parquet-creation.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/raphaelgruber/parq/internal/config"
	"github.com/raphaelgruber/parq/internal/jobstore"
	"github.com/raphaelgruber/parq/internal/queue"
	"github.com/raphaelgruber/parq/internal/server"
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

	store := jobstore.New(dynamodb.NewFromConfig(sdkConfig), cfg.TableName, logger)
	sender := queue.NewSender(sqs.NewFromConfig(sdkConfig), cfg.QueueURL, logger)
	accept := service.NewAcceptService(store, sender, logger)

	lambda.Start(server.CreateHandler(accept, logger))
}
