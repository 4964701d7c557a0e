// Package di assembles the engine and its infrastructure from
// configuration.
package di

import (
	"context"
	"fmt"

	"taskhub-backend/application/ports"
	"taskhub-backend/application/services"
	"taskhub-backend/infrastructure/config"
	"taskhub-backend/infrastructure/messaging/eventbridge"
	dynamostore "taskhub-backend/infrastructure/persistence/dynamodb"
	"taskhub-backend/infrastructure/persistence/memory"
	"taskhub-backend/pkg/observability"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awscloudwatch "github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awseventbridge "github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"go.uber.org/zap"
)

// ProvideLogger creates a new logger instance
func ProvideLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.Environment == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

// ProvideAWSConfig creates AWS configuration
func ProvideAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	return awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.AWSRegion),
	)
}

// ProvideDynamoDBClient creates a DynamoDB client
func ProvideDynamoDBClient(awsCfg aws.Config) *awsdynamodb.Client {
	return awsdynamodb.NewFromConfig(awsCfg)
}

// ProvideEventBridgeClient creates an EventBridge client
func ProvideEventBridgeClient(awsCfg aws.Config) *awseventbridge.Client {
	return awseventbridge.NewFromConfig(awsCfg)
}

// ProvideCloudWatchClient creates a CloudWatch client
func ProvideCloudWatchClient(awsCfg aws.Config) *awscloudwatch.Client {
	return awscloudwatch.NewFromConfig(awsCfg)
}

// ProvideStore selects the document store adapter from configuration
func ProvideStore(cfg *config.Config, client *awsdynamodb.Client, logger *zap.Logger) (ports.Store, error) {
	switch cfg.StoreBackend {
	case "memory":
		return memory.NewStore(), nil
	case "dynamodb":
		return dynamostore.NewStore(client, cfg.DynamoDBTable, logger), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

// ProvideMetrics creates the metrics recorder. Metrics are a no-op
// when disabled.
func ProvideMetrics(cfg *config.Config, client *awscloudwatch.Client, logger *zap.Logger) *observability.Metrics {
	if !cfg.EnableMetrics {
		return observability.NewMetrics(cfg.MetricsNamespace, nil, logger)
	}
	return observability.NewMetrics(cfg.MetricsNamespace, client, logger)
}

// ProvideTracer creates the tracer
func ProvideTracer(cfg *config.Config) *observability.Tracer {
	return observability.NewTracer(cfg.ServiceName, cfg.EnableTracing)
}

// ProvideEngine assembles the engine facade
func ProvideEngine(store ports.Store, logger *zap.Logger, metrics *observability.Metrics, tracer *observability.Tracer) *services.Engine {
	return services.NewEngine(store, logger, metrics, tracer)
}

// ProvidePublisher creates the change-batch publisher
func ProvidePublisher(client *awseventbridge.Client, cfg *config.Config, logger *zap.Logger) *eventbridge.Publisher {
	return eventbridge.NewPublisher(client, cfg.EventBusName, cfg.RelaySource, logger)
}
