package di

import (
	"context"

	"taskhub-backend/application/ports"
	"taskhub-backend/application/services"
	"taskhub-backend/infrastructure/config"
	"taskhub-backend/infrastructure/messaging/eventbridge"
	"taskhub-backend/pkg/observability"

	"go.uber.org/zap"
)

// Container holds all application dependencies
type Container struct {
	Config    *config.Config
	Logger    *zap.Logger
	Store     ports.Store
	Engine    *services.Engine
	Publisher *eventbridge.Publisher
	Metrics   *observability.Metrics
	Tracer    *observability.Tracer
}

// NewContainer wires the full dependency graph by hand, mirroring the
// provider set used by the wire injector.
func NewContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	logger, err := ProvideLogger(cfg)
	if err != nil {
		return nil, err
	}

	awsCfg, err := ProvideAWSConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	dynamoClient := ProvideDynamoDBClient(awsCfg)
	eventClient := ProvideEventBridgeClient(awsCfg)
	cloudwatchClient := ProvideCloudWatchClient(awsCfg)

	store, err := ProvideStore(cfg, dynamoClient, logger)
	if err != nil {
		return nil, err
	}

	metrics := ProvideMetrics(cfg, cloudwatchClient, logger)
	tracer := ProvideTracer(cfg)

	return &Container{
		Config:    cfg,
		Logger:    logger,
		Store:     store,
		Engine:    ProvideEngine(store, logger, metrics, tracer),
		Publisher: ProvidePublisher(eventClient, cfg, logger),
		Metrics:   metrics,
		Tracer:    tracer,
	}, nil
}
