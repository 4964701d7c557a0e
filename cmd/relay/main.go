// The relay subscribes to a collection's coalesced change batches and
// forwards them to EventBridge for the product's notification fan-out.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"taskhub-backend/application/services"
	"taskhub-backend/infrastructure/config"
	"taskhub-backend/infrastructure/di"

	"go.uber.org/zap"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	container, err := di.NewContainer(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize container: %v", err)
	}
	logger := container.Logger
	defer logger.Sync()

	forward := func(batch services.ChangeBatch) {
		publishCtx, publishCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer publishCancel()
		if err := container.Publisher.PublishChangeBatch(publishCtx, batch); err != nil {
			logger.Error("Failed to forward change batch", zap.Error(err))
		}
	}

	unsubscribe, err := container.Engine.Subscribe(ctx, cfg.RelayCollection,
		services.SubscribeInput{OnEvent: forward},
		services.SubscribeOptions{BufferWindow: time.Duration(cfg.BufferWindowMs) * time.Millisecond},
	)
	if err != nil {
		logger.Fatal("Failed to subscribe", zap.Error(err))
	}

	logger.Info("Relay started",
		zap.String("collection", cfg.RelayCollection),
		zap.String("bus", cfg.EventBusName),
		zap.Int("bufferWindowMs", cfg.BufferWindowMs),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down relay")
	unsubscribe()
}
