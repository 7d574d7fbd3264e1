package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/shutterdesk-backend/internal/galleries"
	"github.com/angelmondragon/shutterdesk-backend/internal/galleries/cleanup"
	"github.com/angelmondragon/shutterdesk-backend/pkg/config"
	"github.com/angelmondragon/shutterdesk-backend/pkg/db"
	"github.com/angelmondragon/shutterdesk-backend/pkg/instance"
	"github.com/angelmondragon/shutterdesk-backend/pkg/logger"
	"github.com/angelmondragon/shutterdesk-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/shutterdesk-backend/pkg/pubsub"
	"github.com/angelmondragon/shutterdesk-backend/pkg/redis"
	"github.com/angelmondragon/shutterdesk-backend/pkg/storage"
)

const consumerName = "gallery-cleanup"

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "gallery-cleanup-worker"})

	_ = godotenv.Load()

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	cfg.Service.Kind = "gallery-cleanup-worker"

	logg = logger.New(logger.Options{
		ServiceName: "gallery-cleanup-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer dbClient.Close()

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	requireResource(ctx, logg, "redis", err)
	defer redisClient.Close()

	store, err := storage.New(ctx, cfg.Storage, cfg.GCP, logg)
	requireResource(ctx, logg, "storage", err)

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	requireResource(ctx, logg, "pubsub", err)
	defer pubsubClient.Close()

	requireResource(ctx, logg, "gallery cleanup subscription", pubsubClient.EnsureSubscription(ctx, cfg.PubSub.GalleryCleanupSubscription))

	guard, err := idempotency.NewGuard(redisClient, consumerName, cfg.PubSub.EventDedupeTTL)
	requireResource(ctx, logg, "event guard", err)

	consumer, err := cleanup.NewConsumer(
		store,
		galleries.NewOrphanRepository(dbClient.DB()),
		guard,
		pubsubClient.GalleryCleanupSubscription(),
		logg,
	)
	requireResource(ctx, logg, "gallery cleanup consumer", err)

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"serviceKind":  cfg.Service.Kind,
		"instance":     instance.GetID(),
		"env":          cfg.App.Env,
		"subscription": cfg.PubSub.GalleryCleanupSubscription,
	})
	logg.Info(runCtx, "gallery cleanup worker ready")

	if err := consumer.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(runCtx, "gallery cleanup worker stopped unexpectedly", err)
		os.Exit(1)
	}
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
