package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/shutterdesk-backend/api/controllers"
	"github.com/angelmondragon/shutterdesk-backend/api/routes"
	"github.com/angelmondragon/shutterdesk-backend/internal/galleries"
	"github.com/angelmondragon/shutterdesk-backend/pkg/auth/session"
	"github.com/angelmondragon/shutterdesk-backend/pkg/config"
	"github.com/angelmondragon/shutterdesk-backend/pkg/db"
	"github.com/angelmondragon/shutterdesk-backend/pkg/instance"
	"github.com/angelmondragon/shutterdesk-backend/pkg/logger"
	"github.com/angelmondragon/shutterdesk-backend/pkg/metrics"
	"github.com/angelmondragon/shutterdesk-backend/pkg/migrate"
	"github.com/angelmondragon/shutterdesk-backend/pkg/outbox"
	"github.com/angelmondragon/shutterdesk-backend/pkg/redis"
	"github.com/angelmondragon/shutterdesk-backend/pkg/security"
	"github.com/angelmondragon/shutterdesk-backend/pkg/storage"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	store, err := storage.New(context.Background(), cfg.Storage, cfg.GCP, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap storage", err)
		os.Exit(1)
	}

	revocations, err := session.NewRevocations(redisClient)
	if err != nil {
		logg.Error(context.Background(), "failed to create session store", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	publicBaseURL := cfg.Gallery.PublicBaseURL
	if publicBaseURL == "" {
		publicBaseURL = "http://localhost" + addr
	}
	links := galleries.Links{PublicBaseURL: publicBaseURL, DeliveryPath: cfg.Gallery.DeliveryPath}

	publishMetrics := metrics.NewPublishMetrics(prometheus.DefaultRegisterer)
	hasher := security.NewHasher(cfg.Password)
	galleryRepo := galleries.NewRepository(dbClient.DB())
	orphanRepo := galleries.NewOrphanRepository(dbClient.DB())
	outboxSvc := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	slugs, err := galleries.NewSlugAllocator(
		galleryRepo,
		galleries.NewRedisSlugReserver(redisClient, cfg.Gallery.SlugReservationTTL),
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create slug allocator", err)
		os.Exit(1)
	}

	executor, err := galleries.NewExecutor(store, cfg.Gallery.UploadTimeout, publishMetrics, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create upload executor", err)
		os.Exit(1)
	}

	commit, err := galleries.NewCommitCoordinator(galleries.CommitParams{
		DB:      dbClient,
		Repo:    galleryRepo,
		Outbox:  outboxSvc,
		Store:   store,
		Orphans: orphanRepo,
		Hasher:  hasher,
		Links:   links,
		Metrics: publishMetrics,
		Logger:  logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create commit coordinator", err)
		os.Exit(1)
	}

	publisher, err := galleries.NewPublisher(galleries.PublisherParams{
		Slugs:    slugs,
		Executor: executor,
		Commit:   commit,
		MaxFiles: cfg.Gallery.MaxFiles,
		Metrics:  publishMetrics,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create publisher", err)
		os.Exit(1)
	}

	publicCache := galleries.NewPublicCache(cfg.Gallery.PublicCacheTTL)
	publicCache.Broadcast(redisClient, redisClient.ChannelName("public-gallery"), logg)

	manager, err := galleries.NewManager(galleries.ManagerParams{
		DB:       dbClient,
		Repo:     galleryRepo,
		Outbox:   outboxSvc,
		Store:    store,
		Orphans:  orphanRepo,
		Verifier: hasher,
		Cache:    publicCache,
		Links:    links,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create gallery manager", err)
		os.Exit(1)
	}

	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":            cfg.App.Env,
		"addr":           addr,
		"instance":       instance.GetID(),
		"storage_driver": cfg.Storage.Driver,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.RouterParams{
			Config:    cfg,
			Logger:    logg,
			Redis:     redisClient,
			Sessions:  revocations,
			Publisher: publisher,
			Galleries: manager,
			Public:    manager,
			Readiness: map[string]controllers.Pinger{
				"db":      dbClient,
				"redis":   redisClient,
				"storage": store,
			},
		}),
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := publicCache.Listen(sigCtx); err != nil && !errors.Is(err, context.Canceled) {
			logg.Error(ctx, "public cache listener stopped", err)
		}
	}()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-sigCtx.Done():
		logg.Info(ctx, "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
	}
}
