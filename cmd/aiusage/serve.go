package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SevenTV/AiUsage/auth"
	"github.com/SevenTV/AiUsage/config"
	"github.com/SevenTV/AiUsage/dataloader"
	"github.com/SevenTV/AiUsage/gql"
	"github.com/SevenTV/AiUsage/mongo"
	"github.com/SevenTV/AiUsage/monitoring"
	"github.com/SevenTV/AiUsage/redis"
	"github.com/SevenTV/AiUsage/structures/v3/query"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the GraphQL API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.New(configPath)
		if err != nil {
			return err
		}

		logger, err := newLogger(cfg.Level)
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()
		zap.ReplaceGlobals(logger)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return serve(ctx, cfg, logger)
	},
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	if cfg.Credentials.JWTSecret == "" {
		return errors.New("credentials.jwt_secret is required")
	}

	mongoInst, err := mongo.Setup(ctx, mongo.SetupOptions{
		URI:    cfg.Mongo.URI,
		DB:     cfg.Mongo.DB,
		Direct: cfg.Mongo.Direct,
	})
	if err != nil {
		return err
	}
	defer func() { _ = mongoInst.Close(context.Background()) }()

	if err = mongo.EnsureIndexes(ctx, mongoInst); err != nil {
		logger.Warn("mongo, failed to ensure indexes", zap.Error(err))
	}

	redisInst, err := redis.Setup(ctx, redis.SetupOptions{
		Addr:      cfg.Redis.Addr,
		Username:  cfg.Redis.Username,
		Password:  cfg.Redis.Password,
		Database:  cfg.Redis.Database,
		KeyPrefix: cfg.Redis.KeyPrefix,
	})
	if err != nil {
		return err
	}
	defer func() { _ = redisInst.Close() }()

	q := query.New(mongoInst, redisInst, logger, query.WithUserCacheTTL(cfg.Redis.UserCacheTTL))
	policy := auth.NewPolicy(q, cfg.Auth.RoleCacheTTL, logger)

	schema, reg, err := gql.NewSchema(gql.NewResolver(q, logger), policy)
	if err != nil {
		return err
	}
	if report := reg.CheckAuthorization(); len(report) != 0 {
		logger.Warn("gql, schema exposes types authorized in parent without checks", zap.Any("report", report))
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	loaderOpts := []dataloader.Option{
		dataloader.WithWait(cfg.Loader.Wait),
		dataloader.WithMaxBatch(cfg.Loader.MaxBatch),
		dataloader.WithObserver(monitoring.NewLoaderMetrics(registry)),
		dataloader.WithLogger(logger),
	}

	handler := gql.NewHandler(gql.HandlerOptions{
		Schema:    schema,
		Loaders:   gql.NewLoaderFactory(q.UserFetcher(), loaderOpts...),
		JWTSecret: cfg.Credentials.JWTSecret,
		Metrics:   monitoring.NewRequestMetrics(registry),
		Logger:    logger,
	})

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	handler.Mount(router, cfg.Http.GraphqlPath)
	router.GET("/health", func(c *gin.Context) {
		pingCtx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := mongoInst.Ping(pingCtx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "mongo": err.Error()})
			return
		}
		if err := redisInst.Ping(pingCtx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "redis": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	if cfg.Http.MetricsEnabled {
		metrics := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
		router.GET("/metrics", func(c *gin.Context) {
			metrics.ServeHTTP(c.Writer, c.Request)
		})
	}

	srv := &http.Server{
		Addr:              cfg.Http.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api, listening", zap.String("addr", cfg.Http.Addr), zap.String("path", cfg.Http.GraphqlPath))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err = <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("api, shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}
