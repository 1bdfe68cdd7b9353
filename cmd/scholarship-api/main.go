package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/scholarship-api/api/swagger"
	"github.com/noah-isme/scholarship-api/internal/handler"
	"github.com/noah-isme/scholarship-api/internal/middleware"
	"github.com/noah-isme/scholarship-api/internal/repository"
	"github.com/noah-isme/scholarship-api/internal/repository/memory"
	"github.com/noah-isme/scholarship-api/internal/service"
	"github.com/noah-isme/scholarship-api/pkg/cache"
	"github.com/noah-isme/scholarship-api/pkg/config"
	"github.com/noah-isme/scholarship-api/pkg/database"
	"github.com/noah-isme/scholarship-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/scholarship-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/scholarship-api/pkg/middleware/requestid"
	"github.com/noah-isme/scholarship-api/pkg/ratelimit"
)

// @title Scholarship Allocation API
// @version 1.0.0
// @description Scholarship application review, allocation ledger and interview scheduling
// @BasePath /
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.JWT.Secret == "" {
		logr.Fatal("JWT_SECRET is required")
	}
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	checks := map[string]handler.ReadinessCheck{}
	store, closeStore, err := openStore(ctx, cfg, logr, checks)
	if err != nil {
		logr.Fatal("failed to open store", zap.Error(err))
	}
	defer closeStore()

	metrics := service.NewMetricsService()

	var cacheRepo service.CacheRepository
	if cfg.Redis.Enabled {
		client, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, caching disabled", zap.Error(err))
		} else {
			defer client.Close() //nolint:errcheck
			cacheRepo = repository.NewCacheRepository(client, "scholarship", logr)
			checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
		}
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Stats.CacheTTL, logr, cacheRepo != nil)

	validate := validator.New()
	scorer := service.NewPriorityScorer()
	ledger := service.NewAllocationLedger(store, metrics, logr)
	machine := service.NewApplicationStateMachine(store, ledger, scorer, metrics, logr)
	applications := service.NewApplicationService(store, machine, ledger, scorer, cacheSvc, validate, logr)
	offerings := service.NewOfferingService(store, ledger, cacheSvc, validate, logr)
	interviews := service.NewInterviewScheduler(store, machine, metrics, validate, logr)
	stats := service.NewStatsService(store, cacheSvc, cfg.Stats.CacheTTL, cfg.Stats.ReviewSLA, logr)
	processor := service.NewBulkActionProcessor(machine, cacheSvc, metrics, cfg.Bulk.MaxBatchSize, logr)
	bulkJobs, bulkQueue := service.NewBulkJobService(processor, cacheSvc, service.BulkJobConfig{
		Workers:    cfg.Bulk.Workers,
		MaxRetries: cfg.Bulk.Retries,
		TTL:        cfg.Bulk.JobTTL,
	}, logr)
	bulkQueue.Start(ctx)
	defer bulkQueue.Stop()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	handler.Register(r, cfg.APIPrefix, handler.Routes{
		Auth:         middleware.JWT(service.NewTokenVerifier(cfg.JWT.Secret, cfg.JWT.Issuer)),
		BulkThrottle: middleware.RateLimit(ratelimit.New(cfg.RateLimit.RPS, cfg.RateLimit.Burst, 0)),
		Applications: handler.NewApplicationHandler(applications),
		Stats:        handler.NewStatsHandler(stats),
		Bulk:         handler.NewBulkHandler(processor, bulkJobs),
		Offerings:    handler.NewOfferingHandler(offerings),
		Interviews:   handler.NewInterviewHandler(interviews),
		Metrics:      handler.NewMetricsHandler(metrics, checks),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env), zap.String("storage", cfg.Storage.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Error("server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}

func openStore(ctx context.Context, cfg *config.Config, logr *zap.Logger, checks map[string]handler.ReadinessCheck) (repository.Store, func(), error) {
	switch cfg.Storage.Driver {
	case config.StorageDriverMemory:
		logr.Warn("using in-memory store, data is lost on restart")
		return memory.NewStore(), func() {}, nil
	case config.StorageDriverPostgres, "":
		db, err := database.NewPostgres(cfg.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		if cfg.Database.AutoMigrate {
			if err := database.Migrate(ctx, db, logr); err != nil {
				_ = db.Close()
				return nil, nil, fmt.Errorf("migrate: %w", err)
			}
		}
		checks["postgres"] = db.PingContext
		return repository.NewPostgresStore(db), func() { _ = db.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}
