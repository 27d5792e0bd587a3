package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	_ "github.com/noah-isme/scholar-admissions-api/api/swagger"
	"github.com/noah-isme/scholar-admissions-api/internal/admissions"
	"github.com/noah-isme/scholar-admissions-api/internal/handler"
	"github.com/noah-isme/scholar-admissions-api/internal/models"
	"github.com/noah-isme/scholar-admissions-api/internal/repository"
	"github.com/noah-isme/scholar-admissions-api/internal/service"
	"github.com/noah-isme/scholar-admissions-api/pkg/cache"
	"github.com/noah-isme/scholar-admissions-api/pkg/config"
	"github.com/noah-isme/scholar-admissions-api/pkg/database"
	"github.com/noah-isme/scholar-admissions-api/pkg/jobs"
	"github.com/noah-isme/scholar-admissions-api/pkg/logger"
	"github.com/noah-isme/scholar-admissions-api/pkg/storage"
)

// @title Scholar Admissions API
// @version 1.0.0
// @description Department review, examination and result publication workflow for research scholar admissions.
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

const shutdownTimeout = 15 * time.Second

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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	redisClient := connectRedis(cfg, logr)
	if redisClient != nil {
		defer redisClient.Close() //nolint:errcheck
	}

	app, err := buildApp(ctx, cfg, logr, db, redisClient)
	if err != nil {
		logr.Fatal("failed to build application", zap.Error(err))
	}
	defer app.shutdown()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           app.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}

// connectRedis returns nil when caching is disabled or Redis is unreachable; working sets
// are then computed on every request.
func connectRedis(cfg *config.Config, logr *zap.Logger) *redis.Client {
	if !cfg.Cache.Enabled {
		return nil
	}
	client, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, working set cache disabled", zap.Error(err))
		return nil
	}
	return client
}

type application struct {
	router   *gin.Engine
	shutdown func()
}

func buildApp(ctx context.Context, cfg *config.Config, logr *zap.Logger, db *sqlx.DB, redisClient *redis.Client) (*application, error) {
	validate := validator.New()
	metrics := service.NewMetricsService()

	applications := repository.NewScholarRepository(db, models.TableApplications)
	examinations := repository.NewScholarRepository(db, models.TableExaminations)
	users := repository.NewUserRepository(db)
	exportJobs := repository.NewExportJobRepository(db)

	var cacheRepo service.CacheRepository
	if redisClient != nil {
		cacheRepo = repository.NewCacheRepository(redisClient, logr)
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Cache.TTL, logr, cfg.Cache.Enabled && cacheRepo != nil)

	events := service.NewWorkflowEvents(logr)
	matcher := admissions.NewMatcher(
		admissions.WithInstitutionFallback(cfg.Workflow.InstitutionFallback),
		admissions.WithMatcherLogger(logr),
	)

	scholars := service.NewScholarService(applications, examinations, matcher, validate, logr,
		service.WithScholarCache(cacheSvc),
		service.WithScholarMetrics(metrics),
		service.WithScholarEvents(events),
		service.WithQualifyThreshold(cfg.Workflow.QualifyThreshold),
	)
	events.Subscribe("cache-invalidation", scholars.CacheInvalidationSubscriber())
	events.Subscribe("audit", service.AuditSubscriber(users))
	events.Subscribe("metrics", service.MetricsSubscriber(metrics))

	workflowOpts := []service.WorkflowOption{
		service.WithWorkingSets(scholars),
		service.WithWorkflowEvents(events),
		service.WithWorkflowMetrics(metrics),
		service.WithBulkConcurrency(cfg.Workflow.BulkConcurrency),
	}
	department := service.NewDepartmentWorkflowService(applications, logr, workflowOpts...)
	examination := service.NewExaminationService(examinations, logr, workflowOpts...)
	imports := service.NewImportService(applications, examinations, examination, validate, events, logr, cfg.Imports.MaxRows)

	auth := service.NewAuthService(users, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})

	var (
		exportSvc *service.ExportJobService
		queue     *jobs.Queue
	)
	if cfg.Exports.Enabled {
		var err error
		exportSvc, queue, err = buildExports(ctx, cfg, logr, examinations, matcher, exportJobs, validate)
		if err != nil {
			return nil, err
		}
	}

	checks := map[string]handler.Pinger{"postgres": db}
	if redisClient != nil {
		checks["redis"] = handler.PingerFunc(func(ctx context.Context) error { return redisClient.Ping(ctx).Err() })
	}

	router := newRouter(cfg, logr, routes{
		auth:        handler.NewAuthHandler(auth),
		scholars:    handler.NewScholarHandler(scholars, imports),
		department:  handler.NewDepartmentHandler(department),
		examination: handler.NewExaminationHandler(examination),
		events:      handler.NewEventsHandler(events),
		metrics:     handler.NewMetricsHandler(metrics, checks),
		exports:     exportHandler(exportSvc),
	}, auth, metrics, users)

	return &application{
		router: router,
		shutdown: func() {
			if queue != nil {
				queue.Stop()
			}
			events.Close()
		},
	}, nil
}

func buildExports(ctx context.Context, cfg *config.Config, logr *zap.Logger, examinations *repository.ScholarRepository, matcher *admissions.Matcher, repo *repository.ExportJobRepository, validate *validator.Validate) (*service.ExportJobService, *jobs.Queue, error) {
	store, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		return nil, nil, fmt.Errorf("export storage: %w", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
	exporter := service.NewExportService(examinations, matcher, store, signer, service.ExportConfig{
		APIPrefix:        cfg.APIPrefix,
		ResultTTL:        cfg.Exports.SignedURLTTL,
		QualifyThreshold: cfg.Workflow.QualifyThreshold,
	}, logr, nil, nil)

	retries := cfg.Exports.WorkerRetries
	worker := service.NewExportWorker(repo, exporter, retries, logr)

	var jobSvc *service.ExportJobService
	queue := jobs.NewQueue("result-exports", worker.Handle, jobs.QueueConfig{
		Workers:    cfg.Exports.WorkerConcurrency,
		MaxRetries: retries,
		Logger:     logr,
		OnExhausted: func(job jobs.Job, cause error) {
			jobSvc.MarkExhausted(job, cause)
		},
	})
	jobSvc = service.NewExportJobService(repo, queue, exporter, validate, logr, service.ExportJobConfig{
		ResultTTL:       cfg.Exports.SignedURLTTL,
		CleanupInterval: cfg.Exports.CleanupInterval,
	})

	queue.Start(ctx)
	if n := jobSvc.RecoverPendingJobs(ctx); n > 0 {
		logr.Info("re-enqueued pending exports", zap.Int("count", n))
	}
	jobSvc.StartCleanup(ctx)
	return jobSvc, queue, nil
}

func exportHandler(svc *service.ExportJobService) *handler.ExportHandler {
	if svc == nil {
		return nil
	}
	return handler.NewExportHandler(svc)
}
