package main

import (
	"context"
	"fmt"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	_ "github.com/campus-board/enroll-api/api/swagger"
	"github.com/campus-board/enroll-api/internal/handler"
	"github.com/campus-board/enroll-api/internal/middleware"
	"github.com/campus-board/enroll-api/internal/repository"
	"github.com/campus-board/enroll-api/internal/service"
	"github.com/campus-board/enroll-api/pkg/cache"
	"github.com/campus-board/enroll-api/pkg/config"
	"github.com/campus-board/enroll-api/pkg/database"
	"github.com/campus-board/enroll-api/pkg/jobs"
	"github.com/campus-board/enroll-api/pkg/logger"
	corsmiddleware "github.com/campus-board/enroll-api/pkg/middleware/cors"
	reqidmiddleware "github.com/campus-board/enroll-api/pkg/middleware/requestid"
)

// @title Campus Board Enrollment API
// @version 1.0.0
// @description Course enrollment and grade ledger service
// @BasePath /api/v1
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		// The catalog cache is an optimization, not a dependency.
		logr.Sugar().Warnw("redis unavailable, catalog cache disabled", "error", err)
		redisClient = nil
	} else {
		defer redisClient.Close()
	}

	userRepo := repository.NewUserRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	gradeRepo := repository.NewGradeRepository(db)
	catalogRepo := repository.NewCatalogRepository(db)

	validate := validator.New()
	metrics := service.NewMetricsService()

	authService := service.NewAuthService(userRepo, service.AuthConfig{
		JWTSecret:         cfg.JWT.Secret,
		JWTExpiration:     cfg.JWT.Expiration,
		RefreshExpiration: cfg.JWT.RefreshExpiration,
		Issuer:            cfg.JWT.Issuer,
	}, validate, logr)

	catalogService := service.NewCatalogService(catalogRepo, enrollmentRepo, redisClient, service.CatalogConfig{
		CacheEnabled: cfg.Catalog.CacheEnabled,
		CacheTTL:     cfg.Catalog.CacheTTL,
	}, metrics, validate, logr)

	enrollmentService := service.NewEnrollmentService(enrollmentRepo, service.AdmissionConfig{
		MaxAttempts:  cfg.Admission.MaxAttempts,
		RetryBackoff: cfg.Admission.RetryBackoff,
	}, metrics, validate, logr)

	gradeService := service.NewGradeService(gradeRepo, enrollmentRepo, catalogRepo, validate, logr)
	exportService := service.NewExportService(gradeService, catalogRepo, logr)

	audit := middleware.NewAuditRecorder(userRepo, jobs.QueueConfig{
		Workers:    cfg.Audit.Workers,
		BufferSize: cfg.Audit.BufferSize,
		MaxRetries: cfg.Audit.MaxRetries,
		RetryDelay: cfg.Audit.RetryDelay,
		Logger:     logr,
	}, logr)
	audit.Start(context.Background())
	defer audit.Stop()

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins, cfg.CORS.MaxAge))
	r.Use(middleware.Metrics(metrics))

	handler.RegisterRoutes(r, handler.Handlers{
		Auth:        handler.NewAuthHandler(authService),
		Catalog:     handler.NewCatalogHandler(catalogService),
		Enrollments: handler.NewEnrollmentHandler(enrollmentService),
		Grades:      handler.NewGradeHandler(gradeService, exportService),
	}, handler.Deps{
		Config:    cfg,
		Validator: authService,
		Audit:     audit,
		Metrics:   metrics,
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
