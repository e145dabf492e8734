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

	_ "github.com/Okan-wqm/avinor-sub001/api/swagger"
	"github.com/Okan-wqm/avinor-sub001/internal/handler"
	"github.com/Okan-wqm/avinor-sub001/internal/middleware"
	"github.com/Okan-wqm/avinor-sub001/internal/models"
	"github.com/Okan-wqm/avinor-sub001/internal/repository"
	"github.com/Okan-wqm/avinor-sub001/internal/service"
	"github.com/Okan-wqm/avinor-sub001/pkg/cache"
	"github.com/Okan-wqm/avinor-sub001/pkg/config"
	"github.com/Okan-wqm/avinor-sub001/pkg/database"
	"github.com/Okan-wqm/avinor-sub001/pkg/jobs"
	"github.com/Okan-wqm/avinor-sub001/pkg/logger"
	corsmiddleware "github.com/Okan-wqm/avinor-sub001/pkg/middleware/cors"
	reqidmiddleware "github.com/Okan-wqm/avinor-sub001/pkg/middleware/requestid"
)

// @title Flight Training Progression API
// @version 1.0.0
// @description Curriculum, enrollment and training progression backend for flight schools
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

	var cacheRepo *repository.CacheRepository
	if cfg.Progress.CacheEnabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, progress cache disabled", "error", err)
		} else {
			defer redisClient.Close()
			cacheRepo = repository.NewCacheRepository(redisClient, logr)
		}
	}

	userRepo := repository.NewUserRepository(db)
	programRepo := repository.NewProgramRepository(db)
	lessonRepo := repository.NewLessonRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	completionRepo := repository.NewCompletionRepository(db)
	checkRepo := repository.NewStageCheckRepository(db)

	validate := validator.New()
	metricsSvc := service.NewMetricsService()

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		Secret:             cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "avinor-training-api",
	})
	curriculumSvc := service.NewCurriculumService(programRepo, lessonRepo, validate, logr)

	notifSvc := service.NewNotificationService(jobs.QueueConfig{
		Workers:    cfg.Notifications.Workers,
		BufferSize: cfg.Notifications.BufferSize,
		MaxRetries: cfg.Notifications.MaxRetries,
		RetryDelay: cfg.Notifications.RetryDelay,
		Logger:     logr,
	}, logr, service.LogSink(logr))
	if cfg.Notifications.Enabled {
		notifSvc.Start(context.Background())
		defer notifSvc.Stop()
	}

	var progressSvc *service.ProgressService
	if cacheRepo != nil {
		progressSvc = service.NewProgressService(enrollmentRepo, programRepo, lessonRepo, completionRepo, checkRepo, cacheRepo, cfg.Progress.CacheTTL, metricsSvc, logr)
	} else {
		progressSvc = service.NewProgressService(enrollmentRepo, programRepo, lessonRepo, completionRepo, checkRepo, nil, cfg.Progress.CacheTTL, metricsSvc, logr)
	}

	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, programRepo, userRepo, lessonRepo, completionRepo, notifSvc, progressSvc, validate, logr)
	completionSvc := service.NewCompletionService(completionRepo, lessonRepo, enrollmentSvc, curriculumSvc, notifSvc, metricsSvc, validate, logr)
	checkSvc := service.NewStageCheckService(checkRepo, programRepo, lessonRepo, completionRepo, enrollmentSvc, notifSvc, metricsSvc, service.StageCheckDefaults{
		MaxAttempts:     cfg.StageChecks.DefaultMaxAttempts,
		MinPassingGrade: cfg.StageChecks.DefaultMinPassingGrade,
	}, validate, logr)
	recordSvc := service.NewRecordService(enrollmentRepo, programRepo, userRepo, lessonRepo, completionRepo, cfg.Records.Organisation, logr)

	authHandler := handler.NewAuthHandler(authSvc)
	programHandler := handler.NewProgramHandler(curriculumSvc)
	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentSvc)
	completionHandler := handler.NewCompletionHandler(completionSvc)
	checkHandler := handler.NewStageCheckHandler(checkSvc)
	progressHandler := handler.NewProgressHandler(progressSvc)
	recordHandler := handler.NewRecordHandler(recordSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	api.POST("/auth/login", authHandler.Login)
	api.POST("/auth/refresh", authHandler.Refresh)

	authed := api.Group("", middleware.JWT(authSvc))
	authed.GET("/auth/profile", authHandler.Profile)
	authed.GET("/users/:id", middleware.RequireRolesOrSelf(models.RoleAdmin, models.RoleInstructor), authHandler.GetUser)

	staff := middleware.RequireRoles(models.RoleAdmin, models.RoleInstructor)
	admin := middleware.RequireRoles(models.RoleAdmin)
	examiners := middleware.RequireRoles(models.RoleAdmin, models.RoleExaminer)
	schedulers := middleware.RequireRoles(models.RoleAdmin, models.RoleInstructor, models.RoleExaminer)

	programs := authed.Group("/programs")
	{
		programs.GET("", programHandler.List)
		programs.GET("/:id", programHandler.Get)
		programs.GET("/:id/graph/audit", programHandler.AuditGraph)
		programs.POST("", admin, programHandler.Create)
		programs.POST("/:id/publish", admin, programHandler.Publish)
		programs.POST("/:id/stages", admin, programHandler.CreateStage)
		programs.POST("/:id/lessons", admin, programHandler.CreateLesson)
	}

	lessons := authed.Group("/lessons")
	{
		lessons.GET("/:id", programHandler.GetLesson)
		lessons.POST("/:id/exercises", admin, programHandler.CreateExercise)
		lessons.POST("/:id/prerequisites", admin, programHandler.AddPrerequisite)
		lessons.DELETE("/:id/prerequisites/:prerequisiteId", admin, programHandler.RemovePrerequisite)
	}

	enrollments := authed.Group("/enrollments")
	{
		enrollments.GET("", enrollmentHandler.List)
		enrollments.GET("/stats", staff, enrollmentHandler.CountByStatus)
		enrollments.GET("/:id", enrollmentHandler.Get)
		enrollments.POST("", staff, enrollmentHandler.Create)
		enrollments.POST("/expire-overdue", admin, enrollmentHandler.ExpireOverdue)
		enrollments.POST("/:id/activate", staff, enrollmentHandler.Activate)
		enrollments.POST("/:id/hold", staff, enrollmentHandler.Hold)
		enrollments.POST("/:id/resume", staff, enrollmentHandler.Resume)
		enrollments.POST("/:id/suspend", admin, enrollmentHandler.Suspend)
		enrollments.POST("/:id/withdraw", staff, enrollmentHandler.Withdraw)
		enrollments.POST("/:id/complete", staff, enrollmentHandler.Complete)
		enrollments.POST("/:id/reconcile", staff, enrollmentHandler.Reconcile)
		enrollments.GET("/:id/hour-requirements", enrollmentHandler.HourRequirements)
		enrollments.GET("/:id/progress", progressHandler.Get)
		enrollments.DELETE("/:id/progress/cache", staff, progressHandler.Invalidate)
		if cfg.Records.Enabled {
			enrollments.GET("/:id/record", staff, recordHandler.Export)
		}
	}

	completions := authed.Group("/completions")
	{
		completions.GET("", completionHandler.List)
		completions.GET("/:id", completionHandler.Get)
		completions.POST("", staff, completionHandler.Create)
		completions.POST("/:id/start", staff, completionHandler.Start)
		completions.PUT("/:id/grades", staff, completionHandler.GradeExercise)
		completions.POST("/:id/complete", staff, completionHandler.Complete)
		completions.POST("/:id/incomplete", staff, completionHandler.MarkIncomplete)
		completions.POST("/:id/cancel", staff, completionHandler.Cancel)
		completions.POST("/:id/no-show", staff, completionHandler.NoShow)
	}

	checks := authed.Group("/stage-checks")
	{
		checks.GET("", checkHandler.List)
		checks.GET("/:id", checkHandler.Get)
		checks.POST("", schedulers, checkHandler.Create)
		checks.POST("/:id/verify-prerequisites", schedulers, checkHandler.VerifyPrerequisites)
		checks.POST("/:id/start", examiners, checkHandler.Start)
		checks.POST("/:id/pass", examiners, checkHandler.Pass)
		checks.POST("/:id/fail", examiners, checkHandler.Fail)
		checks.POST("/:id/defer", schedulers, checkHandler.Defer)
		checks.POST("/:id/reschedule", schedulers, checkHandler.Reschedule)
		checks.POST("/:id/cancel", schedulers, checkHandler.Cancel)
		checks.POST("/:id/recheck", schedulers, checkHandler.CreateRecheck)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logr.Sugar().Infow("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("forced shutdown", "error", err)
	}
}
