package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/activity-credit-api/api/swagger"
	"github.com/noah-isme/activity-credit-api/internal/face"
	"github.com/noah-isme/activity-credit-api/internal/handler"
	"github.com/noah-isme/activity-credit-api/internal/lifecycle"
	"github.com/noah-isme/activity-credit-api/internal/middleware"
	"github.com/noah-isme/activity-credit-api/internal/models"
	"github.com/noah-isme/activity-credit-api/internal/repository"
	"github.com/noah-isme/activity-credit-api/internal/service"
	"github.com/noah-isme/activity-credit-api/pkg/cache"
	"github.com/noah-isme/activity-credit-api/pkg/config"
	"github.com/noah-isme/activity-credit-api/pkg/database"
	"github.com/noah-isme/activity-credit-api/pkg/jobs"
	"github.com/noah-isme/activity-credit-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/activity-credit-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/activity-credit-api/pkg/middleware/requestid"
	"github.com/noah-isme/activity-credit-api/pkg/storage"
)

// @title Activity Credit API
// @version 0.1.0
// @description Student volunteer activity registration, biometric attendance and feedback service
// @BasePath /api/v1
// @schemes http

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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect database", "error", err)
	}
	defer db.Close()

	var redisClient *redis.Client
	if cfg.Cache.Enabled {
		redisClient, err = cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
			redisClient = nil
		}
	}

	store, err := storage.NewLocalStorage(cfg.Evidence.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init evidence storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Evidence.SignedURLSecret, cfg.Evidence.SignedURLTTL)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	validate := validator.New()
	metricsSvc := service.NewMetricsService()

	var cacheSvc *service.CacheService
	if redisClient != nil {
		cacheRepo := repository.NewCacheRepository(redisClient, logr)
		cacheSvc = service.NewCacheService(cacheRepo, metricsSvc, cfg.Cache.TTL, logr, cfg.Cache.Enabled)
	}

	userRepo := repository.NewUserRepository(db)
	activityRepo := repository.NewActivityRepository(db)
	registrationRepo := repository.NewRegistrationRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	profileRepo := repository.NewFaceProfileRepository(db)
	feedbackRepo := repository.NewFeedbackRepository(db)

	notificationSvc := service.NewNotificationService(logr, cfg.Notifications.Workers, cfg.Notifications.MaxRetries)
	notificationSvc.Start(ctx)
	defer notificationSvc.Stop()

	matcher := face.NewMatcher(face.MatcherConfig{
		ApproveThreshold: cfg.Face.ApproveThreshold,
		ReviewThreshold:  cfg.Face.ReviewThreshold,
		ConfidenceScale:  cfg.Face.ConfidenceScale,
	})
	policy := lifecycle.FeedbackPolicy{Cooldown: cfg.Feedback.Cooldown}

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "activity-credit-api",
	})

	faceProfileSvc := service.NewFaceProfileService(profileRepo, store, cacheSvc, cfg.Face.EnrollMinCount, validate, logr, nil)
	reclaimQueue := jobs.NewQueue("face-sample-reclaim", faceProfileSvc.HandleReclaim, jobs.QueueConfig{
		Workers: 1,
		Logger:  logr,
	})
	reclaimQueue.Start(ctx)
	defer reclaimQueue.Stop()
	faceProfileSvc.AttachReclaimQueue(reclaimQueue)

	activitySvc := service.NewActivityService(activityRepo, profileRepo, cacheSvc, cfg.Face.RegisterMinCount, logr)

	registrationSvc := service.NewRegistrationService(service.RegistrationServiceDeps{
		Registrations: registrationRepo,
		Activities:    activityRepo,
		Ledger:        attendanceRepo,
		Feedbacks:     feedbackRepo,
		Profiles:      profileRepo,
		Notifications: notificationSvc,
		Metrics:       metricsSvc,
		Policy:        policy,
		MinEnrolled:   cfg.Face.RegisterMinCount,
		Logger:        logr,
	})

	attendanceSvc := service.NewAttendanceService(service.AttendanceServiceDeps{
		Registrations: registrationRepo,
		Activities:    activityRepo,
		Ledger:        attendanceRepo,
		Profiles:      profileRepo,
		Feedbacks:     feedbackRepo,
		Storage:       store,
		Matcher:       matcher,
		Notifications: notificationSvc,
		Metrics:       metricsSvc,
		Policy:        policy,
		MinEnrolled:   cfg.Face.EnrollMinCount,
		Validator:     validate,
		Logger:        logr,
	})

	feedbackSvc := service.NewFeedbackService(feedbackRepo, registrationRepo, activityRepo, attendanceRepo, notificationSvc, policy, validate, logr, nil)
	reportSvc := service.NewReportService(registrationRepo, activityRepo, logr)

	authHandler := handler.NewAuthHandler(authSvc)
	activityHandler := handler.NewActivityHandler(activitySvc)
	registrationHandler := handler.NewRegistrationHandler(registrationSvc)
	attendanceHandler := handler.NewAttendanceHandler(attendanceSvc, signer, store, cfg.APIPrefix)
	faceProfileHandler := handler.NewFaceProfileHandler(faceProfileSvc)
	feedbackHandler := handler.NewFeedbackHandler(feedbackSvc)
	reportHandler := handler.NewReportHandler(reportSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		pingCtx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "database": err.Error()})
			return
		}
		if redisClient != nil {
			if err := redisClient.Ping(pingCtx).Err(); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "redis": err.Error()})
				return
			}
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
	api.GET("/evidence/:token", attendanceHandler.Evidence)
	api.GET("/activities", middleware.OptionalJWT(authSvc), activityHandler.List)
	api.GET("/activities/:id", middleware.OptionalJWT(authSvc), activityHandler.Get)

	authed := api.Group("", middleware.JWT(authSvc))
	authed.POST("/auth/logout", authHandler.Logout)
	authed.GET("/auth/me", authHandler.Me)
	authed.GET("/attendance/:id/evidence-link", attendanceHandler.EvidenceLink)

	student := authed.Group("", middleware.RequireRoles(models.RoleStudent))
	student.POST("/activities/:id/registrations", registrationHandler.Register)
	student.DELETE("/activities/:id/registrations", registrationHandler.Cancel)
	student.GET("/registrations", registrationHandler.List)
	student.POST("/activities/:id/attendance", attendanceHandler.Record)
	student.GET("/activities/:id/attendance", attendanceHandler.History)
	student.PUT("/face-profile", faceProfileHandler.Enroll)
	student.GET("/face-profile", faceProfileHandler.Summary)
	student.POST("/registrations/:id/feedback", feedbackHandler.Submit)

	staff := authed.Group("", middleware.RequireRoles(models.RoleTeacher, models.RoleAdmin))
	staff.GET("/attendance/review", attendanceHandler.ReviewQueue)
	staff.PUT("/attendance/review/:id", attendanceHandler.Resolve)
	staff.PUT("/feedback/:id", feedbackHandler.Moderate)
	staff.GET("/activities/:id/roster", reportHandler.Roster)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("server shutdown failed", "error", err)
	}
}
