package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/campus-course-api/api/swagger"
	"github.com/noah-isme/campus-course-api/internal/handler"
	"github.com/noah-isme/campus-course-api/internal/middleware"
	"github.com/noah-isme/campus-course-api/internal/models"
	"github.com/noah-isme/campus-course-api/internal/repository"
	"github.com/noah-isme/campus-course-api/internal/service"
	"github.com/noah-isme/campus-course-api/pkg/cache"
	"github.com/noah-isme/campus-course-api/pkg/config"
	"github.com/noah-isme/campus-course-api/pkg/database"
	"github.com/noah-isme/campus-course-api/pkg/export"
	"github.com/noah-isme/campus-course-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/campus-course-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/campus-course-api/pkg/middleware/requestid"
)

// @title Campus Course API
// @version 1.0.0
// @description Course registration and coursework tracking backend
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	metricsSvc := service.NewMetricsService()

	var cacheRepo service.CacheRepository
	if cfg.Catalog.CacheEnabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, catalog cache disabled", "error", err)
		} else {
			repo := repository.NewCacheRepository(redisClient, logr)
			defer repo.Close() //nolint:errcheck
			cacheRepo = repo
		}
	}
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Catalog.CacheTTL, logr, cacheRepo != nil)

	userRepo := repository.NewUserRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	announcementRepo := repository.NewAnnouncementRepository(db)

	guard := service.NewAuthzGuard(enrollmentRepo)

	authSvc := service.NewAuthService(userRepo, nil, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})
	userSvc := service.NewUserService(userRepo, nil, logr)
	courseSvc := service.NewCourseService(courseRepo, userRepo, guard, cacheSvc, nil, logr)
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, courseRepo, userRepo, guard, cacheSvc, export.NewCSVExporter(), export.NewPDFExporter(), nil, logr)
	assignmentSvc := service.NewAssignmentService(assignmentRepo, submissionRepo, courseRepo, guard, nil, logr)
	announcementSvc := service.NewAnnouncementService(announcementRepo, courseRepo, guard, nil, logr)

	authHandler := handler.NewAuthHandler(authSvc)
	userHandler := handler.NewUserHandler(userSvc)
	courseHandler := handler.NewCourseHandler(courseSvc)
	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentSvc)
	assignmentHandler := handler.NewAssignmentHandler(assignmentSvc)
	announcementHandler := handler.NewAnnouncementHandler(announcementSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	api.POST("/auth/login", authHandler.Login)
	api.GET("/courses", courseHandler.Search)
	api.GET("/courses/:id", courseHandler.Get)
	api.GET("/courses/code/:code", courseHandler.GetByCode)

	authed := api.Group("")
	authed.Use(middleware.JWT(authSvc))

	authed.GET("/auth/me", authHandler.Me)

	authed.POST("/courses",
		middleware.RequireRoles(models.RoleAdmin, models.RoleInstructor), courseHandler.Create)
	authed.PUT("/courses/:id",
		middleware.RequireRoles(models.RoleAdmin, models.RoleInstructor, models.RoleTA), courseHandler.Update)
	authed.DELETE("/courses/:id",
		middleware.RequireRoles(models.RoleAdmin, models.RoleInstructor), courseHandler.Delete)

	authed.POST("/courses/:id/enrollments",
		middleware.RequireRoles(models.RoleAdmin, models.RoleStudent), enrollmentHandler.Enroll)
	authed.DELETE("/courses/:id/enrollments/:studentId",
		middleware.RequireRoles(models.RoleAdmin, models.RoleStudent), enrollmentHandler.Drop)
	authed.GET("/courses/:id/roster",
		middleware.RequireRoles(models.RoleAdmin, models.RoleInstructor, models.RoleTA), enrollmentHandler.Roster)
	authed.GET("/courses/:id/roster/count",
		middleware.RequireRoles(models.RoleAdmin, models.RoleInstructor, models.RoleTA), enrollmentHandler.RosterCount)
	authed.GET("/courses/:id/roster/export",
		middleware.RequireRoles(models.RoleAdmin, models.RoleInstructor, models.RoleTA), enrollmentHandler.ExportRoster)
	authed.GET("/students/:id/enrollments", enrollmentHandler.StudentEnrollments)

	authed.POST("/courses/:id/assignments",
		middleware.RequireRoles(models.RoleAdmin, models.RoleInstructor, models.RoleTA), assignmentHandler.Create)
	authed.GET("/courses/:id/assignments", assignmentHandler.List)
	authed.POST("/assignments/:id/submissions",
		middleware.RequireRoles(models.RoleStudent), assignmentHandler.Submit)
	authed.GET("/assignments/:id/submissions",
		middleware.RequireRoles(models.RoleAdmin, models.RoleInstructor, models.RoleTA), assignmentHandler.ListSubmissions)
	authed.PUT("/assignments/:id/submissions/:studentId/grade",
		middleware.RequireRoles(models.RoleAdmin, models.RoleInstructor, models.RoleTA), assignmentHandler.Grade)
	authed.GET("/assignments/:id/status", assignmentHandler.Status)

	authed.POST("/courses/:id/announcements",
		middleware.RequireRoles(models.RoleAdmin, models.RoleInstructor, models.RoleTA), announcementHandler.Post)
	authed.GET("/courses/:id/announcements", announcementHandler.List)

	authed.GET("/users", userHandler.List)
	authed.GET("/users/:id", userHandler.Get)
	authed.POST("/users", middleware.RequireRoles(models.RoleAdmin), userHandler.Create)

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
