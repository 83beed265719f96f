package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/sis-registration-api/api/swagger"
	"github.com/noah-isme/sis-registration-api/internal/handler"
	"github.com/noah-isme/sis-registration-api/internal/middleware"
	"github.com/noah-isme/sis-registration-api/internal/models"
	"github.com/noah-isme/sis-registration-api/internal/repository"
	"github.com/noah-isme/sis-registration-api/internal/service"
	"github.com/noah-isme/sis-registration-api/pkg/cache"
	"github.com/noah-isme/sis-registration-api/pkg/config"
	"github.com/noah-isme/sis-registration-api/pkg/database"
	"github.com/noah-isme/sis-registration-api/pkg/export"
	"github.com/noah-isme/sis-registration-api/pkg/localtime"
	"github.com/noah-isme/sis-registration-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/sis-registration-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sis-registration-api/pkg/middleware/requestid"
)

// @title SIS Registration API
// @version 1.0.0
// @description Student information and enrollment registration service
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
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to redis", "error", err)
	}
	defer redisClient.Close()

	validate := validator.New()
	clock := localtime.System
	metrics := service.NewMetricsService()

	codeRepo := repository.NewCodeRepository(db, clock)
	registrationRepo := repository.NewRegistrationRepository(db, clock)
	logRepo := repository.NewSystemLogRepository(db, clock)
	termRepo := repository.NewTermRepository(db, clock)
	yearLevelRepo := repository.NewYearLevelRepository(db, clock)
	userRepo := repository.NewUserRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	var alerter service.Alerter
	if cfg.Audit.AlertingEnabled {
		alerter = service.NewLogAlerter(logr)
	}
	auditSvc := service.NewAuditService(logRepo, alerter, clock, metrics, logr)
	codeSvc := service.NewCodeService(codeRepo, auditSvc, clock, metrics, service.CodeServiceConfig{
		StandaloneTTL: cfg.Registration.StandaloneCodeTTL,
	}, logr)
	termSvc := service.NewTermService(termRepo, cacheRepo, auditSvc, metrics, cfg.Reference.CacheTTL, validate, logr)
	yearLevelSvc := service.NewYearLevelService(yearLevelRepo, cacheRepo, auditSvc, metrics, cfg.Reference.CacheTTL, validate, logr)
	registrationSvc := service.NewRegistrationService(registrationRepo, termSvc, yearLevelSvc, codeSvc, auditSvc, metrics, clock, service.RegistrationServiceConfig{
		ApplicationCodeTTL: cfg.Registration.ApplicationCodeTTL,
	}, validate, logr)
	authSvc := service.NewAuthService(userRepo, auditSvc, validate, logr, service.AuthConfig{
		TokenSecret: cfg.JWT.Secret,
		TokenExpiry: cfg.JWT.Expiration,
		Issuer:      cfg.JWT.Issuer,
	})

	var exportSvc *service.ExportService
	if cfg.Exports.Enabled {
		exportSvc = service.NewExportService(registrationSvc, auditSvc, auditSvc, clock, logr, export.NewCSVExporter(), export.NewPDFExporter())
	}

	authHandler := handler.NewAuthHandler(authSvc)
	codeHandler := handler.NewCodeHandler(codeSvc)
	registrationHandler := handler.NewRegistrationHandler(registrationSvc, exportSvc)
	logHandler := handler.NewSystemLogHandler(auditSvc, exportSvc)
	termHandler := handler.NewTermHandler(termSvc)
	yearLevelHandler := handler.NewYearLevelHandler(yearLevelSvc)
	metricsHandler := handler.NewMetricsHandler(metrics)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	r.GET("/health", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	// Public intake surface: no authentication, applicants hold only a code.
	api.POST("/registrations", registrationHandler.Submit)
	api.GET("/codes/:code/check", codeHandler.Check)
	api.GET("/terms/active", termHandler.GetActive)
	api.GET("/year-levels", yearLevelHandler.List)

	api.POST("/auth/login", authHandler.Login)

	console := api.Group("")
	console.Use(middleware.JWT(authSvc))
	console.Use(middleware.RequireRoles(models.RoleAdmin, models.RoleRegistrar))
	{
		console.POST("/auth/logout", authHandler.Logout)
		console.GET("/auth/me", authHandler.Me)
		console.POST("/auth/change-password", authHandler.ChangePassword)

		console.GET("/registrations", registrationHandler.List)
		console.GET("/registrations/export", registrationHandler.ExportRoster)
		console.GET("/registrations/:id", registrationHandler.Get)
		console.GET("/registrations/:id/sheet", registrationHandler.ExportSheet)
		console.GET("/registrations/:id/codes", codeHandler.ListByRegistration)
		console.POST("/registrations/:id/approve", registrationHandler.Approve)
		console.POST("/registrations/:id/reject", registrationHandler.Reject)
		console.DELETE("/registrations/:id", registrationHandler.Delete)

		console.POST("/codes", codeHandler.Generate)
		console.GET("/codes", codeHandler.List)

		console.GET("/terms", termHandler.List)
		console.GET("/terms/:id", termHandler.Get)
		console.POST("/terms", termHandler.Create)
		console.PUT("/terms/:id", termHandler.Update)

		console.GET("/year-levels/:id", yearLevelHandler.Get)
		console.POST("/year-levels", yearLevelHandler.Create)
		console.PUT("/year-levels/:id", yearLevelHandler.Update)

		console.GET("/system-logs", logHandler.List)
		console.GET("/system-logs/export", logHandler.Export)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	srv := &http.Server{Addr: addr, Handler: r}
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
