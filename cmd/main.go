package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"school-approval-service/internal/cache"
	"school-approval-service/internal/config"
	"school-approval-service/internal/events"
	"school-approval-service/internal/handlers"
	"school-approval-service/internal/jobs"
	"school-approval-service/internal/middleware"
	"school-approval-service/internal/models"
	"school-approval-service/internal/repository"
	"school-approval-service/internal/seeders"
	"school-approval-service/internal/services"
)

// @title School Approval Workflows API
// @version 1.0.0
// @description Multi-role approval and delegation workflow service for school administration

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /api/v1

// @securityDefinitions.bearer BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)
	logger.SetLevel(logrus.InfoLevel)

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		logger.Info("No .env file found, using system environment variables")
	}

	// Initialize configuration
	cfg := config.Load()

	// Initialize database
	db, err := config.InitDB(cfg)
	if err != nil {
		logger.Fatal("Failed to connect to database:", err)
	}

	// Run database migrations
	logger.Info("Running database migrations...")
	if err := db.AutoMigrate(
		&models.Department{},
		&models.Staff{},
		&models.ApprovalRequest{},
		&models.ApprovalHistoryEntry{},
		&models.DelegationNotice{},
		&models.DelegationHistoryEntry{},
		&models.DelegationNotification{},
		&models.WorkflowAuditLog{},
	); err != nil {
		logger.Fatalf("Failed to run migrations: %v", err)
	}
	logger.Info("Database migrations completed")

	if cfg.SeedDemoData {
		if err := seeders.SeedDirectory(db); err != nil {
			logger.Warnf("Failed to seed demo directory: %v", err)
		}
	}

	// Initialize repositories
	approvalRepo := repository.NewApprovalRepository(db)
	delegationRepo := repository.NewDelegationRepository(db)
	staffRepo := repository.NewStaffRepository(db)

	// Directory lookups go through the Redis scope cache; without a
	// Redis address it degrades to direct database reads.
	directory := cache.NewScopeCache(cfg.RedisAddr, "", 0, 5*time.Minute, staffRepo)

	// Initialize event publisher (optional - service works without NATS)
	var publisher *events.Publisher
	if cfg.NATSURL != "" {
		publisher, err = events.NewPublisher(cfg.NATSURL, "school-approval-service", logger)
		if err != nil {
			logger.Warnf("Failed to initialize event publisher: %v. Events will not be published.", err)
			publisher = nil
		} else {
			logger.Info("Event publisher initialized")
		}
	} else {
		logger.Info("NATS_URL not configured, event publishing disabled")
	}

	// Initialize services
	approvalService := services.NewApprovalService(approvalRepo, delegationRepo, directory, publisher)
	delegationService := services.NewDelegationService(delegationRepo, directory, publisher)

	// Initialize handlers
	approvalHandler := handlers.NewApprovalHandler(approvalService, logger)
	delegationHandler := handlers.NewDelegationHandler(delegationService, logger)
	healthHandler := handlers.NewHealthHandler(db)

	// Start delegation expiry sweep
	expirySweep := jobs.NewExpirySweep(delegationRepo, publisher, logger, cfg.SweepInterval)
	jobCtx, jobCancel := context.WithCancel(context.Background())
	go expirySweep.Start(jobCtx)

	// Initialize Gin router
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.CORS())

	// Health check endpoints (no auth required)
	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)

	// Protected API routes
	api := router.Group("/api/v1")
	api.Use(middleware.Auth(cfg.JWTSecret))

	// Approval request endpoints
	{
		api.POST("/approvals", approvalHandler.CreateRequest)
		api.GET("/approvals", approvalHandler.ListRequests)
		api.GET("/approvals/:id", approvalHandler.GetRequest)
		api.GET("/approvals/:id/history", approvalHandler.GetHistory)
		api.PUT("/approvals/:id/approve", approvalHandler.ApproveRequest)
		api.PUT("/approvals/:id/reject", approvalHandler.RejectRequest)
	}

	// Delegation notice endpoints
	{
		api.POST("/delegations", delegationHandler.CreateNotice)
		api.GET("/delegations", delegationHandler.ListNotices)
		api.GET("/delegations/pending", delegationHandler.ListPendingNotices)
		api.GET("/delegations/notifications", delegationHandler.ListNotifications)
		api.PUT("/delegations/notifications/:noticeId/:notificationId/read", delegationHandler.MarkNotificationRead)
		api.GET("/delegations/:id", delegationHandler.GetNotice)
		api.PUT("/delegations/:id/submit", delegationHandler.SubmitNotice)
		api.PUT("/delegations/:id/approve", delegationHandler.ApproveNotice)
		api.PUT("/delegations/:id/reject", delegationHandler.RejectNotice)
		api.PUT("/delegations/:id/revoke", delegationHandler.RevokeNotice)
	}

	// Swagger documentation
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Setup graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Infof("School approval service starting on port %s", cfg.Port)
		if err := router.Run(":" + cfg.Port); err != nil {
			logger.Fatal("Failed to start server:", err)
		}
	}()

	// Wait for interrupt signal
	<-quit
	logger.Info("Shutting down server...")

	jobCancel()
	expirySweep.Stop()

	if publisher != nil {
		publisher.Close()
	}

	logger.Info("Server shutdown complete")
}
