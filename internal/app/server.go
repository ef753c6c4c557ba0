// internal/app/server.go
package app

import (
	"context"
	"fmt"
	"log"

	"wakili-service/internal/config"
	"wakili-service/internal/db"
	"wakili-service/internal/gateway"
	billingHandler "wakili-service/internal/handlers/billing"
	webhookHandler "wakili-service/internal/handlers/webhook"
	"wakili-service/internal/middleware"
	"wakili-service/internal/pkg/jwt"
	"wakili-service/internal/repository/postgres"
	"wakili-service/internal/scheduler"
	billingService "wakili-service/internal/service/billing"
	webhookService "wakili-service/internal/service/webhook"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Server struct {
	cfg       config.AppConfig
	engine    *gin.Engine
	logger    *zap.Logger
	scheduler *scheduler.Scheduler
}

func NewServer() *Server {
	cfg := config.Load()
	engine := gin.New()
	return &Server{cfg: cfg, engine: engine}
}

func (s *Server) Start() error {
	ctx := context.Background()

	// ----- Logger -----
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync()
	s.logger = logger

	// ----- PostgreSQL -----
	pool, err := db.ConnectDB(s.cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	// ----- Redis (optional) -----
	redisClient, err := db.NewRedisClient(db.RedisConfig{
		Addr:     s.cfg.RedisAddr,
		Password: s.cfg.RedisPass,
		DB:       0,
		PoolSize: 10,
	})
	if err != nil {
		logger.Warn("redis unavailable, running without dedup cache and sweep lock", zap.Error(err))
		redisClient = nil
	} else {
		log.Println("[REDIS] connected")
	}

	// ----- JWT Verifier -----
	verifier, err := jwt.LoadVerifier(s.cfg.JWT)
	if err != nil {
		return fmt.Errorf("failed to load JWT verifier: %w", err)
	}

	// ----- Gateway Client -----
	gatewayClient := gateway.NewClient(s.cfg.Gateway, logger)

	// ----- Repositories -----
	subscriptionRepo := postgres.NewSubscriptionRepository(pool)
	paymentRepo := postgres.NewPaymentRepository(pool)
	eventRepo := postgres.NewEventRepository(pool)
	planRepo := postgres.NewPlanRepository(pool)
	ownerDirectory := postgres.NewOwnerDirectory(pool)

	// ----- Lifecycle Engine -----
	engine := billingService.NewEngine(
		subscriptionRepo,
		paymentRepo,
		eventRepo,
		planRepo,
		ownerDirectory,
		gatewayClient,
		billingService.DefaultConfig(),
		logger,
	)

	// ----- Webhook Router -----
	webhookRouter := webhookService.NewRouter(engine, []byte(s.cfg.Gateway.WebhookSecret), redisClient, logger)

	// ----- Renewal Scheduler -----
	s.scheduler = scheduler.New(engine, redisClient, s.cfg.SweepHourUTC, logger)
	go s.scheduler.Start(ctx)

	// ----- Handlers -----
	subscriptionHandlerInst := billingHandler.NewSubscriptionHandler(engine)
	planHandlerInst := billingHandler.NewPlanHandler(engine)
	renewalHandlerInst := billingHandler.NewRenewalHandler(s.scheduler)
	gatewayWebhookHandlerInst := webhookHandler.NewGatewayHandler(webhookRouter, logger)

	// ----- Middlewares -----
	authMiddleware := middleware.NewAuthMiddleware(verifier)

	s.engine.Use(
		middleware.RecoveryMiddleware(logger),
		middleware.LoggingMiddleware(logger),
		middleware.CORSMiddleware(),
	)

	// ----- Router -----
	handlers := &Handlers{
		SubscriptionHandler:   subscriptionHandlerInst,
		PlanHandler:           planHandlerInst,
		RenewalHandler:        renewalHandlerInst,
		GatewayWebhookHandler: gatewayWebhookHandlerInst,
		AuthMiddleware:        authMiddleware,
	}
	SetupRouter(s.engine, logger, handlers)

	// ----- Start HTTP -----
	log.Printf("server running on %s", s.cfg.HTTPAddr)
	return s.engine.Run(s.cfg.HTTPAddr)
}

// Stop halts the background scheduler. The HTTP listener dies with the
// process.
func (s *Server) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
