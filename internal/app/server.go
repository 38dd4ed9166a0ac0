package app

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"gympay/internal/auth"
	"gympay/internal/config"
	"gympay/internal/handler"
	"gympay/internal/processor"
	internalRedis "gympay/internal/redis"
	"gympay/internal/ratelimit"
	"gympay/internal/repository"
	mongorepo "gympay/internal/repository/mongo"
	"gympay/internal/repository/postgres"
	"gympay/internal/service"
)

// shutdownWait bounds how long New Relic may spend flushing on exit.
const shutdownWait = 10 * time.Second

// Server owns the HTTP server and every connection it depends on.
type Server struct {
	HTTP *http.Server

	db          *sql.DB
	redisClient *redis.Client
	mongoClient *mongo.Client
	nrApp       *newrelic.Application
	audit       *service.AuditService
	logger      *zap.Logger
}

// NewServer connects to the backing stores and wires all dependencies.
func NewServer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Server, error) {
	s := &Server{logger: logger}

	// New Relic first so the database driver can be instrumented.
	s.nrApp = NewNewRelic(cfg.NewRelic, logger)

	db, err := NewDatabase(ctx, cfg.Database, s.nrApp)
	if err != nil {
		return nil, err
	}
	s.db = db
	logger.Info("connected to PostgreSQL")

	redisClient, err := NewRedisClient(ctx, cfg.Redis, s.nrApp)
	if err != nil {
		s.Close(context.Background())
		return nil, err
	}
	s.redisClient = redisClient
	logger.Info("connected to Redis")

	var auditRepo repository.AuditRepository = postgres.NewAuditRepository(db)
	if cfg.Audit.Backend == config.AuditBackendMongo {
		mongoClient, err := NewMongoClient(ctx, cfg.Mongo)
		if err != nil {
			s.Close(context.Background())
			return nil, err
		}
		s.mongoClient = mongoClient
		mongoAudit := mongorepo.NewAuditRepository(mongoClient.Database(cfg.Mongo.Database))
		if err := mongoAudit.EnsureIndexes(ctx); err != nil {
			s.Close(context.Background())
			return nil, err
		}
		auditRepo = mongoAudit
		logger.Info("audit log stored in MongoDB")
	}

	handlerDeps, err := s.wire(cfg, auditRepo)
	if err != nil {
		s.Close(context.Background())
		return nil, err
	}

	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}
	router := NewRouter(handlerDeps)

	s.HTTP = &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return s, nil
}

func (s *Server) wire(cfg *config.Config, auditRepo repository.AuditRepository) (RouterDeps, error) {
	logger := s.logger

	// Redis stores.
	eventStore := internalRedis.NewEventStore(s.redisClient)
	cacheStore := internalRedis.NewCacheStore(s.redisClient)

	// Repositories.
	paymentRepo := postgres.NewPaymentRepository(s.db)
	enrollmentRepo := postgres.NewEnrollmentRepository(s.db)

	// Processor. Left nil in mock mode.
	var pp service.Processor
	if cfg.Payments.Enabled {
		pp = processor.NewStripe(processor.Config{
			SecretKey:         cfg.Stripe.SecretKey,
			Timeout:           cfg.Stripe.Timeout,
			MaxNetworkRetries: cfg.Stripe.MaxNetworkRetries,
			RequestsPerSecond: cfg.Stripe.RequestsPerSecond,
			Burst:             cfg.Stripe.Burst,
		}, logger)
	} else {
		logger.Warn("payments disabled, running in mock mode")
	}
	verifier := processor.NewWebhookVerifier(cfg.Stripe.WebhookSecret)

	// Services.
	s.audit = service.NewAuditService(auditRepo, logger, cfg.Audit.Timeout)
	notificationService := service.NewNotificationService(logger)
	enrollmentService := service.NewEnrollmentService(enrollmentRepo, cacheStore, logger)
	receiptService := service.NewReceiptService(paymentRepo, enrollmentService)
	paymentService := service.NewPaymentService(paymentRepo, enrollmentService, pp, receiptService,
		notificationService, s.audit, logger, cfg.Payments.Currency)
	webhookService := service.NewWebhookService(paymentRepo, verifier, eventStore, pp,
		notificationService, s.audit, logger)
	adminService := service.NewAdminService(paymentRepo, enrollmentService, notificationService, s.audit, logger)

	// Rate limiting.
	deps := RouterDeps{
		PaymentHandler: handler.NewPaymentHandler(paymentService, receiptService, logger),
		WebhookHandler: handler.NewWebhookHandler(webhookService, logger),
		AdminHandler:   handler.NewAdminHandler(adminService, logger),
		Authenticator:  auth.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL),
		RedisClient:    s.redisClient,
		NewRelicApp:    s.nrApp,
		Logger:         logger,
	}

	if cfg.RateLimit.Enabled {
		limiter, err := ratelimit.NewRedisService(s.redisClient, cfg.RateLimit.Prefix)
		if err != nil {
			return RouterDeps{}, err
		}
		rules, err := parseRules(cfg.RateLimit)
		if err != nil {
			return RouterDeps{}, err
		}
		deps.Limiter = limiter
		deps.Rules = rules
	}

	return deps, nil
}

func parseRules(cfg config.RateLimitConfig) (RateLimitRules, error) {
	var (
		rules RateLimitRules
		err   error
	)
	if rules.API, err = ratelimit.ParseRule(cfg.API); err != nil {
		return rules, fmt.Errorf("ratelimit.api: %w", err)
	}
	if rules.Webhook, err = ratelimit.ParseRule(cfg.Webhook); err != nil {
		return rules, fmt.Errorf("ratelimit.webhook: %w", err)
	}
	if rules.Admin, err = ratelimit.ParseRule(cfg.Admin); err != nil {
		return rules, fmt.Errorf("ratelimit.admin: %w", err)
	}
	return rules, nil
}

// Close drains pending audit writes and releases every connection.
func (s *Server) Close(ctx context.Context) {
	if s.audit != nil {
		s.audit.Wait()
	}
	if s.mongoClient != nil {
		if err := s.mongoClient.Disconnect(ctx); err != nil {
			s.logger.Warn("mongo disconnect failed", zap.Error(err))
		}
	}
	if s.redisClient != nil {
		_ = s.redisClient.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
	if s.nrApp != nil {
		s.nrApp.Shutdown(shutdownWait)
	}
}
