package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"splitshifts/internal/config"
	"splitshifts/internal/db"
	"splitshifts/internal/domain"
	"splitshifts/internal/email"
	apihttp "splitshifts/internal/http"
	"splitshifts/internal/metrics"
	"splitshifts/internal/repository"
	"splitshifts/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := newLogger(cfg)
	defer logger.Sync()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer pool.Close()

	if cfg.MigrateOnStart {
		if err := db.Migrate(ctx, pool); err != nil {
			logger.Fatal("db migrate", zap.Error(err))
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.NewCollector(registry)

	userRepo := repository.NewPgUserRepository(pool)
	sessionRepo := repository.NewPgSessionRepository(pool)
	verifyTokens, err := repository.NewPgTokenRepository(pool, domain.TokenPurposeVerification)
	if err != nil {
		logger.Fatal("verification token repo", zap.Error(err))
	}
	resetTokens, err := repository.NewPgTokenRepository(pool, domain.TokenPurposeReset)
	if err != nil {
		logger.Fatal("reset token repo", zap.Error(err))
	}

	emailSender := email.NewDisabledSender("email sender not configured")
	if cfg.SMTPHost != "" {
		sender, err := email.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom, cfg.SMTPFromName, cfg.SMTPUseTLS)
		if err != nil {
			logger.Warn("smtp sender init failed", zap.Error(err))
		} else {
			emailSender = sender
		}
	} else if cfg.Production() {
		logger.Warn("smtp not configured in production, emails will fail")
	}

	issuancePolicy := service.LimitPolicy{Window: cfg.IssuanceLimitWindow, Max: cfg.IssuanceLimitMax}
	loginPolicy := service.LimitPolicy{Window: cfg.LoginLimitWindow, Max: cfg.LoginLimitMax}
	limiters := service.NewMemoryLimiters(issuancePolicy, loginPolicy)
	tokenStore := service.NewPgRefreshTokenStore(sessionRepo)
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer redisClient.Close()
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Ping(ctxPing).Err(); err != nil {
			logger.Warn("redis ping failed, using in-process limiters and postgres sessions", zap.Error(err))
		} else {
			limiters = service.NewRedisLimiters(redisClient, issuancePolicy, loginPolicy)
			tokenStore = service.NewRedisRefreshTokenStore(redisClient)
		}
		cancel()
	}

	jwtSvc := service.NewJWTServiceWithStore(
		cfg.JWTSecret,
		time.Duration(cfg.JWTAccessTTLMinutes)*time.Minute,
		time.Duration(cfg.JWTRefreshTTLMinutes)*time.Minute,
		tokenStore,
	)
	if cfg.JWTSecretGenerated {
		logger.Warn("JWT_SECRET not set, using a random per-process secret; sessions end on restart")
	}

	links, err := service.NewLinkBuilder(cfg.AppBaseURL, cfg.Production())
	if err != nil {
		logger.Fatal("link builder", zap.Error(err))
	}
	hasher := service.NewBcryptHasher(cfg.BcryptCost)
	totpEngine := service.NewOTPEngine()
	guard := service.NewSessionGuard(logger, userRepo, jwtSvc, recorder)

	verifySvc := service.NewEmailVerificationService(logger, userRepo, verifyTokens, emailSender, links, service.FlowConfig{
		TTL:        cfg.VerificationTokenTTL,
		Production: cfg.Production(),
		Limiter:    limiters.Verification,
		Metrics:    recorder,
	})
	resetSvc := service.NewPasswordResetService(logger, userRepo, resetTokens, hasher, jwtSvc, emailSender, links, service.FlowConfig{
		TTL:        cfg.ResetTokenTTL,
		Production: cfg.Production(),
		Limiter:    limiters.Reset,
		Metrics:    recorder,
	})
	userSvc := service.NewUserService(logger, userRepo, hasher, verifySvc, jwtSvc, recorder)
	authSvc := service.NewAuthService(logger, userRepo, hasher, totpEngine, jwtSvc, guard, limiters.Login, recorder)
	twoFactorSvc := service.NewTwoFactorService(logger, userRepo, totpEngine, cfg.TOTPIssuer, cfg.TOTPClearSecretOnDisable, recorder)

	rateLimiter := apihttp.NewIPRateLimiter(cfg.HTTPRatePerMinute, cfg.HTTPRateBurst, logger, recorder)
	defer rateLimiter.Stop()

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := apihttp.NewRouter(logger, apihttp.RouterDeps{
		Auth:        apihttp.NewAuthHandler(logger, userSvc, verifySvc, resetSvc, authSvc),
		Account:     apihttp.NewAccountHandler(logger, userSvc, twoFactorSvc, jwtSvc),
		JWT:         jwtSvc,
		Guard:       guard,
		RateLimiter: rateLimiter,
		Metrics:     metrics.Handler(registry),
		Health: func(c *gin.Context) error {
			return db.Ping(c.Request.Context(), pool)
		},
	})

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("server shutdown", zap.Error(err))
		}
	}()

	logger.Info("starting server", zap.String("port", cfg.HTTPPort), zap.String("env", cfg.AppEnv))

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server error", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger(cfg *config.Config) *zap.Logger {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.Production() {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	return logger
}
