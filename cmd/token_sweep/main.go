package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"splitshifts/internal/config"
	"splitshifts/internal/db"
	"splitshifts/internal/domain"
	"splitshifts/internal/repository"
)

type expiredDeleter interface {
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

func main() {
	migrate := flag.Bool("migrate", false, "apply migrations before sweeping")
	timeout := flag.Duration("timeout", time.Minute, "overall timeout")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer pool.Close()

	if *migrate {
		if err := db.Migrate(ctx, pool); err != nil {
			logger.Fatal("db migrate", zap.Error(err))
		}
	}

	targets := map[string]expiredDeleter{
		"sessions": repository.NewPgSessionRepository(pool),
	}
	for _, purpose := range []domain.TokenPurpose{domain.TokenPurposeVerification, domain.TokenPurposeReset} {
		repo, err := repository.NewPgTokenRepository(pool, purpose)
		if err != nil {
			logger.Fatal("token repo", zap.Error(err))
		}
		targets[string(purpose)] = repo
	}

	now := time.Now().UTC()
	var failed bool
	for name, target := range targets {
		n, err := target.DeleteExpired(ctx, now)
		if err != nil {
			failed = true
			logger.Error("sweep failed", zap.String("target", name), zap.Error(err))
			continue
		}
		logger.Info("sweep done", zap.String("target", name), zap.Int64("deleted", n))
	}
	if failed {
		logger.Fatal("sweep finished with errors")
	}
}
