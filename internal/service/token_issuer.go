package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"splitshifts/internal/domain"
	"splitshifts/internal/email"
	"splitshifts/internal/metrics"
	"splitshifts/internal/repository"
)

// FlowConfig agrupa lo que comparten los flujos de verificación y reset.
type FlowConfig struct {
	TTL        time.Duration
	Production bool
	Limiter    AttemptLimiter
	Metrics    metrics.Recorder
}

type messageBuilder func(to, firstName, link string, ttl time.Duration) (email.Message, error)

// tokenIssuer emite un token de un solo uso, lo persiste y envía el enlace.
type tokenIssuer struct {
	logger     *zap.Logger
	tokens     repository.TokenRepository
	sender     email.Sender
	link       func(token string) string
	message    messageBuilder
	ttl        time.Duration
	production bool
	metrics    metrics.Recorder
	now        func() time.Time
}

func (i *tokenIssuer) purpose() string {
	return string(i.tokens.Purpose())
}

func (i *tokenIssuer) issue(ctx context.Context, user domain.User) error {
	now := i.now().UTC()
	if n, err := i.tokens.DeleteExpired(ctx, now); err != nil {
		i.logger.Warn("delete expired tokens failed", zap.String("purpose", i.purpose()), zap.Error(err))
	} else if n > 0 {
		i.logger.Debug("expired tokens deleted", zap.String("purpose", i.purpose()), zap.Int64("count", n))
	}

	token, err := GenerateToken()
	if err != nil {
		return fmt.Errorf("generate token: %w", err)
	}
	if err := i.tokens.UpsertByUser(ctx, user.ID, token, now.Add(i.ttl)); err != nil {
		return fmt.Errorf("store %s token: %w", i.purpose(), err)
	}
	i.metrics.RecordTokenIssued(i.purpose())

	link := i.link(token)
	msg, err := i.message(user.Email, user.FirstName, link, i.ttl)
	if err != nil {
		return fmt.Errorf("render %s email: %w", i.purpose(), err)
	}
	if err := i.sender.SendMail(ctx, msg); err != nil {
		i.metrics.RecordEmailFailure(i.purpose())
		if i.production {
			i.logger.Error("send email failed",
				zap.String("purpose", i.purpose()),
				zap.String("email", maskEmail(user.Email)),
				zap.Error(err),
			)
			return ErrTransportFailure
		}
		i.logger.Warn("send email failed, link logged instead",
			zap.String("purpose", i.purpose()),
			zap.String("email", maskEmail(user.Email)),
			zap.String("link", link),
			zap.Error(err),
		)
		return nil
	}
	if !i.production {
		i.logger.Info("email sent",
			zap.String("purpose", i.purpose()),
			zap.String("email", maskEmail(user.Email)),
			zap.String("link", link),
		)
	}
	return nil
}

func defaultRecorder(rec metrics.Recorder) metrics.Recorder {
	if rec == nil {
		return metrics.Nop{}
	}
	return rec
}

func defaultLimiter(l AttemptLimiter) AttemptLimiter {
	if l == nil {
		return allowAll{}
	}
	return l
}

func defaultLogger(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}
