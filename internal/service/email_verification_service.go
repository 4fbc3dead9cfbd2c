package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"splitshifts/internal/domain"
	"splitshifts/internal/email"
	"splitshifts/internal/metrics"
	"splitshifts/internal/repository"
)

const DefaultVerificationTTL = 24 * time.Hour

// EmailVerificationService lleva una cuenta de no verificada a verificada
// mediante un token enviado por correo.
type EmailVerificationService struct {
	logger  *zap.Logger
	users   repository.UserRepository
	tokens  repository.TokenRepository
	issuer  *tokenIssuer
	limiter AttemptLimiter
	metrics metrics.Recorder
	now     func() time.Time
}

func NewEmailVerificationService(
	logger *zap.Logger,
	users repository.UserRepository,
	tokens repository.TokenRepository,
	sender email.Sender,
	links *LinkBuilder,
	cfg FlowConfig,
) *EmailVerificationService {
	logger = defaultLogger(logger)
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultVerificationTTL
	}
	rec := defaultRecorder(cfg.Metrics)
	s := &EmailVerificationService{
		logger:  logger,
		users:   users,
		tokens:  tokens,
		limiter: defaultLimiter(cfg.Limiter),
		metrics: rec,
		now:     time.Now,
	}
	s.issuer = &tokenIssuer{
		logger:     logger,
		tokens:     tokens,
		sender:     sender,
		link:       links.VerificationLink,
		message:    email.VerificationMessage,
		ttl:        cfg.TTL,
		production: cfg.Production,
		metrics:    rec,
		now:        func() time.Time { return s.now() },
	}
	return s
}

// SendVerification emite y envía un token de verificación. Un email
// desconocido o limitado devuelve nil igual que un envío exitoso.
func (s *EmailVerificationService) SendVerification(ctx context.Context, emailAddr string) error {
	if _, ok := SessionFromContext(ctx); ok {
		return ErrAlreadyAuthenticated
	}
	emailAddr = normalizeEmail(emailAddr)
	if emailAddr == "" {
		return newFieldError(map[string]string{"email": msgEmailInvalid})
	}
	if !s.limiter.Allow(emailAddr) {
		s.metrics.RecordRateLimited("verification")
		s.logger.Info("verification request rate limited", zap.String("email", maskEmail(emailAddr)))
		return nil
	}

	user, err := s.users.GetByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			s.logger.Debug("verification requested for unknown email", zap.String("email", maskEmail(emailAddr)))
			return nil
		}
		return fmt.Errorf("lookup user: %w", err)
	}
	if user.EmailVerified {
		return ErrAlreadyVerified
	}
	if !user.IsActive {
		s.logger.Info("verification requested for inactive account", zap.String("user_id", user.ID))
		return nil
	}
	return s.issuer.issue(ctx, user)
}

// Verify canjea el token y marca el email como verificado. Devuelve el email
// verificado.
func (s *EmailVerificationService) Verify(ctx context.Context, token string) (string, error) {
	token = strings.TrimSpace(token)
	if !IsValidTokenFormat(token) {
		s.metrics.RecordTokenRejected(string(domain.TokenPurposeVerification))
		return "", errVerificationTokenMalformed
	}
	if _, ok := SessionFromContext(ctx); ok {
		return "", ErrAlreadyAuthenticated
	}

	now := s.now().UTC()
	rec, err := s.tokens.FindByToken(ctx, token, now)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			s.metrics.RecordTokenRejected(string(domain.TokenPurposeVerification))
			return "", errVerificationTokenInvalid
		}
		return "", fmt.Errorf("find verification token: %w", err)
	}
	if rec.EmailVerified {
		if err := s.tokens.DeleteByToken(ctx, token); err != nil {
			s.logger.Warn("delete satisfied verification token failed", zap.Error(err))
		}
		return "", errEmailAlreadyVerified
	}

	if _, err := s.tokens.Consume(ctx, token, now); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			s.metrics.RecordTokenRejected(string(domain.TokenPurposeVerification))
			return "", errVerificationTokenInvalid
		}
		return "", fmt.Errorf("consume verification token: %w", err)
	}

	verified := true
	if err := s.users.Update(ctx, rec.UserID, domain.UserPatch{
		EmailVerified:   &verified,
		EmailVerifiedAt: &now,
	}); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", errVerificationTokenInvalid
		}
		return "", fmt.Errorf("mark email verified: %w", err)
	}

	s.metrics.RecordTokenRedeemed(string(domain.TokenPurposeVerification))
	s.logger.Info("email verified", zap.String("user_id", rec.UserID))
	return rec.Email, nil
}
