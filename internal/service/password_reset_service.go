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

const DefaultResetTTL = time.Hour

// SessionRevoker destruye todas las sesiones de un usuario.
type SessionRevoker interface {
	RevokeUser(ctx context.Context, userID string) (int, error)
}

type ResetPasswordInput struct {
	Token           string `json:"token"`
	Password        string `json:"password" validate:"required,password"`
	ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=Password"`
}

// PasswordResetService emite y canjea tokens de restablecimiento.
type PasswordResetService struct {
	logger   *zap.Logger
	users    repository.UserRepository
	tokens   repository.TokenRepository
	hasher   PasswordHasher
	sessions SessionRevoker
	issuer   *tokenIssuer
	limiter  AttemptLimiter
	metrics  metrics.Recorder
	now      func() time.Time
}

func NewPasswordResetService(
	logger *zap.Logger,
	users repository.UserRepository,
	tokens repository.TokenRepository,
	hasher PasswordHasher,
	sessions SessionRevoker,
	sender email.Sender,
	links *LinkBuilder,
	cfg FlowConfig,
) *PasswordResetService {
	logger = defaultLogger(logger)
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultResetTTL
	}
	rec := defaultRecorder(cfg.Metrics)
	s := &PasswordResetService{
		logger:   logger,
		users:    users,
		tokens:   tokens,
		hasher:   hasher,
		sessions: sessions,
		limiter:  defaultLimiter(cfg.Limiter),
		metrics:  rec,
		now:      time.Now,
	}
	s.issuer = &tokenIssuer{
		logger:     logger,
		tokens:     tokens,
		sender:     sender,
		link:       links.ResetLink,
		message:    email.ResetMessage,
		ttl:        cfg.TTL,
		production: cfg.Production,
		metrics:    rec,
		now:        func() time.Time { return s.now() },
	}
	return s
}

// RequestReset nunca revela si el email existe.
func (s *PasswordResetService) RequestReset(ctx context.Context, emailAddr string) error {
	if _, ok := SessionFromContext(ctx); ok {
		return ErrAlreadyAuthenticated
	}
	emailAddr = normalizeEmail(emailAddr)
	if emailAddr == "" {
		return newFieldError(map[string]string{"email": msgEmailInvalid})
	}
	if !s.limiter.Allow(emailAddr) {
		s.metrics.RecordRateLimited("reset")
		s.logger.Info("reset request rate limited", zap.String("email", maskEmail(emailAddr)))
		return nil
	}

	user, err := s.users.GetByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			s.logger.Debug("reset requested for unknown email", zap.String("email", maskEmail(emailAddr)))
			return nil
		}
		return fmt.Errorf("lookup user: %w", err)
	}
	if !user.IsActive {
		s.logger.Info("reset requested for inactive account", zap.String("user_id", user.ID))
		return nil
	}
	return s.issuer.issue(ctx, user)
}

// ValidateToken indica si el token existe y sigue vigente. No modifica nada.
func (s *PasswordResetService) ValidateToken(ctx context.Context, token string) (bool, error) {
	token = strings.TrimSpace(token)
	if !IsValidTokenFormat(token) {
		return false, nil
	}
	rec, err := s.tokens.FindByToken(ctx, token, s.now().UTC())
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("find reset token: %w", err)
	}
	return rec.IsActive, nil
}

// CompleteReset valida la nueva contraseña antes de tocar el store, consume el
// token de forma atómica y revoca todas las sesiones del usuario.
func (s *PasswordResetService) CompleteReset(ctx context.Context, input ResetPasswordInput) error {
	if err := validateInput(input); err != nil {
		return err
	}
	if _, ok := SessionFromContext(ctx); ok {
		return ErrAlreadyAuthenticated
	}
	token := strings.TrimSpace(input.Token)
	if !IsValidTokenFormat(token) {
		s.metrics.RecordTokenRejected(string(domain.TokenPurposeReset))
		return errResetTokenInvalid
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	rec, err := s.tokens.Consume(ctx, token, s.now().UTC())
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			s.metrics.RecordTokenRejected(string(domain.TokenPurposeReset))
			return errResetTokenInvalid
		}
		return fmt.Errorf("consume reset token: %w", err)
	}
	if !rec.IsActive {
		s.metrics.RecordTokenRejected(string(domain.TokenPurposeReset))
		s.logger.Info("reset rejected for inactive account", zap.String("user_id", rec.UserID))
		return errResetTokenInvalid
	}
	changedAt := s.now().UTC()
	if err := s.users.Update(ctx, rec.UserID, domain.UserPatch{PasswordHash: &hash, PasswordChangedAt: &changedAt}); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return errResetTokenInvalid
		}
		return fmt.Errorf("update password: %w", err)
	}
	s.metrics.RecordTokenRedeemed(string(domain.TokenPurposeReset))

	if s.sessions != nil {
		n, err := s.sessions.RevokeUser(ctx, rec.UserID)
		if err != nil {
			s.logger.Warn("revoke sessions after reset failed", zap.String("user_id", rec.UserID), zap.Error(err))
		}
		s.metrics.RecordSessionsRevoked("password_reset", n)
	}
	s.logger.Info("password reset completed", zap.String("user_id", rec.UserID))
	return nil
}
