package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"splitshifts/internal/domain"
	"splitshifts/internal/metrics"
	"splitshifts/internal/repository"
)

const DefaultTOTPIssuer = "SplitShifts App"

// TwoFactorService gestiona el enrolamiento TOTP del usuario de la sesión.
type TwoFactorService struct {
	logger         *zap.Logger
	users          repository.UserRepository
	totp           TOTPEngine
	issuer         string
	clearOnDisable bool
	metrics        metrics.Recorder
}

func NewTwoFactorService(
	logger *zap.Logger,
	users repository.UserRepository,
	engine TOTPEngine,
	issuer string,
	clearOnDisable bool,
	rec metrics.Recorder,
) *TwoFactorService {
	if issuer == "" {
		issuer = DefaultTOTPIssuer
	}
	return &TwoFactorService{
		logger:         defaultLogger(logger),
		users:          users,
		totp:           engine,
		issuer:         issuer,
		clearOnDisable: clearOnDisable,
		metrics:        defaultRecorder(rec),
	}
}

func (s *TwoFactorService) currentUser(ctx context.Context) (domain.User, error) {
	session, ok := SessionFromContext(ctx)
	if !ok {
		return domain.User{}, ErrUnauthorized
	}
	user, err := s.users.GetByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, ErrSessionRevoked
		}
		return domain.User{}, fmt.Errorf("lookup user: %w", err)
	}
	return user, nil
}

// BeginEnrollment reutiliza el secreto existente o genera uno nuevo, y
// devuelve solo la URI otpauth. Llamadas repetidas devuelven la misma URI.
func (s *TwoFactorService) BeginEnrollment(ctx context.Context) (string, error) {
	user, err := s.currentUser(ctx)
	if err != nil {
		return "", err
	}
	secret := user.TwoFactorSecret
	if secret == "" {
		secret, err = s.totp.GenerateSecret()
		if err != nil {
			return "", fmt.Errorf("generate totp secret: %w", err)
		}
		if err := s.users.Update(ctx, user.ID, domain.UserPatch{TwoFactorSecret: &secret}); err != nil {
			return "", fmt.Errorf("store totp secret: %w", err)
		}
		s.metrics.RecordTwoFactor("secret_issued")
		s.logger.Info("totp secret issued", zap.String("user_id", user.ID))
	}
	uri, err := s.totp.ProvisioningURI(user.Email, s.issuer, secret)
	if err != nil {
		return "", fmt.Errorf("build provisioning uri: %w", err)
	}
	return uri, nil
}

func (s *TwoFactorService) ConfirmEnrollment(ctx context.Context, code string) error {
	user, err := s.currentUser(ctx)
	if err != nil {
		return err
	}
	if user.TwoFactorEnabled {
		return ErrAlreadySatisfied
	}
	if user.TwoFactorSecret == "" {
		return ErrTwoFactorNotStarted
	}
	if !s.totp.VerifyCode(code, user.TwoFactorSecret) {
		s.metrics.RecordTwoFactor("confirm_rejected")
		return ErrIncorrectOneTimeCode
	}
	enabled := true
	if err := s.users.Update(ctx, user.ID, domain.UserPatch{TwoFactorEnabled: &enabled}); err != nil {
		return fmt.Errorf("enable two factor: %w", err)
	}
	s.metrics.RecordTwoFactor("enabled")
	s.logger.Info("two factor enabled", zap.String("user_id", user.ID))
	return nil
}

// DisableEnrollment apaga 2FA; con clearOnDisable también borra el secreto y
// el próximo enrolamiento genera uno nuevo.
func (s *TwoFactorService) DisableEnrollment(ctx context.Context) error {
	user, err := s.currentUser(ctx)
	if err != nil {
		return err
	}
	if !user.TwoFactorEnabled && (user.TwoFactorSecret == "" || !s.clearOnDisable) {
		return nil
	}
	disabled := false
	patch := domain.UserPatch{TwoFactorEnabled: &disabled}
	if s.clearOnDisable {
		cleared := ""
		patch.TwoFactorSecret = &cleared
	}
	if err := s.users.Update(ctx, user.ID, patch); err != nil {
		return fmt.Errorf("disable two factor: %w", err)
	}
	s.metrics.RecordTwoFactor("disabled")
	s.logger.Info("two factor disabled", zap.String("user_id", user.ID), zap.Bool("secret_cleared", s.clearOnDisable))
	return nil
}
