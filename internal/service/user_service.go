package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"splitshifts/internal/domain"
	"splitshifts/internal/metrics"
	"splitshifts/internal/repository"
)

// VerificationSender dispara el correo de verificación tras el registro.
type VerificationSender interface {
	SendVerification(ctx context.Context, email string) error
}

// UserService coordina reglas de negocio para usuarios.
type UserService struct {
	logger   *zap.Logger
	users    repository.UserRepository
	hasher   PasswordHasher
	verifier VerificationSender
	sessions SessionRevoker
	metrics  metrics.Recorder
	now      func() time.Time
}

func NewUserService(
	logger *zap.Logger,
	users repository.UserRepository,
	hasher PasswordHasher,
	verifier VerificationSender,
	sessions SessionRevoker,
	rec metrics.Recorder,
) *UserService {
	return &UserService{
		logger:   defaultLogger(logger),
		users:    users,
		hasher:   hasher,
		verifier: verifier,
		sessions: sessions,
		metrics:  defaultRecorder(rec),
		now:      time.Now,
	}
}

type RegisterInput struct {
	FirstName       string `json:"firstName" validate:"required,personname"`
	LastName        string `json:"lastName" validate:"required,personname"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required,password"`
	ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=Password"`
}

type ChangePasswordInput struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	Password        string `json:"password" validate:"required,password"`
	ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=Password"`
}

// Register crea la cuenta sin verificar y envía el correo de verificación.
// Un fallo de envío no hace fallar el registro.
func (s *UserService) Register(ctx context.Context, input RegisterInput) (domain.User, error) {
	if s.users == nil {
		return domain.User{}, errors.New("user service not configured")
	}
	if _, ok := SessionFromContext(ctx); ok {
		return domain.User{}, ErrAlreadyAuthenticated
	}

	input.FirstName = strings.TrimSpace(input.FirstName)
	input.LastName = strings.TrimSpace(input.LastName)
	input.Email = normalizeEmail(input.Email)
	if err := validateInput(input); err != nil {
		return domain.User{}, err
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}

	now := s.now().UTC()
	user := domain.User{
		ID:           uuid.NewString(),
		FirstName:    input.FirstName,
		LastName:     input.LastName,
		Email:        input.Email,
		PasswordHash: hash,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return domain.User{}, newFieldError(map[string]string{"email": msgEmailTaken})
		}
		return domain.User{}, fmt.Errorf("create user: %w", err)
	}
	s.logger.Info("user registered", zap.String("user_id", user.ID))

	if s.verifier != nil {
		if err := s.verifier.SendVerification(ctx, user.Email); err != nil {
			s.logger.Warn("send verification after register failed",
				zap.String("email", maskEmail(user.Email)),
				zap.Error(err),
			)
		}
	}
	return user, nil
}

// ChangePassword exige la contraseña actual y cierra todas las sesiones.
func (s *UserService) ChangePassword(ctx context.Context, input ChangePasswordInput) error {
	session, ok := SessionFromContext(ctx)
	if !ok {
		return ErrUnauthorized
	}
	if err := validateInput(input); err != nil {
		return err
	}

	user, err := s.users.GetByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrSessionRevoked
		}
		return fmt.Errorf("lookup user: %w", err)
	}
	if !s.hasher.Verify(input.CurrentPassword, user.PasswordHash) {
		return errCurrentPasswordIncorrect
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	changedAt := s.now().UTC()
	if err := s.users.Update(ctx, user.ID, domain.UserPatch{PasswordHash: &hash, PasswordChangedAt: &changedAt}); err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	if s.sessions != nil {
		n, err := s.sessions.RevokeUser(ctx, user.ID)
		if err != nil {
			s.logger.Warn("revoke sessions after password change failed", zap.String("user_id", user.ID), zap.Error(err))
		}
		s.metrics.RecordSessionsRevoked("password_change", n)
	}
	s.logger.Info("password changed", zap.String("user_id", user.ID))
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// maskEmail oculta el email en logs: j***@e******.com.
func maskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return "***"
	}
	local, host := email[:at], email[at+1:]
	masked := local[:1] + strings.Repeat("*", max(len(local)-1, 3))
	dot := strings.LastIndex(host, ".")
	if dot <= 0 {
		return masked + "@***"
	}
	name, tld := host[:dot], host[dot:]
	return masked + "@" + name[:1] + strings.Repeat("*", len(name)-1) + tld
}
