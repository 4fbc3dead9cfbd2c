package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"splitshifts/internal/domain"
	"splitshifts/internal/metrics"
	"splitshifts/internal/repository"
)

// AuthService implementa el login en dos pasos y el ciclo de sesión.
type AuthService struct {
	logger   *zap.Logger
	users    repository.UserRepository
	hasher   PasswordHasher
	totp     TOTPEngine
	sessions *JWTService
	guard    *SessionGuard
	limiter  AttemptLimiter
	metrics  metrics.Recorder
	now      func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

type PreflightResult struct {
	TwoFactorRequired bool `json:"two_factor_required"`
}

type LoginInput struct {
	Email    string
	Password string
	Code     string
}

type LoginResult struct {
	User   domain.User `json:"user"`
	Tokens TokenPair   `json:"tokens"`
}

func NewAuthService(
	logger *zap.Logger,
	users repository.UserRepository,
	hasher PasswordHasher,
	engine TOTPEngine,
	sessions *JWTService,
	guard *SessionGuard,
	limiter AttemptLimiter,
	rec metrics.Recorder,
) *AuthService {
	return &AuthService{
		logger:   defaultLogger(logger),
		users:    users,
		hasher:   hasher,
		totp:     engine,
		sessions: sessions,
		guard:    guard,
		limiter:  defaultLimiter(limiter),
		metrics:  defaultRecorder(rec),
		now:      time.Now,
	}
}

// Preflight valida credenciales sin crear sesión y avisa si hace falta OTP.
// A diferencia de CompleteLogin, sí distingue el email sin verificar. Un
// preflight correcto no vacía el contador de fallos.
func (s *AuthService) Preflight(ctx context.Context, emailAddr, password string) (PreflightResult, error) {
	user, err := s.checkCredentials(ctx, emailAddr, password)
	if err != nil {
		return PreflightResult{}, err
	}
	if !user.EmailVerified {
		s.metrics.RecordLogin("email_not_verified")
		return PreflightResult{}, ErrEmailNotVerified
	}
	return PreflightResult{TwoFactorRequired: user.TwoFactorEnabled}, nil
}

// CompleteLogin revalida todo y crea la sesión. Cualquier fallo de cuenta se
// reporta como ErrIncorrectCredentials; el motivo real solo va al log. Solo
// cuentan para el limiter las credenciales o códigos incorrectos, y un login
// exitoso vacía el contador.
func (s *AuthService) CompleteLogin(ctx context.Context, input LoginInput) (LoginResult, error) {
	user, err := s.checkCredentials(ctx, input.Email, input.Password)
	if err != nil {
		return LoginResult{}, err
	}
	if !user.EmailVerified {
		s.denied(user.Email, "email_not_verified")
		return LoginResult{}, ErrIncorrectCredentials
	}
	if user.TwoFactorEnabled {
		code := strings.TrimSpace(input.Code)
		if code == "" || !s.totp.VerifyCode(code, user.TwoFactorSecret) {
			s.limiter.Allow(user.Email)
			s.metrics.RecordLogin("invalid_otp")
			s.logger.Info("login otp rejected", zap.String("user_id", user.ID))
			return LoginResult{}, ErrIncorrectOneTimeCode
		}
	}

	now := s.now().UTC()
	if err := s.users.Update(ctx, user.ID, domain.UserPatch{LastLogin: &now}); err != nil {
		return LoginResult{}, fmt.Errorf("update last login: %w", err)
	}
	user.LastLogin = &now

	pair, err := s.sessions.GeneratePair(ctx, user)
	if err != nil {
		return LoginResult{}, fmt.Errorf("create session: %w", err)
	}
	s.limiter.Reset(user.Email)
	s.metrics.RecordLogin("success")
	s.logger.Info("login succeeded", zap.String("user_id", user.ID))
	return LoginResult{User: user, Tokens: pair}, nil
}

// Refresh rota el refresh token si el usuario sigue siendo válido.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	claims, err := s.sessions.ParseRefreshToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, ErrJWTInvalid) || errors.Is(err, ErrJWTExpired) {
			return TokenPair{}, ErrSessionRevoked
		}
		return TokenPair{}, err
	}
	user, err := s.guard.Check(ctx, claims.UserID, claims.IssuedAtTime())
	if err != nil {
		return TokenPair{}, err
	}
	pair, err := s.sessions.RotatePair(ctx, claims, user)
	if err != nil {
		if errors.Is(err, ErrJWTInvalid) {
			return TokenPair{}, ErrSessionRevoked
		}
		return TokenPair{}, err
	}
	return pair, nil
}

// Logout destruye la sesión; un token ya inválido no es un error.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	err := s.sessions.RevokeRefresh(ctx, refreshToken)
	if errors.Is(err, ErrJWTInvalid) || errors.Is(err, ErrJWTExpired) {
		return nil
	}
	return err
}

func (s *AuthService) checkCredentials(ctx context.Context, emailAddr, password string) (domain.User, error) {
	emailAddr = normalizeEmail(emailAddr)
	if emailAddr == "" || password == "" {
		return domain.User{}, ErrIncorrectCredentials
	}
	if s.limiter.Blocked(emailAddr) {
		s.metrics.RecordRateLimited("login")
		return domain.User{}, ErrRateLimited
	}

	user, err := s.users.GetByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			s.equalizeTiming(password)
			s.failed(emailAddr, "unknown_email")
			return domain.User{}, ErrIncorrectCredentials
		}
		return domain.User{}, fmt.Errorf("lookup user: %w", err)
	}
	if !s.hasher.Verify(password, user.PasswordHash) {
		s.failed(emailAddr, "wrong_password")
		return domain.User{}, ErrIncorrectCredentials
	}
	if !user.IsActive {
		s.failed(emailAddr, "inactive")
		return domain.User{}, ErrIncorrectCredentials
	}
	return user, nil
}

// failed cuenta el intento contra el limiter de login.
func (s *AuthService) failed(emailAddr, reason string) {
	s.limiter.Allow(emailAddr)
	s.denied(emailAddr, reason)
}

func (s *AuthService) denied(emailAddr, reason string) {
	s.metrics.RecordLogin(reason)
	s.logger.Info("login denied", zap.String("email", maskEmail(emailAddr)), zap.String("reason", reason))
}

// equalizeTiming compara contra un hash descartable para que un email
// desconocido tarde lo mismo que una contraseña incorrecta.
func (s *AuthService) equalizeTiming(password string) {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash("splitshifts-timing-placeholder")
		if err != nil {
			s.logger.Warn("dummy hash failed", zap.Error(err))
			return
		}
		s.dummyHash = hash
	})
	if s.dummyHash != "" {
		_ = s.hasher.Verify(password, s.dummyHash)
	}
}
