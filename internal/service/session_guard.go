package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"splitshifts/internal/domain"
	"splitshifts/internal/metrics"
	"splitshifts/internal/repository"
)

// SessionGuard vuelve a comprobar en cada request que el usuario de la sesión
// siga existiendo y activo. Si no, revoca sus sesiones. También rechaza los
// tokens emitidos antes del último cambio de contraseña.
type SessionGuard struct {
	logger  *zap.Logger
	users   repository.UserRepository
	revoker SessionRevoker
	metrics metrics.Recorder
}

func NewSessionGuard(logger *zap.Logger, users repository.UserRepository, revoker SessionRevoker, rec metrics.Recorder) *SessionGuard {
	return &SessionGuard{
		logger:  defaultLogger(logger),
		users:   users,
		revoker: revoker,
		metrics: defaultRecorder(rec),
	}
}

// Check recibe el iat del token presentado; un valor cero omite la comparación
// con el cambio de contraseña.
func (g *SessionGuard) Check(ctx context.Context, userID string, issuedAt time.Time) (domain.User, error) {
	if userID == "" {
		return domain.User{}, ErrSessionRevoked
	}
	user, err := g.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			g.revoke(ctx, userID, "user_missing")
			return domain.User{}, ErrSessionRevoked
		}
		return domain.User{}, fmt.Errorf("lookup session user: %w", err)
	}
	if !user.IsActive {
		g.revoke(ctx, userID, "user_inactive")
		return domain.User{}, ErrSessionRevoked
	}
	if user.IssuedBeforePasswordChange(issuedAt) {
		g.logger.Info("session predates password change", zap.String("user_id", userID))
		return domain.User{}, ErrSessionRevoked
	}
	return user, nil
}

func (g *SessionGuard) revoke(ctx context.Context, userID, reason string) {
	g.logger.Warn("session denied", zap.String("user_id", userID), zap.String("reason", reason))
	if g.revoker == nil {
		return
	}
	n, err := g.revoker.RevokeUser(ctx, userID)
	if err != nil {
		g.logger.Warn("revoke sessions failed", zap.String("user_id", userID), zap.Error(err))
		return
	}
	g.metrics.RecordSessionsRevoked(reason, n)
}
