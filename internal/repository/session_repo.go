package repository

import (
	"context"
	"time"

	"splitshifts/internal/domain"
)

// SessionRepository guarda las sesiones de refresh para poder revocarlas.
type SessionRepository interface {
	Create(ctx context.Context, session domain.Session) error
	Exists(ctx context.Context, id string, now time.Time) (bool, error)
	Delete(ctx context.Context, id string) error
	DeleteByUser(ctx context.Context, userID string) (int64, error)
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

type PgSessionRepository struct {
	pool Querier
}

func NewPgSessionRepository(pool Querier) *PgSessionRepository {
	return &PgSessionRepository{pool: pool}
}

func (r *PgSessionRepository) Create(ctx context.Context, session domain.Session) error {
	const query = `
		INSERT INTO refresh_sessions (id, user_id, expires_at, created_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := r.pool.Exec(ctx, query,
		session.ID,
		session.UserID,
		session.ExpiresAt,
		session.CreatedAt,
	)
	return err
}

func (r *PgSessionRepository) Exists(ctx context.Context, id string, now time.Time) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1 FROM refresh_sessions WHERE id = $1 AND expires_at > $2
		)
	`
	var exists bool
	if err := r.pool.QueryRow(ctx, query, id, now).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *PgSessionRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM refresh_sessions WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, id)
	return err
}

func (r *PgSessionRepository) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	const query = `DELETE FROM refresh_sessions WHERE user_id = $1`
	tag, err := r.pool.Exec(ctx, query, userID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *PgSessionRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	const query = `DELETE FROM refresh_sessions WHERE expires_at <= $1`
	tag, err := r.pool.Exec(ctx, query, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
