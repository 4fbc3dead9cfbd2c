package repository

import (
	"context"
	"fmt"
	"time"

	"splitshifts/internal/domain"
)

// TokenRepository persiste tokens de un solo uso de un propósito dado.
// Hay a lo sumo un token vivo por usuario.
type TokenRepository interface {
	Purpose() domain.TokenPurpose
	UpsertByUser(ctx context.Context, userID, token string, expiresAt time.Time) error
	FindByToken(ctx context.Context, token string, now time.Time) (domain.TokenRecord, error)
	Consume(ctx context.Context, token string, now time.Time) (domain.TokenRecord, error)
	DeleteByToken(ctx context.Context, token string) error
	DeleteByUser(ctx context.Context, userID string) error
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

type PgTokenRepository struct {
	pool    Querier
	purpose domain.TokenPurpose
	table   string
}

// NewPgTokenRepository elige la tabla según el propósito. La tabla nunca
// proviene de input externo.
func NewPgTokenRepository(pool Querier, purpose domain.TokenPurpose) (*PgTokenRepository, error) {
	var table string
	switch purpose {
	case domain.TokenPurposeVerification:
		table = "email_verification_tokens"
	case domain.TokenPurposeReset:
		table = "password_reset_tokens"
	default:
		return nil, fmt.Errorf("unknown token purpose %q", purpose)
	}
	return &PgTokenRepository{pool: pool, purpose: purpose, table: table}, nil
}

func (r *PgTokenRepository) Purpose() domain.TokenPurpose {
	return r.purpose
}

func (r *PgTokenRepository) UpsertByUser(ctx context.Context, userID, token string, expiresAt time.Time) error {
	query := `
		INSERT INTO ` + r.table + ` (user_id, token, token_expiration, created_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (user_id) DO UPDATE
		SET token = EXCLUDED.token,
			token_expiration = EXCLUDED.token_expiration,
			created_at = EXCLUDED.created_at
	`
	_, err := r.pool.Exec(ctx, query, userID, token, expiresAt)
	return err
}

// FindByToken solo devuelve tokens vigentes, con los datos del dueño.
func (r *PgTokenRepository) FindByToken(ctx context.Context, token string, now time.Time) (domain.TokenRecord, error) {
	query := `
		SELECT t.user_id, t.token, t.token_expiration, t.created_at,
			u.email, u.first_name, u.email_verified, u.is_active
		FROM ` + r.table + ` t
		JOIN users u ON u.id = t.user_id
		WHERE t.token = $1 AND t.token_expiration > $2
	`
	var rec domain.TokenRecord
	err := r.pool.QueryRow(ctx, query, token, now).Scan(
		&rec.UserID,
		&rec.Token,
		&rec.ExpiresAt,
		&rec.CreatedAt,
		&rec.Email,
		&rec.FirstName,
		&rec.EmailVerified,
		&rec.IsActive,
	)
	if err != nil {
		return domain.TokenRecord{}, err
	}
	return rec, nil
}

// Consume borra el token si sigue vigente y lo devuelve con los datos del
// dueño. Dos llamadas concurrentes con el mismo token: solo una obtiene la fila.
func (r *PgTokenRepository) Consume(ctx context.Context, token string, now time.Time) (domain.TokenRecord, error) {
	query := `
		DELETE FROM ` + r.table + ` t
		USING users u
		WHERE t.token = $1 AND t.token_expiration > $2 AND u.id = t.user_id
		RETURNING t.user_id, t.token, t.token_expiration, t.created_at,
			u.email, u.first_name, u.email_verified, u.is_active
	`
	var rec domain.TokenRecord
	err := r.pool.QueryRow(ctx, query, token, now).Scan(
		&rec.UserID,
		&rec.Token,
		&rec.ExpiresAt,
		&rec.CreatedAt,
		&rec.Email,
		&rec.FirstName,
		&rec.EmailVerified,
		&rec.IsActive,
	)
	if err != nil {
		return domain.TokenRecord{}, err
	}
	return rec, nil
}

func (r *PgTokenRepository) DeleteByToken(ctx context.Context, token string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM `+r.table+` WHERE token = $1`, token)
	return err
}

func (r *PgTokenRepository) DeleteByUser(ctx context.Context, userID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM `+r.table+` WHERE user_id = $1`, userID)
	return err
}

func (r *PgTokenRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM `+r.table+` WHERE token_expiration <= $1`, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

var _ TokenRepository = (*PgTokenRepository)(nil)
