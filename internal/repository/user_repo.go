package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"splitshifts/internal/domain"
)

// ErrDuplicateEmail se devuelve cuando ya existe un usuario con ese email.
var ErrDuplicateEmail = errors.New("email already registered")

const uniqueViolation = "23505"

// UserRepository define el contrato de persistencia para usuarios.
type UserRepository interface {
	Create(ctx context.Context, user domain.User) error
	GetByID(ctx context.Context, id string) (domain.User, error)
	GetByEmail(ctx context.Context, email string) (domain.User, error)
	Update(ctx context.Context, id string, patch domain.UserPatch) error
}

// PgUserRepository implementa UserRepository usando pgxpool.
type PgUserRepository struct {
	pool Querier
}

func NewPgUserRepository(pool Querier) *PgUserRepository {
	return &PgUserRepository{pool: pool}
}

const userColumns = `
	id, first_name, last_name, email, password,
	email_verified, email_verified_at,
	two_factor_enabled, COALESCE(two_factor_secret, ''),
	is_active, last_login, password_changed_at, created_at, updated_at`

func (r *PgUserRepository) Create(ctx context.Context, user domain.User) error {
	const query = `
		INSERT INTO users (
			id, first_name, last_name, email, password,
			email_verified, is_active, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.pool.Exec(ctx, query,
		user.ID,
		user.FirstName,
		user.LastName,
		user.Email,
		user.PasswordHash,
		user.EmailVerified,
		user.IsActive,
		user.CreatedAt,
		user.UpdatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrDuplicateEmail
	}
	return err
}

func (r *PgUserRepository) GetByID(ctx context.Context, id string) (domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.pool.QueryRow(ctx, query, id))
}

// GetByEmail compara sin distinguir mayúsculas.
func (r *PgUserRepository) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1)`
	return scanUser(r.pool.QueryRow(ctx, query, strings.TrimSpace(email)))
}

// Update aplica el patch en una sola sentencia. Devuelve pgx.ErrNoRows si el
// usuario no existe.
func (r *PgUserRepository) Update(ctx context.Context, id string, patch domain.UserPatch) error {
	if patch.Empty() {
		return nil
	}
	var (
		sets []string
		args []any
	)
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if patch.PasswordHash != nil {
		add("password", *patch.PasswordHash)
	}
	if patch.EmailVerified != nil {
		add("email_verified", *patch.EmailVerified)
	}
	if patch.EmailVerifiedAt != nil {
		add("email_verified_at", *patch.EmailVerifiedAt)
	}
	if patch.TwoFactorEnabled != nil {
		add("two_factor_enabled", *patch.TwoFactorEnabled)
	}
	if patch.TwoFactorSecret != nil {
		if *patch.TwoFactorSecret == "" {
			add("two_factor_secret", nil)
		} else {
			add("two_factor_secret", *patch.TwoFactorSecret)
		}
	}
	if patch.IsActive != nil {
		add("is_active", *patch.IsActive)
	}
	if patch.LastLogin != nil {
		add("last_login", *patch.LastLogin)
	}
	if patch.PasswordChangedAt != nil {
		add("password_changed_at", *patch.PasswordChangedAt)
	}
	sets = append(sets, "updated_at = now()")
	args = append(args, id)

	query := fmt.Sprintf("UPDATE users SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func scanUser(row pgx.Row) (domain.User, error) {
	var u domain.User
	err := row.Scan(
		&u.ID,
		&u.FirstName,
		&u.LastName,
		&u.Email,
		&u.PasswordHash,
		&u.EmailVerified,
		&u.EmailVerifiedAt,
		&u.TwoFactorEnabled,
		&u.TwoFactorSecret,
		&u.IsActive,
		&u.LastLogin,
		&u.PasswordChangedAt,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return domain.User{}, err
	}
	return u, nil
}
