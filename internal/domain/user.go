package domain

import (
	"strings"
	"time"
)

// User es el registro de credenciales de una cuenta.
// Invariante: TwoFactorEnabled implica TwoFactorSecret no vacío.
// Los access tokens emitidos antes de PasswordChangedAt ya no valen.
type User struct {
	ID                string     `json:"id"`
	FirstName         string     `json:"first_name"`
	LastName          string     `json:"last_name"`
	Email             string     `json:"email"`
	PasswordHash      string     `json:"-"`
	EmailVerified     bool       `json:"email_verified"`
	EmailVerifiedAt   *time.Time `json:"email_verified_at,omitempty"`
	TwoFactorEnabled  bool       `json:"two_factor_enabled"`
	TwoFactorSecret   string     `json:"-"`
	IsActive          bool       `json:"is_active"`
	LastLogin         *time.Time `json:"last_login,omitempty"`
	PasswordChangedAt *time.Time `json:"-"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

func (u User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// IssuedBeforePasswordChange compara al segundo: el iat de un JWT no tiene más
// precisión. Un issuedAt cero no se considera vencido.
func (u User) IssuedBeforePasswordChange(issuedAt time.Time) bool {
	if u.PasswordChangedAt == nil || issuedAt.IsZero() {
		return false
	}
	return issuedAt.Before(u.PasswordChangedAt.Truncate(time.Second))
}

// UserPatch describe una actualización parcial; los campos nil no se tocan.
// TwoFactorSecret apuntando a "" borra el secreto.
type UserPatch struct {
	PasswordHash      *string
	EmailVerified     *bool
	EmailVerifiedAt   *time.Time
	TwoFactorEnabled  *bool
	TwoFactorSecret   *string
	IsActive          *bool
	LastLogin         *time.Time
	PasswordChangedAt *time.Time
}

func (p UserPatch) Empty() bool {
	return p.PasswordHash == nil &&
		p.EmailVerified == nil &&
		p.EmailVerifiedAt == nil &&
		p.TwoFactorEnabled == nil &&
		p.TwoFactorSecret == nil &&
		p.IsActive == nil &&
		p.LastLogin == nil &&
		p.PasswordChangedAt == nil
}

// Apply devuelve una copia del usuario con el patch aplicado.
func (p UserPatch) Apply(u User) User {
	if p.PasswordHash != nil {
		u.PasswordHash = *p.PasswordHash
	}
	if p.EmailVerified != nil {
		u.EmailVerified = *p.EmailVerified
	}
	if p.EmailVerifiedAt != nil {
		at := *p.EmailVerifiedAt
		u.EmailVerifiedAt = &at
	}
	if p.TwoFactorEnabled != nil {
		u.TwoFactorEnabled = *p.TwoFactorEnabled
	}
	if p.TwoFactorSecret != nil {
		u.TwoFactorSecret = *p.TwoFactorSecret
	}
	if p.IsActive != nil {
		u.IsActive = *p.IsActive
	}
	if p.LastLogin != nil {
		at := *p.LastLogin
		u.LastLogin = &at
	}
	if p.PasswordChangedAt != nil {
		at := *p.PasswordChangedAt
		u.PasswordChangedAt = &at
	}
	return u
}
