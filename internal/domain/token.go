package domain

import "time"

// TokenPurpose identifica la tabla de tokens de un solo uso.
type TokenPurpose string

const (
	TokenPurposeVerification TokenPurpose = "verification"
	TokenPurposeReset        TokenPurpose = "reset"
)

// TokenRecord es un token de verificación o reset junto con datos del dueño.
// Los campos del dueño solo se completan en búsquedas con join.
type TokenRecord struct {
	UserID    string
	Token     string
	ExpiresAt time.Time
	CreatedAt time.Time

	Email         string
	FirstName     string
	EmailVerified bool
	IsActive      bool
}

func (t TokenRecord) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
