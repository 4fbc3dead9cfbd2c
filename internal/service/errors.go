package service

import "errors"

// ErrorKind clasifica los errores que los flujos exponen a los llamadores.
type ErrorKind string

const (
	KindInvalidInput         ErrorKind = "INVALID_INPUT"
	KindInvalidOrExpired     ErrorKind = "INVALID_OR_EXPIRED"
	KindInvalidCredentials   ErrorKind = "INVALID_CREDENTIALS"
	KindEmailNotVerified     ErrorKind = "EMAIL_NOT_VERIFIED"
	KindInvalidOTP           ErrorKind = "INVALID_OTP"
	KindAlreadyAuthenticated ErrorKind = "ALREADY_AUTHENTICATED"
	KindAlreadyVerified      ErrorKind = "ALREADY_VERIFIED"
	KindAlreadySatisfied     ErrorKind = "ALREADY_SATISFIED"
	KindTransportFailure     ErrorKind = "TRANSPORT_FAILURE"
	KindUnauthorized         ErrorKind = "UNAUTHORIZED"
	KindRateLimited          ErrorKind = "RATE_LIMITED"
	KindTwoFactorNotStarted  ErrorKind = "TWO_FACTOR_NOT_STARTED"
)

// AuthError es el error tipado de los flujos de autenticación.
// errors.Is compara solo por Kind, así que mensajes distintos del mismo tipo
// coinciden con el sentinel correspondiente.
type AuthError struct {
	Kind    ErrorKind
	Message string
	Fields  map[string]string
}

func (e *AuthError) Error() string {
	return e.Message
}

func (e *AuthError) Is(target error) bool {
	t, ok := target.(*AuthError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func newAuthError(kind ErrorKind, message string) *AuthError {
	return &AuthError{Kind: kind, Message: message}
}

var (
	ErrInvalidInput         = newAuthError(KindInvalidInput, "Invalid input.")
	ErrInvalidOrExpired     = newAuthError(KindInvalidOrExpired, "Invalid or expired token.")
	ErrIncorrectCredentials = newAuthError(KindInvalidCredentials, "Incorrect email or password.")
	ErrEmailNotVerified     = newAuthError(KindEmailNotVerified, "Please verify your email address before logging in. Check your inbox for a verification link.")
	ErrIncorrectOneTimeCode = newAuthError(KindInvalidOTP, "Invalid OTP code. Please check your authenticator app and try again.")
	ErrAlreadyAuthenticated = newAuthError(KindAlreadyAuthenticated, "You are already logged in.")
	ErrAlreadyVerified      = newAuthError(KindAlreadyVerified, "Email is already verified.")
	ErrAlreadySatisfied     = newAuthError(KindAlreadySatisfied, "Two-factor authentication is already enabled.")
	ErrTransportFailure     = newAuthError(KindTransportFailure, "We could not send the email. Please try again later.")
	ErrUnauthorized         = newAuthError(KindUnauthorized, "You must be logged in to do that.")
	ErrSessionRevoked       = newAuthError(KindUnauthorized, "Your session is no longer valid. Please sign in again.")
	ErrRateLimited          = newAuthError(KindRateLimited, "Too many attempts. Please try again later.")
	ErrTwoFactorNotStarted  = newAuthError(KindTwoFactorNotStarted, "Two-factor setup has not been started.")
)

// Mensajes específicos de cada flujo; comparten Kind con los sentinels.
var (
	errVerificationTokenMalformed = newAuthError(KindInvalidOrExpired, "Invalid verification token.")
	errVerificationTokenInvalid   = newAuthError(KindInvalidOrExpired, "Invalid or expired verification token.")
	errEmailAlreadyVerified       = newAuthError(KindAlreadyVerified, "Email address is already verified.")
	errResetTokenInvalid          = newAuthError(KindInvalidOrExpired, "Invalid or expired password reset token.")
	errCurrentPasswordIncorrect   = &AuthError{
		Kind:    KindInvalidInput,
		Message: "Current password is incorrect.",
		Fields:  map[string]string{"currentPassword": "Current password is incorrect."},
	}
)

func newFieldError(fields map[string]string) *AuthError {
	return &AuthError{Kind: KindInvalidInput, Message: ErrInvalidInput.Message, Fields: fields}
}

// AsAuthError extrae el AuthError de una cadena de errores.
func AsAuthError(err error) (*AuthError, bool) {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr, true
	}
	return nil, false
}
