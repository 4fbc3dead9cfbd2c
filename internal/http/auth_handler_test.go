package http

import (
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
)

func TestRegister_CreatesUnverifiedAccount(t *testing.T) {
	app := newTestApp(t)

	rec := performRequest(app.router, http.MethodPost, "/auth/register", map[string]string{
		"firstName":       "Ana",
		"lastName":        "Pérez",
		"email":           "Ana@Example.com",
		"password":        testPassword,
		"confirmPassword": testPassword,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
	}
	user := app.users.byEmail(t, "ana@example.com")
	if user.EmailVerified {
		t.Fatalf("expected unverified user")
	}
	if len(app.sender.sent) != 1 {
		t.Fatalf("expected verification email, got %d", len(app.sender.sent))
	}
}

func TestRegister_ValidationErrors(t *testing.T) {
	app := newTestApp(t)

	rec := performRequest(app.router, http.MethodPost, "/auth/register", map[string]string{
		"firstName":       "Ana",
		"lastName":        "Pérez",
		"email":           "ana@example.com",
		"password":        "short",
		"confirmPassword": "other",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["error"] != true || body["error_type"] != "INVALID_INPUT" {
		t.Fatalf("unexpected body %v", body)
	}
	fields, ok := body["field_errors"].(map[string]any)
	if !ok || fields["password"] == nil || fields["confirmPassword"] == nil {
		t.Fatalf("expected field errors for password and confirmPassword, got %v", body["field_errors"])
	}
}

func TestRegister_InvalidJSON(t *testing.T) {
	app := newTestApp(t)
	rec := performRequest(app.router, http.MethodPost, "/auth/register", "not-an-object")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
}

func TestSendVerification_NeutralResponse(t *testing.T) {
	app := newTestApp(t)

	unknown := performRequest(app.router, http.MethodPost, "/auth/verification/send", map[string]string{"email": "ghost@example.com"})
	if unknown.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", unknown.Code)
	}
	if len(app.sender.sent) != 0 {
		t.Fatalf("expected no email for unknown address")
	}

	app.registerVerified(t, "ana@example.com")
	rec := performRequest(app.router, http.MethodPost, "/auth/verification/send", map[string]string{"email": "ana@example.com"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected status 409 for verified account, got %d", rec.Code)
	}
}

func TestVerifyEmail_SingleUse(t *testing.T) {
	app := newTestApp(t)
	rec := performRequest(app.router, http.MethodPost, "/auth/register", map[string]string{
		"firstName":       "Ana",
		"lastName":        "Pérez",
		"email":           "ana@example.com",
		"password":        testPassword,
		"confirmPassword": testPassword,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: %d", rec.Code)
	}
	token := app.sender.lastToken(t)

	rec = performRequest(app.router, http.MethodPost, "/auth/verification/verify", map[string]string{"token": token})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if decodeBody(t, rec)["email"] != "ana@example.com" {
		t.Fatalf("expected verified email in response")
	}

	rec = performRequest(app.router, http.MethodPost, "/auth/verification/verify", map[string]string{"token": token})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 on second redemption, got %d", rec.Code)
	}
	if decodeBody(t, rec)["error_type"] != "INVALID_OR_EXPIRED" {
		t.Fatalf("expected INVALID_OR_EXPIRED")
	}
}

func TestLogin_Errors(t *testing.T) {
	app := newTestApp(t)
	app.registerVerified(t, "ana@example.com")

	wrong := performRequest(app.router, http.MethodPost, "/auth/login", map[string]string{
		"email": "ana@example.com", "password": "Wrong#123",
	})
	unknown := performRequest(app.router, http.MethodPost, "/auth/login", map[string]string{
		"email": "ghost@example.com", "password": "Wrong#123",
	})
	if wrong.Code != http.StatusUnauthorized || unknown.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for both, got %d and %d", wrong.Code, unknown.Code)
	}
	if wrong.Body.String() != unknown.Body.String() {
		t.Fatalf("expected identical bodies, got %s and %s", wrong.Body.String(), unknown.Body.String())
	}
}

func TestPreflight_UnverifiedAccount(t *testing.T) {
	app := newTestApp(t)
	rec := performRequest(app.router, http.MethodPost, "/auth/register", map[string]string{
		"firstName":       "Ana",
		"lastName":        "Pérez",
		"email":           "ana@example.com",
		"password":        testPassword,
		"confirmPassword": testPassword,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: %d", rec.Code)
	}

	rec = performRequest(app.router, http.MethodPost, "/auth/login/preflight", map[string]string{
		"email": "ana@example.com", "password": testPassword,
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", rec.Code)
	}
}

func TestLoginRefreshLogout(t *testing.T) {
	app := newTestApp(t)
	app.registerVerified(t, "ana@example.com")

	rec := performRequest(app.router, http.MethodPost, "/auth/login/preflight", map[string]string{
		"email": "ana@example.com", "password": testPassword,
	})
	if rec.Code != http.StatusOK || decodeBody(t, rec)["two_factor_required"] != false {
		t.Fatalf("unexpected preflight response %d %s", rec.Code, rec.Body.String())
	}

	res := app.login(t, "ana@example.com", "")

	rec = performRequest(app.router, http.MethodPost, "/auth/login", map[string]string{
		"email": "ana@example.com", "password": testPassword,
	}, bearer(res.Tokens.AccessToken)...)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected status 409 when already logged in, got %d", rec.Code)
	}

	rec = performRequest(app.router, http.MethodPost, "/auth/refresh", map[string]string{"refresh_token": res.Tokens.RefreshToken})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 on refresh, got %d", rec.Code)
	}
	tokens := decodeBody(t, rec)["tokens"].(map[string]any)
	newRefresh := tokens["refresh_token"].(string)

	rec = performRequest(app.router, http.MethodPost, "/auth/refresh", map[string]string{"refresh_token": res.Tokens.RefreshToken})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected rotated refresh token rejected, got %d", rec.Code)
	}

	rec = performRequest(app.router, http.MethodPost, "/auth/logout", map[string]string{"refresh_token": newRefresh})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rec.Code)
	}
	rec = performRequest(app.router, http.MethodPost, "/auth/logout", map[string]string{"refresh_token": newRefresh})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected repeated logout to return 204, got %d", rec.Code)
	}
}

func TestPasswordResetFlow(t *testing.T) {
	app := newTestApp(t)
	app.registerVerified(t, "ana@example.com")
	session := app.login(t, "ana@example.com", "")

	rec := performRequest(app.router, http.MethodPost, "/auth/password-reset/request", map[string]string{"email": "ana@example.com"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	token := app.sender.lastToken(t)

	rec = performRequest(app.router, http.MethodGet, "/auth/password-reset/validate?token="+url.QueryEscape(token), nil)
	if rec.Code != http.StatusOK || decodeBody(t, rec)["valid"] != true {
		t.Fatalf("expected token valid, got %d %s", rec.Code, rec.Body.String())
	}

	rec = performRequest(app.router, http.MethodPost, "/auth/password-reset/complete", map[string]string{
		"token": token, "password": "Fresh#pass1", "confirmPassword": "Fresh#pass1",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = performRequest(app.router, http.MethodPost, "/auth/refresh", map[string]string{"refresh_token": session.Tokens.RefreshToken})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected existing session revoked after reset, got %d", rec.Code)
	}

	rec = performRequest(app.router, http.MethodGet, "/auth/password-reset/validate?token="+token, nil)
	if decodeBody(t, rec)["valid"] != false {
		t.Fatalf("expected consumed token invalid")
	}

	rec = performRequest(app.router, http.MethodPost, "/auth/login", map[string]string{
		"email": "ana@example.com", "password": "Fresh#pass1",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected login with new password, got %d", rec.Code)
	}
}

func TestTwoFactorLogin(t *testing.T) {
	app := newTestApp(t)
	app.registerVerified(t, "ana@example.com")
	session := app.login(t, "ana@example.com", "")
	auth := bearer(session.Tokens.AccessToken)

	rec := performRequest(app.router, http.MethodPost, "/me/2fa/enroll", nil, auth...)
	if rec.Code != http.StatusOK {
		t.Fatalf("enroll: expected 200, got %d", rec.Code)
	}
	uri, err := url.Parse(decodeBody(t, rec)["provisioning_uri"].(string))
	if err != nil {
		t.Fatalf("parse uri: %v", err)
	}
	secret := uri.Query().Get("secret")

	code, err := totp.GenerateCode(secret, time.Now().UTC())
	if err != nil {
		t.Fatalf("generate code: %v", err)
	}
	rec = performRequest(app.router, http.MethodPost, "/me/2fa/confirm", map[string]string{"code": code}, auth...)
	if rec.Code != http.StatusOK {
		t.Fatalf("confirm: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = performRequest(app.router, http.MethodPost, "/auth/login/preflight", map[string]string{
		"email": "ana@example.com", "password": testPassword,
	})
	if decodeBody(t, rec)["two_factor_required"] != true {
		t.Fatalf("expected two factor required")
	}

	rec = performRequest(app.router, http.MethodPost, "/auth/login", map[string]string{
		"email": "ana@example.com", "password": testPassword,
	})
	if rec.Code != http.StatusUnauthorized || decodeBody(t, rec)["error_type"] != "INVALID_OTP" {
		t.Fatalf("expected INVALID_OTP, got %d %s", rec.Code, rec.Body.String())
	}

	app.login(t, "ana@example.com", code)
}
