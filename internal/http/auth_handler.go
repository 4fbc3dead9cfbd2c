package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"splitshifts/internal/service"
)

const (
	msgRegistered        = "Registration successful. Please check your email to verify your account."
	msgVerificationSent  = "If an account exists for that email, a verification link has been sent."
	msgEmailVerified     = "Email verified successfully. You can now log in."
	msgResetRequested    = "If an account exists for that email, a password reset link has been sent."
	msgPasswordResetDone = "Your password has been reset. Please log in with your new password."
)

// AuthHandler expone los flujos anónimos: registro, verificación, reset y
// login.
type AuthHandler struct {
	logger *zap.Logger
	users  *service.UserService
	verify *service.EmailVerificationService
	reset  *service.PasswordResetService
	auth   *service.AuthService
}

func NewAuthHandler(
	logger *zap.Logger,
	users *service.UserService,
	verify *service.EmailVerificationService,
	reset *service.PasswordResetService,
	auth *service.AuthService,
) *AuthHandler {
	return &AuthHandler{
		logger: logger,
		users:  users,
		verify: verify,
		reset:  reset,
		auth:   auth,
	}
}

type emailRequest struct {
	Email string `json:"email"`
}

type tokenRequest struct {
	Token string `json:"token"`
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Code     string `json:"code"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// Register maneja POST /auth/register.
func (h *AuthHandler) Register(c *gin.Context) {
	var req service.RegisterInput
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, h.logger, "register", err)
		return
	}
	user, err := h.users.Register(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, "register", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"error": false, "message": msgRegistered, "user": user})
}

// SendVerification maneja POST /auth/verification/send.
func (h *AuthHandler) SendVerification(c *gin.Context) {
	var req emailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, h.logger, "send verification", err)
		return
	}
	if err := h.verify.SendVerification(c.Request.Context(), req.Email); err != nil {
		respondError(c, h.logger, "send verification", err)
		return
	}
	respondMessage(c, http.StatusOK, msgVerificationSent)
}

// VerifyEmail maneja POST /auth/verification/verify.
func (h *AuthHandler) VerifyEmail(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, h.logger, "verify email", err)
		return
	}
	email, err := h.verify.Verify(c.Request.Context(), req.Token)
	if err != nil {
		respondError(c, h.logger, "verify email", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"error": false, "message": msgEmailVerified, "email": email})
}

// RequestPasswordReset maneja POST /auth/password-reset/request.
func (h *AuthHandler) RequestPasswordReset(c *gin.Context) {
	var req emailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, h.logger, "password reset", err)
		return
	}
	if err := h.reset.RequestReset(c.Request.Context(), req.Email); err != nil {
		respondError(c, h.logger, "password reset", err)
		return
	}
	respondMessage(c, http.StatusOK, msgResetRequested)
}

// ValidateResetToken maneja GET /auth/password-reset/validate?token=.
func (h *AuthHandler) ValidateResetToken(c *gin.Context) {
	valid, err := h.reset.ValidateToken(c.Request.Context(), c.Query("token"))
	if err != nil {
		respondError(c, h.logger, "validate reset token", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": valid})
}

// CompletePasswordReset maneja POST /auth/password-reset/complete.
func (h *AuthHandler) CompletePasswordReset(c *gin.Context) {
	var req service.ResetPasswordInput
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, h.logger, "complete reset", err)
		return
	}
	if err := h.reset.CompleteReset(c.Request.Context(), req); err != nil {
		respondError(c, h.logger, "complete reset", err)
		return
	}
	respondMessage(c, http.StatusOK, msgPasswordResetDone)
}

// Preflight maneja POST /auth/login/preflight.
func (h *AuthHandler) Preflight(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, h.logger, "login preflight", err)
		return
	}
	if _, ok := service.SessionFromContext(c.Request.Context()); ok {
		respondError(c, h.logger, "login preflight", service.ErrAlreadyAuthenticated)
		return
	}
	res, err := h.auth.Preflight(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(c, h.logger, "login preflight", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Login maneja POST /auth/login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, h.logger, "login", err)
		return
	}
	if _, ok := service.SessionFromContext(c.Request.Context()); ok {
		respondError(c, h.logger, "login", service.ErrAlreadyAuthenticated)
		return
	}
	res, err := h.auth.CompleteLogin(c.Request.Context(), service.LoginInput{
		Email:    req.Email,
		Password: req.Password,
		Code:     req.Code,
	})
	if err != nil {
		respondError(c, h.logger, "login", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// RefreshToken maneja POST /auth/refresh.
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, h.logger, "refresh", err)
		return
	}
	tokens, err := h.auth.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		respondError(c, h.logger, "refresh", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tokens": tokens})
}

// Logout maneja POST /auth/logout.
func (h *AuthHandler) Logout(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, h.logger, "logout", err)
		return
	}
	if err := h.auth.Logout(c.Request.Context(), req.RefreshToken); err != nil {
		respondError(c, h.logger, "logout", err)
		return
	}
	c.Status(http.StatusNoContent)
}
