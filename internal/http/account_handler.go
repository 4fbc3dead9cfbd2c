package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"splitshifts/internal/service"
)

// AccountHandler agrupa los endpoints que requieren sesión.
type AccountHandler struct {
	logger    *zap.Logger
	users     *service.UserService
	twoFactor *service.TwoFactorService
	jwt       *service.JWTService
}

func NewAccountHandler(
	logger *zap.Logger,
	users *service.UserService,
	twoFactor *service.TwoFactorService,
	jwt *service.JWTService,
) *AccountHandler {
	return &AccountHandler{
		logger:    logger,
		users:     users,
		twoFactor: twoFactor,
		jwt:       jwt,
	}
}

// Me maneja GET /me.
func (h *AccountHandler) Me(c *gin.Context) {
	user, ok := GetSessionUser(c)
	if !ok {
		respondError(c, h.logger, "me", service.ErrUnauthorized)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

// ChangePassword maneja POST /me/password. Todas las sesiones se revocan y el
// llamador recibe un par nuevo.
func (h *AccountHandler) ChangePassword(c *gin.Context) {
	var req service.ChangePasswordInput
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, h.logger, "change password", err)
		return
	}
	if err := h.users.ChangePassword(c.Request.Context(), req); err != nil {
		respondError(c, h.logger, "change password", err)
		return
	}
	user, _ := GetSessionUser(c)
	tokens, err := h.jwt.GeneratePair(c.Request.Context(), user)
	if err != nil {
		respondError(c, h.logger, "change password", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"error": false, "message": "Password updated.", "tokens": tokens})
}

// BeginTwoFactor maneja POST /me/2fa/enroll.
func (h *AccountHandler) BeginTwoFactor(c *gin.Context) {
	uri, err := h.twoFactor.BeginEnrollment(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, "2fa enroll", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"provisioning_uri": uri})
}

// ConfirmTwoFactor maneja POST /me/2fa/confirm.
func (h *AccountHandler) ConfirmTwoFactor(c *gin.Context) {
	var req struct {
		Code string `json:"code"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, h.logger, "2fa confirm", err)
		return
	}
	if err := h.twoFactor.ConfirmEnrollment(c.Request.Context(), req.Code); err != nil {
		respondError(c, h.logger, "2fa confirm", err)
		return
	}
	respondMessage(c, http.StatusOK, "Two-factor authentication enabled.")
}

// DisableTwoFactor maneja POST /me/2fa/disable.
func (h *AccountHandler) DisableTwoFactor(c *gin.Context) {
	if err := h.twoFactor.DisableEnrollment(c.Request.Context()); err != nil {
		respondError(c, h.logger, "2fa disable", err)
		return
	}
	respondMessage(c, http.StatusOK, "Two-factor authentication disabled.")
}
