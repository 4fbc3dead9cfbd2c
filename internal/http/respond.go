package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"splitshifts/internal/service"
)

const msgInternalError = "Something went wrong. Please try again."

type errorResponse struct {
	Error       bool              `json:"error"`
	ErrorType   string            `json:"error_type"`
	Message     string            `json:"message"`
	FieldErrors map[string]string `json:"field_errors,omitempty"`
	SignOut     bool              `json:"sign_out,omitempty"`
}

var statusByKind = map[service.ErrorKind]int{
	service.KindInvalidInput:         http.StatusBadRequest,
	service.KindInvalidOrExpired:     http.StatusBadRequest,
	service.KindInvalidCredentials:   http.StatusUnauthorized,
	service.KindEmailNotVerified:     http.StatusForbidden,
	service.KindInvalidOTP:           http.StatusUnauthorized,
	service.KindAlreadyAuthenticated: http.StatusConflict,
	service.KindAlreadyVerified:      http.StatusConflict,
	service.KindAlreadySatisfied:     http.StatusConflict,
	service.KindTransportFailure:     http.StatusServiceUnavailable,
	service.KindUnauthorized:         http.StatusUnauthorized,
	service.KindRateLimited:          http.StatusTooManyRequests,
	service.KindTwoFactorNotStarted:  http.StatusConflict,
}

// respondError traduce un error de servicio a la respuesta JSON. Los errores
// no tipados se loguean y se devuelven como 500 genérico.
func respondError(c *gin.Context, logger *zap.Logger, op string, err error) {
	authErr, ok := service.AsAuthError(err)
	if !ok {
		logger.Error(op+" failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse{
			Error:     true,
			ErrorType: "INTERNAL",
			Message:   msgInternalError,
		})
		return
	}
	status, ok := statusByKind[authErr.Kind]
	if !ok {
		status = http.StatusBadRequest
	}
	c.AbortWithStatusJSON(status, errorResponse{
		Error:       true,
		ErrorType:   string(authErr.Kind),
		Message:     authErr.Message,
		FieldErrors: authErr.Fields,
		SignOut:     authErr == service.ErrSessionRevoked,
	})
}

func respondBadRequest(c *gin.Context, logger *zap.Logger, op string, err error) {
	logger.Warn("invalid "+op+" request", zap.Error(err))
	c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{
		Error:     true,
		ErrorType: string(service.KindInvalidInput),
		Message:   "Invalid request body.",
	})
}

func respondMessage(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": false, "message": message})
}
