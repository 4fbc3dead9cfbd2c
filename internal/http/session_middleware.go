package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"splitshifts/internal/domain"
	"splitshifts/internal/service"
)

const sessionUserKey = "session_user"

func bearerToken(c *gin.Context) (string, bool) {
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	if header == "" || !strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return "", false
	}
	token := strings.TrimSpace(header[len("Bearer "):])
	return token, token != ""
}

// attachSession valida el access token, pasa por el guard y deja la sesión en
// el contexto del request. ok=false si no hay token válido.
func attachSession(c *gin.Context, jwtSvc *service.JWTService, guard *service.SessionGuard) (bool, error) {
	token, ok := bearerToken(c)
	if !ok {
		return false, nil
	}
	claims, err := jwtSvc.ParseAccessToken(token)
	if err != nil {
		return false, nil
	}
	user, err := guard.Check(c.Request.Context(), claims.UserID, claims.IssuedAtTime())
	if err != nil {
		return false, err
	}
	ctx := service.WithSession(c.Request.Context(), service.SessionInfo{UserID: user.ID, Email: user.Email})
	c.Request = c.Request.WithContext(ctx)
	c.Set(sessionUserKey, user)
	return true, nil
}

// OptionalSession adjunta la sesión si el request trae un access token válido.
// Un token inválido se trata como request anónimo; un usuario desactivado no.
func OptionalSession(jwtSvc *service.JWTService, guard *service.SessionGuard, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, err := attachSession(c, jwtSvc, guard); err != nil {
			respondError(c, logger, "session check", err)
			return
		}
		c.Next()
	}
}

// RequireSession exige un access token válido de un usuario activo.
func RequireSession(jwtSvc *service.JWTService, guard *service.SessionGuard, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if jwtSvc == nil || guard == nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse{
				Error:     true,
				ErrorType: "INTERNAL",
				Message:   "jwt not configured",
			})
			return
		}
		ok, err := attachSession(c, jwtSvc, guard)
		if err != nil {
			respondError(c, logger, "session check", err)
			return
		}
		if !ok {
			respondError(c, logger, "session check", service.ErrUnauthorized)
			return
		}
		c.Next()
	}
}

// GetSessionUser devuelve el usuario cargado por el middleware de sesión.
func GetSessionUser(c *gin.Context) (domain.User, bool) {
	val, ok := c.Get(sessionUserKey)
	if !ok {
		return domain.User{}, false
	}
	user, ok := val.(domain.User)
	return user, ok
}
