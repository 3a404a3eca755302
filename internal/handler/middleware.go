package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"comic-server/internal/models"
)

// AuthMiddleware проверяет Bearer-токен и кладет user_id в контекст запроса.
func (h *PanelHandler) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			zap.L().Warn("Authorization header missing")
			handleServiceError(c, models.ErrTokenInvalid)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			zap.L().Warn("Invalid Authorization header format")
			handleServiceError(c, models.ErrTokenInvalid)
			return
		}

		claims, err := h.verifier.VerifyToken(c.Request.Context(), parts[1])
		if err != nil {
			zap.L().Warn("Access token verification failed", zap.Error(err))
			handleServiceError(c, err)
			return
		}

		c.Set("user_id", claims.UserID)
		c.Next()
	}
}

// InternalAuthMiddleware пропускает только запросы доверенных сервисов со
// статическим секретом в заголовке X-Internal-Service-Token.
func (h *PanelHandler) InternalAuthMiddleware() gin.HandlerFunc {
	staticSecret := h.interServiceSecret
	if staticSecret == "" {
		zap.L().Warn("InternalAuthMiddleware: INTER_SERVICE_SECRET is not configured! Internal endpoints will reject all requests.")
	}

	return func(c *gin.Context) {
		tokenString := c.GetHeader("X-Internal-Service-Token")
		if tokenString == "" || staticSecret == "" || tokenString != staticSecret {
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{
				Code:    models.ErrCodeTokenInvalid,
				Message: "Missing or invalid internal service token",
			})
			return
		}
		c.Next()
	}
}
