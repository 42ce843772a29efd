package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/utec/campusdesk/internal/models"
)

const CtxViewer = "visor"

// Bearer exige el token de la sesión activa. token se consulta en cada
// request: tras el logout devuelve "" y todo queda cerrado.
func Bearer(token func() string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{Error: "Token requerido"})
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{Error: "Formato inválido: Bearer <token>"})
			return
		}
		if !Matches(token(), parts[1]) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{Error: "Token inválido o sesión cerrada"})
			return
		}
		c.Set(CtxViewer, c.ClientIP())
		c.Next()
	}
}

// Matches compara en tiempo constante; una sesión sin token no acepta nada.
func Matches(expected, got string) bool {
	if expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(got)) == 1
}

func GetViewer(c *gin.Context) string { return c.GetString(CtxViewer) }
