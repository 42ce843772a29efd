package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/utec/campusdesk/internal/models"
)

// Claims son los datos que el backend pone en el token de sesión. El cliente
// no tiene la clave: solo lee los claims para decidir si vale la pena
// conectar el canal push. La validación real la hace el servidor.
type Claims struct {
	UserID string      `json:"userId"`
	Email  string      `json:"email"`
	Role   models.Role `json:"role"`
	jwt.RegisteredClaims
}

var ErrTokenExpired = errors.New("token expirado")

// ParseClaims lee los claims sin verificar la firma.
func ParseClaims(tokenStr string) (*Claims, error) {
	if tokenStr == "" {
		return nil, errors.New("token vacío")
	}
	var claims Claims
	if _, _, err := jwt.NewParser().ParseUnverified(tokenStr, &claims); err != nil {
		return nil, err
	}
	if claims.UserID == "" {
		claims.UserID = claims.Subject
	}
	return &claims, nil
}

// Expired es false cuando el token no trae exp.
func (c *Claims) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && !now.Before(c.ExpiresAt.Time)
}

// CheckUsable devuelve ErrTokenExpired si el token ya no sirve para abrir el
// canal push. Un token que no es JWT se deja pasar: algunos backends usan
// tokens opacos.
func CheckUsable(tokenStr string, now time.Time) error {
	if tokenStr == "" {
		return errors.New("sin token de sesión")
	}
	claims, err := ParseClaims(tokenStr)
	if err != nil {
		return nil
	}
	if claims.Expired(now) {
		return ErrTokenExpired
	}
	return nil
}
