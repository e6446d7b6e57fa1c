package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/gin-gonic/gin"

	"github.com/Nixie-Tech-LLC/kiosksync/internal/model"
)

const identityKey = "currentIdentity"

// GenerateJWT signs a token carrying the identity's subject, tenant and role.
func GenerateJWT(id model.Identity, secret string, ttl time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":       id.Subject,
		"tenant_id": id.TenantID,
		"role":      id.Role,
		"exp":       time.Now().Add(ttl).Unix(),
	})
	return token.SignedString([]byte(secret))
}

// ParseToken verifies the token and returns the identity in its claims.
func ParseToken(tokenString, secret string) (*model.Identity, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return nil, errors.New("invalid token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("invalid claims")
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return nil, errors.New("invalid sub claim")
	}
	tenant, ok := claims["tenant_id"].(float64)
	if !ok || tenant <= 0 {
		return nil, errors.New("invalid tenant_id claim")
	}
	role, _ := claims["role"].(string)
	switch role {
	case model.RoleAdmin, model.RoleContentEditor, model.RoleViewer, model.RoleDevice:
	default:
		return nil, errors.New("invalid role claim")
	}
	return &model.Identity{Subject: sub, TenantID: int64(tenant), Role: role}, nil
}

// JWTMiddleware checks "Authorization: Bearer <token>" and stores the caller's identity
// in the context.
func JWTMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			unauthorized(c, "missing auth header")
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			unauthorized(c, "invalid auth header")
			return
		}

		id, err := ParseToken(parts[1], secret)
		if err != nil {
			unauthorized(c, "invalid token")
			return
		}
		c.Set(identityKey, id)
		c.Next()
	}
}

func unauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error": gin.H{"code": "UNAUTHORIZED", "message": msg},
	})
}
