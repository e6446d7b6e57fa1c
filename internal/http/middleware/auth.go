package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/Nixie-Tech-LLC/kiosksync/internal/model"
)

// GetCurrentIdentity retrieves the caller from the Gin context (after JWTMiddleware has run).
func GetCurrentIdentity(c *gin.Context) (*model.Identity, bool) {
	v, exists := c.Get(identityKey)
	if !exists {
		return nil, false
	}
	id, ok := v.(*model.Identity)
	return id, ok
}
