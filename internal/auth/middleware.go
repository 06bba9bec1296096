package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"carbon-scribe/credit-registry/internal/ledger"
)

const callerKey = "caller"

// RequireCaller rejects requests without a valid bearer token and stores the
// caller's address in the context.
func (a *Authenticator) RequireCaller() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		addr, err := a.Verify(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Set(callerKey, addr)
		c.Next()
	}
}

// Caller returns the address RequireCaller stored, or "".
func Caller(c *gin.Context) ledger.Address {
	v, ok := c.Get(callerKey)
	if !ok {
		return ""
	}
	addr, _ := v.(ledger.Address)
	return addr
}
