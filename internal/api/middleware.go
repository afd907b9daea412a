package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// claimsContextKey is where the middleware stores verified claims.
const claimsContextKey = "claims"

// Claims are the publisher's JWT claims. Sub identifies the calling service
// (e.g. the scheduler) in audit logs.
type Claims struct {
	Sub string `json:"sub"`
	jwt.RegisteredClaims
}

// JWTMiddleware rejects requests without a valid HMAC-signed bearer token.
func JWTMiddleware(secret string) gin.HandlerFunc {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}))
	keyFunc := func(*jwt.Token) (any, error) { return []byte(secret), nil }

	return func(c *gin.Context) {
		raw, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || raw == "" {
			unauthorized(c, "missing or malformed authorization header")
			return
		}

		var claims Claims
		token, err := parser.ParseWithClaims(raw, &claims, keyFunc)
		if err != nil || !token.Valid {
			unauthorized(c, "invalid token")
			return
		}

		c.Set(claimsContextKey, &claims)
		c.Next()
	}
}

func unauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
}

// GetClaims returns the verified claims stored by JWTMiddleware.
func GetClaims(c *gin.Context) (*Claims, bool) {
	v, exists := c.Get(claimsContextKey)
	if !exists {
		return nil, false
	}
	claims, ok := v.(*Claims)
	return claims, ok
}
