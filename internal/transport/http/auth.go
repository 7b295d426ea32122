package httptransport

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"vitarp-go/internal/platform/config"
)

// tokenClaims are the JWT claims the control API issues to UI shells.
type tokenClaims struct {
	Client string `json:"client"`
	jwt.RegisteredClaims
}

// IssueToken exchanges the shared device token for a short-lived JWT.
func IssueToken(cfg config.ServerConfig, client string) (string, error) {
	expiry := cfg.Auth.TokenExpiry
	if expiry <= 0 {
		expiry = 24 * time.Hour
	}
	claims := tokenClaims{
		Client: client,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "vitarp-core",
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiry)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.Token))
}

// AuthMiddleware validates the bearer JWT on secured routes. With auth
// disabled in config it passes everything through, which is the default for
// the on-device loopback deployment.
func AuthMiddleware(cfg config.ServerConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !cfg.Auth.Enabled {
			c.Next()
			return
		}

		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			RespondError(c, http.StatusUnauthorized, "missing bearer token", nil)
			c.Abort()
			return
		}

		token, err := jwt.ParseWithClaims(raw, &tokenClaims{}, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(cfg.Token), nil
		})
		if err != nil || !token.Valid {
			RespondError(c, http.StatusUnauthorized, "invalid or expired token", nil)
			c.Abort()
			return
		}
		c.Next()
	}
}
