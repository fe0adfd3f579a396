package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// TokenChecker decides whether a bearer token grants access. An empty token
// means the request carried none.
type TokenChecker interface {
	Authorize(ctx context.Context, token string) (bool, error)
}

// BearerToken extracts the token from an "Authorization: Bearer" header
func BearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

// TokenAuth rejects requests the checker does not authorize. Paths listed in
// exempt are passed through untouched.
func TokenAuth(checker TokenChecker, exempt ...string) gin.HandlerFunc {
	skip := make(map[string]struct{}, len(exempt))
	for _, p := range exempt {
		skip[p] = struct{}{}
	}

	return func(c *gin.Context) {
		if _, ok := skip[c.FullPath()]; ok {
			c.Next()
			return
		}

		ok, err := checker.Authorize(c.Request.Context(), BearerToken(c))
		if err != nil {
			log.Error().
				Err(err).
				Str("path", c.Request.URL.Path).
				Msg("failed to check token")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"status":  "error",
				"message": "token check failed",
			})
			return
		}

		if !ok {
			log.Warn().
				Str("path", c.Request.URL.Path).
				Str("client", c.ClientIP()).
				Msg("unauthorized request")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "unauthorized",
			})
			return
		}

		c.Next()
	}
}
