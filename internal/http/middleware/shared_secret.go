package middleware

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/genflow-backend/internal/http/response"
)

const (
	HeaderCallbackSecret = "X-Callback-Secret"
	HeaderAdminKey       = "X-Admin-Key"
)

// RequireSharedSecret admits requests whose header equals secret. An empty
// secret admits everything.
func RequireSharedSecret(header, secret string) gin.HandlerFunc {
	want := []byte(strings.TrimSpace(secret))
	return func(c *gin.Context) {
		if len(want) == 0 {
			c.Next()
			return
		}
		got := []byte(strings.TrimSpace(c.GetHeader(header)))
		if subtle.ConstantTimeCompare(got, want) != 1 {
			response.AbortError(c, http.StatusUnauthorized, "unauthorized", errors.New("invalid "+strings.ToLower(header)))
			return
		}
		c.Next()
	}
}
