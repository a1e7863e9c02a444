package api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const refreshTokenHeader = "X-Refresh-Token"

// refreshAuth guards the refresh trigger with a shared secret taken from
// X-Refresh-Token or a Bearer Authorization header. Without a configured
// secret the trigger is disabled.
func refreshAuth(secret string) gin.HandlerFunc {
	want := []byte(secret)

	return func(c *gin.Context) {
		if secret == "" {
			fail(c, http.StatusServiceUnavailable, "refresh_disabled", "refresh secret not configured")
			return
		}
		got := c.GetHeader(refreshTokenHeader)
		if got == "" {
			if h := c.GetHeader("Authorization"); len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
				got = strings.TrimSpace(h[7:])
			}
		}
		if got == "" || subtle.ConstantTimeCompare([]byte(got), want) != 1 {
			c.Header("WWW-Authenticate", `Bearer realm="refresh"`)
			fail(c, http.StatusUnauthorized, "unauthorized", "invalid refresh token")
			return
		}
		c.Next()
	}
}
