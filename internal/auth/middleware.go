// Package auth guards the admin API surface with a static bearer token.
package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/evoqwell/evoqsite/internal/common"
)

// AdminToken authenticates requests carrying the configured access token.
type AdminToken struct {
	Token string
}

// Middleware rejects requests without a matching Authorization bearer token.
// An empty configured token disables the whole admin surface.
func (a AdminToken) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.TrimSpace(a.Token) == "" {
			common.JSONError(w, http.StatusServiceUnavailable, "ADMIN_DISABLED", "admin access is not configured", nil)
			return
		}
		presented := bearerToken(r)
		if presented == "" || subtle.ConstantTimeCompare([]byte(presented), []byte(a.Token)) != 1 {
			common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or missing access token", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
