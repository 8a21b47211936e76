package middleware

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/chat-relay-go/internal/audit"
	"github.com/openclaw/chat-relay-go/internal/util"
)

// AdminAuthMiddleware guards operator routes with a static bearer token.
type AdminAuthMiddleware struct {
	token string
}

func NewAdminAuthMiddleware(token string) *AdminAuthMiddleware {
	return &AdminAuthMiddleware{token: token}
}

func (m *AdminAuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.token == "" {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "Admin API disabled",
			})
			return
		}

		token := extractToken(r)
		if token == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"error": "Missing authentication token",
			})
			return
		}

		if !util.ConstantTimeEqual(token, m.token) {
			log.Warn().Str("remoteAddr", r.RemoteAddr).Msg("admin auth: invalid token attempt")
			audit.LogFromRequest(r, audit.Event{Type: audit.EventAdminAuthFail})
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"error": "Invalid token",
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

func extractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return ""
}
