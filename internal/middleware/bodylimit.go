package middleware

import (
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	apperrors "github.com/openclaw/chat-relay-go/internal/errors"
	"github.com/openclaw/chat-relay-go/internal/httputil"
)

const DefaultMaxBodySize = 64 * 1024

// BodyLimitMiddleware refuses admin requests whose body exceeds maxSize.
// Declared lengths are checked up front; chunked bodies are cut off while
// the handler reads them.
type BodyLimitMiddleware struct {
	maxSize int64
}

func NewBodyLimitMiddleware(maxSize int64) *BodyLimitMiddleware {
	if maxSize <= 0 {
		maxSize = DefaultMaxBodySize
	}
	return &BodyLimitMiddleware{maxSize: maxSize}
}

func (m *BodyLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body == nil || r.Body == http.NoBody {
			next.ServeHTTP(w, r)
			return
		}

		if r.ContentLength > m.maxSize {
			log.Warn().
				Str("path", r.URL.Path).
				Str("remoteAddr", r.RemoteAddr).
				Int64("contentLength", r.ContentLength).
				Msg("admin request body too large")
			httputil.WriteErrorWithStatus(w, http.StatusRequestEntityTooLarge,
				apperrors.InvalidInput("body", fmt.Sprintf("exceeds %d bytes", m.maxSize)))
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, m.maxSize)
		next.ServeHTTP(w, r)
	})
}
