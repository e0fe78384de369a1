// Package middleware provides the HTTP middleware stack for curatd.
package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/curatd/curatd/internal/logger"
)

const headerRequestID = "X-Request-ID"

// maxRequestIDLen bounds inbound IDs so a hostile client cannot bloat every
// log line through the passthrough header.
const maxRequestIDLen = 64

// RequestID tags each request with a correlation ID. A reasonably sized
// inbound X-Request-ID is passed through; anything else gets a fresh UUID.
// The ID rides the request context and the response header.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerRequestID)
		if id == "" || len(id) > maxRequestIDLen {
			id = uuid.NewString()
		}

		ctx := logger.WithRequestID(r.Context(), id)
		w.Header().Set(headerRequestID, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
