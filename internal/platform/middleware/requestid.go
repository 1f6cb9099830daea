// Package middleware holds the HTTP middleware chain shared by all route
// groups: request IDs, logging, recovery, timeouts, headers, and latency.
package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"tcfgate/pkg/requestcontext"
)

// RequestIDHeader carries the request ID in and out.
const RequestIDHeader = "X-Request-ID"

const maxInboundRequestIDLen = 128

// RequestID reuses a caller-supplied X-Request-ID when it is short enough,
// otherwise generates a UUID. The ID is echoed in the response.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" || len(id) > maxInboundRequestIDLen {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(requestcontext.WithRequestID(r.Context(), id)))
	})
}

// GetRequestID returns the request ID set by RequestID.
func GetRequestID(ctx context.Context) string {
	return requestcontext.RequestID(ctx)
}
