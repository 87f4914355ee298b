package server

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

const (
	// RequestIDHeader carries the request ID on requests and responses.
	RequestIDHeader = "X-Request-ID"
	// AppVersionHeader carries the service version on every response.
	AppVersionHeader = "X-App-Version"
)

type requestIDContextKey struct{}

// RequestID returns middleware that assigns each request an ID, reusing an
// incoming X-Request-ID when present, and stamps the ID and version headers
// on the response.
func RequestID(version string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get(RequestIDHeader)
			if requestID == "" {
				requestID = uuid.NewString()
			}

			w.Header().Set(RequestIDHeader, requestID)
			w.Header().Set(AppVersionHeader, version)

			ctx := context.WithValue(r.Context(), requestIDContextKey{}, requestID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetRequestID returns the request ID stored by RequestID, or "".
func GetRequestID(ctx context.Context) string {
	requestID, _ := ctx.Value(requestIDContextKey{}).(string)
	return requestID
}

func requestIDOf(r *http.Request) string {
	return GetRequestID(r.Context())
}
