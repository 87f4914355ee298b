package server

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/jonwraymond/sreguard/observe"
	"github.com/jonwraymond/sreguard/resilience"
)

// HandlerFunc is an HTTP handler that can fail. A returned error counts as a
// circuit breaker failure and is answered with 500 if nothing was written.
type HandlerFunc func(http.ResponseWriter, *http.Request) error

// Rate limit headers set on every admitted or rate-limited response.
const (
	RateLimitLimitHeader     = "X-RateLimit-Limit"
	RateLimitRemainingHeader = "X-RateLimit-Remaining"
)

type failureContextKey struct{}

// handlerFailure carries a handler's error back to the admission middleware.
type handlerFailure struct {
	err   error
	stack []byte
}

// handle adapts fn to http.HandlerFunc.
func (s *Server) handle(fn HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := fn(w, r)
		if err == nil {
			return
		}
		if f, ok := r.Context().Value(failureContextKey{}).(*handlerFailure); ok {
			f.err = err
			return
		}
		s.writeInternalError(w, r, err)
	}
}

// admission gates every request on the rate limiter and circuit breaker,
// reports handler outcomes to the breaker and records the response in the
// metrics collector.
func (s *Server) admission(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := s.now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			s.collector.Record(s.now().Sub(start), status, s.routeLabel(r))
		}()

		identifier := clientIdentifier(r)
		err := s.executor.Admit(identifier)
		s.setRateLimitHeaders(ww, identifier)
		if err != nil {
			s.reject(ww, r, identifier, err)
			return
		}

		failure := &handlerFailure{}
		ctx := context.WithValue(r.Context(), failureContextKey{}, failure)
		err = serveRecovered(next, ww, r.WithContext(ctx), failure)
		s.executor.Record(err)
		if err == nil {
			return
		}

		fields := []observe.Field{
			{Key: "requestId", Value: requestIDOf(r)},
			{Key: "error", Value: err.Error()},
		}
		if failure.stack != nil {
			fields = append(fields, observe.Field{Key: "stack", Value: string(failure.stack)})
		}
		s.logger.Error(r.Context(), "Request handler error", fields...)

		if ww.Status() == 0 && ww.BytesWritten() == 0 {
			s.writeInternalError(ww, r, err)
		}
	})
}

// serveRecovered runs next and returns the handler's reported error, or a
// wrapped ErrHandlerPanic if it panicked.
func serveRecovered(next http.Handler, w http.ResponseWriter, r *http.Request, failure *handlerFailure) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			failure.stack = debug.Stack()
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, rec)
		}
	}()

	next.ServeHTTP(w, r)
	return failure.err
}

func (s *Server) reject(w http.ResponseWriter, r *http.Request, identifier string, err error) {
	body := ErrorResponse{RequestID: requestIDOf(r)}
	var code int
	var reason string

	switch {
	case errors.Is(err, resilience.ErrRateLimitExceeded):
		code, reason = http.StatusTooManyRequests, "rate_limited"
		body.Error, body.Message = "Too Many Requests", "Rate limit exceeded"
		w.Header().Set("Retry-After", retryAfterSeconds(s.limiter.RetryAfter(identifier)))
	default:
		code, reason = http.StatusServiceUnavailable, "circuit_open"
		body.Error, body.Message = "Service Unavailable", "Circuit breaker is open"
	}

	if s.observe != nil {
		s.observe.Metrics().RecordRejection(r.Context(), reason)
	}
	s.rejectLog.Do(func() {
		s.logger.Warn(r.Context(), "Request rejected",
			observe.Field{Key: "requestId", Value: body.RequestID},
			observe.Field{Key: "reason", Value: reason},
			observe.Field{Key: "client", Value: identifier},
			observe.Field{Key: "url", Value: r.URL.RequestURI()},
		)
	})

	writeJSON(w, code, body)
}

func (s *Server) writeInternalError(w http.ResponseWriter, r *http.Request, err error) {
	message := genericErrorMessage
	if s.cfg.App.IsDevelopment() {
		message = err.Error()
	}
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:     "Internal Server Error",
		Message:   message,
		RequestID: requestIDOf(r),
	})
}

// setRateLimitHeaders reports identifier's window budget after admission.
func (s *Server) setRateLimitHeaders(w http.ResponseWriter, identifier string) {
	w.Header().Set(RateLimitLimitHeader, strconv.Itoa(s.limiter.Config().MaxRequests))
	w.Header().Set(RateLimitRemainingHeader, strconv.Itoa(s.limiter.Remaining(identifier)))
}

// clientIdentifier keys the rate limiter on the peer address. Forwarding
// headers only count when server.trust_proxy_headers enables RealIP.
func clientIdentifier(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// retryAfterSeconds renders d as a Retry-After value, rounding up to at
// least one second.
func retryAfterSeconds(d time.Duration) string {
	secs := int64(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strconv.FormatInt(secs, 10)
}
