package health

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"
)

// TimestampFormat is the layout of timestamps in health responses.
const TimestampFormat = "2006-01-02T15:04:05.000Z07:00"

// HandlerOption configures the HTTP handlers.
type HandlerOption func(*handlerOptions)

type handlerOptions struct {
	requestID func(*http.Request) string
	now       func() time.Time
}

// WithRequestID sets the function used to fill the requestId field.
func WithRequestID(fn func(*http.Request) string) HandlerOption {
	return func(o *handlerOptions) {
		o.requestID = fn
	}
}

// WithClock sets the clock used for response timestamps.
func WithClock(now func() time.Time) HandlerOption {
	return func(o *handlerOptions) {
		o.now = now
	}
}

func newHandlerOptions(opts []HandlerOption) handlerOptions {
	o := handlerOptions{
		requestID: func(*http.Request) string { return "" },
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o handlerOptions) timestamp() string {
	return o.now().UTC().Format(TimestampFormat)
}

// ProbeResponse is the JSON body of the liveness and readiness endpoints.
type ProbeResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	RequestID string `json:"requestId,omitempty"`
}

// LivenessHandler returns an HTTP handler for liveness probes. It runs no
// checks and always answers 200.
func LivenessHandler(opts ...HandlerOption) http.HandlerFunc {
	o := newHandlerOptions(opts)
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, ProbeResponse{
			Status:    "alive",
			Timestamp: o.timestamp(),
			RequestID: o.requestID(r),
		}, false)
	}
}

// ReadinessHandler returns an HTTP handler for readiness probes. The service
// is ready unless the aggregate status is unhealthy.
func ReadinessHandler(agg *Aggregator, opts ...HandlerOption) http.HandlerFunc {
	o := newHandlerOptions(opts)
	return func(w http.ResponseWriter, r *http.Request) {
		report := agg.RunChecks(r.Context())

		code, status := http.StatusOK, "ready"
		if report.Status == StatusUnhealthy {
			code, status = http.StatusServiceUnavailable, "not ready"
		}

		writeJSON(w, code, ProbeResponse{
			Status:    status,
			Timestamp: o.timestamp(),
			RequestID: o.requestID(r),
		}, false)
	}
}

// DetailedHandler returns an HTTP handler that runs every check and reports
// each result. It answers 503 only when the aggregate status is unhealthy.
func DetailedHandler(agg *Aggregator, opts ...HandlerOption) http.HandlerFunc {
	o := newHandlerOptions(opts)
	return func(w http.ResponseWriter, r *http.Request) {
		report := agg.RunChecks(r.Context())
		body := NewHealthResponse(report)
		body.RequestID = o.requestID(r)
		writeJSON(w, statusCode(report.Status), body, true)
	}
}

// SingleCheckHandler returns an HTTP handler for checking a single component.
func SingleCheckHandler(agg *Aggregator, name string, opts ...HandlerOption) http.HandlerFunc {
	o := newHandlerOptions(opts)
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := agg.Check(r.Context(), name)
		if errors.Is(err, ErrCheckerNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error":     err.Error(),
				"requestId": o.requestID(r),
			}, false)
			return
		}

		writeJSON(w, statusCode(result.Status), CheckBody(result), true)
	}
}

// HealthResponse is the JSON body of the detailed health endpoint.
type HealthResponse struct {
	Status    string                    `json:"status"`
	Checks    map[string]map[string]any `json:"checks"`
	Timestamp string                    `json:"timestamp"`
	RequestID string                    `json:"requestId,omitempty"`
}

// NewHealthResponse renders a report as a HealthResponse.
func NewHealthResponse(report Report) HealthResponse {
	resp := HealthResponse{
		Status:    report.Status.String(),
		Checks:    make(map[string]map[string]any, len(report.Checks)),
		Timestamp: report.Timestamp.UTC().Format(TimestampFormat),
	}
	for name, result := range report.Checks {
		resp.Checks[name] = CheckBody(result)
	}
	return resp
}

// CheckBody flattens a result into {status, ...details, error?}. The
// status and error keys win over details of the same name.
func CheckBody(result Result) map[string]any {
	body := make(map[string]any, len(result.Details)+3)
	for k, v := range result.Details {
		body[k] = v
	}
	body["status"] = result.Status.String()
	if result.Message != "" {
		body["message"] = result.Message
	}
	if result.Error != nil {
		body["error"] = result.Error.Error()
	}
	return body
}

func statusCode(s Status) int {
	if s == StatusUnhealthy {
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}

func writeJSON(w http.ResponseWriter, code int, body any, indent bool) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	enc := json.NewEncoder(w)
	if indent {
		enc.SetIndent("", "  ")
	}
	_ = enc.Encode(body)
}
