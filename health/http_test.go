package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

var fixedNow = func() time.Time {
	return time.Date(2025, 3, 4, 5, 6, 7, 890_000_000, time.UTC)
}

func withTestID(r *http.Request) string { return "req-1" }

func serve(h http.HandlerFunc, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func aggregatorWith(results map[string]Result) *Aggregator {
	agg := NewAggregator()
	for name, result := range results {
		result := result
		agg.Register(name, NewCheckerFunc(name, func(ctx context.Context) Result {
			return result
		}))
	}
	return agg
}

func TestLivenessHandler(t *testing.T) {
	rec := serve(LivenessHandler(WithRequestID(withTestID), WithClock(fixedNow)), "/live")

	if rec.Code != http.StatusOK {
		t.Errorf("Status = %d, want %d", rec.Code, http.StatusOK)
	}
	if rec.Header().Get("Content-Type") != "application/json" {
		t.Errorf("Content-Type = %v, want 'application/json'", rec.Header().Get("Content-Type"))
	}

	var resp ProbeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	want := ProbeResponse{Status: "alive", Timestamp: "2025-03-04T05:06:07.890Z", RequestID: "req-1"}
	if resp != want {
		t.Errorf("response = %+v, want %+v", resp, want)
	}
}

func TestReadinessHandler(t *testing.T) {
	tests := []struct {
		name   string
		result Result
		code   int
		status string
	}{
		{"healthy", Healthy("ok"), http.StatusOK, "ready"},
		{"degraded is still ready", Degraded("slow"), http.StatusOK, "ready"},
		{"unhealthy", Unhealthy("down", nil), http.StatusServiceUnavailable, "not ready"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agg := aggregatorWith(map[string]Result{"test": tt.result})
			rec := serve(ReadinessHandler(agg, WithRequestID(withTestID)), "/ready")

			if rec.Code != tt.code {
				t.Errorf("Status = %d, want %d", rec.Code, tt.code)
			}

			var resp ProbeResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("Failed to parse response: %v", err)
			}
			if resp.Status != tt.status {
				t.Errorf("status = %v, want %v", resp.Status, tt.status)
			}
			if resp.RequestID != "req-1" {
				t.Errorf("requestId = %v, want req-1", resp.RequestID)
			}
		})
	}
}

func TestDetailedHandler(t *testing.T) {
	tests := []struct {
		name   string
		result Result
		code   int
		status string
	}{
		{"healthy", Healthy("ok"), http.StatusOK, "healthy"},
		{"degraded", Degraded("slow"), http.StatusOK, "degraded"},
		{"unhealthy", Unhealthy("down", ErrCheckFailed), http.StatusServiceUnavailable, "unhealthy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agg := aggregatorWith(map[string]Result{"test": tt.result})
			rec := serve(DetailedHandler(agg), "/health")

			if rec.Code != tt.code {
				t.Errorf("Status = %d, want %d", rec.Code, tt.code)
			}

			var resp HealthResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("Failed to parse response: %v", err)
			}
			if resp.Status != tt.status {
				t.Errorf("status = %v, want %v", resp.Status, tt.status)
			}
			if resp.Checks["test"]["status"] != tt.status {
				t.Errorf("checks.test.status = %v, want %v", resp.Checks["test"]["status"], tt.status)
			}
		})
	}
}

func TestDetailedHandler_FlattensDetails(t *testing.T) {
	agg := aggregatorWith(map[string]Result{
		"memory": Healthy("ok").WithDetails(map[string]any{
			"heapUsed":    1024,
			"percentUsed": "50.00%",
			"status":      "overridden",
		}),
		"broken": Unhealthy("failed", ErrCheckFailed),
	})

	rec := serve(DetailedHandler(agg), "/health")

	var raw map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &raw); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	for _, key := range []string{"status", "checks", "timestamp"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("response missing %q", key)
		}
	}

	checks := raw["checks"].(map[string]any)
	memory := checks["memory"].(map[string]any)
	if memory["heapUsed"] != float64(1024) {
		t.Errorf("memory.heapUsed = %v, want 1024", memory["heapUsed"])
	}
	if memory["percentUsed"] != "50.00%" {
		t.Errorf("memory.percentUsed = %v, want 50.00%%", memory["percentUsed"])
	}
	if memory["status"] != "healthy" {
		t.Errorf("memory.status = %v, want healthy", memory["status"])
	}
	if _, ok := memory["error"]; ok {
		t.Error("memory.error should be absent")
	}

	broken := checks["broken"].(map[string]any)
	if broken["error"] != ErrCheckFailed.Error() {
		t.Errorf("broken.error = %v, want %v", broken["error"], ErrCheckFailed.Error())
	}
}

func TestSingleCheckHandler(t *testing.T) {
	agg := aggregatorWith(map[string]Result{"test": Degraded("slow")})

	rec := serve(SingleCheckHandler(agg, "test"), "/health/test")
	if rec.Code != http.StatusOK {
		t.Errorf("Status = %d, want %d", rec.Code, http.StatusOK)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if body["status"] != "degraded" {
		t.Errorf("status = %v, want degraded", body["status"])
	}
}

func TestSingleCheckHandler_NotFound(t *testing.T) {
	rec := serve(SingleCheckHandler(NewAggregator(), "missing"), "/health/missing")

	if rec.Code != http.StatusNotFound {
		t.Errorf("Status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}
