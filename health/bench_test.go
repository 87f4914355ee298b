package health

import (
	"context"
	"fmt"
	"net/http/httptest"
	"testing"
)

func BenchmarkMemoryChecker_Check(b *testing.B) {
	checker := NewMemoryChecker(MemoryCheckerConfig{})
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = checker.Check(ctx)
	}
}

func BenchmarkAggregator_RunChecks(b *testing.B) {
	for _, n := range []int{1, 3, 10} {
		b.Run(fmt.Sprintf("checks=%d", n), func(b *testing.B) {
			agg := NewAggregator()
			for i := 0; i < n; i++ {
				name := fmt.Sprintf("check-%d", i)
				agg.Register(name, NewCheckerFunc(name, func(ctx context.Context) Result {
					return Healthy("ok")
				}))
			}
			ctx := context.Background()

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				_ = agg.RunChecks(ctx)
			}
		})
	}
}

func BenchmarkDetailedHandler(b *testing.B) {
	agg := NewAggregator()
	agg.Register("memory", NewMemoryChecker(MemoryCheckerConfig{}))
	handler := DetailedHandler(agg)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		req := httptest.NewRequest("GET", "/health", nil)
		rec := httptest.NewRecorder()
		handler(rec, req)
	}
}
