package cachemetrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/flowctl/core/pkg/cache/cachemem"
	"github.com/flowctl/core/pkg/metrics"
)

func TestGetRecordsHitAndMiss(t *testing.T) {
	ctx := context.Background()
	inner := cachemem.New()
	c := Wrap(inner, "test-backend-miss")

	if _, ok, err := c.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}
	if got := testutil.ToFloat64(metrics.CacheMissesTotal.WithLabelValues("test-backend-miss")); got != 1 {
		t.Fatalf("expected miss counter at 1, got %v", got)
	}

	c2 := Wrap(inner, "test-backend-hit")
	if err := c2.Set(ctx, "key", []byte("value"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, ok, err := c2.Get(ctx, "key"); err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if got := testutil.ToFloat64(metrics.CacheHitsTotal.WithLabelValues("test-backend-hit")); got != 1 {
		t.Fatalf("expected hit counter at 1, got %v", got)
	}
}
