package server

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/roomrelay/roomrelay/internal/config"
	"github.com/roomrelay/roomrelay/internal/metrics"
)

func TestRateLimiterAllowsBurst(t *testing.T) {
	rl := newRateLimiter(config.RateLimitConfig{Burst: 5, RefillInterval: time.Second})

	for i := 0; i < 5; i++ {
		if !rl.allow() {
			t.Fatalf("frame %d within burst was denied", i)
		}
	}
	if rl.allow() {
		t.Fatal("frame beyond burst was allowed")
	}
}

func TestRateLimiterRefills(t *testing.T) {
	rl := newRateLimiter(config.RateLimitConfig{Burst: 2, RefillInterval: 100 * time.Millisecond})

	for i := 0; i < 2; i++ {
		if !rl.allow() {
			t.Fatalf("frame %d within burst was denied", i)
		}
	}
	if rl.allow() {
		t.Fatal("frame beyond burst was allowed")
	}

	time.Sleep(150 * time.Millisecond)

	if !rl.allow() {
		t.Fatal("frame after refill interval was denied")
	}
}

func TestRateLimitedFramesAreCounted(t *testing.T) {
	cfg := config.New()
	cfg.RateLimit = config.RateLimitConfig{Burst: 1, RefillInterval: time.Minute}
	client := NewClient(nil, nil, "test", cfg, zerolog.Nop())

	before := testutil.ToFloat64(metrics.RateLimitedTotal)

	if !client.checkRateLimit() {
		t.Fatal("first frame within burst was limited")
	}
	if client.checkRateLimit() {
		t.Fatal("second frame beyond burst was allowed")
	}

	if got := testutil.ToFloat64(metrics.RateLimitedTotal) - before; got != 1 {
		t.Fatalf("expected 1 discarded frame counted, got %v", got)
	}
}
