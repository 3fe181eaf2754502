package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"gatekit.dev/internal/apperr"
)

func TestAdmitUnguardedRoutePassesWithoutCounting(t *testing.T) {
	gate := NewGate(failingCounter{}, DefaultRoutes())
	dec, err := gate.Admit(context.Background(), "10.0.0.1", "/v1/profile")
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}
	if !dec.Admitted {
		t.Fatalf("unguarded route must pass")
	}
}

func TestAdmitThrottlesSixthSignin(t *testing.T) {
	gate := NewGate(NewLocalCounter(), DefaultRoutes())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		dec, err := gate.Admit(ctx, "10.0.0.1", "/v1/auth/signin")
		if err != nil || !dec.Admitted {
			t.Fatalf("call %d should be admitted: %v", i+1, err)
		}
	}
	dec, err := gate.Admit(ctx, "10.0.0.1", "/v1/auth/signin")
	if dec.Admitted {
		t.Fatalf("sixth call must be throttled")
	}
	if !errors.Is(err, apperr.ErrRateLimited) {
		t.Fatalf("expected rate limit error, got %v", err)
	}
	if dec.RetryAfter != 60 {
		t.Fatalf("expected retry-after 60, got %d", dec.RetryAfter)
	}

	// A different caller is unaffected.
	other, err := gate.Admit(ctx, "10.0.0.2", "/v1/auth/signin")
	if err != nil || !other.Admitted {
		t.Fatalf("other caller should be admitted: %v", err)
	}
}

func TestAdmitWindowResets(t *testing.T) {
	now := time.Now()
	current := now
	clock := func() time.Time { return current }
	gate := NewGate(NewLocalCounterWithClock(clock), DefaultRoutes(), WithClock(clock))
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		gate.Admit(ctx, "10.0.0.1", "/v1/auth/signin")
	}
	current = now.Add(61 * time.Second)
	dec, err := gate.Admit(ctx, "10.0.0.1", "/v1/auth/signin")
	if err != nil || !dec.Admitted {
		t.Fatalf("new window should admit: %v", err)
	}
}

type failingCounter struct{}

func (failingCounter) Incr(context.Context, string, time.Duration) (int64, time.Duration, error) {
	return 0, 0, errors.New("backend unreachable")
}

func TestAdmitFailsOpenOnBackendError(t *testing.T) {
	gate := NewGate(failingCounter{}, DefaultRoutes())
	dec, err := gate.Admit(context.Background(), "10.0.0.1", "/v1/auth/signin")
	if err != nil {
		t.Fatalf("backend failure must not surface: %v", err)
	}
	if !dec.Admitted {
		t.Fatalf("backend failure must fail open")
	}
}

func TestAdmitFailsOpenWithoutBackend(t *testing.T) {
	gate := NewGate(nil, DefaultRoutes())
	dec, err := gate.Admit(context.Background(), "10.0.0.1", "/v1/auth/signin")
	if err != nil || !dec.Admitted {
		t.Fatalf("unprovisioned backend must fail open: %v", err)
	}
}

func TestRedisCounterFixedWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	counter := NewRedisCounter(client)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		count, remaining, err := counter.Incr(ctx, "ratelimit:ip|/v1/auth/signin", time.Minute)
		if err != nil {
			t.Fatalf("Incr: %v", err)
		}
		if count != want {
			t.Fatalf("expected count %d, got %d", want, count)
		}
		if remaining <= 0 || remaining > time.Minute {
			t.Fatalf("unexpected remaining %v", remaining)
		}
	}

	// Advancing past the window starts a fresh count.
	mr.FastForward(61 * time.Second)
	count, _, err := counter.Incr(ctx, "ratelimit:ip|/v1/auth/signin", time.Minute)
	if err != nil {
		t.Fatalf("Incr after window: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected fresh window count 1, got %d", count)
	}
}

func TestGateOverRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	gate := NewGate(NewRedisCounter(client), map[string]Limit{
		"/v1/auth/signin": {Requests: 2, Window: time.Minute},
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if dec, err := gate.Admit(ctx, "ip", "/v1/auth/signin"); err != nil || !dec.Admitted {
			t.Fatalf("call %d: %v", i+1, err)
		}
	}
	dec, err := gate.Admit(ctx, "ip", "/v1/auth/signin")
	if !errors.Is(err, apperr.ErrRateLimited) || dec.Admitted {
		t.Fatalf("expected throttle, got %v", err)
	}
}
