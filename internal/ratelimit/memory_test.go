package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestMemoryLimiter_Allow(t *testing.T) {
	limiter := NewMemoryLimiter(time.Minute, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := limiter.Allow(ctx, "user-1")
		if err != nil {
			t.Fatalf("allow errored: %v", err)
		}
		if !ok {
			t.Fatalf("hit %d must be allowed", i+1)
		}
	}

	ok, err := limiter.Allow(ctx, "user-1")
	if err != nil {
		t.Fatalf("allow errored: %v", err)
	}
	if ok {
		t.Fatal("4th hit within window must be refused")
	}
}

func TestMemoryLimiter_KeysAreIndependent(t *testing.T) {
	limiter := NewMemoryLimiter(time.Minute, 1)
	ctx := context.Background()

	if ok, _ := limiter.Allow(ctx, "user-1"); !ok {
		t.Fatal("first hit for user-1 must be allowed")
	}
	if ok, _ := limiter.Allow(ctx, "user-2"); !ok {
		t.Fatal("first hit for user-2 must be allowed")
	}
	if ok, _ := limiter.Allow(ctx, "user-1"); ok {
		t.Fatal("second hit for user-1 must be refused")
	}
}

func TestMemoryLimiter_WindowSlides(t *testing.T) {
	limiter := NewMemoryLimiter(time.Minute, 1)
	current := time.Now()
	limiter.now = func() time.Time { return current }
	ctx := context.Background()

	if ok, _ := limiter.Allow(ctx, "user-1"); !ok {
		t.Fatal("first hit must be allowed")
	}
	if ok, _ := limiter.Allow(ctx, "user-1"); ok {
		t.Fatal("second hit must be refused")
	}

	// Окно уехало: старые отметки выпадают.
	current = current.Add(61 * time.Second)
	if ok, _ := limiter.Allow(ctx, "user-1"); !ok {
		t.Fatal("hit after window must be allowed")
	}
}

func TestMemoryLimiter_EvictsIdleKeys(t *testing.T) {
	limiter := NewMemoryLimiter(time.Minute, 3)
	current := time.Now()
	limiter.now = func() time.Time { return current }
	ctx := context.Background()

	if ok, _ := limiter.Allow(ctx, "user-1"); !ok {
		t.Fatal("first hit for user-1 must be allowed")
	}

	// Два окна спустя user-1 молчит: следующий Allow выметает его ключ,
	// карта не растёт на каждый когда-либо виденный ключ.
	current = current.Add(2 * time.Minute)
	if ok, _ := limiter.Allow(ctx, "user-2"); !ok {
		t.Fatal("first hit for user-2 must be allowed")
	}

	limiter.mu.Lock()
	defer limiter.mu.Unlock()
	if _, ok := limiter.hits["user-1"]; ok {
		t.Fatal("idle key user-1 must be evicted from the hits map")
	}
	if _, ok := limiter.hits["user-2"]; !ok {
		t.Fatal("active key user-2 must stay in the hits map")
	}
}
