package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// MemoryLimiter — скользящее окно на per-key списках отметок времени.
// Пригоден для одного инстанса; в многоинстансной конфигурации используется
// redis-вариант с разделяемым счётчиком.
type MemoryLimiter struct {
	window time.Duration
	max    int
	now    func() time.Time

	mu        sync.Mutex
	hits      map[string][]time.Time
	lastSweep time.Time
}

// NewMemoryLimiter создаёт лимитер: не более max обращений на ключ за window.
func NewMemoryLimiter(window time.Duration, max int) *MemoryLimiter {
	if window <= 0 {
		window = 10 * time.Minute
	}
	if max <= 0 {
		max = 60
	}
	return &MemoryLimiter{
		window: window,
		max:    max,
		now:    time.Now,
		hits:   make(map[string][]time.Time),
	}
}

// Allow регистрирует обращение и сообщает, укладывается ли ключ в лимит.
func (l *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	now := l.now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	l.sweep(now, cutoff)

	kept := l.hits[key][:0]
	for _, hit := range l.hits[key] {
		if hit.After(cutoff) {
			kept = append(kept, hit)
		}
	}

	if len(kept) >= l.max {
		l.hits[key] = kept
		return false, nil
	}

	l.hits[key] = append(kept, now)
	return true, nil
}

// sweep раз в окно выбрасывает ключи без свежих отметок, иначе карта
// копит записи по каждому когда-либо виденному пользователю и адресу.
func (l *MemoryLimiter) sweep(now time.Time, cutoff time.Time) {
	if now.Sub(l.lastSweep) < l.window {
		return
	}
	l.lastSweep = now

	for key, hits := range l.hits {
		if len(hits) == 0 || !hits[len(hits)-1].After(cutoff) {
			delete(l.hits, key)
		}
	}
}

var _ domain.RateLimiter = (*MemoryLimiter)(nil)
