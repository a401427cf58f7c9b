package app

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/ratelimit"
	"github.com/vladislavdragonenkov/storefront/internal/service/auth"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
	"github.com/vladislavdragonenkov/storefront/internal/storage/postgres"
)

// Dependencies содержит хранилища и внешние клиенты приложения.
type Dependencies struct {
	Products    domain.ProductRepository
	Orders      domain.OrderRepository
	Outbox      domain.OutboxRepository
	Timeline    domain.TimelineRepository
	Idempotency domain.IdempotencyRepository
	Limiter     domain.RateLimiter
	Auth        domain.Authenticator

	// Store не nil только в postgres-режиме.
	Store *postgres.Store
	// Redis не nil только когда лимитер разделяемый.
	Redis *redis.Client

	Logger *log.Entry
}

// NewDependencies собирает зависимости по конфигурации: postgres против
// in-memory хранилища, redis против локального rate limiter.
func NewDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*Dependencies, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	deps := &Dependencies{Logger: logger}

	if cfg.DatabaseURL != "" {
		store, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := store.EnsureSchema(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("apply migrations: %w", err)
		}

		deps.Store = store
		deps.Products = postgres.NewProductRepository(store)
		deps.Orders = postgres.NewOrderRepository(store)
		deps.Outbox = postgres.NewOutboxRepository(store)
		deps.Timeline = postgres.NewTimelineRepository(store)
		deps.Idempotency = postgres.NewIdempotencyRepository(store)
		logger.Info("postgres storage initialized")
	} else {
		deps.Products = memory.NewProductRepository()
		deps.Orders = memory.NewOrderRepository()
		deps.Outbox = memory.NewOutboxRepository()
		deps.Timeline = memory.NewTimelineRepository()
		deps.Idempotency = memory.NewIdempotencyRepository()
		logger.Info("using in-memory storage")
	}

	deps.Limiter = buildLimiter(ctx, cfg, deps, logger)

	users, err := auth.ParseTokenTable(cfg.AuthTokens)
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("parse auth tokens: %w", err)
	}
	if len(users) == 0 {
		logger.Warn("no auth tokens configured, all authenticated endpoints will reject")
	}
	deps.Auth = auth.NewStaticAuthenticator(users)

	return deps, nil
}

// buildLimiter выбирает разделяемый redis-лимитер либо локальный in-memory.
// Недоступный redis не мешает старту: лимитер деградирует до локального.
func buildLimiter(ctx context.Context, cfg Config, deps *Dependencies, logger *log.Entry) domain.RateLimiter {
	if cfg.RedisAddr == "" {
		return ratelimit.NewMemoryLimiter(cfg.RateLimitWindow, cfg.RateLimitMax)
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.WithError(err).Warn("redis unavailable, falling back to in-memory rate limiter")
		_ = client.Close()
		return ratelimit.NewMemoryLimiter(cfg.RateLimitWindow, cfg.RateLimitMax)
	}

	deps.Redis = client
	logger.WithField("addr", cfg.RedisAddr).Info("redis rate limiter initialized")
	return ratelimit.NewRedisLimiter(client, cfg.RateLimitWindow, cfg.RateLimitMax, logger.WithField("component", "ratelimit"))
}

// Close освобождает внешние ресурсы.
func (d *Dependencies) Close() {
	if d == nil {
		return
	}
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			d.Logger.WithError(err).Warn("failed to close redis client")
		}
	}
	if d.Store != nil {
		if err := d.Store.Close(); err != nil {
			d.Logger.WithError(err).Warn("failed to close postgres store")
		}
	}
}
