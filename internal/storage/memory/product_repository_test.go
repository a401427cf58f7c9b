package memory_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

func newProduct(id string, stock int32) domain.Product {
	now := time.Now().UTC()
	return domain.Product{
		ID:         id,
		Name:       "Sneakers",
		PriceMinor: 2500,
		Stock:      stock,
		Image:      "https://cdn.example/sneakers.jpg",
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func TestProductRepository_CreateGet(t *testing.T) {
	repo := memory.NewProductRepository()
	ctx := context.Background()

	if err := repo.Create(ctx, newProduct("prod-1", 5)); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	stored, err := repo.Get(ctx, "prod-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if stored.Stock != 5 {
		t.Fatalf("expected stock 5, got %d", stored.Stock)
	}

	if _, err := repo.Get(ctx, "missing"); !errors.Is(err, domain.ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
}

func TestProductRepository_GetByIDs_AllOrNothing(t *testing.T) {
	repo := memory.NewProductRepository()
	ctx := context.Background()

	if err := repo.Create(ctx, newProduct("prod-1", 5)); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if _, err := repo.GetByIDs(ctx, []string{"prod-1", "missing"}); !errors.Is(err, domain.ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound for partial hit, got %v", err)
	}

	products, err := repo.GetByIDs(ctx, []string{"prod-1"})
	if err != nil {
		t.Fatalf("batch get failed: %v", err)
	}
	if len(products) != 1 {
		t.Fatalf("expected 1 product, got %d", len(products))
	}
}

func TestProductRepository_DecrementStock(t *testing.T) {
	repo := memory.NewProductRepository()
	ctx := context.Background()

	if err := repo.Create(ctx, newProduct("prod-1", 5)); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	ok, err := repo.DecrementStock(ctx, "prod-1", 3)
	if err != nil || !ok {
		t.Fatalf("expected successful decrement, got ok=%v err=%v", ok, err)
	}

	// Осталось 2: декремент на 3 должен провалить условие, остаток не трогается.
	ok, err = repo.DecrementStock(ctx, "prod-1", 3)
	if err != nil {
		t.Fatalf("conditional decrement must not error: %v", err)
	}
	if ok {
		t.Fatal("expected decrement to be refused")
	}

	stored, err := repo.Get(ctx, "prod-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if stored.Stock != 2 {
		t.Fatalf("expected stock 2, got %d", stored.Stock)
	}
}

func TestProductRepository_DecrementStock_NeverNegative(t *testing.T) {
	repo := memory.NewProductRepository()
	ctx := context.Background()

	const initial = int32(10)
	if err := repo.Create(ctx, newProduct("prod-1", initial)); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	// 30 конкурентных декрементов по 1: успешных должно быть ровно initial.
	var wg sync.WaitGroup
	var successes int32
	var mu sync.Mutex
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := repo.DecrementStock(ctx, "prod-1", 1)
			if err != nil {
				t.Errorf("decrement errored: %v", err)
				return
			}
			if ok {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if successes != initial {
		t.Fatalf("expected %d successful decrements, got %d", initial, successes)
	}

	stored, err := repo.Get(ctx, "prod-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if stored.Stock != 0 {
		t.Fatalf("expected stock 0, got %d", stored.Stock)
	}
}

func TestProductRepository_IncrementStock(t *testing.T) {
	repo := memory.NewProductRepository()
	ctx := context.Background()

	if err := repo.Create(ctx, newProduct("prod-1", 1)); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := repo.IncrementStock(ctx, "prod-1", 4); err != nil {
		t.Fatalf("increment failed: %v", err)
	}

	stored, err := repo.Get(ctx, "prod-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if stored.Stock != 5 {
		t.Fatalf("expected stock 5, got %d", stored.Stock)
	}
}
