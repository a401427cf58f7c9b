package stock_test

import (
	"context"
	"errors"
	"testing"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/stock"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

func seedProducts(t *testing.T, stocks map[string]int32) domain.ProductRepository {
	t.Helper()

	repo := memory.NewProductRepository()
	for id, qty := range stocks {
		product := domain.Product{
			ID:         id,
			Name:       "Sneakers",
			PriceMinor: 2500,
			Stock:      qty,
		}
		if err := repo.Create(context.Background(), product); err != nil {
			t.Fatalf("seed product %s: %v", id, err)
		}
	}
	return repo
}

func stockOf(t *testing.T, repo domain.ProductRepository, id string) int32 {
	t.Helper()

	product, err := repo.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get product %s: %v", id, err)
	}
	return product.Stock
}

func TestGuard_Decrement_Strict(t *testing.T) {
	repo := seedProducts(t, map[string]int32{"prod-1": 5, "prod-2": 3})
	guard := stock.NewGuard(repo, nil)

	items := []domain.OrderItem{
		{ProductID: "prod-1", Qty: 2},
		{ProductID: "prod-2", Qty: 1},
	}
	if err := guard.Decrement(context.Background(), items, true); err != nil {
		t.Fatalf("decrement failed: %v", err)
	}

	if got := stockOf(t, repo, "prod-1"); got != 3 {
		t.Fatalf("expected stock 3, got %d", got)
	}
	if got := stockOf(t, repo, "prod-2"); got != 2 {
		t.Fatalf("expected stock 2, got %d", got)
	}
}

func TestGuard_Decrement_StrictRollsBackOnConflict(t *testing.T) {
	repo := seedProducts(t, map[string]int32{"prod-1": 5, "prod-2": 1})
	guard := stock.NewGuard(repo, nil)

	items := []domain.OrderItem{
		{ProductID: "prod-1", Qty: 2},
		{ProductID: "prod-2", Qty: 4},
	}
	err := guard.Decrement(context.Background(), items, true)
	if !errors.Is(err, domain.ErrStockConflict) {
		t.Fatalf("expected ErrStockConflict, got %v", err)
	}

	// Частичного списания не остаётся.
	if got := stockOf(t, repo, "prod-1"); got != 5 {
		t.Fatalf("expected prod-1 restored to 5, got %d", got)
	}
	if got := stockOf(t, repo, "prod-2"); got != 1 {
		t.Fatalf("expected prod-2 untouched at 1, got %d", got)
	}
}

func TestGuard_Decrement_BestEffortContinues(t *testing.T) {
	repo := seedProducts(t, map[string]int32{"prod-1": 1, "prod-2": 3})
	guard := stock.NewGuard(repo, nil)

	items := []domain.OrderItem{
		{ProductID: "prod-1", Qty: 2},
		{ProductID: "prod-2", Qty: 3},
	}
	if err := guard.Decrement(context.Background(), items, false); err != nil {
		t.Fatalf("best-effort decrement must not fail: %v", err)
	}

	if got := stockOf(t, repo, "prod-1"); got != 1 {
		t.Fatalf("expected prod-1 untouched at 1, got %d", got)
	}
	if got := stockOf(t, repo, "prod-2"); got != 0 {
		t.Fatalf("expected prod-2 drained to 0, got %d", got)
	}
}

func TestGuard_Restock(t *testing.T) {
	repo := seedProducts(t, map[string]int32{"prod-1": 5})
	guard := stock.NewGuard(repo, nil)

	items := []domain.OrderItem{{ProductID: "prod-1", Qty: 2}}
	if err := guard.Decrement(context.Background(), items, true); err != nil {
		t.Fatalf("decrement failed: %v", err)
	}
	guard.Restock(context.Background(), items)

	if got := stockOf(t, repo, "prod-1"); got != 5 {
		t.Fatalf("expected stock restored to 5, got %d", got)
	}
}
