package stock

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Guard — единственная точка списания остатков. Каждое списание — атомарный
// условный декремент в хранилище; никакого read-then-write здесь нет.
type Guard struct {
	products domain.ProductRepository
	logger   *log.Entry
}

// NewGuard создаёт рабочий экземпляр guard.
func NewGuard(products domain.ProductRepository, logger *log.Entry) *Guard {
	if logger == nil {
		logger = log.New().WithField("component", "stock-guard")
	}
	return &Guard{products: products, logger: logger}
}

// Decrement списывает остатки по позициям заказа.
//
// strict=true — предоплаченный заказ: первый проигранный декремент откатывает
// уже списанные позиции и возвращает ErrStockConflict, частичного списания
// не остаётся.
//
// strict=false — финализация по асинхронному подтверждению: заказ уже принят
// и оплачен, проигранная гонка за остаток логируется, но не блокирует заказ.
func (g *Guard) Decrement(ctx context.Context, items []domain.OrderItem, strict bool) error {
	decremented := make([]domain.OrderItem, 0, len(items))

	for _, item := range items {
		ok, err := g.products.DecrementStock(ctx, item.ProductID, item.Qty)
		if err == nil && ok {
			decremented = append(decremented, item)
			continue
		}

		if !strict {
			g.logger.WithError(err).WithFields(log.Fields{
				"product_id": item.ProductID,
				"qty":        item.Qty,
			}).Warn("best-effort stock decrement lost the race")
			continue
		}

		g.rollback(ctx, decremented)
		if err != nil {
			return err
		}
		return domain.ErrStockConflict
	}

	return nil
}

// Restock возвращает ранее списанные позиции на склад. Используется как
// компенсация, когда заказ не удалось зафиксировать после strict-списания.
func (g *Guard) Restock(ctx context.Context, items []domain.OrderItem) {
	g.rollback(ctx, items)
}

func (g *Guard) rollback(ctx context.Context, items []domain.OrderItem) {
	for _, item := range items {
		if err := g.products.IncrementStock(ctx, item.ProductID, item.Qty); err != nil {
			g.logger.WithError(err).WithFields(log.Fields{
				"product_id": item.ProductID,
				"qty":        item.Qty,
			}).Error("stock rollback failed")
		}
	}
}
