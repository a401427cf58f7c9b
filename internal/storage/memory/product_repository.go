package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// productRepositoryInMemory — простая in-memory реализация ProductRepository.
// Условный декремент выполняется атомарно под mutex: это единственный путь
// изменения остатка, read-modify-write снаружи невозможен.
type productRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Product
}

// NewProductRepository возвращает in-memory каталог для локальной разработки и тестов.
func NewProductRepository() domain.ProductRepository {
	return &productRepositoryInMemory{
		items: make(map[string]domain.Product),
	}
}

// Create сохраняет новую запись каталога, если ID ещё не занят.
func (r *productRepositoryInMemory) Create(_ context.Context, product domain.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[product.ID]; exists {
		return domain.ErrInvalidProductRef
	}
	r.items[product.ID] = product
	return nil
}

// Update перезаписывает запись каталога.
func (r *productRepositoryInMemory) Update(_ context.Context, product domain.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[product.ID]; !exists {
		return domain.ErrProductNotFound
	}
	r.items[product.ID] = product
	return nil
}

// Get возвращает товар или ErrProductNotFound.
func (r *productRepositoryInMemory) Get(_ context.Context, id string) (domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	product, ok := r.items[id]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return product, nil
}

// GetByIDs выполняет batch-чтение: отсутствие любого идентификатора — ошибка целиком.
func (r *productRepositoryInMemory) GetByIDs(_ context.Context, ids []string) (map[string]domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		product, ok := r.items[id]
		if !ok {
			return nil, domain.ErrProductNotFound
		}
		result[id] = product
	}
	return result, nil
}

// List возвращает каталог от новых записей к старым.
func (r *productRepositoryInMemory) List(_ context.Context) ([]domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Product, 0, len(r.items))
	for _, product := range r.items {
		result = append(result, product)
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})

	return result, nil
}

// DecrementStock выполняет compare-and-decrement: остаток уменьшается только
// если текущего stock хватает на запрошенное количество.
func (r *productRepositoryInMemory) DecrementStock(_ context.Context, id string, qty int32) (bool, error) {
	if qty <= 0 {
		return false, domain.ErrInvalidQuantity
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	product, ok := r.items[id]
	if !ok {
		return false, domain.ErrProductNotFound
	}
	if product.Stock < qty {
		return false, nil
	}
	product.Stock -= qty
	r.items[id] = product
	return true, nil
}

// IncrementStock возвращает qty единиц на склад (компенсация неудавшейся операции).
func (r *productRepositoryInMemory) IncrementStock(_ context.Context, id string, qty int32) error {
	if qty <= 0 {
		return domain.ErrInvalidQuantity
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	product, ok := r.items[id]
	if !ok {
		return domain.ErrProductNotFound
	}
	product.Stock += qty
	r.items[id] = product
	return nil
}

var _ domain.ProductRepository = (*productRepositoryInMemory)(nil)
