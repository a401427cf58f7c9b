package domain

import "context"

// ProductRepository описывает требования к хранилищу каталога.
// Весь конкурентный доступ к остаткам идёт через DecrementStock/IncrementStock —
// отдельного read-modify-write пути не существует.
type ProductRepository interface {
	// Create сохраняет новую запись каталога.
	Create(ctx context.Context, product Product) error
	// Update перезаписывает запись каталога (административная операция).
	Update(ctx context.Context, product Product) error
	// Get возвращает товар по идентификатору или ErrProductNotFound.
	Get(ctx context.Context, id string) (Product, error)
	// GetByIDs выполняет batch-чтение; отсутствие любого идентификатора — ErrProductNotFound.
	GetByIDs(ctx context.Context, ids []string) (map[string]Product, error)
	// List возвращает каталог, отсортированный от новых к старым.
	List(ctx context.Context) ([]Product, error)
	// DecrementStock выполняет атомарный условный декремент: остаток уменьшается
	// только если текущий stock >= qty. Возвращает false, если условие не выполнено.
	DecrementStock(ctx context.Context, id string, qty int32) (bool, error)
	// IncrementStock возвращает qty единиц на склад (компенсация).
	IncrementStock(ctx context.Context, id string, qty int32) error
}

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create сохраняет новый заказ. Возвращает ошибку, если запись с таким ID уже существует.
	Create(ctx context.Context, order Order) error
	// Get возвращает заказ по идентификатору или ErrOrderNotFound.
	Get(ctx context.Context, id string) (Order, error)
	// FindByPaymentRef находит заказ по внешнему идентификатору платежа.
	FindByPaymentRef(ctx context.Context, ref string) (Order, error)
	// ListByUser возвращает заказы пользователя с опциональным ограничением на количество.
	ListByUser(ctx context.Context, userID string, limit int) ([]Order, error)
	// List возвращает все заказы (административный листинг).
	List(ctx context.Context, limit int) ([]Order, error)
	// Save применяет обновления к заказу с учётом optimistic locking.
	Save(ctx context.Context, order Order) error
}
