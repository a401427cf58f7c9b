package domain

import "time"

// OrderStatus описывает жизненный цикл заказа.
type OrderStatus string

const (
	// OrderStatusPendingPayment — заказ создан, подтверждение оплаты ещё не получено.
	OrderStatusPendingPayment OrderStatus = "pending_payment"
	// OrderStatusPaid — оплата подтверждена платёжным провайдером.
	OrderStatusPaid OrderStatus = "paid"
	// OrderStatusDelivered — заказ доставлен (административное действие).
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled — заказ отменён до оплаты; терминальный статус.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// statusRank задаёт порядок на решётке статусов; переходы назад запрещены.
var statusRank = map[OrderStatus]int{
	OrderStatusPendingPayment: 1,
	OrderStatusPaid:           2,
	OrderStatusDelivered:      3,
}

// ParseOrderStatus преобразует строку во внутренний статус.
func ParseOrderStatus(s string) (OrderStatus, error) {
	switch OrderStatus(s) {
	case OrderStatusPendingPayment, OrderStatusPaid, OrderStatusDelivered, OrderStatusCancelled:
		return OrderStatus(s), nil
	default:
		return "", ErrUnknownOrderStatus
	}
}

// IsPaidOrLater сообщает, достиг ли заказ состояния "оплачен" или более позднего.
// Именно эта проверка делает повторные webhook и verify-вызовы безопасными.
func (s OrderStatus) IsPaidOrLater() bool {
	return statusRank[s] >= statusRank[OrderStatusPaid]
}

// OrderItem — снимок позиции каталога, зафиксированный при создании заказа.
// Последующие изменения цены в каталоге не затрагивают исторические заказы.
type OrderItem struct {
	ID        string
	ProductID string
	Name      string
	Qty       int32
	// PriceMinor — цена за единицу в минимальных денежных единицах на момент создания.
	PriceMinor int64
	Image      string
	Size       string
	CreatedAt  time.Time
}

// Order агрегирует состояние заказа и его позиции.
type Order struct {
	ID            string
	UserID        string
	Status        OrderStatus
	PaymentMethod PaymentMethod
	// PaymentRef — внешний идентификатор платежа у провайдера; может быть пустым.
	PaymentRef      string
	Currency        string
	AmountMinor     int64
	Items           []OrderItem
	ShippingAddress string
	Phone           string
	Version         int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.UserID == "" {
		errs = append(errs, ErrUserRequired)
	}
	if o.ShippingAddress == "" {
		errs = append(errs, ErrShippingAddressRequired)
	}
	if o.Phone == "" {
		errs = append(errs, ErrPhoneRequired)
	}
	if len(o.Items) == 0 {
		errs = append(errs, ErrItemsRequired)
	}
	if o.AmountMinor < 0 {
		errs = append(errs, ErrAmountNegative)
	}

	// Сверяем сумму заказа с суммой позиций: qty * price.
	var calc int64
	for _, item := range o.Items {
		if item.Qty <= 0 {
			errs = append(errs, ErrInvalidQuantity)
		}
		if item.PriceMinor <= 0 {
			errs = append(errs, ErrInvalidPrice)
		}
		calc += int64(item.Qty) * item.PriceMinor
	}
	if calc != o.AmountMinor {
		errs = append(errs, ErrAmountMismatch)
	}

	return errs
}

// AdvanceTo применяет переход статуса по решётке жизненного цикла.
// Переход в уже достигнутый или более ранний статус — no-op (changed=false, err=nil),
// что делает повторные подтверждения идемпотентными. Недопустимые боковые переходы
// (например, paid -> cancelled) возвращают ErrInvalidStatusTransition.
func (o *Order) AdvanceTo(target OrderStatus) (bool, error) {
	if _, err := ParseOrderStatus(string(target)); err != nil {
		return false, err
	}
	if o.Status == target {
		return false, nil
	}

	if o.Status == OrderStatusCancelled {
		// Терминальный статус: двигаться дальше некуда.
		return false, ErrInvalidStatusTransition
	}

	if target == OrderStatusCancelled {
		if o.Status != OrderStatusPendingPayment {
			return false, ErrInvalidStatusTransition
		}
		o.Status = OrderStatusCancelled
		return true, nil
	}

	cur, ok := statusRank[o.Status]
	next, ok2 := statusRank[target]
	if !ok || !ok2 {
		return false, ErrInvalidStatusTransition
	}
	if next <= cur {
		// Регресс невозможен: дубликат подтверждения просто игнорируется.
		return false, nil
	}
	if next != cur+1 {
		return false, ErrInvalidStatusTransition
	}

	o.Status = target
	return true, nil
}
