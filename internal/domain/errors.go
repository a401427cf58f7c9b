package domain

import "errors"

var (
	// Ошибка пустой или отсутствующей корзины.
	ErrEmptyCart = errors.New("cart is empty")
	// Ошибка некорректного идентификатора товара в корзине.
	ErrInvalidProductRef = errors.New("invalid product reference")
	// Ошибка при некорректном количестве товара (<= 0).
	ErrInvalidQuantity = errors.New("quantity must be a positive integer")
	// ErrProductNotFound возвращается, если хотя бы один товар корзины не найден в каталоге.
	ErrProductNotFound = errors.New("product not found")
	// ErrInsufficientStock — на складе меньше единиц, чем запрошено.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrInvalidPrice — защитный инвариант: цена в каталоге не положительная.
	ErrInvalidPrice = errors.New("product price must be positive")
	// ErrStockConflict — условный декремент проиграл гонку за остаток.
	ErrStockConflict = errors.New("stock conflict")

	// ErrPaymentVerificationFailed — провайдер вернул несовпадающий статус/валюту/сумму.
	ErrPaymentVerificationFailed = errors.New("payment verification failed")
	// ErrPaymentProviderUnavailable — транспортная ошибка или таймаут при обращении к провайдеру.
	ErrPaymentProviderUnavailable = errors.New("payment provider unavailable")
	// ErrInvalidWebhookSignature — подпись webhook не прошла проверку.
	ErrInvalidWebhookSignature = errors.New("invalid webhook signature")
	// ErrPaymentNotConfigured — отсутствуют учётные данные/секреты провайдера.
	ErrPaymentNotConfigured = errors.New("payment provider is not configured")
	// ErrUnknownPaymentMethod — для метода оплаты не зарегистрирован verifier.
	ErrUnknownPaymentMethod = errors.New("unknown payment method")
	// ErrPaymentRefRequired — для метода с моментальной верификацией не передан reference.
	ErrPaymentRefRequired = errors.New("payment reference is required")

	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrOrderVersionConflict = errors.New("order version conflict")
	// ErrInvalidStatusTransition — переход статуса вне решётки жизненного цикла.
	ErrInvalidStatusTransition = errors.New("invalid order status transition")
	// ErrUnknownOrderStatus — строка статуса не входит в перечисление.
	ErrUnknownOrderStatus = errors.New("unknown order status")

	// Ошибка отсутствующего идентификатора пользователя.
	ErrUserRequired = errors.New("user_id is required")
	// Ошибка отсутствующего адреса доставки.
	ErrShippingAddressRequired = errors.New("shipping address is required")
	// Ошибка отсутствующего контактного телефона.
	ErrPhoneRequired = errors.New("phone is required")
	// Ошибка отрицательной суммы заказа.
	ErrAmountNegative = errors.New("amount_minor must be non-negative")
	// Ошибка несоответствия суммы заказа и сумм позиций.
	ErrAmountMismatch = errors.New("order amount does not match items sum")
	// Ошибка отсутствия хотя бы одного товара в заказе.
	ErrItemsRequired = errors.New("order must contain at least one item")

	// ErrUnauthenticated — токен отсутствует или не распознан.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrForbidden — у пользователя нет требуемой роли.
	ErrForbidden = errors.New("forbidden")

	// ErrIdempotencyKeyRequired — пустой idempotency key.
	ErrIdempotencyKeyRequired = errors.New("idempotency key is required")
	// ErrIdempotencyRequestHashRequired — пустой hash запроса.
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	// ErrIdempotencyKeyAlreadyExists — ключ уже зарегистрирован.
	ErrIdempotencyKeyAlreadyExists = errors.New("idempotency key already exists")
	// ErrIdempotencyKeyNotFound — ключ не найден.
	ErrIdempotencyKeyNotFound = errors.New("idempotency key not found")
	// ErrIdempotencyHashMismatch — тот же ключ переиспользован с другим телом запроса.
	ErrIdempotencyHashMismatch = errors.New("idempotency request hash mismatch")

	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrOrderVersionConflict)
}

// IsValidationError относит ошибку к классу "некорректный запрос" (4xx без side effects).
func IsValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrEmptyCart),
		errors.Is(err, ErrInvalidProductRef),
		errors.Is(err, ErrInvalidQuantity),
		errors.Is(err, ErrInvalidPrice),
		errors.Is(err, ErrPaymentRefRequired),
		errors.Is(err, ErrUnknownPaymentMethod),
		errors.Is(err, ErrUnknownOrderStatus),
		errors.Is(err, ErrShippingAddressRequired),
		errors.Is(err, ErrPhoneRequired):
		return true
	default:
		return false
	}
}

// IsConflictError относит ошибку к классу конфликтов (безопасно повторить после re-quote).
func IsConflictError(err error) bool {
	switch {
	case errors.Is(err, ErrInsufficientStock),
		errors.Is(err, ErrStockConflict),
		errors.Is(err, ErrOrderVersionConflict):
		return true
	default:
		return false
	}
}
