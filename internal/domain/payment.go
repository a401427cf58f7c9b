package domain

import "context"

// PaymentMethod — тег метода оплаты, по которому выбирается verifier.
type PaymentMethod string

const (
	// PaymentMethodPayPal — заказ у провайдера проверяется синхронно при создании.
	PaymentMethodPayPal PaymentMethod = "paypal"
	// PaymentMethodStripe — оплата подтверждается асинхронным webhook.
	PaymentMethodStripe PaymentMethod = "stripe"
	// PaymentMethodKkiapay — проверка транзакции по идентификатору, без token exchange.
	PaymentMethodKkiapay PaymentMethod = "kkiapay"
)

// VerificationMode определяет, когда подтверждается оплата.
type VerificationMode string

const (
	// VerificationImmediate — verifier вызывается синхронно в момент создания заказа.
	VerificationImmediate VerificationMode = "immediate"
	// VerificationDeferred — подтверждение приходит позже асинхронным событием.
	VerificationDeferred VerificationMode = "deferred"
)

// PaymentVerifier проверяет платёж у внешнего провайдера.
// Verify сверяет статус, валюту и сумму: любое расхождение — ErrPaymentVerificationFailed,
// любая транспортная ошибка — ErrPaymentProviderUnavailable. Успех никогда не
// предполагается оптимистически.
type PaymentVerifier interface {
	// Method возвращает тег метода оплаты, который обслуживает verifier.
	Method() PaymentMethod
	// Mode сообщает, синхронная это верификация или отложенная.
	Mode() VerificationMode
	// Verify проверяет платёж ref на сумму expectedMinor (в минимальных единицах
	// расчётной валюты магазина).
	Verify(ctx context.Context, ref string, expectedMinor int64) error
}
