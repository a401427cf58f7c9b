package payment

import (
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// amountTolerance — абсолютный допуск при сверке сумм с провайдером.
// Покрывает расхождения округления при конвертации, не более.
const amountTolerance = 0.01

// Registry хранит verifier'ы по тегу метода оплаты. Новый провайдер —
// новый вариант в реестре, существующий код не меняется.
type Registry struct {
	verifiers map[domain.PaymentMethod]domain.PaymentVerifier
}

// NewRegistry собирает реестр из переданных verifier'ов.
func NewRegistry(verifiers ...domain.PaymentVerifier) *Registry {
	byMethod := make(map[domain.PaymentMethod]domain.PaymentVerifier, len(verifiers))
	for _, v := range verifiers {
		byMethod[v.Method()] = v
	}
	return &Registry{verifiers: byMethod}
}

// Get возвращает verifier для метода оплаты.
func (r *Registry) Get(method domain.PaymentMethod) (domain.PaymentVerifier, error) {
	v, ok := r.verifiers[method]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownPaymentMethod, method)
	}
	return v, nil
}

// NewHTTPClient возвращает http-клиент с жёстким таймаутом для вызовов провайдеров.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// settlementMajor переводит сумму из минимальных единиц расчётной валюты в основные.
func settlementMajor(minor int64, multiplier int64) float64 {
	if multiplier <= 0 {
		multiplier = 1
	}
	return float64(minor) / float64(multiplier)
}

// providerMajor конвертирует сумму заказа в валюту провайдера по фиксированному курсу
// и округляет до двух знаков так же, как это делает биллинг провайдера.
func providerMajor(minor int64, multiplier int64, fxRate float64) float64 {
	major := settlementMajor(minor, multiplier)
	if fxRate <= 0 {
		fxRate = 1
	}
	return math.Round(major/fxRate*100) / 100
}

// amountsMatch сверяет суммы с допуском amountTolerance.
func amountsMatch(got, want float64) bool {
	return math.Abs(got-want) <= amountTolerance+1e-9
}
