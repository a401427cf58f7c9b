package http_test

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/ratelimit"
	"github.com/vladislavdragonenkov/storefront/internal/service/auth"
	"github.com/vladislavdragonenkov/storefront/internal/service/checkout"
	shophttp "github.com/vladislavdragonenkov/storefront/internal/service/http"
	"github.com/vladislavdragonenkov/storefront/internal/service/payment"
	"github.com/vladislavdragonenkov/storefront/internal/service/stock"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

const webhookSecret = "whsec_test"

type testEnv struct {
	router   http.Handler
	products domain.ProductRepository
	orders   domain.OrderRepository
	kkiapay  *payment.MockVerifier
}

func newTestEnv(t *testing.T, rateLimitMax int) *testEnv {
	t.Helper()

	products := memory.NewProductRepository()
	require.NoError(t, products.Create(context.Background(), domain.Product{
		ID: "prod-1", Name: "Sneakers", PriceMinor: 2500, Stock: 5, Image: "img",
	}))

	orders := memory.NewOrderRepository()
	stripeVerifier := payment.NewStripeVerifier(payment.StripeConfig{
		SecretKey:        "sk_test",
		WebhookSecret:    webhookSecret,
		Currency:         "eur",
		FXRate:           1,
		AmountMultiplier: 100,
	}, nil, nil)
	kkiapay := payment.NewMockVerifier(domain.PaymentMethodKkiapay, domain.VerificationImmediate)

	service := checkout.NewService(checkout.Deps{
		Products:  products,
		Orders:    orders,
		Outbox:    memory.NewOutboxRepository(),
		Timeline:  memory.NewTimelineRepository(),
		Guard:     stock.NewGuard(products, nil),
		Verifiers: payment.NewRegistry(stripeVerifier, kkiapay),
		Currency:  "XOF",
	})

	authenticator := auth.NewStaticAuthenticator(map[string]domain.User{
		"tok-client": {ID: "user-1", Role: domain.RoleClient},
		"tok-admin":  {ID: "admin-1", Role: domain.RoleAdmin},
	})

	var limiter domain.RateLimiter
	if rateLimitMax > 0 {
		limiter = ratelimit.NewMemoryLimiter(time.Minute, rateLimitMax)
	}

	handler := shophttp.NewHandler(shophttp.HandlerConfig{
		Checkout:   service,
		Products:   products,
		Stripe:     stripeVerifier,
		SuccessURL: "https://shop.test/success",
		CancelURL:  "https://shop.test/cancel",
	})
	mw := shophttp.NewMiddleware(authenticator, limiter, memory.NewIdempotencyRepository(), nil, nil)

	return &testEnv{
		router:   shophttp.NewRouter(handler, mw),
		products: products,
		orders:   orders,
		kkiapay:  kkiapay,
	}
}

func (e *testEnv) do(method, path, token string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) stockOf(t *testing.T, id string) int32 {
	t.Helper()
	product, err := e.products.Get(context.Background(), id)
	require.NoError(t, err)
	return product.Stock
}

func createOrderBody(method, ref string) []byte {
	body, _ := json.Marshal(map[string]interface{}{
		"items":           []map[string]interface{}{{"productId": "prod-1", "quantity": 2}},
		"paymentMethod":   method,
		"paymentRef":      ref,
		"shippingAddress": "Abidjan, Cocody",
		"phone":           "+2250700000000",
	})
	return body
}

func signWebhook(body []byte, ts time.Time) string {
	mac := hmac.New(sha256.New, []byte(webhookSecret))
	fmt.Fprintf(mac, "%d.%s", ts.Unix(), body)
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func TestAPI_RequiresAuth(t *testing.T) {
	env := newTestEnv(t, 0)

	rec := env.do(http.MethodPost, "/api/orders/quote", "", []byte(`{"items":[]}`), nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(http.MethodPost, "/api/orders/quote", "bogus", []byte(`{"items":[]}`), nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPI_Quote(t *testing.T) {
	env := newTestEnv(t, 0)

	body := []byte(`{"items":[{"productId":"prod-1","quantity":2}]}`)
	rec := env.do(http.MethodPost, "/api/orders/quote", "tok-client", body, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		AmountMinor int64  `json:"amountMinor"`
		Currency    string `json:"currency"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(5000), resp.AmountMinor)
	assert.Equal(t, "XOF", resp.Currency)
	assert.Equal(t, int32(5), env.stockOf(t, "prod-1"))
}

func TestAPI_Quote_ErrorMapping(t *testing.T) {
	env := newTestEnv(t, 0)

	cases := []struct {
		name string
		body string
		code int
	}{
		{name: "empty cart", body: `{"items":[]}`, code: http.StatusBadRequest},
		{name: "unknown product", body: `{"items":[{"productId":"missing","quantity":1}]}`, code: http.StatusNotFound},
		{name: "insufficient stock", body: `{"items":[{"productId":"prod-1","quantity":6}]}`, code: http.StatusConflict},
		{name: "malformed json", body: `{"items":`, code: http.StatusBadRequest},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := env.do(http.MethodPost, "/api/orders/quote", "tok-client", []byte(tc.body), nil)
			assert.Equal(t, tc.code, rec.Code)
		})
	}
}

func TestAPI_CreateOrder_Deferred(t *testing.T) {
	env := newTestEnv(t, 0)

	rec := env.do(http.MethodPost, "/api/orders", "tok-client", createOrderBody("stripe", ""), nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		ID     string `json:"id"`
		Status string `json:"status"`
		UserID string `json:"userId"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "pending_payment", resp.Status)
	assert.Equal(t, "user-1", resp.UserID)
	assert.Equal(t, int32(5), env.stockOf(t, "prod-1"))
}

func TestAPI_CreateOrder_IdempotencyReplay(t *testing.T) {
	env := newTestEnv(t, 0)
	headers := map[string]string{"Idempotency-Key": "key-1"}
	body := createOrderBody("stripe", "")

	first := env.do(http.MethodPost, "/api/orders", "tok-client", body, headers)
	require.Equal(t, http.StatusCreated, first.Code)

	replay := env.do(http.MethodPost, "/api/orders", "tok-client", body, headers)
	require.Equal(t, http.StatusCreated, replay.Code)
	assert.JSONEq(t, first.Body.String(), replay.Body.String())

	orders, err := env.orders.List(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, orders, 1)

	// Тот же ключ с другим телом — конфликт.
	conflict := env.do(http.MethodPost, "/api/orders", "tok-client", createOrderBody("kkiapay", "txn-1"), headers)
	assert.Equal(t, http.StatusConflict, conflict.Code)
}

func TestAPI_CreateOrder_IdempotencyRetryAfterProviderFailure(t *testing.T) {
	env := newTestEnv(t, 0)
	headers := map[string]string{"Idempotency-Key": "key-retry"}
	body := createOrderBody("kkiapay", "txn-retry")

	env.kkiapay.SetVerifyErr(domain.ErrPaymentProviderUnavailable)
	first := env.do(http.MethodPost, "/api/orders", "tok-client", body, headers)
	require.Equal(t, http.StatusBadGateway, first.Code)

	// Транзиентный 5xx не замораживает ключ до TTL: повтор выполняется заново.
	env.kkiapay.SetVerifyErr(nil)
	retry := env.do(http.MethodPost, "/api/orders", "tok-client", body, headers)
	require.Equal(t, http.StatusCreated, retry.Code)
	assert.Equal(t, 2, env.kkiapay.CallCount())

	// Успешный ответ закэширован: третий вызов — реплей без обработчика.
	replay := env.do(http.MethodPost, "/api/orders", "tok-client", body, headers)
	require.Equal(t, http.StatusCreated, replay.Code)
	assert.JSONEq(t, retry.Body.String(), replay.Body.String())
	assert.Equal(t, 2, env.kkiapay.CallCount())
}

func TestAPI_VerifyPayment(t *testing.T) {
	env := newTestEnv(t, 0)

	rec := env.do(http.MethodPost, "/api/orders", "tok-client", createOrderBody("kkiapay", "txn-9"), nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, int32(3), env.stockOf(t, "prod-1"))

	// Callback-повтор по той же транзакции: заказ уже оплачен, списаний больше нет.
	verify := env.do(http.MethodPost, "/api/payments/verify", "tok-client", []byte(`{"transactionId":"txn-9"}`), nil)
	require.Equal(t, http.StatusOK, verify.Code)
	assert.Equal(t, int32(3), env.stockOf(t, "prod-1"))
	assert.Equal(t, 1, env.kkiapay.CallCount())
}

func TestAPI_AdminRoutes_RoleGate(t *testing.T) {
	env := newTestEnv(t, 0)

	rec := env.do(http.MethodGet, "/api/admin/orders", "tok-client", nil, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(http.MethodGet, "/api/admin/orders", "tok-admin", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPI_UpdateOrderStatus(t *testing.T) {
	env := newTestEnv(t, 0)

	created := env.do(http.MethodPost, "/api/orders", "tok-client", createOrderBody("kkiapay", "txn-1"), nil)
	require.Equal(t, http.StatusCreated, created.Code)

	var order struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(created.Body.Bytes(), &order))

	rec := env.do(http.MethodPut, "/api/orders/"+order.ID+"/status", "tok-admin", []byte(`{"status":"delivered"}`), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// Решётка статусов: доставленный заказ не отменить.
	rec = env.do(http.MethodPut, "/api/orders/"+order.ID+"/status", "tok-admin", []byte(`{"status":"cancelled"}`), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Неизвестный статус — ошибка валидации.
	rec = env.do(http.MethodPut, "/api/orders/"+order.ID+"/status", "tok-admin", []byte(`{"status":"shipped"}`), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_StripeWebhook(t *testing.T) {
	env := newTestEnv(t, 0)

	created := env.do(http.MethodPost, "/api/orders", "tok-client", createOrderBody("stripe", ""), nil)
	require.Equal(t, http.StatusCreated, created.Code)

	var order struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(created.Body.Bytes(), &order))

	payload := []byte(fmt.Sprintf(`{
		"type": "checkout.session.completed",
		"data": {"object": {"id": "cs_1", "payment_intent": "pi_1", "metadata": {"orderId": %q}}}
	}`, order.ID))

	rec := env.do(http.MethodPost, "/api/payments/stripe-webhook", "", payload, map[string]string{
		"Stripe-Signature": signWebhook(payload, time.Now()),
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"received":true}`, rec.Body.String())
	assert.Equal(t, int32(3), env.stockOf(t, "prod-1"))

	stored, err := env.orders.Get(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPaid, stored.Status)
	assert.Equal(t, "pi_1", stored.PaymentRef)

	// Повтор webhook — no-op.
	rec = env.do(http.MethodPost, "/api/payments/stripe-webhook", "", payload, map[string]string{
		"Stripe-Signature": signWebhook(payload, time.Now()),
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int32(3), env.stockOf(t, "prod-1"))
}

func TestAPI_StripeWebhook_BadSignature(t *testing.T) {
	env := newTestEnv(t, 0)

	payload := []byte(`{"type":"checkout.session.completed","data":{"object":{}}}`)
	rec := env.do(http.MethodPost, "/api/payments/stripe-webhook", "", payload, map[string]string{
		"Stripe-Signature": "t=1,v1=deadbeef",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Без заголовка подпись тоже не проходит.
	rec = env.do(http.MethodPost, "/api/payments/stripe-webhook", "", payload, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_RateLimit(t *testing.T) {
	env := newTestEnv(t, 2)
	body := []byte(`{"items":[{"productId":"prod-1","quantity":1}]}`)

	for i := 0; i < 2; i++ {
		rec := env.do(http.MethodPost, "/api/orders/quote", "tok-client", body, nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := env.do(http.MethodPost, "/api/orders/quote", "tok-client", body, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// Другой пользователь не задет лимитом первого.
	rec = env.do(http.MethodPost, "/api/orders/quote", "tok-admin", body, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPI_Products(t *testing.T) {
	env := newTestEnv(t, 0)

	rec := env.do(http.MethodGet, "/api/products", "", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var list []struct {
		ID         string `json:"id"`
		PriceMinor int64  `json:"priceMinor"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, int64(2500), list[0].PriceMinor)

	rec = env.do(http.MethodGet, "/api/products/prod-1", "", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodGet, "/api/products/missing", "", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
