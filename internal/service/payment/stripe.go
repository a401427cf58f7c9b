package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// StripeAPIURL — боевое API Stripe.
const StripeAPIURL = "https://api.stripe.com"

// stripeEventCheckoutCompleted — единственный тип события, который финализирует заказ.
const stripeEventCheckoutCompleted = "checkout.session.completed"

// defaultSignatureSkew — максимальный возраст подписанного webhook.
const defaultSignatureSkew = 5 * time.Minute

// StripeConfig — учётные данные и параметры сверки для Stripe.
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	// BaseURL подменяется в тестах на httptest-сервер.
	BaseURL  string
	Currency string
	// FXRate — курс расчётной валюты к валюте провайдера.
	FXRate float64
	// AmountMultiplier — минорных единиц в одной основной единице расчётной валюты.
	AmountMultiplier int64
	// SignatureSkew ограничивает возраст timestamp в подписи webhook.
	SignatureSkew time.Duration
}

// StripeVerifier обслуживает отложенное подтверждение оплаты: заказ создаётся
// в статусе ожидания, а финализацию приносит подписанный webhook.
type StripeVerifier struct {
	cfg    StripeConfig
	client *http.Client
	logger *log.Entry
	now    func() time.Time
}

// NewStripeVerifier создаёт verifier. client обязан иметь ограниченный таймаут.
func NewStripeVerifier(cfg StripeConfig, client *http.Client, logger *log.Entry) *StripeVerifier {
	if logger == nil {
		logger = log.New().WithField("component", "stripe-verifier")
	}
	if client == nil {
		client = NewHTTPClient(0)
	}
	if cfg.SignatureSkew <= 0 {
		cfg.SignatureSkew = defaultSignatureSkew
	}
	return &StripeVerifier{cfg: cfg, client: client, logger: logger, now: time.Now}
}

func (v *StripeVerifier) Method() domain.PaymentMethod { return domain.PaymentMethodStripe }

func (v *StripeVerifier) Mode() domain.VerificationMode { return domain.VerificationDeferred }

type stripeSessionResponse struct {
	ID            string `json:"id"`
	URL           string `json:"url"`
	PaymentIntent string `json:"payment_intent"`
	PaymentStatus string `json:"payment_status"`
	AmountTotal   int64  `json:"amount_total"`
	Currency      string `json:"currency"`
	Metadata      struct {
		OrderID string `json:"orderId"`
	} `json:"metadata"`
}

// Verify запрашивает checkout-сессию по идентификатору и сверяет оплату.
// Обычный путь финализации — webhook; Verify закрывает ручную повторную сверку.
func (v *StripeVerifier) Verify(ctx context.Context, ref string, expectedMinor int64) error {
	if v.cfg.SecretKey == "" {
		return fmt.Errorf("stripe: %w", domain.ErrPaymentNotConfigured)
	}
	if strings.TrimSpace(ref) == "" {
		return domain.ErrPaymentRefRequired
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.cfg.BaseURL+"/v1/checkout/sessions/"+url.PathEscape(ref), nil)
	if err != nil {
		return fmt.Errorf("stripe session request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+v.cfg.SecretKey)

	resp, err := v.client.Do(req)
	if err != nil {
		return fmt.Errorf("stripe session fetch: %w", domain.ErrPaymentProviderUnavailable)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("stripe session %s not found: %w", ref, domain.ErrPaymentVerificationFailed)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("stripe session fetch status %d: %w", resp.StatusCode, domain.ErrPaymentProviderUnavailable)
	}

	var session stripeSessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return fmt.Errorf("stripe session decode: %w", domain.ErrPaymentProviderUnavailable)
	}

	if session.PaymentStatus != "paid" {
		return fmt.Errorf("stripe payment status %q: %w", session.PaymentStatus, domain.ErrPaymentVerificationFailed)
	}
	if !strings.EqualFold(session.Currency, v.cfg.Currency) {
		return fmt.Errorf("stripe currency %q: %w", session.Currency, domain.ErrPaymentVerificationFailed)
	}

	expected := providerMajor(expectedMinor, v.cfg.AmountMultiplier, v.cfg.FXRate)
	paid := float64(session.AmountTotal) / 100
	if !amountsMatch(paid, expected) {
		v.logger.WithFields(log.Fields{"ref": ref, "paid": paid, "expected": expected}).Warn("stripe amount mismatch")
		return fmt.Errorf("stripe amount mismatch: %w", domain.ErrPaymentVerificationFailed)
	}

	return nil
}

// WebhookEvent — результат разбора webhook после проверки подписи.
type WebhookEvent struct {
	Type    string
	OrderID string
	// PaymentRef — payment_intent сессии, при его отсутствии идентификатор сессии.
	PaymentRef string
}

// Finalizes сообщает, должен ли такой webhook финализировать заказ.
func (e WebhookEvent) Finalizes() bool {
	return e.Type == stripeEventCheckoutCompleted
}

// VerifySignature проверяет заголовок Stripe-Signature по сырому телу запроса.
// Подпись v1 — HMAC-SHA256 от "t=<ts>.<body>" на shared secret; сравнение
// константное по времени, возраст timestamp ограничен.
func (v *StripeVerifier) VerifySignature(rawBody []byte, header string) error {
	if v.cfg.WebhookSecret == "" {
		return fmt.Errorf("stripe webhook: %w", domain.ErrPaymentNotConfigured)
	}

	var timestamp int64
	var signatures [][]byte
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch key {
		case "t":
			ts, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("stripe signature timestamp: %w", domain.ErrInvalidWebhookSignature)
			}
			timestamp = ts
		case "v1":
			sig, err := hex.DecodeString(value)
			if err != nil {
				continue
			}
			signatures = append(signatures, sig)
		}
	}

	if timestamp == 0 || len(signatures) == 0 {
		return fmt.Errorf("stripe signature header incomplete: %w", domain.ErrInvalidWebhookSignature)
	}

	age := v.now().UTC().Sub(time.Unix(timestamp, 0))
	if age > v.cfg.SignatureSkew || age < -v.cfg.SignatureSkew {
		return fmt.Errorf("stripe signature timestamp out of tolerance: %w", domain.ErrInvalidWebhookSignature)
	}

	mac := hmac.New(sha256.New, []byte(v.cfg.WebhookSecret))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(rawBody)
	expected := mac.Sum(nil)

	for _, sig := range signatures {
		if hmac.Equal(sig, expected) {
			return nil
		}
	}
	return fmt.Errorf("stripe signature mismatch: %w", domain.ErrInvalidWebhookSignature)
}

type stripeWebhookPayload struct {
	Type string `json:"type"`
	Data struct {
		Object stripeSessionResponse `json:"object"`
	} `json:"data"`
}

// ParseEvent разбирает уже проверенное тело webhook.
func (v *StripeVerifier) ParseEvent(rawBody []byte) (WebhookEvent, error) {
	var payload stripeWebhookPayload
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		return WebhookEvent{}, fmt.Errorf("stripe webhook decode: %w", err)
	}

	event := WebhookEvent{
		Type:       payload.Type,
		OrderID:    payload.Data.Object.Metadata.OrderID,
		PaymentRef: payload.Data.Object.PaymentIntent,
	}
	if event.PaymentRef == "" {
		event.PaymentRef = payload.Data.Object.ID
	}
	return event, nil
}

// SessionLine — позиция hosted checkout в валюте провайдера.
type SessionLine struct {
	Name string
	// UnitAmountMinor — цена единицы в минорных единицах валюты провайдера.
	UnitAmountMinor int64
	Qty             int32
}

// SessionRequest — параметры hosted checkout-сессии.
type SessionRequest struct {
	OrderID    string
	Lines      []SessionLine
	SuccessURL string
	CancelURL  string
}

// Session — созданная hosted checkout-сессия.
type Session struct {
	ID  string
	URL string
}

// CreateSession создаёт hosted checkout-сессию: пользователь оплачивает на
// стороне провайдера, orderId уезжает в metadata и возвращается в webhook.
func (v *StripeVerifier) CreateSession(ctx context.Context, req SessionRequest) (Session, error) {
	if v.cfg.SecretKey == "" {
		return Session{}, fmt.Errorf("stripe: %w", domain.ErrPaymentNotConfigured)
	}

	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("success_url", req.SuccessURL)
	form.Set("cancel_url", req.CancelURL)
	form.Set("metadata[orderId]", req.OrderID)
	for i, line := range req.Lines {
		prefix := fmt.Sprintf("line_items[%d]", i)
		form.Set(prefix+"[price_data][currency]", strings.ToLower(v.cfg.Currency))
		form.Set(prefix+"[price_data][product_data][name]", line.Name)
		form.Set(prefix+"[price_data][unit_amount]", strconv.FormatInt(line.UnitAmountMinor, 10))
		form.Set(prefix+"[quantity]", strconv.FormatInt(int64(line.Qty), 10))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, v.cfg.BaseURL+"/v1/checkout/sessions", strings.NewReader(form.Encode()))
	if err != nil {
		return Session{}, fmt.Errorf("stripe session create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+v.cfg.SecretKey)
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.client.Do(httpReq)
	if err != nil {
		return Session{}, fmt.Errorf("stripe session create: %w", domain.ErrPaymentProviderUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Session{}, fmt.Errorf("stripe session create status %d: %w", resp.StatusCode, domain.ErrPaymentProviderUnavailable)
	}

	var session stripeSessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return Session{}, fmt.Errorf("stripe session decode: %w", domain.ErrPaymentProviderUnavailable)
	}
	return Session{ID: session.ID, URL: session.URL}, nil
}

// ProviderMinor конвертирует цену из минорных единиц расчётной валюты в минорные
// единицы валюты провайдера для позиций hosted checkout.
func (v *StripeVerifier) ProviderMinor(settlementMinor int64) int64 {
	return int64(math.Round(providerMajor(settlementMinor, v.cfg.AmountMultiplier, v.cfg.FXRate) * 100))
}

var _ domain.PaymentVerifier = (*StripeVerifier)(nil)
