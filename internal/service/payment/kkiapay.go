package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// KkiapayAPIURL — боевое API Kkiapay.
const KkiapayAPIURL = "https://api.kkiapay.me"

// KkiapayConfig — секрет и параметры сверки для Kkiapay.
type KkiapayConfig struct {
	SecretKey string
	// BaseURL подменяется в тестах на httptest-сервер.
	BaseURL string
	// AmountMultiplier — минорных единиц в одной основной единице расчётной валюты.
	AmountMultiplier int64
}

// KkiapayVerifier проверяет транзакцию по идентификатору одним запросом:
// провайдер работает в расчётной валюте магазина, token exchange не нужен.
type KkiapayVerifier struct {
	cfg    KkiapayConfig
	client *http.Client
	logger *log.Entry
}

// NewKkiapayVerifier создаёт verifier. client обязан иметь ограниченный таймаут.
func NewKkiapayVerifier(cfg KkiapayConfig, client *http.Client, logger *log.Entry) *KkiapayVerifier {
	if logger == nil {
		logger = log.New().WithField("component", "kkiapay-verifier")
	}
	if client == nil {
		client = NewHTTPClient(0)
	}
	return &KkiapayVerifier{cfg: cfg, client: client, logger: logger}
}

func (v *KkiapayVerifier) Method() domain.PaymentMethod { return domain.PaymentMethodKkiapay }

func (v *KkiapayVerifier) Mode() domain.VerificationMode { return domain.VerificationImmediate }

type kkiapayStatusResponse struct {
	Status string  `json:"status"`
	Amount float64 `json:"amount"`
}

// Verify запрашивает статус транзакции ref и сверяет сумму в расчётной валюте.
func (v *KkiapayVerifier) Verify(ctx context.Context, ref string, expectedMinor int64) error {
	if v.cfg.SecretKey == "" {
		return fmt.Errorf("kkiapay: %w", domain.ErrPaymentNotConfigured)
	}
	if strings.TrimSpace(ref) == "" {
		return domain.ErrPaymentRefRequired
	}

	body, err := json.Marshal(map[string]string{"transactionId": ref})
	if err != nil {
		return fmt.Errorf("kkiapay request encode: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.cfg.BaseURL+"/api/v1/transactions/status", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("kkiapay status request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", v.cfg.SecretKey)

	resp, err := v.client.Do(req)
	if err != nil {
		return fmt.Errorf("kkiapay status fetch: %w", domain.ErrPaymentProviderUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("kkiapay status fetch status %d: %w", resp.StatusCode, domain.ErrPaymentProviderUnavailable)
	}

	var status kkiapayStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return fmt.Errorf("kkiapay status decode: %w", domain.ErrPaymentProviderUnavailable)
	}

	if status.Status != "SUCCESS" {
		v.logger.WithFields(log.Fields{"ref": ref, "status": status.Status}).Warn("kkiapay transaction not settled")
		return fmt.Errorf("kkiapay status %q: %w", status.Status, domain.ErrPaymentVerificationFailed)
	}

	expected := settlementMajor(expectedMinor, v.cfg.AmountMultiplier)
	if !amountsMatch(status.Amount, expected) {
		v.logger.WithFields(log.Fields{"ref": ref, "paid": status.Amount, "expected": expected}).Warn("kkiapay amount mismatch")
		return fmt.Errorf("kkiapay amount mismatch: %w", domain.ErrPaymentVerificationFailed)
	}

	return nil
}

var _ domain.PaymentVerifier = (*KkiapayVerifier)(nil)
