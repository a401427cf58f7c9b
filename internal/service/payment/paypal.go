package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const (
	// PayPalSandboxURL — API sandbox-окружения.
	PayPalSandboxURL = "https://api-m.sandbox.paypal.com"
	// PayPalLiveURL — боевое API.
	PayPalLiveURL = "https://api-m.paypal.com"
)

// PayPalConfig — учётные данные и параметры сверки для PayPal.
type PayPalConfig struct {
	ClientID     string
	ClientSecret string
	// BaseURL подменяется в тестах на httptest-сервер.
	BaseURL  string
	Currency string
	// FXRate — курс расчётной валюты к валюте провайдера (минорные единицы за 1).
	FXRate float64
	// AmountMultiplier — минорных единиц в одной основной единице расчётной валюты.
	AmountMultiplier int64
}

// PayPalVerifier проверяет заказ напрямую в API провайдера в момент создания:
// оплата считается состоявшейся только после сверки статуса, валюты и суммы.
type PayPalVerifier struct {
	cfg    PayPalConfig
	client *http.Client
	logger *log.Entry
}

// NewPayPalVerifier создаёт verifier. client обязан иметь ограниченный таймаут.
func NewPayPalVerifier(cfg PayPalConfig, client *http.Client, logger *log.Entry) *PayPalVerifier {
	if logger == nil {
		logger = log.New().WithField("component", "paypal-verifier")
	}
	if client == nil {
		client = NewHTTPClient(0)
	}
	return &PayPalVerifier{cfg: cfg, client: client, logger: logger}
}

func (v *PayPalVerifier) Method() domain.PaymentMethod { return domain.PaymentMethodPayPal }

func (v *PayPalVerifier) Mode() domain.VerificationMode { return domain.VerificationImmediate }

type paypalTokenResponse struct {
	AccessToken string `json:"access_token"`
}

type paypalOrderResponse struct {
	Status        string `json:"status"`
	PurchaseUnits []struct {
		Amount struct {
			CurrencyCode string `json:"currency_code"`
			Value        string `json:"value"`
		} `json:"amount"`
	} `json:"purchase_units"`
}

// Verify запрашивает заказ ref у PayPal и сверяет его с ожидаемой суммой.
func (v *PayPalVerifier) Verify(ctx context.Context, ref string, expectedMinor int64) error {
	if v.cfg.ClientID == "" || v.cfg.ClientSecret == "" {
		return fmt.Errorf("paypal: %w", domain.ErrPaymentNotConfigured)
	}
	if strings.TrimSpace(ref) == "" {
		return domain.ErrPaymentRefRequired
	}

	token, err := v.fetchToken(ctx)
	if err != nil {
		return err
	}

	order, err := v.fetchOrder(ctx, token, ref)
	if err != nil {
		return err
	}

	if order.Status != "COMPLETED" && order.Status != "APPROVED" {
		v.logger.WithFields(log.Fields{"ref": ref, "status": order.Status}).Warn("paypal order not settled")
		return fmt.Errorf("paypal status %q: %w", order.Status, domain.ErrPaymentVerificationFailed)
	}
	if len(order.PurchaseUnits) == 0 {
		return fmt.Errorf("paypal order without purchase units: %w", domain.ErrPaymentVerificationFailed)
	}

	amount := order.PurchaseUnits[0].Amount
	if !strings.EqualFold(amount.CurrencyCode, v.cfg.Currency) {
		return fmt.Errorf("paypal currency %q: %w", amount.CurrencyCode, domain.ErrPaymentVerificationFailed)
	}

	paid, err := strconv.ParseFloat(amount.Value, 64)
	if err != nil {
		return fmt.Errorf("paypal amount %q: %w", amount.Value, domain.ErrPaymentVerificationFailed)
	}

	expected := providerMajor(expectedMinor, v.cfg.AmountMultiplier, v.cfg.FXRate)
	if !amountsMatch(paid, expected) {
		v.logger.WithFields(log.Fields{"ref": ref, "paid": paid, "expected": expected}).Warn("paypal amount mismatch")
		return fmt.Errorf("paypal amount mismatch: %w", domain.ErrPaymentVerificationFailed)
	}

	return nil
}

func (v *PayPalVerifier) fetchToken(ctx context.Context) (string, error) {
	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.cfg.BaseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("paypal token request: %w", err)
	}
	req.SetBasicAuth(v.cfg.ClientID, v.cfg.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("paypal token exchange: %w", domain.ErrPaymentProviderUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("paypal token exchange status %d: %w", resp.StatusCode, domain.ErrPaymentProviderUnavailable)
	}

	var token paypalTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil || token.AccessToken == "" {
		return "", fmt.Errorf("paypal token decode: %w", domain.ErrPaymentProviderUnavailable)
	}
	return token.AccessToken, nil
}

func (v *PayPalVerifier) fetchOrder(ctx context.Context, token, ref string) (paypalOrderResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.cfg.BaseURL+"/v2/checkout/orders/"+url.PathEscape(ref), nil)
	if err != nil {
		return paypalOrderResponse{}, fmt.Errorf("paypal order request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := v.client.Do(req)
	if err != nil {
		return paypalOrderResponse{}, fmt.Errorf("paypal order fetch: %w", domain.ErrPaymentProviderUnavailable)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return paypalOrderResponse{}, fmt.Errorf("paypal order %s not found: %w", ref, domain.ErrPaymentVerificationFailed)
	case resp.StatusCode != http.StatusOK:
		return paypalOrderResponse{}, fmt.Errorf("paypal order fetch status %d: %w", resp.StatusCode, domain.ErrPaymentProviderUnavailable)
	}

	var order paypalOrderResponse
	if err := json.NewDecoder(resp.Body).Decode(&order); err != nil {
		return paypalOrderResponse{}, fmt.Errorf("paypal order decode: %w", domain.ErrPaymentProviderUnavailable)
	}
	return order, nil
}

var _ domain.PaymentVerifier = (*PayPalVerifier)(nil)
