package app

import (
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/service/payment"
)

// buildVerifiers собирает реестр платёжных провайдеров. Провайдер без
// секретов регистрируется всё равно: попытка оплаты этим методом вернёт
// ErrPaymentNotConfigured вместо падения на старте.
func buildVerifiers(cfg Config, logger *log.Entry) (*payment.Registry, *payment.StripeVerifier) {
	client := payment.NewHTTPClient(cfg.ProviderTimeout)

	paypalBaseURL := payment.PayPalSandboxURL
	if cfg.PayPalEnv == "live" {
		paypalBaseURL = payment.PayPalLiveURL
	}

	paypal := payment.NewPayPalVerifier(payment.PayPalConfig{
		ClientID:         cfg.PayPalClientID,
		ClientSecret:     cfg.PayPalClientSecret,
		BaseURL:          paypalBaseURL,
		Currency:         cfg.PayPalCurrency,
		FXRate:           cfg.FXRate,
		AmountMultiplier: cfg.AmountMultiplier,
	}, client, logger.WithField("component", "paypal-verifier"))

	stripe := payment.NewStripeVerifier(payment.StripeConfig{
		SecretKey:        cfg.StripeSecretKey,
		WebhookSecret:    cfg.StripeWebhookSecret,
		BaseURL:          payment.StripeAPIURL,
		Currency:         cfg.StripeCurrency,
		FXRate:           cfg.FXRate,
		AmountMultiplier: cfg.AmountMultiplier,
	}, client, logger.WithField("component", "stripe-verifier"))

	kkiapay := payment.NewKkiapayVerifier(payment.KkiapayConfig{
		SecretKey:        cfg.KkiapaySecretKey,
		BaseURL:          payment.KkiapayAPIURL,
		AmountMultiplier: cfg.AmountMultiplier,
	}, client, logger.WithField("component", "kkiapay-verifier"))

	return payment.NewRegistry(paypal, stripe, kkiapay), stripe
}
