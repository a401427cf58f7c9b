package app

import (
	"os"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"
)

// Config описывает настройки запуска приложения. Значения читаются из
// окружения один раз при старте; отсутствующий секрет провайдера не мешает
// запуску — ошибка возникнет только при попытке оплаты этим методом.
type Config struct {
	HTTPAddr    string
	MetricsAddr string

	// DatabaseURL пустой — in-memory хранилище (разработка и тесты).
	DatabaseURL string
	// RedisAddr пустой — локальный in-memory rate limiter.
	RedisAddr string
	// KafkaBrokers пустой — события остаются в outbox без публикации.
	KafkaBrokers string

	Currency         string
	AmountMultiplier int64
	// FXRate — основных единиц расчётной валюты за одну основную единицу
	// валюты провайдера; общий для PayPal и Stripe.
	FXRate float64

	PayPalClientID     string
	PayPalClientSecret string
	PayPalEnv          string
	PayPalCurrency     string

	StripeSecretKey     string
	StripeWebhookSecret string
	StripeCurrency      string
	StripeSuccessURL    string
	StripeCancelURL     string

	KkiapaySecretKey string

	ProviderTimeout time.Duration
	RateLimitWindow time.Duration
	RateLimitMax    int

	// AuthTokens — CSV "token:userID:role" для статического аутентификатора.
	AuthTokens string
}

// DefaultConfig возвращает базовую конфигурацию для локального запуска.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:         ":8080",
		MetricsAddr:      ":9090",
		Currency:         "XOF",
		AmountMultiplier: 100,
		FXRate:           655,
		PayPalEnv:        "sandbox",
		PayPalCurrency:   "EUR",
		StripeCurrency:   "eur",
		StripeSuccessURL: "http://localhost:3000/checkout/success",
		StripeCancelURL:  "http://localhost:3000/checkout/cancel",
		ProviderTimeout:  20 * time.Second,
		RateLimitWindow:  10 * time.Minute,
		RateLimitMax:     60,
	}
}

// ConfigFromEnv строит конфигурацию из переменных окружения поверх дефолтов.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()

	envString(&cfg.HTTPAddr, "SHOP_HTTP_ADDR")
	envString(&cfg.MetricsAddr, "SHOP_METRICS_ADDR")
	envString(&cfg.DatabaseURL, "SHOP_DATABASE_URL")
	envString(&cfg.RedisAddr, "SHOP_REDIS_ADDR")
	envString(&cfg.KafkaBrokers, "SHOP_KAFKA_BROKERS")

	envString(&cfg.Currency, "SHOP_CURRENCY")
	envInt64(&cfg.AmountMultiplier, "SHOP_AMOUNT_MULTIPLIER")
	envFloat(&cfg.FXRate, "SHOP_FX_RATE")

	envString(&cfg.PayPalClientID, "PAYPAL_CLIENT_ID")
	envString(&cfg.PayPalClientSecret, "PAYPAL_CLIENT_SECRET")
	envString(&cfg.PayPalEnv, "PAYPAL_ENV")
	envString(&cfg.PayPalCurrency, "PAYPAL_CURRENCY")

	envString(&cfg.StripeSecretKey, "STRIPE_SECRET_KEY")
	envString(&cfg.StripeWebhookSecret, "STRIPE_WEBHOOK_SECRET")
	envString(&cfg.StripeCurrency, "STRIPE_CURRENCY")
	envString(&cfg.StripeSuccessURL, "SHOP_STRIPE_SUCCESS_URL")
	envString(&cfg.StripeCancelURL, "SHOP_STRIPE_CANCEL_URL")

	envString(&cfg.KkiapaySecretKey, "KKIAPAY_SECRET_KEY")

	envDuration(&cfg.ProviderTimeout, "SHOP_PROVIDER_TIMEOUT")
	envDuration(&cfg.RateLimitWindow, "SHOP_RATE_LIMIT_WINDOW")
	envInt(&cfg.RateLimitMax, "SHOP_RATE_LIMIT_MAX")

	envString(&cfg.AuthTokens, "SHOP_AUTH_TOKENS")

	return cfg
}

func envString(dst *string, name string) {
	if v := os.Getenv(name); v != "" {
		*dst = v
	}
}

func envInt(dst *int, name string) {
	v := os.Getenv(name)
	if v == "" {
		return
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		log.WithField("var", name).WithError(err).Warn("ignoring malformed env value")
		return
	}
	*dst = parsed
}

func envInt64(dst *int64, name string) {
	v := os.Getenv(name)
	if v == "" {
		return
	}
	parsed, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		log.WithField("var", name).WithError(err).Warn("ignoring malformed env value")
		return
	}
	*dst = parsed
}

func envFloat(dst *float64, name string) {
	v := os.Getenv(name)
	if v == "" {
		return
	}
	parsed, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.WithField("var", name).WithError(err).Warn("ignoring malformed env value")
		return
	}
	*dst = parsed
}

func envDuration(dst *time.Duration, name string) {
	v := os.Getenv(name)
	if v == "" {
		return
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		log.WithField("var", name).WithError(err).Warn("ignoring malformed env value")
		return
	}
	*dst = parsed
}
