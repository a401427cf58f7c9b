package payment_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/payment"
)

func newKkiapayServer(t *testing.T, status string, amount float64) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "kk_secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		var body struct {
			TransactionID string `json:"transactionId"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.TransactionID == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		fmt.Fprintf(w, `{"status":%q,"amount":%g}`, status, amount)
	}))
	t.Cleanup(server.Close)
	return server
}

func newKkiapayVerifier(baseURL string) *payment.KkiapayVerifier {
	return payment.NewKkiapayVerifier(payment.KkiapayConfig{
		SecretKey:        "kk_secret",
		BaseURL:          baseURL,
		AmountMultiplier: 100,
	}, nil, nil)
}

func TestKkiapayVerifier_Verify(t *testing.T) {
	server := newKkiapayServer(t, "SUCCESS", 50)
	verifier := newKkiapayVerifier(server.URL)

	if err := verifier.Verify(context.Background(), "txn-1", 5000); err != nil {
		t.Fatalf("verify failed: %v", err)
	}
}

func TestKkiapayVerifier_Verify_RejectsFailedTransaction(t *testing.T) {
	server := newKkiapayServer(t, "FAILED", 50)
	verifier := newKkiapayVerifier(server.URL)

	if err := verifier.Verify(context.Background(), "txn-1", 5000); !errors.Is(err, domain.ErrPaymentVerificationFailed) {
		t.Fatalf("expected verification failure, got %v", err)
	}
}

func TestKkiapayVerifier_Verify_RejectsAmountMismatch(t *testing.T) {
	server := newKkiapayServer(t, "SUCCESS", 49.5)
	verifier := newKkiapayVerifier(server.URL)

	if err := verifier.Verify(context.Background(), "txn-1", 5000); !errors.Is(err, domain.ErrPaymentVerificationFailed) {
		t.Fatalf("expected verification failure, got %v", err)
	}
}

func TestKkiapayVerifier_Verify_ProviderDown(t *testing.T) {
	server := newKkiapayServer(t, "SUCCESS", 50)
	server.Close()
	verifier := newKkiapayVerifier(server.URL)

	if err := verifier.Verify(context.Background(), "txn-1", 5000); !errors.Is(err, domain.ErrPaymentProviderUnavailable) {
		t.Fatalf("expected provider unavailable, got %v", err)
	}
}

func TestKkiapayVerifier_Verify_NotConfigured(t *testing.T) {
	verifier := payment.NewKkiapayVerifier(payment.KkiapayConfig{}, nil, nil)

	if err := verifier.Verify(context.Background(), "txn-1", 5000); !errors.Is(err, domain.ErrPaymentNotConfigured) {
		t.Fatalf("expected not configured, got %v", err)
	}
}

func TestRegistry_Get(t *testing.T) {
	kkiapay := newKkiapayVerifier("")
	registry := payment.NewRegistry(kkiapay)

	got, err := registry.Get(domain.PaymentMethodKkiapay)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Method() != domain.PaymentMethodKkiapay {
		t.Fatalf("unexpected verifier: %s", got.Method())
	}

	if _, err := registry.Get(domain.PaymentMethod("bitcoin")); !errors.Is(err, domain.ErrUnknownPaymentMethod) {
		t.Fatalf("expected unknown method, got %v", err)
	}
}
