package payment_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/payment"
)

const testWebhookSecret = "whsec_test"

func newStripeVerifier(baseURL string) *payment.StripeVerifier {
	return payment.NewStripeVerifier(payment.StripeConfig{
		SecretKey:        "sk_test",
		WebhookSecret:    testWebhookSecret,
		BaseURL:          baseURL,
		Currency:         "eur",
		FXRate:           1,
		AmountMultiplier: 100,
	}, nil, nil)
}

func signPayload(t *testing.T, body []byte, ts time.Time) string {
	t.Helper()

	mac := hmac.New(sha256.New, []byte(testWebhookSecret))
	fmt.Fprintf(mac, "%d.%s", ts.Unix(), body)
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func TestStripeVerifier_VerifySignature(t *testing.T) {
	verifier := newStripeVerifier("")
	body := []byte(`{"type":"checkout.session.completed"}`)

	if err := verifier.VerifySignature(body, signPayload(t, body, time.Now())); err != nil {
		t.Fatalf("signature must be valid: %v", err)
	}
}

func TestStripeVerifier_VerifySignature_TamperedBody(t *testing.T) {
	verifier := newStripeVerifier("")
	body := []byte(`{"type":"checkout.session.completed"}`)
	header := signPayload(t, body, time.Now())

	tampered := []byte(`{"type":"checkout.session.completed","data":{}}`)
	if err := verifier.VerifySignature(tampered, header); !errors.Is(err, domain.ErrInvalidWebhookSignature) {
		t.Fatalf("expected invalid signature, got %v", err)
	}
}

func TestStripeVerifier_VerifySignature_StaleTimestamp(t *testing.T) {
	verifier := newStripeVerifier("")
	body := []byte(`{}`)
	header := signPayload(t, body, time.Now().Add(-time.Hour))

	if err := verifier.VerifySignature(body, header); !errors.Is(err, domain.ErrInvalidWebhookSignature) {
		t.Fatalf("expected invalid signature, got %v", err)
	}
}

func TestStripeVerifier_VerifySignature_MalformedHeader(t *testing.T) {
	verifier := newStripeVerifier("")

	for _, header := range []string{"", "t=abc,v1=00", "v1=deadbeef", "t=123"} {
		if err := verifier.VerifySignature([]byte(`{}`), header); !errors.Is(err, domain.ErrInvalidWebhookSignature) {
			t.Fatalf("header %q: expected invalid signature, got %v", header, err)
		}
	}
}

func TestStripeVerifier_ParseEvent(t *testing.T) {
	verifier := newStripeVerifier("")
	body := []byte(`{
		"type": "checkout.session.completed",
		"data": {"object": {"id": "cs_123", "payment_intent": "pi_456", "metadata": {"orderId": "order-1"}}}
	}`)

	event, err := verifier.ParseEvent(body)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if !event.Finalizes() {
		t.Fatal("checkout.session.completed must finalize")
	}
	if event.OrderID != "order-1" {
		t.Fatalf("expected order-1, got %s", event.OrderID)
	}
	if event.PaymentRef != "pi_456" {
		t.Fatalf("expected payment_intent as ref, got %s", event.PaymentRef)
	}
}

func TestStripeVerifier_ParseEvent_FallsBackToSessionID(t *testing.T) {
	verifier := newStripeVerifier("")
	body := []byte(`{
		"type": "checkout.session.completed",
		"data": {"object": {"id": "cs_123", "metadata": {"orderId": "order-1"}}}
	}`)

	event, err := verifier.ParseEvent(body)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if event.PaymentRef != "cs_123" {
		t.Fatalf("expected session id as ref, got %s", event.PaymentRef)
	}
}

func TestStripeVerifier_ParseEvent_IgnoredType(t *testing.T) {
	verifier := newStripeVerifier("")

	event, err := verifier.ParseEvent([]byte(`{"type":"invoice.paid","data":{"object":{}}}`))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if event.Finalizes() {
		t.Fatal("non-checkout event must not finalize")
	}
}

func TestStripeVerifier_Verify(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer sk_test" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, `{"id":"cs_123","payment_status":"paid","amount_total":1000,"currency":"eur"}`)
	}))
	defer server.Close()

	verifier := newStripeVerifier(server.URL)
	if err := verifier.Verify(context.Background(), "cs_123", 1000); err != nil {
		t.Fatalf("verify failed: %v", err)
	}
}

func TestStripeVerifier_Verify_Unpaid(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":"cs_123","payment_status":"unpaid","amount_total":1000,"currency":"eur"}`)
	}))
	defer server.Close()

	verifier := newStripeVerifier(server.URL)
	if err := verifier.Verify(context.Background(), "cs_123", 1000); !errors.Is(err, domain.ErrPaymentVerificationFailed) {
		t.Fatalf("expected verification failure, got %v", err)
	}
}

func TestStripeVerifier_CreateSession(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":"cs_new","url":"https://checkout.stripe.test/cs_new"}`)
	}))
	defer server.Close()

	verifier := newStripeVerifier(server.URL)
	session, err := verifier.CreateSession(context.Background(), payment.SessionRequest{
		OrderID:    "order-1",
		SuccessURL: "https://shop.test/success",
		CancelURL:  "https://shop.test/cancel",
		Lines: []payment.SessionLine{
			{Name: "Sneakers", UnitAmountMinor: 2500, Qty: 2},
		},
	})
	if err != nil {
		t.Fatalf("create session failed: %v", err)
	}
	if session.ID != "cs_new" || session.URL == "" {
		t.Fatalf("unexpected session: %+v", session)
	}
}

func TestStripeVerifier_CreateSession_SendsMetadataAndLines(t *testing.T) {
	var form map[string][]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		form = r.PostForm
		fmt.Fprint(w, `{"id":"cs_new","url":"https://checkout.stripe.test/cs_new"}`)
	}))
	defer server.Close()

	verifier := newStripeVerifier(server.URL)
	_, err := verifier.CreateSession(context.Background(), payment.SessionRequest{
		OrderID:    "order-1",
		SuccessURL: "https://shop.test/success",
		CancelURL:  "https://shop.test/cancel",
		Lines:      []payment.SessionLine{{Name: "Sneakers", UnitAmountMinor: 2500, Qty: 2}},
	})
	if err != nil {
		t.Fatalf("create session failed: %v", err)
	}

	checks := map[string]string{
		"mode":                                     "payment",
		"metadata[orderId]":                        "order-1",
		"line_items[0][price_data][currency]":      "eur",
		"line_items[0][price_data][unit_amount]":   "2500",
		"line_items[0][quantity]":                  "2",
		"line_items[0][price_data][product_data][name]": "Sneakers",
	}
	for key, want := range checks {
		values := form[key]
		if len(values) != 1 || values[0] != want {
			t.Fatalf("form %s: expected %q, got %v", key, want, values)
		}
	}
}

func TestStripeVerifier_ProviderMinor(t *testing.T) {
	verifier := payment.NewStripeVerifier(payment.StripeConfig{
		SecretKey:        "sk_test",
		Currency:         "eur",
		FXRate:           655,
		AmountMultiplier: 100,
	}, nil, nil)

	// 655000 минорных XOF — 10.00 EUR — 1000 центов.
	if got := verifier.ProviderMinor(655000); got != 1000 {
		t.Fatalf("expected 1000, got %d", got)
	}
	if got := strconv.FormatInt(verifier.ProviderMinor(65500), 10); got != "100" {
		t.Fatalf("expected 100, got %s", got)
	}
}
