package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestNewCheckoutMetrics(t *testing.T) {
	metrics := newCheckoutMetricsWithRegisterer(prometheus.NewRegistry())

	if metrics == nil {
		t.Fatal("newCheckoutMetricsWithRegisterer should not return nil")
	}
	if metrics.quotesTotal == nil {
		t.Error("quotesTotal counter should not be nil")
	}
	if metrics.ordersCreated == nil {
		t.Error("ordersCreated counter vec should not be nil")
	}
	if metrics.ordersPaid == nil {
		t.Error("ordersPaid counter should not be nil")
	}
	if metrics.stockConflicts == nil {
		t.Error("stockConflicts counter should not be nil")
	}
	if metrics.checkoutDuration == nil {
		t.Error("checkoutDuration histogram should not be nil")
	}
	if metrics.verifyDuration == nil {
		t.Error("verifyDuration histogram vec should not be nil")
	}
}

func TestNewCheckoutMetrics_RegisterTwice(t *testing.T) {
	registry := prometheus.NewRegistry()

	first := newCheckoutMetricsWithRegisterer(registry)
	second := newCheckoutMetricsWithRegisterer(registry)

	// Повторная регистрация переиспользует существующие коллекторы.
	first.RecordOrderPaid()
	second.RecordOrderPaid()

	metric := &dto.Metric{}
	if err := first.ordersPaid.Write(metric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	if metric.Counter.GetValue() != 2.0 {
		t.Errorf("expected counter value 2.0, got %f", metric.Counter.GetValue())
	}
}

func TestRecordOrderCreated(t *testing.T) {
	metrics := newCheckoutMetricsWithRegisterer(prometheus.NewRegistry())

	metrics.RecordOrderCreated("stripe")
	metrics.RecordOrderCreated("stripe")
	metrics.RecordOrderCreated("paypal")

	metric := &dto.Metric{}
	counter, err := metrics.ordersCreated.GetMetricWithLabelValues("stripe")
	if err != nil {
		t.Fatalf("get counter: %v", err)
	}
	if err := counter.Write(metric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	if metric.Counter.GetValue() != 2.0 {
		t.Errorf("expected counter value 2.0, got %f", metric.Counter.GetValue())
	}
}

func TestRecordCheckoutDuration(t *testing.T) {
	metrics := newCheckoutMetricsWithRegisterer(prometheus.NewRegistry())

	metrics.RecordCheckoutDuration(100 * time.Millisecond)
	metrics.RecordCheckoutDuration(500 * time.Millisecond)

	metric := &dto.Metric{}
	if err := metrics.checkoutDuration.Write(metric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	if metric.Histogram.GetSampleCount() != 2 {
		t.Errorf("expected 2 samples, got %d", metric.Histogram.GetSampleCount())
	}

	sum := metric.Histogram.GetSampleSum()
	if sum < 0.55 || sum > 0.65 {
		t.Errorf("expected sum around 0.6, got %f", sum)
	}
}

func TestRecordVerifyDuration(t *testing.T) {
	metrics := newCheckoutMetricsWithRegisterer(prometheus.NewRegistry())

	metrics.RecordVerifyDuration("paypal", 250*time.Millisecond)

	observer, err := metrics.verifyDuration.GetMetricWithLabelValues("paypal")
	if err != nil {
		t.Fatalf("get histogram: %v", err)
	}

	metric := &dto.Metric{}
	if err := observer.(prometheus.Histogram).Write(metric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	if metric.Histogram.GetSampleCount() != 1 {
		t.Errorf("expected 1 sample, got %d", metric.Histogram.GetSampleCount())
	}
}

func TestRecordCounters(t *testing.T) {
	metrics := newCheckoutMetricsWithRegisterer(prometheus.NewRegistry())

	metrics.RecordQuote()
	metrics.RecordOrderPaid()
	metrics.RecordOrderCancelled()
	metrics.RecordOrderDelivered()
	metrics.RecordStockConflict()
	metrics.RecordWebhookReceived()
	metrics.RecordWebhookRejected()
	metrics.RecordRateLimited()
	metrics.RecordTimelineEvent()
	metrics.RecordOutboxEvent()

	counters := map[string]prometheus.Counter{
		"quotesTotal":      metrics.quotesTotal,
		"ordersPaid":       metrics.ordersPaid,
		"ordersCancelled":  metrics.ordersCancelled,
		"ordersDelivered":  metrics.ordersDelivered,
		"stockConflicts":   metrics.stockConflicts,
		"webhooksReceived": metrics.webhooksReceived,
		"webhooksRejected": metrics.webhooksRejected,
		"rateLimited":      metrics.rateLimited,
		"timelineEvents":   metrics.timelineEvents,
		"outboxEvents":     metrics.outboxEvents,
	}
	for name, counter := range counters {
		metric := &dto.Metric{}
		if err := counter.Write(metric); err != nil {
			t.Fatalf("%s: failed to write metric: %v", name, err)
		}
		if metric.Counter.GetValue() != 1.0 {
			t.Errorf("%s: expected counter value 1.0, got %f", name, metric.Counter.GetValue())
		}
	}
}
