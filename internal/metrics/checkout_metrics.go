package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CheckoutMetrics содержит метрики оформления и подтверждения заказов.
type CheckoutMetrics struct {
	// Счётчики операций
	quotesTotal      prometheus.Counter
	ordersCreated    *prometheus.CounterVec
	ordersPaid       prometheus.Counter
	ordersCancelled  prometheus.Counter
	ordersDelivered  prometheus.Counter
	stockConflicts   prometheus.Counter
	verifyFailures   *prometheus.CounterVec
	webhooksReceived prometheus.Counter
	webhooksRejected prometheus.Counter
	rateLimited      prometheus.Counter

	// Гистограммы времени выполнения
	checkoutDuration prometheus.Histogram
	verifyDuration   *prometheus.HistogramVec

	// Счётчики событий timeline и outbox
	timelineEvents prometheus.Counter
	outboxEvents   prometheus.Counter
}

// NewCheckoutMetrics создаёт новый экземпляр метрик checkout.
func NewCheckoutMetrics() *CheckoutMetrics {
	return newCheckoutMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newCheckoutMetricsWithRegisterer(registerer prometheus.Registerer) *CheckoutMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &CheckoutMetrics{
		quotesTotal: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shop_quotes_total",
			Help: "Total number of cart quotes computed",
		}),
		ordersCreated: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "shop_orders_created_total",
			Help: "Total number of orders created",
		}, []string{"payment_method"}),
		ordersPaid: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shop_orders_paid_total",
			Help: "Total number of orders confirmed as paid",
		}),
		ordersCancelled: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shop_orders_cancelled_total",
			Help: "Total number of orders cancelled",
		}),
		ordersDelivered: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shop_orders_delivered_total",
			Help: "Total number of orders marked delivered",
		}),
		stockConflicts: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shop_stock_conflicts_total",
			Help: "Total number of checkouts lost to a stock race",
		}),
		verifyFailures: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "shop_payment_verify_failures_total",
			Help: "Total number of failed payment verifications",
		}, []string{"payment_method"}),
		webhooksReceived: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shop_webhooks_received_total",
			Help: "Total number of payment webhooks received",
		}),
		webhooksRejected: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shop_webhooks_rejected_total",
			Help: "Total number of payment webhooks rejected by signature check",
		}),
		rateLimited: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shop_rate_limited_total",
			Help: "Total number of requests refused by the rate limiter",
		}),
		checkoutDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "shop_checkout_duration_seconds",
			Help:    "Duration of order creation in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		verifyDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "shop_payment_verify_duration_seconds",
			Help:    "Duration of provider verification calls in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 20.0},
		}, []string{"payment_method"}),
		timelineEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shop_timeline_events_total",
			Help: "Total number of timeline events recorded",
		}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shop_outbox_events_total",
			Help: "Total number of outbox events published",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	collector := prometheus.NewHistogramVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.HistogramVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram vec %q: %v", opts.Name, err))
	}
	return collector
}

// RecordQuote увеличивает счётчик рассчитанных корзин.
func (m *CheckoutMetrics) RecordQuote() {
	m.quotesTotal.Inc()
}

// RecordOrderCreated увеличивает счётчик созданных заказов.
func (m *CheckoutMetrics) RecordOrderCreated(method string) {
	m.ordersCreated.WithLabelValues(method).Inc()
}

// RecordOrderPaid увеличивает счётчик подтверждённых оплат.
func (m *CheckoutMetrics) RecordOrderPaid() {
	m.ordersPaid.Inc()
}

// RecordOrderCancelled увеличивает счётчик отменённых заказов.
func (m *CheckoutMetrics) RecordOrderCancelled() {
	m.ordersCancelled.Inc()
}

// RecordOrderDelivered увеличивает счётчик доставленных заказов.
func (m *CheckoutMetrics) RecordOrderDelivered() {
	m.ordersDelivered.Inc()
}

// RecordStockConflict увеличивает счётчик проигранных гонок за остаток.
func (m *CheckoutMetrics) RecordStockConflict() {
	m.stockConflicts.Inc()
}

// RecordVerifyFailure увеличивает счётчик неудачных верификаций оплаты.
func (m *CheckoutMetrics) RecordVerifyFailure(method string) {
	m.verifyFailures.WithLabelValues(method).Inc()
}

// RecordWebhookReceived увеличивает счётчик принятых webhook.
func (m *CheckoutMetrics) RecordWebhookReceived() {
	m.webhooksReceived.Inc()
}

// RecordWebhookRejected увеличивает счётчик отклонённых по подписи webhook.
func (m *CheckoutMetrics) RecordWebhookRejected() {
	m.webhooksRejected.Inc()
}

// RecordRateLimited увеличивает счётчик срезанных лимитером запросов.
func (m *CheckoutMetrics) RecordRateLimited() {
	m.rateLimited.Inc()
}

// RecordCheckoutDuration записывает время создания заказа.
func (m *CheckoutMetrics) RecordCheckoutDuration(duration time.Duration) {
	m.checkoutDuration.Observe(duration.Seconds())
}

// RecordVerifyDuration записывает время обращения к провайдеру.
func (m *CheckoutMetrics) RecordVerifyDuration(method string, duration time.Duration) {
	m.verifyDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordTimelineEvent увеличивает счётчик событий timeline.
func (m *CheckoutMetrics) RecordTimelineEvent() {
	m.timelineEvents.Inc()
}

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *CheckoutMetrics) RecordOutboxEvent() {
	m.outboxEvents.Inc()
}
