package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/health"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/service/checkout"
	httpapi "github.com/vladislavdragonenkov/storefront/internal/service/http"
	"github.com/vladislavdragonenkov/storefront/internal/service/idempotency"
	"github.com/vladislavdragonenkov/storefront/internal/service/outbox"
	"github.com/vladislavdragonenkov/storefront/internal/service/stock"
	"github.com/vladislavdragonenkov/storefront/internal/version"
)

// Run собирает и запускает приложение: хранилища, воркеры, HTTP API и
// сервер метрик. Блокируется до отмены ctx или фатальной ошибки сервера.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	deps, err := NewDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Close()

	checkoutMetrics := metrics.NewCheckoutMetrics()
	registry, stripeVerifier := buildVerifiers(cfg, logger)
	guard := stock.NewGuard(deps.Products, logger.WithField("component", "stock-guard"))

	checkoutSvc := checkout.NewService(checkout.Deps{
		Products:  deps.Products,
		Orders:    deps.Orders,
		Outbox:    deps.Outbox,
		Timeline:  deps.Timeline,
		Guard:     guard,
		Verifiers: registry,
		Currency:  cfg.Currency,
		Logger:    logger.WithField("component", "checkout"),
		Metrics:   checkoutMetrics,
	})

	// Kafka опционален: без брокеров события копятся в outbox и могут быть
	// опубликованы после включения producer.
	kafkaProducer, _ := initKafkaProducer(cfg.KafkaBrokers, logger)
	defer closeKafka(kafkaProducer, logger)

	if kafkaProducer != nil {
		publisher := kafka.NewOutboxPublisher(kafkaProducer, kafka.TopicOrderEvents)
		worker := outbox.NewWorker(
			deps.Outbox,
			publisher,
			outbox.WithLogger(log.WithField("component", "outbox-worker")),
		)
		go worker.Run(ctx)
	}

	cleaner := idempotency.NewCleanupWorker(deps.Idempotency)
	go cleaner.Run(ctx)

	handler := httpapi.NewHandler(httpapi.HandlerConfig{
		Checkout:   checkoutSvc,
		Products:   deps.Products,
		Stripe:     stripeVerifier,
		Logger:     logger.WithField("component", "http"),
		Metrics:    checkoutMetrics,
		SuccessURL: cfg.StripeSuccessURL,
		CancelURL:  cfg.StripeCancelURL,
	})
	mw := httpapi.NewMiddleware(
		deps.Auth,
		deps.Limiter,
		deps.Idempotency,
		logger.WithField("component", "http"),
		checkoutMetrics,
	)
	router := httpapi.NewRouter(handler, mw)

	healthHandler := health.NewHandler(version.String())
	if deps.Store != nil {
		healthHandler.RegisterChecker("postgres", health.NewSimpleChecker("postgres", func() error {
			checkCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return deps.Store.Ping(checkCtx)
		}))
	}
	if deps.Redis != nil {
		healthHandler.RegisterChecker("redis", health.NewSimpleChecker("redis", func() error {
			checkCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return deps.Redis.Ping(checkCtx).Err()
		}))
	}

	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)

	apiSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}
	errCh := make(chan error, 1)
	go func() {
		logger.Infof("HTTP API слушает %s", cfg.HTTPAddr)
		errCh <- apiSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем HTTP сервер")
		shutdownHTTP(apiSrv, logger)
		shutdownHTTP(metricsSrv, logger)
		return ctx.Err()
	case err := <-errCh:
		shutdownHTTP(metricsSrv, logger)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// startMetricsServer запускает HTTP-обработчик /metrics для Prometheus.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *health.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", health.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/livez, %s/readyz", addr, addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}
