package http

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/service/checkout"
	"github.com/vladislavdragonenkov/storefront/internal/service/payment"
)

// maxBodyBytes ограничивает размер тела запроса.
const maxBodyBytes = 1 << 20

// Handler обслуживает REST API магазина.
type Handler struct {
	checkout *checkout.Service
	products domain.ProductRepository
	stripe   *payment.StripeVerifier
	logger   *log.Entry
	metrics  *metrics.CheckoutMetrics

	successURL string
	cancelURL  string
}

// HandlerConfig — параметры хендлеров.
type HandlerConfig struct {
	Checkout *checkout.Service
	Products domain.ProductRepository
	Stripe   *payment.StripeVerifier
	Logger   *log.Entry
	Metrics  *metrics.CheckoutMetrics
	// SuccessURL и CancelURL — адреса возврата после hosted checkout.
	SuccessURL string
	CancelURL  string
}

// NewHandler создаёт набор хендлеров.
func NewHandler(cfg HandlerConfig) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = log.New().WithField("component", "http")
	}
	return &Handler{
		checkout:   cfg.Checkout,
		products:   cfg.Products,
		stripe:     cfg.Stripe,
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
		successURL: cfg.SuccessURL,
		cancelURL:  cfg.CancelURL,
	}
}

type cartLineDTO struct {
	ProductID string `json:"productId"`
	Quantity  int32  `json:"quantity"`
	Size      string `json:"size,omitempty"`
}

type quoteRequest struct {
	Items []cartLineDTO `json:"items"`
}

type orderItemDTO struct {
	ID         string `json:"id"`
	ProductID  string `json:"productId"`
	Name       string `json:"name"`
	Quantity   int32  `json:"quantity"`
	PriceMinor int64  `json:"priceMinor"`
	Image      string `json:"image,omitempty"`
	Size       string `json:"size"`
}

type quoteResponse struct {
	Items       []orderItemDTO `json:"items"`
	AmountMinor int64          `json:"amountMinor"`
	Currency    string         `json:"currency"`
}

type createOrderRequest struct {
	Items           []cartLineDTO `json:"items"`
	PaymentMethod   string        `json:"paymentMethod"`
	PaymentRef      string        `json:"paymentRef,omitempty"`
	ShippingAddress string        `json:"shippingAddress"`
	Phone           string        `json:"phone"`
}

type orderResponse struct {
	ID              string         `json:"id"`
	UserID          string         `json:"userId"`
	Status          string         `json:"status"`
	PaymentMethod   string         `json:"paymentMethod"`
	PaymentRef      string         `json:"paymentRef,omitempty"`
	Currency        string         `json:"currency"`
	AmountMinor     int64          `json:"amountMinor"`
	Items           []orderItemDTO `json:"items"`
	ShippingAddress string         `json:"shippingAddress"`
	Phone           string         `json:"phone"`
	CreatedAt       string         `json:"createdAt"`
	UpdatedAt       string         `json:"updatedAt"`
}

type productResponse struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	PriceMinor int64  `json:"priceMinor"`
	Stock      int32  `json:"stock"`
	Image      string `json:"image,omitempty"`
}

func toCartLines(items []cartLineDTO) []domain.CartLine {
	lines := make([]domain.CartLine, 0, len(items))
	for _, item := range items {
		lines = append(lines, domain.CartLine{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Size:      item.Size,
		})
	}
	return lines
}

func toOrderItemDTOs(items []domain.OrderItem) []orderItemDTO {
	dtos := make([]orderItemDTO, 0, len(items))
	for _, item := range items {
		dtos = append(dtos, orderItemDTO{
			ID:         item.ID,
			ProductID:  item.ProductID,
			Name:       item.Name,
			Quantity:   item.Qty,
			PriceMinor: item.PriceMinor,
			Image:      item.Image,
			Size:       item.Size,
		})
	}
	return dtos
}

func toOrderResponse(order domain.Order) orderResponse {
	return orderResponse{
		ID:              order.ID,
		UserID:          order.UserID,
		Status:          string(order.Status),
		PaymentMethod:   string(order.PaymentMethod),
		PaymentRef:      order.PaymentRef,
		Currency:        order.Currency,
		AmountMinor:     order.AmountMinor,
		Items:           toOrderItemDTOs(order.Items),
		ShippingAddress: order.ShippingAddress,
		Phone:           order.Phone,
		CreatedAt:       order.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt:       order.UpdatedAt.Format(time.RFC3339Nano),
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return false
	}
	return true
}

// Quote — POST /api/orders/quote.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if !decodeBody(w, r, &req) {
		return
	}

	quote, err := h.checkout.Quote(r.Context(), toCartLines(req.Items))
	if err != nil {
		respondDomainError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, quoteResponse{
		Items:       toOrderItemDTOs(quote.Items),
		AmountMinor: quote.AmountMinor,
		Currency:    quote.Currency,
	})
}

// CreateOrder — POST /api/orders.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthenticated", "missing bearer token")
		return
	}

	var req createOrderRequest
	if !decodeBody(w, r, &req) {
		return
	}

	order, err := h.checkout.Create(r.Context(), checkout.CreateOrderInput{
		UserID:          user.ID,
		Lines:           toCartLines(req.Items),
		PaymentMethod:   domain.PaymentMethod(req.PaymentMethod),
		PaymentRef:      req.PaymentRef,
		ShippingAddress: req.ShippingAddress,
		Phone:           req.Phone,
	})
	if err != nil {
		respondDomainError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusCreated, toOrderResponse(order))
}

// MyOrders — GET /api/orders/my-orders.
func (h *Handler) MyOrders(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthenticated", "missing bearer token")
		return
	}

	orders, err := h.checkout.ListUserOrders(r.Context(), user.ID, 0)
	if err != nil {
		respondDomainError(w, h.logger, err)
		return
	}

	dtos := make([]orderResponse, 0, len(orders))
	for _, order := range orders {
		dtos = append(dtos, toOrderResponse(order))
	}
	respondJSON(w, http.StatusOK, dtos)
}

// AdminOrders — GET /api/admin/orders.
func (h *Handler) AdminOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.checkout.ListOrders(r.Context(), 0)
	if err != nil {
		respondDomainError(w, h.logger, err)
		return
	}

	dtos := make([]orderResponse, 0, len(orders))
	for _, order := range orders {
		dtos = append(dtos, toOrderResponse(order))
	}
	respondJSON(w, http.StatusOK, dtos)
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

// UpdateOrderStatus — PUT /api/orders/{id}/status.
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")

	var req updateStatusRequest
	if !decodeBody(w, r, &req) {
		return
	}

	status, err := domain.ParseOrderStatus(req.Status)
	if err != nil {
		respondDomainError(w, h.logger, err)
		return
	}

	order, err := h.checkout.UpdateStatus(r.Context(), orderID, status)
	if err != nil {
		respondDomainError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, toOrderResponse(order))
}

type verifyPaymentRequest struct {
	TransactionID string `json:"transactionId"`
}

// VerifyPayment — POST /api/payments/verify. Callback-сценарий: фронтенд
// приносит идентификатор транзакции, бэкенд сверяет её у провайдера заказа.
func (h *Handler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	var req verifyPaymentRequest
	if !decodeBody(w, r, &req) {
		return
	}

	order, err := h.checkout.VerifyAndConfirm(r.Context(), req.TransactionID)
	if err != nil {
		respondDomainError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, toOrderResponse(order))
}

type stripeSessionResponseDTO struct {
	OrderID    string `json:"orderId"`
	SessionID  string `json:"sessionId"`
	SessionURL string `json:"sessionUrl"`
}

// CreateStripeSession — POST /api/payments/stripe-session. Создаёт заказ в
// ожидании оплаты и hosted checkout-сессию; orderId уезжает в metadata и
// возвращается в webhook.
func (h *Handler) CreateStripeSession(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthenticated", "missing bearer token")
		return
	}
	if h.stripe == nil {
		respondDomainError(w, h.logger, domain.ErrPaymentNotConfigured)
		return
	}

	var req createOrderRequest
	if !decodeBody(w, r, &req) {
		return
	}

	order, err := h.checkout.Create(r.Context(), checkout.CreateOrderInput{
		UserID:          user.ID,
		Lines:           toCartLines(req.Items),
		PaymentMethod:   domain.PaymentMethodStripe,
		ShippingAddress: req.ShippingAddress,
		Phone:           req.Phone,
	})
	if err != nil {
		respondDomainError(w, h.logger, err)
		return
	}

	lines := make([]payment.SessionLine, 0, len(order.Items))
	for _, item := range order.Items {
		lines = append(lines, payment.SessionLine{
			Name:            item.Name,
			UnitAmountMinor: h.stripe.ProviderMinor(item.PriceMinor),
			Qty:             item.Qty,
		})
	}

	session, err := h.stripe.CreateSession(r.Context(), payment.SessionRequest{
		OrderID:    order.ID,
		Lines:      lines,
		SuccessURL: h.successURL,
		CancelURL:  h.cancelURL,
	})
	if err != nil {
		// Заказ остаётся в ожидании: клиент может запросить сессию повторно.
		respondDomainError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusCreated, stripeSessionResponseDTO{
		OrderID:    order.ID,
		SessionID:  session.ID,
		SessionURL: session.URL,
	})
}

// StripeWebhook — POST /api/payments/stripe-webhook. Подпись проверяется по
// сырому телу; после успешной проверки ответ всегда {"received":true}, чтобы
// провайдер не ретраил события, упавшие по внутренним причинам.
func (h *Handler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	if h.stripe == nil {
		respondDomainError(w, h.logger, domain.ErrPaymentNotConfigured)
		return
	}
	if h.metrics != nil {
		h.metrics.RecordWebhookReceived()
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "failed to read request body")
		return
	}

	if err := h.stripe.VerifySignature(body, r.Header.Get("Stripe-Signature")); err != nil {
		if h.metrics != nil {
			h.metrics.RecordWebhookRejected()
		}
		respondDomainError(w, h.logger, err)
		return
	}

	event, err := h.stripe.ParseEvent(body)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "malformed webhook payload")
		return
	}

	if event.Finalizes() && event.OrderID != "" {
		if _, err := h.checkout.ConfirmPaid(r.Context(), event.OrderID, event.PaymentRef); err != nil {
			// Ошибка логируется, но провайдеру отвечаем 200: повтор webhook
			// безопасен и ничего не добавит.
			h.logger.WithError(err).WithField("order_id", event.OrderID).Error("webhook confirmation failed")
		}
	}

	respondJSON(w, http.StatusOK, map[string]bool{"received": true})
}

// ListProducts — GET /api/products.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context())
	if err != nil {
		respondDomainError(w, h.logger, err)
		return
	}

	dtos := make([]productResponse, 0, len(products))
	for _, product := range products {
		dtos = append(dtos, productResponse{
			ID:         product.ID,
			Name:       product.Name,
			PriceMinor: product.PriceMinor,
			Stock:      product.Stock,
			Image:      product.Image,
		})
	}
	respondJSON(w, http.StatusOK, dtos)
}

// GetProduct — GET /api/products/{id}.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := h.products.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondDomainError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, productResponse{
		ID:         product.ID,
		Name:       product.Name,
		PriceMinor: product.PriceMinor,
		Stock:      product.Stock,
		Image:      product.Image,
	})
}
