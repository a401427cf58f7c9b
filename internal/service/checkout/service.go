package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/service/payment"
	"github.com/vladislavdragonenkov/storefront/internal/service/stock"
)

// Deps — зависимости сервиса оформления заказов.
type Deps struct {
	Products  domain.ProductRepository
	Orders    domain.OrderRepository
	Outbox    domain.OutboxRepository
	Timeline  domain.TimelineRepository
	Guard     *stock.Guard
	Verifiers *payment.Registry
	Currency  string
	Logger    *log.Entry
	Metrics   *metrics.CheckoutMetrics
}

// Service реализует оформление заказа: нормализация корзины, резолв каталога,
// расчёт цены, списание остатков и выбор пути подтверждения оплаты.
type Service struct {
	products  domain.ProductRepository
	orders    domain.OrderRepository
	outbox    domain.OutboxRepository
	timeline  domain.TimelineRepository
	guard     *stock.Guard
	verifiers *payment.Registry
	currency  string
	logger    *log.Entry
	metrics   *metrics.CheckoutMetrics
	now       func() time.Time
}

// NewService создаёт рабочий экземпляр сервиса.
func NewService(deps Deps) *Service {
	if deps.Logger == nil {
		deps.Logger = log.New().WithField("component", "checkout")
	}
	return &Service{
		products:  deps.Products,
		orders:    deps.Orders,
		outbox:    deps.Outbox,
		timeline:  deps.Timeline,
		guard:     deps.Guard,
		verifiers: deps.Verifiers,
		currency:  deps.Currency,
		logger:    deps.Logger,
		metrics:   deps.Metrics,
		now:       time.Now,
	}
}

// Quote — расчёт корзины без каких-либо мутаций.
type Quote struct {
	Items       []domain.OrderItem
	AmountMinor int64
	Currency    string
}

// Quote нормализует корзину и считает итог по актуальным ценам каталога.
// Цены с клиента игнорируются: источник истины — каталог.
func (s *Service) Quote(ctx context.Context, lines []domain.CartLine) (Quote, error) {
	items, total, err := s.priceItems(ctx, lines)
	if err != nil {
		return Quote{}, err
	}

	if s.metrics != nil {
		s.metrics.RecordQuote()
	}
	return Quote{Items: items, AmountMinor: total, Currency: s.currency}, nil
}

// priceItems — общий конвейер quote/create: нормализация, batch-резолв каталога,
// снапшот-проверка остатков и фиксация цен.
func (s *Service) priceItems(ctx context.Context, lines []domain.CartLine) ([]domain.OrderItem, int64, error) {
	normalized, err := domain.NormalizeCart(lines)
	if err != nil {
		return nil, 0, err
	}

	ids := make([]string, 0, len(normalized))
	seen := make(map[string]struct{}, len(normalized))
	for _, line := range normalized {
		if _, ok := seen[line.ProductID]; ok {
			continue
		}
		seen[line.ProductID] = struct{}{}
		ids = append(ids, line.ProductID)
	}

	products, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, 0, err
	}

	now := s.now().UTC()
	items := make([]domain.OrderItem, 0, len(normalized))
	var total int64
	for _, line := range normalized {
		product := products[line.ProductID]
		if product.PriceMinor <= 0 {
			return nil, 0, fmt.Errorf("%w: product %s", domain.ErrInvalidPrice, product.ID)
		}
		if product.Stock < line.Quantity {
			return nil, 0, fmt.Errorf("%w: product %s", domain.ErrInsufficientStock, product.ID)
		}

		items = append(items, domain.OrderItem{
			ID:         uuid.NewString(),
			ProductID:  product.ID,
			Name:       product.Name,
			Qty:        line.Quantity,
			PriceMinor: product.PriceMinor,
			Image:      product.Image,
			Size:       line.Size,
			CreatedAt:  now,
		})
		total += int64(line.Quantity) * product.PriceMinor
	}

	return items, total, nil
}

// CreateOrderInput — параметры создания заказа.
type CreateOrderInput struct {
	UserID          string
	Lines           []domain.CartLine
	PaymentMethod   domain.PaymentMethod
	PaymentRef      string
	ShippingAddress string
	Phone           string
}

// Create оформляет заказ. Для провайдеров с моментальной верификацией оплата
// проверяется синхронно и остатки списываются строго; для отложенных заказ
// сохраняется в ожидании подтверждения, остатки не трогаются.
func (s *Service) Create(ctx context.Context, input CreateOrderInput) (domain.Order, error) {
	start := s.now()
	defer func() {
		if s.metrics != nil {
			s.metrics.RecordCheckoutDuration(time.Since(start))
		}
	}()

	verifier, err := s.verifiers.Get(input.PaymentMethod)
	if err != nil {
		return domain.Order{}, err
	}

	items, total, err := s.priceItems(ctx, input.Lines)
	if err != nil {
		return domain.Order{}, err
	}

	now := s.now().UTC()
	order := domain.Order{
		ID:              uuid.NewString(),
		UserID:          input.UserID,
		Status:          domain.OrderStatusPendingPayment,
		PaymentMethod:   input.PaymentMethod,
		PaymentRef:      input.PaymentRef,
		Currency:        s.currency,
		AmountMinor:     total,
		Items:           items,
		ShippingAddress: input.ShippingAddress,
		Phone:           input.Phone,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if errs := order.ValidateInvariants(); len(errs) > 0 {
		return domain.Order{}, errs[0]
	}

	switch verifier.Mode() {
	case domain.VerificationImmediate:
		if err := s.createImmediate(ctx, verifier, &order); err != nil {
			return domain.Order{}, err
		}
	default:
		if err := s.createDeferred(ctx, &order); err != nil {
			return domain.Order{}, err
		}
	}

	if s.metrics != nil {
		s.metrics.RecordOrderCreated(string(order.PaymentMethod))
	}
	return order, nil
}

// createImmediate — путь "сначала деньги": верификация у провайдера, строгое
// списание остатков, затем фиксация оплаченного заказа. Если фиксация не
// удалась, списание компенсируется.
func (s *Service) createImmediate(ctx context.Context, verifier domain.PaymentVerifier, order *domain.Order) error {
	if order.PaymentRef == "" {
		return domain.ErrPaymentRefRequired
	}

	verifyStart := s.now()
	err := verifier.Verify(ctx, order.PaymentRef, order.AmountMinor)
	if s.metrics != nil {
		s.metrics.RecordVerifyDuration(string(order.PaymentMethod), time.Since(verifyStart))
	}
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordVerifyFailure(string(order.PaymentMethod))
		}
		s.logger.WithError(err).WithFields(log.Fields{
			"order_id": order.ID,
			"method":   order.PaymentMethod,
			"ref":      order.PaymentRef,
		}).Warn("payment verification failed")
		return err
	}

	if err := s.guard.Decrement(ctx, order.Items, true); err != nil {
		if domain.IsConflictError(err) && s.metrics != nil {
			s.metrics.RecordStockConflict()
		}
		return err
	}

	order.Status = domain.OrderStatusPaid
	if err := s.orders.Create(ctx, *order); err != nil {
		// Оплата уже прошла у провайдера, но заказ сохранить не удалось:
		// возвращаем остатки, расхождение разбирается вручную по логам.
		s.guard.Restock(ctx, order.Items)
		s.logger.WithError(err).WithField("order_id", order.ID).Error("persist paid order failed, stock restored")
		return err
	}

	s.emitEvent(order, domain.TimelineOrderCreated, "")
	s.emitEvent(order, domain.TimelineOrderPaid, "")
	if s.metrics != nil {
		s.metrics.RecordOrderPaid()
	}

	s.logger.WithFields(log.Fields{
		"order_id": order.ID,
		"method":   order.PaymentMethod,
		"amount":   order.AmountMinor,
	}).Info("order created and paid")
	return nil
}

// createDeferred сохраняет заказ в ожидании асинхронного подтверждения.
func (s *Service) createDeferred(ctx context.Context, order *domain.Order) error {
	if err := s.orders.Create(ctx, *order); err != nil {
		return err
	}

	s.emitEvent(order, domain.TimelineOrderCreated, "")
	s.logger.WithFields(log.Fields{
		"order_id": order.ID,
		"method":   order.PaymentMethod,
		"amount":   order.AmountMinor,
	}).Info("order created, awaiting payment confirmation")
	return nil
}
