package checkout

import (
	"context"
	"encoding/json"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const (
	maxSaveRetries = 3
	baseRetryDelay = 10 * time.Millisecond
)

// ConfirmPaid переводит заказ в статус "оплачен". Метод идемпотентен: повторное
// подтверждение уже оплаченного заказа — no-op без побочных эффектов. Только
// победитель optimistic-lock гонки списывает остатки и эмитит события, поэтому
// дубликаты webhook не приводят к двойному списанию.
func (s *Service) ConfirmPaid(ctx context.Context, orderID, paymentRef string) (domain.Order, error) {
	for attempt := 0; attempt < maxSaveRetries; attempt++ {
		order, err := s.orders.Get(ctx, orderID)
		if err != nil {
			return domain.Order{}, err
		}

		if order.Status.IsPaidOrLater() {
			s.logger.WithFields(log.Fields{
				"order_id": order.ID,
				"status":   order.Status,
			}).Debug("order already paid, confirmation ignored")
			return order, nil
		}

		changed, err := order.AdvanceTo(domain.OrderStatusPaid)
		if err != nil {
			return domain.Order{}, err
		}
		if !changed {
			return order, nil
		}

		// Ранний payment ref (например, id сессии) не перезаписывается.
		if paymentRef != "" && order.PaymentRef == "" {
			order.PaymentRef = paymentRef
		}
		order.UpdatedAt = s.now().UTC()

		if err := s.orders.Save(ctx, order); err != nil {
			if domain.IsVersionConflict(err) && attempt < maxSaveRetries-1 {
				s.logger.WithFields(log.Fields{
					"order_id": order.ID,
					"attempt":  attempt + 1,
				}).Warn("version conflict on payment confirmation, retrying")
				time.Sleep(baseRetryDelay * time.Duration(1<<uint(attempt)))
				continue
			}
			return domain.Order{}, err
		}
		order.Version++

		// Победитель перехода финализирует остатки: заказ уже оплачен,
		// поэтому списание нестрогое.
		if err := s.guard.Decrement(ctx, order.Items, false); err != nil {
			s.logger.WithError(err).WithField("order_id", order.ID).Error("post-payment stock decrement failed")
		}

		s.emitEvent(&order, domain.TimelineOrderPaid, "")
		if s.metrics != nil {
			s.metrics.RecordOrderPaid()
		}

		s.logger.WithFields(log.Fields{
			"order_id": order.ID,
			"ref":      order.PaymentRef,
		}).Info("payment confirmed")
		return order, nil
	}

	return domain.Order{}, domain.ErrOrderVersionConflict
}

// VerifyAndConfirm находит заказ по платёжной ссылке, прогоняет верификацию
// у провайдера заказа и подтверждает оплату. Обслуживает callback-сценарий,
// когда фронтенд приносит идентификатор транзакции.
func (s *Service) VerifyAndConfirm(ctx context.Context, ref string) (domain.Order, error) {
	if ref == "" {
		return domain.Order{}, domain.ErrPaymentRefRequired
	}

	order, err := s.orders.FindByPaymentRef(ctx, ref)
	if err != nil {
		return domain.Order{}, err
	}
	if order.Status.IsPaidOrLater() {
		return order, nil
	}

	verifier, err := s.verifiers.Get(order.PaymentMethod)
	if err != nil {
		return domain.Order{}, err
	}

	verifyStart := s.now()
	err = verifier.Verify(ctx, ref, order.AmountMinor)
	if s.metrics != nil {
		s.metrics.RecordVerifyDuration(string(order.PaymentMethod), time.Since(verifyStart))
	}
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordVerifyFailure(string(order.PaymentMethod))
		}
		return domain.Order{}, err
	}

	return s.ConfirmPaid(ctx, order.ID, ref)
}

// UpdateStatus — административный перевод заказа по решётке статусов.
func (s *Service) UpdateStatus(ctx context.Context, orderID string, target domain.OrderStatus) (domain.Order, error) {
	for attempt := 0; attempt < maxSaveRetries; attempt++ {
		order, err := s.orders.Get(ctx, orderID)
		if err != nil {
			return domain.Order{}, err
		}

		changed, err := order.AdvanceTo(target)
		if err != nil {
			return domain.Order{}, err
		}
		if !changed {
			return order, nil
		}
		order.UpdatedAt = s.now().UTC()

		if err := s.orders.Save(ctx, order); err != nil {
			if domain.IsVersionConflict(err) && attempt < maxSaveRetries-1 {
				time.Sleep(baseRetryDelay * time.Duration(1<<uint(attempt)))
				continue
			}
			return domain.Order{}, err
		}
		order.Version++

		switch target {
		case domain.OrderStatusPaid:
			// Перевод в "оплачен" руками проходит тот же путь, что и webhook.
			if err := s.guard.Decrement(ctx, order.Items, false); err != nil {
				s.logger.WithError(err).WithField("order_id", order.ID).Error("post-payment stock decrement failed")
			}
			s.emitEvent(&order, domain.TimelineOrderPaid, "")
			if s.metrics != nil {
				s.metrics.RecordOrderPaid()
			}
		case domain.OrderStatusDelivered:
			s.emitEvent(&order, domain.TimelineOrderDelivered, "")
			if s.metrics != nil {
				s.metrics.RecordOrderDelivered()
			}
		case domain.OrderStatusCancelled:
			s.emitEvent(&order, domain.TimelineOrderCancelled, "admin")
			if s.metrics != nil {
				s.metrics.RecordOrderCancelled()
			}
		}

		s.logger.WithFields(log.Fields{
			"order_id": order.ID,
			"status":   order.Status,
		}).Info("order status updated")
		return order, nil
	}

	return domain.Order{}, domain.ErrOrderVersionConflict
}

// GetOrder возвращает заказ по идентификатору.
func (s *Service) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	return s.orders.Get(ctx, orderID)
}

// ListUserOrders возвращает заказы пользователя.
func (s *Service) ListUserOrders(ctx context.Context, userID string, limit int) ([]domain.Order, error) {
	return s.orders.ListByUser(ctx, userID, limit)
}

// ListOrders возвращает все заказы (административный листинг).
func (s *Service) ListOrders(ctx context.Context, limit int) ([]domain.Order, error) {
	return s.orders.List(ctx, limit)
}

// emitEvent пишет событие в outbox и timeline. Ошибки логируются и не
// прерывают основную операцию: заказ уже зафиксирован.
func (s *Service) emitEvent(order *domain.Order, eventType, reason string) {
	occurred := s.now().UTC()

	payload := map[string]interface{}{
		"order_id":     order.ID,
		"status":       string(order.Status),
		"amount_minor": order.AmountMinor,
		"currency":     order.Currency,
		"ts":           occurred.Format(time.RFC3339Nano),
	}
	if reason != "" {
		payload["reason"] = reason
	}

	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"order_id": order.ID,
			"event":    eventType,
		}).Error("marshal event failed")
		return
	}

	if s.outbox != nil {
		msg := domain.OutboxMessage{
			AggregateType: "order",
			AggregateID:   order.ID,
			EventType:     eventType,
			Payload:       data,
		}
		if _, err := s.outbox.Enqueue(msg); err != nil {
			s.logger.WithError(err).WithFields(log.Fields{
				"order_id": order.ID,
				"event":    eventType,
			}).Error("enqueue event failed")
		} else if s.metrics != nil {
			s.metrics.RecordOutboxEvent()
		}
	}

	if s.timeline != nil {
		event := domain.TimelineEvent{
			OrderID:  order.ID,
			Type:     eventType,
			Reason:   reason,
			Occurred: occurred,
		}
		if err := s.timeline.Append(event); err != nil {
			s.logger.WithError(err).WithFields(log.Fields{
				"order_id": order.ID,
				"event":    eventType,
			}).Warn("append timeline event failed")
		} else if s.metrics != nil {
			s.metrics.RecordTimelineEvent()
		}
	}
}
