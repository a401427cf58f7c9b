package domain

import "time"

// Типы событий жизненного цикла заказа.
const (
	TimelineOrderCreated   = "OrderCreated"
	TimelineOrderPaid      = "OrderPaid"
	TimelineOrderDelivered = "OrderDelivered"
	TimelineOrderCancelled = "OrderCancelled"
)

// TimelineEvent описывает событие в жизненном цикле заказа.
type TimelineEvent struct {
	OrderID  string
	Type     string
	Reason   string
	Occurred time.Time
}
