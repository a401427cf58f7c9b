package kafka

// Topics для событий магазина.
const (
	// TopicOrderEvents — события жизненного цикла заказов, публикуемые из outbox.
	TopicOrderEvents = "shop.order.events"
)
