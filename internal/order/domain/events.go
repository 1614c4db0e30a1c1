package domain

// Event type names as carried in broker headers and outbox rows.
const (
	EventTypeOrderConfirmed = "OrderConfirmed"
	EventTypeOrderCancelled = "OrderCancelled"
)

type EventItem struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// OrderConfirmedEvent tells the inventory side to debit the order's holds.
// EventID is stable across redeliveries so consumers can de-duplicate.
type OrderConfirmedEvent struct {
	EventID       string      `json:"eventId"`
	CorrelationID string      `json:"correlationId"`
	OrderID       string      `json:"orderId"`
	Items         []EventItem `json:"items"`
}

// OrderCancelledEvent tells the inventory side to release the order's holds.
type OrderCancelledEvent struct {
	EventID       string `json:"eventId"`
	CorrelationID string `json:"correlationId"`
	OrderID       string `json:"orderId"`
	Reason        string `json:"reason"`
}
