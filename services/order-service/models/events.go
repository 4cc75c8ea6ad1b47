package models

import (
	"time"

	"github.com/google/uuid"
)

// Order event types.
const (
	EventOrderCreated          = "order.created"
	EventOrderItemsReplaced    = "order.items_replaced"
	EventOrderStatusChanged    = "order.status_changed"
	EventOrderAddressesUpdated = "order.addresses_updated"
	EventOrderDeleted          = "order.deleted"
)

// OrderEvent is the payload published for every committed order mutation.
type OrderEvent struct {
	ID             string      `json:"id"`
	Type           string      `json:"type"`
	OrderID        string      `json:"order_id"`
	UserID         string      `json:"user_id"`
	ActorID        string      `json:"actor_id"`
	Status         OrderStatus `json:"status"`
	PreviousStatus OrderStatus `json:"previous_status,omitempty"`
	TotalPrice     string      `json:"total_price"`
	ItemCount      int         `json:"item_count"`
	Version        int64       `json:"version"`
	OccurredAt     time.Time   `json:"occurred_at"`
}

// NewOrderEvent snapshots order for an event of eventType caused by actor.
func NewOrderEvent(eventType string, order *Order, actor uuid.UUID) OrderEvent {
	return OrderEvent{
		ID:         uuid.NewString(),
		Type:       eventType,
		OrderID:    order.ID.String(),
		UserID:     order.UserID.String(),
		ActorID:    actor.String(),
		Status:     order.Status,
		TotalPrice: order.TotalPrice.StringFixed(2),
		ItemCount:  len(order.OrderItems),
		Version:    order.Version,
		OccurredAt: time.Now().UTC(),
	}
}

// ProductEvent is a catalog change notification consumed from SQS.
type ProductEvent struct {
	Type      string `json:"type"`
	ProductID string `json:"product_id"`
}

// Catalog event types.
const (
	EventProductUpdated = "product.updated"
	EventProductDeleted = "product.deleted"
	EventProductCreated = "product.created"
)
