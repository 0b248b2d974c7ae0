package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	EventOrderCreated = "order.created"
	EventOrderPaid    = "order.paid"
)

// StatusEventKey returns the routing key published when an order enters status.
func StatusEventKey(status OrderStatus) string {
	return "order." + string(status)
}

type OrderEvent struct {
	OrderID       uint64          `json:"orderId"`
	OrderNumber   string          `json:"orderNumber"`
	UserID        uint64          `json:"userId"`
	ShopID        uint64          `json:"shopId"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
	Status        OrderStatus     `json:"status"`
	PaymentStatus PaymentStatus   `json:"paymentStatus"`
	Actor         Actor           `json:"actor,omitempty"`
	Reason        string          `json:"reason,omitempty"`
	OccurredAt    time.Time       `json:"occurredAt"`
}

func NewOrderEvent(o *Order, actor Actor, at time.Time) OrderEvent {
	return OrderEvent{
		OrderID:       o.ID,
		OrderNumber:   o.OrderNumber,
		UserID:        o.UserID,
		ShopID:        o.ShopID,
		TotalAmount:   o.TotalAmount,
		Status:        o.Status,
		PaymentStatus: o.PaymentStatus,
		Actor:         actor,
		Reason:        o.CancelReason,
		OccurredAt:    at,
	}
}
