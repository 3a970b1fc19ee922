package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderConfirmed OrderStatus = "confirmed"
	OrderCompleted OrderStatus = "completed"
	OrderCancelled OrderStatus = "cancelled"
)

// OrderStatuses lists every order status in reporting order.
var OrderStatuses = []OrderStatus{OrderPending, OrderConfirmed, OrderCompleted, OrderCancelled}

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderPending, OrderConfirmed, OrderCompleted, OrderCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further lifecycle transition is allowed.
func (s OrderStatus) Terminal() bool {
	return s == OrderCompleted || s == OrderCancelled
}

// Order is the organizer-owned parent record. VendorOrderIDs is fixed at creation.
type Order struct {
	bun.BaseModel `bun:"table:orders"`

	ID             string          `bun:"id,pk" json:"id"`
	OrganizerID    string          `bun:"organizer_id,notnull" json:"organizer_id"`
	EventName      string          `bun:"event_name,notnull" json:"event_name"`
	EventDate      string          `bun:"event_date,notnull" json:"event_date"`
	EventTime      string          `bun:"event_time" json:"event_time"`
	Guests         int             `bun:"guests" json:"guests"`
	VendorOrderIDs []string        `bun:"vendor_order_ids" json:"vendor_order_ids"`
	TotalAmount    decimal.Decimal `bun:"total_amount,type:numeric(14,2),notnull" json:"total_amount"`
	Discount       decimal.Decimal `bun:"discount,type:numeric(14,2),notnull" json:"discount"`
	FinalAmount    decimal.Decimal `bun:"final_amount,type:numeric(14,2),notnull" json:"final_amount"`
	Status         OrderStatus     `bun:"status,notnull" json:"status"`
	Version        int64           `bun:"version,notnull" json:"version"`
	CreatedAt      time.Time       `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt      time.Time       `bun:"updated_at,notnull" json:"updated_at"`

	VendorOrders []*VendorOrder `bun:"rel:has-many,join:id=order_id" json:"vendor_orders,omitempty"`
}

type OrderItemRequest struct {
	VendorID    string          `json:"vendor_id"`
	ServiceName string          `json:"service_name"`
	Price       decimal.Decimal `json:"price"`
}

type CreateOrderRequest struct {
	OrganizerID string             `json:"organizer_id"`
	EventName   string             `json:"event_name"`
	EventDate   string             `json:"event_date"`
	EventTime   string             `json:"event_time"`
	Guests      int                `json:"guests"`
	Items       []OrderItemRequest `json:"items"`
}

// UpdateOrderDetailsRequest carries the organizer-editable fields; nil means unchanged.
type UpdateOrderDetailsRequest struct {
	EventName *string `json:"event_name,omitempty"`
	EventDate *string `json:"event_date,omitempty"`
	EventTime *string `json:"event_time,omitempty"`
	Guests    *int    `json:"guests,omitempty"`
}

type UpdateOrderStatusRequest struct {
	Status OrderStatus `json:"status"`
}

type OrderEvent struct {
	Type        string      `json:"type"`
	OrderID     string      `json:"order_id"`
	OrganizerID string      `json:"organizer_id"`
	Status      OrderStatus `json:"status"`
	Timestamp   time.Time   `json:"timestamp"`
}
