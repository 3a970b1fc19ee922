package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type VendorOrderStatus string

const (
	VendorOrderPending   VendorOrderStatus = "pending"
	VendorOrderAccepted  VendorOrderStatus = "accepted"
	VendorOrderRejected  VendorOrderStatus = "rejected"
	VendorOrderCancelled VendorOrderStatus = "cancelled"
	VendorOrderCompleted VendorOrderStatus = "completed"
)

// VendorOrderStatuses lists every sub-order status in reporting order.
var VendorOrderStatuses = []VendorOrderStatus{
	VendorOrderPending,
	VendorOrderAccepted,
	VendorOrderRejected,
	VendorOrderCancelled,
	VendorOrderCompleted,
}

func (s VendorOrderStatus) Valid() bool {
	switch s {
	case VendorOrderPending, VendorOrderAccepted, VendorOrderRejected, VendorOrderCancelled, VendorOrderCompleted:
		return true
	}
	return false
}

// VendorOrder is one vendor's line of an Order, decided independently by that vendor.
type VendorOrder struct {
	bun.BaseModel `bun:"table:vendor_orders"`

	ID               string            `bun:"id,pk" json:"id"`
	OrderID          string            `bun:"order_id,notnull" json:"order_id"`
	VendorID         string            `bun:"vendor_id,notnull" json:"vendor_id"`
	Position         int               `bun:"position,notnull" json:"position"`
	ServiceName      string            `bun:"service_name,notnull" json:"service_name"`
	Price            decimal.Decimal   `bun:"price,type:numeric(14,2),notnull" json:"price"`
	Status           VendorOrderStatus `bun:"status,notnull" json:"status"`
	Message          string            `bun:"message" json:"message,omitempty"`
	ConfirmationTime *time.Time        `bun:"confirmation_time,nullzero" json:"confirmation_time,omitempty"`
	Version          int64             `bun:"version,notnull" json:"version"`
	CreatedAt        time.Time         `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt        time.Time         `bun:"updated_at,notnull" json:"updated_at"`
}

type VendorResponseRequest struct {
	Status  VendorOrderStatus `json:"status"`
	Message string            `json:"message,omitempty"`
}

type VendorOrderEvent struct {
	Type          string            `json:"type"`
	VendorOrderID string            `json:"vendor_order_id"`
	OrderID       string            `json:"order_id"`
	VendorID      string            `json:"vendor_id"`
	Status        VendorOrderStatus `json:"status"`
	Timestamp     time.Time         `json:"timestamp"`
}
