package models

import (
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	StatusPending    OrderStatus = "pending"
	StatusProcessing OrderStatus = "processing"
	StatusShipped    OrderStatus = "shipped"
	StatusDelivered  OrderStatus = "delivered"
	StatusCancelled  OrderStatus = "cancelled"
	StatusRefunded   OrderStatus = "refunded"
)

// AllStatuses lists every known status in lifecycle order.
var AllStatuses = []OrderStatus{
	StatusPending, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled, StatusRefunded,
}

// ParseStatus accepts only the known status strings.
func ParseStatus(s string) (OrderStatus, bool) {
	for _, st := range AllStatuses {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

// MaxItemQuantity bounds a single order line.
const MaxItemQuantity = math.MaxInt32

// MaxOrderTotal is the largest total the numeric(12,2) column holds.
var MaxOrderTotal = decimal.RequireFromString("9999999999.99")

type Order struct {
	ID              uuid.UUID       `gorm:"type:uuid;primaryKey"`
	UserID          uuid.UUID       `gorm:"type:uuid;not null;index;uniqueIndex:idx_orders_user_idempotency,priority:1"`
	Status          OrderStatus     `gorm:"type:varchar(20);not null;index"`
	TotalPrice      decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	ShippingAddress string          `gorm:"type:text;not null"`
	BillingAddress  string          `gorm:"type:text;not null"`
	Version         int64           `gorm:"not null"`
	IdempotencyKey  *string         `gorm:"type:varchar(128);uniqueIndex:idx_orders_user_idempotency,priority:2"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
	OrderItems      []OrderItem `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
}

type OrderItem struct {
	ID              uuid.UUID       `gorm:"type:uuid;primaryKey"`
	OrderID         uuid.UUID       `gorm:"type:uuid;not null;index"`
	ProductID       uuid.UUID       `gorm:"type:uuid;not null;index"`
	Product         *Product        `gorm:"foreignKey:ProductID;constraint:OnDelete:RESTRICT"`
	Quantity        int             `gorm:"not null;check:chk_order_items_quantity,quantity >= 1"`
	PriceAtPurchase decimal.Decimal `gorm:"type:numeric(10,2);not null"`
	Position        int             `gorm:"not null"`
}

// LineTotal is the snapshot price times quantity.
func (i OrderItem) LineTotal() decimal.Decimal {
	return i.PriceAtPurchase.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// ComputeTotal sums the line totals of items, rounded to cents.
func ComputeTotal(items []OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.LineTotal())
	}
	return total.Round(2)
}

// Product is the catalog row this service reads prices and availability from.
type Product struct {
	ID        uuid.UUID       `gorm:"type:uuid;primaryKey"`
	Title     string          `gorm:"type:varchar(255);not null"`
	Price     decimal.Decimal `gorm:"type:numeric(10,2);not null"`
	Available bool            `gorm:"not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Principal is the authenticated caller of an operation.
type Principal struct {
	UserID          uuid.UUID
	IsAdministrator bool
}

// Owns reports whether p is the owner of o.
func (p Principal) Owns(o *Order) bool {
	return o != nil && o.UserID == p.UserID
}

// CanManage reports whether p may mutate or read o.
func (p Principal) CanManage(o *Order) bool {
	return p.IsAdministrator || p.Owns(o)
}
