package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ItemRequest is one requested line of an order.
type ItemRequest struct {
	ProductID uuid.UUID `json:"product_id" binding:"required"`
	Quantity  int       `json:"quantity" binding:"required,min=1,max=2147483647"`
}

type CreateOrderRequest struct {
	ShippingAddress string        `json:"shipping_address" binding:"max=512"`
	BillingAddress  string        `json:"billing_address" binding:"max=512"`
	Items           []ItemRequest `json:"items" binding:"dive"`
}

type ReplaceItemsRequest struct {
	Items []ItemRequest `json:"items" binding:"required,dive"`
}

type ChangeStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// AddressPatch is a partial update of an order's addresses. Nil fields are
// left unchanged.
type AddressPatch struct {
	ShippingAddress *string `json:"shipping_address" binding:"omitempty,max=512"`
	BillingAddress  *string `json:"billing_address" binding:"omitempty,max=512"`
}

// Empty reports whether the patch changes nothing.
func (p AddressPatch) Empty() bool {
	return p.ShippingAddress == nil && p.BillingAddress == nil
}

// Merge returns the addresses after applying p.
func (p AddressPatch) Merge(shipping, billing string) (string, string) {
	if p.ShippingAddress != nil {
		shipping = *p.ShippingAddress
	}
	if p.BillingAddress != nil {
		billing = *p.BillingAddress
	}
	return shipping, billing
}

// ProductPatch is a partial update of a catalog product.
type ProductPatch struct {
	Title     *string          `json:"title" binding:"omitempty,notblank,max=255"`
	Price     *decimal.Decimal `json:"price"`
	Available *bool            `json:"available"`
}

func (p ProductPatch) Empty() bool {
	return p.Title == nil && p.Price == nil && p.Available == nil
}

// Apply returns a copy of product with p merged in.
func (p ProductPatch) Apply(product Product) Product {
	if p.Title != nil {
		product.Title = *p.Title
	}
	if p.Price != nil {
		product.Price = *p.Price
	}
	if p.Available != nil {
		product.Available = *p.Available
	}
	return product
}
