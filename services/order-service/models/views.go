package models

import "time"

// OrderItemView is the wire form of an order item.
type OrderItemView struct {
	ID              string `json:"id"`
	ProductID       string `json:"product_id"`
	Quantity        int    `json:"quantity"`
	PriceAtPurchase string `json:"price_at_purchase"`
	TotalPrice      string `json:"total_price"`
}

// OrderView is the wire form of an order. Money is a string with exactly two
// fractional digits; timestamps are RFC 3339 in UTC.
type OrderView struct {
	ID              string          `json:"id"`
	UserID          string          `json:"user_id"`
	Status          OrderStatus     `json:"status"`
	TotalPrice      string          `json:"total_price"`
	ShippingAddress string          `json:"shipping_address"`
	BillingAddress  string          `json:"billing_address"`
	Version         int64           `json:"version"`
	Items           []OrderItemView `json:"items"`
	CreatedAt       string          `json:"created_at"`
	UpdatedAt       string          `json:"updated_at"`
}

func NewOrderView(o *Order) OrderView {
	items := make([]OrderItemView, 0, len(o.OrderItems))
	for _, it := range o.OrderItems {
		items = append(items, OrderItemView{
			ID:              it.ID.String(),
			ProductID:       it.ProductID.String(),
			Quantity:        it.Quantity,
			PriceAtPurchase: it.PriceAtPurchase.StringFixed(2),
			TotalPrice:      it.LineTotal().StringFixed(2),
		})
	}
	return OrderView{
		ID:              o.ID.String(),
		UserID:          o.UserID.String(),
		Status:          o.Status,
		TotalPrice:      o.TotalPrice.StringFixed(2),
		ShippingAddress: o.ShippingAddress,
		BillingAddress:  o.BillingAddress,
		Version:         o.Version,
		Items:           items,
		CreatedAt:       formatTime(o.CreatedAt),
		UpdatedAt:       formatTime(o.UpdatedAt),
	}
}

type ProductView struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Price     string `json:"price"`
	Available bool   `json:"available"`
	UpdatedAt string `json:"updated_at"`
}

func NewProductView(p *Product) ProductView {
	return ProductView{
		ID:        p.ID.String(),
		Title:     p.Title,
		Price:     p.Price.StringFixed(2),
		Available: p.Available,
		UpdatedAt: formatTime(p.UpdatedAt),
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
