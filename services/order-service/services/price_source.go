package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Mark23Dev/project-nexus/services/order-service/repository"
	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrPriceNotFound means the price source does not know the product.
	ErrPriceNotFound = errors.New("product not found in price source")
	// ErrPriceSourceUnavailable means the lookup could not be answered.
	ErrPriceSourceUnavailable = errors.New("price source unavailable")
)

// PriceQuote is the current catalog price and availability of a product.
type PriceQuote struct {
	ProductID uuid.UUID
	Price     decimal.Decimal
	Available bool
}

// PriceSource resolves the live price of a product.
type PriceSource interface {
	Lookup(ctx context.Context, productID uuid.UUID) (PriceQuote, error)
}

// CatalogPriceSource reads prices from the shared products table.
type CatalogPriceSource struct {
	products repository.ProductRepository
}

func NewCatalogPriceSource(products repository.ProductRepository) *CatalogPriceSource {
	return &CatalogPriceSource{products: products}
}

func (s *CatalogPriceSource) Lookup(ctx context.Context, productID uuid.UUID) (PriceQuote, error) {
	p, err := s.products.FindByID(ctx, productID)
	if err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			return PriceQuote{}, ErrPriceNotFound
		}
		return PriceQuote{}, fmt.Errorf("%w: %v", ErrPriceSourceUnavailable, err)
	}
	return PriceQuote{ProductID: p.ID, Price: p.Price, Available: p.Available}, nil
}

type productPricePayload struct {
	ID        uuid.UUID       `json:"id"`
	Price     decimal.Decimal `json:"price"`
	Available bool            `json:"available"`
}

// HTTPPriceSource asks the product service for prices over its internal
// endpoint.
type HTTPPriceSource struct {
	client *resty.Client
}

func NewHTTPPriceSource(baseURL string, timeout time.Duration) *HTTPPriceSource {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	return &HTTPPriceSource{client: client}
}

func (s *HTTPPriceSource) Lookup(ctx context.Context, productID uuid.UUID) (PriceQuote, error) {
	var payload productPricePayload
	resp, err := s.client.R().
		SetContext(ctx).
		SetPathParam("id", productID.String()).
		SetResult(&payload).
		Get("/products/internal/{id}")
	if err != nil {
		return PriceQuote{}, fmt.Errorf("%w: %v", ErrPriceSourceUnavailable, err)
	}

	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return PriceQuote{}, ErrPriceNotFound
	case resp.IsError():
		return PriceQuote{}, fmt.Errorf("%w: product service returned %d", ErrPriceSourceUnavailable, resp.StatusCode())
	}
	return PriceQuote{ProductID: productID, Price: payload.Price, Available: payload.Available}, nil
}
