package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Mark23Dev/project-nexus/services/common/logger"
	"github.com/Mark23Dev/project-nexus/services/order-service/cache"
	"github.com/Mark23Dev/project-nexus/services/order-service/models"
	"github.com/Mark23Dev/project-nexus/services/order-service/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type ProductListResponse struct {
	Products []models.ProductView `json:"products"`
	Meta     MetaData             `json:"meta"`
}

// ProductService exposes the catalog operations this service owns. Product
// changes never touch existing order items.
type ProductService interface {
	ListProducts(ctx context.Context, page, limit int, onlyAvailable bool) (*ProductListResponse, error)
	PatchProduct(ctx context.Context, p models.Principal, productID uuid.UUID, patch models.ProductPatch) (*models.Product, error)
	DisableProduct(ctx context.Context, p models.Principal, productID uuid.UUID) (*models.Product, error)
	DeleteProduct(ctx context.Context, p models.Principal, productID uuid.UUID) error
	InvalidateCatalog(ctx context.Context) error
}

type productServiceImpl struct {
	products repository.ProductRepository
	cache    cache.Cache
	ttl      time.Duration
	logger   *zap.Logger
}

func NewProductService(products repository.ProductRepository, c cache.Cache, ttl time.Duration, log *zap.Logger) ProductService {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &productServiceImpl{products: products, cache: c, ttl: ttl, logger: log}
}

func productListKey(page, limit int, onlyAvailable bool) string {
	return fmt.Sprintf("products:list:%d:%d:%t", page, limit, onlyAvailable)
}

// ListProducts serves catalog pages from the cache when possible. Cache
// failures degrade to a database read.
func (s *productServiceImpl) ListProducts(ctx context.Context, page, limit int, onlyAvailable bool) (*ProductListResponse, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	log := logger.For(ctx, s.logger)
	key := productListKey(page, limit, onlyAvailable)

	if raw, ok, err := s.cache.Get(ctx, key); err != nil {
		log.Warn("Product cache read failed", zap.String("key", key), zap.Error(err))
	} else if ok {
		var cached ProductListResponse
		if err := json.Unmarshal(raw, &cached); err == nil {
			return &cached, nil
		}
		log.Warn("Discarding undecodable product cache entry", zap.String("key", key))
	}

	products, total, err := s.products.List(ctx, page, limit, onlyAvailable)
	if err != nil {
		return nil, fromStoreError(err)
	}
	views := make([]models.ProductView, 0, len(products))
	for i := range products {
		views = append(views, models.NewProductView(&products[i]))
	}
	resp := &ProductListResponse{Products: views, Meta: newMetaData(page, limit, total)}

	if raw, err := json.Marshal(resp); err == nil {
		if err := s.cache.Set(ctx, key, raw, s.ttl); err != nil {
			log.Warn("Product cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return resp, nil
}

func (s *productServiceImpl) PatchProduct(ctx context.Context, p models.Principal, productID uuid.UUID, patch models.ProductPatch) (*models.Product, error) {
	if !p.IsAdministrator {
		return nil, newError(KindForbidden, "Only administrators can modify products", nil)
	}
	if err := validateProductPatch(patch); err != nil {
		return nil, err
	}

	product, err := s.products.Update(ctx, productID, patch)
	if err != nil {
		return nil, fromStoreError(err)
	}
	s.afterMutation(ctx, "patch", productID)
	return product, nil
}

// DisableProduct marks a product unavailable. It is the alternative to
// deleting a product that orders still reference.
func (s *productServiceImpl) DisableProduct(ctx context.Context, p models.Principal, productID uuid.UUID) (*models.Product, error) {
	unavailable := false
	return s.PatchProduct(ctx, p, productID, models.ProductPatch{Available: &unavailable})
}

func (s *productServiceImpl) DeleteProduct(ctx context.Context, p models.Principal, productID uuid.UUID) error {
	if !p.IsAdministrator {
		return newError(KindForbidden, "Only administrators can delete products", nil)
	}
	if err := s.products.Delete(ctx, productID); err != nil {
		svcErr := fromStoreError(err)
		if svcErr.Kind == KindConflict {
			svcErr.Message = "Product is referenced by existing orders, disable it instead"
		}
		return svcErr
	}
	s.afterMutation(ctx, "delete", productID)
	return nil
}

// InvalidateCatalog drops every cached catalog page.
func (s *productServiceImpl) InvalidateCatalog(ctx context.Context) error {
	return s.cache.InvalidateAll(ctx)
}

func (s *productServiceImpl) afterMutation(ctx context.Context, op string, productID uuid.UUID) {
	log := logger.For(ctx, s.logger)
	if err := s.InvalidateCatalog(ctx); err != nil {
		log.Warn("Product cache invalidation failed", zap.String("product_id", productID.String()), zap.Error(err))
	}
	log.Info("Product updated", zap.String("operation", op), zap.String("product_id", productID.String()))
}

func validateProductPatch(patch models.ProductPatch) *ServiceError {
	if patch.Empty() {
		return validationError("No product fields to update")
	}
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		return validationError("Title cannot be empty")
	}
	if patch.Price != nil {
		if patch.Price.IsNegative() {
			return validationError("Price cannot be negative")
		}
		if !patch.Price.Equal(patch.Price.Round(2)) {
			return validationError("Price must have at most two decimal places")
		}
	}
	return nil
}
