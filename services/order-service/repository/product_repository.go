package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Mark23Dev/project-nexus/services/order-service/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProductRepository reads catalog rows and enforces the restrict-delete rule
// for products that order items still reference.
type ProductRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
	List(ctx context.Context, page, limit int, onlyAvailable bool) ([]models.Product, int64, error)
	Update(ctx context.Context, id uuid.UUID, patch models.ProductPatch) (*models.Product, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type GormProductRepository struct {
	db *gorm.DB
}

func NewGormProductRepository(db *gorm.DB) ProductRepository {
	return &GormProductRepository{db: db}
}

func (r *GormProductRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&product).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, err
	}
	return &product, nil
}

func (r *GormProductRepository) List(ctx context.Context, page, limit int, onlyAvailable bool) ([]models.Product, int64, error) {
	var products []models.Product
	var total int64

	query := r.db.WithContext(ctx).Model(&models.Product{})
	if onlyAvailable {
		query = query.Where("available = ?", true)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := query.Offset(offset).Limit(limit).Order("title ASC").Find(&products).Error; err != nil {
		return nil, 0, err
	}
	return products, total, nil
}

// Update merges patch into the product under a row lock. Order items keep the
// price they were created with.
func (r *GormProductRepository) Update(ctx context.Context, id uuid.UUID, patch models.ProductPatch) (*models.Product, error) {
	var out models.Product
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current models.Product
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&current).Error; err != nil {
			return err
		}

		out = patch.Apply(current)
		out.UpdatedAt = time.Now().UTC()
		return tx.Model(&models.Product{}).Where("id = ?", id).Updates(map[string]interface{}{
			"title":      out.Title,
			"price":      out.Price,
			"available":  out.Available,
			"updated_at": out.UpdatedAt,
		}).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, err
	}
	return &out, nil
}

// Delete refuses to remove a product any order item references.
func (r *GormProductRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var refs int64
		if err := tx.Model(&models.OrderItem{}).Where("product_id = ?", id).Count(&refs).Error; err != nil {
			return err
		}
		if refs > 0 {
			return fmt.Errorf("%w: %d order items", ErrProductReferenced, refs)
		}

		res := tx.Delete(&models.Product{ID: id})
		if res.Error != nil {
			if pgCode(res.Error) == pgForeignKeyViolation {
				return fmt.Errorf("%w: %v", ErrProductReferenced, res.Error)
			}
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrProductNotFound
		}
		return nil
	})
}
