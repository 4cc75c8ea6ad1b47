package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Mark23Dev/project-nexus/services/order-service/models"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Precondition is evaluated against the locked order row inside the
// mutating transaction. A non-nil error aborts the transaction and is
// returned to the caller unchanged.
type Precondition func(order *models.Order) error

// MutationOptions controls a single order mutation.
type MutationOptions struct {
	// Actor is recorded on the emitted domain event.
	Actor uuid.UUID
	// ExpectedVersion, when non-zero, must equal the stored version.
	ExpectedVersion int64
	Check           Precondition
}

func (o MutationOptions) verify(order *models.Order) error {
	if o.ExpectedVersion != 0 && order.Version != o.ExpectedVersion {
		return fmt.Errorf("%w: expected version %d, found %d", ErrConflict, o.ExpectedVersion, order.Version)
	}
	if o.Check != nil {
		return o.Check(order)
	}
	return nil
}

// OrderRepository is the order aggregate store. Every mutation is a single
// transaction covering item writes, total recomputation, the order row update
// and the outbox record.
type OrderRepository interface {
	CreateOrder(ctx context.Context, order *models.Order, actor uuid.UUID) error
	ReplaceItems(ctx context.Context, orderID uuid.UUID, items []models.OrderItem, opts MutationOptions) (*models.Order, error)
	UpdateStatus(ctx context.Context, orderID uuid.UUID, status models.OrderStatus, opts MutationOptions) (*models.Order, error)
	UpdateAddresses(ctx context.Context, orderID uuid.UUID, patch models.AddressPatch, opts MutationOptions) (*models.Order, error)
	DeleteOrder(ctx context.Context, orderID uuid.UUID, opts MutationOptions) error
	FindByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	FindByIdempotencyKey(ctx context.Context, userID uuid.UUID, key string) (*models.Order, error)
	FindByUserID(ctx context.Context, userID uuid.UUID, page, limit int) ([]models.Order, int64, error)
	FindAll(ctx context.Context, page, limit int) ([]models.Order, int64, error)
}

// GormOrderRepository implements OrderRepository on PostgreSQL.
type GormOrderRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewGormOrderRepository(db *gorm.DB) OrderRepository {
	return &GormOrderRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// CreateOrder inserts order and its items. Items must already carry their
// price snapshots; the total is recomputed here from them.
func (r *GormOrderRepository) CreateOrder(ctx context.Context, order *models.Order, actor uuid.UUID) error {
	now := r.now()
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	order.Version = 1
	order.CreatedAt = now
	order.UpdatedAt = now
	prepareItems(order.ID, order.OrderItems)
	order.TotalPrice = models.ComputeTotal(order.OrderItems)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := verifyProducts(tx, order.OrderItems); err != nil {
			return err
		}
		if err := tx.Omit(clause.Associations).Create(order).Error; err != nil {
			return err
		}
		if err := insertItems(tx, order.OrderItems); err != nil {
			return err
		}
		return recordEvent(tx, models.NewOrderEvent(models.EventOrderCreated, order, actor))
	})
	return translateOrderError(err)
}

func (r *GormOrderRepository) ReplaceItems(ctx context.Context, orderID uuid.UUID, items []models.OrderItem, opts MutationOptions) (*models.Order, error) {
	var out *models.Order
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := lockOrder(tx, orderID)
		if err != nil {
			return err
		}
		if err := opts.verify(order); err != nil {
			return err
		}
		if err := verifyProducts(tx, items); err != nil {
			return err
		}

		if err := tx.Where("order_id = ?", orderID).Delete(&models.OrderItem{}).Error; err != nil {
			return err
		}
		prepareItems(orderID, items)
		if err := insertItems(tx, items); err != nil {
			return err
		}

		total := models.ComputeTotal(items)
		if err := r.bump(tx, order, map[string]interface{}{"total_price": total}); err != nil {
			return err
		}
		order.TotalPrice = total
		order.OrderItems = items

		out = order
		return recordEvent(tx, models.NewOrderEvent(models.EventOrderItemsReplaced, order, opts.Actor))
	})
	if err != nil {
		return nil, translateOrderError(err)
	}
	return out, nil
}

func (r *GormOrderRepository) UpdateStatus(ctx context.Context, orderID uuid.UUID, status models.OrderStatus, opts MutationOptions) (*models.Order, error) {
	var out *models.Order
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := lockOrder(tx, orderID)
		if err != nil {
			return err
		}
		if err := opts.verify(order); err != nil {
			return err
		}

		previous := order.Status
		if err := r.bump(tx, order, map[string]interface{}{"status": status}); err != nil {
			return err
		}
		order.Status = status
		if err := loadItems(tx, order); err != nil {
			return err
		}

		out = order
		evt := models.NewOrderEvent(models.EventOrderStatusChanged, order, opts.Actor)
		evt.PreviousStatus = previous
		return recordEvent(tx, evt)
	})
	if err != nil {
		return nil, translateOrderError(err)
	}
	return out, nil
}

func (r *GormOrderRepository) UpdateAddresses(ctx context.Context, orderID uuid.UUID, patch models.AddressPatch, opts MutationOptions) (*models.Order, error) {
	var out *models.Order
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := lockOrder(tx, orderID)
		if err != nil {
			return err
		}
		if err := opts.verify(order); err != nil {
			return err
		}

		shipping, billing := patch.Merge(order.ShippingAddress, order.BillingAddress)
		if err := r.bump(tx, order, map[string]interface{}{
			"shipping_address": shipping,
			"billing_address":  billing,
		}); err != nil {
			return err
		}
		order.ShippingAddress, order.BillingAddress = shipping, billing
		if err := loadItems(tx, order); err != nil {
			return err
		}

		out = order
		return recordEvent(tx, models.NewOrderEvent(models.EventOrderAddressesUpdated, order, opts.Actor))
	})
	if err != nil {
		return nil, translateOrderError(err)
	}
	return out, nil
}

// DeleteOrder removes the order; its items go with it through the cascade.
func (r *GormOrderRepository) DeleteOrder(ctx context.Context, orderID uuid.UUID, opts MutationOptions) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := lockOrder(tx, orderID)
		if err != nil {
			return err
		}
		if err := opts.verify(order); err != nil {
			return err
		}

		if err := tx.Delete(&models.Order{ID: orderID}).Error; err != nil {
			return err
		}
		return recordEvent(tx, models.NewOrderEvent(models.EventOrderDeleted, order, opts.Actor))
	})
	return translateOrderError(err)
}

func (r *GormOrderRepository) FindByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).
		Preload("OrderItems", orderItemsByPosition).
		Where("id = ?", orderID).
		First(&order).Error; err != nil {
		return nil, translateOrderError(err)
	}
	return &order, nil
}

func (r *GormOrderRepository) FindByIdempotencyKey(ctx context.Context, userID uuid.UUID, key string) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).
		Preload("OrderItems", orderItemsByPosition).
		Where("user_id = ? AND idempotency_key = ?", userID, key).
		First(&order).Error; err != nil {
		return nil, translateOrderError(err)
	}
	return &order, nil
}

// FindByUserID retrieves orders for a specific user with pagination
func (r *GormOrderRepository) FindByUserID(ctx context.Context, userID uuid.UUID, page, limit int) ([]models.Order, int64, error) {
	return r.paginate(r.db.WithContext(ctx).Model(&models.Order{}).Where("user_id = ?", userID), page, limit)
}

// FindAll retrieves all orders with pagination
func (r *GormOrderRepository) FindAll(ctx context.Context, page, limit int) ([]models.Order, int64, error) {
	return r.paginate(r.db.WithContext(ctx).Model(&models.Order{}), page, limit)
}

func (r *GormOrderRepository) paginate(query *gorm.DB, page, limit int) ([]models.Order, int64, error) {
	var orders []models.Order
	var total int64

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := query.
		Preload("OrderItems", orderItemsByPosition).
		Offset(offset).
		Limit(limit).
		Order("created_at DESC").
		Find(&orders).Error; err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// bump applies changes to the locked order and advances its version. The
// version guard makes a lost update impossible even without the row lock.
func (r *GormOrderRepository) bump(tx *gorm.DB, order *models.Order, changes map[string]interface{}) error {
	now := r.now()
	changes["version"] = order.Version + 1
	changes["updated_at"] = now

	res := tx.Model(&models.Order{}).
		Where("id = ? AND version = ?", order.ID, order.Version).
		Updates(changes)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	order.Version++
	order.UpdatedAt = now
	return nil
}

func lockOrder(tx *gorm.DB, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", orderID).
		First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func loadItems(tx *gorm.DB, order *models.Order) error {
	return tx.Where("order_id = ?", order.ID).Order("position").Find(&order.OrderItems).Error
}

func orderItemsByPosition(db *gorm.DB) *gorm.DB {
	return db.Order("position")
}

// prepareItems assigns ids, the owning order and the submission position.
func prepareItems(orderID uuid.UUID, items []models.OrderItem) {
	for i := range items {
		if items[i].ID == uuid.Nil {
			items[i].ID = uuid.New()
		}
		items[i].OrderID = orderID
		items[i].Position = i
	}
}

func insertItems(tx *gorm.DB, items []models.OrderItem) error {
	if len(items) == 0 {
		return nil
	}
	return tx.Omit(clause.Associations).Create(&items).Error
}

// verifyProducts checks every referenced product exists and share-locks the
// rows so they cannot be deleted before the transaction commits.
func verifyProducts(tx *gorm.DB, items []models.OrderItem) error {
	wanted := distinctProductIDs(items)
	if len(wanted) == 0 {
		return nil
	}

	var found []uuid.UUID
	if err := tx.Model(&models.Product{}).
		Clauses(clause.Locking{Strength: "SHARE"}).
		Where("id IN ?", wanted).
		Pluck("id", &found).Error; err != nil {
		return err
	}
	if len(found) == len(wanted) {
		return nil
	}

	present := make(map[uuid.UUID]bool, len(found))
	for _, id := range found {
		present[id] = true
	}
	var missing []uuid.UUID
	for _, id := range wanted {
		if !present[id] {
			missing = append(missing, id)
		}
	}
	return &MissingProductsError{ProductIDs: missing}
}

func distinctProductIDs(items []models.OrderItem) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(items))
	ids := make([]uuid.UUID, 0, len(items))
	for _, it := range items {
		if !seen[it.ProductID] {
			seen[it.ProductID] = true
			ids = append(ids, it.ProductID)
		}
	}
	return ids
}

func recordEvent(tx *gorm.DB, evt models.OrderEvent) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", evt.Type, err)
	}
	row := models.OutboxEvent{
		ID:          uuid.MustParse(evt.ID),
		AggregateID: uuid.MustParse(evt.OrderID),
		EventType:   evt.Type,
		Payload:     datatypes.JSON(payload),
		CreatedAt:   evt.OccurredAt,
	}
	return tx.Create(&row).Error
}
