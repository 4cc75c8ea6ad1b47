package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Mark23Dev/project-nexus/services/common/logger"
	"github.com/Mark23Dev/project-nexus/services/order-service/models"
	"github.com/Mark23Dev/project-nexus/services/order-service/repository"
	"github.com/Mark23Dev/project-nexus/services/order-service/workflow"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const maxIdempotencyKeyLength = 128

type OrderResponse struct {
	Orders []models.OrderView `json:"orders"`
	Meta   MetaData           `json:"meta"`
}

type MetaData struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int64 `json:"total_pages"`
	HasMore    bool  `json:"has_more"`
}

func newMetaData(page, limit int, total int64) MetaData {
	pages := (total + int64(limit) - 1) / int64(limit)
	return MetaData{
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: pages,
		HasMore:    int64(page) < pages,
	}
}

// Notifier is told when new domain events have been committed.
type Notifier interface {
	Notify()
}

// MutationObserver records the outcome of every order mutation.
type MutationObserver interface {
	ObserveMutation(operation, outcome string)
}

// OrderService owns order creation, item replacement and the status
// lifecycle. Every method returns a *ServiceError on failure.
type OrderService interface {
	CreateOrder(ctx context.Context, p models.Principal, req models.CreateOrderRequest, idempotencyKey string) (*models.Order, bool, error)
	GetOrder(ctx context.Context, p models.Principal, orderID uuid.UUID) (*models.Order, error)
	ListOrders(ctx context.Context, p models.Principal, page, limit int) (*OrderResponse, error)
	ReplaceItems(ctx context.Context, p models.Principal, orderID uuid.UUID, items []models.ItemRequest, expectedVersion int64) (*models.Order, error)
	UpdateAddresses(ctx context.Context, p models.Principal, orderID uuid.UUID, patch models.AddressPatch, expectedVersion int64) (*models.Order, error)
	ChangeStatus(ctx context.Context, p models.Principal, orderID uuid.UUID, status string, expectedVersion int64) (*models.Order, error)
	DeleteOrder(ctx context.Context, p models.Principal, orderID uuid.UUID, expectedVersion int64) error
}

type orderServiceImpl struct {
	orders        repository.OrderRepository
	prices        PriceSource
	lookupTimeout time.Duration
	notifier      Notifier
	observer      MutationObserver
	logger        *zap.Logger
}

// NewOrderService wires the order service. notifier and observer may be nil.
func NewOrderService(orders repository.OrderRepository, prices PriceSource, lookupTimeout time.Duration, notifier Notifier, observer MutationObserver, log *zap.Logger) OrderService {
	if lookupTimeout <= 0 {
		lookupTimeout = 2 * time.Second
	}
	return &orderServiceImpl{
		orders:        orders,
		prices:        prices,
		lookupTimeout: lookupTimeout,
		notifier:      notifier,
		observer:      observer,
		logger:        log,
	}
}

// CreateOrder snapshots the current price of every item and stores the order
// in pending status. The bool result is false when an earlier order with the
// same idempotency key was returned instead of creating a new one.
func (s *orderServiceImpl) CreateOrder(ctx context.Context, p models.Principal, req models.CreateOrderRequest, idempotencyKey string) (*models.Order, bool, error) {
	if len(idempotencyKey) > maxIdempotencyKeyLength {
		return nil, false, validationError("Idempotency-Key is too long")
	}
	if idempotencyKey != "" {
		if existing, err := s.orders.FindByIdempotencyKey(ctx, p.UserID, idempotencyKey); err == nil {
			return existing, false, nil
		} else if !errors.Is(err, repository.ErrOrderNotFound) {
			return nil, false, s.fail(ctx, "create", fromStoreError(err))
		}
	}

	lines, svcErr := mergeItems(req.Items)
	if svcErr != nil {
		return nil, false, s.fail(ctx, "create", svcErr)
	}
	items, svcErr := s.resolveItems(ctx, lines)
	if svcErr != nil {
		return nil, false, s.fail(ctx, "create", svcErr)
	}

	order := &models.Order{
		UserID:          p.UserID,
		Status:          models.StatusPending,
		ShippingAddress: req.ShippingAddress,
		BillingAddress:  req.BillingAddress,
		OrderItems:      items,
	}
	if idempotencyKey != "" {
		order.IdempotencyKey = &idempotencyKey
	}

	if err := s.orders.CreateOrder(ctx, order, p.UserID); err != nil {
		if idempotencyKey != "" && errors.Is(err, repository.ErrDuplicateIdempotencyKey) {
			// Lost the race against a concurrent request with the same key.
			if existing, ferr := s.orders.FindByIdempotencyKey(ctx, p.UserID, idempotencyKey); ferr == nil {
				return existing, false, nil
			}
		}
		return nil, false, s.fail(ctx, "create", fromStoreError(err))
	}

	s.succeed(ctx, "create", order)
	return order, true, nil
}

func (s *orderServiceImpl) GetOrder(ctx context.Context, p models.Principal, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, fromStoreError(err)
	}
	if !p.CanManage(order) {
		return nil, orderNotFound()
	}
	return order, nil
}

// ListOrders returns the caller's orders, or every order for administrators.
func (s *orderServiceImpl) ListOrders(ctx context.Context, p models.Principal, page, limit int) (*OrderResponse, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}

	var (
		orders []models.Order
		total  int64
		err    error
	)
	if p.IsAdministrator {
		orders, total, err = s.orders.FindAll(ctx, page, limit)
	} else {
		orders, total, err = s.orders.FindByUserID(ctx, p.UserID, page, limit)
	}
	if err != nil {
		return nil, fromStoreError(err)
	}

	views := make([]models.OrderView, 0, len(orders))
	for i := range orders {
		views = append(views, models.NewOrderView(&orders[i]))
	}
	return &OrderResponse{Orders: views, Meta: newMetaData(page, limit, total)}, nil
}

// ReplaceItems swaps the whole item set of a pending order for newly priced
// items and recomputes the total.
func (s *orderServiceImpl) ReplaceItems(ctx context.Context, p models.Principal, orderID uuid.UUID, items []models.ItemRequest, expectedVersion int64) (*models.Order, error) {
	check := func(o *models.Order) error {
		if !p.CanManage(o) {
			return forbidden()
		}
		if !workflow.AllowsItemMutation(o.Status) {
			return invalidState("modified", o.Status)
		}
		return nil
	}

	// Fail fast before pricing; the same check runs again under the row lock.
	current, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, s.fail(ctx, "replace_items", fromStoreError(err))
	}
	if err := check(current); err != nil {
		return nil, s.fail(ctx, "replace_items", fromStoreError(err))
	}

	lines, svcErr := mergeItems(items)
	if svcErr != nil {
		return nil, s.fail(ctx, "replace_items", svcErr)
	}
	priced, svcErr := s.resolveItems(ctx, lines)
	if svcErr != nil {
		return nil, s.fail(ctx, "replace_items", svcErr)
	}

	order, err := s.orders.ReplaceItems(ctx, orderID, priced, s.options(p, expectedVersion, check))
	if err != nil {
		return nil, s.fail(ctx, "replace_items", fromStoreError(err))
	}
	s.succeed(ctx, "replace_items", order)
	return order, nil
}

func (s *orderServiceImpl) UpdateAddresses(ctx context.Context, p models.Principal, orderID uuid.UUID, patch models.AddressPatch, expectedVersion int64) (*models.Order, error) {
	if patch.Empty() {
		return nil, s.fail(ctx, "update_addresses", validationError("No address fields to update"))
	}
	check := func(o *models.Order) error {
		if !p.CanManage(o) {
			return forbidden()
		}
		if !workflow.AllowsAddressChange(o.Status) {
			return invalidState("re-addressed", o.Status)
		}
		return nil
	}

	order, err := s.orders.UpdateAddresses(ctx, orderID, patch, s.options(p, expectedVersion, check))
	if err != nil {
		return nil, s.fail(ctx, "update_addresses", fromStoreError(err))
	}
	s.succeed(ctx, "update_addresses", order)
	return order, nil
}

// ChangeStatus moves an order along the status workflow. Administrators only.
func (s *orderServiceImpl) ChangeStatus(ctx context.Context, p models.Principal, orderID uuid.UUID, status string, expectedVersion int64) (*models.Order, error) {
	if !p.IsAdministrator {
		return nil, s.fail(ctx, "change_status", newError(KindForbidden, "Only administrators can change order status", nil))
	}
	target, ok := models.ParseStatus(status)
	if !ok {
		return nil, s.fail(ctx, "change_status", validationError("Unknown order status").with("status", status))
	}
	check := func(o *models.Order) error {
		return workflow.Validate(o.Status, target)
	}

	order, err := s.orders.UpdateStatus(ctx, orderID, target, s.options(p, expectedVersion, check))
	if err != nil {
		return nil, s.fail(ctx, "change_status", fromStoreError(err))
	}
	s.succeed(ctx, "change_status", order)
	return order, nil
}

// DeleteOrder removes a pending order and its items.
func (s *orderServiceImpl) DeleteOrder(ctx context.Context, p models.Principal, orderID uuid.UUID, expectedVersion int64) error {
	check := func(o *models.Order) error {
		if !p.CanManage(o) {
			return forbidden()
		}
		if !workflow.AllowsItemMutation(o.Status) {
			return invalidState("deleted", o.Status)
		}
		return nil
	}

	if err := s.orders.DeleteOrder(ctx, orderID, s.options(p, expectedVersion, check)); err != nil {
		return s.fail(ctx, "delete", fromStoreError(err))
	}
	s.succeed(ctx, "delete", &models.Order{ID: orderID})
	return nil
}

func (s *orderServiceImpl) options(p models.Principal, expectedVersion int64, check repository.Precondition) repository.MutationOptions {
	return repository.MutationOptions{Actor: p.UserID, ExpectedVersion: expectedVersion, Check: check}
}

// mergeItems validates the requested lines and folds repeated products into
// one line, keeping first-appearance order.
func mergeItems(items []models.ItemRequest) ([]models.ItemRequest, *ServiceError) {
	index := make(map[uuid.UUID]int, len(items))
	out := make([]models.ItemRequest, 0, len(items))
	for _, it := range items {
		if it.ProductID == uuid.Nil {
			return nil, validationError("Every item needs a product_id")
		}
		if it.Quantity < 1 || it.Quantity > models.MaxItemQuantity {
			return nil, validationError(fmt.Sprintf("Item quantity must be between 1 and %d", models.MaxItemQuantity)).
				with("product_id", it.ProductID.String())
		}
		if i, ok := index[it.ProductID]; ok {
			if out[i].Quantity > models.MaxItemQuantity-it.Quantity {
				return nil, validationError(fmt.Sprintf("Combined quantity for a product must not exceed %d", models.MaxItemQuantity)).
					with("product_id", it.ProductID.String())
			}
			out[i].Quantity += it.Quantity
			continue
		}
		index[it.ProductID] = len(out)
		out = append(out, it)
	}
	return out, nil
}

// resolveItems prices every line concurrently. Any failed lookup fails the
// whole set.
func (s *orderServiceImpl) resolveItems(ctx context.Context, lines []models.ItemRequest) ([]models.OrderItem, *ServiceError) {
	quotes := make([]PriceQuote, len(lines))
	g, gctx := errgroup.WithContext(ctx)
	for i, line := range lines {
		i, line := i, line
		g.Go(func() error {
			lctx, cancel := context.WithTimeout(gctx, s.lookupTimeout)
			defer cancel()

			q, err := s.prices.Lookup(lctx, line.ProductID)
			if err != nil {
				return lookupError(line.ProductID, err)
			}
			if !q.Available {
				return newError(KindProductUnavailable, "Product is not available", nil).
					with("product_id", line.ProductID.String())
			}
			quotes[i] = q
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		var svcErr *ServiceError
		if errors.As(err, &svcErr) {
			return nil, svcErr
		}
		return nil, newError(KindInternal, "Internal error", err)
	}

	items := make([]models.OrderItem, len(lines))
	for i, line := range lines {
		items[i] = models.OrderItem{
			ProductID:       line.ProductID,
			Quantity:        line.Quantity,
			PriceAtPurchase: quotes[i].Price.Round(2),
		}
	}
	if total := models.ComputeTotal(items); total.GreaterThan(models.MaxOrderTotal) {
		return nil, validationError("Order total exceeds the maximum of "+models.MaxOrderTotal.StringFixed(2)).
			with("total_price", total.StringFixed(2))
	}
	return items, nil
}

func lookupError(productID uuid.UUID, err error) *ServiceError {
	if errors.Is(err, ErrPriceNotFound) {
		return newError(KindInvalidReference, "Order references an unknown product", err).
			with("product_ids", []string{productID.String()})
	}
	return newError(KindTransient, "Product prices are temporarily unavailable, retry the request", err).
		with("product_id", productID.String())
}

func (s *orderServiceImpl) succeed(ctx context.Context, op string, order *models.Order) {
	if s.observer != nil {
		s.observer.ObserveMutation(op, "ok")
	}
	logger.For(ctx, s.logger).Info("Order mutation committed",
		zap.String("operation", op),
		zap.String("order_id", order.ID.String()),
		zap.Int64("version", order.Version),
		zap.String("total_price", order.TotalPrice.StringFixed(2)),
	)
	if s.notifier != nil {
		s.notifier.Notify()
	}
}

func (s *orderServiceImpl) fail(ctx context.Context, op string, err *ServiceError) *ServiceError {
	if s.observer != nil {
		s.observer.ObserveMutation(op, string(err.Kind))
	}
	log := logger.For(ctx, s.logger)
	fields := []zap.Field{zap.String("operation", op), zap.String("kind", string(err.Kind)), zap.Error(err)}
	if err.Kind == KindInternal {
		log.Error("Order mutation failed", fields...)
	} else {
		log.Info("Order mutation rejected", fields...)
	}
	return err
}
