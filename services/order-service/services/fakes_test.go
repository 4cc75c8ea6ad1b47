package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Mark23Dev/project-nexus/services/order-service/models"
	"github.com/Mark23Dev/project-nexus/services/order-service/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// fakeOrderRepo keeps orders in memory. Mutations on one order are
// serialised by a per-order mutex and applied to a copy that is swapped in
// only on success, mirroring the transactional store.
type fakeOrderRepo struct {
	mu       sync.Mutex
	orders   map[uuid.UUID]*models.Order
	locks    map[uuid.UUID]*sync.Mutex
	missing  map[uuid.UUID]bool
	hideKeys int
	events   []string
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{
		orders:  map[uuid.UUID]*models.Order{},
		locks:   map[uuid.UUID]*sync.Mutex{},
		missing: map[uuid.UUID]bool{},
	}
}

func cloneOrder(o *models.Order) *models.Order {
	c := *o
	c.OrderItems = append([]models.OrderItem(nil), o.OrderItems...)
	return &c
}

func (f *fakeOrderRepo) lockFor(id uuid.UUID) *sync.Mutex {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.locks[id]
	if !ok {
		l = &sync.Mutex{}
		f.locks[id] = l
	}
	return l
}

func (f *fakeOrderRepo) checkProducts(items []models.OrderItem) error {
	var missing []uuid.UUID
	for _, it := range items {
		if f.missing[it.ProductID] {
			missing = append(missing, it.ProductID)
		}
	}
	if len(missing) > 0 {
		return &repository.MissingProductsError{ProductIDs: missing}
	}
	return nil
}

func prepare(orderID uuid.UUID, items []models.OrderItem) []models.OrderItem {
	out := make([]models.OrderItem, len(items))
	for i, it := range items {
		it.ID = uuid.New()
		it.OrderID = orderID
		it.Position = i
		out[i] = it
	}
	return out
}

func (f *fakeOrderRepo) CreateOrder(_ context.Context, order *models.Order, _ uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if order.IdempotencyKey != nil {
		for _, o := range f.orders {
			if o.UserID == order.UserID && o.IdempotencyKey != nil && *o.IdempotencyKey == *order.IdempotencyKey {
				return fmt.Errorf("%w: duplicate", repository.ErrDuplicateIdempotencyKey)
			}
		}
	}
	if err := f.checkProducts(order.OrderItems); err != nil {
		return err
	}

	now := time.Now().UTC()
	order.ID = uuid.New()
	order.Version = 1
	order.CreatedAt, order.UpdatedAt = now, now
	order.OrderItems = prepare(order.ID, order.OrderItems)
	order.TotalPrice = models.ComputeTotal(order.OrderItems)
	f.orders[order.ID] = cloneOrder(order)
	f.events = append(f.events, models.EventOrderCreated)
	return nil
}

func (f *fakeOrderRepo) mutate(id uuid.UUID, opts repository.MutationOptions, event string, apply func(o *models.Order) error) (*models.Order, error) {
	l := f.lockFor(id)
	l.Lock()
	defer l.Unlock()

	f.mu.Lock()
	stored, ok := f.orders[id]
	var working *models.Order
	if ok {
		working = cloneOrder(stored)
	}
	f.mu.Unlock()
	if !ok {
		return nil, repository.ErrOrderNotFound
	}

	if opts.ExpectedVersion != 0 && opts.ExpectedVersion != working.Version {
		return nil, fmt.Errorf("%w: version mismatch", repository.ErrConflict)
	}
	if opts.Check != nil {
		if err := opts.Check(working); err != nil {
			return nil, err
		}
	}
	if err := apply(working); err != nil {
		return nil, err
	}
	working.Version++
	working.UpdatedAt = time.Now().UTC()

	f.mu.Lock()
	f.orders[id] = working
	f.events = append(f.events, event)
	f.mu.Unlock()
	return cloneOrder(working), nil
}

func (f *fakeOrderRepo) ReplaceItems(_ context.Context, id uuid.UUID, items []models.OrderItem, opts repository.MutationOptions) (*models.Order, error) {
	return f.mutate(id, opts, models.EventOrderItemsReplaced, func(o *models.Order) error {
		if err := f.checkProducts(items); err != nil {
			return err
		}
		o.OrderItems = prepare(id, items)
		o.TotalPrice = models.ComputeTotal(o.OrderItems)
		return nil
	})
}

func (f *fakeOrderRepo) UpdateStatus(_ context.Context, id uuid.UUID, status models.OrderStatus, opts repository.MutationOptions) (*models.Order, error) {
	return f.mutate(id, opts, models.EventOrderStatusChanged, func(o *models.Order) error {
		o.Status = status
		return nil
	})
}

func (f *fakeOrderRepo) UpdateAddresses(_ context.Context, id uuid.UUID, patch models.AddressPatch, opts repository.MutationOptions) (*models.Order, error) {
	return f.mutate(id, opts, models.EventOrderAddressesUpdated, func(o *models.Order) error {
		o.ShippingAddress, o.BillingAddress = patch.Merge(o.ShippingAddress, o.BillingAddress)
		return nil
	})
}

func (f *fakeOrderRepo) DeleteOrder(_ context.Context, id uuid.UUID, opts repository.MutationOptions) error {
	_, err := f.mutate(id, opts, models.EventOrderDeleted, func(*models.Order) error { return nil })
	if err != nil {
		return err
	}
	f.mu.Lock()
	delete(f.orders, id)
	f.mu.Unlock()
	return nil
}

func (f *fakeOrderRepo) FindByID(_ context.Context, id uuid.UUID) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	return cloneOrder(o), nil
}

func (f *fakeOrderRepo) FindByIdempotencyKey(_ context.Context, userID uuid.UUID, key string) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.hideKeys > 0 {
		f.hideKeys--
		return nil, repository.ErrOrderNotFound
	}
	for _, o := range f.orders {
		if o.UserID == userID && o.IdempotencyKey != nil && *o.IdempotencyKey == key {
			return cloneOrder(o), nil
		}
	}
	return nil, repository.ErrOrderNotFound
}

func (f *fakeOrderRepo) FindByUserID(_ context.Context, userID uuid.UUID, page, limit int) ([]models.Order, int64, error) {
	return f.page(func(o *models.Order) bool { return o.UserID == userID }, page, limit)
}

func (f *fakeOrderRepo) FindAll(_ context.Context, page, limit int) ([]models.Order, int64, error) {
	return f.page(func(*models.Order) bool { return true }, page, limit)
}

func (f *fakeOrderRepo) page(keep func(*models.Order) bool, page, limit int) ([]models.Order, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var all []models.Order
	for _, o := range f.orders {
		if keep(o) {
			all = append(all, *cloneOrder(o))
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	total := int64(len(all))
	start := (page - 1) * limit
	if start >= len(all) {
		return nil, total, nil
	}
	end := start + limit
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], total, nil
}

func (f *fakeOrderRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.orders)
}

func (f *fakeOrderRepo) setStatus(id uuid.UUID, status models.OrderStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders[id].Status = status
}

type fakePriceSource struct {
	mu     sync.Mutex
	quotes map[uuid.UUID]PriceQuote
	errs   map[uuid.UUID]error
	delay  time.Duration
	calls  atomic.Int32
}

func newFakePriceSource() *fakePriceSource {
	return &fakePriceSource{quotes: map[uuid.UUID]PriceQuote{}, errs: map[uuid.UUID]error{}}
}

func (f *fakePriceSource) set(id uuid.UUID, price string, available bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quotes[id] = PriceQuote{ProductID: id, Price: decimal.RequireFromString(price), Available: available}
}

func (f *fakePriceSource) Lookup(ctx context.Context, id uuid.UUID) (PriceQuote, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return PriceQuote{}, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.errs[id]; ok {
		return PriceQuote{}, err
	}
	q, ok := f.quotes[id]
	if !ok {
		return PriceQuote{}, ErrPriceNotFound
	}
	return q, nil
}

type countingNotifier struct {
	n atomic.Int32
}

func (c *countingNotifier) Notify() { c.n.Add(1) }

type recordingObserver struct {
	mu       sync.Mutex
	outcomes []string
}

func (r *recordingObserver) ObserveMutation(op, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, op+":"+outcome)
}

type fakeProductRepo struct {
	mu         sync.Mutex
	products   map[uuid.UUID]models.Product
	referenced map[uuid.UUID]bool
	listCalls  int
	listErr    error
}

func newFakeProductRepo(products ...models.Product) *fakeProductRepo {
	f := &fakeProductRepo{products: map[uuid.UUID]models.Product{}, referenced: map[uuid.UUID]bool{}}
	for _, p := range products {
		f.products[p.ID] = p
	}
	return f
}

func (f *fakeProductRepo) FindByID(_ context.Context, id uuid.UUID) (*models.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[id]
	if !ok {
		return nil, repository.ErrProductNotFound
	}
	return &p, nil
}

func (f *fakeProductRepo) List(_ context.Context, page, limit int, onlyAvailable bool) ([]models.Product, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listErr != nil {
		return nil, 0, f.listErr
	}
	var out []models.Product
	for _, p := range f.products {
		if !onlyAvailable || p.Available {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out, int64(len(out)), nil
}

func (f *fakeProductRepo) Update(_ context.Context, id uuid.UUID, patch models.ProductPatch) (*models.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[id]
	if !ok {
		return nil, repository.ErrProductNotFound
	}
	p = patch.Apply(p)
	f.products[id] = p
	return &p, nil
}

func (f *fakeProductRepo) Delete(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.referenced[id] {
		return fmt.Errorf("%w: 1 order items", repository.ErrProductReferenced)
	}
	if _, ok := f.products[id]; !ok {
		return repository.ErrProductNotFound
	}
	delete(f.products, id)
	return nil
}
