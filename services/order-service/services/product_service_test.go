package services

import (
	"context"
	"errors"
	"testing"

	"github.com/Mark23Dev/project-nexus/services/order-service/cache"
	"github.com/Mark23Dev/project-nexus/services/order-service/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newProductFixture(products ...models.Product) (*fakeProductRepo, ProductService) {
	repo := newFakeProductRepo(products...)
	return repo, NewProductService(repo, cache.NewMemoryCache(), 0, zap.NewNop())
}

func TestListProducts_ServedFromCache(t *testing.T) {
	repo, svc := newProductFixture(
		models.Product{ID: uuid.New(), Title: "Lamp", Price: decimal.RequireFromString("15"), Available: true},
		models.Product{ID: uuid.New(), Title: "Desk", Price: decimal.RequireFromString("120.5"), Available: false},
	)
	ctx := context.Background()

	first, err := svc.ListProducts(ctx, 1, 10, false)
	require.NoError(t, err)
	require.Len(t, first.Products, 2)
	assert.Equal(t, "Desk", first.Products[0].Title)
	assert.Equal(t, "120.50", first.Products[0].Price)

	second, err := svc.ListProducts(ctx, 1, 10, false)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, repo.listCalls)

	available, err := svc.ListProducts(ctx, 1, 10, true)
	require.NoError(t, err)
	assert.Len(t, available.Products, 1)
	assert.Equal(t, 2, repo.listCalls)
}

func TestPatchProduct_InvalidatesCacheAndKeepsSnapshots(t *testing.T) {
	id := uuid.New()
	repo, svc := newProductFixture(models.Product{ID: id, Title: "Lamp", Price: decimal.RequireFromString("15"), Available: true})
	ctx := context.Background()
	admin := models.Principal{UserID: uuid.New(), IsAdministrator: true}

	_, err := svc.ListProducts(ctx, 1, 10, false)
	require.NoError(t, err)

	price := decimal.RequireFromString("17.25")
	updated, err := svc.PatchProduct(ctx, admin, id, models.ProductPatch{Price: &price})
	require.NoError(t, err)
	assert.Equal(t, "17.25", updated.Price.StringFixed(2))
	assert.Equal(t, "Lamp", updated.Title)

	list, err := svc.ListProducts(ctx, 1, 10, false)
	require.NoError(t, err)
	assert.Equal(t, "17.25", list.Products[0].Price)
	assert.Equal(t, 2, repo.listCalls)
}

func TestPatchProduct_Validation(t *testing.T) {
	id := uuid.New()
	_, svc := newProductFixture(models.Product{ID: id, Title: "Lamp", Available: true})
	ctx := context.Background()
	admin := models.Principal{UserID: uuid.New(), IsAdministrator: true}

	negative := decimal.RequireFromString("-1")
	fine := decimal.RequireFromString("1.005")
	blank := "  "

	for name, patch := range map[string]models.ProductPatch{
		"empty":          {},
		"negative price": {Price: &negative},
		"sub-cent price": {Price: &fine},
		"blank title":    {Title: &blank},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := svc.PatchProduct(ctx, admin, id, patch)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestProductMutations_RequireAdministrator(t *testing.T) {
	id := uuid.New()
	_, svc := newProductFixture(models.Product{ID: id, Title: "Lamp", Available: true})
	customer := models.Principal{UserID: uuid.New()}

	_, err := svc.DisableProduct(context.Background(), customer, id)
	assert.ErrorIs(t, err, ErrForbidden)
	assert.ErrorIs(t, svc.DeleteProduct(context.Background(), customer, id), ErrForbidden)
}

func TestDeleteProduct(t *testing.T) {
	kept, free := uuid.New(), uuid.New()
	repo, svc := newProductFixture(
		models.Product{ID: kept, Title: "Referenced", Available: true},
		models.Product{ID: free, Title: "Unused", Available: true},
	)
	repo.referenced[kept] = true
	admin := models.Principal{UserID: uuid.New(), IsAdministrator: true}
	ctx := context.Background()

	err := svc.DeleteProduct(ctx, admin, kept)
	var svcErr *ServiceError
	require.True(t, errors.As(err, &svcErr))
	assert.Equal(t, KindConflict, svcErr.Kind)
	assert.Contains(t, svcErr.Message, "disable it instead")

	disabled, err := svc.DisableProduct(ctx, admin, kept)
	require.NoError(t, err)
	assert.False(t, disabled.Available)

	require.NoError(t, svc.DeleteProduct(ctx, admin, free))
	assert.ErrorIs(t, svc.DeleteProduct(ctx, admin, free), ErrNotFound)
}

func TestListProducts_StoreError(t *testing.T) {
	repo, svc := newProductFixture()
	repo.listErr = errors.New("connection refused")

	_, err := svc.ListProducts(context.Background(), 1, 10, false)
	assert.ErrorIs(t, err, ErrInternal)
}
