package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/entitlepool/internal/apperror"
	ownerdomain "github.com/smallbiznis/entitlepool/internal/owner/domain"
	"github.com/smallbiznis/entitlepool/internal/product/domain"
	"github.com/smallbiznis/entitlepool/internal/product/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	acme   = &ownerdomain.Owner{ID: 1, Key: "acme"}
	globex = &ownerdomain.Owner{ID: 2, Key: "globex"}
)

func setupService(t *testing.T) domain.Service {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&domain.Product{}))

	return New(Params{DB: db, Log: zap.NewNop(), Repo: repository.Provide()})
}

func create(t *testing.T, svc domain.Service, owner *ownerdomain.Owner, req domain.CreateRequest) *domain.Product {
	t.Helper()
	p, err := svc.Create(context.Background(), owner, req)
	require.NoError(t, err)
	return p
}

func TestCreateAndLookupGraph(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	create(t, svc, acme, domain.CreateRequest{ID: "PROV-1", Name: "Provided One"})
	create(t, svc, acme, domain.CreateRequest{ID: "DER-1", Name: "Derived"})
	derived := "DER-1"
	top := create(t, svc, acme, domain.CreateRequest{
		ID:                  "RH001",
		Name:                "Enterprise",
		Attributes:          map[string]string{"sockets": "2", " ": "ignored"},
		DependentProductIDs: []string{"X", "X", " "},
		ProvidedProductIDs:  []string{"PROV-1", "PROV-1"},
		DerivedProductID:    &derived,
	})
	assert.NotEmpty(t, top.UUID)
	assert.Equal(t, int64(1), top.Multiplier)
	assert.Equal(t, map[string]string{"sockets": "2"}, top.Attributes)
	assert.Equal(t, []string{"X"}, top.DependentProductIDs)

	got, err := svc.LookupByOwnerAndID(ctx, acme, "RH001")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Len(t, got.ProvidedProducts, 1)
	assert.Equal(t, "Provided One", got.ProvidedProducts[0].Name)
	require.NotNil(t, got.DerivedProduct)
	assert.Equal(t, "Derived", got.DerivedProduct.Name)

	byUUID, err := svc.LookupByUUID(ctx, top.UUID)
	require.NoError(t, err)
	require.NotNil(t, byUUID)
	assert.Equal(t, "RH001", byUUID.ID)
}

func TestLookupIsOwnerScoped(t *testing.T) {
	svc := setupService(t)
	create(t, svc, acme, domain.CreateRequest{ID: "RH001", Name: "Enterprise"})

	got, err := svc.LookupByOwnerAndID(context.Background(), globex, "RH001")
	assert.NoError(t, err)
	assert.Nil(t, got)

	got, err = svc.LookupByUUID(context.Background(), "missing")
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestCreateValidation(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()
	zero := int64(0)

	_, err := svc.Create(ctx, nil, domain.CreateRequest{ID: "A", Name: "A"})
	assert.ErrorIs(t, err, apperror.ErrBadRequest)

	_, err = svc.Create(ctx, acme, domain.CreateRequest{Name: "A"})
	assert.ErrorIs(t, err, domain.ErrInvalidID)

	_, err = svc.Create(ctx, acme, domain.CreateRequest{ID: "A"})
	assert.ErrorIs(t, err, domain.ErrInvalidName)

	_, err = svc.Create(ctx, acme, domain.CreateRequest{ID: "A", Name: "A", Multiplier: &zero})
	assert.ErrorIs(t, err, domain.ErrInvalidMultiplier)

	_, err = svc.Create(ctx, acme, domain.CreateRequest{ID: "A", Name: "A", ProvidedProductIDs: []string{"NOPE"}})
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	create(t, svc, acme, domain.CreateRequest{ID: "A", Name: "A"})
	_, err = svc.Create(ctx, acme, domain.CreateRequest{ID: "A", Name: "A"})
	assert.ErrorIs(t, err, domain.ErrDuplicateProduct)

	create(t, svc, globex, domain.CreateRequest{ID: "A", Name: "A"})
}

func TestSelfReferenceDoesNotLoop(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()
	create(t, svc, acme, domain.CreateRequest{ID: "A", Name: "A"})
	create(t, svc, acme, domain.CreateRequest{ID: "B", Name: "B", ProvidedProductIDs: []string{"A"}})

	got, err := svc.LookupByOwnerAndID(ctx, acme, "B")
	require.NoError(t, err)
	require.Len(t, got.ProvidedProducts, 1)
	assert.Empty(t, got.ProvidedProducts[0].ProvidedProducts)
}

func TestList(t *testing.T) {
	svc := setupService(t)
	create(t, svc, acme, domain.CreateRequest{ID: "B", Name: "B"})
	create(t, svc, acme, domain.CreateRequest{ID: "A", Name: "A"})
	create(t, svc, globex, domain.CreateRequest{ID: "C", Name: "C"})

	items, err := svc.List(context.Background(), acme)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "A", items[0].ID)
}
