package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/entitlepool/internal/apperror"
	"github.com/smallbiznis/entitlepool/internal/config"
	ownerdomain "github.com/smallbiznis/entitlepool/internal/owner/domain"
	pooldomain "github.com/smallbiznis/entitlepool/internal/pool/domain"
	poolrepository "github.com/smallbiznis/entitlepool/internal/pool/repository"
	poolservice "github.com/smallbiznis/entitlepool/internal/pool/service"
	productcatalog "github.com/smallbiznis/entitlepool/internal/product/catalog"
	productdomain "github.com/smallbiznis/entitlepool/internal/product/domain"
	productrepository "github.com/smallbiznis/entitlepool/internal/product/repository"
	"github.com/smallbiznis/entitlepool/internal/resolver"
	subscriptiondomain "github.com/smallbiznis/entitlepool/internal/subscription/domain"
	"github.com/smallbiznis/entitlepool/internal/subscription/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var acme = &ownerdomain.Owner{ID: 1, Key: "acme"}

type stubOwners struct{}

func (stubOwners) LookupByKey(ctx context.Context, key string) (*ownerdomain.Owner, error) {
	if key == acme.Key {
		return acme, nil
	}
	return nil, nil
}

func (stubOwners) LookupByID(ctx context.Context, id snowflake.ID) (*ownerdomain.Owner, error) {
	if id == acme.ID {
		return acme, nil
	}
	return nil, nil
}

type stubProducts map[string]*productdomain.Product

func (s stubProducts) LookupByOwnerAndID(ctx context.Context, owner *ownerdomain.Owner, productID string) (*productdomain.Product, error) {
	return s[productID], nil
}

func (s stubProducts) LookupByUUID(ctx context.Context, uuid string) (*productdomain.Product, error) {
	for _, p := range s {
		if p.UUID == uuid {
			return p, nil
		}
	}
	return nil, nil
}

func (s stubProducts) GetProductByID(ctx context.Context, ownerID snowflake.ID, productID string) (*productdomain.Product, error) {
	if ownerID != acme.ID {
		return nil, nil
	}
	return s[productID], nil
}

type fixture struct {
	svc      subscriptiondomain.Service
	db       *gorm.DB
	products stubProducts
}

func setup(t *testing.T) *fixture {
	t.Helper()
	return setupWithCatalog(t, nil)
}

// setupWithCatalog backs pool naming with catalogFor(db) instead of the
// product stub when catalogFor is non-nil.
func setupWithCatalog(t *testing.T, catalogFor func(db *gorm.DB) productdomain.Catalog) *fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&subscriptiondomain.Subscription{},
		&pooldomain.Pool{},
		&pooldomain.ProvidedProduct{},
		&pooldomain.DerivedProvidedProduct{},
		&pooldomain.PoolAttribute{},
		&pooldomain.ProductPoolAttribute{},
		&pooldomain.Entitlement{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	products := stubProducts{
		"RH001": {
			UUID:       "uuid-rh001",
			OwnerID:    1,
			ID:         "RH001",
			Name:       "Enterprise",
			Multiplier: 2,
			Attributes: map[string]string{"sockets": "2", "arch": "x86_64"},
		},
		"PROV-1": {UUID: "uuid-prov-1", OwnerID: 1, ID: "PROV-1", Name: "Provided One"},
		"PROV-2": {UUID: "uuid-prov-2", OwnerID: 1, ID: "PROV-2", Name: "Provided Two"},
		"DER-1":  {UUID: "uuid-der-1", OwnerID: 1, ID: "DER-1", Name: "Derived"},
	}
	var catalog productdomain.Catalog = products
	if catalogFor != nil {
		catalog = catalogFor(db)
	}
	res := resolver.New(resolver.Params{Log: zap.NewNop(), Owners: stubOwners{}, Products: products})
	policy := config.NewStaticPolicyHolder(config.DefaultPoolPolicy())
	poolRepo := poolrepository.Provide()
	pools := poolservice.New(poolservice.Params{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Repo:     poolRepo,
		Resolver: res,
		Catalog:  catalog,
		Policy:   policy,
	})

	svc := NewService(ServiceParam{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Repo:     repository.Provide(),
		PoolRepo: poolRepo,
		Pools:    pools,
		Resolver: res,
		Catalog:  catalog,
		Policy:   policy,
	})
	return &fixture{svc: svc, db: db, products: products}
}

func createRequest() subscriptiondomain.CreateRequest {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return subscriptiondomain.CreateRequest{
		Owner:                   &subscriptiondomain.OwnerRef{Key: "acme"},
		Product:                 &subscriptiondomain.ProductRef{UUID: "uuid-rh001"},
		DerivedProduct:          &subscriptiondomain.ProductRef{ID: "DER-1"},
		ProvidedProducts:        []*subscriptiondomain.ProductRef{{ID: "PROV-1"}, {ID: "PROV-2"}},
		DerivedProvidedProducts: []*subscriptiondomain.ProductRef{{ID: "PROV-2"}},
		Quantity:                5,
		StartDate:               start,
		EndDate:                 start.AddDate(1, 0, 0),
		ContractNumber:          "C-1",
		AccountNumber:           "A-1",
		Metadata:                map[string]any{"channel": "partner"},
	}
}

func (f *fixture) count(t *testing.T, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(model).Count(&n).Error)
	return n
}

func TestCreateDerivesPool(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	resp, err := f.svc.Create(ctx, createRequest())
	require.NoError(t, err)

	sub := resp.Subscription
	assert.NotZero(t, sub.ID)
	assert.Equal(t, acme.ID, sub.OwnerID)
	assert.Equal(t, "RH001", sub.ProductID)
	assert.Equal(t, []string{"PROV-1", "PROV-2"}, sub.ProvidedProductIDs)

	pool := resp.Pool
	require.NotNil(t, pool.SubscriptionID)
	assert.Equal(t, sub.ID, *pool.SubscriptionID)
	assert.Equal(t, int64(10), pool.Quantity)
	assert.Equal(t, "Enterprise", pool.ProductName)
	assert.Equal(t, "C-1", pool.ContractNumber)
	assert.Len(t, pool.ProvidedProducts, 2)
	assert.Len(t, pool.ProductAttributes, 2)
	require.NotNil(t, pool.DerivedProductID)
	assert.Equal(t, "DER-1", *pool.DerivedProductID)

	stored, err := f.svc.Get(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, "partner", stored.Metadata["channel"])
	assert.Equal(t, "Enterprise", stored.Product.Name)
	assert.Len(t, stored.DerivedProvidedProducts, 1)
}

func TestCreateUnlimitedSubscription(t *testing.T) {
	f := setup(t)
	req := createRequest()
	req.Quantity = -1

	resp, err := f.svc.Create(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, resp.Pool.IsUnlimited())
}

func TestCreateWithInvalidDerivedProvidedProductPersistsNothing(t *testing.T) {
	f := setup(t)
	req := createRequest()
	req.DerivedProvidedProducts = append(req.DerivedProvidedProducts, &subscriptiondomain.ProductRef{ID: "NOPE"})

	_, err := f.svc.Create(context.Background(), req)

	assert.ErrorIs(t, err, apperror.ErrNotFound)
	assert.Zero(t, f.count(t, &subscriptiondomain.Subscription{}))
	assert.Zero(t, f.count(t, &pooldomain.Pool{}))
}

func TestCreateValidation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	req := createRequest()
	req.Owner = nil
	_, err := f.svc.Create(ctx, req)
	assert.ErrorIs(t, err, apperror.ErrBadRequest)

	req = createRequest()
	req.Product = nil
	_, err = f.svc.Create(ctx, req)
	assert.ErrorIs(t, err, apperror.ErrBadRequest)

	req = createRequest()
	req.EndDate = req.StartDate.Add(-time.Hour)
	_, err = f.svc.Create(ctx, req)
	assert.ErrorIs(t, err, subscriptiondomain.ErrInvalidPeriod)

	req = createRequest()
	req.Quantity = -2
	_, err = f.svc.Create(ctx, req)
	assert.ErrorIs(t, err, subscriptiondomain.ErrInvalidQuantity)

	req = createRequest()
	req.Owner = &subscriptiondomain.OwnerRef{ID: "not-a-number"}
	_, err = f.svc.Create(ctx, req)
	assert.ErrorIs(t, err, subscriptiondomain.ErrInvalidOwnerID)
}

func TestGetMissingSubscription(t *testing.T) {
	f := setup(t)

	_, err := f.svc.Get(context.Background(), 404)
	assert.ErrorIs(t, err, subscriptiondomain.ErrNotFound)
}

func TestRefreshUnchanged(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	resp, err := f.svc.Create(ctx, createRequest())
	require.NoError(t, err)

	pools, err := f.svc.Refresh(ctx, resp.Subscription.ID)
	require.NoError(t, err)
	require.Len(t, pools, 1)
	assert.Equal(t, resp.Pool.ID, pools[0].ID)
	assert.Equal(t, int64(10), pools[0].Quantity)
}

func TestRefreshReconcilesAttributes(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	resp, err := f.svc.Create(ctx, createRequest())
	require.NoError(t, err)

	f.products["RH001"].Attributes = map[string]string{"sockets": "4", "cores": "16"}

	_, err = f.svc.Refresh(ctx, resp.Subscription.ID)
	require.NoError(t, err)

	pools, err := f.svc.(*Service).pools.ListBySubscription(ctx, resp.Subscription.ID)
	require.NoError(t, err)
	require.Len(t, pools, 1)
	names := []string{}
	for _, attr := range pools[0].ProductAttributes {
		names = append(names, attr.Name)
	}
	assert.ElementsMatch(t, []string{"sockets", "cores"}, names)
	sockets, _ := pools[0].ProductAttribute("sockets")
	assert.Equal(t, "4", sockets.Value)
}

func TestRefreshRegeneratesRenamedProduct(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	resp, err := f.svc.Create(ctx, createRequest())
	require.NoError(t, err)

	f.products["RH001"].Name = "Enterprise Plus"
	f.products["RH001"].Multiplier = 3

	_, err = f.svc.Refresh(ctx, resp.Subscription.ID)
	require.NoError(t, err)

	pools, err := f.svc.(*Service).pools.ListBySubscription(ctx, resp.Subscription.ID)
	require.NoError(t, err)
	require.Len(t, pools, 1)
	assert.Equal(t, resp.Pool.ID, pools[0].ID)
	assert.Equal(t, "Enterprise Plus", pools[0].ProductName)
	assert.Equal(t, int64(15), pools[0].Quantity)
	assert.Len(t, pools[0].ProvidedProducts, 2)
	_, ok := pools[0].Attribute(pooldomain.AttrRequiresConsumerType)
	assert.True(t, ok)
}

func TestRefreshCreatesMissingPool(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	resp, err := f.svc.Create(ctx, createRequest())
	require.NoError(t, err)
	require.NoError(t, f.db.Exec("DELETE FROM pools").Error)

	pools, err := f.svc.Refresh(ctx, resp.Subscription.ID)
	require.NoError(t, err)
	require.Len(t, pools, 1)
	assert.NotEqual(t, resp.Pool.ID, pools[0].ID)
	assert.Equal(t, int64(1), f.count(t, &pooldomain.Pool{}))
}

func TestRefreshFailsWhenProductDisappears(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	resp, err := f.svc.Create(ctx, createRequest())
	require.NoError(t, err)

	delete(f.products, "PROV-2")

	_, err = f.svc.Refresh(ctx, resp.Subscription.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestRefreshIsStableWhenAnotherOwnerSharesTheProductID(t *testing.T) {
	f := setupWithCatalog(t, func(db *gorm.DB) productdomain.Catalog {
		require.NoError(t, db.AutoMigrate(&productdomain.Product{}))
		now := time.Now().UTC()
		require.NoError(t, db.Create(&productdomain.Product{UUID: "uuid-other", OwnerID: 2, ID: "RH001", Name: "Other Owner Gold", Multiplier: 1, CreatedAt: now.Add(-time.Hour)}).Error)
		require.NoError(t, db.Create(&productdomain.Product{UUID: "uuid-rh001", OwnerID: 1, ID: "RH001", Name: "Enterprise", Multiplier: 2, CreatedAt: now}).Error)
		return productcatalog.New(productcatalog.Params{
			DB:   db,
			Log:  zap.NewNop(),
			Repo: productrepository.Provide(),
			Cfg:  config.Config{},
		})
	})
	ctx := context.Background()

	resp, err := f.svc.Create(ctx, createRequest())
	require.NoError(t, err)
	assert.Equal(t, "Enterprise", resp.Pool.ProductName)

	before, err := f.svc.(*Service).pools.Get(ctx, resp.Pool.ID)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err = f.svc.Refresh(ctx, resp.Subscription.ID)
		require.NoError(t, err)
	}

	after, err := f.svc.(*Service).pools.Get(ctx, resp.Pool.ID)
	require.NoError(t, err)
	assert.Equal(t, "Enterprise", after.ProductName)
	assert.True(t, before.UpdatedAt.Equal(after.UpdatedAt))
}
