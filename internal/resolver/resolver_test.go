package resolver

import (
	"context"
	"errors"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/entitlepool/internal/apperror"
	ownerdomain "github.com/smallbiznis/entitlepool/internal/owner/domain"
	pooldomain "github.com/smallbiznis/entitlepool/internal/pool/domain"
	productdomain "github.com/smallbiznis/entitlepool/internal/product/domain"
	subscriptiondomain "github.com/smallbiznis/entitlepool/internal/subscription/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubOwners struct {
	byKey map[string]*ownerdomain.Owner
	byID  map[snowflake.ID]*ownerdomain.Owner
	err   error
}

func (s *stubOwners) LookupByKey(ctx context.Context, key string) (*ownerdomain.Owner, error) {
	return s.byKey[key], s.err
}

func (s *stubOwners) LookupByID(ctx context.Context, id snowflake.ID) (*ownerdomain.Owner, error) {
	return s.byID[id], s.err
}

type stubProducts struct {
	byOwner map[snowflake.ID]map[string]*productdomain.Product
	byUUID  map[string]*productdomain.Product
	calls   int
}

func (s *stubProducts) LookupByOwnerAndID(ctx context.Context, owner *ownerdomain.Owner, productID string) (*productdomain.Product, error) {
	s.calls++
	return s.byOwner[owner.ID][productID], nil
}

func (s *stubProducts) LookupByUUID(ctx context.Context, uuid string) (*productdomain.Product, error) {
	s.calls++
	return s.byUUID[uuid], nil
}

var (
	acme   = &ownerdomain.Owner{ID: 1, Key: "acme"}
	globex = &ownerdomain.Owner{ID: 2, Key: "globex"}
)

func product(owner *ownerdomain.Owner, id, uuid string) *productdomain.Product {
	return &productdomain.Product{UUID: uuid, OwnerID: owner.ID, ID: id, Name: id + " name"}
}

func newResolver() (*Resolver, *stubProducts) {
	owners := &stubOwners{
		byKey: map[string]*ownerdomain.Owner{"acme": acme, "globex": globex},
		byID:  map[snowflake.ID]*ownerdomain.Owner{1: acme, 2: globex},
	}
	products := &stubProducts{
		byOwner: map[snowflake.ID]map[string]*productdomain.Product{
			1: {
				"RH001":  product(acme, "RH001", "uuid-rh001"),
				"PROV-1": product(acme, "PROV-1", "uuid-prov-1"),
				"PROV-2": product(acme, "PROV-2", "uuid-prov-2"),
				"DER-1":  product(acme, "DER-1", "uuid-der-1"),
			},
			2: {
				"GX-1": product(globex, "GX-1", "uuid-gx-1"),
			},
		},
		byUUID: map[string]*productdomain.Product{},
	}
	for _, byID := range products.byOwner {
		for _, p := range byID {
			products.byUUID[p.UUID] = p
		}
	}
	return New(Params{Log: zap.NewNop(), Owners: owners, Products: products}), products
}

func kind(t *testing.T, err error) apperror.Kind {
	t.Helper()
	require.Error(t, err)
	return apperror.KindOf(err)
}

func TestResolveOwner(t *testing.T) {
	r, _ := newResolver()
	ctx := context.Background()

	owner, err := r.ResolveOwner(ctx, &ownerdomain.Owner{Key: "acme"})
	require.NoError(t, err)
	assert.Same(t, acme, owner)

	owner, err = r.ResolveOwner(ctx, &ownerdomain.Owner{ID: 2})
	require.NoError(t, err)
	assert.Same(t, globex, owner)

	_, err = r.ResolveOwner(ctx, nil)
	assert.Equal(t, apperror.KindBadRequest, kind(t, err))

	_, err = r.ResolveOwner(ctx, &ownerdomain.Owner{})
	assert.Equal(t, apperror.KindBadRequest, kind(t, err))

	_, err = r.ResolveOwner(ctx, &ownerdomain.Owner{Key: "initech"})
	assert.Equal(t, apperror.KindNotFound, kind(t, err))

	_, err = r.ResolveOwner(ctx, &ownerdomain.Owner{ID: 404})
	assert.Equal(t, apperror.KindNotFound, kind(t, err))
}

func TestResolveOwnerKeyTakesPriority(t *testing.T) {
	r, _ := newResolver()

	owner, err := r.ResolveOwner(context.Background(), &ownerdomain.Owner{Key: "acme", ID: 2})
	require.NoError(t, err)
	assert.Same(t, acme, owner)

	_, err = r.ResolveOwner(context.Background(), &ownerdomain.Owner{Key: "initech", ID: 2})
	assert.Equal(t, apperror.KindNotFound, kind(t, err))
}

func TestResolveOwnerPropagatesLookupErrors(t *testing.T) {
	boom := errors.New("db down")
	r := New(Params{Log: zap.NewNop(), Owners: &stubOwners{err: boom}, Products: &stubProducts{}})

	_, err := r.ResolveOwner(context.Background(), &ownerdomain.Owner{Key: "acme"})
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, apperror.KindOf(err))
}

func TestResolveProduct(t *testing.T) {
	r, _ := newResolver()
	ctx := context.Background()

	p, err := r.ResolveProduct(ctx, acme, productdomain.Ref("RH001"))
	require.NoError(t, err)
	assert.Equal(t, "uuid-rh001", p.UUID)

	_, err = r.ResolveProduct(ctx, acme, nil)
	assert.Equal(t, apperror.KindBadRequest, kind(t, err))

	_, err = r.ResolveProductID(ctx, acme, "")
	assert.Equal(t, apperror.KindBadRequest, kind(t, err))

	_, err = r.ResolveProductID(ctx, globex, "RH001")
	assert.Equal(t, apperror.KindNotFound, kind(t, err))
	assert.Contains(t, err.Error(), "globex")
}

func TestResolvePool(t *testing.T) {
	r, _ := newResolver()
	derivedID := "DER-1"
	pool := &pooldomain.Pool{
		ID:               77,
		Owner:            &ownerdomain.Owner{Key: "acme"},
		ProductID:        "RH001",
		DerivedProductID: &derivedID,
		ProvidedProducts: []pooldomain.ProvidedProduct{
			{ProductID: "PROV-1"},
			{ProductID: "PROV-2"},
			{ProductID: "PROV-1"},
		},
		DerivedProvidedProducts: []pooldomain.DerivedProvidedProduct{{ProductID: "PROV-2"}},
	}

	got, err := r.ResolvePool(context.Background(), pool)

	require.NoError(t, err)
	assert.Same(t, pool, got)
	assert.Same(t, acme, pool.Owner)
	assert.Equal(t, acme.ID, pool.OwnerID)
	assert.Equal(t, "RH001 name", pool.ProductName)
	require.NotNil(t, pool.DerivedProduct)
	assert.Equal(t, "DER-1 name", *pool.DerivedProductName)
	assert.Equal(t, []pooldomain.ProvidedProduct{
		{PoolID: 77, ProductID: "PROV-1", ProductName: "PROV-1 name"},
		{PoolID: 77, ProductID: "PROV-2", ProductName: "PROV-2 name"},
	}, pool.ProvidedProducts)
	assert.Equal(t, []pooldomain.DerivedProvidedProduct{
		{PoolID: 77, ProductID: "PROV-2", ProductName: "PROV-2 name"},
	}, pool.DerivedProvidedProducts)
}

func TestResolvePoolFallsBackToOwnerID(t *testing.T) {
	r, _ := newResolver()
	pool := &pooldomain.Pool{OwnerID: 2, ProductID: "GX-1"}

	_, err := r.ResolvePool(context.Background(), pool)

	require.NoError(t, err)
	assert.Same(t, globex, pool.Owner)
	assert.Nil(t, pool.DerivedProduct)
	assert.Empty(t, pool.ProvidedProducts)
}

func TestResolvePoolFailuresLeavePoolUntouched(t *testing.T) {
	r, _ := newResolver()

	_, err := r.ResolvePool(context.Background(), nil)
	assert.Equal(t, apperror.KindBadRequest, kind(t, err))

	_, err = r.ResolvePool(context.Background(), &pooldomain.Pool{ProductID: "RH001"})
	assert.Equal(t, apperror.KindBadRequest, kind(t, err))

	_, err = r.ResolvePool(context.Background(), &pooldomain.Pool{Owner: acme})
	assert.Equal(t, apperror.KindBadRequest, kind(t, err))

	pool := &pooldomain.Pool{
		Owner:     &ownerdomain.Owner{Key: "acme"},
		ProductID: "RH001",
		ProvidedProducts: []pooldomain.ProvidedProduct{
			{ProductID: "PROV-1", ProductName: "stale"},
			{ProductID: "GX-1"},
		},
	}
	_, err = r.ResolvePool(context.Background(), pool)

	assert.Equal(t, apperror.KindNotFound, kind(t, err))
	assert.Nil(t, pool.Product)
	assert.Empty(t, pool.ProductName)
	assert.Equal(t, "stale", pool.ProvidedProducts[0].ProductName)
	assert.Len(t, pool.ProvidedProducts, 2)
}

func TestValidateProductData(t *testing.T) {
	r, _ := newResolver()
	ctx := context.Background()

	assert.NoError(t, r.ValidateProductData(ctx, nil, acme, true))

	err := r.ValidateProductData(ctx, nil, acme, false)
	assert.Equal(t, apperror.KindBadRequest, kind(t, err))

	err = r.ValidateProductData(ctx, &productdomain.Product{}, acme, true)
	assert.Equal(t, apperror.KindBadRequest, kind(t, err))

	assert.NoError(t, r.ValidateProductData(ctx, productdomain.Ref("RH001"), acme, false))

	err = r.ValidateProductData(ctx, productdomain.Ref("GX-1"), acme, false)
	assert.Equal(t, apperror.KindNotFound, kind(t, err))
}

func TestValidateProductDataByUUIDIgnoresOwnerAndBackfillsID(t *testing.T) {
	r, _ := newResolver()

	data := productdomain.UUIDRef("uuid-gx-1")
	require.NoError(t, r.ValidateProductData(context.Background(), data, acme, false))
	assert.Equal(t, "GX-1", data.ID)

	data = &productdomain.Product{UUID: "uuid-missing", ID: "RH001"}
	err := r.ValidateProductData(context.Background(), data, acme, false)
	assert.Equal(t, apperror.KindNotFound, kind(t, err))
	assert.Equal(t, "RH001", data.ID)
}

func subscription() *subscriptiondomain.Subscription {
	return &subscriptiondomain.Subscription{
		Owner:                   &ownerdomain.Owner{Key: "acme"},
		Product:                 productdomain.UUIDRef("uuid-rh001"),
		DerivedProduct:          productdomain.Ref("DER-1"),
		ProvidedProducts:        []*productdomain.Product{productdomain.Ref("PROV-1"), nil, productdomain.UUIDRef("uuid-prov-2"), productdomain.Ref("PROV-1")},
		DerivedProvidedProducts: []*productdomain.Product{productdomain.Ref("PROV-2")},
	}
}

func TestResolveSubscription(t *testing.T) {
	r, _ := newResolver()
	sub := subscription()

	got, err := r.ResolveSubscription(context.Background(), sub)

	require.NoError(t, err)
	assert.Same(t, sub, got)
	assert.Same(t, acme, sub.Owner)
	assert.Equal(t, acme.ID, sub.OwnerID)
	assert.Equal(t, "RH001", sub.Product.ID)
	assert.Equal(t, "RH001", sub.ProductID)
	require.NotNil(t, sub.DerivedProductID)
	assert.Equal(t, "DER-1", *sub.DerivedProductID)
	assert.Equal(t, []string{"PROV-1", "PROV-2"}, sub.ProvidedProductIDs)
	assert.Equal(t, []string{"PROV-2"}, sub.DerivedProvidedProductIDs)
	assert.Equal(t, "PROV-2 name", sub.ProvidedProducts[1].Name)
}

func TestResolveSubscriptionOptionalReferences(t *testing.T) {
	r, _ := newResolver()
	sub := &subscriptiondomain.Subscription{OwnerID: 1, ProductID: "RH001"}

	_, err := r.ResolveSubscription(context.Background(), sub)

	require.NoError(t, err)
	assert.Nil(t, sub.DerivedProduct)
	assert.Nil(t, sub.DerivedProductID)
	assert.Empty(t, sub.ProvidedProducts)
}

func TestResolveSubscriptionFailures(t *testing.T) {
	r, _ := newResolver()
	ctx := context.Background()

	_, err := r.ResolveSubscription(ctx, nil)
	assert.Equal(t, apperror.KindBadRequest, kind(t, err))

	sub := subscription()
	sub.Owner = nil
	_, err = r.ResolveSubscription(ctx, sub)
	assert.Equal(t, apperror.KindBadRequest, kind(t, err))

	sub = subscription()
	sub.Product = nil
	_, err = r.ResolveSubscription(ctx, sub)
	assert.Equal(t, apperror.KindBadRequest, kind(t, err))

	sub = subscription()
	sub.DerivedProduct = productdomain.Ref("GX-1")
	_, err = r.ResolveSubscription(ctx, sub)
	assert.Equal(t, apperror.KindNotFound, kind(t, err))
}

func TestResolveSubscriptionInvalidDerivedProvidedLeavesSubscriptionUntouched(t *testing.T) {
	r, _ := newResolver()
	sub := subscription()
	sub.DerivedProvidedProducts = append(sub.DerivedProvidedProducts, productdomain.Ref("NOPE"))

	_, err := r.ResolveSubscription(context.Background(), sub)

	assert.Equal(t, apperror.KindNotFound, kind(t, err))
	assert.Equal(t, "acme", sub.Owner.Key)
	assert.Zero(t, sub.OwnerID)
	assert.Empty(t, sub.Product.ID)
	assert.Empty(t, sub.ProvidedProductIDs)
	assert.Len(t, sub.ProvidedProducts, 4)
}

func TestResolveSubscriptionStopsAtFirstFailure(t *testing.T) {
	r, products := newResolver()
	sub := subscription()
	sub.Product = productdomain.Ref("NOPE")

	_, err := r.ResolveSubscription(context.Background(), sub)

	assert.Equal(t, apperror.KindNotFound, kind(t, err))
	assert.Equal(t, 1, products.calls)
}
