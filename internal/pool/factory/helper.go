// Package factory builds pools from subscriptions or explicit parameters and
// carves user-restricted pools out of existing ones.
package factory

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/entitlepool/internal/apperror"
	ownerdomain "github.com/smallbiznis/entitlepool/internal/owner/domain"
	"github.com/smallbiznis/entitlepool/internal/pool/domain"
	"github.com/smallbiznis/entitlepool/internal/pool/reconcile"
	productdomain "github.com/smallbiznis/entitlepool/internal/product/domain"
	subscriptiondomain "github.com/smallbiznis/entitlepool/internal/subscription/domain"
)

// Persister stores a newly built pool.
type Persister interface {
	CreatePool(ctx context.Context, pool *domain.Pool) (*domain.Pool, error)
}

// PoolParams are the explicit inputs of a pool. OwnerID scopes the catalog
// lookup when Owner is nil.
type PoolParams struct {
	ProductID        string
	Owner            *ownerdomain.Owner
	OwnerID          snowflake.ID
	Quantity         string
	StartDate        time.Time
	EndDate          time.Time
	ContractNumber   string
	AccountNumber    string
	ProvidedProducts []domain.ProvidedProduct
}

// Helper is bound to at most one source entitlement; every pool it builds
// records that entitlement as its source.
type Helper struct {
	catalog   productdomain.Catalog
	persister Persister
	quantity  QuantityPolicy
	source    *domain.Entitlement
}

// NewHelper returns a Helper. A nil quantity policy means LenientQuantity.
func NewHelper(catalog productdomain.Catalog, persister Persister, quantity QuantityPolicy) *Helper {
	if quantity == nil {
		quantity = LenientQuantity
	}
	return &Helper{
		catalog:   catalog,
		persister: persister,
		quantity:  quantity,
	}
}

// WithSourceEntitlement returns a copy of h bound to entitlement.
func (h *Helper) WithSourceEntitlement(entitlement *domain.Entitlement) *Helper {
	clone := *h
	clone.source = entitlement
	return &clone
}

// CreatePool builds an unsaved pool. The product name is snapshotted from
// the catalog and left empty when the catalog does not know the product.
func (h *Helper) CreatePool(ctx context.Context, params PoolParams) (*domain.Pool, error) {
	pool, _, err := h.build(ctx, params)
	return pool, err
}

func (h *Helper) build(ctx context.Context, params PoolParams) (*domain.Pool, *productdomain.Product, error) {
	quantity, err := h.quantity(params.Quantity)
	if err != nil {
		return nil, nil, err
	}

	ownerID := params.OwnerID
	if params.Owner != nil {
		ownerID = params.Owner.ID
	}
	product, err := h.catalog.GetProductByID(ctx, ownerID, params.ProductID)
	if err != nil {
		return nil, nil, fmt.Errorf("catalog lookup %q: %w", params.ProductID, err)
	}

	pool := &domain.Pool{
		OwnerID:        ownerID,
		ProductID:      params.ProductID,
		Quantity:       quantity,
		StartDate:      params.StartDate,
		EndDate:        params.EndDate,
		ContractNumber: params.ContractNumber,
		AccountNumber:  params.AccountNumber,
	}
	if product != nil {
		pool.ProductName = product.Name
	}
	pool.Owner = params.Owner

	for _, pp := range params.ProvidedProducts {
		pool.AddProvidedProduct(pp.ProductID, pp.ProductName)
	}

	if h.source != nil {
		id := h.source.ID
		pool.SourceEntitlementID = &id
	}

	StampConsumerType(pool)

	return pool, product, nil
}

// StampConsumerType marks pool as consumable by systems only.
func StampConsumerType(pool *domain.Pool) {
	// Placeholder until products can declare the consumer type they require.
	pool.SetAttribute(domain.AttrRequiresConsumerType, "system")
}

// CreatePoolFromSubscription builds an unsaved pool for productID backed by
// sub. attrs are set on the pool before product attributes are collapsed.
func (h *Helper) CreatePoolFromSubscription(ctx context.Context, sub *subscriptiondomain.Subscription, productID, quantity string, attrs map[string]string) (*domain.Pool, error) {
	if sub == nil {
		return nil, apperror.BadRequest("No subscription specified")
	}

	pool, err := h.CreatePool(ctx, PoolParams{
		ProductID:      productID,
		Owner:          sub.Owner,
		OwnerID:        sub.OwnerID,
		Quantity:       quantity,
		StartDate:      sub.StartDate,
		EndDate:        sub.EndDate,
		ContractNumber: sub.ContractNumber,
		AccountNumber:  sub.AccountNumber,
	})
	if err != nil {
		return nil, err
	}

	subID := sub.ID
	pool.SubscriptionID = &subID

	CopyProvidedProducts(sub, pool)
	copyDerivedProducts(sub, pool)

	for name, value := range attrs {
		pool.SetAttribute(name, value)
	}

	CollapseAttributesOntoPool(sub, pool)
	return pool, nil
}

// CopyProvidedProducts adds a fresh entry to dst for every provided product of src.
func CopyProvidedProducts(src *subscriptiondomain.Subscription, dst *domain.Pool) {
	for _, p := range src.ProvidedProducts {
		if p == nil {
			continue
		}
		dst.AddProvidedProduct(p.ID, p.Name)
	}
}

func copyDerivedProducts(src *subscriptiondomain.Subscription, dst *domain.Pool) {
	if src.DerivedProduct != nil {
		id, name := src.DerivedProduct.ID, src.DerivedProduct.Name
		dst.DerivedProductID, dst.DerivedProductName = &id, &name
	}
	for _, p := range src.DerivedProvidedProducts {
		if p == nil {
			continue
		}
		dst.AddDerivedProvidedProduct(p.ID, p.Name)
	}
}

// CollapseAttributesOntoPool mirrors the subscription's top-level product
// attributes onto pool and reports whether anything changed.
func CollapseAttributesOntoPool(sub *subscriptiondomain.Subscription, pool *domain.Pool) bool {
	return reconcile.Reconcile(sub.Product, pool)
}

// CreateUserRestrictedPool persists a pool for productID cloned from
// template and restricted to the user holding the source entitlement.
// productID must exist for the template's owner.
func (h *Helper) CreateUserRestrictedPool(ctx context.Context, productID string, template *domain.Pool, quantity string) (*domain.Pool, error) {
	if h.source == nil {
		return nil, apperror.BadRequest("No source entitlement to restrict the pool to")
	}
	username := h.source.Consumer.Username
	if username == "" {
		return nil, apperror.BadRequest("Consumer %q has no owning user", h.source.Consumer.UUID)
	}
	if template == nil {
		return nil, apperror.BadRequest("No pool specified")
	}

	pool, product, err := h.build(ctx, PoolParams{
		ProductID:        productID,
		Owner:            template.Owner,
		OwnerID:          template.OwnerID,
		Quantity:         quantity,
		StartDate:        template.StartDate,
		EndDate:          template.EndDate,
		ContractNumber:   template.ContractNumber,
		AccountNumber:    template.AccountNumber,
		ProvidedProducts: template.ProvidedProducts,
	})
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, apperror.NotFound("Unable to find a product with the ID %q for owner %d", productID, pool.OwnerID)
	}
	pool.RestrictedToUsername = &username

	return h.persister.CreatePool(ctx, pool)
}

// CheckForChangedProducts reports whether existing must be regenerated from
// sub: its product ID set or its top-level product name has drifted.
func CheckForChangedProducts(existing *domain.Pool, sub *subscriptiondomain.Subscription) bool {
	if sub.Product == nil {
		return true
	}

	subProducts := map[string]struct{}{sub.Product.ID: {}}
	for _, p := range sub.ProvidedProducts {
		if p != nil {
			subProducts[p.ID] = struct{}{}
		}
	}

	poolProducts := existing.ProductIDs()
	if len(poolProducts) != len(subProducts) {
		return true
	}
	for id := range poolProducts {
		if _, ok := subProducts[id]; !ok {
			return true
		}
	}
	return existing.ProductName != sub.Product.Name
}
