// Package resolver turns loosely identified owner, product, pool and
// subscription references into validated entities.
package resolver

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/entitlepool/internal/apperror"
	"github.com/smallbiznis/entitlepool/internal/observability/metrics"
	ownerdomain "github.com/smallbiznis/entitlepool/internal/owner/domain"
	pooldomain "github.com/smallbiznis/entitlepool/internal/pool/domain"
	productdomain "github.com/smallbiznis/entitlepool/internal/product/domain"
	subscriptiondomain "github.com/smallbiznis/entitlepool/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// OwnerLookup returns nil without error when no owner matches.
type OwnerLookup interface {
	LookupByKey(ctx context.Context, key string) (*ownerdomain.Owner, error)
	LookupByID(ctx context.Context, id snowflake.ID) (*ownerdomain.Owner, error)
}

// ProductLookup returns nil without error when no product matches.
type ProductLookup interface {
	LookupByOwnerAndID(ctx context.Context, owner *ownerdomain.Owner, productID string) (*productdomain.Product, error)
	LookupByUUID(ctx context.Context, uuid string) (*productdomain.Product, error)
}

// Params are the resolver's lookups, provided through fx.
type Params struct {
	fx.In

	Log      *zap.Logger
	Owners   OwnerLookup
	Products ProductLookup
	Metrics  *metrics.Metrics `optional:"true"`
}

// Resolver validates references against the owner and product stores.
// It holds no per-request state.
type Resolver struct {
	log      *zap.Logger
	owners   OwnerLookup
	products ProductLookup
	metrics  *metrics.Metrics
}

// New returns a Resolver over p's lookups.
func New(p Params) *Resolver {
	return &Resolver{
		log:      p.Log.Named("resolver"),
		owners:   p.Owners,
		products: p.Products,
		metrics:  p.Metrics,
	}
}

// ResolveOwner looks ref up by key, or by ID when it has no key.
func (r *Resolver) ResolveOwner(ctx context.Context, ref *ownerdomain.Owner) (*ownerdomain.Owner, error) {
	if ref == nil || !ref.HasIdentity() {
		return nil, r.fail(ctx, "owner", apperror.BadRequest("No owner specified, or owner lacks identifying information"))
	}

	if ref.Key != "" {
		owner, err := r.owners.LookupByKey(ctx, ref.Key)
		if err != nil {
			return nil, err
		}
		if owner == nil {
			return nil, r.fail(ctx, "owner", apperror.NotFound("Unable to find an owner with the key %q", ref.Key))
		}
		return owner, nil
	}

	owner, err := r.owners.LookupByID(ctx, ref.ID)
	if err != nil {
		return nil, err
	}
	if owner == nil {
		return nil, r.fail(ctx, "owner", apperror.NotFound("Unable to find an owner with the ID %q", ref.ID.String()))
	}
	return owner, nil
}

// ResolveProduct resolves ref by its ID within owner.
func (r *Resolver) ResolveProduct(ctx context.Context, owner *ownerdomain.Owner, ref *productdomain.Product) (*productdomain.Product, error) {
	var id string
	if ref != nil {
		id = ref.ID
	}
	return r.ResolveProductID(ctx, owner, id)
}

// ResolveProductID looks productID up within owner.
func (r *Resolver) ResolveProductID(ctx context.Context, owner *ownerdomain.Owner, productID string) (*productdomain.Product, error) {
	if productID == "" {
		return nil, r.fail(ctx, "product", apperror.BadRequest("No product specified, or product lacks identifying information"))
	}
	return r.findProduct(ctx, owner, productID)
}

func (r *Resolver) findProduct(ctx context.Context, owner *ownerdomain.Owner, productID string) (*productdomain.Product, error) {
	product, err := r.products.LookupByOwnerAndID(ctx, owner, productID)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, r.fail(ctx, "product", apperror.NotFound("Unable to find a product with the ID %q for owner %q", productID, owner.Key))
	}
	return product, nil
}

// ResolvePool resolves the pool's owner and product graph. The pool is only
// modified once every reference has resolved. The backing subscription is
// not checked, since pools may be resolved before it is stored.
func (r *Resolver) ResolvePool(ctx context.Context, pool *pooldomain.Pool) (*pooldomain.Pool, error) {
	if pool == nil {
		return nil, r.fail(ctx, "pool", apperror.BadRequest("No pool specified"))
	}

	ownerRef := pool.Owner
	if ownerRef == nil && pool.OwnerID != 0 {
		ownerRef = &ownerdomain.Owner{ID: pool.OwnerID}
	}
	owner, err := r.ResolveOwner(ctx, ownerRef)
	if err != nil {
		return nil, err
	}

	productRef := pool.Product
	if productRef == nil && pool.ProductID != "" {
		productRef = productdomain.Ref(pool.ProductID)
	}
	product, err := r.ResolveProduct(ctx, owner, productRef)
	if err != nil {
		return nil, err
	}

	derivedRef := pool.DerivedProduct
	if derivedRef == nil && pool.DerivedProductID != nil {
		derivedRef = productdomain.Ref(*pool.DerivedProductID)
	}
	var derived *productdomain.Product
	if derivedRef != nil {
		if derived, err = r.ResolveProduct(ctx, owner, derivedRef); err != nil {
			return nil, err
		}
	}

	provided, err := r.resolveProvided(ctx, owner, providedIDs(pool.ProvidedProducts))
	if err != nil {
		return nil, err
	}
	derivedProvided, err := r.resolveProvided(ctx, owner, derivedProvidedIDs(pool.DerivedProvidedProducts))
	if err != nil {
		return nil, err
	}

	pool.Owner = owner
	pool.OwnerID = owner.ID
	pool.Product = product
	pool.ProductID = product.ID
	pool.ProductName = product.Name
	pool.DerivedProduct = derived
	pool.DerivedProductID, pool.DerivedProductName = nil, nil
	if derived != nil {
		id, name := derived.ID, derived.Name
		pool.DerivedProductID, pool.DerivedProductName = &id, &name
	}

	pool.ProvidedProducts = make([]pooldomain.ProvidedProduct, 0, len(provided))
	for _, p := range provided {
		pool.ProvidedProducts = append(pool.ProvidedProducts, pooldomain.ProvidedProduct{
			PoolID:      pool.ID,
			ProductID:   p.ID,
			ProductName: p.Name,
		})
	}
	pool.DerivedProvidedProducts = make([]pooldomain.DerivedProvidedProduct, 0, len(derivedProvided))
	for _, p := range derivedProvided {
		pool.DerivedProvidedProducts = append(pool.DerivedProvidedProducts, pooldomain.DerivedProvidedProduct{
			PoolID:      pool.ID,
			ProductID:   p.ID,
			ProductName: p.Name,
		})
	}

	return pool, nil
}

// resolveProvided resolves ids in order, collapsing duplicates.
func (r *Resolver) resolveProvided(ctx context.Context, owner *ownerdomain.Owner, ids []string) ([]*productdomain.Product, error) {
	out := make([]*productdomain.Product, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		product, err := r.ResolveProductID(ctx, owner, id)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[product.ID]; ok {
			continue
		}
		seen[product.ID] = struct{}{}
		out = append(out, product)
	}
	return out, nil
}

func providedIDs(in []pooldomain.ProvidedProduct) []string {
	ids := make([]string, 0, len(in))
	for _, pp := range in {
		ids = append(ids, pp.ProductID)
	}
	return ids
}

func derivedProvidedIDs(in []pooldomain.DerivedProvidedProduct) []string {
	ids := make([]string, 0, len(in))
	for _, pp := range in {
		ids = append(ids, pp.ProductID)
	}
	return ids
}

// ValidateProductData checks that data names an existing product. A UUID is
// resolved globally and back-fills data.ID; otherwise data.ID is resolved
// within owner. A nil data passes only when allowNull is set.
func (r *Resolver) ValidateProductData(ctx context.Context, data *productdomain.Product, owner *ownerdomain.Owner, allowNull bool) error {
	product, err := r.validateProductData(ctx, data, owner, allowNull)
	if err != nil {
		return err
	}
	if product != nil {
		data.ID = product.ID
	}
	return nil
}

func (r *Resolver) validateProductData(ctx context.Context, data *productdomain.Product, owner *ownerdomain.Owner, allowNull bool) (*productdomain.Product, error) {
	if data == nil {
		if allowNull {
			return nil, nil
		}
		return nil, r.fail(ctx, "product", apperror.BadRequest("No product specified, or product lacks identifying information"))
	}

	switch {
	case data.UUID != "":
		product, err := r.products.LookupByUUID(ctx, data.UUID)
		if err != nil {
			return nil, err
		}
		if product == nil {
			return nil, r.fail(ctx, "product", apperror.NotFound("Unable to find a product with the UUID %q", data.UUID))
		}
		return product, nil
	case data.ID != "":
		return r.findProduct(ctx, owner, data.ID)
	default:
		return nil, r.fail(ctx, "product", apperror.BadRequest("No product specified, or product lacks identifying information"))
	}
}

// ResolveSubscription resolves the subscription's owner and validates its
// product graph, replacing every reference with the product it names. The
// subscription is only modified once everything has resolved. Its own
// existence is not checked.
func (r *Resolver) ResolveSubscription(ctx context.Context, sub *subscriptiondomain.Subscription) (*subscriptiondomain.Subscription, error) {
	if sub == nil {
		return nil, r.fail(ctx, "subscription", apperror.BadRequest("No subscription specified"))
	}

	ownerRef := sub.Owner
	if ownerRef == nil && sub.OwnerID != 0 {
		ownerRef = &ownerdomain.Owner{ID: sub.OwnerID}
	}
	owner, err := r.ResolveOwner(ctx, ownerRef)
	if err != nil {
		return nil, err
	}

	productRef := sub.Product
	if productRef == nil && sub.ProductID != "" {
		productRef = productdomain.Ref(sub.ProductID)
	}
	product, err := r.validateProductData(ctx, productRef, owner, false)
	if err != nil {
		return nil, err
	}

	derivedRef := sub.DerivedProduct
	if derivedRef == nil && sub.DerivedProductID != nil {
		derivedRef = productdomain.Ref(*sub.DerivedProductID)
	}
	derived, err := r.validateProductData(ctx, derivedRef, owner, true)
	if err != nil {
		return nil, err
	}

	provided, err := r.validateAll(ctx, sub.ProvidedProducts, owner)
	if err != nil {
		return nil, err
	}
	derivedProvided, err := r.validateAll(ctx, sub.DerivedProvidedProducts, owner)
	if err != nil {
		return nil, err
	}

	sub.Owner = owner
	sub.OwnerID = owner.ID
	sub.Product = product
	sub.DerivedProduct = derived
	sub.ProvidedProducts = provided
	sub.DerivedProvidedProducts = derivedProvided
	sub.SyncProductIDs()

	return sub, nil
}

// validateAll validates each entry, allowing nils, and returns the resolved
// products with nils and duplicates dropped.
func (r *Resolver) validateAll(ctx context.Context, refs []*productdomain.Product, owner *ownerdomain.Owner) ([]*productdomain.Product, error) {
	out := make([]*productdomain.Product, 0, len(refs))
	seen := make(map[string]struct{}, len(refs))
	for _, ref := range refs {
		product, err := r.validateProductData(ctx, ref, owner, true)
		if err != nil {
			return nil, err
		}
		if product == nil {
			continue
		}
		if _, ok := seen[product.ID]; ok {
			continue
		}
		seen[product.ID] = struct{}{}
		out = append(out, product)
	}
	return out, nil
}

func (r *Resolver) fail(ctx context.Context, entity string, err error) error {
	r.metrics.RecordResolutionFailure(ctx, entity, string(apperror.KindOf(err)))
	r.log.Debug("reference resolution failed", zap.String("entity", entity), zap.Error(err))
	return err
}
