package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/entitlepool/internal/config"
	"github.com/smallbiznis/entitlepool/internal/observability/metrics"
	ownerdomain "github.com/smallbiznis/entitlepool/internal/owner/domain"
	pooldomain "github.com/smallbiznis/entitlepool/internal/pool/domain"
	"github.com/smallbiznis/entitlepool/internal/pool/factory"
	productdomain "github.com/smallbiznis/entitlepool/internal/product/domain"
	"github.com/smallbiznis/entitlepool/internal/resolver"
	subscriptiondomain "github.com/smallbiznis/entitlepool/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Repo     subscriptiondomain.Repository
	PoolRepo pooldomain.Repository
	Pools    pooldomain.Service
	Resolver *resolver.Resolver
	Catalog  productdomain.Catalog
	Policy   *config.PolicyHolder
	Metrics  *metrics.Metrics `optional:"true"`
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID    *snowflake.Node
	repo     subscriptiondomain.Repository
	poolRepo pooldomain.Repository
	pools    pooldomain.Service
	resolver *resolver.Resolver
	catalog  productdomain.Catalog
	policy   *config.PolicyHolder
	metrics  *metrics.Metrics
}

func NewService(p ServiceParam) subscriptiondomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("subscription.service"),

		genID:    p.GenID,
		repo:     p.Repo,
		poolRepo: p.PoolRepo,
		pools:    p.Pools,
		resolver: p.Resolver,
		catalog:  p.Catalog,
		policy:   p.Policy,
		metrics:  p.Metrics,
	}
}

// Create stores the subscription and its pool in one transaction; nothing is
// written when any reference fails to resolve.
func (s *Service) Create(ctx context.Context, req subscriptiondomain.CreateRequest) (*subscriptiondomain.CreateResponse, error) {
	sub, err := s.fromRequest(req)
	if err != nil {
		return nil, err
	}

	if _, err := s.resolver.ResolveSubscription(ctx, sub); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	sub.ID = s.genID.Generate()
	sub.CreatedAt = now
	sub.UpdatedAt = now

	pool, err := s.helper().CreatePoolFromSubscription(ctx, sub, sub.Product.ID, poolQuantity(sub), nil)
	if err != nil {
		return nil, err
	}
	pool.AssignID(s.genID.Generate())
	pool.CreatedAt = now
	pool.UpdatedAt = now

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, sub); err != nil {
			return err
		}
		return s.poolRepo.Insert(ctx, tx, pool)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordPoolCreated(ctx, "subscription")
	s.log.Info("subscription created",
		zap.String("subscription_id", sub.ID.String()),
		zap.String("owner_key", sub.Owner.Key),
		zap.String("product_id", sub.ProductID),
		zap.String("pool_id", pool.ID.String()),
	)

	return &subscriptiondomain.CreateResponse{Subscription: *sub, Pool: *pool}, nil
}

// Get returns the subscription with its product graph resolved.
func (s *Service) Get(ctx context.Context, id snowflake.ID) (*subscriptiondomain.Subscription, error) {
	sub, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, subscriptiondomain.ErrNotFound
	}
	return s.resolver.ResolveSubscription(ctx, hydrate(sub))
}

func (s *Service) Refresh(ctx context.Context, id snowflake.ID) ([]pooldomain.Pool, error) {
	sub, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	pools, err := s.pools.ListBySubscription(ctx, sub.ID)
	if err != nil {
		return nil, err
	}

	helper := s.helper()
	quantity := poolQuantity(sub)

	if len(pools) == 0 {
		pool, err := helper.CreatePoolFromSubscription(ctx, sub, sub.Product.ID, quantity, nil)
		if err != nil {
			return nil, err
		}
		if pool, err = s.pools.CreatePool(ctx, pool); err != nil {
			return nil, err
		}
		s.metrics.RecordPoolRefreshed(ctx, "created")
		return []pooldomain.Pool{*pool}, nil
	}

	for i := range pools {
		pool := &pools[i]

		outcome := "unchanged"
		if factory.CheckForChangedProducts(pool, sub) {
			fresh, err := helper.CreatePoolFromSubscription(ctx, sub, sub.Product.ID, quantity, nil)
			if err != nil {
				return nil, err
			}
			regenerate(pool, fresh)
			outcome = "regenerated"
		} else {
			changed := factory.CollapseAttributesOntoPool(sub, pool)
			s.metrics.RecordReconciliation(ctx, changed)
			if updateTerms(pool, sub, quantity) || changed {
				outcome = "reconciled"
			}
		}

		if outcome != "unchanged" {
			if _, err := s.pools.UpdatePool(ctx, pool); err != nil {
				return nil, err
			}
		}
		s.metrics.RecordPoolRefreshed(ctx, outcome)
		s.log.Debug("pool refreshed",
			zap.String("subscription_id", sub.ID.String()),
			zap.String("pool_id", pool.ID.String()),
			zap.String("outcome", outcome),
		)
	}

	return pools, nil
}

func (s *Service) helper() *factory.Helper {
	return factory.NewHelper(s.catalog, s.pools, factory.PolicyFor(s.policy.Get().QuantityPolicy))
}

func (s *Service) fromRequest(req subscriptiondomain.CreateRequest) (*subscriptiondomain.Subscription, error) {
	if req.Quantity < pooldomain.Unlimited {
		return nil, subscriptiondomain.ErrInvalidQuantity
	}

	start := req.StartDate
	if start.IsZero() {
		start = time.Now().UTC()
	}
	if req.EndDate.IsZero() || req.EndDate.Before(start) {
		return nil, subscriptiondomain.ErrInvalidPeriod
	}

	sub := &subscriptiondomain.Subscription{
		Quantity:                req.Quantity,
		StartDate:               start.UTC(),
		EndDate:                 req.EndDate.UTC(),
		ContractNumber:          strings.TrimSpace(req.ContractNumber),
		AccountNumber:           strings.TrimSpace(req.AccountNumber),
		OrderNumber:             strings.TrimSpace(req.OrderNumber),
		Metadata:                datatypes.JSONMap(req.Metadata),
		Product:                 productRef(req.Product),
		DerivedProduct:          productRef(req.DerivedProduct),
		ProvidedProducts:        productRefs(req.ProvidedProducts),
		DerivedProvidedProducts: productRefs(req.DerivedProvidedProducts),
	}

	if req.Owner != nil {
		sub.Owner = &ownerdomain.Owner{Key: strings.TrimSpace(req.Owner.Key)}
		if raw := strings.TrimSpace(req.Owner.ID); raw != "" {
			id, err := snowflake.ParseString(raw)
			if err != nil {
				return nil, subscriptiondomain.ErrInvalidOwnerID
			}
			sub.Owner.ID = id
		}
	}
	return sub, nil
}

func productRef(ref *subscriptiondomain.ProductRef) *productdomain.Product {
	if ref == nil {
		return nil
	}
	return &productdomain.Product{
		ID:   strings.TrimSpace(ref.ID),
		UUID: strings.TrimSpace(ref.UUID),
	}
}

func productRefs(refs []*subscriptiondomain.ProductRef) []*productdomain.Product {
	out := make([]*productdomain.Product, 0, len(refs))
	for _, ref := range refs {
		out = append(out, productRef(ref))
	}
	return out
}

// hydrate rebuilds references from the stored product ID columns.
func hydrate(sub *subscriptiondomain.Subscription) *subscriptiondomain.Subscription {
	sub.Product = productdomain.Ref(sub.ProductID)
	sub.DerivedProduct = nil
	if sub.DerivedProductID != nil {
		sub.DerivedProduct = productdomain.Ref(*sub.DerivedProductID)
	}
	sub.ProvidedProducts = make([]*productdomain.Product, 0, len(sub.ProvidedProductIDs))
	for _, id := range sub.ProvidedProductIDs {
		sub.ProvidedProducts = append(sub.ProvidedProducts, productdomain.Ref(id))
	}
	sub.DerivedProvidedProducts = make([]*productdomain.Product, 0, len(sub.DerivedProvidedProductIDs))
	for _, id := range sub.DerivedProvidedProductIDs {
		sub.DerivedProvidedProducts = append(sub.DerivedProvidedProducts, productdomain.Ref(id))
	}
	return sub
}

// poolQuantity scales the subscription quantity by the product multiplier.
func poolQuantity(sub *subscriptiondomain.Subscription) string {
	if sub.Quantity < 0 {
		return factory.FormatQuantity(pooldomain.Unlimited)
	}
	multiplier := int64(1)
	if sub.Product != nil && sub.Product.Multiplier > 0 {
		multiplier = sub.Product.Multiplier
	}
	return factory.FormatQuantity(sub.Quantity * multiplier)
}

// regenerate replaces the product graph of pool with the one built in fresh.
// Identity and pool-level attributes are kept.
func regenerate(pool, fresh *pooldomain.Pool) {
	pool.ProductID = fresh.ProductID
	pool.ProductName = fresh.ProductName
	pool.DerivedProductID = fresh.DerivedProductID
	pool.DerivedProductName = fresh.DerivedProductName
	pool.ProvidedProducts = fresh.ProvidedProducts
	pool.DerivedProvidedProducts = fresh.DerivedProvidedProducts
	pool.ProductAttributes = fresh.ProductAttributes
	pool.Quantity = fresh.Quantity
	pool.StartDate = fresh.StartDate
	pool.EndDate = fresh.EndDate
	pool.ContractNumber = fresh.ContractNumber
	pool.AccountNumber = fresh.AccountNumber
	pool.AssignID(pool.ID)
}

// updateTerms copies quantity, validity window and contract metadata from
// the subscription and reports whether any of them changed.
func updateTerms(pool *pooldomain.Pool, sub *subscriptiondomain.Subscription, quantity string) bool {
	changed := false
	if q, err := factory.LenientQuantity(quantity); err == nil && q != pool.Quantity {
		pool.Quantity = q
		changed = true
	}
	if !pool.StartDate.Equal(sub.StartDate) {
		pool.StartDate = sub.StartDate
		changed = true
	}
	if !pool.EndDate.Equal(sub.EndDate) {
		pool.EndDate = sub.EndDate
		changed = true
	}
	if pool.ContractNumber != sub.ContractNumber {
		pool.ContractNumber = sub.ContractNumber
		changed = true
	}
	if pool.AccountNumber != sub.AccountNumber {
		pool.AccountNumber = sub.AccountNumber
		changed = true
	}
	return changed
}
