package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/entitlepool/internal/apperror"
	"github.com/smallbiznis/entitlepool/internal/config"
	"github.com/smallbiznis/entitlepool/internal/observability/metrics"
	"github.com/smallbiznis/entitlepool/internal/pool/domain"
	"github.com/smallbiznis/entitlepool/internal/pool/factory"
	"github.com/smallbiznis/entitlepool/internal/pool/reconcile"
	productdomain "github.com/smallbiznis/entitlepool/internal/product/domain"
	"github.com/smallbiznis/entitlepool/internal/resolver"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Repo     domain.Repository
	Resolver *resolver.Resolver
	Catalog  productdomain.Catalog
	Policy   *config.PolicyHolder
	Metrics  *metrics.Metrics `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	repo     domain.Repository
	resolver *resolver.Resolver
	catalog  productdomain.Catalog
	policy   *config.PolicyHolder
	metrics  *metrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("pool.service"),
		genID:    p.GenID,
		repo:     p.Repo,
		resolver: p.Resolver,
		catalog:  p.Catalog,
		policy:   p.Policy,
		metrics:  p.Metrics,
	}
}

// Create resolves pool, mirrors its product's attributes onto it and
// persists it. An explicit requires_consumer_type attribute is kept.
func (s *Service) Create(ctx context.Context, pool *domain.Pool) (*domain.Pool, error) {
	resolved, err := s.resolver.ResolvePool(ctx, pool)
	if err != nil {
		return nil, err
	}
	if _, ok := resolved.Attribute(domain.AttrRequiresConsumerType); !ok {
		factory.StampConsumerType(resolved)
	}
	s.metrics.RecordReconciliation(ctx, reconcile.Reconcile(resolved.Product, resolved))
	return s.CreatePool(ctx, resolved)
}

func (s *Service) CreatePool(ctx context.Context, pool *domain.Pool) (*domain.Pool, error) {
	return s.createPool(ctx, s.db, pool)
}

func (s *Service) createPool(ctx context.Context, db *gorm.DB, pool *domain.Pool) (*domain.Pool, error) {
	if pool.Quantity < domain.Unlimited {
		return nil, domain.ErrInvalidQuantity
	}

	now := time.Now().UTC()
	pool.AssignID(s.genID.Generate())
	pool.CreatedAt = now
	pool.UpdatedAt = now

	if err := s.repo.Insert(ctx, db, pool); err != nil {
		return nil, err
	}

	source := "direct"
	switch {
	case pool.SourceEntitlementID != nil:
		source = "entitlement"
	case pool.SubscriptionID != nil:
		source = "subscription"
	}
	s.metrics.RecordPoolCreated(ctx, source)

	s.log.Info("pool created",
		zap.String("pool_id", pool.ID.String()),
		zap.String("product_id", pool.ProductID),
		zap.Int64("quantity", pool.Quantity),
		zap.String("source", source),
	)
	return pool, nil
}

func (s *Service) UpdatePool(ctx context.Context, pool *domain.Pool) (*domain.Pool, error) {
	if pool.ID == 0 {
		return nil, domain.ErrNotFound
	}
	if pool.Quantity < domain.Unlimited {
		return nil, domain.ErrInvalidQuantity
	}

	pool.AssignID(pool.ID)
	pool.UpdatedAt = time.Now().UTC()
	if err := s.repo.Update(ctx, s.db, pool); err != nil {
		return nil, err
	}

	s.log.Info("pool updated", zap.String("pool_id", pool.ID.String()))
	return pool, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.Pool, error) {
	pool, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if pool == nil {
		return nil, domain.ErrNotFound
	}
	return pool, nil
}

func (s *Service) ListBySubscription(ctx context.Context, subscriptionID snowflake.ID) ([]domain.Pool, error) {
	return s.repo.ListBySubscription(ctx, s.db, subscriptionID)
}

// Entitle records a consumer's claim against a pool. Pools carrying the
// user_license attribute also get a pool restricted to the consumer's user,
// sized by that attribute.
func (s *Service) Entitle(ctx context.Context, poolID snowflake.ID, req domain.EntitleRequest) (*domain.EntitleResponse, error) {
	consumer := domain.Consumer{
		UUID:     strings.TrimSpace(req.ConsumerUUID),
		Username: strings.TrimSpace(req.ConsumerUsername),
	}
	if consumer.UUID == "" {
		return nil, domain.ErrInvalidConsumer
	}
	quantity := req.Quantity
	if quantity == 0 {
		quantity = 1
	}
	if quantity < 0 {
		return nil, domain.ErrInvalidQuantity
	}

	pool, err := s.Get(ctx, poolID)
	if err != nil {
		return nil, err
	}

	policy := s.policy.Get()
	userQuantity, userLicensed := lookupAttribute(pool, domain.AttrUserLicense)
	userLicensed = userLicensed && policy.UserLicense
	if userLicensed && consumer.Username == "" {
		return nil, domain.ErrInvalidConsumer
	}

	resp := &domain.EntitleResponse{}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := s.repo.LockByID(ctx, tx, pool.ID)
		if err != nil {
			return err
		}
		if locked == nil {
			return domain.ErrNotFound
		}
		if !locked.IsUnlimited() {
			consumed, err := s.repo.ConsumedQuantity(ctx, tx, pool.ID)
			if err != nil {
				return err
			}
			if consumed+quantity > locked.Quantity {
				return domain.ErrInsufficientPool
			}
		}

		entitlement := domain.Entitlement{
			ID:        ulid.Make().String(),
			PoolID:    pool.ID,
			OwnerID:   pool.OwnerID,
			Consumer:  consumer,
			Quantity:  quantity,
			CreatedAt: time.Now().UTC(),
		}
		if err := s.repo.InsertEntitlement(ctx, tx, &entitlement); err != nil {
			return err
		}
		resp.Entitlement = entitlement

		if !userLicensed {
			return nil
		}

		productID, ok := lookupAttribute(pool, domain.AttrUserLicenseProduct)
		if !ok || productID == "" {
			productID = pool.ProductID
		}
		helper := factory.NewHelper(s.catalog, txPersister{s: s, tx: tx}, factory.PolicyFor(policy.QuantityPolicy)).
			WithSourceEntitlement(&entitlement)
		restricted, err := helper.CreateUserRestrictedPool(ctx, productID, pool, userQuantity)
		if err != nil {
			return err
		}
		resp.UserRestrictedPool = restricted
		return nil
	})
	if err != nil {
		if !errors.Is(err, domain.ErrInsufficientPool) && !errors.Is(err, apperror.ErrNotFound) {
			s.log.Error("entitlement failed", zap.String("pool_id", pool.ID.String()), zap.Error(err))
		}
		return nil, err
	}

	s.metrics.RecordEntitlement(ctx, resp.UserRestrictedPool != nil)
	s.log.Info("entitlement created",
		zap.String("entitlement_id", resp.Entitlement.ID),
		zap.String("pool_id", pool.ID.String()),
		zap.String("consumer_uuid", consumer.UUID),
		zap.Bool("user_restricted_pool", resp.UserRestrictedPool != nil),
	)
	return resp, nil
}

// lookupAttribute prefers the product-derived attribute over the pool's own.
func lookupAttribute(pool *domain.Pool, name string) (string, bool) {
	if attr, ok := pool.ProductAttribute(name); ok {
		return attr.Value, true
	}
	return pool.Attribute(name)
}

type txPersister struct {
	s  *Service
	tx *gorm.DB
}

func (p txPersister) CreatePool(ctx context.Context, pool *domain.Pool) (*domain.Pool, error) {
	return p.s.createPool(ctx, p.tx, pool)
}
