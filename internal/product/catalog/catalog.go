// Package catalog adapts the product store into the upstream catalog used
// to snapshot product display names onto pools.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/golang/snappy"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/entitlepool/internal/config"
	"github.com/smallbiznis/entitlepool/internal/product/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

const keyPrefix = "entitlepool:catalog:product:"

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Repo  domain.Repository
	Cfg   config.Config
	Redis *redis.Client `optional:"true"`
}

type Catalog struct {
	db    *gorm.DB
	log   *zap.Logger
	repo  domain.Repository
	redis *redis.Client
	ttl   time.Duration
	group singleflight.Group
}

// entry is the cached projection of a product; the catalog only serves
// identity, naming and attributes.
type entry struct {
	OwnerID    snowflake.ID      `json:"owner_id"`
	UUID       string            `json:"uuid"`
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Multiplier int64             `json:"multiplier"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

func New(p Params) domain.Catalog {
	return &Catalog{
		db:    p.DB,
		log:   p.Log.Named("product.catalog"),
		repo:  p.Repo,
		redis: p.Redis,
		ttl:   p.Cfg.CatalogCacheTTL,
	}
}

// GetProductByID returns nil without error when the owner has no such
// product. Every caller receives its own copy.
func (c *Catalog) GetProductByID(ctx context.Context, ownerID snowflake.ID, productID string) (*domain.Product, error) {
	key := cacheKey(ownerID, productID)
	if e, ok := c.fromCache(ctx, key); ok {
		return e.product(), nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		p, err := c.repo.FindByOwnerAndID(ctx, c.db, ownerID, productID)
		if err != nil || p == nil {
			return nil, err
		}
		e := &entry{
			OwnerID:    p.OwnerID,
			UUID:       p.UUID,
			ID:         p.ID,
			Name:       p.Name,
			Multiplier: p.Multiplier,
			Attributes: p.Attributes,
		}
		c.store(ctx, e)
		return e, nil
	})
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	return v.(*entry).product(), nil
}

func cacheKey(ownerID snowflake.ID, productID string) string {
	return fmt.Sprintf("%s%d:%s", keyPrefix, ownerID, productID)
}

func (c *Catalog) fromCache(ctx context.Context, key string) (*entry, bool) {
	if c.redis == nil {
		return nil, false
	}
	raw, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("catalog cache read failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	payload, err := snappy.Decode(nil, raw)
	if err != nil {
		c.log.Warn("catalog cache entry corrupt", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	var e entry
	if err := json.Unmarshal(payload, &e); err != nil {
		c.log.Warn("catalog cache entry corrupt", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return &e, true
}

func (c *Catalog) store(ctx context.Context, e *entry) {
	if c.redis == nil || c.ttl <= 0 {
		return
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, cacheKey(e.OwnerID, e.ID), snappy.Encode(nil, payload), c.ttl).Err(); err != nil {
		c.log.Warn("catalog cache write failed", zap.String("product_id", e.ID), zap.Error(err))
	}
}

func (e *entry) product() *domain.Product {
	attrs := make(map[string]string, len(e.Attributes))
	for k, v := range e.Attributes {
		attrs[k] = v
	}
	return &domain.Product{
		OwnerID:    e.OwnerID,
		UUID:       e.UUID,
		ID:         e.ID,
		Name:       e.Name,
		Multiplier: e.Multiplier,
		Attributes: attrs,
	}
}
