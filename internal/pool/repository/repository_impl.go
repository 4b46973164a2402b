package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	pooldomain "github.com/smallbiznis/entitlepool/internal/pool/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() pooldomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, pool *pooldomain.Pool) error {
	return db.WithContext(ctx).Create(pool).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, pool *pooldomain.Pool) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Save(pool).Error; err != nil {
			return err
		}

		children := []any{
			&pooldomain.ProvidedProduct{},
			&pooldomain.DerivedProvidedProduct{},
			&pooldomain.PoolAttribute{},
			&pooldomain.ProductPoolAttribute{},
		}
		for _, model := range children {
			if err := tx.Where("pool_id = ?", pool.ID).Delete(model).Error; err != nil {
				return err
			}
		}

		if len(pool.ProvidedProducts) > 0 {
			if err := tx.Create(&pool.ProvidedProducts).Error; err != nil {
				return err
			}
		}
		if len(pool.DerivedProvidedProducts) > 0 {
			if err := tx.Create(&pool.DerivedProvidedProducts).Error; err != nil {
				return err
			}
		}
		if len(pool.Attributes) > 0 {
			if err := tx.Create(&pool.Attributes).Error; err != nil {
				return err
			}
		}
		if len(pool.ProductAttributes) > 0 {
			if err := tx.Create(&pool.ProductAttributes).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*pooldomain.Pool, error) {
	var pool pooldomain.Pool
	err := preload(db.WithContext(ctx)).Where("id = ?", id).First(&pool).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &pool, nil
}

func (r *repo) LockByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*pooldomain.Pool, error) {
	var pool pooldomain.Pool
	err := db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&pool).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &pool, nil
}

func (r *repo) ListBySubscription(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID) ([]pooldomain.Pool, error) {
	var items []pooldomain.Pool
	err := preload(db.WithContext(ctx)).
		Where("subscription_id = ?", subscriptionID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) InsertEntitlement(ctx context.Context, db *gorm.DB, entitlement *pooldomain.Entitlement) error {
	return db.WithContext(ctx).Create(entitlement).Error
}

func (r *repo) FindEntitlement(ctx context.Context, db *gorm.DB, id string) (*pooldomain.Entitlement, error) {
	var entitlement pooldomain.Entitlement
	err := db.WithContext(ctx).Where("id = ?", id).First(&entitlement).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entitlement, nil
}

func (r *repo) ConsumedQuantity(ctx context.Context, db *gorm.DB, poolID snowflake.ID) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&pooldomain.Entitlement{}).
		Where("pool_id = ?", poolID).
		Select("COALESCE(SUM(quantity), 0)").
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}

func preload(db *gorm.DB) *gorm.DB {
	return db.
		Preload("ProvidedProducts", orderBy("product_id")).
		Preload("DerivedProvidedProducts", orderBy("product_id")).
		Preload("Attributes", orderBy("name")).
		Preload("ProductAttributes", orderBy("name"))
}

func orderBy(column string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Order(column)
	}
}
