package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/entitlepool/internal/product/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, product *domain.Product) error {
	return db.WithContext(ctx).Create(product).Error
}

func (r *repo) FindByOwnerAndID(ctx context.Context, db *gorm.DB, ownerID snowflake.ID, productID string) (*domain.Product, error) {
	return first(db.WithContext(ctx).Where("owner_id = ? AND product_id = ?", ownerID, productID))
}

func (r *repo) FindByUUID(ctx context.Context, db *gorm.DB, uuid string) (*domain.Product, error) {
	return first(db.WithContext(ctx).Where("uuid = ?", uuid))
}

func (r *repo) List(ctx context.Context, db *gorm.DB, ownerID snowflake.ID) ([]domain.Product, error) {
	var items []domain.Product
	err := db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("product_id ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func first(stmt *gorm.DB) (*domain.Product, error) {
	var p domain.Product
	if err := stmt.First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}
