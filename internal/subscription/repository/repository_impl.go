package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	subscriptiondomain "github.com/smallbiznis/entitlepool/internal/subscription/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() subscriptiondomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, subscription *subscriptiondomain.Subscription) error {
	return db.WithContext(ctx).Create(subscription).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*subscriptiondomain.Subscription, error) {
	var subscription subscriptiondomain.Subscription
	err := db.WithContext(ctx).Where("id = ?", id).First(&subscription).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &subscription, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, ownerID snowflake.ID) ([]subscriptiondomain.Subscription, error) {
	var items []subscriptiondomain.Subscription
	if err := db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at ASC").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListActiveAfter(ctx context.Context, db *gorm.DB, after snowflake.ID, now time.Time, limit int) ([]subscriptiondomain.Subscription, error) {
	var items []subscriptiondomain.Subscription
	if err := db.WithContext(ctx).
		Where("id > ? AND end_date >= ?", after, now).
		Order("id ASC").
		Limit(limit).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}
