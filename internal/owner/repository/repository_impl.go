package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/entitlepool/internal/owner/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, owner *domain.Owner) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO owners (id, owner_key, display_name, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		owner.ID,
		owner.Key,
		owner.DisplayName,
		owner.CreatedAt,
		owner.UpdatedAt,
	).Error
}

func (r *repo) FindByKey(ctx context.Context, db *gorm.DB, key string) (*domain.Owner, error) {
	var o domain.Owner
	err := db.WithContext(ctx).Raw(
		`SELECT id, owner_key, display_name, created_at, updated_at
		 FROM owners WHERE owner_key = ?`,
		key,
	).Scan(&o).Error
	if err != nil {
		return nil, err
	}
	if o.ID == 0 {
		return nil, nil
	}
	return &o, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Owner, error) {
	var o domain.Owner
	err := db.WithContext(ctx).Raw(
		`SELECT id, owner_key, display_name, created_at, updated_at
		 FROM owners WHERE id = ?`,
		id,
	).Scan(&o).Error
	if err != nil {
		return nil, err
	}
	if o.ID == 0 {
		return nil, nil
	}
	return &o, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB) ([]domain.Owner, error) {
	var items []domain.Owner
	err := db.WithContext(ctx).Raw(
		`SELECT id, owner_key, display_name, created_at, updated_at
		 FROM owners ORDER BY created_at ASC`,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
