package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, owner *Owner) error
	FindByKey(ctx context.Context, db *gorm.DB, key string) (*Owner, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Owner, error)
	List(ctx context.Context, db *gorm.DB) ([]Owner, error)
}
