package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, product *Product) error
	FindByOwnerAndID(ctx context.Context, db *gorm.DB, ownerID snowflake.ID, productID string) (*Product, error)
	FindByUUID(ctx context.Context, db *gorm.DB, uuid string) (*Product, error)
	List(ctx context.Context, db *gorm.DB, ownerID snowflake.ID) ([]Product, error)
}
