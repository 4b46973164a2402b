package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, pool *Pool) error
	// Update rewrites the pool row and replaces every child collection.
	Update(ctx context.Context, db *gorm.DB, pool *Pool) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Pool, error)
	// LockByID reads the pool row under a row lock held until db commits.
	LockByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Pool, error)
	ListBySubscription(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID) ([]Pool, error)
	InsertEntitlement(ctx context.Context, db *gorm.DB, entitlement *Entitlement) error
	FindEntitlement(ctx context.Context, db *gorm.DB, id string) (*Entitlement, error)
	// ConsumedQuantity sums the quantity of every entitlement against the pool.
	ConsumedQuantity(ctx context.Context, db *gorm.DB, poolID snowflake.ID) (int64, error)
}
