package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, subscription *Subscription) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Subscription, error)
	List(ctx context.Context, db *gorm.DB, ownerID snowflake.ID) ([]Subscription, error)
	// ListActiveAfter pages through subscriptions still in effect at now, by ascending ID.
	ListActiveAfter(ctx context.Context, db *gorm.DB, after snowflake.ID, now time.Time, limit int) ([]Subscription, error)
}
