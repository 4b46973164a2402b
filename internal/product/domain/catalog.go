package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

//go:generate mockgen -source=catalog.go -destination=mocks/mocks.go -package=mocks

// Catalog is the upstream product catalog used to snapshot display names.
// Product IDs are only unique within an owner.
type Catalog interface {
	GetProductByID(ctx context.Context, ownerID snowflake.ID, productID string) (*Product, error)
}
