package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	// Create resolves every reference on pool and persists it.
	Create(ctx context.Context, pool *Pool) (*Pool, error)
	// CreatePool persists an already-resolved pool.
	CreatePool(ctx context.Context, pool *Pool) (*Pool, error)
	UpdatePool(ctx context.Context, pool *Pool) (*Pool, error)
	Get(ctx context.Context, id snowflake.ID) (*Pool, error)
	ListBySubscription(ctx context.Context, subscriptionID snowflake.ID) ([]Pool, error)
	Entitle(ctx context.Context, poolID snowflake.ID, req EntitleRequest) (*EntitleResponse, error)
}

type EntitleRequest struct {
	ConsumerUUID     string `json:"consumer_uuid"`
	ConsumerUsername string `json:"consumer_username"`
	Quantity         int64  `json:"quantity"`
}

type EntitleResponse struct {
	Entitlement Entitlement `json:"entitlement"`
	// UserRestrictedPool is set when the entitlement carved out a user-restricted pool.
	UserRestrictedPool *Pool `json:"user_restricted_pool,omitempty"`
}

// Attribute names with meaning to pool derivation.
const (
	AttrRequiresConsumerType = "requires_consumer_type"
	AttrUserLicense          = "user_license"
	AttrUserLicenseProduct   = "user_license_product"
)

var (
	ErrNotFound         = errors.New("not_found")
	ErrInvalidConsumer  = errors.New("invalid_consumer")
	ErrInvalidQuantity  = errors.New("invalid_quantity")
	ErrInsufficientPool = errors.New("insufficient_pool_quantity")
)
