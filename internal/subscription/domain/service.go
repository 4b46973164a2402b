package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	pooldomain "github.com/smallbiznis/entitlepool/internal/pool/domain"
)

type Service interface {
	// Create resolves the request's references, persists the subscription
	// and derives its pool.
	Create(ctx context.Context, req CreateRequest) (*CreateResponse, error)
	Get(ctx context.Context, id snowflake.ID) (*Subscription, error)
	// Refresh brings every pool of the subscription in line with its current
	// product graph, creating the pool when none exists.
	Refresh(ctx context.Context, id snowflake.ID) ([]pooldomain.Pool, error)
}

// OwnerRef identifies an owner by key or ID. Key wins when both are set.
type OwnerRef struct {
	Key string `json:"key"`
	ID  string `json:"id"`
}

// ProductRef identifies a product by global UUID or by owner-scoped ID.
type ProductRef struct {
	ID   string `json:"id"`
	UUID string `json:"uuid"`
}

type CreateRequest struct {
	Owner                   *OwnerRef      `json:"owner"`
	Product                 *ProductRef    `json:"product"`
	DerivedProduct          *ProductRef    `json:"derived_product"`
	ProvidedProducts        []*ProductRef  `json:"provided_products"`
	DerivedProvidedProducts []*ProductRef  `json:"derived_provided_products"`
	Quantity                int64          `json:"quantity"`
	StartDate               time.Time      `json:"start_date"`
	EndDate                 time.Time      `json:"end_date"`
	ContractNumber          string         `json:"contract_number"`
	AccountNumber           string         `json:"account_number"`
	OrderNumber             string         `json:"order_number"`
	Metadata                map[string]any `json:"metadata"`
}

type CreateResponse struct {
	Subscription Subscription    `json:"subscription"`
	Pool         pooldomain.Pool `json:"pool"`
}

var (
	ErrInvalidOwnerID  = errors.New("invalid_owner_id")
	ErrInvalidQuantity = errors.New("invalid_quantity")
	ErrInvalidPeriod   = errors.New("invalid_period")
	ErrNotFound        = errors.New("subscription_not_found")
)
