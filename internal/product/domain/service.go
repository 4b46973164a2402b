package domain

import (
	"context"
	"errors"

	ownerdomain "github.com/smallbiznis/entitlepool/internal/owner/domain"
)

type Service interface {
	Create(ctx context.Context, owner *ownerdomain.Owner, req CreateRequest) (*Product, error)
	List(ctx context.Context, owner *ownerdomain.Owner) ([]Product, error)
	LookupByOwnerAndID(ctx context.Context, owner *ownerdomain.Owner, productID string) (*Product, error)
	LookupByUUID(ctx context.Context, uuid string) (*Product, error)
}

type CreateRequest struct {
	ID                  string            `json:"id"`
	Name                string            `json:"name"`
	Multiplier          *int64            `json:"multiplier"`
	Attributes          map[string]string `json:"attributes"`
	DependentProductIDs []string          `json:"dependent_product_ids"`
	ProvidedProductIDs  []string          `json:"provided_product_ids"`
	DerivedProductID    *string           `json:"derived_product_id"`
}

var (
	ErrInvalidID         = errors.New("invalid_id")
	ErrInvalidName       = errors.New("invalid_name")
	ErrInvalidMultiplier = errors.New("invalid_multiplier")
	ErrDuplicateProduct  = errors.New("duplicate_product")
)
