package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Owner, error)
	List(ctx context.Context) ([]Owner, error)
	LookupByKey(ctx context.Context, key string) (*Owner, error)
	LookupByID(ctx context.Context, id snowflake.ID) (*Owner, error)
}

// CreateRequest registers an owner. Key defaults to a slug of DisplayName.
type CreateRequest struct {
	Key         string `json:"key"`
	DisplayName string `json:"display_name"`
}

var (
	ErrInvalidName = errors.New("invalid_name")
	ErrInvalidKey  = errors.New("invalid_key")
	ErrKeyTaken    = errors.New("owner_key_taken")
)
