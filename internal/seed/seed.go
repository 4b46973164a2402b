// Package seed bootstraps a demo owner and product catalog.
package seed

import (
	"context"
	"errors"

	ownerdomain "github.com/smallbiznis/entitlepool/internal/owner/domain"
	productdomain "github.com/smallbiznis/entitlepool/internal/product/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	DefaultOwnerKey  = "admin"
	defaultOwnerName = "Admin Owner"
)

func ptr[T any](v T) *T { return &v }

// demoCatalog is ordered so every provided or derived product precedes the
// products that reference it.
var demoCatalog = []productdomain.CreateRequest{
	{ID: "37060", Name: "Enterprise Linux Server"},
	{ID: "37068", Name: "Enterprise Linux High Availability"},
	{ID: "37091", Name: "Enterprise Linux for Guests"},
	{
		ID:                 "MKT-SVR-STD",
		Name:               "Enterprise Linux Server, Standard (2 sockets)",
		Attributes:         map[string]string{"sockets": "2", "arch": "x86_64", "support_level": "Standard", "support_type": "L1-L3"},
		ProvidedProductIDs: []string{"37060"},
	},
	{
		ID:                 "MKT-VDC",
		Name:               "Enterprise Linux for Virtual Datacenters",
		Multiplier:         ptr(int64(2)),
		Attributes:         map[string]string{"sockets": "2", "virt_limit": "unlimited", "stacking_id": "vdc"},
		ProvidedProductIDs: []string{"37060"},
		DerivedProductID:   ptr("37091"),
	},
	{
		ID:                 "MKT-DEV-SUITE",
		Name:               "Developer Suite (per user)",
		Attributes:         map[string]string{"user_license": "unlimited", "user_license_product": "37060", "requires_consumer_type": "person"},
		ProvidedProductIDs: []string{"37060", "37068"},
	},
}

type Params struct {
	fx.In

	Log      *zap.Logger
	Owners   ownerdomain.Service
	Products productdomain.Service
}

// Result reports what a seed run created.
type Result struct {
	Owner           *ownerdomain.Owner
	CreatedProducts []string
}

// EnsureDemoCatalog creates the demo owner and its products when missing.
// Running it again changes nothing.
func EnsureDemoCatalog(ctx context.Context, p Params) (*Result, error) {
	if p.Owners == nil || p.Products == nil {
		return nil, errors.New("seed requires owner and product services")
	}
	log := p.Log.Named("seed")

	owner, err := p.Owners.LookupByKey(ctx, DefaultOwnerKey)
	if err != nil {
		return nil, err
	}
	if owner == nil {
		owner, err = p.Owners.Create(ctx, ownerdomain.CreateRequest{Key: DefaultOwnerKey, DisplayName: defaultOwnerName})
		if err != nil {
			return nil, err
		}
		log.Info("seeded owner", zap.String("owner_key", owner.Key))
	}

	res := &Result{Owner: owner}
	for _, req := range demoCatalog {
		existing, err := p.Products.LookupByOwnerAndID(ctx, owner, req.ID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			continue
		}
		if _, err := p.Products.Create(ctx, owner, req); err != nil {
			return nil, err
		}
		res.CreatedProducts = append(res.CreatedProducts, req.ID)
	}

	log.Info("demo catalog ready",
		zap.String("owner_key", owner.Key),
		zap.Int("created_products", len(res.CreatedProducts)),
	)
	return res, nil
}
