// Package domain contains persistence models for subscriptions.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	ownerdomain "github.com/smallbiznis/entitlepool/internal/owner/domain"
	productdomain "github.com/smallbiznis/entitlepool/internal/product/domain"
	"gorm.io/datatypes"
)

// Subscription is the commercial agreement backing one or more pools.
type Subscription struct {
	ID                        snowflake.ID      `gorm:"primaryKey" json:"id"`
	OwnerID                   snowflake.ID      `gorm:"not null;index" json:"owner_id"`
	ProductID                 string            `gorm:"type:text;not null" json:"product_id"`
	DerivedProductID          *string           `gorm:"type:text" json:"derived_product_id,omitempty"`
	ProvidedProductIDs        []string          `gorm:"type:jsonb;serializer:json" json:"-"`
	DerivedProvidedProductIDs []string          `gorm:"type:jsonb;serializer:json" json:"-"`
	Quantity                  int64             `gorm:"not null" json:"quantity"`
	StartDate                 time.Time         `gorm:"not null" json:"start_date"`
	EndDate                   time.Time         `gorm:"not null" json:"end_date"`
	ContractNumber            string            `gorm:"type:text" json:"contract_number,omitempty"`
	AccountNumber             string            `gorm:"type:text" json:"account_number,omitempty"`
	OrderNumber               string            `gorm:"type:text" json:"order_number,omitempty"`
	Metadata                  datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt                 time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt                 time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`

	// Product graph, either as references from a request or as resolved
	// products after resolution. Entries of the provided collections may be
	// nil in a request.
	Owner                   *ownerdomain.Owner       `gorm:"-" json:"owner,omitempty"`
	Product                 *productdomain.Product   `gorm:"-" json:"product,omitempty"`
	DerivedProduct          *productdomain.Product   `gorm:"-" json:"derived_product,omitempty"`
	ProvidedProducts        []*productdomain.Product `gorm:"-" json:"provided_products,omitempty"`
	DerivedProvidedProducts []*productdomain.Product `gorm:"-" json:"derived_provided_products,omitempty"`
}

func (Subscription) TableName() string { return "subscriptions" }

// SyncProductIDs copies the product graph's IDs onto the persisted columns.
func (s *Subscription) SyncProductIDs() {
	if s.Product != nil {
		s.ProductID = s.Product.ID
	}
	s.DerivedProductID = nil
	if s.DerivedProduct != nil {
		id := s.DerivedProduct.ID
		s.DerivedProductID = &id
	}
	s.ProvidedProductIDs = productIDs(s.ProvidedProducts)
	s.DerivedProvidedProductIDs = productIDs(s.DerivedProvidedProducts)
}

func productIDs(products []*productdomain.Product) []string {
	ids := make([]string, 0, len(products))
	for _, p := range products {
		if p != nil {
			ids = append(ids, p.ID)
		}
	}
	return ids
}
