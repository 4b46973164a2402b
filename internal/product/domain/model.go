// Package domain contains persistence models for products.
package domain

import (
	"sort"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Product is a sellable unit. ID is unique per owner, UUID is unique globally.
type Product struct {
	UUID                string            `json:"uuid" gorm:"column:uuid;primaryKey;type:text"`
	OwnerID             snowflake.ID      `json:"owner_id" gorm:"column:owner_id;not null;uniqueIndex:ux_products_owner_product,priority:1"`
	ID                  string            `json:"id" gorm:"column:product_id;type:text;not null;uniqueIndex:ux_products_owner_product,priority:2"`
	Name                string            `json:"name" gorm:"type:text;not null"`
	Multiplier          int64             `json:"multiplier" gorm:"not null;default:1"`
	Attributes          map[string]string `json:"attributes,omitempty" gorm:"type:jsonb;serializer:json"`
	DependentProductIDs []string          `json:"dependent_product_ids,omitempty" gorm:"type:jsonb;serializer:json"`
	ProvidedProductIDs  []string          `json:"-" gorm:"type:jsonb;serializer:json"`
	DerivedProductID    *string           `json:"-" gorm:"column:derived_product_id;type:text"`
	CreatedAt           time.Time         `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt           time.Time         `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`

	// Populated on lookup from ProvidedProductIDs and DerivedProductID.
	ProvidedProducts []*Product `json:"provided_products,omitempty" gorm:"-"`
	DerivedProduct   *Product   `json:"derived_product,omitempty" gorm:"-"`
}

func (Product) TableName() string { return "products" }

// Attribute returns the value of the named attribute.
func (p *Product) Attribute(name string) (string, bool) {
	if p == nil || p.Attributes == nil {
		return "", false
	}
	v, ok := p.Attributes[name]
	return v, ok
}

// AttributeNames returns the attribute names in lexical order.
func (p *Product) AttributeNames() []string {
	if p == nil {
		return nil
	}
	names := make([]string, 0, len(p.Attributes))
	for name := range p.Attributes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Ref builds an unresolved reference to a product by its owner-scoped ID.
func Ref(id string) *Product {
	return &Product{ID: id}
}

// UUIDRef builds an unresolved reference to a product by its global UUID.
func UUIDRef(uuid string) *Product {
	return &Product{UUID: uuid}
}
