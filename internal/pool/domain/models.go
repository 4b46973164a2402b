// Package domain contains persistence models for pools and entitlements.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	ownerdomain "github.com/smallbiznis/entitlepool/internal/owner/domain"
	productdomain "github.com/smallbiznis/entitlepool/internal/product/domain"
)

// Unlimited is the quantity sentinel for pools without a consumption cap.
const Unlimited int64 = -1

// Pool is a time-bounded grant of entitlement capacity for one product and
// the products it provides, scoped to one owner.
type Pool struct {
	ID                   snowflake.ID  `gorm:"primaryKey" json:"id"`
	OwnerID              snowflake.ID  `gorm:"not null;index" json:"owner_id"`
	ProductID            string        `gorm:"type:text;not null;index" json:"product_id"`
	ProductName          string        `gorm:"type:text;not null" json:"product_name"`
	DerivedProductID     *string       `gorm:"type:text" json:"derived_product_id,omitempty"`
	DerivedProductName   *string       `gorm:"type:text" json:"derived_product_name,omitempty"`
	Quantity             int64         `gorm:"not null" json:"quantity"`
	StartDate            time.Time     `gorm:"not null" json:"start_date"`
	EndDate              time.Time     `gorm:"not null" json:"end_date"`
	ContractNumber       string        `gorm:"type:text" json:"contract_number,omitempty"`
	AccountNumber        string        `gorm:"type:text" json:"account_number,omitempty"`
	SubscriptionID       *snowflake.ID `gorm:"index" json:"subscription_id,omitempty"`
	SourceEntitlementID  *string       `gorm:"type:text;index" json:"source_entitlement_id,omitempty"`
	RestrictedToUsername *string       `gorm:"type:text" json:"restricted_to_username,omitempty"`
	CreatedAt            time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt            time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`

	ProvidedProducts        []ProvidedProduct        `gorm:"foreignKey:PoolID;constraint:OnDelete:CASCADE" json:"provided_products"`
	DerivedProvidedProducts []DerivedProvidedProduct `gorm:"foreignKey:PoolID;constraint:OnDelete:CASCADE" json:"derived_provided_products"`
	Attributes              []PoolAttribute          `gorm:"foreignKey:PoolID;constraint:OnDelete:CASCADE" json:"attributes"`
	ProductAttributes       []ProductPoolAttribute   `gorm:"foreignKey:PoolID;constraint:OnDelete:CASCADE" json:"product_attributes"`

	// References resolved for the current request; not persisted.
	Owner          *ownerdomain.Owner     `gorm:"-" json:"-"`
	Product        *productdomain.Product `gorm:"-" json:"-"`
	DerivedProduct *productdomain.Product `gorm:"-" json:"-"`
}

func (Pool) TableName() string { return "pools" }

// ProvidedProduct is a pool's own copy of a bundled product's identity.
type ProvidedProduct struct {
	PoolID      snowflake.ID `gorm:"primaryKey" json:"-"`
	ProductID   string       `gorm:"primaryKey;type:text" json:"product_id"`
	ProductName string       `gorm:"type:text;not null" json:"product_name"`
}

func (ProvidedProduct) TableName() string { return "pool_provided_products" }

// DerivedProvidedProduct is a product provided by the pool's derived product.
type DerivedProvidedProduct struct {
	PoolID      snowflake.ID `gorm:"primaryKey" json:"-"`
	ProductID   string       `gorm:"primaryKey;type:text" json:"product_id"`
	ProductName string       `gorm:"type:text;not null" json:"product_name"`
}

func (DerivedProvidedProduct) TableName() string { return "pool_derived_provided_products" }

// PoolAttribute is an attribute set directly on the pool.
type PoolAttribute struct {
	PoolID snowflake.ID `gorm:"primaryKey" json:"-"`
	Name   string       `gorm:"primaryKey;type:text" json:"name"`
	Value  string       `gorm:"type:text;not null" json:"value"`
}

func (PoolAttribute) TableName() string { return "pool_attributes" }

// ProductPoolAttribute is a cached product attribute and the product it came from.
type ProductPoolAttribute struct {
	PoolID    snowflake.ID `gorm:"primaryKey" json:"-"`
	Name      string       `gorm:"primaryKey;type:text" json:"name"`
	Value     string       `gorm:"type:text;not null" json:"value"`
	ProductID string       `gorm:"type:text;not null" json:"product_id"`
}

func (ProductPoolAttribute) TableName() string { return "pool_product_attributes" }

// Consumer identifies the system or person holding an entitlement.
type Consumer struct {
	UUID     string `gorm:"type:text;not null;index" json:"uuid"`
	Username string `gorm:"type:text" json:"username,omitempty"`
}

// Entitlement is a consumer's claim against a pool.
type Entitlement struct {
	ID        string       `gorm:"primaryKey;type:text" json:"id"`
	PoolID    snowflake.ID `gorm:"not null;index" json:"pool_id"`
	OwnerID   snowflake.ID `gorm:"not null;index" json:"owner_id"`
	Consumer  Consumer     `gorm:"embedded;embeddedPrefix:consumer_" json:"consumer"`
	Quantity  int64        `gorm:"not null" json:"quantity"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (Entitlement) TableName() string { return "entitlements" }
