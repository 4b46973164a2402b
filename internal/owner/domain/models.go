// Package domain contains persistence models for owners.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Owner is the tenant every product, subscription and pool is scoped to.
// A reference to an owner carries a Key, an ID, or both.
type Owner struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	Key         string       `gorm:"column:owner_key;type:text;not null;uniqueIndex:ux_owners_key" json:"key"`
	DisplayName string       `gorm:"type:text;not null" json:"display_name"`
	CreatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Owner) TableName() string { return "owners" }

// HasIdentity reports whether the reference carries a key or an ID.
func (o *Owner) HasIdentity() bool {
	return o != nil && (o.Key != "" || o.ID != 0)
}
