package catalog

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/entitlepool/internal/config"
	"github.com/smallbiznis/entitlepool/internal/product/domain"
	"github.com/smallbiznis/entitlepool/internal/product/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupCatalog(t *testing.T) (domain.Catalog, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&domain.Product{}))

	return New(Params{
		DB:   db,
		Log:  zap.NewNop(),
		Repo: repository.Provide(),
		Cfg:  config.Config{CatalogCacheTTL: time.Minute},
	}), db
}

func TestGetProductByIDIsOwnerScoped(t *testing.T) {
	catalog, db := setupCatalog(t)
	now := time.Now().UTC()
	require.NoError(t, db.Create(&domain.Product{UUID: "u-1", OwnerID: 1, ID: "RH001", Name: "Owner One Gold", Multiplier: 1, CreatedAt: now.Add(-time.Hour)}).Error)
	require.NoError(t, db.Create(&domain.Product{UUID: "u-2", OwnerID: 2, ID: "RH001", Name: "Owner Two Silver", Multiplier: 1, CreatedAt: now}).Error)

	p, err := catalog.GetProductByID(context.Background(), 2, "RH001")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "Owner Two Silver", p.Name)
	assert.Equal(t, "u-2", p.UUID)
	assert.Equal(t, snowflake.ID(2), p.OwnerID)

	p, err = catalog.GetProductByID(context.Background(), 1, "RH001")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "Owner One Gold", p.Name)

	p, err = catalog.GetProductByID(context.Background(), 3, "RH001")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestCacheKeyIncludesOwner(t *testing.T) {
	assert.Equal(t, "entitlepool:catalog:product:1:RH001", cacheKey(1, "RH001"))
	assert.NotEqual(t, cacheKey(1, "RH001"), cacheKey(2, "RH001"))
}

func TestGetProductByIDMissing(t *testing.T) {
	catalog, _ := setupCatalog(t)

	p, err := catalog.GetProductByID(context.Background(), 1, "NOPE")
	assert.NoError(t, err)
	assert.Nil(t, p)
}

func TestGetProductByIDReturnsCopies(t *testing.T) {
	catalog, db := setupCatalog(t)
	require.NoError(t, db.Create(&domain.Product{
		UUID: "u-1", OwnerID: 1, ID: "RH001", Name: "Enterprise", Multiplier: 1,
		Attributes: map[string]string{"sockets": "2"},
	}).Error)

	first, err := catalog.GetProductByID(context.Background(), 1, "RH001")
	require.NoError(t, err)
	first.Attributes["sockets"] = "64"
	first.Name = "Mutated"

	second, err := catalog.GetProductByID(context.Background(), 1, "RH001")
	require.NoError(t, err)
	assert.Equal(t, "Enterprise", second.Name)
	assert.Equal(t, "2", second.Attributes["sockets"])
}

func TestEntryProductCopiesAttributes(t *testing.T) {
	e := &entry{ID: "RH001", Name: "Enterprise", Attributes: map[string]string{"arch": "x86_64"}}

	p := e.product()
	p.Attributes["arch"] = "s390x"

	assert.Equal(t, "x86_64", e.Attributes["arch"])
}
