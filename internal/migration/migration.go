package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	ownerdomain "github.com/smallbiznis/entitlepool/internal/owner/domain"
	pooldomain "github.com/smallbiznis/entitlepool/internal/pool/domain"
	productdomain "github.com/smallbiznis/entitlepool/internal/product/domain"
	subscriptiondomain "github.com/smallbiznis/entitlepool/internal/subscription/domain"
	"gorm.io/gorm"
)

const migrationsDir = "migrations"

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// RunMigrations applies the embedded postgres migrations.
func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// migrator.Close would close the shared *sql.DB.

	return nil
}

// Models lists every persisted model, in dependency order.
func Models() []any {
	return []any{
		&ownerdomain.Owner{},
		&productdomain.Product{},
		&subscriptiondomain.Subscription{},
		&pooldomain.Pool{},
		&pooldomain.ProvidedProduct{},
		&pooldomain.DerivedProvidedProduct{},
		&pooldomain.PoolAttribute{},
		&pooldomain.ProductPoolAttribute{},
		&pooldomain.Entitlement{},
	}
}

// Apply migrates conn. Postgres uses the embedded SQL migrations; other
// dialects are migrated from the models.
func Apply(conn *gorm.DB) error {
	if conn.Dialector.Name() != "postgres" {
		return conn.AutoMigrate(Models()...)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	return RunMigrations(sqlDB)
}
