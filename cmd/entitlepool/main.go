package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/entitlepool/internal/cache"
	"github.com/smallbiznis/entitlepool/internal/clock"
	"github.com/smallbiznis/entitlepool/internal/config"
	"github.com/smallbiznis/entitlepool/internal/migration"
	"github.com/smallbiznis/entitlepool/internal/observability"
	"github.com/smallbiznis/entitlepool/internal/owner"
	"github.com/smallbiznis/entitlepool/internal/product"
	"github.com/smallbiznis/entitlepool/internal/ratelimit"
	"github.com/smallbiznis/entitlepool/internal/scheduler"
	"github.com/smallbiznis/entitlepool/internal/seed"
	"github.com/smallbiznis/entitlepool/internal/server"
	"github.com/smallbiznis/entitlepool/pkg/db"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var nodeID int64

	root := &cobra.Command{
		Use:           "entitlepool",
		Short:         "Subscription pool derivation and entitlement service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().Int64Var(&nodeID, "node-id", 1, "snowflake node id for generated IDs")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app := fx.New(
				config.Module,
				observability.Module,
				fx.Provide(snowflakeNode(nodeID)),
				db.Module,
				clock.Module,
				cache.Module,
				migration.Module,
				ratelimit.Module,
				server.Module,
				scheduler.Module,
			)
			if err := app.Err(); err != nil {
				return err
			}
			app.Run()
			return nil
		},
	}

	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app := fx.New(
				config.Module,
				observability.Module,
				db.Module,
				fx.Decorate(func(cfg config.Config) config.Config {
					cfg.DBAutoMigrate = true
					return cfg
				}),
				migration.Module,
				fx.NopLogger,
			)
			if err := app.Err(); err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()
			if err := app.Start(ctx); err != nil {
				return err
			}
			return app.Stop(ctx)
		},
	}

	seedCmd := &cobra.Command{
		Use:   "seed",
		Short: "Create the demo owner and product catalog",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app := fx.New(
				config.Module,
				observability.Module,
				fx.Provide(snowflakeNode(nodeID)),
				db.Module,
				migration.Module,
				owner.Module,
				product.Module,
				fx.Invoke(func(p seed.Params) error {
					_, err := seed.EnsureDemoCatalog(cmd.Context(), p)
					return err
				}),
				fx.NopLogger,
			)
			if err := app.Err(); err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()
			if err := app.Start(ctx); err != nil {
				return err
			}
			return app.Stop(ctx)
		},
	}

	root.AddCommand(serve, migrate, seedCmd)
	return root
}

func snowflakeNode(id int64) func() (*snowflake.Node, error) {
	return func() (*snowflake.Node, error) {
		return snowflake.NewNode(id)
	}
}
