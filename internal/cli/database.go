package cli

import (
	"fmt"
	"time"

	"github.com/ceramica/storefront/internal/migrations"
	"github.com/ceramica/storefront/internal/seed"
	"github.com/ceramica/storefront/internal/store"
	"github.com/ceramica/storefront/pkg/bootstrap"
	"github.com/ceramica/storefront/pkg/config"
	"github.com/spf13/cobra"
)

const connectTimeout = 10 * time.Second

func newMigrateCommand(root *rootOptions) *cobra.Command {
	var url string
	cmd := &cobra.Command{
		Use:       "migrate up|down",
		Short:     "Apply or roll back the catalog database schema",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down"},
		RunE: func(cmd *cobra.Command, args []string) error {
			dbURL, err := requireDatabaseURL(url)
			if err != nil {
				return err
			}
			logger := root.logger(cmd)
			switch args[0] {
			case "up":
				err = migrations.Up(dbURL)
			case "down":
				err = migrations.Down(dbURL)
			}
			if err != nil {
				return err
			}
			logger.Info("Migrations finished", "direction", args[0], "database", config.MaskURL(dbURL))
			fmt.Fprintf(cmd.OutOrStdout(), "migrate %s: done\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&url, "database-url", "", "PostgreSQL URL (default $"+databaseURLEnv+")")
	return cmd
}

func newSeedCommand(root *rootOptions) *cobra.Command {
	var url, file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert the products of a file into the catalog database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dbURL, err := requireDatabaseURL(url)
			if err != nil {
				return err
			}
			items, err := seed.ReadFile(file)
			if err != nil {
				return err
			}
			dbPool, err := bootstrap.NewDbPool(cmd.Context(), dbURL, connectTimeout)
			if err != nil {
				return err
			}
			defer dbPool.Close()

			n, err := seed.Apply(cmd.Context(), store.NewPgStore(dbPool), items)
			if err != nil {
				return fmt.Errorf("seeded %d of %d products: %w", n, len(items), err)
			}
			root.logger(cmd).Info("Catalog seeded", "file", file, "products", n)
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d products\n", n)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Product file (YAML or JSON)")
	cmd.Flags().StringVar(&url, "database-url", "", "PostgreSQL URL (default $"+databaseURLEnv+")")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func requireDatabaseURL(flag string) (string, error) {
	dbURL := databaseURL(flag)
	cfg := config.DatabaseConfig{URL: dbURL, Timeout: connectTimeout}
	if err := cfg.Validate(); err != nil {
		return "", err
	}
	return dbURL, nil
}
