// Package cli implements catalogctl, the offline companion of the catalog service.
// It browses product files with the same catalog store the service uses and
// maintains the catalog database.
package cli

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/ceramica/storefront/pkg/bootstrap"
	"github.com/spf13/cobra"
)

// databaseURLEnv is read when --database-url is not given.
const databaseURLEnv = "CATALOG_DATABASE_URL"

type rootOptions struct {
	logLevel string
}

// NewRootCommand builds the catalogctl command tree writing to out and err.
func NewRootCommand(out, errOut io.Writer) *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "catalogctl",
		Short:         "Browse product files and maintain the storefront catalog",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "Log level: debug, info, warn, error")

	cmd.AddCommand(
		newBrowseCommand(opts),
		newCategoriesCommand(),
		newMigrateCommand(opts),
		newSeedCommand(opts),
	)
	return cmd
}

// Execute runs catalogctl with the process arguments.
func Execute(ctx context.Context) error {
	return NewRootCommand(os.Stdout, os.Stderr).ExecuteContext(ctx)
}

func (o *rootOptions) logger(cmd *cobra.Command) *slog.Logger {
	return bootstrap.NewLoggerTo(cmd.ErrOrStderr(), o.logLevel)
}

func databaseURL(flag string) string {
	if flag != "" {
		return flag
	}
	return os.Getenv(databaseURLEnv)
}
