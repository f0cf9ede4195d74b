package testintel

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kamilpajak/testintel/internal/database"
)

var migrateCmd = &cobra.Command{
	Use:       "migrate [up|down]",
	Short:     "Apply or roll back the PostgreSQL schema",
	Long:      `Apply (up, the default) or roll back (down) the PostgreSQL migrations. SQLite databases manage their schema on open.`,
	Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"up", "down"},
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cfg.UsesPostgres() {
			return fmt.Errorf("DATABASE_URL is required to run migrations")
		}

		direction := "up"
		if len(args) == 1 {
			direction = args[0]
		}

		var err error
		if direction == "down" {
			err = database.MigrateDown(cfg.DatabaseURL)
		} else {
			err = database.Migrate(cfg.DatabaseURL)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Migrations %s complete\n", direction)
		return nil
	},
}
