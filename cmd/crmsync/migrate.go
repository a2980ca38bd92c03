package main

import (
	"github.com/spf13/cobra"

	"github.com/himplant/crmsync/cmd/crmsync/modules"
	"github.com/himplant/crmsync/internal/db"
)

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(_ *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate <up|down|version|force N>",
		Short: "Manage the journal schema",
		Long: `Apply or inspect the Postgres schema of the sync journal.

Examples:
  crmsync migrate up
  crmsync migrate version
  crmsync migrate force 1`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			migrations, err := modules.MigrationsFS()
			if err != nil {
				return err
			}
			return db.RunMigrate(log, cfg.Postgres, migrations, args[0], args[1:])
		},
	}
}
