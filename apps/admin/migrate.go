package main

import (
	"github.com/pressly/goose/v3"
	"github.com/spf13/cobra"

	"github.com/trezcool/admissions/storage/database"
)

var gooseRunFunc = goose.Run // mockable

func (cli *commandLine) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate COMMAND [ARGS...]",
		Short: "Run a goose command against the embedded migrations",
		Long: `Commands:
  up, up-by-one, up-to VERSION, down, down-to VERSION,
  redo, reset, status, version, create NAME [go|sql], fix`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if err := database.Prepare(cli.db); err != nil {
				return err
			}
			return gooseRunFunc(args[0], cli.db.DB, database.MigrationsDir, args[1:]...)
		},
	}
}
