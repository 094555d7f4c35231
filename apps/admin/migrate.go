package main

import (
	"github.com/spf13/cobra"

	"github.com/esmeraldinha/backend/storage/database"
)

var runMigrationsFunc = database.RunMigrations // mockable

func (cli *commandLine) newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate COMMAND [ARGS...]",
		Short: "Run a migration command: up, up-by-one, up-to, down, down-to, redo, reset, status, version, create, fix",
		// goose parses its own arguments
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				_ = cmd.Help()
				return errHelp
			}
			if err := runMigrationsFunc(cli.db, args[0], args[1:]...); err != nil {
				return err
			}
			cli.success("migrate %s", args[0])
			return nil
		},
	}
}
