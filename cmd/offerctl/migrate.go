package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ashureev/offerforge/internal/store"
)

func newMigrateCmd() *cobra.Command {
	var dbPath string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Opening the store runs every pending migration.
			repo, err := store.NewSQLite(dbPath)
			if err != nil {
				return err
			}
			defer repo.Close()
			if err := repo.Ping(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Database %s is up to date\n", dbPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "./data/offerforge.db", "SQLite database path")
	return cmd
}
