package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"oscan-intake/internal/db"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the database tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := openDB(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			if conn == nil {
				return errors.New("DATABASE_URL must be set")
			}
			defer conn.Close()
			if err := db.Migrate(cmd.Context(), conn); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema applied")
			return nil
		},
	}
}
