package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := a.migrator(cmd.Context())
			if err != nil {
				return err
			}
			applied, err := m.Up(cmd.Context())
			if err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			if len(applied) == 0 {
				fmt.Fprintln(a.out, "no pending migrations")
				return nil
			}
			for _, v := range applied {
				fmt.Fprintf(a.out, "applied %s\n", v)
			}
			return nil
		},
	}
}
